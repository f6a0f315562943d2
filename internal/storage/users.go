package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"catalogd/internal/types"
)

// AddUser hashes password and stores a new account.
func (c *Catalog) AddUser(ctx context.Context, username, password string, isAdmin bool) (int64, error) {
	if username == "" {
		return 0, errors.New("username is required")
	}
	if _, err := c.UserByName(ctx, username); err == nil {
		return 0, &ExistsError{Thing: types.TableUsers.Thing()}
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	digest, err := c.hasher.Hash(password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	res, err := c.sql.ExecContext(ctx,
		"INSERT INTO users (username, password, is_admin) VALUES (?, ?, ?)",
		username, digest, isAdmin)
	if err != nil {
		if isUniqueErr(err) {
			return 0, &ExistsError{Thing: types.TableUsers.Thing()}
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (c *Catalog) UserByName(ctx context.Context, username string) (*types.User, error) {
	var u types.User
	err := c.sql.QueryRowContext(ctx,
		"SELECT id, username, password, is_admin FROM users WHERE username = ?", username,
	).Scan(&u.ID, &u.Username, &u.PasswordDigest, &u.IsAdmin)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Thing: types.TableUsers.Thing()}
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Catalog) ListUsers(ctx context.Context) ([]types.User, error) {
	rows, err := c.sql.QueryContext(ctx, "SELECT id, username, password, is_admin FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.User{}
	for rows.Next() {
		var u types.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordDigest, &u.IsAdmin); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (c *Catalog) DeleteUser(ctx context.Context, username string) error {
	res, err := c.sql.ExecContext(ctx, "DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return err
	}
	return affectedOne(res, types.TableUsers)
}

// Authenticate reports whether username exists and password matches its
// digest. Unknown users are a plain false, not an error.
func (c *Catalog) Authenticate(ctx context.Context, username, password string) (bool, error) {
	u, err := c.UserByName(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.hasher.Verify(password, u.PasswordDigest)
}

func (c *Catalog) IsAdmin(ctx context.Context, username string) (bool, error) {
	u, err := c.UserByName(ctx, username)
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}
