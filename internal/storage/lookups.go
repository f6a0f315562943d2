package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"catalogd/internal/types"
)

func lookupTable(t types.Table) (string, error) {
	if !t.IsLookup() {
		return "", fmt.Errorf("%s is not a lookup table", t)
	}
	return string(t), nil
}

// AddLookup inserts a room, type or color and returns its id.
func (c *Catalog) AddLookup(ctx context.Context, t types.Table, name string) (int64, error) {
	table, err := lookupTable(t)
	if err != nil {
		return 0, err
	}
	if name == "" {
		return 0, errors.New("name is required")
	}
	if _, err := c.LookupByName(ctx, t, name); err == nil {
		return 0, &ExistsError{Thing: t.Thing()}
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	res, err := c.sql.ExecContext(ctx, "INSERT INTO "+table+" (name) VALUES (?)", name)
	if err != nil {
		if isUniqueErr(err) {
			return 0, &ExistsError{Thing: t.Thing()}
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (c *Catalog) LookupByName(ctx context.Context, t types.Table, name string) (*types.Lookup, error) {
	table, err := lookupTable(t)
	if err != nil {
		return nil, err
	}
	return c.scanLookup(ctx, t, "SELECT id, name FROM "+table+" WHERE name = ?", name)
}

func (c *Catalog) LookupByID(ctx context.Context, t types.Table, id int64) (*types.Lookup, error) {
	table, err := lookupTable(t)
	if err != nil {
		return nil, err
	}
	return c.scanLookup(ctx, t, "SELECT id, name FROM "+table+" WHERE id = ?", id)
}

func (c *Catalog) scanLookup(ctx context.Context, t types.Table, query string, arg any) (*types.Lookup, error) {
	var l types.Lookup
	err := c.sql.QueryRowContext(ctx, query, arg).Scan(&l.ID, &l.Name)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Thing: t.Thing()}
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLookups returns every row of t ordered by id.
func (c *Catalog) ListLookups(ctx context.Context, t types.Table) ([]types.Lookup, error) {
	table, err := lookupTable(t)
	if err != nil {
		return nil, err
	}
	rows, err := c.sql.QueryContext(ctx, "SELECT id, name FROM "+table+" ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.Lookup{}
	for rows.Next() {
		var l types.Lookup
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLookup removes a lookup row by name. Rows still referenced by an item
// are protected by ON DELETE RESTRICT and yield an IntegrityError.
func (c *Catalog) DeleteLookup(ctx context.Context, t types.Table, name string) error {
	table, err := lookupTable(t)
	if err != nil {
		return err
	}
	if _, err := c.LookupByName(ctx, t, name); err != nil {
		return err
	}
	if _, err := c.sql.ExecContext(ctx, "DELETE FROM "+table+" WHERE name = ?", name); err != nil {
		if isForeignKeyErr(err) {
			return &IntegrityError{Thing: t.Thing(), Err: err}
		}
		return err
	}
	return nil
}
