// Package storage is the catalog's relational store. A Catalog is not safe for
// concurrent use; the transaction manager is its only caller.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"catalogd/internal/logger"
)

// Default bootstrap account, created when no "admin" user exists.
const (
	BootstrapUser     = "admin"
	BootstrapPassword = "admin"
)

// PasswordHasher is the one-way digest used for user passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) (bool, error)
}

type Options struct {
	Path   string
	Hasher PasswordHasher
	// Fresh removes any existing database file before opening.
	Fresh bool
}

type Catalog struct {
	sql    *sql.DB
	hasher PasswordHasher
}

// Open opens (creating if needed) the catalog database, applies migrations and
// guarantees the bootstrap administrator exists.
func Open(ctx context.Context, opts Options) (*Catalog, error) {
	if opts.Path == "" {
		return nil, errors.New("db path is required")
	}
	if opts.Hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	if opts.Fresh {
		if err := os.Remove(opts.Path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove old database: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", opts.Path)
	s, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection: the worker is the single writer and the pragmas stay put.
	s.SetMaxOpenConns(1)
	s.SetMaxIdleConns(1)
	s.SetConnMaxLifetime(0)

	c := &Catalog{sql: s, hasher: opts.Hasher}
	if err := c.ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := migrate(ctx, s); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := c.bootstrap(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Close() error {
	return c.sql.Close()
}

func (c *Catalog) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.sql.PingContext(ctx)
}

func (c *Catalog) bootstrap(ctx context.Context) error {
	_, err := c.UserByName(ctx, BootstrapUser)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := c.AddUser(ctx, BootstrapUser, BootstrapPassword, true); err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}
	logger.Info("Created bootstrap administrator %q", BootstrapUser)
	return nil
}
