// Package session tracks what one connection is allowed to do.
package session

import (
	"context"
	"fmt"

	"catalogd/internal/types"
)

type State int

const (
	Unauthenticated State = iota
	Authenticated
	AuthenticatedAdmin
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case AuthenticatedAdmin:
		return "admin"
	default:
		return "unauthenticated"
	}
}

// Session holds the authentication flags of a single connection. It is owned
// by the connection's goroutine and is not safe for concurrent use.
type Session struct {
	authenticated bool
	admin         bool
	username      string
}

// New returns an unauthenticated, non-admin session.
func New() *Session {
	return &Session{}
}

func (s *Session) IsAuthenticated() bool { return s.authenticated }
func (s *Session) IsAdmin() bool         { return s.authenticated && s.admin }
func (s *Session) Username() string      { return s.username }

func (s *Session) State() State {
	switch {
	case s.IsAdmin():
		return AuthenticatedAdmin
	case s.authenticated:
		return Authenticated
	}
	return Unauthenticated
}

// Reset clears both flags (DISCONNECT). The connection stays open.
func (s *Session) Reset() {
	s.authenticated = false
	s.admin = false
	s.username = ""
}

// Submitter hands a request to the data-access worker and waits for its answer.
type Submitter interface {
	Submit(ctx context.Context, req types.Request) (interface{}, error)
}

// Authenticator runs the two-step login against the worker for one session.
type Authenticator struct {
	worker  Submitter
	session *Session
}

func NewAuthenticator(worker Submitter, s *Session) *Authenticator {
	return &Authenticator{worker: worker, session: s}
}

// Authenticate checks the credentials and, only if they match, asks whether
// the user is an administrator. A failed attempt leaves the session as it was.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (bool, error) {
	data, err := a.worker.Submit(ctx, types.AuthenticateRequest{Username: username, Password: password})
	if err != nil {
		return false, fmt.Errorf("authenticate: %w", err)
	}
	ok, _ := data.(bool)
	if !ok {
		return false, nil
	}

	data, err = a.worker.Submit(ctx, types.IsAdminRequest{Username: username})
	if err != nil {
		return false, fmt.Errorf("is admin: %w", err)
	}
	admin, _ := data.(bool)

	a.session.authenticated = true
	a.session.admin = admin
	a.session.username = username
	return true, nil
}
