// Package session owns the editor's backend session token. One Store is
// created per process and handed to every component that makes
// authenticated calls.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pavelanni/qbedit/internal/model"
)

// ErrNoToken is returned by Login when the backend accepted the request but
// sent no session token.
var ErrNoToken = errors.New("no auth token received")

// Storage persists the token across restarts.
type Storage interface {
	LoadSessionToken() (string, error)
	SaveSessionToken(token string) error
	ClearSessionToken() error
}

// Authenticator exchanges credentials for a session token.
type Authenticator interface {
	Login(ctx context.Context, creds model.Credentials) (string, error)
}

// Store holds the current token. The zero token means unauthenticated.
type Store struct {
	mu      sync.RWMutex
	token   string
	storage Storage
	auth    Authenticator
}

// New creates an unauthenticated Store. Call Restore to adopt a persisted token.
func New(storage Storage, auth Authenticator) *Store {
	return &Store{storage: storage, auth: auth}
}

// SetAuthenticator installs the login backend. The client and the session
// store reference each other, so one of them is wired after construction.
func (s *Store) SetAuthenticator(auth Authenticator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = auth
}

// Restore adopts a previously persisted token without validating it; an
// expired token surfaces on the first authenticated call.
func (s *Store) Restore() error {
	token, err := s.storage.LoadSessionToken()
	if err != nil {
		return fmt.Errorf("load session token: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	if token != "" {
		slog.Info("restored session")
	}
	return nil
}

// Login authenticates and, on success, persists the token. On any failure
// the store stays unauthenticated and nothing is persisted.
func (s *Store) Login(ctx context.Context, creds model.Credentials) error {
	s.mu.RLock()
	auth := s.auth
	s.mu.RUnlock()
	if auth == nil {
		return errors.New("session: no authenticator configured")
	}

	token, err := auth.Login(ctx, creds)
	if err != nil {
		return err
	}
	if token == "" {
		return ErrNoToken
	}
	if err := s.storage.SaveSessionToken(token); err != nil {
		return fmt.Errorf("save session token: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	slog.Info("logged in", "identifier", creds.Identifier)
	return nil
}

// Logout forgets the token locally. There is no server round trip. The
// in-memory session is cleared even if erasing the persisted copy fails.
func (s *Store) Logout() error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	if err := s.storage.ClearSessionToken(); err != nil {
		return fmt.Errorf("clear session token: %w", err)
	}
	slog.Info("logged out")
	return nil
}

// Token returns the current token, or "" when unauthenticated.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Authenticated reports whether a token is held.
func (s *Store) Authenticated() bool {
	return s.Token() != ""
}
