package session

import (
	"context"
	"errors"
	"testing"

	"github.com/pavelanni/qbedit/internal/model"
	"github.com/pavelanni/qbedit/internal/store"
)

type fakeAuth struct {
	token string
	err   error
	calls int
}

func (f *fakeAuth) Login(_ context.Context, _ model.Credentials) (string, error) {
	f.calls++
	return f.token, f.err
}

func newTestStorage(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var creds = model.Credentials{Identifier: "staff@example.com", Password: "secret"}

func TestLoginPersistsToken(t *testing.T) {
	storage := newTestStorage(t)
	s := New(storage, &fakeAuth{token: "tok-1"})

	if s.Authenticated() {
		t.Fatal("new store should be unauthenticated")
	}
	if err := s.Login(context.Background(), creds); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !s.Authenticated() || s.Token() != "tok-1" {
		t.Errorf("expected authenticated with tok-1, got %q", s.Token())
	}
	persisted, _ := storage.LoadSessionToken()
	if persisted != "tok-1" {
		t.Errorf("expected persisted token, got %q", persisted)
	}
}

func TestLoginFailures(t *testing.T) {
	rejected := errors.New("invalid credentials")
	tests := []struct {
		name    string
		auth    *fakeAuth
		wantErr error
	}{
		{"rejected", &fakeAuth{err: rejected}, rejected},
		{"missing token", &fakeAuth{token: ""}, ErrNoToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := newTestStorage(t)
			s := New(storage, tt.auth)

			err := s.Login(context.Background(), creds)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login error = %v, want %v", err, tt.wantErr)
			}
			if s.Authenticated() {
				t.Error("store must stay unauthenticated")
			}
			persisted, _ := storage.LoadSessionToken()
			if persisted != "" {
				t.Errorf("nothing should be persisted, got %q", persisted)
			}
			if tt.auth.calls != 1 {
				t.Errorf("expected exactly one attempt, got %d", tt.auth.calls)
			}
		})
	}
}

func TestRestoreAndLogout(t *testing.T) {
	storage := newTestStorage(t)
	if err := storage.SaveSessionToken("persisted"); err != nil {
		t.Fatalf("SaveSessionToken: %v", err)
	}

	s := New(storage, nil)
	if err := s.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if s.Token() != "persisted" {
		t.Fatalf("expected restored token, got %q", s.Token())
	}

	if err := s.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if s.Authenticated() {
		t.Error("expected unauthenticated after logout")
	}

	// A fresh process sees no session.
	fresh := New(storage, nil)
	if err := fresh.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if fresh.Authenticated() {
		t.Error("token should not survive logout")
	}
}

func TestLoginWithoutAuthenticator(t *testing.T) {
	s := New(newTestStorage(t), nil)
	if err := s.Login(context.Background(), creds); err == nil {
		t.Error("expected error without authenticator")
	}
}
