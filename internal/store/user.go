package store

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/pavelanni/qbedit/internal/model"
)

// CreateUser inserts a new staff user.
func (s *Store) CreateUser(u model.User) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users (identifier, password_hash, active, created_at) VALUES (?, ?, ?, ?)`,
		u.Identifier, u.PasswordHash, u.Active, time.Now(),
	)
	if err != nil {
		slog.Error("failed to create user", "identifier", u.Identifier, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created user", "id", id, "identifier", u.Identifier)
	return id, nil
}

// GetUserByIdentifier returns a user by mobile number or email, or nil.
func (s *Store) GetUserByIdentifier(identifier string) (*model.User, error) {
	return s.getUser(`SELECT id, identifier, password_hash, active, created_at
		 FROM users WHERE identifier = ?`, identifier)
}

// GetUserByID returns a user by ID, or nil.
func (s *Store) GetUserByID(id int64) (*model.User, error) {
	return s.getUser(`SELECT id, identifier, password_hash, active, created_at
		 FROM users WHERE id = ?`, id)
}

func (s *Store) getUser(query string, arg any) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(query, arg).Scan(&u.ID, &u.Identifier, &u.PasswordHash, &u.Active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserCount returns the total number of users.
func (s *Store) UserCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
