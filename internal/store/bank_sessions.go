package store

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"time"

	"github.com/pavelanni/qbedit/internal/model"
)

// Tokens issued by the development bank. Expiry is judged against the
// caller's clock; times are stored in UTC so that SQL comparisons hold.

// CreateAuthSession issues a token for userID that expires ttl after now.
func (s *Store) CreateAuthSession(userID int64, now time.Time, ttl time.Duration) (string, error) {
	token := rand.Text()
	_, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, now.UTC(), now.Add(ttl).UTC(),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetAuthSession returns the session for token, or nil when the token is
// unknown or expired at now. An expired row is removed on sight.
func (s *Store) GetAuthSession(token string, now time.Time) (*model.AuthSession, error) {
	var sess model.AuthSession
	err := s.db.QueryRow(
		`SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = ?`, token,
	).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !now.Before(sess.ExpiresAt) {
		return nil, s.DeleteAuthSession(token)
	}
	return &sess, nil
}

// DeleteAuthSession revokes a token.
func (s *Store) DeleteAuthSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, token)
	return err
}

// PurgeExpiredSessions removes every token expired at now and reports how
// many were removed.
func (s *Store) PurgeExpiredSessions(now time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
