package store

import "database/sql"

// sessionTokenKey is the metadata key holding the editor's backend session token.
const sessionTokenKey = "x-auth-session"

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// DeleteMetadata removes a metadata key. Deleting a missing key is not an error.
func (s *Store) DeleteMetadata(key string) error {
	_, err := s.db.Exec(`DELETE FROM metadata WHERE key = ?`, key)
	return err
}

// LoadSessionToken returns the persisted session token, or "" when none is stored.
func (s *Store) LoadSessionToken() (string, error) {
	return s.GetMetadata(sessionTokenKey)
}

// SaveSessionToken persists the session token.
func (s *Store) SaveSessionToken(token string) error {
	return s.SetMetadata(sessionTokenKey, token)
}

// ClearSessionToken erases the persisted session token.
func (s *Store) ClearSessionToken() error {
	return s.DeleteMetadata(sessionTokenKey)
}
