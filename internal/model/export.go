package model

import "time"

// QuestionExport is the top-level JSON structure written by `qbedit export`.
type QuestionExport struct {
	Subject     string     `json:"subject"`
	SubjectName string     `json:"subject_name"`
	Topic       string     `json:"topic"`
	ExportedAt  string     `json:"exported_at"`
	TotalCount  int        `json:"total_count"`
	Questions   []Question `json:"questions"`
}

// User is a staff account of the development backend.
type User struct {
	ID           int64
	Identifier   string // mobile number or email
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// AuthSession is a token issued by the development backend.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}
