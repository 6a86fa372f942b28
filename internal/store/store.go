package store

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/qbedit/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		model_answer TEXT NOT NULL DEFAULT '',
		grading_criteria TEXT NOT NULL DEFAULT '',
		explanation TEXT NOT NULL DEFAULT '',
		question_image TEXT NOT NULL DEFAULT '',
		explanation_image TEXT NOT NULL DEFAULT '',
		question_type TEXT NOT NULL,
		subject TEXT NOT NULL,
		topic TEXT NOT NULL,
		subtopic TEXT NOT NULL DEFAULT '',
		level INTEGER NOT NULL DEFAULT 1,
		question_set TEXT NOT NULL DEFAULT '',
		marks INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT '',
		ignored INTEGER NOT NULL DEFAULT 0,
		source_image_url TEXT NOT NULL DEFAULT '',
		source_image_view_url TEXT NOT NULL DEFAULT '',
		source_image_name TEXT NOT NULL DEFAULT '',
		source_folder_name TEXT NOT NULL DEFAULT '',
		source_directory_url TEXT NOT NULL DEFAULT '',
		option1 TEXT NOT NULL DEFAULT '',
		option2 TEXT NOT NULL DEFAULT '',
		option3 TEXT NOT NULL DEFAULT '',
		option4 TEXT NOT NULL DEFAULT '',
		correct_answer TEXT NOT NULL DEFAULT '',
		extra TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_questions_subject_topic ON questions(subject, topic);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identifier TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	// Databases created before unknown fields were kept lack the column.
	_, err := s.db.Exec(`ALTER TABLE questions ADD COLUMN extra TEXT NOT NULL DEFAULT ''`)
	if err != nil && !strings.Contains(err.Error(), "duplicate column") {
		return err
	}
	return nil
}

var questionColumns = []string{
	"id", "question", "model_answer", "grading_criteria", "explanation",
	"question_image", "explanation_image", "question_type", "subject", "topic",
	"subtopic", "level", "question_set", "marks", "created_at", "updated_at",
	"ignored", "source_image_url", "source_image_view_url", "source_image_name",
	"source_folder_name", "source_directory_url",
	"option1", "option2", "option3", "option4", "correct_answer", "extra",
}

var selectQuestion = `SELECT ` + strings.Join(questionColumns, ", ") + ` FROM questions`

func questionArgs(q model.Question) []any {
	return []any{
		q.ID, q.Question, q.ModelAnswer, q.GradingCriteria, q.Explanation,
		q.QuestionImage, q.ExplanationImage, q.QuestionType, q.Subject, q.Topic,
		q.Subtopic, q.Level, q.QuestionSet, q.Marks, q.CreatedAt, q.UpdatedAt,
		q.Ignore, q.SourceImageURL, q.SourceImageViewURL, q.SourceImageName,
		q.SourceFolderName, q.SourceDirectoryURL,
		q.Option1, q.Option2, q.Option3, q.Option4, q.CorrectAnswer, extraFields(q.Extra),
	}
}

// extraFields stores the fields a question has no column for as one JSON
// object. An empty set is stored as ''.
type extraFields map[string]json.RawMessage

func (e extraFields) Value() (driver.Value, error) {
	if len(e) == 0 {
		return "", nil
	}
	b, err := json.Marshal(map[string]json.RawMessage(e))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (e *extraFields) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scan extra: unsupported type %T", src)
	}
	if len(data) == 0 {
		*e = nil
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("scan extra: %w", err)
	}
	*e = m
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row scanner) (model.Question, error) {
	var q model.Question
	err := row.Scan(
		&q.ID, &q.Question, &q.ModelAnswer, &q.GradingCriteria, &q.Explanation,
		&q.QuestionImage, &q.ExplanationImage, &q.QuestionType, &q.Subject, &q.Topic,
		&q.Subtopic, &q.Level, &q.QuestionSet, &q.Marks, &q.CreatedAt, &q.UpdatedAt,
		&q.Ignore, &q.SourceImageURL, &q.SourceImageViewURL, &q.SourceImageName,
		&q.SourceFolderName, &q.SourceDirectoryURL,
		&q.Option1, &q.Option2, &q.Option3, &q.Option4, &q.CorrectAnswer, (*extraFields)(&q.Extra),
	)
	return q, err
}

// InsertQuestion stores a question. A fresh identifier is assigned when
// q.ID is empty; the stored identifier is returned.
func (s *Store) InsertQuestion(q model.Question) (string, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(questionColumns)), ", ")
	_, err := s.db.Exec(
		`INSERT INTO questions (`+strings.Join(questionColumns, ", ")+`) VALUES (`+placeholders+`)`,
		questionArgs(q)...,
	)
	if err != nil {
		return "", err
	}
	return q.ID, nil
}

// ListQuestions returns the questions of a subject/topic in insertion order.
func (s *Store) ListQuestions(subject, topic string) ([]model.Question, error) {
	rows, err := s.db.Query(selectQuestion+` WHERE subject = ? AND topic = ? ORDER BY rowid`, subject, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id string) (model.Question, error) {
	return scanQuestion(s.db.QueryRow(selectQuestion+` WHERE id = ?`, id))
}

// UpdateQuestion replaces every column of an existing question except
// created_at. It returns sql.ErrNoRows when the id is unknown.
func (s *Store) UpdateQuestion(q model.Question) error {
	var sets []string
	var args []any
	all := questionArgs(q)
	for i, col := range questionColumns {
		if col == "id" || col == "created_at" {
			continue
		}
		sets = append(sets, col+" = ?")
		args = append(args, all[i])
	}
	args = append(args, q.ID)
	res, err := s.db.Exec(`UPDATE questions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// QuestionCount returns the total number of questions.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// GetImportedFileHash returns the content hash recorded for an imported
// file, or "" if the file was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the content hash of an imported file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, hash) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = ?`,
		path, hash, hash,
	)
	return err
}
