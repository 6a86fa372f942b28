package store

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/pavelanni/qbedit/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestQuestion(t *testing.T, s *Store, text, subject, topic string) string {
	t.Helper()
	id, err := s.InsertQuestion(model.Question{
		Question:     text,
		QuestionType: model.TypeShortAnswer,
		Subject:      subject,
		Topic:        topic,
		ModelAnswer:  "answer for " + text,
		Level:        1,
		Marks:        2,
		CreatedAt:    "2025-01-31T07:15:30.123+05:30",
	})
	if err != nil {
		t.Fatalf("insertTestQuestion: %v", err)
	}
	return id
}

func TestQuestionCRUD(t *testing.T) {
	s := newTestStore(t)

	count, err := s.QuestionCount()
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 questions, got %d", count)
	}

	id := insertTestQuestion(t, s, "Define a polynomial.", "x-mathematics", "Polynomials")
	if id == "" {
		t.Fatal("expected generated id")
	}

	q, err := s.GetQuestion(id)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if q.Question != "Define a polynomial." {
		t.Errorf("unexpected text %q", q.Question)
	}
	if q.QuestionType != model.TypeShortAnswer {
		t.Errorf("unexpected type %q", q.QuestionType)
	}
	if q.UpdatedAt != "" {
		t.Errorf("expected empty updated_at, got %q", q.UpdatedAt)
	}

	_, err = s.GetQuestion("missing")
	if err != sql.ErrNoRows {
		t.Errorf("expected ErrNoRows, got %v", err)
	}

	// Explicit ids are kept.
	kept, err := s.InsertQuestion(model.Question{
		ID: "65a1", Question: "Q", QuestionType: model.TypeMCQ,
		Subject: "x-mathematics", Topic: "Polynomials", CreatedAt: "c",
	})
	if err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}
	if kept != "65a1" {
		t.Errorf("expected id 65a1, got %q", kept)
	}
}

func TestListQuestionsOrderAndFilter(t *testing.T) {
	s := newTestStore(t)
	first := insertTestQuestion(t, s, "Q1", "x-mathematics", "Polynomials")
	insertTestQuestion(t, s, "Q2", "x-mathematics", "Triangles")
	third := insertTestQuestion(t, s, "Q3", "x-mathematics", "Polynomials")

	qs, err := s.ListQuestions("x-mathematics", "Polynomials")
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(qs))
	}
	if qs[0].ID != first || qs[1].ID != third {
		t.Errorf("expected insertion order [%s %s], got [%s %s]", first, third, qs[0].ID, qs[1].ID)
	}

	none, err := s.ListQuestions("x-science", "Polynomials")
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no questions, got %d", len(none))
	}
}

func TestUpdateQuestion(t *testing.T) {
	s := newTestStore(t)
	id := insertTestQuestion(t, s, "Q1", "x-science", "Light")

	q, err := s.GetQuestion(id)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	q.Question = "Q1 (edited)"
	q.QuestionType = model.TypeMCQ
	q.Option1 = "a"
	q.CorrectAnswer = "option1"
	q.Ignore = true
	q.UpdatedAt = "2025-02-01T10:00:00.000+05:30"
	q.CreatedAt = "should not change"
	if err := s.UpdateQuestion(q); err != nil {
		t.Fatalf("UpdateQuestion: %v", err)
	}

	got, err := s.GetQuestion(id)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if got.Question != "Q1 (edited)" || got.Option1 != "a" || got.CorrectAnswer != "option1" || !got.Ignore {
		t.Errorf("update not persisted: %+v", got)
	}
	if got.CreatedAt != "2025-01-31T07:15:30.123+05:30" {
		t.Errorf("created_at changed to %q", got.CreatedAt)
	}

	if err := s.UpdateQuestion(model.Question{ID: "nope"}); err != sql.ErrNoRows {
		t.Errorf("expected ErrNoRows for unknown id, got %v", err)
	}
}

func TestSessionTokenMetadata(t *testing.T) {
	s := newTestStore(t)

	token, err := s.LoadSessionToken()
	if err != nil {
		t.Fatalf("LoadSessionToken: %v", err)
	}
	if token != "" {
		t.Fatalf("expected no token, got %q", token)
	}

	if err := s.SaveSessionToken("abc"); err != nil {
		t.Fatalf("SaveSessionToken: %v", err)
	}
	if err := s.SaveSessionToken("def"); err != nil {
		t.Fatalf("SaveSessionToken overwrite: %v", err)
	}
	token, _ = s.LoadSessionToken()
	if token != "def" {
		t.Errorf("expected def, got %q", token)
	}

	if err := s.ClearSessionToken(); err != nil {
		t.Fatalf("ClearSessionToken: %v", err)
	}
	if err := s.ClearSessionToken(); err != nil {
		t.Fatalf("second ClearSessionToken: %v", err)
	}
	token, _ = s.LoadSessionToken()
	if token != "" {
		t.Errorf("expected token cleared, got %q", token)
	}
}

func TestUsersAndAuthSessions(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateUser(model.User{Identifier: "staff@example.com", PasswordHash: "hash", Active: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.CreateUser(model.User{Identifier: "staff@example.com", PasswordHash: "x"}); err == nil {
		t.Error("expected duplicate identifier to fail")
	}

	u, err := s.GetUserByIdentifier("staff@example.com")
	if err != nil || u == nil {
		t.Fatalf("GetUserByIdentifier: %v, %v", u, err)
	}
	if u.ID != id || !u.Active {
		t.Errorf("unexpected user %+v", u)
	}
	missing, err := s.GetUserByIdentifier("nobody")
	if err != nil || missing != nil {
		t.Errorf("expected nil user, got %v, %v", missing, err)
	}

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("IST", 5*60*60+30*60))
	token, err := s.CreateAuthSession(id, now, time.Hour)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	sess, err := s.GetAuthSession(token, now.Add(59*time.Minute))
	if err != nil || sess == nil {
		t.Fatalf("GetAuthSession: %v, %v", sess, err)
	}
	if sess.UserID != id {
		t.Errorf("expected user %d, got %d", id, sess.UserID)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	sess, err = s.GetAuthSession(token, now)
	if err != nil || sess != nil {
		t.Errorf("expected deleted session, got %v, %v", sess, err)
	}
}

func TestAuthSessionExpiry(t *testing.T) {
	s := newTestStore(t)
	id, err := s.CreateUser(model.User{Identifier: "staff@example.com", PasswordHash: "hash", Active: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	now := time.Date(2025, 3, 1, 6, 30, 0, 0, time.UTC)

	seen, _ := s.CreateAuthSession(id, now, time.Hour)
	swept, _ := s.CreateAuthSession(id, now, time.Hour)
	live, _ := s.CreateAuthSession(id, now.Add(90*time.Minute), time.Hour)
	later := now.Add(2 * time.Hour)

	// Looking up an expired token removes it.
	if sess, err := s.GetAuthSession(seen, later); err != nil || sess != nil {
		t.Fatalf("expired token: got %v, %v", sess, err)
	}
	if sess, _ := s.GetAuthSession(seen, now); sess != nil {
		t.Error("expired token must be deleted on lookup")
	}

	n, err := s.PurgeExpiredSessions(later)
	if err != nil {
		t.Fatalf("PurgeExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d sessions, want 1", n)
	}
	if sess, _ := s.GetAuthSession(swept, now); sess != nil {
		t.Error("purged token is still stored")
	}
	if sess, _ := s.GetAuthSession(live, later); sess == nil {
		t.Error("unexpired token must survive the purge")
	}
}

func TestQuestionExtraFields(t *testing.T) {
	s := newTestStore(t)
	id, err := s.InsertQuestion(model.Question{
		Question: "Q", QuestionType: model.TypeShortAnswer,
		Subject: "x-mathematics", Topic: "Polynomials", CreatedAt: "c",
		Extra: map[string]json.RawMessage{"chapter": json.RawMessage(`"ch-2"`)},
	})
	if err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}
	q, err := s.GetQuestion(id)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if string(q.Extra["chapter"]) != `"ch-2"` {
		t.Errorf("extra = %v", q.Extra)
	}

	q.Extra = nil
	if err := s.UpdateQuestion(q); err != nil {
		t.Fatalf("UpdateQuestion: %v", err)
	}
	q, _ = s.GetQuestion(id)
	if q.Extra != nil {
		t.Errorf("extra must be cleared, got %v", q.Extra)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)
	h, err := s.GetImportedFileHash("questions.json")
	if err != nil || h != "" {
		t.Fatalf("expected empty hash, got %q, %v", h, err)
	}
	if err := s.SetImportedFileHash("questions.json", "abc"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	h, _ = s.GetImportedFileHash("questions.json")
	if h != "abc" {
		t.Errorf("expected abc, got %q", h)
	}
}
