package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/qbedit/internal/client"
	"github.com/pavelanni/qbedit/internal/model"
	"github.com/pavelanni/qbedit/internal/session"
	"github.com/pavelanni/qbedit/internal/store"
)

var fixedNow = time.Date(2025, 3, 1, 6, 30, 0, 0, time.UTC)

func newTestBank(t *testing.T, opts Options) (*httptest.Server, *store.Store) {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := SeedUser(db, "staff@example.com", "secret"); err != nil {
		t.Fatalf("SeedUser: %v", err)
	}
	for _, q := range []model.Question{
		{ID: "q1", Question: "Degree of x^2+1?", QuestionType: model.TypeShortAnswer, Subject: "x-mathematics", Topic: "Polynomials", CreatedAt: "2025-01-01T10:00:00.000+05:30"},
		{ID: "q2", Question: "Zeroes of x^2-1?", QuestionType: model.TypeMCQ, Subject: "x-mathematics", Topic: "Polynomials", Option1: "1", Option2: "-1", CorrectAnswer: "option1"},
		{ID: "q3", Question: "Remainder theorem", QuestionType: model.TypeLongAnswer, Subject: "x-mathematics", Topic: "Polynomials"},
		{ID: "s1", Question: "What is a cell?", QuestionType: model.TypeShortAnswer, Subject: "x-science", Topic: "Life Processes"},
	} {
		if _, err := db.InsertQuestion(q); err != nil {
			t.Fatalf("InsertQuestion: %v", err)
		}
	}

	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	r := chi.NewRouter()
	New(db, opts).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, db
}

func postJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	req, err := http.NewRequest(method, url, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(client.SessionHeader, token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func login(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := postJSON(t, http.MethodPost, srv.URL+LoginPath, "", model.Credentials{Identifier: "staff@example.com", Password: "secret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	token := resp.Header.Get(client.SessionHeader)
	if token == "" {
		t.Fatal("no session header")
	}
	return token
}

func TestLogin(t *testing.T) {
	srv, _ := newTestBank(t, Options{})

	tests := []struct {
		name       string
		creds      model.Credentials
		wantStatus int
		wantToken  bool
	}{
		{"valid", model.Credentials{Identifier: "staff@example.com", Password: "secret"}, http.StatusOK, true},
		{"wrong password", model.Credentials{Identifier: "staff@example.com", Password: "nope"}, http.StatusUnauthorized, false},
		{"unknown user", model.Credentials{Identifier: "9999999999", Password: "secret"}, http.StatusUnauthorized, false},
		{"missing identifier", model.Credentials{Password: "secret"}, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, http.MethodPost, srv.URL+LoginPath, "", tt.creds)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got := resp.Header.Get(client.SessionHeader) != ""; got != tt.wantToken {
				t.Errorf("token present = %v, want %v", got, tt.wantToken)
			}
		})
	}
}

func TestLoginRateLimit(t *testing.T) {
	srv, _ := newTestBank(t, Options{LoginRate: 0.001, LoginBurst: 2})
	bad := model.Credentials{Identifier: "staff@example.com", Password: "nope"}

	for i := 0; i < 2; i++ {
		if resp := postJSON(t, http.MethodPost, srv.URL+LoginPath, "", bad); resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d", i, resp.StatusCode)
		}
	}
	if resp := postJSON(t, http.MethodPost, srv.URL+LoginPath, "", bad); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
}

func TestFetch(t *testing.T) {
	srv, _ := newTestBank(t, Options{})
	token := login(t, srv)

	resp := postJSON(t, http.MethodPost, srv.URL+FetchPath, token, model.SelectionCriteria{Subject: "x-mathematics", Topic: "Polynomials"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got model.FetchQuestionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TotalCount != 3 || len(got.Questions) != 3 || got.Questions[0].ID != "q1" || got.Questions[2].ID != "q3" {
		t.Errorf("unexpected response %+v", got)
	}

	resp = postJSON(t, http.MethodPost, srv.URL+FetchPath, token, model.SelectionCriteria{Subject: "x-mathematics", Topic: "Triangles"})
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"questions":[]`) {
		t.Errorf("empty result must be an empty array, got %s", body)
	}

	resp = postJSON(t, http.MethodPost, srv.URL+FetchPath, token, model.SelectionCriteria{Subject: "x-mathematics"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("incomplete criteria: status = %d, want 400", resp.StatusCode)
	}
}

func TestRequireSession(t *testing.T) {
	srv, _ := newTestBank(t, Options{})
	for _, token := range []string{"", "forged"} {
		resp := postJSON(t, http.MethodPost, srv.URL+FetchPath, token, model.SelectionCriteria{Subject: "x-mathematics", Topic: "Polynomials"})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, resp.StatusCode)
		}
	}
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestExpiredSessions(t *testing.T) {
	clk := &testClock{t: fixedNow}
	srv, db := newTestBank(t, Options{Now: clk.Now, SessionTTL: time.Hour})
	criteria := model.SelectionCriteria{Subject: "x-mathematics", Topic: "Polynomials"}

	stale := login(t, srv)
	idle := login(t, srv)
	clk.Add(2 * time.Hour)

	resp := postJSON(t, http.MethodPost, srv.URL+FetchPath, stale, criteria)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expired token: status = %d, want 401", resp.StatusCode)
	}
	if sess, _ := db.GetAuthSession(stale, fixedNow); sess != nil {
		t.Error("expired token must be removed when presented")
	}
	if sess, _ := db.GetAuthSession(idle, fixedNow); sess == nil {
		t.Fatal("idle token must remain until the next sweep")
	}

	// The next sign-in sweeps the tokens nobody presented.
	fresh := login(t, srv)
	if sess, _ := db.GetAuthSession(idle, fixedNow); sess != nil {
		t.Error("expired idle token must be purged on login")
	}
	resp = postJSON(t, http.MethodPost, srv.URL+FetchPath, fresh, criteria)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("fresh token: status = %d, want 200", resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "qbank_sessions_purged_total 1") {
		t.Error("purge not counted in metrics")
	}
}

func TestUpdate(t *testing.T) {
	srv, db := newTestBank(t, Options{})
	token := login(t, srv)

	q, err := db.GetQuestion("q2")
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	q.CorrectAnswer = "option2"
	q.Explanation = "x^2-1 = (x-1)(x+1)"
	q.CreatedAt = "tampered"
	q.Extra = map[string]json.RawMessage{"chapter": json.RawMessage(`"ch-2"`)}

	resp := postJSON(t, http.MethodPut, srv.URL+UpdatePath, token, model.UpdateQuestionRequest{QuestionData: q})
	var got model.UpdateQuestionResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Success || got.DocumentID != "q2" || got.UpdatedAt != "2025-03-01T12:00:00.000+05:30" {
		t.Errorf("unexpected response %+v", got)
	}

	stored, _ := db.GetQuestion("q2")
	if stored.CorrectAnswer != "option2" || stored.Explanation != q.Explanation {
		t.Errorf("update not stored: %+v", stored)
	}
	if string(stored.Extra["chapter"]) != `"ch-2"` {
		t.Errorf("unknown fields not kept: %v", stored.Extra)
	}
	if stored.CreatedAt == "tampered" {
		t.Error("created_at must not be overwritten")
	}
	if stored.UpdatedAt != got.UpdatedAt {
		t.Errorf("stored updated_at = %q, want %q", stored.UpdatedAt, got.UpdatedAt)
	}

	resp = postJSON(t, http.MethodPut, srv.URL+UpdatePath, token, model.UpdateQuestionRequest{QuestionData: model.Question{ID: "missing", QuestionType: model.TypeMCQ}})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", resp.StatusCode)
	}

	resp = postJSON(t, http.MethodPut, srv.URL+UpdatePath, token, model.UpdateQuestionRequest{QuestionData: model.Question{ID: "q1", QuestionType: "ESSAY"}})
	got = model.UpdateQuestionResponse{}
	_ = json.NewDecoder(resp.Body).Decode(&got)
	if got.Success {
		t.Error("invalid question type must be rejected")
	}
}

func TestEditorClientAgainstBank(t *testing.T) {
	srv, _ := newTestBank(t, Options{})

	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer db.Close()
	sess := session.New(db, nil)
	c := client.New(srv.URL, 5*time.Second, sess)
	sess.SetAuthenticator(c)

	ctx := context.Background()
	if err := sess.Login(ctx, model.Credentials{Identifier: "staff@example.com", Password: "secret"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	resp, err := c.FetchQuestions(ctx, model.SelectionCriteria{Subject: "x-mathematics", Topic: "Polynomials"})
	if err != nil {
		t.Fatalf("FetchQuestions: %v", err)
	}
	q := resp.Questions[0]
	q.Marks = 3
	upd, err := c.UpdateQuestion(ctx, q)
	if err != nil {
		t.Fatalf("UpdateQuestion: %v", err)
	}
	if upd.DocumentID != q.ID {
		t.Errorf("document_id = %q, want %q", upd.DocumentID, q.ID)
	}

	if err := sess.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := c.FetchQuestions(ctx, model.SelectionCriteria{Subject: "x-mathematics", Topic: "Polynomials"}); !client.IsAuth(err) {
		t.Errorf("expected auth error after logout, got %v", err)
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := newTestBank(t, Options{})
	login(t, srv)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`qbank_http_requests_total{endpoint="/login",method="POST",status="200"} 1`,
		`qbank_logins_total{outcome="ok"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestImportFiles(t *testing.T) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer db.Close()

	path := filepath.Join(t.TempDir(), "polynomials.json")
	data := `[
		{"question": "Degree of 5?", "question_type": "VERY_SHORT_ANSWER", "subject": "x-mathematics", "topic": "Polynomials", "level": 1, "marks": 1},
		{"_id": "fixed-id", "question": "Zeroes?", "question_type": "MCQ", "subject": "x-mathematics", "topic": "Polynomials", "option1": "0", "correctanswer": "option1"}
	]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := ImportFiles(db, []string{path}, fixedNow)
	if err != nil {
		t.Fatalf("ImportFiles: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d, want 2", n)
	}
	qs, _ := db.ListQuestions("x-mathematics", "Polynomials")
	if len(qs) != 2 || qs[0].ID == "" || qs[1].ID != "fixed-id" {
		t.Fatalf("unexpected questions %+v", qs)
	}
	if qs[0].CreatedAt != "2025-03-01T12:00:00.000+05:30" {
		t.Errorf("created_at = %q", qs[0].CreatedAt)
	}

	n, err = ImportFiles(db, []string{path}, fixedNow)
	if err != nil || n != 0 {
		t.Errorf("re-import: n=%d err=%v, want skip", n, err)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	_ = os.WriteFile(bad, []byte(`[{"question": "x", "question_type": "ESSAY"}]`), 0o644)
	if _, err := ImportFiles(db, []string{bad}, fixedNow); err == nil {
		t.Error("expected error for invalid question type")
	}
}

func TestSeedUser(t *testing.T) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer db.Close()

	if err := SeedUser(db, "", ""); err == nil {
		t.Error("expected error without credentials on an empty database")
	}
	if err := SeedUser(db, "9876543210", "pw"); err != nil {
		t.Fatalf("SeedUser: %v", err)
	}
	if err := SeedUser(db, "", ""); err != nil {
		t.Errorf("existing users must make seeding a no-op, got %v", err)
	}
	if n, _ := db.UserCount(); n != 1 {
		t.Errorf("user count = %d, want 1", n)
	}
}

func TestLoginLimiterSweep(t *testing.T) {
	now := fixedNow
	l := newLoginLimiter(1, 1, func() time.Time { return now })
	if !l.Allow("10.0.0.1") || l.Allow("10.0.0.1") {
		t.Fatal("burst of one expected")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("limits must be per IP")
	}
	now = now.Add(visitorExpiry + 2*time.Minute)
	l.Allow("10.0.0.3")
	if _, ok := l.visitors["10.0.0.1"]; ok {
		t.Error("idle visitor must be swept")
	}
}
