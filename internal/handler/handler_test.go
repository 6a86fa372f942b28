package handler

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/qbedit/internal/bank"
	"github.com/pavelanni/qbedit/internal/catalog"
	"github.com/pavelanni/qbedit/internal/client"
	appI18n "github.com/pavelanni/qbedit/internal/i18n"
	"github.com/pavelanni/qbedit/internal/model"
	"github.com/pavelanni/qbedit/internal/session"
	"github.com/pavelanni/qbedit/internal/store"
	"github.com/pavelanni/qbedit/internal/workflow"
)

// Smallest valid PNG.
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

type testApp struct {
	srv    *httptest.Server
	http   *http.Client
	bankDB *store.Store
	sess   *session.Store
	ws     *workflow.Workspace
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}

	bankDB := newTestStore(t)
	if err := bank.SeedUser(bankDB, "staff@example.com", "secret"); err != nil {
		t.Fatalf("SeedUser: %v", err)
	}
	for _, q := range []model.Question{
		{ID: "q1", Question: "Degree of x^2+1?", QuestionType: model.TypeShortAnswer, Subject: "x-mathematics", Topic: "Polynomials"},
		{ID: "q2", Question: "Zeroes of x^2-1?", QuestionType: model.TypeMCQ, Subject: "x-mathematics", Topic: "Polynomials", Option1: "1", Option2: "-1", CorrectAnswer: "option1"},
		{ID: "q3", Question: "Remainder theorem", QuestionType: model.TypeLongAnswer, Subject: "x-mathematics", Topic: "Polynomials"},
	} {
		if _, err := bankDB.InsertQuestion(q); err != nil {
			t.Fatalf("InsertQuestion: %v", err)
		}
	}
	br := chi.NewRouter()
	bank.New(bankDB, bank.Options{}).Routes(br)
	backend := httptest.NewServer(br)
	t.Cleanup(backend.Close)

	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	sess := session.New(newTestStore(t), nil)
	c := client.New(backend.URL, 5*time.Second, sess)
	sess.SetAuthenticator(c)
	ws := workflow.NewWorkspace(c, cat, nil)

	h := New(model.ServerConfig{}, cat, sess, ws, nil)
	r := chi.NewRouter()
	r.Use(appI18n.Middleware())
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &testApp{
		srv:    srv,
		http:   &http.Client{Jar: jar},
		bankDB: bankDB,
		sess:   sess,
		ws:     ws,
	}
}

// csrf loads a page so the jar holds a token and returns it.
func (a *testApp) csrf(t *testing.T) string {
	t.Helper()
	u, _ := url.Parse(a.srv.URL)
	for _, c := range a.http.Jar.Cookies(u) {
		if c.Name == csrfCookieName {
			return c.Value
		}
	}
	a.get(t, "/login")
	for _, c := range a.http.Jar.Cookies(u) {
		if c.Name == csrfCookieName {
			return c.Value
		}
	}
	t.Fatal("no csrf cookie issued")
	return ""
}

func (a *testApp) get(t *testing.T, p string) (int, string) {
	t.Helper()
	resp, err := a.http.Get(a.srv.URL + p)
	if err != nil {
		t.Fatalf("GET %s: %v", p, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (a *testApp) post(t *testing.T, p string, form url.Values) (int, string) {
	t.Helper()
	if form == nil {
		form = url.Values{}
	}
	if form.Get("csrf_token") == "" {
		form.Set("csrf_token", a.csrf(t))
	}
	resp, err := a.http.PostForm(a.srv.URL+p, form)
	if err != nil {
		t.Fatalf("POST %s: %v", p, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (a *testApp) postMultipart(t *testing.T, p string, fields map[string]string, files map[string][]byte) (int, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("csrf_token", a.csrf(t))
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	for k, data := range files {
		fw, err := mw.CreateFormFile(k, k+".bin")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = fw.Write(data)
	}
	mw.Close()

	resp, err := a.http.Post(a.srv.URL+p, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", p, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (a *testApp) login(t *testing.T) string {
	t.Helper()
	status, body := a.post(t, "/login", url.Values{"identifier": {"staff@example.com"}, "password": {"secret"}})
	if status != http.StatusOK {
		t.Fatalf("login status = %d", status)
	}
	return body
}

func (a *testApp) openPolynomials(t *testing.T) string {
	t.Helper()
	a.login(t)
	a.post(t, "/select/subject", url.Values{"subject": {"x-mathematics"}})
	_, body := a.post(t, "/select", url.Values{"subject": {"x-mathematics"}, "topic": {"Polynomials"}})
	return body
}

func TestRequireAuthRedirects(t *testing.T) {
	a := newTestApp(t)
	a.http.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := a.http.Get(a.srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}
}

func TestCSRFRequired(t *testing.T) {
	a := newTestApp(t)
	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"mismatch", "not-the-cookie-value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a.csrf(t)
			form := url.Values{"identifier": {"staff@example.com"}, "password": {"secret"}}
			if tt.token != "" {
				form.Set("csrf_token", tt.token)
			}
			resp, err := a.http.PostForm(a.srv.URL+"/login", form)
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusForbidden {
				t.Errorf("status = %d, want 403", resp.StatusCode)
			}
			if a.sess.Authenticated() {
				t.Error("session authenticated despite CSRF failure")
			}
		})
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		wantStatus int
		wantText   string
		wantAuth   bool
	}{
		{"valid", "secret", http.StatusOK, "Select questions", true},
		{"wrong password", "nope", http.StatusUnauthorized, "Invalid credentials.", false},
		{"empty password", "", http.StatusBadRequest, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t)
			status, body := a.post(t, "/login", url.Values{"identifier": {"staff@example.com"}, "password": {tt.password}})
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if tt.wantText != "" && !strings.Contains(body, tt.wantText) {
				t.Errorf("body missing %q", tt.wantText)
			}
			if a.sess.Authenticated() != tt.wantAuth {
				t.Errorf("Authenticated() = %v, want %v", a.sess.Authenticated(), tt.wantAuth)
			}
		})
	}
}

func TestSelectAndNavigate(t *testing.T) {
	a := newTestApp(t)
	body := a.openPolynomials(t)
	if !strings.Contains(body, "Question 1 of 3") {
		t.Fatalf("editor page missing position, got:\n%s", body)
	}

	_, body = a.post(t, "/nav/next", nil)
	if !strings.Contains(body, "Question 2 of 3") {
		t.Errorf("after next: missing Question 2 of 3")
	}
	a.post(t, "/nav/next", nil)
	_, body = a.post(t, "/nav/next", nil)
	if !strings.Contains(body, "Question 3 of 3") {
		t.Errorf("next at end should stay on the last question")
	}

	_, body = a.post(t, "/nav/back", nil)
	if !strings.Contains(body, "Select questions") {
		t.Errorf("back did not return to the selection form")
	}
	if snap := a.ws.Snapshot(); snap.Subject != "x-mathematics" || snap.Topic != "Polynomials" {
		t.Errorf("selection after back = %q/%q", snap.Subject, snap.Topic)
	}
}

func TestSelectNoQuestions(t *testing.T) {
	a := newTestApp(t)
	a.login(t)
	a.post(t, "/select/subject", url.Values{"subject": {"x-science"}})
	topics := a.ws.Snapshot().Topics
	if len(topics) == 0 {
		t.Fatal("x-science has no topics in the catalog")
	}
	_, body := a.post(t, "/select", url.Values{"subject": {"x-science"}, "topic": {topics[0]}})
	if !strings.Contains(body, "No questions found for the selected criteria.") {
		t.Errorf("missing empty-result message")
	}
	if a.ws.Snapshot().State != workflow.StateSelecting {
		t.Error("empty result must not enter the editor")
	}
}

func TestSelectUnknownTopic(t *testing.T) {
	a := newTestApp(t)
	a.login(t)
	status, _ := a.post(t, "/select", url.Values{"subject": {"x-mathematics"}, "topic": {"Astrology"}})
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestEditAndSave(t *testing.T) {
	a := newTestApp(t)
	a.openPolynomials(t)
	id := a.ws.Snapshot().Draft.ID

	status, body := a.postMultipart(t, "/editor", map[string]string{
		"question":       "Degree of x^3+1?",
		"marks":          "4abc",
		"action":         "save",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(body, "Question saved successfully!") {
		t.Errorf("missing success notice")
	}

	saved, err := a.bankDB.GetQuestion(id)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if saved.Question != "Degree of x^3+1?" {
		t.Errorf("backend question = %q", saved.Question)
	}
	if saved.Marks != 4 {
		t.Errorf("backend marks = %d, want 4", saved.Marks)
	}
	if saved.UpdatedAt == "" {
		t.Error("backend updated_at not set")
	}

	snap := a.ws.Snapshot()
	if snap.Index != 0 || snap.Draft.ID != id {
		t.Errorf("after save index=%d id=%q", snap.Index, snap.Draft.ID)
	}
	if got := a.ws.Questions()[0].Question; got != "Degree of x^3+1?" {
		t.Errorf("list entry not replaced: %q", got)
	}
}

func TestEditInvalidType(t *testing.T) {
	a := newTestApp(t)
	a.openPolynomials(t)
	status, _ := a.postMultipart(t, "/editor", map[string]string{"question_type": "ESSAY"}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestImageUpload(t *testing.T) {
	a := newTestApp(t)
	a.openPolynomials(t)

	_, body := a.postMultipart(t, "/editor", nil, map[string][]byte{"image_question": pngBytes})
	if strings.Contains(body, "Please choose an image file.") {
		t.Fatal("valid PNG rejected")
	}

	resp, err := a.http.Get(a.srv.URL + "/editor/image/question")
	if err != nil {
		t.Fatalf("GET image: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("image status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.Equal(data, pngBytes) {
		t.Error("served image differs from upload")
	}

	_, body = a.postMultipart(t, "/editor", nil, map[string][]byte{"image_explanation": []byte("plain text, not an image")})
	if !strings.Contains(body, "Please choose an image file.") {
		t.Error("missing invalid image notice")
	}
	if a.ws.Snapshot().Draft.ExplanationImage != "" {
		t.Error("invalid upload stored in draft")
	}

	a.postMultipart(t, "/editor", map[string]string{"action": "clear:question"}, nil)
	if a.ws.Snapshot().Draft.QuestionImage != "" {
		t.Error("clear did not remove the image")
	}
	status, _ := a.get(t, "/editor/image/question")
	if status != http.StatusNotFound {
		t.Errorf("cleared image status = %d, want 404", status)
	}
}

func TestLogout(t *testing.T) {
	a := newTestApp(t)
	a.openPolynomials(t)

	_, body := a.post(t, "/logout", nil)
	if !strings.Contains(body, "Sign in to edit questions") {
		t.Errorf("logout did not land on the login page")
	}
	if a.sess.Authenticated() {
		t.Error("session still authenticated")
	}
	if snap := a.ws.Snapshot(); snap.State != workflow.StateSelecting || snap.Subject != "" {
		t.Errorf("workspace not reset: state=%v subject=%q", snap.State, snap.Subject)
	}
}
