package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/pavelanni/qbedit/internal/model"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestClient(t *testing.T, h http.HandlerFunc, token string) (*Client, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second, staticToken(token)), &hits
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantToken string
		wantKind  Kind
	}{
		{
			name: "token in header",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var creds model.Credentials
				_ = json.NewDecoder(r.Body).Decode(&creds)
				if creds.Identifier != "staff@example.com" || creds.Password != "pw" {
					writeJSON(w, http.StatusUnauthorized, map[string]string{"Message": "bad"})
					return
				}
				w.Header().Set(SessionHeader, "tok")
				writeJSON(w, http.StatusOK, model.LoginResponse{Message: "ok"})
			},
			wantToken: "tok",
		},
		{
			name: "success without token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, model.LoginResponse{Message: "Login successful"})
			},
			wantKind: KindAuth,
		},
		{
			name: "rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, model.LoginResponse{Message: "Invalid credentials"})
			},
			wantKind: KindAuth,
		},
		{
			name: "server failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantKind: KindServer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.handler, "")
			token, err := c.Login(context.Background(), model.Credentials{Identifier: "staff@example.com", Password: "pw"})
			if tt.wantKind != 0 {
				if KindOf(err) != tt.wantKind {
					t.Fatalf("expected %s error, got %v", tt.wantKind, err)
				}
				if token != "" {
					t.Errorf("expected no token, got %q", token)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login: %v", err)
			}
			if token != tt.wantToken {
				t.Errorf("token = %q, want %q", token, tt.wantToken)
			}
		})
	}
}

func TestFetchQuestions(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != fetchPath {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get(SessionHeader) != "tok" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "expired"})
			return
		}
		var criteria model.SelectionCriteria
		_ = json.NewDecoder(r.Body).Decode(&criteria)
		var qs []model.Question
		if criteria.Topic == "Polynomials" {
			qs = []model.Question{{ID: "a"}, {ID: "b"}, {ID: "c"}}
		}
		writeJSON(w, http.StatusOK, model.FetchQuestionsResponse{
			Questions: qs, TotalCount: len(qs), Subject: criteria.Subject, Topic: criteria.Topic,
		})
	}, "tok")

	resp, err := c.FetchQuestions(context.Background(), model.SelectionCriteria{Subject: "x-mathematics", Topic: "Polynomials"})
	if err != nil {
		t.Fatalf("FetchQuestions: %v", err)
	}
	if len(resp.Questions) != 3 || resp.Questions[0].ID != "a" {
		t.Errorf("unexpected questions %+v", resp.Questions)
	}

	empty, err := c.FetchQuestions(context.Background(), model.SelectionCriteria{Subject: "x-mathematics", Topic: "Triangles"})
	if err != nil {
		t.Fatalf("empty result must not be an error: %v", err)
	}
	if len(empty.Questions) != 0 {
		t.Errorf("expected no questions, got %d", len(empty.Questions))
	}
}

func TestAuthenticatedCallsFailFastWithoutToken(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.FetchQuestionsResponse{})
	}, "")

	_, err := c.FetchQuestions(context.Background(), model.SelectionCriteria{Subject: "s", Topic: "t"})
	if !IsAuth(err) || !errors.Is(err, ErrNoSession) {
		t.Errorf("expected auth error wrapping ErrNoSession, got %v", err)
	}
	_, err = c.UpdateQuestion(context.Background(), model.Question{ID: "a"})
	if !IsAuth(err) {
		t.Errorf("expected auth error, got %v", err)
	}
	if *hits != 0 {
		t.Errorf("no request should have been sent, got %d", *hits)
	}
}

func TestExpiredTokenIsAuthError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "session expired"})
	}, "stale")

	_, err := c.FetchQuestions(context.Background(), model.SelectionCriteria{Subject: "s", Topic: "t"})
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if cerr.Kind != KindAuth || cerr.Status != http.StatusUnauthorized || cerr.Message != "session expired" {
		t.Errorf("unexpected error %+v", cerr)
	}
}

func TestUpdateQuestion(t *testing.T) {
	var received model.UpdateQuestionRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != updatePath {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		if received.QuestionData.Question == "" {
			writeJSON(w, http.StatusOK, model.UpdateQuestionResponse{Success: false, Message: "question is required"})
			return
		}
		writeJSON(w, http.StatusOK, model.UpdateQuestionResponse{
			Success: true, Message: "updated", DocumentID: received.QuestionData.ID,
			UpdatedAt: "2025-02-01T10:00:00.000+05:30",
		})
	}, "tok")

	draft := model.Question{
		ID: "q1", Question: "What is 2+2?", QuestionType: model.TypeMCQ,
		Option1: "3", Option2: "4", CorrectAnswer: "option2", SourceImageName: "page1.png",
		Extra: map[string]json.RawMessage{"chapter": json.RawMessage(`"ch-2"`)},
	}
	resp, err := c.UpdateQuestion(context.Background(), draft)
	if err != nil {
		t.Fatalf("UpdateQuestion: %v", err)
	}
	if resp.DocumentID != "q1" || resp.UpdatedAt == "" {
		t.Errorf("unexpected response %+v", resp)
	}
	if !reflect.DeepEqual(received.QuestionData, draft) {
		t.Errorf("full record not sent:\n got %+v\nwant %+v", received.QuestionData, draft)
	}

	_, err = c.UpdateQuestion(context.Background(), model.Question{ID: "q1"})
	if !IsServer(err) {
		t.Fatalf("expected server error, got %v", err)
	}
	var cerr *Error
	if errors.As(err, &cerr) && cerr.Message != "question is required" {
		t.Errorf("expected backend message, got %q", cerr.Message)
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, time.Second, staticToken("tok"))
	_, err := c.UpdateQuestion(context.Background(), model.Question{ID: "q1"})
	if !IsTransport(err) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestMalformedResponse(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>proxy page</html>"))
	}, "tok")
	_, err := c.FetchQuestions(context.Background(), model.SelectionCriteria{Subject: "s", Topic: "t"})
	if !IsServer(err) {
		t.Errorf("expected server error, got %v", err)
	}
}

func TestErrorMessageKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"json message", `{"message":"question is required"}`, "question is required"},
		{"short text", "  gateway timeout \n", "gateway timeout"},
		{"ascii cut", strings.Repeat("a", 250), strings.Repeat("a", 200)},
		// 'é' is two bytes; byte 200 falls inside the hundred-and-first.
		{"multibyte cut", "x" + strings.Repeat("é", 150), "x" + strings.Repeat("é", 99)},
		{"cjk cut", strings.Repeat("问", 100), strings.Repeat("问", 66)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errorMessage([]byte(tt.body))
			if !utf8.ValidString(got) {
				t.Fatalf("message is not valid UTF-8: %q", got)
			}
			if got != tt.want {
				t.Errorf("errorMessage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServerErrorBodyTruncated(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("ошибка ", 40)))
	}, "tok")
	_, err := c.FetchQuestions(context.Background(), model.SelectionCriteria{Subject: "s", Topic: "t"})
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !utf8.ValidString(cerr.Message) || len(cerr.Message) > maxMessageBytes {
		t.Errorf("message = %q (%d bytes)", cerr.Message, len(cerr.Message))
	}
}
