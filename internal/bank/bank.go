// Package bank is a development backend for the question bank. It serves
// the login, fetch and update endpoints the editor talks to, over SQLite.
package bank

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/qbedit/internal/client"
	"github.com/pavelanni/qbedit/internal/model"
	"github.com/pavelanni/qbedit/internal/store"
	"github.com/pavelanni/qbedit/internal/timefmt"
)

// Paths served by the bank.
const (
	LoginPath  = "/login"
	FetchPath  = "/api/learn/questions/fetch"
	UpdatePath = "/api/learn/questions/update"
)

// Options configures a Server.
type Options struct {
	LoginRate  float64 // login attempts per second per client IP
	LoginBurst int
	SessionTTL time.Duration // lifetime of an issued token
	Now        func() time.Time
}

// Server holds shared dependencies for the bank handlers.
type Server struct {
	store      *store.Store
	limiter    *loginLimiter
	sweeper    *sessionSweeper
	metrics    *Metrics
	sessionTTL time.Duration
	now        func() time.Time
}

// New creates a new Server.
func New(s *store.Store, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LoginRate <= 0 {
		opts.LoginRate = 1
	}
	if opts.LoginBurst <= 0 {
		opts.LoginBurst = 5
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	m := NewMetrics()
	return &Server{
		store:      s,
		limiter:    newLoginLimiter(opts.LoginRate, opts.LoginBurst, opts.Now),
		sweeper:    newSessionSweeper(s, m),
		metrics:    m,
		sessionTTL: opts.SessionTTL,
		now:        opts.Now,
	}
}

// Routes registers all HTTP routes.
func (s *Server) Routes(r chi.Router) {
	r.Use(s.metrics.Middleware)
	r.Handle("/metrics", s.metrics.Handler())
	r.Post(LoginPath, s.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Post(FetchPath, s.handleFetch)
		r.Put(UpdatePath, s.handleUpdate)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientIP(r)) {
		s.metrics.logins.WithLabelValues("limited").Inc()
		writeJSON(w, http.StatusTooManyRequests, model.LoginResponse{Message: "Too many login attempts"})
		return
	}

	var creds model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Identifier == "" {
		writeJSON(w, http.StatusBadRequest, model.LoginResponse{Message: "mobilenumberoremail and password are required"})
		return
	}

	user, err := s.store.GetUserByIdentifier(creds.Identifier)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		writeJSON(w, http.StatusInternalServerError, model.LoginResponse{Message: "internal error"})
		return
	}
	if user == nil || !user.Active ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)) != nil {
		s.metrics.logins.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusUnauthorized, model.LoginResponse{Message: "Invalid credentials"})
		return
	}

	now := s.now()
	s.sweeper.Sweep(now)
	token, err := s.store.CreateAuthSession(user.ID, now, s.sessionTTL)
	if err != nil {
		slog.Error("failed to create auth session", "error", err)
		writeJSON(w, http.StatusInternalServerError, model.LoginResponse{Message: "internal error"})
		return
	}

	s.metrics.logins.WithLabelValues("ok").Inc()
	slog.Info("user logged in", "identifier", user.Identifier)
	w.Header().Set("Access-Control-Expose-Headers", client.SessionHeader)
	w.Header().Set(client.SessionHeader, token)
	writeJSON(w, http.StatusOK, model.LoginResponse{Message: "Login successful"})
}

// requireSession checks the X-Auth-Session header against stored sessions.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(client.SessionHeader)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Missing session"})
			return
		}
		sess, err := s.store.GetAuthSession(token, s.now())
		if err != nil {
			slog.Error("failed to get auth session", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
			return
		}
		if sess == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Session expired"})
			return
		}
		user, err := s.store.GetUserByID(sess.UserID)
		if err != nil || user == nil || !user.Active {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Session expired"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req model.FetchQuestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Complete() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "subject and topic are required"})
		return
	}

	questions, err := s.store.ListQuestions(req.Subject, req.Topic)
	if err != nil {
		slog.Error("failed to list questions", "subject", req.Subject, "topic", req.Topic, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}

	slog.Debug("fetched questions", "subject", req.Subject, "topic", req.Topic, "count", len(questions))
	writeJSON(w, http.StatusOK, model.FetchQuestionsResponse{
		Questions:  questions,
		TotalCount: len(questions),
		Subject:    req.Subject,
		Topic:      req.Topic,
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, model.UpdateQuestionResponse{Message: "invalid request body"})
		return
	}
	q := req.QuestionData
	if q.ID == "" {
		writeJSON(w, http.StatusBadRequest, model.UpdateQuestionResponse{Message: "question_data._id is required"})
		return
	}
	if q.QuestionType != "" && !q.QuestionType.Valid() {
		writeJSON(w, http.StatusOK, model.UpdateQuestionResponse{Message: "invalid question_type " + string(q.QuestionType)})
		return
	}

	q.UpdatedAt = timefmt.Now(s.now())
	err := s.store.UpdateQuestion(q)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, model.UpdateQuestionResponse{Message: "Question not found"})
		return
	}
	if err != nil {
		slog.Error("failed to update question", "id", q.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, model.UpdateQuestionResponse{Message: "internal error"})
		return
	}

	slog.Info("updated question", "id", q.ID, "subject", q.Subject, "topic", q.Topic)
	writeJSON(w, http.StatusOK, model.UpdateQuestionResponse{
		Success:    true,
		Message:    "Question updated successfully",
		DocumentID: q.ID,
		UpdatedAt:  q.UpdatedAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
