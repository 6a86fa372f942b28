package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/qbedit/internal/catalog"
	"github.com/pavelanni/qbedit/internal/handler/views"
	"github.com/pavelanni/qbedit/internal/media"
	"github.com/pavelanni/qbedit/internal/model"
	"github.com/pavelanni/qbedit/internal/session"
	"github.com/pavelanni/qbedit/internal/workflow"
)

// maxFormSize bounds an editor submission: two images plus the text fields.
const maxFormSize = 2*media.MaxImageSize + 1<<20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	config    model.ServerConfig
	catalog   *catalog.Catalog
	session   *session.Store
	ws        *workflow.Workspace
	assistant workflow.Assistant
	now       func() time.Time
}

// New creates a new Handler. assistant may be nil to disable writing
// suggestions.
func New(cfg model.ServerConfig, cat *catalog.Catalog, sess *session.Store, ws *workflow.Workspace, assistant workflow.Assistant) *Handler {
	cfg.AssistEnabled = assistant != nil
	return &Handler{
		config:    cfg,
		catalog:   cat,
		session:   sess,
		ws:        ws,
		assistant: assistant,
		now:       time.Now,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.BasePathMiddleware)
	r.Use(limitBody)
	r.Use(h.csrfMiddleware)

	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/logout", h.handleLogout)
		r.Get("/", h.handleIndex)
		r.Post("/select/subject", h.handleSelectSubject)
		r.Post("/select", h.handleSelect)
		r.Post("/nav/next", h.handleNext)
		r.Post("/nav/prev", h.handlePrevious)
		r.Post("/nav/back", h.handleBack)
		r.Post("/editor", h.handleEditor)
		r.Get("/editor/image/{slot}", h.handleImage)
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := h.ws.Snapshot()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	var err error
	if snap.State == workflow.StateEditing {
		err = views.EditorPage(views.EditorData{
			SubjectName:   h.catalog.Name(snap.Criteria.Subject),
			Snapshot:      snap,
			AssistEnabled: h.config.AssistEnabled,
			Now:           h.now(),
		}).Render(r.Context(), w)
	} else {
		err = views.SelectPage(views.SelectData{
			Subjects: h.catalog.Subjects(),
			Snapshot: snap,
		}).Render(r.Context(), w)
	}
	if err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleSelectSubject(w http.ResponseWriter, r *http.Request) {
	h.ws.SetSubject(r.FormValue("subject"))
	h.redirectHome(w, r)
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.Select(r.FormValue("subject"), r.FormValue("topic")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The fetch outlives the browser request so a reload does not cancel it.
	ctx := context.WithoutCancel(r.Context())
	err := h.ws.Submit(ctx)
	switch {
	case err == nil:
		snap := h.ws.Snapshot()
		slog.Info("fetched questions", "subject", snap.Criteria.Subject, "topic", snap.Criteria.Topic, "count", snap.Total)
	case errors.Is(err, workflow.ErrNoQuestions):
		slog.Info("no questions found", "subject", r.FormValue("subject"), "topic", r.FormValue("topic"))
	case errors.Is(err, workflow.ErrIncompleteSelection), errors.Is(err, workflow.ErrFetchInProgress):
		slog.Debug("fetch not started", "error", err)
	default:
		slog.Error("fetch failed", "error", err)
	}
	h.redirectHome(w, r)
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	h.ws.Next()
	h.redirectHome(w, r)
}

func (h *Handler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	h.ws.Previous()
	h.redirectHome(w, r)
}

func (h *Handler) handleBack(w http.ResponseWriter, r *http.Request) {
	h.ws.Back()
	h.redirectHome(w, r)
}

func (h *Handler) handleEditor(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}

	edits, err := parseEdits(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.ws.Edit(func(e *workflow.Editor) error {
		return edits.apply(e)
	})
	switch {
	case errors.Is(err, workflow.ErrNoDraft):
		h.redirectHome(w, r)
		return
	case errors.Is(err, workflow.ErrInvalidValue):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		slog.Error("edit failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	switch edits.action {
	case "save":
		if err := h.ws.Save(ctx); err != nil {
			slog.Warn("save failed", "error", err)
		} else {
			slog.Info("question saved", "id", h.ws.Snapshot().Draft.ID)
		}
	case "assist":
		if h.assistant == nil {
			http.Error(w, "writing assistant is not configured", http.StatusNotFound)
			return
		}
		if err := h.ws.Assist(ctx, h.assistant); err != nil {
			slog.Warn("assist failed", "error", err)
		}
	}
	h.redirectHome(w, r)
}
