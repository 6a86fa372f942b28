package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/qbedit/internal/client"
	"github.com/pavelanni/qbedit/internal/handler/views"
	"github.com/pavelanni/qbedit/internal/model"
)

const csrfCookieName = "csrf_token"

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

// setCSRFCookie issues a fresh token and returns it.
func (h *Handler) setCSRFCookie(w http.ResponseWriter) (string, error) {
	token, err := generateCSRFToken()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// csrfMiddleware implements the double-submit cookie check for every
// non-GET request. The token lives as long as the cookie so that pages
// fetching images do not invalidate forms already rendered.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if cookie, err := r.Cookie(csrfCookieName); err == nil {
			token = cookie.Value
		}

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			if token == "" {
				slog.Warn("CSRF cookie missing")
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}

			formToken := r.FormValue("csrf_token")
			if formToken == "" {
				slog.Warn("CSRF form token missing")
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}

			if len(formToken) != len(token) || subtle.ConstantTimeCompare([]byte(formToken), []byte(token)) != 1 {
				slog.Warn("CSRF token mismatch")
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
		}

		if token == "" {
			var err error
			token, err = h.setCSRFCookie(w)
			if err != nil {
				slog.Error("failed to generate CSRF token", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}
		ctx := model.ContextWithCSRFToken(r.Context(), token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth sends unauthenticated requests to the login page.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.session.Authenticated() {
			h.redirectToLogin(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.session.Authenticated() {
		h.redirectHome(w, r)
		return
	}
	h.renderLogin(w, r, http.StatusOK, "", "")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	creds := model.Credentials{
		Identifier: strings.TrimSpace(r.FormValue("identifier")),
		Password:   r.FormValue("password"),
	}
	if creds.Identifier == "" || creds.Password == "" {
		h.renderLogin(w, r, http.StatusBadRequest, creds.Identifier, "InvalidRequest")
		return
	}

	if err := h.session.Login(r.Context(), creds); err != nil {
		if client.IsAuth(err) {
			slog.Info("login rejected", "identifier", creds.Identifier)
			h.renderLogin(w, r, http.StatusUnauthorized, creds.Identifier, "InvalidCredentials")
			return
		}
		slog.Error("login failed", "identifier", creds.Identifier, "error", err)
		h.renderLogin(w, r, http.StatusBadGateway, creds.Identifier, "LoginFailed")
		return
	}

	// A new session starts from the selection form.
	h.ws.Reset()
	h.redirectHome(w, r)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(); err != nil {
		slog.Error("failed to clear session", "error", err)
	}
	h.ws.Reset()
	h.redirectToLogin(w, r)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, identifier, errID string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.LoginPage(identifier, errID).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}
