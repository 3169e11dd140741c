package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatekeep/gatekeep-go/internal/middleware"
	"github.com/gatekeep/gatekeep-go/internal/model"
	"github.com/gatekeep/gatekeep-go/internal/service"
	"github.com/gatekeep/gatekeep-go/internal/session"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	service *service.AuthService
	cookies *session.CookieManager
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService, cookies *session.CookieManager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, cookies: cookies, logger: logger}
}

// Routes mounts the auth endpoints on r.
func (h *AuthHandler) Routes(r chi.Router) {
	r.Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)

	r.With(middleware.OptionalSession(h.service, h.cookies)).Post("/logout", h.HandleLogout)
	r.With(middleware.RequireSession(h.service, h.cookies, h.logger)).Get("/check-status", h.HandleCheckStatus)
}

// HandleRegister handles POST /auth/register requests.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.Attach(w, sess.Token)
	writeJSON(w, http.StatusCreated, sess.Response())
}

// HandleLogin handles POST /auth/login requests.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := h.service.Login(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.Attach(w, sess.Token)
	writeJSON(w, http.StatusOK, sess.Response())
}

// HandleLogout handles POST /auth/logout requests. The cookie is cleared
// whether or not a session was presented.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	if err := h.service.Logout(r.Context(), identity); err != nil {
		writeError(w, err)
		return
	}

	h.cookies.Clear(w)
	w.WriteHeader(http.StatusOK)
}

// HandleCheckStatus handles GET /auth/check-status requests.
func (h *AuthHandler) HandleCheckStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, service.ErrUnauthenticated)
		return
	}

	sess, err := h.service.CheckStatus(r.Context(), identity)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.Attach(w, sess.Token)
	writeJSON(w, http.StatusOK, sess.Response())
}
