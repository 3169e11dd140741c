package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gatekeep/gatekeep-go/internal/middleware"
)

// RouterConfig holds what NewRouter needs beyond the handlers.
type RouterConfig struct {
	Logger     *slog.Logger
	Production bool
}

// NewRouter builds the HTTP routing tree.
func NewRouter(cfg RouterConfig, auth *AuthHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecureHeaders(cfg.Production))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/auth", auth.Routes)

	return r
}
