package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/inspectbot/internal/middleware"
	"github.com/ashureev/inspectbot/internal/store"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Repo    store.Repository
	Reports ReportSource
	// Archive is optional.
	Archive        ArchiveLister
	AllowedOrigins []string
	// APIToken protects /api when set.
	APIToken string
	// Chat serves /ws/chat when set.
	Chat http.Handler
	// Static serves everything else when set.
	Static http.Handler
}

// NewRouter builds the chi router for the ops API and web chat.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	NewHealthHandler(cfg.Repo).RegisterHealth(r)

	base := NewHandler(cfg.Repo, cfg.Reports, cfg.Archive)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.BearerToken(cfg.APIToken))
		NewInspectionHandler(base).RegisterRoutes(r)
	})

	if cfg.Chat != nil {
		r.Get("/ws/chat", cfg.Chat.ServeHTTP)
	}
	if cfg.Static != nil {
		r.Handle("/*", cfg.Static)
	}
	return r
}
