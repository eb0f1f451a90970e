package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/placebook/placebook/internal/auth"
	"github.com/placebook/placebook/internal/config"
	"github.com/placebook/placebook/internal/pkg/httputil"
)

// SetupRoutes configures all routes. Reads are public; creating, editing
// and deleting a place need a bearer token.
func SetupRoutes(cfg config.ServerConfig, h *PlacesHandler, health *HealthChecker, tokens *auth.Tokens, imageDir string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept", "Authorization"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}

	if imageDir != "" {
		r.Handle("/uploads/images/*", http.StripPrefix("/uploads/images/", http.FileServer(http.Dir(imageDir))))
	}

	r.Route("/api/places", func(r chi.Router) {
		r.Get("/user/{uid}", h.ListByOwner)
		r.Get("/{pid}", h.GetPlace)

		r.Group(func(r chi.Router) {
			r.Use(tokens.Require)
			r.Post("/", h.Create)
			r.Patch("/{pid}", h.Update)
			r.Delete("/{pid}", h.Delete)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.Error(w, http.StatusNotFound, "RouteNotFound", "Could not find this route.")
	})

	return r
}
