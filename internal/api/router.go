package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/starford/keyshift/internal/chartservice"
)

// RouterConfig holds the cross-cutting router settings.
type RouterConfig struct {
	AuthEnabled bool
	Token       string

	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
}

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *chartservice.Service, cfg RouterConfig, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	uh := NewUploadHandler(svc)

	r := chi.NewRouter()
	// CORS runs before auth so browser preflights are answered.
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "If-Match"},
		ExposedHeaders: []string{"ETag"},
	}).Handler)
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	// Charts CRUD.
	r.Get("/charts", h.ListCharts)
	r.Post("/charts", h.CreateChart)
	r.Post("/charts/upload", uh.Upload)
	r.Get("/charts/*", h.GetChart)
	r.Put("/charts/*", h.PutChart)
	r.Delete("/charts/*", h.DeleteChart)

	// Search.
	r.Get("/search", h.Search)

	// Conversion.
	r.Post("/convert", h.Convert)
	r.Post("/convert/batch", h.ConvertBatch)
	r.Get("/conversions", h.Conversions)

	// Key-mode layouts and exports.
	r.Get("/layouts/{keys}", h.Layout)
	r.Get("/export/midi/*", h.ExportMIDI)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
