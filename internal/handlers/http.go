package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/sentinela-saude/sentinela/docs"
	"github.com/sentinela-saude/sentinela/internal/api"
	"github.com/sentinela-saude/sentinela/internal/middleware"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// PublicPaths are served without a token
var PublicPaths = []string{"/health", "/metrics", "/auth/login", "/api/docs", "/api/openapi.yaml"}

// Chain wraps the routes with CORS, request ids and authentication, outermost first
func Chain(mux http.Handler, jwtAuth *middleware.JWTAuthMiddleware, cors *middleware.CORSMiddleware) http.Handler {
	return cors.Wrap(middleware.RequestIDMiddleware(jwtAuth.Wrap(mux)))
}

// HTTPHandler serves the unauthenticated endpoints: health, metrics and the
// API reference
type HTTPHandler struct {
	db      *gorm.DB
	metrics http.Handler
}

// NewHTTPHandler creates a new HTTP handler. db and metrics may be nil.
func NewHTTPHandler(db *gorm.DB, metrics http.Handler) *HTTPHandler {
	return &HTTPHandler{db: db, metrics: metrics}
}

// SetupRoutes configures the health, metrics and docs routes
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
	mux.HandleFunc("GET /api/openapi.yaml", serveAsset("application/yaml", docs.OpenAPISpec))
	mux.HandleFunc("GET /api/docs", serveAsset("text/html; charset=utf-8", docs.IndexHTML))
}

// serveAsset writes an embedded document with its content type
func serveAsset(contentType string, body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		if _, err := w.Write(body); err != nil {
			log.Printf("HTTPHandler: failed to write %s: %v", r.URL.Path, err)
		}
	}
}

// handleHealth reports whether the database answers
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Degraded, not down: the sweep and API fail on their own without a database
	status, code := "ok", http.StatusOK
	if err := h.pingDB(r.Context()); err != nil {
		log.Printf("Warning: health check database ping failed: %v", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}

	api.RespondJSON(w, code, map[string]string{
		"status":  status,
		"version": Version,
	})
}

func (h *HTTPHandler) pingDB(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
