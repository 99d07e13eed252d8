package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pridehealth/portal-api/internal/catalog"
	"github.com/pridehealth/portal-api/pkg/logging"
)

// Pinger is satisfied by pgxpool.Pool and lets the health check probe the
// database without the handler depending on pgx.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service liveness and readiness.
type HealthHandler struct {
	db     Pinger
	logger *logging.Logger
}

func NewHealthHandler(db Pinger, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthHandler{db: db, logger: logger}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Readiness handles GET /health/ready and probes the database.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("readiness probe: database unreachable", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "database": "unreachable"})
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ServicesHandler lists the bookable service catalog.
type ServicesHandler struct {
	catalog catalog.Store
	logger  *logging.Logger
}

func NewServicesHandler(store catalog.Store, logger *logging.Logger) *ServicesHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ServicesHandler{catalog: store, logger: logger}
}

// List handles GET /services.
func (h *ServicesHandler) List(w http.ResponseWriter, r *http.Request) {
	services, err := h.catalog.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list services", "error", err)
		http.Error(w, "failed to list services", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"services": services,
		"count":    len(services),
	})
}
