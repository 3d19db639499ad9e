package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"smartqr/internal/pkg/errors"
	"smartqr/internal/platform/metrics"
)

const healthCheckTimeout = 2 * time.Second

type HealthHandler struct {
	db    *sql.DB
	redis *redis.Client
}

// NewHealthHandler checks db and, when non-nil, the redis counter store.
func NewHealthHandler(db *sql.DB, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"

	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
		status = "degraded"
	} else {
		checks["database"] = "healthy"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			status = "degraded"
		} else {
			checks["redis"] = "healthy"
		}
	}

	response := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
	}{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	errors.WriteJSON(w, statusCode, response)
}

// MetricsHandler exposes the Prometheus registry.
type MetricsHandler struct {
	handler http.Handler
}

func NewMetricsHandler(h http.Handler) *MetricsHandler {
	if h == nil {
		h = metrics.Handler(nil)
	}
	return &MetricsHandler{handler: h}
}

func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}
