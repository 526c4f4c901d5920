package httpd

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
)

const healthCheckTimeout = 3 * time.Second

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := models.HealthCheckResponse{
		Status:    "healthy",
		Service:   serviceName,
		Timestamp: time.Now().UTC(),
		Version:   serviceVersion,
	}

	status := http.StatusOK
	if len(h.checks) > 0 {
		response.Checks = make(map[string]string, len(h.checks))

		names := make([]string, 0, len(h.checks))
		for name := range h.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if err := h.checks[name](ctx); err != nil {
				h.logger.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
				response.Checks[name] = "unavailable"
				response.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			response.Checks[name] = "ok"
		}
	}

	writeJSON(w, status, response)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{}, len(h.stats))
	for name, source := range h.stats {
		stats[name] = source(r.Context())
	}

	writeSuccess(w, stats)
}
