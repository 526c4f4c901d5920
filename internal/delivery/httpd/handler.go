package httpd

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/service"
)

const (
	serviceName    = "report-service"
	serviceVersion = "1.0.0"
	apiPrefix      = "/api/v1"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// StatsSource contributes one section to the /stats response.
type StatsSource func(ctx context.Context) interface{}

type Handler struct {
	jobService      service.JobService
	artifactService service.ArtifactService
	maxBodyBytes    int64
	checks          map[string]HealthCheck
	stats           map[string]StatsSource
	logger          zerolog.Logger
}

func NewHandler(
	jobService service.JobService,
	artifactService service.ArtifactService,
	maxBodyBytes int64,
	logger zerolog.Logger,
) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 32 << 20
	}
	return &Handler{
		jobService:      jobService,
		artifactService: artifactService,
		maxBodyBytes:    maxBodyBytes,
		checks:          make(map[string]HealthCheck),
		stats:           make(map[string]StatsSource),
		logger:          logger,
	}
}

func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

func (h *Handler) AddStatsSource(name string, source StatsSource) {
	h.stats[name] = source
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	// Health check
	router.Get("/health", h.HealthCheck)
	router.Get("/stats", h.GetStats)

	// Versioned API
	router.Route(apiPrefix, func(api chi.Router) {
		api.Route("/reports", func(r chi.Router) {
			r.Post("/{format}", h.SubmitReport)
			r.Get("/jobs/{job_id}", h.GetJobStatus)
			r.Get("/jobs/{job_id}/{report_id}", h.DownloadReport)
		})
	})
}

func jobStatusURL(jobID string) string {
	return apiPrefix + "/reports/jobs/" + jobID
}

func reportURL(jobID, reportID string) string {
	return jobStatusURL(jobID) + "/" + reportID
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	response := map[string]interface{}{
		"success": true,
		"data":    data,
	}
	writeJSON(w, http.StatusOK, response)
}
