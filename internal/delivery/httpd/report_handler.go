package httpd

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/service/timeline"
)

func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	format := models.ReportFormat(chi.URLParam(r, "format"))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	records, err := timeline.DecodeSubmission(body)
	if err != nil {
		h.handleJobError(w, err)
		return
	}

	ctx := r.Context()
	result, err := h.jobService.Submit(ctx, format, records)
	if err != nil {
		h.handleJobError(w, err)
		return
	}

	statusURL := jobStatusURL(result.JobID)
	w.Header().Set("Location", statusURL)
	writeJSON(w, http.StatusAccepted, models.SubmitReportResponse{
		JobID:     result.JobID,
		Status:    result.Status,
		StatusURL: statusURL,
	})
}

func (h *Handler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	ctx := r.Context()
	status, err := h.jobService.GetStatus(ctx, jobID)
	if err != nil {
		h.handleJobError(w, err)
		return
	}

	response := models.JobStatusResponse{
		JobID:     status.JobID,
		Status:    status.Status,
		Format:    status.Format,
		CreatedAt: status.CreatedAt,
		UpdatedAt: status.UpdatedAt,
	}

	switch status.Status {
	case models.JobStatusSuccess:
		response.ReportURLs = h.reportURLs(r, status)
		writeJSON(w, http.StatusOK, response)
	case models.JobStatusFailure:
		response.Error = "report generation failed"
		if status.ErrorMessage != nil {
			response.Error = *status.ErrorMessage
		}
		writeJSON(w, http.StatusOK, response)
	default:
		response.Message = "report is being generated"
		w.Header().Set("Retry-After", strconv.Itoa(1))
		writeJSON(w, http.StatusAccepted, response)
	}
}

func (h *Handler) reportURLs(r *http.Request, status *models.JobStatus) []string {
	reports, err := h.artifactService.ListByJob(r.Context(), status.JobID)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", status.JobID).Msg("Failed to list job reports")
	}

	urls := make([]string, 0, len(reports)+1)
	for _, report := range reports {
		urls = append(urls, reportURL(status.JobID, report.ID))
	}
	if len(urls) == 0 && status.ReportID != nil {
		urls = append(urls, reportURL(status.JobID, *status.ReportID))
	}
	return urls
}

func (h *Handler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	reportID := chi.URLParam(r, "report_id")

	ctx := r.Context()
	content, err := h.artifactService.Get(ctx, jobID, reportID)
	if err != nil {
		h.handleReportError(w, err)
		return
	}

	w.Header().Set("Content-Type", content.ContentType())
	w.Header().Set("Content-Disposition", `inline; filename="`+content.FileName()+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(content.Content)))
	w.Header().Set("ETag", `"`+content.ContentHash+`"`)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content.Content); err != nil {
		h.logger.Warn().Err(err).Str("report_id", reportID).Msg("Failed to write report body")
	}
}

func (h *Handler) handleJobError(w http.ResponseWriter, err error) {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, models.ValidationErrorResponse{
			Error:   http.StatusText(http.StatusBadRequest),
			Message: validationErr.Error(),
			Details: validationErr,
		})
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "Job not found")
	default:
		h.logger.Error().Err(err).Msg("Job request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *Handler) handleReportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "Report not found")
	case errors.Is(err, models.ErrIntegrity):
		writeError(w, http.StatusInternalServerError, "Stored report is unavailable")
	case errors.Is(err, models.ErrTransientStorage):
		h.logger.Error().Err(err).Msg("Report storage unavailable")
		writeError(w, http.StatusServiceUnavailable, "Report storage is temporarily unavailable")
	default:
		h.logger.Error().Err(err).Msg("Report request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
