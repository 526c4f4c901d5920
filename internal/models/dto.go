package models

import "time"

// Data Transfer Objects

type SubmitReportResponse struct {
	JobID     string        `json:"job_id"`
	Status    JobStatusCode `json:"status"`
	StatusURL string        `json:"status_url"`
}

type JobStatusResponse struct {
	JobID      string        `json:"job_id"`
	Status     JobStatusCode `json:"status"`
	Format     ReportFormat  `json:"format"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	ReportURLs []string      `json:"report_urls,omitempty"`
	Error      string        `json:"error,omitempty"`
	Message    string        `json:"message,omitempty"`
}

type ValidationErrorResponse struct {
	Error   string           `json:"error"`
	Message string           `json:"message"`
	Details *ValidationError `json:"details,omitempty"`
}

type HealthCheckResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
}
