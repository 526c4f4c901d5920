package models

import (
	"encoding/json"
	"time"
)

type JobStatusCode string

const (
	JobStatusPending JobStatusCode = "PENDING"
	JobStatusStarted JobStatusCode = "STARTED"
	JobStatusSuccess JobStatusCode = "SUCCESS"
	JobStatusFailure JobStatusCode = "FAILURE"
)

func (s JobStatusCode) String() string {
	return string(s)
}

// Terminal reports whether no further transition is allowed out of s.
func (s JobStatusCode) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailure
}

type ReportFormat string

const (
	ReportFormatHTML ReportFormat = "html"
	ReportFormatPDF  ReportFormat = "pdf"
)

func (f ReportFormat) String() string {
	return string(f)
}

func (f ReportFormat) Valid() bool {
	return f == ReportFormatHTML || f == ReportFormatPDF
}

func (f ReportFormat) ContentType() string {
	switch f {
	case ReportFormatPDF:
		return "application/pdf"
	default:
		return "text/html; charset=utf-8"
	}
}

// Job is one asynchronous report generation request.
type Job struct {
	ID           string          `json:"job_id" db:"id"`
	Format       ReportFormat    `json:"format" db:"format"`
	Status       JobStatusCode   `json:"status" db:"status"`
	Payload      json.RawMessage `json:"-" db:"payload"`
	StudentCount int             `json:"student_count" db:"student_count"`
	Attempts     int             `json:"attempts" db:"attempts"`
	ReportID     *string         `json:"report_id,omitempty" db:"report_id"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// JobStatus is the public view of a job returned by status checks.
type JobStatus struct {
	JobID        string        `json:"job_id"`
	Format       ReportFormat  `json:"format"`
	Status       JobStatusCode `json:"status"`
	ReportID     *string       `json:"report_id,omitempty"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`

	// Claimed is set by Execute when this call performed the PENDING -> STARTED transition.
	Claimed bool `json:"-"`
}

func (j *Job) ToStatus() *JobStatus {
	return &JobStatus{
		JobID:        j.ID,
		Format:       j.Format,
		Status:       j.Status,
		ReportID:     j.ReportID,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

type SubmitResult struct {
	JobID  string        `json:"job_id"`
	Status JobStatusCode `json:"status"`
}
