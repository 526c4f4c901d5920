package models

import (
	"time"
)

// Report is the stored metadata of a rendered artifact. The compressed
// content itself lives in blob storage under StorageKey.
type Report struct {
	ID             string       `json:"id" db:"id"`
	JobID          string       `json:"job_id" db:"job_id"`
	Format         ReportFormat `json:"format" db:"format"`
	StorageKey     string       `json:"-" db:"storage_key"`
	ContentHash    string       `json:"content_hash" db:"content_hash"`
	HashAlgorithm  string       `json:"hash_algorithm" db:"hash_algorithm"`
	OriginalSize   int64        `json:"original_size" db:"original_size"`
	CompressedSize int64        `json:"compressed_size" db:"compressed_size"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// ReportContent is a decompressed, verified artifact ready to be served.
type ReportContent struct {
	ReportID    string
	JobID       string
	Format      ReportFormat
	Content     []byte
	ContentHash string
	CreatedAt   time.Time
}

func (rc *ReportContent) ContentType() string {
	return rc.Format.ContentType()
}

func (rc *ReportContent) FileName() string {
	return "Report-" + rc.JobID + "." + rc.Format.String()
}

// UnitVisit is one entry of a student's timeline.
type UnitVisit struct {
	Unit      string    `json:"unit"`
	Alias     string    `json:"alias"`
	FirstSeen time.Time `json:"first_seen"`
}

// TrailStep is one event of a student's sorted event list labelled with the
// alias of its unit.
type TrailStep struct {
	Alias       string    `json:"alias"`
	Unit        string    `json:"unit"`
	Type        EventType `json:"type"`
	CreatedTime time.Time `json:"created_time"`
}

// StudentSequence is the sequencer output for one student.
type StudentSequence struct {
	Namespace string      `json:"namespace"`
	StudentID string      `json:"student_id"`
	Units     []UnitVisit `json:"units"`
	Trail     []TrailStep `json:"trail"`
}

// ReportDocument is the renderer input for a whole submission.
type ReportDocument struct {
	JobID       string
	GeneratedAt time.Time
	Students    []StudentSequence
}
