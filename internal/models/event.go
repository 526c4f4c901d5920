package models

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventTypeSavedCode  EventType = "saved_code"
	EventTypeSubmission EventType = "submission"
)

func (et EventType) String() string {
	return string(et)
}

func (et EventType) Valid() bool {
	switch et {
	case EventTypeSavedCode, EventTypeSubmission:
		return true
	}
	return false
}

// RawEvent is an event as it arrives in a submission payload. Unit stays raw
// so that "17" and 17 can be told apart and canonicalised.
type RawEvent struct {
	Type        string          `json:"type"`
	CreatedTime string          `json:"created_time"`
	Unit        json.RawMessage `json:"unit"`
}

// StudentEventRecord is one element of the submission payload.
type StudentEventRecord struct {
	Namespace string     `json:"namespace"`
	StudentID string     `json:"student_id"`
	Events    []RawEvent `json:"events"`
}

// Event is a validated event with a canonical unit and a UTC timestamp.
type Event struct {
	StudentID   string    `json:"student_id"`
	Namespace   string    `json:"namespace"`
	Type        EventType `json:"type"`
	Unit        string    `json:"unit"`
	CreatedTime time.Time `json:"created_time"`
}

// StudentEvents holds one student's events sorted by CreatedTime.
type StudentEvents struct {
	Namespace string  `json:"namespace"`
	StudentID string  `json:"student_id"`
	Events    []Event `json:"events"`
}

// ReportJobQueuedEvent is the work queue message body.
type ReportJobQueuedEvent struct {
	JobID     string `json:"job_id"`
	Format    string `json:"format"`
	Timestamp int64  `json:"timestamp"`
}
