package timeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
)

const maxIdentifierLength = 255

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// DecodeSubmission decodes a submission payload. Keys outside the record and
// event schema are ignored.
func DecodeSubmission(data []byte) ([]models.StudentEventRecord, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))

	var records []models.StudentEventRecord
	if err := decoder.Decode(&records); err != nil {
		return nil, &models.ValidationError{
			StudentIndex: -1,
			EventIndex:   -1,
			Field:        "payload",
			Reason:       "payload must be a JSON list of student records: " + err.Error(),
		}
	}
	if decoder.More() {
		return nil, &models.ValidationError{StudentIndex: -1, EventIndex: -1, Field: "payload", Reason: "trailing data after payload"}
	}

	return records, nil
}

// Normalize validates a whole submission and returns one sorted event list per
// student, in submission order. Nothing is returned unless every record is valid.
func Normalize(records []models.StudentEventRecord) ([]models.StudentEvents, error) {
	out := make([]models.StudentEvents, 0, len(records))

	for i, record := range records {
		namespace, err := identifier(record.Namespace)
		if err != nil {
			return nil, &models.ValidationError{StudentIndex: i, EventIndex: -1, StudentID: record.StudentID, Field: "namespace", Reason: err.Error()}
		}
		studentID, err := identifier(record.StudentID)
		if err != nil {
			return nil, &models.ValidationError{StudentIndex: i, EventIndex: -1, StudentID: record.StudentID, Field: "student_id", Reason: err.Error()}
		}

		events := make([]models.Event, 0, len(record.Events))
		for j, raw := range record.Events {
			event, verr := normalizeEvent(raw)
			if verr != nil {
				verr.StudentIndex = i
				verr.EventIndex = j
				verr.StudentID = studentID
				return nil, verr
			}
			event.StudentID = studentID
			event.Namespace = namespace
			events = append(events, event)
		}

		sort.SliceStable(events, func(a, b int) bool {
			return events[a].CreatedTime.Before(events[b].CreatedTime)
		})

		out = append(out, models.StudentEvents{
			Namespace: namespace,
			StudentID: studentID,
			Events:    events,
		})
	}

	return out, nil
}

func normalizeEvent(raw models.RawEvent) (models.Event, *models.ValidationError) {
	eventType := models.EventType(strings.TrimSpace(raw.Type))
	if !eventType.Valid() {
		return models.Event{}, &models.ValidationError{
			Field:  "type",
			Reason: fmt.Sprintf("unrecognized event type %q (expected %s or %s)", raw.Type, models.EventTypeSavedCode, models.EventTypeSubmission),
		}
	}

	createdTime, err := ParseTimestamp(raw.CreatedTime)
	if err != nil {
		return models.Event{}, &models.ValidationError{Field: "created_time", Reason: err.Error()}
	}

	unit, err := CanonicalUnit(raw.Unit)
	if err != nil {
		return models.Event{}, &models.ValidationError{Field: "unit", Reason: err.Error()}
	}

	return models.Event{
		Type:        eventType,
		Unit:        unit,
		CreatedTime: createdTime,
	}, nil
}

func identifier(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New("must not be empty")
	}
	if len(value) > maxIdentifierLength {
		return "", fmt.Errorf("must be at most %d characters", maxIdentifierLength)
	}
	return value, nil
}

// ParseTimestamp accepts ISO-8601 timestamps with or without a zone offset
// (zone-less values are taken as UTC) and returns the instant in UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("timestamp is required")
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

// CanonicalUnit maps a raw JSON unit to its canonical string form. Integer
// units compare equal whether they were sent as numbers or strings, so 17,
// 17.0, "17" and "017" are all "17".
func CanonicalUnit(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("unit is required")
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid unit: %w", err)
		}
		return canonicalUnitString(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return canonicalUnitNumber(string(raw))
	default:
		return "", errors.New("unit must be a string or an integer")
	}
}

func canonicalUnitString(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("unit must not be empty")
	}

	digits := strings.TrimPrefix(s, "+")
	negative := false
	if strings.HasPrefix(s, "-") {
		digits = s[1:]
		negative = true
	}
	if digits == "" || !allDigits(digits) {
		return s, nil
	}
	if negative {
		return "", fmt.Errorf("unit %q must not be negative", s)
	}

	trimmed := strings.TrimLeft(digits, "0")
	if trimmed == "" {
		return "0", nil
	}
	return trimmed, nil
}

// maxUnitExponent bounds exponent notation so a short literal cannot expand
// into an enormous integer.
const maxUnitExponent = 1000

// canonicalUnitNumber converts a JSON number to the decimal form of the
// integer it denotes, exactly, so 1e2 and 100.0 both become "100".
func canonicalUnitNumber(literal string) (string, error) {
	if allDigits(literal) {
		return canonicalUnitString(literal)
	}
	if strings.HasPrefix(literal, "-") {
		return "", fmt.Errorf("unit %s must not be negative", literal)
	}
	if i := strings.IndexAny(literal, "eE"); i >= 0 {
		exp, err := strconv.Atoi(literal[i+1:])
		if err != nil || exp > maxUnitExponent || exp < -maxUnitExponent {
			return "", fmt.Errorf("invalid unit number %s", literal)
		}
	}

	value, ok := new(big.Rat).SetString(literal)
	if !ok {
		return "", fmt.Errorf("invalid unit number %s", literal)
	}
	if !value.IsInt() {
		return "", fmt.Errorf("unit %s must be an integer", literal)
	}
	return value.Num().String(), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
