package storage

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
)

func TestMapError(t *testing.T) {
	s := &minioStorage{bucket: "reports", logger: zerolog.Nop()}

	err := s.mapError("reports/a/b.html.zz", minio.ErrorResponse{Code: "NoSuchKey"})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	err = s.mapError("reports/a/b.html.zz", minio.ErrorResponse{Code: "AccessDenied"})
	if errors.Is(err, models.ErrNotFound) {
		t.Fatalf("access denied must not map to not found")
	}

	if isNoSuchKey(errors.New("connection refused")) {
		t.Fatalf("plain errors are not NoSuchKey")
	}
}
