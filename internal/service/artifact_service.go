package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/repository"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/service/storage"
	"github.com/RubachokBoss/plagiarism-checker/report-service/pkg/compress"
	"github.com/RubachokBoss/plagiarism-checker/report-service/pkg/hash"
)

// ArtifactService stores rendered reports compressed in blob storage with a
// metadata row in Postgres. The row is written after the blob, so a report
// is only visible once its content is fully stored.
type ArtifactService interface {
	// Put stores content as the report of jobID on behalf of the worker
	// holding claim attempt. A report already stored for the job is reused.
	Put(ctx context.Context, jobID string, attempt int, format models.ReportFormat, content []byte) (string, error)
	Get(ctx context.Context, jobID, reportID string) (*models.ReportContent, error)
	ListByJob(ctx context.Context, jobID string) ([]models.Report, error)
}

type ArtifactOptions struct {
	CompressionLevel int
	KeyPrefix        string
}

type artifactService struct {
	reports repository.ReportRepository
	blobs   storage.BlobStorage
	hasher  hash.Hasher
	opts    ArtifactOptions
	logger  zerolog.Logger
	now     func() time.Time
}

func NewArtifactService(
	reports repository.ReportRepository,
	blobs storage.BlobStorage,
	hasher hash.Hasher,
	opts ArtifactOptions,
	logger zerolog.Logger,
) ArtifactService {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "reports"
	}
	return &artifactService{
		reports: reports,
		blobs:   blobs,
		hasher:  hasher,
		opts:    opts,
		logger:  logger.With().Str("component", "artifacts").Logger(),
		now:     time.Now,
	}
}

func (s *artifactService) Put(ctx context.Context, jobID string, attempt int, format models.ReportFormat, content []byte) (string, error) {
	existing, err := s.reports.GetByJobID(ctx, jobID)
	if err != nil {
		return "", models.TransientStorage("lookup report", err)
	}
	if existing != nil {
		s.logger.Info().
			Str("job_id", jobID).
			Str("report_id", existing.ID).
			Msg("Report already stored, reusing it")
		return existing.ID, nil
	}

	compressed, err := compress.Compress(content, s.opts.CompressionLevel)
	if err != nil {
		return "", fmt.Errorf("failed to compress report: %w", err)
	}

	reportID := uuid.NewString()
	report := &models.Report{
		ID:             reportID,
		JobID:          jobID,
		Format:         format,
		StorageKey:     s.storageKey(jobID, reportID, format),
		ContentHash:    s.hasher.Sum(content),
		HashAlgorithm:  string(s.hasher.Algorithm()),
		OriginalSize:   int64(len(content)),
		CompressedSize: int64(len(compressed)),
		CreatedAt:      s.now().UTC(),
	}

	if err := s.blobs.Put(ctx, report.StorageKey, compressed, "application/zlib"); err != nil {
		return "", models.TransientStorage("upload report blob", err)
	}

	stored, created, err := s.reports.Create(ctx, report, attempt)
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrClaimLost) {
		s.removeBlob(report.StorageKey)
		return "", err
	}
	if err != nil {
		// The insert may have committed before the error surfaced, so the
		// blob is only removed once the row is known to be absent.
		committed, known := s.rowCommitted(report)
		switch {
		case committed:
			s.logger.Warn().Err(err).
				Str("job_id", jobID).
				Str("report_id", reportID).
				Msg("Report row committed despite insert error")
			return reportID, nil
		case known:
			s.removeBlob(report.StorageKey)
		default:
			s.logger.Warn().Str("storage_key", report.StorageKey).Msg("Keeping report blob, row state unknown")
		}
		return "", models.TransientStorage("insert report row", err)
	}
	if !created {
		s.removeBlob(report.StorageKey)
		return stored.ID, nil
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("report_id", reportID).
		Int64("original_size", report.OriginalSize).
		Int64("compressed_size", report.CompressedSize).
		Msg("Report stored")

	return reportID, nil
}

func (s *artifactService) Get(ctx context.Context, jobID, reportID string) (*models.ReportContent, error) {
	if !validID(jobID) || !validID(reportID) {
		return nil, fmt.Errorf("report %s of job %s: %w", reportID, jobID, models.ErrNotFound)
	}

	report, err := s.reports.GetByJobAndID(ctx, jobID, reportID)
	if err != nil {
		return nil, models.TransientStorage("lookup report", err)
	}
	if report == nil {
		return nil, fmt.Errorf("report %s of job %s: %w", reportID, jobID, models.ErrNotFound)
	}

	log := s.logger.With().
		Str("job_id", jobID).
		Str("report_id", reportID).
		Str("storage_key", report.StorageKey).
		Logger()

	compressed, err := s.blobs.Get(ctx, report.StorageKey)
	if errors.Is(err, models.ErrNotFound) {
		log.Error().Msg("Report blob is missing")
		return nil, fmt.Errorf("report %s: blob missing: %w", reportID, models.ErrIntegrity)
	}
	if err != nil {
		return nil, models.TransientStorage("download report blob", err)
	}

	content, err := compress.Decompress(compressed)
	if err != nil {
		log.Error().Err(err).Msg("Report blob is corrupt")
		return nil, fmt.Errorf("report %s: %w: %v", reportID, models.ErrIntegrity, err)
	}

	hasher, err := hash.New(report.HashAlgorithm)
	if err != nil {
		log.Error().Err(err).Msg("Report has unknown hash algorithm")
		return nil, fmt.Errorf("report %s: %w: %v", reportID, models.ErrIntegrity, err)
	}
	if !hasher.Verify(content, report.ContentHash) {
		log.Error().
			Str("expected_hash", report.ContentHash).
			Str("actual_hash", hasher.Sum(content)).
			Msg("Report content hash mismatch")
		return nil, fmt.Errorf("report %s: hash mismatch: %w", reportID, models.ErrIntegrity)
	}

	return &models.ReportContent{
		ReportID:    report.ID,
		JobID:       report.JobID,
		Format:      report.Format,
		Content:     content,
		ContentHash: report.ContentHash,
		CreatedAt:   report.CreatedAt,
	}, nil
}

func (s *artifactService) ListByJob(ctx context.Context, jobID string) ([]models.Report, error) {
	reports, err := s.reports.ListByJob(ctx, jobID)
	if err != nil {
		return nil, models.TransientStorage("list reports", err)
	}
	return reports, nil
}

func (s *artifactService) storageKey(jobID, reportID string, format models.ReportFormat) string {
	return fmt.Sprintf("%s/%s/%s.%s.zz", s.opts.KeyPrefix, jobID, reportID, format)
}

// rowCommitted looks up the row of report. known is false when the lookup
// itself failed.
func (s *artifactService) rowCommitted(report *models.Report) (committed, known bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stored, err := s.reports.GetByJobID(ctx, report.JobID)
	if err != nil {
		return false, false
	}
	return stored != nil && stored.ID == report.ID, true
}

// removeBlob deletes an orphaned blob. Failures only leave garbage behind,
// never a visible report.
func (s *artifactService) removeBlob(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("storage_key", key).Msg("Failed to remove orphaned report blob")
	}
}
