package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
)

type ReportRepository interface {
	// Create inserts the report row for the given claim attempt of its job.
	// When the job already owns a report the row is not inserted and the
	// existing report is returned with created=false. It fails with
	// models.ErrClaimLost when the job is no longer STARTED under attempt.
	Create(ctx context.Context, report *models.Report, attempt int) (stored *models.Report, created bool, err error)
	GetByJobAndID(ctx context.Context, jobID, reportID string) (*models.Report, error)
	GetByJobID(ctx context.Context, jobID string) (*models.Report, error)
	ListByJob(ctx context.Context, jobID string) ([]models.Report, error)
	Ping(ctx context.Context) error
}

type reportRepository struct {
	*PostgresRepository
}

func NewReportRepository(db *sql.DB, logger zerolog.Logger) ReportRepository {
	return &reportRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

const reportColumns = `
	id, job_id, format, storage_key, content_hash, hash_algorithm,
	original_size, compressed_size, created_at`

func (r *reportRepository) Create(ctx context.Context, report *models.Report, attempt int) (*models.Report, bool, error) {
	insert := `
		INSERT INTO reports (
			id, job_id, format, storage_key, content_hash, hash_algorithm,
			original_size, compressed_size, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var (
			jobStatus   models.JobStatusCode
			jobAttempts int
		)
		err := tx.QueryRowContext(ctx,
			`SELECT status, attempts FROM report_jobs WHERE id = $1 FOR SHARE`, report.JobID,
		).Scan(&jobStatus, &jobAttempts)
		if err == sql.ErrNoRows {
			return fmt.Errorf("job %s: %w", report.JobID, models.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock job %s: %w", report.JobID, err)
		}
		if jobStatus != models.JobStatusStarted || jobAttempts != attempt {
			return fmt.Errorf("job %s is %s at attempt %d, not attempt %d: %w",
				report.JobID, jobStatus, jobAttempts, attempt, models.ErrClaimLost)
		}

		_, err = tx.ExecContext(ctx, insert,
			report.ID,
			report.JobID,
			report.Format,
			report.StorageKey,
			report.ContentHash,
			report.HashAlgorithm,
			report.OriginalSize,
			report.CompressedSize,
			report.CreatedAt,
		)
		return err
	})

	if err == nil {
		return report, true, nil
	}
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrClaimLost) {
		return nil, false, err
	}
	if !isUniqueViolation(err) {
		return nil, false, fmt.Errorf("failed to insert report for job %s: %w", report.JobID, err)
	}

	existing, err := r.GetByJobID(ctx, report.JobID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("report for job %s vanished after conflict", report.JobID)
	}

	r.logger.Info().
		Str("job_id", report.JobID).
		Str("report_id", existing.ID).
		Msg("Report already stored for job")
	return existing, false, nil
}

func (r *reportRepository) GetByJobAndID(ctx context.Context, jobID, reportID string) (*models.Report, error) {
	query := `SELECT` + reportColumns + ` FROM reports WHERE job_id = $1 AND id = $2`
	return r.getOne(ctx, query, jobID, reportID)
}

func (r *reportRepository) GetByJobID(ctx context.Context, jobID string) (*models.Report, error) {
	query := `SELECT` + reportColumns + ` FROM reports WHERE job_id = $1`
	return r.getOne(ctx, query, jobID)
}

func (r *reportRepository) ListByJob(ctx context.Context, jobID string) ([]models.Report, error) {
	query := `SELECT` + reportColumns + ` FROM reports WHERE job_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, *report)
	}
	return reports, rows.Err()
}

func (r *reportRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Report, error) {
	report, err := scanReport(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

func scanReport(row rowScanner) (*models.Report, error) {
	var report models.Report
	err := row.Scan(
		&report.ID,
		&report.JobID,
		&report.Format,
		&report.StorageKey,
		&report.ContentHash,
		&report.HashAlgorithm,
		&report.OriginalSize,
		&report.CompressedSize,
		&report.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	report.CreatedAt = report.CreatedAt.UTC()
	return &report, nil
}
