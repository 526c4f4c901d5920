package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
)

// JobRepository persists report jobs. Every state transition is a
// conditional UPDATE on the expected source status, so concurrent callers
// can never both win the same transition.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	// Claim moves a PENDING job to STARTED. It returns nil when the job is
	// not PENDING.
	Claim(ctx context.Context, id string) (*models.Job, error)
	// Complete and Fail finalize a STARTED job only while attempt is still
	// the current claim, so a worker whose job was reclaimed cannot
	// overwrite the outcome of a later claim.
	Complete(ctx context.Context, id string, attempt int, reportID string) (bool, error)
	Fail(ctx context.Context, id string, attempt int, message string) (bool, error)
	ListStale(ctx context.Context, startedBefore time.Time, limit int) ([]models.Job, error)
	Requeue(ctx context.Context, id string, startedBefore time.Time) (bool, error)
	FailStale(ctx context.Context, id string, startedBefore time.Time, message string) (bool, error)
	ListPendingBefore(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Job, error)
	TouchPending(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
}

type jobRepository struct {
	*PostgresRepository
}

func NewJobRepository(db *sql.DB, logger zerolog.Logger) JobRepository {
	return &jobRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

const jobColumns = `
	id, format, status, payload, student_count, attempts, report_id,
	error_message, created_at, updated_at, started_at, completed_at`

func (r *jobRepository) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO report_jobs (
			id, format, status, payload, student_count, attempts,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.Format,
		job.Status,
		[]byte(job.Payload),
		job.StudentCount,
		job.Attempts,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

func (r *jobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT` + jobColumns + ` FROM report_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return job, nil
}

func (r *jobRepository) Claim(ctx context.Context, id string) (*models.Job, error) {
	query := `
		UPDATE report_jobs
		SET status = 'STARTED',
			attempts = attempts + 1,
			started_at = NOW(),
			updated_at = NOW(),
			error_message = NULL
		WHERE id = $1 AND status = 'PENDING'
		RETURNING` + jobColumns

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", id, err)
	}
	return job, nil
}

func (r *jobRepository) Complete(ctx context.Context, id string, attempt int, reportID string) (bool, error) {
	query := `
		UPDATE report_jobs
		SET status = 'SUCCESS', report_id = $3, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'STARTED' AND attempts = $2
	`
	return r.execTransition(ctx, "complete", query, id, attempt, reportID)
}

func (r *jobRepository) Fail(ctx context.Context, id string, attempt int, message string) (bool, error) {
	query := `
		UPDATE report_jobs
		SET status = 'FAILURE', error_message = $3, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'STARTED' AND attempts = $2
	`
	return r.execTransition(ctx, "fail", query, id, attempt, message)
}

func (r *jobRepository) ListStale(ctx context.Context, startedBefore time.Time, limit int) ([]models.Job, error) {
	query := `SELECT` + jobColumns + `
		FROM report_jobs
		WHERE status = 'STARTED' AND started_at < $1
		ORDER BY started_at
		LIMIT $2`
	return r.list(ctx, query, startedBefore, limit)
}

func (r *jobRepository) Requeue(ctx context.Context, id string, startedBefore time.Time) (bool, error) {
	query := `
		UPDATE report_jobs
		SET status = 'PENDING', updated_at = NOW()
		WHERE id = $1 AND status = 'STARTED' AND started_at < $2
	`
	return r.execTransition(ctx, "requeue", query, id, startedBefore)
}

func (r *jobRepository) FailStale(ctx context.Context, id string, startedBefore time.Time, message string) (bool, error) {
	query := `
		UPDATE report_jobs
		SET status = 'FAILURE', error_message = $3, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'STARTED' AND started_at < $2
	`
	return r.execTransition(ctx, "fail stale", query, id, startedBefore, message)
}

func (r *jobRepository) ListPendingBefore(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Job, error) {
	query := `SELECT` + jobColumns + `
		FROM report_jobs
		WHERE status = 'PENDING' AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`
	return r.list(ctx, query, updatedBefore, limit)
}

func (r *jobRepository) TouchPending(ctx context.Context, id string) (bool, error) {
	query := `UPDATE report_jobs SET updated_at = NOW() WHERE id = $1 AND status = 'PENDING'`
	return r.execTransition(ctx, "touch", query, id)
}

func (r *jobRepository) execTransition(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to %s job: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to %s job: %w", op, err)
	}
	return rows == 1, nil
}

func (r *jobRepository) list(ctx context.Context, query string, before time.Time, limit int) ([]models.Job, error) {
	rows, err := r.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job          models.Job
		payload      []byte
		reportID     sql.NullString
		errorMessage sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.Format,
		&job.Status,
		&payload,
		&job.StudentCount,
		&job.Attempts,
		&reportID,
		&errorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Payload = payload
	job.ReportID = stringPtr(reportID)
	job.ErrorMessage = stringPtr(errorMessage)
	job.StartedAt = timePtr(startedAt)
	job.CompletedAt = timePtr(completedAt)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}
