package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/repository"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/service/render"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/service/timeline"
)

const (
	staleTimeoutMessage = "report generation timed out"
	finalizeTimeout     = 10 * time.Second
)

var errRender = errors.New("failed to render report")

// JobPublisher hands a job message to the work queue.
type JobPublisher interface {
	Publish(ctx context.Context, body []byte) error
}

type JobService interface {
	Submit(ctx context.Context, format models.ReportFormat, records []models.StudentEventRecord) (*models.SubmitResult, error)
	// Execute runs a job to a terminal state. It is safe to call any number
	// of times, concurrently: only the caller that claims the job does work.
	// The returned error is non-nil only when the job store is unreachable.
	Execute(ctx context.Context, jobID string) (*models.JobStatus, error)
	GetStatus(ctx context.Context, jobID string) (*models.JobStatus, error)
	ReclaimStale(ctx context.Context) (int, error)
	RepublishPending(ctx context.Context) (int, error)
}

type JobOptions struct {
	StartedDeadline       time.Duration
	MaxAttempts           int
	PendingRepublishAfter time.Duration
	BatchSize             int
	MaxStudents           int

	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

type jobService struct {
	jobs      repository.JobRepository
	artifacts ArtifactService
	renderer  *render.Renderer
	publisher JobPublisher
	opts      JobOptions
	logger    zerolog.Logger
	now       func() time.Time
}

func NewJobService(
	jobs repository.JobRepository,
	artifacts ArtifactService,
	renderer *render.Renderer,
	publisher JobPublisher,
	opts JobOptions,
	logger zerolog.Logger,
) JobService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.RetryMaxAttempts <= 0 {
		opts.RetryMaxAttempts = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	return &jobService{
		jobs:      jobs,
		artifacts: artifacts,
		renderer:  renderer,
		publisher: publisher,
		opts:      opts,
		logger:    logger.With().Str("component", "jobs").Logger(),
		now:       time.Now,
	}
}

func (s *jobService) Submit(ctx context.Context, format models.ReportFormat, records []models.StudentEventRecord) (*models.SubmitResult, error) {
	if !format.Valid() {
		return nil, &models.ValidationError{
			StudentIndex: -1,
			EventIndex:   -1,
			Field:        "format",
			Reason:       fmt.Sprintf("unsupported report format %q (expected html or pdf)", format),
		}
	}
	if s.opts.MaxStudents > 0 && len(records) > s.opts.MaxStudents {
		return nil, &models.ValidationError{
			StudentIndex: -1,
			EventIndex:   -1,
			Field:        "payload",
			Reason:       fmt.Sprintf("too many student records: %d (limit %d)", len(records), s.opts.MaxStudents),
		}
	}

	if _, err := timeline.Normalize(records); err != nil {
		return nil, err
	}

	if records == nil {
		records = []models.StudentEventRecord{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	now := s.now().UTC()
	job := &models.Job{
		ID:           uuid.NewString(),
		Format:       format,
		Status:       models.JobStatusPending,
		Payload:      payload,
		StudentCount: len(records),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	log := s.logger.With().Str("job_id", job.ID).Str("format", format.String()).Logger()
	log.Info().Int("students", job.StudentCount).Msg("Report job created")

	if err := s.publish(ctx, job); err != nil {
		log.Warn().Err(err).Msg("Failed to publish job, it will be republished by the reaper")
	}

	return &models.SubmitResult{JobID: job.ID, Status: job.Status}, nil
}

func (s *jobService) Execute(ctx context.Context, jobID string) (*models.JobStatus, error) {
	if !validID(jobID) {
		return nil, fmt.Errorf("job %s: %w", jobID, models.ErrNotFound)
	}

	log := s.logger.With().Str("job_id", jobID).Logger()

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, models.ErrNotFound)
	}
	if job.Status.Terminal() {
		log.Debug().Str("status", job.Status.String()).Msg("Job already finished")
		return job.ToStatus(), nil
	}

	claimed, err := s.jobs.Claim(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		log.Debug().Msg("Job claimed by another worker")
		return s.GetStatus(ctx, jobID)
	}

	log = log.With().Int("attempt", claimed.Attempts).Str("format", claimed.Format.String()).Logger()
	log.Info().Msg("Generating report")
	startTime := time.Now()

	reportID, genErr := s.generate(ctx, claimed, log)

	// The outcome is recorded even when ctx expired during generation.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	var finalized bool
	switch {
	case genErr == nil:
		finalized, err = s.jobs.Complete(finalCtx, jobID, claimed.Attempts, reportID)
	case errors.Is(genErr, models.ErrClaimLost):
		// A later claim owns the job and will record the outcome.
	default:
		log.Error().Err(genErr).Msg("Report generation failed")
		finalized, err = s.jobs.Fail(finalCtx, jobID, claimed.Attempts, failureMessage(genErr))
	}
	if err != nil {
		return nil, err
	}
	if !finalized {
		log.Warn().Msg("Claim no longer held, keeping the current job state")
	} else if genErr == nil {
		log.Info().
			Str("report_id", reportID).
			Dur("duration", time.Since(startTime)).
			Msg("Report generated")
	}

	status, err := s.GetStatus(finalCtx, jobID)
	if err != nil {
		return nil, err
	}
	status.Claimed = true
	return status, nil
}

// generate runs the pipeline for a claimed job. Panics become
// ErrInternalExecution so the job still reaches a terminal state.
func (s *jobService) generate(ctx context.Context, job *models.Job, log zerolog.Logger) (reportID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic while generating report")
			reportID = ""
			err = fmt.Errorf("%w: %v", models.ErrInternalExecution, r)
		}
	}()

	records, err := timeline.DecodeSubmission(job.Payload)
	if err != nil {
		return "", err
	}
	students, err := timeline.Normalize(records)
	if err != nil {
		return "", err
	}

	doc := models.ReportDocument{
		JobID:       job.ID,
		GeneratedAt: job.CreatedAt.UTC(),
		Students:    timeline.Build(students),
	}
	content, err := s.renderer.Render(doc, job.Format)
	if err != nil {
		if errors.Is(err, models.ErrUnsupportedFormat) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", errRender, err)
	}

	return s.storeWithRetry(ctx, job, content, log)
}

func (s *jobService) storeWithRetry(ctx context.Context, job *models.Job, content []byte, log zerolog.Logger) (string, error) {
	b := backoff.NewExponentialBackOff()
	if s.opts.RetryInitialInterval > 0 {
		b.InitialInterval = s.opts.RetryInitialInterval
	}
	if s.opts.RetryMaxInterval > 0 {
		b.MaxInterval = s.opts.RetryMaxInterval
	}

	return backoff.Retry(ctx, func() (string, error) {
		id, err := s.artifacts.Put(ctx, job.ID, job.Attempts, job.Format, content)
		if err != nil && !errors.Is(err, models.ErrTransientStorage) {
			return "", backoff.Permanent(err)
		}
		return id, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.opts.RetryMaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retry_in", next).Msg("Storing report failed, retrying")
		}),
	)
}

func (s *jobService) GetStatus(ctx context.Context, jobID string) (*models.JobStatus, error) {
	if !validID(jobID) {
		return nil, fmt.Errorf("job %s: %w", jobID, models.ErrNotFound)
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, models.ErrNotFound)
	}
	return job.ToStatus(), nil
}

func (s *jobService) ReclaimStale(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.opts.StartedDeadline)

	stale, err := s.jobs.ListStale(ctx, cutoff, s.opts.BatchSize)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for i := range stale {
		job := &stale[i]
		log := s.logger.With().Str("job_id", job.ID).Int("attempts", job.Attempts).Logger()

		if job.Attempts >= s.opts.MaxAttempts {
			ok, err := s.jobs.FailStale(ctx, job.ID, cutoff, staleTimeoutMessage)
			if err != nil {
				return reclaimed, err
			}
			if ok {
				reclaimed++
				log.Warn().Msg("Abandoned job marked as failed")
			}
			continue
		}

		ok, err := s.jobs.Requeue(ctx, job.ID, cutoff)
		if err != nil {
			return reclaimed, err
		}
		if !ok {
			continue
		}
		reclaimed++
		log.Warn().Msg("Abandoned job re-queued")

		if err := s.publish(ctx, job); err != nil {
			log.Warn().Err(err).Msg("Failed to publish re-queued job")
		}
	}

	return reclaimed, nil
}

func (s *jobService) RepublishPending(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.opts.PendingRepublishAfter)

	pending, err := s.jobs.ListPendingBefore(ctx, cutoff, s.opts.BatchSize)
	if err != nil {
		return 0, err
	}

	republished := 0
	for i := range pending {
		job := &pending[i]

		ok, err := s.jobs.TouchPending(ctx, job.ID)
		if err != nil {
			return republished, err
		}
		if !ok {
			continue
		}

		if err := s.publish(ctx, job); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to republish pending job")
			continue
		}
		republished++
	}

	if republished > 0 {
		s.logger.Info().Int("count", republished).Msg("Republished pending jobs")
	}
	return republished, nil
}

func (s *jobService) publish(ctx context.Context, job *models.Job) error {
	body, err := json.Marshal(models.ReportJobQueuedEvent{
		JobID:     job.ID,
		Format:    job.Format.String(),
		Timestamp: s.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode job message: %w", err)
	}
	return s.publisher.Publish(ctx, body)
}

// failureMessage summarises err for the job record without leaking internals.
func failureMessage(err error) string {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		return "invalid submission: " + ve.Error()
	case errors.Is(err, models.ErrUnsupportedFormat):
		return "unsupported report format"
	case errors.Is(err, errRender):
		return "failed to render report"
	case errors.Is(err, models.ErrTransientStorage):
		return "report storage is unavailable"
	case errors.Is(err, models.ErrInternalExecution):
		return "internal error while generating report"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "report generation was interrupted"
	default:
		return "report generation failed"
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
