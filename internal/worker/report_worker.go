package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/worker/queue"
)

// JobExecutor runs a queued job to a terminal state.
type JobExecutor interface {
	Execute(ctx context.Context, jobID string) (*models.JobStatus, error)
}

type WorkerStats struct {
	ActiveWorkers  int `json:"active_workers"`
	TotalProcessed int `json:"total_processed"`
	Succeeded      int `json:"succeeded"`
	Failed         int `json:"failed"`
	Dropped        int `json:"dropped"`
	Requeued       int `json:"requeued"`
	QueueLength    int `json:"queue_length"`
}

type ReportWorkerOptions struct {
	ExecuteTimeout time.Duration
	// RequeueDelay is how long a worker waits before handing a message back
	// to the queue after the job store could not be reached.
	RequeueDelay time.Duration
}

type ReportWorker struct {
	pool     *WorkerPool
	consumer queue.Consumer
	jobs     JobExecutor
	opts     ReportWorkerOptions
	logger   zerolog.Logger

	statsMutex sync.RWMutex
	stats      WorkerStats
	startTime  time.Time
}

func NewReportWorker(
	pool *WorkerPool,
	consumer queue.Consumer,
	jobs JobExecutor,
	opts ReportWorkerOptions,
	logger zerolog.Logger,
) *ReportWorker {
	if opts.ExecuteTimeout <= 0 {
		opts.ExecuteTimeout = 5 * time.Minute
	}
	if opts.RequeueDelay < 0 {
		opts.RequeueDelay = 0
	}
	return &ReportWorker{
		pool:      pool,
		consumer:  consumer,
		jobs:      jobs,
		opts:      opts,
		logger:    logger.With().Str("component", "report-worker").Logger(),
		startTime: time.Now(),
	}
}

// Run consumes job messages until ctx is cancelled or the consumer closes.
// Jobs already handed to the pool are allowed to finish before Run returns.
func (w *ReportWorker) Run(ctx context.Context) error {
	w.logger.Info().Msg("Starting report worker...")

	if err := w.pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	msgs, err := w.consumer.Consume(ctx)
	if err != nil {
		w.pool.Stop()
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	w.logger.Info().Msg("Report worker started successfully")

	runErr := w.processMessages(ctx, msgs)
	w.stop()
	return runErr
}

func (w *ReportWorker) processMessages(ctx context.Context, msgs <-chan queue.Message) error {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Stopping message processing")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Warn().Msg("Message channel closed")
				return errors.New("queue consumer closed unexpectedly")
			}

			// Executions outlive shutdown so that a claimed job still reaches
			// a terminal state.
			taskCtx := context.WithoutCancel(ctx)
			err := w.pool.Submit(ctx, func() { w.handle(taskCtx, msg) })
			if err != nil {
				if nackErr := msg.Nack(true); nackErr != nil {
					w.logger.Error().Err(nackErr).Msg("Failed to nack message")
				}
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to submit job: %w", err)
			}
		}
	}
}

func (w *ReportWorker) handle(ctx context.Context, msg queue.Message) {
	err := w.processMessage(ctx, msg)

	w.statsMutex.Lock()
	w.stats.TotalProcessed++
	w.statsMutex.Unlock()

	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}
		return
	}

	if isPermanentError(err) {
		w.logger.Warn().Err(err).Msg("Dropping job message")
		w.bump(func(s *WorkerStats) { s.Dropped++ })
		if ackErr := msg.Ack(); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}
		return
	}

	w.logger.Error().Err(err).Msg("Failed to process message, requeueing")
	w.bump(func(s *WorkerStats) { s.Requeued++ })
	if w.opts.RequeueDelay > 0 {
		time.Sleep(w.opts.RequeueDelay)
	}
	if nackErr := msg.Nack(true); nackErr != nil {
		w.logger.Error().Err(nackErr).Msg("Failed to nack message")
	}
}

func (w *ReportWorker) processMessage(ctx context.Context, msg queue.Message) error {
	var event models.ReportJobQueuedEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return permanent(fmt.Errorf("failed to unmarshal event: %w", err))
	}

	if strings.TrimSpace(event.JobID) == "" {
		return permanent(errors.New("empty job_id"))
	}

	return w.ProcessJob(ctx, event.JobID)
}

// ProcessJob executes one job. Unknown jobs are permanent failures; an
// unreachable job store is not.
func (w *ReportWorker) ProcessJob(ctx context.Context, jobID string) error {
	execCtx, cancel := context.WithTimeout(ctx, w.opts.ExecuteTimeout)
	defer cancel()

	startTime := time.Now()
	log := w.logger.With().Str("job_id", jobID).Logger()

	status, err := w.jobs.Execute(execCtx, jobID)
	if errors.Is(err, models.ErrNotFound) {
		return permanent(fmt.Errorf("job %s: %w", jobID, err))
	}
	if err != nil {
		return fmt.Errorf("failed to execute job %s: %w", jobID, err)
	}

	if !status.Claimed {
		log.Debug().Str("status", status.Status.String()).Msg("Job already handled elsewhere")
		return nil
	}

	switch status.Status {
	case models.JobStatusSuccess:
		w.bump(func(s *WorkerStats) { s.Succeeded++ })
	case models.JobStatusFailure:
		w.bump(func(s *WorkerStats) { s.Failed++ })
	}

	log.Info().
		Str("status", status.Status.String()).
		Dur("duration", time.Since(startTime)).
		Msg("Job processed")

	return nil
}

func (w *ReportWorker) bump(fn func(*WorkerStats)) {
	w.statsMutex.Lock()
	fn(&w.stats)
	w.statsMutex.Unlock()
}

func (w *ReportWorker) stop() {
	w.logger.Info().Msg("Stopping report worker...")

	if err := w.pool.Stop(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to stop worker pool")
	}

	if err := w.consumer.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close queue consumer")
	}

	stats := w.GetStats(context.Background())
	w.logger.Info().
		Int("total_processed", stats.TotalProcessed).
		Int("failed_jobs", stats.Failed).
		Dur("uptime", time.Since(w.startTime)).
		Msg("Report worker stopped")
}

func (w *ReportWorker) GetStats(ctx context.Context) WorkerStats {
	w.statsMutex.RLock()
	stats := w.stats
	w.statsMutex.RUnlock()

	queueLength, err := w.consumer.QueueLength(ctx)
	if err != nil {
		w.logger.Debug().Err(err).Msg("Failed to get queue length")
	} else {
		stats.QueueLength = queueLength
	}

	stats.ActiveWorkers = w.pool.GetActiveWorkers()
	return stats
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return permanentError{err: err}
}

func isPermanentError(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
