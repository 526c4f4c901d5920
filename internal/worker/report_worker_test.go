package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/worker/queue"
)

type fakeConsumer struct {
	msgs   chan queue.Message
	closed atomic.Bool

	mu       sync.Mutex
	acked    []string
	requeued []string
}

func newFakeConsumer() *fakeConsumer {
	return &fakeConsumer{msgs: make(chan queue.Message, 16)}
}

func (c *fakeConsumer) Consume(ctx context.Context) (<-chan queue.Message, error) {
	return c.msgs, nil
}

func (c *fakeConsumer) QueueLength(ctx context.Context) (int, error) {
	return len(c.msgs), nil
}

func (c *fakeConsumer) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConsumer) send(body string) {
	c.msgs <- queue.Message{
		Body:      []byte(body),
		Timestamp: time.Now(),
		Ack: func() error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.acked = append(c.acked, body)
			return nil
		},
		Nack: func(requeue bool) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			if requeue {
				c.requeued = append(c.requeued, body)
			}
			return nil
		},
	}
}

func (c *fakeConsumer) outcomes() (acked, requeued int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acked), len(c.requeued)
}

type fakeExecutor struct {
	mu       sync.Mutex
	calls    []string
	statuses map[string]*models.JobStatus
	errs     map[string]error
}

func (e *fakeExecutor) Execute(ctx context.Context, jobID string) (*models.JobStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, jobID)
	if err, ok := e.errs[jobID]; ok {
		return nil, err
	}
	if status, ok := e.statuses[jobID]; ok {
		return status, nil
	}
	return nil, models.ErrNotFound
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReportWorker_AckPolicy(t *testing.T) {
	consumer := newFakeConsumer()
	executor := &fakeExecutor{
		statuses: map[string]*models.JobStatus{
			"done":   {JobID: "done", Status: models.JobStatusSuccess, Claimed: true},
			"failed": {JobID: "failed", Status: models.JobStatusFailure, Claimed: true},
			"other":  {JobID: "other", Status: models.JobStatusStarted},
		},
		errs: map[string]error{
			"down": models.TransientStorage("get job", errors.New("connection refused")),
		},
	}

	w := NewReportWorker(NewWorkerPool(2, 4, zerolog.Nop()), consumer, executor, ReportWorkerOptions{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	consumer.send(`{"job_id":"done"}`)
	consumer.send(`{"job_id":"failed"}`)
	consumer.send(`{"job_id":"other"}`)
	consumer.send(`{"job_id":"missing"}`)
	consumer.send(`{"job_id":"down"}`)
	consumer.send(`{"job_id":"  "}`)
	consumer.send(`not json`)

	waitFor(t, func() bool {
		acked, requeued := consumer.outcomes()
		return acked+requeued == 7
	})

	acked, requeued := consumer.outcomes()
	if acked != 6 || requeued != 1 {
		t.Fatalf("acked=%d requeued=%d, want 6 and 1", acked, requeued)
	}
	consumer.mu.Lock()
	if consumer.requeued[0] != `{"job_id":"down"}` {
		t.Fatalf("requeued %q", consumer.requeued[0])
	}
	consumer.mu.Unlock()

	stats := w.GetStats(context.Background())
	if stats.TotalProcessed != 7 || stats.Succeeded != 1 || stats.Failed != 1 || stats.Dropped != 3 || stats.Requeued != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
	if !consumer.closed.Load() {
		t.Fatalf("consumer was not closed")
	}

	executor.mu.Lock()
	defer executor.mu.Unlock()
	if len(executor.calls) != 5 {
		t.Fatalf("Execute called %d times, want 5", len(executor.calls))
	}
}

func TestReportWorker_ConsumerClosed(t *testing.T) {
	consumer := newFakeConsumer()
	close(consumer.msgs)

	w := NewReportWorker(NewWorkerPool(1, 0, zerolog.Nop()), consumer, &fakeExecutor{}, ReportWorkerOptions{}, zerolog.Nop())
	if err := w.Run(context.Background()); err == nil {
		t.Fatalf("expected error when the consumer closes")
	}
}

func TestReportWorker_ProcessJobNotFoundIsPermanent(t *testing.T) {
	w := NewReportWorker(NewWorkerPool(1, 0, zerolog.Nop()), newFakeConsumer(), &fakeExecutor{}, ReportWorkerOptions{}, zerolog.Nop())

	err := w.ProcessJob(context.Background(), "nope")
	if !isPermanentError(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound in chain, got %v", err)
	}
}

func TestReportWorker_ExecuteTimeoutApplied(t *testing.T) {
	var deadline time.Time
	executor := executorFunc(func(ctx context.Context, jobID string) (*models.JobStatus, error) {
		deadline, _ = ctx.Deadline()
		return &models.JobStatus{JobID: jobID, Status: models.JobStatusSuccess}, nil
	})

	w := NewReportWorker(NewWorkerPool(1, 0, zerolog.Nop()), newFakeConsumer(), executor,
		ReportWorkerOptions{ExecuteTimeout: time.Minute}, zerolog.Nop())

	start := time.Now()
	if err := w.ProcessJob(context.Background(), "job"); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if deadline.IsZero() || deadline.Sub(start) > time.Minute+time.Second {
		t.Fatalf("unexpected deadline %v", deadline)
	}
}

type executorFunc func(ctx context.Context, jobID string) (*models.JobStatus, error)

func (f executorFunc) Execute(ctx context.Context, jobID string) (*models.JobStatus, error) {
	return f(ctx, jobID)
}
