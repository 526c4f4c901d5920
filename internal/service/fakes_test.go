package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/service/render"
	"github.com/RubachokBoss/plagiarism-checker/report-service/pkg/hash"
)

var errStoreDown = errors.New("connection refused")

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 7, 21, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeJobRepo struct {
	mu    sync.Mutex
	clock *testClock
	jobs  map[string]*models.Job
	down  bool
}

func newFakeJobRepo(clock *testClock) *fakeJobRepo {
	return &fakeJobRepo{clock: clock, jobs: make(map[string]*models.Job)}
}

func copyJob(job *models.Job) *models.Job {
	c := *job
	return &c
}

func (r *fakeJobRepo) Create(ctx context.Context, job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return errStoreDown
	}
	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("duplicate job %s", job.ID)
	}
	r.jobs[job.ID] = copyJob(job)
	return nil
}

func (r *fakeJobRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, errStoreDown
	}
	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	return copyJob(job), nil
}

func (r *fakeJobRepo) Claim(ctx context.Context, id string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, errStoreDown
	}
	job, ok := r.jobs[id]
	if !ok || job.Status != models.JobStatusPending {
		return nil, nil
	}
	now := r.clock.Now()
	job.Status = models.JobStatusStarted
	job.Attempts++
	job.StartedAt = &now
	job.UpdatedAt = now
	job.ErrorMessage = nil
	return copyJob(job), nil
}

// transition applies a conditional update. attempt 0 matches any claim.
func (r *fakeJobRepo) transition(id string, from models.JobStatusCode, startedBefore *time.Time, attempt int, apply func(job *models.Job)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return false, errStoreDown
	}
	job, ok := r.jobs[id]
	if !ok || job.Status != from {
		return false, nil
	}
	if startedBefore != nil && (job.StartedAt == nil || !job.StartedAt.Before(*startedBefore)) {
		return false, nil
	}
	if attempt != 0 && job.Attempts != attempt {
		return false, nil
	}
	apply(job)
	job.UpdatedAt = r.clock.Now()
	return true, nil
}

func (r *fakeJobRepo) Complete(ctx context.Context, id string, attempt int, reportID string) (bool, error) {
	return r.transition(id, models.JobStatusStarted, nil, attempt, func(job *models.Job) {
		now := r.clock.Now()
		job.Status = models.JobStatusSuccess
		job.ReportID = &reportID
		job.CompletedAt = &now
	})
}

func (r *fakeJobRepo) Fail(ctx context.Context, id string, attempt int, message string) (bool, error) {
	return r.transition(id, models.JobStatusStarted, nil, attempt, func(job *models.Job) {
		now := r.clock.Now()
		job.Status = models.JobStatusFailure
		job.ErrorMessage = &message
		job.CompletedAt = &now
	})
}

// holds reports whether attempt is the live claim of a STARTED job. Jobs the
// fake does not know are treated as held so artifacts can be stored directly.
func (r *fakeJobRepo) holds(id string, attempt int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return true
	}
	return job.Status == models.JobStatusStarted && job.Attempts == attempt
}

func (r *fakeJobRepo) Requeue(ctx context.Context, id string, startedBefore time.Time) (bool, error) {
	return r.transition(id, models.JobStatusStarted, &startedBefore, 0, func(job *models.Job) {
		job.Status = models.JobStatusPending
	})
}

func (r *fakeJobRepo) FailStale(ctx context.Context, id string, startedBefore time.Time, message string) (bool, error) {
	return r.transition(id, models.JobStatusStarted, &startedBefore, 0, func(job *models.Job) {
		now := r.clock.Now()
		job.Status = models.JobStatusFailure
		job.ErrorMessage = &message
		job.CompletedAt = &now
	})
}

func (r *fakeJobRepo) TouchPending(ctx context.Context, id string) (bool, error) {
	return r.transition(id, models.JobStatusPending, nil, 0, func(job *models.Job) {})
}

func (r *fakeJobRepo) ListStale(ctx context.Context, startedBefore time.Time, limit int) ([]models.Job, error) {
	return r.list(limit, func(job *models.Job) bool {
		return job.Status == models.JobStatusStarted && job.StartedAt != nil && job.StartedAt.Before(startedBefore)
	})
}

func (r *fakeJobRepo) ListPendingBefore(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Job, error) {
	return r.list(limit, func(job *models.Job) bool {
		return job.Status == models.JobStatusPending && job.UpdatedAt.Before(updatedBefore)
	})
}

func (r *fakeJobRepo) list(limit int, match func(job *models.Job) bool) ([]models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, errStoreDown
	}
	var out []models.Job
	for _, job := range r.jobs {
		if match(job) {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeJobRepo) Ping(ctx context.Context) error {
	if r.down {
		return errStoreDown
	}
	return nil
}

func (r *fakeJobRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

type fakeReportRepo struct {
	mu     sync.Mutex
	jobs   *fakeJobRepo
	byJob  map[string]*models.Report
	hidden bool
	// createErr fails Create without storing the row; commitErr stores the
	// row and still reports an error, as with a lost commit acknowledgement.
	createErr error
	commitErr error
}

func newFakeReportRepo(jobs *fakeJobRepo) *fakeReportRepo {
	return &fakeReportRepo{jobs: jobs, byJob: make(map[string]*models.Report)}
}

func (r *fakeReportRepo) Create(ctx context.Context, report *models.Report, attempt int) (*models.Report, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, false, r.createErr
	}
	if r.jobs != nil && !r.jobs.holds(report.JobID, attempt) {
		return nil, false, fmt.Errorf("job %s attempt %d: %w", report.JobID, attempt, models.ErrClaimLost)
	}
	if existing, ok := r.byJob[report.JobID]; ok {
		c := *existing
		return &c, false, nil
	}
	c := *report
	r.byJob[report.JobID] = &c
	if r.commitErr != nil {
		return nil, false, r.commitErr
	}
	return report, true, nil
}

func (r *fakeReportRepo) GetByJobAndID(ctx context.Context, jobID, reportID string) (*models.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.byJob[jobID]
	if !ok || report.ID != reportID {
		return nil, nil
	}
	c := *report
	return &c, nil
}

func (r *fakeReportRepo) GetByJobID(ctx context.Context, jobID string) (*models.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.byJob[jobID]
	if !ok || r.hidden {
		return nil, nil
	}
	c := *report
	return &c, nil
}

func (r *fakeReportRepo) ListByJob(ctx context.Context, jobID string) ([]models.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if report, ok := r.byJob[jobID]; ok {
		return []models.Report{*report}, nil
	}
	return nil, nil
}

func (r *fakeReportRepo) Ping(ctx context.Context) error { return nil }

func (r *fakeReportRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byJob)
}

func (r *fakeReportRepo) tamper(jobID string, mutate func(report *models.Report)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mutate(r.byJob[jobID])
}

type fakeBlobStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failPuts int
	puts     int
}

func newFakeBlobStorage() *fakeBlobStorage {
	return &fakeBlobStorage{objects: make(map[string][]byte)}
}

func (s *fakeBlobStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.failPuts != 0 {
		if s.failPuts > 0 {
			s.failPuts--
		}
		return errors.New("minio: service unavailable")
	}
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *fakeBlobStorage) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, models.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *fakeBlobStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeBlobStorage) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeBlobStorage) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fakeBlobStorage) Ping(ctx context.Context) error { return nil }

func (s *fakeBlobStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *fakeBlobStorage) set(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
}

type fakePublisher struct {
	mu     sync.Mutex
	bodies [][]byte
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, body)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bodies)
}

type testEnv struct {
	clock     *testClock
	jobs      *fakeJobRepo
	reports   *fakeReportRepo
	blobs     *fakeBlobStorage
	publisher *fakePublisher
	artifacts ArtifactService
	svc       JobService
}

func testJobOptions() JobOptions {
	return JobOptions{
		StartedDeadline:       10 * time.Minute,
		MaxAttempts:           2,
		PendingRepublishAfter: 5 * time.Minute,
		BatchSize:             10,
		RetryMaxAttempts:      3,
		RetryInitialInterval:  time.Millisecond,
		RetryMaxInterval:      5 * time.Millisecond,
	}
}

func newTestEnv(t *testing.T, renderer *render.Renderer) *testEnv {
	t.Helper()

	hasher, err := hash.New("sha256")
	if err != nil {
		t.Fatalf("hash.New: %v", err)
	}
	if renderer == nil {
		renderer = render.NewDefaultRenderer()
	}

	env := &testEnv{
		clock:     newTestClock(),
		blobs:     newFakeBlobStorage(),
		publisher: &fakePublisher{},
	}
	env.jobs = newFakeJobRepo(env.clock)
	env.reports = newFakeReportRepo(env.jobs)

	artifacts := NewArtifactService(env.reports, env.blobs, hasher, ArtifactOptions{CompressionLevel: 9}, zerolog.Nop())
	artifacts.(*artifactService).now = env.clock.Now
	env.artifacts = artifacts

	svc := NewJobService(env.jobs, artifacts, renderer, env.publisher, testJobOptions(), zerolog.Nop())
	svc.(*jobService).now = env.clock.Now
	env.svc = svc

	return env
}
