package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var ErrPoolStopped = errors.New("worker pool stopped")

type Task func()

type PoolStats struct {
	ActiveWorkers int `json:"active_workers"`
	MaxWorkers    int `json:"max_workers"`
	QueueLength   int `json:"queue_length"`
	QueueCapacity int `json:"queue_capacity"`
}

type WorkerPool struct {
	tasks      chan Task
	wg         sync.WaitGroup
	maxWorkers int
	logger     zerolog.Logger

	mu     sync.RWMutex
	closed bool

	statsMu sync.Mutex
	busy    int
}

func NewWorkerPool(maxWorkers, queueSize int, logger zerolog.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkerPool{
		tasks:      make(chan Task, queueSize),
		maxWorkers: maxWorkers,
		logger:     logger,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) error {
	wp.logger.Info().Int("max_workers", wp.maxWorkers).Msg("Starting worker pool")

	for i := 0; i < wp.maxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	return nil
}

// Stop lets queued tasks finish and waits for all workers to exit.
func (wp *WorkerPool) Stop() error {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return nil
	}
	wp.closed = true
	close(wp.tasks)
	wp.mu.Unlock()

	wp.logger.Info().Msg("Stopping worker pool")
	wp.wg.Wait()
	wp.logger.Info().Msg("Worker pool stopped")
	return nil
}

// Submit blocks until a worker slot frees up, ctx is done or the pool stops.
func (wp *WorkerPool) Submit(ctx context.Context, task Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return ErrPoolStopped
	}

	select {
	case wp.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.Debug().Int("worker_id", id).Msg("Worker started")

	for task := range wp.tasks {
		wp.run(id, task)
	}

	wp.logger.Debug().Int("worker_id", id).Msg("Worker stopped")
}

func (wp *WorkerPool) run(id int, task Task) {
	wp.statsMu.Lock()
	wp.busy++
	wp.statsMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error().
				Int("worker_id", id).
				Interface("panic", r).
				Msg("Worker recovered from panic")
		}

		wp.statsMu.Lock()
		wp.busy--
		wp.statsMu.Unlock()
	}()

	task()
}

func (wp *WorkerPool) GetActiveWorkers() int {
	wp.statsMu.Lock()
	defer wp.statsMu.Unlock()
	return wp.busy
}

func (wp *WorkerPool) GetStats() PoolStats {
	return PoolStats{
		ActiveWorkers: wp.GetActiveWorkers(),
		MaxWorkers:    wp.maxWorkers,
		QueueLength:   len(wp.tasks),
		QueueCapacity: cap(wp.tasks),
	}
}
