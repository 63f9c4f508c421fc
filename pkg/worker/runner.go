package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/pkg/logger"
)

// Worker is a named unit of background work. Periodic workers implement Run
// as one iteration; long-running workers block inside Run until ctx ends.
type Worker interface {
	// Name returns worker name for logging
	Name() string
	// Run executes the work
	Run(ctx context.Context) error
}

// managed is the lifecycle the group drives for each wrapped worker
type managed interface {
	Start(ctx context.Context)
	Stop(timeout time.Duration)
}

// PeriodicWorker wraps a Worker with periodic execution
type PeriodicWorker struct {
	worker   Worker
	interval time.Duration
	wg       *sync.WaitGroup
	name     string
}

// NewPeriodicWorker creates new periodic worker
func NewPeriodicWorker(worker Worker, interval time.Duration) *PeriodicWorker {
	return &PeriodicWorker{
		worker:   worker,
		interval: interval,
		wg:       &sync.WaitGroup{},
		name:     worker.Name(),
	}
}

// Start starts the worker with graceful shutdown support
func (pw *PeriodicWorker) Start(ctx context.Context) {
	pw.wg.Add(1)
	go pw.run(ctx)
}

// Stop waits for graceful shutdown
func (pw *PeriodicWorker) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		pw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("✅ Worker stopped gracefully",
			zap.String("worker", pw.name),
		)
	case <-time.After(timeout):
		logger.Warn("⚠️ Worker stop timeout",
			zap.String("worker", pw.name),
		)
	}
}

// run executes worker periodically
func (pw *PeriodicWorker) run(ctx context.Context) {
	defer pw.wg.Done()

	logger.Info("🚀 Worker started",
		zap.String("worker", pw.name),
		zap.Duration("interval", pw.interval),
	)

	// Run immediately on start
	if err := pw.worker.Run(ctx); err != nil {
		logger.Error("worker execution failed",
			zap.String("worker", pw.name),
			zap.Error(err),
		)
	}

	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("🛑 Worker stopping",
				zap.String("worker", pw.name),
			)
			return

		case <-ticker.C:
			if err := pw.worker.Run(ctx); err != nil {
				logger.Error("worker execution failed",
					zap.String("worker", pw.name),
					zap.Error(err),
				)
				// Continue despite error - don't crash worker
			}
		}
	}
}

// LongRunningWorker wraps a Worker whose Run blocks until ctx is canceled.
// Used for drain loops (event dispatcher, websocket hub) that manage their
// own scheduling.
type LongRunningWorker struct {
	worker Worker
	wg     *sync.WaitGroup
	name   string
}

// NewLongRunningWorker creates a wrapper for a blocking worker
func NewLongRunningWorker(worker Worker) *LongRunningWorker {
	return &LongRunningWorker{
		worker: worker,
		wg:     &sync.WaitGroup{},
		name:   worker.Name(),
	}
}

// Start launches the worker once in the background
func (lw *LongRunningWorker) Start(ctx context.Context) {
	lw.wg.Add(1)
	go func() {
		defer lw.wg.Done()

		logger.Info("🚀 Worker started",
			zap.String("worker", lw.name),
		)

		if err := lw.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("worker execution failed",
				zap.String("worker", lw.name),
				zap.Error(err),
			)
		}

		logger.Info("🛑 Worker stopped",
			zap.String("worker", lw.name),
		)
	}()
}

// Stop waits for the worker to return after context cancellation
func (lw *LongRunningWorker) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		lw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("✅ Worker stopped gracefully",
			zap.String("worker", lw.name),
		)
	case <-time.After(timeout):
		logger.Warn("⚠️ Worker stop timeout",
			zap.String("worker", lw.name),
		)
	}
}

// WorkerGroup manages multiple workers with graceful shutdown
type WorkerGroup struct {
	workers []managed
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
}

// NewWorkerGroup creates new worker group
func NewWorkerGroup(ctx context.Context) *WorkerGroup {
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerGroup{
		workers: make([]managed, 0),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add adds a periodic worker to the group
func (wg *WorkerGroup) Add(worker Worker, interval time.Duration) {
	wg.mu.Lock()
	defer wg.mu.Unlock()

	wg.workers = append(wg.workers, NewPeriodicWorker(worker, interval))
}

// AddLongRunning adds a blocking worker to the group
func (wg *WorkerGroup) AddLongRunning(worker Worker) {
	wg.mu.Lock()
	defer wg.mu.Unlock()

	wg.workers = append(wg.workers, NewLongRunningWorker(worker))
}

// Start starts all workers
func (wg *WorkerGroup) Start() {
	wg.mu.Lock()
	defer wg.mu.Unlock()

	for _, worker := range wg.workers {
		worker.Start(wg.ctx)
	}

	logger.Info("🚀 Worker group started",
		zap.Int("workers", len(wg.workers)),
	)
}

// Stop stops all workers gracefully
func (wg *WorkerGroup) Stop(timeout time.Duration) {
	logger.Info("🛑 Stopping worker group...",
		zap.Int("workers", len(wg.workers)),
	)

	// Cancel context first
	wg.cancel()

	// Wait for all workers with timeout
	wg.mu.Lock()
	defer wg.mu.Unlock()

	for _, worker := range wg.workers {
		worker.Stop(timeout)
	}

	logger.Info("✅ Worker group stopped")
}
