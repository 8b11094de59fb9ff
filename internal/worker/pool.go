package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Web5design/MediaCrusher/internal/domain"
)

// ErrShutdownTimeout is returned when workers don't stop within timeout.
var ErrShutdownTimeout = errors.New("worker pool shutdown timed out")

// Task is one qualifying mention with its resolved submission, ready for a
// workflow run.
type Task struct {
	Mention    domain.Mention
	Submission domain.Submission
}

// Runner executes the upload workflow for one mention.
type Runner interface {
	Run(ctx context.Context, m domain.Mention, sub domain.Submission) domain.Outcome
}

// Pool runs mention pipelines on a bounded set of workers fed by a buffered
// queue. Queue depth is the back-pressure: when it is full, new mentions
// are dropped rather than spawning unbounded goroutines.
type Pool struct {
	workers int
	queue   chan Task
	engine  Runner
	logger  *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds worker pool configuration.
type Config struct {
	Workers   int
	QueueSize int
}

// NewPool creates a new worker pool.
func NewPool(cfg Config, engine Runner, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers: cfg.Workers,
		queue:   make(chan Task, cfg.QueueSize),
		engine:  engine,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches all workers.
func (p *Pool) Start() {
	p.logger.Info("starting worker pool", "workers", p.workers, "queue_size", cap(p.queue))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues a task without blocking. It returns domain.ErrQueueFull
// when the queue cannot accept it; the caller logs and moves on (delivery
// is best-effort).
func (p *Pool) Submit(task Task) error {
	select {
	case p.queue <- task:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

// Stop gracefully stops all workers.
func (p *Pool) Stop(timeout time.Duration) error {
	p.logger.Info("stopping worker pool")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Info("worker started")

	for {
		select {
		case <-p.ctx.Done():
			logger.Info("worker stopping")
			return
		case task := <-p.queue:
			p.runTask(logger, task)
		}
	}
}

// runTask executes one pipeline with panic isolation: a failure in one
// mention's run never takes down the pool or its siblings.
func (p *Pool) runTask(logger *slog.Logger, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panicked", "mention", task.Mention.Name, "panic", r)
		}
	}()

	outcome := p.engine.Run(p.ctx, task.Mention, task.Submission)
	logger.Info("pipeline finished", "mention", task.Mention.Name, "outcome", outcome)
}
