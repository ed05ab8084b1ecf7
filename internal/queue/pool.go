package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const poolName = "memory"

// PoolConfig sizes a Pool.
type PoolConfig struct {
	Workers int
	Buffer  int
	Timeout time.Duration
}

// Pool is an in-process queue: a buffered channel drained by a fixed
// number of workers.
type Pool struct {
	handler Handler
	cfg     PoolConfig
	logger  *zap.Logger
	tasks   chan string

	mu      sync.RWMutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a Pool. Workers and Buffer default to 1 and 64.
func NewPool(handler Handler, cfg PoolConfig, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 1 {
		cfg.Buffer = 64
	}
	return &Pool{
		handler: handler,
		cfg:     cfg,
		logger:  logger.Named("queue"),
		tasks:   make(chan string, cfg.Buffer),
	}
}

// Enqueue buffers signalID without blocking.
func (p *Pool) Enqueue(_ context.Context, signalID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.tasks <- signalID:
		TasksTotal.WithLabelValues(poolName, resultEnqueued).Inc()
		return nil
	default:
		TasksTotal.WithLabelValues(poolName, resultRejected).Inc()
		return ErrQueueFull
	}
}

// submit blocks until the buffer has room or ctx is done.
func (p *Pool) submit(ctx context.Context, signalID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.tasks <- signalID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the workers. Handlers inherit ctx's values but not its
// cancellation: only a Stop whose deadline expires cancels them, so
// buffered tasks still drain after the caller's context is done.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	if p.stopped {
		return ErrStopped
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.cfg.Workers), zap.Int("buffer", p.cfg.Buffer))
	return nil
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-p.tasks:
			if !ok {
				return
			}
			run(ctx, poolName, p.handler, id, p.cfg.Timeout, p.logger)
		}
	}
}

// Stop refuses new tasks and waits for the buffered ones to finish. When
// ctx expires first, in-flight handlers are cancelled and ctx's error is
// returned.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.tasks)
	started := p.started
	p.mu.Unlock()

	if !started {
		if n := len(p.tasks); n > 0 {
			p.logger.Warn("queue stopped before start, tasks dropped", zap.Int("dropped", n))
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		p.logger.Warn("worker pool stop timed out", zap.Int("dropped", len(p.tasks)))
		return ctx.Err()
	}
}

// Len is the number of buffered tasks.
func (p *Pool) Len() int { return len(p.tasks) }
