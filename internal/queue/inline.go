package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const inlineName = "inline"

// Inline runs the handler synchronously inside Enqueue. Errors are logged
// and swallowed like the asynchronous queues.
type Inline struct {
	handler Handler
	timeout time.Duration
	logger  *zap.Logger
}

// NewInline creates an Inline queue.
func NewInline(handler Handler, timeout time.Duration, logger *zap.Logger) *Inline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inline{handler: handler, timeout: timeout, logger: logger.Named("queue")}
}

// Enqueue runs the task now.
func (q *Inline) Enqueue(ctx context.Context, signalID string) error {
	TasksTotal.WithLabelValues(inlineName, resultEnqueued).Inc()
	run(context.WithoutCancel(ctx), inlineName, q.handler, signalID, q.timeout, q.logger)
	return nil
}

// Start is a no-op.
func (q *Inline) Start(context.Context) error { return nil }

// Stop is a no-op.
func (q *Inline) Stop(context.Context) error { return nil }
