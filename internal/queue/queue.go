// Package queue carries "process signal X" tasks from ingestion to the
// signal processor.
//
// Handler errors are logged and counted here and never reach the caller of
// Enqueue. A task that is lost (full buffer, stopped queue) leaves its
// signal unprocessed, where a later batch run picks it up.
package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the buffer cannot take another task.
	ErrQueueFull = errors.New("queue full")

	// ErrStopped is returned by Enqueue after Stop.
	ErrStopped = errors.New("queue stopped")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("queue already started")
)

// Handler processes one signal.
type Handler func(ctx context.Context, signalID string) error

// Queue accepts tasks and runs them in the background.
type Queue interface {
	Enqueue(ctx context.Context, signalID string) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// run applies the per-task timeout, then logs and counts the outcome.
func run(ctx context.Context, name string, h Handler, signalID string, timeout time.Duration, logger *zap.Logger) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := h(ctx, signalID)
	TaskDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		TasksTotal.WithLabelValues(name, resultFailed).Inc()
		logger.Error("task failed",
			zap.String("signal.id", signalID),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		return
	}
	TasksTotal.WithLabelValues(name, resultSucceeded).Inc()
}
