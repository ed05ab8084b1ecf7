package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const natsName = "nats"

// Task is the message published for each signal.
type Task struct {
	SignalID   string    `json:"signalId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// NATSConfig names the subject and queue group.
type NATSConfig struct {
	Subject    string
	QueueGroup string
}

// NATS publishes tasks on a subject and consumes them with a queue group
// subscription, so each task reaches one daemon. Received tasks run on a
// local Pool.
type NATS struct {
	conn   *nats.Conn
	cfg    NATSConfig
	pool   *Pool
	logger *zap.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewNATS creates a NATS queue delivering to pool.
func NewNATS(conn *nats.Conn, cfg NATSConfig, pool *Pool, logger *zap.Logger) (*NATS, error) {
	if conn == nil {
		return nil, errors.New("nats queue: connection is required")
	}
	if pool == nil {
		return nil, errors.New("nats queue: pool is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = "signald.signals.process"
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = "signald-workers"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATS{conn: conn, cfg: cfg, pool: pool, logger: logger.Named("queue.nats")}, nil
}

// Enqueue publishes a task.
func (q *NATS) Enqueue(_ context.Context, signalID string) error {
	data, err := json.Marshal(Task{SignalID: signalID, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}
	if err := q.conn.Publish(q.cfg.Subject, data); err != nil {
		TasksTotal.WithLabelValues(natsName, resultRejected).Inc()
		return fmt.Errorf("publishing task for %s: %w", signalID, err)
	}
	TasksTotal.WithLabelValues(natsName, resultEnqueued).Inc()
	return nil
}

// Start starts the pool and subscribes.
func (q *NATS) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sub != nil {
		return ErrAlreadyStarted
	}
	if err := q.pool.Start(ctx); err != nil {
		return err
	}

	sub, err := q.conn.QueueSubscribe(q.cfg.Subject, q.cfg.QueueGroup, func(msg *nats.Msg) {
		var task Task
		if err := json.Unmarshal(msg.Data, &task); err != nil || task.SignalID == "" {
			q.logger.Warn("discarding malformed task", zap.ByteString("data", msg.Data), zap.Error(err))
			return
		}
		if err := q.pool.submit(ctx, task.SignalID); err != nil {
			q.logger.Warn("task not accepted", zap.String("signal.id", task.SignalID), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", q.cfg.Subject, err)
	}
	if err := q.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flushing subscription: %w", err)
	}
	q.sub = sub
	q.logger.Info("subscribed",
		zap.String("subject", q.cfg.Subject),
		zap.String("queue_group", q.cfg.QueueGroup))
	return nil
}

// Stop unsubscribes and stops the pool.
func (q *NATS) Stop(ctx context.Context) error {
	q.mu.Lock()
	sub := q.sub
	q.sub = nil
	q.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			q.logger.Warn("unsubscribe failed", zap.Error(err))
		}
	}
	return q.pool.Stop(ctx)
}
