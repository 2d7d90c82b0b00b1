// Package worker resolves the tasks of one batch with a bounded pool.
package worker

import (
	"context"
	"time"

	"github.com/okian/pointsledger/internal/adapters/mq/queue"
	"github.com/okian/pointsledger/internal/domain/failure"
	"github.com/okian/pointsledger/internal/domain/model"
	"github.com/okian/pointsledger/internal/domain/resolve"
	"github.com/okian/pointsledger/pkg/logger"
	"github.com/okian/pointsledger/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultTaskTimeout  = 45 * time.Second
	defaultBatchTimeout = 2 * time.Minute
	defaultConcurrency  = 3
)

// Resolver produces exactly one outcome per participant.
type Resolver interface {
	Resolve(ctx context.Context, p model.Participant) resolve.Outcome
	FallbackPoints() int
}

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Task
}

// Result pairs an outcome with the task position it belongs to.
type Result struct {
	Index   int
	Outcome resolve.Outcome
}

// InMemoryWorker drains a queue and posts one Result per task.
type InMemoryWorker struct {
	queue       Queue
	resolver    Resolver
	name        string
	taskTimeout time.Duration
	logger      logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, resolver Resolver, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		resolver:    resolver,
		name:        "worker",
		taskTimeout: defaultTaskTimeout,
		logger:      logger.Nop(),
	}

	for _, opt := range opts {
		opt(w)
	}

	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes tasks until the queue is drained or ctx ends. Results are
// sent on out, which must have room for every task the worker may take.
func (w *InMemoryWorker) Run(ctx context.Context, out chan<- Result) {
	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}
			out <- Result{Index: t.Index, Outcome: w.process(ctx, t)}
		}
	}
}

// process resolves one task under the per-task deadline. A task that
// outlives the deadline is abandoned and reported as a fallback.
func (w *InMemoryWorker) process(ctx context.Context, t queue.Task) resolve.Outcome { //nolint:gocritic // hugeParam: Task is passed by value for channel semantics
	metrics.AddBatchInflight(1)
	defer metrics.AddBatchInflight(-1)

	tctx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	done := make(chan resolve.Outcome, 1)
	go func() {
		done <- w.resolver.Resolve(tctx, t.Participant)
	}()

	select {
	case out := <-done:
		return out
	case <-tctx.Done():
		metrics.RecordTaskTimeout()
		w.logger.Warn(ctx, "resolution task abandoned",
			logger.Int64("participantID", t.Participant.ID),
			logger.Error(tctx.Err()),
		)
		return resolve.Fallback(t.Participant.ID, w.resolver.FallbackPoints(), failure.KindTaskTimeout, 0, tctx.Err())
	}
}
