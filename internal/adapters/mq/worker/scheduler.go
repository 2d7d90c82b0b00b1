package worker

import (
	"context"
	"strconv"
	"time"

	"github.com/okian/pointsledger/internal/adapters/mq/queue"
	"github.com/okian/pointsledger/internal/domain/failure"
	"github.com/okian/pointsledger/internal/domain/model"
	"github.com/okian/pointsledger/internal/domain/resolve"
	"github.com/okian/pointsledger/pkg/logger"
	"github.com/okian/pointsledger/pkg/metrics"
)

// Batch statuses reported by RunBatch.
const (
	BatchCompleted = "completed"
	BatchFailed    = "failed"
)

// ProgressFunc is told how many tasks of the batch have finished.
// It is always called from a single goroutine.
type ProgressFunc func(done, total int)

// BatchResult holds one outcome per submitted participant, in submission order.
type BatchResult struct {
	Outcomes  []resolve.Outcome
	Succeeded int
	Failed    int
	Status    string
	TimedOut  bool
	Duration  time.Duration
}

// Scheduler runs one batch at a time through a pool of workers.
type Scheduler struct {
	resolver     Resolver
	concurrency  int
	taskTimeout  time.Duration
	batchTimeout time.Duration
	logger       logger.Logger
}

// NewScheduler creates a scheduler around resolver.
func NewScheduler(resolver Resolver, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		resolver:     resolver,
		concurrency:  defaultConcurrency,
		taskTimeout:  defaultTaskTimeout,
		batchTimeout: defaultBatchTimeout,
		logger:       logger.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RunBatch resolves participants with at most concurrency tasks in flight.
// Completion order is arbitrary, but every participant yields exactly one
// outcome: tasks cut off by the batch deadline fall back.
func (s *Scheduler) RunBatch(ctx context.Context, participants []model.Participant, progress ProgressFunc) BatchResult {
	start := time.Now()
	total := len(participants)
	res := BatchResult{Outcomes: make([]resolve.Outcome, total), Status: BatchCompleted}
	if total == 0 {
		return res
	}

	bctx, cancel := context.WithTimeout(ctx, s.batchTimeout)
	defer cancel()

	q := queue.NewInMemoryQueue(queue.WithCapacity(total))
	for i, p := range participants {
		q.Enqueue(bctx, queue.Task{Index: i, Participant: p})
	}
	_ = q.Close()

	results := make(chan Result, total)
	workers := min(s.concurrency, total)
	finished := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		w := NewInMemoryWorker(q, s.resolver,
			WithName("worker-"+strconv.Itoa(i)),
			WithTaskTimeout(s.taskTimeout),
			WithLogger(s.logger),
		)
		go func() {
			defer func() { finished <- struct{}{} }()
			w.Run(bctx, results)
		}()
	}
	go func() {
		for i := 0; i < workers; i++ {
			<-finished
		}
		close(results)
	}()

	got := make([]bool, total)
	done := 0
	for r := range results {
		if got[r.Index] {
			continue
		}
		got[r.Index] = true
		res.Outcomes[r.Index] = r.Outcome
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	for i, p := range participants {
		if got[i] {
			continue
		}
		res.TimedOut = true
		metrics.RecordTaskTimeout()
		metrics.RecordResolution(string(resolve.StatusError), string(failure.KindTaskTimeout))
		res.Outcomes[i] = resolve.Fallback(p.ID, s.resolver.FallbackPoints(), failure.KindTaskTimeout, 0, bctx.Err())
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	fetchable := 0
	for i, out := range res.Outcomes {
		if out.Status == resolve.StatusSuccess {
			res.Succeeded++
		} else {
			res.Failed++
		}
		if participants[i].HasValidProfile() {
			fetchable++
		}
	}
	if res.Succeeded == 0 && fetchable > 0 {
		res.Status = BatchFailed
	}

	res.Duration = time.Since(start)
	metrics.RecordBatch(res.Status, float64(res.Duration.Milliseconds()))
	s.logger.Info(ctx, "batch finished",
		logger.Int("participants", total),
		logger.Int("succeeded", res.Succeeded),
		logger.Int("failed", res.Failed),
		logger.String("status", res.Status),
		logger.Bool("timedOut", res.TimedOut),
		logger.Duration("duration", res.Duration),
	)
	return res
}

// FallbackPoints returns the resolver's fallback value.
func (s *Scheduler) FallbackPoints() int {
	return s.resolver.FallbackPoints()
}
