package worker_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	queue "github.com/okian/pointsledger/internal/adapters/mq/queue"
	worker "github.com/okian/pointsledger/internal/adapters/mq/worker"
	"github.com/okian/pointsledger/internal/domain/failure"
	model "github.com/okian/pointsledger/internal/domain/model"
	"github.com/okian/pointsledger/internal/domain/resolve"
	"github.com/smartystreets/goconvey/convey"
)

// mockResolver returns ID*10 points after an optional per-participant delay
// and tracks the peak number of concurrent calls.
type mockResolver struct {
	fallback int
	delay    map[int64]time.Duration
	fail     map[int64]bool

	inflight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (m *mockResolver) Resolve(ctx context.Context, p model.Participant) resolve.Outcome {
	m.calls.Add(1)
	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		cur := m.peak.Load()
		if n <= cur || m.peak.CompareAndSwap(cur, n) {
			break
		}
	}

	d := m.delay[p.ID]
	if d == 0 {
		d = 5 * time.Millisecond
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
		return resolve.Fallback(p.ID, m.fallback, failure.KindNetworkTransient, 1, ctx.Err())
	}

	if m.fail[p.ID] {
		return resolve.Fallback(p.ID, m.fallback, failure.KindNetworkPermanent, 4, &failure.StatusError{Code: 500})
	}
	return resolve.Outcome{ParticipantID: p.ID, Points: int(p.ID) * 10, Status: resolve.StatusSuccess, Attempts: 1}
}

func (m *mockResolver) FallbackPoints() int { return m.fallback }

func participants(n int) []model.Participant {
	ps := make([]model.Participant, n)
	for i := range ps {
		ps[i] = model.Participant{ID: int64(i + 1), Name: "p", ProfileRef: "https://example.com/p/" + string(rune('a'+i))}
	}
	return ps
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker draining a closed queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(3))
		ctx := context.Background()
		for i, p := range participants(3) {
			q.Enqueue(ctx, queue.Task{Index: i, Participant: p})
		}
		_ = q.Close()

		r := &mockResolver{}
		w := worker.NewInMemoryWorker(q, r, worker.WithName("w1"))
		out := make(chan worker.Result, 3)
		w.Run(ctx, out)
		close(out)

		convey.Convey("Then one result per task is posted with its index", func() {
			seen := map[int]int{}
			for res := range out {
				seen[res.Index] = res.Outcome.Points
			}
			convey.So(seen, convey.ShouldResemble, map[int]int{0: 10, 1: 20, 2: 30})
		})
	})

	convey.Convey("Given a task slower than the task timeout", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		ctx := context.Background()
		q.Enqueue(ctx, queue.Task{Index: 0, Participant: model.Participant{ID: 1}})
		_ = q.Close()

		r := &mockResolver{fallback: 1, delay: map[int64]time.Duration{1: time.Second}}
		w := worker.NewInMemoryWorker(q, r, worker.WithTaskTimeout(20*time.Millisecond))
		out := make(chan worker.Result, 1)

		start := time.Now()
		w.Run(ctx, out)

		convey.Convey("Then the worker moves on with a fallback", func() {
			res := <-out
			convey.So(time.Since(start), convey.ShouldBeLessThan, 500*time.Millisecond)
			convey.So(res.Outcome.Status, convey.ShouldEqual, resolve.StatusError)
			convey.So(res.Outcome.Points, convey.ShouldEqual, 1)
			convey.So(res.Outcome.Reason, convey.ShouldEqual, failure.KindTaskTimeout)
		})
	})
}

func TestSchedulerRunBatch(t *testing.T) {
	convey.Convey("Given a scheduler with concurrency 3", t, func() {
		r := &mockResolver{}
		s := worker.NewScheduler(r, worker.WithConcurrency(3))
		ps := participants(10)

		var (
			mu      sync.Mutex
			reports []int
		)
		res := s.RunBatch(context.Background(), ps, func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			reports = append(reports, done)
			convey.So(total, convey.ShouldEqual, 10)
		})

		convey.Convey("Then every participant has an outcome in submission order", func() {
			convey.So(len(res.Outcomes), convey.ShouldEqual, 10)
			for i, out := range res.Outcomes {
				convey.So(out.ParticipantID, convey.ShouldEqual, ps[i].ID)
				convey.So(out.Points, convey.ShouldEqual, int(ps[i].ID)*10)
			}
			convey.So(res.Succeeded, convey.ShouldEqual, 10)
			convey.So(res.Status, convey.ShouldEqual, worker.BatchCompleted)
		})

		convey.Convey("Then no more than 3 tasks ran at once", func() {
			convey.So(r.peak.Load(), convey.ShouldBeLessThanOrEqualTo, 3)
			convey.So(r.calls.Load(), convey.ShouldEqual, 10)
		})

		convey.Convey("Then progress counted up to the total", func() {
			convey.So(reports, convey.ShouldResemble, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
		})
	})

	convey.Convey("Given a batch where every fetch fails", t, func() {
		r := &mockResolver{fallback: 0, fail: map[int64]bool{1: true, 2: true}}
		res := worker.NewScheduler(r).RunBatch(context.Background(), participants(2), nil)

		convey.Convey("Then the batch is reported failed with fallback outcomes", func() {
			convey.So(res.Status, convey.ShouldEqual, worker.BatchFailed)
			convey.So(res.Failed, convey.ShouldEqual, 2)
			convey.So(len(res.Outcomes), convey.ShouldEqual, 2)
		})
	})

	convey.Convey("Given a batch of placeholder profiles only", t, func() {
		r := &mockResolver{fail: map[int64]bool{1: true}}
		ps := []model.Participant{{ID: 1, ProfileRef: model.PlaceholderRef("x")}}
		res := worker.NewScheduler(r).RunBatch(context.Background(), ps, nil)

		convey.Convey("Then the batch still completes", func() {
			convey.So(res.Status, convey.ShouldEqual, worker.BatchCompleted)
			convey.So(res.Failed, convey.ShouldEqual, 1)
		})
	})

	convey.Convey("Given a batch deadline shorter than the slowest tasks", t, func() {
		r := &mockResolver{fallback: 1, delay: map[int64]time.Duration{
			3: 5 * time.Second, 4: 5 * time.Second, 5: 5 * time.Second,
		}}
		s := worker.NewScheduler(r,
			worker.WithConcurrency(2),
			worker.WithBatchTimeout(100*time.Millisecond),
			worker.WithSchedulerTaskTimeout(10*time.Second),
		)

		start := time.Now()
		res := s.RunBatch(context.Background(), participants(6), nil)

		convey.Convey("Then the batch ends on time and synthesizes fallbacks", func() {
			convey.So(time.Since(start), convey.ShouldBeLessThan, 2*time.Second)
			convey.So(len(res.Outcomes), convey.ShouldEqual, 6)
			convey.So(res.Outcomes[0].Points, convey.ShouldEqual, 10)
			convey.So(res.Outcomes[1].Points, convey.ShouldEqual, 20)
			for _, out := range res.Outcomes[2:] {
				convey.So(out.Status, convey.ShouldEqual, resolve.StatusError)
				convey.So(out.Points, convey.ShouldEqual, 1)
			}
			convey.So(res.TimedOut, convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given an empty batch", t, func() {
		res := worker.NewScheduler(&mockResolver{}).RunBatch(context.Background(), nil, nil)

		convey.Convey("Then it completes with no outcomes", func() {
			convey.So(res.Outcomes, convey.ShouldBeEmpty)
			convey.So(res.Status, convey.ShouldEqual, worker.BatchCompleted)
		})
	})
}
