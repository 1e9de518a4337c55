package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/arearisk/internal/adapters/mq/queue"
	worker "github.com/okian/arearisk/internal/adapters/mq/worker"
	"github.com/okian/arearisk/internal/domain/estimate"
	"github.com/okian/arearisk/internal/domain/interval"
	model "github.com/okian/arearisk/internal/domain/model"
	logging "github.com/okian/arearisk/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	jobs chan queue.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 16)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Job {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

func (mq *mockQueue) add(index int, id string, events, exposure int64) {
	mq.jobs <- queue.Job{
		Index: index,
		Observation: model.SanitizedObservation{
			AreaObservation: model.AreaObservation{AreaID: id, EventCount: events, ExposureCount: exposure},
			ZeroExposure:    exposure == 0,
		},
	}
}

type failingEstimator struct{}

func (failingEstimator) Estimate(context.Context, model.SanitizedObservation) (model.PosteriorEstimate, error) {
	return model.PosteriorEstimate{}, errors.New("estimator down")
}

// mockIntervals fails for the configured alpha values.
type mockIntervals struct {
	real   *interval.Calculator
	failAt map[float64]bool
}

func (m *mockIntervals) Interval(alpha, beta float64) (interval.Bounds, error) {
	if m.failAt[alpha] {
		return interval.Bounds{Iterations: 3}, &model.NumericalError{Alpha: alpha, Beta: beta, P: 0.975, Err: model.ErrNoConvergence}
	}
	return m.real.Interval(alpha, beta)
}

type result struct {
	est model.PosteriorEstimate
	err error
}

type mockSink struct {
	mu      sync.Mutex
	results map[int]result
}

func newMockSink() *mockSink {
	return &mockSink{results: make(map[int]result)}
}

func (s *mockSink) Put(_ context.Context, index int, est model.PosteriorEstimate, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[index] = result{est: est, err: err}
}

func (s *mockSink) get(index int) (result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[index]
	return r, ok
}

func (s *mockSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

var testPrior = model.PriorHyperparameters{Alpha0: 1, Beta0: 2000, Method: model.PriorExplicit}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a queue", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		calc, err := interval.New()
		convey.So(err, convey.ShouldBeNil)
		intervals := &mockIntervals{real: calc, failAt: map[float64]bool{}}
		sink := newMockSink()

		convey.Convey("When creating a worker with custom options", func() {
			w := worker.NewInMemoryWorker(q, estimate.NewBetaBinomial(testPrior), intervals, sink,
				worker.WithName("test-worker"),
				worker.WithLogger(logging.Get()),
			)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When it processes jobs until the queue closes", func() {
			w := worker.NewInMemoryWorker(q, estimate.NewBetaBinomial(testPrior), intervals, sink)
			intervals.failAt[testPrior.Alpha0+7] = true

			q.add(0, "a", 3, 1000)
			q.add(1, "zero", 0, 0)
			q.add(2, "degraded", 7, 500)
			_ = q.Close()
			w.Run(context.Background())

			convey.Convey("Then every slot is filled", func() {
				convey.So(sink.len(), convey.ShouldEqual, 3)
			})

			convey.Convey("Then a normal area gets a posterior and interval", func() {
				r, _ := sink.get(0)
				convey.So(r.err, convey.ShouldBeNil)
				convey.So(r.est.Alpha, convey.ShouldEqual, 4.0)
				convey.So(r.est.Beta, convey.ShouldEqual, 2997.0)
				convey.So(r.est.IntervalAvailable, convey.ShouldBeTrue)
				convey.So(r.est.LowerBound, convey.ShouldBeLessThan, r.est.Mean)
				convey.So(r.est.UpperBound, convey.ShouldBeGreaterThan, r.est.Mean)
			})

			convey.Convey("Then a zero-exposure area gets the prior mean", func() {
				r, _ := sink.get(1)
				convey.So(r.err, convey.ShouldBeNil)
				convey.So(r.est.ZeroExposure, convey.ShouldBeTrue)
				convey.So(r.est.Mean, convey.ShouldEqual, testPrior.Mean())
			})

			convey.Convey("Then an interval failure keeps the mean and names the area", func() {
				r, _ := sink.get(2)
				var ne *model.NumericalError
				convey.So(errors.As(r.err, &ne), convey.ShouldBeTrue)
				convey.So(ne.AreaID, convey.ShouldEqual, "degraded")
				convey.So(r.est.IntervalAvailable, convey.ShouldBeFalse)
				convey.So(r.est.Mean, convey.ShouldAlmostEqual, 8.0/2501.0, 1e-12)
			})
		})

		convey.Convey("When the estimator fails", func() {
			w := worker.NewInMemoryWorker(q, failingEstimator{}, intervals, sink)
			q.add(0, "x", 1, 10)
			_ = q.Close()
			w.Run(context.Background())

			convey.Convey("Then the error reaches the sink", func() {
				r, ok := sink.get(0)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(r.err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When shutting down a running worker", func() {
			w := worker.NewInMemoryWorker(q, estimate.NewBetaBinomial(testPrior), intervals, sink)
			go w.Run(context.Background())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := w.Shutdown(shutdownCtx)
			errAgain := w.Shutdown(shutdownCtx)

			convey.Convey("Then it stops gracefully and Shutdown is idempotent", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(errAgain, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			w := worker.NewInMemoryWorker(q, estimate.NewBetaBinomial(testPrior), intervals, sink)
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				w.Run(ctx)
				close(done)
			}()
			cancel()

			convey.Convey("Then Run returns", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					t.Fatal("worker did not stop")
				}
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool over the in-memory queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		calc, _ := interval.New()
		sink := newMockSink()

		convey.Convey("When created with a non-positive count", func() {
			pool := worker.NewPool(0, q, estimate.NewBetaBinomial(testPrior), calc, sink)

			convey.Convey("Then it defaults to at least one worker", func() {
				convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})

		convey.Convey("When many jobs flow through a bounded queue", func() {
			const n = 100
			pool := worker.NewPool(3, q, estimate.NewBetaBinomial(testPrior), calc, sink,
				worker.WithPoolLogger(logging.Named("test-pool")))
			ctx := context.Background()
			pool.Start(ctx)

			for i := 0; i < n; i++ {
				obs := model.SanitizedObservation{AreaObservation: model.AreaObservation{
					AreaID: fmt.Sprintf("area-%03d", i), EventCount: int64(i % 5), ExposureCount: 1000,
				}}
				convey.So(q.Enqueue(ctx, queue.Job{Index: i, Observation: obs}), convey.ShouldBeNil)
			}
			_ = q.Close()
			pool.Wait()

			convey.Convey("Then each job lands in its own slot", func() {
				convey.So(sink.len(), convey.ShouldEqual, n)
				for i := 0; i < n; i++ {
					r, ok := sink.get(i)
					convey.So(ok, convey.ShouldBeTrue)
					convey.So(r.est.AreaID, convey.ShouldEqual, fmt.Sprintf("area-%03d", i))
				}
			})
		})

		convey.Convey("When shutting down a started pool", func() {
			pool := worker.NewPool(2, q, estimate.NewBetaBinomial(testPrior), calc, sink)
			pool.Start(context.Background())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then workers stop and the queue is closed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}
