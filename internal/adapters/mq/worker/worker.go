// Package worker runs per-area estimation jobs off the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/arearisk/internal/domain/interval"
	"github.com/okian/arearisk/internal/domain/model"
	"github.com/okian/arearisk/pkg/logger"
	"github.com/okian/arearisk/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Job abstracts what workers read off the queue.
type Job = model.AreaJob

// Estimator computes the posterior for one area.
type Estimator interface {
	Estimate(ctx context.Context, obs model.SanitizedObservation) (model.PosteriorEstimate, error)
}

// IntervalCalculator computes credible bounds for a Beta posterior.
type IntervalCalculator interface {
	Interval(alpha, beta float64) (interval.Bounds, error)
}

// Sink receives one result per job. Index is the job's result slot, so
// concurrent Puts never target the same slot.
type Sink interface {
	Put(ctx context.Context, index int, est model.PosteriorEstimate, err error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes area jobs.
type Worker interface {
	// Run starts the worker loop until the queue drains or ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	estimator Estimator
	intervals IntervalCalculator
	sink      Sink
	name      string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, est Estimator, iv IntervalCalculator, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		estimator: est,
		intervals: iv,
		sink:      sink,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Debug(ctx, "area degraded", logger.String("area_id", job.Observation.AreaID), logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process estimates one area and hands the result to the sink. An interval
// failure still delivers the posterior mean with IntervalAvailable false.
func (w *InMemoryWorker) process(ctx context.Context, job Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordEstimationLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	obs := job.Observation
	est, err := w.estimator.Estimate(ctx, obs)
	if err != nil {
		metrics.RecordErrorByComponent("worker", "estimate")
		w.sink.Put(ctx, job.Index, model.PosteriorEstimate{}, err)
		return fmt.Errorf("estimate area %q: %w", obs.AreaID, err)
	}
	metrics.RecordAreaEstimated()
	if obs.ZeroExposure {
		metrics.RecordZeroExposure()
	}

	bounds, err := w.intervals.Interval(est.Alpha, est.Beta)
	metrics.RecordQuantileIterations(bounds.Iterations)
	if err != nil {
		var ne *model.NumericalError
		if errors.As(err, &ne) {
			ne.AreaID = obs.AreaID
		}
		metrics.RecordAreaDegraded()
		metrics.RecordErrorByComponent("worker", model.KindNumerical)
		w.logger.Warn(ctx, "credible interval unavailable",
			logger.String("area_id", obs.AreaID),
			logger.Float64("alpha", est.Alpha),
			logger.Float64("beta", est.Beta),
			logger.Error(err),
		)
		w.sink.Put(ctx, job.Index, est, err)
		return err
	}

	est.LowerBound = bounds.Lower
	est.UpperBound = bounds.Upper
	est.IntervalAvailable = true
	w.sink.Put(ctx, job.Index, est, nil)
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	wg      sync.WaitGroup

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers sharing one estimator,
// interval calculator and sink. workerCount < 1 means one per CPU.
func NewPool(workerCount int, q Queue, est Estimator, iv IntervalCalculator, sink Sink, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
	}
	for _, opt := range opts {
		opt(pool)
	}
	if pool.logger == nil {
		pool.logger = logger.Get().Named("worker-pool")
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(q, est, iv, sink,
			WithLogger(pool.logger),
			WithName("worker-"+strconv.Itoa(i)),
		)
	}
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	metrics.UpdateWorkerActiveCount(len(p.workers))
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned, which happens once the
// queue is closed and drained or the Start context is canceled.
func (p *Pool) Wait() {
	p.wg.Wait()
	metrics.UpdateWorkerActiveCount(0)
}

// Shutdown closes the queue if it can be closed, stops all workers and
// waits for them up to ctx or the pool timeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var errs []error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			errs = append(errs, err)
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return errors.Join(errs...)
}
