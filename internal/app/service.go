// Package service runs a batch of area observations through sanitizing,
// the shared prior and the estimation worker pool.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/okian/arearisk/internal/adapters/mq/queue"
	workerpool "github.com/okian/arearisk/internal/adapters/mq/worker"
	"github.com/okian/arearisk/internal/adapters/table"
	"github.com/okian/arearisk/internal/domain/dedupe"
	"github.com/okian/arearisk/internal/domain/estimate"
	"github.com/okian/arearisk/internal/domain/interval"
	"github.com/okian/arearisk/internal/domain/model"
	"github.com/okian/arearisk/internal/domain/sanitize"
	"github.com/okian/arearisk/pkg/logger"
	"github.com/okian/arearisk/pkg/metrics"
)

const defaultQueueSize = 1024

// Service estimates every area of a table against one prior.
// A Service holds only configuration and may run several batches.
type Service struct {
	workerCount  int
	queueSize    int
	intervalOpts []interval.Option
	logger       logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of estimation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithIntervalOptions configures the credible interval calculator.
func WithIntervalOptions(opts ...interval.Option) Option {
	return func(s *Service) {
		s.intervalOpts = append(s.intervalOpts, opts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report is the outcome of one batch. Estimates follow input order.
type Report struct {
	RunID     string
	Prior     model.PriorHyperparameters
	LowerTail float64
	UpperTail float64
	Received  int
	Estimates []model.PosteriorEstimate
	Rejected  []model.Rejection
	Degraded  []model.Rejection
	Duration  time.Duration
}

// Records scales every estimate for output.
func (r *Report) Records(scaleFactor float64) []model.OutputRecord {
	out := make([]model.OutputRecord, len(r.Estimates))
	for i, e := range r.Estimates {
		out[i] = e.Record(scaleFactor)
	}
	return out
}

// ZeroExposure counts estimates taken from the prior alone.
func (r *Report) ZeroExposure() int {
	n := 0
	for _, e := range r.Estimates {
		if e.ZeroExposure {
			n++
		}
	}
	return n
}

// Manifest summarizes the run for the manifest file.
func (r *Report) Manifest(scaleFactor float64) table.Manifest {
	return table.Manifest{
		RunID:       r.RunID,
		GeneratedAt: time.Now().UTC(),
		Prior:       r.Prior,
		PriorMean:   r.Prior.Mean(),
		LowerTail:   r.LowerTail,
		UpperTail:   r.UpperTail,
		ScaleFactor: scaleFactor,
		Counts: table.ManifestCounts{
			Received:     r.Received,
			Estimated:    len(r.Estimates),
			Rejected:     len(r.Rejected),
			Degraded:     len(r.Degraded),
			ZeroExposure: r.ZeroExposure(),
		},
		Rejected: r.Rejected,
		Degraded: r.Degraded,
	}
}

// Run estimates rows in memory. Row numbers are positions in rows, from 1.
func (s *Service) Run(ctx context.Context, prior model.PriorHyperparameters, rows []model.AreaObservation) (*Report, error) {
	numbered := make([]table.Row, len(rows))
	for i, obs := range rows {
		numbered[i] = table.Row{Number: i + 1, AreaObservation: obs}
	}
	return s.run(ctx, prior, numbered, nil)
}

// RunTable estimates a table read from a file, carrying over the rows the
// reader already rejected.
func (s *Service) RunTable(ctx context.Context, prior model.PriorHyperparameters, t *table.Table) (*Report, error) {
	return s.run(ctx, prior, t.Rows, t.Rejected)
}

type accepted struct {
	row int
	obs model.SanitizedObservation
}

func (s *Service) run(ctx context.Context, prior model.PriorHyperparameters, rows []table.Row, preRejected []model.Rejection) (*Report, error) { //nolint:funlen // linear batch pipeline
	start := time.Now()
	if err := validatePrior(prior); err != nil {
		return nil, err
	}
	calc, err := interval.New(s.intervalOpts...)
	if err != nil {
		return nil, err
	}

	log := s.logger
	if log == nil {
		log = logger.Get().Named("service")
	}
	runID := uuid.NewString()
	log = log.With(logger.String("run_id", runID))

	lo, hi := calc.Tails()
	report := &Report{
		RunID:     runID,
		Prior:     prior,
		LowerTail: lo,
		UpperTail: hi,
		Received:  len(rows) + len(preRejected),
	}
	metrics.UpdatePrior(prior.Alpha0, prior.Beta0)
	for _, r := range preRejected {
		metrics.RecordAreaReceived()
		metrics.RecordAreaRejected(rejectionLabel(model.ErrMalformedRow))
		report.Rejected = append(report.Rejected, r)
	}

	log.Info(ctx, "batch started",
		logger.Int("rows", report.Received),
		logger.Float64("alpha0", prior.Alpha0),
		logger.Float64("beta0", prior.Beta0),
		logger.String("prior_method", string(prior.Method)),
	)

	deduper := dedupe.NewInMemoryDeduper(dedupe.WithExpectedSize(len(rows)))
	jobs := make([]accepted, 0, len(rows))
	for _, row := range rows {
		metrics.RecordAreaReceived()
		if deduper.SeenAndRecord(ctx, row.AreaID) {
			report.reject(row.AreaID, row.Number, &model.DataError{AreaID: row.AreaID, Row: row.Number, Err: model.ErrDuplicateArea})
			continue
		}
		obs, err := sanitize.Observation(row.AreaObservation, row.Number)
		if err != nil {
			deduper.Unrecord(ctx, row.AreaID)
			report.reject(row.AreaID, row.Number, err)
			continue
		}
		jobs = append(jobs, accepted{row: row.Number, obs: obs})
	}

	results := make(resultSlots, len(jobs))
	q := eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	pool := workerpool.NewPool(s.workerCount, q, estimate.NewBetaBinomial(prior), calc, results,
		workerpool.WithPoolLogger(log.Named("pool")))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pool.Start(runCtx)

	for i, j := range jobs {
		if err := q.Enqueue(runCtx, eventqueue.Job{Index: i, Observation: j.obs}); err != nil {
			cancel()
			_ = q.Close()
			pool.Wait()
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
	}
	_ = q.Close()
	pool.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	report.Estimates = make([]model.PosteriorEstimate, 0, len(jobs))
	for i, slot := range results {
		var ne *model.NumericalError
		switch {
		case !slot.done:
			return nil, fmt.Errorf("run %s: area %q was not estimated", runID, jobs[i].obs.AreaID)
		case slot.err == nil:
			report.Estimates = append(report.Estimates, slot.est)
		case errors.As(slot.err, &ne):
			report.Estimates = append(report.Estimates, slot.est)
			report.Degraded = append(report.Degraded, model.Reject(ne.AreaID, jobs[i].row, slot.err))
		default:
			report.reject(jobs[i].obs.AreaID, jobs[i].row, slot.err)
		}
	}

	sort.SliceStable(report.Rejected, func(a, b int) bool {
		return report.Rejected[a].Row < report.Rejected[b].Row
	})
	report.Duration = time.Since(start)
	metrics.RecordRunCompleted(report.Duration)

	log.Info(ctx, "batch finished",
		logger.Int("estimated", len(report.Estimates)),
		logger.Int("rejected", len(report.Rejected)),
		logger.Int("degraded", len(report.Degraded)),
		logger.Int("zero_exposure", report.ZeroExposure()),
		logger.String("duration", report.Duration.String()),
	)
	return report, nil
}

func (r *Report) reject(areaID string, row int, err error) {
	metrics.RecordAreaRejected(rejectionLabel(err))
	r.Rejected = append(r.Rejected, model.Reject(areaID, row, err))
}

// validatePrior rejects shapes no Beta distribution has.
func validatePrior(p model.PriorHyperparameters) error {
	for _, v := range []float64{p.Alpha0, p.Beta0} {
		if !(v > 0) || math.IsInf(v, 0) {
			return &model.ConfigError{
				Field: "prior",
				Err:   fmt.Errorf("%w: Beta(%g, %g)", model.ErrInvalidAggregate, p.Alpha0, p.Beta0),
			}
		}
	}
	return nil
}

// rejectionLabel maps an error to a bounded metric label.
func rejectionLabel(err error) string {
	switch {
	case errors.Is(err, model.ErrDuplicateArea):
		return "duplicate"
	case errors.Is(err, model.ErrNegativeCount):
		return "negative"
	case errors.Is(err, model.ErrEventsExceedExposure):
		return "events_exceed_exposure"
	case errors.Is(err, model.ErrEventsWithoutExposure):
		return "events_without_exposure"
	case errors.Is(err, model.ErrMalformedRow):
		return "malformed"
	default:
		return "other"
	}
}

type resultSlot struct {
	est  model.PosteriorEstimate
	err  error
	done bool
}

// resultSlots is written by index from the worker pool; each index has
// exactly one writer.
type resultSlots []resultSlot

func (s resultSlots) Put(_ context.Context, index int, est model.PosteriorEstimate, err error) {
	s[index] = resultSlot{est: est, err: err, done: true}
}
