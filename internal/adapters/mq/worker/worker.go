package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/biotica/internal/adapters/mq/queue"
	"github.com/okian/biotica/internal/domain/ibr"
	"github.com/okian/biotica/internal/domain/model"
	"github.com/okian/biotica/pkg/logger"
	"github.com/okian/biotica/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Scorer turns a parameter set into a result.
type Scorer interface {
	Score(ctx context.Context, params ibr.Parameters) (ibr.Result, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, params ibr.Parameters) (ibr.Result, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, params ibr.Parameters) (ibr.Result, error) {
	return f(ctx, params)
}

// EngineScorer validates the parameters strictly and computes the index.
var EngineScorer = ScorerFunc(func(_ context.Context, params ibr.Parameters) (ibr.Result, error) {
	if err := ibr.ValidateStrict(params); err != nil {
		return ibr.Result{}, err
	}
	return ibr.Compute(params), nil
})

// Saver persists scored measurements.
type Saver interface {
	Save(ctx context.Context, m model.Measurement) error
}

// Publisher receives every measurement after it has been stored.
type Publisher interface {
	Publish(ctx context.Context, m model.Measurement)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the loop to exit.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	scorer    Scorer
	saver     Saver
	publisher Publisher
	onFailure func(ctx context.Context, j queue.Job, err error)
	name      string

	busy      *atomic.Int64
	processed *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from q.
func NewInMemoryWorker(q Queue, scorer Scorer, saver Saver, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		scorer:    scorer,
		saver:     saver,
		name:      "worker",
		busy:      new(atomic.Int64),
		processed: new(atomic.Int64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	if w.scorer == nil {
		w.scorer = EngineScorer
	}
	return w
}

// Run implements Worker.Run.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "error processing measurement", logger.String("measurement_id", j.ID), logger.Error(err))
				if w.onFailure != nil {
					w.onFailure(ctx, j, err)
				}
			}
		}
	}
}

// Shutdown implements Worker.Shutdown.
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

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) error { //nolint:gocritic // hugeParam: jobs are passed by value through the channel
	w.busy.Add(1)
	defer w.busy.Add(-1)

	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	res, err := w.scorer.Score(ctx, j.Parameters)
	metrics.RecordComputeLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordValidationFailure()
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "scoring_error")
		return fmt.Errorf("failed to score measurement %s: %w", j.ID, err)
	}
	metrics.RecordIBRComputation(string(res.Classification))

	ts := j.TS
	if ts.IsZero() {
		ts = j.Enqueued
	}
	m := model.Measurement{
		ID:         j.ID,
		SiteID:     j.SiteID,
		Parameters: j.Parameters,
		Result:     res,
		TS:         ts,
	}
	if err := w.saver.Save(ctx, m); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "store_error")
		return fmt.Errorf("failed to store measurement %s: %w", j.ID, err)
	}

	metrics.RecordMeasurementProcessed()
	w.processed.Add(1)
	if w.publisher != nil {
		w.publisher.Publish(ctx, m)
	}
	w.logger.Debug(ctx, "measurement stored",
		logger.String("measurement_id", m.ID),
		logger.String("site_id", m.SiteID),
		logger.Float64("ibr", res.Score),
		logger.String("classification", string(res.Classification)),
	)
	return nil
}

// Pool runs several workers on one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	busy      atomic.Int64
	processed atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once

	logger logger.Logger
}

// NewPool creates workerCount workers; a count below one uses
// 2 × runtime.NumCPU().
func NewPool(workerCount int, q Queue, scorer Scorer, saver Saver, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		w := NewInMemoryWorker(q, scorer, saver, append(opts, WithName("worker-"+strconv.Itoa(i)))...)
		w.busy = &p.busy
		w.processed = &p.processed
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Busy returns how many workers are processing a job right now.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Processed returns the number of measurements stored by the pool.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start starts all workers and the metrics refresher.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			busy := p.Busy()
			metrics.UpdateWorkerActiveCount(busy)
			metrics.UpdateWorkerIdleCount(len(p.workers) - busy)
		}
	}
}

// Shutdown closes the queue when it supports it, so that pending jobs drain,
// and waits for every worker to exit.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.shutdownOnce.Do(func() { close(p.shutdown) })

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("pool shutdown: %w", shutdownCtx.Err())
		}
	}
	return nil
}
