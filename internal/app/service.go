// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/biotica/internal/adapters/mq/queue"
	"github.com/okian/biotica/internal/adapters/mq/worker"
	"github.com/okian/biotica/internal/adapters/repository"
	"github.com/okian/biotica/internal/domain/dedupe"
	"github.com/okian/biotica/internal/domain/ibr"
	"github.com/okian/biotica/internal/domain/model"
	"github.com/okian/biotica/internal/domain/stats"
	"github.com/okian/biotica/pkg/logger"
	"github.com/okian/biotica/pkg/metrics"
)

// Service scores measurements, keeps the site ranking and runs diagnostics.
type Service struct {
	mu sync.RWMutex

	store     repository.Store
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	publisher worker.Publisher

	workerCount   int
	queueSize     int
	dedupeSize    int
	historyLimit  int
	storeDriver   string
	storeDSN      string
	tippingWindow int
	noiseSD       float64

	started   bool
	startedAt time.Time

	logger logger.Logger
}

// New constructs a Service with default configuration. Call Start before use.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:   runtime.NumCPU() * 2,
		queueSize:     10000,
		dedupeSize:    50000,
		storeDriver:   repository.DriverMemory,
		tippingWindow: stats.DefaultWindow,
		noiseSD:       stats.DefaultNoiseSD,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and starts the scoring workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	if s.store == nil {
		store, err := repository.NewStore(ctx, s.storeDriver, s.storeDSN, repository.WithHistoryLimit(s.historyLimit))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))

	opts := []worker.Option{worker.WithFailureHandler(s.onFailure)}
	if s.publisher != nil {
		opts = append(opts, worker.WithPublisher(s.publisher))
	}
	s.pool = worker.NewPool(s.workerCount, s.queue, worker.EngineScorer, s.store, opts...)
	s.pool.Start(ctx)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "service started",
		logger.String("store", s.storeDriver),
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// onFailure forgets a submission that could not be stored so the client can
// retry it.
func (s *Service) onFailure(ctx context.Context, j queue.Job, err error) { //nolint:gocritic // hugeParam: matches worker callback
	s.deduper.Unrecord(ctx, j.ID)
	s.logger.Warn(ctx, "submission dropped", logger.String("measurement_id", j.ID), logger.Error(err))
}

// Stop drains the queue, stops the workers and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	s.store = nil
	s.started = false
	s.logger.Info(ctx, "service stopped")
	return errors.Join(errs...)
}

func (s *Service) running() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// Compute validates params, computes the index and, when id is set, stores
// the result for siteID (defaulting to id) and publishes it. The measurement
// is stamped with ts, or the current time when ts is zero.
func (s *Service) Compute(ctx context.Context, id, siteID string, params ibr.Parameters, ts time.Time) (model.Measurement, error) {
	start := time.Now()
	if err := ibr.ValidateStrict(params); err != nil {
		metrics.RecordValidationFailure()
		return model.Measurement{}, err
	}
	res := ibr.Compute(params)
	metrics.RecordComputeLatency(float64(time.Since(start).Microseconds()) / 1000)
	metrics.RecordIBRComputation(string(res.Classification))

	m := model.Measurement{
		ID:         id,
		SiteID:     siteID,
		Parameters: params,
		Result:     res,
		TS:         ts.UTC(),
	}
	if ts.IsZero() {
		m.TS = time.Now().UTC()
	}
	if id == "" {
		return m, nil
	}
	if m.SiteID == "" {
		m.SiteID = id
	}

	store, err := s.running()
	if err != nil {
		return model.Measurement{}, err
	}
	if err := store.Save(ctx, m); err != nil {
		return model.Measurement{}, fmt.Errorf("store measurement %s: %w", id, err)
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, m)
	}
	return m, nil
}

// Submit validates and queues a measurement for asynchronous scoring. A
// missing id is generated and a missing site defaults to the id. A submission
// whose id was already accepted is reported as a duplicate. ErrBackpressure is
// returned when the queue is full.
func (s *Service) Submit(ctx context.Context, sub model.Submission) (model.Receipt, error) { //nolint:gocritic // hugeParam: value semantics
	s.mu.RLock()
	started, q, d := s.started, s.queue, s.deduper
	s.mu.RUnlock()
	if !started {
		return model.Receipt{}, ErrNotStarted
	}

	if err := ibr.ValidateStrict(sub.Parameters); err != nil {
		metrics.RecordValidationFailure()
		return model.Receipt{}, err
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.SiteID == "" {
		sub.SiteID = sub.ID
	}
	if sub.TS.IsZero() {
		sub.TS = time.Now().UTC()
	}
	receipt := model.Receipt{MeasurementID: sub.ID, SiteID: sub.SiteID, Status: model.StatusAccepted}

	if d.SeenAndRecord(ctx, sub.ID) {
		metrics.RecordMeasurementDuplicate()
		receipt.Status = model.StatusDuplicate
		receipt.Duplicate = true
		return receipt, nil
	}
	if err := q.TryEnqueue(ctx, sub); err != nil {
		d.Unrecord(ctx, sub.ID)
		return model.Receipt{}, fmt.Errorf("%w: %v", ErrBackpressure, err)
	}
	return receipt, nil
}

// Measurement returns a stored measurement.
func (s *Service) Measurement(ctx context.Context, id string) (model.Measurement, error) {
	store, err := s.running()
	if err != nil {
		return model.Measurement{}, err
	}
	return store.Get(ctx, id)
}

// Rank returns the leaderboard entry of a site.
func (s *Service) Rank(ctx context.Context, siteID string) (repository.Entry, error) {
	store, err := s.running()
	if err != nil {
		return repository.Entry{}, err
	}
	return store.Rank(ctx, siteID)
}

// TopN returns the n best ranked sites.
func (s *Service) TopN(ctx context.Context, n int) ([]repository.Entry, error) {
	store, err := s.running()
	if err != nil {
		return nil, err
	}
	return store.TopN(ctx, n)
}

// History returns up to limit recent measurements of a site. When enough
// scores exist the tipping-point check runs over them with window, or the
// configured default when window is zero.
func (s *Service) History(ctx context.Context, siteID string, limit, window int) (model.SiteHistory, error) {
	store, err := s.running()
	if err != nil {
		return model.SiteHistory{}, err
	}
	ms, err := store.History(ctx, siteID, limit)
	if err != nil {
		return model.SiteHistory{}, err
	}
	h := model.SiteHistory{SiteID: siteID, Measurements: ms, Scores: make([]float64, len(ms))}
	for i, m := range ms {
		h.Scores[i] = m.Score()
	}

	if window <= 0 {
		window = s.tippingWindow
	}
	tp, err := s.DetectTippingPoint(ctx, h.Scores, window, true)
	switch {
	case err == nil:
		h.Tipping = &tp
	case errors.Is(err, stats.ErrInsufficientData), errors.Is(err, stats.ErrInvalidWindow):
		s.log().Debug(ctx, "tipping-point check skipped", logger.String("site_id", siteID), logger.Error(err))
	default:
		return model.SiteHistory{}, err
	}
	return h, nil
}

// Summary aggregates the latest result of every ranked site.
func (s *Service) Summary(ctx context.Context) (ibr.Summary, error) {
	store, err := s.running()
	if err != nil {
		return ibr.Summary{}, err
	}
	n := store.Count(ctx)
	if n == 0 {
		return ibr.Summary{}, ibr.ErrEmptyBatch
	}
	entries, err := store.TopN(ctx, n)
	if err != nil {
		return ibr.Summary{}, err
	}
	results := make([]ibr.Result, len(entries))
	for i, e := range entries {
		results[i] = ibr.Result{Score: e.Score, Classification: e.Classification}
	}
	return ibr.Summarize(results)
}

// Describe summarises every column of t.
func (s *Service) Describe(_ context.Context, t *stats.Table) []stats.Summary {
	defer s.observe("describe", time.Now())
	return stats.Describe(t)
}

// Correlate computes the correlation and p-value matrices of t.
func (s *Service) Correlate(_ context.Context, t *stats.Table, method stats.Method) (stats.CorrelationMatrix, error) {
	defer s.observe("correlation", time.Now())
	return stats.Correlate(t, method)
}

// EstimateWeights re-estimates parameter weights against outcome. Bayesian
// estimation centres each canonical parameter's prior on its current weight.
func (s *Service) EstimateWeights(_ context.Context, t *stats.Table, outcome string, method stats.Estimator) (stats.WeightEstimate, error) {
	defer s.observe("weights", time.Now())
	return stats.EstimateWeights(t, outcome, method,
		stats.WithPriors(CanonicalPriors()),
		stats.WithNoiseSD(s.noiseSD),
	)
}

// DetectTippingPoint runs the early-warning check over series. A window of
// zero uses the configured default.
func (s *Service) DetectTippingPoint(_ context.Context, series []float64, window int, detrend bool) (stats.TippingResult, error) {
	defer s.observe("tipping_point", time.Now())
	if window <= 0 {
		window = s.tippingWindow
	}
	return stats.DetectTippingPoint(series, window, stats.WithDetrend(detrend))
}

// Sensitivity sweeps one parameter, or every canonical parameter when code
// is empty.
func (s *Service) Sensitivity(_ context.Context, base ibr.Parameters, code ibr.Code, steps int) ([]ibr.SensitivityResult, error) {
	defer s.observe("sensitivity", time.Now())
	if err := ibr.ValidateStrict(base); err != nil {
		metrics.RecordValidationFailure()
		return nil, err
	}
	if code == "" {
		return ibr.SensitivityAll(base, steps), nil
	}
	r, err := ibr.Sensitivity(base, code, steps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return []ibr.SensitivityResult{r}, nil
}

func (s *Service) observe(kind string, start time.Time) {
	metrics.RecordDiagnostic(kind, float64(time.Since(start).Microseconds())/1000)
}

func (s *Service) log() logger.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.logger == nil {
		return logger.Get()
	}
	return s.logger
}

// CanonicalPriors centres a Normal prior on each canonical weight with the
// canonical prior standard deviation.
func CanonicalPriors() map[string]stats.Prior {
	sd := ibr.PriorSD()
	out := make(map[string]stats.Prior, len(sd))
	for code, w := range ibr.Weights() {
		out[string(code)] = stats.Prior{Mean: w, SD: sd[code]}
	}
	return out
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	out := map[string]interface{}{
		"started":       s.started,
		"workerCount":   s.workerCount,
		"queueSize":     s.queueSize,
		"dedupeSize":    s.dedupeSize,
		"storeDriver":   s.storeDriver,
		"tippingWindow": s.tippingWindow,
	}
	if s.started {
		sites := s.store.Count(ctx)
		out["queueLength"] = s.queue.Len(ctx)
		out["dedupeEntries"] = s.deduper.Size()
		out["totalSites"] = sites
		out["workers"] = s.pool.Size()
		out["busyWorkers"] = s.pool.Busy()
		out["processed"] = s.pool.Processed()
		out["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
		metrics.UpdateStoreRecordsTotal(sites)
	}
	return out
}
