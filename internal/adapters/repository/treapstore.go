package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/okian/biotica/internal/domain/model"
	"github.com/okian/biotica/pkg/metrics"
)

// In-memory Store backed by a size-augmented treap over sites.
//
// Ordering: score DESC, then siteID ASC. "less" means ranks earlier, so an
// in-order traversal yields the leaderboard from best to worst.

// scoreScale converts scores to fixed point so equal scores compare equal.
const scoreScale = 1_000_000_000_000

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	if math.IsNaN(x) {
		return 0
	}
	scaled := math.Round(x * scoreScale)
	if scaled >= math.MaxInt64 {
		return scoreFP(math.MaxInt64)
	}
	if scaled <= math.MinInt64 {
		return scoreFP(math.MinInt64)
	}
	return scoreFP(scaled)
}

type node struct {
	id    string
	score scoreFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aScore scoreFP, aID string, bScore scoreFP, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score scoreFP) *node {
	if n == nil {
		return &node{id: id, score: score, prio: rand.Uint64(), size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score scoreFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// countAbove returns how many sites score strictly higher than score.
func countAbove(n *node, score scoreFP) int {
	count := 0
	for n != nil {
		if n.score > score {
			count += 1 + nsize(n.left)
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN visits up to limit sites in leaderboard order.
func collectTopN(n *node, limit int, visit func(id string)) int {
	if n == nil || limit <= 0 {
		return 0
	}
	seen := collectTopN(n.left, limit, visit)
	if seen >= limit {
		return seen
	}
	visit(n.id)
	seen++
	return seen + collectTopN(n.right, limit-seen, visit)
}

// TreapStore is the in-memory Store.
type TreapStore struct {
	mu           sync.RWMutex
	root         *node
	byID         map[string]model.Measurement
	history      map[string][]string // site -> measurement ids, oldest first
	ranked       map[string]scoreFP  // site -> score currently in the treap
	historyLimit int

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	closeOnce             sync.Once
}

// NewTreapStore constructs a treap store and starts its metrics refresher,
// which stops when ctx is done or Close is called.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		byID:                  make(map[string]model.Measurement),
		history:               make(map[string][]string),
		ranked:                make(map[string]scoreFP),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateStoreRecordsTotal(s.Count(ctx))
			}
		}
	}()
}

// Close stops the metrics refresher.
func (s *TreapStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Save implements Store.Save in O(log n) expected time plus the history insert.
func (s *TreapStore) Save(ctx context.Context, m model.Measurement) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if m.ID == "" || m.SiteID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	if s.staleLocked(m) {
		s.mu.Unlock()
		metrics.RecordErrorByComponent("repository", "stale")
		return ErrStale
	}
	if old, ok := s.byID[m.ID]; ok {
		s.unlinkLocked(old)
		s.relinkLocked(old.SiteID)
	}
	s.byID[m.ID] = m
	s.linkLocked(m)
	s.relinkLocked(m.SiteID)
	sites := len(s.ranked)
	s.mu.Unlock()

	metrics.UpdateStoreRecordsTotal(sites)
	return nil
}

// staleLocked reports whether m would be evicted as soon as it was linked:
// the site history is full and m is older than every retained measurement.
func (s *TreapStore) staleLocked(m model.Measurement) bool {
	if s.historyLimit == 0 {
		return false
	}
	var kept []string
	for _, id := range s.history[m.SiteID] {
		if id != m.ID {
			kept = append(kept, id)
		}
	}
	if len(kept) < s.historyLimit {
		return false
	}
	return m.TS.Before(s.byID[kept[0]].TS)
}

// linkLocked inserts m into its site history after every measurement with an
// equal or earlier timestamp.
func (s *TreapStore) linkLocked(m model.Measurement) {
	ids := s.history[m.SiteID]
	i := sort.Search(len(ids), func(i int) bool {
		return s.byID[ids[i]].TS.After(m.TS)
	})
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = m.ID

	if s.historyLimit > 0 && len(ids) > s.historyLimit {
		drop := len(ids) - s.historyLimit
		for _, id := range ids[:drop] {
			delete(s.byID, id)
		}
		ids = append([]string(nil), ids[drop:]...)
	}
	s.history[m.SiteID] = ids
}

func (s *TreapStore) unlinkLocked(m model.Measurement) {
	ids := s.history[m.SiteID]
	for i, id := range ids {
		if id == m.ID {
			s.history[m.SiteID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.history[m.SiteID]) == 0 {
		delete(s.history, m.SiteID)
	}
}

// relinkLocked puts the site's latest measurement into the treap.
func (s *TreapStore) relinkLocked(siteID string) {
	if old, ok := s.ranked[siteID]; ok {
		s.root = deleteNode(s.root, siteID, old)
		delete(s.ranked, siteID)
	}
	ids := s.history[siteID]
	if len(ids) == 0 {
		return
	}
	latest := s.byID[ids[len(ids)-1]]
	fp := toFixedPoint(latest.Result.Score)
	s.root = insert(s.root, siteID, fp)
	s.ranked[siteID] = fp
}

func (s *TreapStore) latestLocked(siteID string) (model.Measurement, bool) {
	ids := s.history[siteID]
	if len(ids) == 0 {
		return model.Measurement{}, false
	}
	return s.byID[ids[len(ids)-1]], true
}

// Get implements Store.Get.
func (s *TreapStore) Get(_ context.Context, id string) (model.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return model.Measurement{}, ErrNotFound
	}
	return m, nil
}

// History implements Store.History.
func (s *TreapStore) History(_ context.Context, siteID string, limit int) ([]model.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.history[siteID]
	if !ok {
		return nil, ErrNotFound
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	out := make([]model.Measurement, len(ids))
	for i, id := range ids {
		out[i] = s.byID[id]
	}
	return out, nil
}

// Rank implements Store.Rank in O(log n) expected time.
func (s *TreapStore) Rank(_ context.Context, siteID string) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	fp, ok := s.ranked[siteID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	latest, _ := s.latestLocked(siteID)
	e := entryOf(latest)
	e.Rank = countAbove(s.root, fp) + 1
	return e, nil
}

// TopN implements Store.TopN.
func (s *TreapStore) TopN(_ context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, min(n, len(s.ranked)))
	collectTopN(s.root, n, func(site string) {
		latest, _ := s.latestLocked(site)
		out = append(out, entryOf(latest))
	})
	assignRanks(out, 1)
	return out, nil
}

// Count implements Store.Count.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ranked)
}
