package profile

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kalambet/cinetrait/internal/analysis"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	result   analysis.Result
	cachedAt time.Time
}

// Manager is a read-through cache in front of an analysis.ResultStore. It
// implements analysis.ResultStore itself so the analyzer writes through it,
// which keeps a user's cached result fresh after every successful analysis.
type Manager struct {
	store analysis.ResultStore
	clock Clock
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store analysis.ResultStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store analysis.ResultStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// GetResult returns the user's stored result from cache or the store.
// Misses are not cached.
func (m *Manager) GetResult(ctx context.Context, userID string) (analysis.Result, error) {
	m.mu.RLock()
	e, ok := m.cache[userID]
	m.mu.RUnlock()
	if ok && m.fresh(e) {
		return e.result, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if e, ok := m.cache[userID]; ok && m.fresh(e) {
		return e.result, nil
	}

	r, err := m.store.GetResult(ctx, userID)
	if err != nil {
		return analysis.Result{}, err
	}
	m.cache[userID] = cacheEntry{result: r, cachedAt: m.clock.Now()}
	return r, nil
}

// UpsertResult writes through to the store and caches the stored row.
func (m *Manager) UpsertResult(ctx context.Context, r analysis.Result) (analysis.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.store.UpsertResult(ctx, r)
	if err != nil {
		delete(m.cache, r.UserID)
		return analysis.Result{}, err
	}
	m.cache[r.UserID] = cacheEntry{result: stored, cachedAt: m.clock.Now()}
	return stored, nil
}

// Invalidate drops the cached result for userID, e.g. after the user is deleted.
func (m *Manager) Invalidate(userID string) {
	m.mu.Lock()
	delete(m.cache, userID)
	m.mu.Unlock()
}

// GetProfile returns the user's latest result with its dominant trait and top
// values.
func (m *Manager) GetProfile(ctx context.Context, userID string) (Profile, error) {
	r, err := m.GetResult(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return Build(r), nil
}

func (m *Manager) fresh(e cacheEntry) bool {
	return m.clock.Now().Before(e.cachedAt.Add(m.ttl))
}

// Build derives a Profile from a result.
func Build(r analysis.Result) Profile {
	return Profile{
		Result:        r,
		DominantTrait: DominantTrait(r.Traits),
		TopValues:     TopValues(r.Values, DefaultTopValues),
	}
}

// DominantTrait returns the highest-scoring trait. Ties go to the trait that
// comes first in analysis.Traits.
func DominantTrait(v analysis.TraitVector) TraitScore {
	best := TraitScore{Trait: analysis.Traits[0], Score: v.Get(analysis.Traits[0])}
	for _, t := range analysis.Traits[1:] {
		if s := v.Get(t); s > best.Score {
			best = TraitScore{Trait: t, Score: s}
		}
	}
	return best
}

// TopValues returns the n highest-scoring values in descending order. Ties
// keep the order of analysis.Values. n is capped at the number of values.
func TopValues(v analysis.ValueVector, n int) []ValueScore {
	all := make([]ValueScore, 0, len(analysis.Values))
	for _, name := range analysis.Values {
		all = append(all, ValueScore{Value: name, Score: v.Get(name)})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })

	if n < 0 {
		n = 0
	}
	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}
