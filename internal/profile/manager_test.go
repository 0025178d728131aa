package profile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/cinetrait/internal/analysis"
)

// --- Mock store ---

type mockStore struct {
	mu   sync.Mutex
	data map[string]analysis.Result

	getCalls  int
	upsertErr error
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]analysis.Result)}
}

func (m *mockStore) UpsertResult(_ context.Context, r analysis.Result) (analysis.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return analysis.Result{}, m.upsertErr
	}
	if prev, ok := m.data[r.UserID]; ok {
		r.CreatedAt = prev.CreatedAt
	}
	m.data[r.UserID] = r
	return r, nil
}

func (m *mockStore) GetResult(_ context.Context, userID string) (analysis.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	r, ok := m.data[userID]
	if !ok {
		return analysis.Result{}, analysis.ErrNotFound
	}
	return r, nil
}

func (m *mockStore) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sampleResult(userID string) analysis.Result {
	return analysis.Result{
		UserID: userID,
		Traits: analysis.TraitVector{
			Openness:          0.59,
			Conscientiousness: 0.51,
			Extraversion:      0.53,
			Agreeableness:     0.505,
			Neuroticism:       0.495,
		},
		Values: analysis.ValueVector{
			CreativityInnovation: 0.56,
			SocialConnection:     0.52,
			AchievementSuccess:   0.51,
			HarmonyStability:     0.51,
			AuthenticityDepth:    0.55,
		},
		MoviesAnalyzed: 5,
		Confidence:     0.415,
	}
}

// --- Tests ---

func TestGetResult_NotFoundNotCached(t *testing.T) {
	store := newMockStore()
	mgr := NewManager(store)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := mgr.GetResult(ctx, "u1"); !errors.Is(err, analysis.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if store.calls() != 2 {
		t.Errorf("expected 2 store reads for misses, got %d", store.calls())
	}
}

func TestCacheTTL(t *testing.T) {
	store := newMockStore()
	store.data["u1"] = sampleResult("u1")
	clock := &mockClock{now: time.Now()}
	mgr := NewManagerWithClock(store, clock, 60*time.Second)
	ctx := context.Background()

	if _, err := mgr.GetResult(ctx, "u1"); err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	clock.Advance(30 * time.Second)
	if _, err := mgr.GetResult(ctx, "u1"); err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if store.calls() != 1 {
		t.Errorf("expected 1 store read within TTL, got %d", store.calls())
	}

	clock.Advance(31 * time.Second)
	if _, err := mgr.GetResult(ctx, "u1"); err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if store.calls() != 2 {
		t.Errorf("expected 2 store reads after TTL, got %d", store.calls())
	}
}

func TestUpsertResult_RefreshesCache(t *testing.T) {
	store := newMockStore()
	clock := &mockClock{now: time.Now()}
	mgr := NewManagerWithClock(store, clock, time.Hour)
	ctx := context.Background()

	first := sampleResult("u1")
	if _, err := mgr.UpsertResult(ctx, first); err != nil {
		t.Fatalf("UpsertResult: %v", err)
	}
	second := first
	second.MoviesAnalyzed = 9
	if _, err := mgr.UpsertResult(ctx, second); err != nil {
		t.Fatalf("UpsertResult: %v", err)
	}

	got, err := mgr.GetResult(ctx, "u1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.MoviesAnalyzed != 9 {
		t.Errorf("MoviesAnalyzed = %d, want 9", got.MoviesAnalyzed)
	}
	if store.calls() != 0 {
		t.Errorf("expected cached read after upsert, store read %d times", store.calls())
	}
}

func TestUpsertResult_ErrorDropsCache(t *testing.T) {
	store := newMockStore()
	mgr := NewManager(store)
	ctx := context.Background()

	if _, err := mgr.UpsertResult(ctx, sampleResult("u1")); err != nil {
		t.Fatalf("UpsertResult: %v", err)
	}
	store.upsertErr = errors.New("disk full")
	if _, err := mgr.UpsertResult(ctx, sampleResult("u1")); err == nil {
		t.Fatal("expected upsert error")
	}

	if _, err := mgr.GetResult(ctx, "u1"); err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if store.calls() != 1 {
		t.Errorf("expected store read after failed upsert, got %d", store.calls())
	}
}

func TestInvalidate(t *testing.T) {
	store := newMockStore()
	store.data["u1"] = sampleResult("u1")
	mgr := NewManager(store)
	ctx := context.Background()

	if _, err := mgr.GetResult(ctx, "u1"); err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	delete(store.data, "u1")
	mgr.Invalidate("u1")

	if _, err := mgr.GetResult(ctx, "u1"); !errors.Is(err, analysis.ErrNotFound) {
		t.Errorf("expected ErrNotFound after invalidate, got %v", err)
	}
}

func TestGetProfile(t *testing.T) {
	store := newMockStore()
	store.data["u1"] = sampleResult("u1")
	mgr := NewManager(store)

	p, err := mgr.GetProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.DominantTrait.Trait != analysis.Openness {
		t.Errorf("DominantTrait = %q, want openness", p.DominantTrait.Trait)
	}
	want := []analysis.Value{analysis.CreativityInnovation, analysis.AuthenticityDepth, analysis.SocialConnection}
	if len(p.TopValues) != len(want) {
		t.Fatalf("TopValues = %+v", p.TopValues)
	}
	for i, v := range want {
		if p.TopValues[i].Value != v {
			t.Errorf("TopValues[%d] = %q, want %q", i, p.TopValues[i].Value, v)
		}
	}
}

func TestDominantTrait_TieUsesCanonicalOrder(t *testing.T) {
	v := analysis.TraitVector{Openness: 0.5, Conscientiousness: 0.7, Extraversion: 0.7, Agreeableness: 0.1, Neuroticism: 0.7}
	if got := DominantTrait(v); got.Trait != analysis.Conscientiousness {
		t.Errorf("DominantTrait = %q, want conscientiousness", got.Trait)
	}
}

func TestTopValues_Bounds(t *testing.T) {
	v := analysis.ValueVector{HarmonyStability: 0.9}

	if got := TopValues(v, 10); len(got) != len(analysis.Values) {
		t.Errorf("len = %d, want %d", len(got), len(analysis.Values))
	}
	if got := TopValues(v, -1); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
	got := TopValues(v, 2)
	if got[0].Value != analysis.HarmonyStability || got[1].Value != analysis.CreativityInnovation {
		t.Errorf("TopValues = %+v", got)
	}
}
