package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragcore/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

// testClock is a settable time source for governor tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// newTestGovernor creates a governor pinned to the clock's day.
func newTestGovernor(store driven.QuotaStore, limit int64, clock *testClock) *TokenGovernor {
	g := NewTokenGovernor(store, limit)
	g.now = clock.Now
	g.dayStart = dayOf(clock.Now())
	return g
}

func TestEstimateTokens(t *testing.T) {
	messages := []driven.ChatMessage{
		{Role: "system", Content: "aaaa"},
		{Role: "user", Content: "bbbbbbbb"},
	}
	// 12 chars / 4 per token + 100 completion cap.
	assert.Equal(t, int64(103), EstimateTokens(messages, 100))
	assert.Equal(t, int64(0), EstimateTokens(nil, 0))
}

func TestCheckAndReserve_GrantsWithinLimit(t *testing.T) {
	ctx := context.Background()
	g := newTestGovernor(nil, 100, newTestClock(time.Now()))

	assert.True(t, g.CheckAndReserve(ctx, 60))
	usage, err := g.TokenUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(60), usage.CurrentUsage)
	assert.Equal(t, int64(40), usage.Remaining)
}

func TestCheckAndReserve_DeniesWithoutPartialCharge(t *testing.T) {
	ctx := context.Background()
	g := newTestGovernor(nil, 100, newTestClock(time.Now()))

	require.True(t, g.CheckAndReserve(ctx, 60))
	assert.False(t, g.CheckAndReserve(ctx, 50))

	usage, err := g.TokenUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(60), usage.CurrentUsage, "denied request must not charge")

	// A smaller request that fits is still granted.
	assert.True(t, g.CheckAndReserve(ctx, 40))
}

func TestCheckAndReserve_ExactLimit(t *testing.T) {
	ctx := context.Background()
	g := newTestGovernor(nil, 100, newTestClock(time.Now()))

	assert.True(t, g.CheckAndReserve(ctx, 100))
	assert.False(t, g.CheckAndReserve(ctx, 1))
}

func TestCheckAndReserve_ConcurrentAtomicity(t *testing.T) {
	ctx := context.Background()
	const n = 10
	const limit = 1000
	g := newTestGovernor(nil, limit, newTestClock(time.Now()))

	// Each request asks for limit/n + 1 tokens, so granting all n would
	// overshoot the limit. At most n-1 may succeed.
	request := int64(limit/n + 1)

	var wg sync.WaitGroup
	granted := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			granted <- g.CheckAndReserve(ctx, request)
		}()
	}
	wg.Wait()
	close(granted)

	count := int64(0)
	for ok := range granted {
		if ok {
			count++
		}
	}
	assert.LessOrEqual(t, count, int64(n-1))

	usage, err := g.TokenUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, count*request, usage.CurrentUsage)
	assert.LessOrEqual(t, usage.CurrentUsage, int64(limit))
}

func TestRecord_ReconcilesReservation(t *testing.T) {
	ctx := context.Background()
	g := newTestGovernor(nil, 1000, newTestClock(time.Now()))

	require.True(t, g.CheckAndReserve(ctx, 100))
	g.Record(ctx, 40, 100)

	usage, err := g.TokenUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(40), usage.CurrentUsage)
}

func TestRecord_NeverDropsBelowZero(t *testing.T) {
	ctx := context.Background()
	g := newTestGovernor(nil, 1000, newTestClock(time.Now()))

	require.True(t, g.CheckAndReserve(ctx, 50))
	g.Record(ctx, 0, 500)

	usage, err := g.TokenUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.CurrentUsage)
}

func TestDayBoundaryReset(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC))
	store := memory.NewQuotaStore()
	g := newTestGovernor(store, 1000, clock)

	require.True(t, g.CheckAndReserve(ctx, 900))

	clock.Set(time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC))

	// The full budget is available again after midnight.
	assert.True(t, g.CheckAndReserve(ctx, 900))

	usage, err := g.TokenUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(900), usage.CurrentUsage)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), usage.ResetsAt)

	// The finished day's total lands in history.
	history, err := g.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(900), history["2026-03-01"])
}

// reentrantQuotaStore reads the governor back while recording history,
// which deadlocks if the history write runs inside the governor mutex.
type reentrantQuotaStore struct {
	*memory.QuotaStore
	governor *TokenGovernor
}

func (s *reentrantQuotaStore) RecordHistory(ctx context.Context, day string, usage int64) error {
	if _, err := s.governor.TokenUsage(ctx); err != nil {
		return err
	}
	return s.QuotaStore.RecordHistory(ctx, day, usage)
}

func TestDayBoundaryReset_HistoryWriteOutsideLock(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC))
	store := &reentrantQuotaStore{QuotaStore: memory.NewQuotaStore()}
	g := newTestGovernor(store, 1000, clock)
	store.governor = g

	require.True(t, g.CheckAndReserve(ctx, 300))

	clock.Set(time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC))

	usage, err := g.TokenUsage(ctx)
	require.NoError(t, err)
	assert.Zero(t, usage.CurrentUsage)

	history, err := g.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(300), history["2026-03-01"])
}

func TestDayBoundaryReset_ExactlyOnceUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC))
	store := memory.NewQuotaStore()
	g := newTestGovernor(store, 10_000, clock)

	require.True(t, g.CheckAndReserve(ctx, 123))

	clock.Set(time.Date(2026, 3, 2, 0, 0, 1, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.TokenUsage(ctx)
		}()
	}
	wg.Wait()

	// One reset recorded the old day once; usage was not re-zeroed or
	// double-counted by the other callers.
	history, err := g.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(123), history["2026-03-01"])

	usage, err := g.TokenUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.CurrentUsage)
}

func TestRestore_SameDaySurvivesRestart(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := memory.NewQuotaStore()

	g := newTestGovernor(store, 1000, clock)
	require.True(t, g.CheckAndReserve(ctx, 400))

	restarted := NewTokenGovernor(store, 1000)
	restarted.now = clock.Now
	restarted.dayStart = dayOf(clock.Now())
	restarted.restore()

	usage, err := restarted.TokenUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(400), usage.CurrentUsage)
}

func TestRestore_StaleDayIgnored(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQuotaStore()
	require.NoError(t, store.SaveQuota(ctx, &driven.QuotaState{
		DayStart: time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC),
		Usage:    999,
	}))

	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	g := NewTokenGovernor(store, 1000)
	g.now = clock.Now
	g.dayStart = dayOf(clock.Now())
	g.usage = 0
	g.restore()

	usage, err := g.TokenUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.CurrentUsage)
}

func TestGovernor_DegradesWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQuotaStore()
	store.FailSaves = true
	g := newTestGovernor(store, 1000, newTestClock(time.Now()))

	// Accounting keeps working in memory despite failed persistence.
	assert.True(t, g.CheckAndReserve(ctx, 600))
	assert.False(t, g.CheckAndReserve(ctx, 500))

	usage, err := g.TokenUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(600), usage.CurrentUsage)
}

func TestGovernor_DefaultLimit(t *testing.T) {
	g := NewTokenGovernor(nil, 0)
	usage, err := g.TokenUsage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultDailyTokenLimit), usage.DailyLimit)
}

func TestHistory_NilStore(t *testing.T) {
	g := NewTokenGovernor(nil, 100)
	history, err := g.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
}
