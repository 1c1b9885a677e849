package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
	"github.com/custodia-labs/ragcore/internal/core/ports/driving"
	"github.com/custodia-labs/ragcore/internal/logger"
)

// Ensure TokenGovernor implements the interface.
var _ driving.UsageService = (*TokenGovernor)(nil)

// DefaultDailyTokenLimit is the default daily budget.
const DefaultDailyTokenLimit = 2_000_000

// estimate: roughly four prompt characters per token.
const charsPerToken = 4

// TokenGovernor enforces a process-wide daily token budget.
//
// All state transitions happen under one mutex; the critical section is
// only the counter arithmetic, never embedding or generation work.
// Persistence through the QuotaStore is write-through and best-effort:
// a failed save degrades to in-memory accounting.
type TokenGovernor struct {
	mu       sync.Mutex
	usage    int64
	dayStart time.Time
	limit    int64

	store driven.QuotaStore
	now   func() time.Time
}

// NewTokenGovernor creates a governor with the given daily limit.
// store may be nil, in which case usage does not survive restarts.
func NewTokenGovernor(store driven.QuotaStore, dailyLimit int64) *TokenGovernor {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyTokenLimit
	}

	g := &TokenGovernor{
		limit: dailyLimit,
		store: store,
		now:   time.Now,
	}
	g.dayStart = dayOf(g.now())
	g.restore()
	return g
}

// dayOf truncates t to the start of its UTC day.
func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// restore loads persisted state from the store, ignoring stale days.
func (g *TokenGovernor) restore() {
	if g.store == nil {
		return
	}
	state, err := g.store.LoadQuota(context.Background())
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("Loading token usage: %v", err)
		}
		return
	}
	if dayOf(state.DayStart).Equal(g.dayStart) {
		g.usage = state.Usage
		logger.Debug("Restored token usage: %d", g.usage)
	}
}

// EstimateTokens approximates the token cost of a request before it is
// sent: the prompt's character count divided by four, plus the
// completion cap.
func EstimateTokens(messages []driven.ChatMessage, maxTokens int) int64 {
	chars := 0
	for _, msg := range messages {
		chars += len(msg.Content)
	}
	return int64(chars/charsPerToken) + int64(maxTokens)
}

// CheckAndReserve atomically charges estimated tokens against the
// budget. It returns false, without mutating state, when the charge
// would exceed the limit.
func (g *TokenGovernor) CheckAndReserve(ctx context.Context, estimated int64) bool {
	if estimated < 0 {
		estimated = 0
	}

	g.mu.Lock()
	day, carried := g.resetIfNewDayLocked()
	if g.usage+estimated > g.limit {
		usage := g.usage
		g.mu.Unlock()
		g.recordFinishedDay(ctx, day, carried)
		logger.Debug("Quota denied: usage %d + estimate %d > limit %d", usage, estimated, g.limit)
		return false
	}
	g.usage += estimated
	snapshot := g.snapshotLocked()
	g.mu.Unlock()

	g.recordFinishedDay(ctx, day, carried)
	g.persist(ctx, snapshot)
	return true
}

// Record reconciles a reservation with the actual token count reported
// by the model. Usage never drops below zero.
func (g *TokenGovernor) Record(ctx context.Context, actual, estimated int64) {
	if actual < 0 {
		actual = 0
	}
	if estimated < 0 {
		estimated = 0
	}

	g.mu.Lock()
	day, carried := g.resetIfNewDayLocked()
	g.usage += actual - estimated
	if g.usage < 0 {
		g.usage = 0
	}
	snapshot := g.snapshotLocked()
	g.mu.Unlock()

	g.recordFinishedDay(ctx, day, carried)
	g.persist(ctx, snapshot)
}

// TokenUsage returns the current budget state.
func (g *TokenGovernor) TokenUsage(ctx context.Context) (domain.TokenUsage, error) {
	g.mu.Lock()
	day, carried := g.resetIfNewDayLocked()
	usage := g.usage
	dayStart := g.dayStart
	g.mu.Unlock()

	g.recordFinishedDay(ctx, day, carried)

	remaining := g.limit - usage
	if remaining < 0 {
		remaining = 0
	}
	return domain.TokenUsage{
		CurrentUsage: usage,
		DailyLimit:   g.limit,
		Remaining:    remaining,
		UsagePercent: float64(usage) / float64(g.limit) * 100,
		ResetsAt:     dayStart.Add(24 * time.Hour),
	}, nil
}

// History returns persisted per-day totals, keyed by date.
func (g *TokenGovernor) History(ctx context.Context) (map[string]int64, error) {
	if g.store == nil {
		return map[string]int64{}, nil
	}
	return g.store.UsageHistory(ctx)
}

// resetIfNewDayLocked zeroes usage when the day boundary has passed
// and returns the finished day and its total for the caller to record
// after releasing the mutex. Running under the governor mutex
// guarantees exactly one caller observes each boundary crossing, so
// the history row is still written exactly once.
func (g *TokenGovernor) resetIfNewDayLocked() (finishedDay string, finishedUsage int64) {
	today := dayOf(g.now())
	if !today.After(g.dayStart) {
		return "", 0
	}

	finishedDay = g.dayStart.Format("2006-01-02")
	finishedUsage = g.usage

	logger.Info("Token budget reset: %s used %d tokens", finishedDay, finishedUsage)
	g.usage = 0
	g.dayStart = today
	return finishedDay, finishedUsage
}

// recordFinishedDay persists a finished day's total, best-effort.
// Runs outside the governor mutex; the store write must never sit in
// the counter's critical section.
func (g *TokenGovernor) recordFinishedDay(ctx context.Context, day string, usage int64) {
	if day == "" || usage <= 0 || g.store == nil {
		return
	}
	if err := g.store.RecordHistory(ctx, day, usage); err != nil {
		logger.Warn("Recording usage history: %v", err)
	}
}

// snapshotLocked captures state for persistence outside the lock.
func (g *TokenGovernor) snapshotLocked() driven.QuotaState {
	return driven.QuotaState{DayStart: g.dayStart, Usage: g.usage}
}

// persist writes state through to the store, best-effort.
func (g *TokenGovernor) persist(ctx context.Context, state driven.QuotaState) {
	if g.store == nil {
		return
	}
	if err := g.store.SaveQuota(ctx, &state); err != nil {
		logger.Warn("Persisting token usage: %v", err)
	}
}
