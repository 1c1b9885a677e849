package driven

import (
	"context"
	"time"
)

// QuotaState is the persisted token governor state.
type QuotaState struct {
	// DayStart is the start of the current budget day.
	DayStart time.Time

	// Usage is tokens consumed since DayStart.
	Usage int64
}

// QuotaStore persists daily token usage across restarts.
// Persistence is write-through and best-effort: a failed save degrades
// to in-memory accounting rather than blocking requests.
type QuotaStore interface {
	// LoadQuota returns the persisted state, or a zero state and
	// domain.ErrNotFound when nothing has been persisted yet.
	LoadQuota(ctx context.Context) (*QuotaState, error)

	// SaveQuota stores the current state.
	SaveQuota(ctx context.Context, state *QuotaState) error

	// RecordHistory appends a finished day's total to the usage
	// history, keyed by date (YYYY-MM-DD).
	RecordHistory(ctx context.Context, day string, usage int64) error

	// UsageHistory returns per-day totals keyed by date.
	UsageHistory(ctx context.Context) (map[string]int64, error)
}
