package memory

import (
	"context"
	"sync"
	"time"

	"github.com/idobetesh/papertrail/internal/domain"
)

type quota struct {
	day string
	n   int
}

// RateGate counts generations per chat per calendar day in the configured
// timezone.
type RateGate struct {
	mu     sync.Mutex
	limit  int
	loc    *time.Location
	counts map[int64]quota

	now func() time.Time
}

// NewRateGate builds a gate allowing limit generations per day. A nil
// location means UTC.
func NewRateGate(limit int, loc *time.Location) *RateGate {
	if loc == nil {
		loc = time.UTC
	}
	return &RateGate{
		limit:  limit,
		loc:    loc,
		counts: make(map[int64]quota),
		now:    time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (g *RateGate) WithClock(now func() time.Time) *RateGate {
	g.now = now
	return g
}

// dayKey and resetAt pin the quota window to local midnights.
func (g *RateGate) window() (string, time.Time) {
	local := g.now().In(g.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.loc)
	return local.Format("2006-01-02"), midnight.AddDate(0, 0, 1)
}

func (g *RateGate) Check(_ context.Context, chatID int64) (domain.RateDecision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	day, reset := g.window()
	q := g.counts[chatID]
	if q.day != day {
		q = quota{day: day}
	}
	remaining := g.limit - q.n
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateDecision{Allowed: remaining > 0, Remaining: remaining, ResetAt: reset}, nil
}

func (g *RateGate) Record(_ context.Context, chatID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	day, _ := g.window()
	q := g.counts[chatID]
	if q.day != day {
		q = quota{day: day}
	}
	q.n++
	g.counts[chatID] = q
	return nil
}
