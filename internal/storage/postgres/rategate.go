package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/idobetesh/papertrail/internal/domain"
)

// RateGate keeps one counter row per chat and rolls it over whenever the
// stored day no longer matches the local calendar day.
type RateGate struct {
	db    *sqlx.DB
	limit int
	loc   *time.Location

	now func() time.Time
}

// NewRateGate builds a gate allowing limit generations per local day.
// A nil location means UTC.
func NewRateGate(db *sqlx.DB, limit int, loc *time.Location) *RateGate {
	if loc == nil {
		loc = time.UTC
	}
	return &RateGate{db: db, limit: limit, loc: loc, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (g *RateGate) WithClock(now func() time.Time) *RateGate {
	g.now = now
	return g
}

func (g *RateGate) window() (string, time.Time) {
	local := g.now().In(g.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.loc)
	return local.Format("2006-01-02"), midnight.AddDate(0, 0, 1)
}

func (g *RateGate) Check(ctx context.Context, chatID int64) (domain.RateDecision, error) {
	day, reset := g.window()
	var used int
	err := g.db.GetContext(ctx, &used, `
		SELECT used FROM rate_counters
		 WHERE chat_id = $1 AND day = $2`,
		chatID, day)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.RateDecision{}, domain.StorageErr("gate.check", err)
	}
	remaining := g.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateDecision{Allowed: remaining > 0, Remaining: remaining, ResetAt: reset}, nil
}

func (g *RateGate) Record(ctx context.Context, chatID int64) error {
	day, _ := g.window()
	// The upsert owns the rollover: a stale day resets the count to one.
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO rate_counters (chat_id, day, used)
		VALUES ($1, $2, 1)
		ON CONFLICT (chat_id) DO UPDATE
		   SET used = CASE WHEN rate_counters.day = EXCLUDED.day
		                   THEN rate_counters.used + 1
		                   ELSE 1 END,
		       day  = EXCLUDED.day`,
		chatID, day)
	if err != nil {
		return domain.StorageErr("gate.record", err)
	}
	return nil
}
