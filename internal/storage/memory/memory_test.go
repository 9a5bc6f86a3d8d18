package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idobetesh/papertrail/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)}
}

func newSession(clock *fakeClock, id string, kind domain.FlowKind) *domain.Session {
	return &domain.Session{
		ID:          id,
		ChatID:      100,
		UserID:      200,
		Flow:        kind,
		Status:      domain.StatusActive,
		CurrentStep: "tenant",
		Fields:      domain.Fields{},
		CreatedAt:   clock.t,
		UpdatedAt:   clock.t,
		ExpiresAt:   clock.t.Add(30 * time.Minute),
	}
}

func TestSessionSingleActivePerKey(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewSessionStore().WithClock(clock.now)

	require.NoError(t, store.Create(ctx, newSession(clock, "a", domain.FlowDocument)))
	err := store.Create(ctx, newSession(clock, "b", domain.FlowDocument))
	require.ErrorIs(t, err, domain.ErrAlreadyActive)

	// A different flow kind for the same pair is fine.
	require.NoError(t, store.Create(ctx, newSession(clock, "c", domain.FlowReport)))
}

func TestSessionExpiredActsAbsent(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewSessionStore().WithClock(clock.now)

	require.NoError(t, store.Create(ctx, newSession(clock, "a", domain.FlowDocument)))
	clock.advance(31 * time.Minute)

	_, err := store.GetActive(ctx, 100, 200, domain.FlowDocument)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	// The key is free again once the holder expired.
	require.NoError(t, store.Create(ctx, newSession(clock, "b", domain.FlowDocument)))
}

func TestSessionUpdateStepGuard(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewSessionStore().WithClock(clock.now)

	sess := newSession(clock, "a", domain.FlowDocument)
	require.NoError(t, store.Create(ctx, sess))

	sess.CurrentStep = "amount"
	require.NoError(t, store.Update(ctx, sess, "tenant"))

	// A second writer still expecting the old step loses.
	stale := newSession(clock, "a", domain.FlowDocument)
	stale.CurrentStep = "date"
	require.ErrorIs(t, store.Update(ctx, stale, "tenant"), domain.ErrStepMismatch)

	got, err := store.GetActive(ctx, 100, 200, domain.FlowDocument)
	require.NoError(t, err)
	assert.Equal(t, domain.Step("amount"), got.CurrentStep)
}

func TestSessionUpdateGoneRow(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewSessionStore().WithClock(clock.now)

	sess := newSession(clock, "a", domain.FlowDocument)
	require.NoError(t, store.Create(ctx, sess))
	clock.advance(time.Hour)

	require.ErrorIs(t, store.Update(ctx, sess, "tenant"), domain.ErrSessionNotFound)
}

func TestSessionGetActiveAny(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewSessionStore().WithClock(clock.now)

	require.NoError(t, store.Create(ctx, newSession(clock, "r", domain.FlowReport)))
	got, err := store.GetActiveAny(ctx, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowReport, got.Flow)

	_, err = store.GetActiveAny(ctx, 100, 201)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionCancelActive(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewSessionStore().WithClock(clock.now)

	require.NoError(t, store.Create(ctx, newSession(clock, "a", domain.FlowDocument)))
	require.NoError(t, store.CancelActive(ctx, 100, 200, domain.FlowDocument))

	_, err := store.GetActive(ctx, 100, 200, domain.FlowDocument)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	// Cancelling with nothing active is a no-op.
	require.NoError(t, store.CancelActive(ctx, 100, 200, domain.FlowDocument))
}

func TestSessionPurgeExpired(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewSessionStore().WithClock(clock.now)

	require.NoError(t, store.Create(ctx, newSession(clock, "a", domain.FlowDocument)))
	require.NoError(t, store.Create(ctx, newSession(clock, "b", domain.FlowReport)))
	clock.advance(time.Hour)

	n, err := store.PurgeExpired(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.PurgeExpired(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSessionStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewSessionStore().WithClock(clock.now)

	sess := newSession(clock, "a", domain.FlowDocument)
	require.NoError(t, store.Create(ctx, sess))
	sess.Fields["tenant"] = "mutated-after-create"

	got, err := store.GetActive(ctx, 100, 200, domain.FlowDocument)
	require.NoError(t, err)
	assert.Empty(t, got.Fields)

	got.Fields["tenant"] = "mutated-after-read"
	again, err := store.GetActive(ctx, 100, 200, domain.FlowDocument)
	require.NoError(t, err)
	assert.Empty(t, again.Fields)
}

func TestDedupClaimOnce(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewDedupStore().WithClock(clock.now)

	require.NoError(t, store.Claim(ctx, "cb-1", time.Hour))
	require.ErrorIs(t, store.Claim(ctx, "cb-1", time.Hour), domain.ErrAlreadyProcessed)
	require.NoError(t, store.Claim(ctx, "cb-2", time.Hour))
}

func TestDedupWindowLapse(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewDedupStore().WithClock(clock.now)

	require.NoError(t, store.Claim(ctx, "cb-1", time.Hour))
	clock.advance(61 * time.Minute)
	require.NoError(t, store.Claim(ctx, "cb-1", time.Hour))
}

func TestDedupPurge(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewDedupStore().WithClock(clock.now)

	require.NoError(t, store.Claim(ctx, "cb-1", time.Minute))
	require.NoError(t, store.Claim(ctx, "cb-2", time.Hour))
	clock.advance(2 * time.Minute)

	n, err := store.PurgeExpired(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRateGateBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	gate := NewRateGate(2, time.UTC).WithClock(clock.now)

	dec, err := gate.Check(ctx, 100)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 2, dec.Remaining)

	require.NoError(t, gate.Record(ctx, 100))
	require.NoError(t, gate.Record(ctx, 100))

	dec, err = gate.Check(ctx, 100)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 0, dec.Remaining)

	// Another chat has its own budget.
	dec, err = gate.Check(ctx, 101)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}

func TestRateGateDailyRollover(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	gate := NewRateGate(1, time.UTC).WithClock(clock.now)

	require.NoError(t, gate.Record(ctx, 100))
	dec, err := gate.Check(ctx, 100)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), dec.ResetAt)

	clock.advance(15 * time.Hour) // past local midnight
	dec, err = gate.Check(ctx, 100)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 1, dec.Remaining)
}

func TestRateGateTimezoneMidnight(t *testing.T) {
	ctx := context.Background()
	loc, err := time.LoadLocation("Asia/Jerusalem")
	require.NoError(t, err)

	clock := newClock() // 10:00 UTC = 13:00 in Jerusalem (IDT)
	gate := NewRateGate(1, loc).WithClock(clock.now)

	dec, err := gate.Check(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, loc), dec.ResetAt.In(loc))
	assert.Equal(t, "21:00", dec.ResetAt.UTC().Format("15:04"))
}
