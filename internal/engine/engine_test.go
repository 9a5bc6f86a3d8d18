package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idobetesh/papertrail/internal/domain"
	"github.com/idobetesh/papertrail/internal/engine"
	"github.com/idobetesh/papertrail/internal/flow"
	"github.com/idobetesh/papertrail/internal/storage/memory"
)

type fxRecorder struct {
	prompts     []domain.Step
	rejections  []string
	completed   []*engine.Artifact
	expired     int
	cancelled   int
	failed      int
	rateLimited int
	acks        int
}

func (r *fxRecorder) SendPrompt(_ context.Context, s *domain.Session) error {
	r.prompts = append(r.prompts, s.CurrentStep)
	return nil
}

func (r *fxRecorder) SendRejection(_ context.Context, _ *domain.Session, reason string) error {
	r.rejections = append(r.rejections, reason)
	return nil
}

func (r *fxRecorder) SendExpired(context.Context) error { r.expired++; return nil }

func (r *fxRecorder) SendCancelled(context.Context, domain.FlowKind) error {
	r.cancelled++
	return nil
}

func (r *fxRecorder) SendCompleted(_ context.Context, _ *domain.Session, art *engine.Artifact) error {
	r.completed = append(r.completed, art)
	return nil
}

func (r *fxRecorder) SendFailure(context.Context, domain.FlowKind) error { r.failed++; return nil }

func (r *fxRecorder) SendRateLimited(context.Context, domain.RateDecision) error {
	r.rateLimited++
	return nil
}

func (r *fxRecorder) AckCallback(context.Context) error { r.acks++; return nil }

type stubGenerator struct {
	err   error
	calls int
}

func (g *stubGenerator) Generate(_ context.Context, s *domain.Session) (*engine.Artifact, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &engine.Artifact{Name: "receipt.pdf", MIME: "application/pdf", Content: []byte("ok")}, nil
}

type fixture struct {
	eng      *engine.Engine
	sessions *memory.SessionStore
	dedup    *memory.DedupStore
	gate     *memory.RateGate
	gen      *stubGenerator
	clock    *fakeClock
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFixture(t *testing.T, dailyLimit int) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)}
	f := &fixture{
		sessions: memory.NewSessionStore().WithClock(clock.now),
		dedup:    memory.NewDedupStore().WithClock(clock.now),
		gate:     memory.NewRateGate(dailyLimit, time.UTC).WithClock(clock.now),
		gen:      &stubGenerator{},
		clock:    clock,
	}
	f.eng = engine.New(f.sessions, f.dedup, f.gate, f.gen, engine.Config{
		SessionTTL: 30 * time.Minute,
		DedupTTL:   time.Hour,
	}).WithClock(clock.now)
	return f
}

func msg(text string) domain.Event {
	return domain.Event{Kind: domain.EventMessage, ChatID: 100, UserID: 200, Text: text}
}

func cb(id, action, value string) domain.Event {
	return domain.Event{
		Kind: domain.EventCallback, ChatID: 100, UserID: 200,
		EventID: id, Action: action, Value: value,
	}
}

// walkDocument drives the receipt flow up to (not including) the final
// format press.
func walkDocument(t *testing.T, f *fixture, fx engine.Effects) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.eng.Start(ctx, domain.FlowDocument, msg("/receipt"), fx))
	require.NoError(t, f.eng.Handle(ctx, cb("cb-t", domain.ActionSelectTenant, "t-1"), fx))
	require.NoError(t, f.eng.Handle(ctx, msg("4200"), fx))
	require.NoError(t, f.eng.Handle(ctx, msg("2026-08-01"), fx))
}

func TestDocumentFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	fx := &fxRecorder{}

	walkDocument(t, f, fx)
	require.NoError(t, f.eng.Handle(ctx, cb("cb-f", domain.ActionSelectFormat, "pdf"), fx))

	require.Len(t, fx.completed, 1)
	require.NotNil(t, fx.completed[0])
	assert.Equal(t, "receipt.pdf", fx.completed[0].Name)
	assert.Equal(t, []domain.Step{
		flow.StepDocTenant, flow.StepDocAmount, flow.StepDocDate, flow.StepDocFormat,
	}, fx.prompts)

	// Session is terminal, quota consumed.
	_, err := f.eng.Status(ctx, 100, 200)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	dec, err := f.gate.Check(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 4, dec.Remaining)
}

func TestDuplicateCallbackIsAckOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	fx := &fxRecorder{}

	require.NoError(t, f.eng.Start(ctx, domain.FlowDocument, msg("/receipt"), fx))
	require.NoError(t, f.eng.Handle(ctx, cb("cb-1", domain.ActionSelectTenant, "t-1"), fx))
	promptsBefore := len(fx.prompts)

	// Same transport event id again: acknowledged, nothing else happens.
	require.NoError(t, f.eng.Handle(ctx, cb("cb-1", domain.ActionSelectTenant, "t-1"), fx))
	assert.Len(t, fx.prompts, promptsBefore)
	assert.Empty(t, fx.rejections)

	s, err := f.eng.Status(ctx, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, flow.StepDocAmount, s.CurrentStep)
}

func TestExpiredSessionResume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	fx := &fxRecorder{}

	require.NoError(t, f.eng.Start(ctx, domain.FlowDocument, msg("/receipt"), fx))
	f.clock.advance(31 * time.Minute)

	// A button press from the lapsed wizard gets the expiry notice.
	require.NoError(t, f.eng.Handle(ctx, cb("cb-1", domain.ActionSelectTenant, "t-1"), fx))
	assert.Equal(t, 1, fx.expired)

	// Free text with nothing active surfaces as not-found for the router.
	err := f.eng.Handle(ctx, msg("4200"), fx)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStartSupersedesActiveSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	fx := &fxRecorder{}

	require.NoError(t, f.eng.Start(ctx, domain.FlowDocument, msg("/receipt"), fx))
	require.NoError(t, f.eng.Handle(ctx, cb("cb-1", domain.ActionSelectTenant, "t-1"), fx))

	require.NoError(t, f.eng.Start(ctx, domain.FlowDocument, msg("/receipt"), fx))

	s, err := f.eng.Status(ctx, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, flow.StepDocTenant, s.CurrentStep, "restart begins from scratch")
	assert.Empty(t, s.Fields)
}

func TestValidationRejectionKeepsStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	fx := &fxRecorder{}

	require.NoError(t, f.eng.Start(ctx, domain.FlowDocument, msg("/receipt"), fx))
	require.NoError(t, f.eng.Handle(ctx, cb("cb-1", domain.ActionSelectTenant, "t-1"), fx))

	require.NoError(t, f.eng.Handle(ctx, msg("not a number"), fx))
	require.Len(t, fx.rejections, 1)
	assert.Contains(t, fx.rejections[0], "not a number")

	s, err := f.eng.Status(ctx, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, flow.StepDocAmount, s.CurrentStep)
}

func TestWrongShapeIsRejectedNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	fx := &fxRecorder{}

	require.NoError(t, f.eng.Start(ctx, domain.FlowDocument, msg("/receipt"), fx))
	require.NoError(t, f.eng.Handle(ctx, msg("Alice"), fx))
	assert.Len(t, fx.rejections, 1)
}

func TestRateLimitedStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	fx := &fxRecorder{}

	walkDocument(t, f, fx)
	require.NoError(t, f.eng.Handle(ctx, cb("cb-f", domain.ActionSelectFormat, "pdf"), fx))
	require.Len(t, fx.completed, 1)

	require.NoError(t, f.eng.Start(ctx, domain.FlowDocument, msg("/receipt"), fx))
	assert.Equal(t, 1, fx.rateLimited)
	_, err := f.eng.Status(ctx, 100, 200)
	require.ErrorIs(t, err, domain.ErrSessionNotFound, "no session opened while limited")
}

func TestRateLimitedTerminalCancelsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	fx := &fxRecorder{}

	walkDocument(t, f, fx)
	// Quota spent elsewhere between start and the final press.
	require.NoError(t, f.gate.Record(ctx, 100))

	require.NoError(t, f.eng.Handle(ctx, cb("cb-f", domain.ActionSelectFormat, "pdf"), fx))
	assert.Equal(t, 1, fx.rateLimited)
	assert.Empty(t, fx.completed)
	assert.Equal(t, 0, f.gen.calls)

	// The wizard is gone, not parked on the final step.
	_, err := f.eng.Status(ctx, 100, 200)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestGenerationFailureCancelsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	f.gen.err = errors.New("renderer crashed")
	fx := &fxRecorder{}

	walkDocument(t, f, fx)
	require.NoError(t, f.eng.Handle(ctx, cb("cb-f", domain.ActionSelectFormat, "pdf"), fx))

	assert.Equal(t, 1, fx.failed)
	assert.Empty(t, fx.completed)
	_, err := f.eng.Status(ctx, 100, 200)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	// Failed generations never consume quota.
	dec, err := f.gate.Check(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, dec.Remaining)
}

// staleRepo replays an old snapshot on the next read, imitating a second
// handler racing past this one.
type staleRepo struct {
	engine.SessionRepository
	snapshot *domain.Session
}

func (r *staleRepo) GetActiveAny(ctx context.Context, chatID, userID int64) (*domain.Session, error) {
	if r.snapshot != nil {
		s := r.snapshot
		r.snapshot = nil
		return s, nil
	}
	return r.SessionRepository.GetActiveAny(ctx, chatID, userID)
}

func TestConcurrentLoserIsSilent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	fx := &fxRecorder{}

	require.NoError(t, f.eng.Start(ctx, domain.FlowDocument, msg("/receipt"), fx))
	before, err := f.sessions.GetActiveAny(ctx, 100, 200)
	require.NoError(t, err)

	// The winning event moves the session off the tenant step.
	require.NoError(t, f.eng.Handle(ctx, cb("cb-1", domain.ActionSelectTenant, "t-1"), fx))
	promptsBefore := len(fx.prompts)

	stale := &staleRepo{SessionRepository: f.sessions, snapshot: before}
	racer := engine.New(stale, f.dedup, f.gate, f.gen, engine.Config{SessionTTL: 30 * time.Minute}).
		WithClock(f.clock.now)

	// The losing event validates against the stale step and must die at the
	// guarded write: acknowledged, no prompt, no rejection.
	require.NoError(t, racer.Handle(ctx, cb("cb-2", domain.ActionSelectTenant, "t-2"), fx))
	assert.Len(t, fx.prompts, promptsBefore)
	assert.Empty(t, fx.rejections)

	s, err := f.eng.Status(ctx, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, "t-1", s.Fields[flow.FieldTenant], "winner's data survives")
}

// flakyDedup fails every claim with a storage error.
type flakyDedup struct{ engine.Deduplicator }

func (d *flakyDedup) Claim(context.Context, string, time.Duration) error {
	return domain.StorageErr("dedup.claim", errors.New("connection refused"))
}

func TestDedupFailsOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	fx := &fxRecorder{}

	eng := engine.New(f.sessions, &flakyDedup{}, f.gate, f.gen, engine.Config{SessionTTL: 30 * time.Minute}).
		WithClock(f.clock.now)
	require.NoError(t, eng.Start(ctx, domain.FlowDocument, msg("/receipt"), fx))
	require.NoError(t, eng.Handle(ctx, cb("cb-1", domain.ActionSelectTenant, "t-1"), fx))

	s, err := eng.Status(ctx, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, flow.StepDocAmount, s.CurrentStep, "event processed despite dedup outage")
}

func TestCancelCommand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	fx := &fxRecorder{}

	require.NoError(t, f.eng.Start(ctx, domain.FlowOnboarding, msg("/tenant"), fx))
	require.NoError(t, f.eng.Cancel(ctx, 100, 200, fx))
	assert.Equal(t, 1, fx.cancelled)

	require.ErrorIs(t, f.eng.Cancel(ctx, 100, 200, fx), domain.ErrSessionNotFound)
}

func TestCancelMidFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	fx := &fxRecorder{}

	require.NoError(t, f.eng.Start(ctx, domain.FlowReport, msg("/report"), fx))
	require.NoError(t, f.eng.Handle(ctx, cb("cb-1", domain.ActionCancel, ""), fx))
	assert.Equal(t, 1, fx.cancelled)

	_, err := f.eng.Status(ctx, 100, 200)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestOnboardingNotRateGated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0) // zero quota
	fx := &fxRecorder{}

	require.NoError(t, f.eng.Start(ctx, domain.FlowOnboarding, msg("/tenant"), fx))
	require.NoError(t, f.eng.Handle(ctx, msg("Dana Levi"), fx))
	require.NoError(t, f.eng.Handle(ctx, msg("12B"), fx))
	require.NoError(t, f.eng.Handle(ctx, msg("5600"), fx))
	require.NoError(t, f.eng.Handle(ctx, cb("cb-s", domain.ActionSkip, ""), fx))
	require.NoError(t, f.eng.Handle(ctx, cb("cb-c", domain.ActionConfirm, "yes"), fx))

	require.Len(t, fx.completed, 1)
	assert.Equal(t, 0, fx.rateLimited)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	fx := &fxRecorder{}

	require.NoError(t, f.eng.Start(ctx, domain.FlowDocument, msg("/receipt"), fx))
	require.NoError(t, f.eng.Handle(ctx, cb("cb-1", domain.ActionSelectTenant, "t-1"), fx))
	f.clock.advance(48 * time.Hour)

	sessions, markers, err := f.eng.Purge(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, sessions)
	assert.Equal(t, 1, markers)
}
