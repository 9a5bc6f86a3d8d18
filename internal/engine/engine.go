// Package engine orchestrates flow sessions: it resolves the inbound event
// to a stored session, advances the pure flow graph, persists the result
// under an optimistic step guard and emits the user-visible effects. All
// storage and transport sit behind interfaces defined in ports.go.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/idobetesh/papertrail/core/logger"
	"github.com/idobetesh/papertrail/internal/domain"
	"github.com/idobetesh/papertrail/internal/flow"
)

// Config carries the engine's timing knobs.
type Config struct {
	// SessionTTL is the sliding idle timeout. Every accepted event pushes
	// the session's deadline this far into the future.
	SessionTTL time.Duration
	// DedupTTL is the retention window for processed callback ids.
	DedupTTL time.Duration
}

const (
	defaultSessionTTL = 30 * time.Minute
	defaultDedupTTL   = 24 * time.Hour
)

// Engine drives all flows against one storage backend.
type Engine struct {
	flows map[domain.FlowKind]*flow.Graph
	repo  SessionRepository
	dedup Deduplicator
	gate  RateGate
	gen   Generator
	cfg   Config

	now func() time.Time
}

// New wires an engine over the full flow registry.
func New(repo SessionRepository, dedup Deduplicator, gate RateGate, gen Generator, cfg Config) *Engine {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = defaultDedupTTL
	}
	return &Engine{
		flows: flow.Registry(),
		repo:  repo,
		dedup: dedup,
		gate:  gate,
		gen:   gen,
		cfg:   cfg,
		now:   time.Now,
	}
}

// WithClock overrides the engine's time source. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Start opens a fresh session for the flow and prompts its first step.
// An existing active session for the same (chat, user, flow) key is
// cancelled and superseded; rate-gated flows are refused up front when the
// chat's daily quota is already spent.
func (e *Engine) Start(ctx context.Context, kind domain.FlowKind, ev domain.Event, fx Effects) error {
	g, ok := e.flows[kind]
	if !ok {
		return fmt.Errorf("engine: unknown flow %q", kind)
	}

	if g.RateGated {
		dec, err := e.gate.Check(ctx, ev.ChatID)
		if err != nil {
			return err
		}
		if !dec.Allowed {
			logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "flow_start",
				slog.String("flow", string(kind)),
				slog.String("status", "rate_limited"),
				slog.Time("reset_at", dec.ResetAt))
			return fx.SendRateLimited(ctx, dec)
		}
	}

	now := e.now()
	s := &domain.Session{
		ID:          uuid.NewString(),
		ChatID:      ev.ChatID,
		UserID:      ev.UserID,
		Flow:        kind,
		Status:      domain.StatusActive,
		CurrentStep: g.Initial,
		Fields:      domain.Fields{},
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(e.cfg.SessionTTL),
	}

	err := e.repo.Create(ctx, s)
	if errors.Is(err, domain.ErrAlreadyActive) {
		// Restart supersedes: the old wizard is abandoned, never merged.
		if cErr := e.repo.CancelActive(ctx, ev.ChatID, ev.UserID, kind); cErr != nil {
			return cErr
		}
		logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "flow_superseded",
			slog.String("flow", string(kind)),
			slog.String("session_id", s.ID))
		err = e.repo.Create(ctx, s)
	}
	if err != nil {
		return err
	}

	logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "flow_start",
		slog.String("flow", string(kind)),
		slog.String("session_id", s.ID),
		slog.String("step", string(s.CurrentStep)),
		slog.String("status", "ok"))
	return fx.SendPrompt(ctx, s)
}

// Handle processes one continuation event (free text or a button press)
// against the chat's active session.
func (e *Engine) Handle(ctx context.Context, ev domain.Event, fx Effects) error {
	if ev.Kind == domain.EventCallback && ev.EventID != "" {
		if done, err := e.claim(ctx, ev, fx); done || err != nil {
			return err
		}
	}

	s, err := e.repo.GetActiveAny(ctx, ev.ChatID, ev.UserID)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		if ev.Kind == domain.EventCallback {
			// A button from a dead wizard: acknowledge and explain, a bare
			// spinner timeout would look broken.
			_ = fx.AckCallback(ctx)
			return fx.SendExpired(ctx)
		}
		return domain.ErrSessionNotFound
	case err != nil:
		return err
	}

	if s.Expired(e.now()) {
		_ = fx.AckCallback(ctx)
		return fx.SendExpired(ctx)
	}

	g, ok := e.flows[s.Flow]
	if !ok {
		return fmt.Errorf("engine: session %s has unknown flow %q", s.ID, s.Flow)
	}

	tr, err := g.Advance(s.CurrentStep, s.Fields, ev)
	if err != nil {
		return e.rejected(ctx, s, ev, fx, err)
	}

	switch tr.Terminal {
	case domain.StatusCancelled:
		return e.finishCancelled(ctx, s, tr, fx)
	case domain.StatusCompleted:
		return e.finishCompleted(ctx, g, s, ev, tr, fx)
	default:
		return e.advance(ctx, s, tr, fx)
	}
}

// claim runs the dedup gate. The boolean is true when the event was a
// duplicate and handling must stop.
func (e *Engine) claim(ctx context.Context, ev domain.Event, fx Effects) (bool, error) {
	err := e.dedup.Claim(ctx, ev.EventID, e.cfg.DedupTTL)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, domain.ErrAlreadyProcessed):
		logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "event_duplicate",
			slog.String("event_id", ev.EventID),
			slog.String("status", "duplicate"))
		return true, fx.AckCallback(ctx)
	case errors.Is(err, domain.ErrStorageUnavailable):
		// Dedup fails open: losing a marker risks one repeated side effect,
		// dropping the event loses user input.
		logger.LogEvent(ctx, logger.FLOW, slog.LevelWarn, "dedup_unavailable",
			slog.String("event_id", ev.EventID),
			slog.Any("err", err))
		return false, nil
	default:
		return false, err
	}
}

// rejected maps flow rejections to re-prompts; anything else propagates.
func (e *Engine) rejected(ctx context.Context, s *domain.Session, ev domain.Event, fx Effects, err error) error {
	if reason, ok := domain.IsValidation(err); ok {
		_ = fx.AckCallback(ctx)
		logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "event_rejected",
			slog.String("flow", string(s.Flow)),
			slog.String("step", string(s.CurrentStep)),
			slog.String("session_id", s.ID),
			slog.String("status", "rejected"),
			slog.String("cause", reason))
		return fx.SendRejection(ctx, s, reason)
	}
	if errors.Is(err, domain.ErrEventShape) {
		_ = fx.AckCallback(ctx)
		logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "event_rejected",
			slog.String("flow", string(s.Flow)),
			slog.String("step", string(s.CurrentStep)),
			slog.String("session_id", s.ID),
			slog.String("status", "rejected"),
			slog.String("cause", "shape"))
		return fx.SendRejection(ctx, s, "")
	}
	return err
}

func (e *Engine) advance(ctx context.Context, s *domain.Session, tr flow.Transition, fx Effects) error {
	expected := s.CurrentStep
	now := e.now()
	s.CurrentStep = tr.Next
	s.Fields = tr.Fields
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(e.cfg.SessionTTL)

	if err := e.update(ctx, s, expected, fx); err != nil || s.Status != domain.StatusActive {
		return err
	}

	logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "flow_advance",
		slog.String("flow", string(s.Flow)),
		slog.String("step", string(expected)),
		slog.String("next_step", string(tr.Next)),
		slog.String("session_id", s.ID),
		slog.String("status", "ok"))

	_ = fx.AckCallback(ctx)
	return fx.SendPrompt(ctx, s)
}

func (e *Engine) finishCancelled(ctx context.Context, s *domain.Session, tr flow.Transition, fx Effects) error {
	expected := s.CurrentStep
	s.Status = domain.StatusCancelled
	s.Fields = tr.Fields
	s.UpdatedAt = e.now()

	if err := e.update(ctx, s, expected, fx); err != nil || s.Status != domain.StatusCancelled {
		return err
	}

	logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "flow_cancelled",
		slog.String("flow", string(s.Flow)),
		slog.String("step", string(expected)),
		slog.String("session_id", s.ID),
		slog.String("status", "cancelled"))

	_ = fx.AckCallback(ctx)
	return fx.SendCancelled(ctx, s.Flow)
}

func (e *Engine) finishCompleted(ctx context.Context, g *flow.Graph, s *domain.Session, ev domain.Event, tr flow.Transition, fx Effects) error {
	if g.RateGated {
		dec, err := e.gate.Check(ctx, s.ChatID)
		if err != nil {
			return err
		}
		if !dec.Allowed {
			// Quota exhausted at the finish line: the wizard is cancelled, not
			// parked, so a stale final step cannot fire after midnight.
			logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "flow_complete",
				slog.String("flow", string(s.Flow)),
				slog.String("session_id", s.ID),
				slog.String("status", "rate_limited"),
				slog.Time("reset_at", dec.ResetAt))
			s.Status = domain.StatusCancelled
			s.UpdatedAt = e.now()
			if err := e.repo.Update(ctx, s, s.CurrentStep); err != nil &&
				!errors.Is(err, domain.ErrStepMismatch) && !errors.Is(err, domain.ErrSessionNotFound) {
				return err
			}
			_ = fx.AckCallback(ctx)
			return fx.SendRateLimited(ctx, dec)
		}
	}

	expected := s.CurrentStep
	s.Fields = tr.Fields

	var art *Artifact
	if e.gen != nil {
		var err error
		art, err = e.gen.Generate(ctx, s)
		if err != nil {
			return e.failGeneration(ctx, s, expected, &domain.GenerationError{Err: err}, fx)
		}
	}

	s.Status = domain.StatusCompleted
	s.UpdatedAt = e.now()
	if err := e.update(ctx, s, expected, fx); err != nil || s.Status != domain.StatusCompleted {
		return err
	}

	if g.RateGated {
		if err := e.gate.Record(ctx, s.ChatID); err != nil {
			// Under-counting one generation beats refusing a delivered one.
			logger.LogEvent(ctx, logger.GATE, slog.LevelWarn, "quota_record_failed",
				slog.Int64("chat_id", s.ChatID),
				slog.Any("err", err))
		}
	}

	logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "flow_complete",
		slog.String("flow", string(s.Flow)),
		slog.String("session_id", s.ID),
		slog.String("status", "ok"))

	_ = fx.AckCallback(ctx)
	return fx.SendCompleted(ctx, s, art)
}

// failGeneration cancels the session after a downstream artifact failure
// and tells the user to start over.
func (e *Engine) failGeneration(ctx context.Context, s *domain.Session, expected domain.Step, genErr error, fx Effects) error {
	logger.LogEvent(ctx, logger.FLOW, slog.LevelError, "generation_failed",
		slog.String("flow", string(s.Flow)),
		slog.String("session_id", s.ID),
		slog.String("status", "fail"),
		slog.Any("err", genErr))

	s.Status = domain.StatusCancelled
	s.UpdatedAt = e.now()
	if err := e.repo.Update(ctx, s, expected); err != nil &&
		!errors.Is(err, domain.ErrStepMismatch) && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}

	_ = fx.AckCallback(ctx)
	return fx.SendFailure(ctx, s.Flow)
}

// update runs the guarded write and folds its race outcomes: a concurrent
// winner makes this event stale (acknowledged silently), a vanished row is
// an expiry. On those paths update resets s.Status so callers can tell the
// write did not land.
func (e *Engine) update(ctx context.Context, s *domain.Session, expected domain.Step, fx Effects) error {
	err := e.repo.Update(ctx, s, expected)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrStepMismatch):
		logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "event_stale",
			slog.String("flow", string(s.Flow)),
			slog.String("step", string(expected)),
			slog.String("session_id", s.ID),
			slog.String("status", "skip"))
		s.Status = ""
		return fx.AckCallback(ctx)
	case errors.Is(err, domain.ErrSessionNotFound):
		s.Status = ""
		_ = fx.AckCallback(ctx)
		return fx.SendExpired(ctx)
	default:
		return err
	}
}

// Cancel aborts the chat's active session regardless of its current step.
func (e *Engine) Cancel(ctx context.Context, chatID, userID int64, fx Effects) error {
	s, err := e.repo.GetActiveAny(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if err := e.repo.CancelActive(ctx, chatID, userID, s.Flow); err != nil {
		return err
	}
	logger.LogEvent(ctx, logger.FLOW, slog.LevelInfo, "flow_cancelled",
		slog.String("flow", string(s.Flow)),
		slog.String("session_id", s.ID),
		slog.String("status", "cancelled"))
	return fx.SendCancelled(ctx, s.Flow)
}

// Status returns the chat's active session for the /status command.
func (e *Engine) Status(ctx context.Context, chatID, userID int64) (*domain.Session, error) {
	return e.repo.GetActiveAny(ctx, chatID, userID)
}

// Purge removes expired sessions and stale dedup markers in bounded
// batches. Meant to run from a background ticker.
func (e *Engine) Purge(ctx context.Context, limit int) (sessions, markers int, err error) {
	sessions, err = e.repo.PurgeExpired(ctx, limit)
	if err != nil {
		return 0, 0, err
	}
	markers, err = e.dedup.PurgeExpired(ctx, limit)
	if err != nil {
		return sessions, 0, err
	}
	return sessions, markers, nil
}
