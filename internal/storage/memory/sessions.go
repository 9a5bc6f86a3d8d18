// Package memory is the storage backend for single-instance deployments
// and tests. It mirrors the postgres semantics exactly: expired rows act
// absent, writes are guarded by the expected step, and the single active
// session rule holds per (chat, user, flow) key.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/idobetesh/papertrail/internal/domain"
)

// SessionStore keeps sessions in a map under one mutex.
type SessionStore struct {
	mu   sync.Mutex
	byID map[string]*domain.Session

	now func() time.Time
}

// NewSessionStore builds an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		byID: make(map[string]*domain.Session),
		now:  time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	s.now = now
	return s
}

func cloneSession(in *domain.Session) *domain.Session {
	out := *in
	out.Fields = in.Fields.Clone()
	return &out
}

// activeLocked returns the unexpired active session for the key, or nil.
func (s *SessionStore) activeLocked(chatID, userID int64, kind domain.FlowKind, now time.Time) *domain.Session {
	for _, sess := range s.byID {
		if sess.ChatID == chatID && sess.UserID == userID && sess.Flow == kind &&
			sess.Status == domain.StatusActive && !sess.Expired(now) {
			return sess
		}
	}
	return nil
}

func (s *SessionStore) Create(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeLocked(sess.ChatID, sess.UserID, sess.Flow, s.now()) != nil {
		return domain.ErrAlreadyActive
	}
	s.byID[sess.ID] = cloneSession(sess)
	return nil
}

func (s *SessionStore) GetActive(_ context.Context, chatID, userID int64, kind domain.FlowKind) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.activeLocked(chatID, userID, kind, s.now()); sess != nil {
		return cloneSession(sess), nil
	}
	return nil, domain.ErrSessionNotFound
}

func (s *SessionStore) GetActiveAny(_ context.Context, chatID, userID int64) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	// Ties between flows resolve to the wizard touched last.
	var best *domain.Session
	for _, kind := range domain.Kinds() {
		sess := s.activeLocked(chatID, userID, kind, now)
		if sess != nil && (best == nil || sess.UpdatedAt.After(best.UpdatedAt)) {
			best = sess
		}
	}
	if best == nil {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(best), nil
}

func (s *SessionStore) Update(_ context.Context, sess *domain.Session, expected domain.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[sess.ID]
	if !ok || cur.Status != domain.StatusActive || cur.Expired(s.now()) {
		return domain.ErrSessionNotFound
	}
	if cur.CurrentStep != expected {
		return domain.ErrStepMismatch
	}
	s.byID[sess.ID] = cloneSession(sess)
	return nil
}

func (s *SessionStore) CancelActive(_ context.Context, chatID, userID int64, kind domain.FlowKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.activeLocked(chatID, userID, kind, s.now()); sess != nil {
		sess.Status = domain.StatusCancelled
		sess.UpdatedAt = s.now()
	}
	return nil
}

func (s *SessionStore) PurgeExpired(_ context.Context, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	purged := 0
	for id, sess := range s.byID {
		if purged >= limit {
			break
		}
		if sess.Expired(now) || sess.Terminal() {
			delete(s.byID, id)
			purged++
		}
	}
	return purged, nil
}
