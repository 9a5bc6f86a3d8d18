// Package postgres persists flow sessions, callback markers and the daily
// quota counters in PostgreSQL. Concurrency control lives in the SQL: a
// partial unique index enforces the single active session per key, and
// every session write carries the expected-step guard in its WHERE clause.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/idobetesh/papertrail/internal/domain"
)

// uniqueViolation is the class 23 code raised by the partial unique index
// on active sessions.
const uniqueViolation = "23505"

// SessionStore implements the session repository over sqlx.
type SessionStore struct {
	db *sqlx.DB
}

// NewSessionStore wraps an open connection pool.
func NewSessionStore(db *sqlx.DB) *SessionStore {
	return &SessionStore{db: db}
}

type sessionRow struct {
	ID          string          `db:"id"`
	ChatID      int64           `db:"chat_id"`
	UserID      int64           `db:"user_id"`
	Flow        string          `db:"flow_kind"`
	Status      string          `db:"status"`
	CurrentStep string          `db:"current_step"`
	Fields      types.JSONText  `db:"fields"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
	ExpiresAt   time.Time       `db:"expires_at"`
}

func (r *sessionRow) toDomain() (*domain.Session, error) {
	fields := domain.Fields{}
	if len(r.Fields) > 0 {
		if err := json.Unmarshal(r.Fields, &fields); err != nil {
			return nil, fmt.Errorf("sessions: decode fields of %s: %w", r.ID, err)
		}
	}
	return &domain.Session{
		ID:          r.ID,
		ChatID:      r.ChatID,
		UserID:      r.UserID,
		Flow:        domain.FlowKind(r.Flow),
		Status:      domain.Status(r.Status),
		CurrentStep: domain.Step(r.CurrentStep),
		Fields:      fields,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		ExpiresAt:   r.ExpiresAt,
	}, nil
}

func encodeFields(f domain.Fields) (types.JSONText, error) {
	if f == nil {
		f = domain.Fields{}
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("sessions: encode fields: %w", err)
	}
	return types.JSONText(raw), nil
}

const selectSession = `
SELECT id, chat_id, user_id, flow_kind, status, current_step, fields,
       created_at, updated_at, expires_at
  FROM flow_sessions`

func (s *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	// Sweep an expired holder first so it cannot shadow the key: an expired
	// row acts absent everywhere, including here.
	_, err := s.db.ExecContext(ctx, `
		UPDATE flow_sessions
		   SET status = 'cancelled', updated_at = now()
		 WHERE chat_id = $1 AND user_id = $2 AND flow_kind = $3
		   AND status = 'active' AND expires_at <= now()`,
		sess.ChatID, sess.UserID, string(sess.Flow))
	if err != nil {
		return domain.StorageErr("sessions.create.sweep", err)
	}

	fields, err := encodeFields(sess.Fields)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flow_sessions
		       (id, chat_id, user_id, flow_kind, status, current_step, fields,
		        created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sess.ID, sess.ChatID, sess.UserID, string(sess.Flow), string(sess.Status),
		string(sess.CurrentStep), fields, sess.CreatedAt, sess.UpdatedAt, sess.ExpiresAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.ErrAlreadyActive
		}
		return domain.StorageErr("sessions.create", err)
	}
	return nil
}

func (s *SessionStore) GetActive(ctx context.Context, chatID, userID int64, kind domain.FlowKind) (*domain.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, selectSession+`
		 WHERE chat_id = $1 AND user_id = $2 AND flow_kind = $3
		   AND status = 'active' AND expires_at > now()`,
		chatID, userID, string(kind))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, domain.StorageErr("sessions.get_active", err)
	}
	return row.toDomain()
}

func (s *SessionStore) GetActiveAny(ctx context.Context, chatID, userID int64) (*domain.Session, error) {
	var row sessionRow
	// Ties between flows resolve to the wizard touched last.
	err := s.db.GetContext(ctx, &row, selectSession+`
		 WHERE chat_id = $1 AND user_id = $2
		   AND status = 'active' AND expires_at > now()
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, domain.StorageErr("sessions.get_active_any", err)
	}
	return row.toDomain()
}

func (s *SessionStore) Update(ctx context.Context, sess *domain.Session, expected domain.Step) error {
	fields, err := encodeFields(sess.Fields)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE flow_sessions
		   SET status = $2, current_step = $3, fields = $4,
		       updated_at = $5, expires_at = $6
		 WHERE id = $1 AND status = 'active'
		   AND current_step = $7 AND expires_at > now()`,
		sess.ID, string(sess.Status), string(sess.CurrentStep), fields,
		sess.UpdatedAt, sess.ExpiresAt, string(expected))
	if err != nil {
		return domain.StorageErr("sessions.update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.StorageErr("sessions.update", err)
	}
	if n == 1 {
		return nil
	}
	return s.classifyMiss(ctx, sess.ID, expected)
}

// classifyMiss decides why the guarded update hit zero rows: a live row on
// another step lost a race, anything else counts as gone.
func (s *SessionStore) classifyMiss(ctx context.Context, id string, expected domain.Step) error {
	var row struct {
		Status      string    `db:"status"`
		CurrentStep string    `db:"current_step"`
		ExpiresAt   time.Time `db:"expires_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT status, current_step, expires_at
		  FROM flow_sessions
		 WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.StorageErr("sessions.classify", err)
	}
	if row.Status == string(domain.StatusActive) &&
		row.ExpiresAt.After(time.Now()) &&
		row.CurrentStep != string(expected) {
		return domain.ErrStepMismatch
	}
	return domain.ErrSessionNotFound
}

func (s *SessionStore) CancelActive(ctx context.Context, chatID, userID int64, kind domain.FlowKind) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE flow_sessions
		   SET status = 'cancelled', updated_at = now()
		 WHERE chat_id = $1 AND user_id = $2 AND flow_kind = $3
		   AND status = 'active'`,
		chatID, userID, string(kind))
	if err != nil {
		return domain.StorageErr("sessions.cancel_active", err)
	}
	return nil
}

func (s *SessionStore) PurgeExpired(ctx context.Context, limit int) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM flow_sessions
		 WHERE id IN (
		       SELECT id FROM flow_sessions
		        WHERE status <> 'active' OR expires_at <= now()
		        LIMIT $1)`,
		limit)
	if err != nil {
		return 0, domain.StorageErr("sessions.purge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.StorageErr("sessions.purge", err)
	}
	return int(n), nil
}
