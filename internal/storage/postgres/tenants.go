package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/idobetesh/papertrail/internal/domain"
)

// TenantStore persists onboarded tenants, one row per chat and name.
type TenantStore struct {
	db *sqlx.DB

	now func() time.Time
}

// NewTenantStore builds a tenant directory over the given database.
func NewTenantStore(db *sqlx.DB) *TenantStore {
	return &TenantStore{db: db, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (s *TenantStore) WithClock(now func() time.Time) *TenantStore {
	s.now = now
	return s
}

// Add upserts the tenant; re-onboarding the same name refreshes unit,
// rent and email but keeps the original onboarding time.
func (s *TenantStore) Add(ctx context.Context, t *domain.Tenant) error {
	created := t.CreatedAt
	if created.IsZero() {
		created = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (chat_id, name, unit, rent, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chat_id, name) DO UPDATE
		   SET unit  = EXCLUDED.unit,
		       rent  = EXCLUDED.rent,
		       email = EXCLUDED.email`,
		t.ChatID, t.Name, t.Unit, t.Rent, t.Email, created)
	if err != nil {
		return domain.StorageErr("tenants.add", err)
	}
	return nil
}

// Names lists the chat's tenants in onboarding order.
func (s *TenantStore) Names(ctx context.Context, chatID int64) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names, `
		SELECT name FROM tenants
		 WHERE chat_id = $1
		 ORDER BY created_at, name`,
		chatID)
	if err != nil {
		return nil, domain.StorageErr("tenants.names", err)
	}
	return names, nil
}
