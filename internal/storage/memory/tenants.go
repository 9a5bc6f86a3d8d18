package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/idobetesh/papertrail/internal/domain"
)

// TenantStore keeps onboarded tenants per chat.
type TenantStore struct {
	mu     sync.Mutex
	byChat map[int64][]domain.Tenant

	now func() time.Time
}

// NewTenantStore builds an empty in-memory tenant directory.
func NewTenantStore() *TenantStore {
	return &TenantStore{
		byChat: make(map[int64][]domain.Tenant),
		now:    time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *TenantStore) WithClock(now func() time.Time) *TenantStore {
	s.now = now
	return s
}

// Add stores the tenant, replacing an existing entry with the same name.
func (s *TenantStore) Add(_ context.Context, t *domain.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *t
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}
	list := s.byChat[t.ChatID]
	for i, existing := range list {
		if existing.Name == t.Name {
			stored.CreatedAt = existing.CreatedAt
			list[i] = stored
			return nil
		}
	}
	s.byChat[t.ChatID] = append(list, stored)
	return nil
}

// Names lists the chat's tenants in onboarding order.
func (s *TenantStore) Names(_ context.Context, chatID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append([]domain.Tenant(nil), s.byChat[chatID]...)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	names := make([]string, 0, len(list))
	for _, t := range list {
		names = append(names, t.Name)
	}
	return names, nil
}
