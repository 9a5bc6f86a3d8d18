package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idobetesh/papertrail/internal/domain"
)

func TestTenantStoreKeepsOnboardingOrder(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewTenantStore().WithClock(clock.now)

	require.NoError(t, store.Add(ctx, &domain.Tenant{ChatID: 100, Name: "Dana Levi"}))
	clock.advance(time.Minute)
	require.NoError(t, store.Add(ctx, &domain.Tenant{ChatID: 100, Name: "Avi Cohen"}))
	clock.advance(time.Minute)
	require.NoError(t, store.Add(ctx, &domain.Tenant{ChatID: 999, Name: "Other Chat"}))

	names, err := store.Names(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dana Levi", "Avi Cohen"}, names)
}

func TestTenantStoreReAddUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewTenantStore().WithClock(clock.now)

	require.NoError(t, store.Add(ctx, &domain.Tenant{ChatID: 100, Name: "Dana Levi", Unit: "4B"}))
	clock.advance(time.Hour)
	require.NoError(t, store.Add(ctx, &domain.Tenant{ChatID: 100, Name: "Avi Cohen"}))
	clock.advance(time.Hour)
	// re-onboarding Dana must not duplicate her or move her to the end
	require.NoError(t, store.Add(ctx, &domain.Tenant{ChatID: 100, Name: "Dana Levi", Unit: "7A"}))

	names, err := store.Names(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dana Levi", "Avi Cohen"}, names)
}
