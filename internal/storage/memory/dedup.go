package memory

import (
	"context"
	"sync"
	"time"

	"github.com/idobetesh/papertrail/internal/domain"
)

// DedupStore remembers processed event ids until their window lapses.
type DedupStore struct {
	mu    sync.Mutex
	marks map[string]time.Time // event id -> marker expiry

	now func() time.Time
}

// NewDedupStore builds an empty marker store.
func NewDedupStore() *DedupStore {
	return &DedupStore{
		marks: make(map[string]time.Time),
		now:   time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (d *DedupStore) WithClock(now func() time.Time) *DedupStore {
	d.now = now
	return d
}

func (d *DedupStore) Claim(_ context.Context, eventID string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if exp, ok := d.marks[eventID]; ok && exp.After(now) {
		return domain.ErrAlreadyProcessed
	}
	d.marks[eventID] = now.Add(ttl)
	return nil
}

func (d *DedupStore) PurgeExpired(_ context.Context, limit int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	purged := 0
	for id, exp := range d.marks {
		if purged >= limit {
			break
		}
		if !exp.After(now) {
			delete(d.marks, id)
			purged++
		}
	}
	return purged, nil
}
