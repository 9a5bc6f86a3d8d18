package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/idobetesh/papertrail/internal/domain"
)

// DedupStore claims callback ids through a single conditional upsert, so
// two racing handlers can never both win a claim.
type DedupStore struct {
	db *sqlx.DB
}

// NewDedupStore wraps an open connection pool.
func NewDedupStore(db *sqlx.DB) *DedupStore {
	return &DedupStore{db: db}
}

func (d *DedupStore) Claim(ctx context.Context, eventID string, ttl time.Duration) error {
	// The upsert only steals an existing marker when its window lapsed;
	// a live marker leaves zero rows affected.
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO callback_markers (event_id, processed_at, expires_at)
		VALUES ($1, now(), now() + $2 * interval '1 second')
		ON CONFLICT (event_id) DO UPDATE
		   SET processed_at = now(), expires_at = now() + $2 * interval '1 second'
		 WHERE callback_markers.expires_at <= now()`,
		eventID, int64(ttl.Seconds()))
	if err != nil {
		return domain.StorageErr("dedup.claim", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.StorageErr("dedup.claim", err)
	}
	if n == 0 {
		return domain.ErrAlreadyProcessed
	}
	return nil
}

func (d *DedupStore) PurgeExpired(ctx context.Context, limit int) (int, error) {
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM callback_markers
		 WHERE event_id IN (
		       SELECT event_id FROM callback_markers
		        WHERE expires_at <= now()
		        LIMIT $1)`,
		limit)
	if err != nil {
		return 0, domain.StorageErr("dedup.purge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.StorageErr("dedup.purge", err)
	}
	return int(n), nil
}
