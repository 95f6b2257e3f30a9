package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// LeaseRepositoryInterface grants per-campaign exclusive processing rights with expiry.
type LeaseRepositoryInterface interface {
	TryAcquire(ctx context.Context, campaignID int64, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, campaignID int64, holder string) error
}

type LeaseRepository struct {
	DB *sqlx.DB
}

// TryAcquire takes the lease when it is free, expired, or already held by holder.
func (r *LeaseRepository) TryAcquire(ctx context.Context, campaignID int64, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO campaign_leases (campaign_id, holder, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (campaign_id) DO UPDATE
		SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		WHERE campaign_leases.expires_at < $4 OR campaign_leases.holder = EXCLUDED.holder`,
		campaignID, holder, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *LeaseRepository) Release(ctx context.Context, campaignID int64, holder string) error {
	_, err := r.DB.ExecContext(ctx,
		`DELETE FROM campaign_leases WHERE campaign_id = $1 AND holder = $2`, campaignID, holder)
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

var _ LeaseRepositoryInterface = (*LeaseRepository)(nil)
