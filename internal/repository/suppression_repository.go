package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/zainab674/voiceagents-sub004/internal/model"
)

// SuppressionRepositoryInterface stores do-not-call marks for sources that cannot
// be written back to, such as uploaded CSV files.
type SuppressionRepositoryInterface interface {
	Suppress(ctx context.Context, kind model.SourceKind, sourceID string, key int64) error
	Suppressed(ctx context.Context, kind model.SourceKind, sourceID string) (map[int64]bool, error)
}

type SuppressionRepository struct {
	DB *sqlx.DB
}

func (r *SuppressionRepository) Suppress(ctx context.Context, kind model.SourceKind, sourceID string, key int64) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO contact_suppressions (source_kind, source_id, contact_key)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, kind, sourceID, key)
	if err != nil {
		return fmt.Errorf("failed to suppress contact: %w", err)
	}
	return nil
}

func (r *SuppressionRepository) Suppressed(ctx context.Context, kind model.SourceKind, sourceID string) (map[int64]bool, error) {
	var keys []int64
	err := r.DB.SelectContext(ctx, &keys, `
		SELECT contact_key FROM contact_suppressions
		WHERE source_kind = $1 AND source_id = $2`, kind, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load suppressions: %w", err)
	}
	out := make(map[int64]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out, nil
}

var _ SuppressionRepositoryInterface = (*SuppressionRepository)(nil)
