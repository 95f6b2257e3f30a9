package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/zainab674/voiceagents-sub004/internal/errors"
	"github.com/zainab674/voiceagents-sub004/internal/model"
)

// CallEventMutation edits a call and its campaign in one critical section.
type CallEventMutation func(call *model.CampaignCall, c *model.Campaign) error

type CampaignCallRepositoryInterface interface {
	// CreateAttempt records a call row for the contact and advances the campaign
	// cursor past it. For a new row, reserve runs against the locked campaign in
	// the same transaction; its error aborts the whole attempt. It returns false
	// when the contact already has a row for this campaign; call is then filled
	// with the existing row and reserve is not applied.
	CreateAttempt(ctx context.Context, call *model.CampaignCall, reserve CampaignMutation) (bool, *model.Campaign, error)
	// MarkDispatched attaches provider refs to a placed call.
	MarkDispatched(ctx context.Context, callID int64, callRef, sessionRef string) error
	// MarkFailed fails a still-pending call and applies release to its campaign atomically.
	MarkFailed(ctx context.Context, callID int64, notes string, release CampaignMutation) error
	ApplyEvent(ctx context.Context, callRef string, mutate CallEventMutation) (*model.CampaignCall, *model.Campaign, error)
	CountByStatus(ctx context.Context, campaignID int64) (map[model.CallStatus]int, error)
	ListByCampaign(ctx context.Context, campaignID int64, limit, offset int) ([]*model.CampaignCall, error)
}

type CampaignCallRepository struct {
	DB *sqlx.DB
}

const callColumns = `
	id, campaign_id, contact_key, contact_name, contact_phone, contact_email,
	call_ref, session_ref, status, outcome, duration, notes,
	started_at, answered_at, completed_at, created_at, updated_at`

func (r *CampaignCallRepository) CreateAttempt(ctx context.Context, call *model.CampaignCall, reserve CampaignMutation) (bool, *model.Campaign, error) {
	now := time.Now().UTC()
	call.CreatedAt = now
	call.UpdatedAt = now
	if call.Status == "" {
		call.Status = model.CallPending
	}

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	c, err := lockCampaign(ctx, tx, call.CampaignID)
	if err != nil {
		return false, nil, err
	}

	query := `
		INSERT INTO campaign_calls (
			campaign_id, contact_key, contact_name, contact_phone, contact_email,
			status, notes, started_at, completed_at, created_at, updated_at
		) VALUES (
			:campaign_id, :contact_key, :contact_name, :contact_phone, :contact_email,
			:status, :notes, :started_at, :completed_at, :created_at, :updated_at
		)
		ON CONFLICT (campaign_id, contact_key) DO NOTHING
		RETURNING id`

	query, args, err := tx.BindNamed(query, call)
	if err != nil {
		return false, nil, fmt.Errorf("failed to bind call insert: %w", err)
	}
	created := true
	if err := tx.QueryRowxContext(ctx, query, args...).Scan(&call.ID); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return false, nil, fmt.Errorf("failed to create call: %w", err)
		}
		created = false
		if err := tx.GetContext(ctx, call,
			`SELECT `+callColumns+` FROM campaign_calls WHERE campaign_id = $1 AND contact_key = $2`,
			call.CampaignID, call.ContactKey); err != nil {
			return false, nil, fmt.Errorf("failed to load existing call: %w", err)
		}
	}

	if created && reserve != nil {
		if err := reserve(c); err != nil {
			return false, nil, err
		}
	}
	if call.ContactKey > c.LastContactKey {
		c.LastContactKey = call.ContactKey
	}
	if err := saveCampaign(ctx, tx, c); err != nil {
		return false, nil, err
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return created, c, nil
}

func (r *CampaignCallRepository) MarkDispatched(ctx context.Context, callID int64, callRef, sessionRef string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE campaign_calls
		SET call_ref = $1, session_ref = $2, updated_at = $3
		WHERE id = $4`, callRef, sessionRef, time.Now().UTC(), callID)
	if err != nil {
		return fmt.Errorf("failed to attach call refs: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("call %d not found", callID)
	}
	return nil
}

func (r *CampaignCallRepository) MarkFailed(ctx context.Context, callID int64, notes string, release CampaignMutation) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var campaignID int64
	err = tx.QueryRowxContext(ctx, `
		UPDATE campaign_calls
		SET status = $1, notes = $2, completed_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5
		RETURNING campaign_id`,
		model.CallFailed, notes, now, callID, model.CallPending).Scan(&campaignID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Already moved on; nothing to release.
			return nil
		}
		return fmt.Errorf("failed to mark call failed: %w", err)
	}

	if release != nil {
		c, err := lockCampaign(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if err := release(c); err != nil {
			return err
		}
		if err := saveCampaign(ctx, tx, c); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *CampaignCallRepository) ApplyEvent(ctx context.Context, callRef string, mutate CallEventMutation) (*model.CampaignCall, *model.Campaign, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var call model.CampaignCall
	err = tx.GetContext(ctx, &call,
		`SELECT `+callColumns+` FROM campaign_calls WHERE call_ref = $1 FOR UPDATE`, callRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.NewCallNotFound(callRef)
		}
		return nil, nil, fmt.Errorf("failed to lock call: %w", err)
	}

	c, err := lockCampaign(ctx, tx, call.CampaignID)
	if err != nil {
		return nil, nil, err
	}
	if err := mutate(&call, c); err != nil {
		return nil, nil, err
	}

	call.UpdatedAt = time.Now().UTC()
	_, err = tx.NamedExecContext(ctx, `
		UPDATE campaign_calls SET
			status = :status,
			outcome = :outcome,
			duration = :duration,
			notes = :notes,
			started_at = :started_at,
			answered_at = :answered_at,
			completed_at = :completed_at,
			updated_at = :updated_at
		WHERE id = :id`, &call)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update call: %w", err)
	}
	if err := saveCampaign(ctx, tx, c); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &call, c, nil
}

func (r *CampaignCallRepository) CountByStatus(ctx context.Context, campaignID int64) (map[model.CallStatus]int, error) {
	rows, err := r.DB.QueryxContext(ctx, `
		SELECT status, COUNT(*) FROM campaign_calls
		WHERE campaign_id = $1
		GROUP BY status`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to count calls: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.CallStatus]int)
	for rows.Next() {
		var status model.CallStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *CampaignCallRepository) ListByCampaign(ctx context.Context, campaignID int64, limit, offset int) ([]*model.CampaignCall, error) {
	calls := []*model.CampaignCall{}
	err := r.DB.SelectContext(ctx, &calls, `
		SELECT `+callColumns+` FROM campaign_calls
		WHERE campaign_id = $1
		ORDER BY contact_key
		LIMIT $2 OFFSET $3`, campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	return calls, nil
}

var _ CampaignCallRepositoryInterface = (*CampaignCallRepository)(nil)
