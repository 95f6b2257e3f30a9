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

// CampaignMutation edits a campaign inside the store's critical section.
// Returning an error aborts the write.
type CampaignMutation func(c *model.Campaign) error

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	ListByStatus(ctx context.Context, status model.ExecutionStatus) ([]*model.Campaign, error)
	// Update applies mutate to the current row under a row lock and persists the result.
	Update(ctx context.Context, id int64, mutate CampaignMutation) (*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sqlx.DB
}

const campaignColumns = `
	id, name, owner_id, agent_id, source_kind, source_id,
	daily_cap, calling_days, start_hour, end_hour, timezone, campaign_prompt,
	execution_status, pause_reason, last_error,
	next_call_at, current_daily_calls, last_daily_reset, last_contact_key,
	total_calls_made, total_calls_answered, total_usage,
	dials, pickups, interested, not_interested, callback, do_not_call,
	voicemail, wrong_number, unclassified,
	started_at, completed_at, created_at, updated_at`

const updateCampaignSQL = `
	UPDATE campaigns SET
		name = :name,
		agent_id = :agent_id,
		daily_cap = :daily_cap,
		calling_days = :calling_days,
		start_hour = :start_hour,
		end_hour = :end_hour,
		timezone = :timezone,
		campaign_prompt = :campaign_prompt,
		execution_status = :execution_status,
		pause_reason = :pause_reason,
		last_error = :last_error,
		next_call_at = :next_call_at,
		current_daily_calls = :current_daily_calls,
		last_daily_reset = :last_daily_reset,
		last_contact_key = :last_contact_key,
		total_calls_made = :total_calls_made,
		total_calls_answered = :total_calls_answered,
		total_usage = :total_usage,
		dials = :dials,
		pickups = :pickups,
		interested = :interested,
		not_interested = :not_interested,
		callback = :callback,
		do_not_call = :do_not_call,
		voicemail = :voicemail,
		wrong_number = :wrong_number,
		unclassified = :unclassified,
		started_at = :started_at,
		completed_at = :completed_at,
		updated_at = :updated_at
	WHERE id = :id`

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = model.StatusIdle
	}

	query := `
		INSERT INTO campaigns (
			name, owner_id, agent_id, source_kind, source_id,
			daily_cap, calling_days, start_hour, end_hour, timezone, campaign_prompt,
			execution_status, created_at, updated_at
		) VALUES (
			:name, :owner_id, :agent_id, :source_kind, :source_id,
			:daily_cap, :calling_days, :start_hour, :end_hour, :timezone, :campaign_prompt,
			:execution_status, :created_at, :updated_at
		) RETURNING id`

	rows, err := r.DB.NamedQueryContext(ctx, query, c)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return fmt.Errorf("failed to create campaign: no id returned")
	}
	return rows.Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var c model.Campaign
	err := r.DB.GetContext(ctx, &c, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &c, nil
}

func (r *CampaignRepository) ListByStatus(ctx context.Context, status model.ExecutionStatus) ([]*model.Campaign, error) {
	campaigns := []*model.Campaign{}
	err := r.DB.SelectContext(ctx, &campaigns,
		`SELECT `+campaignColumns+` FROM campaigns WHERE execution_status = $1 ORDER BY id`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *CampaignRepository) Update(ctx context.Context, id int64, mutate CampaignMutation) (*model.Campaign, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	c, err := lockCampaign(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(c); err != nil {
		return nil, err
	}
	if err := saveCampaign(ctx, tx, c); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return c, nil
}

func lockCampaign(ctx context.Context, tx *sqlx.Tx, id int64) (*model.Campaign, error) {
	var c model.Campaign
	err := tx.GetContext(ctx, &c, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, fmt.Errorf("failed to lock campaign: %w", err)
	}
	return &c, nil
}

func saveCampaign(ctx context.Context, tx *sqlx.Tx, c *model.Campaign) error {
	c.UpdatedAt = time.Now().UTC()
	if _, err := tx.NamedExecContext(ctx, updateCampaignSQL, c); err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
