package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/zainab674/voiceagents-sub004/internal/model"
)

// ContactRepositoryInterface backs list-kind contact sources.
type ContactRepositoryInterface interface {
	ListExists(ctx context.Context, listID string) (bool, error)
	// Next returns the first dialable contact with key > afterKey, or nil when none remain.
	Next(ctx context.Context, listID string, afterKey int64) (*model.Contact, error)
	Count(ctx context.Context, listID string) (int, error)
	CountAfter(ctx context.Context, listID string, afterKey int64) (int, error)
	MarkDoNotCall(ctx context.Context, listID string, key int64) error
	Insert(ctx context.Context, c *model.Contact) error
}

type ContactRepository struct {
	DB *sqlx.DB
}

func (r *ContactRepository) ListExists(ctx context.Context, listID string) (bool, error) {
	var exists bool
	err := r.DB.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM contacts WHERE list_id = $1)`, listID)
	if err != nil {
		return false, fmt.Errorf("failed to check contact list: %w", err)
	}
	return exists, nil
}

func (r *ContactRepository) Next(ctx context.Context, listID string, afterKey int64) (*model.Contact, error) {
	var c model.Contact
	err := r.DB.GetContext(ctx, &c, `
		SELECT id, list_id, external_id, name, phone, email, do_not_call
		FROM contacts
		WHERE list_id = $1 AND id > $2 AND NOT do_not_call
		ORDER BY id
		LIMIT 1`, listID, afterKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch next contact: %w", err)
	}
	return &c, nil
}

func (r *ContactRepository) Count(ctx context.Context, listID string) (int, error) {
	var n int
	if err := r.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM contacts WHERE list_id = $1`, listID); err != nil {
		return 0, fmt.Errorf("failed to count contacts: %w", err)
	}
	return n, nil
}

func (r *ContactRepository) CountAfter(ctx context.Context, listID string, afterKey int64) (int, error) {
	var n int
	err := r.DB.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM contacts
		WHERE list_id = $1 AND id > $2 AND NOT do_not_call`, listID, afterKey)
	if err != nil {
		return 0, fmt.Errorf("failed to count remaining contacts: %w", err)
	}
	return n, nil
}

func (r *ContactRepository) MarkDoNotCall(ctx context.Context, listID string, key int64) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE contacts SET do_not_call = TRUE WHERE list_id = $1 AND id = $2`, listID, key)
	if err != nil {
		return fmt.Errorf("failed to mark contact do-not-call: %w", err)
	}
	return nil
}

func (r *ContactRepository) Insert(ctx context.Context, c *model.Contact) error {
	query := `
		INSERT INTO contacts (list_id, external_id, name, phone, email, do_not_call)
		VALUES (:list_id, :external_id, :name, :phone, :email, :do_not_call)
		RETURNING id`
	query, args, err := r.DB.BindNamed(query, c)
	if err != nil {
		return fmt.Errorf("failed to bind contact insert: %w", err)
	}
	if err := r.DB.QueryRowxContext(ctx, query, args...).Scan(&c.Key); err != nil {
		return fmt.Errorf("failed to insert contact: %w", err)
	}
	return nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
