package contactsource

import (
	"context"
	"fmt"

	appErrors "github.com/zainab674/voiceagents-sub004/internal/errors"
	"github.com/zainab674/voiceagents-sub004/internal/model"
	"github.com/zainab674/voiceagents-sub004/internal/repository"
)

// ListSource reads reusable contact lists stored in the database. The
// do-not-call flag lives on the contact row, so it is shared by every
// campaign that references the list.
type ListSource struct {
	Repo repository.ContactRepositoryInterface
}

func (s *ListSource) Count(ctx context.Context, listID string) (int, error) {
	n, err := s.Repo.Count(ctx, listID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, s.missing(listID)
	}
	return n, nil
}

func (s *ListSource) Next(ctx context.Context, listID string, afterKey int64) (*model.Contact, error) {
	c, err := s.Repo.Next(ctx, listID, afterKey)
	if err != nil || c != nil {
		return c, err
	}
	exists, err := s.Repo.ListExists(ctx, listID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, s.missing(listID)
	}
	return nil, nil
}

func (s *ListSource) Remaining(ctx context.Context, listID string, afterKey int64) (int, error) {
	return s.Repo.CountAfter(ctx, listID, afterKey)
}

func (s *ListSource) MarkDoNotCall(ctx context.Context, listID string, key int64) error {
	return s.Repo.MarkDoNotCall(ctx, listID, key)
}

func (s *ListSource) missing(listID string) error {
	return appErrors.NewConfigError("load contact list",
		fmt.Errorf("%w: list %q", appErrors.ErrSourceNotFound, listID))
}

var _ Source = (*ListSource)(nil)
