// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zainab674/voiceagents-sub004/internal/contactsource"
	appErrors "github.com/zainab674/voiceagents-sub004/internal/errors"
	"github.com/zainab674/voiceagents-sub004/internal/logging"
	"github.com/zainab674/voiceagents-sub004/internal/metrics"
	"github.com/zainab674/voiceagents-sub004/internal/model"
	"github.com/zainab674/voiceagents-sub004/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	CallRepo     repository.CampaignCallRepositoryInterface
	Sources      contactsource.Registry
	Logger       *zap.Logger
	Now          func() time.Time
}

// QueueSummary buckets a campaign's contacts by dispatch progress.
type QueueSummary struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

type CampaignStatus struct {
	Campaign *model.Campaign `json:"campaign"`
	Queue    QueueSummary    `json:"queue"`
}

type CreateCampaignInput struct {
	Name        string           `json:"name"`
	OwnerID     string           `json:"owner_id"`
	AgentID     string           `json:"agent_id"`
	SourceKind  model.SourceKind `json:"source_kind"`
	SourceID    string           `json:"source_id"`
	DailyCap    int              `json:"daily_cap"`
	CallingDays model.Weekdays   `json:"calling_days"`
	StartHour   int              `json:"start_hour"`
	EndHour     int              `json:"end_hour"`
	Timezone    string           `json:"timezone"`
	Prompt      string           `json:"campaign_prompt"`
}

// ValidationError reports invalid campaign input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.Sources.For(in.SourceKind); err != nil {
		return nil, &ValidationError{Field: "source_kind", Reason: "unsupported"}
	}

	c := &model.Campaign{
		Name:        strings.TrimSpace(in.Name),
		OwnerID:     in.OwnerID,
		AgentID:     in.AgentID,
		SourceKind:  in.SourceKind,
		SourceID:    in.SourceID,
		DailyCap:    in.DailyCap,
		CallingDays: in.CallingDays,
		StartHour:   in.StartHour,
		EndHour:     in.EndHour,
		Timezone:    in.Timezone,
		Prompt:      in.Prompt,
		Status:      model.StatusIdle,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger().Info("campaign created",
		zap.Int64("campaign_id", c.ID),
		zap.String("source_kind", string(c.SourceKind)),
		zap.String("source_id", c.SourceID),
	)
	return c, nil
}

func (in CreateCampaignInput) validate() error {
	switch {
	case strings.TrimSpace(in.OwnerID) == "":
		return &ValidationError{Field: "owner_id", Reason: "required"}
	case strings.TrimSpace(in.AgentID) == "":
		return &ValidationError{Field: "agent_id", Reason: "required"}
	case strings.TrimSpace(in.SourceID) == "":
		return &ValidationError{Field: "source_id", Reason: "required"}
	case in.DailyCap < 1:
		return &ValidationError{Field: "daily_cap", Reason: "must be at least 1"}
	case len(in.CallingDays) == 0:
		return &ValidationError{Field: "calling_days", Reason: "at least one day required"}
	case in.StartHour < 0 || in.StartHour > 23:
		return &ValidationError{Field: "start_hour", Reason: "must be between 0 and 23"}
	case in.EndHour < 1 || in.EndHour > 24:
		return &ValidationError{Field: "end_hour", Reason: "must be between 1 and 24"}
	case in.StartHour >= in.EndHour:
		return &ValidationError{Field: "end_hour", Reason: "must be after start_hour"}
	}
	if in.Timezone != "" {
		if _, err := time.LoadLocation(in.Timezone); err != nil {
			return &ValidationError{Field: "timezone", Reason: "unknown time zone"}
		}
	}
	return nil
}

// ====================== Lifecycle ======================

// Start moves an idle or paused campaign to running.
func (s *CampaignService) Start(ctx context.Context, id int64) (*model.Campaign, error) {
	return s.apply(ctx, id, CmdStart, "")
}

// Pause stops dialing at the next tick. A dispatch already in flight may complete.
func (s *CampaignService) Pause(ctx context.Context, id int64, reason string) (*model.Campaign, error) {
	return s.apply(ctx, id, CmdPause, strings.TrimSpace(reason))
}

func (s *CampaignService) Resume(ctx context.Context, id int64) (*model.Campaign, error) {
	return s.apply(ctx, id, CmdResume, "")
}

// Stop completes the campaign. It cannot be started again.
func (s *CampaignService) Stop(ctx context.Context, id int64) (*model.Campaign, error) {
	return s.apply(ctx, id, CmdStop, "")
}

func (s *CampaignService) apply(ctx context.Context, id int64, cmd Command, detail string) (*model.Campaign, error) {
	var from model.ExecutionStatus
	c, err := s.CampaignRepo.Update(ctx, id, func(c *model.Campaign) error {
		from = c.Status
		return transition(c, cmd, detail, s.now())
	})
	if err != nil {
		if appErrors.IsTransition(err) {
			s.logger().Info("lifecycle command rejected",
				zap.Int64("campaign_id", id),
				zap.String("command", string(cmd)),
				zap.Error(err),
			)
		}
		return nil, err
	}

	metrics.RecordTransition(string(c.Status))
	s.logger().Info("campaign status changed",
		zap.Int64("campaign_id", id),
		zap.String("command", string(cmd)),
		zap.String("from", string(from)),
		zap.String("to", string(c.Status)),
		zap.String("reason", detail),
	)
	return c, nil
}

// ====================== Status ======================

// GetStatus returns the committed campaign row and its queue summary.
func (s *CampaignService) GetStatus(ctx context.Context, id int64) (*CampaignStatus, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.CallRepo.CountByStatus(ctx, id)
	if err != nil {
		return nil, err
	}

	summary := QueueSummary{
		Processing: counts[model.CallPending] + counts[model.CallCalling] + counts[model.CallAnswered],
		Completed:  counts[model.CallCompleted],
		Failed:     counts[model.CallFailed] + counts[model.CallNoAnswer] + counts[model.CallBusy],
	}
	if !c.Status.Terminal() {
		summary.Queued = s.remaining(ctx, c)
	}
	return &CampaignStatus{Campaign: c, Queue: summary}, nil
}

func (s *CampaignService) remaining(ctx context.Context, c *model.Campaign) int {
	src, err := s.Sources.For(c.SourceKind)
	if err == nil {
		var n int
		if n, err = src.Remaining(ctx, c.SourceID, c.LastContactKey); err == nil {
			return n
		}
	}
	s.logger().Warn("failed to count remaining contacts",
		zap.Int64("campaign_id", c.ID),
		zap.Error(err),
	)
	return 0
}

// ListCalls pages through a campaign's call history in dial order.
func (s *CampaignService) ListCalls(ctx context.Context, id int64, page, pageSize int) ([]*model.CampaignCall, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	if _, err := s.CampaignRepo.GetByID(ctx, id); err != nil {
		return nil, nil, err
	}
	calls, err := s.CallRepo.ListByCampaign(ctx, id, pageSize, offset)
	if err != nil {
		return nil, nil, err
	}

	counts, err := s.CallRepo.CountByStatus(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": (total + pageSize - 1) / pageSize,
	}
	return calls, pagination, nil
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *CampaignService) logger() *zap.Logger {
	return logging.OrNop(s.Logger)
}
