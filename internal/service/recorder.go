// internal/service/recorder.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zainab674/voiceagents-sub004/internal/contactsource"
	appErrors "github.com/zainab674/voiceagents-sub004/internal/errors"
	"github.com/zainab674/voiceagents-sub004/internal/logging"
	"github.com/zainab674/voiceagents-sub004/internal/metrics"
	"github.com/zainab674/voiceagents-sub004/internal/model"
	"github.com/zainab674/voiceagents-sub004/internal/repository"
)

// Recorder applies asynchronous provider events to call rows and campaign
// aggregates. Events may be duplicated or arrive out of order.
type Recorder struct {
	Calls   repository.CampaignCallRepositoryInterface
	Sources contactsource.Registry
	Logger  *zap.Logger
	Now     func() time.Time
}

// ValidateEvent checks an event before it is queued or applied.
func ValidateEvent(ev model.CallEvent) error {
	if ev.CallRef == "" {
		return fmt.Errorf("%w: call_ref is required", appErrors.ErrInvalidEvent)
	}
	if ev.Status != "" && !ev.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", appErrors.ErrInvalidEvent, ev.Status)
	}
	if ev.Outcome != "" && !ev.Outcome.Valid() {
		return fmt.Errorf("%w: unknown outcome %q", appErrors.ErrInvalidEvent, ev.Outcome)
	}
	if ev.Duration < 0 {
		return fmt.Errorf("%w: negative duration", appErrors.ErrInvalidEvent)
	}
	if ev.Status == "" && ev.Outcome == "" && ev.Duration == 0 && ev.Notes == "" {
		return fmt.Errorf("%w: event carries no update", appErrors.ErrInvalidEvent)
	}
	return nil
}

// Apply records one event. It returns ErrCallNotFound when the call ref is not
// known yet, which callers treat as retryable.
func (r *Recorder) Apply(ctx context.Context, ev model.CallEvent) error {
	if err := ValidateEvent(ev); err != nil {
		metrics.RecordCallEvent(string(ev.Status), "invalid")
		return err
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = r.now()
	}
	logger := logging.OrNop(r.Logger).With(zap.String("call_ref", ev.CallRef))

	var changed bool
	var prevOutcome *model.Outcome
	call, c, err := r.Calls.ApplyEvent(ctx, ev.CallRef, func(call *model.CampaignCall, c *model.Campaign) error {
		prevOutcome = call.Outcome
		changed = applyCallEvent(call, c, ev)
		return nil
	})
	if err != nil {
		result := "error"
		if appErrors.IsNotFound(err) {
			result = "not_found"
		}
		metrics.RecordCallEvent(string(ev.Status), result)
		return err
	}

	if !changed {
		metrics.RecordCallEvent(string(ev.Status), "duplicate")
		logger.Debug("call event already applied")
	} else {
		metrics.RecordCallEvent(string(ev.Status), "applied")
		if call.Outcome != nil && (prevOutcome == nil || *prevOutcome != *call.Outcome) {
			metrics.RecordOutcome(string(*call.Outcome))
		}
		logger.Info("call event applied",
			zap.Int64("campaign_id", c.ID),
			zap.Int64("call_id", call.ID),
			zap.String("status", string(call.Status)),
		)
	}

	// Marking is idempotent, so redelivered events repair a mark that failed earlier.
	if call.Outcome != nil && *call.Outcome == model.OutcomeDoNotCall {
		if err := r.markDoNotCall(ctx, c, call); err != nil {
			logger.Error("failed to flag contact do-not-call", zap.Error(err))
			return err
		}
	}
	return nil
}

func (r *Recorder) markDoNotCall(ctx context.Context, c *model.Campaign, call *model.CampaignCall) error {
	src, err := r.Sources.For(c.SourceKind)
	if err != nil {
		return err
	}
	return src.MarkDoNotCall(ctx, c.SourceID, call.ContactKey)
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// applyCallEvent folds ev into the call and its campaign's aggregates and
// reports whether anything changed. Status only moves forward, duration only
// grows and is frozen once the call is terminal, and each answered call sits
// in exactly one outcome bucket.
func applyCallEvent(call *model.CampaignCall, c *model.Campaign, ev model.CallEvent) bool {
	changed := false
	at := ev.OccurredAt
	wasTerminal := call.Status.Terminal()

	if ev.Status != "" && call.Status.Advances(ev.Status) {
		if call.Status == model.CallPending && ev.Status != model.CallFailed {
			c.Dials++
		}
		call.Status = ev.Status
		if call.StartedAt == nil {
			call.StartedAt = &at
		}
		if ev.Status.Connected() && call.AnsweredAt == nil {
			call.AnsweredAt = &at
			c.Pickups++
			c.TotalCallsAnswered++
			*c.OutcomeCounter(call.Outcome)++
		}
		if ev.Status.Terminal() {
			call.CompletedAt = &at
		}
		changed = true
	}

	if !wasTerminal && ev.Duration > call.Duration {
		c.TotalUsage += int64(ev.Duration - call.Duration)
		call.Duration = ev.Duration
		changed = true
	}

	if ev.Outcome != "" && (call.Outcome == nil || *call.Outcome != ev.Outcome) {
		if call.AnsweredAt != nil {
			*c.OutcomeCounter(call.Outcome)--
			*c.OutcomeCounter(&ev.Outcome)++
		}
		o := ev.Outcome
		call.Outcome = &o
		changed = true
	}

	if ev.Notes != "" && ev.Notes != call.Notes {
		call.Notes = ev.Notes
		changed = true
	}
	return changed
}
