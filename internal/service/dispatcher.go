// internal/service/dispatcher.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	appErrors "github.com/zainab674/voiceagents-sub004/internal/errors"
	"github.com/zainab674/voiceagents-sub004/internal/logging"
	"github.com/zainab674/voiceagents-sub004/internal/metrics"
	"github.com/zainab674/voiceagents-sub004/internal/model"
	"github.com/zainab674/voiceagents-sub004/internal/repository"
	"github.com/zainab674/voiceagents-sub004/internal/telephony"
)

// errCapReached aborts an attempt whose cap slot could not be reserved.
var errCapReached = errors.New("daily cap reached")

// Dispatcher places one outbound call for a campaign contact and records the
// attempt. It never retries a call: every attempt consumes the contact.
type Dispatcher struct {
	Calls          repository.CampaignCallRepositoryInterface
	Provider       telephony.Provider
	Region         string
	InterCallDelay time.Duration
	// RecordBackoff spaces the retries of a failed call-ref write. Defaults to 200ms.
	RecordBackoff time.Duration
	Logger        *zap.Logger
	Now           func() time.Time

	// Placed calls whose refs could not be stored yet, keyed by call id.
	unrecorded sync.Map
}

// DispatchResult describes what happened to the contact. Campaign is the
// campaign row after the attempt was recorded.
type DispatchResult struct {
	Call       *model.CampaignCall
	Campaign   *model.Campaign
	Dispatched bool
}

// Dispatch returns a ConfigError when the campaign itself cannot dial and a
// TransientError when only this attempt failed. A nil result with a nil error
// means the daily cap was already used up.
//
// The cap slot, the call counters and next_call_at are reserved together with
// the attempt row before the provider is called, so a live call is always
// counted even if later bookkeeping fails. A provider failure gives the slot back.
func (d *Dispatcher) Dispatch(ctx context.Context, c *model.Campaign, contact *model.Contact) (*DispatchResult, error) {
	logger := d.logger().With(
		zap.Int64("campaign_id", c.ID),
		zap.Int64("contact_key", contact.Key),
	)

	trunk, err := d.Provider.EnsureOutboundTrunk(ctx, c.AgentID)
	if err != nil {
		if appErrors.IsConfig(err) {
			metrics.RecordDispatch("config_error")
			return nil, err
		}
		metrics.RecordDispatch("trunk_unavailable")
		return nil, appErrors.NewTransientError("resolve outbound trunk", err)
	}

	now := d.now()
	call := &model.CampaignCall{
		CampaignID:   c.ID,
		ContactKey:   contact.Key,
		ContactName:  contact.Name,
		ContactPhone: contact.Phone,
		ContactEmail: contact.Email,
		Status:       model.CallPending,
		StartedAt:    &now,
	}

	phone, err := NormalizePhone(contact.Phone, d.Region)
	if err != nil {
		call.Status = model.CallFailed
		call.Notes = err.Error()
		call.CompletedAt = &now
		if _, _, cerr := d.Calls.CreateAttempt(ctx, call, nil); cerr != nil {
			return nil, cerr
		}
		metrics.RecordDispatch("invalid_number")
		logger.Warn("contact phone rejected", zap.Error(err))
		return &DispatchResult{Call: call}, appErrors.NewTransientError("normalize phone", err)
	}
	call.ContactPhone = phone

	created, reserved, err := d.Calls.CreateAttempt(ctx, call, d.reserveSlot)
	if errors.Is(err, errCapReached) {
		metrics.RecordSkip(SkipCap)
		logger.Info("daily cap reached before dialing")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !created {
		// Already attempted in an earlier run; the cursor has moved past it.
		metrics.RecordDispatch("duplicate")
		logger.Info("contact already attempted, skipping", zap.Int64("call_id", call.ID))
		return &DispatchResult{Call: call, Campaign: reserved}, nil
	}
	logger = logger.With(zap.Int64("call_id", call.ID))

	placed, err := d.Provider.CreateOutboundCall(ctx, telephony.OutboundCallRequest{
		TrunkID:    trunk,
		AgentID:    c.AgentID,
		PhoneE164:  phone,
		Prompt:     RenderPrompt(c.Prompt, contact, phone),
		CampaignID: c.ID,
		CallID:     call.ID,
		Contact: telephony.ContactMetadata{
			Name:  contact.Name,
			Email: contact.Email,
			Phone: phone,
		},
	})
	if err != nil {
		if ferr := d.Calls.MarkFailed(context.WithoutCancel(ctx), call.ID, err.Error(), releaseSlot); ferr != nil {
			logger.Error("failed to record call failure", zap.Error(ferr))
		}
		call.Status = model.CallFailed
		call.Notes = err.Error()
		if appErrors.IsConfig(err) {
			metrics.RecordDispatch("config_error")
			return &DispatchResult{Call: call}, err
		}
		metrics.RecordDispatch("failed")
		logger.Warn("outbound call failed", zap.Error(err))
		if appErrors.IsTransient(err) {
			return &DispatchResult{Call: call}, err
		}
		return &DispatchResult{Call: call}, appErrors.NewTransientError("create outbound call", err)
	}

	call.CallRef = &placed.CallRef
	call.SessionRef = &placed.SessionRef
	metrics.RecordDispatch("dispatched")
	logger.Info("outbound call placed",
		zap.String("call_ref", placed.CallRef),
		zap.String("session_ref", placed.SessionRef),
	)

	if err := d.recordRefs(ctx, call.ID, placed); err != nil {
		// The call is live and counted; its events stay unmatched until a later flush stores the refs.
		d.unrecorded.Store(call.ID, *placed)
		logger.Error("failed to record call refs, will retry",
			zap.String("call_ref", placed.CallRef),
			zap.Error(err),
		)
		return &DispatchResult{Call: call, Campaign: reserved, Dispatched: true},
			fmt.Errorf("record dispatched call %d: %w", call.ID, err)
	}
	return &DispatchResult{Call: call, Campaign: reserved, Dispatched: true}, nil
}

// reserveSlot claims one cap slot for the attempt about to be dialed.
func (d *Dispatcher) reserveSlot(c *model.Campaign) error {
	if c.CurrentDailyCalls >= c.DailyCap {
		return errCapReached
	}
	c.CurrentDailyCalls++
	c.TotalCallsMade++
	next := d.now().Add(d.InterCallDelay)
	c.NextCallAt = &next
	return nil
}

// releaseSlot returns the slot of an attempt the provider never placed.
func releaseSlot(c *model.Campaign) error {
	if c.CurrentDailyCalls > 0 {
		c.CurrentDailyCalls--
	}
	if c.TotalCallsMade > 0 {
		c.TotalCallsMade--
	}
	return nil
}

// recordRefs stores the provider refs, retrying a few times with linear backoff.
func (d *Dispatcher) recordRefs(ctx context.Context, callID int64, placed *telephony.OutboundCall) error {
	ctx = context.WithoutCancel(ctx)
	backoff := d.RecordBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if err = d.Calls.MarkDispatched(ctx, callID, placed.CallRef, placed.SessionRef); err == nil {
			return nil
		}
		if attempt < 3 {
			time.Sleep(time.Duration(attempt) * backoff)
		}
	}
	return err
}

// FlushUnrecorded retries storing refs of calls placed while the store was failing.
func (d *Dispatcher) FlushUnrecorded(ctx context.Context) {
	d.unrecorded.Range(func(key, value any) bool {
		callID := key.(int64)
		placed := value.(telephony.OutboundCall)
		if err := d.Calls.MarkDispatched(ctx, callID, placed.CallRef, placed.SessionRef); err != nil {
			d.logger().Warn("call refs still unrecorded",
				zap.Int64("call_id", callID),
				zap.String("call_ref", placed.CallRef),
				zap.Error(err),
			)
			return false
		}
		d.unrecorded.Delete(callID)
		d.logger().Info("recorded deferred call refs",
			zap.Int64("call_id", callID),
			zap.String("call_ref", placed.CallRef),
		)
		return true
	})
}

// Unrecorded reports how many placed calls still lack stored refs.
func (d *Dispatcher) Unrecorded() int {
	n := 0
	d.unrecorded.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) logger() *zap.Logger {
	return logging.OrNop(d.Logger)
}

// NormalizePhone parses raw in the default region and formats it as E.164.
func NormalizePhone(raw, region string) (string, error) {
	if region == "" {
		region = "US"
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("invalid phone number %q: %w", raw, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number %q", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
