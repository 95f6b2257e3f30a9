// internal/model/campaign_call.go
package model

import "time"

// CallStatus is the provider-driven status of one call attempt.
type CallStatus string

const (
	CallPending   CallStatus = "pending"
	CallCalling   CallStatus = "calling"
	CallAnswered  CallStatus = "answered"
	CallCompleted CallStatus = "completed"
	CallFailed    CallStatus = "failed"
	CallNoAnswer  CallStatus = "no_answer"
	CallBusy      CallStatus = "busy"
)

func (s CallStatus) Valid() bool {
	return s.rank() >= 0
}

// Terminal statuses never change once written.
func (s CallStatus) Terminal() bool {
	return s.rank() == 3
}

// Connected reports whether the status implies the callee picked up.
func (s CallStatus) Connected() bool {
	return s == CallAnswered || s == CallCompleted
}

// Advances reports whether moving from s to next goes forward in the call lifecycle.
func (s CallStatus) Advances(next CallStatus) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	return next.rank() > s.rank()
}

func (s CallStatus) rank() int {
	switch s {
	case CallPending:
		return 0
	case CallCalling:
		return 1
	case CallAnswered:
		return 2
	case CallCompleted, CallFailed, CallNoAnswer, CallBusy:
		return 3
	}
	return -1
}

// Outcome classifies a finished conversation.
type Outcome string

const (
	OutcomeInterested    Outcome = "interested"
	OutcomeNotInterested Outcome = "not_interested"
	OutcomeCallback      Outcome = "callback"
	OutcomeDoNotCall     Outcome = "do_not_call"
	OutcomeVoicemail     Outcome = "voicemail"
	OutcomeWrongNumber   Outcome = "wrong_number"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeInterested, OutcomeNotInterested, OutcomeCallback,
		OutcomeDoNotCall, OutcomeVoicemail, OutcomeWrongNumber:
		return true
	}
	return false
}

// CampaignCall is one dial attempt. Contact fields are a snapshot taken at dial time.
type CampaignCall struct {
	ID         int64 `db:"id" json:"id"`
	CampaignID int64 `db:"campaign_id" json:"campaign_id"`

	ContactKey   int64  `db:"contact_key" json:"contact_key"`
	ContactName  string `db:"contact_name" json:"contact_name"`
	ContactPhone string `db:"contact_phone" json:"contact_phone"`
	ContactEmail string `db:"contact_email" json:"contact_email"`

	CallRef    *string `db:"call_ref" json:"call_ref,omitempty"`
	SessionRef *string `db:"session_ref" json:"session_ref,omitempty"`

	Status   CallStatus `db:"status" json:"status"`
	Outcome  *Outcome   `db:"outcome" json:"outcome,omitempty"`
	Duration int        `db:"duration" json:"duration"` // seconds
	Notes    string     `db:"notes" json:"notes,omitempty"`

	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	AnsweredAt  *time.Time `db:"answered_at" json:"answered_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

func (c *CampaignCall) Clone() *CampaignCall {
	cp := *c
	cp.CallRef = cloneString(c.CallRef)
	cp.SessionRef = cloneString(c.SessionRef)
	if c.Outcome != nil {
		o := *c.Outcome
		cp.Outcome = &o
	}
	cp.StartedAt = cloneTime(c.StartedAt)
	cp.AnsweredAt = cloneTime(c.AnsweredAt)
	cp.CompletedAt = cloneTime(c.CompletedAt)
	return &cp
}

// CallEvent is one asynchronous status/outcome notification from the provider.
type CallEvent struct {
	CallRef    string     `json:"call_ref"`
	Status     CallStatus `json:"status,omitempty"`
	Duration   int        `json:"duration,omitempty"`
	Outcome    Outcome    `json:"outcome,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	OccurredAt time.Time  `json:"occurred_at,omitempty"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
