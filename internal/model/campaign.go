// internal/model/campaign.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ExecutionStatus is the run state of a campaign.
type ExecutionStatus string

const (
	StatusIdle      ExecutionStatus = "idle"
	StatusRunning   ExecutionStatus = "running"
	StatusPaused    ExecutionStatus = "paused"
	StatusCompleted ExecutionStatus = "completed"
	StatusError     ExecutionStatus = "error"
)

func (s ExecutionStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusPaused, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether no lifecycle command can leave the status.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// SourceKind selects the contact source implementation of a campaign.
type SourceKind string

const (
	SourceCSV  SourceKind = "csv"
	SourceList SourceKind = "list"
)

// DateLayout formats Campaign.LastDailyReset.
const DateLayout = "2006-01-02"

type Campaign struct {
	ID      int64  `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	OwnerID string `db:"owner_id" json:"owner_id"`
	AgentID string `db:"agent_id" json:"agent_id"`

	SourceKind SourceKind `db:"source_kind" json:"source_kind"`
	SourceID   string     `db:"source_id" json:"source_id"`

	DailyCap    int      `db:"daily_cap" json:"daily_cap"`
	CallingDays Weekdays `db:"calling_days" json:"calling_days"`
	StartHour   int      `db:"start_hour" json:"start_hour"`
	EndHour     int      `db:"end_hour" json:"end_hour"`
	Timezone    string   `db:"timezone" json:"timezone,omitempty"`
	Prompt      string   `db:"campaign_prompt" json:"campaign_prompt"`

	Status      ExecutionStatus `db:"execution_status" json:"execution_status"`
	PauseReason string          `db:"pause_reason" json:"pause_reason,omitempty"`
	LastError   string          `db:"last_error" json:"last_error,omitempty"`

	NextCallAt        *time.Time `db:"next_call_at" json:"next_call_at,omitempty"`
	CurrentDailyCalls int        `db:"current_daily_calls" json:"current_daily_calls"`
	LastDailyReset    string     `db:"last_daily_reset" json:"last_daily_reset,omitempty"` // YYYY-MM-DD, campaign local
	LastContactKey    int64      `db:"last_contact_key" json:"last_contact_key"`

	TotalCallsMade     int   `db:"total_calls_made" json:"total_calls_made"`
	TotalCallsAnswered int   `db:"total_calls_answered" json:"total_calls_answered"`
	TotalUsage         int64 `db:"total_usage" json:"total_usage"` // billed seconds

	Dials         int `db:"dials" json:"dials"`
	Pickups       int `db:"pickups" json:"pickups"`
	Interested    int `db:"interested" json:"interested"`
	NotInterested int `db:"not_interested" json:"not_interested"`
	Callback      int `db:"callback" json:"callback"`
	DoNotCall     int `db:"do_not_call" json:"do_not_call"`
	Voicemail     int `db:"voicemail" json:"voicemail"`
	WrongNumber   int `db:"wrong_number" json:"wrong_number"`
	Unclassified  int `db:"unclassified" json:"unclassified"`

	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Location returns the campaign time zone, or fallback when unset or unknown.
func (c *Campaign) Location(fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	if strings.TrimSpace(c.Timezone) == "" {
		return fallback
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// OutcomeCounter returns the aggregate bucket for an outcome; nil means unclassified.
func (c *Campaign) OutcomeCounter(o *Outcome) *int {
	if o == nil {
		return &c.Unclassified
	}
	switch *o {
	case OutcomeInterested:
		return &c.Interested
	case OutcomeNotInterested:
		return &c.NotInterested
	case OutcomeCallback:
		return &c.Callback
	case OutcomeDoNotCall:
		return &c.DoNotCall
	case OutcomeVoicemail:
		return &c.Voicemail
	case OutcomeWrongNumber:
		return &c.WrongNumber
	}
	return &c.Unclassified
}

// OutcomeTotal is the sum of all outcome buckets including unclassified.
func (c *Campaign) OutcomeTotal() int {
	return c.Interested + c.NotInterested + c.Callback + c.DoNotCall +
		c.Voicemail + c.WrongNumber + c.Unclassified
}

// Clone returns a deep copy.
func (c *Campaign) Clone() *Campaign {
	cp := *c
	cp.CallingDays = append(Weekdays(nil), c.CallingDays...)
	if c.NextCallAt != nil {
		t := *c.NextCallAt
		cp.NextCallAt = &t
	}
	if c.StartedAt != nil {
		t := *c.StartedAt
		cp.StartedAt = &t
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// Weekdays is the calling-day set, stored as a Postgres integer array.
type Weekdays []time.Weekday

func (w Weekdays) Contains(d time.Weekday) bool {
	for _, day := range w {
		if day == d {
			return true
		}
	}
	return false
}

func (w Weekdays) Value() (driver.Value, error) {
	arr := make(pq.Int64Array, len(w))
	for i, d := range w {
		arr[i] = int64(d)
	}
	return arr.Value()
}

func (w *Weekdays) Scan(src any) error {
	var arr pq.Int64Array
	if err := arr.Scan(src); err != nil {
		return err
	}
	days := make(Weekdays, 0, len(arr))
	for _, v := range arr {
		if v < 0 || v > 6 {
			return fmt.Errorf("invalid weekday %d", v)
		}
		days = append(days, time.Weekday(v))
	}
	*w = days
	return nil
}

// UnmarshalJSON accepts weekday numbers (0 = Sunday) or names ("monday", "mon").
func (w *Weekdays) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	days := make(Weekdays, 0, len(raw))
	for _, r := range raw {
		var n int
		if err := json.Unmarshal(r, &n); err == nil {
			if n < 0 || n > 6 {
				return fmt.Errorf("invalid weekday %d", n)
			}
			days = append(days, time.Weekday(n))
			continue
		}
		var name string
		if err := json.Unmarshal(r, &name); err != nil {
			return fmt.Errorf("invalid weekday %s", string(r))
		}
		d, err := ParseWeekday(name)
		if err != nil {
			return err
		}
		days = append(days, d)
	}
	*w = days
	return nil
}

// ParseWeekday parses full or three-letter English weekday names.
func ParseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if n == full || n == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", name)
}
