// internal/service/guard.go
package service

import (
	"time"

	"github.com/zainab674/voiceagents-sub004/internal/model"
)

// Skip reasons reported by Eligible.
const (
	SkipDay    = "outside_calling_days"
	SkipWindow = "outside_calling_hours"
	SkipCap    = "daily_cap_reached"
)

// Eligible reports whether the campaign may dial at localNow, which must already
// be in the campaign's time zone. end_hour 24 means until midnight.
func Eligible(c *model.Campaign, localNow time.Time) (bool, string) {
	if !c.CallingDays.Contains(localNow.Weekday()) {
		return false, SkipDay
	}
	hour := localNow.Hour()
	if hour < c.StartHour || hour >= c.EndHour {
		return false, SkipWindow
	}
	if c.CurrentDailyCalls >= c.DailyCap {
		return false, SkipCap
	}
	return true, ""
}

// resetDaily zeroes the daily counter when the campaign's local date changed.
// It reports whether anything was modified, so repeated calls on the same day
// are no-ops.
func resetDaily(c *model.Campaign, localNow time.Time) bool {
	today := localNow.Format(model.DateLayout)
	if c.LastDailyReset == today {
		return false
	}
	c.CurrentDailyCalls = 0
	c.LastDailyReset = today
	return true
}
