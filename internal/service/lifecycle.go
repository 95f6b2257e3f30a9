// internal/service/lifecycle.go
package service

import (
	"time"

	appErrors "github.com/zainab674/voiceagents-sub004/internal/errors"
	"github.com/zainab674/voiceagents-sub004/internal/model"
)

// Command is a lifecycle request against a campaign.
type Command string

const (
	CmdStart    Command = "start"
	CmdPause    Command = "pause"
	CmdResume   Command = "resume"
	CmdStop     Command = "stop"
	CmdComplete Command = "complete"
	CmdFail     Command = "fail"
)

// Rejection reasons returned to callers.
const (
	ReasonAlreadyRunning = "already running"
	ReasonNotRunning     = "not running"
	ReasonNotPaused      = "not paused"
	ReasonFinished       = "campaign already finished"
)

// transition applies cmd to c in place. detail is the pause reason or the error
// message for CmdFail.
func transition(c *model.Campaign, cmd Command, detail string, now time.Time) error {
	reject := func(reason string) error {
		return appErrors.NewTransitionError(c.ID, string(cmd), reason)
	}

	switch cmd {
	case CmdStart, CmdResume:
		switch c.Status {
		case model.StatusRunning:
			return reject(ReasonAlreadyRunning)
		case model.StatusCompleted, model.StatusError:
			return reject(ReasonFinished)
		case model.StatusIdle:
			if cmd == CmdResume {
				return reject(ReasonNotPaused)
			}
			c.StartedAt = &now
		}
		c.Status = model.StatusRunning
		c.PauseReason = ""

	case CmdPause:
		if c.Status != model.StatusRunning {
			return reject(ReasonNotRunning)
		}
		c.Status = model.StatusPaused
		c.PauseReason = detail

	case CmdStop:
		if c.Status != model.StatusRunning && c.Status != model.StatusPaused {
			return reject(ReasonNotRunning)
		}
		c.Status = model.StatusCompleted
		c.CompletedAt = &now
		c.NextCallAt = nil

	case CmdComplete:
		if c.Status != model.StatusRunning {
			return reject(ReasonNotRunning)
		}
		c.Status = model.StatusCompleted
		c.CompletedAt = &now
		c.NextCallAt = nil

	case CmdFail:
		if c.Status != model.StatusRunning {
			return reject(ReasonNotRunning)
		}
		c.Status = model.StatusError
		c.LastError = detail
		c.CompletedAt = &now
		c.NextCallAt = nil

	default:
		return reject("unknown command")
	}
	return nil
}
