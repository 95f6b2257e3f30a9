// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is returned when no campaign has the given ID.
type ErrCampaignNotFound struct {
	CampaignID int64
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int64) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrCallNotFound is returned when no call row carries the provider reference.
type ErrCallNotFound struct {
	CallRef string
}

func (e *ErrCallNotFound) Error() string {
	return fmt.Sprintf("call with reference %q not found", e.CallRef)
}

func NewCallNotFound(ref string) error {
	return &ErrCallNotFound{CallRef: ref}
}

// TransitionError rejects a lifecycle command.
type TransitionError struct {
	CampaignID int64
	Command    string
	Reason     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s campaign %d: %s", e.Command, e.CampaignID, e.Reason)
}

func NewTransitionError(id int64, command, reason string) error {
	return &TransitionError{CampaignID: id, Command: command, Reason: reason}
}

// ConfigError marks a failure caused by campaign configuration. The campaign
// cannot make progress until an operator fixes it.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func NewConfigError(op string, err error) error {
	return &ConfigError{Op: op, Err: err}
}

// TransientError marks a failure of a single provider call.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func NewTransientError(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

var (
	// ErrLeaseHeld means another worker holds the campaign lease.
	ErrLeaseHeld = errors.New("campaign lease held by another worker")
	// ErrSourceNotFound means the contact source reference resolves to nothing.
	ErrSourceNotFound = errors.New("contact source not found")
	// ErrNoOutboundTrunk means the voice agent has no outbound route.
	ErrNoOutboundTrunk = errors.New("voice agent has no outbound trunk")
	// ErrInvalidEvent means a provider call event failed validation and will never apply.
	ErrInvalidEvent = errors.New("invalid call event")
)

func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsNotFound(err error) bool {
	var cnf *ErrCampaignNotFound
	var callNF *ErrCallNotFound
	return errors.As(err, &cnf) || errors.As(err, &callNF)
}

func IsTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
