// model/session.go
package model

import (
	"time"

	"github.com/CristianProdius/ProAlarm/shared"
)

// PhotoValidationState is the tagged union of the awakeness-validation
// sub-state inside a ringing session.
type PhotoValidationState interface {
	photoValidationState()
}

type ValidationIdle struct{}

type ValidationRunning struct{}

type ValidationPassed struct {
	Score float64
}

type ValidationFailed struct {
	Reason     shared.RejectionReason
	RetryCount int
}

func (ValidationIdle) photoValidationState()    {}
func (ValidationRunning) photoValidationState() {}
func (ValidationPassed) photoValidationState()  {}
func (ValidationFailed) photoValidationState()  {}

// RingingSession is the ephemeral in-memory state of one active alarm firing.
// It is owned exclusively by the ringing service's run loop; Generation lets
// late async results detect that the session they belong to is gone.
type RingingSession struct {
	Generation uint64
	Alarm      *Alarm
	StartedAt  time.Time

	PhotoNeeded bool
	QRNeeded    bool
	WaitNeeded  bool

	PhotoMet bool
	QRMet    bool
	WaitMet  bool

	PhotoRef      string
	WaitRemaining int

	Validation PhotoValidationState
	RetryCount int
	Bypassed   bool

	// AwakenessScore of the accepted (or bypassed, score 0) photo.
	AwakenessScore *float64

	Message string
}

func NewRingingSession(generation uint64, alarm *Alarm, now time.Time) *RingingSession {
	s := &RingingSession{
		Generation:  generation,
		Alarm:       alarm,
		StartedAt:   now,
		PhotoNeeded: alarm.RequiresPhoto,
		QRNeeded:    alarm.RequiresQRCode || alarm.QRRequiredForDifficulty(),
		WaitNeeded:  alarm.WaitSeconds() > 0,
		Validation:  ValidationIdle{},
	}
	if s.WaitNeeded {
		s.WaitRemaining = alarm.WaitSeconds()
	}
	return s
}

// IsProofCompleted re-derives the completion gate from the checklist. It is
// never stored or toggled independently.
func (s *RingingSession) IsProofCompleted() bool {
	return (!s.PhotoNeeded || s.PhotoMet) &&
		(!s.QRNeeded || s.QRMet) &&
		(!s.WaitNeeded || s.WaitMet)
}

// WaitShouldRun reports whether the countdown may tick: the wait interval is
// gated behind photo capture when both requirements apply.
func (s *RingingSession) WaitShouldRun() bool {
	if !s.WaitNeeded || s.WaitMet {
		return false
	}
	if s.PhotoNeeded && !s.PhotoMet {
		return false
	}
	return true
}

// BypassAvailable reports whether the user may force-accept the photo after
// repeated validation failures.
func (s *RingingSession) BypassAvailable() bool {
	return s.RetryCount >= shared.MaxValidationRetries
}
