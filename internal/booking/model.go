// Package booking implements the appointment engine: booking policies, the
// request validator, the appointment state machine, and the slot allocator.
package booking

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/campushours/booking-engine/internal/timegrid"
)

type State string

const (
	StateRequested           State = "requested"
	StateAccepted            State = "accepted"
	StateDeclined            State = "declined"
	StateRescheduleProposed  State = "reschedule_proposed"
	StateCancelled           State = "cancelled"
	StateCompleted           State = "completed"
	StateNoShow              State = "no_show"
)

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	switch s {
	case StateDeclined, StateCancelled, StateCompleted, StateNoShow:
		return true
	}
	return false
}

func (s State) Valid() bool {
	switch s {
	case StateRequested, StateAccepted, StateDeclined, StateRescheduleProposed,
		StateCancelled, StateCompleted, StateNoShow:
		return true
	}
	return false
}

type Modality string

const (
	ModalityVirtual  Modality = "virtual"
	ModalityInPerson Modality = "in_person"
)

type Audience string

const (
	AudienceAll          Audience = "all"
	AudienceDepartment   Audience = "same_department"
	AudienceCourseRoster Audience = "same_course_roster"
	AudienceApprovedList Audience = "approved_list"
)

var ErrInvalidPolicy = errors.New("invalid booking policy")

// Policy is a provider's booking constraints. One mutable policy per provider;
// changing it never touches already accepted appointments, only future slot
// computation.
type Policy struct {
	ProviderID          uuid.UUID
	SlotDurationMinutes int
	BufferMinutes       int
	AdvanceNoticeHours  int
	MaxPerDay           *int // nil = unlimited
	Audience            Audience
	AutoAccept          bool
	AllowVirtual        bool
	AllowInPerson       bool
	LocationText        string
	UpdatedAt           time.Time
}

func (p Policy) Validate() error {
	if p.SlotDurationMinutes <= 0 {
		return ErrInvalidPolicy
	}
	if p.BufferMinutes < 0 || p.AdvanceNoticeHours < 0 {
		return ErrInvalidPolicy
	}
	if p.MaxPerDay != nil && *p.MaxPerDay <= 0 {
		return ErrInvalidPolicy
	}
	if !p.AllowVirtual && !p.AllowInPerson {
		return ErrInvalidPolicy
	}
	switch p.Audience {
	case AudienceAll, AudienceDepartment, AudienceCourseRoster, AudienceApprovedList:
	default:
		return ErrInvalidPolicy
	}
	return nil
}

func (p Policy) SlotDuration() time.Duration {
	return time.Duration(p.SlotDurationMinutes) * time.Minute
}

func (p Policy) Buffer() time.Duration {
	return time.Duration(p.BufferMinutes) * time.Minute
}

func (p Policy) AdvanceNotice() time.Duration {
	return time.Duration(p.AdvanceNoticeHours) * time.Hour
}

func (p Policy) AllowsModality(m Modality) bool {
	switch m {
	case ModalityVirtual:
		return p.AllowVirtual
	case ModalityInPerson:
		return p.AllowInPerson
	}
	return false
}

// Appointment is the transactional entity. Never deleted; terminal states
// preserve the audit trail.
type Appointment struct {
	ID               uuid.UUID
	ProviderID       uuid.UUID
	RequesterID      uuid.UUID
	SlotStart        time.Time
	SlotEnd          time.Time
	State            State
	PriorState       *State // state held before proposeReschedule, for restore
	Modality         Modality
	PurposeText      string
	RescheduleOf     *uuid.UUID
	CreatedAt        time.Time
	LastTransitionAt time.Time
}

func (a Appointment) Slot() timegrid.Interval {
	return timegrid.Interval{Start: a.SlotStart, End: a.SlotEnd}
}

// Live reports whether the appointment still reserves its slot.
func (a Appointment) Live() bool {
	return !a.State.Terminal()
}
