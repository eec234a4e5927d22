package api

import (
	"time"

	"github.com/google/uuid"
)

type SubmitAppointmentRequest struct {
	ProviderID  string `json:"provider_id"`
	RequesterID string `json:"requester_id"`
	SlotStart   string `json:"slot_start"` // RFC3339, UTC
	SlotEnd     string `json:"slot_end"`
	Modality    string `json:"modality"`
	PurposeText string `json:"purpose_text,omitempty"`
}

type RescheduleRequest struct {
	SlotStart string `json:"slot_start"`
	SlotEnd   string `json:"slot_end"`
	ActorID   string `json:"actor_id"`
}

type TransitionRequest struct {
	ActorID string `json:"actor_id"`
}

type AppointmentResponse struct {
	ID               uuid.UUID  `json:"id"`
	ProviderID       uuid.UUID  `json:"provider_id"`
	RequesterID      uuid.UUID  `json:"requester_id"`
	SlotStart        time.Time  `json:"slot_start"`
	SlotEnd          time.Time  `json:"slot_end"`
	State            string     `json:"state"`
	Modality         string     `json:"modality"`
	PurposeText      string     `json:"purpose_text,omitempty"`
	RescheduleOf     *uuid.UUID `json:"reschedule_of,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	LastTransitionAt time.Time  `json:"last_transition_at"`
}

type PolicyRequest struct {
	SlotDurationMinutes int    `json:"slot_duration_minutes"`
	BufferMinutes       int    `json:"buffer_minutes"`
	AdvanceNoticeHours  int    `json:"advance_notice_hours"`
	MaxPerDay           *int   `json:"max_per_day"`
	Audience            string `json:"audience"`
	AutoAccept          bool   `json:"auto_accept"`
	AllowVirtual        bool   `json:"allow_virtual"`
	AllowInPerson       bool   `json:"allow_in_person"`
	LocationText        string `json:"location_text"`
}

type RuleRequest struct {
	Weekday        int     `json:"weekday"` // 0 = Sunday
	StartMinute    int     `json:"start_minute"`
	EndMinute      int     `json:"end_minute"`
	EffectiveFrom  *string `json:"effective_from,omitempty"`
	EffectiveUntil *string `json:"effective_until,omitempty"`
}

type ExceptionRequest struct {
	Date        string `json:"date"` // RFC3339, UTC midnight
	Kind        string `json:"kind"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
}
