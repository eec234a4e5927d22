package booking

import (
	"fmt"
	"time"

	"github.com/campushours/booking-engine/internal/timegrid"
)

// RejectReason is a user-facing business-rule outcome, not an exceptional
// condition. Callers render reasons as actionable messages.
type RejectReason string

const (
	ReasonAdvanceNoticeViolation RejectReason = "advance_notice_violation"
	ReasonOutsideAvailability    RejectReason = "outside_availability"
	ReasonBufferConflict         RejectReason = "buffer_conflict"
	ReasonDailyCapExceeded       RejectReason = "daily_cap_exceeded"
	ReasonAudienceNotAllowed     RejectReason = "audience_not_allowed"
	ReasonModalityNotOffered     RejectReason = "modality_not_offered"
	ReasonContention             RejectReason = "contention"
)

// Rejection carries the first failed check. It implements error so it flows
// through ordinary return paths, and callers unwrap it with errors.As.
type Rejection struct {
	Reason RejectReason
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("booking request rejected: %s", r.Reason)
}

func Reject(reason RejectReason) *Rejection {
	return &Rejection{Reason: reason}
}

// ValidateRequest runs the booking checks in fixed order; the first failure
// wins and is returned as the rejection reason. A nil result means the
// candidate slot is bookable. The audience decision is delegated to the
// roster collaborator and arrives here as a boolean.
//
// Checks: advance notice, containment in open availability, buffer-padded
// overlap with live appointments, daily cap, audience.
func ValidateRequest(policy Policy, open []timegrid.Interval, existing []Appointment, slot timegrid.Interval, now time.Time, audienceOK bool) *Rejection {
	if slot.Start.Sub(now) < policy.AdvanceNotice() {
		return Reject(ReasonAdvanceNoticeViolation)
	}

	contained := false
	for _, iv := range open {
		if iv.Contains(slot) {
			contained = true
			break
		}
	}
	if !contained {
		return Reject(ReasonOutsideAvailability)
	}

	padded := slot.Pad(policy.Buffer())
	for _, appt := range existing {
		if appt.Live() && padded.Overlaps(appt.Slot()) {
			return Reject(ReasonBufferConflict)
		}
	}

	if policy.MaxPerDay != nil {
		day := slot.Start.UTC().Truncate(24 * time.Hour)
		count := 0
		for _, appt := range existing {
			if appt.Live() && appt.SlotStart.UTC().Truncate(24*time.Hour).Equal(day) {
				count++
			}
		}
		if count >= *policy.MaxPerDay {
			return Reject(ReasonDailyCapExceeded)
		}
	}

	if !audienceOK {
		return Reject(ReasonAudienceNotAllowed)
	}

	return nil
}
