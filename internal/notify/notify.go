// Package notify is the engine's outbound notification port. Dispatch happens
// after a transition has committed and is best-effort: a failed or slow
// notification never rolls back appointment state.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/campushours/booking-engine/internal/booking"
)

// LogDispatcher records notifications to the structured log. It stands in for
// the external email/push collaborator in dev and test environments, and
// satisfies booking.Notifier.
type LogDispatcher struct {
	log *zap.Logger
}

func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Notify(_ context.Context, appt booking.Appointment, eventKind booking.Event) {
	d.log.Info("appointment notification",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("provider_id", appt.ProviderID.String()),
		zap.String("requester_id", appt.RequesterID.String()),
		zap.String("event", string(eventKind)),
		zap.String("state", string(appt.State)),
		zap.Time("slot_start", appt.SlotStart),
	)
}
