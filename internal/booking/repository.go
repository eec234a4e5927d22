package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/campushours/booking-engine/internal/availability"
)

var (
	ErrPolicyNotFound      = errors.New("booking policy not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrStaleState means a compare-and-swap transition lost: the appointment
	// was no longer in the expected state when the update ran.
	ErrStaleState = errors.New("appointment state changed concurrently")
)

// TransitionRecord is the audit row written atomically with every appointment
// creation or state change. Appointments are never deleted; the record trail
// is the history.
type TransitionRecord struct {
	ID            int64
	AppointmentID uuid.UUID
	Event         Event
	FromState     State // empty on creation
	ToState       State
	ActorID       uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Repository contains all storage interactions the engine needs. Writes that
// change appointment state must commit the state change and its audit record
// as one atomic unit.
type Repository interface {
	GetPolicy(ctx context.Context, providerID uuid.UUID) (Policy, error)
	PutPolicy(ctx context.Context, policy Policy) error

	ListRules(ctx context.Context, providerID uuid.UUID) ([]availability.Rule, error)
	ReplaceRules(ctx context.Context, providerID uuid.UUID, rules []availability.Rule) error
	ListExceptions(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]availability.Exception, error)
	ReplaceExceptions(ctx context.Context, providerID uuid.UUID, exceptions []availability.Exception) error

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListLive returns the provider's non-terminal appointments whose slot
	// intersects [from, to).
	ListLive(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID, limit, offset int) ([]Appointment, error)

	CreateAppointment(ctx context.Context, appt Appointment, rec TransitionRecord) (*Appointment, error)
	// UpdateAppointmentState performs a compare-and-swap from the expected
	// state, records prior, and writes rec in the same transaction. Returns
	// ErrStaleState when the appointment was not in the expected state.
	UpdateAppointmentState(ctx context.Context, id uuid.UUID, from, to State, prior *State, at time.Time, rec TransitionRecord) (*Appointment, error)

	// FindElapsedAccepted returns accepted appointments whose slot end has
	// passed, for the completion worker.
	FindElapsedAccepted(ctx context.Context, now time.Time) ([]Appointment, error)
	// FindStaleRequested returns requested appointments whose slot start is
	// already inside the provider's advance-notice window. Query only; the
	// engine never auto-declines them.
	FindStaleRequested(ctx context.Context, now time.Time) ([]Appointment, error)
}
