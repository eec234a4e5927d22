package booking

import "errors"

// Event is a lifecycle trigger on an existing appointment.
type Event string

const (
	// EventSubmit records creation; it is not a transition on an existing
	// appointment.
	EventSubmit            Event = "submit"
	EventAccept            Event = "accept"
	EventDecline           Event = "decline"
	EventProposeReschedule Event = "propose_reschedule"
	EventCancel            Event = "cancel"
	EventComplete          Event = "complete"
	EventMarkNoShow        Event = "mark_no_show"
)

// ErrInvalidTransition marks a protocol error: the client attempted a state
// change the machine does not define. Distinct from Rejection, which is a
// business-rule outcome.
var ErrInvalidTransition = errors.New("invalid appointment state transition")

var transitions = map[State]map[Event]State{
	StateRequested: {
		EventAccept:            StateAccepted,
		EventDecline:           StateDeclined,
		EventProposeReschedule: StateRescheduleProposed,
	},
	StateAccepted: {
		EventProposeReschedule: StateRescheduleProposed,
		EventCancel:            StateCancelled,
		EventComplete:          StateCompleted,
		EventMarkNoShow:        StateNoShow,
	},
	// The original of a pending reschedule only resolves through supersession
	// (cancel) or outright cancellation by either party.
	StateRescheduleProposed: {
		EventCancel: StateCancelled,
	},
}

// Transition is total over (state, event): every undefined pair fails with
// ErrInvalidTransition instead of silently no-opping.
func Transition(current State, ev Event) (State, error) {
	next, ok := transitions[current][ev]
	if !ok {
		return current, ErrInvalidTransition
	}
	return next, nil
}
