// Package availability holds a provider's recurring weekly rules and
// date-specific exceptions, and materializes them into open time intervals.
package availability

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const minutesPerDay = 24 * 60

var (
	ErrInvalidRule      = errors.New("invalid availability rule")
	ErrInvalidException = errors.New("invalid availability exception")
	ErrInvalidRange     = errors.New("invalid date range: end before start")
)

// Rule is a recurring weekly availability window, expressed as minutes of the
// UTC day. Multiple rules per provider may coexist and overlap; overlaps union.
type Rule struct {
	ID             uuid.UUID
	ProviderID     uuid.UUID
	Weekday        time.Weekday
	StartMinute    int
	EndMinute      int
	EffectiveFrom  *time.Time // date bound, nil = open-ended
	EffectiveUntil *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r Rule) Validate() error {
	if r.StartMinute < 0 || r.EndMinute > minutesPerDay || r.EndMinute <= r.StartMinute {
		return ErrInvalidRule
	}
	if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
		return ErrInvalidRule
	}
	if r.EffectiveFrom != nil && r.EffectiveUntil != nil && r.EffectiveUntil.Before(*r.EffectiveFrom) {
		return ErrInvalidRule
	}
	return nil
}

// appliesOn reports whether the rule is in force on the given UTC date.
func (r Rule) appliesOn(date time.Time) bool {
	if date.Weekday() != r.Weekday {
		return false
	}
	if r.EffectiveFrom != nil && date.Before(dateOf(*r.EffectiveFrom)) {
		return false
	}
	if r.EffectiveUntil != nil && date.After(dateOf(*r.EffectiveUntil)) {
		return false
	}
	return true
}

type ExceptionKind string

const (
	ExceptionAdd      ExceptionKind = "add"
	ExceptionRemove   ExceptionKind = "remove"
	ExceptionBlackout ExceptionKind = "blackout_full_day"
)

// Exception is a date-specific override of the recurring rules. Blackout
// clears the whole day; remove subtracts its window; add unions its window in.
type Exception struct {
	ID          uuid.UUID
	ProviderID  uuid.UUID
	Date        time.Time // UTC midnight
	Kind        ExceptionKind
	StartMinute int // unused for blackout
	EndMinute   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (e Exception) Validate() error {
	switch e.Kind {
	case ExceptionBlackout:
		return nil
	case ExceptionAdd, ExceptionRemove:
		if e.StartMinute < 0 || e.EndMinute > minutesPerDay || e.EndMinute <= e.StartMinute {
			return ErrInvalidException
		}
		return nil
	default:
		return ErrInvalidException
	}
}

// dateOf truncates an instant to its UTC date.
func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
