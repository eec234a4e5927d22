package availability

import (
	"time"

	"github.com/campushours/booking-engine/internal/timegrid"
)

// MaterializeOpenIntervals computes the disjoint, time-ordered open intervals
// for every UTC day in [from, to] (dates inclusive). Per day: union the
// matching rule windows, then apply that day's exceptions in fixed precedence
// order blackout -> remove -> add, regardless of input ordering, so an add can
// re-open time inside an otherwise blacked-out day.
func MaterializeOpenIntervals(rules []Rule, exceptions []Exception, from, to time.Time) ([]timegrid.Interval, error) {
	fromDate := dateOf(from)
	toDate := dateOf(to)
	if toDate.Before(fromDate) {
		return nil, ErrInvalidRange
	}

	byDate := make(map[time.Time][]Exception, len(exceptions))
	for _, ex := range exceptions {
		d := dateOf(ex.Date)
		byDate[d] = append(byDate[d], ex)
	}

	var out []timegrid.Interval
	for day := fromDate; !day.After(toDate); day = day.AddDate(0, 0, 1) {
		open := materializeDay(rules, byDate[day], day)
		out = append(out, open...)
	}
	return out, nil
}

func materializeDay(rules []Rule, exceptions []Exception, day time.Time) []timegrid.Interval {
	var windows []timegrid.Interval
	for _, r := range rules {
		if r.appliesOn(day) {
			windows = append(windows, minuteWindow(day, r.StartMinute, r.EndMinute))
		}
	}
	open := timegrid.Union(windows)

	for _, ex := range exceptions {
		if ex.Kind == ExceptionBlackout {
			open = nil
			break
		}
	}
	for _, ex := range exceptions {
		if ex.Kind == ExceptionRemove {
			open = timegrid.Subtract(open, minuteWindow(day, ex.StartMinute, ex.EndMinute))
		}
	}
	for _, ex := range exceptions {
		if ex.Kind == ExceptionAdd {
			open = timegrid.Union(append(open, minuteWindow(day, ex.StartMinute, ex.EndMinute)))
		}
	}
	return open
}

func minuteWindow(day time.Time, startMinute, endMinute int) timegrid.Interval {
	return timegrid.Interval{
		Start: day.Add(time.Duration(startMinute) * time.Minute),
		End:   day.Add(time.Duration(endMinute) * time.Minute),
	}
}
