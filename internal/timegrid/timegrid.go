// Package timegrid provides pure interval arithmetic for the booking engine.
// All instants are UTC; callers normalize before reaching this package.
package timegrid

import (
	"errors"
	"sort"
	"time"
)

var ErrInvalidInterval = errors.New("invalid interval: end must be after start")

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start, end time.Time) (Interval, error) {
	if !end.After(start) {
		return Interval{}, ErrInvalidInterval
	}
	return Interval{Start: start.UTC(), End: end.UTC()}, nil
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether the two half-open intervals share any instant.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether other lies fully within iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Pad widens the interval by d on both sides.
func (iv Interval) Pad(d time.Duration) Interval {
	return Interval{Start: iv.Start.Add(-d), End: iv.End.Add(d)}
}

// Union merges overlapping or touching intervals into a sorted disjoint set.
// The input slice is not modified.
func Union(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}

	sorted := make([]Interval, len(ivs))
	copy(sorted, ivs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	out := make([]Interval, 0, len(sorted))
	cur := sorted[0]
	for _, iv := range sorted[1:] {
		if !iv.Start.After(cur.End) {
			if iv.End.After(cur.End) {
				cur.End = iv.End
			}
			continue
		}
		out = append(out, cur)
		cur = iv
	}
	return append(out, cur)
}

// Subtract removes sub from every interval in ivs, splitting where needed.
// The result preserves time order when the input is time ordered.
func Subtract(ivs []Interval, sub Interval) []Interval {
	out := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if !iv.Overlaps(sub) {
			out = append(out, iv)
			continue
		}
		if sub.Start.After(iv.Start) {
			out = append(out, Interval{Start: iv.Start, End: sub.Start})
		}
		if sub.End.Before(iv.End) {
			out = append(out, Interval{Start: sub.End, End: iv.End})
		}
	}
	return out
}

// Discretize cuts iv into consecutive step-sized slots starting at iv.Start.
// Only slots fully contained in iv are returned; a trailing remainder shorter
// than step is dropped.
func Discretize(iv Interval, step time.Duration) []Interval {
	if step <= 0 {
		return nil
	}

	var out []Interval
	for start := iv.Start; !start.Add(step).After(iv.End); start = start.Add(step) {
		out = append(out, Interval{Start: start, End: start.Add(step)})
	}
	return out
}
