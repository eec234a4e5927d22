package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campushours/booking-engine/internal/timegrid"
)

// Monday 2026-03-02.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func weekdayRule(wd time.Weekday, startMin, endMin int) Rule {
	return Rule{
		ID:          uuid.New(),
		ProviderID:  uuid.New(),
		Weekday:     wd,
		StartMinute: startMin,
		EndMinute:   endMin,
	}
}

func TestMaterialize_InvalidRange(t *testing.T) {
	_, err := MaterializeOpenIntervals(nil, nil, monday, monday.AddDate(0, 0, -1))
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("error = %v, want ErrInvalidRange", err)
	}
}

func TestMaterialize_SingleRuleSingleDay(t *testing.T) {
	rules := []Rule{weekdayRule(time.Monday, 9*60, 17*60)}

	got, err := MaterializeOpenIntervals(rules, nil, monday, monday)
	if err != nil {
		t.Fatalf("materialize error: %v", err)
	}
	assertIntervals(t, got, []timegrid.Interval{
		{Start: monday.Add(9 * time.Hour), End: monday.Add(17 * time.Hour)},
	})
}

func TestMaterialize_OverlappingRulesUnion(t *testing.T) {
	rules := []Rule{
		weekdayRule(time.Monday, 9*60, 12*60),
		weekdayRule(time.Monday, 11*60, 14*60),
		weekdayRule(time.Monday, 15*60, 16*60),
	}

	got, err := MaterializeOpenIntervals(rules, nil, monday, monday)
	if err != nil {
		t.Fatalf("materialize error: %v", err)
	}
	assertIntervals(t, got, []timegrid.Interval{
		{Start: monday.Add(9 * time.Hour), End: monday.Add(14 * time.Hour)},
		{Start: monday.Add(15 * time.Hour), End: monday.Add(16 * time.Hour)},
	})
}

func TestMaterialize_RuleSkipsOtherWeekdays(t *testing.T) {
	rules := []Rule{weekdayRule(time.Tuesday, 9*60, 17*60)}

	got, err := MaterializeOpenIntervals(rules, nil, monday, monday)
	if err != nil {
		t.Fatalf("materialize error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("intervals = %v, want none on Monday for a Tuesday rule", got)
	}
}

func TestMaterialize_EffectiveBounds(t *testing.T) {
	nextWeek := monday.AddDate(0, 0, 7)
	rule := weekdayRule(time.Monday, 9*60, 17*60)
	rule.EffectiveFrom = &nextWeek

	got, err := MaterializeOpenIntervals([]Rule{rule}, nil, monday, nextWeek)
	if err != nil {
		t.Fatalf("materialize error: %v", err)
	}
	assertIntervals(t, got, []timegrid.Interval{
		{Start: nextWeek.Add(9 * time.Hour), End: nextWeek.Add(17 * time.Hour)},
	})
}

func TestMaterialize_RemoveExceptionSplitsDay(t *testing.T) {
	rules := []Rule{weekdayRule(time.Monday, 9*60, 17*60)}
	exceptions := []Exception{{
		ID:          uuid.New(),
		Date:        monday,
		Kind:        ExceptionRemove,
		StartMinute: 12 * 60,
		EndMinute:   13 * 60,
	}}

	got, err := MaterializeOpenIntervals(rules, exceptions, monday, monday)
	if err != nil {
		t.Fatalf("materialize error: %v", err)
	}
	assertIntervals(t, got, []timegrid.Interval{
		{Start: monday.Add(9 * time.Hour), End: monday.Add(12 * time.Hour)},
		{Start: monday.Add(13 * time.Hour), End: monday.Add(17 * time.Hour)},
	})
}

func TestMaterialize_BlackoutClearsDay(t *testing.T) {
	rules := []Rule{weekdayRule(time.Monday, 9*60, 17*60)}
	exceptions := []Exception{{ID: uuid.New(), Date: monday, Kind: ExceptionBlackout}}

	got, err := MaterializeOpenIntervals(rules, exceptions, monday, monday)
	if err != nil {
		t.Fatalf("materialize error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("intervals = %v, want none after blackout", got)
	}
}

// An add exception wins over a full-day blackout regardless of slice order.
func TestMaterialize_AddReopensBlackedOutDay(t *testing.T) {
	rules := []Rule{weekdayRule(time.Monday, 9*60, 17*60)}
	add := Exception{
		ID:          uuid.New(),
		Date:        monday,
		Kind:        ExceptionAdd,
		StartMinute: 10 * 60,
		EndMinute:   11 * 60,
	}
	blackout := Exception{ID: uuid.New(), Date: monday, Kind: ExceptionBlackout}

	orderings := [][]Exception{
		{blackout, add},
		{add, blackout},
	}
	for _, exceptions := range orderings {
		got, err := MaterializeOpenIntervals(rules, exceptions, monday, monday)
		if err != nil {
			t.Fatalf("materialize error: %v", err)
		}
		assertIntervals(t, got, []timegrid.Interval{
			{Start: monday.Add(10 * time.Hour), End: monday.Add(11 * time.Hour)},
		})
	}
}

func TestMaterialize_ExceptionOnlyAffectsItsDate(t *testing.T) {
	rules := []Rule{weekdayRule(time.Monday, 9*60, 10*60)}
	exceptions := []Exception{{ID: uuid.New(), Date: monday, Kind: ExceptionBlackout}}
	nextMonday := monday.AddDate(0, 0, 7)

	got, err := MaterializeOpenIntervals(rules, exceptions, monday, nextMonday)
	if err != nil {
		t.Fatalf("materialize error: %v", err)
	}
	assertIntervals(t, got, []timegrid.Interval{
		{Start: nextMonday.Add(9 * time.Hour), End: nextMonday.Add(10 * time.Hour)},
	})
}

func TestRuleValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Rule)
		wantErr bool
	}{
		{"valid", func(r *Rule) {}, false},
		{"end before start", func(r *Rule) { r.EndMinute = r.StartMinute - 30 }, true},
		{"end equals start", func(r *Rule) { r.EndMinute = r.StartMinute }, true},
		{"negative start", func(r *Rule) { r.StartMinute = -10 }, true},
		{"end past midnight", func(r *Rule) { r.EndMinute = 25 * 60 }, true},
		{"inverted effective bounds", func(r *Rule) {
			from := monday.AddDate(0, 0, 7)
			until := monday
			r.EffectiveFrom = &from
			r.EffectiveUntil = &until
		}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := weekdayRule(time.Monday, 9*60, 17*60)
			tc.mutate(&r)
			err := r.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestExceptionValidate(t *testing.T) {
	if err := (Exception{Kind: ExceptionBlackout}).Validate(); err != nil {
		t.Fatalf("blackout should not need a window: %v", err)
	}
	if err := (Exception{Kind: ExceptionAdd, StartMinute: 600, EndMinute: 600}).Validate(); err == nil {
		t.Fatalf("expected error for empty add window")
	}
	if err := (Exception{Kind: "weekend"}).Validate(); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func assertIntervals(t *testing.T, got, want []timegrid.Interval) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d intervals %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("interval[%d] = [%v, %v), want [%v, %v)",
				i, got[i].Start, got[i].End, want[i].Start, want[i].End)
		}
	}
}
