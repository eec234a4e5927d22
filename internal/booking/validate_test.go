package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campushours/booking-engine/internal/timegrid"
)

func mustInterval(t *testing.T, start, end time.Time) timegrid.Interval {
	t.Helper()
	iv, err := timegrid.NewInterval(start, end)
	if err != nil {
		t.Fatalf("NewInterval: %v", err)
	}
	return iv
}

func liveAppt(start, end time.Time) Appointment {
	return Appointment{
		ID:        uuid.New(),
		SlotStart: start,
		SlotEnd:   end,
		State:     StateAccepted,
	}
}

func TestValidateRequest(t *testing.T) {
	// Monday 2024-03-04, open 14:00-16:00 UTC.
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	open := []timegrid.Interval{
		{Start: day.Add(14 * time.Hour), End: day.Add(16 * time.Hour)},
	}
	sunday := time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)

	two := 2
	policy := Policy{
		ProviderID:          uuid.New(),
		SlotDurationMinutes: 30,
		BufferMinutes:       15,
		AdvanceNoticeHours:  24,
		MaxPerDay:           &two,
		Audience:            AudienceAll,
		AllowVirtual:        true,
		AllowInPerson:       true,
	}

	tests := []struct {
		name       string
		existing   []Appointment
		slot       timegrid.Interval
		now        time.Time
		audienceOK bool
		want       RejectReason // "" = accepted
	}{
		{
			name:       "free slot accepted",
			slot:       timegrid.Interval{Start: day.Add(14 * time.Hour), End: day.Add(14*time.Hour + 30*time.Minute)},
			now:        sunday,
			audienceOK: true,
			want:       "",
		},
		{
			name:       "inside notice window",
			slot:       timegrid.Interval{Start: day.Add(14 * time.Hour), End: day.Add(14*time.Hour + 30*time.Minute)},
			now:        day.Add(8 * time.Hour), // Monday 08:00, 6h before start
			audienceOK: true,
			want:       ReasonAdvanceNoticeViolation,
		},
		{
			name:       "outside any open interval",
			slot:       timegrid.Interval{Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)},
			now:        sunday,
			audienceOK: true,
			want:       ReasonOutsideAvailability,
		},
		{
			name:       "straddles the end of availability",
			slot:       timegrid.Interval{Start: day.Add(15*time.Hour + 45*time.Minute), End: day.Add(16*time.Hour + 15*time.Minute)},
			now:        sunday,
			audienceOK: true,
			want:       ReasonOutsideAvailability,
		},
		{
			name:       "direct overlap with live appointment",
			existing:   []Appointment{liveAppt(day.Add(14*time.Hour), day.Add(14*time.Hour+30*time.Minute))},
			slot:       timegrid.Interval{Start: day.Add(14 * time.Hour), End: day.Add(14*time.Hour + 30*time.Minute)},
			now:        sunday,
			audienceOK: true,
			want:       ReasonBufferConflict,
		},
		{
			name:       "adjacent slot violates buffer",
			existing:   []Appointment{liveAppt(day.Add(14*time.Hour), day.Add(14*time.Hour+30*time.Minute))},
			slot:       timegrid.Interval{Start: day.Add(14*time.Hour + 30*time.Minute), End: day.Add(15 * time.Hour)},
			now:        sunday,
			audienceOK: true,
			want:       ReasonBufferConflict,
		},
		{
			name:       "slot past the buffer is fine",
			existing:   []Appointment{liveAppt(day.Add(14*time.Hour), day.Add(14*time.Hour+30*time.Minute))},
			slot:       timegrid.Interval{Start: day.Add(15 * time.Hour), End: day.Add(15*time.Hour + 30*time.Minute)},
			now:        sunday,
			audienceOK: true,
			want:       "",
		},
		{
			name: "terminal appointments release their slot",
			existing: []Appointment{{
				ID:        uuid.New(),
				SlotStart: day.Add(14 * time.Hour),
				SlotEnd:   day.Add(14*time.Hour + 30*time.Minute),
				State:     StateCancelled,
			}},
			slot:       timegrid.Interval{Start: day.Add(14 * time.Hour), End: day.Add(14*time.Hour + 30*time.Minute)},
			now:        sunday,
			audienceOK: true,
			want:       "",
		},
		{
			name: "buffer fires before cap on a full day",
			existing: []Appointment{
				liveAppt(day.Add(14*time.Hour), day.Add(14*time.Hour+30*time.Minute)),
				liveAppt(day.Add(15*time.Hour), day.Add(15*time.Hour+30*time.Minute)),
			},
			slot:       timegrid.Interval{Start: day.Add(14 * time.Hour), End: day.Add(14*time.Hour + 30*time.Minute)},
			now:        sunday,
			audienceOK: true,
			want:       ReasonBufferConflict,
		},
		{
			name:       "audience not allowed",
			slot:       timegrid.Interval{Start: day.Add(14 * time.Hour), End: day.Add(14*time.Hour + 30*time.Minute)},
			now:        sunday,
			audienceOK: false,
			want:       ReasonAudienceNotAllowed,
		},
		{
			name:       "notice check fires before availability",
			slot:       timegrid.Interval{Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)},
			now:        day.Add(9 * time.Hour),
			audienceOK: false,
			want:       ReasonAdvanceNoticeViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rej := ValidateRequest(policy, open, tt.existing, tt.slot, tt.now, tt.audienceOK)
			if tt.want == "" {
				if rej != nil {
					t.Fatalf("ValidateRequest rejected with %s, want accept", rej.Reason)
				}
				return
			}
			if rej == nil {
				t.Fatalf("ValidateRequest accepted, want rejection %s", tt.want)
			}
			if rej.Reason != tt.want {
				t.Errorf("rejection reason = %s, want %s", rej.Reason, tt.want)
			}
		})
	}
}

func TestValidateRequestDailyCap(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	open := []timegrid.Interval{
		{Start: day.Add(9 * time.Hour), End: day.Add(17 * time.Hour)},
	}
	sunday := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)

	two := 2
	policy := Policy{
		ProviderID:          uuid.New(),
		SlotDurationMinutes: 30,
		MaxPerDay:           &two,
		Audience:            AudienceAll,
		AllowVirtual:        true,
		AllowInPerson:       true,
	}

	existing := []Appointment{
		liveAppt(day.Add(9*time.Hour), day.Add(9*time.Hour+30*time.Minute)),
		liveAppt(day.Add(10*time.Hour), day.Add(10*time.Hour+30*time.Minute)),
	}
	slot := timegrid.Interval{Start: day.Add(12 * time.Hour), End: day.Add(12*time.Hour + 30*time.Minute)}

	rej := ValidateRequest(policy, open, existing, slot, sunday, true)
	if rej == nil || rej.Reason != ReasonDailyCapExceeded {
		t.Fatalf("got %v, want daily cap rejection", rej)
	}

	// Live appointments on another day do not count against the cap.
	nextDay := day.AddDate(0, 0, 1)
	existing[1] = liveAppt(nextDay.Add(10*time.Hour), nextDay.Add(10*time.Hour+30*time.Minute))
	if rej := ValidateRequest(policy, open, existing, slot, sunday, true); rej != nil {
		t.Fatalf("cap should count per UTC day, got rejection %s", rej.Reason)
	}

	// Terminal appointments do not count against the cap.
	existing[1] = Appointment{
		ID:        uuid.New(),
		SlotStart: day.Add(10 * time.Hour),
		SlotEnd:   day.Add(10*time.Hour + 30*time.Minute),
		State:     StateDeclined,
	}
	if rej := ValidateRequest(policy, open, existing, slot, sunday, true); rej != nil {
		t.Fatalf("terminal appointments should not count, got rejection %s", rej.Reason)
	}
}

func TestPolicyValidate(t *testing.T) {
	valid := Policy{
		ProviderID:          uuid.New(),
		SlotDurationMinutes: 30,
		Audience:            AudienceAll,
		AllowVirtual:        true,
		AllowInPerson:       false,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid policy rejected: %v", err)
	}

	zero := 0
	bad := []Policy{
		func(p Policy) Policy { p.SlotDurationMinutes = 0; return p }(valid),
		func(p Policy) Policy { p.BufferMinutes = -1; return p }(valid),
		func(p Policy) Policy { p.AdvanceNoticeHours = -1; return p }(valid),
		func(p Policy) Policy { p.MaxPerDay = &zero; return p }(valid),
		func(p Policy) Policy { p.AllowVirtual = false; return p }(valid),
		func(p Policy) Policy { p.Audience = "friends"; return p }(valid),
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("policy %d should be invalid", i)
		}
	}
}
