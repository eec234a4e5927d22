package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campushours/booking-engine/internal/availability"
)

// MemoryRepository is a map-backed Repository guarded by a RWMutex. It backs
// the unit tests and the simulator's in-process mode; the write paths mimic
// the Postgres repository's compare-and-swap semantics.
type MemoryRepository struct {
	mu           sync.RWMutex
	policies     map[uuid.UUID]Policy
	rules        map[uuid.UUID][]availability.Rule
	exceptions   map[uuid.UUID][]availability.Exception
	appointments map[uuid.UUID]*Appointment
	records      []TransitionRecord
	nextRecordID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		policies:     make(map[uuid.UUID]Policy),
		rules:        make(map[uuid.UUID][]availability.Rule),
		exceptions:   make(map[uuid.UUID][]availability.Exception),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func (r *MemoryRepository) GetPolicy(_ context.Context, providerID uuid.UUID) (Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[providerID]
	if !ok {
		return Policy{}, ErrPolicyNotFound
	}
	return p, nil
}

func (r *MemoryRepository) PutPolicy(_ context.Context, policy Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[policy.ProviderID] = policy
	return nil
}

func (r *MemoryRepository) ListRules(_ context.Context, providerID uuid.UUID) ([]availability.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]availability.Rule, len(r.rules[providerID]))
	copy(out, r.rules[providerID])
	return out, nil
}

func (r *MemoryRepository) ReplaceRules(_ context.Context, providerID uuid.UUID, rules []availability.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := make([]availability.Rule, len(rules))
	copy(stored, rules)
	r.rules[providerID] = stored
	return nil
}

func (r *MemoryRepository) ListExceptions(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]availability.Exception, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []availability.Exception
	for _, ex := range r.exceptions[providerID] {
		if !ex.Date.Before(from.UTC().Truncate(24*time.Hour)) && !ex.Date.After(to) {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ReplaceExceptions(_ context.Context, providerID uuid.UUID, exceptions []availability.Exception) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := make([]availability.Exception, len(exceptions))
	copy(stored, exceptions)
	r.exceptions[providerID] = stored
	return nil
}

func (r *MemoryRepository) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	appt, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *appt
	return &cp, nil
}

func (r *MemoryRepository) ListLive(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, appt := range r.appointments {
		if appt.ProviderID != providerID || !appt.Live() {
			continue
		}
		if appt.SlotStart.Before(to) && appt.SlotEnd.After(from) {
			out = append(out, *appt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotStart.Before(out[j].SlotStart) })
	return out, nil
}

func (r *MemoryRepository) ListByRequester(_ context.Context, requesterID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []Appointment
	for _, appt := range r.appointments {
		if appt.RequesterID == requesterID {
			all = append(all, *appt)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SlotStart.Before(all[j].SlotStart) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, appt Appointment, rec TransitionRecord) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := appt
	r.appointments[appt.ID] = &cp
	r.appendRecord(rec)
	out := cp
	return &out, nil
}

func (r *MemoryRepository) UpdateAppointmentState(_ context.Context, id uuid.UUID, from, to State, prior *State, at time.Time, rec TransitionRecord) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if appt.State != from {
		return nil, ErrStaleState
	}
	appt.State = to
	appt.PriorState = prior
	appt.LastTransitionAt = at
	r.appendRecord(rec)
	cp := *appt
	return &cp, nil
}

func (r *MemoryRepository) FindElapsedAccepted(_ context.Context, now time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, appt := range r.appointments {
		if appt.State == StateAccepted && appt.SlotEnd.Before(now) {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (r *MemoryRepository) FindStaleRequested(_ context.Context, now time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, appt := range r.appointments {
		if appt.State != StateRequested {
			continue
		}
		policy, ok := r.policies[appt.ProviderID]
		if !ok {
			continue
		}
		if appt.SlotStart.Sub(now) < policy.AdvanceNotice() {
			out = append(out, *appt)
		}
	}
	return out, nil
}

// TransitionRecords returns a copy of the audit trail, oldest first.
func (r *MemoryRepository) TransitionRecords() []TransitionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TransitionRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *MemoryRepository) appendRecord(rec TransitionRecord) {
	r.nextRecordID++
	rec.ID = r.nextRecordID
	r.records = append(r.records, rec)
}

// MutexLocker serializes provider critical sections with in-process mutexes.
// It satisfies redisclient.ProviderLocker for tests and single-node use.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *MutexLocker) WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[providerID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[providerID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
