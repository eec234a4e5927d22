package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushours/booking-engine/internal/availability"
	redisclient "github.com/campushours/booking-engine/internal/redis"
	"github.com/campushours/booking-engine/internal/timegrid"
)

// AudienceChecker is the roster collaborator boundary: the engine only ever
// sees the boolean it returns.
type AudienceChecker interface {
	IsAuthorizedRequester(ctx context.Context, providerID, requesterID uuid.UUID, audience Audience) (bool, error)
}

// Notifier is invoked after each committed transition, fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, appt Appointment, eventKind Event)
}

// Slot is a derived, non-persisted bookable interval. Its reservation exists
// only as a live appointment covering it.
type Slot struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// Service is the slot allocator and appointment lifecycle engine.
type Service struct {
	repo     Repository
	locker   redisclient.ProviderLocker
	audience AudienceChecker
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, locker redisclient.ProviderLocker, audience AudienceChecker, notifier Notifier, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		audience: audience,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// SetClock replaces the service clock for deterministic tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ListAvailableSlots computes the currently bookable slots for a provider in
// [from, to]. Read-only and lock-free: results are advisory, a listed slot can
// still lose the race to a concurrent SubmitRequest. The audience filter is
// excluded here; callers pre-filter requesters once.
func (s *Service) ListAvailableSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	policy, err := s.repo.GetPolicy(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	open, existing, err := s.loadDayContext(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var slots []Slot
	for _, iv := range open {
		for _, cand := range timegrid.Discretize(iv, policy.SlotDuration()) {
			if rej := ValidateRequest(policy, open, existing, cand, now, true); rej != nil {
				continue
			}
			slots = append(slots, Slot{ProviderID: providerID, Start: cand.Start, End: cand.End})
		}
	}
	return slots, nil
}

type SubmitInput struct {
	ProviderID  uuid.UUID
	RequesterID uuid.UUID
	SlotStart   time.Time
	SlotEnd     time.Time
	Modality    Modality
	PurposeText string
}

// SubmitRequest atomically validates and reserves a slot. The validate-then-
// commit section runs under the provider lock so concurrent requests for
// overlapping slots cannot both create a live appointment. Lock exhaustion
// surfaces as Rejection{Contention}.
func (s *Service) SubmitRequest(ctx context.Context, in SubmitInput) (*Appointment, error) {
	policy, err := s.repo.GetPolicy(ctx, in.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	if !policy.AllowsModality(in.Modality) {
		return nil, Reject(ReasonModalityNotOffered)
	}

	slot, err := timegrid.NewInterval(in.SlotStart, in.SlotEnd)
	if err != nil {
		return nil, err
	}
	if slot.Duration() != policy.SlotDuration() {
		return nil, Reject(ReasonOutsideAvailability)
	}

	audienceOK, err := s.audience.IsAuthorizedRequester(ctx, in.ProviderID, in.RequesterID, policy.Audience)
	if err != nil {
		return nil, fmt.Errorf("roster lookup: %w", err)
	}

	var created *Appointment
	err = s.locker.WithProviderLock(ctx, in.ProviderID, func(lockCtx context.Context) error {
		open, existing, err := s.loadDayContext(lockCtx, in.ProviderID, slot.Start, slot.End)
		if err != nil {
			return err
		}

		now := s.now()
		if rej := ValidateRequest(policy, open, existing, slot, now, audienceOK); rej != nil {
			return rej
		}

		state := StateRequested
		event := EventSubmit
		if policy.AutoAccept {
			state = StateAccepted
			event = EventAccept
		}

		appt := Appointment{
			ID:               uuid.New(),
			ProviderID:       in.ProviderID,
			RequesterID:      in.RequesterID,
			SlotStart:        slot.Start,
			SlotEnd:          slot.End,
			State:            state,
			Modality:         in.Modality,
			PurposeText:      in.PurposeText,
			CreatedAt:        now,
			LastTransitionAt: now,
		}

		created, err = s.repo.CreateAppointment(lockCtx, appt, s.record(appt, event, "", state, in.RequesterID, map[string]any{
			"auto_accept": policy.AutoAccept,
		}))
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, Reject(ReasonContention)
		}
		return nil, err
	}

	s.notifyCommitted(*created, EventSubmit)
	return created, nil
}

// Accept moves a requested appointment to accepted. Accepting a reschedule
// proposal also cancels the superseded original, serialized on the provider.
func (s *Service) Accept(ctx context.Context, id, actorID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.RescheduleOf != nil {
		return s.resolveReschedule(ctx, appt, EventAccept, actorID)
	}
	return s.transition(ctx, appt, EventAccept, actorID, nil)
}

// Decline rejects a requested appointment, releasing its slot immediately.
// Declining a reschedule proposal restores the original to its prior state.
func (s *Service) Decline(ctx context.Context, id, actorID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.RescheduleOf != nil {
		return s.resolveReschedule(ctx, appt, EventDecline, actorID)
	}
	return s.transition(ctx, appt, EventDecline, actorID, nil)
}

func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return s.transition(ctx, appt, EventCancel, actorID, nil)
}

// ErrSlotNotElapsed guards completion and no-show marking: both only make
// sense after the slot has ended.
var ErrSlotNotElapsed = errors.New("appointment slot has not ended yet")

func (s *Service) Complete(ctx context.Context, id, actorID uuid.UUID) (*Appointment, error) {
	return s.afterSlotEnd(ctx, id, actorID, EventComplete)
}

func (s *Service) MarkNoShow(ctx context.Context, id, actorID uuid.UUID) (*Appointment, error) {
	return s.afterSlotEnd(ctx, id, actorID, EventMarkNoShow)
}

func (s *Service) afterSlotEnd(ctx context.Context, id, actorID uuid.UUID, ev Event) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if s.now().Before(appt.SlotEnd) {
		return nil, ErrSlotNotElapsed
	}
	return s.transition(ctx, appt, ev, actorID, nil)
}

// ProposeReschedule creates a new requested appointment for newStart/newEnd
// referencing the original, and parks the original in reschedule_proposed
// until the new one resolves. Like SubmitRequest it reserves a slot, so it is
// serialized on the provider.
func (s *Service) ProposeReschedule(ctx context.Context, id uuid.UUID, newStart, newEnd time.Time, actorID uuid.UUID) (*Appointment, error) {
	original, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if _, err := Transition(original.State, EventProposeReschedule); err != nil {
		return nil, err
	}

	policy, err := s.repo.GetPolicy(ctx, original.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	slot, err := timegrid.NewInterval(newStart, newEnd)
	if err != nil {
		return nil, err
	}
	if slot.Duration() != policy.SlotDuration() {
		return nil, Reject(ReasonOutsideAvailability)
	}

	audienceOK, err := s.audience.IsAuthorizedRequester(ctx, original.ProviderID, original.RequesterID, policy.Audience)
	if err != nil {
		return nil, fmt.Errorf("roster lookup: %w", err)
	}

	var created *Appointment
	err = s.locker.WithProviderLock(ctx, original.ProviderID, func(lockCtx context.Context) error {
		open, existing, err := s.loadDayContext(lockCtx, original.ProviderID, slot.Start, slot.End)
		if err != nil {
			return err
		}

		// The original keeps holding its own slot while the proposal is
		// pending; exclude it so moving to an adjacent slot is possible.
		peers := existing[:0:0]
		for _, a := range existing {
			if a.ID != original.ID {
				peers = append(peers, a)
			}
		}

		now := s.now()
		if rej := ValidateRequest(policy, open, peers, slot, now, audienceOK); rej != nil {
			return rej
		}

		// Reschedule proposals always start in requested, even under
		// auto-accept: the counterparty must approve the move.
		originalID := original.ID
		appt := Appointment{
			ID:               uuid.New(),
			ProviderID:       original.ProviderID,
			RequesterID:      original.RequesterID,
			SlotStart:        slot.Start,
			SlotEnd:          slot.End,
			State:            StateRequested,
			Modality:         original.Modality,
			PurposeText:      original.PurposeText,
			RescheduleOf:     &originalID,
			CreatedAt:        now,
			LastTransitionAt: now,
		}

		created, err = s.repo.CreateAppointment(lockCtx, appt, s.record(appt, EventSubmit, "", StateRequested, actorID, map[string]any{
			"reschedule_of": originalID.String(),
		}))
		if err != nil {
			return fmt.Errorf("create reschedule appointment: %w", err)
		}

		prior := original.State
		_, err = s.repo.UpdateAppointmentState(lockCtx, original.ID, original.State, StateRescheduleProposed, &prior, now,
			s.record(*original, EventProposeReschedule, original.State, StateRescheduleProposed, actorID, map[string]any{
				"proposed_appointment_id": appt.ID.String(),
			}))
		if err != nil {
			return fmt.Errorf("park original appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, Reject(ReasonContention)
		}
		return nil, err
	}

	s.notifyCommitted(*created, EventProposeReschedule)
	return created, nil
}

// resolveReschedule accepts or declines a proposal appointment and settles the
// original: acceptance supersedes it (cancelled), decline restores its prior
// state. Touches two appointments, so it runs under the provider lock.
func (s *Service) resolveReschedule(ctx context.Context, proposal *Appointment, ev Event, actorID uuid.UUID) (*Appointment, error) {
	next, err := Transition(proposal.State, ev)
	if err != nil {
		return nil, err
	}

	var updated *Appointment
	err = s.locker.WithProviderLock(ctx, proposal.ProviderID, func(lockCtx context.Context) error {
		now := s.now()
		updated, err = s.repo.UpdateAppointmentState(lockCtx, proposal.ID, proposal.State, next, nil, now,
			s.record(*proposal, ev, proposal.State, next, actorID, nil))
		if err != nil {
			return fmt.Errorf("resolve reschedule proposal: %w", err)
		}

		original, err := s.repo.GetAppointment(lockCtx, *proposal.RescheduleOf)
		if err != nil {
			return fmt.Errorf("load original appointment: %w", err)
		}
		if original.State != StateRescheduleProposed {
			// Already settled by a concurrent cancel; nothing to restore.
			return nil
		}

		switch ev {
		case EventAccept:
			_, err = s.repo.UpdateAppointmentState(lockCtx, original.ID, StateRescheduleProposed, StateCancelled, nil, now,
				s.record(*original, EventCancel, StateRescheduleProposed, StateCancelled, actorID, map[string]any{
					"superseded_by": proposal.ID.String(),
				}))
		case EventDecline:
			restored := StateRequested
			if original.PriorState != nil {
				restored = *original.PriorState
			}
			_, err = s.repo.UpdateAppointmentState(lockCtx, original.ID, StateRescheduleProposed, restored, nil, now,
				s.record(*original, EventDecline, StateRescheduleProposed, restored, actorID, map[string]any{
					"declined_proposal": proposal.ID.String(),
				}))
		}
		if err != nil {
			return fmt.Errorf("settle original appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, Reject(ReasonContention)
		}
		return nil, err
	}

	s.notifyCommitted(*updated, ev)
	return updated, nil
}

// CompleteElapsed marks accepted appointments whose slot has ended as
// completed. Intended to be called periodically by the completion worker.
func (s *Service) CompleteElapsed(ctx context.Context) (int, error) {
	now := s.now()
	elapsed, err := s.repo.FindElapsedAccepted(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find elapsed accepted appointments: %w", err)
	}

	completed := 0
	for _, appt := range elapsed {
		_, err := s.repo.UpdateAppointmentState(ctx, appt.ID, StateAccepted, StateCompleted, nil, now,
			s.record(appt, EventComplete, StateAccepted, StateCompleted, appt.ProviderID, map[string]any{
				"reason": "worker",
			}))
		if err != nil {
			if !errors.Is(err, ErrStaleState) && !errors.Is(err, ErrAppointmentNotFound) {
				s.log.Warn("failed to complete elapsed appointment",
					zap.String("appointment_id", appt.ID.String()), zap.Error(err))
			}
			continue
		}
		completed++
		s.notifyCommitted(appt, EventComplete)
	}
	return completed, nil
}

// StaleRequested surfaces requested appointments whose start already violates
// the provider's advance notice. Reporting only: auto-decline is a caller
// policy decision, not the engine's.
func (s *Service) StaleRequested(ctx context.Context) ([]Appointment, error) {
	return s.repo.FindStaleRequested(ctx, s.now())
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) ListByRequester(ctx context.Context, requesterID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	appts, err := s.repo.ListByRequester(ctx, requesterID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by requester: %w", err)
	}
	return appts, nil
}

// PutPolicy validates and stores a provider's policy. A policy change never
// retroactively invalidates accepted appointments; it only shapes future slot
// computation.
func (s *Service) PutPolicy(ctx context.Context, policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	if err := s.repo.PutPolicy(ctx, policy); err != nil {
		return fmt.Errorf("store policy: %w", err)
	}
	return nil
}

func (s *Service) GetPolicy(ctx context.Context, providerID uuid.UUID) (Policy, error) {
	return s.repo.GetPolicy(ctx, providerID)
}

// ReplaceRules swaps the provider's full recurring rule set atomically.
func (s *Service) ReplaceRules(ctx context.Context, providerID uuid.UUID, rules []availability.Rule) error {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	if err := s.repo.ReplaceRules(ctx, providerID, rules); err != nil {
		return fmt.Errorf("replace availability rules: %w", err)
	}
	return nil
}

// ReplaceExceptions swaps the provider's full exception set atomically.
func (s *Service) ReplaceExceptions(ctx context.Context, providerID uuid.UUID, exceptions []availability.Exception) error {
	for _, ex := range exceptions {
		if err := ex.Validate(); err != nil {
			return err
		}
	}
	if err := s.repo.ReplaceExceptions(ctx, providerID, exceptions); err != nil {
		return fmt.Errorf("replace availability exceptions: %w", err)
	}
	return nil
}

// transition applies a per-appointment compare-and-swap lifecycle step.
func (s *Service) transition(ctx context.Context, appt *Appointment, ev Event, actorID uuid.UUID, payload map[string]any) (*Appointment, error) {
	next, err := Transition(appt.State, ev)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.repo.UpdateAppointmentState(ctx, appt.ID, appt.State, next, nil, now,
		s.record(*appt, ev, appt.State, next, actorID, payload))
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", ev, err)
	}

	s.notifyCommitted(*updated, ev)
	return updated, nil
}

// loadDayContext materializes open intervals and loads live appointments for
// the UTC days covering [from, to], padded by a day on each side so buffer
// checks see neighbors across midnight.
func (s *Service) loadDayContext(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]timegrid.Interval, []Appointment, error) {
	rules, err := s.repo.ListRules(ctx, providerID)
	if err != nil {
		return nil, nil, fmt.Errorf("load availability rules: %w", err)
	}
	exceptions, err := s.repo.ListExceptions(ctx, providerID, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("load availability exceptions: %w", err)
	}

	open, err := availability.MaterializeOpenIntervals(rules, exceptions, from, to)
	if err != nil {
		return nil, nil, err
	}

	existing, err := s.repo.ListLive(ctx, providerID, from.Add(-24*time.Hour), to.Add(24*time.Hour))
	if err != nil {
		return nil, nil, fmt.Errorf("load live appointments: %w", err)
	}
	return open, existing, nil
}

func (s *Service) record(appt Appointment, ev Event, from, to State, actorID uuid.UUID, payload map[string]any) TransitionRecord {
	var data []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			s.log.Warn("failed to marshal transition payload",
				zap.String("event", string(ev)), zap.Error(err))
		} else {
			data = b
		}
	}
	return TransitionRecord{
		AppointmentID: appt.ID,
		Event:         ev,
		FromState:     from,
		ToState:       to,
		ActorID:       actorID,
		Payload:       data,
		CreatedAt:     s.now(),
	}
}

// notifyCommitted dispatches after the transaction has committed. Failures are
// the dispatcher's problem; state is already durable.
func (s *Service) notifyCommitted(appt Appointment, ev Event) {
	if s.notifier == nil {
		return
	}
	go s.notifier.Notify(context.Background(), appt, ev)
}
