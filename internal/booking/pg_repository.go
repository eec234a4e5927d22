package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campushours/booking-engine/internal/availability"
)

// PgRepository stores all engine state in Postgres. Appointment writes commit
// the row change and its transition_events audit record in one transaction.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	id, provider_id, requester_id, slot_start, slot_end, state, prior_state,
	modality, purpose_text, reschedule_of, created_at, last_transition_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var prior *string
	var rescheduleOf *uuid.UUID

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.RequesterID,
		&a.SlotStart,
		&a.SlotEnd,
		&a.State,
		&prior,
		&a.Modality,
		&a.PurposeText,
		&rescheduleOf,
		&a.CreatedAt,
		&a.LastTransitionAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if prior != nil {
		st := State(*prior)
		a.PriorState = &st
	}
	a.RescheduleOf = rescheduleOf
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PgRepository) GetPolicy(ctx context.Context, providerID uuid.UUID) (Policy, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT provider_id, slot_duration_minutes, buffer_minutes, advance_notice_hours,
		       max_per_day, audience, auto_accept, allow_virtual, allow_in_person,
		       location_text, updated_at
		FROM booking_policies
		WHERE provider_id = $1
	`, providerID)

	var p Policy
	err := row.Scan(
		&p.ProviderID,
		&p.SlotDurationMinutes,
		&p.BufferMinutes,
		&p.AdvanceNoticeHours,
		&p.MaxPerDay,
		&p.Audience,
		&p.AutoAccept,
		&p.AllowVirtual,
		&p.AllowInPerson,
		&p.LocationText,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Policy{}, ErrPolicyNotFound
		}
		return Policy{}, err
	}
	return p, nil
}

func (r *PgRepository) PutPolicy(ctx context.Context, policy Policy) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO booking_policies (
			provider_id, slot_duration_minutes, buffer_minutes, advance_notice_hours,
			max_per_day, audience, auto_accept, allow_virtual, allow_in_person,
			location_text, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (provider_id) DO UPDATE SET
			slot_duration_minutes = EXCLUDED.slot_duration_minutes,
			buffer_minutes = EXCLUDED.buffer_minutes,
			advance_notice_hours = EXCLUDED.advance_notice_hours,
			max_per_day = EXCLUDED.max_per_day,
			audience = EXCLUDED.audience,
			auto_accept = EXCLUDED.auto_accept,
			allow_virtual = EXCLUDED.allow_virtual,
			allow_in_person = EXCLUDED.allow_in_person,
			location_text = EXCLUDED.location_text,
			updated_at = now()
	`, policy.ProviderID, policy.SlotDurationMinutes, policy.BufferMinutes,
		policy.AdvanceNoticeHours, policy.MaxPerDay, policy.Audience, policy.AutoAccept,
		policy.AllowVirtual, policy.AllowInPerson, policy.LocationText)
	if err != nil {
		return fmt.Errorf("upsert booking policy: %w", err)
	}
	return nil
}

func (r *PgRepository) ListRules(ctx context.Context, providerID uuid.UUID) ([]availability.Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_id, weekday, start_minute, end_minute,
		       effective_from, effective_until, created_at, updated_at
		FROM availability_rules
		WHERE provider_id = $1
		ORDER BY weekday, start_minute
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Rule
	for rows.Next() {
		var rule availability.Rule
		var weekday int
		err := rows.Scan(
			&rule.ID,
			&rule.ProviderID,
			&weekday,
			&rule.StartMinute,
			&rule.EndMinute,
			&rule.EffectiveFrom,
			&rule.EffectiveUntil,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		rule.Weekday = time.Weekday(weekday)
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *PgRepository) ReplaceRules(ctx context.Context, providerID uuid.UUID, rules []availability.Rule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM availability_rules WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("clear availability rules: %w", err)
	}
	for _, rule := range rules {
		id := rule.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_rules (
				id, provider_id, weekday, start_minute, end_minute,
				effective_from, effective_until, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		`, id, providerID, int(rule.Weekday), rule.StartMinute, rule.EndMinute,
			rule.EffectiveFrom, rule.EffectiveUntil)
		if err != nil {
			return fmt.Errorf("insert availability rule: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *PgRepository) ListExceptions(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]availability.Exception, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_id, date, kind, start_minute, end_minute, created_at, updated_at
		FROM availability_exceptions
		WHERE provider_id = $1
		  AND date >= date_trunc('day', $2::timestamptz)
		  AND date <= $3
		ORDER BY date
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Exception
	for rows.Next() {
		var ex availability.Exception
		err := rows.Scan(
			&ex.ID,
			&ex.ProviderID,
			&ex.Date,
			&ex.Kind,
			&ex.StartMinute,
			&ex.EndMinute,
			&ex.CreatedAt,
			&ex.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

func (r *PgRepository) ReplaceExceptions(ctx context.Context, providerID uuid.UUID, exceptions []availability.Exception) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM availability_exceptions WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("clear availability exceptions: %w", err)
	}
	for _, ex := range exceptions {
		id := ex.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_exceptions (
				id, provider_id, date, kind, start_minute, end_minute, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, id, providerID, ex.Date, ex.Kind, ex.StartMinute, ex.EndMinute)
		if err != nil {
			return fmt.Errorf("insert availability exception: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListLive(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND state IN ('requested', 'accepted', 'reschedule_proposed')
		  AND slot_start < $3
		  AND slot_end > $2
		ORDER BY slot_start
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) ListByRequester(ctx context.Context, requesterID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE requester_id = $1
		ORDER BY slot_start
		LIMIT $2 OFFSET $3
	`, requesterID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt Appointment, rec TransitionRecord) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (
			id, provider_id, requester_id, slot_start, slot_end, state, prior_state,
			modality, purpose_text, reschedule_of, created_at, last_transition_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, $7, $8, $9, $10, $10)
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.ProviderID, appt.RequesterID, appt.SlotStart, appt.SlotEnd,
		appt.State, appt.Modality, appt.PurposeText, appt.RescheduleOf, appt.CreatedAt)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := insertTransitionEvent(ctx, tx, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointmentState(ctx context.Context, id uuid.UUID, from, to State, prior *State, at time.Time, rec TransitionRecord) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET state = $2,
		    prior_state = $3,
		    last_transition_at = $4
		WHERE id = $1
		  AND state = $5
		RETURNING `+appointmentColumns+`
	`, id, to, prior, at, from)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Distinguish a missing row from a lost compare-and-swap.
			var exists bool
			if chkErr := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); chkErr == nil && exists {
				return nil, ErrStaleState
			}
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if err := insertTransitionEvent(ctx, tx, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) FindElapsedAccepted(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE state = 'accepted'
		  AND slot_end < $1
	`, now)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) FindStaleRequested(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.provider_id, a.requester_id, a.slot_start, a.slot_end, a.state,
		       a.prior_state, a.modality, a.purpose_text, a.reschedule_of,
		       a.created_at, a.last_transition_at
		FROM appointments a
		JOIN booking_policies p ON p.provider_id = a.provider_id
		WHERE a.state = 'requested'
		  AND a.slot_start < $1 + p.advance_notice_hours * interval '1 hour'
	`, now)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func insertTransitionEvent(ctx context.Context, tx pgx.Tx, rec TransitionRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transition_events (
			appointment_id, event, from_state, to_state, actor_id, payload, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
	`, rec.AppointmentID, rec.Event, rec.FromState, rec.ToState, rec.ActorID,
		rec.Payload, nullableTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert transition event: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
