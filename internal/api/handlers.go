package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campushours/booking-engine/internal/availability"
	"github.com/campushours/booking-engine/internal/booking"
	"github.com/campushours/booking-engine/internal/timegrid"
)

func listSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "providerID must be a valid UUID")
			return
		}

		from, err := parseInstant(r.URL.Query().Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339 or YYYY-MM-DD")
			return
		}
		to, err := parseInstant(r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC3339 or YYYY-MM-DD")
			return
		}

		// requester_id is accepted for interface compatibility; audience
		// filtering happens once at submit time, listing stays advisory.
		if rid := r.URL.Query().Get("requester_id"); rid != "" {
			if _, err := uuid.Parse(rid); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_requester_id", "requester_id must be a valid UUID")
				return
			}
		}

		slots, err := svc.ListAvailableSlots(r.Context(), providerID, from, to)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		if slots == nil {
			slots = []booking.Slot{}
		}
		writeJSON(w, http.StatusOK, slots)
	}
}

func submitAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		requesterID, err := uuid.Parse(req.RequesterID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_requester_id", "requester_id must be a valid UUID")
			return
		}
		slotStart, err := time.Parse(time.RFC3339, req.SlotStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_start", "slot_start must be RFC3339")
			return
		}
		slotEnd, err := time.Parse(time.RFC3339, req.SlotEnd)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_end", "slot_end must be RFC3339")
			return
		}

		appt, err := svc.SubmitRequest(r.Context(), booking.SubmitInput{
			ProviderID:  providerID,
			RequesterID: requesterID,
			SlotStart:   slotStart,
			SlotEnd:     slotEnd,
			Modality:    booking.Modality(req.Modality),
			PurposeText: req.PurposeText,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requesterID, err := uuid.Parse(r.URL.Query().Get("requester_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_requester_id", "requester_id must be a valid UUID")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appts, err := svc.ListByRequester(r.Context(), requesterID, limit, offset)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for _, appt := range appts {
			out = append(out, toAppointmentResponse(appt))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// transitionHandler serves accept/decline/cancel/complete/no-show, which all
// share the same request shape.
func transitionHandler(fn func(r *http.Request, id, actorID uuid.UUID) (*booking.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		actorID, err := uuid.Parse(req.ActorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor_id", "actor_id must be a valid UUID")
			return
		}

		appt, err := fn(r, id, actorID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func rescheduleHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		actorID, err := uuid.Parse(req.ActorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor_id", "actor_id must be a valid UUID")
			return
		}
		slotStart, err := time.Parse(time.RFC3339, req.SlotStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_start", "slot_start must be RFC3339")
			return
		}
		slotEnd, err := time.Parse(time.RFC3339, req.SlotEnd)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_end", "slot_end must be RFC3339")
			return
		}

		appt, err := svc.ProposeReschedule(r.Context(), id, slotStart, slotEnd, actorID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func putPolicyHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "providerID must be a valid UUID")
			return
		}

		var req PolicyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		policy := booking.Policy{
			ProviderID:          providerID,
			SlotDurationMinutes: req.SlotDurationMinutes,
			BufferMinutes:       req.BufferMinutes,
			AdvanceNoticeHours:  req.AdvanceNoticeHours,
			MaxPerDay:           req.MaxPerDay,
			Audience:            booking.Audience(req.Audience),
			AutoAccept:          req.AutoAccept,
			AllowVirtual:        req.AllowVirtual,
			AllowInPerson:       req.AllowInPerson,
			LocationText:        req.LocationText,
		}
		if err := svc.PutPolicy(r.Context(), policy); err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func putRulesHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "providerID must be a valid UUID")
			return
		}

		var reqs []RuleRequest
		if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		rules := make([]availability.Rule, 0, len(reqs))
		for _, rr := range reqs {
			rule := availability.Rule{
				ID:          uuid.New(),
				ProviderID:  providerID,
				Weekday:     time.Weekday(rr.Weekday),
				StartMinute: rr.StartMinute,
				EndMinute:   rr.EndMinute,
			}
			if rr.EffectiveFrom != nil {
				t, err := parseInstant(*rr.EffectiveFrom)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_effective_from", "effective_from must be RFC3339 or YYYY-MM-DD")
					return
				}
				rule.EffectiveFrom = &t
			}
			if rr.EffectiveUntil != nil {
				t, err := parseInstant(*rr.EffectiveUntil)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_effective_until", "effective_until must be RFC3339 or YYYY-MM-DD")
					return
				}
				rule.EffectiveUntil = &t
			}
			rules = append(rules, rule)
		}

		if err := svc.ReplaceRules(r.Context(), providerID, rules); err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func putExceptionsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "providerID must be a valid UUID")
			return
		}

		var reqs []ExceptionRequest
		if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		exceptions := make([]availability.Exception, 0, len(reqs))
		for _, er := range reqs {
			date, err := parseInstant(er.Date)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be RFC3339 or YYYY-MM-DD")
				return
			}
			exceptions = append(exceptions, availability.Exception{
				ID:          uuid.New(),
				ProviderID:  providerID,
				Date:        date,
				Kind:        availability.ExceptionKind(er.Kind),
				StartMinute: er.StartMinute,
				EndMinute:   er.EndMinute,
			})
		}

		if err := svc.ReplaceExceptions(r.Context(), providerID, exceptions); err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	var rej *booking.Rejection
	switch {
	case errors.As(err, &rej):
		writeRejection(w, rej)
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, booking.ErrSlotNotElapsed):
		writeError(w, http.StatusConflict, "slot_not_elapsed", err.Error())
	case errors.Is(err, booking.ErrStaleState):
		writeError(w, http.StatusConflict, "state_changed_concurrently", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrPolicyNotFound):
		writeError(w, http.StatusNotFound, "policy_not_found", err.Error())
	case errors.Is(err, booking.ErrInvalidPolicy),
		errors.Is(err, availability.ErrInvalidRule),
		errors.Is(err, availability.ErrInvalidException),
		errors.Is(err, availability.ErrInvalidRange),
		errors.Is(err, timegrid.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// parseInstant accepts RFC3339 or a bare date, both interpreted in UTC.
func parseInstant(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02", raw, time.UTC)
}
