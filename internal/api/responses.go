package api

import (
	"encoding/json"
	"net/http"

	"github.com/campushours/booking-engine/internal/booking"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func writeRejection(w http.ResponseWriter, rej *booking.Rejection) {
	writeJSON(w, http.StatusConflict, ErrorResponse{Error: "rejected", Reason: string(rej.Reason)})
}

func toAppointmentResponse(appt booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:               appt.ID,
		ProviderID:       appt.ProviderID,
		RequesterID:      appt.RequesterID,
		SlotStart:        appt.SlotStart,
		SlotEnd:          appt.SlotEnd,
		State:            string(appt.State),
		Modality:         string(appt.Modality),
		PurposeText:      appt.PurposeText,
		RescheduleOf:     appt.RescheduleOf,
		CreatedAt:        appt.CreatedAt,
		LastTransitionAt: appt.LastTransitionAt,
	}
}
