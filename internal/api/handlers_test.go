package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushours/booking-engine/internal/availability"
	"github.com/campushours/booking-engine/internal/booking"
	"github.com/campushours/booking-engine/internal/roster"
)

var (
	// Monday 2024-03-04, provider open 14:00-16:00 UTC.
	testDay    = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	testSunday = time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)
)

func newTestRouter(t *testing.T) (http.Handler, uuid.UUID) {
	t.Helper()

	providerID := uuid.New()
	repo := booking.NewMemoryRepository()
	ctx := context.Background()

	three := 3
	err := repo.PutPolicy(ctx, booking.Policy{
		ProviderID:          providerID,
		SlotDurationMinutes: 30,
		BufferMinutes:       15,
		AdvanceNoticeHours:  24,
		MaxPerDay:           &three,
		Audience:            booking.AudienceAll,
		AllowVirtual:        true,
		AllowInPerson:       true,
	})
	if err != nil {
		t.Fatalf("put policy: %v", err)
	}
	err = repo.ReplaceRules(ctx, providerID, []availability.Rule{{
		ID:          uuid.New(),
		ProviderID:  providerID,
		Weekday:     time.Monday,
		StartMinute: 14 * 60,
		EndMinute:   16 * 60,
	}})
	if err != nil {
		t.Fatalf("replace rules: %v", err)
	}

	svc := booking.NewService(repo, booking.NewMutexLocker(), roster.NewStaticChecker(), nil, zap.NewNop())
	svc.SetClock(func() time.Time { return testSunday })

	router := NewRouter(RouterConfig{
		Service: svc,
		Log:     zap.NewNop(),
		Env:     "test",
		Version: "test",
	})
	return router, providerID
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return out
}

func submitBody(providerID uuid.UUID, start time.Time) SubmitAppointmentRequest {
	return SubmitAppointmentRequest{
		ProviderID:  providerID.String(),
		RequesterID: uuid.NewString(),
		SlotStart:   start.Format(time.RFC3339),
		SlotEnd:     start.Add(30 * time.Minute).Format(time.RFC3339),
		Modality:    "virtual",
		PurposeText: "office hours",
	}
}

func TestListSlotsEndpoint(t *testing.T) {
	router, providerID := newTestRouter(t)

	path := fmt.Sprintf("/providers/%s/slots?from=2024-03-04&to=2024-03-05", providerID)
	rec := doJSON(t, router, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body)
	}

	slots := decodeBody[[]booking.Slot](t, rec)
	if len(slots) != 4 {
		t.Fatalf("got %d slots, want 4", len(slots))
	}
	if !slots[0].Start.Equal(testDay.Add(14 * time.Hour)) {
		t.Errorf("first slot = %s, want 14:00", slots[0].Start)
	}
}

func TestListSlotsEndpointBadInput(t *testing.T) {
	router, providerID := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/providers/not-a-uuid/slots?from=2024-03-04&to=2024-03-05", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad provider id status = %d, want 400", rec.Code)
	}

	path := fmt.Sprintf("/providers/%s/slots?from=yesterday&to=2024-03-05", providerID)
	rec = doJSON(t, router, http.MethodGet, path, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad from status = %d, want 400", rec.Code)
	}
}

func TestSubmitAndTransitionEndpoints(t *testing.T) {
	router, providerID := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/appointments", submitBody(providerID, testDay.Add(14*time.Hour)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, want 201 (%s)", rec.Code, rec.Body)
	}
	created := decodeBody[AppointmentResponse](t, rec)
	if created.State != "requested" {
		t.Errorf("state = %s, want requested", created.State)
	}

	// Read it back.
	rec = doJSON(t, router, http.MethodGet, "/appointments/"+created.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}

	// Accept it.
	body := TransitionRequest{ActorID: providerID.String()}
	rec = doJSON(t, router, http.MethodPost, "/appointments/"+created.ID.String()+"/accept", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept status = %d, want 200 (%s)", rec.Code, rec.Body)
	}
	accepted := decodeBody[AppointmentResponse](t, rec)
	if accepted.State != "accepted" {
		t.Errorf("state = %s, want accepted", accepted.State)
	}

	// A second accept is a protocol error, mapped to 409.
	rec = doJSON(t, router, http.MethodPost, "/appointments/"+created.ID.String()+"/accept", body)
	if rec.Code != http.StatusConflict {
		t.Errorf("double accept status = %d, want 409", rec.Code)
	}
	errResp := decodeBody[ErrorResponse](t, rec)
	if errResp.Error != "invalid_transition" {
		t.Errorf("error code = %s, want invalid_transition", errResp.Error)
	}

	// Completing before the slot ends is also a 409.
	rec = doJSON(t, router, http.MethodPost, "/appointments/"+created.ID.String()+"/complete", body)
	if rec.Code != http.StatusConflict {
		t.Errorf("early complete status = %d, want 409", rec.Code)
	}
}

func TestSubmitRejectionMapsToConflict(t *testing.T) {
	router, providerID := newTestRouter(t)

	first := doJSON(t, router, http.MethodPost, "/appointments", submitBody(providerID, testDay.Add(14*time.Hour)))
	if first.Code != http.StatusCreated {
		t.Fatalf("first submit status = %d, want 201", first.Code)
	}

	second := doJSON(t, router, http.MethodPost, "/appointments", submitBody(providerID, testDay.Add(14*time.Hour)))
	if second.Code != http.StatusConflict {
		t.Fatalf("second submit status = %d, want 409 (%s)", second.Code, second.Body)
	}
	errResp := decodeBody[ErrorResponse](t, second)
	if errResp.Error != "rejected" || errResp.Reason != "buffer_conflict" {
		t.Errorf("got error=%s reason=%s, want rejected/buffer_conflict", errResp.Error, errResp.Reason)
	}
}

func TestGetAppointmentNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListAppointmentsEndpoint(t *testing.T) {
	router, providerID := newTestRouter(t)

	body := submitBody(providerID, testDay.Add(14*time.Hour))
	rec := doJSON(t, router, http.MethodPost, "/appointments", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, want 201", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/appointments?requester_id="+body.RequesterID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	appts := decodeBody[[]AppointmentResponse](t, rec)
	if len(appts) != 1 {
		t.Fatalf("got %d appointments, want 1", len(appts))
	}

	rec = doJSON(t, router, http.MethodGet, "/appointments", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing requester_id status = %d, want 400", rec.Code)
	}
}

func TestRescheduleEndpoint(t *testing.T) {
	router, providerID := newTestRouter(t)

	body := submitBody(providerID, testDay.Add(14*time.Hour))
	rec := doJSON(t, router, http.MethodPost, "/appointments", body)
	created := decodeBody[AppointmentResponse](t, rec)

	actor := TransitionRequest{ActorID: providerID.String()}
	rec = doJSON(t, router, http.MethodPost, "/appointments/"+created.ID.String()+"/accept", actor)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/appointments/"+created.ID.String()+"/reschedule", RescheduleRequest{
		SlotStart: testDay.Add(15 * time.Hour).Format(time.RFC3339),
		SlotEnd:   testDay.Add(15*time.Hour + 30*time.Minute).Format(time.RFC3339),
		ActorID:   providerID.String(),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("reschedule status = %d, want 201 (%s)", rec.Code, rec.Body)
	}
	proposal := decodeBody[AppointmentResponse](t, rec)
	if proposal.State != "requested" {
		t.Errorf("proposal state = %s, want requested", proposal.State)
	}
	if proposal.RescheduleOf == nil || *proposal.RescheduleOf != created.ID {
		t.Errorf("proposal should reference the original appointment")
	}

	// Accepting the proposal cancels the original.
	rec = doJSON(t, router, http.MethodPost, "/appointments/"+proposal.ID.String()+"/accept",
		TransitionRequest{ActorID: body.RequesterID})
	if rec.Code != http.StatusOK {
		t.Fatalf("accept proposal status = %d, want 200 (%s)", rec.Code, rec.Body)
	}

	rec = doJSON(t, router, http.MethodGet, "/appointments/"+created.ID.String(), nil)
	original := decodeBody[AppointmentResponse](t, rec)
	if original.State != "cancelled" {
		t.Errorf("original state = %s, want cancelled", original.State)
	}
}

func TestPutPolicyEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	providerID := uuid.New()

	rec := doJSON(t, router, http.MethodPut, "/providers/"+providerID.String()+"/policy", PolicyRequest{
		SlotDurationMinutes: 20,
		BufferMinutes:       5,
		AdvanceNoticeHours:  12,
		Audience:            "all",
		AllowVirtual:        true,
		AllowInPerson:       true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put policy status = %d, want 200 (%s)", rec.Code, rec.Body)
	}

	rec = doJSON(t, router, http.MethodPut, "/providers/"+providerID.String()+"/policy", PolicyRequest{
		SlotDurationMinutes: 0,
		Audience:            "all",
		AllowVirtual:        true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid policy status = %d, want 400", rec.Code)
	}
}

func TestPutRulesAndExceptionsEndpoints(t *testing.T) {
	router, providerID := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPut, "/providers/"+providerID.String()+"/availability-rules", []RuleRequest{
		{Weekday: 2, StartMinute: 10 * 60, EndMinute: 12 * 60},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put rules status = %d, want 200 (%s)", rec.Code, rec.Body)
	}

	rec = doJSON(t, router, http.MethodPut, "/providers/"+providerID.String()+"/availability-rules", []RuleRequest{
		{Weekday: 2, StartMinute: 12 * 60, EndMinute: 10 * 60},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid rule status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPut, "/providers/"+providerID.String()+"/availability-exceptions", []ExceptionRequest{
		{Date: "2024-03-05", Kind: "blackout_full_day"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put exceptions status = %d, want 200 (%s)", rec.Code, rec.Body)
	}

	rec = doJSON(t, router, http.MethodPut, "/providers/"+providerID.String()+"/availability-exceptions", []ExceptionRequest{
		{Date: "2024-03-05", Kind: "long_weekend"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid exception kind status = %d, want 400", rec.Code)
	}
}
