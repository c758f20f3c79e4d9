package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/geocms/lab-reservation/internal/middleware"
	"github.com/geocms/lab-reservation/internal/model"
	"github.com/geocms/lab-reservation/internal/service"
	"github.com/geocms/lab-reservation/internal/utils"
)

const testSecret = "handler-test-secret"

// stubWorkflow answers every call with the configured result and records
// what it was asked.
type stubWorkflow struct {
	ReservationWorkflow

	err     error
	bulk    *service.BulkResult
	actor   model.Actor
	id      uint64
	text    string
	ids     []uint64
	action  string
	submit  service.SubmitRequest
	calls   []string
}

func (s *stubWorkflow) record(name string, a model.Actor, id uint64, text string) (*model.Reservation, error) {
	s.calls = append(s.calls, name)
	s.actor, s.id, s.text = a, id, text
	if s.err != nil {
		return nil, s.err
	}
	return &model.Reservation{ID: id, LabID: 7, UserID: a.UserID, Date: "2025-06-02", StartTime: 540, EndTime: 600,
		Status: model.StatusPending}, nil
}

func (s *stubWorkflow) Submit(_ context.Context, a model.Actor, req service.SubmitRequest) (*model.Reservation, error) {
	s.submit = req
	return s.record("submit", a, 1, "")
}

func (s *stubWorkflow) Approve(_ context.Context, a model.Actor, id uint64, notes string) (*model.Reservation, error) {
	return s.record("approve", a, id, notes)
}

func (s *stubWorkflow) Reject(_ context.Context, a model.Actor, id uint64, reason string) (*model.Reservation, error) {
	return s.record("reject", a, id, reason)
}

func (s *stubWorkflow) Cancel(_ context.Context, a model.Actor, id uint64) (*model.Reservation, error) {
	return s.record("cancel", a, id, "")
}

func (s *stubWorkflow) BulkProcess(_ context.Context, a model.Actor, ids []uint64, action, text string) (*service.BulkResult, error) {
	s.calls = append(s.calls, "bulk")
	s.actor, s.ids, s.action, s.text = a, ids, action, text
	if s.err != nil {
		return nil, s.err
	}
	if s.bulk != nil {
		return s.bulk, nil
	}
	return &service.BulkResult{Results: []service.BulkItemResult{{ID: ids[0], OK: true}}, SuccessCount: 1}, nil
}

func (s *stubWorkflow) ListByStatus(_ context.Context, a model.Actor, st model.ReservationStatus) ([]model.Reservation, error) {
	s.calls = append(s.calls, "list:"+string(st))
	return []model.Reservation{}, s.err
}

func bearer(t *testing.T, id uint64, role model.Role) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, id, role, 5)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok.Token
}

func newReservationServer(wf ReservationWorkflow) *echo.Echo {
	h := NewReservationHandler(wf, nil)
	e := echo.New()
	g := e.Group("/v1", middleware.JWTAuth(testSecret))
	g.POST("/reservations", h.Submit)
	g.DELETE("/reservations/:id", h.Cancel)
	g.GET("/admin/reservations", h.ListByStatus)
	g.POST("/admin/reservations/bulk", h.Bulk)
	g.POST("/admin/reservations/:id/approve", h.Approve)
	g.POST("/admin/reservations/:id/reject", h.Reject)
	return e
}

func do(e *echo.Echo, method, path, auth, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSubmitPassesActorAndBody(t *testing.T) {
	wf := &stubWorkflow{}
	e := newReservationServer(wf)
	body := `{"lab_id":7,"reservation_date":"2025-06-02","start_time":"09:00","end_time":"10:00","purpose":"Lab","expected_attendees":12}`

	rec := do(e, http.MethodPost, "/v1/reservations", bearer(t, 100, model.RoleStudent), body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %d body %s", rec.Code, rec.Body.String())
	}
	if wf.actor != (model.Actor{UserID: 100, Role: model.RoleStudent}) {
		t.Fatalf("actor = %+v", wf.actor)
	}
	if wf.submit.LabID != 7 || wf.submit.Date != "2025-06-02" || wf.submit.ExpectedAttendees != 12 {
		t.Fatalf("request = %+v", wf.submit)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["start_time"] != "09:00" || got["status"] != "pending" {
		t.Fatalf("body = %v", got)
	}
}

func TestWorkflowErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
		kind string
	}{
		{&service.Error{Kind: service.KindValidation, Reason: "End time must be after start time"}, http.StatusBadRequest, "validation"},
		{&service.Error{Kind: service.KindConflict, Reason: "overlap"}, http.StatusConflict, "conflict"},
		{&service.Error{Kind: service.KindNotFound, Reason: "Lab not found"}, http.StatusNotFound, "not_found"},
		{&service.Error{Kind: service.KindForbidden, Reason: "no"}, http.StatusForbidden, "forbidden"},
		{&service.Error{Kind: service.KindInvalidState, Reason: "Reservation is approved and cannot be rejected"}, http.StatusConflict, "invalid_state"},
		{fmt.Errorf("store: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, ""},
		{context.Canceled, statusClientClosedRequest, ""},
		{errors.New("connection refused"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code, tt.kind), func(t *testing.T) {
			e := newReservationServer(&stubWorkflow{err: tt.err})
			rec := do(e, http.MethodPost, "/v1/reservations", bearer(t, 1, model.RoleStudent), `{"lab_id":1}`)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["code"] != tt.kind || body["error"] == "" {
				t.Fatalf("body = %v", body)
			}
			if tt.code == http.StatusInternalServerError && strings.Contains(body["error"], "refused") {
				t.Fatalf("internal error leaked: %v", body)
			}
		})
	}
}

func TestReviewEndpoints(t *testing.T) {
	wf := &stubWorkflow{}
	e := newReservationServer(wf)
	staff := bearer(t, 200, model.RoleStaff)

	if rec := do(e, http.MethodPost, "/v1/admin/reservations/5/approve", staff, ""); rec.Code != http.StatusOK {
		t.Fatalf("approve without body = %d", rec.Code)
	}
	if wf.id != 5 || wf.text != "" {
		t.Fatalf("approve got id=%d text=%q", wf.id, wf.text)
	}
	if rec := do(e, http.MethodPost, "/v1/admin/reservations/6/reject", staff, `{"reason":"Exam week"}`); rec.Code != http.StatusOK {
		t.Fatalf("reject = %d", rec.Code)
	}
	if wf.id != 6 || wf.text != "Exam week" {
		t.Fatalf("reject got id=%d text=%q", wf.id, wf.text)
	}
	if rec := do(e, http.MethodPost, "/v1/admin/reservations/abc/approve", staff, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id = %d", rec.Code)
	}
	if rec := do(e, http.MethodDelete, "/v1/reservations/0", staff, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("zero id = %d", rec.Code)
	}

	if rec := do(e, http.MethodGet, "/v1/admin/reservations?status=Approved", staff, ""); rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/v1/admin/reservations?status=lost", staff, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("list unknown status = %d", rec.Code)
	}
	if last := wf.calls[len(wf.calls)-1]; last != "list:approved" {
		t.Fatalf("calls = %v", wf.calls)
	}
}

func TestBulkEndpoint(t *testing.T) {
	wf := &stubWorkflow{}
	e := newReservationServer(wf)
	staff := bearer(t, 200, model.RoleStaff)

	rec := do(e, http.MethodPost, "/v1/admin/reservations/bulk", staff, `{"ids":[3,4],"action":"reject","reason":"Closed","notes":"n"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk = %d %s", rec.Code, rec.Body.String())
	}
	if wf.action != "reject" || wf.text != "Closed" || len(wf.ids) != 2 {
		t.Fatalf("bulk got action=%q text=%q ids=%v", wf.action, wf.text, wf.ids)
	}
	var res service.BulkResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || res.SuccessCount != 1 {
		t.Fatalf("bulk body = %s", rec.Body.String())
	}

	wf.bulk = &service.BulkResult{
		Results: []service.BulkItemResult{
			{ID: 3, OK: true},
			{ID: 4, Code: service.KindNotAttempted, Error: "Not processed"},
		},
		SuccessCount: 1,
		Incomplete:   true,
	}
	rec = do(e, http.MethodPost, "/v1/admin/reservations/bulk", staff, `{"ids":[3,4],"action":"approve"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("partial bulk = %d %s", rec.Code, rec.Body.String())
	}
	res = service.BulkResult{}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Incomplete || res.SuccessCount != 1 || len(res.Results) != 2 || res.Results[1].Code != service.KindNotAttempted {
		t.Fatalf("partial bulk body = %s", rec.Body.String())
	}

	ids := make([]string, 201)
	for i := range ids {
		ids[i] = fmt.Sprint(i + 1)
	}
	rec = do(e, http.MethodPost, "/v1/admin/reservations/bulk", staff, `{"ids":[`+strings.Join(ids, ",")+`],"action":"approve"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized bulk = %d", rec.Code)
	}
}

func TestBulkTimeoutGrowsWithBatch(t *testing.T) {
	if got := bulkTimeout(0); got != requestTimeout {
		t.Fatalf("bulkTimeout(0) = %v", got)
	}
	if got, want := bulkTimeout(200), requestTimeout+200*bulkItemTimeout; got != want {
		t.Fatalf("bulkTimeout(200) = %v, want %v", got, want)
	}
}

func TestHandlersRequireActor(t *testing.T) {
	h := NewReservationHandler(&stubWorkflow{}, nil)
	e := echo.New()
	e.POST("/open", h.Submit)
	if rec := do(e, http.MethodPost, "/open", "", `{}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d", rec.Code)
	}
}
