package appointment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-scheduler/internal/config"
	"github.com/jwalitptl/clinic-scheduler/internal/middleware"
	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/internal/repository/memory"
	"github.com/jwalitptl/clinic-scheduler/internal/router"
	"github.com/jwalitptl/clinic-scheduler/internal/scheduling"
	svc "github.com/jwalitptl/clinic-scheduler/internal/service/appointment"
	"github.com/jwalitptl/clinic-scheduler/internal/service/business"
	"github.com/jwalitptl/clinic-scheduler/pkg/errors"
)

type envelope struct {
	Status     string              `json:"status"`
	Message    string              `json:"message"`
	Code       string              `json:"code"`
	Data       json.RawMessage     `json:"data"`
	Errors     []errors.FieldError `json:"errors"`
	Pagination *struct {
		Page       int `json:"page"`
		PageSize   int `json:"page_size"`
		Total      int `json:"total"`
		TotalPages int `json:"total_pages"`
	} `json:"pagination"`
}

type apiFixture struct {
	engine   *gin.Engine
	auth     *middleware.Authenticator
	business uuid.UUID
	staff    uuid.UUID
	patient  uuid.UUID
	token    string
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	f := &apiFixture{business: uuid.New(), staff: uuid.New(), patient: uuid.New()}

	b := &model.Business{Name: "Harbour Physio", Timezone: "UTC", SubscriptionPlan: model.PlanFree, IsActive: true}
	b.ID = f.business
	store.AddBusiness(b)
	st := &model.Staff{BusinessID: f.business, Name: "Dr. Okafor", Role: model.RoleDoctor, IsActive: true}
	st.ID = f.staff
	store.AddStaff(st)
	p := &model.Patient{BusinessID: f.business, FirstName: "Lena", LastName: "Park"}
	p.ID = f.patient
	store.AddPatient(p)

	policies := business.NewService(store.Businesses(), business.PolicyConfig{
		DefaultHours: scheduling.BusinessHours{
			Open:  scheduling.MustTimeOfDay("09:00"),
			Close: scheduling.MustTimeOfDay("17:00"),
		},
	})
	service := svc.NewService(svc.Dependencies{
		Appointments: store.Appointments(),
		Staff:        store.Staff(),
		Patients:     store.Patients(),
		Policies:     policies,
		Logger:       zerolog.Nop(),
	}, svc.Config{DefaultDuration: 60, Granularity: 30})

	f.auth = middleware.NewAuthenticator(config.JWTConfig{Secret: "test-secret", Issuer: "clinic-scheduler"})
	engine, err := router.New(router.Dependencies{
		Auth:         f.auth,
		Appointments: NewHandler(service),
		Logger:       zerolog.Nop(),
	}, router.Config{RequestTimeout: 5 * time.Second, MaxBodyBytes: 1 << 20})
	require.NoError(t, err)
	f.engine = engine
	f.token = f.mint(t, f.business, model.RoleAdmin)
	return f
}

func (f *apiFixture) mint(t *testing.T, businessID uuid.UUID, role model.Role) string {
	t.Helper()
	token, err := f.auth.Sign(uuid.New(), businessID, role, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, token, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (f *apiFixture) createBody(start, end string, minutes int) map[string]interface{} {
	return map[string]interface{}{
		"patient_id":       f.patient.String(),
		"staff_id":         f.staff.String(),
		"appointment_date": "2030-03-04",
		"start_time":       start,
		"end_time":         end,
		"duration_minutes": minutes,
		"type":             "in-person",
	}
}

func (f *apiFixture) create(t *testing.T, start, end string, minutes int) model.Appointment {
	t.Helper()
	w, env := f.do(t, f.token, http.MethodPost, "/api/v1/appointments", f.createBody(start, end, minutes))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var apt model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &apt))
	return apt
}

func TestCreateAppointment(t *testing.T) {
	f := newAPI(t)

	apt := f.create(t, "09:00", "09:30", 30)
	assert.Equal(t, scheduling.StatusScheduled, apt.Status)
	assert.Equal(t, "09:00", apt.StartTime.String())
	assert.Equal(t, "2030-03-04", apt.Date.String())

	w, env := f.do(t, f.token, http.MethodPost, "/api/v1/appointments", f.createBody("09:15", "09:45", 30))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "scheduling_conflict", env.Code)

	w, _ = f.do(t, f.token, http.MethodPost, "/api/v1/appointments", f.createBody("09:30", "10:00", 30))
	assert.Equal(t, http.StatusCreated, w.Code, "touching intervals coexist")
}

func TestCreateAppointmentValidation(t *testing.T) {
	f := newAPI(t)

	w, env := f.do(t, f.token, http.MethodPost, "/api/v1/appointments", f.createBody("09:00", "17:20", 500))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "validation_error", env.Code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "duration_minutes", env.Errors[0].Field)

	body := f.createBody("9am", "10:00", 60)
	body["type"] = "house-call"
	w, env = f.do(t, f.token, http.MethodPost, "/api/v1/appointments", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	fields := make([]string, 0, len(env.Errors))
	for _, fe := range env.Errors {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"start_time", "type"}, fields)

	w, env = f.do(t, f.token, http.MethodPost, "/api/v1/appointments", `{"patient_id":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", env.Code)
}

func TestAuthenticationRequired(t *testing.T) {
	f := newAPI(t)

	w, env := f.do(t, "", http.MethodGet, "/api/v1/appointments", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", env.Code)
}

func TestGetAppointment(t *testing.T) {
	f := newAPI(t)
	apt := f.create(t, "10:00", "11:00", 60)

	w, env := f.do(t, f.token, http.MethodGet, "/api/v1/appointments/"+apt.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, apt.ID, got.ID)

	w, _ = f.do(t, f.token, http.MethodGet, "/api/v1/appointments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	foreign := f.mint(t, uuid.New(), model.RoleAdmin)
	w, env = f.do(t, foreign, http.MethodGet, "/api/v1/appointments/"+apt.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", env.Code)
}

func TestListAppointments(t *testing.T) {
	f := newAPI(t)
	f.create(t, "09:00", "09:30", 30)
	f.create(t, "10:00", "10:30", 30)
	f.create(t, "11:00", "11:30", 30)

	w, env := f.do(t, f.token, http.MethodGet, "/api/v1/appointments?page=2&page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 3, env.Pagination.Total)
	assert.Equal(t, 2, env.Pagination.TotalPages)

	var list []model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "11:00", list[0].StartTime.String())

	w, _ = f.do(t, f.token, http.MethodGet, "/api/v1/appointments?status=archived", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCheckAvailability(t *testing.T) {
	f := newAPI(t)
	f.create(t, "10:00", "11:00", 60)

	path := fmt.Sprintf("/api/v1/appointments/availability?staff_id=%s&date=2030-03-04&duration_minutes=60", f.staff)
	w, env := f.do(t, f.token, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var availability model.Availability
	require.NoError(t, json.Unmarshal(env.Data, &availability))
	var starts []string
	for _, s := range availability.AvailableSlots {
		starts = append(starts, s.StartTime.String())
	}
	assert.Equal(t, []string{"09:00", "11:00", "11:30", "12:00", "12:30", "13:00", "13:30", "14:00", "14:30", "15:00", "15:30", "16:00"}, starts)

	w, _ = f.do(t, f.token, http.MethodGet, "/api/v1/appointments/availability?date=2030-03-04", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUpdateStatus(t *testing.T) {
	f := newAPI(t)
	apt := f.create(t, "09:00", "09:30", 30)
	path := "/api/v1/appointments/" + apt.ID.String() + "/status"

	w, env := f.do(t, f.token, http.MethodPatch, path, map[string]string{"status": "cancelled"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "cancellation_reason", env.Errors[0].Field)

	w, env = f.do(t, f.token, http.MethodPatch, path, map[string]string{"status": "cancelled", "cancellation_reason": "feeling better"})
	require.Equal(t, http.StatusOK, w.Code)
	var cancelled model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &cancelled))
	assert.Equal(t, scheduling.StatusCancelled, cancelled.Status)

	w, env = f.do(t, f.token, http.MethodPatch, path, map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "invalid_state_transition", env.Code)
}

func TestUpdateAndReschedule(t *testing.T) {
	f := newAPI(t)
	apt := f.create(t, "09:00", "09:30", 30)
	f.create(t, "13:00", "14:00", 60)

	w, env := f.do(t, f.token, http.MethodPatch, "/api/v1/appointments/"+apt.ID.String(), map[string]string{"notes": "fasting"})
	require.Equal(t, http.StatusOK, w.Code)
	var updated model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	require.NotNil(t, updated.Notes)
	assert.Equal(t, "fasting", *updated.Notes)

	path := "/api/v1/appointments/" + apt.ID.String() + "/reschedule"
	w, env = f.do(t, f.token, http.MethodPost, path, map[string]string{
		"appointment_date": "2030-03-04", "start_time": "13:30", "end_time": "14:00",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "scheduling_conflict", env.Code)

	w, env = f.do(t, f.token, http.MethodPost, path, map[string]string{
		"appointment_date": "2030-03-05", "start_time": "13:30", "end_time": "14:00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var replacement model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &replacement))
	require.NotNil(t, replacement.RescheduledFrom)
	assert.Equal(t, apt.ID, *replacement.RescheduledFrom)
	assert.Equal(t, "2030-03-05", replacement.Date.String())
}

func TestDeleteAppointment(t *testing.T) {
	f := newAPI(t)
	apt := f.create(t, "09:00", "09:30", 30)
	path := "/api/v1/appointments/" + apt.ID.String()

	nurse := f.mint(t, f.business, model.RoleNurse)
	w, _ := f.do(t, nurse, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := f.do(t, f.token, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "appointment deleted", env.Message)

	w, _ = f.do(t, f.token, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
