package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/carebridge/internal/handler/health"
	medicalhandler "github.com/jwalitptl/carebridge/internal/handler/medical"
	messagehandler "github.com/jwalitptl/carebridge/internal/handler/message"
	patienthandler "github.com/jwalitptl/carebridge/internal/handler/patient"
	transferhandler "github.com/jwalitptl/carebridge/internal/handler/transfer"
	userhandler "github.com/jwalitptl/carebridge/internal/handler/user"
	"github.com/jwalitptl/carebridge/internal/middleware"
	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository/memory"
	"github.com/jwalitptl/carebridge/internal/service/audit"
	"github.com/jwalitptl/carebridge/internal/service/event"
	"github.com/jwalitptl/carebridge/internal/service/identity"
	"github.com/jwalitptl/carebridge/internal/service/medical"
	"github.com/jwalitptl/carebridge/internal/service/message"
	"github.com/jwalitptl/carebridge/internal/service/patient"
	"github.com/jwalitptl/carebridge/internal/service/summary"
	"github.com/jwalitptl/carebridge/internal/service/transfer"
	"github.com/jwalitptl/carebridge/pkg/auth"
	"github.com/jwalitptl/carebridge/pkg/genai"
	"github.com/jwalitptl/carebridge/pkg/logger"
	"github.com/jwalitptl/carebridge/pkg/messaging"
	"github.com/jwalitptl/carebridge/pkg/metrics"
	"github.com/jwalitptl/carebridge/pkg/realtime"
)

type Response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Field string `json:"field"`
	} `json:"errors"`
	HTTPStatus int `json:"-"`
}

func (r Response) IsSuccess() bool {
	return r.Status == "success"
}

func (r Response) GetString(t *testing.T, key string) string {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(r.Data, &m))
	s, _ := m[key].(string)
	return s
}

type nopObjects struct{}

func (nopObjects) Put(context.Context, string, io.Reader, int64, string) error { return nil }
func (nopObjects) Delete(context.Context, string) error                        { return nil }
func (nopObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/" + key, nil
}

type cannedGenerator struct{}

func (cannedGenerator) Generate(context.Context, string) (string, []genai.Attempt, error) {
	return "Vitals look stable.", []genai.Attempt{{Model: "gemini-2.5-flash"}}, nil
}

type testApp struct {
	engine  *gin.Engine
	store   *memory.Store
	tokens  map[string]string
	hospA   uuid.UUID
	hospB   uuid.UUID
	patient uuid.UUID
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	store := memory.NewStore()
	log := logger.Nop()
	m := metrics.New("test")

	jwtSvc, err := auth.NewHMACService("test-secret", "")
	require.NoError(t, err)

	app := &testApp{store: store, tokens: map[string]string{}, hospA: uuid.New(), hospB: uuid.New(), patient: uuid.New()}
	users := map[string]model.User{
		"hospA":   {ID: app.hospA, Role: model.RoleHospital, Email: "a@hospital.test"},
		"hospB":   {ID: app.hospB, Role: model.RoleHospital, Email: "b@hospital.test"},
		"doctorA": {ID: uuid.New(), Role: model.RoleDoctor, HospitalID: &app.hospA, Email: "doc.a@hospital.test"},
		"doctorB": {ID: uuid.New(), Role: model.RoleDoctor, HospitalID: &app.hospB, Email: "doc.b@hospital.test"},
		"patient": {ID: app.patient, Role: model.RolePatient, Email: "jane@example.com"},
	}
	for name, u := range users {
		store.AddUser(u)
		token, err := jwtSvc.Sign(u.ID, time.Hour)
		require.NoError(t, err)
		app.tokens[name] = token
	}

	auditor := audit.NewService(store.Audit(), log)
	transfers := transfer.NewService(store.Transfers(), store.Patients(), store.Users(), event.NewService(store.Outbox()), auditor, log, m)
	hub := realtime.NewHub(&log.ZL, nil)

	r := NewRouter(
		middleware.NewAuthMiddleware(identity.NewService(jwtSvc, store.Users(), time.Minute)),
		health.NewHandler(nil),
		[]Handler{
			userhandler.NewHandler(identity.NewService(jwtSvc, store.Users(), time.Minute)),
			patienthandler.NewHandler(patient.NewService(store.Patients(), store.Users(), auditor)),
			transferhandler.NewHandler(transfers),
			messagehandler.NewHandler(message.NewService(store.Messages(), transfers, messaging.NewLocalBroker(), log, m), transfers, hub),
			medicalhandler.NewHandler(
				medical.NewRecordService(store.HealthRecords(), store.Patients(), auditor),
				medical.NewReportService(store.MedicalReports(), store.Patients(), nopObjects{}, auditor, log, m),
				summary.NewService(store.HealthRecords(), store.Patients(), cannedGenerator{}, log, m),
			),
		},
		m,
		RouterConfig{
			Mode:      gin.TestMode,
			RateLimit: middleware.RateLimiterConfig{Rate: rate.Inf},
			CORS:      middleware.DefaultCORSConfig(nil),
			BodyLimit: middleware.BodyLimitConfig{MaxBodySize: 1 << 20, MaxUploadSize: 1 << 20},
		},
	)
	r.Setup()
	app.engine = r.Engine()
	return app
}

func (a *testApp) makeRequest(t *testing.T, method, path string, body interface{}, who string) Response {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, "/api/v1"+path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if who != "" {
		req.Header.Set("Authorization", "Bearer "+a.tokens[who])
	}

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	resp := Response{HTTPStatus: w.Code}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return resp
}

func TestHealthIsPublic(t *testing.T) {
	app := newTestApp(t)
	w := httptest.NewRecorder()
	app.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	resp := app.makeRequest(t, http.MethodGet, "/transfers", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.HTTPStatus)
	assert.Equal(t, "UNAUTHORIZED", resp.Code)
}

func TestMe(t *testing.T) {
	app := newTestApp(t)
	resp := app.makeRequest(t, http.MethodGet, "/me", nil, "doctorB")
	require.True(t, resp.IsSuccess())
	assert.Equal(t, "doctor", resp.GetString(t, "role"))
	assert.Equal(t, app.hospB.String(), resp.GetString(t, "hospital_id"))
}

func TestTransferFlow(t *testing.T) {
	app := newTestApp(t)

	admit := app.makeRequest(t, http.MethodPost, "/patients/admit", map[string]interface{}{"email": "jane@example.com"}, "hospA")
	require.True(t, admit.IsSuccess(), admit.Message)
	patientID := admit.GetString(t, "id")

	rec := app.makeRequest(t, http.MethodPost, "/patients/"+patientID+"/records", map[string]interface{}{"heart_rate": 72}, "doctorA")
	require.Equal(t, http.StatusCreated, rec.HTTPStatus, rec.Message)

	bad := app.makeRequest(t, http.MethodPost, "/transfers", map[string]interface{}{
		"patient_id":     patientID,
		"to_hospital_id": app.hospB.String(),
		"transfer_type":  "urgent",
	}, "hospA")
	require.Equal(t, http.StatusBadRequest, bad.HTTPStatus)
	require.Len(t, bad.Errors, 1)
	assert.Equal(t, "transfer_type", bad.Errors[0].Field)

	created := app.makeRequest(t, http.MethodPost, "/transfers", map[string]interface{}{
		"patient_id":     patientID,
		"to_hospital_id": app.hospB.String(),
		"transfer_type":  "emergency",
	}, "hospA")
	require.Equal(t, http.StatusCreated, created.HTTPStatus, created.Message)
	transferID := created.GetString(t, "id")
	assert.Equal(t, "requested", created.GetString(t, "status"))

	dup := app.makeRequest(t, http.MethodPost, "/transfers", map[string]interface{}{
		"patient_id":     patientID,
		"to_hospital_id": app.hospB.String(),
		"transfer_type":  "non-emergency",
	}, "hospA")
	assert.Equal(t, http.StatusConflict, dup.HTTPStatus)

	view := app.makeRequest(t, http.MethodGet, "/transfers/"+transferID, nil, "patient")
	assert.True(t, view.IsSuccess())

	denied := app.makeRequest(t, http.MethodPost, "/transfers/"+transferID+"/accept", nil, "hospA")
	assert.Equal(t, http.StatusForbidden, denied.HTTPStatus)

	accepted := app.makeRequest(t, http.MethodPost, "/transfers/"+transferID+"/accept", nil, "hospB")
	require.True(t, accepted.IsSuccess(), accepted.Message)
	var result model.AcceptResult
	require.NoError(t, json.Unmarshal(accepted.Data, &result))
	assert.True(t, result.Admission.Applied)
	assert.Equal(t, model.TransferStatusAccepted, result.Transfer.Status)

	moved := app.makeRequest(t, http.MethodGet, "/patients/"+patientID+"/records", nil, "doctorA")
	assert.Equal(t, http.StatusForbidden, moved.HTTPStatus)
	records := app.makeRequest(t, http.MethodGet, "/patients/"+patientID+"/records", nil, "doctorB")
	assert.True(t, records.IsSuccess())

	posted := app.makeRequest(t, http.MethodPost, "/transfers/"+transferID+"/messages", map[string]interface{}{"message": "Bed 4 is ready"}, "hospB")
	require.Equal(t, http.StatusCreated, posted.HTTPStatus, posted.Message)
	msgs := app.makeRequest(t, http.MethodGet, "/transfers/"+transferID+"/messages", nil, "hospA")
	require.True(t, msgs.IsSuccess())
	assert.Contains(t, string(msgs.Data), "Bed 4 is ready")

	completed := app.makeRequest(t, http.MethodPost, "/transfers/"+transferID+"/complete", nil, "doctorB")
	require.True(t, completed.IsSuccess(), completed.Message)
	assert.Equal(t, "completed", completed.GetString(t, "status"))

	cancel := app.makeRequest(t, http.MethodPost, "/transfers/"+transferID+"/cancel", nil, "hospA")
	assert.Equal(t, http.StatusConflict, cancel.HTTPStatus)
	assert.Equal(t, "INVALID_STATE", cancel.Code)
	assert.Contains(t, cancel.Message, "completed")

	history := app.makeRequest(t, http.MethodGet, "/patients/"+patientID+"/transfers", nil, "patient")
	require.True(t, history.IsSuccess())
	var list []model.Transfer
	require.NoError(t, json.Unmarshal(history.Data, &list))
	assert.Len(t, list, 1)

	sum := app.makeRequest(t, http.MethodGet, "/patients/"+patientID+"/summary", nil, "patient")
	require.True(t, sum.IsSuccess(), sum.Message)
	assert.Equal(t, "Vitals look stable.", sum.GetString(t, "summary"))

	var types []string
	for _, e := range app.store.OutboxEvents() {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{model.EventTransferRequested, model.EventTransferAccepted, model.EventTransferCompleted}, types)
}

func TestInvalidID(t *testing.T) {
	app := newTestApp(t)
	resp := app.makeRequest(t, http.MethodGet, "/transfers/not-a-uuid", nil, "hospA")
	assert.Equal(t, http.StatusBadRequest, resp.HTTPStatus)
}
