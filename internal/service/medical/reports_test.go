package medical

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository/memory"
	"github.com/jwalitptl/carebridge/internal/service/audit"
	apperrors "github.com/jwalitptl/carebridge/pkg/errors"
	"github.com/jwalitptl/carebridge/pkg/logger"
	"github.com/jwalitptl/carebridge/pkg/metrics"
)

type mockObjectStore struct {
	mock.Mock
}

func (m *mockObjectStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	return m.Called(ctx, key, body, size, contentType).Error(0)
}

func (m *mockObjectStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockObjectStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

type reportFixture struct {
	store   *memory.Store
	objects *mockObjectStore
	svc     *ReportService
	patient model.Patient
	hosp    uuid.UUID
	now     time.Time
}

func newReportFixture() *reportFixture {
	store := memory.NewStore()
	objects := &mockObjectStore{}
	log := logger.Nop()
	svc := NewReportService(store.MedicalReports(), store.Patients(), objects, audit.NewService(store.Audit(), log), log, metrics.New("test"))

	f := &reportFixture{store: store, objects: objects, svc: svc, hosp: uuid.New()}
	f.now = time.UnixMilli(1700000000123).UTC()
	svc.now = func() time.Time { return f.now }
	f.patient = model.Patient{ID: uuid.New(), UserID: uuid.New(), CurrentHospitalID: &f.hosp}
	store.AddPatient(f.patient)
	return f
}

func TestReportObjectKey(t *testing.T) {
	id := uuid.MustParse("6f1c1f5e-0000-4000-8000-000000000001")
	at := time.UnixMilli(1700000000123)

	assert.Equal(t,
		"6f1c1f5e-0000-4000-8000-000000000001/1700000000123_Blood_test__March_.pdf",
		ReportObjectKey(id, at, "Blood test (March)", "scan.final.pdf"))
	assert.Equal(t,
		"6f1c1f5e-0000-4000-8000-000000000001/1700000000123_x-ray_1.bin",
		ReportObjectKey(id, at, "x-ray_1", "README"))

	for _, name := range []string{"x.pdf/../y", `scan.pdf\..\evil`, "trailing.", "a.p d/f"} {
		key := ReportObjectKey(id, at, "scan", name)
		assert.Equal(t, 1, strings.Count(key, "/"), name)
		assert.NotContains(t, key, "..", name)
		assert.NotContains(t, key, `\`, name)
	}
	assert.Equal(t,
		"6f1c1f5e-0000-4000-8000-000000000001/1700000000123_scan.bin",
		ReportObjectKey(id, at, "scan", "x.pdf/../y"))
}

func TestCleanObjectPath(t *testing.T) {
	tests := map[string]string{
		"abc/1_x.pdf":                  "abc/1_x.pdf",
		"  /abc/1_x.pdf ":              "abc/1_x.pdf",
		"medical-reports/abc/1_x.pdf":  "abc/1_x.pdf",
		"/medical-reports/abc/1_x.pdf": "abc/1_x.pdf",
		"other-bucket/abc/1_x.pdf":     "other-bucket/abc/1_x.pdf",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanObjectPath(in), in)
	}
}

func TestUploadAndSign(t *testing.T) {
	f := newReportFixture()
	ctx := context.Background()
	doctor := model.DoctorActor{ID: uuid.New(), HospitalID: f.hosp}
	wantKey := ReportObjectKey(f.patient.ID, f.now, "CT scan", "ct.png")

	f.objects.On("Put", mock.Anything, wantKey, mock.Anything, int64(4), "image/png").Return(nil).Once()

	rep, err := f.svc.Upload(ctx, doctor, f.patient.ID, UploadInput{
		ReportName:  "CT scan",
		FileName:    "ct.png",
		ContentType: "image/png",
		Size:        4,
		Body:        strings.NewReader("data"),
	})
	require.NoError(t, err)
	assert.Equal(t, wantKey, rep.FilePath)
	assert.Equal(t, doctor.ID, rep.UploadedBy)

	f.objects.On("PresignGet", mock.Anything, wantKey, SignedURLTTL).Return("https://signed.example/ct", nil).Once()

	signed, err := f.svc.SignedURL(ctx, model.PatientActor{ID: f.patient.UserID}, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/ct", signed.URL)
	assert.Equal(t, f.now.Add(time.Hour), signed.ExpiresAt)

	// After a transfer away the old hospital can no longer mint URLs.
	other := uuid.New()
	require.NoError(t, f.store.Patients().SetCurrentHospital(ctx, f.patient.ID, other))
	_, err = f.svc.SignedURL(ctx, doctor, rep.ID)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	var signs int
	for _, l := range f.store.AuditLogs() {
		if l.Action == model.AuditActionSignURL {
			signs++
		}
	}
	assert.Equal(t, 1, signs)
	f.objects.AssertExpectations(t)
}

func TestUploadStorageFailure(t *testing.T) {
	f := newReportFixture()
	f.objects.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("bucket unavailable"))

	_, err := f.svc.Upload(context.Background(), model.PatientActor{ID: f.patient.UserID}, f.patient.ID, UploadInput{
		ReportName: "Lab",
		FileName:   "lab.pdf",
		Body:       strings.NewReader("x"),
		Size:       1,
	})
	assert.Equal(t, apperrors.ErrStorage, apperrors.CodeOf(err))

	list, err := f.svc.List(context.Background(), model.PatientActor{ID: f.patient.UserID}, f.patient.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUploadRejectsOutsiders(t *testing.T) {
	f := newReportFixture()

	_, err := f.svc.Upload(context.Background(), model.HospitalActor{ID: uuid.New()}, f.patient.ID, UploadInput{
		ReportName: "Lab",
		FileName:   "lab.pdf",
		Body:       strings.NewReader("x"),
	})
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
	f.objects.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSignFailureIsStorageError(t *testing.T) {
	f := newReportFixture()
	rep := &model.MedicalReport{ID: uuid.New(), PatientID: f.patient.ID, ReportName: "Lab", FilePath: "/medical-reports/p/1_Lab.pdf"}
	require.NoError(t, f.store.MedicalReports().Create(context.Background(), rep))

	f.objects.On("PresignGet", mock.Anything, "p/1_Lab.pdf", SignedURLTTL).Return("", errors.New("expired credentials"))

	_, err := f.svc.SignedURL(context.Background(), model.HospitalActor{ID: f.hosp}, rep.ID)
	assert.Equal(t, apperrors.ErrStorage, apperrors.CodeOf(err))
}

func TestDeleteReport(t *testing.T) {
	f := newReportFixture()
	ctx := context.Background()
	rep := &model.MedicalReport{ID: uuid.New(), PatientID: f.patient.ID, ReportName: "Lab", FilePath: "p/1_Lab.pdf"}
	require.NoError(t, f.store.MedicalReports().Create(ctx, rep))

	err := f.svc.Delete(ctx, model.HospitalActor{ID: f.hosp}, rep.ID)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	f.objects.On("Delete", mock.Anything, "p/1_Lab.pdf").Return(nil).Once()
	require.NoError(t, f.svc.Delete(ctx, model.PatientActor{ID: f.patient.UserID}, rep.ID))

	_, err = f.svc.SignedURL(ctx, model.PatientActor{ID: f.patient.UserID}, rep.ID)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
	f.objects.AssertExpectations(t)
}
