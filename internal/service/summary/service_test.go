package summary

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository/memory"
	apperrors "github.com/jwalitptl/carebridge/pkg/errors"
	"github.com/jwalitptl/carebridge/pkg/genai"
	"github.com/jwalitptl/carebridge/pkg/logger"
	"github.com/jwalitptl/carebridge/pkg/metrics"
)

type mockGenerator struct{ mock.Mock }

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, []genai.Attempt, error) {
	args := m.Called(ctx, prompt)
	attempts, _ := args.Get(1).([]genai.Attempt)
	return args.String(0), attempts, args.Error(2)
}

func ip(v int) *int         { return &v }
func fp(v float64) *float64 { return &v }

func TestComputeStats(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []*model.HealthRecord{
		{RecordedAt: base.Add(2 * time.Hour), BloodPressureSystolic: ip(130), BloodPressureDiastolic: ip(85), HeartRate: ip(71), SugarLevel: fp(101.25)},
		{RecordedAt: base, BloodPressureSystolic: ip(120), BloodPressureDiastolic: ip(80), HeartRate: ip(70), SugarLevel: fp(98)},
		{RecordedAt: base.Add(time.Hour), BloodPressureSystolic: ip(140), HeartRate: ip(90)},
	}

	v := BuildVitals(records)
	require.Len(t, v.Timestamps, 3)
	assert.Equal(t, "2024-01-01T00:00:00Z", v.Timestamps[0])
	assert.Len(t, v.BloodPressure, 2, "systolic without diastolic is skipped")
	assert.Equal(t, 120, v.BloodPressure[0].Systolic)

	s := ComputeStats(v)
	require.NotNil(t, s.BloodPressure)
	assert.Equal(t, BloodPressureStats{AvgSystolic: 125, AvgDiastolic: 83, MinSystolic: 120, MaxSystolic: 130, Count: 2}, *s.BloodPressure)
	assert.Equal(t, IntStats{Average: 77, Min: 70, Max: 90, Count: 3}, *s.HeartRate)
	assert.Equal(t, 99.6, s.SugarLevel.Average)
	assert.Equal(t, 98.0, s.SugarLevel.Min)
	assert.Equal(t, 101.25, s.SugarLevel.Max)
}

func TestBuildPromptIsNonDiagnostic(t *testing.T) {
	v := &Vitals{HeartRate: []Reading[int]{{Value: 72, Date: "2024-01-01T00:00:00Z"}}, Timestamps: []string{"2024-01-01T00:00:00Z"}}
	prompt, err := BuildPrompt(v, ComputeStats(v))
	require.NoError(t, err)
	assert.Contains(t, prompt, "Do NOT provide medical diagnoses")
	assert.Contains(t, prompt, `"heartRate"`)
	assert.Contains(t, prompt, `"bloodPressure": null`)
}

type summaryFixture struct {
	store   *memory.Store
	gen     *mockGenerator
	svc     *Service
	patient model.Patient
	hosp    uuid.UUID
}

func newSummaryFixture() *summaryFixture {
	store := memory.NewStore()
	gen := &mockGenerator{}
	f := &summaryFixture{store: store, gen: gen, hosp: uuid.New()}
	f.svc = NewService(store.HealthRecords(), store.Patients(), gen, logger.Nop(), metrics.New("test"))
	f.patient = model.Patient{ID: uuid.New(), UserID: uuid.New(), CurrentHospitalID: &f.hosp}
	store.AddPatient(f.patient)
	return f
}

func TestGenerateSummary(t *testing.T) {
	f := newSummaryFixture()
	ctx := context.Background()
	require.NoError(t, f.store.HealthRecords().Create(ctx, &model.HealthRecord{PatientID: f.patient.ID, HeartRate: ip(72), RecordedAt: time.Now()}))

	f.gen.On("Generate", ctx, mock.MatchedBy(func(p string) bool { return len(p) > 0 })).
		Return("Your heart rate is steady.", []genai.Attempt{{Model: "gemini-2.5-flash"}}, nil)

	s, err := f.svc.Generate(ctx, model.PatientActor{ID: f.patient.UserID}, f.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, "Your heart rate is steady.", s.Summary)
	assert.Equal(t, "gemini-2.5-flash", s.Model)
	assert.Equal(t, 1, s.Stats.HeartRate.Count)
}

func TestGenerateSummaryRequiresRecords(t *testing.T) {
	f := newSummaryFixture()
	_, err := f.svc.Generate(context.Background(), model.HospitalActor{ID: f.hosp}, f.patient.ID)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
	f.gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestGenerateSummaryAccess(t *testing.T) {
	f := newSummaryFixture()
	_, err := f.svc.Generate(context.Background(), model.HospitalActor{ID: uuid.New()}, f.patient.ID)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
}

func TestGenerationErrorMapping(t *testing.T) {
	tests := []struct {
		kind genai.Kind
		want apperrors.ErrorCode
	}{
		{genai.KindAPIKeyMissing, apperrors.ErrUnavailable},
		{genai.KindInvalidAPIKey, apperrors.ErrUnavailable},
		{genai.KindForbidden, apperrors.ErrForbidden},
		{genai.KindModelNotFound, apperrors.ErrUnavailable},
		{genai.KindRateLimit, apperrors.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			f := newSummaryFixture()
			ctx := context.Background()
			require.NoError(t, f.store.HealthRecords().Create(ctx, &model.HealthRecord{PatientID: f.patient.ID, SugarLevel: fp(110), RecordedAt: time.Now()}))
			genErr := &genai.Error{Kind: tt.kind, Message: "x"}
			f.gen.On("Generate", mock.Anything, mock.Anything).Return("", []genai.Attempt{{Model: "gemini-pro", Err: genErr}}, genErr)

			_, err := f.svc.Generate(ctx, model.PatientActor{ID: f.patient.UserID}, f.patient.ID)
			assert.Equal(t, tt.want, apperrors.CodeOf(err))
		})
	}
}
