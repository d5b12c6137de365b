package medical

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository"
	"github.com/jwalitptl/carebridge/internal/service/access"
	"github.com/jwalitptl/carebridge/internal/service/audit"
	apperrors "github.com/jwalitptl/carebridge/pkg/errors"
)

type Vitals struct {
	BloodPressureSystolic  *int
	BloodPressureDiastolic *int
	HeartRate              *int
	SugarLevel             *float64
	RecordedAt             *time.Time
}

// RecordService manages the vitals time series of a patient.
type RecordService struct {
	repo     repository.HealthRecordRepository
	patients repository.PatientRepository
	auditor  *audit.Service
}

func NewRecordService(repo repository.HealthRecordRepository, patients repository.PatientRepository, auditor *audit.Service) *RecordService {
	return &RecordService{
		repo:     repo,
		patients: patients,
		auditor:  auditor,
	}
}

// Create stores a vitals reading. Only a doctor at the patient's admitting
// hospital may record one.
func (s *RecordService) Create(ctx context.Context, actor model.Actor, patientID uuid.UUID, v Vitals) (*model.HealthRecord, error) {
	doctor, ok := actor.(model.DoctorActor)
	if !ok {
		return nil, apperrors.Forbidden("Only doctors can create health records")
	}

	patient, err := loadPatient(ctx, s.patients, patientID)
	if err != nil {
		return nil, err
	}
	if !patient.IsAdmittedAt(doctor.HospitalID) {
		return nil, apperrors.Forbidden("Patient is not admitted at your hospital")
	}

	record := &model.HealthRecord{
		ID:                     uuid.New(),
		PatientID:              patient.ID,
		BloodPressureSystolic:  v.BloodPressureSystolic,
		BloodPressureDiastolic: v.BloodPressureDiastolic,
		HeartRate:              v.HeartRate,
		SugarLevel:             v.SugarLevel,
		RecordedAt:             time.Now().UTC(),
	}
	if v.RecordedAt != nil {
		record.RecordedAt = v.RecordedAt.UTC()
	}
	if !record.HasVitals() {
		return nil, apperrors.BadRequest("at least one vital sign is required", nil)
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create health record: %w", err)
	}

	s.auditor.Log(ctx, doctor.ID, model.AuditActionCreate, model.AuditEntityHealthRecord, record.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"patient_id": patient.ID},
	})
	return record, nil
}

func (s *RecordService) List(ctx context.Context, actor model.Actor, patientID uuid.UUID) ([]*model.HealthRecord, error) {
	patient, err := loadPatient(ctx, s.patients, patientID)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessPatientData(actor, patient) {
		return nil, apperrors.Forbidden("You do not have access to this patient's health records")
	}

	records, err := s.repo.ListByPatient(ctx, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list health records: %w", err)
	}
	if records == nil {
		records = []*model.HealthRecord{}
	}
	return records, nil
}

func (s *RecordService) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.HealthRecord, error) {
	record, patient, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessPatientData(actor, patient) {
		return nil, apperrors.Forbidden("You do not have access to this health record")
	}
	return record, nil
}

func (s *RecordService) Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	record, patient, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !access.CanRemovePatientData(actor, patient) {
		return apperrors.Forbidden("You cannot delete this health record")
	}

	if err := s.repo.Delete(ctx, record.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("health record", nil)
		}
		return fmt.Errorf("failed to delete health record: %w", err)
	}

	s.auditor.Log(ctx, actor.ActorID(), model.AuditActionDelete, model.AuditEntityHealthRecord, record.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"patient_id": patient.ID},
	})
	return nil
}

func (s *RecordService) load(ctx context.Context, id uuid.UUID) (*model.HealthRecord, *model.Patient, error) {
	record, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, apperrors.NotFound("health record", nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get health record: %w", err)
	}
	patient, err := loadPatient(ctx, s.patients, record.PatientID)
	if err != nil {
		return nil, nil, err
	}
	return record, patient, nil
}

func loadPatient(ctx context.Context, repo repository.PatientRepository, id uuid.UUID) (*model.Patient, error) {
	p, err := repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("patient", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return p, nil
}
