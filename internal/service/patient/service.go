package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository"
	"github.com/jwalitptl/carebridge/internal/service/access"
	"github.com/jwalitptl/carebridge/internal/service/audit"
	apperrors "github.com/jwalitptl/carebridge/pkg/errors"
)

type PatientService interface {
	EnsurePatientRecord(ctx context.Context, actor model.Actor) (*model.Patient, error)
	GetPatient(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Patient, error)
	AdmitPatient(ctx context.Context, actor model.Actor, in AdmitInput) (*model.Patient, error)
	ListAdmittedPatients(ctx context.Context, actor model.Actor) ([]*model.PatientProfile, error)
}

type Service struct {
	repo    repository.PatientRepository
	users   repository.UserRepository
	auditor *audit.Service
}

func NewService(repo repository.PatientRepository, users repository.UserRepository, auditor *audit.Service) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		auditor: auditor,
	}
}

// AdmitInput names the patient either by patient id or by the email of the
// patient's account.
type AdmitInput struct {
	PatientID *uuid.UUID
	Email     string
}

// EnsurePatientRecord returns the caller's patient row, creating it on
// first use.
func (s *Service) EnsurePatientRecord(ctx context.Context, actor model.Actor) (*model.Patient, error) {
	pa, ok := actor.(model.PatientActor)
	if !ok {
		return nil, apperrors.Forbidden("Only patients have a patient record")
	}
	p, err := s.repo.EnsureForUser(ctx, pa.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure patient record: %w", err)
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Patient, error) {
	p, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessPatientData(actor, p) {
		return nil, apperrors.Forbidden("You do not have access to this patient")
	}
	return p, nil
}

// Load fetches a patient without an access check. Callers apply their own.
func (s *Service) Load(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	p, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("patient", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return p, nil
}

// AdmitPatient records an admission outside of a transfer. It succeeds only
// for unadmitted patients, or patients already at the calling hospital.
func (s *Service) AdmitPatient(ctx context.Context, actor model.Actor, in AdmitInput) (*model.Patient, error) {
	hospital, ok := actor.(model.HospitalActor)
	if !ok {
		return nil, apperrors.Forbidden("Only hospitals can admit patients")
	}

	target, err := s.resolve(ctx, in)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.Admit(ctx, target.ID, hospital.ID)
	if errors.Is(err, repository.ErrConditionFailed) {
		return nil, apperrors.InvalidState("Patient is already admitted at another hospital. Use a transfer instead.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to admit patient: %w", err)
	}

	s.auditor.Log(ctx, hospital.ID, model.AuditActionAdmit, model.AuditEntityPatient, p.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"current_hospital_id": hospital.ID},
	})
	return p, nil
}

func (s *Service) resolve(ctx context.Context, in AdmitInput) (*model.Patient, error) {
	if in.PatientID != nil {
		return s.Load(ctx, *in.PatientID)
	}
	if in.Email == "" {
		return nil, apperrors.BadRequest("patient_id or email is required", nil)
	}

	u, err := s.users.GetByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("patient", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if u.Role != model.RolePatient {
		return nil, apperrors.NotFound("patient", nil)
	}

	p, err := s.repo.EnsureForUser(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure patient record: %w", err)
	}
	return p, nil
}

// ListAdmittedPatients returns the patients currently admitted at the
// caller's hospital.
func (s *Service) ListAdmittedPatients(ctx context.Context, actor model.Actor) ([]*model.PatientProfile, error) {
	var hospitalID uuid.UUID
	switch a := actor.(type) {
	case model.HospitalActor:
		hospitalID = a.ID
	case model.DoctorActor:
		hospitalID = a.HospitalID
	default:
		return nil, apperrors.Forbidden("Only hospitals and doctors can list admitted patients")
	}

	patients, err := s.repo.ListByHospital(ctx, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	if patients == nil {
		patients = []*model.PatientProfile{}
	}
	return patients, nil
}
