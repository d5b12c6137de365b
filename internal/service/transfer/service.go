package transfer

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
	"github.com/jwalitptl/carebridge/internal/service/event"
	apperrors "github.com/jwalitptl/carebridge/pkg/errors"
	"github.com/jwalitptl/carebridge/pkg/logger"
	"github.com/jwalitptl/carebridge/pkg/metrics"
)

type Service struct {
	transfers repository.TransferRepository
	patients  repository.PatientRepository
	users     repository.UserRepository
	events    *event.Service
	auditor   *audit.Service
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(
	transfers repository.TransferRepository,
	patients repository.PatientRepository,
	users repository.UserRepository,
	events *event.Service,
	auditor *audit.Service,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		transfers: transfers,
		patients:  patients,
		users:     users,
		events:    events,
		auditor:   auditor,
		logger:    logger,
		metrics:   metrics,
	}
}

type RequestInput struct {
	PatientID    uuid.UUID
	ToHospitalID uuid.UUID
	Type         model.TransferType
	Reason       *string
}

// Request opens a transfer of a patient admitted at the calling hospital.
func (s *Service) Request(ctx context.Context, actor model.Actor, in RequestInput) (t *model.Transfer, err error) {
	defer func() { s.observe("request", err) }()

	hospital, ok := actor.(model.HospitalActor)
	if !ok {
		return nil, apperrors.Forbidden("Only hospitals can request transfers")
	}
	if !in.Type.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid transfer type: %q", in.Type), nil)
	}

	patient, err := s.patients.Get(ctx, in.PatientID)
	if err != nil {
		return nil, notFound("patient", err)
	}

	dest, err := s.users.Get(ctx, in.ToHospitalID)
	if err != nil {
		return nil, notFound("destination hospital", err)
	}
	if dest.Role != model.RoleHospital {
		return nil, apperrors.NotFound("destination hospital", nil)
	}
	if dest.ID == hospital.ID {
		return nil, apperrors.InvalidState("Cannot transfer a patient to the hospital that is sending them")
	}

	// Any outstanding transfer from this hospital blocks a new one, whatever
	// its destination. Checked before admission so a request repeated after
	// handover reports the open transfer rather than the moved patient.
	active, err := s.transfers.HasActiveFrom(ctx, patient.ID, hospital.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing transfers: %w", err)
	}
	if active {
		return nil, apperrors.Conflict("An active transfer already exists for this patient from your hospital")
	}

	if !patient.IsAdmittedAt(hospital.ID) {
		return nil, apperrors.InvalidState("Patient is not currently admitted at your hospital")
	}

	from := hospital.ID
	t = &model.Transfer{
		ID:             uuid.New(),
		PatientID:      patient.ID,
		FromHospitalID: &from,
		ToHospitalID:   dest.ID,
		TransferType:   in.Type,
		Status:         model.TransferStatusRequested,
		Reason:         in.Reason,
		RequestedAt:    time.Now().UTC(),
	}
	if err := s.transfers.Create(ctx, t); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("An active transfer already exists for this patient from your hospital")
		}
		return nil, fmt.Errorf("failed to create transfer: %w", err)
	}

	s.record(ctx, hospital.ID, model.EventTransferRequested, model.AuditActionRequest, t)
	return t, nil
}

// Accept moves a requested transfer to accepted and then hands the
// patient's admission to the receiving hospital. The second step is best
// effort: its failure is reported in the result and queued for
// reconciliation, never returned as an error.
func (s *Service) Accept(ctx context.Context, actor model.Actor, id uuid.UUID) (res *model.AcceptResult, err error) {
	defer func() { s.observe("accept", err) }()

	hospital, ok := actor.(model.HospitalActor)
	if !ok {
		return nil, apperrors.Forbidden("Only hospitals can accept transfers")
	}

	t, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.ToHospitalID != hospital.ID {
		return nil, apperrors.Forbidden("Only the receiving hospital can accept this transfer")
	}
	if t.Status != model.TransferStatusRequested {
		return nil, stateError("accept", "accepted", t.Status, model.TransferStatusRequested)
	}

	t, err = s.transition(ctx, t, model.TransferStatusRequested, model.TransferStatusAccepted, "accept", "accepted")
	if err != nil {
		return nil, err
	}

	res = &model.AcceptResult{Transfer: t, Admission: s.admit(ctx, hospital.ID, t)}
	s.record(ctx, hospital.ID, model.EventTransferAccepted, model.AuditActionAccept, t)
	return res, nil
}

func (s *Service) admit(ctx context.Context, actorID uuid.UUID, t *model.Transfer) model.AdmissionResult {
	err := s.patients.SetCurrentHospital(ctx, t.PatientID, t.ToHospitalID)
	if err == nil {
		return model.AdmissionResult{Applied: true}
	}

	s.metrics.AdmissionFailures.Inc()
	s.logger.Warn("admission update failed after transfer acceptance",
		"transfer_id", t.ID.String(),
		"patient_id", t.PatientID.String(),
		"hospital_id", t.ToHospitalID.String(),
		"error", err.Error())

	s.auditor.Log(ctx, actorID, model.AuditActionAdmissionFailed, model.AuditEntityTransfer, t.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"patient_id": t.PatientID,
			"error":      err.Error(),
		},
	})
	if emitErr := s.events.Emit(ctx, model.EventAdmissionReconcile, model.AdmissionReconcile{
		TransferID: t.ID,
		Reason:     err.Error(),
	}); emitErr != nil {
		s.logger.Error(emitErr, "failed to queue admission reconciliation", "transfer_id", t.ID.String())
	}

	return model.AdmissionResult{Applied: false, Reason: err.Error()}
}

// Complete closes an accepted transfer. Either hospital, or a doctor
// employed by either hospital, may complete it.
func (s *Service) Complete(ctx context.Context, actor model.Actor, id uuid.UUID) (t *model.Transfer, err error) {
	defer func() { s.observe("complete", err) }()

	var side uuid.UUID
	switch a := actor.(type) {
	case model.HospitalActor:
		side = a.ID
	case model.DoctorActor:
		side = a.HospitalID
	default:
		return nil, apperrors.Forbidden("Only hospitals and doctors can complete transfers")
	}

	t, err = s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Involves(side) {
		return nil, apperrors.Forbidden("Only the hospitals involved in this transfer can complete it")
	}
	if t.Status != model.TransferStatusAccepted {
		return nil, stateError("complete", "completed", t.Status, model.TransferStatusAccepted)
	}

	t, err = s.transition(ctx, t, model.TransferStatusAccepted, model.TransferStatusCompleted, "complete", "completed")
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor.ActorID(), model.EventTransferCompleted, model.AuditActionComplete, t)
	return t, nil
}

// Cancel withdraws a transfer that has not been accepted yet. Only the
// sending hospital may cancel.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID) (t *model.Transfer, err error) {
	defer func() { s.observe("cancel", err) }()

	hospital, ok := actor.(model.HospitalActor)
	if !ok {
		return nil, apperrors.Forbidden("Only hospitals can cancel transfers")
	}

	t, err = s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.IsFrom(hospital.ID) {
		return nil, apperrors.Forbidden("Only the sending hospital can cancel this transfer")
	}
	if t.Status != model.TransferStatusRequested {
		return nil, stateError("cancel", "cancelled", t.Status, model.TransferStatusRequested)
	}

	t, err = s.transition(ctx, t, model.TransferStatusRequested, model.TransferStatusCancelled, "cancel", "cancelled")
	if err != nil {
		return nil, err
	}

	s.record(ctx, hospital.ID, model.EventTransferCancelled, model.AuditActionCancel, t)
	return t, nil
}

// Get returns a transfer the actor is allowed to see.
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Transfer, error) {
	t, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, actor, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Authorize checks transfer visibility without returning the transfer.
// The coordination channel uses it for every post and read.
func (s *Service) Authorize(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	_, err := s.Get(ctx, actor, id)
	return err
}

func (s *Service) authorizeView(ctx context.Context, actor model.Actor, t *model.Transfer) error {
	var patient *model.Patient
	if _, isPatient := actor.(model.PatientActor); isPatient {
		p, err := s.patients.Get(ctx, t.PatientID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to load patient: %w", err)
		}
		patient = p
	}
	if !access.CanViewTransfer(actor, t, patient) {
		return apperrors.Forbidden("You do not have access to this transfer")
	}
	return nil
}

// List returns the transfers visible to the actor.
func (s *Service) List(ctx context.Context, actor model.Actor) ([]*model.Transfer, error) {
	var (
		transfers []*model.Transfer
		err       error
	)
	switch a := actor.(type) {
	case model.PatientActor:
		patient, perr := s.patients.GetByUserID(ctx, a.ID)
		if errors.Is(perr, repository.ErrNotFound) {
			return []*model.Transfer{}, nil
		}
		if perr != nil {
			return nil, fmt.Errorf("failed to load patient: %w", perr)
		}
		transfers, err = s.transfers.ListByPatient(ctx, patient.ID)
	case model.HospitalActor:
		transfers, err = s.transfers.ListByHospital(ctx, a.ID)
	case model.DoctorActor:
		transfers, err = s.transfers.ListByHospital(ctx, a.HospitalID, model.TransferStatusAccepted, model.TransferStatusCompleted)
	case model.AdminActor:
		return nil, apperrors.Forbidden("Admins cannot list transfers")
	default:
		return nil, apperrors.Forbidden("Unknown caller")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	if transfers == nil {
		transfers = []*model.Transfer{}
	}
	return transfers, nil
}

// History returns every transfer of a patient ordered by request time. It is
// available to callers with access to the patient's data and to hospitals
// that took part in any of the transfers.
func (s *Service) History(ctx context.Context, actor model.Actor, patientID uuid.UUID) ([]*model.Transfer, error) {
	patient, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, notFound("patient", err)
	}

	transfers, err := s.transfers.ListByPatient(ctx, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}

	if access.CanAccessPatientData(actor, patient) {
		return transfers, nil
	}
	if hospital, ok := actor.(model.HospitalActor); ok {
		for _, t := range transfers {
			if t.Involves(hospital.ID) {
				return transfers, nil
			}
		}
	}
	return nil, apperrors.Forbidden("You do not have access to this patient's transfer history")
}

// ReconcileAdmission re-applies the admission step of an accepted transfer.
// It only acts when the transfer is still the patient's latest admitting
// transfer and the patient is not already at its destination.
func (s *Service) ReconcileAdmission(ctx context.Context, transferID uuid.UUID) (bool, error) {
	t, err := s.get(ctx, transferID)
	if err != nil {
		return false, err
	}
	if t.Status != model.TransferStatusAccepted && t.Status != model.TransferStatusCompleted {
		return false, nil
	}

	latest, err := s.transfers.LatestAdmitting(ctx, t.PatientID)
	if err != nil {
		return false, fmt.Errorf("failed to load latest transfer: %w", err)
	}
	if latest.ID != t.ID {
		return false, nil
	}

	patient, err := s.patients.Get(ctx, t.PatientID)
	if err != nil {
		return false, notFound("patient", err)
	}
	if patient.IsAdmittedAt(t.ToHospitalID) {
		return false, nil
	}

	err = s.patients.MoveAdmission(ctx, t.PatientID, patient.CurrentHospitalID, t.ToHospitalID)
	if errors.Is(err, repository.ErrConditionFailed) {
		s.logger.Info("admission changed during reconcile, skipping",
			"transfer_id", t.ID.String(),
			"patient_id", t.PatientID.String())
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to reconcile admission: %w", err)
	}

	s.logger.Info("admission reconciled",
		"transfer_id", t.ID.String(),
		"patient_id", t.PatientID.String(),
		"hospital_id", t.ToHospitalID.String())
	s.auditor.Log(ctx, uuid.Nil, model.AuditActionAdmit, model.AuditEntityPatient, t.PatientID, &audit.LogOptions{
		Metadata: map[string]interface{}{"transfer_id": t.ID, "hospital_id": t.ToHospitalID, "reconciled": true},
	})
	return true, nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*model.Transfer, error) {
	t, err := s.transfers.Get(ctx, id)
	if err != nil {
		return nil, notFound("transfer", err)
	}
	return t, nil
}

// transition applies the conditional write. Losing the race to another
// writer surfaces as InvalidState naming the status that won.
func (s *Service) transition(ctx context.Context, t *model.Transfer, expected, next model.TransferStatus, verb, done string) (*model.Transfer, error) {
	updated, err := s.transfers.Transition(ctx, t.ID, expected, next, time.Now().UTC())
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, repository.ErrConditionFailed) {
		return nil, fmt.Errorf("failed to %s transfer: %w", verb, err)
	}

	current := expected
	if latest, gerr := s.transfers.Get(ctx, t.ID); gerr == nil {
		current = latest.Status
	}
	if current == expected {
		return nil, apperrors.InvalidState("Transfer changed while it was being %s. Please retry.", done)
	}
	return nil, stateError(verb, done, current, expected)
}

func (s *Service) record(ctx context.Context, actorID uuid.UUID, eventType, action string, t *model.Transfer) {
	if err := s.events.Emit(ctx, eventType, model.NewTransferEvent(t, actorID, time.Now().UTC())); err != nil {
		s.logger.Error(err, "failed to emit transfer event",
			"transfer_id", t.ID.String(),
			"event_type", eventType)
	}
	s.auditor.Log(ctx, actorID, action, model.AuditEntityTransfer, t.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"status": t.Status},
	})
}

func (s *Service) observe(transition string, err error) {
	result := "success"
	if err != nil {
		result = apperrors.CodeOf(err).String()
	}
	s.metrics.TransferTransitions.WithLabelValues(transition, result).Inc()
}

func stateError(verb, done string, current, required model.TransferStatus) error {
	return apperrors.InvalidState("Cannot %s transfer with status: %s. Only '%s' transfers can be %s.", verb, current, required, done)
}

func notFound(resource string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, nil)
	}
	return fmt.Errorf("failed to load %s: %w", resource, err)
}
