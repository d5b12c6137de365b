package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebridge/internal/model"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConditionFailed is returned by conditional updates that matched no
	// row because the guarded column no longer holds the expected value.
	ErrConditionFailed = errors.New("conditional update matched no rows")
	// ErrDuplicate is returned when a uniqueness constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)

// All repository interfaces in one file
type (
	UserRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		ListHospitals(ctx context.Context) ([]*model.Hospital, error)
	}

	PatientRepository interface {
		// EnsureForUser returns the patient row of userID, creating it first
		// when missing.
		EnsureForUser(ctx context.Context, userID uuid.UUID) (*model.Patient, error)
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Patient, error)
		// SetCurrentHospital moves the admission unconditionally.
		SetCurrentHospital(ctx context.Context, patientID, hospitalID uuid.UUID) error
		// MoveAdmission moves the admission to hospitalID only while the
		// patient is still at observed (nil meaning unadmitted). A changed
		// admission yields ErrConditionFailed.
		MoveAdmission(ctx context.Context, patientID uuid.UUID, observed *uuid.UUID, hospitalID uuid.UUID) error
		// Admit sets the admission only when the patient is unadmitted or
		// already admitted at hospitalID.
		Admit(ctx context.Context, patientID, hospitalID uuid.UUID) (*model.Patient, error)
		ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*model.PatientProfile, error)
	}

	TransferRepository interface {
		Create(ctx context.Context, transfer *model.Transfer) error
		Get(ctx context.Context, id uuid.UUID) (*model.Transfer, error)
		HasActiveFrom(ctx context.Context, patientID, fromHospitalID uuid.UUID) (bool, error)
		// Transition moves the transfer from expected to next and stamps the
		// matching timestamp column. It returns ErrConditionFailed when the
		// stored status is no longer expected.
		Transition(ctx context.Context, id uuid.UUID, expected, next model.TransferStatus, at time.Time) (*model.Transfer, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Transfer, error)
		ListByHospital(ctx context.Context, hospitalID uuid.UUID, statuses ...model.TransferStatus) ([]*model.Transfer, error)
		// LatestAdmitting returns the most recently accepted transfer of the
		// patient that is accepted or completed.
		LatestAdmitting(ctx context.Context, patientID uuid.UUID) (*model.Transfer, error)
	}

	HealthRecordRepository interface {
		Create(ctx context.Context, record *model.HealthRecord) error
		Get(ctx context.Context, id uuid.UUID) (*model.HealthRecord, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.HealthRecord, error)
		Delete(ctx context.Context, id uuid.UUID) error
	}

	MedicalReportRepository interface {
		Create(ctx context.Context, report *model.MedicalReport) error
		Get(ctx context.Context, id uuid.UUID) (*model.MedicalReport, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.MedicalReport, error)
		Delete(ctx context.Context, id uuid.UUID) error
	}

	MessageRepository interface {
		Create(ctx context.Context, msg *model.Message) error
		ListByTransfer(ctx context.Context, transferID uuid.UUID) ([]*model.Message, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// GetPendingEventsWithLock claims up to limit due events and hides
		// them from other workers for lease.
		GetPendingEventsWithLock(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
	}
)
