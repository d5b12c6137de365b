package model

import (
	"time"

	"github.com/google/uuid"
)

type TransferStatus string

const (
	TransferStatusRequested TransferStatus = "requested"
	TransferStatusAccepted  TransferStatus = "accepted"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusCancelled TransferStatus = "cancelled"
)

// IsTerminal reports whether no transition leaves the status.
func (s TransferStatus) IsTerminal() bool {
	return s == TransferStatusCompleted || s == TransferStatusCancelled
}

// IsActive reports whether a transfer in this status still blocks a new
// request for the same patient.
func (s TransferStatus) IsActive() bool {
	return s == TransferStatusRequested || s == TransferStatusAccepted
}

type TransferType string

const (
	TransferTypeEmergency    TransferType = "emergency"
	TransferTypeNonEmergency TransferType = "non-emergency"
)

func (t TransferType) Valid() bool {
	return t == TransferTypeEmergency || t == TransferTypeNonEmergency
}

type Transfer struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	PatientID      uuid.UUID      `json:"patient_id" db:"patient_id"`
	FromHospitalID *uuid.UUID     `json:"from_hospital_id,omitempty" db:"from_hospital_id"`
	ToHospitalID   uuid.UUID      `json:"to_hospital_id" db:"to_hospital_id"`
	TransferType   TransferType   `json:"transfer_type" db:"transfer_type"`
	Status         TransferStatus `json:"status" db:"status"`
	Reason         *string        `json:"reason,omitempty" db:"reason"`
	RequestedAt    time.Time      `json:"requested_at" db:"requested_at"`
	AcceptedAt     *time.Time     `json:"accepted_at,omitempty" db:"accepted_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// IsFrom reports whether hospitalID sent the transfer.
func (t *Transfer) IsFrom(hospitalID uuid.UUID) bool {
	return t.FromHospitalID != nil && *t.FromHospitalID == hospitalID
}

// Involves reports whether hospitalID is either side of the transfer.
func (t *Transfer) Involves(hospitalID uuid.UUID) bool {
	return t.ToHospitalID == hospitalID || t.IsFrom(hospitalID)
}

type CreateTransferRequest struct {
	PatientID    string  `json:"patient_id" binding:"required,uuid"`
	ToHospitalID string  `json:"to_hospital_id" binding:"required,uuid"`
	TransferType string  `json:"transfer_type" binding:"required,transfer_type"`
	Reason       *string `json:"reason" binding:"omitempty,max=2000"`
}

// AdmissionResult is the outcome of the admission step of an accept.
// Applied is false when the patient row could not be updated; Reason then
// carries the failure.
type AdmissionResult struct {
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

// AcceptResult pairs the accepted transfer with its admission outcome.
type AcceptResult struct {
	Transfer  *Transfer       `json:"transfer"`
	Admission AdmissionResult `json:"admission"`
}

// TransferEvent is the outbox payload written on every transition.
type TransferEvent struct {
	TransferID     uuid.UUID      `json:"transfer_id"`
	PatientID      uuid.UUID      `json:"patient_id"`
	FromHospitalID *uuid.UUID     `json:"from_hospital_id,omitempty"`
	ToHospitalID   uuid.UUID      `json:"to_hospital_id"`
	TransferType   TransferType   `json:"transfer_type"`
	Status         TransferStatus `json:"status"`
	ActorID        uuid.UUID      `json:"actor_id"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

func NewTransferEvent(t *Transfer, actorID uuid.UUID, at time.Time) TransferEvent {
	return TransferEvent{
		TransferID:     t.ID,
		PatientID:      t.PatientID,
		FromHospitalID: t.FromHospitalID,
		ToHospitalID:   t.ToHospitalID,
		TransferType:   t.TransferType,
		Status:         t.Status,
		ActorID:        actorID,
		OccurredAt:     at,
	}
}
