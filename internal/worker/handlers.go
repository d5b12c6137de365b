package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebridge/internal/email"
	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository"
	"github.com/jwalitptl/carebridge/pkg/logger"
)

// TransferNotifier emails the receiving hospital when a transfer is requested.
type TransferNotifier struct {
	users    repository.UserRepository
	patients repository.PatientRepository
	mail     email.Service
}

func NewTransferNotifier(users repository.UserRepository, patients repository.PatientRepository, mail email.Service) *TransferNotifier {
	return &TransferNotifier{users: users, patients: patients, mail: mail}
}

func (n *TransferNotifier) HandleRequested(ctx context.Context, event *model.OutboxEvent) error {
	var payload model.TransferEvent
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode transfer event: %w", err)
	}

	hospital, err := n.users.Get(ctx, payload.ToHospitalID)
	if err != nil {
		return fmt.Errorf("failed to get receiving hospital: %w", err)
	}

	patientName := "a patient"
	if p, err := n.patients.Get(ctx, payload.PatientID); err == nil {
		if u, err := n.users.Get(ctx, p.UserID); err == nil {
			patientName = u.DisplayName()
		}
	}

	subject := "New patient transfer request"
	body := fmt.Sprintf(
		"A %s transfer has been requested for %s.\n\nTransfer ID: %s\nRequested at: %s\n\nSign in to review and accept the transfer.",
		payload.TransferType, patientName, payload.TransferID, payload.OccurredAt.Format("2006-01-02 15:04 MST"),
	)
	return n.mail.SendCustom(ctx, hospital.Email, subject, body)
}

// Reconciler re-applies an admission that failed during accept.
type Reconciler interface {
	ReconcileAdmission(ctx context.Context, transferID uuid.UUID) (bool, error)
}

type AdmissionReconciler struct {
	transfers Reconciler
	logger    *logger.Logger
}

func NewAdmissionReconciler(transfers Reconciler, logger *logger.Logger) *AdmissionReconciler {
	return &AdmissionReconciler{transfers: transfers, logger: logger}
}

func (r *AdmissionReconciler) HandleReconcile(ctx context.Context, event *model.OutboxEvent) error {
	var payload model.AdmissionReconcile
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode reconcile event: %w", err)
	}

	applied, err := r.transfers.ReconcileAdmission(ctx, payload.TransferID)
	if err != nil {
		return err
	}
	r.logger.Info("admission reconciled",
		"transfer_id", payload.TransferID.String(),
		"applied", applied)
	return nil
}
