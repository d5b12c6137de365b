package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository"
)

const transferColumns = `id, patient_id, from_hospital_id, to_hospital_id, transfer_type, status,
	reason, requested_at, accepted_at, completed_at, created_at`

type transferRepository struct {
	BaseRepository
}

func NewTransferRepository(base BaseRepository) repository.TransferRepository {
	return &transferRepository{base}
}

func (r *transferRepository) Create(ctx context.Context, t *model.Transfer) error {
	query := `
		INSERT INTO transfers (
			id, patient_id, from_hospital_id, to_hospital_id, transfer_type,
			status, reason, requested_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.PatientID,
		t.FromHospitalID,
		t.ToHospitalID,
		t.TransferType,
		t.Status,
		t.Reason,
		t.RequestedAt,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transfer: %w", mapErr(err))
	}
	return nil
}

func (r *transferRepository) Get(ctx context.Context, id uuid.UUID) (*model.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`

	var t model.Transfer
	if err := r.db.GetContext(ctx, &t, query, id); err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r *transferRepository) HasActiveFrom(ctx context.Context, patientID, fromHospitalID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transfers
			WHERE patient_id = $1
			AND from_hospital_id = $2
			AND status IN ('requested', 'accepted')
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, patientID, fromHospitalID); err != nil {
		return false, fmt.Errorf("failed to check active transfers: %w", err)
	}
	return exists, nil
}

func (r *transferRepository) Transition(ctx context.Context, id uuid.UUID, expected, next model.TransferStatus, at time.Time) (*model.Transfer, error) {
	query := `
		UPDATE transfers
		SET status = $3::text,
			accepted_at = CASE WHEN $3::text = 'accepted' THEN $4::timestamptz ELSE accepted_at END,
			completed_at = CASE WHEN $3::text = 'completed' THEN $4::timestamptz ELSE completed_at END
		WHERE id = $1 AND status = $2
		RETURNING ` + transferColumns

	var t model.Transfer
	err := r.db.GetContext(ctx, &t, query, id, string(expected), string(next), at)
	if err != nil {
		if errors.Is(mapErr(err), repository.ErrNotFound) {
			return nil, repository.ErrConditionFailed
		}
		return nil, fmt.Errorf("failed to update transfer status: %w", err)
	}
	return &t, nil
}

func (r *transferRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE patient_id = $1 ORDER BY requested_at ASC`

	var transfers []*model.Transfer
	if err := r.db.SelectContext(ctx, &transfers, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list patient transfers: %w", err)
	}
	return transfers, nil
}

func (r *transferRepository) ListByHospital(ctx context.Context, hospitalID uuid.UUID, statuses ...model.TransferStatus) ([]*model.Transfer, error) {
	if len(statuses) == 0 {
		statuses = []model.TransferStatus{
			model.TransferStatusRequested,
			model.TransferStatusAccepted,
			model.TransferStatusCompleted,
			model.TransferStatusCancelled,
		}
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	query := `
		SELECT ` + transferColumns + ` FROM transfers
		WHERE (from_hospital_id = $1 OR to_hospital_id = $1)
		AND status = ANY($2)
		ORDER BY requested_at DESC
	`
	var transfers []*model.Transfer
	if err := r.db.SelectContext(ctx, &transfers, query, hospitalID, pq.Array(names)); err != nil {
		return nil, fmt.Errorf("failed to list hospital transfers: %w", err)
	}
	return transfers, nil
}

func (r *transferRepository) LatestAdmitting(ctx context.Context, patientID uuid.UUID) (*model.Transfer, error) {
	query := `
		SELECT ` + transferColumns + ` FROM transfers
		WHERE patient_id = $1 AND status IN ('accepted', 'completed')
		ORDER BY accepted_at DESC
		LIMIT 1
	`
	var t model.Transfer
	if err := r.db.GetContext(ctx, &t, query, patientID); err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}
