package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository"
)

var transferCols = []string{
	"id", "patient_id", "from_hospital_id", "to_hospital_id", "transfer_type", "status",
	"reason", "requested_at", "accepted_at", "completed_at", "created_at",
}

func newMockBase(t *testing.T) (BaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBaseRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestTransitionAppliesConditionalUpdate(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewTransferRepository(base)

	id, patientID, from, to := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE transfers")).
		WithArgs(id, "requested", "accepted", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(transferCols).AddRow(
			id.String(), patientID.String(), from.String(), to.String(), "emergency", "accepted",
			nil, now.Add(-time.Hour), now, nil, now.Add(-time.Hour),
		))

	got, err := repo.Transition(context.Background(), id, model.TransferStatusRequested, model.TransferStatusAccepted, now)
	require.NoError(t, err)
	assert.Equal(t, model.TransferStatusAccepted, got.Status)
	assert.Equal(t, to, got.ToHospitalID)
	require.NotNil(t, got.FromHospitalID)
	assert.Equal(t, from, *got.FromHospitalID)
	require.NotNil(t, got.AcceptedAt)
	assert.Nil(t, got.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionReportsLostRace(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewTransferRepository(base)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE transfers")).
		WithArgs(id, "requested", "cancelled", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(transferCols))

	_, err := repo.Transition(context.Background(), id, model.TransferStatusRequested, model.TransferStatusCancelled, time.Now())
	assert.ErrorIs(t, err, repository.ErrConditionFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasActiveFrom(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewTransferRepository(base)
	patientID, from := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(patientID, from).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	active, err := repo.HasActiveFrom(context.Background(), patientID, from)
	require.NoError(t, err)
	assert.True(t, active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMapsUniqueViolationToDuplicate(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewTransferRepository(base)
	from := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transfers")).
		WillReturnError(&pq.Error{Code: pgUniqueViolation})

	err := repo.Create(context.Background(), &model.Transfer{
		PatientID:      uuid.New(),
		FromHospitalID: &from,
		ToHospitalID:   uuid.New(),
		TransferType:   model.TransferTypeEmergency,
		Status:         model.TransferStatusRequested,
		RequestedAt:    time.Now(),
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestGetMissingTransfer(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewTransferRepository(base)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM transfers WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(transferCols))

	_, err := repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAdmitRejectsPatientAdmittedElsewhere(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPatientRepository(base)
	patientID, hospitalID := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE patients")).
		WithArgs(hospitalID, sqlmock.AnyArg(), patientID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Admit(context.Background(), patientID, hospitalID)
	assert.ErrorIs(t, err, repository.ErrConditionFailed)
}

func TestMoveAdmissionComparesObservedHospital(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPatientRepository(base)
	patientID, from, to := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("current_hospital_id IS NOT DISTINCT FROM $4")).
		WithArgs(to, sqlmock.AnyArg(), patientID, from).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MoveAdmission(context.Background(), patientID, &from, to))

	mock.ExpectExec(regexp.QuoteMeta("current_hospital_id IS NOT DISTINCT FROM $4")).
		WithArgs(to, sqlmock.AnyArg(), patientID, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MoveAdmission(context.Background(), patientID, nil, to)
	assert.ErrorIs(t, err, repository.ErrConditionFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetCurrentHospitalMissingPatient(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPatientRepository(base)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE patients SET current_hospital_id")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetCurrentHospital(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
