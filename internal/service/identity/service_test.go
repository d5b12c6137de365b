package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository"
	"github.com/jwalitptl/carebridge/pkg/auth"
	apperrors "github.com/jwalitptl/carebridge/pkg/errors"
)

type mockUserRepo struct{ mock.Mock }

func (m *mockUserRepo) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *mockUserRepo) ListHospitals(ctx context.Context) ([]*model.Hospital, error) {
	args := m.Called(ctx)
	h, _ := args.Get(0).([]*model.Hospital)
	return h, args.Error(1)
}

func newService(t *testing.T) (*Service, *auth.HMACService, *mockUserRepo) {
	t.Helper()
	jwtSvc, err := auth.NewHMACService("secret", "")
	require.NoError(t, err)
	users := &mockUserRepo{}
	return NewService(jwtSvc, users, time.Minute), jwtSvc, users
}

func TestAuthenticateDoctor(t *testing.T) {
	svc, jwtSvc, users := newService(t)
	ctx := context.Background()
	hospital := uuid.New()
	doctor := &model.User{ID: uuid.New(), Role: model.RoleDoctor, HospitalID: &hospital, Email: "doc@example.com"}
	users.On("Get", mock.Anything, doctor.ID).Return(doctor, nil).Once()

	token, err := jwtSvc.Sign(doctor.ID, time.Minute)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		actor, user, err := svc.Authenticate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, model.DoctorActor{ID: doctor.ID, HospitalID: hospital}, actor)
		assert.Equal(t, doctor.Email, user.Email)
	}
	users.AssertNumberOfCalls(t, "Get", 1)
}

func TestAuthenticateFailures(t *testing.T) {
	svc, jwtSvc, users := newService(t)
	ctx := context.Background()

	_, _, err := svc.Authenticate(ctx, "garbage")
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err))

	unknown := uuid.New()
	users.On("Get", mock.Anything, unknown).Return(nil, repository.ErrNotFound)
	token, _ := jwtSvc.Sign(unknown, time.Minute)
	_, _, err = svc.Authenticate(ctx, token)
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err))

	orphan := &model.User{ID: uuid.New(), Role: model.RoleDoctor}
	users.On("Get", mock.Anything, orphan.ID).Return(orphan, nil)
	token, _ = jwtSvc.Sign(orphan.ID, time.Minute)
	_, _, err = svc.Authenticate(ctx, token)
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err), "doctor without a hospital cannot act")
}

func TestListHospitalsNeverNil(t *testing.T) {
	svc, _, users := newService(t)
	users.On("ListHospitals", mock.Anything).Return(nil, nil)

	list, err := svc.ListHospitals(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
}
