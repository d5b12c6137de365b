package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository"
	"github.com/jwalitptl/carebridge/pkg/auth"
	apperrors "github.com/jwalitptl/carebridge/pkg/errors"
)

const (
	DefaultCacheTTL     = time.Minute
	defaultCacheCleanup = 5 * time.Minute
)

// Service resolves bearer tokens into actors. Only directory rows are
// cached; role and hospital_id never change for a user.
type Service struct {
	tokens auth.JWTService
	users  repository.UserRepository
	cache  *cache.Cache
}

func NewService(tokens auth.JWTService, users repository.UserRepository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		tokens: tokens,
		users:  users,
		cache:  cache.New(ttl, defaultCacheCleanup),
	}
}

// Authenticate validates token and returns the caller and its directory row.
func (s *Service) Authenticate(ctx context.Context, token string) (model.Actor, *model.User, error) {
	userID, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, nil, apperrors.Unauthorized(err)
	}

	user, err := s.User(ctx, userID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.Unauthorized(err)
		}
		return nil, nil, err
	}

	actor, err := model.ActorFromUser(user)
	if err != nil {
		return nil, nil, apperrors.Unauthorized(err)
	}
	return actor, user, nil
}

func (s *Service) User(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if v, ok := s.cache.Get(id.String()); ok {
		return v.(*model.User), nil
	}

	user, err := s.users.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("user", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	s.cache.SetDefault(id.String(), user)
	return user, nil
}

func (s *Service) ListHospitals(ctx context.Context) ([]*model.Hospital, error) {
	hospitals, err := s.users.ListHospitals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list hospitals: %w", err)
	}
	if hospitals == nil {
		hospitals = []*model.Hospital{}
	}
	return hospitals, nil
}
