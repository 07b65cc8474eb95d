package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yoockh/hiready/internal/models"
	pgrepo "github.com/yoockh/hiready/internal/repositories/postgres"
	"github.com/yoockh/hiready/internal/utils"
)

type UserService interface {
	Get(ctx context.Context, userID string) (*models.User, error)
	Sync(ctx context.Context, u *models.User) error
	SetEntitlements(ctx context.Context, userID string, entitlements []string) error
}

type userService struct {
	users pgrepo.UserRepository
}

func NewUserService(users pgrepo.UserRepository) UserService {
	return &userService{users: users}
}

func (s *userService) Get(ctx context.Context, userID string) (*models.User, error) {
	const op = "UserService.Get"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "user not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get user", err)
	}
	return u, nil
}

// Sync upserts the profile fields the identity provider owns.
func (s *userService) Sync(ctx context.Context, u *models.User) error {
	const op = "UserService.Sync"

	if u == nil || u.ID == "" || u.Email == "" {
		return utils.E(utils.CodeInvalidArgument, op, "id and email are required", nil)
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if err := s.users.Upsert(ctx, u); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to upsert user", err)
	}
	return nil
}

func (s *userService) SetEntitlements(ctx context.Context, userID string, entitlements []string) error {
	const op = "UserService.SetEntitlements"

	if userID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	clean := make([]string, 0, len(entitlements))
	seen := map[string]struct{}{}
	for _, e := range entitlements {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		clean = append(clean, e)
	}

	if err := s.users.SetEntitlements(ctx, userID, clean); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "user not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to set entitlements", err)
	}
	return nil
}
