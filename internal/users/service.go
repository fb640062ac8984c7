// Package users is the administrator's user directory: listing, role changes and
// account removal.
package users

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/store"
)

// FilterAll lists users of every role.
const FilterAll = "all"

// ImageReleaser deletes stored event images.
type ImageReleaser interface {
	DeleteImage(ctx context.Context, ref string) error
}

// Service manages user accounts on behalf of an administrator.
type Service struct {
	store  store.Store
	images ImageReleaser
	logger *zap.Logger
}

// NewService creates a user directory service. images may be nil when image storage is
// not configured.
func NewService(st store.Store, images ImageReleaser, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, images: images, logger: logger}
}

// List returns users newest first. filter is a role name, "all" or empty.
func (s *Service) List(ctx context.Context, actor models.Actor, filter string) ([]models.UserSummary, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var role *models.Role
	if filter != "" && filter != FilterAll {
		r := models.Role(filter)
		if !r.Valid() {
			return nil, apperr.New(apperr.CodeValidation, fmt.Sprintf("unknown role filter %q", filter))
		}
		role = &r
	}
	list, err := s.store.ListUsers(ctx, role)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if list == nil {
		list = []models.UserSummary{}
	}
	return list, nil
}

// ChangeRole sets another user's role. Administrators cannot change their own role.
func (s *Service) ChangeRole(ctx context.Context, actor models.Actor, userID int64, role models.Role) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.New(apperr.CodeValidation, fmt.Sprintf("unknown role %q", role))
	}
	if userID == actor.ID {
		return nil, apperr.New(apperr.CodeForbidden, "you cannot change your own role")
	}
	u, err := s.store.UpdateUserRole(ctx, userID, role)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFoundOrUnauthorized, "user not found")
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	s.logger.Info("user role changed", zap.Int64("user_id", userID), zap.String("role", string(role)), zap.Int64("admin_id", actor.ID))
	return u, nil
}

// Delete removes another user together with the events they organize and every
// reservation held by or for them. Administrators cannot delete their own account.
// Images of the removed events are released after commit.
func (s *Service) Delete(ctx context.Context, actor models.Actor, userID int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if userID == actor.ID {
		return apperr.New(apperr.CodeForbidden, "you cannot delete your own account")
	}
	var refs []string
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		refs, err = tx.DeleteUser(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.CodeNotFoundOrUnauthorized, "user not found")
		}
		return apperr.Storage(err)
	})
	if err != nil {
		return apperr.Storage(err)
	}
	s.logger.Info("user deleted", zap.Int64("user_id", userID), zap.Int64("admin_id", actor.ID), zap.Int("images", len(refs)))
	s.releaseImages(ctx, userID, refs)
	return nil
}

func (s *Service) releaseImages(ctx context.Context, userID int64, refs []string) {
	if s.images == nil {
		return
	}
	for _, ref := range refs {
		if err := s.images.DeleteImage(ctx, ref); err != nil {
			s.logger.Warn("image release failed", zap.Int64("user_id", userID), zap.String("image_ref", ref), zap.Error(err))
		}
	}
}

func requireAdmin(actor models.Actor) error {
	if !actor.Is(models.RoleAdmin) {
		return apperr.New(apperr.CodeForbidden, "only administrators can manage users")
	}
	return nil
}
