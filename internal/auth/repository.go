package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/store"
	"github.com/aura-events/backend/pkg/utils"
)

var (
	// ErrEmailTaken is returned when signing up with an email that already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Repository handles user persistence and credential checks.
type Repository struct {
	users store.Users
}

// NewRepository creates an auth repository over the user directory.
func NewRepository(users store.Users) *Repository {
	return &Repository{users: users}
}

// Create hashes the password and inserts a new user.
func (r *Repository) Create(ctx context.Context, name, email, password string, role models.Role) (*models.User, error) {
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{
		Name:         strings.TrimSpace(name),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		Role:         role,
	}
	if err := r.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

// Authenticate returns the user whose email and password match.
func (r *Repository) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := r.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !utils.CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// EnsureAdmin creates the administrator account if no user holds the email yet.
// It reports whether an account was created.
func (r *Repository) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	_, err := r.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if _, err := r.Create(ctx, name, email, password, models.RoleAdmin); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
