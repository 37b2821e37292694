// Package authpw provides username-or-email and password sign-in for admins.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"jobboard/api/internal/rbac"
	"jobboard/api/internal/store"
	"jobboard/api/internal/util"
)

const bcryptCost = 12

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingCredentials = errors.New("username and password are required")
)

// AdminStore defines the storage interface for admin auth.
type AdminStore interface {
	GetAdminByLogin(ctx context.Context, login string) (store.Admin, error)
	CreateAdmin(ctx context.Context, admin store.Admin) (store.Admin, error)
	TouchAdminLogin(ctx context.Context, id string, at time.Time) error
}

type Service struct {
	store    AdminStore
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store AdminStore) *Service {
	return &Service{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

type SignInRequest struct {
	Login    string `json:"username"`
	Password string `json:"password"`
}

// SignIn checks the password of an active admin found by username or email
// and stamps the login time.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.Admin, error) {
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		return store.Admin{}, ErrMissingCredentials
	}

	admin, err := s.store.GetAdminByLogin(ctx, login)
	if errors.Is(err, store.ErrNotFound) {
		return store.Admin{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.Admin{}, fmt.Errorf("lookup admin: %w", err)
	}
	if !admin.IsActive {
		return store.Admin{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		return store.Admin{}, ErrInvalidCredentials
	}

	at := s.now().UTC()
	if err := s.store.TouchAdminLogin(ctx, admin.ID, at); err != nil {
		return store.Admin{}, fmt.Errorf("record login: %w", err)
	}
	admin.LastLogin = &at
	return admin, nil
}

type CreateAdminRequest struct {
	Username string `validate:"required,min=3,max=50"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
	Role     string `validate:"required,oneof=super_admin admin editor"`
}

// CreateAdmin adds an active admin. When the username is already taken the
// existing admin is returned and created is false.
func (s *Service) CreateAdmin(ctx context.Context, req CreateAdminRequest) (admin store.Admin, created bool, err error) {
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return store.Admin{}, false, fmt.Errorf("invalid admin: %w", err)
	}

	existing, err := s.store.GetAdminByLogin(ctx, req.Username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Admin{}, false, fmt.Errorf("lookup admin: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return store.Admin{}, false, fmt.Errorf("hash password: %w", err)
	}
	admin, err = s.store.CreateAdmin(ctx, store.Admin{
		ID:           util.NewID(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         string(rbac.Normalize(req.Role)),
		IsActive:     true,
	})
	if err != nil {
		return store.Admin{}, false, fmt.Errorf("create admin: %w", err)
	}
	return admin, true, nil
}
