package services

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"slices"
	"strings"

	"github.com/chachabrian/mooveit-freight/internal/models"
)

// RegisterInput is a self-service sign-up. Admins are provisioned out of band.
type RegisterInput struct {
	Name         string
	Email        string
	Password     string
	PhoneNumber  string
	Role         models.Role
	VehiclePlate string
	VehicleClass string
}

// UserService handles accounts and push token registration.
type UserService struct {
	store    Store
	verifier *CredentialVerifier
	log      *slog.Logger
}

func NewUserService(store Store, verifier *CredentialVerifier, log *slog.Logger) *UserService {
	return &UserService{store: store, verifier: verifier, log: log}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, "", ErrValidation.With("invalid email address")
	}
	if len(in.Password) < 8 {
		return nil, "", ErrValidation.With("password must be at least 8 characters")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, "", ErrValidation.With("name is required")
	}
	switch in.Role {
	case models.RoleCustomer:
	case models.RoleDriver:
		if strings.TrimSpace(in.VehiclePlate) == "" || !slices.Contains(models.VehicleClasses, in.VehicleClass) {
			return nil, "", ErrValidation.With("drivers need a vehicle plate and a known vehicle class")
		}
	default:
		return nil, "", ErrValidation.With("role must be customer or driver")
	}

	u := &models.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		Password:     in.Password,
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
		Role:         in.Role,
		VehiclePlate: strings.ToUpper(strings.TrimSpace(in.VehiclePlate)),
		VehicleClass: in.VehicleClass,
	}
	if err := u.HashPassword(); err != nil {
		return nil, "", err
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", err
	}

	token, err := s.verifier.Issue(u.Role, u.ID, u.Email)
	if err != nil {
		return nil, "", err
	}
	s.log.Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, token, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	u, err := s.store.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if isNotFound(err) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := u.CheckPassword(password); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.verifier.Issue(u.Role, u.ID, u.Email)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (s *UserService) Profile(ctx context.Context, userID uint) (*models.User, error) {
	u, err := s.store.User(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, ErrUserNotFound)
	}
	return u, nil
}

func (s *UserService) UpdateFCMToken(ctx context.Context, userID uint, token string) error {
	if err := s.store.UpdateFCMToken(ctx, userID, strings.TrimSpace(token)); err != nil {
		return notFoundAs(err, ErrUserNotFound)
	}
	return nil
}

// ListByRole is the admin directory of customers or drivers.
func (s *UserService) ListByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	switch role {
	case models.RoleCustomer, models.RoleDriver, models.RoleAdmin:
	default:
		return nil, ErrValidation.With("unknown role %q", role)
	}
	return s.store.UsersByRole(ctx, role)
}

// PushToken satisfies TokenLookup for the event fan-out.
func (s *UserService) PushToken(ctx context.Context, userID uint) (string, error) {
	u, err := s.store.User(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.FCMToken, nil
}
