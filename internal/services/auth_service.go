package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"agentchat-backend/internal/auth"
	"agentchat-backend/internal/config"
	"agentchat-backend/internal/models"
	"agentchat-backend/internal/store"
)

// Custom errors for auth service
var (
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrHashingPassword    = errors.New("failed to hash password")
	ErrCreatingToken      = errors.New("failed to create access token")
)

type AuthService struct {
	store  store.Store
	cfg    *config.Config
	logger *slog.Logger
}

func NewAuthService(s store.Store, cfg *config.Config, logger *slog.Logger) *AuthService {
	return &AuthService{
		store:  s,
		cfg:    cfg,
		logger: logger.With("service", "auth"),
	}
}

// Signup creates a new user account.
func (s *AuthService) Signup(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password cannot be empty", ErrValidation)
	}

	// Check if user already exists
	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrUserAlreadyExists
	}
	if !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("checking user existence", "email", email, "error", err)
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		s.logger.Error("hashing password", "email", email, "error", err)
		return nil, ErrHashingPassword
	}

	user := &models.User{
		ID:             uuid.New(),
		Email:          email,
		HashedPassword: hashedPassword,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		s.logger.Error("creating user", "email", email, "error", err)
		return nil, fmt.Errorf("creating user failed: %w", err)
	}

	s.logger.Info("user signed up", "email", email, "user_id", user.ID)
	return user, nil
}

// Login verifies user credentials and returns an access token and user info.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Don't reveal whether the user exists
			return "", nil, ErrInvalidCredentials
		}
		s.logger.Error("retrieving user during login", "email", email, "error", err)
		return "", nil, fmt.Errorf("failed to retrieve user: %w", err)
	}

	if !auth.CheckPasswordHash(password, user.HashedPassword) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := auth.NewAccessToken(user.ID, s.cfg.JWTSecret, s.cfg.TokenExpiration)
	if err != nil {
		s.logger.Error("generating token", "user_id", user.ID, "error", err)
		return "", nil, ErrCreatingToken
	}

	s.logger.Info("user logged in", "email", email, "user_id", user.ID)
	return token, user, nil
}
