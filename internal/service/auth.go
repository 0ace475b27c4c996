package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"messagely/internal/auth"
	"messagely/internal/metrics"
	"messagely/internal/models"
	"messagely/internal/store"

	"github.com/rs/zerolog/log"
)

// AuthService runs registration and login.
type AuthService struct {
	users  store.Credentials
	hasher *auth.Hasher
	tokens *auth.TokenService
	now    func() time.Time
}

func NewAuthService(users store.Credentials, hasher *auth.Hasher, tokens *auth.TokenService) *AuthService {
	return &AuthService{users: users, hasher: hasher, tokens: tokens, now: time.Now}
}

// RegisterInput is the registration payload. Every field is required.
type RegisterInput struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Phone     string `json:"phone" validate:"required"`
}

func (in *RegisterInput) normalize() {
	in.Username = strings.TrimSpace(in.Username)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Phone = strings.TrimSpace(in.Phone)
}

// Register creates the credential and returns a token for it. Nothing is
// stored if hashing fails, and no token is issued if the insert fails.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (string, error) {
	in.normalize()
	if err := checkRequired(in); err != nil {
		metrics.AuthAttempts.WithLabelValues("register", "invalid").Inc()
		return "", err
	}
	if len(in.Password) > auth.MaxSecretBytes {
		metrics.AuthAttempts.WithLabelValues("register", "invalid").Inc()
		return "", ErrSecretTooLong
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return "", err
	}
	now := s.now()
	user := &models.User{
		Username:    in.Username,
		SecretHash:  hash,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Phone:       in.Phone,
		JoinAt:      now,
		LastLoginAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			metrics.AuthAttempts.WithLabelValues("register", "duplicate").Inc()
			return "", ErrDuplicateUsername
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	s.touch(ctx, user.Username)
	metrics.AuthAttempts.WithLabelValues("register", "ok").Inc()
	return token, nil
}

// Login checks username and password. An unknown user and a wrong password
// fail the same way, and take the same time to do so.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", &MissingFieldError{Field: "username"}
	}
	if password == "" {
		return "", &MissingFieldError{Field: "password"}
	}

	user, err := s.users.Find(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("find user: %w", err)
		}
		s.hasher.VerifyMissing(ctx, password)
		metrics.AuthAttempts.WithLabelValues("login", "denied").Inc()
		return "", ErrInvalidCredentials
	}
	if !s.hasher.Verify(ctx, password, user.SecretHash) {
		metrics.AuthAttempts.WithLabelValues("login", "denied").Inc()
		return "", ErrInvalidCredentials
	}
	if s.hasher.NeedsRehash(user.SecretHash) {
		log.Info().Str("username", username).Int("cost", s.hasher.Cost()).Msg("stored hash uses an outdated cost")
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	s.touch(ctx, user.Username)
	metrics.AuthAttempts.WithLabelValues("login", "ok").Inc()
	return token, nil
}

// touch records the login time. A failure here does not undo the login.
func (s *AuthService) touch(ctx context.Context, username string) {
	if err := s.users.TouchLogin(ctx, username, s.now()); err != nil {
		log.Warn().Err(err).Str("username", username).Msg("update last login")
	}
}
