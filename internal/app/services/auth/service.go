// Package auth issues and verifies the bearer tokens guarding the API.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/eslamgaber/storefront/internal/app/domain/user"
	"github.com/eslamgaber/storefront/internal/app/storage/sqlgen"
	"github.com/eslamgaber/storefront/internal/config"
	"github.com/eslamgaber/storefront/pkg/logger"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// UserStore is the slice of the users accessor the auth service needs.
type UserStore interface {
	FindOne(ctx context.Context, opts sqlgen.SelectOptions) (*user.User, error)
}

// Service authenticates credentials and authorizes bearer tokens.
type Service struct {
	users  UserStore
	hasher *PasswordHasher
	jwtKey []byte
	log    *logger.Logger
}

// New constructs the auth service.
func New(users UserStore, cfg config.AuthConfig, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Service{
		users:  users,
		hasher: NewPasswordHasher(cfg.PasswordSalt, cfg.PasswordIterations),
		jwtKey: []byte(cfg.JWTKey),
		log:    log,
	}
}

// Hasher exposes the password hasher so the users service can share the
// configured scheme.
func (s *Service) Hasher() *PasswordHasher { return s.hasher }

// tokenClaims carries the authenticated user id inside the token payload.
type tokenClaims struct {
	Data struct {
		UserID int64 `json:"userID"`
	} `json:"data"`
	jwt.RegisteredClaims
}

// Authenticate verifies a username/password pair and returns a signed token.
// Unknown usernames and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, username, password string) (string, error) {
	u, err := s.users.FindOne(ctx, sqlgen.SelectOptions{
		Condition: sqlgen.Condition{"username": username},
	})
	if err != nil {
		return "", fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return "", ErrInvalidCredentials
	}

	if !s.hasher.Confirm(password, u.Password) {
		return "", ErrInvalidCredentials
	}

	claims := tokenClaims{}
	claims.Data.UserID = u.ID

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	s.log.WithField("user_id", u.ID).Info("user authenticated")
	return token, nil
}

// Authorize verifies a token and loads the user it was issued for.
func (s *Service) Authorize(ctx context.Context, token string) (*user.User, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	u, err := s.users.FindOne(ctx, sqlgen.SelectOptions{
		Condition: sqlgen.Condition{"id": claims.Data.UserID},
	})
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return nil, ErrInvalidToken
	}
	return u, nil
}
