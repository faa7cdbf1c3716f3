// Package users implements account management on top of the storage layer.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/eslamgaber/storefront/internal/app/domain/user"
	"github.com/eslamgaber/storefront/internal/app/services/auth"
	"github.com/eslamgaber/storefront/internal/app/storage/postgres"
	"github.com/eslamgaber/storefront/internal/app/storage/sqlgen"
	"github.com/eslamgaber/storefront/pkg/logger"
)

// Errors
var (
	ErrNotFound      = errors.New("user not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUsernameTaken = errors.New("username already taken")
	ErrSelfDelete    = errors.New("cannot delete own account")
)

// uniqueViolation is the postgres error code for unique constraint breaches.
const uniqueViolation = "23505"

// UserStore covers the write side of the users table.
type UserStore interface {
	Create(ctx context.Context, row sqlgen.Values) (postgres.Result[user.User], error)
	Delete(ctx context.Context, condition sqlgen.Condition) (postgres.Result[user.User], error)
}

// ViewStore covers password-free reads of the users table.
type ViewStore interface {
	Index(ctx context.Context, opts sqlgen.SelectOptions) ([]user.Public, error)
	FindOne(ctx context.Context, opts sqlgen.SelectOptions) (*user.Public, error)
}

// NewUser is the payload for account creation.
type NewUser struct {
	Username  string `json:"username"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

// Service manages user accounts.
type Service struct {
	users  UserStore
	views  ViewStore
	hasher *auth.PasswordHasher
	log    *logger.Logger
}

// New constructs the users service.
func New(users UserStore, views ViewStore, hasher *auth.PasswordHasher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{users: users, views: views, hasher: hasher, log: log}
}

// Signup registers a regular account. The role field of the payload is
// ignored so self-registration can never mint admins.
func (s *Service) Signup(ctx context.Context, in NewUser) (*user.User, error) {
	in.Role = user.RoleUser
	return s.Create(ctx, in)
}

// Create validates the payload, hashes the password and inserts the account.
// The returned row still carries the hash; its JSON shape hides it.
func (s *Service) Create(ctx context.Context, in NewUser) (*user.User, error) {
	if in.Role == "" {
		in.Role = user.RoleUser
	}
	if err := validateNewUser(in); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	res, err := s.users.Create(ctx, sqlgen.Values{
		"username":  in.Username,
		"firstname": in.Firstname,
		"lastname":  in.Lastname,
		"password":  hash,
		"role":      in.Role,
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	created := res.First()
	if created == nil {
		return nil, fmt.Errorf("insert user: no row returned")
	}
	s.log.WithField("user_id", created.ID).Info("user created")
	return created, nil
}

// List returns every account without password material.
func (s *Service) List(ctx context.Context) ([]user.Public, error) {
	return s.views.Index(ctx, sqlgen.SelectOptions{Projection: user.PublicColumns})
}

// Get returns one account without password material.
func (s *Service) Get(ctx context.Context, id int64) (*user.Public, error) {
	u, err := s.views.FindOne(ctx, sqlgen.SelectOptions{
		Condition:  sqlgen.Condition{"id": id},
		Projection: user.PublicColumns,
	})
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// Delete removes an account. Actors cannot remove themselves, which keeps at
// least the acting admin alive.
func (s *Service) Delete(ctx context.Context, id int64, actor *user.User) (*user.User, error) {
	if actor != nil && actor.ID == id {
		return nil, ErrSelfDelete
	}

	res, err := s.users.Delete(ctx, sqlgen.Condition{"id": id})
	if err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}
	removed := res.First()
	if removed == nil {
		return nil, ErrNotFound
	}
	s.log.WithField("user_id", id).Info("user deleted")
	return removed, nil
}

func validateNewUser(in NewUser) error {
	if !isAlphanumeric(in.Username) || len(in.Username) < 3 || len(in.Username) > 100 {
		return fmt.Errorf("%w: username must be 3 to 100 alphanumeric characters", ErrInvalidInput)
	}
	if len(in.Password) < 8 || len(in.Password) > 50 {
		return fmt.Errorf("%w: password must be 8 to 50 characters", ErrInvalidInput)
	}
	if len(in.Firstname) < 3 || len(in.Firstname) > 50 {
		return fmt.Errorf("%w: firstname must be 3 to 50 characters", ErrInvalidInput)
	}
	if len(in.Lastname) < 3 || len(in.Lastname) > 50 {
		return fmt.Errorf("%w: lastname must be 3 to 50 characters", ErrInvalidInput)
	}
	if in.Role != user.RoleUser && in.Role != user.RoleAdmin {
		return fmt.Errorf("%w: role must be %q or %q", ErrInvalidInput, user.RoleUser, user.RoleAdmin)
	}
	return nil
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
