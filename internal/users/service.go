package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/deeppomo/deeppomo/internal/apperr"
	"github.com/deeppomo/deeppomo/internal/db"
	"github.com/deeppomo/deeppomo/internal/logging"
	"github.com/deeppomo/deeppomo/internal/settings"
)

// Service provides account business logic
type Service struct {
	db       *db.DB
	store    *Store
	settings *settings.Store
	hashCost int
	log      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// NewService creates a new user service
func NewService(d *db.DB, opts ...Option) *Service {
	s := &Service{
		db:       d,
		store:    NewStore(d),
		settings: settings.NewStore(d),
		hashCost: bcrypt.DefaultCost,
		log:      logging.WithComponent("users"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user and its default settings in one transaction.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := db.Now()
	user := &User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithTx(ctx, func(tx *db.Tx) error {
		store := s.store.WithTx(tx)
		taken, err := store.Taken(ctx, 0, user.Username, user.Email)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("username or email already registered: %w", apperr.ErrConflict)
		}
		if err := store.Create(ctx, user); err != nil {
			return err
		}
		_, err = s.settings.WithTx(tx).Seed(ctx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user registered", slog.Int64("user_id", user.ID), slog.String("username", user.Username))
	return user, nil
}

// Authenticate checks a username (or email) and password pair.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*User, error) {
	user, err := s.store.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns the user with id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.store.Get(ctx, id)
}

// Find returns the user whose username or email equals login.
func (s *Service) Find(ctx context.Context, login string) (*User, error) {
	return s.store.GetByLogin(ctx, login)
}

// UpdateProfile applies a partial profile update. A username or email held
// by another user is rejected with ErrConflict.
func (s *Service) UpdateProfile(ctx context.Context, id int64, patch ProfilePatch) (*User, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var hash []byte
	if patch.Password != nil {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(*patch.Password), s.hashCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
	}

	var result *User
	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		store := s.store.WithTx(tx)
		user, err := store.Get(ctx, id)
		if err != nil {
			return err
		}

		if patch.Username != nil && *patch.Username != user.Username {
			taken, err := store.Taken(ctx, id, *patch.Username, "")
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("username %q already registered: %w", *patch.Username, apperr.ErrConflict)
			}
			user.Username = *patch.Username
		}
		if patch.Email != nil && *patch.Email != user.Email {
			taken, err := store.Taken(ctx, id, "", *patch.Email)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("email %q already registered: %w", *patch.Email, apperr.ErrConflict)
			}
			user.Email = *patch.Email
		}
		if hash != nil {
			user.PasswordHash = string(hash)
		}

		user.UpdatedAt = db.Now()
		if err := store.Update(ctx, user); err != nil {
			return err
		}
		result = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.log).Info("profile updated", slog.Int64("user_id", id))
	return result, nil
}
