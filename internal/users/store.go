package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/deeppomo/deeppomo/internal/apperr"
	"github.com/deeppomo/deeppomo/internal/db"
)

const userColumns = `id, username, email, password_hash, is_active, created_at, updated_at`

// Store provides persistent storage for users
type Store struct {
	q db.Querier
}

// NewStore creates a user store on q
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

// WithTx returns a store bound to tx.
func (s *Store) WithTx(tx *db.Tx) *Store {
	return &Store{q: tx}
}

// Create inserts u and fills in its id.
func (s *Store) Create(ctx context.Context, u *User) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		u.Username, u.Email, u.PasswordHash, u.IsActive, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("username or email already registered: %w", apperr.ErrConflict)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Get returns the user with id.
func (s *Store) Get(ctx context.Context, id int64) (*User, error) {
	return s.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByLogin returns the user whose username or email equals login.
func (s *Store) GetByLogin(ctx context.Context, login string) (*User, error) {
	return s.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = ? OR email = ?`, login, login)
}

// Taken reports whether another user already uses username or email.
func (s *Store) Taken(ctx context.Context, exceptID int64, username, email string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE id <> ? AND (username = ? OR email = ?)`,
		exceptID, username, email,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check user uniqueness: %w", err)
	}
	return n > 0, nil
}

// Update writes the profile columns of u.
func (s *Store) Update(ctx context.Context, u *User) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ?, password_hash = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		u.Username, u.Email, u.PasswordHash, u.IsActive, u.UpdatedAt, u.ID,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("username or email already registered: %w", apperr.ErrConflict)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (s *Store) scanOne(ctx context.Context, query string, args ...any) (*User, error) {
	var u User
	err := s.q.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}
