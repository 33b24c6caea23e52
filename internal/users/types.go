// Package users manages accounts: registration, credential checks and
// profile updates. Every other entity is owned by a user row.
package users

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/deeppomo/deeppomo/internal/apperr"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ErrInvalidCredentials is returned when a username/password pair does not match.
var ErrInvalidCredentials = errors.New("incorrect username or password")

// User is an account
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RegisterInput holds data for creating an account
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the shape of the input.
func (in *RegisterInput) Validate() error {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateUsername(in.Username); err != nil {
		return err
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	return validatePassword(in.Password)
}

// ProfilePatch is a partial profile update; nil fields are left unchanged.
type ProfilePatch struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}

// Validate normalises and checks the set fields.
func (p *ProfilePatch) Validate() error {
	if p.Username != nil {
		v := strings.TrimSpace(*p.Username)
		if err := validateUsername(v); err != nil {
			return err
		}
		p.Username = &v
	}
	if p.Email != nil {
		v := strings.ToLower(strings.TrimSpace(*p.Email))
		if err := validateEmail(v); err != nil {
			return err
		}
		p.Email = &v
	}
	if p.Password != nil {
		return validatePassword(*p.Password)
	}
	return nil
}

func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username is required: %w", apperr.ErrValidation)
	}
	if len(username) > 50 {
		return fmt.Errorf("username is longer than 50 characters: %w", apperr.ErrValidation)
	}
	return nil
}

func validateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email %q: %w", email, apperr.ErrValidation)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters: %w", MinPasswordLength, apperr.ErrValidation)
	}
	return nil
}
