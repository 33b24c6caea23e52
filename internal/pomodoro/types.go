// Package pomodoro runs timed work sessions and their pause/resume
// accounting.
package pomodoro

import (
	"fmt"
	"time"

	"github.com/deeppomo/deeppomo/internal/apperr"
)

// SessionType represents the kind of a session
type SessionType string

const (
	TypeWork       SessionType = "work"
	TypeShortBreak SessionType = "short_break"
	TypeLongBreak  SessionType = "long_break"
)

// IsValid checks if the session type is valid
func (t SessionType) IsValid() bool {
	switch t {
	case TypeWork, TypeShortBreak, TypeLongBreak:
		return true
	}
	return false
}

// Session is a timed interval. Durations are seconds.
type Session struct {
	ID                 int64       `json:"id"`
	UserID             int64       `json:"user_id"`
	StartTime          time.Time   `json:"start_time"`
	EndTime            *time.Time  `json:"end_time"`
	Duration           int64       `json:"duration"`
	ActualDuration     *int64      `json:"actual_duration"`
	SessionType        SessionType `json:"session_type"`
	Completed          bool        `json:"completed"`
	InterruptionReason *string     `json:"interruption_reason"`
	CreatedAt          time.Time   `json:"created_at"`
	DeletedAt          *time.Time  `json:"deleted_at,omitempty"`

	// IsPaused is derived from the interruptions table on every read.
	IsPaused bool `json:"is_paused"`
}

// State returns running, paused or completed.
func (s *Session) State() string {
	switch {
	case s.Completed:
		return "completed"
	case s.IsPaused:
		return "paused"
	default:
		return "running"
	}
}

// Interruption is one pause interval of a session. A nil ResumedAt means the
// session is paused right now.
type Interruption struct {
	ID              int64      `json:"id"`
	SessionID       int64      `json:"session_id"`
	PausedAt        time.Time  `json:"paused_at"`
	ResumedAt       *time.Time `json:"resumed_at"`
	Duration        *int64     `json:"duration"`
	ResultedInReset bool       `json:"resulted_in_reset"`
	CreatedAt       time.Time  `json:"created_at"`
}

// PauseStats summarises the interruptions of a session.
type PauseStats struct {
	IsPaused           bool   `json:"is_paused"`
	CurrentPauseID     *int64 `json:"current_pause_id"`
	TotalPauseDuration int64  `json:"total_pause_duration"`
}

// CreateInput holds data for starting a session
type CreateInput struct {
	SessionType SessionType `json:"session_type"`
	Duration    int64       `json:"duration"`
	StartTime   *time.Time  `json:"start_time,omitempty"`
}

// Validate checks the session type and planned duration.
func (in CreateInput) Validate() error {
	if !in.SessionType.IsValid() {
		return fmt.Errorf("invalid session_type %q: %w", in.SessionType, apperr.ErrValidation)
	}
	if in.Duration <= 0 {
		return fmt.Errorf("duration must be positive: %w", apperr.ErrValidation)
	}
	return nil
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	StartTime          *time.Time   `json:"start_time,omitempty"`
	EndTime            *time.Time   `json:"end_time,omitempty"`
	Duration           *int64       `json:"duration,omitempty"`
	ActualDuration     *int64       `json:"actual_duration,omitempty"`
	SessionType        *SessionType `json:"session_type,omitempty"`
	Completed          *bool        `json:"completed,omitempty"`
	InterruptionReason *string      `json:"interruption_reason,omitempty"`
}

// Validate checks the set fields of the patch.
func (p Patch) Validate() error {
	if p.SessionType != nil && !p.SessionType.IsValid() {
		return fmt.Errorf("invalid session_type %q: %w", *p.SessionType, apperr.ErrValidation)
	}
	if p.Duration != nil && *p.Duration <= 0 {
		return fmt.Errorf("duration must be positive: %w", apperr.ErrValidation)
	}
	if p.ActualDuration != nil && *p.ActualDuration < 0 {
		return fmt.Errorf("actual_duration must not be negative: %w", apperr.ErrValidation)
	}
	return nil
}

// closes reports whether the patch marks the session as finished or
// interrupted, which defaults its end time.
func (p Patch) closes() bool {
	return p.Completed != nil || p.InterruptionReason != nil
}

// CompleteInput holds the optional values of a completion.
type CompleteInput struct {
	EndTime            *time.Time `json:"end_time,omitempty"`
	ActualDuration     *int64     `json:"actual_duration,omitempty"`
	InterruptionReason *string    `json:"interruption_reason,omitempty"`
}

// Filter selects sessions for List. Dates bound start_time inclusively.
type Filter struct {
	Completed   *bool
	SessionType SessionType
	StartDate   *time.Time
	EndDate     *time.Time
	Skip        int
	Limit       int
}

// DefaultLimit caps List when Filter.Limit is unset.
const DefaultLimit = 100

// elapsed returns the whole seconds between two instants.
func elapsed(from, to time.Time) int64 {
	return int64(to.UTC().Sub(from.UTC()) / time.Second)
}
