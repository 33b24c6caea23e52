// Package settings stores per-user pomodoro defaults and preferences.
package settings

import (
	"fmt"
	"time"

	"github.com/deeppomo/deeppomo/internal/apperr"
)

// Seed values for a newly registered user.
const (
	DefaultPomodoroDuration        int64 = 1500
	DefaultShortBreakDuration      int64 = 300
	DefaultLongBreakDuration       int64 = 900
	DefaultPomodorosUntilLongBreak       = 4
	DefaultTheme                         = "light"
	DefaultNotificationEnabled           = true
)

// Settings is the one-to-one preferences row of a user. Durations are seconds.
type Settings struct {
	UserID                  int64     `json:"user_id"`
	PomodoroDuration        int64     `json:"pomodoro_duration"`
	ShortBreakDuration      int64     `json:"short_break_duration"`
	LongBreakDuration       int64     `json:"long_break_duration"`
	PomodorosUntilLongBreak int       `json:"pomodoros_until_long_break"`
	Theme                   string    `json:"theme"`
	NotificationEnabled     bool      `json:"notification_enabled"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// Defaults returns the seed settings for userID.
func Defaults(userID int64, now time.Time) *Settings {
	return &Settings{
		UserID:                  userID,
		PomodoroDuration:        DefaultPomodoroDuration,
		ShortBreakDuration:      DefaultShortBreakDuration,
		LongBreakDuration:       DefaultLongBreakDuration,
		PomodorosUntilLongBreak: DefaultPomodorosUntilLongBreak,
		Theme:                   DefaultTheme,
		NotificationEnabled:     DefaultNotificationEnabled,
		UpdatedAt:               now,
	}
}

// DurationFor maps a session type to its configured duration.
func (s *Settings) DurationFor(sessionType string) (int64, bool) {
	switch sessionType {
	case "work":
		return s.PomodoroDuration, true
	case "short_break":
		return s.ShortBreakDuration, true
	case "long_break":
		return s.LongBreakDuration, true
	default:
		return 0, false
	}
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	PomodoroDuration        *int64  `json:"pomodoro_duration,omitempty"`
	ShortBreakDuration      *int64  `json:"short_break_duration,omitempty"`
	LongBreakDuration       *int64  `json:"long_break_duration,omitempty"`
	PomodorosUntilLongBreak *int    `json:"pomodoros_until_long_break,omitempty"`
	Theme                   *string `json:"theme,omitempty"`
	NotificationEnabled     *bool   `json:"notification_enabled,omitempty"`
}

// Validate rejects non-positive durations and an empty theme.
func (p Patch) Validate() error {
	for name, v := range map[string]*int64{
		"pomodoro_duration":    p.PomodoroDuration,
		"short_break_duration": p.ShortBreakDuration,
		"long_break_duration":  p.LongBreakDuration,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive: %w", name, apperr.ErrValidation)
		}
	}
	if p.PomodorosUntilLongBreak != nil && *p.PomodorosUntilLongBreak <= 0 {
		return fmt.Errorf("pomodoros_until_long_break must be positive: %w", apperr.ErrValidation)
	}
	if p.Theme != nil && *p.Theme == "" {
		return fmt.Errorf("theme must not be empty: %w", apperr.ErrValidation)
	}
	return nil
}

// Apply copies the set fields of p onto s and reports whether anything changed.
func (p Patch) Apply(s *Settings) bool {
	changed := false
	if p.PomodoroDuration != nil && *p.PomodoroDuration != s.PomodoroDuration {
		s.PomodoroDuration = *p.PomodoroDuration
		changed = true
	}
	if p.ShortBreakDuration != nil && *p.ShortBreakDuration != s.ShortBreakDuration {
		s.ShortBreakDuration = *p.ShortBreakDuration
		changed = true
	}
	if p.LongBreakDuration != nil && *p.LongBreakDuration != s.LongBreakDuration {
		s.LongBreakDuration = *p.LongBreakDuration
		changed = true
	}
	if p.PomodorosUntilLongBreak != nil && *p.PomodorosUntilLongBreak != s.PomodorosUntilLongBreak {
		s.PomodorosUntilLongBreak = *p.PomodorosUntilLongBreak
		changed = true
	}
	if p.Theme != nil && *p.Theme != s.Theme {
		s.Theme = *p.Theme
		changed = true
	}
	if p.NotificationEnabled != nil && *p.NotificationEnabled != s.NotificationEnabled {
		s.NotificationEnabled = *p.NotificationEnabled
		changed = true
	}
	return changed
}
