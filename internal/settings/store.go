package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/deeppomo/deeppomo/internal/apperr"
	"github.com/deeppomo/deeppomo/internal/db"
)

// Store provides persistent storage for user settings
type Store struct {
	q db.Querier
}

// NewStore creates a settings store on q
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

// WithTx returns a store bound to tx.
func (s *Store) WithTx(tx *db.Tx) *Store {
	return &Store{q: tx}
}

// Seed inserts the default settings row for a new user.
func (s *Store) Seed(ctx context.Context, userID int64) (*Settings, error) {
	set := Defaults(userID, db.Now())
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, pomodoro_duration, short_break_duration, long_break_duration,
			pomodoros_until_long_break, theme, notification_enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		set.UserID, set.PomodoroDuration, set.ShortBreakDuration, set.LongBreakDuration,
		set.PomodorosUntilLongBreak, set.Theme, set.NotificationEnabled, set.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("settings for user %d already exist: %w", userID, apperr.ErrConflict)
		}
		return nil, fmt.Errorf("failed to seed settings: %w", err)
	}
	return set, nil
}

// Get returns the settings of userID.
func (s *Store) Get(ctx context.Context, userID int64) (*Settings, error) {
	var set Settings
	err := s.q.QueryRowContext(ctx, `
		SELECT user_id, pomodoro_duration, short_break_duration, long_break_duration,
			pomodoros_until_long_break, theme, notification_enabled, updated_at
		FROM user_settings WHERE user_id = ?`, userID,
	).Scan(&set.UserID, &set.PomodoroDuration, &set.ShortBreakDuration, &set.LongBreakDuration,
		&set.PomodorosUntilLongBreak, &set.Theme, &set.NotificationEnabled, &set.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("settings for user %d: %w", userID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	set.UpdatedAt = set.UpdatedAt.UTC()
	return &set, nil
}

// Save overwrites every column of the row.
func (s *Store) Save(ctx context.Context, set *Settings) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE user_settings SET pomodoro_duration = ?, short_break_duration = ?, long_break_duration = ?,
			pomodoros_until_long_break = ?, theme = ?, notification_enabled = ?, updated_at = ?
		WHERE user_id = ?`,
		set.PomodoroDuration, set.ShortBreakDuration, set.LongBreakDuration,
		set.PomodorosUntilLongBreak, set.Theme, set.NotificationEnabled, set.UpdatedAt, set.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}
