// Package associations links pomodoro sessions to the tasks worked on during
// them, and keeps those links in step with soft deletes on either side.
package associations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deeppomo/deeppomo/internal/apperr"
	"github.com/deeppomo/deeppomo/internal/db"
	"github.com/deeppomo/deeppomo/internal/logging"
	"github.com/deeppomo/deeppomo/internal/pomodoro"
	"github.com/deeppomo/deeppomo/internal/tasks"
)

// Association links one session to one task.
type Association struct {
	ID        int64      `json:"id"`
	SessionID int64      `json:"pomodoro_session_id"`
	TaskID    int64      `json:"task_id"`
	TimeSpent *int64     `json:"time_spent"`
	Notes     *string    `json:"notes"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Input holds data for creating a link
type Input struct {
	SessionID int64   `json:"pomodoro_session_id"`
	TaskID    int64   `json:"task_id"`
	TimeSpent *int64  `json:"time_spent,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// Service creates and reads links and implements the cascade hooks of the
// task and session engines.
type Service struct {
	db       *db.DB
	store    *Store
	tasks    *tasks.Store
	sessions *pomodoro.Store
	now      func() time.Time
	log      *slog.Logger
}

var (
	_ tasks.CascadeHook    = (*Service)(nil)
	_ pomodoro.CascadeHook = (*Service)(nil)
)

// NewService creates a new association service
func NewService(d *db.DB) *Service {
	return &Service{
		db:       d,
		store:    NewStore(d),
		tasks:    tasks.NewStore(d),
		sessions: pomodoro.NewStore(d),
		now:      db.Now,
		log:      logging.WithComponent("associations"),
	}
}

// Associate links a live session and a live task, both owned by userID.
func (s *Service) Associate(ctx context.Context, userID int64, in Input) (*Association, error) {
	if in.TimeSpent != nil && *in.TimeSpent < 0 {
		return nil, fmt.Errorf("time_spent must not be negative: %w", apperr.ErrValidation)
	}

	a := &Association{
		SessionID: in.SessionID,
		TaskID:    in.TaskID,
		TimeSpent: in.TimeSpent,
		Notes:     in.Notes,
		CreatedAt: db.Normalize(s.now()),
	}
	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		// Lock both endpoints so neither can be deleted under the new link.
		if _, err := s.sessions.WithTx(tx).Get(ctx, userID, in.SessionID, true); err != nil {
			return err
		}
		if _, err := s.tasks.WithTx(tx).Get(ctx, userID, in.TaskID, false, true); err != nil {
			return err
		}
		return s.store.WithTx(tx).Insert(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.log).Debug("task linked to session",
		slog.Int64("session_id", a.SessionID), slog.Int64("task_id", a.TaskID))
	return a, nil
}

// TasksFor returns the live links of a session. A session that does not
// resolve for userID yields an empty list.
func (s *Service) TasksFor(ctx context.Context, userID, sessionID int64) ([]*Association, error) {
	if _, err := s.sessions.Get(ctx, userID, sessionID, false); err != nil {
		if apperr.Kind(err) == apperr.ErrNotFound {
			return []*Association{}, nil
		}
		return nil, err
	}
	return s.store.ForSession(ctx, sessionID)
}

// SessionsFor returns the live sessions linked to a task. A task that does
// not resolve for userID yields an empty list.
func (s *Service) SessionsFor(ctx context.Context, userID, taskID int64) ([]*pomodoro.Session, error) {
	if _, err := s.tasks.Get(ctx, userID, taskID, false, false); err != nil {
		if apperr.Kind(err) == apperr.ErrNotFound {
			return []*pomodoro.Session{}, nil
		}
		return nil, err
	}
	return s.sessions.ListForTask(ctx, userID, taskID)
}

// TasksSoftDeleted hides the links of tasks that were just soft-deleted.
func (s *Service) TasksSoftDeleted(ctx context.Context, tx *db.Tx, taskIDs []int64, at time.Time) error {
	n, err := s.store.WithTx(tx).MarkTasksDeleted(ctx, taskIDs, at)
	if err != nil {
		return err
	}
	logging.FromContext(ctx, s.log).Debug("associations hidden with tasks", slog.Int64("rows", n))
	return nil
}

// TasksRestored brings back the links hidden by the cascade being undone.
func (s *Service) TasksRestored(ctx context.Context, tx *db.Tx, taskIDs []int64) error {
	n, err := s.store.WithTx(tx).UnmarkTasksDeleted(ctx, taskIDs)
	if err != nil {
		return err
	}
	logging.FromContext(ctx, s.log).Debug("associations restored with tasks", slog.Int64("rows", n))
	return nil
}

// SessionSoftDeleted hides the links of a session that was just soft-deleted.
func (s *Service) SessionSoftDeleted(ctx context.Context, tx *db.Tx, sessionID int64, at time.Time) error {
	n, err := s.store.WithTx(tx).MarkSessionDeleted(ctx, sessionID, at)
	if err != nil {
		return err
	}
	logging.FromContext(ctx, s.log).Debug("associations hidden with session",
		slog.Int64("session_id", sessionID), slog.Int64("rows", n))
	return nil
}
