package pomodoro

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deeppomo/deeppomo/internal/apperr"
	"github.com/deeppomo/deeppomo/internal/db"
	"github.com/deeppomo/deeppomo/internal/logging"
	"github.com/deeppomo/deeppomo/internal/settings"
)

// CascadeHook is told about a session soft delete inside the transaction
// that performs it.
type CascadeHook interface {
	SessionSoftDeleted(ctx context.Context, tx *db.Tx, sessionID int64, at time.Time) error
}

// Service is the pomodoro session engine
type Service struct {
	db       *db.DB
	store    *Store
	settings *settings.Store
	hooks    []CascadeHook
	now      func() time.Time
	log      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCascadeHook registers h for session soft deletes.
func WithCascadeHook(h CascadeHook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, h) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new session service
func NewService(d *db.DB, opts ...Option) *Service {
	s := &Service{
		db:       d,
		store:    NewStore(d),
		settings: settings.NewStore(d),
		now:      db.Now,
		log:      logging.WithComponent("pomodoro"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return db.Normalize(s.now())
}

// Create starts a session for userID. StartTime defaults to now.
func (s *Service) Create(ctx context.Context, userID int64, input CreateInput) (*Session, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	now := s.clock()
	sess := &Session{
		UserID:      userID,
		StartTime:   now,
		Duration:    input.Duration,
		SessionType: input.SessionType,
		CreatedAt:   now,
	}
	if input.StartTime != nil {
		sess.StartTime = db.Normalize(*input.StartTime)
	}

	if err := s.store.Insert(ctx, sess); err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.log).Debug("session created",
		slog.Int64("session_id", sess.ID), slog.String("type", string(sess.SessionType)))
	return sess, nil
}

// CreatePreset starts a session now whose planned duration comes from the
// user's settings for sessionType.
func (s *Service) CreatePreset(ctx context.Context, userID int64, sessionType SessionType) (*Session, error) {
	if !sessionType.IsValid() {
		return nil, fmt.Errorf("invalid session_type %q: %w", sessionType, apperr.ErrValidation)
	}
	set, err := s.settings.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	duration, ok := set.DurationFor(string(sessionType))
	if !ok {
		return nil, fmt.Errorf("no duration configured for %q: %w", sessionType, apperr.ErrValidation)
	}
	return s.Create(ctx, userID, CreateInput{SessionType: sessionType, Duration: duration})
}

// Get returns a live session of userID.
func (s *Service) Get(ctx context.Context, userID, id int64) (*Session, error) {
	return s.store.Get(ctx, userID, id, false)
}

// List returns the sessions of userID matching f.
func (s *Service) List(ctx context.Context, userID int64, f Filter) ([]*Session, error) {
	if f.SessionType != "" && !f.SessionType.IsValid() {
		return nil, fmt.Errorf("invalid session_type %q: %w", f.SessionType, apperr.ErrValidation)
	}
	return s.store.List(ctx, userID, f)
}

// Update applies the set fields of patch. Setting completed or an
// interruption reason closes the session: end_time defaults to now and
// actual_duration to the elapsed seconds. A session left completed has its
// open pause closed.
func (s *Service) Update(ctx context.Context, userID, id int64, patch Patch) (*Session, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var result *Session
	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		store := s.store.WithTx(tx)
		sess, err := store.Get(ctx, userID, id, true)
		if err != nil {
			return err
		}

		now := s.clock()
		if patch.StartTime != nil {
			sess.StartTime = db.Normalize(*patch.StartTime)
		}
		if patch.EndTime != nil {
			end := db.Normalize(*patch.EndTime)
			sess.EndTime = &end
		}
		if patch.Duration != nil {
			sess.Duration = *patch.Duration
		}
		if patch.ActualDuration != nil {
			sess.ActualDuration = patch.ActualDuration
		}
		if patch.SessionType != nil {
			sess.SessionType = *patch.SessionType
		}
		if patch.Completed != nil {
			sess.Completed = *patch.Completed
		}
		if patch.InterruptionReason != nil {
			sess.InterruptionReason = patch.InterruptionReason
		}

		if patch.closes() {
			if sess.EndTime == nil {
				sess.EndTime = &now
			}
			if sess.ActualDuration == nil {
				d := elapsed(sess.StartTime, *sess.EndTime)
				sess.ActualDuration = &d
			}
		}
		if err := checkSpan(sess); err != nil {
			return err
		}

		if err := store.Update(ctx, sess); err != nil {
			return err
		}
		if sess.Completed && sess.IsPaused {
			if err := s.closePause(ctx, store, sess, *sess.EndTime); err != nil {
				return err
			}
		}
		result = sess
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.log).Debug("session updated", slog.Int64("session_id", id))
	return result, nil
}

// Complete marks a session completed. Completing twice overwrites the
// previous values.
func (s *Service) Complete(ctx context.Context, userID, id int64, input CompleteInput) (*Session, error) {
	if input.ActualDuration != nil && *input.ActualDuration < 0 {
		return nil, fmt.Errorf("actual_duration must not be negative: %w", apperr.ErrValidation)
	}

	var result *Session
	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		store := s.store.WithTx(tx)
		sess, err := store.Get(ctx, userID, id, true)
		if err != nil {
			return err
		}

		end := s.clock()
		if input.EndTime != nil {
			end = db.Normalize(*input.EndTime)
		}
		sess.Completed = true
		sess.EndTime = &end
		if input.ActualDuration != nil {
			sess.ActualDuration = input.ActualDuration
		} else {
			d := elapsed(sess.StartTime, end)
			sess.ActualDuration = &d
		}
		if input.InterruptionReason != nil {
			sess.InterruptionReason = input.InterruptionReason
		}
		if err := checkSpan(sess); err != nil {
			return err
		}

		if err := store.Update(ctx, sess); err != nil {
			return err
		}
		if sess.IsPaused {
			if err := s.closePause(ctx, store, sess, end); err != nil {
				return err
			}
		}
		result = sess
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.log).Info("session completed",
		slog.Int64("session_id", id), slog.Int64("actual_duration", *result.ActualDuration))
	return result, nil
}

// Delete removes a session of userID and reports whether one was found. A
// soft delete only resolves live sessions and is passed on to the cascade
// hooks; a hard delete also removes a session already in the trash.
func (s *Service) Delete(ctx context.Context, userID, id int64, soft bool) (bool, error) {
	if !soft {
		ok, err := s.store.Delete(ctx, userID, id)
		if err != nil {
			return false, err
		}
		if ok {
			logging.FromContext(ctx, s.log).Info("session deleted", slog.Int64("session_id", id))
		}
		return ok, nil
	}

	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		store := s.store.WithTx(tx)
		if _, err := store.Get(ctx, userID, id, true); err != nil {
			return err
		}
		now := s.clock()
		if err := store.SetDeletedAt(ctx, id, now); err != nil {
			return err
		}
		for _, h := range s.hooks {
			if err := h.SessionSoftDeleted(ctx, tx, id, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if apperr.Kind(err) == apperr.ErrNotFound {
			return false, nil
		}
		return false, err
	}

	logging.FromContext(ctx, s.log).Info("session soft-deleted", slog.Int64("session_id", id))
	return true, nil
}

// Pause opens an interruption. Pausing a completed or already paused
// session changes nothing and returns its current state.
func (s *Service) Pause(ctx context.Context, userID, id int64) (*Session, error) {
	var result *Session
	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		store := s.store.WithTx(tx)
		sess, err := store.Get(ctx, userID, id, true)
		if err != nil {
			return err
		}
		result = sess
		if sess.Completed || sess.IsPaused {
			return nil
		}

		now := s.clock()
		if err := store.InsertInterruption(ctx, &Interruption{
			SessionID: id,
			PausedAt:  now,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		sess.IsPaused = true
		return nil
	})
	if apperr.Kind(err) == apperr.ErrConflict {
		// A concurrent pause got there first; the session is paused either way.
		return s.store.Get(ctx, userID, id, false)
	}
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.log).Debug("session paused", slog.Int64("session_id", id))
	return result, nil
}

// Resume closes the open interruption. Resuming a completed or running
// session changes nothing and returns its current state.
func (s *Service) Resume(ctx context.Context, userID, id int64) (*Session, error) {
	var result *Session
	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		store := s.store.WithTx(tx)
		sess, err := store.Get(ctx, userID, id, true)
		if err != nil {
			return err
		}
		result = sess
		if sess.Completed || !sess.IsPaused {
			return nil
		}
		return s.closePause(ctx, store, sess, s.clock())
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.log).Debug("session resumed", slog.Int64("session_id", id))
	return result, nil
}

// closePause ends the open interruption of sess at the given instant, or at
// its pause time when that is later.
func (s *Service) closePause(ctx context.Context, store *Store, sess *Session, at time.Time) error {
	open, err := store.OpenInterruption(ctx, sess.ID)
	if err != nil {
		if apperr.Kind(err) == apperr.ErrNotFound {
			sess.IsPaused = false
			return nil
		}
		return err
	}
	if at.Before(open.PausedAt) {
		at = open.PausedAt
	}
	if err := store.CloseInterruption(ctx, open.ID, at, elapsed(open.PausedAt, at)); err != nil {
		return err
	}
	sess.IsPaused = false
	return nil
}

// PauseStats returns the pause summary of a live session of userID.
func (s *Service) PauseStats(ctx context.Context, userID, id int64) (*PauseStats, error) {
	if _, err := s.store.Get(ctx, userID, id, false); err != nil {
		return nil, err
	}
	return s.store.PauseStats(ctx, id)
}

// Interruptions lists the pauses of a live session of userID, oldest first.
func (s *Service) Interruptions(ctx context.Context, userID, id int64) ([]*Interruption, error) {
	if _, err := s.store.Get(ctx, userID, id, false); err != nil {
		return nil, err
	}
	return s.store.Interruptions(ctx, id)
}

func checkSpan(sess *Session) error {
	if sess.EndTime != nil && !sess.EndTime.After(sess.StartTime) {
		return fmt.Errorf("end_time must be after start_time: %w", apperr.ErrValidation)
	}
	return nil
}

// Purge permanently removes sessions soft-deleted before cutoff.
func (s *Service) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		var err error
		n, err = s.store.WithTx(tx).Purge(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("purged deleted sessions", slog.Int64("rows", n), slog.Time("cutoff", cutoff))
	}
	return n, nil
}
