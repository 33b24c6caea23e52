package pomodoro

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deeppomo/deeppomo/internal/apperr"
	"github.com/deeppomo/deeppomo/internal/db"
)

const sessionColumns = `id, user_id, start_time, end_time, duration, actual_duration, session_type,
	completed, interruption_reason, created_at, deleted_at,
	EXISTS (SELECT 1 FROM pomodoro_session_interruptions i
		WHERE i.session_id = pomodoro_sessions.id AND i.resumed_at IS NULL)`

const interruptionColumns = `id, session_id, paused_at, resumed_at, duration, resulted_in_reset, created_at`

// Store provides persistent storage for sessions and interruptions
type Store struct {
	q db.Querier
}

// NewStore creates a session store on q
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

// WithTx returns a store bound to tx.
func (s *Store) WithTx(tx *db.Tx) *Store {
	return &Store{q: tx}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s                  Session
		sessionType        string
		endTime, deletedAt sql.NullTime
		actual             sql.NullInt64
		reason             sql.NullString
	)
	err := row.Scan(&s.ID, &s.UserID, &s.StartTime, &endTime, &s.Duration, &actual, &sessionType,
		&s.Completed, &reason, &s.CreatedAt, &deletedAt, &s.IsPaused)
	if err != nil {
		return nil, err
	}
	s.StartTime = s.StartTime.UTC()
	s.EndTime = db.TimePtr(endTime)
	s.ActualDuration = db.Int64Ptr(actual)
	s.SessionType = SessionType(sessionType)
	s.InterruptionReason = db.StringPtr(reason)
	s.CreatedAt = s.CreatedAt.UTC()
	s.DeletedAt = db.TimePtr(deletedAt)
	return &s, nil
}

func scanInterruption(row scanner) (*Interruption, error) {
	var (
		in        Interruption
		resumedAt sql.NullTime
		duration  sql.NullInt64
	)
	err := row.Scan(&in.ID, &in.SessionID, &in.PausedAt, &resumedAt, &duration, &in.ResultedInReset, &in.CreatedAt)
	if err != nil {
		return nil, err
	}
	in.PausedAt = in.PausedAt.UTC()
	in.ResumedAt = db.TimePtr(resumedAt)
	in.Duration = db.Int64Ptr(duration)
	in.CreatedAt = in.CreatedAt.UTC()
	return &in, nil
}

// Insert stores a new session and fills in its id.
func (s *Store) Insert(ctx context.Context, sess *Session) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO pomodoro_sessions (user_id, start_time, duration, session_type, completed, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		sess.UserID, sess.StartTime, sess.Duration, string(sess.SessionType), sess.Completed, sess.CreatedAt,
	).Scan(&sess.ID)
	if err != nil {
		if db.IsCheckViolation(err) {
			return fmt.Errorf("session rejected by store constraint: %w", apperr.ErrValidation)
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Get returns a live session owned by userID. lock takes a row lock where
// the dialect has one.
func (s *Store) Get(ctx context.Context, userID, id int64, lock bool) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM pomodoro_sessions
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL`
	if lock {
		query += s.q.Dialect().ForUpdate()
	}

	sess, err := scanSession(s.q.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// List returns live sessions matching f, newest start first.
func (s *Store) List(ctx context.Context, userID int64, f Filter) ([]*Session, error) {
	var (
		where = []string{"user_id = ?", "deleted_at IS NULL"}
		args  = []any{userID}
	)
	if f.Completed != nil {
		where = append(where, "completed = ?")
		args = append(args, *f.Completed)
	}
	if f.SessionType != "" {
		where = append(where, "session_type = ?")
		args = append(args, string(f.SessionType))
	}
	if f.StartDate != nil {
		where = append(where, "start_time >= ?")
		args = append(args, db.Normalize(*f.StartDate))
	}
	if f.EndDate != nil {
		where = append(where, "start_time <= ?")
		args = append(args, db.Normalize(*f.EndDate))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	skip := f.Skip
	if skip < 0 {
		skip = 0
	}
	args = append(args, limit, skip)

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM pomodoro_sessions WHERE `+strings.Join(where, " AND ")+
			` ORDER BY start_time DESC, id DESC LIMIT ? OFFSET ?`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	out := []*Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Update writes every mutable column of sess.
func (s *Store) Update(ctx context.Context, sess *Session) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE pomodoro_sessions SET start_time = ?, end_time = ?, duration = ?, actual_duration = ?,
			session_type = ?, completed = ?, interruption_reason = ?
		WHERE id = ? AND user_id = ?`,
		sess.StartTime, db.Nullable(sess.EndTime), sess.Duration, db.Nullable(sess.ActualDuration),
		string(sess.SessionType), sess.Completed, db.Nullable(sess.InterruptionReason), sess.ID, sess.UserID,
	)
	if err != nil {
		if db.IsCheckViolation(err) {
			return fmt.Errorf("session %d rejected by store constraint: %w", sess.ID, apperr.ErrValidation)
		}
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// SetDeletedAt soft-deletes one session.
func (s *Store) SetDeletedAt(ctx context.Context, id int64, at time.Time) error {
	if _, err := s.q.ExecContext(ctx, `UPDATE pomodoro_sessions SET deleted_at = ? WHERE id = ?`, at, id); err != nil {
		return fmt.Errorf("failed to set session deleted_at: %w", err)
	}
	return nil
}

// Delete removes a session row, live or trashed, together with its
// interruptions and associations.
func (s *Store) Delete(ctx context.Context, userID, id int64) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM pomodoro_sessions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// OpenInterruption returns the interruption of a session that has not been
// resumed yet.
func (s *Store) OpenInterruption(ctx context.Context, sessionID int64) (*Interruption, error) {
	in, err := scanInterruption(s.q.QueryRowContext(ctx, `
		SELECT `+interruptionColumns+` FROM pomodoro_session_interruptions
		WHERE session_id = ? AND resumed_at IS NULL
		ORDER BY paused_at DESC, id DESC LIMIT 1`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("open interruption of session %d: %w", sessionID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open interruption: %w", err)
	}
	return in, nil
}

// InsertInterruption opens a pause. A second open pause of the same session
// fails with ErrConflict.
func (s *Store) InsertInterruption(ctx context.Context, in *Interruption) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO pomodoro_session_interruptions (session_id, paused_at, resulted_in_reset, created_at)
		VALUES (?, ?, ?, ?) RETURNING id`,
		in.SessionID, in.PausedAt, in.ResultedInReset, in.CreatedAt,
	).Scan(&in.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("session %d is already paused: %w", in.SessionID, apperr.ErrConflict)
		}
		return fmt.Errorf("failed to insert interruption: %w", err)
	}
	return nil
}

// CloseInterruption records the resume of an open pause.
func (s *Store) CloseInterruption(ctx context.Context, id int64, resumedAt time.Time, duration int64) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE pomodoro_session_interruptions SET resumed_at = ?, duration = ?
		WHERE id = ? AND resumed_at IS NULL`, resumedAt, duration, id)
	if err != nil {
		return fmt.Errorf("failed to close interruption: %w", err)
	}
	return nil
}

// Interruptions returns every pause of a session, oldest first.
func (s *Store) Interruptions(ctx context.Context, sessionID int64) ([]*Interruption, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+interruptionColumns+` FROM pomodoro_session_interruptions
		WHERE session_id = ? ORDER BY paused_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interruptions: %w", err)
	}
	defer rows.Close()

	out := []*Interruption{}
	for rows.Next() {
		in, err := scanInterruption(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interruption: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// PauseStats computes the pause summary of a session from its interruption
// rows alone.
func (s *Store) PauseStats(ctx context.Context, sessionID int64) (*PauseStats, error) {
	var (
		stats  PauseStats
		openID sql.NullInt64
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN resumed_at IS NOT NULL THEN duration ELSE 0 END), 0),
			MAX(CASE WHEN resumed_at IS NULL THEN id END)
		FROM pomodoro_session_interruptions WHERE session_id = ?`, sessionID,
	).Scan(&stats.TotalPauseDuration, &openID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute pause stats: %w", err)
	}
	stats.CurrentPauseID = db.Int64Ptr(openID)
	stats.IsPaused = openID.Valid
	return &stats, nil
}

// ListForTask returns the live sessions of userID linked to taskID through a
// live association, newest start first.
func (s *Store) ListForTask(ctx context.Context, userID, taskID int64) ([]*Session, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM pomodoro_sessions
		WHERE user_id = ? AND deleted_at IS NULL AND id IN (
			SELECT a.pomodoro_session_id FROM pomodoro_task_associations a
			WHERE a.task_id = ? AND a.deleted_at IS NULL)
		ORDER BY start_time DESC, id DESC`, userID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for task: %w", err)
	}
	defer rows.Close()

	out := []*Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Purge drops every session, of any user, soft-deleted before cutoff, and
// returns how many matched.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoff = db.Normalize(cutoff)
	var n int64
	if err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pomodoro_sessions WHERE deleted_at IS NOT NULL AND deleted_at < ?`, cutoff,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count purgeable sessions: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM pomodoro_sessions WHERE deleted_at IS NOT NULL AND deleted_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return n, nil
}
