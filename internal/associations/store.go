package associations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/deeppomo/deeppomo/internal/db"
)

const associationColumns = `id, pomodoro_session_id, task_id, time_spent, notes, created_at, deleted_at`

// Store provides persistent storage for session-task links
type Store struct {
	q db.Querier
}

// NewStore creates an association store on q
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

// WithTx returns a store bound to tx.
func (s *Store) WithTx(tx *db.Tx) *Store {
	return &Store{q: tx}
}

// Insert stores a link and fills in its id.
func (s *Store) Insert(ctx context.Context, a *Association) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO pomodoro_task_associations (pomodoro_session_id, task_id, time_spent, notes, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`,
		a.SessionID, a.TaskID, db.Nullable(a.TimeSpent), db.Nullable(a.Notes), a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to insert association: %w", err)
	}
	return nil
}

// ForSession returns the live links of a session, oldest first.
func (s *Store) ForSession(ctx context.Context, sessionID int64) ([]*Association, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+associationColumns+` FROM pomodoro_task_associations
		WHERE pomodoro_session_id = ? AND deleted_at IS NULL ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list associations: %w", err)
	}
	defer rows.Close()

	out := []*Association{}
	for rows.Next() {
		var (
			a         Association
			timeSpent sql.NullInt64
			notes     sql.NullString
			deletedAt sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.TaskID, &timeSpent, &notes, &a.CreatedAt, &deletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan association: %w", err)
		}
		a.TimeSpent = db.Int64Ptr(timeSpent)
		a.Notes = db.StringPtr(notes)
		a.CreatedAt = a.CreatedAt.UTC()
		a.DeletedAt = db.TimePtr(deletedAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// MarkTasksDeleted soft-deletes the live links of the given tasks.
func (s *Store) MarkTasksDeleted(ctx context.Context, taskIDs []int64, at time.Time) (int64, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	args := append([]any{at}, idArgs(taskIDs)...)
	res, err := s.q.ExecContext(ctx, `
		UPDATE pomodoro_task_associations SET deleted_at = ?
		WHERE deleted_at IS NULL AND task_id IN (`+placeholders(len(taskIDs))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to cascade task delete to associations: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// UnmarkTasksDeleted revives the links that went down with their task, as
// long as their session is still live. It must run while the tasks still
// carry their deleted_at.
func (s *Store) UnmarkTasksDeleted(ctx context.Context, taskIDs []int64) (int64, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE pomodoro_task_associations SET deleted_at = NULL
		WHERE task_id IN (`+placeholders(len(taskIDs))+`)
		AND deleted_at = (SELECT t.deleted_at FROM tasks t WHERE t.id = pomodoro_task_associations.task_id)
		AND EXISTS (SELECT 1 FROM pomodoro_sessions s
			WHERE s.id = pomodoro_task_associations.pomodoro_session_id AND s.deleted_at IS NULL)`,
		idArgs(taskIDs)...)
	if err != nil {
		return 0, fmt.Errorf("failed to cascade task restore to associations: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MarkSessionDeleted soft-deletes the live links of a session.
func (s *Store) MarkSessionDeleted(ctx context.Context, sessionID int64, at time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE pomodoro_task_associations SET deleted_at = ?
		WHERE pomodoro_session_id = ? AND deleted_at IS NULL`, at, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to cascade session delete to associations: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func idArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
