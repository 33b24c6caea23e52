package tasks

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

const taskColumns = `id, user_id, parent_id, path, title, description, priority, status,
	color_code, estimated_duration, created_at, updated_at, completed_at, deleted_at`

// Store provides persistent storage for tasks
type Store struct {
	q db.Querier
}

// NewStore creates a task store on q
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

func scanTask(row scanner) (*Task, error) {
	var (
		t                                 Task
		parentID, estimated               sql.NullInt64
		description, priority, colorCode  sql.NullString
		status                            string
		updatedAt, completedAt, deletedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &parentID, &t.Path, &t.Title, &description, &priority, &status,
		&colorCode, &estimated, &t.CreatedAt, &updatedAt, &completedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	t.ParentID = db.Int64Ptr(parentID)
	t.Description = db.StringPtr(description)
	if priority.Valid {
		p := Priority(priority.String)
		t.Priority = &p
	}
	t.Status = Status(status)
	t.ColorCode = db.StringPtr(colorCode)
	t.EstimatedDuration = db.Int64Ptr(estimated)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = db.TimePtr(updatedAt)
	t.CompletedAt = db.TimePtr(completedAt)
	t.DeletedAt = db.TimePtr(deletedAt)
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*Task, error) {
	defer rows.Close()
	out := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func priorityArg(p *Priority) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

// Insert stores t with an empty path and fills in its id. The caller sets
// the path once the id is known.
func (s *Store) Insert(ctx context.Context, t *Task) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO tasks (user_id, parent_id, path, title, description, priority, status,
			color_code, estimated_duration, created_at, completed_at)
		VALUES (?, ?, '', ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		t.UserID, db.Nullable(t.ParentID), t.Title, db.Nullable(t.Description), priorityArg(t.Priority),
		string(t.Status), db.Nullable(t.ColorCode), db.Nullable(t.EstimatedDuration), t.CreatedAt,
		db.Nullable(t.CompletedAt),
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// SetPath writes the materialized path of a single task.
func (s *Store) SetPath(ctx context.Context, id int64, path string) error {
	if _, err := s.q.ExecContext(ctx, `UPDATE tasks SET path = ? WHERE id = ?`, path, id); err != nil {
		return fmt.Errorf("failed to set task path: %w", err)
	}
	return nil
}

// Get returns a task owned by userID. Soft-deleted tasks are only returned
// when includeDeleted is set. lock takes a row lock where the dialect has one.
func (s *Store) Get(ctx context.Context, userID, id int64, includeDeleted, lock bool) (*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ? AND user_id = ?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if lock {
		query += s.q.Dialect().ForUpdate()
	}

	t, err := scanTask(s.q.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// List returns tasks matching f ordered by id.
func (s *Store) List(ctx context.Context, userID int64, f Filter) ([]*Task, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.ParentID != nil {
		where = append(where, "parent_id = ?")
		args = append(args, *f.ParentID)
	} else {
		where = append(where, "parent_id IS NULL")
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
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
		`SELECT `+taskColumns+` FROM tasks WHERE `+strings.Join(where, " AND ")+` ORDER BY id LIMIT ? OFFSET ?`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return scanTasks(rows)
}

// Subtree returns the task at path and all of its descendants, live or not.
func (s *Store) Subtree(ctx context.Context, userID int64, path string, lock bool) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = ? AND (path = ? OR path LIKE ?) ORDER BY id`
	if lock {
		query += s.q.Dialect().ForUpdate()
	}
	rows, err := s.q.QueryContext(ctx, query, userID, path, descendantPattern(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load subtree: %w", err)
	}
	return scanTasks(rows)
}

// LiveDescendants returns the non-deleted tasks strictly below path.
func (s *Store) LiveDescendants(ctx context.Context, userID int64, path string) ([]*Task, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE user_id = ? AND path LIKE ? AND deleted_at IS NULL`,
		userID, descendantPattern(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load descendants: %w", err)
	}
	return scanTasks(rows)
}

// DeletedWith returns the rows of the subtree at path that were soft-deleted
// in the same cascade as rootID, i.e. share its deleted_at.
func (s *Store) DeletedWith(ctx context.Context, userID int64, path string, rootID int64) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = ? AND (path = ? OR path LIKE ?)
		AND deleted_at = (SELECT r.deleted_at FROM tasks r WHERE r.id = ?)
		ORDER BY id` + s.q.Dialect().ForUpdate()
	rows, err := s.q.QueryContext(ctx, query, userID, path, descendantPattern(path), rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deleted subtree: %w", err)
	}
	return scanTasks(rows)
}

// Ancestors returns the live tasks among ids owned by userID.
func (s *Store) Ancestors(ctx context.Context, userID int64, ids []int64) ([]*Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? AND deleted_at IS NULL AND id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load ancestors: %w", err)
	}
	return scanTasks(rows)
}

// RewritePrefix replaces oldPath with newPath at the start of every path in
// the subtree rooted at oldPath, and returns the number of rows touched.
func (s *Store) RewritePrefix(ctx context.Context, userID int64, oldPath, newPath string) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE tasks SET path = CAST(? AS TEXT) || substr(path, CAST(? AS INTEGER))
		WHERE user_id = ? AND (path = ? OR path LIKE ?)`,
		newPath, len(oldPath)+1, userID, oldPath, descendantPattern(oldPath))
	if err != nil {
		return 0, fmt.Errorf("failed to rewrite subtree paths: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Update writes every mutable column of t.
func (s *Store) Update(ctx context.Context, t *Task) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE tasks SET parent_id = ?, path = ?, title = ?, description = ?, priority = ?, status = ?,
			color_code = ?, estimated_duration = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND user_id = ?`,
		db.Nullable(t.ParentID), t.Path, t.Title, db.Nullable(t.Description), priorityArg(t.Priority),
		string(t.Status), db.Nullable(t.ColorCode), db.Nullable(t.EstimatedDuration),
		db.Nullable(t.UpdatedAt), db.Nullable(t.CompletedAt), t.ID, t.UserID,
	)
	if err != nil {
		if db.IsCheckViolation(err) {
			return fmt.Errorf("task %d rejected by store constraint: %w", t.ID, apperr.ErrConflict)
		}
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// SetDeletedAt sets or clears the soft-delete mark of one task.
func (s *Store) SetDeletedAt(ctx context.Context, id int64, at *time.Time) error {
	if _, err := s.q.ExecContext(ctx, `UPDATE tasks SET deleted_at = ? WHERE id = ?`, db.Nullable(at), id); err != nil {
		return fmt.Errorf("failed to set task deleted_at: %w", err)
	}
	return nil
}

// Delete removes a task row. Descendants, history and associations go with
// it through the foreign keys.
func (s *Store) Delete(ctx context.Context, userID, id int64) (bool, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Purge drops every task, of any user, soft-deleted before cutoff, and
// returns how many matched. Their history goes with them through the
// foreign keys.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoff = db.Normalize(cutoff)
	var n int64
	if err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE deleted_at IS NOT NULL AND deleted_at < ?`, cutoff,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count purgeable tasks: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM tasks WHERE deleted_at IS NOT NULL AND deleted_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to purge tasks: %w", err)
	}
	return n, nil
}
