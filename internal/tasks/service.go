package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/deeppomo/deeppomo/internal/apperr"
	"github.com/deeppomo/deeppomo/internal/db"
	"github.com/deeppomo/deeppomo/internal/history"
	"github.com/deeppomo/deeppomo/internal/logging"
)

// CascadeHook is told about soft-delete cascades inside the transaction that
// performs them, so rows that hang off tasks can follow their state.
// TasksRestored runs before the tasks lose their deleted_at.
type CascadeHook interface {
	TasksSoftDeleted(ctx context.Context, tx *db.Tx, taskIDs []int64, at time.Time) error
	TasksRestored(ctx context.Context, tx *db.Tx, taskIDs []int64) error
}

// Service is the task tree engine
type Service struct {
	db       *db.DB
	store    *Store
	recorder *history.Recorder
	hooks    []CascadeHook
	now      func() time.Time
	log      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCascadeHook registers h for soft-delete and restore cascades.
func WithCascadeHook(h CascadeHook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, h) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new task service
func NewService(d *db.DB, opts ...Option) *Service {
	s := &Service{
		db:       d,
		store:    NewStore(d),
		recorder: history.NewRecorder(d),
		now:      db.Now,
		log:      logging.WithComponent("tasks"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return db.Normalize(s.now())
}

// Create adds a task for userID, optionally below a live parent of the same
// user, and records a created entry listing every field.
func (s *Service) Create(ctx context.Context, userID int64, input CreateInput) (*Task, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	now := s.clock()
	task := &Task{
		UserID:            userID,
		ParentID:          input.ParentID,
		Title:             input.Title,
		Description:       input.Description,
		Priority:          input.Priority,
		Status:            input.Status,
		ColorCode:         input.ColorCode,
		EstimatedDuration: input.EstimatedDuration,
		CreatedAt:         now,
	}
	if task.Status == StatusCompleted {
		task.CompletedAt = &now
	}

	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		store := s.store.WithTx(tx)

		parentPath := ""
		if input.ParentID != nil {
			parent, err := store.Get(ctx, userID, *input.ParentID, false, true)
			if err != nil {
				return fmt.Errorf("parent %w", err)
			}
			parentPath = parent.Path
		}

		if err := store.Insert(ctx, task); err != nil {
			return err
		}
		task.Path = childPath(parentPath, task.ID)
		if err := store.SetPath(ctx, task.ID, task.Path); err != nil {
			return err
		}

		return s.recorder.WithTx(tx).Record(ctx, &history.Entry{
			TaskID:    task.ID,
			UserID:    userID,
			Action:    history.ActionCreated,
			Changes:   createdChanges(task),
			Timestamp: now,
		})
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.log).Debug("task created", slog.Int64("task_id", task.ID), slog.String("path", task.Path))
	return task, nil
}

// Get returns a live task of userID.
func (s *Service) Get(ctx context.Context, userID, id int64) (*Task, error) {
	return s.store.Get(ctx, userID, id, false, false)
}

// List returns the tasks of userID matching f.
func (s *Service) List(ctx context.Context, userID int64, f Filter) ([]*Task, error) {
	if f.Status != "" && !f.Status.IsValid() {
		return nil, fmt.Errorf("invalid status %q: %w", f.Status, apperr.ErrValidation)
	}
	return s.store.List(ctx, userID, f)
}

// Update applies the set fields of patch. Fields equal to their current
// value are ignored; when nothing changes no row or history entry is
// written and the task is returned as is.
func (s *Service) Update(ctx context.Context, userID, id int64, patch Patch) (*Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var (
		result *Task
		moved  int64
	)
	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		store := s.store.WithTx(tx)

		task, err := store.Get(ctx, userID, id, false, true)
		if err != nil {
			return err
		}

		now := s.clock()
		changes := history.Changes{}

		if patch.Title.Set && *patch.Title.Value != task.Title {
			changes["title"] = history.Change{Old: task.Title, New: *patch.Title.Value}
			task.Title = *patch.Title.Value
		}
		if patch.Description.Set && !equalPtr(patch.Description.Value, task.Description) {
			changes["description"] = history.Change{Old: deref(task.Description), New: deref(patch.Description.Value)}
			task.Description = patch.Description.Value
		}
		if patch.Priority.Set && !equalPtr(patch.Priority.Value, task.Priority) {
			changes["priority"] = history.Change{Old: deref(task.Priority), New: deref(patch.Priority.Value)}
			task.Priority = patch.Priority.Value
		}
		if patch.ColorCode.Set && !equalPtr(patch.ColorCode.Value, task.ColorCode) {
			changes["color_code"] = history.Change{Old: deref(task.ColorCode), New: deref(patch.ColorCode.Value)}
			task.ColorCode = patch.ColorCode.Value
		}
		if patch.EstimatedDuration.Set && !equalPtr(patch.EstimatedDuration.Value, task.EstimatedDuration) {
			changes["estimated_duration"] = history.Change{Old: deref(task.EstimatedDuration), New: deref(patch.EstimatedDuration.Value)}
			task.EstimatedDuration = patch.EstimatedDuration.Value
		}
		if patch.Status.Set && *patch.Status.Value != task.Status {
			applyStatus(task, *patch.Status.Value, now, changes)
		}
		if patch.ParentID.Set && !equalPtr(patch.ParentID.Value, task.ParentID) {
			n, err := s.reparent(ctx, store, task, patch.ParentID.Value)
			if err != nil {
				return err
			}
			moved = n
			changes["parent_id"] = history.Change{Old: deref(task.ParentID), New: deref(patch.ParentID.Value)}
			task.ParentID = patch.ParentID.Value
		}

		if len(changes) == 0 {
			result = task
			return nil
		}

		task.UpdatedAt = &now
		if err := store.Update(ctx, task); err != nil {
			return err
		}
		if err := s.recorder.WithTx(tx).Record(ctx, &history.Entry{
			TaskID:    task.ID,
			UserID:    userID,
			Action:    history.ActionUpdated,
			Changes:   changes,
			Timestamp: now,
		}); err != nil {
			return err
		}
		result = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	if moved > 0 {
		logging.FromContext(ctx, s.log).Info("task moved",
			slog.Int64("task_id", id), slog.String("path", result.Path), slog.Int64("rows", moved))
	}
	return result, nil
}

// applyStatus sets the new status and keeps completed_at in step with it.
func applyStatus(task *Task, status Status, now time.Time, changes history.Changes) {
	changes["status"] = history.Change{Old: string(task.Status), New: string(status)}
	switch {
	case status == StatusCompleted && task.Status != StatusCompleted:
		if task.CompletedAt == nil {
			changes["completed_at"] = history.Change{Old: nil, New: formatTime(now)}
			task.CompletedAt = &now
		}
	case status != StatusCompleted && task.Status == StatusCompleted:
		changes["completed_at"] = history.Change{Old: formatTimePtr(task.CompletedAt), New: nil}
		task.CompletedAt = nil
	}
	task.Status = status
}

// reparent moves task below newParentID (nil for root) and rewrites the
// paths of its whole subtree. It rejects self-parenting and cycles.
func (s *Service) reparent(ctx context.Context, store *Store, task *Task, newParentID *int64) (int64, error) {
	parentPath := ""
	if newParentID != nil {
		if *newParentID == task.ID {
			return 0, fmt.Errorf("task %d cannot be its own parent: %w", task.ID, apperr.ErrInvalidOperation)
		}
		parent, err := store.Get(ctx, task.UserID, *newParentID, false, true)
		if err != nil {
			return 0, fmt.Errorf("parent %w", err)
		}
		if hasSegment(parent.Path, task.ID) {
			return 0, fmt.Errorf("moving task %d below %d would create a circular reference: %w",
				task.ID, parent.ID, apperr.ErrInvalidOperation)
		}
		parentPath = parent.Path
	}

	// Lock the rows about to be rewritten before touching them.
	if _, err := store.Subtree(ctx, task.UserID, task.Path, true); err != nil {
		return 0, err
	}

	newPath := childPath(parentPath, task.ID)
	n, err := store.RewritePrefix(ctx, task.UserID, task.Path, newPath)
	if err != nil {
		return 0, err
	}
	task.Path = newPath
	return n, nil
}

// Delete removes a task of userID. A soft delete marks the task and every
// live descendant with the same deleted_at and records one history entry per
// row; a hard delete drops the rows. It reports false when the task does not
// resolve for userID.
func (s *Service) Delete(ctx context.Context, userID, id int64, soft bool) (bool, error) {
	if !soft {
		return s.hardDelete(ctx, userID, id)
	}

	var affected int
	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		store := s.store.WithTx(tx)
		recorder := s.recorder.WithTx(tx)

		task, err := store.Get(ctx, userID, id, false, true)
		if err != nil {
			return err
		}

		subtree, err := store.Subtree(ctx, userID, task.Path, true)
		if err != nil {
			return err
		}

		now := s.clock()
		var ids []int64
		for _, t := range subtree {
			if t.DeletedAt != nil {
				continue
			}
			if err := store.SetDeletedAt(ctx, t.ID, &now); err != nil {
				return err
			}
			if err := recorder.Record(ctx, &history.Entry{
				TaskID:    t.ID,
				UserID:    userID,
				Action:    history.ActionSoftDeleted,
				Changes:   history.Changes{"deleted_at": {Old: nil, New: formatTime(now)}},
				Timestamp: now,
			}); err != nil {
				return err
			}
			ids = append(ids, t.ID)
		}

		for _, h := range s.hooks {
			if err := h.TasksSoftDeleted(ctx, tx, ids, now); err != nil {
				return err
			}
		}
		affected = len(ids)
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}

	logging.FromContext(ctx, s.log).Info("task soft-deleted", slog.Int64("task_id", id), slog.Int("rows", affected))
	return true, nil
}

func (s *Service) hardDelete(ctx context.Context, userID, id int64) (bool, error) {
	ok, err := s.store.Delete(ctx, userID, id)
	if err != nil {
		return false, err
	}
	if ok {
		logging.FromContext(ctx, s.log).Info("task deleted", slog.Int64("task_id", id))
	}
	return ok, nil
}

// Restore clears the soft-delete mark of a task and of every descendant
// deleted in the same cascade. Descendants deleted earlier on their own stay
// deleted. A task whose parent is still deleted cannot be restored.
func (s *Service) Restore(ctx context.Context, userID, id int64) (*Task, error) {
	var (
		result   *Task
		affected int
	)
	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		store := s.store.WithTx(tx)
		recorder := s.recorder.WithTx(tx)

		task, err := store.Get(ctx, userID, id, true, true)
		if err != nil {
			return err
		}
		if task.DeletedAt == nil {
			return fmt.Errorf("task %d is not deleted: %w", id, apperr.ErrInvalidOperation)
		}
		if task.ParentID != nil {
			parent, err := store.Get(ctx, userID, *task.ParentID, true, false)
			if err != nil {
				return err
			}
			if parent.DeletedAt != nil {
				return fmt.Errorf("parent task %d is deleted, restore it first: %w", parent.ID, apperr.ErrInvalidOperation)
			}
		}

		batch, err := store.DeletedWith(ctx, userID, task.Path, task.ID)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(batch))
		for _, t := range batch {
			ids = append(ids, t.ID)
		}

		for _, h := range s.hooks {
			if err := h.TasksRestored(ctx, tx, ids); err != nil {
				return err
			}
		}

		now := s.clock()
		for _, t := range batch {
			if err := store.SetDeletedAt(ctx, t.ID, nil); err != nil {
				return err
			}
			if err := recorder.Record(ctx, &history.Entry{
				TaskID:    t.ID,
				UserID:    userID,
				Action:    history.ActionRestored,
				Changes:   history.Changes{"deleted_at": {Old: formatTimePtr(t.DeletedAt), New: nil}},
				Timestamp: now,
			}); err != nil {
				return err
			}
		}

		task.DeletedAt = nil
		result = task
		affected = len(batch)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.log).Info("task restored", slog.Int64("task_id", id), slog.Int("rows", affected))
	return result, nil
}

// Breadcrumb returns the live ancestors of a task followed by the task
// itself, root first. Level is the depth from the root.
func (s *Service) Breadcrumb(ctx context.Context, userID, id int64) ([]Crumb, error) {
	task, err := s.store.Get(ctx, userID, id, false, false)
	if err != nil {
		return nil, err
	}

	ids, err := pathIDs(task.Path)
	if err != nil {
		return nil, fmt.Errorf("task %d has malformed path %q: %w", id, task.Path, err)
	}
	found, err := s.store.Ancestors(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*Task, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}

	crumbs := make([]Crumb, 0, len(ids))
	for _, ancestorID := range ids {
		t, ok := byID[ancestorID]
		if !ok {
			continue
		}
		crumbs = append(crumbs, Crumb{ID: t.ID, Title: t.Title, Level: t.Depth()})
	}
	return crumbs, nil
}

// Children returns every live descendant of a task, level by level and by
// path within a level. Level counts from the task (direct children are 1).
func (s *Service) Children(ctx context.Context, userID, id int64) ([]Descendant, error) {
	task, err := s.store.Get(ctx, userID, id, false, false)
	if err != nil {
		return nil, err
	}
	below, err := s.store.LiveDescendants(ctx, userID, task.Path)
	if err != nil {
		return nil, err
	}

	base := task.Depth()
	sort.Slice(below, func(i, j int) bool {
		li, lj := below[i].Depth(), below[j].Depth()
		if li != lj {
			return li < lj
		}
		return comparePaths(below[i].Path, below[j].Path) < 0
	})

	out := make([]Descendant, 0, len(below))
	for _, t := range below {
		d := Descendant{ID: t.ID, Title: t.Title, Status: t.Status, Level: t.Depth() - base}
		if t.ParentID != nil {
			d.ParentID = *t.ParentID
		}
		out = append(out, d)
	}
	return out, nil
}

// Tree returns a task with its live subtree nested below it.
func (s *Service) Tree(ctx context.Context, userID, id int64) (*Node, error) {
	task, err := s.store.Get(ctx, userID, id, false, false)
	if err != nil {
		return nil, err
	}
	below, err := s.store.LiveDescendants(ctx, userID, task.Path)
	if err != nil {
		return nil, err
	}

	sort.Slice(below, func(i, j int) bool { return comparePaths(below[i].Path, below[j].Path) < 0 })

	root := &Node{Task: task, Children: []*Node{}}
	nodes := map[int64]*Node{task.ID: root}
	for _, t := range below {
		n := &Node{Task: t, Children: []*Node{}}
		nodes[t.ID] = n
		if t.ParentID == nil {
			continue
		}
		if parent, ok := nodes[*t.ParentID]; ok {
			parent.Children = append(parent.Children, n)
		}
	}
	return root, nil
}

// History returns the audit log of a task, including soft-deleted ones.
func (s *Service) History(ctx context.Context, userID, id int64) ([]*history.Entry, error) {
	if _, err := s.store.Get(ctx, userID, id, true, false); err != nil {
		return nil, err
	}
	return s.recorder.History(ctx, id)
}

func createdChanges(t *Task) history.Changes {
	return history.Changes{
		"title":              {Old: nil, New: t.Title},
		"description":        {Old: nil, New: deref(t.Description)},
		"priority":           {Old: nil, New: deref(t.Priority)},
		"status":             {Old: nil, New: string(t.Status)},
		"parent_id":          {Old: nil, New: deref(t.ParentID)},
		"color_code":         {Old: nil, New: deref(t.ColorCode)},
		"estimated_duration": {Old: nil, New: deref(t.EstimatedDuration)},
	}
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func isNotFound(err error) bool {
	return apperr.Kind(err) == apperr.ErrNotFound
}

// Purge permanently removes tasks that have been in the trash since before
// cutoff.
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
		s.log.Info("purged deleted tasks", slog.Int64("rows", n), slog.Time("cutoff", cutoff))
	}
	return n, nil
}
