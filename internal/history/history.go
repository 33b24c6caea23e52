// Package history keeps the append-only audit log of task mutations.
//
// Entries are written by the task engine inside the transaction that made
// the change, so a rolled back mutation never leaves an entry behind.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/deeppomo/deeppomo/internal/db"
)

// Action is the kind of mutation an entry records
type Action string

const (
	ActionCreated     Action = "created"
	ActionUpdated     Action = "updated"
	ActionSoftDeleted Action = "soft_deleted"
	ActionRestored    Action = "restored"
)

// IsValid checks if the action is valid
func (a Action) IsValid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionSoftDeleted, ActionRestored:
		return true
	}
	return false
}

// Change is the before and after value of one field.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Changes maps field names to their change.
type Changes map[string]Change

// Fields returns the changed field names in sorted order.
func (c Changes) Fields() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entry is one audit log row
type Entry struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	UserID    int64     `json:"user_id"`
	Action    Action    `json:"action"`
	Changes   Changes   `json:"changes"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrEmptyChanges is returned when a non-create entry carries no changes.
var ErrEmptyChanges = errors.New("history entry has no changes")

// Recorder appends and reads task history
type Recorder struct {
	q db.Querier
}

// NewRecorder creates a recorder on q
func NewRecorder(q db.Querier) *Recorder {
	return &Recorder{q: q}
}

// WithTx returns a recorder bound to tx.
func (r *Recorder) WithTx(tx *db.Tx) *Recorder {
	return &Recorder{q: tx}
}

// Record appends e and fills in its id.
func (r *Recorder) Record(ctx context.Context, e *Entry) error {
	if !e.Action.IsValid() {
		return fmt.Errorf("invalid history action %q", e.Action)
	}
	if len(e.Changes) == 0 {
		return ErrEmptyChanges
	}

	payload, err := json.Marshal(e.Changes)
	if err != nil {
		return fmt.Errorf("failed to encode history changes: %w", err)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = db.Now()
	}

	err = r.q.QueryRowContext(ctx, `
		INSERT INTO task_history (task_id, user_id, action, changes, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`,
		e.TaskID, e.UserID, string(e.Action), string(payload), e.Timestamp,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	return nil
}

// History returns every entry of taskID oldest first. It does not look at
// the task's soft-delete state; callers check ownership first.
func (r *Recorder) History(ctx context.Context, taskID int64) ([]*Entry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, task_id, user_id, action, changes, created_at
		FROM task_history WHERE task_id = ?
		ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		var (
			e       Entry
			action  string
			payload string
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &e.UserID, &action, &payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.Action = Action(action)
		e.Timestamp = e.Timestamp.UTC()
		if err := json.Unmarshal([]byte(payload), &e.Changes); err != nil {
			return nil, fmt.Errorf("failed to decode history changes: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
