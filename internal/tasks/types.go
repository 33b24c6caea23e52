// Package tasks implements the per-user task forest.
//
// Every task carries a materialized path: the dot separated ids of its
// ancestors followed by its own id ("1.4.9"). Ancestor and descendant
// queries are prefix scans on that path, and re-parenting rewrites the
// prefix of the whole moved subtree in one statement.
package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deeppomo/deeppomo/internal/apperr"
)

// Status is the workflow state of a task
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// IsValid checks if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// Priority is an optional task priority
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// IsValid checks if the priority is valid
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Task is a node of a user's task forest
type Task struct {
	ID                int64      `json:"id"`
	UserID            int64      `json:"user_id"`
	ParentID          *int64     `json:"parent_id"`
	Path              string     `json:"path"`
	Title             string     `json:"title"`
	Description       *string    `json:"description"`
	Priority          *Priority  `json:"priority"`
	Status            Status     `json:"status"`
	ColorCode         *string    `json:"color_code"`
	EstimatedDuration *int64     `json:"estimated_duration"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at"`
	CompletedAt       *time.Time `json:"completed_at"`
	DeletedAt         *time.Time `json:"deleted_at"`
}

// Depth returns the distance from the root of the tree (roots are 0).
func (t *Task) Depth() int {
	return strings.Count(t.Path, ".")
}

// CreateInput holds data for creating a task
type CreateInput struct {
	Title             string    `json:"title"`
	Description       *string   `json:"description,omitempty"`
	Priority          *Priority `json:"priority,omitempty"`
	Status            Status    `json:"status,omitempty"`
	ParentID          *int64    `json:"parent_id,omitempty"`
	ColorCode         *string   `json:"color_code,omitempty"`
	EstimatedDuration *int64    `json:"estimated_duration,omitempty"`
}

// Validate normalises defaults and checks enum and range values.
func (in *CreateInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("title is required: %w", apperr.ErrValidation)
	}
	if in.Status == "" {
		in.Status = StatusPending
	}
	if !in.Status.IsValid() {
		return fmt.Errorf("invalid status %q: %w", in.Status, apperr.ErrValidation)
	}
	if in.Priority != nil && !in.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q: %w", *in.Priority, apperr.ErrValidation)
	}
	if in.EstimatedDuration != nil && *in.EstimatedDuration < 0 {
		return fmt.Errorf("estimated_duration must not be negative: %w", apperr.ErrValidation)
	}
	return nil
}

// Field is an optional patch value that tells "absent" apart from "null".
// Set is false when the key was absent; Value is nil when it was null.
type Field[T any] struct {
	Set   bool
	Value *T
}

// Value returns a Field set to v.
func Value[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: &v}
}

// Null returns a Field explicitly set to null.
func Null[T any]() Field[T] {
	return Field[T]{Set: true}
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.Value = &v
	return nil
}

// Patch is a partial update. Only fields with Set are considered.
type Patch struct {
	Title             Field[string]   `json:"title"`
	Description       Field[string]   `json:"description"`
	Priority          Field[Priority] `json:"priority"`
	Status            Field[Status]   `json:"status"`
	ParentID          Field[int64]    `json:"parent_id"`
	ColorCode         Field[string]   `json:"color_code"`
	EstimatedDuration Field[int64]    `json:"estimated_duration"`
}

// Replace builds the patch of a full update: every field is considered and
// anything missing from in is cleared.
func Replace(in CreateInput) Patch {
	p := Patch{
		Title:             Value(in.Title),
		Description:       Field[string]{Set: true, Value: in.Description},
		Priority:          Field[Priority]{Set: true, Value: in.Priority},
		ParentID:          Field[int64]{Set: true, Value: in.ParentID},
		ColorCode:         Field[string]{Set: true, Value: in.ColorCode},
		EstimatedDuration: Field[int64]{Set: true, Value: in.EstimatedDuration},
	}
	status := in.Status
	if status == "" {
		status = StatusPending
	}
	p.Status = Value(status)
	return p
}

// Validate checks the set fields of the patch.
func (p *Patch) Validate() error {
	if p.Title.Set {
		if p.Title.Value == nil || strings.TrimSpace(*p.Title.Value) == "" {
			return fmt.Errorf("title must not be empty: %w", apperr.ErrValidation)
		}
		title := strings.TrimSpace(*p.Title.Value)
		p.Title.Value = &title
	}
	if p.Status.Set {
		if p.Status.Value == nil || !p.Status.Value.IsValid() {
			return fmt.Errorf("invalid status: %w", apperr.ErrValidation)
		}
	}
	if p.Priority.Set && p.Priority.Value != nil && !p.Priority.Value.IsValid() {
		return fmt.Errorf("invalid priority %q: %w", *p.Priority.Value, apperr.ErrValidation)
	}
	if p.EstimatedDuration.Set && p.EstimatedDuration.Value != nil && *p.EstimatedDuration.Value < 0 {
		return fmt.Errorf("estimated_duration must not be negative: %w", apperr.ErrValidation)
	}
	return nil
}

// Filter selects tasks for List. A nil ParentID selects root tasks.
type Filter struct {
	ParentID       *int64
	Status         Status
	IncludeDeleted bool
	Skip           int
	Limit          int
}

// DefaultLimit is the page size used when Filter.Limit is not positive.
const DefaultLimit = 100

// Crumb is one step of a breadcrumb; Level is the depth from the root.
type Crumb struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Level int    `json:"level"`
}

// Descendant is a task below another one; Level counts from that task
// (direct children are 1).
type Descendant struct {
	ID       int64  `json:"id"`
	ParentID int64  `json:"parent_id"`
	Title    string `json:"title"`
	Status   Status `json:"status"`
	Level    int    `json:"level"`
}

// Node is a task with its live subtree.
type Node struct {
	*Task
	Children []*Node `json:"children"`
}
