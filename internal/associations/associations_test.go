package associations

import (
	"context"
	"errors"
	"testing"

	"github.com/deeppomo/deeppomo/internal/apperr"
	"github.com/deeppomo/deeppomo/internal/pomodoro"
	"github.com/deeppomo/deeppomo/internal/tasks"
	"github.com/deeppomo/deeppomo/internal/testutil"
)

type fixture struct {
	links    *Service
	tasks    *tasks.Service
	sessions *pomodoro.Service
	user     int64
	other    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := testutil.NewDB(t)
	links := NewService(d)
	return &fixture{
		links:    links,
		tasks:    tasks.NewService(d, tasks.WithCascadeHook(links)),
		sessions: pomodoro.NewService(d, pomodoro.WithCascadeHook(links)),
		user:     testutil.InsertUser(t, d, "alice"),
		other:    testutil.InsertUser(t, d, "mallory"),
	}
}

func (f *fixture) task(t *testing.T, userID int64, title string, parent *tasks.Task) *tasks.Task {
	t.Helper()
	in := tasks.CreateInput{Title: title}
	if parent != nil {
		in.ParentID = &parent.ID
	}
	task, err := f.tasks.Create(context.Background(), userID, in)
	if err != nil {
		t.Fatalf("tasks.Create() error = %v", err)
	}
	return task
}

func (f *fixture) session(t *testing.T, userID int64) *pomodoro.Session {
	t.Helper()
	sess, err := f.sessions.Create(context.Background(), userID, pomodoro.CreateInput{SessionType: pomodoro.TypeWork, Duration: 1500})
	if err != nil {
		t.Fatalf("pomodoro.Create() error = %v", err)
	}
	return sess
}

func (f *fixture) link(t *testing.T, sessionID, taskID int64) *Association {
	t.Helper()
	a, err := f.links.Associate(context.Background(), f.user, Input{SessionID: sessionID, TaskID: taskID})
	if err != nil {
		t.Fatalf("Associate() error = %v", err)
	}
	return a
}

func (f *fixture) linkedTasks(t *testing.T, sessionID int64) []int64 {
	t.Helper()
	links, err := f.links.store.ForSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("ForSession() error = %v", err)
	}
	ids := make([]int64, len(links))
	for i, a := range links {
		ids[i] = a.TaskID
	}
	return ids
}

func TestAssociate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, f.user, "write", nil)
	sess := f.session(t, f.user)

	spent, notes := int64(600), "first draft"
	a, err := f.links.Associate(ctx, f.user, Input{SessionID: sess.ID, TaskID: task.ID, TimeSpent: &spent, Notes: &notes})
	if err != nil {
		t.Fatalf("Associate() error = %v", err)
	}
	if a.ID == 0 || *a.TimeSpent != spent || *a.Notes != notes {
		t.Errorf("Associate() = %+v", a)
	}

	links, err := f.links.TasksFor(ctx, f.user, sess.ID)
	if err != nil {
		t.Fatalf("TasksFor() error = %v", err)
	}
	if len(links) != 1 || links[0].TaskID != task.ID || *links[0].TimeSpent != spent {
		t.Errorf("TasksFor() = %+v", links)
	}

	sessions, err := f.links.SessionsFor(ctx, f.user, task.ID)
	if err != nil {
		t.Fatalf("SessionsFor() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != sess.ID {
		t.Errorf("SessionsFor() = %+v", sessions)
	}

	negative := int64(-1)
	if _, err := f.links.Associate(ctx, f.user, Input{SessionID: sess.ID, TaskID: task.ID, TimeSpent: &negative}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Associate(negative time) error = %v, want ErrValidation", err)
	}
}

func TestAssociateRequiresBothEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, f.user, "mine", nil)
	sess := f.session(t, f.user)
	foreignTask := f.task(t, f.other, "theirs", nil)
	foreignSession := f.session(t, f.other)
	deletedTask := f.task(t, f.user, "gone", nil)
	if _, err := f.tasks.Delete(ctx, f.user, deletedTask.ID, true); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	deletedSession := f.session(t, f.user)
	if _, err := f.sessions.Delete(ctx, f.user, deletedSession.ID, true); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	tests := []struct {
		name  string
		input Input
	}{
		{"missing task", Input{SessionID: sess.ID, TaskID: 9999}},
		{"missing session", Input{SessionID: 9999, TaskID: task.ID}},
		{"other user's task", Input{SessionID: sess.ID, TaskID: foreignTask.ID}},
		{"other user's session", Input{SessionID: foreignSession.ID, TaskID: task.ID}},
		{"deleted task", Input{SessionID: sess.ID, TaskID: deletedTask.ID}},
		{"deleted session", Input{SessionID: deletedSession.ID, TaskID: task.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.links.Associate(ctx, f.user, tt.input); !errors.Is(err, apperr.ErrNotFound) {
				t.Errorf("Associate() error = %v, want ErrNotFound", err)
			}
		})
	}
	if got := f.linkedTasks(t, sess.ID); len(got) != 0 {
		t.Errorf("links after failed associations = %v, want none", got)
	}
}

func TestReadsOfUnresolvedAnchorsAreEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, f.user, "mine", nil)
	sess := f.session(t, f.user)
	f.link(t, sess.ID, task.ID)

	links, err := f.links.TasksFor(ctx, f.other, sess.ID)
	if err != nil || len(links) != 0 {
		t.Errorf("TasksFor(other) = %v, %v, want empty", links, err)
	}
	sessions, err := f.links.SessionsFor(ctx, f.other, task.ID)
	if err != nil || len(sessions) != 0 {
		t.Errorf("SessionsFor(other) = %v, %v, want empty", sessions, err)
	}
	if links, err := f.links.TasksFor(ctx, f.user, 9999); err != nil || links == nil || len(links) != 0 {
		t.Errorf("TasksFor(missing) = %v, %v, want empty non-nil", links, err)
	}
}

func TestUnlinkedAnchorsReturnEmptyLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, f.user, "Unlinked", nil)
	sess := f.session(t, f.user)

	links, err := f.links.TasksFor(ctx, f.user, sess.ID)
	if err != nil || links == nil || len(links) != 0 {
		t.Errorf("TasksFor(unlinked) = %v, %v, want empty non-nil", links, err)
	}
	sessions, err := f.links.SessionsFor(ctx, f.user, task.ID)
	if err != nil || sessions == nil || len(sessions) != 0 {
		t.Errorf("SessionsFor(unlinked) = %v, %v, want empty non-nil", sessions, err)
	}
}

func TestTaskSoftDeleteCascadesToLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.task(t, f.user, "project", nil)
	child := f.task(t, f.user, "step", parent)
	other := f.task(t, f.user, "other", nil)
	sess := f.session(t, f.user)
	f.link(t, sess.ID, parent.ID)
	f.link(t, sess.ID, child.ID)
	f.link(t, sess.ID, other.ID)

	if _, err := f.tasks.Delete(ctx, f.user, parent.ID, true); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := f.linkedTasks(t, sess.ID); len(got) != 1 || got[0] != other.ID {
		t.Errorf("links after delete = %v, want only %d", got, other.ID)
	}
	if sessions, _ := f.links.SessionsFor(ctx, f.user, child.ID); len(sessions) != 0 {
		t.Errorf("SessionsFor(deleted task) = %d sessions, want 0", len(sessions))
	}

	if _, err := f.tasks.Restore(ctx, f.user, parent.ID); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if got := f.linkedTasks(t, sess.ID); len(got) != 3 {
		t.Errorf("links after restore = %v, want all 3", got)
	}
	if sessions, _ := f.links.SessionsFor(ctx, f.user, child.ID); len(sessions) != 1 {
		t.Errorf("SessionsFor(restored task) = %d sessions, want 1", len(sessions))
	}
}

func TestRestoreKeepsLinksOfDeletedSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, f.user, "task", nil)
	kept := f.session(t, f.user)
	dropped := f.session(t, f.user)
	f.link(t, kept.ID, task.ID)
	f.link(t, dropped.ID, task.ID)

	if _, err := f.sessions.Delete(ctx, f.user, dropped.ID, true); err != nil {
		t.Fatalf("Delete(session) error = %v", err)
	}
	if got := f.linkedTasks(t, dropped.ID); len(got) != 0 {
		t.Errorf("links of deleted session = %v, want none", got)
	}
	if _, err := f.tasks.Delete(ctx, f.user, task.ID, true); err != nil {
		t.Fatalf("Delete(task) error = %v", err)
	}
	if _, err := f.tasks.Restore(ctx, f.user, task.ID); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	if got := f.linkedTasks(t, kept.ID); len(got) != 1 {
		t.Errorf("links of live session = %v, want 1", got)
	}
	if got := f.linkedTasks(t, dropped.ID); len(got) != 0 {
		t.Errorf("links of deleted session revived: %v", got)
	}
	sessions, err := f.links.SessionsFor(ctx, f.user, task.ID)
	if err != nil {
		t.Fatalf("SessionsFor() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != kept.ID {
		t.Errorf("SessionsFor() = %+v, want only session %d", sessions, kept.ID)
	}
}

func TestHardDeleteRemovesLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, f.user, "task", nil)
	sess := f.session(t, f.user)
	f.link(t, sess.ID, task.ID)

	if _, err := f.tasks.Delete(ctx, f.user, task.ID, false); err != nil {
		t.Fatalf("Delete(hard) error = %v", err)
	}
	if got := f.linkedTasks(t, sess.ID); len(got) != 0 {
		t.Errorf("links after hard delete = %v, want none", got)
	}
}
