package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/deeppomo/deeppomo/internal/apperr"
	"github.com/deeppomo/deeppomo/internal/db"
	"github.com/deeppomo/deeppomo/internal/history"
	"github.com/deeppomo/deeppomo/internal/testutil"
)

// stepClock advances one second on every reading.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	db    *db.DB
	svc   *Service
	user  int64
	other int64
	clock *stepClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	d := testutil.NewDB(t)
	clock := newStepClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return &fixture{
		db:    d,
		svc:   NewService(d, opts...),
		user:  testutil.InsertUser(t, d, "alice"),
		other: testutil.InsertUser(t, d, "mallory"),
		clock: clock,
	}
}

func (f *fixture) create(t *testing.T, title string, parent *Task) *Task {
	t.Helper()
	in := CreateInput{Title: title}
	if parent != nil {
		in.ParentID = &parent.ID
	}
	task, err := f.svc.Create(context.Background(), f.user, in)
	if err != nil {
		t.Fatalf("Create(%q) error = %v", title, err)
	}
	return task
}

// reload reads a task regardless of its soft-delete state.
func (f *fixture) reload(t *testing.T, id int64) *Task {
	t.Helper()
	task, err := f.svc.store.Get(context.Background(), f.user, id, true, false)
	if err != nil {
		t.Fatalf("reload(%d) error = %v", id, err)
	}
	return task
}

func (f *fixture) history(t *testing.T, id int64) []*history.Entry {
	t.Helper()
	entries, err := f.svc.History(context.Background(), f.user, id)
	if err != nil {
		t.Fatalf("History(%d) error = %v", id, err)
	}
	return entries
}

func ptr[T any](v T) *T { return &v }

func TestCreatePathsAndBreadcrumb(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "A", nil)
	b := f.create(t, "B", a)
	c := f.create(t, "C", b)

	if a.Path != fmt.Sprint(a.ID) {
		t.Errorf("path(A) = %q, want %d", a.Path, a.ID)
	}
	if want := fmt.Sprintf("%d.%d", a.ID, b.ID); b.Path != want {
		t.Errorf("path(B) = %q, want %q", b.Path, want)
	}
	if want := fmt.Sprintf("%d.%d.%d", a.ID, b.ID, c.ID); c.Path != want {
		t.Errorf("path(C) = %q, want %q", c.Path, want)
	}
	if got := f.reload(t, c.ID).Path; got != c.Path {
		t.Errorf("stored path(C) = %q, want %q", got, c.Path)
	}

	crumbs, err := f.svc.Breadcrumb(context.Background(), f.user, c.ID)
	if err != nil {
		t.Fatalf("Breadcrumb() error = %v", err)
	}
	want := []Crumb{{a.ID, "A", 0}, {b.ID, "B", 1}, {c.ID, "C", 2}}
	if len(crumbs) != len(want) {
		t.Fatalf("Breadcrumb() = %+v, want %+v", crumbs, want)
	}
	for i := range want {
		if crumbs[i] != want[i] {
			t.Errorf("Breadcrumb()[%d] = %+v, want %+v", i, crumbs[i], want[i])
		}
	}
}

func TestCreateParentMustResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	foreign, err := f.svc.Create(ctx, f.other, CreateInput{Title: "theirs"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	deleted := f.create(t, "gone", nil)
	if _, err := f.svc.Delete(ctx, f.user, deleted.ID, true); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	for name, parentID := range map[string]int64{
		"missing":      9999,
		"other owner":  foreign.ID,
		"soft-deleted": deleted.ID,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.user, CreateInput{Title: "child", ParentID: ptr(parentID)})
			if !errors.Is(err, apperr.ErrNotFound) {
				t.Errorf("Create() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateInput
	}{
		{"empty title", CreateInput{Title: "   "}},
		{"bad status", CreateInput{Title: "x", Status: "done"}},
		{"bad priority", CreateInput{Title: "x", Priority: ptr(Priority("urgent"))}},
		{"negative estimate", CreateInput{Title: "x", EstimatedDuration: ptr(int64(-1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Create(ctx, f.user, tt.input); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("Create() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreateRecordsEveryField(t *testing.T) {
	f := newFixture(t)
	task, err := f.svc.Create(context.Background(), f.user, CreateInput{
		Title:    "Write report",
		Priority: ptr(PriorityHigh),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if task.Status != StatusPending {
		t.Errorf("Status = %s, want pending", task.Status)
	}

	entries := f.history(t, task.ID)
	if len(entries) != 1 {
		t.Fatalf("history len = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Action != history.ActionCreated {
		t.Errorf("Action = %s, want created", e.Action)
	}
	for _, field := range []string{"title", "description", "priority", "status", "parent_id", "color_code", "estimated_duration"} {
		change, ok := e.Changes[field]
		if !ok {
			t.Errorf("created entry missing %q", field)
			continue
		}
		if change.Old != nil {
			t.Errorf("%s old = %v, want nil", field, change.Old)
		}
	}
	if e.Changes["title"].New != "Write report" || e.Changes["priority"].New != "high" {
		t.Errorf("created changes = %+v", e.Changes)
	}
}

func TestCreateCompletedSetsCompletedAt(t *testing.T) {
	f := newFixture(t)
	task, err := f.svc.Create(context.Background(), f.user, CreateInput{Title: "done already", Status: StatusCompleted})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if task.CompletedAt == nil {
		t.Error("CompletedAt = nil for a task created completed")
	}
}

func TestUpdateNoChangeWritesNothing(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, "same", nil)

	got, err := f.svc.Update(context.Background(), f.user, task.ID, Patch{
		Title:  Value("same"),
		Status: Value(StatusPending),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.UpdatedAt != nil {
		t.Errorf("UpdatedAt = %v, want nil for a no-op", got.UpdatedAt)
	}
	if n := len(f.history(t, task.ID)); n != 1 {
		t.Errorf("history len = %d, want 1 (created only)", n)
	}
}

func TestUpdateRecordsOnlyChangedFields(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, "draft", nil)

	_, err := f.svc.Update(context.Background(), f.user, task.ID, Patch{
		Title:       Value("final"),
		Description: Value("notes"),
		ColorCode:   Null[string](),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	entries := f.history(t, task.ID)
	if len(entries) != 2 {
		t.Fatalf("history len = %d, want 2", len(entries))
	}
	changes := entries[1].Changes
	if entries[1].Action != history.ActionUpdated {
		t.Errorf("Action = %s, want updated", entries[1].Action)
	}
	if len(changes) != 2 {
		t.Errorf("changes = %v, want exactly title and description", changes.Fields())
	}
	if changes["title"].Old != "draft" || changes["title"].New != "final" {
		t.Errorf("title change = %+v", changes["title"])
	}
	if changes["description"].Old != nil || changes["description"].New != "notes" {
		t.Errorf("description change = %+v", changes["description"])
	}
}

func TestStatusMaintainsCompletedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, "work", nil)

	done, err := f.svc.Update(ctx, f.user, task.ID, Patch{Status: Value(StatusCompleted)})
	if err != nil {
		t.Fatalf("Update(completed) error = %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatal("CompletedAt = nil after completing")
	}
	stored := f.reload(t, task.ID)
	if stored.CompletedAt == nil || !stored.CompletedAt.Equal(*done.CompletedAt) {
		t.Errorf("stored CompletedAt = %v, want %v", stored.CompletedAt, done.CompletedAt)
	}

	entries := f.history(t, task.ID)
	last := entries[len(entries)-1].Changes
	if len(last) != 2 {
		t.Errorf("changes = %v, want status and completed_at", last.Fields())
	}
	if _, ok := last["completed_at"]; !ok {
		t.Error("derived completed_at change missing")
	}

	reopened, err := f.svc.Update(ctx, f.user, task.ID, Patch{Status: Value(StatusPending)})
	if err != nil {
		t.Fatalf("Update(pending) error = %v", err)
	}
	if reopened.CompletedAt != nil {
		t.Errorf("CompletedAt = %v after reopening, want nil", reopened.CompletedAt)
	}
	if f.reload(t, task.ID).CompletedAt != nil {
		t.Error("stored CompletedAt not cleared")
	}

	blocked, err := f.svc.Update(ctx, f.user, task.ID, Patch{Status: Value(StatusBlocked)})
	if err != nil {
		t.Fatalf("Update(blocked) error = %v", err)
	}
	if blocked.CompletedAt != nil {
		t.Error("CompletedAt set on a non-completed transition")
	}
	entries = f.history(t, task.ID)
	if got := entries[len(entries)-1].Changes; len(got) != 1 {
		t.Errorf("pending -> blocked changes = %v, want status only", got.Fields())
	}
}

func TestUpdateValidation(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, "x", nil)

	tests := []struct {
		name  string
		patch Patch
	}{
		{"null title", Patch{Title: Null[string]()}},
		{"blank title", Patch{Title: Value("  ")}},
		{"null status", Patch{Status: Null[Status]()}},
		{"bad status", Patch{Status: Value(Status("archived"))}},
		{"bad priority", Patch{Priority: Value(Priority("p0"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Update(context.Background(), f.user, task.ID, tt.patch)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("Update() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestReparentRewritesSubtree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "A", nil)
	b := f.create(t, "B", a)
	c := f.create(t, "C", b)
	d := f.create(t, "D", c)
	other := f.create(t, "Other", nil)

	oldB, oldC, oldD := b.Path, c.Path, d.Path

	moved, err := f.svc.Update(ctx, f.user, b.ID, Patch{ParentID: Value(other.ID)})
	if err != nil {
		t.Fatalf("Update(parent) error = %v", err)
	}

	newB := fmt.Sprintf("%d.%d", other.ID, b.ID)
	if moved.Path != newB {
		t.Errorf("path(B) = %q, want %q", moved.Path, newB)
	}
	for _, tc := range []struct {
		task    *Task
		oldPath string
	}{{c, oldC}, {d, oldD}} {
		want := newB + tc.oldPath[len(oldB):]
		if got := f.reload(t, tc.task.ID).Path; got != want {
			t.Errorf("path(%s) = %q, want %q", tc.task.Title, got, want)
		}
	}
	if got := f.reload(t, a.ID).Path; got != a.Path {
		t.Errorf("path(A) changed to %q", got)
	}

	entries := f.history(t, b.ID)
	change := entries[len(entries)-1].Changes["parent_id"]
	if change.Old != float64(a.ID) || change.New != float64(other.ID) {
		t.Errorf("parent_id change = %+v, want %d -> %d", change, a.ID, other.ID)
	}

	rooted, err := f.svc.Update(ctx, f.user, b.ID, Patch{ParentID: Null[int64]()})
	if err != nil {
		t.Fatalf("Update(root) error = %v", err)
	}
	if rooted.Path != fmt.Sprint(b.ID) || rooted.ParentID != nil {
		t.Errorf("rooted B = path %q parent %v, want root", rooted.Path, rooted.ParentID)
	}
	if want := fmt.Sprintf("%d.%d.%d", b.ID, c.ID, d.ID); f.reload(t, d.ID).Path != want {
		t.Errorf("path(D) = %q, want %q", f.reload(t, d.ID).Path, want)
	}
}

func TestReparentRejectsCycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "A", nil)
	b := f.create(t, "B", a)
	c := f.create(t, "C", b)

	for name, target := range map[string]int64{"self": a.ID, "child": b.ID, "grandchild": c.ID} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Update(ctx, f.user, a.ID, Patch{ParentID: Value(target), Title: Value("renamed")})
			if !errors.Is(err, apperr.ErrInvalidOperation) {
				t.Fatalf("Update() error = %v, want ErrInvalidOperation", err)
			}
			if got := f.reload(t, a.ID); got.Path != a.Path || got.ParentID != nil || got.Title != "A" {
				t.Errorf("A changed after rejected move: %+v", got)
			}
			if got := f.reload(t, c.ID).Path; got != c.Path {
				t.Errorf("path(C) = %q, want unchanged %q", got, c.Path)
			}
		})
	}
	if n := len(f.history(t, a.ID)); n != 1 {
		t.Errorf("history len = %d, want 1 after rejected moves", n)
	}
}

func TestSoftDeleteCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "A", nil)
	b := f.create(t, "B", a)
	c := f.create(t, "C", b)
	sibling := f.create(t, "S", a)
	unrelated := f.create(t, "U", nil)

	ok, err := f.svc.Delete(ctx, f.user, b.ID, true)
	if err != nil || !ok {
		t.Fatalf("Delete() = %v, %v, want true, nil", ok, err)
	}

	for _, task := range []*Task{b, c} {
		got := f.reload(t, task.ID)
		if got.DeletedAt == nil {
			t.Errorf("%s not soft-deleted", task.Title)
		}
		entries := f.history(t, task.ID)
		last := entries[len(entries)-1]
		if last.Action != history.ActionSoftDeleted {
			t.Errorf("%s last action = %s, want soft_deleted", task.Title, last.Action)
		}
		if last.Changes["deleted_at"].Old != nil || last.Changes["deleted_at"].New == nil {
			t.Errorf("%s deleted_at change = %+v", task.Title, last.Changes["deleted_at"])
		}
	}
	for _, task := range []*Task{a, sibling, unrelated} {
		if f.reload(t, task.ID).DeletedAt != nil {
			t.Errorf("%s soft-deleted, want untouched", task.Title)
		}
	}

	if _, err := f.svc.Get(ctx, f.user, c.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
	ok, err = f.svc.Delete(ctx, f.user, b.ID, true)
	if err != nil || ok {
		t.Errorf("second Delete() = %v, %v, want false, nil", ok, err)
	}
}

func TestRestoreCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "A", nil)
	b := f.create(t, "B", a)
	c := f.create(t, "C", b)

	if _, err := f.svc.Delete(ctx, f.user, a.ID, true); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	restored, err := f.svc.Restore(ctx, f.user, a.ID)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored.DeletedAt != nil {
		t.Error("Restore() returned a deleted task")
	}

	for _, task := range []*Task{a, b, c} {
		if f.reload(t, task.ID).DeletedAt != nil {
			t.Errorf("%s still deleted after restore", task.Title)
		}
		entries := f.history(t, task.ID)
		last := entries[len(entries)-1]
		if last.Action != history.ActionRestored {
			t.Errorf("%s last action = %s, want restored", task.Title, last.Action)
		}
		if last.Changes["deleted_at"].New != nil {
			t.Errorf("%s restored change = %+v, want new nil", task.Title, last.Changes["deleted_at"])
		}
	}
}

func TestRestoreLeavesSeparatelyDeletedDescendants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "A", nil)
	b := f.create(t, "B", a)
	c := f.create(t, "C", b)

	if _, err := f.svc.Delete(ctx, f.user, c.ID, true); err != nil {
		t.Fatalf("Delete(C) error = %v", err)
	}
	if _, err := f.svc.Delete(ctx, f.user, a.ID, true); err != nil {
		t.Fatalf("Delete(A) error = %v", err)
	}
	if n := len(f.history(t, c.ID)); n != 2 {
		t.Errorf("history(C) len = %d, want 2 (created, one soft_deleted)", n)
	}

	if _, err := f.svc.Restore(ctx, f.user, a.ID); err != nil {
		t.Fatalf("Restore(A) error = %v", err)
	}
	if f.reload(t, b.ID).DeletedAt != nil {
		t.Error("B still deleted after restoring A")
	}
	if f.reload(t, c.ID).DeletedAt == nil {
		t.Error("C restored, want it to stay deleted from its own delete")
	}

	if _, err := f.svc.Restore(ctx, f.user, c.ID); err != nil {
		t.Fatalf("Restore(C) error = %v", err)
	}
}

func TestRestoreRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "A", nil)
	b := f.create(t, "B", a)

	if _, err := f.svc.Restore(ctx, f.user, a.ID); !errors.Is(err, apperr.ErrInvalidOperation) {
		t.Errorf("Restore(live) error = %v, want ErrInvalidOperation", err)
	}

	if _, err := f.svc.Delete(ctx, f.user, a.ID, true); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.svc.Restore(ctx, f.user, b.ID); !errors.Is(err, apperr.ErrInvalidOperation) {
		t.Errorf("Restore(child of deleted) error = %v, want ErrInvalidOperation", err)
	}
	if f.reload(t, b.ID).DeletedAt == nil {
		t.Error("B restored below a deleted parent")
	}
	if _, err := f.svc.Restore(ctx, f.other, a.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Restore(other owner) error = %v, want ErrNotFound", err)
	}
}

func TestHardDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "A", nil)
	b := f.create(t, "B", a)

	ok, err := f.svc.Delete(ctx, f.user, a.ID, false)
	if err != nil || !ok {
		t.Fatalf("Delete(hard) = %v, %v, want true, nil", ok, err)
	}
	if _, err := f.svc.store.Get(ctx, f.user, b.ID, true, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("child after hard delete error = %v, want ErrNotFound", err)
	}
	entries, err := f.svc.recorder.History(ctx, a.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("history after hard delete len = %d, want 0", len(entries))
	}

	ok, err = f.svc.Delete(ctx, f.user, a.ID, false)
	if err != nil || ok {
		t.Errorf("Delete(missing) = %v, %v, want false, nil", ok, err)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, "mine", nil)

	if _, err := f.svc.Get(ctx, f.other, task.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.Update(ctx, f.other, task.ID, Patch{Title: Value("stolen")}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
	if ok, err := f.svc.Delete(ctx, f.other, task.ID, true); ok || err != nil {
		t.Errorf("Delete() = %v, %v, want false, nil", ok, err)
	}
	if _, err := f.svc.History(ctx, f.other, task.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("History() error = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.Breadcrumb(ctx, f.other, task.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Breadcrumb() error = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r1 := f.create(t, "R1", nil)
	r2 := f.create(t, "R2", nil)
	r3 := f.create(t, "R3", nil)
	child := f.create(t, "child", r1)
	if _, err := f.svc.Update(ctx, f.user, r2.ID, Patch{Status: Value(StatusInProgress)}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, err := f.svc.Delete(ctx, f.user, r3.ID, true); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	ids := func(ts []*Task) []int64 {
		out := make([]int64, len(ts))
		for i, t := range ts {
			out[i] = t.ID
		}
		return out
	}

	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"roots", Filter{}, []int64{r1.ID, r2.ID}},
		{"children", Filter{ParentID: &r1.ID}, []int64{child.ID}},
		{"status", Filter{Status: StatusInProgress}, []int64{r2.ID}},
		{"include deleted", Filter{IncludeDeleted: true}, []int64{r1.ID, r2.ID, r3.ID}},
		{"limit", Filter{Limit: 1}, []int64{r1.ID}},
		{"skip", Filter{Skip: 1}, []int64{r2.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.List(ctx, f.user, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if fmt.Sprint(ids(got)) != fmt.Sprint(tt.want) {
				t.Errorf("List() = %v, want %v", ids(got), tt.want)
			}
		})
	}

	if got, _ := f.svc.List(ctx, f.other, Filter{}); len(got) != 0 {
		t.Errorf("List(other) len = %d, want 0", len(got))
	}
	if _, err := f.svc.List(ctx, f.user, Filter{Status: "nope"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("List(bad status) error = %v, want ErrValidation", err)
	}
}

func TestChildrenAndTree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.create(t, "root", nil)
	x := f.create(t, "x", root)
	y := f.create(t, "y", root)
	x1 := f.create(t, "x1", x)
	y1 := f.create(t, "y1", y)
	gone := f.create(t, "gone", y)
	if _, err := f.svc.Delete(ctx, f.user, gone.ID, true); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	children, err := f.svc.Children(ctx, f.user, root.ID)
	if err != nil {
		t.Fatalf("Children() error = %v", err)
	}
	want := []Descendant{
		{ID: x.ID, ParentID: root.ID, Title: "x", Status: StatusPending, Level: 1},
		{ID: y.ID, ParentID: root.ID, Title: "y", Status: StatusPending, Level: 1},
		{ID: x1.ID, ParentID: x.ID, Title: "x1", Status: StatusPending, Level: 2},
		{ID: y1.ID, ParentID: y.ID, Title: "y1", Status: StatusPending, Level: 2},
	}
	if len(children) != len(want) {
		t.Fatalf("Children() = %+v, want %+v", children, want)
	}
	for i := range want {
		if children[i] != want[i] {
			t.Errorf("Children()[%d] = %+v, want %+v", i, children[i], want[i])
		}
	}

	sub, err := f.svc.Children(ctx, f.user, y.ID)
	if err != nil {
		t.Fatalf("Children(y) error = %v", err)
	}
	if len(sub) != 1 || sub[0].ID != y1.ID || sub[0].Level != 1 {
		t.Errorf("Children(y) = %+v, want only y1 at level 1", sub)
	}

	tree, err := f.svc.Tree(ctx, f.user, root.ID)
	if err != nil {
		t.Fatalf("Tree() error = %v", err)
	}
	if len(tree.Children) != 2 {
		t.Fatalf("Tree() children = %d, want 2", len(tree.Children))
	}
	if tree.Children[0].ID != x.ID || len(tree.Children[0].Children) != 1 || tree.Children[0].Children[0].ID != x1.ID {
		t.Errorf("Tree() x branch = %+v", tree.Children[0])
	}
	if len(tree.Children[1].Children) != 1 {
		t.Errorf("Tree() y branch has %d children, want 1 (deleted one hidden)", len(tree.Children[1].Children))
	}
}

func TestHistoryVisibleForDeletedTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, "temp", nil)
	if _, err := f.svc.Delete(ctx, f.user, task.ID, true); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	entries := f.history(t, task.ID)
	if len(entries) != 2 {
		t.Fatalf("history len = %d, want 2", len(entries))
	}
	if entries[0].Action != history.ActionCreated || entries[1].Action != history.ActionSoftDeleted {
		t.Errorf("actions = %s, %s", entries[0].Action, entries[1].Action)
	}
}

type recordingHook struct {
	deleted  []int64
	restored []int64
	fail     error
}

func (h *recordingHook) TasksSoftDeleted(ctx context.Context, tx *db.Tx, ids []int64, at time.Time) error {
	h.deleted = append(h.deleted, ids...)
	return h.fail
}

func (h *recordingHook) TasksRestored(ctx context.Context, tx *db.Tx, ids []int64) error {
	h.restored = append(h.restored, ids...)
	return h.fail
}

func TestCascadeHooks(t *testing.T) {
	hook := &recordingHook{}
	f := newFixture(t, WithCascadeHook(hook))
	ctx := context.Background()
	a := f.create(t, "A", nil)
	f.create(t, "B", a)

	if _, err := f.svc.Delete(ctx, f.user, a.ID, true); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(hook.deleted) != 2 {
		t.Errorf("hook saw %d deleted tasks, want 2", len(hook.deleted))
	}
	if _, err := f.svc.Restore(ctx, f.user, a.ID); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(hook.restored) != 2 {
		t.Errorf("hook saw %d restored tasks, want 2", len(hook.restored))
	}
}

func TestCascadeRollsBackOnHookFailure(t *testing.T) {
	hook := &recordingHook{fail: errors.New("hook failed")}
	f := newFixture(t, WithCascadeHook(hook))
	ctx := context.Background()
	a := f.create(t, "A", nil)
	b := f.create(t, "B", a)

	if _, err := f.svc.Delete(ctx, f.user, a.ID, true); err == nil {
		t.Fatal("Delete() error = nil, want hook failure")
	}
	for _, task := range []*Task{a, b} {
		if f.reload(t, task.ID).DeletedAt != nil {
			t.Errorf("%s deleted despite rollback", task.Title)
		}
		if n := len(f.history(t, task.ID)); n != 1 {
			t.Errorf("%s history len = %d, want 1", task.Title, n)
		}
	}
}

func TestPurgeDropsOldTrash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := f.create(t, "old", nil)
	oldChild := f.create(t, "old child", old)
	recent := f.create(t, "recent", nil)
	live := f.create(t, "live", nil)

	if _, err := f.svc.Delete(ctx, f.user, old.ID, true); err != nil {
		t.Fatalf("Delete(old) error = %v", err)
	}
	cutoff := f.clock.Now()
	if _, err := f.svc.Delete(ctx, f.user, recent.ID, true); err != nil {
		t.Fatalf("Delete(recent) error = %v", err)
	}

	n, err := f.svc.Purge(ctx, cutoff)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Purge() = %d rows, want 2", n)
	}

	for _, id := range []int64{old.ID, oldChild.ID} {
		if _, err := f.svc.store.Get(ctx, f.user, id, true, false); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("task %d still present after purge: %v", id, err)
		}
	}
	if got := f.reload(t, recent.ID); got.DeletedAt == nil {
		t.Error("recent task lost its deleted mark")
	}
	f.reload(t, live.ID)

	var entries int
	if err := f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_history WHERE task_id IN (?, ?)`,
		old.ID, oldChild.ID).Scan(&entries); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if entries != 0 {
		t.Errorf("%d history entries survived the purge", entries)
	}
}
