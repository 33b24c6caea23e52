package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePurger struct {
	mu      sync.Mutex
	n       int64
	err     error
	cutoffs []time.Time
}

func (p *fakePurger) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.n, p.err
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "descriptor", config: Config{Schedule: "@daily", Days: 30}},
		{name: "five fields", config: Config{Schedule: "0 3 * * *", Days: 1}},
		{name: "zero days", config: Config{Schedule: "@daily", Days: 0}, wantErr: true},
		{name: "empty schedule", config: Config{Days: 30}, wantErr: true},
		{name: "garbage schedule", config: Config{Schedule: "every day", Days: 30}, wantErr: true},
		{name: "seconds field", config: Config{Schedule: "0 0 3 * * *", Days: 30}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunOnce(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	tasks := &fakePurger{n: 3}
	sessions := &fakePurger{err: errors.New("database is locked")}
	links := &fakePurger{n: 1}

	s := NewScheduler(Config{Schedule: "@daily", Days: 30}, []Target{
		{Name: "tasks", Purger: tasks},
		{Name: "sessions", Purger: sessions},
		{Name: "links", Purger: links},
	}, WithClock(func() time.Time { return now }))

	removed, err := s.RunOnce(context.Background())
	if err == nil {
		t.Fatal("RunOnce() error = nil, want the sessions failure")
	}
	if removed["tasks"] != 3 || removed["links"] != 1 {
		t.Errorf("removed = %v, want tasks=3 links=1", removed)
	}
	if _, ok := removed["sessions"]; ok {
		t.Error("failed target reported as removed")
	}

	want := time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC)
	for name, p := range map[string]*fakePurger{"tasks": tasks, "sessions": sessions, "links": links} {
		if len(p.cutoffs) != 1 || !p.cutoffs[0].Equal(want) {
			t.Errorf("%s cutoffs = %v, want [%v]", name, p.cutoffs, want)
		}
	}
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(Config{Schedule: "@hourly", Days: 7}, nil)

	if s.IsRunning() {
		t.Error("scheduler running before Start")
	}
	if !s.NextRun().IsZero() {
		t.Error("NextRun() should be zero before Start")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if !s.IsRunning() {
		t.Error("scheduler not running after Start")
	}
	if next := s.NextRun(); next.IsZero() || next.After(time.Now().Add(time.Hour+time.Minute)) {
		t.Errorf("NextRun() = %v, want within the next hour", next)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	s.Stop()
	if s.IsRunning() {
		t.Error("scheduler still running after Stop")
	}
	s.Stop()
}

func TestStartRejectsBadConfig(t *testing.T) {
	s := NewScheduler(Config{Schedule: "nope", Days: 7}, nil)
	if err := s.Start(context.Background()); err == nil {
		s.Stop()
		t.Fatal("Start() with bad schedule should fail")
	}
	if s.IsRunning() {
		t.Error("scheduler running after failed Start")
	}
}
