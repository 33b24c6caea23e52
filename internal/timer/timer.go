// Package timer is the terminal countdown for one pomodoro session. Keys
// pause, resume and complete the session through the session engine, so the
// recorded interruptions match what the user saw on screen.
package timer

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/deeppomo/deeppomo/internal/pomodoro"
)

// Engine is the part of the session engine the timer drives.
type Engine interface {
	Get(ctx context.Context, userID, id int64) (*pomodoro.Session, error)
	Interruptions(ctx context.Context, userID, id int64) ([]*pomodoro.Interruption, error)
	Pause(ctx context.Context, userID, id int64) (*pomodoro.Session, error)
	Resume(ctx context.Context, userID, id int64) (*pomodoro.Session, error)
	Complete(ctx context.Context, userID, id int64, in pomodoro.CompleteInput) (*pomodoro.Session, error)
}

const barWidth = 30

var (
	titleStyle         = lipgloss.NewStyle().Bold(true)
	clockStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	pausedStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	doneStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	helpStyle          = lipgloss.NewStyle().Faint(true)
	progressBarStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	progressEmptyStyle = lipgloss.NewStyle().Faint(true)
)

type tickMsg time.Time

// loadedMsg carries a fresh read of the session after startup or an action.
type loadedMsg struct {
	session       *pomodoro.Session
	interruptions []*pomodoro.Interruption
	err           error
}

// Model is the bubbletea model of the countdown.
type Model struct {
	ctx       context.Context
	engine    Engine
	userID    int64
	sessionID int64
	now       func() time.Time

	session       *pomodoro.Session
	interruptions []*pomodoro.Interruption
	err           error
	busy          bool
	quitting      bool
}

// Option configures a Model.
type Option func(*Model)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// NewModel creates the countdown for session id of userID.
func NewModel(ctx context.Context, engine Engine, userID, id int64, opts ...Option) Model {
	m := Model{
		ctx:       ctx,
		engine:    engine,
		userID:    userID,
		sessionID: id,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init loads the session and starts the tick
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(nil), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// load runs act, if any, and then rereads the session.
func (m Model) load(act func() error) tea.Cmd {
	return func() tea.Msg {
		if act != nil {
			if err := act(); err != nil {
				return loadedMsg{err: err}
			}
		}
		sess, err := m.engine.Get(m.ctx, m.userID, m.sessionID)
		if err != nil {
			return loadedMsg{err: err}
		}
		ints, err := m.engine.Interruptions(m.ctx, m.userID, m.sessionID)
		if err != nil {
			return loadedMsg{err: err}
		}
		return loadedMsg{session: sess, interruptions: ints}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "p", " ":
			if m.session == nil || m.session.Completed || m.busy {
				return m, nil
			}
			m.busy = true
			if m.session.IsPaused {
				return m, m.load(func() error {
					_, err := m.engine.Resume(m.ctx, m.userID, m.sessionID)
					return err
				})
			}
			return m, m.load(func() error {
				_, err := m.engine.Pause(m.ctx, m.userID, m.sessionID)
				return err
			})
		case "c":
			if m.session == nil || m.session.Completed || m.busy {
				return m, nil
			}
			m.busy = true
			return m, m.load(func() error {
				_, err := m.engine.Complete(m.ctx, m.userID, m.sessionID, pomodoro.CompleteInput{})
				return err
			})
		}

	case loadedMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil {
			m.session = msg.session
			m.interruptions = msg.interruptions
		}

	case tickMsg:
		if m.quitting {
			return m, nil
		}
		return m, tickCmd()
	}

	return m, nil
}

// pausedFor returns the total pause time, counting an open pause up to now.
func (m Model) pausedFor(now time.Time) time.Duration {
	var total time.Duration
	for _, in := range m.interruptions {
		switch {
		case in.Duration != nil:
			total += time.Duration(*in.Duration) * time.Second
		case in.ResumedAt == nil && now.After(in.PausedAt):
			total += now.Sub(in.PausedAt)
		}
	}
	return total
}

// Remaining returns the planned time left, negative once it has run over.
// Completed sessions have nothing left.
func (m Model) Remaining() time.Duration {
	if m.session == nil || m.session.Completed {
		return 0
	}
	now := m.now()
	worked := now.Sub(m.session.StartTime) - m.pausedFor(now)
	return time.Duration(m.session.Duration)*time.Second - worked
}

// View renders the countdown
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	if m.session == nil {
		if m.err != nil {
			b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
			b.WriteString("\n")
			b.WriteString(helpStyle.Render("q quit"))
			return b.String()
		}
		return "Loading session...\n"
	}

	s := m.session
	b.WriteString(titleStyle.Render(fmt.Sprintf("Session %d · %s", s.ID, s.SessionType)))
	b.WriteString("\n\n")

	remaining := m.Remaining()
	planned := time.Duration(s.Duration) * time.Second
	progress := 100
	if !s.Completed && planned > 0 {
		progress = int((planned - max(remaining, 0)) * 100 / planned)
	}
	b.WriteString(renderProgressBar(progress, barWidth))
	fmt.Fprintf(&b, " %d%%\n", progress)

	switch {
	case s.Completed:
		worked := "0s"
		if s.ActualDuration != nil {
			worked = (time.Duration(*s.ActualDuration) * time.Second).String()
		}
		b.WriteString(doneStyle.Render("Completed, worked " + worked))
	case remaining <= 0:
		b.WriteString(clockStyle.Render(formatClock(-remaining) + " over"))
		b.WriteString("  ")
		b.WriteString(doneStyle.Render("Time's up"))
	default:
		b.WriteString(clockStyle.Render(formatClock(remaining) + " remaining"))
	}
	if s.IsPaused {
		b.WriteString("  ")
		b.WriteString(pausedStyle.Render("PAUSED"))
	}
	b.WriteString("\n")

	if n := len(m.interruptions); n > 0 {
		b.WriteString(helpStyle.Render(fmt.Sprintf("paused %s over %d interruption(s)",
			m.pausedFor(m.now()).Truncate(time.Second), n)))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if s.Completed {
		b.WriteString(helpStyle.Render("q quit"))
	} else if s.IsPaused {
		b.WriteString(helpStyle.Render("p resume · c complete · q quit"))
	} else {
		b.WriteString(helpStyle.Render("p pause · c complete · q quit"))
	}
	b.WriteString("\n")
	return b.String()
}

func renderProgressBar(progress, width int) string {
	progress = min(max(progress, 0), 100)
	filled := progress * width / 100
	empty := width - filled

	bar := progressBarStyle.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", empty))

	return "[" + bar + "]"
}

// formatClock renders d as mm:ss, or h:mm:ss from an hour up.
func formatClock(d time.Duration) string {
	secs := int64(d / time.Second)
	h, m, s := secs/3600, secs%3600/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Run shows the countdown until the user quits.
func Run(ctx context.Context, engine Engine, userID, id int64) error {
	p := tea.NewProgram(
		NewModel(ctx, engine, userID, id),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	_, err := p.Run()
	return err
}
