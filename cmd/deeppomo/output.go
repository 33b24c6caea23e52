package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/deeppomo/deeppomo/internal/pomodoro"
	"github.com/deeppomo/deeppomo/internal/tasks"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Faint(true)
	doneStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	progressStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	blockedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	highPriorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

func statusLabel(s tasks.Status) string {
	label := string(s)
	switch s {
	case tasks.StatusCompleted:
		return doneStyle.Render(label)
	case tasks.StatusInProgress:
		return progressStyle.Render(label)
	case tasks.StatusBlocked:
		return blockedStyle.Render(label)
	default:
		return label
	}
}

func taskLine(t *tasks.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s [%s]", t.ID, t.Title, statusLabel(t.Status))
	if t.Priority != nil {
		p := string(*t.Priority)
		if *t.Priority == tasks.PriorityHigh {
			p = highPriorStyle.Render(p)
		}
		fmt.Fprintf(&b, " !%s", p)
	}
	if t.DeletedAt != nil {
		b.WriteString(dimStyle.Render(" (deleted)"))
	}
	return b.String()
}

func sessionState(s *pomodoro.Session) string {
	switch s.State() {
	case "completed":
		return doneStyle.Render("completed")
	case "paused":
		return progressStyle.Render("paused")
	default:
		return "running"
	}
}

// formatSeconds renders a duration in seconds as 25m, 1h5m or 1m30s.
func formatSeconds(secs int64) string {
	var b strings.Builder
	if h := secs / 3600; h > 0 {
		fmt.Fprintf(&b, "%dh", h)
	}
	if m := secs % 3600 / 60; m > 0 {
		fmt.Fprintf(&b, "%dm", m)
	}
	if s := secs % 60; s > 0 || b.Len() == 0 {
		fmt.Fprintf(&b, "%ds", s)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}
