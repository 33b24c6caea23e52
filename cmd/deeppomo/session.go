package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deeppomo/deeppomo/internal/associations"
	"github.com/deeppomo/deeppomo/internal/pomodoro"
	"github.com/deeppomo/deeppomo/internal/timer"
)

func newSessionCmd() *cobra.Command {
	var login string

	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"pomodoro"},
		Short:   "Run pomodoro sessions",
		Long: `Start, pause, resume, and complete timed sessions, and link them
to the tasks they were spent on.`,
	}
	userScoped(cmd, &login)

	cmd.AddCommand(
		newSessionStartCmd(&login),
		newSessionListCmd(&login),
		newSessionPauseCmd(&login),
		newSessionResumeCmd(&login),
		newSessionCompleteCmd(&login),
		newSessionStatsCmd(&login),
		newSessionDeleteCmd(&login),
		newSessionLinkCmd(&login),
		newSessionTasksCmd(&login),
		newSessionForTaskCmd(&login),
		newSessionWatchCmd(&login),
	)

	return cmd
}

func printSession(cmd *cobra.Command, s *pomodoro.Session) {
	fmt.Fprintf(cmd.OutOrStdout(), "Session %d %s %s [%s]\n", s.ID, s.SessionType, formatSeconds(s.Duration), sessionState(s))
}

func newSessionStartCmd(login *string) *cobra.Command {
	var (
		sessionType string
		duration    int64
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a session",
		Long: `Start a session. Without --duration the length comes from the
user's settings for the session type.

Examples:
  deeppomo session start                       # work session, default length
  deeppomo session start --type short_break
  deeppomo session start --duration 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := pomodoro.SessionType(sessionType)
			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				var (
					sess *pomodoro.Session
					err  error
				)
				if cmd.Flags().Changed("duration") {
					sess, err = a.sessions.Create(ctx, userID, pomodoro.CreateInput{SessionType: st, Duration: duration})
				} else {
					sess, err = a.sessions.CreatePreset(ctx, userID, st)
				}
				if err != nil {
					return err
				}
				printSession(cmd, sess)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sessionType, "type", "t", string(pomodoro.TypeWork), "work, short_break or long_break")
	cmd.Flags().Int64Var(&duration, "duration", 0, "planned length in seconds")

	return cmd
}

func newSessionListCmd(login *string) *cobra.Command {
	var (
		sessionType string
		completed   bool
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := pomodoro.Filter{SessionType: pomodoro.SessionType(sessionType), Limit: limit}
			if cmd.Flags().Changed("completed") {
				filter.Completed = &completed
			}
			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				list, err := a.sessions.List(ctx, userID, filter)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sessions")
					return nil
				}
				for _, s := range list {
					printSession(cmd, s)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sessionType, "type", "t", "", "only sessions of this type")
	cmd.Flags().BoolVar(&completed, "completed", false, "only completed (or, with =false, unfinished) sessions")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of sessions")

	return cmd
}

// sessionAction builds the pause and resume commands, which share a shape.
func sessionAction(login *string, use, short string, act func(*pomodoro.Service, context.Context, int64, int64) (*pomodoro.Session, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				sess, err := act(a.sessions, ctx, userID, id)
				if err != nil {
					return err
				}
				printSession(cmd, sess)
				return nil
			})
		},
	}
}

func newSessionPauseCmd(login *string) *cobra.Command {
	return sessionAction(login, "pause", "Pause a running session", (*pomodoro.Service).Pause)
}

func newSessionResumeCmd(login *string) *cobra.Command {
	return sessionAction(login, "resume", "Resume a paused session", (*pomodoro.Service).Resume)
}

func newSessionCompleteCmd(login *string) *cobra.Command {
	var (
		actual int64
		reason string
	)

	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a session, closing any open pause",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var input pomodoro.CompleteInput
			if cmd.Flags().Changed("actual") {
				input.ActualDuration = &actual
			}
			if cmd.Flags().Changed("reason") {
				input.InterruptionReason = &reason
			}

			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				sess, err := a.sessions.Complete(ctx, userID, id, input)
				if err != nil {
					return err
				}
				printSession(cmd, sess)
				if sess.ActualDuration != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Worked %s\n", formatSeconds(*sess.ActualDuration))
				}
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&actual, "actual", 0, "actual length in seconds (default: time since start)")
	cmd.Flags().StringVar(&reason, "reason", "", "why the session was cut short")

	return cmd
}

func newSessionStatsCmd(login *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <id>",
		Short: "Show pause totals and interruptions of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				stats, err := a.sessions.PauseStats(ctx, userID, id)
				if err != nil {
					return err
				}
				list, err := a.sessions.Interruptions(ctx, userID, id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "paused: %t\n", stats.IsPaused)
				fmt.Fprintf(out, "total pause: %s\n", formatSeconds(stats.TotalPauseDuration))
				fmt.Fprintf(out, "interruptions: %d\n", len(list))
				for _, in := range list {
					if in.Duration == nil {
						fmt.Fprintf(out, "  %s  open\n", formatTime(in.PausedAt))
						continue
					}
					fmt.Fprintf(out, "  %s  %s\n", formatTime(in.PausedAt), formatSeconds(*in.Duration))
				}
				return nil
			})
		},
	}
}

func newSessionDeleteCmd(login *string) *cobra.Command {
	var permanent bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				ok, err := a.sessions.Delete(ctx, userID, id, !permanent)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("session %d not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %d\n", id)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&permanent, "permanent", false, "remove the rows instead of marking them deleted")

	return cmd
}

func newSessionLinkCmd(login *string) *cobra.Command {
	var (
		spent int64
		notes string
	)

	cmd := &cobra.Command{
		Use:   "link <session-id> <task-id>",
		Short: "Record that a session was spent on a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			taskID, err := parseID(args[1])
			if err != nil {
				return err
			}
			input := associations.Input{SessionID: sessionID, TaskID: taskID}
			if cmd.Flags().Changed("time-spent") {
				input.TimeSpent = &spent
			}
			if notes != "" {
				input.Notes = &notes
			}

			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				link, err := a.links.Associate(ctx, userID, input)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Linked session %d to task %d\n", link.SessionID, link.TaskID)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&spent, "time-spent", 0, "seconds of the session spent on the task")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")

	return cmd
}

func newSessionTasksCmd(login *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks <session-id>",
		Short: "List the tasks a session was linked to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				links, err := a.links.TasksFor(ctx, userID, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(links) == 0 {
					fmt.Fprintln(out, "No tasks")
					return nil
				}
				for _, l := range links {
					task, err := a.tasks.Get(ctx, userID, l.TaskID)
					if err != nil {
						return err
					}
					line := taskLine(task)
					if l.TimeSpent != nil {
						line += " " + dimStyle.Render(formatSeconds(*l.TimeSpent))
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
}

func newSessionForTaskCmd(login *string) *cobra.Command {
	return &cobra.Command{
		Use:   "for-task <task-id>",
		Short: "List the sessions linked to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				list, err := a.links.SessionsFor(ctx, userID, id)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sessions")
					return nil
				}
				for _, s := range list {
					printSession(cmd, s)
				}
				return nil
			})
		},
	}
}

func newSessionWatchCmd(login *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id>",
		Short: "Show a live countdown for a session",
		Long: `Show a full-screen countdown for a session.

Keys: p or space pauses and resumes, c completes, q quits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				if _, err := a.sessions.Get(ctx, userID, id); err != nil {
					return err
				}
				return timer.Run(ctx, a.sessions, userID, id)
			})
		},
	}
}
