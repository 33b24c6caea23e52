package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deeppomo/deeppomo/internal/settings"
	"github.com/deeppomo/deeppomo/internal/users"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	cmd.AddCommand(
		newUserAddCmd(),
		newUserSettingsCmd(),
	)

	return cmd
}

func newUserAddCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Register a user",
		Long: `Register a user with default settings.

The password is read from --password or $DEEPPOMO_PASSWORD.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("DEEPPOMO_PASSWORD")
			}
			if email == "" {
				email = args[0] + "@localhost.localdomain"
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				u, err := a.users.Register(ctx, users.RegisterInput{
					Username: args[0],
					Email:    email,
					Password: password,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d)\n", u.Username, u.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (default $DEEPPOMO_PASSWORD)")

	return cmd
}

func newUserSettingsCmd() *cobra.Command {
	var (
		login  string
		patch  settings.Patch
		work   int64
		short  int64
		long   int64
		every  int
		theme  string
		notify bool
	)

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change session lengths and preferences",
		Long: `Show the settings of a user. Any flag given is applied first.

Examples:
  deeppomo user settings -u alice
  deeppomo user settings -u alice --work 3000 --short-break 600`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("work") {
				patch.PomodoroDuration = &work
			}
			if flags.Changed("short-break") {
				patch.ShortBreakDuration = &short
			}
			if flags.Changed("long-break") {
				patch.LongBreakDuration = &long
			}
			if flags.Changed("long-break-every") {
				patch.PomodorosUntilLongBreak = &every
			}
			if flags.Changed("theme") {
				patch.Theme = &theme
			}
			if flags.Changed("notifications") {
				patch.NotificationEnabled = &notify
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				userID, err := a.resolveUser(ctx, login)
				if err != nil {
					return err
				}
				set, err := a.settings.Update(ctx, userID, patch)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-18s %s\n", "work", formatSeconds(set.PomodoroDuration))
				fmt.Fprintf(out, "%-18s %s\n", "short break", formatSeconds(set.ShortBreakDuration))
				fmt.Fprintf(out, "%-18s %s\n", "long break", formatSeconds(set.LongBreakDuration))
				fmt.Fprintf(out, "%-18s %d\n", "long break every", set.PomodorosUntilLongBreak)
				fmt.Fprintf(out, "%-18s %s\n", "theme", set.Theme)
				fmt.Fprintf(out, "%-18s %t\n", "notifications", set.NotificationEnabled)
				return nil
			})
		},
	}

	userScoped(cmd, &login)
	cmd.Flags().Int64Var(&work, "work", 0, "work session length in seconds")
	cmd.Flags().Int64Var(&short, "short-break", 0, "short break length in seconds")
	cmd.Flags().Int64Var(&long, "long-break", 0, "long break length in seconds")
	cmd.Flags().IntVar(&every, "long-break-every", 0, "work sessions before a long break")
	cmd.Flags().StringVar(&theme, "theme", "", "UI theme")
	cmd.Flags().BoolVar(&notify, "notifications", true, "enable notifications")

	return cmd
}
