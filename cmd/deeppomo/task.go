package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deeppomo/deeppomo/internal/history"
	"github.com/deeppomo/deeppomo/internal/tasks"
)

func newTaskCmd() *cobra.Command {
	var login string

	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the task tree",
		Long: `Create, browse, move, and delete tasks.

Tasks form a tree per user. Deleting a task hides its whole subtree;
restoring it brings back what that delete removed.`,
	}
	userScoped(cmd, &login)

	cmd.AddCommand(
		newTaskAddCmd(&login),
		newTaskListCmd(&login),
		newTaskTreeCmd(&login),
		newTaskPathCmd(&login),
		newTaskUpdateCmd(&login),
		newTaskMoveCmd(&login),
		newTaskDeleteCmd(&login),
		newTaskRestoreCmd(&login),
		newTaskHistoryCmd(&login),
	)

	return cmd
}

// userRun resolves the selected user and runs fn with its id.
func userRun(cmd *cobra.Command, login *string, fn func(ctx context.Context, a *app, userID int64) error) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		userID, err := a.resolveUser(ctx, *login)
		if err != nil {
			return err
		}
		return fn(ctx, a, userID)
	})
}

func newTaskAddCmd(login *string) *cobra.Command {
	var (
		parent      int64
		priority    string
		status      string
		description string
		estimate    int64
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := tasks.CreateInput{
				Title:  strings.Join(args, " "),
				Status: tasks.Status(status),
			}
			if cmd.Flags().Changed("parent") {
				input.ParentID = &parent
			}
			if priority != "" {
				p := tasks.Priority(priority)
				input.Priority = &p
			}
			if description != "" {
				input.Description = &description
			}
			if cmd.Flags().Changed("estimate") {
				input.EstimatedDuration = &estimate
			}

			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				task, err := a.tasks.Create(ctx, userID, input)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created task %d at %s\n", task.ID, task.Path)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&parent, "parent", 0, "parent task id")
	cmd.Flags().StringVar(&priority, "priority", "", "high, medium or low")
	cmd.Flags().StringVar(&status, "status", "", "pending, in_progress, completed or blocked")
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().Int64Var(&estimate, "estimate", 0, "estimated duration in seconds")

	return cmd
}

func newTaskListCmd(login *string) *cobra.Command {
	var (
		parent int64
		status string
		all    bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List root tasks or the children of --parent",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := tasks.Filter{
				Status:         tasks.Status(status),
				IncludeDeleted: all,
				Limit:          limit,
			}
			if cmd.Flags().Changed("parent") {
				filter.ParentID = &parent
			}

			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				list, err := a.tasks.List(ctx, userID, filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No tasks")
					return nil
				}
				fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-12s %s", "PATH", "TASK")))
				for _, t := range list {
					fmt.Fprintf(out, "%-12s %s\n", t.Path, taskLine(t))
				}
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&parent, "parent", 0, "list the direct children of this task")
	cmd.Flags().StringVar(&status, "status", "", "only tasks with this status")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include deleted tasks")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of tasks")

	return cmd
}

func newTaskTreeCmd(login *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tree [id]",
		Short: "Show a task and everything below it, or every tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var roots []int64
			if len(args) == 1 {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				roots = append(roots, id)
			}

			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				if len(roots) == 0 {
					list, err := a.tasks.List(ctx, userID, tasks.Filter{})
					if err != nil {
						return err
					}
					for _, t := range list {
						roots = append(roots, t.ID)
					}
				}
				for _, id := range roots {
					tree, err := a.tasks.Tree(ctx, userID, id)
					if err != nil {
						return err
					}
					printTree(cmd.OutOrStdout(), tree, "", true, true)
				}
				return nil
			})
		},
	}
}

func printTree(w io.Writer, n *tasks.Node, prefix string, last, root bool) {
	switch {
	case root:
		fmt.Fprintln(w, taskLine(n.Task))
	case last:
		fmt.Fprintf(w, "%s└── %s\n", prefix, taskLine(n.Task))
		prefix += "    "
	default:
		fmt.Fprintf(w, "%s├── %s\n", prefix, taskLine(n.Task))
		prefix += "│   "
	}
	for i, child := range n.Children {
		printTree(w, child, prefix, i == len(n.Children)-1, false)
	}
}

func newTaskPathCmd(login *string) *cobra.Command {
	return &cobra.Command{
		Use:   "path <id>",
		Short: "Show the breadcrumb from the root to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				crumbs, err := a.tasks.Breadcrumb(ctx, userID, id)
				if err != nil {
					return err
				}
				titles := make([]string, len(crumbs))
				for i, c := range crumbs {
					titles[i] = c.Title
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(titles, " › "))
				return nil
			})
		},
	}
}

func newTaskUpdateCmd(login *string) *cobra.Command {
	var (
		title       string
		status      string
		priority    string
		description string
		estimate    int64
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a task",
		Long: `Change fields of a task. Only the flags given are applied.
Pass an empty --priority or --description to clear it.

Examples:
  deeppomo task update 4 --status completed
  deeppomo task update 4 --title "Outline" --priority high`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var patch tasks.Patch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = tasks.Value(title)
			}
			if flags.Changed("status") {
				patch.Status = tasks.Value(tasks.Status(status))
			}
			if flags.Changed("priority") {
				patch.Priority = tasks.Null[tasks.Priority]()
				if priority != "" {
					patch.Priority = tasks.Value(tasks.Priority(priority))
				}
			}
			if flags.Changed("description") {
				patch.Description = tasks.Null[string]()
				if description != "" {
					patch.Description = tasks.Value(description)
				}
			}
			if flags.Changed("estimate") {
				patch.EstimatedDuration = tasks.Value(estimate)
			}

			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				task, err := a.tasks.Update(ctx, userID, id, patch)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), taskLine(task))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&status, "status", "", "pending, in_progress, completed or blocked")
	cmd.Flags().StringVar(&priority, "priority", "", "high, medium or low")
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().Int64Var(&estimate, "estimate", 0, "estimated duration in seconds")

	return cmd
}

func newTaskMoveCmd(login *string) *cobra.Command {
	var (
		parent int64
		toRoot bool
	)

	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Move a task and its subtree under another task",
		Long: `Move a task, with everything below it, under --parent or to the
top level with --root. A task cannot be moved below itself.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			changed := cmd.Flags().Changed("parent")
			if changed == toRoot {
				return fmt.Errorf("pass exactly one of --parent or --root")
			}

			patch := tasks.Patch{ParentID: tasks.Null[int64]()}
			if changed {
				patch.ParentID = tasks.Value(parent)
			}

			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				task, err := a.tasks.Update(ctx, userID, id, patch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved task %d to %s\n", task.ID, task.Path)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&parent, "parent", 0, "new parent task id")
	cmd.Flags().BoolVar(&toRoot, "root", false, "move to the top level")

	return cmd
}

func newTaskDeleteCmd(login *string) *cobra.Command {
	var permanent bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task and its subtree",
		Long: `Delete a task and everything below it. Deleted tasks can be brought
back with "task restore" unless --permanent is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				ok, err := a.tasks.Delete(ctx, userID, id, !permanent)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("task %d not found", id)
				}
				if permanent {
					fmt.Fprintf(cmd.OutOrStdout(), "Permanently deleted task %d\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %d\n", id)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&permanent, "permanent", false, "remove the rows instead of marking them deleted")

	return cmd
}

func newTaskRestoreCmd(login *string) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a deleted task and the subtree deleted with it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				task, err := a.tasks.Restore(ctx, userID, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored task %d\n", task.ID)
				return nil
			})
		},
	}
}

func newTaskHistoryCmd(login *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the change log of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return userRun(cmd, login, func(ctx context.Context, a *app, userID int64) error {
				entries, err := a.tasks.History(ctx, userID, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, e := range entries {
					fmt.Fprintf(out, "%s %s\n", dimStyle.Render(formatTime(e.Timestamp)), headerStyle.Render(string(e.Action)))
					if e.Action == history.ActionUpdated {
						for _, field := range e.Changes.Fields() {
							c := e.Changes[field]
							fmt.Fprintf(out, "    %s: %s → %s\n", field, formatValue(c.Old), formatValue(c.New))
						}
					}
				}
				return nil
			})
		},
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "∅"
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
