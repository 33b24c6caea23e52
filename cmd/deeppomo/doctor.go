package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deeppomo/deeppomo/internal/health"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and dependencies",
		Long: `Validate the configuration and check the database and Redis.

Shows what's working, what's missing, and how to fix issues.

Examples:
  deeppomo doctor           # Run all checks
  deeppomo doctor --verbose # Show fix suggestions
  deeppomo doctor --json    # Machine readable report`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			initCLILogging(cfg)

			configCheck := health.Check{Name: "config", Status: health.StatusOK, Message: "valid"}
			if err := cfg.Validate(); err != nil {
				configCheck = health.Check{
					Name:    "config",
					Status:  health.StatusWarning,
					Message: err.Error(),
					Fix:     "run 'deeppomo config init' or edit the config file",
				}
			}

			ctx := cmd.Context()
			var report *health.Report
			a, err := openApp(ctx, cfg)
			if err != nil {
				report = &health.Report{
					Status: health.StatusError,
					Checks: []health.Check{{
						Name:    "database",
						Status:  health.StatusError,
						Message: err.Error(),
						Fix:     "check database.driver and database.dsn in the config file",
					}},
				}
			} else {
				defer func() { _ = a.Close() }()
				checker, _, closeRedis := a.healthChecker(ctx)
				defer closeRedis()
				report = checker.Run(ctx)
			}
			report.Checks = append([]health.Check{configCheck}, report.Checks...)
			if configCheck.Status == health.StatusWarning && report.Status == health.StatusOK {
				report.Status = health.StatusWarning
			}

			if outputJSON {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			} else {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "deeppomo Health Check")
				fmt.Fprintln(out, "=====================")
				fmt.Fprintln(out)
				for _, c := range report.Checks {
					fmt.Fprintf(out, "  %s %-10s %s\n", c.Status.ColorSymbol(), c.Name, c.Message)
					if verbose && c.Fix != "" && c.Status != health.StatusOK {
						fmt.Fprintf(out, "               → %s\n", c.Fix)
					}
				}
				fmt.Fprintln(out)
				switch report.Status {
				case health.StatusOK:
					fmt.Fprintln(out, "All systems operational")
				case health.StatusWarning:
					fmt.Fprintln(out, "Ready with warnings")
				default:
					fmt.Fprintln(out, "Not ready")
				}
			}

			if !report.Healthy() {
				return fmt.Errorf("health check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show fix suggestions")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output as JSON")

	return cmd
}
