package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deeppomo/deeppomo/internal/associations"
	"github.com/deeppomo/deeppomo/internal/config"
	"github.com/deeppomo/deeppomo/internal/db"
	"github.com/deeppomo/deeppomo/internal/logging"
	"github.com/deeppomo/deeppomo/internal/pomodoro"
	"github.com/deeppomo/deeppomo/internal/retention"
	"github.com/deeppomo/deeppomo/internal/settings"
	"github.com/deeppomo/deeppomo/internal/tasks"
	"github.com/deeppomo/deeppomo/internal/users"
)

// app bundles the engines on one open database.
type app struct {
	cfg      *config.Config
	db       *db.DB
	users    *users.Service
	settings *settings.Service
	tasks    *tasks.Service
	sessions *pomodoro.Service
	links    *associations.Service
}

func loadConfig() (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openApp opens and migrates the configured database and wires the engines.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	d, err := db.Open(ctx, cfg.Database.DB())
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}

	links := associations.NewService(d)
	return &app{
		cfg:      cfg,
		db:       d,
		users:    users.NewService(d),
		settings: settings.NewService(d),
		tasks:    tasks.NewService(d, tasks.WithCascadeHook(links)),
		sessions: pomodoro.NewService(d, pomodoro.WithCascadeHook(links)),
		links:    links,
	}, nil
}

// purger builds the trash purge over both engines for the given window.
func (a *app) purger(schedule string, days int) *retention.Scheduler {
	return retention.NewScheduler(retention.Config{Schedule: schedule, Days: days}, []retention.Target{
		{Name: "tasks", Purger: a.tasks},
		{Name: "sessions", Purger: a.sessions},
	})
}

func (a *app) Close() error {
	return a.db.Close()
}

// withApp runs fn against the configured database. Log output goes to the
// configured file, or to stderr at warn level so it does not mix with
// command output.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initCLILogging(cfg)
	defer func() { _ = logging.Close() }()

	ctx := cmd.Context()
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return fn(ctx, a)
}

func initCLILogging(cfg *config.Config) {
	if cfg.Logging != nil {
		switch cfg.Logging.Output {
		case "", "stderr", "stdout":
		default:
			if err := logging.Init(cfg.Logging); err == nil {
				return
			}
		}
	}
	logging.SetOutput(os.Stderr, "warn")
}

// userScoped adds the --user flag that selects whose data a command uses.
func userScoped(cmd *cobra.Command, login *string) {
	cmd.PersistentFlags().StringVarP(login, "user", "u", os.Getenv("DEEPPOMO_USER"), "username or email (default $DEEPPOMO_USER)")
}

// resolveUser returns the id of the user named by login.
func (a *app) resolveUser(ctx context.Context, login string) (int64, error) {
	if login == "" {
		return 0, fmt.Errorf("no user selected: pass --user or set DEEPPOMO_USER")
	}
	u, err := a.users.Find(ctx, login)
	if err != nil {
		return 0, fmt.Errorf("unknown user %q: %w", login, err)
	}
	return u.ID, nil
}
