package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deeppomo/deeppomo/internal/api"
	"github.com/deeppomo/deeppomo/internal/auth"
	"github.com/deeppomo/deeppomo/internal/banner"
	"github.com/deeppomo/deeppomo/internal/health"
	"github.com/deeppomo/deeppomo/internal/logging"
)

func newServeCmd() *cobra.Command {
	var (
		host     string
		port     int
		noBanner bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the deeppomo HTTP API on the configured address.

The database schema is created or upgraded before the listener opens.
When redis.url is set, issued tokens can be revoked through /auth/logout.
When retention.enabled is set, trashed tasks and sessions older than
retention.days are purged on retention.schedule.

Examples:
  deeppomo serve                 # Listen on server.host:server.port
  deeppomo serve --port 9000     # Override the port`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			if err := logging.Init(cfg.Logging); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			defer func() { _ = logging.Close() }()
			log := logging.WithComponent("server")

			ctx := cmd.Context()
			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			tokenOpts := []auth.Option{auth.WithIssuer(cfg.Auth.Issuer)}
			checker, revoker, closeRedis := a.healthChecker(ctx)
			defer closeRedis()
			if revoker != nil {
				tokenOpts = append(tokenOpts, auth.WithRevoker(revoker))
			}

			server := api.NewServer(api.Services{
				Users:    a.users,
				Settings: a.settings,
				Tasks:    a.tasks,
				Sessions: a.sessions,
				Links:    a.links,
				Tokens:   auth.NewTokenService(cfg.Auth.SecretKey, cfg.Auth.AccessTokenTTL, tokenOpts...),
				Health:   checker,
			}, api.Config{
				RequestTimeout: cfg.Server.RequestTimeout,
				CORSOrigins:    cfg.Server.CORSOrigins,
			})

			if r := cfg.Retention; r != nil && r.Enabled {
				purger := a.purger(r.Schedule, r.Days)
				if err := purger.Start(ctx); err != nil {
					return fmt.Errorf("failed to start retention scheduler: %w", err)
				}
				defer purger.Stop()
			}

			httpServer := &http.Server{
				Addr:         cfg.Server.Addr(),
				Handler:      server.Router(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  120 * time.Second,
			}

			if !noBanner {
				banner.StartupWithHealth(cmd.OutOrStdout(), version, "http://"+cfg.Server.Addr(), checker.Run(ctx))
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("starting server", slog.String("addr", httpServer.Addr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			// Wait for shutdown signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			select {
			case err, ok := <-errCh:
				if ok {
					return fmt.Errorf("http server error: %w", err)
				}
				return nil
			case <-sigChan:
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http server shutdown: %w", err)
			}
			log.Info("shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().BoolVar(&noBanner, "no-banner", false, "do not print the startup banner")

	return cmd
}

// unreachable stands in for a service that could not be connected to, so
// health checks still report it.
type unreachable struct{ err error }

func (u unreachable) Ping(context.Context) error { return u.err }

// healthChecker builds the dependency checks. When Redis is configured and
// reachable it also returns the token revoker backed by it. The returned
// func releases the Redis connection.
func (a *app) healthChecker(ctx context.Context) (*health.Checker, *auth.RedisRevoker, func()) {
	opts := []health.Option{health.WithSchemaCheck(a.db.SchemaReady)}
	if !a.cfg.Redis.Enabled() {
		return health.NewChecker(a.db, a.db.Driver(), opts...), nil, func() {}
	}

	client, err := auth.NewRedisClient(ctx, a.cfg.Redis.URL)
	if err != nil {
		logging.Warn("token revocation disabled", slog.Any("error", err))
		opts = append(opts, health.WithRedis(unreachable{err: err}))
		return health.NewChecker(a.db, a.db.Driver(), opts...), nil, func() {}
	}

	revoker := auth.NewRedisRevoker(client)
	opts = append(opts, health.WithRedis(revoker))
	return health.NewChecker(a.db, a.db.Driver(), opts...), revoker, func() { _ = client.Close() }
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.db.SchemaReady(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s)\n", a.db.Driver())
				return nil
			})
		},
	}
}

func newPurgeCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Permanently remove old trashed tasks and sessions",
		Long: `Permanently remove tasks and sessions that were soft-deleted more
than --days days ago. Defaults to retention.days from the config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if !cmd.Flags().Changed("days") && a.cfg.Retention != nil {
					days = a.cfg.Retention.Days
				}
				if days < 1 {
					return fmt.Errorf("--days must be at least 1")
				}

				purger := a.purger("", days)
				removed, err := purger.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d tasks and %d sessions deleted before %s\n",
					removed["tasks"], removed["sessions"], formatTime(purger.Cutoff()))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "purge rows deleted more than this many days ago")
	return cmd
}
