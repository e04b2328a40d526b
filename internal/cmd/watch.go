package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gobeacon/internal/config"
	"github.com/3leaps/gobeacon/internal/observability"
	"github.com/3leaps/gobeacon/internal/server"
	"github.com/3leaps/gobeacon/internal/server/handlers"
	"github.com/3leaps/gobeacon/pkg/jobtrack"
	"github.com/3leaps/gobeacon/pkg/notify"
	"github.com/3leaps/gobeacon/pkg/remote"
	"github.com/3leaps/gobeacon/pkg/sink"
)

var watchCmd = &cobra.Command{
	Use:   "watch [file...]",
	Short: "Track jobs and deliver notifications until interrupted",
	Long: `Run both engines until interrupted: submit any given files, poll every
tracked job through its lifecycle, and deliver service notifications on
the adaptive cadence.

While running, a local status server exposes health probes and read-only
views of the tracked jobs and stored notifications.

Example:
  gobeacon watch
  gobeacon watch report.csv data.parquet
  gobeacon watch --no-server --policy notify-policy.yaml`,
	RunE: runWatch,
}

var (
	watchNoServer bool
	watchPolicy   string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchNoServer, "no-server", false, "Disable the local status server")
	watchCmd.Flags().StringVar(&watchPolicy, "policy", "", "Path to a notification surface policy file")
}

// remoteHealthChecker probes the notification service.
type remoteHealthChecker struct {
	api remote.NotificationAPI
}

func (c remoteHealthChecker) CheckHealth(ctx context.Context) error {
	_, err := c.api.GetUnreadCount(ctx)
	return err
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.GetConfig()
	logger := observability.CLILogger

	jobClient := newJobClient()
	notifClient := newNotificationClient()
	snk := sink.NewLogSink(logger)

	jobs := jobtrack.New(jobClient, snk, nil, logger, jobtrack.Config{
		PollInterval:    cfg.Jobs.PollInterval,
		MaxPollInterval: cfg.Jobs.MaxPollInterval,
		BackoffFactor:   cfg.Jobs.BackoffFactor,
		RetireAfter:     cfg.Jobs.RetireAfter,
		RequestTimeout:  cfg.Remote.RequestTimeout,
	})
	defer jobs.Close()

	policy := notify.DefaultPolicy()
	if watchPolicy != "" {
		loaded, err := notify.LoadPolicy(watchPolicy)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid notification policy", err)
		}
		policy = loaded
	} else if cfg.Notifications.PolicyFile != "" {
		loaded, err := notify.LoadPolicy(cfg.Notifications.PolicyFile)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid notification policy", err)
		}
		policy = loaded
	}

	notifications := notify.New(notifClient, snk, nil, logger, notify.Config{
		PollInterval:      cfg.Notifications.PollInterval,
		SlowEvery:         cfg.Notifications.SlowEvery,
		InitialFetchLimit: cfg.Notifications.InitialFetchLimit,
		RetainRead:        cfg.Notifications.RetainRead,
		RequestTimeout:    cfg.Remote.RequestTimeout,
		RateLimit:         cfg.Notifications.RateLimit,
	}).WithPolicy(policy).WithActivitySource(jobs.HasActiveJobs)
	defer notifications.Close()

	if err := notifications.Initialize(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Notification engine failed to start", err)
	}

	for _, path := range args {
		if err := submitOne(ctx, jobs, path); err != nil {
			logger.Warn("Submission failed", zap.String("path", path), zap.Error(err))
		}
	}

	serverErr := make(chan error, 1)
	if cfg.Server.Enabled && !watchNoServer {
		handlers.InitHealthManager(versionInfo.Version)
		if cfg.Health.Enabled {
			handlers.GetHealthManager().RegisterChecker("remote", remoteHealthChecker{api: notifClient})
		}

		srv := server.New(cfg.Server.Host, cfg.Server.Port,
			server.WithVersion(versionInfo.Version),
			server.WithLogger(logger),
			server.WithJobSource(jobs),
			server.WithNotificationSource(notifications),
		)
		go func() {
			serverErr <- srv.Start(ctx,
				cfg.Server.ReadTimeout,
				cfg.Server.WriteTimeout,
				cfg.Server.IdleTimeout,
				cfg.Server.ShutdownTimeout)
		}()
	}

	logger.Info("Watching",
		zap.Int("submitted", len(args)),
		zap.String("remote", cfg.Remote.BaseURL))

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
		if cfg.Server.Enabled && !watchNoServer {
			if err := <-serverErr; err != nil {
				return exitError(foundry.ExitExternalServiceUnavailable, "Status server failed", err)
			}
		}
		return nil
	case err := <-serverErr:
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Status server failed", err)
		}
		return nil
	}
}

func submitOne(ctx context.Context, jobs *jobtrack.Engine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = jobs.Submit(ctx, filepath.Base(path), f, remote.SubmitOptions{})
	return err
}
