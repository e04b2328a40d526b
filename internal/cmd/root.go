// Package cmd implements the gobeacon command line interface.
package cmd

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gobeacon/internal/config"
	"github.com/3leaps/gobeacon/internal/observability"
	"github.com/3leaps/gobeacon/pkg/remote"
)

// versionInfo holds build-time version metadata, set via SetVersionInfo.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "gobeacon",
	Short: "Client-side job tracking and notification delivery",
	Long: `gobeacon tracks file processing jobs submitted to a job service and
delivers its notifications.

It polls each submitted job on an adaptive cadence, surfaces lifecycle
alerts, and runs a shared notification poller with a fast regime while
work is active and a slow regime when idle. A local status server
exposes health probes and read-only views of both engines.`,
	PersistentPreRunE: initApp,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

var (
	flagLogLevel   string
	flagLogProfile string
	flagRemoteURL  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogProfile, "log-profile", "", "Log profile: structured or console")
	rootCmd.PersistentFlags().StringVar(&flagRemoteURL, "remote-url", "", "Job service base URL")
}

// initApp loads configuration and initializes logging before any command
// runs. Flag values outrank environment and file configuration.
func initApp(cmd *cobra.Command, _ []string) error {
	overrides := map[string]any{}
	if flagLogLevel != "" {
		overrides["logging"] = map[string]any{"level": flagLogLevel}
	}
	if flagLogProfile != "" {
		logging, _ := overrides["logging"].(map[string]any)
		if logging == nil {
			logging = map[string]any{}
		}
		logging["profile"] = flagLogProfile
		overrides["logging"] = logging
	}
	if flagRemoteURL != "" {
		overrides["remote"] = map[string]any{"base_url": flagRemoteURL}
	}

	cfg, err := config.Load(cmd.Context(), overrides)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	if err := observability.InitLogging(cfg.Logging.Level, cfg.Logging.Profile); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	return nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		observability.SyncLogger()
		return 0
	}

	var ce *cliError
	if errors.As(err, &ce) {
		observability.CLILogger.Error(ce.message, zap.Error(ce.err))
		observability.SyncLogger()
		return ce.code
	}

	observability.CLILogger.Error("Command failed", zap.Error(err))
	observability.SyncLogger()
	return 1
}

// cliError carries a process exit code alongside the failure.
type cliError struct {
	code    int
	message string
	err     error
}

func (e *cliError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *cliError) Unwrap() error {
	return e.err
}

func exitError(code int, message string, err error) error {
	return &cliError{code: code, message: message, err: err}
}

// newJobClient builds a job service client from the loaded config.
func newJobClient() *remote.JobClient {
	cfg := config.GetConfig()
	return remote.NewJobClient(cfg.Remote.BaseURL, &http.Client{Timeout: cfg.Remote.RequestTimeout})
}

// newNotificationClient builds a notification client from the loaded config.
func newNotificationClient() *remote.NotificationClient {
	cfg := config.GetConfig()
	return remote.NewNotificationClient(cfg.Remote.BaseURL, &http.Client{Timeout: cfg.Remote.RequestTimeout})
}
