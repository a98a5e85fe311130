package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/truthguard/internal/infrastructure/config"
	"github.com/felixgeelhaar/truthguard/internal/infrastructure/logging"
	"github.com/felixgeelhaar/truthguard/pkg/scoring"
	"github.com/felixgeelhaar/truthguard/pkg/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var configPath string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "truthguard",
	Version: Version,
	Short:   "Credibility checks for text you read on the web",
	Long: `TruthGuard scores selected web text for credibility.

Run 'truthguard serve' to start the background: it attaches to Chrome,
injects the in-page overlay, relays checks to the scoring service and
raises alerts for high-risk content. The other commands talk to that
background or to the scoring service directly.`,
	SilenceUsage: true,
}

// Execute runs the root command until it returns or the process is
// interrupted. Hints attached to CLIErrors are printed to stderr.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := RootCmd.ExecuteContext(ctx)
	var cliErr *CLIError
	if errors.As(err, &cliErr) && cliErr.Hint != "" {
		fmt.Fprintf(RootCmd.ErrOrStderr(), "Hint: %s\n", cliErr.Hint)
	}
	return err
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.truthguard/config.yaml)")
}

// runtimeEnv is what every command needs: the loaded configuration and a
// logger built from it.
type runtimeEnv struct {
	cfg    config.Config
	logger *zap.Logger
}

func loadEnv() (*runtimeEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, NewCLIError("failed to load config", "Check the file passed with --config", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, NewCLIError("failed to initialize logging", "log.level must be debug, info, warn or error", err)
	}
	return &runtimeEnv{cfg: cfg, logger: logger}, nil
}

func (e *runtimeEnv) close() {
	_ = e.logger.Sync()
}

func (e *runtimeEnv) settingsStore() *storage.FileSettingsStore {
	return storage.NewFileSettingsStore(e.cfg.Settings.Path, storage.WithLogger(e.logger.Named("settings")))
}

// openSettings returns the settings store, seeding the configured service
// URL on first use.
func (e *runtimeEnv) openSettings(ctx context.Context) (*storage.FileSettingsStore, error) {
	store := e.settingsStore()
	if err := seedServiceURL(ctx, store, e.cfg.Settings.ServiceURL); err != nil {
		return nil, MapError(err)
	}
	return store, nil
}

func (e *runtimeEnv) scoringClient() *scoring.Client {
	opts := []scoring.Option{scoring.WithLogger(e.logger.Named("scoring"))}
	if e.cfg.Scoring.Timeout > 0 {
		opts = append(opts, scoring.WithTimeout(e.cfg.Scoring.Timeout))
	}
	if e.cfg.Scoring.MaxAttempts > 1 {
		opts = append(opts, scoring.WithRetry(e.cfg.Scoring.MaxAttempts, e.cfg.Scoring.RetryDelay))
	}
	return scoring.NewClient(opts...)
}

// websiteURL is the companion page address, empty when it is disabled.
func (e *runtimeEnv) websiteURL() string {
	if !e.cfg.Web.Enabled {
		return ""
	}
	return "http://" + e.cfg.Web.Addr
}
