package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"restorable.io/restorable-home/internal/config"
	"restorable.io/restorable-home/internal/logging"
)

// ErrRestoreFailed marks errors of commands that ran, but could not
// restore or verify the state directory.
var ErrRestoreFailed = errors.New("restore failed")

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "restorable-home",
	Short: "Restore a service home directory from versioned backups",
	Long: `restorable-home rebuilds a service's state directory from the latest chain
of backup volumes in storage, or bootstraps a fresh one if nothing was ever
backed up. Each run is verified and recorded in a signed report.`,
	SilenceUsage: true,
}

// Execute runs the command line. It is cancelled on SIGINT and SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig loads the configuration selected by --config.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newLogger creates the logger for cfg. --verbose forces debug output.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	return logging.New(level, cfg.Logging.Development)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.restorable-home/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}
