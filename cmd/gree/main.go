package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/zberg/go-gree/internal/config"
	"github.com/zberg/go-gree/internal/logging"
	"github.com/zberg/go-gree/internal/ui"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	logLevel   string
	bcastAddr  string
	timeout    time.Duration

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gree",
	Short: "Gree air conditioner LAN control CLI",
	Long: `A command line interface for Gree (EWPE Smart) air conditioners on the
local network. Devices are discovered by broadcast, bound to obtain their
device key, and then read or controlled by alias, MAC, name or IP address.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		level := logLevel
		if level == "" {
			level = cfg.LogLevel
		}
		if err := logging.Initialize(level); err != nil {
			return err
		}
		logging.GetLogger().Debug("logging initialized", zap.String("level", level))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default $"+logging.LogLevelEnvVar+")")
	rootCmd.PersistentFlags().StringVar(&bcastAddr, "bcast", "", "broadcast address for discovery")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "per-request timeout")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ui.Failure(err))
		stop()
		os.Exit(1)
	}
}
