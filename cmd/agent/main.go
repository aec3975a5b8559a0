package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/eternisai/enchanted-push/internal/config"
	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

var rootCmd = &cobra.Command{
	Use:          "push-agent",
	Short:        "Push notification agent for Enchanted application pages",
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = version
	rootCmd.AddCommand(serveCmd, fingerprintCmd, registrarCmd, publishCmd, notifyCmd)
}

// loadConfig loads the configuration and builds the logger it describes.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Version == "dev" {
		cfg.Version = version
	}
	return cfg, logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat)), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
