package main

import (
	"github.com/eternisai/enchanted-push/internal/agent"
	"github.com/eternisai/enchanted-push/internal/provider/natsprovider"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the push agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		gin.SetMode(cfg.GinMode)

		ctx, stop := signalContext()
		defer stop()

		provider := natsprovider.NewProvider(natsprovider.Options{
			URL:    cfg.NatsURL,
			Prefix: cfg.NatsSubjectPrefix,
		}, log)

		a, err := agent.New(ctx, cfg, provider, log)
		if err != nil {
			return err
		}
		return a.Run(ctx)
	},
}
