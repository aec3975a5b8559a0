package main

import (
	"fmt"
	"io"
	"os"

	"github.com/eternisai/enchanted-push/internal/config"
	"github.com/eternisai/enchanted-push/internal/provider/natsprovider"
	"github.com/eternisai/enchanted-push/internal/push"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var registrarCmd = &cobra.Command{
	Use:   "registrar",
	Short: "Issue and revoke development push tokens over NATS",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		nc, err := connect(cfg, "enchanted-push-registrar")
		if err != nil {
			return err
		}
		defer nc.Drain()

		return natsprovider.NewRegistrar(nc, natsprovider.NewSubjects(cfg.NatsSubjectPrefix, cfg.Push), log).Run(ctx)
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish <token> [payload.json]",
	Short: "Deliver a push payload to a token over NATS",
	Long:  "Deliver a push payload to a token over NATS. The payload is read from the file argument or from stdin.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		var payload []byte
		if len(args) == 2 {
			payload, err = os.ReadFile(args[1])
		} else {
			payload, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("reading payload: %w", err)
		}
		if _, err := push.Decode(payload); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}

		nc, err := connect(cfg, "enchanted-push-publisher")
		if err != nil {
			return err
		}
		defer nc.Close()

		messageID, _ := cmd.Flags().GetString("id")
		subjects := natsprovider.NewSubjects(cfg.NatsSubjectPrefix, cfg.Push)
		if err := natsprovider.Publish(cmd.Context(), nc, subjects, push.Token(args[0]), payload, messageID); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Published to %s\n", subjects.Deliver(push.Token(args[0])))
		return nil
	},
}

func init() {
	publishCmd.Flags().String("id", "", "Message id (random when empty)")
}

func connect(cfg *config.Config, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.NatsURL, nats.Name(name))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.NatsURL, err)
	}
	return nc, nil
}
