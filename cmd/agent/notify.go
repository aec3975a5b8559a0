package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/eternisai/enchanted-push/internal/registry"
	"github.com/spf13/cobra"
)

var notifyCmd = &cobra.Command{
	Use:   "notify <user-id>",
	Short: "Send a notification through Firebase Cloud Messaging to every device a user registered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.FirebaseCredJSON == "" {
			return errors.New("FIREBASE_CRED_JSON is required to send notifications")
		}

		title, _ := cmd.Flags().GetString("title")
		body, _ := cmd.Flags().GetString("body")
		url, _ := cmd.Flags().GetString("url")

		ctx := cmd.Context()
		fb, err := registry.NewFirebaseClient(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredJSON)
		if err != nil {
			return err
		}
		defer fb.Close()

		n := registry.Notification{Title: title, Body: body}
		if url != "" {
			n.Data = map[string]string{"url": url}
		}

		store := registry.NewFirestoreStore(fb.Firestore, log)
		results, sendErr := registry.NewSender(fb.Messaging, store, cfg.FirebaseProjectID, cfg.FirebaseCredJSON, log).Send(ctx, args[0], n)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DEVICE\tTOKEN\tRESULT")
		for _, r := range results {
			result := "sent"
			if !r.Success {
				result = r.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.DeviceID, r.Token, result)
		}
		w.Flush()
		return sendErr
	},
}

func init() {
	notifyCmd.Flags().String("title", "Enchanted", "Notification title")
	notifyCmd.Flags().String("body", "Test notification", "Notification body")
	notifyCmd.Flags().String("url", "", "Page to open when the notification is clicked")
}
