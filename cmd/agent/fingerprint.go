package main

import (
	"encoding/json"
	"os"

	"github.com/eternisai/enchanted-push/internal/fingerprint"
	"github.com/spf13/cobra"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Print the device fingerprint and the attributes it is computed from",
	RunE: func(cmd *cobra.Command, args []string) error {
		resolution, _ := cmd.Flags().GetString("screen-resolution")
		attrs := fingerprint.Collect(fingerprint.Overrides{
			Version:          version,
			ScreenResolution: resolution,
		})

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
			Attributes  fingerprint.Attributes  `json:"attributes"`
		}{fingerprint.Compute(attrs), attrs})
	},
}

func init() {
	fingerprintCmd.Flags().String("screen-resolution", os.Getenv("SCREEN_RESOLUTION"), "Screen resolution to include, e.g. 2560x1440")
}
