package cli

import (
	"github.com/spf13/cobra"

	"market-anomaly-alerts/internal/app"
)

var detectOpts app.DetectOptions

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run one detection pass and print the alert feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Detect(cmd.Context(), detectOpts)
	},
}

func init() {
	detectCmd.Flags().StringVar(&detectOpts.InputPath, "input", "", "Read the market chart from a JSON snapshot instead of the provider")
	detectCmd.Flags().StringVar(&detectOpts.CSVPath, "csv", "", "Path to write the alert CSV (defaults to config)")
	detectCmd.Flags().StringVar(&detectOpts.PNGPath, "png", "", "Path to write the PNG chart (defaults to config)")
	detectCmd.Flags().IntVar(&detectOpts.MaxPoints, "max-points", 0, "Maximum price points drawn on the chart (defaults to config)")
	detectCmd.Flags().BoolVar(&detectOpts.Notify, "notify", false, "Send alerts even if alerting is disabled in config")
	detectCmd.Flags().BoolVar(&detectOpts.Quiet, "quiet", false, "Do not print the alert table")
}
