package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/keiba-shutuba/config"
)

var rootCmd = &cobra.Command{
	Use:   "shutuba",
	Short: "Build race-day entry workbooks from netkeiba",
	Long: `shutuba collects the entry tables (出馬表) of every race held on a date
and renders them as one formatted workbook, one sheet per race.

Run "shutuba fetch <date>" for a one-shot export or "shutuba serve" for
the browser front end.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	def := config.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.String("base-url", def.BaseURL, "Base URL of the race site")
	flags.Duration("timeout", def.Timeout, "Per-request timeout")
	flags.String("user-agent", def.UserAgent, "User-Agent header sent with every request")
	flags.BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newFetchCmd(def), newServeCmd(def))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addOutputFlags registers the workbook flags shared by fetch and serve.
func addOutputFlags(cmd *cobra.Command, def *config.Config) {
	cmd.Flags().String("label", def.Label, "File name label: <label>_<YYYYMMDD>.xlsx")
	cmd.Flags().Int("zoom", def.Zoom, "Worksheet zoom percent")
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
