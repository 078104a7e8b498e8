package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/verdict/cmd/verdict/commands"
	"github.com/teranos/verdict/logger"
)

var rootCmd = &cobra.Command{
	Use:   "verdict",
	Short: "verdict - batch classification orchestrator",
	Long: `verdict - Classify large request sets through a remote batch API.

Per-owner input files are partitioned into sub-batches of at most 100
requests, uploaded, submitted while the service has capacity, polled until
they finish and joined back to the originating requests.

Available commands:
  am      - Show and validate configuration
  run     - Partition, upload, submit and poll on a schedule
  collect - Fetch outputs and reassemble datasets
  status  - Summarize sub-batch states per owner key
  version - Show build information

Examples:
  verdict run                # Poll every interval until interrupted
  verdict run --once         # One cycle, then exit
  verdict collect AAPL MSFT  # Reassemble two owners
  verdict status             # Ledger summary`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// am show prints configuration only
		if cmd.Name() == "show" {
			return nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := commands.InitLogging(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit JSON logs")
	rootCmd.PersistentFlags().StringVar(&commands.ConfigFile, "config", "", "Read configuration from this file only")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.CollectCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
