// Package cli implements the turnover command-line interface using Cobra.
// Commands run in-process against the configured store, so an operator can
// inspect and drive workflows without the API server running.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "turnover",
	Short: "turnover: gated five-step completion for property work",
	Long: `turnover tracks property tasks (cleaning, move-in, maintenance ...) and the
evidence-gated workflow a field worker completes for each one:

  1 access     at least 1 photo
  2 before     at least 3 photos
  3 checklist  every item checked
  4 after      at least 3 photos
  5 handoff    explicit final submission

Run 'turnover serve' for the HTTP API, or use the task and workflow
commands directly against the local store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json or yaml")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
