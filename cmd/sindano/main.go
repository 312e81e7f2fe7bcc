// Sindano — marker-based source patching and sandboxed execution.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sindano",
	Short: "Sindano — marker-based source patching with sandboxed execution.",
	Long: `Sindano scans source documents for patch markers, splices code fragments
into them (optionally shuffled and mixed with decoys), and executes the
patched result inside a capability-restricted sandbox. Every stage failure
is captured in the run outcome rather than aborting the pipeline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(scanCmd, runCmd, batchCmd, scheduleCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
