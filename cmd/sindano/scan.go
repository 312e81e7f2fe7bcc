package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/sindano/internal/config"
)

var (
	scanConfigPath string
	scanVerbose    bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <identity>",
	Short: "Report patch marker occurrences in a document",
	Long: `Scan loads a document by identity and reports every patch marker line
without modifying anything.

Examples:
  sindano scan app.js
  sindano scan lib/vendor.js --config sindano.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanConfigPath, "config", "c", "", "config file path (or SINDANO_CONFIG env)")
	scanCmd.Flags().BoolVarP(&scanVerbose, "verbose", "v", false, "enable debug logging")
}

func runScan(cmd *cobra.Command, args []string) error {
	logger := newLogger(scanVerbose)

	cfg, err := config.Load(goutils.Env("SINDANO_CONFIG", scanConfigPath))
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	identity := args[0]
	result, err := sc.Engine.Scan(context.Background(), identity)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d marker(s)\n", identity, result.Count)
	for _, m := range result.Markers {
		fmt.Printf("  line %d (indent %q)\n", m.Line, m.Indent)
	}
	return nil
}
