package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/sindano/internal/config"
	"github.com/jkaninda/sindano/internal/engine"
)

var (
	batchConfigPath string
	batchSpecFile   string
	batchWorkers    int
	batchJSON       bool
	batchVerbose    bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <identity>...",
	Short: "Run the patch pipeline over multiple documents",
	Long: `Batch runs the full pipeline independently for each document identity.
Entries are isolated: one document's failure never affects its siblings,
and the report always covers every identity.

Examples:
  sindano batch app.js lib.js worker.js --spec patches.yaml
  sindano batch app.js lib.js --spec patches.yaml --workers 8 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchConfigPath, "config", "c", "", "config file path (or SINDANO_CONFIG env)")
	batchCmd.Flags().StringVarP(&batchSpecFile, "spec", "s", "", "patch spec YAML file (required)")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "run documents concurrently with this many workers (0 = sequential)")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "print all outcomes as JSON")
	batchCmd.Flags().BoolVarP(&batchVerbose, "verbose", "v", false, "enable debug logging")

	_ = batchCmd.MarkFlagRequired("spec")
}

func runBatch(cmd *cobra.Command, args []string) error {
	logger := newLogger(batchVerbose)

	cfg, err := config.Load(goutils.Env("SINDANO_CONFIG", batchConfigPath))
	if err != nil {
		return err
	}

	spec, err := engine.LoadSpecFile(batchSpecFile)
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx := context.Background()

	var outcomes map[string]*engine.Outcome
	if batchWorkers > 0 {
		outcomes, err = sc.Engine.BatchProcessParallel(ctx, args, spec, nil, batchWorkers)
	} else {
		outcomes, err = sc.Engine.BatchProcess(ctx, args, spec, nil)
	}
	if err != nil {
		return err
	}

	if batchJSON {
		return printOutcomeJSON(outcomes)
	}

	identities := make([]string, 0, len(outcomes))
	for id := range outcomes {
		identities = append(identities, id)
	}
	sort.Strings(identities)

	var failed int
	for _, id := range identities {
		o := outcomes[id]
		status := "ok"
		if !o.OK() {
			status = "failed"
			failed++
		}
		fmt.Fprintf(os.Stderr, "%s: %s (markers=%d applied=%d duration=%s)\n",
			id, status, o.MarkersFound, o.PatchesApplied, o.Duration)
		for _, e := range o.Errors {
			fmt.Fprintf(os.Stderr, "  error: %s\n", e)
		}
	}
	fmt.Fprintf(os.Stderr, "batch: %d document(s), %d failed\n", len(outcomes), failed)
	return nil
}
