package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/sindano/internal/config"
	"github.com/jkaninda/sindano/internal/engine"
)

var (
	runConfigPath string
	runSpecFile   string
	runFragments  []string
	runRandomize  bool
	runDecoys     bool
	runPreserve   bool
	runTimeoutMs  int
	runJSON       bool
	runVerbose    bool
)

var runCmd = &cobra.Command{
	Use:   "run <identity>",
	Short: "Patch a document and execute it in the sandbox",
	Long: `Run drives one document through the full pipeline: scan for markers,
splice in fragments (optionally shuffled and mixed with decoys), then
execute the patched result inside the sandbox.

The pipeline never aborts on a stage failure — every error lands in the
printed outcome. The command exits non-zero only when the patch spec
itself is malformed or initialization fails.

Examples:
  sindano run app.js --fragment 'console.log("hi");'
  sindano run app.js --spec patches.yaml --randomize --decoys
  sindano run app.js --spec patches.yaml --timeout 500 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "config file path (or SINDANO_CONFIG env)")
	runCmd.Flags().StringVarP(&runSpecFile, "spec", "s", "", "patch spec YAML file")
	runCmd.Flags().StringArrayVarP(&runFragments, "fragment", "f", nil, "code fragment to splice (repeatable, appended after spec fragments)")
	runCmd.Flags().BoolVar(&runRandomize, "randomize", false, "shuffle fragment order before applying")
	runCmd.Flags().BoolVar(&runDecoys, "decoys", false, "mix generated decoy fragments into the plan")
	runCmd.Flags().BoolVar(&runPreserve, "preserve", false, "retain the pre-patch text in the outcome")
	runCmd.Flags().IntVar(&runTimeoutMs, "timeout", 0, "sandbox timeout in milliseconds (0 = engine default)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full outcome as JSON")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "enable debug logging")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := newLogger(runVerbose)

	cfg, err := config.Load(goutils.Env("SINDANO_CONFIG", runConfigPath))
	if err != nil {
		return err
	}

	spec, err := buildSpec(runSpecFile, runFragments)
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	outcome, err := sc.Engine.RunWithPatches(context.Background(), args[0], spec, nil)
	if err != nil {
		return err
	}

	if runJSON {
		return printOutcomeJSON(outcome)
	}
	printOutcome(outcome)
	return nil
}

// buildSpec assembles the patch spec from a YAML file, flag fragments, or both.
func buildSpec(specFile string, fragments []string) (engine.PatchSpec, error) {
	var spec engine.PatchSpec
	if specFile != "" {
		loaded, err := engine.LoadSpecFile(specFile)
		if err != nil {
			return engine.PatchSpec{}, err
		}
		spec = loaded
	}
	spec.Fragments = append(spec.Fragments, fragments...)

	// Flags only switch features on — a spec file setting is never undone.
	if runRandomize {
		spec.RandomizeOrder = true
	}
	if runDecoys {
		spec.AddFakePatches = true
	}
	if runPreserve {
		spec.PreserveOriginal = true
	}
	if runTimeoutMs > 0 {
		spec.TimeoutMs = runTimeoutMs
	}
	return spec, nil
}

func printOutcome(o *engine.Outcome) {
	status := "ok"
	if !o.OK() {
		status = "failed"
	}
	fmt.Fprintf(os.Stderr, "%s: %s (markers=%d applied=%d duration=%s)\n",
		o.Identity, status, o.MarkersFound, o.PatchesApplied, o.Duration)
	for _, e := range o.Errors {
		fmt.Fprintf(os.Stderr, "  error: %s\n", e)
	}
	if o.Output != "" {
		fmt.Fprintf(os.Stderr, "--- console ---\n%s", o.Output)
	}
	if o.Result != nil {
		fmt.Printf("%v\n", o.Result)
	}
}

func printOutcomeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
