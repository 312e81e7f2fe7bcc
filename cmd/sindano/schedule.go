package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/sindano/internal/config"
	"github.com/jkaninda/sindano/internal/scheduler"
)

var (
	scheduleConfigPath string
	scheduleVerbose    bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run configured batch jobs on their cron schedules",
	Long: `Schedule starts a long-running process that fires the batch jobs declared
under scheduler.jobs in the config file. Each job names a cron schedule,
a patch spec file, and the document identities to process.

The process runs until interrupted; a failing job is logged and counted,
never fatal.`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVarP(&scheduleConfigPath, "config", "c", "", "config file path (or SINDANO_CONFIG env)")
	scheduleCmd.Flags().BoolVarP(&scheduleVerbose, "verbose", "v", false, "enable debug logging")
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	logger := newLogger(scheduleVerbose)

	cfg, err := config.Load(goutils.Env("SINDANO_CONFIG", scheduleConfigPath))
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	var schedMetrics *scheduler.Metrics
	if sc.Obs != nil && sc.Obs.Registry != nil {
		schedMetrics = scheduler.NewMetrics(sc.Obs.Registry)
	}

	sched, err := scheduler.New(sc.Engine, cfg.Scheduler, schedMetrics, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, err := sched.Start(ctx)
	if err != nil {
		return err
	}
	defer stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	return nil
}
