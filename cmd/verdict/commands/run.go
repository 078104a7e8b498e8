package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/verdict/batch"
	"github.com/teranos/verdict/internal/util"
	"github.com/teranos/verdict/logger"
	"github.com/teranos/verdict/pulse/schedule"
	"github.com/teranos/verdict/sym"
)

// RunCmd drives the polling cycle
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: sym.Prefix("run") + "Partition, upload, submit and poll on a schedule",
	Long: sym.Pulse + ` run - Drive every sub-batch toward a terminal state.

Each cycle:
- partitions new inputs into sub-batches and writes missing artifacts
- uploads artifacts whose remote file is missing
- checks remote capacity once, then submits, polls and resubmits
  at most batch.max_records_per_cycle pending records

With batch.watch_inputs the inputs directory is watched and a change
triggers an extra cycle. Ctrl+C stops after the current cycle.

Examples:
  verdict run           # Run until interrupted
  verdict run --once    # One cycle, then exit`,
	RunE: runRun,
}

var runOnce bool

func init() {
	RunCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single cycle and exit")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	conn, dialect, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	orch, err := newOrchestrator(cfg, conn, dialect)
	if err != nil {
		return err
	}
	bc := batch.NewConfig(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runs := schedule.NewRunStore(conn, dialect)
	ticker := schedule.NewTickerWithContext(ctx, orch.RunCycle, runs, schedule.TickerConfig{
		Interval:   bc.Interval,
		RunAtStart: true,
	}, logger.Logger)

	if runOnce {
		run, err := ticker.RunOnce(ctx, schedule.ReasonManual)
		if run != nil {
			printRun(run)
		}
		return err
	}

	ticker.Start()

	var watcher *batch.InputWatcher
	if cfg.Batch.WatchInputs {
		watcher, err = batch.NewInputWatcher(bc.InputsDir, 0, func() {
			ticker.Trigger(schedule.ReasonInputs)
		}, logger.Logger)
		if err != nil {
			ticker.Stop()
			return err
		}
		watcher.Start()
	}

	pterm.Info.Printf("%s verdict running\n", sym.Pulse)
	pterm.Printf("  Inputs:        %s\n", bc.InputsDir)
	pterm.Printf("  Interval:      %v\n", bc.Interval)
	pterm.Printf("  Workers:       %d\n", bc.Workers)
	pterm.Printf("  Admission:     in-flight < %d\n", bc.AdmissionFloor)
	pterm.Printf("  Watch inputs:  %t\n", cfg.Batch.WatchInputs)
	pterm.Printf("\n%s Press Ctrl+C to stop after the current cycle\n\n", sym.Pulse)

	<-ctx.Done()
	pterm.Info.Printf("\n%s Shutting down...\n", sym.PulseClose)

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warnw("Input watcher did not stop cleanly", logger.FieldError, err)
		}
	}
	ticker.Stop()

	pterm.Success.Println("Stopped")
	return nil
}

func printRun(run *schedule.CycleRun) {
	status := pterm.Success
	if run.Status == schedule.RunStatusFailed {
		status = pterm.Error
	}
	status.Printf("Cycle %s %s in %v\n", run.ID, run.Status, run.Duration())
	pterm.Printf("  In flight: %d (admitted: %t)\n", run.Inflight, run.Admitted)
	pterm.Printf("  Records:   %d (%d succeeded, %d failed)\n", run.Records, run.Succeeded, run.Failed)
	if msg := util.Deref(run.ErrorMessage, ""); msg != "" {
		pterm.Printf("  Error:     %s\n", msg)
	}
	fmt.Println()
}
