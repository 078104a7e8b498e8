package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/logger"
	"github.com/teranos/verdict/pulse/ledger"
	"github.com/teranos/verdict/pulse/schedule"
	"github.com/teranos/verdict/sym"
)

// StatusCmd summarizes the ledger
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: sym.Prefix("status") + "Summarize sub-batch states per owner key",
	Long: sym.DB + ` status - Show how far each owner key has progressed.

Counts every ledger record per owner by state and lists the most recent
polling cycles. Does not contact the remote service.

Examples:
  verdict status               # Ledger summary and last 10 cycles
  verdict status --runs 0      # Ledger summary only
  verdict status --json        # Machine-readable output`,
	RunE: runStatus,
}

var (
	statusRuns int
	statusJSON bool
)

func init() {
	StatusCmd.Flags().IntVar(&statusRuns, "runs", 10, "Number of recent cycles to show")
	StatusCmd.Flags().BoolVarP(&statusJSON, "json", "j", false, "Output as JSON")
}

type statusReport struct {
	Owners []ledger.Summary     `json:"owners"`
	Runs   []*schedule.CycleRun `json:"runs,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn, dialect, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := context.Background()
	store := ledger.NewStore(conn, dialect, logger.ComponentLogger("verdict.ledger"))
	summaries, err := store.Summarize(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to summarize ledger")
	}

	report := statusReport{Owners: summaries}
	if statusRuns > 0 {
		report.Runs, err = schedule.NewRunStore(conn, dialect).ListRecent(ctx, statusRuns)
		if err != nil {
			return errors.Wrap(err, "failed to list recent cycles")
		}
	}

	if statusJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status to JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	if len(summaries) == 0 {
		pterm.Info.Println("Ledger is empty; run `verdict run` to partition inputs")
	} else {
		pterm.DefaultSection.Printf("%s Ledger", sym.DB)
		if err := pterm.DefaultTable.WithHasHeader().WithData(ownerTable(summaries)).Render(); err != nil {
			return err
		}
	}

	if len(report.Runs) > 0 {
		pterm.DefaultSection.Printf("%s Recent cycles", sym.Pulse)
		if err := pterm.DefaultTable.WithHasHeader().WithData(runTable(report.Runs)).Render(); err != nil {
			return err
		}
	}
	return nil
}

// ownerTable renders ledger summaries with a totals row
func ownerTable(summaries []ledger.Summary) pterm.TableData {
	data := pterm.TableData{{"Owner", "Sub-batches", "Unsubmitted", "Submitted", "Success", "Invalid", "Complete"}}
	var total ledger.Summary
	for _, s := range summaries {
		data = append(data, summaryRow(s.OwnerKey, s))
		total.Total += s.Total
		total.Unsubmitted += s.Unsubmitted
		total.Submitted += s.Submitted
		total.TerminalSuccess += s.TerminalSuccess
		total.TerminalInvalid += s.TerminalInvalid
	}
	if len(summaries) > 1 {
		data = append(data, summaryRow("total", total))
	}
	return data
}

func summaryRow(label string, s ledger.Summary) []string {
	complete := "no"
	if s.Complete() {
		complete = "yes"
	}
	return []string{
		label,
		strconv.Itoa(s.Total),
		strconv.Itoa(s.Unsubmitted),
		strconv.Itoa(s.Submitted),
		strconv.Itoa(s.TerminalSuccess),
		strconv.Itoa(s.TerminalInvalid),
		complete,
	}
}

func runTable(runs []*schedule.CycleRun) pterm.TableData {
	data := pterm.TableData{{"Started", "Reason", "Status", "Duration", "In flight", "Admitted", "Records", "Failed"}}
	for _, r := range runs {
		data = append(data, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Reason,
			r.Status,
			r.Duration().String(),
			strconv.Itoa(r.Inflight),
			strconv.FormatBool(r.Admitted),
			strconv.Itoa(r.Records),
			strconv.Itoa(r.Failed),
		})
	}
	return data
}
