package commands

import (
	"context"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/verdict/batch"
	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/sym"
)

// CollectCmd reassembles finished owners into datasets
var CollectCmd = &cobra.Command{
	Use:   "collect [owner...]",
	Short: sym.Prefix("collect") + "Fetch outputs and reassemble datasets",
	Long: sym.AX + ` collect - Join remote answers back to their requests.

Downloads the output of every successful sub-batch that is not already on
disk, validates each answer and writes <owner>-complete.jsonl to the
datasets directory. Without arguments every owner in the ledger is collected.

Owners with unfinished sub-batches are collected partially unless
collect.require_complete is set.

Examples:
  verdict collect              # All owners
  verdict collect AAPL MSFT    # Two owners`,
	RunE: runCollect,
}

func runCollect(cmd *cobra.Command, args []string) error {
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

	summaries, err := orch.Collect(context.Background(), args)
	if len(summaries) > 0 {
		if rerr := pterm.DefaultTable.WithHasHeader().WithData(collectTable(summaries)).Render(); rerr != nil {
			return rerr
		}
		for _, s := range summaries {
			for sink, serr := range s.SinkErrors {
				pterm.Warning.Printf("%s: %s sink failed: %v\n", s.OwnerKey, sink, serr)
			}
		}
	}
	if err != nil {
		if hint := errors.FlattenHints(err); hint != "" {
			pterm.Info.Println(hint)
		}
		return err
	}
	if len(summaries) == 0 {
		pterm.Info.Println("Nothing to collect")
	}
	return nil
}

func collectTable(summaries []batch.CollectSummary) pterm.TableData {
	data := pterm.TableData{{"Owner", "Sub-batches", "Downloaded", "Missing", "Rows", "Failed", "Invalid", "Unmatched", "Partial", "Dataset"}}
	for _, s := range summaries {
		partial := "no"
		if s.Partial {
			partial = "yes"
		}
		data = append(data, []string{
			s.OwnerKey,
			strconv.Itoa(s.Ledger.Total),
			strconv.Itoa(s.Downloaded),
			strconv.Itoa(s.Missing),
			strconv.Itoa(s.Stats.Matched),
			strconv.Itoa(s.Stats.FailedRequests),
			strconv.Itoa(s.Stats.InvalidResults),
			strconv.Itoa(s.Stats.UnmatchedRequests),
			partial,
			s.DatasetPath,
		})
	}
	return data
}
