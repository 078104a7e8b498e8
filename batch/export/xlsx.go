// Package export writes reassembled datasets as XLSX workbooks next to the JSONL dataset.
package export

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/teranos/verdict/batch"
	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/logger"
)

// SheetName is the worksheet holding the dataset rows
const SheetName = "Decisions"

// maxCellText bounds free text per cell; Excel rejects cells over 32767 characters
const maxCellText = 32000

var headers = []string{
	"Hash ID",
	"Owner",
	"Date",
	"Decision",
	"Justification",
	"Text",
	"Sub-batch",
}

// XLSXSink is a batch.DatasetSink writing <owner>-complete.xlsx beside the dataset
type XLSXSink struct {
	logger *zap.SugaredLogger
}

var _ batch.DatasetSink = (*XLSXSink)(nil)

// NewXLSXSink creates the sink
func NewXLSXSink(log *zap.SugaredLogger) *XLSXSink {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &XLSXSink{logger: logger.AddAxSymbol(log)}
}

// Name identifies the sink in collection summaries
func (s *XLSXSink) Name() string { return "xlsx" }

// WorkbookPath returns the workbook written for a dataset
func WorkbookPath(datasetPath string) string {
	return strings.TrimSuffix(datasetPath, filepath.Ext(datasetPath)) + ".xlsx"
}

// Publish writes the workbook for one owner's dataset
func (s *XLSXSink) Publish(ctx context.Context, owner, datasetPath string, rows []batch.DatasetRow) error {
	start := time.Now()
	f, err := Workbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()

	path := WorkbookPath(datasetPath)
	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "failed to save workbook %s", path)
	}

	s.logger.Infow("Workbook written",
		logger.FieldOwnerKey, owner,
		logger.FieldPath, path,
		"rows", len(rows),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return nil
}

// Workbook builds a workbook with a header row and one row per dataset row
func Workbook(rows []batch.DatasetRow) (*excelize.File, error) {
	f := excelize.NewFile()
	if index, _ := f.GetSheetIndex(SheetName); index == -1 {
		if _, err := f.NewSheet(SheetName); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "failed to create sheet")
		}
	}
	// Drop the default sheet so the dataset is the only one
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to remove default sheet")
	}
	activeIndex, _ := f.GetSheetIndex(SheetName)
	f.SetActiveSheet(activeIndex)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "failed to write header %s", h)
		}
	}

	for n, r := range rows {
		row := n + 2
		values := []interface{}{
			r.HashID,
			r.OwnerKey,
			r.Date,
			r.Decision,
			truncate(r.Justification, maxCellText),
			truncate(r.Text, maxCellText),
			r.SubID,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				f.Close()
				return nil, errors.Wrapf(err, "failed to write row %d", row)
			}
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 20) // hash
	_ = f.SetColWidth(SheetName, "B", "C", 12) // owner, date
	_ = f.SetColWidth(SheetName, "D", "D", 10) // decision
	_ = f.SetColWidth(SheetName, "E", "E", 48) // justification
	_ = f.SetColWidth(SheetName, "F", "F", 80) // text
	_ = f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
	return f, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
