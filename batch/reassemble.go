package batch

import (
	"bufio"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/teranos/verdict/errors"
)

// ResultRecord is one validated answer from a remote output file
type ResultRecord struct {
	HashID        string `json:"hash_id"`
	CustomID      string `json:"custom_id"`
	SubID         int    `json:"sub_id"`
	Decision      string `json:"decision"`
	Justification string `json:"justification"`
}

// DatasetRow is a request joined with its answer
type DatasetRow struct {
	HashID        string `json:"hash_id"`
	OwnerKey      string `json:"owner_key"`
	Date          string `json:"date"`
	Text          string `json:"text"`
	SubID         int    `json:"sub_id"`
	Decision      string `json:"decision"`
	Justification string `json:"justification"`
}

// ReassembleStats counts what reassembly kept and dropped
type ReassembleStats struct {
	Files             int `json:"files"`
	Lines             int `json:"lines"`
	Results           int `json:"results"`
	FailedRequests    int `json:"failed_requests"`    // non-200 or error lines
	InvalidResults    int `json:"invalid_results"`    // content failing the decision schema
	DuplicateResults  int `json:"duplicate_results"`  // later answers for an already answered key
	Matched           int `json:"matched"`
	UnmatchedRequests int `json:"unmatched_requests"` // requests with no answer
	DuplicateRequests int `json:"duplicate_requests"` // input items repeating an earlier key
	UnmatchedResults  int `json:"unmatched_results"`  // answers with no request
}

// outputLine is one line of a remote output file
type outputLine struct {
	ID       string `json:"id"`
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int `json:"status_code"`
		Body       struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		} `json:"body"`
	} `json:"response"`
	Error json.RawMessage `json:"error"`
}

func (l *outputLine) failed() bool {
	if l.Response == nil || l.Response.StatusCode != http.StatusOK {
		return true
	}
	e := strings.TrimSpace(string(l.Error))
	return e != "" && e != "null"
}

func (l *outputLine) content() string {
	if l.Response == nil || len(l.Response.Body.Choices) == 0 {
		return ""
	}
	return l.Response.Body.Choices[0].Message.Content
}

// ReadResults parses one output file. Lines that failed remotely or whose
// content fails validation are counted and dropped.
func ReadResults(path string, validator *ResultValidator, stats *ReassembleStats) ([]ResultRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open output %s", path)
	}
	defer f.Close()

	sub := subIDFromName(path)
	var results []ResultRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		stats.Lines++

		var line outputLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			stats.InvalidResults++
			continue
		}
		if line.failed() {
			stats.FailedRequests++
			continue
		}
		answer, err := validator.Parse(line.content())
		if err != nil {
			stats.InvalidResults++
			continue
		}
		key := CorrelationKeyFromCustomID(line.CustomID)
		if key == "" {
			stats.InvalidResults++
			continue
		}
		results = append(results, ResultRecord{
			HashID:        key,
			CustomID:      line.CustomID,
			SubID:         sub,
			Decision:      answer.Decision,
			Justification: answer.Justification,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read output %s", path)
	}
	stats.Files++
	stats.Results += len(results)
	return results, nil
}

// Join inner-joins results with requests on the correlation key. Rows follow
// result order; only the first answer per key is kept. Input items that repeat
// a key are joined once and counted as duplicate requests.
func Join(owner string, items []RequestItem, results []ResultRecord, stats *ReassembleStats) []DatasetRow {
	requests := indexByHash(items)
	answered := make(map[string]bool, len(results))

	rows := make([]DatasetRow, 0, len(results))
	for _, r := range results {
		if answered[r.HashID] {
			stats.DuplicateResults++
			continue
		}
		item, ok := requests[r.HashID]
		if !ok {
			stats.UnmatchedResults++
			continue
		}
		answered[r.HashID] = true
		rows = append(rows, DatasetRow{
			HashID:        r.HashID,
			OwnerKey:      owner,
			Date:          item.Date,
			Text:          item.Text,
			SubID:         r.SubID,
			Decision:      r.Decision,
			Justification: r.Justification,
		})
	}
	stats.Matched = len(rows)
	stats.UnmatchedRequests = len(requests) - len(rows)
	stats.DuplicateRequests = len(items) - len(requests)
	return rows
}

// Reassemble reads the given output files in order and joins them with items
func Reassemble(owner string, files []string, items []RequestItem, validator *ResultValidator) ([]DatasetRow, ReassembleStats, error) {
	var stats ReassembleStats
	var results []ResultRecord
	for _, path := range files {
		rs, err := ReadResults(path, validator, &stats)
		if err != nil {
			return nil, stats, err
		}
		results = append(results, rs...)
	}
	return Join(owner, items, results, &stats), stats, nil
}

// WriteDataset writes rows as JSONL to path, replacing any previous dataset
func WriteDataset(path string, rows []DatasetRow) error {
	return writeFileAtomic(path, func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return errors.Wrapf(err, "failed to encode %s", row.HashID)
			}
		}
		return nil
	})
}
