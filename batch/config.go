// Package batch partitions classification requests into remote batch jobs,
// drives each job through the ledger's state machine and reassembles the
// completed results with their originating requests.
package batch

import (
	"time"

	"github.com/teranos/verdict/am"
	"github.com/teranos/verdict/pulse/ledger"
)

// DefaultSubBatchSize is the maximum number of requests per remote job
const DefaultSubBatchSize = 100

// DefaultInvalidErrorCode marks a remote job whose input can never succeed
const DefaultInvalidErrorCode = "invalid_type"

// Config holds everything the orchestrator needs from am.Config
type Config struct {
	SubBatchSize       int
	Workers            int
	AdmissionFloor     int
	MaxRecordsPerCycle int
	Interval           time.Duration
	InvalidErrorCodes  []string
	ResubmitInFlight   bool

	Model            string
	Endpoint         string
	CompletionWindow string
	SystemPrompt     string
	UserPrompt       string

	InputsDir    string
	ArtifactsDir string
	OutputsDir   string
	DatasetsDir  string

	RequireComplete bool
}

// DefaultConfig returns the configuration matching am's defaults
func DefaultConfig() Config {
	return Config{
		SubBatchSize:       DefaultSubBatchSize,
		Workers:            16,
		AdmissionFloor:     10,
		MaxRecordsPerCycle: ledger.DefaultPendingLimit,
		Interval:           5 * time.Minute,
		InvalidErrorCodes:  []string{DefaultInvalidErrorCode},
		ResubmitInFlight:   true,
		Model:              "gpt-5-nano",
		Endpoint:           "/v1/chat/completions",
		CompletionWindow:   "24h",
		SystemPrompt:       am.DefaultSystemPrompt,
		UserPrompt:         am.DefaultUserPrompt,
		InputsDir:          "data/inputs",
		ArtifactsDir:       "data/batches",
		OutputsDir:         "data/outputs",
		DatasetsDir:        "data/datasets",
	}
}

// NewConfig extracts the orchestrator configuration. Zero values fall back to defaults.
func NewConfig(c *am.Config) Config {
	cfg := DefaultConfig()
	if c == nil {
		return cfg
	}

	setInt := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	setInt(&cfg.SubBatchSize, c.Batch.SubBatchSize)
	setInt(&cfg.Workers, c.Batch.Workers)
	setInt(&cfg.AdmissionFloor, c.Batch.AdmissionFloor)
	setInt(&cfg.MaxRecordsPerCycle, c.Batch.MaxRecordsPerCycle)
	if c.Batch.IntervalSeconds > 0 {
		cfg.Interval = time.Duration(c.Batch.IntervalSeconds) * time.Second
	}
	if len(c.Batch.InvalidErrorCodes) > 0 {
		cfg.InvalidErrorCodes = append([]string(nil), c.Batch.InvalidErrorCodes...)
	}
	cfg.ResubmitInFlight = c.Batch.ResubmitInFlight

	setString(&cfg.Model, c.OpenAI.Model)
	setString(&cfg.Endpoint, c.OpenAI.Endpoint)
	setString(&cfg.CompletionWindow, c.OpenAI.CompletionWindow)
	setString(&cfg.SystemPrompt, c.Prompt.System)
	setString(&cfg.UserPrompt, c.Prompt.User)

	setString(&cfg.InputsDir, c.Paths.Inputs)
	setString(&cfg.ArtifactsDir, c.Paths.Artifacts)
	setString(&cfg.OutputsDir, c.Paths.Outputs)
	setString(&cfg.DatasetsDir, c.Paths.Datasets)

	cfg.RequireComplete = c.Collect.RequireComplete
	return cfg
}
