package am

import (
	"time"

	"github.com/teranos/verdict/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.GetDatabaseDriver() {
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required when database.driver = \"pgx\"")
		}
	default:
		return errors.Newf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}

	if c.OpenAI.BaseURL == "" {
		return errors.New("openai.base_url cannot be empty")
	}
	if c.OpenAI.Model == "" {
		return errors.New("openai.model cannot be empty")
	}
	if c.OpenAI.Endpoint == "" {
		return errors.New("openai.endpoint cannot be empty")
	}
	if c.OpenAI.CompletionWindow != "" {
		if _, err := time.ParseDuration(c.OpenAI.CompletionWindow); err != nil {
			return errors.Newf("openai.completion_window must be a duration like \"24h\", got %q", c.OpenAI.CompletionWindow)
		}
	}
	if c.OpenAI.TimeoutSeconds < 0 {
		return errors.Newf("openai.timeout_seconds must be >= 0, got %d", c.OpenAI.TimeoutSeconds)
	}
	// 0 = unlimited
	if c.OpenAI.RequestsPerSecond < 0 {
		return errors.Newf("openai.requests_per_second must be >= 0, got %f", c.OpenAI.RequestsPerSecond)
	}

	if c.Batch.SubBatchSize <= 0 {
		return errors.Newf("batch.sub_batch_size must be > 0, got %d", c.Batch.SubBatchSize)
	}
	if c.Batch.Workers <= 0 {
		return errors.Newf("batch.workers must be > 0, got %d", c.Batch.Workers)
	}
	if c.Batch.AdmissionFloor <= 0 {
		return errors.Newf("batch.admission_floor must be > 0, got %d", c.Batch.AdmissionFloor)
	}
	if c.Batch.MaxRecordsPerCycle <= 0 {
		return errors.Newf("batch.max_records_per_cycle must be > 0, got %d", c.Batch.MaxRecordsPerCycle)
	}
	if c.Batch.IntervalSeconds <= 0 {
		return errors.Newf("batch.interval_seconds must be > 0, got %d", c.Batch.IntervalSeconds)
	}

	if c.Paths.Inputs == "" || c.Paths.Artifacts == "" || c.Paths.Outputs == "" || c.Paths.Datasets == "" {
		return errors.New("paths.inputs, paths.artifacts, paths.outputs and paths.datasets must all be set")
	}

	if c.Mirror.Enabled {
		if c.Mirror.Endpoint == "" {
			return errors.New("mirror.endpoint cannot be empty when enabled")
		}
		if c.Mirror.Bucket == "" {
			return errors.New("mirror.bucket cannot be empty when enabled")
		}
	}

	return nil
}

// RequireAPIKey fails when no API key is configured. Only commands that talk to
// the remote service call this.
func (c *Config) RequireAPIKey() error {
	if c.OpenAI.APIKey == "" {
		return errors.WithHint(
			errors.New("openai.api_key is not set"),
			"set OPENAI_API_KEY or openai.api_key in am.toml",
		)
	}
	return nil
}
