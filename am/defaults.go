package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// Default prompt templates. The response shape is enforced separately by the
// strict JSON schema sent with every request.
const (
	DefaultSystemPrompt = "You are a market analyst. Read the news item about {owner} published on {date} " +
		"and decide whether it supports a LONG or SHORT position on {owner}, or UNKNOWN when it " +
		"carries no directional information. Answer with JSON only."
	DefaultUserPrompt = "Owner: {owner}\nDate: {date}\nNews:\n{text}"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "verdict.db")

	// Remote batch service defaults
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-5-nano")
	v.SetDefault("openai.endpoint", "/v1/chat/completions")
	v.SetDefault("openai.completion_window", "24h")
	v.SetDefault("openai.timeout_seconds", 120)
	v.SetDefault("openai.requests_per_second", 5.0)
	v.SetDefault("openai.burst", 5)

	// Orchestration defaults
	v.SetDefault("batch.sub_batch_size", 100)
	v.SetDefault("batch.workers", 16)
	v.SetDefault("batch.admission_floor", 10)
	v.SetDefault("batch.max_records_per_cycle", 15)
	v.SetDefault("batch.interval_seconds", 300)
	v.SetDefault("batch.invalid_error_codes", []string{"invalid_type"})
	v.SetDefault("batch.resubmit_in_flight", true) // abandon-and-resubmit
	v.SetDefault("batch.watch_inputs", true)

	// Working directories
	v.SetDefault("paths.inputs", "data/inputs")
	v.SetDefault("paths.artifacts", "data/batches")
	v.SetDefault("paths.outputs", "data/outputs")
	v.SetDefault("paths.datasets", "data/datasets")

	v.SetDefault("prompt.system", DefaultSystemPrompt)
	v.SetDefault("prompt.user", DefaultUserPrompt)

	v.SetDefault("collect.require_complete", false)
	v.SetDefault("collect.export_xlsx", false)

	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.prefix", "datasets/")
	v.SetDefault("mirror.use_ssl", true)
	v.SetDefault("mirror.region", "us-east-1")

	v.SetDefault("log.json", false)
	v.SetDefault("log.theme", "everforest")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// The conventional OPENAI_API_KEY is honoured next to the prefixed form
	v.BindEnv("openai.api_key", "VERDICT_OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("openai.base_url", "VERDICT_OPENAI_BASE_URL")

	v.BindEnv("database.path", "VERDICT_DATABASE_PATH")
	v.BindEnv("database.dsn", "VERDICT_DATABASE_DSN", "DATABASE_URL")

	v.BindEnv("mirror.access_key", "VERDICT_MIRROR_ACCESS_KEY")
	v.BindEnv("mirror.secret_key", "VERDICT_MIRROR_SECRET_KEY")
}

// GetDatabasePath returns the configured sqlite path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "verdict.db" // Fallback default
	}
	return c.Database.Path
}

// GetDatabaseDriver returns the configured driver (default: sqlite3)
func (c *Config) GetDatabaseDriver() string {
	if c.Database.Driver == "" {
		return DriverSQLite
	}
	return c.Database.Driver
}

// GetLogTheme returns the log theme (default: everforest)
func (c *Config) GetLogTheme() string {
	if c.Log.Theme == "" {
		return "everforest"
	}
	return c.Log.Theme
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s(%s), Model: %s, Batch: {Size: %d, Workers: %d, Floor: %d}}",
		c.GetDatabaseDriver(), c.GetDatabasePath(), c.OpenAI.Model,
		c.Batch.SubBatchSize, c.Batch.Workers, c.Batch.AdmissionFloor)
}
