package am

// Config represents the verdict configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database" yaml:"database" json:"database"`
	OpenAI   OpenAIConfig   `mapstructure:"openai" toml:"openai" yaml:"openai" json:"openai"`
	Batch    BatchConfig    `mapstructure:"batch" toml:"batch" yaml:"batch" json:"batch"`
	Paths    PathsConfig    `mapstructure:"paths" toml:"paths" yaml:"paths" json:"paths"`
	Prompt   PromptConfig   `mapstructure:"prompt" toml:"prompt" yaml:"prompt" json:"prompt"`
	Collect  CollectConfig  `mapstructure:"collect" toml:"collect" yaml:"collect" json:"collect"`
	Mirror   MirrorConfig   `mapstructure:"mirror" toml:"mirror" yaml:"mirror" json:"mirror"`
	Log      LogConfig      `mapstructure:"log" toml:"log" yaml:"log" json:"log"`
}

// DatabaseConfig configures the ledger database.
// Driver is "sqlite3" (Path is used) or "pgx" (DSN is used).
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" toml:"driver" yaml:"driver" json:"driver"`
	Path   string `mapstructure:"path" toml:"path" yaml:"path" json:"path"`
	DSN    string `mapstructure:"dsn" toml:"dsn" yaml:"dsn" json:"dsn"`
}

// OpenAIConfig configures access to the Files + Batches API. Endpoint is the
// per-line request url (e.g. /v1/chat/completions); RequestsPerSecond 0 means unlimited.
type OpenAIConfig struct {
	APIKey            string  `mapstructure:"api_key" toml:"api_key" yaml:"api_key" json:"api_key"`
	BaseURL           string  `mapstructure:"base_url" toml:"base_url" yaml:"base_url" json:"base_url"`
	Model             string  `mapstructure:"model" toml:"model" yaml:"model" json:"model"`
	Endpoint          string  `mapstructure:"endpoint" toml:"endpoint" yaml:"endpoint" json:"endpoint"`
	CompletionWindow  string  `mapstructure:"completion_window" toml:"completion_window" yaml:"completion_window" json:"completion_window"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" toml:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" toml:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `mapstructure:"burst" toml:"burst" yaml:"burst" json:"burst"`
}

// BatchConfig configures partitioning, admission and the polling cycle.
// Workers is the pool width; a cycle admits submissions while in-flight < AdmissionFloor.
type BatchConfig struct {
	SubBatchSize       int      `mapstructure:"sub_batch_size" toml:"sub_batch_size" yaml:"sub_batch_size" json:"sub_batch_size"`
	Workers            int      `mapstructure:"workers" toml:"workers" yaml:"workers" json:"workers"`
	AdmissionFloor     int      `mapstructure:"admission_floor" toml:"admission_floor" yaml:"admission_floor" json:"admission_floor"`
	MaxRecordsPerCycle int      `mapstructure:"max_records_per_cycle" toml:"max_records_per_cycle" yaml:"max_records_per_cycle" json:"max_records_per_cycle"`
	IntervalSeconds    int      `mapstructure:"interval_seconds" toml:"interval_seconds" yaml:"interval_seconds" json:"interval_seconds"`
	InvalidErrorCodes  []string `mapstructure:"invalid_error_codes" toml:"invalid_error_codes" yaml:"invalid_error_codes" json:"invalid_error_codes"`
	ResubmitInFlight   bool     `mapstructure:"resubmit_in_flight" toml:"resubmit_in_flight" yaml:"resubmit_in_flight" json:"resubmit_in_flight"`
	WatchInputs        bool     `mapstructure:"watch_inputs" toml:"watch_inputs" yaml:"watch_inputs" json:"watch_inputs"`
}

// PathsConfig locates the working directories
type PathsConfig struct {
	Inputs    string `mapstructure:"inputs" toml:"inputs" yaml:"inputs" json:"inputs"`
	Artifacts string `mapstructure:"artifacts" toml:"artifacts" yaml:"artifacts" json:"artifacts"`
	Outputs   string `mapstructure:"outputs" toml:"outputs" yaml:"outputs" json:"outputs"`
	Datasets  string `mapstructure:"datasets" toml:"datasets" yaml:"datasets" json:"datasets"`
}

// PromptConfig holds the message templates. {owner}, {date} and {text} are substituted.
type PromptConfig struct {
	System string `mapstructure:"system" toml:"system" yaml:"system" json:"system"`
	User   string `mapstructure:"user" toml:"user" yaml:"user" json:"user"`
}

// CollectConfig configures result collection
type CollectConfig struct {
	RequireComplete bool `mapstructure:"require_complete" toml:"require_complete" yaml:"require_complete" json:"require_complete"`
	ExportXLSX      bool `mapstructure:"export_xlsx" toml:"export_xlsx" yaml:"export_xlsx" json:"export_xlsx"`
}

// MirrorConfig configures the optional S3-compatible dataset mirror
type MirrorConfig struct {
	Enabled   bool   `mapstructure:"enabled" toml:"enabled" yaml:"enabled" json:"enabled"`
	Endpoint  string `mapstructure:"endpoint" toml:"endpoint" yaml:"endpoint" json:"endpoint"`
	AccessKey string `mapstructure:"access_key" toml:"access_key" yaml:"access_key" json:"access_key"`
	SecretKey string `mapstructure:"secret_key" toml:"secret_key" yaml:"secret_key" json:"secret_key"`
	Bucket    string `mapstructure:"bucket" toml:"bucket" yaml:"bucket" json:"bucket"`
	Prefix    string `mapstructure:"prefix" toml:"prefix" yaml:"prefix" json:"prefix"`
	Region    string `mapstructure:"region" toml:"region" yaml:"region" json:"region"`
	UseSSL    bool   `mapstructure:"use_ssl" toml:"use_ssl" yaml:"use_ssl" json:"use_ssl"`
}

// LogConfig configures log output. Theme is everforest, gruvbox or plain.
type LogConfig struct {
	JSON  bool   `mapstructure:"json" toml:"json" yaml:"json" json:"json"`
	Theme string `mapstructure:"theme" toml:"theme" yaml:"theme" json:"theme"`
}

// Database drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// Redacted returns a copy with secrets masked, for display
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		if len(s) <= 8 {
			return "********"
		}
		return s[:3] + "..." + s[len(s)-4:]
	}
	c.OpenAI.APIKey = mask(c.OpenAI.APIKey)
	c.Mirror.SecretKey = mask(c.Mirror.SecretKey)
	if c.Database.DSN != "" {
		c.Database.DSN = "********"
	}
	return c
}
