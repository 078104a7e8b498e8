package commands

import (
	"database/sql"
	"os"
	"time"

	"github.com/teranos/verdict/ai/openai"
	"github.com/teranos/verdict/am"
	"github.com/teranos/verdict/batch"
	"github.com/teranos/verdict/batch/export"
	"github.com/teranos/verdict/batch/mirror"
	"github.com/teranos/verdict/db"
	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/logger"
	"github.com/teranos/verdict/pulse/ledger"
	"github.com/teranos/verdict/version"
)

// ConfigFile is set by the --config flag; empty means the usual cascade
var ConfigFile string

func loadConfig() (*am.Config, error) {
	if ConfigFile != "" {
		cfg, err := am.LoadFromFile(ConfigFile)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load config from %s", ConfigFile)
		}
		return cfg, nil
	}
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return cfg, nil
}

// InitLogging sets up the global logger. JSON output is on when either the
// flag or log.json asks for it.
func InitLogging(jsonFlag bool, verbosity int) error {
	jsonOutput := jsonFlag
	if cfg, err := loadConfig(); err == nil {
		jsonOutput = jsonOutput || cfg.Log.JSON
		logger.SetTheme(cfg.GetLogTheme())
	}
	return logger.InitializeWithLevel(jsonOutput, logger.VerbosityToLevel(verbosity))
}

// openDatabase opens and migrates the configured ledger database
func openDatabase(cfg *am.Config) (*sql.DB, db.Dialect, error) {
	dialect, err := db.ParseDialect(cfg.GetDatabaseDriver())
	if err != nil {
		return nil, "", err
	}
	target := cfg.GetDatabasePath()
	if dialect == db.DialectPostgres {
		target = cfg.Database.DSN
	}

	conn, err := db.OpenDialect(dialect, target, logger.Logger)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to open %s database", dialect)
	}
	return conn, dialect, nil
}

// newRemote builds the batch service client
func newRemote(cfg *am.Config) *openai.Client {
	return openai.NewClient(openai.Config{
		APIKey:            cfg.OpenAI.APIKey,
		BaseURL:           cfg.OpenAI.BaseURL,
		Timeout:           time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
		Burst:             cfg.OpenAI.Burst,
		MaxRetries:        2,
		RetryDelay:        time.Second,
		UserAgent:         version.Get().UserAgent(),
		Logger:            logger.ComponentLogger("verdict.openai"),
	})
}

// datasetSinks returns the sinks enabled in the collect and mirror sections
func datasetSinks(cfg *am.Config) ([]batch.DatasetSink, error) {
	var sinks []batch.DatasetSink
	if cfg.Collect.ExportXLSX {
		sinks = append(sinks, export.NewXLSXSink(logger.ComponentLogger("verdict.export")))
	}
	if cfg.Mirror.Enabled {
		m, err := mirror.New(cfg.Mirror, logger.ComponentLogger("verdict.mirror"))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, m)
	}
	return sinks, nil
}

// ensureDirs creates the working directories
func ensureDirs(c batch.Config) error {
	for _, dir := range []string{c.InputsDir, c.ArtifactsDir, c.OutputsDir, c.DatasetsDir} {
		if err := os.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}
	return nil
}

// newOrchestrator wires the orchestrator over an open database
func newOrchestrator(cfg *am.Config, conn *sql.DB, dialect db.Dialect) (*batch.Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	sinks, err := datasetSinks(cfg)
	if err != nil {
		return nil, err
	}

	bc := batch.NewConfig(cfg)
	if err := ensureDirs(bc); err != nil {
		return nil, err
	}

	store := ledger.NewStore(conn, dialect, logger.ComponentLogger("verdict.ledger"))
	return batch.New(bc, newRemote(cfg), store, logger.ComponentLogger("verdict"), batch.WithSinks(sinks...))
}
