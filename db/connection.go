package db

import (
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/sym"
)

// Dialect names the SQL flavour behind a *sql.DB. The values double as
// database/sql driver names.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "pgx"
)

// SQLiteBusyTimeoutMS is how long sqlite waits on a locked database
const SQLiteBusyTimeoutMS = 5000

// ApplicationName is reported to Postgres for connection attribution
const ApplicationName = "verdict"

// ParseDialect maps a configured driver name to a Dialect
func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(driver) {
	case "", DialectSQLite:
		return DialectSQLite, nil
	case DialectPostgres:
		return DialectPostgres, nil
	default:
		return "", errors.Newf("unsupported database driver %q", driver)
	}
}

// Open opens a SQLite database at the specified path with WAL, foreign keys
// and a busy timeout. A nil logger keeps it silent.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path, "symbol", sym.DB)
	}
	db, err := sql.Open(string(DialectSQLite), path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to apply %q", p)
		}
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"path", path,
			"symbol", sym.DB,
			"wal_mode", true,
		)
	}

	return db, nil
}

// OpenPostgres opens a Postgres database through the pgx stdlib adapter
func OpenPostgres(dsn string, logger *zap.SugaredLogger) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse postgres dsn")
	}
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	if _, ok := cfg.RuntimeParams["application_name"]; !ok {
		cfg.RuntimeParams["application_name"] = ApplicationName
	}

	db := stdlib.OpenDB(*cfg)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to reach postgres at %s:%d", cfg.Host, cfg.Port)
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"host", cfg.Host,
			"database", cfg.Database,
			"symbol", sym.DB,
		)
	}
	return db, nil
}

// OpenWithMigrations opens a SQLite database and applies pending migrations
func OpenWithMigrations(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	return OpenDialect(DialectSQLite, path, logger)
}

// OpenDialect opens the database for a dialect and applies its migrations.
// target is a file path for sqlite and a DSN for postgres.
func OpenDialect(dialect Dialect, target string, logger *zap.SugaredLogger) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case DialectSQLite:
		db, err = Open(target, logger)
	case DialectPostgres:
		db, err = OpenPostgres(target, logger)
	default:
		return nil, errors.Newf("unsupported dialect %q", dialect)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := Migrate(db, dialect, logger); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	return db, nil
}
