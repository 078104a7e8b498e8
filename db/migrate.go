package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/sym"
)

//go:embed sqlite/migrations/*.sql postgres/migrations/*.sql
var migrations embed.FS

func migrationDir(dialect Dialect) (string, error) {
	switch dialect {
	case DialectSQLite:
		return "sqlite/migrations", nil
	case DialectPostgres:
		return "postgres/migrations", nil
	default:
		return "", errors.Newf("no migrations for dialect %q", dialect)
	}
}

// Migrate runs all pending migrations for the dialect, one transaction per file.
// A nil logger keeps it silent.
func Migrate(db *sql.DB, dialect Dialect, logger *zap.SugaredLogger) error {
	dir, err := migrationDir(dialect)
	if err != nil {
		return err
	}

	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}

	// 000_create_schema_migrations.sql runs first
	var migrationFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrationFiles = append(migrationFiles, entry.Name())
		}
	}
	sort.Strings(migrationFiles)

	applied := 0
	for _, filename := range migrationFiles {
		version := strings.Split(filename, "_")[0]

		var exists bool
		err := db.QueryRow(
			Rebind(dialect, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)"), version,
		).Scan(&exists)
		if err != nil {
			// Table doesn't exist yet, which is only acceptable for 000
			if version != "000" {
				return errors.Wrapf(err, "schema_migrations table missing, but migration is not 000: %s", filename)
			}
		} else if exists {
			if logger != nil {
				logger.Debugw("Skipping migration (already applied)",
					"migration", filename,
					"version", version,
				)
			}
			continue
		}

		sqlBytes, err := migrations.ReadFile(path.Join(dir, filename))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}

		if logger != nil {
			logger.Infow("Applying migration",
				"migration", filename,
				"version", version,
				"dialect", string(dialect),
			)
		}

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrapf(err, "begin tx for %s", filename)
		}

		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "execute %s", filename)
		}

		// 000 creates the table, then records itself
		if _, err := tx.Exec(Rebind(dialect, "INSERT INTO schema_migrations (version) VALUES (?)"), version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record %s", filename)
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit %s", filename)
		}
		applied++
	}

	if logger != nil {
		logger.Infow("Migrations complete",
			"symbol", sym.DB,
			"total_migrations", len(migrationFiles),
			"applied", applied,
		)
	}

	return nil
}
