package db

import (
	"database/sql"
	"strings"

	"github.com/teranos/verdict/errors"
)

// ErrDatabaseClosed marks statements issued after Close, which happens when a
// shutdown interrupts a cycle
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err comes from a closed pool or connection.
// database/sql does not export its closed-pool error, so its text is matched.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.IsAny(err, ErrDatabaseClosed, sql.ErrConnDone) {
		return true
	}
	return strings.Contains(err.Error(), "sql: database is closed")
}
