package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// dialect captures the few SQL differences between SQLite and PostgreSQL
type dialect struct {
	name          string
	driver        string
	idColumn      string
	timestampType string
	numbered      bool
	tableExists   string
}

var sqliteDialect = dialect{
	name:          DriverSQLite,
	driver:        "sqlite3",
	idColumn:      "id INTEGER PRIMARY KEY AUTOINCREMENT",
	timestampType: "TIMESTAMP",
	tableExists:   `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
}

var postgresDialect = dialect{
	name:          DriverPostgres,
	driver:        "pgx",
	idColumn:      "id BIGSERIAL PRIMARY KEY",
	timestampType: "TIMESTAMPTZ",
	numbered:      true,
	tableExists:   `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?`,
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func errUnknownDriver(driver string) error {
	return fmt.Errorf("unsupported database driver: %s", driver)
}
