package conversations

import (
	"database/sql"
)

// NewStoreFromDB returns a SQL-backed store when a database is configured
// and falls back to memory otherwise.
func NewStoreFromDB(db *sql.DB, dialect string) (Store, error) {
	if db == nil {
		return NewMemoryStore(), nil
	}
	return NewSQLStore(db, dialect)
}
