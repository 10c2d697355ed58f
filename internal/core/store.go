package core

import (
	"stitchcore/internal/infra/persistence/memory"
	"stitchcore/internal/infra/persistence/postgres"
	"stitchcore/internal/infra/persistence/sqlite"
)

// NewMemoryStore constructs an in-memory persistent store. State lives for
// the lifetime of the process; tests and ephemeral tooling use it.
func NewMemoryStore(engine *RulesEngine) *memory.Store {
	return memory.NewStore(engine)
}

// NewSQLiteStore constructs a SQLite-backed persistent store using the
// provided file path (may be empty for the default) and rules engine.
func NewSQLiteStore(path string, engine *RulesEngine) (*sqlite.Store, error) {
	return sqlite.NewStore(path, engine)
}

// NewPostgresStore constructs a Postgres-backed store from the provided DSN.
func NewPostgresStore(dsn string, engine *RulesEngine) (*postgres.Store, error) {
	return postgres.NewStore(dsn, engine)
}
