package core

import (
	"fmt"
	"os"

	"stitchcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	STITCHCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	STITCHCORE_SQLITE_PATH: path to sqlite file (default ./stitchcore.db)
//	STITCHCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("STITCHCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return NewMemoryStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("STITCHCORE_SQLITE_PATH")
		st, err := NewSQLiteStore(path, engine)
		if err != nil {
			return nil, err
		}
		return st, nil
	case StoragePostgres:
		dsn := os.Getenv("STITCHCORE_POSTGRES_DSN")
		st, err := NewPostgresStore(dsn, engine)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
