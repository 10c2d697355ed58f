package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"stitchcore/internal/infra/persistence/memory"
	"stitchcore/internal/infra/persistence/sqlite"
)

// helper to unset and restore env vars
func withEnv(key, value string, fn func()) {
	orig, had := os.LookupEnv(key)
	if value == "" {
		_ = os.Unsetenv(key)
	} else {
		_ = os.Setenv(key, value)
	}
	defer func() {
		if had {
			_ = os.Setenv(key, orig)
		} else {
			_ = os.Unsetenv(key)
		}
	}()
	fn()
}

func TestOpenPersistentStore_DefaultSQLite(t *testing.T) {
	t.Chdir(t.TempDir())
	withEnv("STITCHCORE_STORAGE_DRIVER", "", func() {
		withEnv("STITCHCORE_SQLITE_PATH", "", func() {
			store, err := OpenPersistentStore(NewDefaultRulesEngine())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			sqliteStore, ok := store.(*sqlite.Store)
			if !ok {
				t.Fatalf("expected *sqlite.Store, got %T", store)
			}
			defer sqliteStore.Close()
			if _, err := sqliteStore.RunInTransaction(context.Background(), func(tx Transaction) error { return nil }); err != nil {
				t.Fatalf("transaction on default store: %v", err)
			}
			if filepath.Base(sqliteStore.Path()) != "stitchcore.db" {
				t.Fatalf("default path = %s", sqliteStore.Path())
			}
		})
	})
}

func TestOpenPersistentStore_Memory(t *testing.T) {
	withEnv("STITCHCORE_STORAGE_DRIVER", "memory", func() {
		store, err := OpenPersistentStore(NewDefaultRulesEngine())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := store.(*memory.Store); !ok {
			t.Fatalf("expected *memory.Store, got %T", store)
		}
	})
}

func TestOpenPersistentStore_CustomSQLitePath(t *testing.T) {
	withEnv("STITCHCORE_STORAGE_DRIVER", "sqlite", func() {
		path := filepath.Join(t.TempDir(), "custom.db")
		withEnv("STITCHCORE_SQLITE_PATH", path, func() {
			store, err := OpenPersistentStore(NewDefaultRulesEngine())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			s, ok := store.(*sqlite.Store)
			if !ok {
				t.Fatalf("expected *sqlite.Store, got %T", store)
			}
			defer s.Close()
			if s.Path() != path {
				t.Fatalf("expected path %s, got %s", path, s.Path())
			}
		})
	})
}

func TestOpenPersistentStore_PostgresUnreachable(t *testing.T) {
	withEnv("STITCHCORE_STORAGE_DRIVER", "postgres", func() {
		// Port 1 refuses immediately, so the constructor's ping fails fast.
		withEnv("STITCHCORE_POSTGRES_DSN", "postgres://127.0.0.1:1/stitchcore?sslmode=disable", func() {
			if _, err := OpenPersistentStore(NewDefaultRulesEngine()); err == nil {
				t.Fatalf("expected connection error for unreachable postgres")
			}
		})
	})
}

func TestOpenPersistentStore_UnknownDriver(t *testing.T) {
	withEnv("STITCHCORE_STORAGE_DRIVER", "gibberish", func() {
		store, err := OpenPersistentStore(NewDefaultRulesEngine())
		if err == nil || store != nil {
			t.Fatalf("expected error for unknown driver, got store=%v err=%v", store, err)
		}
	})
}
