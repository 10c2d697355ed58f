package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"stitchcore/internal/infra/persistence/sqlite"
	"stitchcore/pkg/domain"
)

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assignments.db")
	ctx := context.Background()

	store, err := sqlite.NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	hash := "feed1234"
	var id string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		created, err := tx.CreateSession(domain.DesignSession{
			Design: domain.DesignRecord{Filename: "persist.pes", ColorCount: 1, ContentHash: &hash},
			Colors: []domain.Color{{ID: "c-1", Sequence: 1, Code: "137", Name: "Black", Chart: "Madeira", RGB: "111111", StitchCount: 10}},
		})
		if err != nil {
			return err
		}
		id = created.ID
		_, err = tx.UpdateSession(id, func(s *domain.DesignSession) error {
			return s.SetSlot(4, domain.NeedleBinding{Code: "137", Name: "Black", RGB: "111111"})
		})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := sqlite.NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	session, ok := reopened.GetSession(id)
	if !ok {
		t.Fatalf("session lost across reopen")
	}
	if session.Slots[4] == nil || session.Slots[4].Code != "137" {
		t.Fatalf("slot state lost: %+v", session.Slots[4])
	}
	if session.Colors[0].NeedleNumber == nil || *session.Colors[0].NeedleNumber != 5 {
		t.Fatalf("needle_number lost: %v", session.Colors[0].NeedleNumber)
	}
	if session.Design.ContentHash == nil || *session.Design.ContentHash != hash {
		t.Fatalf("content hash lost: %v", session.Design.ContentHash)
	}
}

func TestSQLiteStoreDefaultsPathAndExposesDB(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.db")

	store, err := sqlite.NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	if store.Path() != path {
		t.Fatalf("path = %q, want %q", store.Path(), path)
	}
	if store.DB() == nil {
		t.Fatalf("expected usable db handle")
	}
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("query state table: %v", err)
	}
	if count != 0 {
		t.Fatalf("fresh store should have no snapshot rows, got %d", count)
	}
}

func TestSQLiteStoreRollbackDoesNotPersist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollback.db")
	ctx := context.Background()

	engine := domain.NewRulesEngine()
	engine.Register(blockSessions{})
	store, err := sqlite.NewStore(path, engine)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateSession(domain.DesignSession{Design: domain.DesignRecord{Filename: "x.pes"}})
		return err
	}); err == nil {
		t.Fatalf("expected blocking rule error")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := sqlite.NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if sessions := reopened.ListSessions(); len(sessions) != 0 {
		t.Fatalf("blocked transaction leaked to disk: %d sessions", len(sessions))
	}
}

type blockSessions struct{}

func (blockSessions) Name() string { return "block_sessions" }

func (blockSessions) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if len(view.ListSessions()) > 0 {
		return domain.Result{Violations: []domain.Violation{{
			Rule:     "block_sessions",
			Severity: domain.SeverityBlock,
			Message:  "sessions are not allowed in this test store",
			Entity:   domain.EntityDesignSession,
		}}}, nil
	}
	return domain.Result{}, nil
}
