package memory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"stitchcore/internal/infra/persistence/memory"
	"stitchcore/pkg/domain"
)

func sessionFixture(name string) domain.DesignSession {
	hash := "abcd1234"
	return domain.DesignSession{
		Design: domain.DesignRecord{
			Filename:    name,
			StitchCount: 1200,
			HeightMM:    50.5,
			WidthMM:     72.25,
			ColorCount:  2,
			Stops:       2,
			ContentHash: &hash,
		},
		Colors: []domain.Color{
			{ID: "c-1", Sequence: 1, Code: "137", Name: "Black", Chart: "Madeira", RGB: "1a1a1a", StitchCount: 700},
			{ID: "c-2", Sequence: 2, Code: "135", Name: "White", Chart: "Madeira", RGB: "fafafa", StitchCount: 500},
		},
	}
}

func TestMemoryStoreSessionLifecycle(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()

	var created domain.DesignSession
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateSession(sessionFixture("rose.pes"))
		return err
	}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated session id")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be set")
	}

	got, ok := store.GetSession(created.ID)
	if !ok {
		t.Fatalf("session not found after commit")
	}
	if got.Design.Filename != "rose.pes" {
		t.Fatalf("filename = %q", got.Design.Filename)
	}

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateSession(created.ID, func(s *domain.DesignSession) error {
			return s.SetSlot(4, domain.NeedleBinding{Code: "137", Name: "Black", RGB: "1a1a1a"})
		})
		return err
	}); err != nil {
		t.Fatalf("update session: %v", err)
	}

	updated, _ := store.GetSession(created.ID)
	if updated.Slots[4] == nil || updated.Slots[4].Code != "137" {
		t.Fatalf("slot 4 not persisted: %+v", updated.Slots[4])
	}
	if updated.CreatedAt != created.CreatedAt {
		t.Fatalf("update must preserve CreatedAt")
	}
	if *updated.Colors[0].NeedleNumber != 5 {
		t.Fatalf("needle_number = %d, want 5", *updated.Colors[0].NeedleNumber)
	}

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteSession(created.ID)
	}); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok := store.GetSession(created.ID); ok {
		t.Fatalf("session still present after delete")
	}
}

func TestMemoryStoreRollbackOnError(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateSession(sessionFixture("a.pes")); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	}); err == nil {
		t.Fatalf("expected transaction error")
	}
	if sessions := store.ListSessions(); len(sessions) != 0 {
		t.Fatalf("rolled-back session leaked: %d", len(sessions))
	}
}

func TestMemoryStoreBlockingRuleRollsBack(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockEverything{})
	store := memory.NewStore(engine)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateSession(sessionFixture("blocked.pes"))
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if len(store.ListSessions()) != 0 {
		t.Fatalf("blocked transaction must not commit")
	}
}

func TestMemoryStoreDuplicateAndMissingIDs(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()

	fixture := sessionFixture("dup.pes")
	fixture.ID = "fixed-id"
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateSession(fixture)
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateSession(fixture)
		return err
	}); err == nil {
		t.Fatalf("duplicate create should fail")
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateSession("missing", func(*domain.DesignSession) error { return nil })
		return err
	}); err == nil {
		t.Fatalf("update of missing session should fail")
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteSession("missing")
	}); err == nil {
		t.Fatalf("delete of missing session should fail")
	}
}

func TestMemoryStoreViewAndFinders(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()

	var id string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		created, err := tx.CreateSession(sessionFixture("view.pes"))
		if err != nil {
			return err
		}
		id = created.ID
		if _, ok := tx.FindSession(id); !ok {
			return fmt.Errorf("session invisible inside its own transaction")
		}
		if _, ok := tx.Snapshot().FindSession(id); !ok {
			return fmt.Errorf("session invisible in snapshot view")
		}
		return nil
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}

	if err := store.View(ctx, func(view domain.TransactionView) error {
		sessions := view.ListSessions()
		if len(sessions) != 1 || sessions[0].ID != id {
			return fmt.Errorf("unexpected view contents: %+v", sessions)
		}
		if _, ok := view.FindSession("absent"); ok {
			return fmt.Errorf("found nonexistent session")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestMemoryStoreReturnsDetachedCopies(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()

	var id string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		created, err := tx.CreateSession(sessionFixture("detach.pes"))
		id = created.ID
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := store.GetSession(id)
	got.Colors[0].Code = "tampered"
	got.Design.Filename = "tampered.pes"

	fresh, _ := store.GetSession(id)
	if fresh.Colors[0].Code != "137" || fresh.Design.Filename != "detach.pes" {
		t.Fatalf("store state mutated through returned copy")
	}
}

func TestSnapshotExportImportRoundTrip(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()

	for _, name := range []string{"one.pes", "two.pes"} {
		if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			created, err := tx.CreateSession(sessionFixture(name))
			if err != nil {
				return err
			}
			_, err = tx.UpdateSession(created.ID, func(s *domain.DesignSession) error {
				return s.SetSlot(0, domain.NeedleBinding{Code: "137", Name: "Black", RGB: "1a1a1a"})
			})
			return err
		}); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	snapshot := store.ExportState()
	if len(snapshot.Sessions) != 2 {
		t.Fatalf("snapshot sessions = %d, want 2", len(snapshot.Sessions))
	}

	restored := memory.NewStore(nil)
	restored.ImportState(snapshot)
	sessions := restored.ListSessions()
	if len(sessions) != 2 {
		t.Fatalf("restored sessions = %d, want 2", len(sessions))
	}
	for _, s := range sessions {
		if s.Slots[0] == nil || s.Slots[0].Code != "137" {
			t.Fatalf("restored session %s lost slot state", s.ID)
		}
	}
}

func TestSnapshotOrderingIsStable(t *testing.T) {
	store := memory.NewStore(nil)
	base := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	step := 0
	store.SetNowFunc(func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	})

	ctx := context.Background()
	names := []string{"c.pes", "a.pes", "b.pes"}
	for _, name := range names {
		if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateSession(sessionFixture(name))
			return err
		}); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	snapshot := store.ExportState()
	for i, want := range names {
		if snapshot.Sessions[i].Design.Filename != want {
			t.Fatalf("snapshot order[%d] = %q, want %q", i, snapshot.Sessions[i].Design.Filename, want)
		}
	}
}

type blockEverything struct{}

func (blockEverything) Name() string { return "block_everything" }

func (blockEverything) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{
		Rule:     "block_everything",
		Severity: domain.SeverityBlock,
		Message:  "nothing commits here",
		Entity:   domain.EntityDesignSession,
	}}}, nil
}
