// Package memory provides an in-memory implementation of the session
// persistence store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"stitchcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// DesignSession aliases domain.DesignSession for in-memory persistence operations.
	DesignSession = domain.DesignSession
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases the domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

// Snapshot is the serializable image of the full store state.
type Snapshot struct {
	Sessions []DesignSession `json:"sessions"`
}

type memoryState struct {
	sessions map[string]DesignSession
}

func newMemoryState() memoryState {
	return memoryState{sessions: map[string]DesignSession{}}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	snapshot := Snapshot{Sessions: make([]DesignSession, 0, len(state.sessions))}
	for _, s := range state.sessions {
		snapshot.Sessions = append(snapshot.Sessions, cloneSession(s))
	}
	sort.Slice(snapshot.Sessions, func(i, j int) bool {
		a, b := snapshot.Sessions[i], snapshot.Sessions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return snapshot
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, session := range s.Sessions {
		state.sessions[session.ID] = cloneSession(session)
	}
	return state
}

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for id, session := range s.sessions {
		out.sessions[id] = cloneSession(session)
	}
	return out
}

// cloneSession deep-copies a session including every pointer field so no two
// states share binding, needle number, preview, or hash storage.
func cloneSession(s DesignSession) DesignSession {
	out := s
	if s.Design.Preview != nil {
		preview := *s.Design.Preview
		out.Design.Preview = &preview
	}
	if s.Design.ContentHash != nil {
		hash := *s.Design.ContentHash
		out.Design.ContentHash = &hash
	}
	out.Colors = make([]domain.Color, len(s.Colors))
	for i, c := range s.Colors {
		out.Colors[i] = c
		if c.NeedleNumber != nil {
			n := *c.NeedleNumber
			out.Colors[i].NeedleNumber = &n
		}
	}
	for i, b := range s.Slots {
		if b == nil {
			out.Slots[i] = nil
			continue
		}
		binding := *b
		out.Slots[i] = &binding
	}
	return out
}

// Store is the canonical in-memory persistent store. Durable backends embed it
// and snapshot its state after each committed transaction.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc swaps the time provider, primarily for deterministic tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListSessions returns all sessions within the transaction snapshot, ordered
// by creation time.
func (v transactionView) ListSessions() []DesignSession {
	out := make([]DesignSession, 0, len(v.state.sessions))
	for _, s := range v.state.sessions {
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindSession retrieves a session by ID from the snapshot.
func (v transactionView) FindSession(id string) (DesignSession, bool) {
	s, ok := v.state.sessions[id]
	if !ok {
		return DesignSession{}, false
	}
	return cloneSession(s), true
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The rules engine evaluates the mutated state before commit; blocking
// violations roll the transaction back with a RuleViolationError.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetSession retrieves a session by ID from committed state.
func (s *Store) GetSession(id string) (DesignSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.state.sessions[id]
	if !ok {
		return DesignSession{}, false
	}
	return cloneSession(session), true
}

// ListSessions returns all committed sessions ordered by creation time.
func (s *Store) ListSessions() []DesignSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := transactionView{state: &s.state}
	return view.ListSessions()
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindSession exposes session lookup within the transaction scope.
func (tx *transaction) FindSession(id string) (DesignSession, bool) {
	s, ok := tx.state.sessions[id]
	if !ok {
		return DesignSession{}, false
	}
	return cloneSession(s), true
}

// CreateSession stores a new design session within the transaction.
func (tx *transaction) CreateSession(session DesignSession) (DesignSession, error) {
	if session.ID == "" {
		session.ID = tx.store.newID()
	}
	if _, exists := tx.state.sessions[session.ID]; exists {
		return DesignSession{}, fmt.Errorf("design session %q already exists", session.ID)
	}
	session.CreatedAt = tx.now
	session.UpdatedAt = tx.now
	tx.state.sessions[session.ID] = cloneSession(session)
	tx.recordChange(Change{Entity: domain.EntityDesignSession, Action: domain.ActionCreate, After: cloneSession(session)})
	return cloneSession(session), nil
}

// UpdateSession mutates a session using the provided mutator function.
func (tx *transaction) UpdateSession(id string, mutator func(*DesignSession) error) (DesignSession, error) {
	current, ok := tx.state.sessions[id]
	if !ok {
		return DesignSession{}, fmt.Errorf("design session %q not found", id)
	}
	working := cloneSession(current)
	before := cloneSession(current)
	if err := mutator(&working); err != nil {
		return DesignSession{}, err
	}
	working.ID = id
	working.CreatedAt = current.CreatedAt
	working.UpdatedAt = tx.now
	tx.state.sessions[id] = cloneSession(working)
	tx.recordChange(Change{Entity: domain.EntityDesignSession, Action: domain.ActionUpdate, Before: before, After: cloneSession(working)})
	return cloneSession(working), nil
}

// DeleteSession removes a session within the transaction.
func (tx *transaction) DeleteSession(id string) error {
	current, ok := tx.state.sessions[id]
	if !ok {
		return fmt.Errorf("design session %q not found", id)
	}
	delete(tx.state.sessions, id)
	tx.recordChange(Change{Entity: domain.EntityDesignSession, Action: domain.ActionDelete, Before: cloneSession(current)})
	return nil
}
