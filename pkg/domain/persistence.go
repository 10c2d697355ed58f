package domain

import "context"

// Transaction exposes the session operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateSession(DesignSession) (DesignSession, error)
	UpdateSession(id string, mutator func(*DesignSession) error) (DesignSession, error)
	DeleteSession(id string) error
	FindSession(id string) (DesignSession, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// callers inside a transaction.
type TransactionView interface {
	ListSessions() []DesignSession
	FindSession(id string) (DesignSession, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetSession(id string) (DesignSession, bool)
	ListSessions() []DesignSession
}
