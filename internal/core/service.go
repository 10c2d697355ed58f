package core

import (
	"context"
	"fmt"
	"time"

	"stitchcore/internal/design"
	"stitchcore/internal/infra/persistence/memory"
	"stitchcore/pkg/domain"
)

// Service exposes the transactional needle assignment operations for design
// sessions: loading descriptions, querying slots and colors, and the swap,
// clear, and assign gestures. Assignment state is mirrored to the cache
// before every mutating call returns.
type Service struct {
	store        PersistentStore
	cache        *AssignmentCache
	auditor      AuditRecorder
	metrics      MetricsRecorder
	tracer       Tracer
	seedDefaults bool
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		auditor: noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// ErrNotFound is returned when a referenced session or color does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// LoadDesign creates a working session from a decoded design description.
// Slot state is reconciled from the description's needle map, the per-color
// fallback, and the assignment cache, in that precedence order; the result is
// committed and written back to the cache before the call returns. On any
// failure no session is created.
func (s *Service) LoadDesign(ctx context.Context, doc *design.Document) (DesignSession, Result, error) {
	var created DesignSession
	var res Result
	info := &auditInfo{}
	err := s.instrument(ctx, "load_design", info, func(ctx context.Context) error {
		if doc == nil {
			return design.MalformedInputError{Reason: "no document"}
		}
		session := domain.DesignSession{
			Design: doc.Record(),
			Colors: doc.DomainColors(),
		}
		in := reconcileInput{
			Entry:        s.cacheLookup(ctx, session.Design.ContentHash),
			SeedDefaults: s.seedDefaults,
		}
		in.MapEntries, in.MapPresent = doc.NeedleMap()
		in.BlackIndex, in.WhiteIndex = doc.PreferredDefaults()
		reconcileSession(&session, in)

		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var txErr error
			created, txErr = tx.CreateSession(session)
			return txErr
		})
		if err != nil {
			return err
		}
		info.entityID = created.ID
		info.detail = fmt.Sprintf("loaded %s with %d colors", created.Design.Filename, len(created.Colors))
		s.persistAssignments(ctx, created)
		return nil
	})
	if err != nil {
		return DesignSession{}, res, err
	}
	return created, res, nil
}

// Swap exchanges the bindings of two needle slots (0-based indices) and
// returns the outcome computed from the pre-swap snapshot.
func (s *Service) Swap(ctx context.Context, sessionID string, from, to int) (SwapResult, Result, error) {
	var swap SwapResult
	var updated DesignSession
	var res Result
	info := &auditInfo{entityID: sessionID}
	err := s.instrument(ctx, "swap_slots", info, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindSession(sessionID); !ok {
				return ErrNotFound{Entity: EntityDesignSession, ID: sessionID}
			}
			var txErr error
			updated, txErr = tx.UpdateSession(sessionID, func(session *DesignSession) error {
				var opErr error
				swap, opErr = session.SwapSlots(from, to)
				return opErr
			})
			return txErr
		})
		if err != nil {
			return err
		}
		info.detail = swap.Describe()
		s.persistAssignments(ctx, updated)
		return nil
	})
	if err != nil {
		return SwapResult{}, res, err
	}
	return swap, res, nil
}

// Clear empties a needle slot. Clearing an already empty slot succeeds and
// says so in the status.
func (s *Service) Clear(ctx context.Context, sessionID string, index int) (string, Result, error) {
	var status string
	var updated DesignSession
	var res Result
	info := &auditInfo{entityID: sessionID}
	err := s.instrument(ctx, "clear_slot", info, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindSession(sessionID); !ok {
				return ErrNotFound{Entity: EntityDesignSession, ID: sessionID}
			}
			var txErr error
			updated, txErr = tx.UpdateSession(sessionID, func(session *DesignSession) error {
				prior, opErr := session.Slot(index)
				if opErr != nil {
					return opErr
				}
				if opErr := session.ClearSlot(index); opErr != nil {
					return opErr
				}
				if prior != nil {
					status = fmt.Sprintf("cleared needle %d (code %s)", index+1, prior.Code)
				} else {
					status = fmt.Sprintf("needle %d already empty", index+1)
				}
				return nil
			})
			return txErr
		})
		if err != nil {
			return err
		}
		info.detail = status
		s.persistAssignments(ctx, updated)
		return nil
	})
	if err != nil {
		return "", res, err
	}
	return status, res, nil
}

// Assign binds the session color carrying the given thread code to a needle
// slot, relocating the code if it already holds another slot.
func (s *Service) Assign(ctx context.Context, sessionID string, index int, code string) (string, Result, error) {
	var status string
	var updated DesignSession
	var res Result
	info := &auditInfo{entityID: sessionID}
	err := s.instrument(ctx, "assign_slot", info, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindSession(sessionID); !ok {
				return ErrNotFound{Entity: EntityDesignSession, ID: sessionID}
			}
			var txErr error
			updated, txErr = tx.UpdateSession(sessionID, func(session *DesignSession) error {
				if opErr := domain.CheckSlotIndex(index); opErr != nil {
					return opErr
				}
				color, ok := session.FindColorByCode(code)
				if !ok {
					return ErrNotFound{Entity: EntityColor, ID: code}
				}
				place(session, index, color.Binding())
				status = fmt.Sprintf("assigned code %s to needle %d", code, index+1)
				return nil
			})
			return txErr
		})
		if err != nil {
			return err
		}
		info.detail = status
		s.persistAssignments(ctx, updated)
		return nil
	})
	if err != nil {
		return "", res, err
	}
	return status, res, nil
}

// DeleteSession discards a working session. The cache entry for the design's
// content hash is left in place so a later reload starts where the operator
// stopped.
func (s *Service) DeleteSession(ctx context.Context, id string) (Result, error) {
	var res Result
	info := &auditInfo{entityID: id}
	err := s.instrument(ctx, "delete_session", info, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindSession(id); !ok {
				return ErrNotFound{Entity: EntityDesignSession, ID: id}
			}
			return tx.DeleteSession(id)
		})
		return err
	})
	return res, err
}

// GetSession returns a deep copy of the stored session.
func (s *Service) GetSession(id string) (DesignSession, error) {
	session, ok := s.store.GetSession(id)
	if !ok {
		return DesignSession{}, ErrNotFound{Entity: EntityDesignSession, ID: id}
	}
	return session, nil
}

// Sessions lists stored sessions ordered by creation time.
func (s *Service) Sessions() []DesignSession {
	return s.store.ListSessions()
}

// Slots returns a copy of the session's needle slots.
func (s *Service) Slots(id string) (SlotArray, error) {
	session, err := s.GetSession(id)
	if err != nil {
		return SlotArray{}, err
	}
	return session.Slots, nil
}

// Colors returns a copy of the session's color list.
func (s *Service) Colors(id string) ([]Color, error) {
	session, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}
	return session.Colors, nil
}

// Record returns the design record for a session.
func (s *Service) Record(id string) (DesignRecord, error) {
	session, err := s.GetSession(id)
	if err != nil {
		return DesignRecord{}, err
	}
	return session.Design, nil
}

// Preview renders the session's preview image as PNG bytes. Absent or
// undecodable previews fall back to a generated placeholder sized from the
// design dimensions.
func (s *Service) Preview(id string) ([]byte, error) {
	session, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}
	png, err := design.PreviewPNG(session.Design.Preview)
	if err != nil {
		return design.PlaceholderPNG(int(session.Design.WidthMM), int(session.Design.HeightMM))
	}
	return png, nil
}

// cacheLookup retrieves the cached assignment entry for hash. Read failures
// degrade to a miss; they are audited and counted, never propagated.
func (s *Service) cacheLookup(ctx context.Context, hash *string) *domain.CacheEntry {
	if s.cache == nil || hash == nil {
		return nil
	}
	start := time.Now()
	entry, err := s.cache.Load(ctx, *hash)
	switch {
	case err != nil:
		s.metrics.Observe(ctx, "cache_load", false, time.Since(start))
		s.auditor.Record(ctx, AuditEntry{
			Operation:  "cache_load",
			Status:     AuditStatusError,
			Detail:     s.cache.Key(*hash),
			Error:      err.Error(),
			OccurredAt: time.Now().UTC(),
		})
		return nil
	case entry == nil:
		s.metrics.Observe(ctx, "cache_miss", true, time.Since(start))
		return nil
	default:
		s.metrics.Observe(ctx, "cache_hit", true, time.Since(start))
		return entry
	}
}

// persistAssignments mirrors the session's assignment state to the cache.
// Persistence failures are recovered here: audited, counted, and dropped so
// the primary operation still succeeds.
func (s *Service) persistAssignments(ctx context.Context, session DesignSession) {
	if s.cache == nil || session.Design.ContentHash == nil {
		return
	}
	hash := *session.Design.ContentHash
	start := time.Now()
	err := s.cache.Save(ctx, hash, session.CacheProjection())
	s.metrics.Observe(ctx, "cache_save", err == nil, time.Since(start))
	if err != nil {
		s.auditor.Record(ctx, AuditEntry{
			Operation:  "cache_save",
			Status:     AuditStatusError,
			Entity:     EntityDesignSession,
			EntityID:   session.ID,
			Detail:     s.cache.Key(hash),
			Error:      err.Error(),
			OccurredAt: time.Now().UTC(),
		})
	}
}
