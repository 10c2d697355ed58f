package core

import (
	"stitchcore/internal/design"
	"stitchcore/pkg/domain"
)

// reconcileInput carries the assignment sources extracted from a freshly
// decoded design description.
type reconcileInput struct {
	MapEntries   []design.NeedleMapEntry
	MapPresent   bool
	Entry        *domain.CacheEntry
	SeedDefaults bool
	BlackIndex   int
	WhiteIndex   int
}

// reconcileSession establishes the initial slot state for a new session.
// Sources apply in precedence order: the explicit needle map, then the
// per-color fallback (consulted only when the description carries no map
// section at all), then the cache entry, which replaces the slots wholesale
// and re-applies the cached needle numbers onto the colors by stop sequence.
// When no source produced anything and default seeding is enabled, threads
// are placed on preferred and free needles instead.
func reconcileSession(session *domain.DesignSession, in reconcileInput) {
	fallback := make([]*int, len(session.Colors))
	for i := range session.Colors {
		fallback[i] = session.Colors[i].NeedleNumber
		session.Colors[i].NeedleNumber = nil
	}

	if in.MapPresent {
		for _, entry := range in.MapEntries {
			place(session, entry.Index, entry.Binding)
		}
	} else {
		anyFallback := false
		for i := range session.Colors {
			n := fallback[i]
			if n == nil || *n < 1 || *n > domain.NeedleCount {
				continue
			}
			place(session, *n-1, session.Colors[i].Binding())
			anyFallback = true
		}
		if !anyFallback && in.Entry == nil && in.SeedDefaults {
			seedDefaultAssignments(session, in.BlackIndex, in.WhiteIndex)
		}
	}

	if in.Entry != nil {
		session.ApplyCacheEntry(*in.Entry)
	}
}

// place binds a code's snapshot at index, first clearing any slot the code
// already occupies so the slot/code correspondence stays one to one.
func place(session *domain.DesignSession, index int, binding domain.NeedleBinding) {
	if prev, ok := session.SlotIndexOf(binding.Code); ok && prev != index {
		// prev came from SlotIndexOf and index from a validated source.
		_ = session.ClearSlot(prev)
	}
	_ = session.SetSlot(index, binding)
}
