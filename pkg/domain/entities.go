// Package domain defines the core entities, the needle slot algebra, and the
// rule evaluation primitives used by stitchcore.
package domain

import (
	"fmt"
	"time"
)

// NeedleCount is the number of physical needle positions on the machine.
// Slots are indexed 0..NeedleCount-1 and displayed 1..NeedleCount.
const NeedleCount = 12

// EntityType identifies the type of record referenced by Change and
// Violation entries.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityDesignSession identifies a design working session record.
	EntityDesignSession EntityType = "design_session"
	// EntityColor identifies a thread color row within a session.
	EntityColor EntityType = "color"
	// EntityNeedleSlot identifies a needle slot within a session.
	EntityNeedleSlot EntityType = "needle_slot"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// SwapOutcome classifies the effect of a swap operation.
type SwapOutcome string

// Swap outcomes distinguish a true exchange from a relocation and from a no-op.
const (
	// SwapOutcomeSwapped reports two occupied slots exchanging bindings.
	SwapOutcomeSwapped SwapOutcome = "swapped"
	// SwapOutcomeMoved reports a binding relocating to an empty slot.
	SwapOutcomeMoved SwapOutcome = "moved"
	// SwapOutcomeNoop reports an operation that changed nothing.
	SwapOutcomeNoop SwapOutcome = "noop"
)

// Base contains common fields for all persistent records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Color is one thread stop of a design. Sequence is the 1-based stop order and
// the stable identity used by cache reconciliation; Code identifies the thread
// catalog entry. NeedleNumber is denormalized from the slot array (1-based,
// nil when unassigned) and must only change through the slot operations.
type Color struct {
	ID           string `json:"id"`
	Sequence     int    `json:"sequence"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Chart        string `json:"chart"`
	RGB          string `json:"rgb"`
	NeedleNumber *int   `json:"needle_number"`
	StitchCount  int    `json:"stitch_count"`
}

// NeedleBinding is the snapshot of a color's identifying fields held by an
// occupied needle slot. It is a copy, not a live reference to a Color row.
type NeedleBinding struct {
	Code string `json:"code"`
	Name string `json:"name"`
	RGB  string `json:"rgb"`
}

// Binding returns the slot binding snapshot for the color.
func (c Color) Binding() NeedleBinding {
	return NeedleBinding{Code: c.Code, Name: c.Name, RGB: c.RGB}
}

// SlotArray is the fixed set of needle slots. A nil element is an unassigned
// needle. Serializes as a 12-element JSON array with nulls.
type SlotArray [NeedleCount]*NeedleBinding

// PreviewImage carries the encoded preview bitmap of a design description.
type PreviewImage struct {
	Format    string `json:"format"`
	Encoding  string `json:"encoding"`
	ImageData string `json:"image_data"`
}

// DesignRecord is the immutable-per-load snapshot of a parsed design's
// metadata. It is replaced wholesale on the next load, never partially
// mutated. ContentHash is nil when the source parser provided no hash, which
// disables cache reconciliation for the design.
type DesignRecord struct {
	Filename    string        `json:"filename"`
	StitchCount int           `json:"stitch_count"`
	HeightMM    float64       `json:"height_mm"`
	WidthMM     float64       `json:"width_mm"`
	ColorCount  int           `json:"color_count"`
	Stops       int           `json:"stops"`
	Preview     *PreviewImage `json:"preview"`
	ContentHash *string       `json:"content_hash"`
}

// DesignSession is one operator's working state for a loaded design: the
// record, the color list, and the needle slot assignments. Sessions are
// independent; there is no process-wide current design.
type DesignSession struct {
	Base
	Design DesignRecord `json:"design"`
	Colors []Color      `json:"colors"`
	Slots  SlotArray    `json:"slots"`
}

// CachedColor is the per-color projection stored in a cache entry. Colors are
// matched back by Sequence, not Code, so entries survive color-list edits.
type CachedColor struct {
	Sequence     int  `json:"sequence"`
	NeedleNumber *int `json:"needle_number"`
}

// CacheEntry is the persisted assignment state for one design content hash.
type CacheEntry struct {
	Assignments SlotArray     `json:"assignments"`
	Colors      []CachedColor `json:"colors"`
}

// SwapResult describes the effect of a swap. From and To are the pre-swap
// slot bindings (either may be nil); FromIndex and ToIndex are 0-based.
type SwapResult struct {
	Outcome   SwapOutcome    `json:"outcome"`
	FromIndex int            `json:"from_index"`
	ToIndex   int            `json:"to_index"`
	From      *NeedleBinding `json:"from"`
	To        *NeedleBinding `json:"to"`
}

// Describe renders the human-readable status line for the swap, naming the
// affected needle numbers (1-based) and thread codes.
func (r SwapResult) Describe() string {
	switch r.Outcome {
	case SwapOutcomeSwapped:
		return fmt.Sprintf("swapped needle %d (code %s) with needle %d (code %s)",
			r.FromIndex+1, r.From.Code, r.ToIndex+1, r.To.Code)
	case SwapOutcomeMoved:
		if r.From != nil {
			return fmt.Sprintf("moved code %s from needle %d to needle %d",
				r.From.Code, r.FromIndex+1, r.ToIndex+1)
		}
		return fmt.Sprintf("moved code %s from needle %d to needle %d",
			r.To.Code, r.ToIndex+1, r.FromIndex+1)
	default:
		return fmt.Sprintf("needles %d and %d unchanged", r.FromIndex+1, r.ToIndex+1)
	}
}

// IndexOutOfRangeError reports a slot index outside 0..NeedleCount-1. It marks
// a programming error in the caller, not a recoverable condition.
type IndexOutOfRangeError struct {
	Index int
}

func (e IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("needle slot index %d out of range [0,%d)", e.Index, NeedleCount)
}

// CheckSlotIndex validates a 0-based slot index.
func CheckSlotIndex(index int) error {
	if index < 0 || index >= NeedleCount {
		return IndexOutOfRangeError{Index: index}
	}
	return nil
}

// Slot returns a copy of the binding at index, or nil when unassigned.
func (s *DesignSession) Slot(index int) (*NeedleBinding, error) {
	if err := CheckSlotIndex(index); err != nil {
		return nil, err
	}
	return cloneBinding(s.Slots[index]), nil
}

// SetSlot assigns binding to the slot at index, overwriting any prior
// occupant, and sets NeedleNumber = index+1 on every color whose Code matches
// the binding. A displaced prior occupant becomes unassigned (its colors lose
// their NeedleNumber). Callers placing a code that already occupies ANOTHER
// slot must clear that slot first or the 1:1 slot/code correspondence breaks.
func (s *DesignSession) SetSlot(index int, binding NeedleBinding) error {
	if err := CheckSlotIndex(index); err != nil {
		return err
	}
	prior := s.Slots[index]
	b := binding
	s.Slots[index] = &b
	if prior != nil && prior.Code != binding.Code {
		s.syncNeedleNumber(prior.Code, nil)
	}
	needle := index + 1
	s.syncNeedleNumber(binding.Code, &needle)
	return nil
}

// ClearSlot empties the slot at index and clears NeedleNumber on every color
// whose Code matches the displaced binding. Clearing an empty slot is a no-op.
func (s *DesignSession) ClearSlot(index int) error {
	if err := CheckSlotIndex(index); err != nil {
		return err
	}
	prior := s.Slots[index]
	s.Slots[index] = nil
	if prior != nil {
		s.syncNeedleNumber(prior.Code, nil)
	}
	return nil
}

// SwapSlots exchanges the bindings of two slots and resynchronizes the
// denormalized NeedleNumber of every affected color. The update is computed
// from the pre-swap snapshot of both slots so overlapping state cannot alias
// mid-update. Swapping a slot with itself, or two empty slots, is a no-op
// reported as success.
func (s *DesignSession) SwapSlots(from, to int) (SwapResult, error) {
	if err := CheckSlotIndex(from); err != nil {
		return SwapResult{}, err
	}
	if err := CheckSlotIndex(to); err != nil {
		return SwapResult{}, err
	}
	a := cloneBinding(s.Slots[from])
	b := cloneBinding(s.Slots[to])
	result := SwapResult{FromIndex: from, ToIndex: to, From: cloneBinding(a), To: cloneBinding(b)}
	if from == to || (a == nil && b == nil) {
		result.Outcome = SwapOutcomeNoop
		return result, nil
	}
	s.Slots[to] = a
	s.Slots[from] = b
	if a != nil {
		needle := to + 1
		s.syncNeedleNumber(a.Code, &needle)
	}
	if b != nil {
		needle := from + 1
		s.syncNeedleNumber(b.Code, &needle)
	}
	if a != nil && b != nil {
		result.Outcome = SwapOutcomeSwapped
	} else {
		result.Outcome = SwapOutcomeMoved
	}
	return result, nil
}

// SlotIndexOf returns the 0-based index of the slot bound to code.
func (s *DesignSession) SlotIndexOf(code string) (int, bool) {
	for i, b := range s.Slots {
		if b != nil && b.Code == code {
			return i, true
		}
	}
	return 0, false
}

// FindColorByCode returns the first color with the given thread code.
func (s *DesignSession) FindColorByCode(code string) (Color, bool) {
	for _, c := range s.Colors {
		if c.Code == code {
			return c, true
		}
	}
	return Color{}, false
}

// FindColorBySequence returns the color with the given stop sequence.
func (s *DesignSession) FindColorBySequence(sequence int) (Color, bool) {
	for _, c := range s.Colors {
		if c.Sequence == sequence {
			return c, true
		}
	}
	return Color{}, false
}

// ApplyCacheEntry replaces the slot assignments wholesale with the cached
// state and re-applies the cached needle numbers onto the color list, matched
// by stop sequence. Colors without a cached counterpart become unassigned.
func (s *DesignSession) ApplyCacheEntry(entry CacheEntry) {
	for i := range s.Slots {
		s.Slots[i] = cloneBinding(entry.Assignments[i])
	}
	for i := range s.Colors {
		s.Colors[i].NeedleNumber = nil
	}
	for _, cached := range entry.Colors {
		for i := range s.Colors {
			if s.Colors[i].Sequence == cached.Sequence {
				s.Colors[i].NeedleNumber = cloneNeedleNumber(cached.NeedleNumber)
			}
		}
	}
}

// CacheProjection extracts the persistable assignment state of the session.
func (s *DesignSession) CacheProjection() CacheEntry {
	entry := CacheEntry{Colors: make([]CachedColor, 0, len(s.Colors))}
	for i, b := range s.Slots {
		entry.Assignments[i] = cloneBinding(b)
	}
	for _, c := range s.Colors {
		entry.Colors = append(entry.Colors, CachedColor{Sequence: c.Sequence, NeedleNumber: cloneNeedleNumber(c.NeedleNumber)})
	}
	return entry
}

// syncNeedleNumber is the single write path for the denormalized
// Color.NeedleNumber field. Every color sharing the code receives the same
// needle value (threads are grouped by catalog code).
func (s *DesignSession) syncNeedleNumber(code string, needle *int) {
	for i := range s.Colors {
		if s.Colors[i].Code == code {
			s.Colors[i].NeedleNumber = cloneNeedleNumber(needle)
		}
	}
}

func cloneBinding(b *NeedleBinding) *NeedleBinding {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

func cloneNeedleNumber(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
