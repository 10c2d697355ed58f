package core

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"sort"

	"stitchcore/internal/design"
	"stitchcore/pkg/domain"
)

// Near-black and near-white channel thresholds, matching the thread charts'
// conventional cutoffs.
const (
	darkChannelMax    = 50
	lightChannelMin   = 200
	blackThreadCode   = "137"
	whiteThreadCode   = "135"
	defaultBlackIndex = 4 // needle 5
	defaultWhiteIndex = 7 // needle 8
)

// threadGroup collects the stops sharing one physical thread. Grouping is by
// code plus RGB so recolored variants of a code stay distinct for seeding.
type threadGroup struct {
	key     string
	binding domain.NeedleBinding
}

// seedDefaultAssignments places threads on needles for a design that arrived
// with no assignment information. The first near-black thread takes the black
// needle, the first near-white thread the white needle, and the remaining
// groups land on free needles in a shuffle seeded by the sorted group keys,
// so repeated loads of the same design agree. Groups left over when needles
// run out, and groups whose code already holds a slot, stay unassigned.
// Returns the number of slots seeded.
func seedDefaultAssignments(session *domain.DesignSession, blackIndex, whiteIndex int) int {
	if len(session.Colors) == 0 {
		return 0
	}
	if domain.CheckSlotIndex(blackIndex) != nil {
		blackIndex = defaultBlackIndex
	}
	if domain.CheckSlotIndex(whiteIndex) != nil {
		whiteIndex = defaultWhiteIndex
	}

	var groups []threadGroup
	seen := make(map[string]bool)
	for _, c := range session.Colors {
		key := c.Code + "_" + c.RGB
		if seen[key] {
			continue
		}
		seen[key] = true
		groups = append(groups, threadGroup{key: key, binding: c.Binding()})
	}

	taken := make(map[int]bool)
	codeTaken := make(map[string]bool)
	target := make(map[string]int, len(groups))
	blackDone, whiteDone := false, false
	var rest []threadGroup
	for _, g := range groups {
		if codeTaken[g.binding.Code] {
			continue
		}
		switch {
		case !blackDone && isNearBlack(g.binding) && !taken[blackIndex]:
			target[g.key] = blackIndex
			taken[blackIndex] = true
			codeTaken[g.binding.Code] = true
			blackDone = true
		case !whiteDone && isNearWhite(g.binding) && !taken[whiteIndex]:
			target[g.key] = whiteIndex
			taken[whiteIndex] = true
			codeTaken[g.binding.Code] = true
			whiteDone = true
		default:
			rest = append(rest, g)
		}
	}

	free := make([]int, 0, domain.NeedleCount)
	for i := 0; i < domain.NeedleCount; i++ {
		if !taken[i] {
			free = append(free, i)
		}
	}
	keys := make([]string, 0, len(groups))
	for _, g := range groups {
		keys = append(keys, g.key)
	}
	sort.Strings(keys)
	rng := rand.New(rand.NewSource(assignmentSeed(keys)))
	rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })

	for _, g := range rest {
		if codeTaken[g.binding.Code] {
			continue
		}
		if len(free) == 0 {
			break
		}
		target[g.key] = free[0]
		free = free[1:]
		codeTaken[g.binding.Code] = true
	}

	seeded := 0
	for _, g := range groups {
		index, ok := target[g.key]
		if !ok {
			continue
		}
		// Indices come from validated preferences or the free list.
		_ = session.SetSlot(index, g.binding)
		seeded++
	}
	return seeded
}

// assignmentSeed derives a stable RNG seed from the sorted group keys.
func assignmentSeed(sortedKeys []string) int64 {
	h := sha256.New()
	for _, key := range sortedKeys {
		h.Write([]byte(key))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return int64(binary.BigEndian.Uint64(sum[:8]) >> 1)
}

func isNearBlack(b domain.NeedleBinding) bool {
	if b.Code == blackThreadCode {
		return true
	}
	r, g, bl, ok := design.Channels(b.RGB)
	return ok && r < darkChannelMax && g < darkChannelMax && bl < darkChannelMax
}

func isNearWhite(b domain.NeedleBinding) bool {
	if b.Code == whiteThreadCode {
		return true
	}
	r, g, bl, ok := design.Channels(b.RGB)
	return ok && r > lightChannelMin && g > lightChannelMin && bl > lightChannelMin
}
