// Package design decodes external design descriptions (the parser's JSON
// output) into domain entities and renders the auxiliary artifacts derived
// from them: preview images, display codes, content hashes.
package design

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	json "github.com/goccy/go-json"

	"stitchcore/pkg/domain"
)

// MalformedInputError reports a design description that cannot be consumed:
// undecodable JSON or a missing required section. The previous session state
// is untouched when a load fails with it.
type MalformedInputError struct {
	Reason string
	Err    error
}

func (e MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed design description: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed design description: %s", e.Reason)
}

// Unwrap exposes the underlying decode error, when any.
func (e MalformedInputError) Unwrap() error { return e.Err }

// Document is the consumed design-description schema. file_info and colors
// are required; everything else is optional parser output.
type Document struct {
	FileInfo         *FileInfo         `json:"file_info"`
	Preview          *Preview          `json:"preview"`
	Colors           []Color           `json:"colors"`
	NeedleAssignment *NeedleAssignment `json:"needle_assignment"`
}

// FileInfo carries per-file metadata. hash8 is the cache key; when absent the
// design loads uncached.
type FileInfo struct {
	Filename     string  `json:"filename"`
	Filepath     string  `json:"filepath,omitempty"`
	StitchCount  int     `json:"stitch_count"`
	HeightMM     float64 `json:"height_mm"`
	WidthMM      float64 `json:"width_mm"`
	ColorCount   int     `json:"color_count"`
	Stops        int     `json:"stops"`
	Hash8        string  `json:"hash8,omitempty"`
	AreaMM2      float64 `json:"area_mm2,omitempty"`
	ColorChanges int     `json:"color_changes,omitempty"`
	Trims        int     `json:"trims,omitempty"`
	Appliques    int     `json:"appliques,omitempty"`
}

// Preview is the parser-rendered thumbnail payload.
type Preview struct {
	Format    string `json:"format"`
	Encoding  string `json:"encoding"`
	ImageData string `json:"image_data"`
}

// Color is one color stop as the parser emits it. Stop mirrors the parser's
// wire field, which is spelled stop_funshion upstream.
type Color struct {
	ID           int    `json:"id"`
	Sequence     int    `json:"sequence"`
	Code         string `json:"code"`
	OriginalCode string `json:"original_code,omitempty"`
	ColorWay     string `json:"color_way,omitempty"`
	Name         string `json:"name"`
	Chart        string `json:"chart"`
	RGBHex       string `json:"rgb_hex"`
	RGBInt       int    `json:"rgb_int,omitempty"`
	NeedleNumber *int   `json:"needle_number"`
	StitchCount  int    `json:"stitch_count"`
	Stop         bool   `json:"stop_funshion,omitempty"`
}

// NeedleAssignment is the explicit needle-map source. Assignments keys are
// display needle numbers ("1".."12"); a null value declares the slot empty.
type NeedleAssignment struct {
	Assignments map[string]*Binding `json:"assignments"`
	Defaults    *Defaults           `json:"defaults,omitempty"`
}

// Binding identifies the thread assigned to a needle on the wire.
type Binding struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	RGBHex string `json:"rgb_hex"`
}

// Defaults carries the parser's preferred needles for black and white thread.
type Defaults struct {
	BlackNeedle int `json:"black_needle"`
	WhiteNeedle int `json:"white_needle"`
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode parses a raw design description. Structural problems (bad JSON,
// missing file_info or colors) fail with MalformedInputError; recoverable
// oddities (out-of-range needle map entries, duplicate sequences, unparseable
// colors) come back as warnings and never fail the load.
func Decode(raw []byte) (*Document, []string, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(raw, utf8BOM))
	if len(trimmed) == 0 {
		return nil, nil, MalformedInputError{Reason: "empty document"}
	}
	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, nil, MalformedInputError{Reason: "invalid JSON", Err: err}
	}
	if doc.FileInfo == nil {
		return nil, nil, MalformedInputError{Reason: `missing required field "file_info"`}
	}
	if doc.Colors == nil {
		return nil, nil, MalformedInputError{Reason: `missing required field "colors"`}
	}
	return &doc, doc.collectWarnings(), nil
}

func (d *Document) collectWarnings() []string {
	var warnings []string
	seen := make(map[int]bool, len(d.Colors))
	for _, c := range d.Colors {
		if c.Sequence < 1 {
			warnings = append(warnings, fmt.Sprintf("color %q: non-positive sequence %d", c.Code, c.Sequence))
		} else if seen[c.Sequence] {
			warnings = append(warnings, fmt.Sprintf("duplicate color sequence %d", c.Sequence))
		}
		seen[c.Sequence] = true
		if c.RGBHex != "" {
			if _, ok := NormalizeRGB(c.RGBHex); !ok {
				warnings = append(warnings, fmt.Sprintf("color %q: unrecognized rgb %q", c.Code, c.RGBHex))
			}
		}
	}
	if d.NeedleAssignment != nil {
		for key := range d.NeedleAssignment.Assignments {
			n, err := strconv.Atoi(key)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("needle map entry %q: not a needle number", key))
				continue
			}
			if n < 1 || n > domain.NeedleCount {
				warnings = append(warnings, fmt.Sprintf("needle map entry %q ignored: needle out of range", key))
			}
		}
		if def := d.NeedleAssignment.Defaults; def != nil {
			if def.BlackNeedle < 1 || def.BlackNeedle > domain.NeedleCount {
				warnings = append(warnings, fmt.Sprintf("defaults.black_needle %d out of range", def.BlackNeedle))
			}
			if def.WhiteNeedle < 1 || def.WhiteNeedle > domain.NeedleCount {
				warnings = append(warnings, fmt.Sprintf("defaults.white_needle %d out of range", def.WhiteNeedle))
			}
		}
	}
	sort.Strings(warnings)
	return warnings
}

// Record builds the immutable per-load design record.
func (d *Document) Record() domain.DesignRecord {
	rec := domain.DesignRecord{
		Filename:    d.FileInfo.Filename,
		StitchCount: d.FileInfo.StitchCount,
		HeightMM:    d.FileInfo.HeightMM,
		WidthMM:     d.FileInfo.WidthMM,
		ColorCount:  d.FileInfo.ColorCount,
		Stops:       d.FileInfo.Stops,
	}
	if d.Preview != nil {
		rec.Preview = &domain.PreviewImage{
			Format:    d.Preview.Format,
			Encoding:  d.Preview.Encoding,
			ImageData: d.Preview.ImageData,
		}
	}
	if h := d.FileInfo.Hash8; h != "" {
		hash := h
		rec.ContentHash = &hash
	}
	return rec
}

// DomainColors maps wire colors onto domain colors, applying chart display
// normalization and RGB cleanup. Stop markers get the parser's ", Stop" name
// suffix when the parser left the name bare.
func (d *Document) DomainColors() []domain.Color {
	colors := make([]domain.Color, 0, len(d.Colors))
	for _, c := range d.Colors {
		rgb := c.RGBHex
		if rgb == "" && c.RGBInt > 0 {
			rgb = RGBFromInt(c.RGBInt)
		}
		if normalized, ok := NormalizeRGB(rgb); ok {
			rgb = normalized
		}
		name := c.Name
		if c.Stop && name == "" {
			name = "Stop"
		}
		colors = append(colors, domain.Color{
			ID:           strconv.Itoa(c.ID),
			Sequence:     c.Sequence,
			Code:         DisplayCode(c.Chart, c.Code),
			Name:         name,
			Chart:        c.Chart,
			RGB:          rgb,
			NeedleNumber: cloneNeedleNumber(c.NeedleNumber),
			StitchCount:  c.StitchCount,
		})
	}
	return colors
}

// NeedleMapEntry is one declared explicit assignment, index 0-based.
type NeedleMapEntry struct {
	Index   int
	Binding domain.NeedleBinding
}

// NeedleMap returns the valid explicit assignments in needle order, and
// whether the description declared a needle-map source at all. Out-of-range
// and null entries are dropped; presence is judged on the source section, not
// on an empty assignments map.
func (d *Document) NeedleMap() ([]NeedleMapEntry, bool) {
	if d.NeedleAssignment == nil {
		return nil, false
	}
	entries := make([]NeedleMapEntry, 0, len(d.NeedleAssignment.Assignments))
	for key, binding := range d.NeedleAssignment.Assignments {
		if binding == nil {
			continue
		}
		n, err := strconv.Atoi(key)
		if err != nil || n < 1 || n > domain.NeedleCount {
			continue
		}
		rgb := binding.RGBHex
		if normalized, ok := NormalizeRGB(rgb); ok {
			rgb = normalized
		}
		entries = append(entries, NeedleMapEntry{
			Index:   n - 1,
			Binding: domain.NeedleBinding{Code: binding.Code, Name: binding.Name, RGB: rgb},
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	return entries, true
}

// PreferredDefaults returns the declared black/white default needles as
// 0-based indices, falling back to needles 5 and 8 when the description is
// silent or out of range.
func (d *Document) PreferredDefaults() (blackIndex, whiteIndex int) {
	blackIndex, whiteIndex = 4, 7
	if d.NeedleAssignment == nil || d.NeedleAssignment.Defaults == nil {
		return blackIndex, whiteIndex
	}
	def := d.NeedleAssignment.Defaults
	if def.BlackNeedle >= 1 && def.BlackNeedle <= domain.NeedleCount {
		blackIndex = def.BlackNeedle - 1
	}
	if def.WhiteNeedle >= 1 && def.WhiteNeedle <= domain.NeedleCount {
		whiteIndex = def.WhiteNeedle - 1
	}
	return blackIndex, whiteIndex
}

func cloneNeedleNumber(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}
