package design

import (
	"fmt"
	"strconv"
	"strings"
)

// Charts whose catalog codes encode a low-high range; the display code is the
// low end of the range.
var rangeCodeCharts = map[string]bool{
	"Metro Pro": true,
	"Lemiex":    true,
}

// DisplayCode normalizes a catalog code for display. Range codes ("A-B") on
// charts that use them collapse to min(A,B) rendered as a decimal string;
// everything else passes through verbatim.
func DisplayCode(chart, code string) string {
	if !rangeCodeCharts[chart] || !strings.Contains(code, "-") {
		return code
	}
	parts := strings.Split(code, "-")
	if len(parts) != 2 {
		return code
	}
	lo, err := strconv.Atoi(parts[0])
	if err != nil {
		return code
	}
	hi, err := strconv.Atoi(parts[1])
	if err != nil {
		return code
	}
	if hi < lo {
		lo = hi
	}
	return strconv.Itoa(lo)
}

// NormalizeRGB strips a leading '#' and upper-cases a 6-hex-digit color
// string. ok reports whether the input parsed; callers keep the raw value
// when it did not.
func NormalizeRGB(raw string) (string, bool) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if len(trimmed) != 6 {
		return raw, false
	}
	for _, r := range trimmed {
		if !isHexDigit(r) {
			return raw, false
		}
	}
	return strings.ToUpper(trimmed), true
}

// RGBFromInt renders a packed 0xRRGGBB integer as a 6-hex-digit string.
func RGBFromInt(rgb int) string {
	return fmt.Sprintf("%06X", rgb&0xFFFFFF)
}

// Channels splits a 6-hex-digit RGB string into its components. ok is false
// when the string does not parse.
func Channels(rgb string) (r, g, b uint8, ok bool) {
	normalized, valid := NormalizeRGB(rgb)
	if !valid {
		return 0, 0, 0, false
	}
	packed, err := strconv.ParseUint(normalized, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return uint8(packed >> 16), uint8(packed >> 8), uint8(packed), true
}

func isHexDigit(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'f':
		return true
	case r >= 'A' && r <= 'F':
		return true
	}
	return false
}
