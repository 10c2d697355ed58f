package design

import (
	"errors"
	"strings"
	"testing"
)

const sampleDescription = `{
  "file_info": {
    "filename": "rose.pes",
    "stitch_count": 5423,
    "height_mm": 92.4,
    "width_mm": 88.1,
    "color_count": 3,
    "stops": 3,
    "hash8": "aaa111bb"
  },
  "preview": {"format": "png", "encoding": "base64", "image_data": "aWdub3JlZA=="},
  "colors": [
    {"id": 1, "sequence": 1, "code": "137", "name": "Black", "chart": "Madeira", "rgb_hex": "#0A0A0A", "needle_number": 5, "stitch_count": 1200},
    {"id": 2, "sequence": 2, "code": "135", "name": "White", "chart": "Madeira", "rgb_hex": "#FAFAFA", "needle_number": 8, "stitch_count": 2100},
    {"id": 3, "sequence": 3, "code": "620-457", "name": "Teal", "chart": "Metro Pro", "rgb_hex": "#1E9090", "needle_number": null, "stitch_count": 2123}
  ],
  "needle_assignment": {
    "assignments": {
      "5": {"code": "137", "name": "Black", "rgb_hex": "#0A0A0A"},
      "8": {"code": "135", "name": "White", "rgb_hex": "#FAFAFA"},
      "3": null
    },
    "defaults": {"black_needle": 5, "white_needle": 8}
  }
}`

func TestDecodeValidDescription(t *testing.T) {
	doc, warnings, err := Decode([]byte(sampleDescription))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if doc.FileInfo.Filename != "rose.pes" || doc.FileInfo.Hash8 != "aaa111bb" {
		t.Fatalf("unexpected file info %+v", doc.FileInfo)
	}
	if len(doc.Colors) != 3 {
		t.Fatalf("expected 3 colors, got %d", len(doc.Colors))
	}

	entries, present := doc.NeedleMap()
	if !present {
		t.Fatalf("needle map should be present")
	}
	if len(entries) != 2 {
		t.Fatalf("null entries must be dropped, got %d entries", len(entries))
	}
	if entries[0].Index != 4 || entries[0].Binding.Code != "137" || entries[0].Binding.RGB != "0A0A0A" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Index != 7 || entries[1].Binding.Code != "135" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
}

func TestDecodeStripsBOM(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte(sampleDescription)...)
	if _, _, err := Decode(raw); err != nil {
		t.Fatalf("decode with BOM: %v", err)
	}
}

func TestDecodeMalformedInputs(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace", "   \n"},
		{"bad json", `{"file_info": `},
		{"missing file_info", `{"colors": []}`},
		{"null file_info", `{"file_info": null, "colors": []}`},
		{"missing colors", `{"file_info": {"filename": "x.pes"}}`},
		{"null colors", `{"file_info": {"filename": "x.pes"}, "colors": null}`},
	}
	for _, tc := range cases {
		_, _, err := Decode([]byte(tc.raw))
		var malformed MalformedInputError
		if !errors.As(err, &malformed) {
			t.Fatalf("%s: expected MalformedInputError, got %v", tc.name, err)
		}
	}
}

func TestDecodeAllowsEmptyColorList(t *testing.T) {
	doc, _, err := Decode([]byte(`{"file_info": {"filename": "x.pes"}, "colors": []}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Colors) != 0 {
		t.Fatalf("expected empty colors")
	}
	if _, present := doc.NeedleMap(); present {
		t.Fatalf("needle map should be absent")
	}
}

func TestDecodeWarnings(t *testing.T) {
	raw := `{
	  "file_info": {"filename": "x.pes"},
	  "colors": [
	    {"id": 1, "sequence": 1, "code": "101", "rgb_hex": "#0A0A0A"},
	    {"id": 2, "sequence": 1, "code": "102", "rgb_hex": "zz"},
	    {"id": 3, "sequence": 0, "code": "103", "rgb_hex": "#FFFFFF"}
	  ],
	  "needle_assignment": {
	    "assignments": {
	      "0": {"code": "101", "name": "", "rgb_hex": "#0A0A0A"},
	      "13": {"code": "102", "name": "", "rgb_hex": "#FFFFFF"},
	      "x": {"code": "103", "name": "", "rgb_hex": "#FFFFFF"},
	      "2": {"code": "101", "name": "", "rgb_hex": "#0A0A0A"}
	    }
	  }
	}`
	doc, warnings, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	joined := strings.Join(warnings, "\n")
	for _, want := range []string{
		"duplicate color sequence 1",
		`unrecognized rgb "zz"`,
		"non-positive sequence 0",
		`needle map entry "0" ignored`,
		`needle map entry "13" ignored`,
		`needle map entry "x": not a needle number`,
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing warning %q in %v", want, warnings)
		}
	}

	entries, present := doc.NeedleMap()
	if !present || len(entries) != 1 || entries[0].Index != 1 {
		t.Fatalf("only the in-range entry should remain: %+v", entries)
	}
}

func TestRecordMapsFileInfoAndPreview(t *testing.T) {
	doc, _, err := Decode([]byte(sampleDescription))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	rec := doc.Record()
	if rec.Filename != "rose.pes" || rec.StitchCount != 5423 || rec.ColorCount != 3 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Preview == nil || rec.Preview.Encoding != "base64" {
		t.Fatalf("preview not carried: %+v", rec.Preview)
	}
	if rec.ContentHash == nil || *rec.ContentHash != "aaa111bb" {
		t.Fatalf("content hash not carried: %v", rec.ContentHash)
	}

	bare, _, err := Decode([]byte(`{"file_info": {"filename": "x.pes"}, "colors": []}`))
	if err != nil {
		t.Fatalf("decode bare: %v", err)
	}
	bareRec := bare.Record()
	if bareRec.ContentHash != nil || bareRec.Preview != nil {
		t.Fatalf("bare record must have nil hash and preview: %+v", bareRec)
	}
}

func TestDomainColorsNormalization(t *testing.T) {
	doc, _, err := Decode([]byte(sampleDescription))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	colors := doc.DomainColors()
	if len(colors) != 3 {
		t.Fatalf("expected 3 colors")
	}
	if colors[0].ID != "1" || colors[0].RGB != "0A0A0A" || colors[0].NeedleNumber == nil || *colors[0].NeedleNumber != 5 {
		t.Fatalf("unexpected first color %+v", colors[0])
	}
	if colors[2].Code != "457" {
		t.Fatalf("Metro Pro range code should collapse to 457, got %q", colors[2].Code)
	}
	if colors[2].NeedleNumber != nil {
		t.Fatalf("null needle_number should stay nil")
	}

	// Mutating the mapped colors must not alias the document.
	*colors[0].NeedleNumber = 12
	again := doc.DomainColors()
	if *again[0].NeedleNumber != 5 {
		t.Fatalf("needle number aliases the wire document")
	}
}

func TestDomainColorsFallbacks(t *testing.T) {
	raw := `{
	  "file_info": {"filename": "x.pes"},
	  "colors": [
	    {"id": 1, "sequence": 1, "code": "9", "rgb_int": 7833855, "stitch_count": 4, "stop_funshion": true}
	  ]
	}`
	doc, _, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	colors := doc.DomainColors()
	if colors[0].RGB != "778899" {
		t.Fatalf("rgb_int fallback failed: %q", colors[0].RGB)
	}
	if colors[0].Name != "Stop" {
		t.Fatalf("bare stop marker should be named Stop, got %q", colors[0].Name)
	}
}

func TestPreferredDefaults(t *testing.T) {
	doc, _, err := Decode([]byte(sampleDescription))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	black, white := doc.PreferredDefaults()
	if black != 4 || white != 7 {
		t.Fatalf("declared defaults: got %d,%d", black, white)
	}

	bare, _, err := Decode([]byte(`{"file_info": {"filename": "x.pes"}, "colors": []}`))
	if err != nil {
		t.Fatalf("decode bare: %v", err)
	}
	black, white = bare.PreferredDefaults()
	if black != 4 || white != 7 {
		t.Fatalf("fallback defaults: got %d,%d", black, white)
	}

	odd, warnings, err := Decode([]byte(`{
	  "file_info": {"filename": "x.pes"},
	  "colors": [],
	  "needle_assignment": {"assignments": {}, "defaults": {"black_needle": 0, "white_needle": 9}}
	}`))
	if err != nil {
		t.Fatalf("decode odd: %v", err)
	}
	black, white = odd.PreferredDefaults()
	if black != 4 || white != 8 {
		t.Fatalf("out-of-range black should fall back: got %d,%d", black, white)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "black_needle") {
		t.Fatalf("expected defaults warning, got %v", warnings)
	}
}
