package design

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"stitchcore/pkg/domain"
)

// ErrPreviewUnsupported marks preview payloads the engine cannot decode.
// Not a failure: callers fall back to a generated placeholder.
var ErrPreviewUnsupported = errors.New("design: preview unsupported")

// PreviewPNG returns the decoded PNG bytes for a design preview. Absent
// payloads, non-base64 encodings and undecodable image data all report
// ErrPreviewUnsupported.
func PreviewPNG(p *domain.PreviewImage) ([]byte, error) {
	if p == nil || p.ImageData == "" {
		return nil, fmt.Errorf("%w: no payload", ErrPreviewUnsupported)
	}
	if !strings.EqualFold(p.Encoding, "base64") {
		return nil, fmt.Errorf("%w: encoding %q", ErrPreviewUnsupported, p.Encoding)
	}
	raw, err := base64.StdEncoding.DecodeString(p.ImageData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPreviewUnsupported, err)
	}
	if _, err := png.DecodeConfig(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPreviewUnsupported, err)
	}
	return raw, nil
}

const placeholderTile = 24

// PlaceholderPNG renders the neutral checkered tile served when a design
// carries no decodable preview. Non-positive dimensions get a 240px square.
func PlaceholderPNG(width, height int) ([]byte, error) {
	if width <= 0 {
		width = 240
	}
	if height <= 0 {
		height = 240
	}
	light := color.RGBA{R: 0xE8, G: 0xE8, B: 0xE8, A: 0xFF}
	dark := color.RGBA{R: 0xCF, G: 0xCF, B: 0xCF, A: 0xFF}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: light}, image.Point{}, draw.Src)
	for y := 0; y < height; y += placeholderTile {
		for x := 0; x < width; x += placeholderTile {
			if ((x/placeholderTile)+(y/placeholderTile))%2 == 0 {
				continue
			}
			tile := image.Rect(x, y, x+placeholderTile, y+placeholderTile)
			draw.Draw(img, tile.Intersect(img.Bounds()), &image.Uniform{C: dark}, image.Point{}, draw.Src)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
