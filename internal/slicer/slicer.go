// Package slicer cuts a decoded raster image into height-bounded horizontal
// bands and encodes each band independently as PNG.
package slicer

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/webp"
)

// DecodeError wraps a failure to decode the source image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "failed to decode image: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError wraps a failure to encode one slice.
type EncodeError struct {
	Index int
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to encode slice %d: %v", e.Index, e.Err)
}
func (e *EncodeError) Unwrap() error { return e.Err }

// Region is one horizontal band of the source image. Y is the top row in
// source coordinates; Height is the true band height, so the last region
// carries the remainder and is never padded.
type Region struct {
	Index  int
	Y      int
	Width  int
	Height int
}

// Sniff probes the image header without a full decode. Returns the format
// name ("png", "jpeg", "gif", "webp") and pixel dimensions.
func Sniff(data []byte) (string, int, int, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", 0, 0, &DecodeError{Err: err}
	}
	return format, cfg.Width, cfg.Height, nil
}

// Decode decodes the full source image.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	return img, format, nil
}

// Plan computes the ordered list of slice regions for an image of the given
// dimensions. Produces exactly ceil(height/sliceHeight) regions; region i
// covers source rows [i*sliceHeight, min((i+1)*sliceHeight, height)).
func Plan(width, height, sliceHeight int) ([]Region, error) {
	if sliceHeight <= 0 {
		return nil, fmt.Errorf("slice height must be positive, got %d", sliceHeight)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("image dimensions must be positive, got %dx%d", width, height)
	}

	count := (height + sliceHeight - 1) / sliceHeight
	regions := make([]Region, 0, count)
	for i := 0; i < count; i++ {
		y := i * sliceHeight
		h := sliceHeight
		if y+h > height {
			h = height - y
		}
		regions = append(regions, Region{
			Index:  i,
			Y:      y,
			Width:  width,
			Height: h,
		})
	}
	return regions, nil
}

// Render copies one region out of the source image and PNG-encodes it.
// Each region is rendered independently; no state is carried between calls.
func Render(img image.Image, r Region) ([]byte, error) {
	bounds := img.Bounds()
	band := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	src := image.Pt(bounds.Min.X, bounds.Min.Y+r.Y)
	draw.Draw(band, band.Bounds(), img, src, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, band); err != nil {
		return nil, &EncodeError{Index: r.Index, Err: err}
	}
	return buf.Bytes(), nil
}
