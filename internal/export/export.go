// Package export writes an ordered list of slice buffers into a downloadable
// container: a ZIP archive of PNGs or a PDF with one page per slice.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
)

// Format selects the output container.
type Format string

const (
	FormatZIP Format = "zip"
	FormatPDF Format = "pdf"
)

var ErrNoItems = errors.New("no slices to export")

// ParseFormat validates a user-supplied format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatZIP, FormatPDF:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown export format %q (want \"zip\" or \"pdf\")", s)
	}
}

// ContentType returns the MIME type for a format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "application/zip"
}

// Ext returns the filename extension for a format, dot included.
func (f Format) Ext() string {
	if f == FormatPDF {
		return ".pdf"
	}
	return ".zip"
}

// Item is one PNG-encoded slice to export. Callers pass items in ascending
// index order; the sink writes them in the order given.
type Item struct {
	Index  int
	Data   []byte
	Width  int
	Height int
}

// Export writes items into w using the chosen container format. onProgress,
// when non-nil, is called with a percentage after each item and reaches 100.
func Export(ctx context.Context, format Format, items []Item, w io.Writer, onProgress func(percent int)) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	switch format {
	case FormatZIP:
		return writeZIP(ctx, items, w, onProgress)
	case FormatPDF:
		return writePDF(ctx, items, w, onProgress)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func writeZIP(ctx context.Context, items []Item, w io.Writer, onProgress func(int)) error {
	zw := zip.NewWriter(w)
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := zw.Create(EntryName(item.Index))
		if err != nil {
			return fmt.Errorf("failed to create zip entry for slice %d: %w", item.Index, err)
		}
		if _, err := f.Write(item.Data); err != nil {
			return fmt.Errorf("failed to write slice %d: %w", item.Index, err)
		}
		report(onProgress, i+1, len(items))
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize zip: %w", err)
	}
	return nil
}

func writePDF(ctx context.Context, items []Item, w io.Writer, onProgress func(int)) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}

		wMM := pxToMM(item.Width)
		hMM := pxToMM(item.Height)
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: wMM, Ht: hMM})

		name := fmt.Sprintf("slice-%d", item.Index)
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(item.Data))
		pdf.ImageOptions(name, 0, 0, wMM, hMM, false, opts, 0, "")
		if pdf.Err() {
			return fmt.Errorf("failed to place slice %d: %w", item.Index, pdf.Error())
		}
		report(onProgress, i+1, len(items))
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

// EntryName is the archive filename for one slice, 1-based for humans.
func EntryName(index int) string {
	return fmt.Sprintf("slice_%03d.png", index+1)
}

// pxToMM converts pixels to millimeters at 96 dpi, the CSS reference density.
func pxToMM(px int) float64 {
	return float64(px) * 25.4 / 96.0
}

func report(onProgress func(int), done, total int) {
	if onProgress != nil {
		onProgress(done * 100 / total)
	}
}
