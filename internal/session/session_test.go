package session

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/splitshot/splitshot/internal/export"
)

func makePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func waitReady(t *testing.T, ctrl *Controller) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ctrl.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	return ctrl.Snapshot()
}

func TestProcessImageValidation(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		sliceHeight int
	}{
		{"slice height below minimum", nil, 50},
		{"slice height above maximum", nil, 9000},
		{"not an image", []byte("plain text"), 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := New("test", DefaultLimits())
			defer ctrl.Close()

			data := tt.data
			if data == nil {
				data = makePNG(t, 10, 10)
			}

			err := ctrl.ProcessImage(data, "input.png", tt.sliceHeight)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Expected ValidationError, got %T", err)
			}

			snap := ctrl.Snapshot()
			if snap.State != StateIdle {
				t.Errorf("Expected state to stay idle, got %s", snap.State)
			}
			if len(snap.Slices) != 0 {
				t.Errorf("Expected no slices, got %d", len(snap.Slices))
			}
		})
	}
}

func TestPipelineToReady(t *testing.T) {
	ctrl := New("test", DefaultLimits())
	defer ctrl.Close()

	if err := ctrl.ProcessImage(makePNG(t, 60, 1000), "shot.png", 400); err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}
	snap := waitReady(t, ctrl)

	if snap.State != StateReady {
		t.Fatalf("Expected state ready, got %s (err=%s)", snap.State, snap.Err)
	}
	if snap.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", snap.Progress)
	}
	if snap.SourceWidth != 60 || snap.SourceHeight != 1000 {
		t.Errorf("Expected source 60x1000, got %dx%d", snap.SourceWidth, snap.SourceHeight)
	}

	if len(snap.Slices) != 3 {
		t.Fatalf("Expected 3 slices, got %d", len(snap.Slices))
	}
	wantHeights := []int{400, 400, 200}
	for i, s := range snap.Slices {
		if s.Index != i {
			t.Errorf("Expected slice %d to have index %d, got %d", i, i, s.Index)
		}
		if !s.Filled {
			t.Errorf("Expected slice %d to be filled", i)
		}
		if s.Height != wantHeights[i] {
			t.Errorf("Expected slice %d height %d, got %d", i, wantHeights[i], s.Height)
		}
		if s.DisplayHandle == "" {
			t.Errorf("Expected slice %d to have a display handle", i)
		}
		if _, ok := ctrl.ResolveHandle(s.DisplayHandle); !ok {
			t.Errorf("Expected handle for slice %d to resolve", i)
		}
	}

	// Selection defaults to the full index set.
	if len(snap.Selection) != 3 {
		t.Fatalf("Expected full selection, got %v", snap.Selection)
	}
	for i, idx := range snap.Selection {
		if idx != i {
			t.Errorf("Expected selection[%d] = %d, got %d", i, i, idx)
		}
	}
}

func TestSelectionOperations(t *testing.T) {
	ctrl := New("test", DefaultLimits())
	defer ctrl.Close()

	if err := ctrl.ProcessImage(makePNG(t, 30, 900), "shot.png", 300); err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}
	waitReady(t, ctrl)

	if err := ctrl.UpdateSelection([]int{2, 0}); err != nil {
		t.Fatalf("UpdateSelection failed: %v", err)
	}
	if got := ctrl.Snapshot().Selection; len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("Expected selection [0 2], got %v", got)
	}

	// Out-of-range updates are rejected wholesale.
	if err := ctrl.UpdateSelection([]int{0, 3}); err == nil {
		t.Error("Expected out-of-range selection to be rejected")
	}
	if got := ctrl.Snapshot().Selection; len(got) != 2 {
		t.Errorf("Expected selection unchanged after rejection, got %v", got)
	}

	if err := ctrl.ToggleIndex(1); err != nil {
		t.Fatalf("ToggleIndex failed: %v", err)
	}
	if got := ctrl.Snapshot().Selection; len(got) != 3 {
		t.Errorf("Expected selection of 3 after toggle, got %v", got)
	}
	if err := ctrl.ToggleIndex(1); err != nil {
		t.Fatalf("ToggleIndex failed: %v", err)
	}
	if got := ctrl.Snapshot().Selection; len(got) != 2 {
		t.Errorf("Expected selection of 2 after second toggle, got %v", got)
	}

	if err := ctrl.DeselectAll(); err != nil {
		t.Fatalf("DeselectAll failed: %v", err)
	}
	if got := ctrl.Snapshot().Selection; len(got) != 0 {
		t.Errorf("Expected empty selection, got %v", got)
	}

	var buf bytes.Buffer
	if err := ctrl.ExportSelection(context.Background(), export.FormatZIP, &buf, nil); !errors.Is(err, ErrNoSelection) {
		t.Errorf("Expected ErrNoSelection, got %v", err)
	}

	if err := ctrl.SelectAll(); err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	if got := ctrl.Snapshot().Selection; len(got) != 3 {
		t.Errorf("Expected full selection, got %v", got)
	}
}

func TestSelectionRequiresReady(t *testing.T) {
	ctrl := New("test", DefaultLimits())
	defer ctrl.Close()

	if err := ctrl.UpdateSelection([]int{0}); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady in idle state, got %v", err)
	}
	if err := ctrl.ToggleIndex(0); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady in idle state, got %v", err)
	}

	var buf bytes.Buffer
	err := ctrl.ExportSelection(context.Background(), export.FormatZIP, &buf, nil)
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady in idle state, got %v", err)
	}
}

func TestExportOrderingIgnoresSelectionOrder(t *testing.T) {
	ctrl := New("test", DefaultLimits())
	defer ctrl.Close()

	if err := ctrl.ProcessImage(makePNG(t, 20, 900), "shot.png", 300); err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}
	waitReady(t, ctrl)

	// Selection insertion order {2, 0, 1} must still export as [0, 1, 2].
	if err := ctrl.UpdateSelection([]int{2, 0, 1}); err != nil {
		t.Fatalf("UpdateSelection failed: %v", err)
	}

	var buf bytes.Buffer
	if err := ctrl.ExportSelection(context.Background(), export.FormatZIP, &buf, nil); err != nil {
		t.Fatalf("ExportSelection failed: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("Export is not a valid zip: %v", err)
	}
	want := []string{"slice_001.png", "slice_002.png", "slice_003.png"}
	if len(zr.File) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(zr.File))
	}
	for i, f := range zr.File {
		if f.Name != want[i] {
			t.Errorf("Expected entry %d to be %s, got %s", i, want[i], f.Name)
		}
	}
}

func TestDecodeFailureMovesToError(t *testing.T) {
	ctrl := New("test", DefaultLimits())
	defer ctrl.Close()

	// Truncate past the header: DecodeConfig succeeds on the IHDR, the full
	// decode fails in the worker.
	data := makePNG(t, 40, 600)[:40]

	if err := ctrl.ProcessImage(data, "broken.png", 300); err != nil {
		t.Fatalf("ProcessImage failed synchronously: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ctrl.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	snap := ctrl.Snapshot()
	if snap.State != StateError {
		t.Fatalf("Expected state error, got %s", snap.State)
	}
	if snap.Err == "" {
		t.Error("Expected an error message")
	}
	if len(snap.Slices) != 0 {
		t.Errorf("Expected partial slices to be discarded, got %d", len(snap.Slices))
	}

	// Error state is terminal until the user re-initiates.
	if err := ctrl.UpdateSelection([]int{0}); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady in error state, got %v", err)
	}
}

func TestCancellationDiscardsStaleRun(t *testing.T) {
	ctrl := New("test", DefaultLimits())
	defer ctrl.Close()

	// Start a large run, then immediately replace it with a small one. Only
	// the second run's slices may ever be visible.
	if err := ctrl.ProcessImage(makePNG(t, 50, 12000), "first.png", 100); err != nil {
		t.Fatalf("First ProcessImage failed: %v", err)
	}
	if err := ctrl.ProcessImage(makePNG(t, 30, 300), "second.png", 100); err != nil {
		t.Fatalf("Second ProcessImage failed: %v", err)
	}

	snap := waitReady(t, ctrl)
	if snap.State != StateReady {
		t.Fatalf("Expected state ready, got %s (err=%s)", snap.State, snap.Err)
	}
	if snap.Filename != "second.png" {
		t.Errorf("Expected filename second.png, got %s", snap.Filename)
	}
	if snap.SourceWidth != 30 || snap.SourceHeight != 300 {
		t.Errorf("Expected source 30x300, got %dx%d", snap.SourceWidth, snap.SourceHeight)
	}
	if len(snap.Slices) != 3 {
		t.Fatalf("Expected 3 slices from the second run, got %d", len(snap.Slices))
	}
	for _, s := range snap.Slices {
		if s.Width != 30 {
			t.Errorf("Expected slice width 30 (second image), got %d", s.Width)
		}
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	ctrl := New("test", DefaultLimits())
	defer ctrl.Close()

	if err := ctrl.ProcessImage(makePNG(t, 20, 400), "shot.png", 200); err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}
	snap := waitReady(t, ctrl)
	handle := snap.Slices[0].DisplayHandle

	ctrl.Reset()

	snap = ctrl.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("Expected state idle after reset, got %s", snap.State)
	}
	if len(snap.Slices) != 0 || len(snap.Selection) != 0 {
		t.Error("Expected reset to drop slices and selection")
	}
	if _, ok := ctrl.ResolveHandle(handle); ok {
		t.Error("Expected reset to revoke display handles")
	}

	// Reset is idempotent.
	ctrl.Reset()
	if got := ctrl.Snapshot().State; got != StateIdle {
		t.Errorf("Expected state idle after double reset, got %s", got)
	}
}

func TestExportFailureLeavesSessionReady(t *testing.T) {
	ctrl := New("test", DefaultLimits())
	defer ctrl.Close()

	if err := ctrl.ProcessImage(makePNG(t, 20, 400), "shot.png", 200); err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}
	waitReady(t, ctrl)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	if err := ctrl.ExportSelection(cancelled, export.FormatZIP, &buf, nil); err == nil {
		t.Fatal("Expected export with cancelled context to fail")
	}

	// Selection survives a failed export; retry succeeds.
	snap := ctrl.Snapshot()
	if snap.State != StateReady {
		t.Fatalf("Expected state ready after failed export, got %s", snap.State)
	}
	if len(snap.Selection) != 2 {
		t.Errorf("Expected selection intact, got %v", snap.Selection)
	}

	buf.Reset()
	if err := ctrl.ExportSelection(context.Background(), export.FormatZIP, &buf, nil); err != nil {
		t.Errorf("Expected retry to succeed, got %v", err)
	}
}
