package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/splitshot/splitshot/internal/config"
	"github.com/splitshot/splitshot/internal/export"
	"github.com/splitshot/splitshot/internal/session"
)

func newSplitCmd(configPath *string) *cobra.Command {
	var (
		height int
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "split <image>",
		Short: "Split one image from the command line",
		Long: `Splits a single image into fixed-height slices and writes the result
without starting the web server.

The output format is "zip" (default), "pdf", or "dir" to write the slice
PNGs into a directory.`,
		Example: `  # Split into an 800px-per-slice ZIP archive
  splitshot split capture.png --height 800

  # One PDF page per slice
  splitshot split capture.png --format pdf -o capture.pdf

  # Numbered PNGs in a directory
  splitshot split capture.png --format dir -o slices/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			inputPath := args[0]
			data, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", inputPath, err)
			}

			if height == 0 {
				height = cfg.DefaultSliceHeight
			}

			ctrl := session.New("cli", session.Limits{
				MinSliceHeight: cfg.MinSliceHeight,
				MaxSliceHeight: cfg.MaxSliceHeight,
			})
			defer ctrl.Close()

			if err := ctrl.ProcessImage(data, filepath.Base(inputPath), height); err != nil {
				return err
			}
			if err := ctrl.Wait(cmd.Context()); err != nil {
				return err
			}

			snap := ctrl.Snapshot()
			if snap.State != session.StateReady {
				return fmt.Errorf("processing failed: %s", snap.Err)
			}
			slog.Info("Image sliced",
				"input", inputPath,
				"width", snap.SourceWidth,
				"height", snap.SourceHeight,
				"slices", len(snap.Slices))

			if format == "dir" {
				return writeSliceDir(ctrl, snap, defaultOutput(output, inputPath, "_slices"))
			}

			exportFormat, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			outPath := defaultOutput(output, inputPath, "_slices"+exportFormat.Ext())
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outPath, err)
			}
			defer f.Close()

			if err := ctrl.ExportSelection(cmd.Context(), exportFormat, f, nil); err != nil {
				return err
			}

			slog.Info("Export written", "output", outPath, "format", format)
			return nil
		},
	}

	cmd.Flags().IntVar(&height, "height", 0, "Slice height in pixels (defaults to config)")
	cmd.Flags().StringVarP(&format, "format", "f", "zip", "Output format: zip, pdf, or dir")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (defaults next to the input)")

	return cmd
}

// writeSliceDir writes every selected slice as a numbered PNG.
func writeSliceDir(ctrl *session.Controller, snap session.Snapshot, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	for _, meta := range snap.Slices {
		entry, ok := ctrl.ResolveHandle(meta.DisplayHandle)
		if !ok {
			return fmt.Errorf("slice %d is no longer available", meta.Index)
		}
		path := filepath.Join(dir, export.EntryName(meta.Index))
		if err := os.WriteFile(path, entry.Data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	slog.Info("Slices written", "dir", dir, "count", len(snap.Slices))
	return nil
}

func defaultOutput(output, inputPath, suffix string) string {
	if output != "" {
		return output
	}
	base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
	return base + suffix
}
