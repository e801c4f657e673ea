package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/splitshot/splitshot/internal/export"
	"github.com/splitshot/splitshot/internal/models"
	"github.com/splitshot/splitshot/internal/session"
)

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request models.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	format, err := export.ParseFormat(request.Format)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Reject the obvious failure modes before the status line goes out;
	// once the sink starts streaming, errors can only be logged.
	snap := ctrl.Snapshot()
	if snap.State != session.StateReady {
		h.writeSessionError(w, session.ErrNotReady)
		return
	}
	if len(snap.Selection) == 0 {
		h.writeSessionError(w, session.ErrNoSelection)
		return
	}

	filename := exportFilename(snap.Filename, format.Ext())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := ctrl.ExportSelection(r.Context(), format, w, nil); err != nil {
		slog.Error("Export failed", "session_id", ctrl.ID(), "format", string(format), "error", err)
		return
	}

	slog.Info("Export complete", "session_id", ctrl.ID(), "format", string(format), "filename", filename)
}
