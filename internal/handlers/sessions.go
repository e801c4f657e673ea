package handlers

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

func (h *Handler) handleList(w http.ResponseWriter) {
	sessions := h.store.GetAll()
	list := make([]any, 0, len(sessions))
	for _, ctrl := range sessions {
		list = append(list, toResponse(ctrl.Snapshot()))
	}
	h.writeJSON(w, list)
}

// HandleSessionDetail routes /api/sessions/{id} and its subresources
// ({id}/selection, {id}/export).
func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	sessionID, sub, _ := strings.Cut(rest, "/")

	ctrl, ok := h.getSessionOrError(w, sessionID)
	if !ok {
		return
	}

	switch sub {
	case "":
		switch r.Method {
		case "GET":
			h.writeJSON(w, toResponse(ctrl.Snapshot()))
		case "DELETE":
			ctrl.Close()
			h.store.Delete(sessionID)
			slog.Info("Session deleted", "session_id", sessionID)
			h.writeJSON(w, map[string]any{"message": "Session deleted"})
		default:
			h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "selection":
		h.handleSelection(w, r, ctrl)
	case "export":
		h.handleExport(w, r, ctrl)
	default:
		h.writeError(w, "Not found", http.StatusNotFound)
	}
}

// HandleSlice serves one slice PNG by display handle. A handle revoked by a
// reset or re-upload is a 404, not a stale image.
func (h *Handler) HandleSlice(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	handle := strings.TrimPrefix(r.URL.Path, "/api/slices/")
	if handle == "" || strings.Contains(handle, "/") {
		h.writeError(w, "Invalid slice handle", http.StatusBadRequest)
		return
	}

	for _, ctrl := range h.store.GetAll() {
		if entry, ok := ctrl.ResolveHandle(handle); ok {
			w.Header().Set("Content-Type", "image/png")
			if _, err := w.Write(entry.Data); err != nil {
				slog.Error("Unable to write slice response", "err", err)
			}
			return
		}
	}
	h.writeError(w, "Slice not found", http.StatusNotFound)
}

// exportFilename derives the download name from the uploaded filename.
func exportFilename(uploaded, ext string) string {
	base := strings.TrimSuffix(uploaded, filepath.Ext(uploaded))
	if base == "" {
		base = "slices"
	}
	return base + "_slices" + ext
}
