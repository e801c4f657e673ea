package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/splitshot/splitshot/internal/config"
	"github.com/splitshot/splitshot/internal/images"
	"github.com/splitshot/splitshot/internal/models"
	"github.com/splitshot/splitshot/internal/session"
	"github.com/splitshot/splitshot/internal/storage"
)

type Handler struct {
	cfg     *config.Config
	store   *storage.Store
	fetcher *images.Fetcher
}

func New(cfg *config.Config) *Handler {
	return &Handler{
		cfg:     cfg,
		store:   storage.New(),
		fetcher: images.NewFetcher(cfg.MaxUploadBytes),
	}
}

// Close tears down every live session.
func (h *Handler) Close() {
	h.store.CloseAll()
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// writeSessionError maps session-level errors to HTTP status codes.
func (h *Handler) writeSessionError(w http.ResponseWriter, err error) {
	var verr *session.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeError(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, session.ErrNotReady):
		h.writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, session.ErrNoSelection):
		h.writeError(w, err.Error(), http.StatusBadRequest)
	default:
		h.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, sessionID string) (*session.Controller, bool) {
	ctrl, exists := h.store.Get(sessionID)
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return ctrl, true
}

// toResponse projects a session snapshot into its API shape.
func toResponse(snap session.Snapshot) *models.SessionResponse {
	slices := make([]models.SliceItem, 0, len(snap.Slices))
	for _, s := range snap.Slices {
		if !s.Filled {
			continue
		}
		slices = append(slices, models.SliceItem{
			Index:  s.Index,
			Width:  s.Width,
			Height: s.Height,
			URL:    "/api/slices/" + s.DisplayHandle,
		})
	}

	return &models.SessionResponse{
		ID:           snap.ID,
		Filename:     snap.Filename,
		State:        snap.State.String(),
		Progress:     snap.Progress,
		SourceWidth:  snap.SourceWidth,
		SourceHeight: snap.SourceHeight,
		SliceHeight:  snap.SliceHeight,
		Slices:       slices,
		Selection:    snap.Selection,
		Error:        snap.Err,
		CreatedAt:    snap.CreatedAt,
	}
}
