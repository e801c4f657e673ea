package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/splitshot/splitshot/internal/session"
)

// HandleSessions routes the session collection: POST creates a session from
// an uploaded or URL-referenced image, GET lists all sessions.
func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "POST":
		contentType := r.Header.Get("Content-Type")
		if strings.Contains(contentType, "application/json") {
			h.handleURLUpload(w, r)
			return
		}
		h.handleFileUpload(w, r)
	case "GET":
		h.handleList(w)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("files")
		if err != nil {
			h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxUploadBytes+1))
	if err != nil {
		h.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > h.cfg.MaxUploadBytes {
		h.writeError(w, "File too large", http.StatusBadRequest)
		return
	}

	sliceHeight, err := h.sliceHeightFromForm(r.FormValue("slice_height"))
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.createSession(w, data, header.Filename, sliceHeight)
}

func (h *Handler) handleURLUpload(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ImageURL    string `json:"image_url"`
		SliceHeight int    `json:"slice_height"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if request.ImageURL == "" {
		h.writeError(w, "image_url is required", http.StatusBadRequest)
		return
	}

	data, filename, err := h.fetcher.Download(r.Context(), request.ImageURL)
	if err != nil {
		h.writeError(w, "Failed to fetch image URL: "+err.Error(), http.StatusBadRequest)
		return
	}

	sliceHeight := request.SliceHeight
	if sliceHeight == 0 {
		sliceHeight = h.cfg.DefaultSliceHeight
	}

	h.createSession(w, data, filename, sliceHeight)
}

func (h *Handler) createSession(w http.ResponseWriter, data []byte, filename string, sliceHeight int) {
	sessionID := uuid.NewString()
	ctrl := session.New(sessionID, session.Limits{
		MinSliceHeight: h.cfg.MinSliceHeight,
		MaxSliceHeight: h.cfg.MaxSliceHeight,
	})

	if err := ctrl.ProcessImage(data, filename, sliceHeight); err != nil {
		h.writeSessionError(w, err)
		return
	}

	h.store.Set(sessionID, ctrl)
	slog.Info("Session created", "session_id", sessionID, "filename", filename, "slice_height", sliceHeight)

	response := map[string]any{
		"session_id":   sessionID,
		"message":      "Processing started",
		"slice_height": sliceHeight,
	}
	h.writeJSON(w, response)
}

func (h *Handler) sliceHeightFromForm(value string) (int, error) {
	if value == "" {
		return h.cfg.DefaultSliceHeight, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &session.ValidationError{Field: "slice_height", Reason: "not an integer: " + value}
	}
	return n, nil
}
