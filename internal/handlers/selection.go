package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/splitshot/splitshot/internal/models"
	"github.com/splitshot/splitshot/internal/session"
)

func (h *Handler) handleSelection(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	if r.Method != "PUT" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request models.SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := ctrl.UpdateSelection(request.Indices); err != nil {
		h.writeSessionError(w, err)
		return
	}

	h.writeJSON(w, toResponse(ctrl.Snapshot()))
}
