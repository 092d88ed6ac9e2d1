package api

import (
	"net/http"
	"strings"

	"github.com/skopiLandToken/skopi-sub000/internal/service"
)

// handleGetCampaign handles GET /api/airdrop/campaigns/{id}?wallet=
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	view, err := s.services.Allocation.GetCampaign(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if wallet := strings.TrimSpace(r.URL.Query().Get("wallet")); wallet != "" {
		view.Allocations, err = s.services.Allocation.ListAllocations(r.Context(), id, wallet)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, view)
}

// handleSubmit handles POST /api/airdrop/submissions
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitInput
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	result, err := s.services.Submissions.Submit(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	switch {
	case !result.OK:
		respondReason(w, result.Error, result.RetryAfterSeconds, result)
	case result.Idempotent:
		respondJSON(w, http.StatusOK, result)
	default:
		respondJSON(w, http.StatusCreated, result)
	}
}
