package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/skopiLandToken/skopi-sub000/internal/service"
)

// handleListTranches handles GET /api/tranches
func (s *Server) handleListTranches(w http.ResponseWriter, r *http.Request) {
	tranches, err := s.services.Verification.ListTranches(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tranches": tranches})
}

// handleCreateIntent handles POST /api/intents
func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req service.CreateIntentInput
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	intent, err := s.services.Verification.CreateIntent(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, intent)
}

// handleGetIntent handles GET /api/intents/{id}
func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	intent, err := s.services.Verification.GetIntent(r.Context(), pathID(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, intent)
}

// handleMarkPaid handles POST /api/intents/{id}/paid, the buyer's signal that
// the transfer was sent
func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	intent, err := s.services.Verification.MarkAwaitingPayment(r.Context(), pathID(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, intent)
}

// handleVerifyIntent handles POST /api/intents/{id}/verify. A payment not yet
// visible on chain is a normal 200 response with matched=false.
func (s *Server) handleVerifyIntent(w http.ResponseWriter, r *http.Request) {
	result, err := s.services.Verification.Verify(r.Context(), pathID(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func pathID(r *http.Request) string {
	return strings.TrimSpace(mux.Vars(r)["id"])
}
