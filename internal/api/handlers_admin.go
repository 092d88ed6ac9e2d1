package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/service"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

// handleForceConfirm handles POST /admin/intents/{id}/force-confirm
func (s *Server) handleForceConfirm(w http.ResponseWriter, r *http.Request) {
	result, err := s.services.Verification.ForceConfirm(r.Context(), pathID(r), adminActor(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleFailIntent handles POST /admin/intents/{id}/fail
func (s *Server) handleFailIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	intent, err := s.services.Verification.FailIntent(r.Context(), pathID(r), req.Reason, adminActor(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, intent)
}

// handleListCommissions handles GET /admin/intents/{id}/commissions
func (s *Server) handleListCommissions(w http.ResponseWriter, r *http.Request) {
	rows, err := s.services.Commissions.List(r.Context(), pathID(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"commissions": rows})
}

// handleCommitCommissions handles POST /admin/intents/{id}/commissions
func (s *Server) handleCommitCommissions(w http.ResponseWriter, r *http.Request) {
	rows, err := s.services.Commissions.Commit(r.Context(), pathID(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"commissions": rows})
}

// queryLimit reads ?limit=, returning def when it is absent
func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperrors.NewInvalidParameterError("limit", "must be a positive integer")
	}
	return n, nil
}

// handleSweep handles POST /admin/verify/sweep?limit=
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, s.config.SweepLimit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	report, err := s.services.Sweep.Run(r.Context(), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// handleMarkPayable handles POST /admin/commissions/payable
func (s *Server) handleMarkPayable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfirmedBefore time.Time `json:"confirmedBefore"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	n, err := s.services.Commissions.MarkPayable(r.Context(), req.ConfirmedBefore, adminActor(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"updated": n})
}

// handleMarkCommissionPaid handles POST /admin/commissions/{id}/paid
func (s *Server) handleMarkCommissionPaid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TxSignature string `json:"txSignature"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	row, err := s.services.Commissions.MarkPaid(r.Context(), pathID(r), req.TxSignature, adminActor(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, row)
}

// handleCreateTranche handles POST /admin/tranches
func (s *Server) handleCreateTranche(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		PriceUSDCAtomic int64  `json:"priceUsdcAtomic"`
		TotalTokens     int64  `json:"totalTokens"`
		SortOrder       int    `json:"sortOrder"`
		Active          *bool  `json:"active,omitempty"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	tranche := &models.Tranche{
		Name:            req.Name,
		PriceUSDCAtomic: req.PriceUSDCAtomic,
		TotalTokens:     req.TotalTokens,
		SortOrder:       req.SortOrder,
		Active:          req.Active == nil || *req.Active,
	}
	if err := s.services.Verification.CreateTranche(r.Context(), tranche); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, tranche)
}

// handleCreateCampaign handles POST /admin/airdrop/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req service.CreateCampaignInput
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	campaign, err := s.services.Allocation.CreateCampaign(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, campaign)
}

// handleSetCampaignStatus handles POST /admin/airdrop/campaigns/{id}/status
func (s *Server) handleSetCampaignStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status types.CampaignStatus `json:"status"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	campaign, err := s.services.Allocation.SetCampaignStatus(r.Context(), pathID(r), req.Status, adminActor(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, campaign)
}

// handleCreateTask handles POST /admin/airdrop/campaigns/{id}/tasks
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTaskInput
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	task, err := s.services.Allocation.CreateTask(r.Context(), pathID(r), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

// handleAllocate handles POST /admin/airdrop/campaigns/{id}/allocate
func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet string  `json:"wallet"`
		Amount int64   `json:"amount"`
		UserID *string `json:"userId,omitempty"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	result, err := s.services.Allocation.Allocate(r.Context(), service.AllocateInput{
		CampaignID: pathID(r),
		Wallet:     req.Wallet,
		Amount:     req.Amount,
		UserID:     req.UserID,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if !result.OK {
		respondReason(w, result.Error, 0, result)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

type reviewRequest struct {
	IDs      []string `json:"ids"`
	Reviewer string   `json:"reviewer,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

func (req *reviewRequest) reviewer(r *http.Request) string {
	if strings.TrimSpace(req.Reviewer) != "" {
		return req.Reviewer
	}
	return adminActor(r)
}

// handleListPendingSubmissions handles GET /admin/airdrop/campaigns/{id}/submissions?limit=
func (s *Server) handleListPendingSubmissions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 0)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	subs, err := s.services.Review.ListPending(r.Context(), pathID(r), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"submissions": subs})
}

// handleGetSubmission handles GET /admin/airdrop/submissions/{id}
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.services.Review.GetSubmission(r.Context(), pathID(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

// handleApprove handles POST /admin/airdrop/submissions/approve
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	batch, err := s.services.Review.Approve(r.Context(), req.IDs, req.reviewer(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

// handleReject handles POST /admin/airdrop/submissions/reject
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	batch, err := s.services.Review.Reject(r.Context(), req.IDs, req.reviewer(r), req.Reason)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

// handleAudit handles GET /admin/airdrop/audit?campaign_id=
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	var campaignID *string
	if id := strings.TrimSpace(r.URL.Query().Get("campaign_id")); id != "" {
		campaignID = &id
	}
	report, err := s.services.Reconciliation.Audit(r.Context(), campaignID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
