package service

import (
	"context"
	"time"

	"github.com/skopiLandToken/skopi-sub000/internal/events"
	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
)

const reconciliationActor = "reconciliation"

// ReconciliationService compares each campaign's running distributed counter
// with the sum of its allocation rows
type ReconciliationService struct {
	campaigns     CampaignStore
	audit         AuditAppender
	publisher     events.Publisher
	tokenDecimals int32
	now           func() time.Time
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(campaigns CampaignStore, audit AuditAppender, publisher events.Publisher, tokenDecimals int32) *ReconciliationService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &ReconciliationService{
		campaigns:     campaigns,
		audit:         audit,
		publisher:     publisher,
		tokenDecimals: tokenDecimals,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CampaignAudit is the reconciliation line for one campaign
type CampaignAudit struct {
	CampaignID         string `json:"campaignId"`
	Name               string `json:"name"`
	DistributedTokens  int64  `json:"distributedTokens"`
	AllocatedTokens    int64  `json:"allocatedTokens"`
	AllocationCount    int64  `json:"allocationCount"`
	Drift              int64  `json:"drift"`
	DistributedDisplay string `json:"distributedDisplay"`
	AllocatedDisplay   string `json:"allocatedDisplay"`
	Consistent         bool   `json:"consistent"`
}

// AuditReport summarizes one reconciliation pass
type AuditReport struct {
	CheckedAt time.Time       `json:"checkedAt"`
	Campaigns []CampaignAudit `json:"campaigns"`
	Drifted   int             `json:"drifted"`
}

// ReconciliationDriftEvent is published for every campaign found out of balance
type ReconciliationDriftEvent struct {
	CampaignID        string `json:"campaignId"`
	DistributedTokens int64  `json:"distributedTokens"`
	AllocatedTokens   int64  `json:"allocatedTokens"`
	Drift             int64  `json:"drift"`
}

// Audit checks one campaign, or every campaign when campaignID is nil.
// Integer amounts must match exactly; the display comparison only guards
// rendering and never hides an integer mismatch.
func (s *ReconciliationService) Audit(ctx context.Context, campaignID *string) (*AuditReport, error) {
	totals, err := s.campaigns.AuditTotals(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{CheckedAt: s.now(), Campaigns: make([]CampaignAudit, 0, len(totals))}
	for _, t := range totals {
		distributed := models.ToDisplay(t.DistributedTokens, s.tokenDecimals)
		allocated := models.ToDisplay(t.AllocatedTokens, s.tokenDecimals)
		line := CampaignAudit{
			CampaignID:         t.CampaignID,
			Name:               t.Name,
			DistributedTokens:  t.DistributedTokens,
			AllocatedTokens:    t.AllocatedTokens,
			AllocationCount:    t.AllocationCount,
			Drift:              t.Drift(),
			DistributedDisplay: distributed.String(),
			AllocatedDisplay:   allocated.String(),
			Consistent:         t.Drift() == 0 && models.DisplayEqual(distributed, allocated),
		}
		if !line.Consistent {
			report.Drifted++
			s.reportDrift(ctx, line)
		}
		report.Campaigns = append(report.Campaigns, line)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"campaigns": len(report.Campaigns),
		"drifted":   report.Drifted,
	}).Info("reconciliation audit finished")
	return report, nil
}

func (s *ReconciliationService) reportDrift(ctx context.Context, line CampaignAudit) {
	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"campaignId":  line.CampaignID,
		"distributed": line.DistributedTokens,
		"allocated":   line.AllocatedTokens,
		"drift":       line.Drift,
	})
	log.Error("campaign distributed counter does not match allocations")

	if s.audit != nil {
		if err := s.audit.Append(ctx, &models.AuditEntry{
			Actor:     reconciliationActor,
			Action:    models.AuditReconciliationDrift,
			SubjectID: line.CampaignID,
			Details: map[string]interface{}{
				"distributedTokens": line.DistributedTokens,
				"allocatedTokens":   line.AllocatedTokens,
				"drift":             line.Drift,
			},
		}); err != nil {
			log.WithError(err).Error("audit append failed")
		}
	}

	events.PublishBestEffort(ctx, s.publisher, events.ReconciliationDrift, ReconciliationDriftEvent{
		CampaignID:        line.CampaignID,
		DistributedTokens: line.DistributedTokens,
		AllocatedTokens:   line.AllocatedTokens,
		Drift:             line.Drift,
	})
}
