package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

const campaignColumns = `
	id, name, status, pool_tokens, distributed_tokens, per_user_cap, lock_seconds,
	starts_at, ends_at, created_at, updated_at`

const taskColumns = `
	id, campaign_id, name, bounty_tokens, requires_review, allowed_domains, require_https,
	min_url_length, max_submissions_per_wallet, active, created_at`

const allocationColumns = `
	id, campaign_id, wallet, user_id, submission_id, total_tokens, locked_tokens,
	claimable_tokens, lock_ends_at, status, created_at`

// CampaignRepository handles airdrop campaigns, tasks and FCFS allocation
type CampaignRepository struct {
	db  *PostgresDB
	now func() time.Time
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *PostgresDB) *CampaignRepository {
	return &CampaignRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	if err := row.Scan(&c.ID, &c.Name, &c.Status, &c.PoolTokens, &c.DistributedTokens, &c.PerUserCap,
		&c.LockSeconds, &c.StartsAt, &c.EndsAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	var minLen int32
	var maxPerWallet *int32
	if err := row.Scan(&t.ID, &t.CampaignID, &t.Name, &t.BountyTokens, &t.RequiresReview, &t.AllowedDomains,
		&t.RequireHTTPS, &minLen, &maxPerWallet, &t.Active, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.MinURLLength = int(minLen)
	if maxPerWallet != nil {
		v := int(*maxPerWallet)
		t.MaxSubmissionsPerWallet = &v
	}
	return &t, nil
}

func scanAllocation(row pgx.Row) (*models.Allocation, error) {
	var a models.Allocation
	if err := row.Scan(&a.ID, &a.CampaignID, &a.Wallet, &a.UserID, &a.SubmissionID, &a.TotalTokens,
		&a.LockedTokens, &a.ClaimableTokens, &a.LockEndsAt, &a.Status, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func campaignNotFound(id string) error {
	return apperrors.NewNotFoundError(apperrors.CodeCampaignNotFound, "campaign", id)
}

// Create inserts a campaign in the draft state
func (r *CampaignRepository) Create(ctx context.Context, c *models.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := r.now()
	c.Status = types.CampaignDraft
	c.DistributedTokens = 0
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO airdrop_campaigns (`+campaignColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.Name, c.Status, c.PoolTokens, c.DistributedTokens, c.PerUserCap, c.LockSeconds,
		c.StartsAt, c.EndsAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return apperrors.NewDatabaseError("create campaign", err)
	}
	return nil
}

// GetByID retrieves a campaign by ID
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	if !validID(id) {
		return nil, campaignNotFound(id)
	}
	c, err := scanCampaign(r.db.Pool().QueryRow(ctx, `SELECT `+campaignColumns+` FROM airdrop_campaigns WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, campaignNotFound(id)
		}
		return nil, apperrors.NewDatabaseError("get campaign", err)
	}
	return c, nil
}

// SetStatus moves a campaign along its lifecycle
func (r *CampaignRepository) SetStatus(ctx context.Context, id string, to types.CampaignStatus) (*models.Campaign, error) {
	if !validID(id) {
		return nil, campaignNotFound(id)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("begin set campaign status", err)
	}
	defer rollback(ctx, tx)

	c, err := lockCampaign(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, campaignNotFound(id)
	}
	if c.Status == to {
		return c, nil
	}
	if !c.Status.CanTransitionTo(to) {
		return nil, apperrors.NewInvalidTransitionError("campaign", id, c.Status, to)
	}

	c, err = scanCampaign(tx.QueryRow(ctx, `
		UPDATE airdrop_campaigns SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+campaignColumns, id, to))
	if err != nil {
		return nil, apperrors.NewDatabaseError("update campaign status", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.NewDatabaseError("commit campaign status", err)
	}
	return c, nil
}

// lockCampaign returns the campaign row locked for update, or nil when absent
func lockCampaign(ctx context.Context, q querier, id string) (*models.Campaign, error) {
	c, err := scanCampaign(q.QueryRow(ctx, `SELECT `+campaignColumns+` FROM airdrop_campaigns WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("lock campaign", err)
	}
	return c, nil
}

// CreateTask inserts a task into an existing campaign
func (r *CampaignRepository) CreateTask(ctx context.Context, t *models.Task) error {
	if _, err := r.GetByID(ctx, t.CampaignID); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.AllowedDomains == nil {
		t.AllowedDomains = []string{}
	}
	t.CreatedAt = r.now()

	var maxPerWallet *int32
	if t.MaxSubmissionsPerWallet != nil {
		v := int32(*t.MaxSubmissionsPerWallet) // #nosec G115 - validated positive by the service
		maxPerWallet = &v
	}
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO airdrop_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.CampaignID, t.Name, t.BountyTokens, t.RequiresReview, t.AllowedDomains, t.RequireHTTPS,
		int32(t.MinURLLength), maxPerWallet, t.Active, t.CreatedAt) // #nosec G115
	if err != nil {
		return apperrors.NewDatabaseError("create task", err)
	}
	return nil
}

// GetTask returns a task that belongs to campaignID, or nil when there is none
func (r *CampaignRepository) GetTask(ctx context.Context, campaignID, taskID string) (*models.Task, error) {
	if !validID(campaignID) || !validID(taskID) {
		return nil, nil
	}
	t, err := scanTask(r.db.Pool().QueryRow(ctx, `
		SELECT `+taskColumns+` FROM airdrop_tasks WHERE id = $1 AND campaign_id = $2
	`, taskID, campaignID))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("get task", err)
	}
	return t, nil
}

// AllocateFCFS grants tokens from a campaign pool in one transaction.
// Negative outcomes are reported in the result, not as errors.
func (r *CampaignRepository) AllocateFCFS(ctx context.Context, req models.AllocationRequest) (*models.AllocationResult, error) {
	if req.Amount <= 0 {
		return models.Rejected(types.ReasonInvalidAmount), nil
	}
	if !validID(req.CampaignID) {
		return models.Rejected(types.ReasonCampaignNotFound), nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("begin allocate", err)
	}
	defer rollback(ctx, tx)

	result, _, err := allocateTx(ctx, tx, req, r.now())
	if err != nil || !result.OK {
		return result, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.NewDatabaseError("commit allocate", err)
	}
	return result, nil
}

// allocateTx runs the FCFS checks and the grant inside tx. The campaign row
// stays locked until tx ends. On a negative result the caller must roll back.
func allocateTx(ctx context.Context, tx pgx.Tx, req models.AllocationRequest, now time.Time) (*models.AllocationResult, *models.Allocation, error) {
	if req.Amount <= 0 {
		return models.Rejected(types.ReasonInvalidAmount), nil, nil
	}

	c, err := lockCampaign(ctx, tx, req.CampaignID)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return models.Rejected(types.ReasonCampaignNotFound), nil, nil
	}

	var walletTotal int64
	if c.PerUserCap != nil {
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(total_tokens), 0)::BIGINT
			FROM airdrop_allocations
			WHERE campaign_id = $1 AND wallet = $2
		`, c.ID, req.Wallet).Scan(&walletTotal); err != nil {
			return nil, nil, apperrors.NewDatabaseError("sum wallet allocations", err)
		}
	}

	if code := c.CheckAllocation(now, req.Amount, walletTotal); code != "" {
		return models.Rejected(code), nil, nil
	}

	a := models.NewAllocation(c, req, now)
	a.ID = uuid.New().String()
	if _, err := tx.Exec(ctx, `
		INSERT INTO airdrop_allocations (`+allocationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.CampaignID, a.Wallet, a.UserID, a.SubmissionID, a.TotalTokens, a.LockedTokens,
		a.ClaimableTokens, a.LockEndsAt, a.Status, a.CreatedAt); err != nil {
		return nil, nil, apperrors.NewDatabaseError("insert allocation", err)
	}

	var remaining int64
	if err := tx.QueryRow(ctx, `
		UPDATE airdrop_campaigns
		SET distributed_tokens = distributed_tokens + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING pool_tokens - distributed_tokens
	`, c.ID, req.Amount).Scan(&remaining); err != nil {
		return nil, nil, apperrors.NewDatabaseError("update distributed tokens", err)
	}

	return &models.AllocationResult{OK: true, AllocationID: a.ID, RemainingTokens: remaining}, a, nil
}

// ListAllocations returns the allocations of a wallet in a campaign
func (r *CampaignRepository) ListAllocations(ctx context.Context, campaignID, wallet string) ([]*models.Allocation, error) {
	if !validID(campaignID) {
		return nil, campaignNotFound(campaignID)
	}
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+allocationColumns+`
		FROM airdrop_allocations
		WHERE campaign_id = $1 AND wallet = $2
		ORDER BY created_at ASC
	`, campaignID, wallet)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list allocations", err)
	}
	defer rows.Close()

	var allocations []*models.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		allocations = append(allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate allocations", err)
	}
	return allocations, nil
}

// AuditTotals returns distributed and allocated totals per campaign, or for
// one campaign when campaignID is set. Both sums are read in one statement.
func (r *CampaignRepository) AuditTotals(ctx context.Context, campaignID *string) ([]models.CampaignTotals, error) {
	if campaignID != nil && !validID(*campaignID) {
		return nil, campaignNotFound(*campaignID)
	}
	rows, err := r.db.Pool().Query(ctx, `
		SELECT c.id, c.name, c.distributed_tokens,
		       COALESCE(SUM(a.total_tokens), 0)::BIGINT AS allocated_tokens,
		       COUNT(a.id) AS allocation_count
		FROM airdrop_campaigns c
		LEFT JOIN airdrop_allocations a ON a.campaign_id = c.id
		WHERE $1::uuid IS NULL OR c.id = $1::uuid
		GROUP BY c.id, c.name, c.distributed_tokens
		ORDER BY c.created_at ASC
	`, campaignID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("audit campaign totals", err)
	}
	defer rows.Close()

	var totals []models.CampaignTotals
	for rows.Next() {
		var t models.CampaignTotals
		if err := rows.Scan(&t.CampaignID, &t.Name, &t.DistributedTokens, &t.AllocatedTokens, &t.AllocationCount); err != nil {
			return nil, fmt.Errorf("failed to scan campaign totals: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate campaign totals", err)
	}
	if campaignID != nil && len(totals) == 0 {
		return nil, campaignNotFound(*campaignID)
	}
	return totals, nil
}
