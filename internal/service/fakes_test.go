package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/skopiLandToken/skopi-sub000/internal/adapter"
	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/ratelimit"
	"github.com/skopiLandToken/skopi-sub000/internal/storage"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

// memLedger is an in-memory ledger that applies the same atomic rules as the
// Postgres repositories under a single mutex.
type memLedger struct {
	mu  sync.Mutex
	now time.Time

	intents     map[string]*models.Intent
	tranches    map[string]*models.Tranche
	commissions map[string][]*models.Commission
	campaigns   map[string]*models.Campaign
	tasks       map[string]*models.Task
	allocations []*models.Allocation
	submissions map[string]*models.Submission
	audit       []*models.AuditEntry
	seq         int

	commitErr error
}

func newMemLedger() *memLedger {
	return &memLedger{
		now:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		intents:     map[string]*models.Intent{},
		tranches:    map[string]*models.Tranche{},
		commissions: map[string][]*models.Commission{},
		campaigns:   map[string]*models.Campaign{},
		tasks:       map[string]*models.Task{},
		submissions: map[string]*models.Submission{},
	}
}

// tick returns a strictly increasing timestamp so ordering by creation is stable
func (l *memLedger) tick() time.Time {
	l.seq++
	return l.now.Add(time.Duration(l.seq) * time.Millisecond)
}

func (l *memLedger) Append(ctx context.Context, entry *models.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *entry
	cp.ID = int64(len(l.audit) + 1)
	l.audit = append(l.audit, &cp)
	return nil
}

func (l *memLedger) auditActions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.audit {
		out = append(out, e.Action)
	}
	return out
}

// intents

type fakeIntents struct{ l *memLedger }

func (f fakeIntents) Create(ctx context.Context, intent *models.Intent) error {
	l := f.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	intent.Status = types.IntentCreated
	intent.CreatedAt = l.tick()
	intent.UpdatedAt = intent.CreatedAt
	cp := *intent
	l.intents[intent.ID] = &cp
	return nil
}

func (f fakeIntents) GetByID(ctx context.Context, id string) (*models.Intent, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	i, ok := f.l.intents[id]
	if !ok {
		return nil, apperrors.NewIntentNotFoundError(id)
	}
	cp := *i
	return &cp, nil
}

func (f fakeIntents) Confirm(ctx context.Context, id, sig string) (*models.Intent, bool, error) {
	l := f.l
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.intents[id]
	if !ok {
		return nil, false, apperrors.NewIntentNotFoundError(id)
	}
	if i.Status == types.IntentConfirmed {
		cp := *i
		return &cp, false, nil
	}
	if i.Status == types.IntentFailed {
		return nil, false, apperrors.NewIntentNotVerifiableError(id, i.Status)
	}
	for _, other := range l.intents {
		if other.ID != id && other.TxSignature != nil && *other.TxSignature == sig {
			return nil, false, apperrors.NewSignatureConflictError(id, sig)
		}
	}
	tranche := l.tranches[i.TrancheID]
	if tranche == nil || tranche.RemainingTokens < i.TokenAmount {
		reason := models.FailureTrancheSoldOut
		i.FailureReason = &reason
		return nil, false, apperrors.NewTrancheSoldOutError(i.TrancheID, i.TokenAmount)
	}
	tranche.RemainingTokens -= i.TokenAmount
	now := l.tick()
	s := sig
	i.Status = types.IntentConfirmed
	i.TxSignature = &s
	i.ConfirmedAt = &now
	i.FailureReason = nil
	i.UpdatedAt = now
	cp := *i
	return &cp, true, nil
}

func (f fakeIntents) RecordVerificationMiss(ctx context.Context, id, reason string) error {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	if i, ok := f.l.intents[id]; ok && !i.Status.IsTerminal() && !soldOut(i) {
		r := reason
		i.FailureReason = &r
	}
	return nil
}

func (f fakeIntents) ListPending(ctx context.Context, limit int) ([]*models.Intent, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	var out []*models.Intent
	for _, i := range f.l.intents {
		if (i.Status == types.IntentCreated || i.Status == types.IntentAwaitingPayment) && !soldOut(i) {
			cp := *i
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func soldOut(i *models.Intent) bool {
	return i.FailureReason != nil && *i.FailureReason == models.FailureTrancheSoldOut
}

func (f fakeIntents) ListConfirmedMissingCommissions(ctx context.Context, limit int) ([]*models.Intent, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	var out []*models.Intent
	for _, i := range f.l.intents {
		if i.Status == types.IntentConfirmed && len(f.l.commissions[i.ID]) < len(i.ReferralTiers()) {
			cp := *i
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakeIntents) MarkAwaitingPayment(ctx context.Context, id string) (*models.Intent, error) {
	return f.transition(id, types.IntentAwaitingPayment, nil)
}

func (f fakeIntents) Fail(ctx context.Context, id, reason string) (*models.Intent, error) {
	return f.transition(id, types.IntentFailed, &reason)
}

func (f fakeIntents) transition(id string, to types.IntentStatus, reason *string) (*models.Intent, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	i, ok := f.l.intents[id]
	if !ok {
		return nil, apperrors.NewIntentNotFoundError(id)
	}
	if i.Status != to {
		if !i.Status.CanTransitionTo(to) {
			return nil, apperrors.NewInvalidTransitionError("intent", id, i.Status, to)
		}
		i.Status = to
		if reason != nil {
			i.FailureReason = reason
		}
	}
	cp := *i
	return &cp, nil
}

// tranches

type fakeTranches struct{ l *memLedger }

func (f fakeTranches) Create(ctx context.Context, t *models.Tranche) error {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.RemainingTokens = t.TotalTokens
	t.CreatedAt = f.l.tick()
	cp := *t
	f.l.tranches[t.ID] = &cp
	return nil
}

func (f fakeTranches) GetByID(ctx context.Context, id string) (*models.Tranche, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	t, ok := f.l.tranches[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(apperrors.CodeTrancheNotFound, "tranche", id)
	}
	cp := *t
	return &cp, nil
}

func (f fakeTranches) ListActive(ctx context.Context) ([]*models.Tranche, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	var out []*models.Tranche
	for _, t := range f.l.tranches {
		if t.Active {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].SortOrder < out[b].SortOrder })
	return out, nil
}

// commissions

type fakeCommissions struct{ l *memLedger }

func (f fakeCommissions) CommitForIntent(ctx context.Context, intentID string) ([]*models.Commission, error) {
	l := f.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.commitErr != nil {
		return nil, l.commitErr
	}
	intent, ok := l.intents[intentID]
	if !ok {
		return nil, apperrors.NewIntentNotFoundError(intentID)
	}
	if intent.Status != types.IntentConfirmed {
		return nil, apperrors.NewIntentNotConfirmedError(intentID, intent.Status)
	}

	existing := map[int]bool{}
	for _, c := range l.commissions[intentID] {
		existing[c.Tier] = true
	}
	inserted := map[string]bool{}
	for _, p := range models.PlanCommissions(intent) {
		if existing[p.Tier] {
			continue
		}
		c := &models.Commission{
			ID:               uuid.NewString(),
			IntentID:         intentID,
			Tier:             p.Tier,
			ReferralCode:     p.ReferralCode,
			RateBps:          p.RateBps,
			AmountUSDCAtomic: p.AmountUSDCAtomic,
			Status:           types.CommissionPending,
			CreatedAt:        l.tick(),
		}
		l.commissions[intentID] = append(l.commissions[intentID], c)
		inserted[c.ID] = true
	}

	out := make([]*models.Commission, 0, len(l.commissions[intentID]))
	for _, c := range l.commissions[intentID] {
		cp := *c
		cp.Inserted = inserted[c.ID]
		out = append(out, &cp)
	}
	return out, nil
}

func (f fakeCommissions) ListByIntent(ctx context.Context, intentID string) ([]*models.Commission, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	var out []*models.Commission
	for _, c := range f.l.commissions[intentID] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (f fakeCommissions) MarkPayable(ctx context.Context, before time.Time) (int64, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	var n int64
	for intentID, rows := range f.l.commissions {
		intent := f.l.intents[intentID]
		if intent.ConfirmedAt == nil || !intent.ConfirmedAt.Before(before) {
			continue
		}
		for _, c := range rows {
			if c.Status == types.CommissionPending {
				c.Status = types.CommissionPayable
				n++
			}
		}
	}
	return n, nil
}

func (f fakeCommissions) MarkPaid(ctx context.Context, id, sig string) (*models.Commission, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	for _, rows := range f.l.commissions {
		for _, c := range rows {
			if c.ID != id {
				continue
			}
			if c.Status == types.CommissionPaid {
				cp := *c
				return &cp, nil
			}
			if c.Status != types.CommissionPayable {
				return nil, apperrors.NewInvalidTransitionError("commission", id, c.Status, types.CommissionPaid)
			}
			s := sig
			c.Status = types.CommissionPaid
			c.PaidTxSignature = &s
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFoundError(apperrors.CodeCommissionNotFound, "commission", id)
}

// campaigns

type fakeCampaigns struct{ l *memLedger }

func (f fakeCampaigns) Create(ctx context.Context, c *models.Campaign) error {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Status = types.CampaignDraft
	c.CreatedAt = f.l.tick()
	cp := *c
	f.l.campaigns[c.ID] = &cp
	return nil
}

func (f fakeCampaigns) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	c, ok := f.l.campaigns[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(apperrors.CodeCampaignNotFound, "campaign", id)
	}
	cp := *c
	return &cp, nil
}

func (f fakeCampaigns) SetStatus(ctx context.Context, id string, to types.CampaignStatus) (*models.Campaign, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	c, ok := f.l.campaigns[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(apperrors.CodeCampaignNotFound, "campaign", id)
	}
	if c.Status != to {
		if !c.Status.CanTransitionTo(to) {
			return nil, apperrors.NewInvalidTransitionError("campaign", id, c.Status, to)
		}
		c.Status = to
	}
	cp := *c
	return &cp, nil
}

func (f fakeCampaigns) CreateTask(ctx context.Context, t *models.Task) error {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	if _, ok := f.l.campaigns[t.CampaignID]; !ok {
		return apperrors.NewNotFoundError(apperrors.CodeCampaignNotFound, "campaign", t.CampaignID)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	cp := *t
	f.l.tasks[t.ID] = &cp
	return nil
}

func (f fakeCampaigns) GetTask(ctx context.Context, campaignID, taskID string) (*models.Task, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	t, ok := f.l.tasks[taskID]
	if !ok || t.CampaignID != campaignID {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f fakeCampaigns) AllocateFCFS(ctx context.Context, req models.AllocationRequest) (*models.AllocationResult, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	result, _ := f.l.allocateLocked(req)
	return result, nil
}

func (f fakeCampaigns) AuditTotals(ctx context.Context, campaignID *string) ([]models.CampaignTotals, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	var out []models.CampaignTotals
	for _, c := range f.l.campaigns {
		if campaignID != nil && c.ID != *campaignID {
			continue
		}
		t := models.CampaignTotals{CampaignID: c.ID, Name: c.Name, DistributedTokens: c.DistributedTokens}
		for _, a := range f.l.allocations {
			if a.CampaignID == c.ID {
				t.AllocatedTokens += a.TotalTokens
				t.AllocationCount++
			}
		}
		out = append(out, t)
	}
	if campaignID != nil && len(out) == 0 {
		return nil, apperrors.NewNotFoundError(apperrors.CodeCampaignNotFound, "campaign", *campaignID)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CampaignID < out[b].CampaignID })
	return out, nil
}

func (f fakeCampaigns) ListAllocations(ctx context.Context, campaignID, wallet string) ([]*models.Allocation, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	var out []*models.Allocation
	for _, a := range f.l.allocations {
		if a.CampaignID == campaignID && a.Wallet == wallet {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// allocateLocked mirrors the FCFS transaction. Callers hold l.mu.
func (l *memLedger) allocateLocked(req models.AllocationRequest) (*models.AllocationResult, *models.Allocation) {
	if req.Amount <= 0 {
		return models.Rejected(types.ReasonInvalidAmount), nil
	}
	c, ok := l.campaigns[req.CampaignID]
	if !ok {
		return models.Rejected(types.ReasonCampaignNotFound), nil
	}
	var walletTotal int64
	for _, a := range l.allocations {
		if a.CampaignID == c.ID && a.Wallet == req.Wallet {
			walletTotal += a.TotalTokens
		}
	}
	if code := c.CheckAllocation(l.now, req.Amount, walletTotal); code != "" {
		return models.Rejected(code), nil
	}
	a := models.NewAllocation(c, req, l.now)
	a.ID = uuid.NewString()
	l.allocations = append(l.allocations, a)
	c.DistributedTokens += req.Amount
	return &models.AllocationResult{OK: true, AllocationID: a.ID, RemainingTokens: *c.Remaining()}, a
}

// submissions

type fakeSubmissions struct{ l *memLedger }

func (f fakeSubmissions) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	s, ok := f.l.submissions[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(apperrors.CodeSubmissionNotFound, "submission", id)
	}
	cp := *s
	return &cp, nil
}

func (f fakeSubmissions) ListPending(ctx context.Context, campaignID string, limit int) ([]*models.Submission, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	var out []*models.Submission
	for _, s := range f.l.submissions {
		if s.CampaignID == campaignID && s.State == types.SubmissionPendingReview {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakeSubmissions) FindByClientID(ctx context.Context, campaignID, taskID, wallet, clientID string) (*models.Submission, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	return f.findLocked(campaignID, taskID, wallet, clientID), nil
}

func (f fakeSubmissions) findLocked(campaignID, taskID, wallet, clientID string) *models.Submission {
	for _, s := range f.l.submissions {
		if s.CampaignID == campaignID && s.TaskID == taskID && s.Wallet == wallet &&
			s.ClientSubmissionID != nil && *s.ClientSubmissionID == clientID {
			cp := *s
			return &cp
		}
	}
	return nil
}

func (f fakeSubmissions) Create(ctx context.Context, sub *models.Submission, task *models.Task) (*storage.SubmissionOutcome, error) {
	l := f.l
	l.mu.Lock()
	defer l.mu.Unlock()

	if sub.ClientSubmissionID != nil {
		if existing := f.findLocked(sub.CampaignID, sub.TaskID, sub.Wallet, *sub.ClientSubmissionID); existing != nil {
			return &storage.SubmissionOutcome{Submission: existing, Idempotent: true}, nil
		}
	}
	if task.MaxSubmissionsPerWallet != nil {
		count := 0
		for _, s := range l.submissions {
			if s.TaskID == task.ID && s.Wallet == sub.Wallet && s.State.CountsTowardCap() {
				count++
			}
		}
		if count >= *task.MaxSubmissionsPerWallet {
			return &storage.SubmissionOutcome{Rejection: types.ReasonTaskSubmissionCapReached}, nil
		}
	}
	for _, s := range l.submissions {
		if s.CampaignID == sub.CampaignID && s.TaskID == sub.TaskID && s.EvidenceURL == sub.EvidenceURL {
			return &storage.SubmissionOutcome{Rejection: types.ReasonDuplicateEvidence}, nil
		}
	}

	sub.ID = uuid.NewString()
	sub.State = types.InitialSubmissionState(task.RequiresReview)
	sub.CreatedAt = l.tick()
	outcome := &storage.SubmissionOutcome{Submission: sub}
	if sub.State.Allocates() {
		result, granted := l.allocateLocked(models.AllocationRequest{
			CampaignID:   sub.CampaignID,
			Wallet:       sub.Wallet,
			Amount:       task.BountyTokens,
			UserID:       sub.UserID,
			SubmissionID: &sub.ID,
		})
		if !result.OK {
			return &storage.SubmissionOutcome{Rejection: result.Error}, nil
		}
		outcome.Allocation = result
		outcome.Granted = granted
	}
	cp := *sub
	l.submissions[sub.ID] = &cp
	return outcome, nil
}

func (f fakeSubmissions) Approve(ctx context.Context, id, reviewer string) (*storage.ReviewOutcome, error) {
	l := f.l
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.submissions[id]
	if !ok {
		return &storage.ReviewOutcome{Rejection: types.ReasonSubmissionNotFound}, nil
	}
	if !s.State.CanTransitionTo(types.SubmissionVerifiedManual) {
		cp := *s
		return &storage.ReviewOutcome{Submission: &cp, Rejection: types.ReasonSubmissionNotPending}, nil
	}
	task, ok := l.tasks[s.TaskID]
	if !ok {
		cp := *s
		return &storage.ReviewOutcome{Submission: &cp, Rejection: types.ReasonTaskNotFound}, nil
	}
	result, granted := l.allocateLocked(models.AllocationRequest{
		CampaignID:   s.CampaignID,
		Wallet:       s.Wallet,
		Amount:       task.BountyTokens,
		UserID:       s.UserID,
		SubmissionID: &s.ID,
	})
	if !result.OK {
		cp := *s
		return &storage.ReviewOutcome{Submission: &cp, Allocation: result, Rejection: result.Error}, nil
	}
	r := reviewer
	s.State = types.SubmissionVerifiedManual
	s.Reviewer = &r
	cp := *s
	return &storage.ReviewOutcome{Submission: &cp, Allocation: result, Granted: granted}, nil
}

func (f fakeSubmissions) Reject(ctx context.Context, id, reviewer, reason string) (*storage.ReviewOutcome, error) {
	if reason == "" {
		return &storage.ReviewOutcome{Rejection: types.ReasonRejectReasonRequired}, nil
	}
	l := f.l
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.submissions[id]
	if !ok {
		return &storage.ReviewOutcome{Rejection: types.ReasonSubmissionNotFound}, nil
	}
	if !s.State.CanTransitionTo(types.SubmissionRevoked) {
		cp := *s
		return &storage.ReviewOutcome{Submission: &cp, Rejection: types.ReasonSubmissionNotPending}, nil
	}
	r, notes := reviewer, reason
	s.State = types.SubmissionRevoked
	s.Reviewer = &r
	s.ReviewNotes = &notes
	cp := *s
	return &storage.ReviewOutcome{Submission: &cp}, nil
}

// collaborators

type fakeObserver struct {
	mu        sync.Mutex
	transfers []adapter.TokenTransfer
	err       error
	calls     int
}

func (o *fakeObserver) GetRecentTransfers(ctx context.Context, reference string, limit int) ([]adapter.TokenTransfer, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	out := make([]adapter.TokenTransfer, len(o.transfers))
	copy(out, o.transfers)
	return out, nil
}

func (o *fakeObserver) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type recordingArchive struct {
	mu   sync.Mutex
	rows []models.ObservedTransfer
	err  error
}

func (a *recordingArchive) Record(ctx context.Context, rows []models.ObservedTransfer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.rows = append(a.rows, rows...)
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	data []interface{}
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.data = append(p.data, data)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.keys {
		if k == key {
			n++
		}
	}
	return n
}

type stubLimiter struct {
	mu       sync.Mutex
	decision ratelimit.Decision
	err      error
	calls    int
}

func (s *stubLimiter) Allow(ctx context.Context, scope, subject string) (ratelimit.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.decision, s.err
}

// helpers

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func newKey() string {
	return solana.NewWallet().PrivateKey.PublicKey().String()
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

type verificationFixture struct {
	ledger    *memLedger
	observer  *fakeObserver
	archive   *recordingArchive
	publisher *recordingPublisher
	service   *VerificationService
	treasury  string
	tranche   *models.Tranche
}

func newVerificationFixture(t *testing.T) *verificationFixture {
	t.Helper()
	ledger := newMemLedger()
	fx := &verificationFixture{
		ledger:    ledger,
		observer:  &fakeObserver{},
		archive:   &recordingArchive{},
		publisher: &recordingPublisher{},
		treasury:  newKey(),
	}
	commissions := NewCommissionService(fakeCommissions{ledger}, ledger, fx.publisher)
	fx.service = NewVerificationService(VerificationDeps{
		Intents:     fakeIntents{ledger},
		Tranches:    fakeTranches{ledger},
		Commissions: commissions,
		Observer:    fx.observer,
		Archive:     fx.archive,
		Audit:       ledger,
		Publisher:   fx.publisher,
		Settings:    SaleSettings{Mint: testMint, Treasury: fx.treasury, Lookback: 50},
	})

	fx.tranche = &models.Tranche{Name: "seed", PriceUSDCAtomic: 50_000, TotalTokens: 1_000, Active: true}
	if err := (fakeTranches{ledger}).Create(context.Background(), fx.tranche); err != nil {
		t.Fatalf("create tranche: %v", err)
	}
	return fx
}

func (fx *verificationFixture) newIntent(t *testing.T, tokens int64, refs ...string) *models.Intent {
	t.Helper()
	in := CreateIntentInput{UserID: "user-1", TrancheID: fx.tranche.ID, TokenAmount: tokens}
	codes := []**string{&in.RefCodeTier1, &in.RefCodeTier2, &in.RefCodeTier3}
	for i, r := range refs {
		*codes[i] = strPtr(r)
	}
	intent, err := fx.service.CreateIntent(context.Background(), in)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	return intent
}

func (fx *verificationFixture) pay(sig string, intent *models.Intent) adapter.TokenTransfer {
	return adapter.TokenTransfer{
		Signature:   sig,
		Source:      newKey(),
		Destination: fx.treasury,
		Mint:        testMint,
		Amount:      uint64(intent.AmountUSDCAtomic),
		Decimals:    6,
		Slot:        100,
		Timestamp:   time.Now(),
	}
}
