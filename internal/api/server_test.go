package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/service"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

const testSecret = "s3cret"

var errNotMocked = errors.New("not mocked")

// Mock services for testing

type mockVerification struct {
	createFunc       func(ctx context.Context, in service.CreateIntentInput) (*models.Intent, error)
	getFunc          func(ctx context.Context, id string) (*models.Intent, error)
	verifyFunc       func(ctx context.Context, id string) (*service.VerifyResult, error)
	forceConfirmFunc func(ctx context.Context, id, actor string) (*service.VerifyResult, error)
	failFunc         func(ctx context.Context, id, reason, actor string) (*models.Intent, error)
	tranches         []*models.Tranche
	created          *models.Tranche
}

func (m *mockVerification) CreateIntent(ctx context.Context, in service.CreateIntentInput) (*models.Intent, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, in)
	}
	return &models.Intent{ID: "intent-1", UserID: in.UserID, TrancheID: in.TrancheID, TokenAmount: in.TokenAmount, Status: types.IntentCreated}, nil
}

func (m *mockVerification) GetIntent(ctx context.Context, id string) (*models.Intent, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return &models.Intent{ID: id, Status: types.IntentCreated}, nil
}

func (m *mockVerification) MarkAwaitingPayment(ctx context.Context, id string) (*models.Intent, error) {
	return &models.Intent{ID: id, Status: types.IntentAwaitingPayment}, nil
}

func (m *mockVerification) Verify(ctx context.Context, id string) (*service.VerifyResult, error) {
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx, id)
	}
	return nil, errNotMocked
}

func (m *mockVerification) ForceConfirm(ctx context.Context, id, actor string) (*service.VerifyResult, error) {
	if m.forceConfirmFunc != nil {
		return m.forceConfirmFunc(ctx, id, actor)
	}
	return nil, errNotMocked
}

func (m *mockVerification) FailIntent(ctx context.Context, id, reason, actor string) (*models.Intent, error) {
	if m.failFunc != nil {
		return m.failFunc(ctx, id, reason, actor)
	}
	return nil, errNotMocked
}

func (m *mockVerification) ListTranches(ctx context.Context) ([]*models.Tranche, error) {
	return m.tranches, nil
}

func (m *mockVerification) CreateTranche(ctx context.Context, t *models.Tranche) error {
	t.ID = "tranche-1"
	t.RemainingTokens = t.TotalTokens
	m.created = t
	return nil
}

type mockCommissions struct {
	payableBefore time.Time
	payableActor  string
}

func (m *mockCommissions) Commit(ctx context.Context, intentID string) ([]*models.Commission, error) {
	return nil, apperrors.NewIntentNotConfirmedError(intentID, types.IntentCreated)
}

func (m *mockCommissions) List(ctx context.Context, intentID string) ([]*models.Commission, error) {
	return []*models.Commission{{ID: "c1", IntentID: intentID, Tier: 1, AmountUSDCAtomic: 200_000}}, nil
}

func (m *mockCommissions) MarkPayable(ctx context.Context, before time.Time, actor string) (int64, error) {
	m.payableBefore, m.payableActor = before, actor
	return 4, nil
}

func (m *mockCommissions) MarkPaid(ctx context.Context, id, sig, actor string) (*models.Commission, error) {
	return nil, apperrors.NewInvalidTransitionError("commission", id, types.CommissionPending, types.CommissionPaid)
}

type mockAllocation struct {
	allocateFunc func(ctx context.Context, in service.AllocateInput) (*models.AllocationResult, error)
	lastStatus   types.CampaignStatus
	campaign     *models.Campaign
	allocations  map[string][]*models.Allocation
}

func (m *mockAllocation) Allocate(ctx context.Context, in service.AllocateInput) (*models.AllocationResult, error) {
	if m.allocateFunc != nil {
		return m.allocateFunc(ctx, in)
	}
	return &models.AllocationResult{OK: true, AllocationID: "a1", RemainingTokens: 950}, nil
}

func (m *mockAllocation) CreateCampaign(ctx context.Context, in service.CreateCampaignInput) (*models.Campaign, error) {
	return &models.Campaign{ID: "camp-1", Name: in.Name, PoolTokens: in.PoolTokens, Status: types.CampaignDraft}, nil
}

func (m *mockAllocation) GetCampaign(ctx context.Context, id string) (*service.CampaignView, error) {
	if m.campaign == nil || m.campaign.ID != id {
		return nil, apperrors.NewNotFoundError(apperrors.CodeCampaignNotFound, "campaign", id)
	}
	return &service.CampaignView{Campaign: m.campaign}, nil
}

func (m *mockAllocation) ListAllocations(ctx context.Context, campaignID, wallet string) ([]*models.Allocation, error) {
	held, ok := m.allocations[wallet]
	if !ok {
		return nil, apperrors.NewInvalidParameterError("wallet", "wallet is not a valid public key")
	}
	return held, nil
}

func (m *mockAllocation) SetCampaignStatus(ctx context.Context, id string, status types.CampaignStatus, actor string) (*models.Campaign, error) {
	m.lastStatus = status
	return &models.Campaign{ID: id, Status: status}, nil
}

func (m *mockAllocation) CreateTask(ctx context.Context, campaignID string, in service.CreateTaskInput) (*models.Task, error) {
	return &models.Task{ID: "task-1", CampaignID: campaignID, Name: in.Name, BountyTokens: in.BountyTokens, Active: true}, nil
}

type mockSubmissions struct {
	result *service.SubmitResult
	err    error
}

func (m *mockSubmissions) Submit(ctx context.Context, in service.SubmitInput) (*service.SubmitResult, error) {
	return m.result, m.err
}

type mockReview struct {
	reviewer   string
	reason     string
	queueLimit int
	queue      []*models.Submission
}

func (m *mockReview) ListPending(ctx context.Context, campaignID string, limit int) ([]*models.Submission, error) {
	m.queueLimit = limit
	return m.queue, nil
}

func (m *mockReview) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	for _, s := range m.queue {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, apperrors.NewNotFoundError(apperrors.CodeSubmissionNotFound, "submission", id)
}

func (m *mockReview) Approve(ctx context.Context, ids []string, reviewer string) (*service.ReviewBatchResult, error) {
	m.reviewer = reviewer
	batch := &service.ReviewBatchResult{}
	for _, id := range ids {
		batch.Results = append(batch.Results, service.ReviewItemResult{SubmissionID: id, OK: true, State: types.SubmissionVerifiedManual})
		batch.Succeeded++
	}
	return batch, nil
}

func (m *mockReview) Reject(ctx context.Context, ids []string, reviewer, reason string) (*service.ReviewBatchResult, error) {
	m.reviewer, m.reason = reviewer, reason
	return &service.ReviewBatchResult{}, nil
}

type mockReconciliation struct {
	campaignID *string
}

func (m *mockReconciliation) Audit(ctx context.Context, campaignID *string) (*service.AuditReport, error) {
	m.campaignID = campaignID
	return &service.AuditReport{Campaigns: []service.CampaignAudit{}}, nil
}

type mockSweep struct {
	limit int
}

func (m *mockSweep) Run(ctx context.Context, limit int) (*service.SweepReport, error) {
	m.limit = limit
	return &service.SweepReport{Scanned: 3, Confirmed: 1, Errors: []service.SweepError{}}, nil
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testEnv struct {
	server         *Server
	verification   *mockVerification
	commissions    *mockCommissions
	allocation     *mockAllocation
	submissions    *mockSubmissions
	review         *mockReview
	reconciliation *mockReconciliation
	sweep          *mockSweep
}

func newTestEnv(t *testing.T, mutate ...func(*ServerConfig)) *testEnv {
	t.Helper()
	cfg := &ServerConfig{Host: "127.0.0.1", Port: "0", RequestsPerSecond: 1000, Burst: 1000, AdminSecret: testSecret, SweepLimit: 100}
	for _, m := range mutate {
		m(cfg)
	}
	env := &testEnv{
		verification:   &mockVerification{},
		commissions:    &mockCommissions{},
		allocation:     &mockAllocation{},
		submissions:    &mockSubmissions{},
		review:         &mockReview{},
		reconciliation: &mockReconciliation{},
		sweep:          &mockSweep{},
	}
	logger := logging.NewLogger(logging.LevelError, logging.FormatJSON)
	logger.SetOutput(&bytes.Buffer{})
	env.server = NewServer(cfg, Services{
		Verification:   env.verification,
		Commissions:    env.commissions,
		Allocation:     env.allocation,
		Submissions:    env.submissions,
		Review:         env.review,
		Reconciliation: env.reconciliation,
		Sweep:          env.sweep,
		Health: map[string]Pinger{
			"postgres": pingerFunc(func(context.Context) error { return nil }),
		},
	}, logger)
	return env
}

func (e *testEnv) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) admin(method, path string, body interface{}) *httptest.ResponseRecorder {
	return e.do(method, path, body, headerAdminSecret, testSecret, headerAdminActor, "ops-alice")
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ServiceError {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	env.server.services.Health["redis"] = pingerFunc(func(context.Context) error { return errors.New("connection refused") })
	w = env.do("GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["postgres"])
	assert.Equal(t, "connection refused", checks["redis"])
}

func TestAdminAuth(t *testing.T) {
	t.Run("unset secret disables admin routes", func(t *testing.T) {
		env := newTestEnv(t, func(c *ServerConfig) { c.AdminSecret = "" })
		w := env.do("POST", "/admin/verify/sweep", nil, headerAdminSecret, "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, apperrors.CodeAdminNotConfigured, decodeError(t, w).Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do("POST", "/admin/verify/sweep", nil, headerAdminSecret, "guess")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, apperrors.CodeUnauthorized, decodeError(t, w).Code)

		w = env.do("POST", "/admin/verify/sweep", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("public routes need no secret", func(t *testing.T) {
		env := newTestEnv(t, func(c *ServerConfig) { c.AdminSecret = "" })
		w := env.do("GET", "/api/intents/abc", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.RequestsPerSecond, c.Burst = 1, 1 })

	first := env.do("GET", "/api/tranches", nil)
	assert.Equal(t, http.StatusOK, first.Code)

	second := env.do("GET", "/api/tranches", nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeError(t, second).Code)
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	now = now.Add(limiterIdleTTL + time.Minute)
	assert.True(t, rl.Allow("b"))
	assert.Len(t, rl.limiters, 1)
}

func TestRecoveryMiddleware(t *testing.T) {
	env := newTestEnv(t)
	env.verification.getFunc = func(ctx context.Context, id string) (*models.Intent, error) {
		panic("boom")
	}
	w := env.do("GET", "/api/intents/abc", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.CodeInternal, decodeError(t, w).Code)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("GET", "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
