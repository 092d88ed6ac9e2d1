package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/skopiLandToken/skopi-sub000/internal/adapter"
	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/events"
	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

// Persisted failure reasons for a verification that found nothing
const (
	missNoTransaction = "no transaction found yet"
	missNoExactAmount = "no exact amount match yet"
)

const (
	forceSignaturePrefix = "force-"
	archiveTimeout       = 2 * time.Second
)

// VerificationService matches purchase intents against on-chain payments
type VerificationService struct {
	intents     IntentStore
	tranches    TrancheStore
	commissions *CommissionService
	observer    adapter.ChainObserver
	archive     TransferRecorder
	audit       AuditAppender
	publisher   events.Publisher
	settings    SaleSettings
}

// VerificationDeps groups the collaborators of the verification engine
type VerificationDeps struct {
	Intents     IntentStore
	Tranches    TrancheStore
	Commissions *CommissionService
	Observer    adapter.ChainObserver
	Archive     TransferRecorder // optional
	Audit       AuditAppender
	Publisher   events.Publisher // optional
	Settings    SaleSettings
}

// NewVerificationService creates a new verification service
func NewVerificationService(deps VerificationDeps) *VerificationService {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	settings := deps.Settings
	if settings.Lookback <= 0 {
		settings.Lookback = defaultLookback
	}
	return &VerificationService{
		intents:     deps.Intents,
		tranches:    deps.Tranches,
		commissions: deps.Commissions,
		observer:    deps.Observer,
		archive:     deps.Archive,
		audit:       deps.Audit,
		publisher:   publisher,
		settings:    settings,
	}
}

// VerifyResult is the outcome of one verification attempt
type VerifyResult struct {
	Matched         bool                 `json:"matched"`
	Intent          *models.Intent       `json:"intent"`
	Reason          types.ReasonCode     `json:"reason,omitempty"`
	Commissions     []*models.Commission `json:"commissions,omitempty"`
	CommissionError *types.ServiceError  `json:"commissionError,omitempty"`
}

// IntentConfirmedEvent is published once per intent when it becomes confirmed
type IntentConfirmedEvent struct {
	IntentID         string `json:"intentId"`
	UserID           string `json:"userId"`
	TxSignature      string `json:"txSignature"`
	AmountUSDCAtomic int64  `json:"amountUsdcAtomic"`
	AmountUSDC       string `json:"amountUsdc"`
	TokenAmount      int64  `json:"tokenAmount"`
	Forced           bool   `json:"forced"`
}

// CreateIntentInput represents input for opening a purchase intent
type CreateIntentInput struct {
	UserID       string  `json:"userId"`
	TrancheID    string  `json:"trancheId"`
	TokenAmount  int64   `json:"tokenAmount"`
	RefCodeTier1 *string `json:"refCodeTier1,omitempty"`
	RefCodeTier2 *string `json:"refCodeTier2,omitempty"`
	RefCodeTier3 *string `json:"refCodeTier3,omitempty"`
}

// CreateIntent prices a purchase against its tranche and assigns a fresh
// reference key. The tranche check here is advisory; supply is only taken
// when the payment is confirmed.
func (s *VerificationService) CreateIntent(ctx context.Context, in CreateIntentInput) (*models.Intent, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, apperrors.NewInvalidParameterError("userId", "user id is required")
	}
	if in.TokenAmount <= 0 {
		return nil, apperrors.NewInvalidParameterError("tokenAmount", "token amount must be positive")
	}

	tranche, err := s.tranches.GetByID(ctx, in.TrancheID)
	if err != nil {
		return nil, err
	}
	if !tranche.CanCover(in.TokenAmount) {
		return nil, apperrors.NewTrancheSoldOutError(tranche.ID, in.TokenAmount)
	}
	if tranche.PriceUSDCAtomic > 0 && in.TokenAmount > math.MaxInt64/tranche.PriceUSDCAtomic {
		return nil, apperrors.NewInvalidParameterError("tokenAmount", "purchase amount overflows")
	}

	intent := &models.Intent{
		UserID:           userID,
		AmountUSDCAtomic: in.TokenAmount * tranche.PriceUSDCAtomic,
		ReferenceKey:     solana.NewWallet().PrivateKey.PublicKey().String(),
		TreasuryAddress:  s.settings.Treasury,
		MintAddress:      s.settings.Mint,
		TrancheID:        tranche.ID,
		TokenAmount:      in.TokenAmount,
		PriceUSDCAtomic:  tranche.PriceUSDCAtomic,
		RefCodeTier1:     trimmedOrNil(in.RefCodeTier1),
		RefCodeTier2:     trimmedOrNil(in.RefCodeTier2),
		RefCodeTier3:     trimmedOrNil(in.RefCodeTier3),
	}
	if err := s.intents.Create(ctx, intent); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"intentId":  intent.ID,
		"trancheId": tranche.ID,
		"amount":    models.FormatUSDC(intent.AmountUSDCAtomic),
	}).Info("purchase intent created")
	return intent, nil
}

// GetIntent returns an intent by id
func (s *VerificationService) GetIntent(ctx context.Context, id string) (*models.Intent, error) {
	return s.intents.GetByID(ctx, id)
}

// ListTranches returns the tranches currently on sale
func (s *VerificationService) ListTranches(ctx context.Context) ([]*models.Tranche, error) {
	return s.tranches.ListActive(ctx)
}

// CreateTranche adds a new sale tier
func (s *VerificationService) CreateTranche(ctx context.Context, t *models.Tranche) error {
	if strings.TrimSpace(t.Name) == "" {
		return apperrors.NewInvalidParameterError("name", "tranche name is required")
	}
	if t.PriceUSDCAtomic <= 0 {
		return apperrors.NewInvalidParameterError("priceUsdcAtomic", "price must be positive")
	}
	if t.TotalTokens <= 0 {
		return apperrors.NewInvalidParameterError("totalTokens", "supply must be positive")
	}
	return s.tranches.Create(ctx, t)
}

// MarkAwaitingPayment records that the buyer reports having sent the payment
func (s *VerificationService) MarkAwaitingPayment(ctx context.Context, id string) (*models.Intent, error) {
	return s.intents.MarkAwaitingPayment(ctx, id)
}

// FailIntent terminates an unpaid intent
func (s *VerificationService) FailIntent(ctx context.Context, id, reason, actor string) (*models.Intent, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewInvalidParameterError("reason", "failure reason is required")
	}
	intent, err := s.intents.Fail(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	s.appendAudit(ctx, &models.AuditEntry{
		Actor:     actor,
		Action:    models.AuditFailIntent,
		SubjectID: id,
		Details:   map[string]interface{}{"reason": reason},
	})
	return intent, nil
}

// Verify looks for the intent's payment on chain and confirms the intent on
// an exact match. Chain failures are returned as retryable provider errors and
// never reported as a missing payment.
func (s *VerificationService) Verify(ctx context.Context, id string) (*VerifyResult, error) {
	intent, err := s.intents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch intent.Status {
	case types.IntentConfirmed:
		return &VerifyResult{Matched: true, Intent: intent}, nil
	case types.IntentFailed:
		return nil, apperrors.NewIntentNotVerifiableError(intent.ID, intent.Status)
	}

	transfers, err := s.observer.GetRecentTransfers(ctx, intent.ReferenceKey, s.settings.Lookback)
	if err != nil {
		return nil, chainError(err)
	}

	match, reason := MatchPayment(transfers, intent.TreasuryAddress, intent.MintAddress, intent.AmountUSDCAtomic)
	s.archiveTransfers(ctx, intent.ID, transfers, match)

	if match == nil {
		message := missNoExactAmount
		if reason == types.ReasonNoTransactionFound {
			message = missNoTransaction
		}
		if err := s.intents.RecordVerificationMiss(ctx, intent.ID, message); err != nil {
			return nil, err
		}
		intent.FailureReason = &message
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"intentId":  intent.ID,
			"reason":    reason,
			"transfers": len(transfers),
		}).Debug("payment not found")
		return &VerifyResult{Matched: false, Intent: intent, Reason: reason}, nil
	}

	return s.confirm(ctx, intent.ID, match.Signature, false)
}

// ForceConfirm confirms an intent without a chain lookup, stamping a
// synthetic signature. Already confirmed intents are returned unchanged.
func (s *VerificationService) ForceConfirm(ctx context.Context, id, actor string) (*VerifyResult, error) {
	intent, err := s.intents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent.Status == types.IntentConfirmed {
		return &VerifyResult{Matched: true, Intent: intent}, nil
	}

	signature := forceSignaturePrefix + uuid.NewString()
	result, err := s.confirm(ctx, intent.ID, signature, true)
	if err != nil {
		return nil, err
	}
	if stringValue(result.Intent.TxSignature) != signature {
		// a concurrent verification confirmed it first
		return result, nil
	}
	s.appendAudit(ctx, &models.AuditEntry{
		Actor:     actor,
		Action:    models.AuditForceConfirm,
		SubjectID: intent.ID,
		Details: map[string]interface{}{
			"txSignature":    stringValue(result.Intent.TxSignature),
			"previousStatus": string(intent.Status),
		},
	})
	return result, nil
}

// confirm applies the ledger confirmation and then commits commissions.
// A commission failure is reported on the result; the intent stays confirmed.
func (s *VerificationService) confirm(ctx context.Context, id, signature string, forced bool) (*VerifyResult, error) {
	log := logging.FromContext(ctx).WithField("intentId", id)

	intent, changed, err := s.intents.Confirm(ctx, id, signature)
	if err != nil {
		return nil, err
	}
	result := &VerifyResult{Matched: true, Intent: intent}

	if changed {
		log.WithFields(map[string]interface{}{
			"txSignature": signature,
			"forced":      forced,
		}).Info("intent confirmed")
		events.PublishBestEffort(ctx, s.publisher, events.IntentConfirmed, IntentConfirmedEvent{
			IntentID:         intent.ID,
			UserID:           intent.UserID,
			TxSignature:      stringValue(intent.TxSignature),
			AmountUSDCAtomic: intent.AmountUSDCAtomic,
			AmountUSDC:       models.FormatUSDC(intent.AmountUSDCAtomic),
			TokenAmount:      intent.TokenAmount,
			Forced:           forced,
		})
	}

	commissions, err := s.commissions.Commit(ctx, intent.ID)
	if err != nil {
		commitErr := apperrors.NewCommissionCommitError(intent.ID, err)
		log.WithError(err).Error("commission commit failed after confirmation")
		result.CommissionError = commitErr.ToServiceError()
		return result, nil
	}
	result.Commissions = commissions
	return result, nil
}

// MatchPayment scans transfers most-recent-first and returns the first one
// paying exactly amount of mint into treasury. When nothing matches the
// reason tells whether any transfer was seen at all.
func MatchPayment(transfers []adapter.TokenTransfer, treasury, mint string, amount int64) (*adapter.TokenTransfer, types.ReasonCode) {
	if len(transfers) == 0 {
		return nil, types.ReasonNoTransactionFound
	}
	if amount < 0 {
		return nil, types.ReasonNoExactAmountMatch
	}
	for i := range transfers {
		t := &transfers[i]
		if t.Destination == treasury && t.Mint == mint && t.Amount == uint64(amount) {
			return t, ""
		}
	}
	return nil, types.ReasonNoExactAmountMatch
}

func (s *VerificationService) archiveTransfers(ctx context.Context, intentID string, transfers []adapter.TokenTransfer, match *adapter.TokenTransfer) {
	if s.archive == nil || len(transfers) == 0 {
		return
	}
	rows := make([]models.ObservedTransfer, 0, len(transfers))
	for _, t := range transfers {
		rows = append(rows, models.ObservedTransfer{
			IntentID:    intentID,
			Signature:   t.Signature,
			Source:      t.Source,
			Destination: t.Destination,
			Mint:        t.Mint,
			Amount:      t.Amount,
			Slot:        t.Slot,
			BlockTime:   t.Timestamp,
			Matched:     match != nil && match.Signature == t.Signature && match.Destination == t.Destination,
		})
	}

	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := s.archive.Record(archiveCtx, rows); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("intentId", intentID).Warn("failed to archive observed transfers")
	}
}

func (s *VerificationService) appendAudit(ctx context.Context, entry *models.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("action", entry.Action).Error("audit append failed")
	}
}

// chainError maps an observer failure onto the error taxonomy
func chainError(err error) error {
	if errors.Is(err, adapter.ErrInvalidAddress) {
		return apperrors.NewInvalidParameterError("referenceKey", "reference key is not a valid public key")
	}
	endpoint := ""
	var adapterErr *adapter.AdapterError
	if errors.As(err, &adapterErr) {
		endpoint = adapterErr.Endpoint
	}
	return apperrors.NewChainUnavailableError(endpoint, err)
}

func trimmedOrNil(code *string) *string {
	if code == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*code)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
