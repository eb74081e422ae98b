// ==============================================================================
// TRANSACTION ORCHESTRATOR - internal/transaction/service.go
// ==============================================================================
package transaction

import (
	"context"
	stderrors "errors"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cfdclient/internal/backend"
	"cfdclient/internal/chain"
	"cfdclient/internal/domain"
	"cfdclient/internal/journal"
	"cfdclient/pkg/errors"
	"cfdclient/pkg/logger"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// PendingTx is a broadcast transaction the orchestrator can wait on.
type PendingTx interface {
	TxHash() string
	AwaitConfirmation(ctx context.Context) (*chain.Receipt, error)
}

// ChainGateway submits purchases on-chain.
type ChainGateway interface {
	SubmitDirectPurchase(ctx context.Context, from string, amountMatic decimal.Decimal) (PendingTx, error)
	SubmitAffiliatePurchase(ctx context.Context, from, affiliateAddress string, amountMatic decimal.Decimal) (PendingTx, error)
}

// SessionView is the slice of the session controller the orchestrator needs.
type SessionView interface {
	Session() domain.WalletSession
	Balances() domain.BalanceSnapshot
	RefreshBalances(ctx context.Context) (domain.BalanceSnapshot, error)
	InvalidateCredential()
}

// Backend records purchases and settles dividend claims.
type Backend interface {
	ICOStatus(ctx context.Context) (*domain.ICOStatus, error)
	RecordPurchase(ctx context.Context, address string, amountMatic decimal.Decimal, phase int, txHash, affiliateCode string) error
	ClaimDividends(ctx context.Context, address string, distributionIDs []string) (*backend.ClaimResult, error)
}

// PurchaseRequest is one token purchase attempt.
type PurchaseRequest struct {
	AmountMatic   decimal.Decimal
	AffiliateCode string
}

// Service orchestrates purchases and claims. At most one non-terminal
// transaction per kind exists at a time; the slot is taken before any chain
// interaction so a double submit never reaches the wallet.
type Service struct {
	mu      sync.Mutex
	current map[domain.TransactionKind]*domain.PendingTransaction

	gateway ChainGateway
	session SessionView
	backend Backend
	journal journal.Store
	logger  logger.Logger
	now     func() time.Time
}

// NewService wires the orchestrator.
func NewService(gateway ChainGateway, session SessionView, be Backend, store journal.Store, log logger.Logger) *Service {
	return &Service{
		current: make(map[domain.TransactionKind]*domain.PendingTransaction),
		gateway: gateway,
		session: session,
		backend: be,
		journal: store,
		logger:  log,
		now:     time.Now,
	}
}

// Current returns a copy of the latest transaction of the given kind, nil
// when none was attempted.
func (s *Service) Current(kind domain.TransactionKind) *domain.PendingTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.current[kind]; ok {
		copied := *record
		return &copied
	}
	return nil
}

// History lists the connected wallet's archived transactions.
func (s *Service) History(ctx context.Context, limit int) ([]domain.PendingTransaction, error) {
	sess := s.session.Session()
	if !sess.Connected() {
		return nil, errors.Validationf("no connected wallet")
	}
	return s.journal.List(ctx, sess.Address, limit)
}

// Purchase validates the request against the running phase, submits the
// transaction, waits for confirmation and records the result with the
// backend. Precondition failures reject before a tracking record exists;
// only attempts that reach the chain leave a journal entry. A failed backend
// recording degrades the result instead of failing it: the chain transfer
// already happened.
func (s *Service) Purchase(ctx context.Context, req PurchaseRequest) (*domain.PendingTransaction, error) {
	sess := s.session.Session()
	if !sess.Connected() {
		return nil, errors.Validationf("no connected wallet")
	}
	if !req.AmountMatic.IsPositive() {
		return nil, errors.Validationf("purchase amount must be positive")
	}
	if req.AffiliateCode != "" && !addressPattern.MatchString(req.AffiliateCode) {
		return nil, errors.Validationf("affiliate code %q is not a wallet address", req.AffiliateCode)
	}

	status, err := s.backend.ICOStatus(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch sale status")
	}
	if !status.Active {
		return nil, errors.Validationf("token sale is not active")
	}
	phase := status.CurrentPhase
	if req.AmountMatic.LessThan(phase.MinPurchase) {
		return nil, errors.Validationf("amount below phase minimum of %s MATIC", phase.MinPurchase)
	}
	if phase.MaxPurchase.IsPositive() && req.AmountMatic.GreaterThan(phase.MaxPurchase) {
		return nil, errors.Validationf("amount above phase maximum of %s MATIC", phase.MaxPurchase)
	}

	balances := s.session.Balances()
	if balances.AsOf.IsZero() {
		if refreshed, refreshErr := s.session.RefreshBalances(ctx); refreshErr == nil {
			balances = refreshed
		}
	}
	if req.AmountMatic.GreaterThan(balances.Native) {
		return nil, errors.Validationf("amount exceeds wallet balance of %s MATIC", balances.Native)
	}

	record, err := s.reserve(domain.TransactionKindPurchase, sess.Address, req)
	if err != nil {
		return nil, err
	}
	s.update(record, func(r *domain.PendingTransaction) {
		r.Phase = phase.Number
		r.State = domain.TransactionStateAwaitingSignature
	})

	var pending PendingTx
	if req.AffiliateCode != "" {
		pending, err = s.gateway.SubmitAffiliatePurchase(ctx, sess.Address, req.AffiliateCode, req.AmountMatic)
	} else {
		pending, err = s.gateway.SubmitDirectPurchase(ctx, sess.Address, req.AmountMatic)
	}
	if err != nil {
		return s.fail(record, err)
	}

	s.update(record, func(r *domain.PendingTransaction) {
		r.ChainTxHash = pending.TxHash()
		r.State = domain.TransactionStateSubmitted
	})
	s.logger.Info("Purchase submitted on-chain", map[string]interface{}{
		"tx_hash": pending.TxHash(),
		"amount":  req.AmountMatic.String(),
		"phase":   phase.Number,
	})

	s.update(record, func(r *domain.PendingTransaction) {
		r.State = domain.TransactionStateConfirming
	})
	if _, err := pending.AwaitConfirmation(ctx); err != nil {
		if stderrors.Is(err, errors.ErrTimeout) {
			return s.fail(record, errors.Wrap(errors.ErrTimeout, "transaction may still confirm on-chain"))
		}
		return s.fail(record, err)
	}

	if err := s.backend.RecordPurchase(ctx, sess.Address, req.AmountMatic, phase.Number, pending.TxHash(), req.AffiliateCode); err != nil {
		if stderrors.Is(err, errors.ErrUnauthorized) {
			s.session.InvalidateCredential()
		}
		// The tokens moved on-chain; losing the backend record must not
		// present the purchase as failed.
		s.update(record, func(r *domain.PendingTransaction) {
			r.Note = "confirmed on-chain; backend recording failed: " + err.Error()
		})
		s.logger.Error("Purchase recording failed after confirmation", map[string]interface{}{
			"tx_hash": pending.TxHash(),
			"error":   err.Error(),
		})
	}

	result := s.complete(record, domain.TransactionStateRecordedRemotely)
	s.archive(ctx, result)
	s.refreshAfter(ctx)
	return &result, nil
}

// ClaimDividends asks the backend to pay out the given distributions. The
// payout transaction is the backend's; nothing is signed locally.
func (s *Service) ClaimDividends(ctx context.Context, distributionIDs []string) (*domain.PendingTransaction, error) {
	if len(distributionIDs) == 0 {
		return nil, errors.Validationf("no distributions selected")
	}
	sess := s.session.Session()
	if !sess.Authenticated() {
		return nil, errors.Validationf("dividend claims require an authenticated session")
	}

	record, err := s.reserve(domain.TransactionKindClaim, sess.Address, PurchaseRequest{})
	if err != nil {
		return nil, err
	}
	s.update(record, func(r *domain.PendingTransaction) {
		r.State = domain.TransactionStateSubmitted
	})

	claim, err := s.backend.ClaimDividends(ctx, sess.Address, distributionIDs)
	if err != nil {
		if stderrors.Is(err, errors.ErrUnauthorized) {
			s.session.InvalidateCredential()
		}
		return s.fail(record, err)
	}

	s.update(record, func(r *domain.PendingTransaction) {
		r.ChainTxHash = claim.TxHash
		r.AmountMatic = claim.Amount
	})
	result := s.complete(record, domain.TransactionStateRecordedRemotely)
	s.archive(ctx, result)
	s.refreshAfter(ctx)

	s.logger.Info("Dividends claimed", map[string]interface{}{
		"address":       sess.Address,
		"distributions": len(distributionIDs),
		"tx_hash":       claim.TxHash,
	})
	return &result, nil
}

// reserve takes the kind's single in-flight slot or rejects the attempt.
func (s *Service) reserve(kind domain.TransactionKind, address string, req PurchaseRequest) (*domain.PendingTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.current[kind]; ok && !existing.State.Terminal() {
		return nil, errors.Validationf("a %s is already in progress", kind)
	}

	record := &domain.PendingTransaction{
		LocalID:       uuid.New(),
		Kind:          kind,
		WalletAddress: address,
		AmountMatic:   req.AmountMatic,
		AffiliateCode: req.AffiliateCode,
		State:         domain.TransactionStateBuilding,
		AttemptedAt:   s.now(),
	}
	s.current[kind] = record
	return record, nil
}

func (s *Service) update(record *domain.PendingTransaction, fn func(*domain.PendingTransaction)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(record)
}

func (s *Service) complete(record *domain.PendingTransaction, state domain.TransactionState) domain.PendingTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	completed := s.now()
	record.State = state
	record.CompletedAt = &completed
	return *record
}

// fail moves the record to its terminal failed state, archives it and hands
// the original error back to the caller.
func (s *Service) fail(record *domain.PendingTransaction, err error) (*domain.PendingTransaction, error) {
	s.mu.Lock()
	completed := s.now()
	record.State = domain.TransactionStateFailed
	record.Error = err.Error()
	record.CompletedAt = &completed
	copied := *record
	s.mu.Unlock()

	s.archive(context.Background(), copied)
	return &copied, err
}

func (s *Service) archive(ctx context.Context, record domain.PendingTransaction) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(ctx, record); err != nil {
		s.logger.Warn("Journal append failed", map[string]interface{}{
			"local_id": record.LocalID.String(),
			"error":    err.Error(),
		})
	}
}

func (s *Service) refreshAfter(ctx context.Context) {
	if _, err := s.session.RefreshBalances(ctx); err != nil {
		s.logger.Debug("Post-transaction balance refresh skipped", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
