package transaction

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"cfdclient/internal/backend"
	"cfdclient/internal/chain"
	"cfdclient/internal/domain"
	"cfdclient/internal/journal"
	"cfdclient/pkg/errors"
	"cfdclient/pkg/logger"
)

// --- Mocks ---

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SubmitDirectPurchase(ctx context.Context, from string, amountMatic decimal.Decimal) (PendingTx, error) {
	args := m.Called(ctx, from, amountMatic)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(PendingTx), args.Error(1)
}

func (m *MockGateway) SubmitAffiliatePurchase(ctx context.Context, from, affiliateAddress string, amountMatic decimal.Decimal) (PendingTx, error) {
	args := m.Called(ctx, from, affiliateAddress, amountMatic)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(PendingTx), args.Error(1)
}

type MockPendingTx struct {
	mock.Mock
}

func (m *MockPendingTx) TxHash() string {
	return m.Called().String(0)
}

func (m *MockPendingTx) AwaitConfirmation(ctx context.Context) (*chain.Receipt, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.Receipt), args.Error(1)
}

type MockSession struct {
	mock.Mock
}

func (m *MockSession) Session() domain.WalletSession {
	return m.Called().Get(0).(domain.WalletSession)
}

func (m *MockSession) Balances() domain.BalanceSnapshot {
	return m.Called().Get(0).(domain.BalanceSnapshot)
}

func (m *MockSession) RefreshBalances(ctx context.Context) (domain.BalanceSnapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.BalanceSnapshot), args.Error(1)
}

func (m *MockSession) InvalidateCredential() {
	m.Called()
}

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) ICOStatus(ctx context.Context) (*domain.ICOStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ICOStatus), args.Error(1)
}

func (m *MockBackend) RecordPurchase(ctx context.Context, address string, amountMatic decimal.Decimal, phase int, txHash, affiliateCode string) error {
	args := m.Called(ctx, address, amountMatic, phase, txHash, affiliateCode)
	return args.Error(0)
}

func (m *MockBackend) ClaimDividends(ctx context.Context, address string, distributionIDs []string) (*backend.ClaimResult, error) {
	args := m.Called(ctx, address, distributionIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*backend.ClaimResult), args.Error(1)
}

// --- Fixtures ---

const testAddress = "0x1111111111111111111111111111111111111111"
const testAffiliate = "0x2222222222222222222222222222222222222222"

func connectedSession() domain.WalletSession {
	return domain.WalletSession{
		Address: testAddress,
		ChainID: 137,
		Status:  domain.SessionConnected,
	}
}

func authenticatedSession() domain.WalletSession {
	return domain.WalletSession{
		Address:    testAddress,
		ChainID:    137,
		Status:     domain.SessionAuthenticated,
		Credential: &domain.Credential{Token: "token", IssuedFor: testAddress},
	}
}

func freshBalances(native string) domain.BalanceSnapshot {
	return domain.BalanceSnapshot{
		Native: decimal.RequireFromString(native),
		AsOf:   time.Now(),
	}
}

func activeStatus(min, max string) *domain.ICOStatus {
	return &domain.ICOStatus{
		Active: true,
		CurrentPhase: domain.Phase{
			Number:      1,
			MinPurchase: decimal.RequireFromString(min),
			MaxPurchase: decimal.RequireFromString(max),
		},
	}
}

// --- Tests ---

func TestPurchaseRequiresConnectedWallet(t *testing.T) {
	mockSession := new(MockSession)
	mockSession.On("Session").Return(domain.WalletSession{Status: domain.SessionDisconnected})

	service := NewService(new(MockGateway), mockSession, new(MockBackend), journal.NewMemoryStore(), logger.NewNop())

	_, err := service.Purchase(context.Background(), PurchaseRequest{AmountMatic: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestPurchaseRejectsNonPositiveAmount(t *testing.T) {
	mockSession := new(MockSession)
	mockSession.On("Session").Return(connectedSession())

	service := NewService(new(MockGateway), mockSession, new(MockBackend), journal.NewMemoryStore(), logger.NewNop())

	_, err := service.Purchase(context.Background(), PurchaseRequest{AmountMatic: decimal.Zero})
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestPurchaseEnforcesPhaseBounds(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		fails  bool
	}{
		{"below minimum", "9.99", true},
		{"at minimum", "10", false},
		{"at maximum", "100", false},
		{"above maximum", "100.01", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mockSession := new(MockSession)
			mockSession.On("Session").Return(connectedSession())
			mockSession.On("Balances").Return(freshBalances("1000"))
			mockSession.On("RefreshBalances", mock.Anything).Return(freshBalances("1000"), nil)

			mockBackend := new(MockBackend)
			mockBackend.On("ICOStatus", mock.Anything).Return(activeStatus("10", "100"), nil)

			pending := new(MockPendingTx)
			pending.On("TxHash").Return("0xabc")
			pending.On("AwaitConfirmation", mock.Anything).Return(&chain.Receipt{Status: 1}, nil)

			mockGateway := new(MockGateway)
			mockGateway.On("SubmitDirectPurchase", mock.Anything, testAddress, mock.Anything).Return(pending, nil)
			mockBackend.On("RecordPurchase", mock.Anything, testAddress, mock.Anything, 1, "0xabc", "").Return(nil)

			store := journal.NewMemoryStore()
			service := NewService(mockGateway, mockSession, mockBackend, store, logger.NewNop())

			record, err := service.Purchase(context.Background(), PurchaseRequest{
				AmountMatic: decimal.RequireFromString(tc.amount),
			})
			if tc.fails {
				assert.ErrorIs(t, err, errors.ErrValidation)
				assert.Nil(t, record, "a rejected request never produces a record")
				assert.Nil(t, service.Current(domain.TransactionKindPurchase))
				mockGateway.AssertNotCalled(t, "SubmitDirectPurchase", mock.Anything, mock.Anything, mock.Anything)

				archived, listErr := store.List(context.Background(), testAddress, 10)
				assert.NoError(t, listErr)
				assert.Empty(t, archived, "a rejected request leaves no journal entry")
			} else {
				assert.NoError(t, err)
				assert.Equal(t, domain.TransactionStateRecordedRemotely, record.State)
			}
		})
	}
}

func TestPurchaseRejectsInactiveSale(t *testing.T) {
	mockSession := new(MockSession)
	mockSession.On("Session").Return(connectedSession())

	mockBackend := new(MockBackend)
	mockBackend.On("ICOStatus", mock.Anything).Return(&domain.ICOStatus{Active: false}, nil)

	mockGateway := new(MockGateway)
	store := journal.NewMemoryStore()
	service := NewService(mockGateway, mockSession, mockBackend, store, logger.NewNop())

	record, err := service.Purchase(context.Background(), PurchaseRequest{AmountMatic: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.Nil(t, record)
	mockGateway.AssertNotCalled(t, "SubmitDirectPurchase", mock.Anything, mock.Anything, mock.Anything)

	archived, err := store.List(context.Background(), testAddress, 10)
	assert.NoError(t, err)
	assert.Empty(t, archived)
}

func TestPurchaseRejectsMalformedAffiliateCode(t *testing.T) {
	mockSession := new(MockSession)
	mockSession.On("Session").Return(connectedSession())

	mockBackend := new(MockBackend)
	mockGateway := new(MockGateway)
	service := NewService(mockGateway, mockSession, mockBackend, journal.NewMemoryStore(), logger.NewNop())

	_, err := service.Purchase(context.Background(), PurchaseRequest{
		AmountMatic:   decimal.NewFromInt(10),
		AffiliateCode: "not-an-address",
	})
	assert.ErrorIs(t, err, errors.ErrValidation)
	mockBackend.AssertNotCalled(t, "ICOStatus", mock.Anything)
	mockGateway.AssertNotCalled(t, "SubmitAffiliatePurchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseRejectsAmountAboveBalance(t *testing.T) {
	mockSession := new(MockSession)
	mockSession.On("Session").Return(connectedSession())
	mockSession.On("Balances").Return(freshBalances("5"))

	mockBackend := new(MockBackend)
	mockBackend.On("ICOStatus", mock.Anything).Return(activeStatus("1", "100"), nil)

	mockGateway := new(MockGateway)
	service := NewService(mockGateway, mockSession, mockBackend, journal.NewMemoryStore(), logger.NewNop())

	_, err := service.Purchase(context.Background(), PurchaseRequest{AmountMatic: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, errors.ErrValidation)
	mockGateway.AssertNotCalled(t, "SubmitDirectPurchase", mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseRejectsSecondInFlightBeforeChain(t *testing.T) {
	mockSession := new(MockSession)
	mockSession.On("Session").Return(connectedSession())
	mockSession.On("Balances").Return(freshBalances("1000"))

	mockBackend := new(MockBackend)
	mockBackend.On("ICOStatus", mock.Anything).Return(activeStatus("1", "500"), nil)

	service := NewService(new(MockGateway), mockSession, mockBackend, journal.NewMemoryStore(), logger.NewNop())

	// Occupy the purchase slot by hand, as if a submit were mid-flight.
	first, err := service.reserve(domain.TransactionKindPurchase, testAddress, PurchaseRequest{
		AmountMatic: decimal.NewFromInt(10),
	})
	assert.NoError(t, err)
	assert.Equal(t, domain.TransactionStateBuilding, first.State)

	_, err = service.Purchase(context.Background(), PurchaseRequest{AmountMatic: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestPurchaseHappyPathWithAffiliate(t *testing.T) {
	mockSession := new(MockSession)
	mockSession.On("Session").Return(connectedSession())
	mockSession.On("Balances").Return(freshBalances("1000"))
	mockSession.On("RefreshBalances", mock.Anything).Return(freshBalances("990"), nil)

	mockBackend := new(MockBackend)
	mockBackend.On("ICOStatus", mock.Anything).Return(activeStatus("1", "500"), nil)
	mockBackend.On("RecordPurchase", mock.Anything, testAddress, decimal.NewFromInt(10), 1, "0xabc", testAffiliate).Return(nil)

	pending := new(MockPendingTx)
	pending.On("TxHash").Return("0xabc")
	pending.On("AwaitConfirmation", mock.Anything).Return(&chain.Receipt{Status: 1, BlockNumber: 77}, nil)

	mockGateway := new(MockGateway)
	mockGateway.On("SubmitAffiliatePurchase", mock.Anything, testAddress, testAffiliate, decimal.NewFromInt(10)).Return(pending, nil)

	store := journal.NewMemoryStore()
	service := NewService(mockGateway, mockSession, mockBackend, store, logger.NewNop())

	record, err := service.Purchase(context.Background(), PurchaseRequest{
		AmountMatic:   decimal.NewFromInt(10),
		AffiliateCode: testAffiliate,
	})
	assert.NoError(t, err)
	assert.Equal(t, domain.TransactionStateRecordedRemotely, record.State)
	assert.Equal(t, "0xabc", record.ChainTxHash)
	assert.NotNil(t, record.CompletedAt)
	assert.Empty(t, record.Error)

	mockBackend.AssertNumberOfCalls(t, "RecordPurchase", 1)
	mockGateway.AssertNotCalled(t, "SubmitDirectPurchase", mock.Anything, mock.Anything, mock.Anything)

	archived, err := store.List(context.Background(), testAddress, 10)
	assert.NoError(t, err)
	assert.Len(t, archived, 1)
}

func TestPurchaseTimeoutFailsWithoutRecording(t *testing.T) {
	mockSession := new(MockSession)
	mockSession.On("Session").Return(connectedSession())
	mockSession.On("Balances").Return(freshBalances("1000"))

	mockBackend := new(MockBackend)
	mockBackend.On("ICOStatus", mock.Anything).Return(activeStatus("1", "500"), nil)

	pending := new(MockPendingTx)
	pending.On("TxHash").Return("0xdead")
	pending.On("AwaitConfirmation", mock.Anything).Return(nil, errors.ErrTimeout)

	mockGateway := new(MockGateway)
	mockGateway.On("SubmitDirectPurchase", mock.Anything, testAddress, mock.Anything).Return(pending, nil)

	service := NewService(mockGateway, mockSession, mockBackend, journal.NewMemoryStore(), logger.NewNop())

	record, err := service.Purchase(context.Background(), PurchaseRequest{AmountMatic: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, errors.ErrTimeout)
	assert.Equal(t, domain.TransactionStateFailed, record.State)
	assert.Equal(t, "0xdead", record.ChainTxHash)
	mockBackend.AssertNotCalled(t, "RecordPurchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseRecordingFailureDegradesToSuccess(t *testing.T) {
	mockSession := new(MockSession)
	mockSession.On("Session").Return(connectedSession())
	mockSession.On("Balances").Return(freshBalances("1000"))
	mockSession.On("RefreshBalances", mock.Anything).Return(freshBalances("990"), nil)
	mockSession.On("InvalidateCredential").Return()

	mockBackend := new(MockBackend)
	mockBackend.On("ICOStatus", mock.Anything).Return(activeStatus("1", "500"), nil)
	mockBackend.On("RecordPurchase", mock.Anything, testAddress, mock.Anything, 1, "0xabc", "").Return(errors.ErrUnauthorized)

	pending := new(MockPendingTx)
	pending.On("TxHash").Return("0xabc")
	pending.On("AwaitConfirmation", mock.Anything).Return(&chain.Receipt{Status: 1}, nil)

	mockGateway := new(MockGateway)
	mockGateway.On("SubmitDirectPurchase", mock.Anything, testAddress, mock.Anything).Return(pending, nil)

	service := NewService(mockGateway, mockSession, mockBackend, journal.NewMemoryStore(), logger.NewNop())

	record, err := service.Purchase(context.Background(), PurchaseRequest{AmountMatic: decimal.NewFromInt(10)})
	assert.NoError(t, err)
	assert.Equal(t, domain.TransactionStateRecordedRemotely, record.State)
	assert.Contains(t, record.Note, "backend recording failed")
	mockSession.AssertCalled(t, "InvalidateCredential")
}

func TestPurchaseRevertedFails(t *testing.T) {
	mockSession := new(MockSession)
	mockSession.On("Session").Return(connectedSession())
	mockSession.On("Balances").Return(freshBalances("1000"))

	mockBackend := new(MockBackend)
	mockBackend.On("ICOStatus", mock.Anything).Return(activeStatus("1", "500"), nil)

	pending := new(MockPendingTx)
	pending.On("TxHash").Return("0xbad")
	pending.On("AwaitConfirmation", mock.Anything).Return(&chain.Receipt{Status: 0}, errors.ErrReverted)

	mockGateway := new(MockGateway)
	mockGateway.On("SubmitDirectPurchase", mock.Anything, testAddress, mock.Anything).Return(pending, nil)

	service := NewService(mockGateway, mockSession, mockBackend, journal.NewMemoryStore(), logger.NewNop())

	record, err := service.Purchase(context.Background(), PurchaseRequest{AmountMatic: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, errors.ErrReverted)
	assert.Equal(t, domain.TransactionStateFailed, record.State)
}

func TestClaimRequiresDistributionIDs(t *testing.T) {
	mockBackend := new(MockBackend)
	service := NewService(new(MockGateway), new(MockSession), mockBackend, journal.NewMemoryStore(), logger.NewNop())

	_, err := service.ClaimDividends(context.Background(), nil)
	assert.ErrorIs(t, err, errors.ErrValidation)
	mockBackend.AssertNotCalled(t, "ClaimDividends", mock.Anything, mock.Anything, mock.Anything)
}

func TestClaimRequiresAuthenticatedSession(t *testing.T) {
	mockSession := new(MockSession)
	mockSession.On("Session").Return(connectedSession())

	mockBackend := new(MockBackend)
	service := NewService(new(MockGateway), mockSession, mockBackend, journal.NewMemoryStore(), logger.NewNop())

	_, err := service.ClaimDividends(context.Background(), []string{"d1"})
	assert.ErrorIs(t, err, errors.ErrValidation)
	mockBackend.AssertNotCalled(t, "ClaimDividends", mock.Anything, mock.Anything, mock.Anything)
}

func TestClaimHappyPath(t *testing.T) {
	mockSession := new(MockSession)
	mockSession.On("Session").Return(authenticatedSession())
	mockSession.On("RefreshBalances", mock.Anything).Return(freshBalances("10"), nil)

	mockBackend := new(MockBackend)
	mockBackend.On("ClaimDividends", mock.Anything, testAddress, []string{"d1", "d2"}).Return(&backend.ClaimResult{
		TxHash: "0xclaim",
		Amount: decimal.RequireFromString("12.5"),
	}, nil)

	service := NewService(new(MockGateway), mockSession, mockBackend, journal.NewMemoryStore(), logger.NewNop())

	record, err := service.ClaimDividends(context.Background(), []string{"d1", "d2"})
	assert.NoError(t, err)
	assert.Equal(t, domain.TransactionKindClaim, record.Kind)
	assert.Equal(t, domain.TransactionStateRecordedRemotely, record.State)
	assert.Equal(t, "0xclaim", record.ChainTxHash)
	assert.True(t, record.AmountMatic.Equal(decimal.RequireFromString("12.5")))
}

func TestClaimUnauthorizedInvalidatesCredential(t *testing.T) {
	mockSession := new(MockSession)
	mockSession.On("Session").Return(authenticatedSession())
	mockSession.On("InvalidateCredential").Return()

	mockBackend := new(MockBackend)
	mockBackend.On("ClaimDividends", mock.Anything, testAddress, []string{"d1"}).Return(nil, errors.ErrUnauthorized)

	service := NewService(new(MockGateway), mockSession, mockBackend, journal.NewMemoryStore(), logger.NewNop())

	record, err := service.ClaimDividends(context.Background(), []string{"d1"})
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
	assert.Equal(t, domain.TransactionStateFailed, record.State)
	mockSession.AssertCalled(t, "InvalidateCredential")
}
