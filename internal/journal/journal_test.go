package journal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"cfdclient/internal/domain"
)

const testAddress = "0xAbC1111111111111111111111111111111111111"

func record(address string, attemptedAt time.Time) domain.PendingTransaction {
	return domain.PendingTransaction{
		LocalID:       uuid.New(),
		Kind:          domain.TransactionKindPurchase,
		WalletAddress: address,
		AmountMatic:   decimal.NewFromInt(10),
		State:         domain.TransactionStateRecordedRemotely,
		AttemptedAt:   attemptedAt,
	}
}

func TestMemoryStoreListsNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	oldest := record(testAddress, base)
	middle := record(testAddress, base.Add(time.Hour))
	newest := record(testAddress, base.Add(2*time.Hour))

	// Insertion order deliberately scrambled.
	assert.NoError(t, store.Append(ctx, middle))
	assert.NoError(t, store.Append(ctx, oldest))
	assert.NoError(t, store.Append(ctx, newest))

	got, err := store.List(ctx, testAddress, 0)
	assert.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, newest.LocalID, got[0].LocalID)
	assert.Equal(t, middle.LocalID, got[1].LocalID)
	assert.Equal(t, oldest.LocalID, got[2].LocalID)
}

func TestMemoryStoreFiltersByAddressCaseInsensitive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	mine := record(testAddress, now)
	other := record("0x9999999999999999999999999999999999999999", now)
	assert.NoError(t, store.Append(ctx, mine))
	assert.NoError(t, store.Append(ctx, other))

	got, err := store.List(ctx, "0xabc1111111111111111111111111111111111111", 0)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, mine.LocalID, got[0].LocalID)
}

func TestMemoryStoreAppliesLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		assert.NoError(t, store.Append(ctx, record(testAddress, base.Add(time.Duration(i)*time.Minute))))
	}

	got, err := store.List(ctx, testAddress, 2)
	assert.NoError(t, err)
	assert.Len(t, got, 2)
	assert.True(t, got[0].AttemptedAt.After(got[1].AttemptedAt))
}

func TestMemoryStoreAppendUpserts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := record(testAddress, time.Now())
	assert.NoError(t, store.Append(ctx, rec))

	rec.State = domain.TransactionStateFailed
	rec.Error = "insufficient funds"
	assert.NoError(t, store.Append(ctx, rec))

	got, err := store.List(ctx, testAddress, 0)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, domain.TransactionStateFailed, got[0].State)
	assert.Equal(t, "insufficient funds", got[0].Error)
}
