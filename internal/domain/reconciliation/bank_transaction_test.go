package reconciliation

import (
	"testing"
	"time"

	"github.com/erp/bankrec/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransaction(t *testing.T, deposit, withdrawal string) *BankTransaction {
	t.Helper()
	bt, err := NewBankTransaction(
		uuid.New(),
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		decimal.RequireFromString(deposit),
		decimal.RequireFromString(withdrawal),
		"EUR",
	)
	require.NoError(t, err)
	require.NoError(t, bt.Submit())
	return bt
}

func allocation(amount string) VoucherAllocation {
	return VoucherAllocation{
		Ref:    VoucherRef{Type: VoucherTypePaymentEntry, ID: uuid.New()},
		Amount: decimal.RequireFromString(amount),
	}
}

func TestNewBankTransaction(t *testing.T) {
	t.Run("valid deposit transaction", func(t *testing.T) {
		bt := newTestTransaction(t, "100", "0")
		assert.Equal(t, DirectionDeposit, bt.Direction())
		assert.True(t, bt.Amount().Equal(decimal.NewFromInt(100)))
		assert.True(t, bt.UnallocatedAmount.Equal(decimal.NewFromInt(100)))
	})

	t.Run("rejects missing bank account", func(t *testing.T) {
		_, err := NewBankTransaction(uuid.Nil, time.Now(), decimal.NewFromInt(10), decimal.Zero, "EUR")
		assert.Error(t, err)
	})

	t.Run("rejects deposit and withdrawal on the same line", func(t *testing.T) {
		_, err := NewBankTransaction(uuid.New(), time.Now(), decimal.NewFromInt(10), decimal.NewFromInt(5), "EUR")
		assert.Error(t, err)
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		_, err := NewBankTransaction(uuid.New(), time.Now(), decimal.NewFromInt(-10), decimal.Zero, "EUR")
		assert.Error(t, err)
	})
}

func TestBankTransaction_AddAllocations(t *testing.T) {
	t.Run("adding an allocation reduces the unallocated amount", func(t *testing.T) {
		bt := newTestTransaction(t, "100", "0")
		added, err := bt.AddAllocations([]VoucherAllocation{allocation("60")})
		require.NoError(t, err)
		assert.Len(t, added, 1)
		assert.True(t, bt.UnallocatedAmount.Equal(decimal.NewFromInt(40)))
		assert.Equal(t, StatusUnreconciled, bt.Status)
	})

	t.Run("full allocation marks the transaction reconciled", func(t *testing.T) {
		bt := newTestTransaction(t, "100", "0")
		_, err := bt.AddAllocations([]VoucherAllocation{allocation("100")})
		require.NoError(t, err)
		assert.True(t, bt.UnallocatedAmount.IsZero())
		assert.Equal(t, StatusReconciled, bt.Status)
	})

	t.Run("duplicate voucher is a no-op", func(t *testing.T) {
		bt := newTestTransaction(t, "100", "0")
		alloc := allocation("60")
		_, err := bt.AddAllocations([]VoucherAllocation{alloc})
		require.NoError(t, err)
		before := bt.UnallocatedAmount

		added, err := bt.AddAllocations([]VoucherAllocation{alloc})
		require.NoError(t, err)
		assert.Empty(t, added)
		assert.True(t, bt.UnallocatedAmount.Equal(before))
		assert.Len(t, bt.Payments, 1)
	})

	t.Run("fails when already fully allocated", func(t *testing.T) {
		bt := newTestTransaction(t, "100", "0")
		_, err := bt.AddAllocations([]VoucherAllocation{allocation("100")})
		require.NoError(t, err)

		_, err = bt.AddAllocations([]VoucherAllocation{allocation("10")})
		assert.ErrorContains(t, err, "already fully allocated")
	})

	t.Run("rejects over-allocation", func(t *testing.T) {
		bt := newTestTransaction(t, "100", "0")
		_, err := bt.AddAllocations([]VoucherAllocation{allocation("150")})
		assert.ErrorIs(t, err, shared.ErrOverAllocated)
		assert.ErrorContains(t, err, "exceeds")
	})
}

func TestBankTransaction_RemoveAllocations(t *testing.T) {
	t.Run("removal reopens the transaction", func(t *testing.T) {
		bt := newTestTransaction(t, "100", "0")
		alloc := allocation("100")
		_, err := bt.AddAllocations([]VoucherAllocation{alloc})
		require.NoError(t, err)
		require.Equal(t, StatusReconciled, bt.Status)

		removed, err := bt.RemoveAllocations([]VoucherRef{alloc.Ref})
		require.NoError(t, err)
		assert.Len(t, removed, 1)
		assert.True(t, bt.UnallocatedAmount.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, StatusUnreconciled, bt.Status)
	})

	t.Run("unknown ref is ignored", func(t *testing.T) {
		bt := newTestTransaction(t, "100", "0")
		removed, err := bt.RemoveAllocations([]VoucherRef{{Type: VoucherTypeJournalEntry, ID: uuid.New()}})
		require.NoError(t, err)
		assert.Empty(t, removed)
	})
}

func TestBankTransaction_Conservation(t *testing.T) {
	// unallocated == |deposit - withdrawal| - sum(allocations) after any
	// sequence of mutations
	bt := newTestTransaction(t, "0", "250")
	a1 := allocation("100")
	a2 := allocation("75")

	_, err := bt.AddAllocations([]VoucherAllocation{a1, a2})
	require.NoError(t, err)

	sum := decimal.Zero
	for _, p := range bt.Payments {
		sum = sum.Add(p.AllocatedAmount)
	}
	assert.True(t, bt.UnallocatedAmount.Equal(bt.Amount().Sub(sum)))
	assert.False(t, bt.UnallocatedAmount.IsNegative())

	_, err = bt.RemoveAllocations([]VoucherRef{a1.Ref})
	require.NoError(t, err)
	assert.True(t, bt.UnallocatedAmount.Equal(decimal.NewFromInt(175)))
}
