package reconciliation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubProvider struct {
	voucherType VoucherType
	candidates  []Candidate
	err         error
	calls       int
}

func (p *stubProvider) VoucherType() VoucherType { return p.voucherType }

func (p *stubProvider) FindCandidates(ctx context.Context, mc MatchContext, opts MatchOptions) ([]Candidate, error) {
	p.calls++
	return p.candidates, p.err
}

type stubAllocations struct {
	byRef map[VoucherRef]decimal.Decimal
}

func (s *stubAllocations) AllocatedElsewhere(ctx context.Context, ledgerAccountID, excludeTransactionID uuid.UUID, refs []VoucherRef) (map[VoucherRef]decimal.Decimal, error) {
	if s.byRef == nil {
		return map[VoucherRef]decimal.Decimal{}, nil
	}
	return s.byRef, nil
}

func matchContext() MatchContext {
	return MatchContext{
		TransactionID:     uuid.New(),
		BankAccountID:     uuid.New(),
		LedgerAccountID:   uuid.New(),
		Deposit:           decimal.NewFromInt(100),
		UnallocatedAmount: decimal.NewFromInt(100),
		ReferenceNumber:   "REF1",
		Party:             "Acme",
		PartyType:         "Customer",
	}
}

func candidateWithRank(vt VoucherType, rank int, amount string) Candidate {
	return Candidate{
		Rank:        rank,
		VoucherType: vt,
		VoucherID:   uuid.New(),
		Amount:      decimal.RequireFromString(amount),
	}
}

func TestMatchingEngine_FindCandidates(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("sorts the union by rank descending", func(t *testing.T) {
		pe := &stubProvider{voucherType: VoucherTypePaymentEntry, candidates: []Candidate{
			candidateWithRank(VoucherTypePaymentEntry, 2, "100"),
			candidateWithRank(VoucherTypePaymentEntry, 4, "100"),
		}}
		je := &stubProvider{voucherType: VoucherTypeJournalEntry, candidates: []Candidate{
			candidateWithRank(VoucherTypeJournalEntry, 1, "100"),
		}}
		engine := NewMatchingEngine(&stubAllocations{}, logger, pe, je)

		got, err := engine.FindCandidates(context.Background(), matchContext(), MatchOptions{
			VoucherTypes: []VoucherType{VoucherTypePaymentEntry, VoucherTypeJournalEntry},
		})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []int{4, 2, 1}, []int{got[0].Rank, got[1].Rank, got[2].Rank})
	})

	t.Run("skips providers whose type was not requested", func(t *testing.T) {
		pe := &stubProvider{voucherType: VoucherTypePaymentEntry}
		je := &stubProvider{voucherType: VoucherTypeJournalEntry}
		engine := NewMatchingEngine(&stubAllocations{}, logger, pe, je)

		_, err := engine.FindCandidates(context.Background(), matchContext(), MatchOptions{
			VoucherTypes: []VoucherType{VoucherTypePaymentEntry},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, pe.calls)
		assert.Zero(t, je.calls)
	})

	t.Run("unknown requested voucher type is skipped, not an error", func(t *testing.T) {
		engine := NewMatchingEngine(&stubAllocations{}, logger,
			&stubProvider{voucherType: VoucherTypePaymentEntry})

		got, err := engine.FindCandidates(context.Background(), matchContext(), MatchOptions{
			VoucherTypes: []VoucherType{"No Such Voucher"},
		})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing ledger account linkage is a configuration error", func(t *testing.T) {
		engine := NewMatchingEngine(&stubAllocations{}, logger)
		mc := matchContext()
		mc.LedgerAccountID = uuid.Nil

		_, err := engine.FindCandidates(context.Background(), mc, MatchOptions{})
		assert.ErrorIs(t, err, ErrNoLedgerAccount)
	})

	t.Run("subtracts amounts already allocated elsewhere", func(t *testing.T) {
		cand := candidateWithRank(VoucherTypePaymentEntry, 3, "500")
		allocations := &stubAllocations{byRef: map[VoucherRef]decimal.Decimal{
			cand.Ref(): decimal.NewFromInt(300),
		}}
		engine := NewMatchingEngine(allocations, logger,
			&stubProvider{voucherType: VoucherTypePaymentEntry, candidates: []Candidate{cand}})

		got, err := engine.FindCandidates(context.Background(), matchContext(), MatchOptions{
			VoucherTypes: []VoucherType{VoucherTypePaymentEntry},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].Amount.Equal(decimal.NewFromInt(200)),
			"expected 200, got %s", got[0].Amount)
	})

	t.Run("voucher with no prior allocation keeps its amount", func(t *testing.T) {
		cand := candidateWithRank(VoucherTypeSalesInvoice, 2, "75")
		engine := NewMatchingEngine(&stubAllocations{}, logger,
			&stubProvider{voucherType: VoucherTypeSalesInvoice, candidates: []Candidate{cand}})

		got, err := engine.FindCandidates(context.Background(), matchContext(), MatchOptions{
			VoucherTypes: []VoucherType{VoucherTypeSalesInvoice},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].Amount.Equal(decimal.NewFromInt(75)))
	})

	t.Run("a registered extension provider contributes candidates", func(t *testing.T) {
		engine := NewMatchingEngine(&stubAllocations{}, logger)
		engine.Register(&stubProvider{voucherType: VoucherTypeLoanRepayment, candidates: []Candidate{
			candidateWithRank(VoucherTypeLoanRepayment, 2, "100"),
		}})

		got, err := engine.FindCandidates(context.Background(), matchContext(), MatchOptions{
			VoucherTypes: []VoucherType{VoucherTypeLoanRepayment},
		})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}
