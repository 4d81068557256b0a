package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClearanceAction is the outcome of evaluating a voucher's clearance state
// against its allocations.
type ClearanceAction int

const (
	// ClearanceNoop means the stored state is already correct; nothing is
	// written.
	ClearanceNoop ClearanceAction = iota
	// ClearanceSet transitions the voucher to Cleared with a date.
	ClearanceSet
	// ClearanceReset transitions the voucher back to Uncleared.
	ClearanceReset
	// ClearanceSkip means the state is ambiguous and must be left untouched.
	ClearanceSkip
)

// ClearanceDecision is the result of a clearance evaluation
type ClearanceDecision struct {
	Action ClearanceAction
	Date   time.Time // valid only for ClearanceSet
}

// SignedAllocation adjusts an allocated amount by the direction of the
// contributing bank transaction: deposits contribute positively, withdrawals
// negatively.
func SignedAllocation(direction Direction, allocated decimal.Decimal) decimal.Decimal {
	if direction == DirectionDeposit {
		return allocated
	}
	return allocated.Neg()
}

// paymentEntryTarget returns the signed amount a payment entry needs its
// allocations to sum to before it clears:
//
//	deposit    + Receive -> +paid_amount
//	deposit    + Pay     -> -paid_amount
//	withdrawal + Receive -> -paid_amount
//	withdrawal + Pay     -> +paid_amount
//
// Internal transfers behave like Receive when the bank account is on the
// receiving side, which the caller expresses through the direction.
func paymentEntryTarget(paymentType PaymentType, paidAmount decimal.Decimal) decimal.Decimal {
	if paymentType == PaymentTypePay {
		return paidAmount.Neg()
	}
	return paidAmount
}

// EvaluatePaymentClearance decides the clearance transition for a payment
// entry given the allocation from one bank transaction. txDate is the
// transaction's date, current the voucher's stored clearance date.
func EvaluatePaymentClearance(
	direction Direction,
	paymentType PaymentType,
	allocated decimal.Decimal,
	paidAmount decimal.Decimal,
	txDate time.Time,
	current *time.Time,
) ClearanceDecision {
	signed := SignedAllocation(direction, allocated)
	satisfied := signed.Equal(paymentEntryTarget(paymentType, paidAmount))

	switch {
	case satisfied && (current == nil || !sameDay(*current, txDate)):
		return ClearanceDecision{Action: ClearanceSet, Date: txDate}
	case !satisfied && current != nil:
		return ClearanceDecision{Action: ClearanceReset}
	default:
		return ClearanceDecision{Action: ClearanceNoop}
	}
}

// EvaluateSimpleClearance decides the transition for voucher variants whose
// clearance clears on full allocation of a single positive amount (loans,
// invoice payment lines, paid purchase invoices).
func EvaluateSimpleClearance(
	allocated decimal.Decimal,
	paymentAmount decimal.Decimal,
	txDate time.Time,
	current *time.Time,
) ClearanceDecision {
	satisfied := allocated.Equal(paymentAmount) && paymentAmount.IsPositive()

	switch {
	case satisfied && (current == nil || !sameDay(*current, txDate)):
		return ClearanceDecision{Action: ClearanceSet, Date: txDate}
	case !satisfied && current != nil:
		return ClearanceDecision{Action: ClearanceReset}
	default:
		return ClearanceDecision{Action: ClearanceNoop}
	}
}

// JournalLegContribution is one bank transaction's sign-adjusted allocation
// toward a journal entry, attributed to the ledger account of the
// transaction's bank account.
type JournalLegContribution struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal // already sign-adjusted by transaction direction
	Date      time.Time
}

// EvaluateJournalClearance decides the document-level clearance transition
// for a multi-leg journal entry. bankAccounts holds the ledger accounts that
// are linked to a bank account; legs on other accounts are ignored. A
// duplicate bank account across two legs makes the evaluation ambiguous and
// the state is left untouched. Every bank-linked leg must independently
// clear (summed contributions equal to its debit, or the negated sum equal
// to its credit) before the clearance date is set. The clearance date is the
// most recent contributing transaction date.
func EvaluateJournalClearance(
	legs []JournalEntryAccount,
	bankAccounts map[uuid.UUID]bool,
	contributions []JournalLegContribution,
	current *time.Time,
) ClearanceDecision {
	seen := make(map[uuid.UUID]bool)
	cleared := make(map[uuid.UUID]bool)
	var clearanceDate time.Time

	for _, leg := range legs {
		if !bankAccounts[leg.AccountID] {
			continue
		}
		if seen[leg.AccountID] {
			return ClearanceDecision{Action: ClearanceSkip}
		}
		seen[leg.AccountID] = true

		allocated := decimal.Zero
		for _, c := range contributions {
			if c.AccountID != leg.AccountID {
				continue
			}
			allocated = allocated.Add(c.Amount)
			if c.Date.After(clearanceDate) {
				clearanceDate = c.Date
			}
		}

		switch {
		case leg.DebitInAccountCurrency.IsPositive() && allocated.Equal(leg.DebitInAccountCurrency):
			cleared[leg.AccountID] = true
		case leg.CreditInAccountCurrency.IsPositive() && allocated.Equal(leg.CreditInAccountCurrency.Neg()):
			cleared[leg.AccountID] = true
		default:
			cleared[leg.AccountID] = false
		}
	}

	if len(seen) == 0 {
		// No reconcilable bank leg; nothing to decide.
		return ClearanceDecision{Action: ClearanceNoop}
	}

	allCleared := true
	for _, ok := range cleared {
		if !ok {
			allCleared = false
			break
		}
	}

	switch {
	case allCleared && (current == nil || !sameDay(*current, clearanceDate)):
		return ClearanceDecision{Action: ClearanceSet, Date: clearanceDate}
	case allCleared:
		return ClearanceDecision{Action: ClearanceNoop}
	case current != nil:
		return ClearanceDecision{Action: ClearanceReset}
	default:
		return ClearanceDecision{Action: ClearanceNoop}
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
