package reconciliation

import (
	"fmt"
	"time"

	"github.com/erp/bankrec/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Docstatus values follow the document lifecycle of the host platform
const (
	DocstatusDraft     = 0
	DocstatusSubmitted = 1
	DocstatusCancelled = 2
)

// Transaction status values
const (
	StatusPending      = "Pending"
	StatusUnreconciled = "Unreconciled"
	StatusReconciled   = "Reconciled"
	StatusCancelled    = "Cancelled"
)

// Direction is the cash-flow direction of a bank transaction relative to the
// bank account: a deposit is an inflow, a withdrawal an outflow.
type Direction string

const (
	DirectionDeposit    Direction = "Deposit"
	DirectionWithdrawal Direction = "Withdrawal"
)

// AllocationEntry links a bank transaction to a voucher with an amount.
// It is owned exclusively by its bank transaction.
type AllocationEntry struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key"`
	BankTransactionID uuid.UUID       `gorm:"type:uuid;not null;index"`
	VoucherType       VoucherType     `gorm:"type:varchar(40);not null"`
	VoucherID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	AllocatedAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreatedAt         time.Time
}

// TableName returns the table name for GORM
func (AllocationEntry) TableName() string {
	return "bank_transaction_payments"
}

// Ref returns the voucher reference of this entry
func (a *AllocationEntry) Ref() VoucherRef {
	return VoucherRef{Type: a.VoucherType, ID: a.VoucherID}
}

// BankTransaction represents one imported bank statement line awaiting
// reconciliation. It is the aggregate root owning the allocation entries;
// the invariant UnallocatedAmount == |Deposit-Withdrawal| - sum(allocations)
// is maintained on every mutation and violations reject the update.
type BankTransaction struct {
	shared.BaseEntity
	Date              time.Time       `gorm:"not null;index"`
	Deposit           decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Withdrawal        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency          string          `gorm:"type:varchar(10);not null"`
	Description       string          `gorm:"type:text"`
	ReferenceNumber   string          `gorm:"type:varchar(140);index"`
	PartyType         string          `gorm:"type:varchar(40)"`
	Party             string          `gorm:"type:varchar(200)"`
	BankAccountID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Docstatus         int             `gorm:"not null;default:0;index"`
	Status            string          `gorm:"type:varchar(20);not null;default:'Pending';index"`
	UnallocatedAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`

	Payments []AllocationEntry `gorm:"foreignKey:BankTransactionID;references:ID"`
}

// TableName returns the table name for GORM
func (BankTransaction) TableName() string {
	return "bank_transactions"
}

// NewBankTransaction creates a draft bank transaction
func NewBankTransaction(
	bankAccountID uuid.UUID,
	date time.Time,
	deposit, withdrawal decimal.Decimal,
	currency string,
) (*BankTransaction, error) {
	bt := &BankTransaction{
		BaseEntity:    shared.NewBaseEntity(),
		Date:          date,
		Deposit:       deposit,
		Withdrawal:    withdrawal,
		Currency:      currency,
		BankAccountID: bankAccountID,
		Docstatus:     DocstatusDraft,
		Status:        StatusPending,
		Payments:      make([]AllocationEntry, 0),
	}
	if err := bt.Validate(); err != nil {
		return nil, err
	}
	bt.UnallocatedAmount = bt.Amount()
	return bt, nil
}

// Validate checks structural validity of the transaction
func (bt *BankTransaction) Validate() error {
	if bt.BankAccountID == uuid.Nil {
		return shared.NewDomainError("VALIDATION", "Bank account is required")
	}
	if bt.Date.IsZero() {
		return shared.NewDomainError("VALIDATION", "Transaction date is required")
	}
	if bt.Deposit.IsNegative() || bt.Withdrawal.IsNegative() {
		return shared.NewDomainError("VALIDATION", "Deposit and withdrawal amounts cannot be negative")
	}
	if bt.Deposit.IsPositive() && bt.Withdrawal.IsPositive() {
		return shared.NewDomainError("VALIDATION", "A transaction cannot carry both a deposit and a withdrawal")
	}
	return nil
}

// Amount returns the absolute transaction amount
func (bt *BankTransaction) Amount() decimal.Decimal {
	if bt.Deposit.IsPositive() {
		return bt.Deposit
	}
	return bt.Withdrawal
}

// Direction returns whether the transaction is a deposit or a withdrawal
func (bt *BankTransaction) Direction() Direction {
	if bt.Deposit.IsPositive() {
		return DirectionDeposit
	}
	return DirectionWithdrawal
}

// Submit moves the transaction to the submitted state
func (bt *BankTransaction) Submit() error {
	if bt.Docstatus != DocstatusDraft {
		return shared.ErrInvalidState
	}
	if err := bt.Validate(); err != nil {
		return err
	}
	bt.Docstatus = DocstatusSubmitted
	bt.Status = StatusUnreconciled
	bt.UpdatedAt = time.Now()
	return nil
}

// HasAllocation reports whether a voucher is already allocated against this
// transaction
func (bt *BankTransaction) HasAllocation(ref VoucherRef) bool {
	for _, p := range bt.Payments {
		if p.VoucherType == ref.Type && p.VoucherID == ref.ID {
			return true
		}
	}
	return false
}

// AddAllocations appends allocation entries for the given vouchers.
// Vouchers already present are skipped, so repeated calls with the same list
// are no-ops. Returns the entries that were actually added.
func (bt *BankTransaction) AddAllocations(vouchers []VoucherAllocation) ([]AllocationEntry, error) {
	if !bt.UnallocatedAmount.IsPositive() {
		return nil, shared.ErrAlreadyReconciled
	}

	added := make([]AllocationEntry, 0, len(vouchers))
	for _, v := range vouchers {
		if bt.HasAllocation(v.Ref) {
			continue
		}
		entry := AllocationEntry{
			ID:                uuid.New(),
			BankTransactionID: bt.ID,
			VoucherType:       v.Ref.Type,
			VoucherID:         v.Ref.ID,
			AllocatedAmount:   v.Amount,
			CreatedAt:         time.Now(),
		}
		bt.Payments = append(bt.Payments, entry)
		added = append(added, entry)
	}

	if len(added) > 0 {
		if err := bt.RecomputeUnallocated(); err != nil {
			return nil, err
		}
	}
	return added, nil
}

// RemoveAllocations detaches the given vouchers from the transaction and
// returns the entries that were removed. Unknown refs are ignored.
func (bt *BankTransaction) RemoveAllocations(refs []VoucherRef) ([]AllocationEntry, error) {
	removeSet := make(map[VoucherRef]bool, len(refs))
	for _, r := range refs {
		removeSet[r] = true
	}

	kept := bt.Payments[:0]
	removed := make([]AllocationEntry, 0, len(refs))
	for _, p := range bt.Payments {
		if removeSet[p.Ref()] {
			removed = append(removed, p)
			continue
		}
		kept = append(kept, p)
	}
	bt.Payments = kept

	if len(removed) > 0 {
		if err := bt.RecomputeUnallocated(); err != nil {
			return nil, err
		}
	}
	return removed, nil
}

// RecomputeUnallocated re-derives the unallocated amount from the allocation
// entries and rejects the mutation when allocations exceed the transaction
// amount.
func (bt *BankTransaction) RecomputeUnallocated() error {
	allocated := decimal.Zero
	for _, p := range bt.Payments {
		allocated = allocated.Add(p.AllocatedAmount)
	}

	remaining := bt.Amount().Sub(allocated)
	if remaining.IsNegative() {
		return fmt.Errorf("%w: allocated %s exceeds transaction amount %s",
			shared.ErrOverAllocated, allocated, bt.Amount())
	}

	bt.UnallocatedAmount = remaining
	if remaining.IsZero() {
		bt.Status = StatusReconciled
	} else if bt.Docstatus == DocstatusSubmitted {
		bt.Status = StatusUnreconciled
	}
	bt.UpdatedAt = time.Now()
	return nil
}

// VoucherAllocation pairs a voucher reference with the amount to allocate
type VoucherAllocation struct {
	Ref    VoucherRef
	Amount decimal.Decimal
}
