package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BankTransactionFilter narrows bank-transaction queries
type BankTransactionFilter struct {
	BankAccountID uuid.UUID
	FromDate      *time.Time
	ToDate        *time.Time
	Limit         int
}

// BankTransactionRepository persists bank transactions and their allocation
// entries
type BankTransactionRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*BankTransaction, error)
	// FindUnreconciled returns submitted transactions with a positive
	// unallocated amount, ordered by date.
	FindUnreconciled(ctx context.Context, filter BankTransactionFilter) ([]BankTransaction, error)
	// FindReconciled returns submitted transactions with zero unallocated
	// amount, ordered by date.
	FindReconciled(ctx context.Context, filter BankTransactionFilter) ([]BankTransaction, error)
	// FindLastSubmitted returns the most recent submitted transaction for a
	// bank account, or nil when none exists.
	FindLastSubmitted(ctx context.Context, bankAccountID uuid.UUID) (*BankTransaction, error)
	// CountDuplicates counts submitted transactions identical in the
	// duplicate-detection fields.
	CountDuplicates(ctx context.Context, bt *BankTransaction) (int64, error)
	Save(ctx context.Context, bt *BankTransaction) error
	// DeleteAllocationEntries removes detached child rows after an
	// allocation diff.
	DeleteAllocationEntries(ctx context.Context, entryIDs []uuid.UUID) error
	// CreateBatch inserts transactions atomically; any failure rolls the
	// whole batch back.
	CreateBatch(ctx context.Context, txs []*BankTransaction) error
}

// BankAccountRepository resolves bank accounts and their ledger linkage
type BankAccountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*BankAccount, error)
	FindByName(ctx context.Context, name string) (*BankAccount, error)
	// LedgerAccount resolves the ledger account a bank account is linked
	// to; returns ErrNoLedgerAccount when unlinked.
	LedgerAccount(ctx context.Context, bankAccountID uuid.UUID) (*Account, error)
}

// ClearanceStore reads voucher matching attributes and writes clearance
// dates. It is the only write path the reconciliation core has into the
// accounting subsystem's documents.
type ClearanceStore interface {
	PaymentEntry(ctx context.Context, id uuid.UUID) (*PaymentEntry, error)
	JournalEntry(ctx context.Context, id uuid.UUID) (*JournalEntry, error)
	// JournalContributions gathers the sign-adjusted allocations toward a
	// journal entry across every submitted bank transaction, attributed to
	// the ledger account of each transaction's bank account.
	JournalContributions(ctx context.Context, journalEntryID uuid.UUID) ([]JournalLegContribution, error)
	// BankLinkedAccounts reports which of the given ledger accounts are
	// linked to a bank account (reconciliation enabled).
	BankLinkedAccounts(ctx context.Context, accountIDs []uuid.UUID) (map[uuid.UUID]bool, error)
	SalesInvoicePayments(ctx context.Context, invoiceID, accountID uuid.UUID) ([]SalesInvoicePayment, error)
	PurchaseInvoice(ctx context.Context, id uuid.UUID) (*PurchaseInvoice, error)
	LoanDisbursement(ctx context.Context, id uuid.UUID) (*LoanDisbursement, error)
	LoanRepayment(ctx context.Context, id uuid.UUID) (*LoanRepayment, error)
	// SetClearanceDate writes (or unsets) the clearance date on a voucher
	// header. Writing to a voucher that no longer exists is a no-op.
	SetClearanceDate(ctx context.Context, ref VoucherRef, date *time.Time) error
	// SetInvoiceLineClearance writes the clearance date on a nested invoice
	// payment line.
	SetInvoiceLineClearance(ctx context.Context, lineID uuid.UUID, date *time.Time) error
	// StaleTransactionIDs finds submitted transactions in the window whose
	// linked vouchers look stale: clearance date null or different from the
	// transaction's date. Bounded by limit when positive.
	StaleTransactionIDs(ctx context.Context, filter BankTransactionFilter) ([]uuid.UUID, error)
}
