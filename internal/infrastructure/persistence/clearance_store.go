package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/erp/bankrec/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormClearanceStore implements ClearanceStore using GORM. It is the only
// write path the reconciliation core has into accounting documents.
type GormClearanceStore struct {
	db *gorm.DB
}

// NewGormClearanceStore creates a new GormClearanceStore
func NewGormClearanceStore(db *gorm.DB) *GormClearanceStore {
	return &GormClearanceStore{db: db}
}

// PaymentEntry loads a payment entry, or nil when it no longer exists
func (s *GormClearanceStore) PaymentEntry(ctx context.Context, id uuid.UUID) (*reconciliation.PaymentEntry, error) {
	var pe reconciliation.PaymentEntry
	if err := s.db.WithContext(ctx).First(&pe, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pe, nil
}

// JournalEntry loads a journal entry with its legs, or nil when it no longer
// exists
func (s *GormClearanceStore) JournalEntry(ctx context.Context, id uuid.UUID) (*reconciliation.JournalEntry, error) {
	var je reconciliation.JournalEntry
	if err := s.db.WithContext(ctx).
		Preload("Accounts").
		First(&je, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &je, nil
}

const journalContributionsQuery = `
SELECT
	ba.account_id AS account_id,
	CASE WHEN bt.deposit > 0 THEN btp.allocated_amount ELSE -btp.allocated_amount END AS amount,
	bt.date AS date
FROM bank_transaction_payments btp
JOIN bank_transactions bt ON bt.id = btp.bank_transaction_id
JOIN bank_accounts ba ON ba.id = bt.bank_account_id
WHERE btp.voucher_type = @voucher_type
	AND btp.voucher_id = @journal_entry
	AND bt.docstatus = 1
	AND ba.account_id IS NOT NULL
ORDER BY bt.date ASC`

// JournalContributions gathers the sign-adjusted allocations toward a journal
// entry across every submitted bank transaction
func (s *GormClearanceStore) JournalContributions(ctx context.Context, journalEntryID uuid.UUID) ([]reconciliation.JournalLegContribution, error) {
	var rows []struct {
		AccountID uuid.UUID
		Amount    decimal.Decimal
		Date      time.Time
	}
	err := s.db.WithContext(ctx).
		Raw(journalContributionsQuery, map[string]interface{}{
			"voucher_type":  reconciliation.VoucherTypeJournalEntry,
			"journal_entry": journalEntryID,
		}).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	contributions := make([]reconciliation.JournalLegContribution, 0, len(rows))
	for _, row := range rows {
		contributions = append(contributions, reconciliation.JournalLegContribution{
			AccountID: row.AccountID,
			Amount:    row.Amount,
			Date:      row.Date,
		})
	}
	return contributions, nil
}

// BankLinkedAccounts reports which of the given ledger accounts back a bank
// account
func (s *GormClearanceStore) BankLinkedAccounts(ctx context.Context, accountIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	linked := make(map[uuid.UUID]bool, len(accountIDs))
	if len(accountIDs) == 0 {
		return linked, nil
	}

	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&reconciliation.BankAccount{}).
		Where("account_id IN ?", accountIDs).
		Pluck("account_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		linked[id] = true
	}
	return linked, nil
}

// SalesInvoicePayments loads the payment lines of an invoice on one ledger
// account
func (s *GormClearanceStore) SalesInvoicePayments(ctx context.Context, invoiceID, accountID uuid.UUID) ([]reconciliation.SalesInvoicePayment, error) {
	var lines []reconciliation.SalesInvoicePayment
	err := s.db.WithContext(ctx).
		Where("sales_invoice_id = ? AND account_id = ?", invoiceID, accountID).
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// PurchaseInvoice loads a purchase invoice, or nil when it no longer exists
func (s *GormClearanceStore) PurchaseInvoice(ctx context.Context, id uuid.UUID) (*reconciliation.PurchaseInvoice, error) {
	var pi reconciliation.PurchaseInvoice
	if err := s.db.WithContext(ctx).First(&pi, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pi, nil
}

// LoanDisbursement loads a loan disbursement, or nil when it no longer exists
func (s *GormClearanceStore) LoanDisbursement(ctx context.Context, id uuid.UUID) (*reconciliation.LoanDisbursement, error) {
	var ld reconciliation.LoanDisbursement
	if err := s.db.WithContext(ctx).First(&ld, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ld, nil
}

// LoanRepayment loads a loan repayment, or nil when it no longer exists
func (s *GormClearanceStore) LoanRepayment(ctx context.Context, id uuid.UUID) (*reconciliation.LoanRepayment, error) {
	var lr reconciliation.LoanRepayment
	if err := s.db.WithContext(ctx).First(&lr, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lr, nil
}

// SetClearanceDate writes (or unsets) the clearance date on a voucher header.
// A voucher deleted since the allocation was made is a no-op.
func (s *GormClearanceStore) SetClearanceDate(ctx context.Context, ref reconciliation.VoucherRef, date *time.Time) error {
	var model interface{}
	switch ref.Type {
	case reconciliation.VoucherTypePaymentEntry:
		model = &reconciliation.PaymentEntry{}
	case reconciliation.VoucherTypeJournalEntry:
		model = &reconciliation.JournalEntry{}
	case reconciliation.VoucherTypePurchaseInvoice:
		model = &reconciliation.PurchaseInvoice{}
	case reconciliation.VoucherTypeLoanDisbursement:
		model = &reconciliation.LoanDisbursement{}
	case reconciliation.VoucherTypeLoanRepayment:
		model = &reconciliation.LoanRepayment{}
	default:
		return shared.ErrInvalidInput
	}

	return s.db.WithContext(ctx).
		Model(model).
		Where("id = ?", ref.ID).
		Update("clearance_date", date).Error
}

// SetInvoiceLineClearance writes the clearance date on a nested invoice
// payment line
func (s *GormClearanceStore) SetInvoiceLineClearance(ctx context.Context, lineID uuid.UUID, date *time.Time) error {
	return s.db.WithContext(ctx).
		Model(&reconciliation.SalesInvoicePayment{}).
		Where("id = ?", lineID).
		Update("clearance_date", date).Error
}

// Staleness is only checked for header-cleared voucher types with their own
// date column; journal entries are always revisited because their clearance
// depends on allocations from other transactions.
const staleTransactionsQuery = `
SELECT DISTINCT bt.id AS id, bt.date AS date
FROM bank_transactions bt
JOIN bank_transaction_payments btp ON btp.bank_transaction_id = bt.id
JOIN payment_entries pe ON pe.id = btp.voucher_id
WHERE btp.voucher_type = 'Payment Entry'
	AND bt.docstatus = 1
	AND (pe.clearance_date IS NULL OR pe.clearance_date <> bt.date)%s
UNION
SELECT DISTINCT bt.id AS id, bt.date AS date
FROM bank_transactions bt
JOIN bank_transaction_payments btp ON btp.bank_transaction_id = bt.id
WHERE btp.voucher_type = 'Journal Entry'
	AND bt.docstatus = 1%s
ORDER BY date ASC`

// StaleTransactionIDs finds submitted transactions in the window whose linked
// vouchers look out of date
func (s *GormClearanceStore) StaleTransactionIDs(ctx context.Context, filter reconciliation.BankTransactionFilter) ([]uuid.UUID, error) {
	args := map[string]interface{}{}
	var clause string
	if filter.BankAccountID != uuid.Nil {
		clause += " AND bt.bank_account_id = @bank_account"
		args["bank_account"] = filter.BankAccountID
	}
	if filter.FromDate != nil {
		clause += " AND bt.date >= @from_date"
		args["from_date"] = *filter.FromDate
	}
	if filter.ToDate != nil {
		clause += " AND bt.date <= @to_date"
		args["to_date"] = *filter.ToDate
	}

	query := fmt.Sprintf(staleTransactionsQuery, clause, clause)
	if filter.Limit > 0 {
		query += " LIMIT @limit"
		args["limit"] = filter.Limit
	}

	var rows []struct {
		ID   uuid.UUID
		Date time.Time
	}
	if err := s.db.WithContext(ctx).Raw(query, args).Scan(&rows).Error; err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}
