package persistence

import (
	"github.com/erp/bankrec/internal/domain/reconciliation"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for every reconciliation model
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&reconciliation.Account{},
		&reconciliation.BankAccount{},
		&reconciliation.StatementFieldMapRow{},
		&reconciliation.BankTransaction{},
		&reconciliation.AllocationEntry{},
		&reconciliation.PaymentEntry{},
		&reconciliation.JournalEntry{},
		&reconciliation.JournalEntryAccount{},
		&reconciliation.SalesInvoice{},
		&reconciliation.SalesInvoicePayment{},
		&reconciliation.PurchaseInvoice{},
		&reconciliation.LoanDisbursement{},
		&reconciliation.LoanRepayment{},
	)
}
