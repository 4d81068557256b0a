package persistence

import (
	"testing"
	"time"

	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/erp/bankrec/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database with the full schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A second connection would see an empty memory database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func seedLedgerAccount(t *testing.T, db *gorm.DB, company string) *reconciliation.Account {
	t.Helper()
	account := &reconciliation.Account{
		BaseEntity: shared.NewBaseEntity(),
		Code:       "BNK-" + uuid.NewString()[:8],
		Name:       "Main Bank",
		Type:       reconciliation.AccountTypeBank,
		Currency:   "EUR",
		Company:    company,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func seedBankAccount(t *testing.T, db *gorm.DB, ledger *reconciliation.Account) *reconciliation.BankAccount {
	t.Helper()
	bankAccount := &reconciliation.BankAccount{
		BaseEntity: shared.NewBaseEntity(),
		Name:       "Checking " + uuid.NewString()[:8],
		AccountID:  &ledger.ID,
		Bank:       "Test Bank",
		Company:    ledger.Company,
	}
	require.NoError(t, db.Create(bankAccount).Error)
	return bankAccount
}

func seedTransaction(t *testing.T, db *gorm.DB, bankAccount *reconciliation.BankAccount, deposit, withdrawal string, date time.Time) *reconciliation.BankTransaction {
	t.Helper()
	bt, err := reconciliation.NewBankTransaction(
		bankAccount.ID,
		date,
		decimal.RequireFromString(deposit),
		decimal.RequireFromString(withdrawal),
		"EUR",
	)
	require.NoError(t, err)
	require.NoError(t, bt.Submit())
	require.NoError(t, db.Create(bt).Error)
	return bt
}

func testMatchContext(tx *reconciliation.BankTransaction, ledger *reconciliation.Account) reconciliation.MatchContext {
	return reconciliation.MatchContext{
		TransactionID:     tx.ID,
		BankAccountID:     tx.BankAccountID,
		LedgerAccountID:   ledger.ID,
		Company:           ledger.Company,
		Deposit:           tx.Deposit,
		Withdrawal:        tx.Withdrawal,
		UnallocatedAmount: tx.UnallocatedAmount,
		ReferenceNumber:   tx.ReferenceNumber,
		PartyType:         tx.PartyType,
		Party:             tx.Party,
	}
}

func seedPaymentEntry(t *testing.T, db *gorm.DB, pe *reconciliation.PaymentEntry) *reconciliation.PaymentEntry {
	t.Helper()
	if pe.ID == uuid.Nil {
		pe.BaseEntity = shared.NewBaseEntity()
	}
	if pe.Docstatus == 0 {
		pe.Docstatus = reconciliation.DocstatusSubmitted
	}
	require.NoError(t, db.Create(pe).Error)
	return pe
}
