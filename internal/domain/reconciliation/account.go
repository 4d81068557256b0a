package reconciliation

import (
	"github.com/erp/bankrec/internal/domain/shared"
	"github.com/google/uuid"
)

// AccountType classifies a ledger account
type AccountType string

const (
	AccountTypeBank       AccountType = "Bank"
	AccountTypeReceivable AccountType = "Receivable"
	AccountTypePayable    AccountType = "Payable"
	AccountTypeCash       AccountType = "Cash"
)

// Account represents a ledger account in the chart of accounts.
// The reconciliation core only reads it: candidate queries and clearance
// evaluation are keyed by the ledger account a bank account is linked to.
type Account struct {
	shared.BaseEntity
	Code     string      `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name     string      `gorm:"type:varchar(200);not null"`
	Type     AccountType `gorm:"type:varchar(30);not null;index"`
	Currency string      `gorm:"type:varchar(10);not null"`
	Company  string      `gorm:"type:varchar(200);not null"`
}

// TableName returns the table name for GORM
func (Account) TableName() string {
	return "accounts"
}

// BankAccount represents a bank account that statements are imported into.
// It must be linked to exactly one ledger account; matching against a bank
// account with no ledger linkage is a configuration error.
type BankAccount struct {
	shared.BaseEntity
	Name      string     `gorm:"type:varchar(200);not null;uniqueIndex"`
	AccountID *uuid.UUID `gorm:"type:uuid;index"` // linked ledger account
	Bank      string     `gorm:"type:varchar(200)"`
	Company   string     `gorm:"type:varchar(200);not null"`

	// Statement import settings, kept on the bank account so repeated
	// imports for the same bank reuse the mapping.
	DateFormat string                 `gorm:"type:varchar(20);default:'Auto'"`
	FieldMap   []StatementFieldMapRow `gorm:"foreignKey:BankAccountID;references:ID"`
}

// TableName returns the table name for GORM
func (BankAccount) TableName() string {
	return "bank_accounts"
}

// StatementFieldMapRow maps one bank-transaction field to a statement file column
type StatementFieldMapRow struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key"`
	BankAccountID    uuid.UUID `gorm:"type:uuid;not null;index"`
	TransactionField string    `gorm:"type:varchar(50);not null"`
	FileColumn       string    `gorm:"type:varchar(100);not null"`
}

// TableName returns the table name for GORM
func (StatementFieldMapRow) TableName() string {
	return "statement_field_map_rows"
}
