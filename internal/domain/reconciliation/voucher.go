package reconciliation

import (
	"time"

	"github.com/erp/bankrec/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VoucherType identifies the kind of accounting document that can satisfy a
// bank transaction.
type VoucherType string

const (
	VoucherTypePaymentEntry          VoucherType = "Payment Entry"
	VoucherTypeJournalEntry          VoucherType = "Journal Entry"
	VoucherTypeSalesInvoice          VoucherType = "Sales Invoice"
	VoucherTypePurchaseInvoice       VoucherType = "Purchase Invoice"
	VoucherTypeUnpaidSalesInvoice    VoucherType = "Unpaid Sales Invoice"
	VoucherTypeUnpaidPurchaseInvoice VoucherType = "Unpaid Purchase Invoice"
	VoucherTypeLoanDisbursement      VoucherType = "Loan Disbursement"
	VoucherTypeLoanRepayment         VoucherType = "Loan Repayment"
	VoucherTypeBankTransaction       VoucherType = "Bank Transaction"
)

// VoucherRef identifies a voucher by type and ID
type VoucherRef struct {
	Type VoucherType
	ID   uuid.UUID
}

// PaymentType is the direction of a payment entry
type PaymentType string

const (
	PaymentTypeReceive          PaymentType = "Receive"
	PaymentTypePay              PaymentType = "Pay"
	PaymentTypeInternalTransfer PaymentType = "Internal Transfer"
)

// PaymentEntry records a payment made or received against a ledger account.
// The reconciliation core reads its matching attributes and writes only its
// clearance date.
type PaymentEntry struct {
	shared.BaseEntity
	PaymentType      PaymentType     `gorm:"type:varchar(20);not null;index"`
	PaidFromID       *uuid.UUID      `gorm:"type:uuid;index"`
	PaidToID         *uuid.UUID      `gorm:"type:uuid;index"`
	PaidFromCurrency string          `gorm:"type:varchar(10)"`
	PaidToCurrency   string          `gorm:"type:varchar(10)"`
	PaidAmount       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ReceivedAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ReferenceNo      string          `gorm:"type:varchar(140);index"`
	ReferenceDate    *time.Time
	PartyType        string `gorm:"type:varchar(40)"`
	Party            string `gorm:"type:varchar(200)"`
	PostingDate      time.Time
	ClearanceDate    *time.Time `gorm:"index"`
	Docstatus        int        `gorm:"not null;default:0;index"`
	Company          string     `gorm:"type:varchar(200)"`
}

// TableName returns the table name for GORM
func (PaymentEntry) TableName() string {
	return "payment_entries"
}

// JournalEntry is a multi-leg accounting entry that may touch several bank
// accounts. Clearance is evaluated per bank-linked leg; the document-level
// clearance date is set only when every bank-linked leg clears.
type JournalEntry struct {
	shared.BaseEntity
	EntryType     string `gorm:"type:varchar(40);not null"`
	ChequeNo      string `gorm:"type:varchar(140);index"`
	ChequeDate    *time.Time
	PayToRecdFrom string `gorm:"type:varchar(200)"`
	PostingDate   time.Time
	ClearanceDate *time.Time `gorm:"index"`
	Docstatus     int        `gorm:"not null;default:0;index"`
	Company       string     `gorm:"type:varchar(200)"`

	Accounts []JournalEntryAccount `gorm:"foreignKey:JournalEntryID;references:ID"`
}

// TableName returns the table name for GORM
func (JournalEntry) TableName() string {
	return "journal_entries"
}

// JournalEntryAccount is one leg of a journal entry
type JournalEntryAccount struct {
	ID                      uuid.UUID       `gorm:"type:uuid;primary_key"`
	JournalEntryID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	AccountID               uuid.UUID       `gorm:"type:uuid;not null;index"`
	PartyType               string          `gorm:"type:varchar(40)"`
	DebitInAccountCurrency  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreditInAccountCurrency decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	AccountCurrency         string          `gorm:"type:varchar(10)"`
}

// TableName returns the table name for GORM
func (JournalEntryAccount) TableName() string {
	return "journal_entry_accounts"
}

// SalesInvoice carries clearance on its POS payment lines, not on the
// invoice header.
type SalesInvoice struct {
	shared.BaseEntity
	Customer          string `gorm:"type:varchar(200);not null;index"`
	PostingDate       time.Time
	Currency          string          `gorm:"type:varchar(10)"`
	OutstandingAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DebitToID         *uuid.UUID      `gorm:"type:uuid;index"`
	Docstatus         int             `gorm:"not null;default:0;index"`
	Company           string          `gorm:"type:varchar(200)"`

	Payments []SalesInvoicePayment `gorm:"foreignKey:SalesInvoiceID;references:ID"`
}

// TableName returns the table name for GORM
func (SalesInvoice) TableName() string {
	return "sales_invoices"
}

// SalesInvoicePayment is a payment line of a sales invoice, matched to a
// ledger account; its clearance date marks the line as settled.
type SalesInvoicePayment struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key"`
	SalesInvoiceID uuid.UUID       `gorm:"type:uuid;not null;index"`
	AccountID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ClearanceDate  *time.Time      `gorm:"index"`
}

// TableName returns the table name for GORM
func (SalesInvoicePayment) TableName() string {
	return "sales_invoice_payments"
}

// PurchaseInvoice carries clearance on the header when paid directly from a
// cash/bank account.
type PurchaseInvoice struct {
	shared.BaseEntity
	Supplier          string `gorm:"type:varchar(200);not null;index"`
	IsPaid            bool   `gorm:"not null;default:false"`
	PostingDate       time.Time
	Currency          string          `gorm:"type:varchar(10)"`
	PaidAmount        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	OutstandingAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CashBankAccountID *uuid.UUID      `gorm:"type:uuid;index"`
	CreditToID        *uuid.UUID      `gorm:"type:uuid;index"`
	ClearanceDate     *time.Time      `gorm:"index"`
	Docstatus         int             `gorm:"not null;default:0;index"`
	Company           string          `gorm:"type:varchar(200)"`
}

// TableName returns the table name for GORM
func (PurchaseInvoice) TableName() string {
	return "purchase_invoices"
}

// LoanDisbursement is an outflow voucher
type LoanDisbursement struct {
	shared.BaseEntity
	DisbursedAmount       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ReferenceNumber       string          `gorm:"type:varchar(140);index"`
	ReferenceDate         *time.Time
	ApplicantType         string `gorm:"type:varchar(40)"`
	Applicant             string `gorm:"type:varchar(200)"`
	DisbursementDate      time.Time
	DisbursementAccountID uuid.UUID  `gorm:"type:uuid;not null;index"`
	ClearanceDate         *time.Time `gorm:"index"`
	Docstatus             int        `gorm:"not null;default:0;index"`
}

// TableName returns the table name for GORM
func (LoanDisbursement) TableName() string {
	return "loan_disbursements"
}

// LoanRepayment is an inflow voucher
type LoanRepayment struct {
	shared.BaseEntity
	AmountPaid       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ReferenceNumber  string          `gorm:"type:varchar(140);index"`
	ReferenceDate    *time.Time
	ApplicantType    string `gorm:"type:varchar(40)"`
	Applicant        string `gorm:"type:varchar(200)"`
	PostingDate      time.Time
	PaymentAccountID uuid.UUID  `gorm:"type:uuid;not null;index"`
	RepayFromSalary  bool       `gorm:"not null;default:false"`
	ClearanceDate    *time.Time `gorm:"index"`
	Docstatus        int        `gorm:"not null;default:0;index"`
}

// TableName returns the table name for GORM
func (LoanRepayment) TableName() string {
	return "loan_repayments"
}
