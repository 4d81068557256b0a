package persistence

import (
	"context"

	"github.com/erp/bankrec/internal/domain/reconciliation"
	"gorm.io/gorm"
)

// SalesInvoiceProvider finds submitted sales invoices with an unsettled POS
// payment line on the transaction's ledger account. Deposits only.
type SalesInvoiceProvider struct {
	db *gorm.DB
}

// NewSalesInvoiceProvider creates a new SalesInvoiceProvider
func NewSalesInvoiceProvider(db *gorm.DB) *SalesInvoiceProvider {
	return &SalesInvoiceProvider{db: db}
}

// VoucherType returns the voucher type this provider serves
func (p *SalesInvoiceProvider) VoucherType() reconciliation.VoucherType {
	return reconciliation.VoucherTypeSalesInvoice
}

const salesInvoiceQuery = `
SELECT
	1
	+ CASE WHEN si.customer = @party THEN 1 ELSE 0 END
	+ CASE WHEN sip.amount = @amount THEN 1 ELSE 0 END AS match_rank,
	si.id AS voucher_id,
	sip.amount AS amount,
	'' AS reference_no,
	NULL AS reference_date,
	si.customer AS party,
	'Customer' AS party_type,
	si.posting_date AS posting_date,
	si.currency AS currency
FROM sales_invoices si
JOIN sales_invoice_payments sip ON sip.sales_invoice_id = si.id
WHERE si.docstatus = 1
	AND sip.clearance_date IS NULL
	AND sip.account_id = @account
	AND sip.amount > 0`

// FindCandidates returns ranked sales-invoice candidates
func (p *SalesInvoiceProvider) FindCandidates(ctx context.Context, mc reconciliation.MatchContext, opts reconciliation.MatchOptions) ([]reconciliation.Candidate, error) {
	if mc.Direction() != reconciliation.DirectionDeposit {
		return nil, nil
	}
	args := matchArgs(mc)
	query := salesInvoiceQuery
	if opts.ExactMatch {
		query += " AND sip.amount = @amount"
	}
	query += dateWindowClause(opts, "si.posting_date", "", args)
	query += " ORDER BY si.posting_date ASC"

	var rows []candidateRow
	if err := p.db.WithContext(ctx).Raw(query, args).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toCandidates(reconciliation.VoucherTypeSalesInvoice, rows), nil
}

// PurchaseInvoiceProvider finds submitted purchase invoices paid directly from
// the transaction's ledger account and not yet cleared. Withdrawals only.
type PurchaseInvoiceProvider struct {
	db *gorm.DB
}

// NewPurchaseInvoiceProvider creates a new PurchaseInvoiceProvider
func NewPurchaseInvoiceProvider(db *gorm.DB) *PurchaseInvoiceProvider {
	return &PurchaseInvoiceProvider{db: db}
}

// VoucherType returns the voucher type this provider serves
func (p *PurchaseInvoiceProvider) VoucherType() reconciliation.VoucherType {
	return reconciliation.VoucherTypePurchaseInvoice
}

const purchaseInvoiceQuery = `
SELECT
	1
	+ CASE WHEN pi.supplier = @party THEN 1 ELSE 0 END
	+ CASE WHEN pi.paid_amount = @amount THEN 1 ELSE 0 END AS match_rank,
	pi.id AS voucher_id,
	pi.paid_amount AS amount,
	'' AS reference_no,
	NULL AS reference_date,
	pi.supplier AS party,
	'Supplier' AS party_type,
	pi.posting_date AS posting_date,
	pi.currency AS currency
FROM purchase_invoices pi
WHERE pi.docstatus = 1
	AND pi.is_paid = @paid
	AND pi.clearance_date IS NULL
	AND pi.cash_bank_account_id = @account
	AND pi.paid_amount > 0`

// FindCandidates returns ranked purchase-invoice candidates
func (p *PurchaseInvoiceProvider) FindCandidates(ctx context.Context, mc reconciliation.MatchContext, opts reconciliation.MatchOptions) ([]reconciliation.Candidate, error) {
	if mc.Direction() != reconciliation.DirectionWithdrawal {
		return nil, nil
	}
	args := matchArgs(mc)
	args["paid"] = true
	query := purchaseInvoiceQuery
	if opts.ExactMatch {
		query += " AND pi.paid_amount = @amount"
	}
	query += dateWindowClause(opts, "pi.posting_date", "", args)
	query += " ORDER BY pi.posting_date ASC"

	var rows []candidateRow
	if err := p.db.WithContext(ctx).Raw(query, args).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toCandidates(reconciliation.VoucherTypePurchaseInvoice, rows), nil
}

// UnpaidSalesInvoiceProvider proposes open receivables of the company so a
// deposit can be reconciled by creating a payment against the invoice.
// Deposits only; the candidate amount is the outstanding amount.
type UnpaidSalesInvoiceProvider struct {
	db *gorm.DB
}

// NewUnpaidSalesInvoiceProvider creates a new UnpaidSalesInvoiceProvider
func NewUnpaidSalesInvoiceProvider(db *gorm.DB) *UnpaidSalesInvoiceProvider {
	return &UnpaidSalesInvoiceProvider{db: db}
}

// VoucherType returns the voucher type this provider serves
func (p *UnpaidSalesInvoiceProvider) VoucherType() reconciliation.VoucherType {
	return reconciliation.VoucherTypeUnpaidSalesInvoice
}

const unpaidSalesInvoiceQuery = `
SELECT
	1
	+ CASE WHEN si.customer = @party THEN 1 ELSE 0 END
	+ CASE WHEN si.outstanding_amount = @amount THEN 1 ELSE 0 END AS match_rank,
	si.id AS voucher_id,
	si.outstanding_amount AS amount,
	'' AS reference_no,
	NULL AS reference_date,
	si.customer AS party,
	'Customer' AS party_type,
	si.posting_date AS posting_date,
	si.currency AS currency
FROM sales_invoices si
WHERE si.docstatus = 1
	AND si.outstanding_amount > 0
	AND si.company = @company`

// FindCandidates returns ranked unpaid sales-invoice candidates
func (p *UnpaidSalesInvoiceProvider) FindCandidates(ctx context.Context, mc reconciliation.MatchContext, opts reconciliation.MatchOptions) ([]reconciliation.Candidate, error) {
	if mc.Direction() != reconciliation.DirectionDeposit {
		return nil, nil
	}
	args := matchArgs(mc)
	query := unpaidSalesInvoiceQuery
	if opts.ExactMatch {
		query += " AND si.outstanding_amount = @amount"
	}
	query += dateWindowClause(opts, "si.posting_date", "", args)
	query += " ORDER BY si.posting_date ASC"

	var rows []candidateRow
	if err := p.db.WithContext(ctx).Raw(query, args).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toCandidates(reconciliation.VoucherTypeUnpaidSalesInvoice, rows), nil
}

// UnpaidPurchaseInvoiceProvider proposes open payables of the company.
// Withdrawals only.
type UnpaidPurchaseInvoiceProvider struct {
	db *gorm.DB
}

// NewUnpaidPurchaseInvoiceProvider creates a new UnpaidPurchaseInvoiceProvider
func NewUnpaidPurchaseInvoiceProvider(db *gorm.DB) *UnpaidPurchaseInvoiceProvider {
	return &UnpaidPurchaseInvoiceProvider{db: db}
}

// VoucherType returns the voucher type this provider serves
func (p *UnpaidPurchaseInvoiceProvider) VoucherType() reconciliation.VoucherType {
	return reconciliation.VoucherTypeUnpaidPurchaseInvoice
}

const unpaidPurchaseInvoiceQuery = `
SELECT
	1
	+ CASE WHEN pi.supplier = @party THEN 1 ELSE 0 END
	+ CASE WHEN pi.outstanding_amount = @amount THEN 1 ELSE 0 END AS match_rank,
	pi.id AS voucher_id,
	pi.outstanding_amount AS amount,
	'' AS reference_no,
	NULL AS reference_date,
	pi.supplier AS party,
	'Supplier' AS party_type,
	pi.posting_date AS posting_date,
	pi.currency AS currency
FROM purchase_invoices pi
WHERE pi.docstatus = 1
	AND pi.outstanding_amount > 0
	AND pi.company = @company`

// FindCandidates returns ranked unpaid purchase-invoice candidates
func (p *UnpaidPurchaseInvoiceProvider) FindCandidates(ctx context.Context, mc reconciliation.MatchContext, opts reconciliation.MatchOptions) ([]reconciliation.Candidate, error) {
	if mc.Direction() != reconciliation.DirectionWithdrawal {
		return nil, nil
	}
	args := matchArgs(mc)
	query := unpaidPurchaseInvoiceQuery
	if opts.ExactMatch {
		query += " AND pi.outstanding_amount = @amount"
	}
	query += dateWindowClause(opts, "pi.posting_date", "", args)
	query += " ORDER BY pi.posting_date ASC"

	var rows []candidateRow
	if err := p.db.WithContext(ctx).Raw(query, args).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toCandidates(reconciliation.VoucherTypeUnpaidPurchaseInvoice, rows), nil
}

// LoanDisbursementProvider finds submitted, uncleared loan disbursements paid
// out of the transaction's ledger account. Withdrawals only.
type LoanDisbursementProvider struct {
	db *gorm.DB
}

// NewLoanDisbursementProvider creates a new LoanDisbursementProvider
func NewLoanDisbursementProvider(db *gorm.DB) *LoanDisbursementProvider {
	return &LoanDisbursementProvider{db: db}
}

// VoucherType returns the voucher type this provider serves
func (p *LoanDisbursementProvider) VoucherType() reconciliation.VoucherType {
	return reconciliation.VoucherTypeLoanDisbursement
}

const loanDisbursementQuery = `
SELECT
	1
	+ CASE WHEN ld.reference_number = @reference THEN 1 ELSE 0 END
	+ CASE WHEN ld.applicant_type = @party_type AND ld.applicant = @party THEN 1 ELSE 0 END
	+ CASE WHEN ld.disbursed_amount = @amount THEN 1 ELSE 0 END AS match_rank,
	ld.id AS voucher_id,
	ld.disbursed_amount AS amount,
	ld.reference_number AS reference_no,
	ld.reference_date AS reference_date,
	ld.applicant AS party,
	ld.applicant_type AS party_type,
	ld.disbursement_date AS posting_date,
	'' AS currency
FROM loan_disbursements ld
WHERE ld.docstatus = 1
	AND ld.clearance_date IS NULL
	AND ld.disbursement_account_id = @account
	AND ld.disbursed_amount > 0`

// FindCandidates returns ranked loan-disbursement candidates
func (p *LoanDisbursementProvider) FindCandidates(ctx context.Context, mc reconciliation.MatchContext, opts reconciliation.MatchOptions) ([]reconciliation.Candidate, error) {
	if mc.Direction() != reconciliation.DirectionWithdrawal {
		return nil, nil
	}
	args := matchArgs(mc)
	query := loanDisbursementQuery
	if opts.ExactMatch {
		query += " AND ld.disbursed_amount = @amount"
	}
	if opts.RequireReference {
		query += " AND ld.reference_number = @reference"
	}
	query += dateWindowClause(opts, "ld.disbursement_date", "ld.reference_date", args)
	query += " ORDER BY ld.disbursement_date ASC"

	var rows []candidateRow
	if err := p.db.WithContext(ctx).Raw(query, args).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toCandidates(reconciliation.VoucherTypeLoanDisbursement, rows), nil
}

// LoanRepaymentProvider finds submitted, uncleared loan repayments received
// into the transaction's ledger account. Repayments deducted from salary never
// hit the bank and are excluded. Deposits only.
type LoanRepaymentProvider struct {
	db *gorm.DB
}

// NewLoanRepaymentProvider creates a new LoanRepaymentProvider
func NewLoanRepaymentProvider(db *gorm.DB) *LoanRepaymentProvider {
	return &LoanRepaymentProvider{db: db}
}

// VoucherType returns the voucher type this provider serves
func (p *LoanRepaymentProvider) VoucherType() reconciliation.VoucherType {
	return reconciliation.VoucherTypeLoanRepayment
}

const loanRepaymentQuery = `
SELECT
	1
	+ CASE WHEN lr.reference_number = @reference THEN 1 ELSE 0 END
	+ CASE WHEN lr.applicant_type = @party_type AND lr.applicant = @party THEN 1 ELSE 0 END
	+ CASE WHEN lr.amount_paid = @amount THEN 1 ELSE 0 END AS match_rank,
	lr.id AS voucher_id,
	lr.amount_paid AS amount,
	lr.reference_number AS reference_no,
	lr.reference_date AS reference_date,
	lr.applicant AS party,
	lr.applicant_type AS party_type,
	lr.posting_date AS posting_date,
	'' AS currency
FROM loan_repayments lr
WHERE lr.docstatus = 1
	AND lr.clearance_date IS NULL
	AND lr.payment_account_id = @account
	AND lr.repay_from_salary = @from_salary
	AND lr.amount_paid > 0`

// FindCandidates returns ranked loan-repayment candidates
func (p *LoanRepaymentProvider) FindCandidates(ctx context.Context, mc reconciliation.MatchContext, opts reconciliation.MatchOptions) ([]reconciliation.Candidate, error) {
	if mc.Direction() != reconciliation.DirectionDeposit {
		return nil, nil
	}
	args := matchArgs(mc)
	args["from_salary"] = false
	query := loanRepaymentQuery
	if opts.ExactMatch {
		query += " AND lr.amount_paid = @amount"
	}
	if opts.RequireReference {
		query += " AND lr.reference_number = @reference"
	}
	query += dateWindowClause(opts, "lr.posting_date", "lr.reference_date", args)
	query += " ORDER BY lr.posting_date ASC"

	var rows []candidateRow
	if err := p.db.WithContext(ctx).Raw(query, args).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toCandidates(reconciliation.VoucherTypeLoanRepayment, rows), nil
}
