package persistence

import (
	"context"
	"time"

	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// candidateRow is the scan target shared by every candidate query. Queries
// alias their columns to these names.
type candidateRow struct {
	MatchRank     int
	VoucherID     uuid.UUID
	Amount        decimal.Decimal
	ReferenceNo   string
	ReferenceDate *time.Time
	Party         string
	PartyType     string
	PostingDate   time.Time
	Currency      string
}

func toCandidates(vt reconciliation.VoucherType, rows []candidateRow) []reconciliation.Candidate {
	candidates := make([]reconciliation.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, reconciliation.Candidate{
			Rank:          row.MatchRank,
			VoucherType:   vt,
			VoucherID:     row.VoucherID,
			Amount:        row.Amount,
			ReferenceNo:   row.ReferenceNo,
			ReferenceDate: row.ReferenceDate,
			Party:         row.Party,
			PartyType:     row.PartyType,
			PostingDate:   row.PostingDate,
			Currency:      row.Currency,
		})
	}
	return candidates
}

// matchArgs binds every value a candidate query can reference. All queries use
// named placeholders; transaction attributes never reach the SQL as text.
func matchArgs(mc reconciliation.MatchContext) map[string]interface{} {
	dirSign := 1
	if mc.Direction() == reconciliation.DirectionWithdrawal {
		dirSign = -1
	}
	return map[string]interface{}{
		"account":      mc.LedgerAccountID,
		"transaction":  mc.TransactionID,
		"bank_account": mc.BankAccountID,
		"company":      mc.Company,
		"amount":       mc.UnallocatedAmount,
		"reference":    mc.ReferenceNumber,
		"party":        mc.Party,
		"party_type":   mc.PartyType,
		"dir_sign":     dirSign,
	}
}

// dateWindowClause appends a posting-date or reference-date window. Column
// names are fixed per query; only the bounds are bound parameters.
func dateWindowClause(opts reconciliation.MatchOptions, postingCol, refCol string, args map[string]interface{}) string {
	w := opts.Window
	if w == nil {
		return ""
	}
	col := postingCol
	if w.ByReference && refCol != "" {
		col = refCol
	}
	args["window_from"] = w.From
	args["window_to"] = w.To
	return " AND " + col + " BETWEEN @window_from AND @window_to"
}

// PaymentEntryProvider finds submitted, uncleared payment entries on the
// transaction's ledger account. Deposits match Receive entries paid into the
// account, withdrawals match Pay entries paid out of it; internal transfers
// match from either side. The 0.01 tolerance absorbs rounding of
// multi-currency amounts.
type PaymentEntryProvider struct {
	db *gorm.DB
}

// NewPaymentEntryProvider creates a new PaymentEntryProvider
func NewPaymentEntryProvider(db *gorm.DB) *PaymentEntryProvider {
	return &PaymentEntryProvider{db: db}
}

// VoucherType returns the voucher type this provider serves
func (p *PaymentEntryProvider) VoucherType() reconciliation.VoucherType {
	return reconciliation.VoucherTypePaymentEntry
}

const paymentEntryQuery = `
SELECT
	1
	+ CASE WHEN pe.reference_no = @reference THEN 1 ELSE 0 END
	+ CASE WHEN pe.party_type = @party_type AND pe.party = @party THEN 1 ELSE 0 END
	+ CASE WHEN ABS(pe.paid_amount - @amount) <= 0.01 THEN 1 ELSE 0 END AS match_rank,
	pe.id AS voucher_id,
	pe.paid_amount AS amount,
	pe.reference_no AS reference_no,
	pe.reference_date AS reference_date,
	pe.party AS party,
	pe.party_type AS party_type,
	pe.posting_date AS posting_date,
	CASE WHEN @dir_sign = 1 THEN pe.paid_to_currency ELSE pe.paid_from_currency END AS currency
FROM payment_entries pe
WHERE pe.docstatus = 1
	AND pe.clearance_date IS NULL
	AND pe.paid_amount > 0
	AND (
		(@dir_sign = 1 AND pe.payment_type IN ('Receive', 'Internal Transfer') AND pe.paid_to_id = @account)
		OR
		(@dir_sign = -1 AND pe.payment_type IN ('Pay', 'Internal Transfer') AND pe.paid_from_id = @account)
	)`

// FindCandidates returns ranked payment-entry candidates
func (p *PaymentEntryProvider) FindCandidates(ctx context.Context, mc reconciliation.MatchContext, opts reconciliation.MatchOptions) ([]reconciliation.Candidate, error) {
	args := matchArgs(mc)
	query := paymentEntryQuery
	if opts.ExactMatch {
		query += " AND ABS(pe.paid_amount - @amount) <= 0.01"
	}
	if opts.RequireReference {
		query += " AND pe.reference_no = @reference"
	}
	query += dateWindowClause(opts, "pe.posting_date", "pe.reference_date", args)
	query += " ORDER BY pe.posting_date ASC"

	var rows []candidateRow
	if err := p.db.WithContext(ctx).Raw(query, args).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toCandidates(reconciliation.VoucherTypePaymentEntry, rows), nil
}

// JournalEntryProvider finds submitted, uncleared journal entries with a leg
// on the transaction's ledger account. A deposit matches a leg debiting the
// account, a withdrawal a leg crediting it. Opening entries never match.
type JournalEntryProvider struct {
	db *gorm.DB
}

// NewJournalEntryProvider creates a new JournalEntryProvider
func NewJournalEntryProvider(db *gorm.DB) *JournalEntryProvider {
	return &JournalEntryProvider{db: db}
}

// VoucherType returns the voucher type this provider serves
func (p *JournalEntryProvider) VoucherType() reconciliation.VoucherType {
	return reconciliation.VoucherTypeJournalEntry
}

const journalEntryQuery = `
SELECT
	1
	+ CASE WHEN je.cheque_no = @reference THEN 1 ELSE 0 END
	+ CASE WHEN (CASE WHEN @dir_sign = 1 THEN jea.debit_in_account_currency ELSE jea.credit_in_account_currency END) = @amount THEN 1 ELSE 0 END AS match_rank,
	je.id AS voucher_id,
	CASE WHEN @dir_sign = 1 THEN jea.debit_in_account_currency ELSE jea.credit_in_account_currency END AS amount,
	je.cheque_no AS reference_no,
	je.cheque_date AS reference_date,
	je.pay_to_recd_from AS party,
	jea.party_type AS party_type,
	je.posting_date AS posting_date,
	jea.account_currency AS currency
FROM journal_entries je
JOIN journal_entry_accounts jea ON jea.journal_entry_id = je.id
WHERE je.docstatus = 1
	AND je.clearance_date IS NULL
	AND je.entry_type <> 'Opening Entry'
	AND jea.account_id = @account
	AND (CASE WHEN @dir_sign = 1 THEN jea.debit_in_account_currency ELSE jea.credit_in_account_currency END) > 0`

// FindCandidates returns ranked journal-entry candidates
func (p *JournalEntryProvider) FindCandidates(ctx context.Context, mc reconciliation.MatchContext, opts reconciliation.MatchOptions) ([]reconciliation.Candidate, error) {
	args := matchArgs(mc)
	query := journalEntryQuery
	if opts.ExactMatch {
		query += " AND (CASE WHEN @dir_sign = 1 THEN jea.debit_in_account_currency ELSE jea.credit_in_account_currency END) = @amount"
	}
	if opts.RequireReference {
		query += " AND je.cheque_no = @reference"
	}
	query += dateWindowClause(opts, "je.posting_date", "je.cheque_date", args)
	query += " ORDER BY je.posting_date ASC"

	var rows []candidateRow
	if err := p.db.WithContext(ctx).Raw(query, args).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toCandidates(reconciliation.VoucherTypeJournalEntry, rows), nil
}

// SiblingTransactionProvider proposes other bank transactions of the opposite
// direction on the same bank account, so an internal transfer between two
// statements can settle both sides. The candidate amount is the sibling's
// remaining unallocated amount.
type SiblingTransactionProvider struct {
	db *gorm.DB
}

// NewSiblingTransactionProvider creates a new SiblingTransactionProvider
func NewSiblingTransactionProvider(db *gorm.DB) *SiblingTransactionProvider {
	return &SiblingTransactionProvider{db: db}
}

// VoucherType returns the voucher type this provider serves
func (p *SiblingTransactionProvider) VoucherType() reconciliation.VoucherType {
	return reconciliation.VoucherTypeBankTransaction
}

// The opposite-direction column cannot be a bound parameter, so the query
// exists in a deposit and a withdrawal variant.
const siblingDepositQuery = `
SELECT
	1
	+ CASE WHEN bt.reference_number = @reference THEN 1 ELSE 0 END
	+ CASE WHEN bt.party_type = @party_type AND bt.party = @party THEN 1 ELSE 0 END
	+ CASE WHEN bt.withdrawal = @amount THEN 1 ELSE 0 END
	+ CASE WHEN bt.unallocated_amount = @amount THEN 1 ELSE 0 END AS match_rank,
	bt.id AS voucher_id,
	bt.unallocated_amount AS amount,
	bt.reference_number AS reference_no,
	NULL AS reference_date,
	bt.party AS party,
	bt.party_type AS party_type,
	bt.date AS posting_date,
	bt.currency AS currency
FROM bank_transactions bt
WHERE bt.docstatus = 1
	AND bt.status <> 'Reconciled'
	AND bt.id <> @transaction
	AND bt.bank_account_id = @bank_account
	AND bt.withdrawal > 0`

const siblingWithdrawalQuery = `
SELECT
	1
	+ CASE WHEN bt.reference_number = @reference THEN 1 ELSE 0 END
	+ CASE WHEN bt.party_type = @party_type AND bt.party = @party THEN 1 ELSE 0 END
	+ CASE WHEN bt.deposit = @amount THEN 1 ELSE 0 END
	+ CASE WHEN bt.unallocated_amount = @amount THEN 1 ELSE 0 END AS match_rank,
	bt.id AS voucher_id,
	bt.unallocated_amount AS amount,
	bt.reference_number AS reference_no,
	NULL AS reference_date,
	bt.party AS party,
	bt.party_type AS party_type,
	bt.date AS posting_date,
	bt.currency AS currency
FROM bank_transactions bt
WHERE bt.docstatus = 1
	AND bt.status <> 'Reconciled'
	AND bt.id <> @transaction
	AND bt.bank_account_id = @bank_account
	AND bt.deposit > 0`

// FindCandidates returns ranked sibling-transaction candidates
func (p *SiblingTransactionProvider) FindCandidates(ctx context.Context, mc reconciliation.MatchContext, opts reconciliation.MatchOptions) ([]reconciliation.Candidate, error) {
	args := matchArgs(mc)
	query := siblingDepositQuery
	if mc.Direction() == reconciliation.DirectionWithdrawal {
		query = siblingWithdrawalQuery
	}
	if opts.ExactMatch {
		query += " AND bt.unallocated_amount = @amount"
	}
	if opts.RequireReference {
		query += " AND bt.reference_number = @reference"
	}
	query += dateWindowClause(opts, "bt.date", "", args)
	query += " ORDER BY bt.date ASC"

	var rows []candidateRow
	if err := p.db.WithContext(ctx).Raw(query, args).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toCandidates(reconciliation.VoucherTypeBankTransaction, rows), nil
}
