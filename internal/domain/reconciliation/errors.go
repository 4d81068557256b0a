package reconciliation

import "github.com/erp/bankrec/internal/domain/shared"

// Errors surfaced by the reconciliation core
var (
	ErrNoLedgerAccount  = shared.NewDomainError("CONFIGURATION", "Bank account is not linked to a ledger account")
	ErrTransactionGone  = shared.NewDomainError("NOT_FOUND", "Bank transaction not found")
	ErrBankAccountGone  = shared.NewDomainError("NOT_FOUND", "Bank account not found")
	ErrUnsupportedFile  = shared.NewDomainError("VALIDATION", "Import file should be of type .csv, .xlsx or .xls")
	ErrMissingFieldMap  = shared.NewDomainError("CONFIGURATION", "Bank account has no statement field mapping")
	ErrDuplicateLegSkip = shared.NewDomainError("AMBIGUOUS_STATE", "Journal entry references the same account on two legs")
)
