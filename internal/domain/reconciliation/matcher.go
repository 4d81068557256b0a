package reconciliation

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Candidate is a ranked voucher proposal for a bank transaction. Candidates
// are ephemeral: recomputed on every match request, never persisted.
// Amount is signed relative to the transaction: positive when the voucher
// would satisfy the transaction, negative when it opposes it.
type Candidate struct {
	Rank          int             `json:"rank"`
	VoucherType   VoucherType     `json:"voucher_type"`
	VoucherID     uuid.UUID       `json:"voucher_id"`
	Amount        decimal.Decimal `json:"amount"`
	ReferenceNo   string          `json:"reference_no"`
	ReferenceDate *time.Time      `json:"reference_date,omitempty"`
	Party         string          `json:"party"`
	PartyType     string          `json:"party_type"`
	PostingDate   time.Time       `json:"posting_date"`
	Currency      string          `json:"currency"`
}

// Ref returns the voucher reference of the candidate
func (c *Candidate) Ref() VoucherRef {
	return VoucherRef{Type: c.VoucherType, ID: c.VoucherID}
}

// MatchContext carries the bank-transaction attributes a candidate query
// needs. LedgerAccountID is the ledger account linked to the transaction's
// bank account.
type MatchContext struct {
	TransactionID     uuid.UUID
	BankAccountID     uuid.UUID
	LedgerAccountID   uuid.UUID
	Company           string
	Deposit           decimal.Decimal
	Withdrawal        decimal.Decimal
	UnallocatedAmount decimal.Decimal
	ReferenceNumber   string
	PartyType         string
	Party             string
}

// Direction returns the cash-flow direction of the transaction being matched
func (mc *MatchContext) Direction() Direction {
	if mc.Deposit.IsPositive() {
		return DirectionDeposit
	}
	return DirectionWithdrawal
}

// DateWindow restricts candidates to a date range. When ByReference is set
// the window applies to the voucher's reference/cheque date and the
// posting-date window is disabled, and vice versa.
type DateWindow struct {
	From        time.Time
	To          time.Time
	ByReference bool
}

// MatchOptions controls a candidate search
type MatchOptions struct {
	VoucherTypes []VoucherType
	Window       *DateWindow
	// ExactMatch requires amount equality as a hard filter instead of a
	// scoring bonus.
	ExactMatch bool
	// RequireReference additionally filters candidates to those whose
	// reference number equals the transaction's. Used by auto-reconcile
	// instead of a process-wide flag.
	RequireReference bool
}

// WantsType reports whether a voucher type was requested
func (o *MatchOptions) WantsType(t VoucherType) bool {
	for _, vt := range o.VoucherTypes {
		if vt == t {
			return true
		}
	}
	return false
}

// CandidateProvider produces ranked candidates of one voucher type for a
// bank transaction. Implementations self-filter by transaction direction and
// return no candidates when the direction is ineligible.
type CandidateProvider interface {
	VoucherType() VoucherType
	FindCandidates(ctx context.Context, mc MatchContext, opts MatchOptions) ([]Candidate, error)
}

// AllocationLookup resolves amounts already allocated to vouchers from other
// bank transactions against a given ledger account.
type AllocationLookup interface {
	AllocatedElsewhere(ctx context.Context, ledgerAccountID, excludeTransactionID uuid.UUID, refs []VoucherRef) (map[VoucherRef]decimal.Decimal, error)
}

// MatchingEngine aggregates candidate providers, subtracts prior
// allocations and returns one globally ranked candidate list.
// Providers are collected at startup in registration order; external modules
// contribute additional matching strategies by registering a provider.
type MatchingEngine struct {
	providers   []CandidateProvider
	allocations AllocationLookup
	logger      *zap.Logger
}

// NewMatchingEngine creates a matching engine over an ordered provider list
func NewMatchingEngine(allocations AllocationLookup, logger *zap.Logger, providers ...CandidateProvider) *MatchingEngine {
	return &MatchingEngine{
		providers:   providers,
		allocations: allocations,
		logger:      logger,
	}
}

// Register appends a provider to the registry
func (e *MatchingEngine) Register(p CandidateProvider) {
	e.providers = append(e.providers, p)
}

// FindCandidates returns the combined candidate list for the transaction,
// sorted by rank descending. Requested voucher types with no registered
// provider are skipped. Prior allocations from other bank transactions
// against the same ledger account are subtracted from each candidate's
// amount so a partially allocated voucher is not proposed at full value.
func (e *MatchingEngine) FindCandidates(ctx context.Context, mc MatchContext, opts MatchOptions) ([]Candidate, error) {
	if mc.LedgerAccountID == uuid.Nil {
		return nil, ErrNoLedgerAccount
	}

	candidates := make([]Candidate, 0)
	for _, p := range e.providers {
		if !opts.WantsType(p.VoucherType()) {
			continue
		}
		found, err := p.FindCandidates(ctx, mc, opts)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, found...)
	}

	if len(candidates) == 0 {
		return candidates, nil
	}

	if err := e.subtractAllocations(ctx, mc, candidates); err != nil {
		return nil, err
	}

	// Stable sort keeps each provider's own secondary order within equal
	// ranks.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Rank > candidates[j].Rank
	})
	return candidates, nil
}

func (e *MatchingEngine) subtractAllocations(ctx context.Context, mc MatchContext, candidates []Candidate) error {
	refs := make([]VoucherRef, 0, len(candidates))
	for i := range candidates {
		refs = append(refs, candidates[i].Ref())
	}

	allocated, err := e.allocations.AllocatedElsewhere(ctx, mc.LedgerAccountID, mc.TransactionID, refs)
	if err != nil {
		return err
	}

	for i := range candidates {
		if prior, ok := allocated[candidates[i].Ref()]; ok && !prior.IsZero() {
			candidates[i].Amount = candidates[i].Amount.Sub(prior)
			e.logger.Debug("subtracted prior allocation",
				zap.String("voucher_type", string(candidates[i].VoucherType)),
				zap.String("voucher_id", candidates[i].VoucherID.String()),
				zap.String("prior", prior.String()))
		}
	}
	return nil
}
