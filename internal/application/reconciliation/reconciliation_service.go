package reconciliation

import (
	"context"
	"time"

	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/erp/bankrec/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReconciliationService coordinates voucher matching and allocation for bank
// transactions. Every allocation change flows through here so clearance
// re-evaluation happens exactly once per commit.
type ReconciliationService struct {
	txRepo          reconciliation.BankTransactionRepository
	bankAccountRepo reconciliation.BankAccountRepository
	engine          *reconciliation.MatchingEngine
	clearance       *ClearanceService
	logger          *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	txRepo reconciliation.BankTransactionRepository,
	bankAccountRepo reconciliation.BankAccountRepository,
	engine *reconciliation.MatchingEngine,
	clearance *ClearanceService,
	logger *zap.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		txRepo:          txRepo,
		bankAccountRepo: bankAccountRepo,
		engine:          engine,
		clearance:       clearance,
		logger:          logger,
	}
}

// ListTransactionsRequest filters the bank-transaction listing
type ListTransactionsRequest struct {
	BankAccountID uuid.UUID  `json:"bank_account_id" binding:"required"`
	FromDate      *time.Time `json:"from_date"`
	ToDate        *time.Time `json:"to_date"`
	Reconciled    bool       `json:"reconciled"`
	Limit         int        `json:"limit"`
}

// GetBankTransactions lists submitted transactions of a bank account, either
// the ones still carrying an unallocated amount or the fully reconciled ones.
func (s *ReconciliationService) GetBankTransactions(ctx context.Context, req ListTransactionsRequest) ([]reconciliation.BankTransaction, error) {
	if _, err := s.bankAccountRepo.FindByID(ctx, req.BankAccountID); err != nil {
		return nil, err
	}

	filter := reconciliation.BankTransactionFilter{
		BankAccountID: req.BankAccountID,
		FromDate:      req.FromDate,
		ToDate:        req.ToDate,
		Limit:         req.Limit,
	}
	if req.Reconciled {
		return s.txRepo.FindReconciled(ctx, filter)
	}
	return s.txRepo.FindUnreconciled(ctx, filter)
}

// LinkedPaymentsRequest asks for ranked voucher candidates for one transaction
type LinkedPaymentsRequest struct {
	TransactionID    uuid.UUID                 `json:"transaction_id" binding:"required"`
	VoucherTypes     []reconciliation.VoucherType `json:"voucher_types" binding:"required"`
	FromDate         *time.Time                `json:"from_date"`
	ToDate           *time.Time                `json:"to_date"`
	FilterByRefDate  bool                      `json:"filter_by_reference_date"`
	ExactMatch       bool                      `json:"exact_match"`
	RequireReference bool                      `json:"require_reference"`
}

// GetLinkedPayments resolves the transaction's ledger account, builds the
// match context and runs the candidate providers.
func (s *ReconciliationService) GetLinkedPayments(ctx context.Context, req LinkedPaymentsRequest) ([]reconciliation.Candidate, error) {
	if len(req.VoucherTypes) == 0 {
		return nil, shared.NewDomainError("VALIDATION", "At least one voucher type is required")
	}

	tx, err := s.txRepo.FindByID(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}

	mc, err := s.matchContext(ctx, tx)
	if err != nil {
		return nil, err
	}

	opts := reconciliation.MatchOptions{
		VoucherTypes:     req.VoucherTypes,
		ExactMatch:       req.ExactMatch,
		RequireReference: req.RequireReference,
	}
	if req.FromDate != nil && req.ToDate != nil {
		opts.Window = &reconciliation.DateWindow{
			From:        *req.FromDate,
			To:          *req.ToDate,
			ByReference: req.FilterByRefDate,
		}
	}

	return s.engine.FindCandidates(ctx, mc, opts)
}

// VoucherAllocationRequest names one voucher and the amount to allocate
type VoucherAllocationRequest struct {
	VoucherType reconciliation.VoucherType `json:"voucher_type" binding:"required"`
	VoucherID   uuid.UUID                  `json:"voucher_id" binding:"required"`
	Amount      decimal.Decimal            `json:"amount" binding:"required"`
}

// ReconcileRequest allocates vouchers against a transaction
type ReconcileRequest struct {
	TransactionID uuid.UUID                  `json:"transaction_id" binding:"required"`
	Vouchers      []VoucherAllocationRequest `json:"vouchers" binding:"required"`
}

// ReconcileVouchers records the allocations on the transaction, saves it and
// re-evaluates voucher clearance once. Vouchers already allocated are skipped.
func (s *ReconciliationService) ReconcileVouchers(ctx context.Context, req ReconcileRequest) (*reconciliation.BankTransaction, error) {
	if len(req.Vouchers) == 0 {
		return nil, shared.NewDomainError("VALIDATION", "At least one voucher is required")
	}

	tx, err := s.txRepo.FindByID(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}

	allocations := make([]reconciliation.VoucherAllocation, 0, len(req.Vouchers))
	for _, v := range req.Vouchers {
		if !v.Amount.IsPositive() {
			return nil, shared.NewDomainError("VALIDATION", "Allocated amount must be positive")
		}
		allocations = append(allocations, reconciliation.VoucherAllocation{
			Ref:    reconciliation.VoucherRef{Type: v.VoucherType, ID: v.VoucherID},
			Amount: v.Amount,
		})
	}

	added, err := tx.AddAllocations(allocations)
	if err != nil {
		return nil, err
	}
	if len(added) == 0 {
		return tx, nil
	}

	if err := s.txRepo.Save(ctx, tx); err != nil {
		return nil, err
	}

	if err := s.clearance.ValidateTransaction(ctx, tx.ID); err != nil {
		s.logger.Error("clearance evaluation after reconcile failed",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err))
	}

	s.logger.Info("vouchers reconciled",
		zap.String("transaction_id", tx.ID.String()),
		zap.Int("allocated", len(added)),
		zap.String("unallocated_amount", tx.UnallocatedAmount.String()))
	return tx, nil
}

// RemoveAllocationsRequest detaches vouchers from a transaction
type RemoveAllocationsRequest struct {
	TransactionID uuid.UUID                    `json:"transaction_id" binding:"required"`
	Vouchers      []reconciliation.VoucherRef  `json:"vouchers" binding:"required"`
}

// RemoveAllocations detaches the named vouchers, restores the transaction's
// unallocated amount and unsets clearance on the removed vouchers.
func (s *ReconciliationService) RemoveAllocations(ctx context.Context, req RemoveAllocationsRequest) (*reconciliation.BankTransaction, error) {
	if len(req.Vouchers) == 0 {
		return nil, shared.NewDomainError("VALIDATION", "At least one voucher is required")
	}

	tx, err := s.txRepo.FindByID(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}

	removed, err := tx.RemoveAllocations(req.Vouchers)
	if err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return tx, nil
	}

	if err := s.txRepo.Save(ctx, tx); err != nil {
		return nil, err
	}

	entryIDs := make([]uuid.UUID, 0, len(removed))
	for _, e := range removed {
		entryIDs = append(entryIDs, e.ID)
	}
	if err := s.txRepo.DeleteAllocationEntries(ctx, entryIDs); err != nil {
		return nil, err
	}

	ledger, err := s.bankAccountRepo.LedgerAccount(ctx, tx.BankAccountID)
	if err != nil {
		return nil, err
	}
	if err := s.clearance.ReverseVouchers(ctx, ledger.ID, removed); err != nil {
		s.logger.Error("clearance reversal after removal failed",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err))
	}

	s.logger.Info("allocations removed",
		zap.String("transaction_id", tx.ID.String()),
		zap.Int("removed", len(removed)))
	return tx, nil
}

// UpdateTransactionRequest supplements descriptive fields of a transaction
type UpdateTransactionRequest struct {
	TransactionID   uuid.UUID `json:"transaction_id" binding:"required"`
	ReferenceNumber *string   `json:"reference_number"`
	PartyType       *string   `json:"party_type"`
	Party           *string   `json:"party"`
}

// UpdateBankTransaction sets the reference number and party details used by
// the matching queries. Amounts and dates are immutable after submission.
func (s *ReconciliationService) UpdateBankTransaction(ctx context.Context, req UpdateTransactionRequest) (*reconciliation.BankTransaction, error) {
	tx, err := s.txRepo.FindByID(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}

	changed := false
	if req.ReferenceNumber != nil {
		tx.ReferenceNumber = *req.ReferenceNumber
		changed = true
	}
	if req.PartyType != nil {
		tx.PartyType = *req.PartyType
		changed = true
	}
	if req.Party != nil {
		tx.Party = *req.Party
		changed = true
	}
	if !changed {
		return tx, nil
	}

	tx.UpdatedAt = time.Now()
	if err := s.txRepo.Save(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// AutoReconcileRequest sweeps unreconciled transactions of a bank account
type AutoReconcileRequest struct {
	BankAccountID uuid.UUID  `json:"bank_account_id" binding:"required"`
	FromDate      *time.Time `json:"from_date"`
	ToDate        *time.Time `json:"to_date"`
}

// AutoReconcileResult summarizes one auto-reconcile run
type AutoReconcileResult struct {
	Examined   int `json:"examined"`
	Reconciled int `json:"reconciled"`
	Partial    int `json:"partial"`
	Skipped    int `json:"skipped"`
}

// autoReconcileVoucherTypes are the types auto-reconcile considers. Unpaid
// invoices and sibling transactions need human judgement and stay manual.
var autoReconcileVoucherTypes = []reconciliation.VoucherType{
	reconciliation.VoucherTypePaymentEntry,
	reconciliation.VoucherTypeJournalEntry,
}

// AutoReconcileVouchers allocates, for every unreconciled transaction that
// carries a reference number, the single best candidate whose reference and
// amount both match exactly. Ambiguity (two candidates with the same top
// rank) skips the transaction.
func (s *ReconciliationService) AutoReconcileVouchers(ctx context.Context, req AutoReconcileRequest) (*AutoReconcileResult, error) {
	txs, err := s.txRepo.FindUnreconciled(ctx, reconciliation.BankTransactionFilter{
		BankAccountID: req.BankAccountID,
		FromDate:      req.FromDate,
		ToDate:        req.ToDate,
	})
	if err != nil {
		return nil, err
	}

	result := &AutoReconcileResult{}
	for i := range txs {
		tx := &txs[i]
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if tx.ReferenceNumber == "" {
			continue
		}
		result.Examined++

		candidate, err := s.bestCandidate(ctx, tx)
		if err != nil {
			s.logger.Warn("auto reconcile candidate lookup failed",
				zap.String("transaction_id", tx.ID.String()),
				zap.Error(err))
			result.Skipped++
			continue
		}
		if candidate == nil {
			result.Skipped++
			continue
		}

		allocated := decimal.Min(candidate.Amount, tx.UnallocatedAmount)
		if !allocated.IsPositive() {
			result.Skipped++
			continue
		}

		_, err = s.ReconcileVouchers(ctx, ReconcileRequest{
			TransactionID: tx.ID,
			Vouchers: []VoucherAllocationRequest{{
				VoucherType: candidate.VoucherType,
				VoucherID:   candidate.VoucherID,
				Amount:      allocated,
			}},
		})
		if err != nil {
			s.logger.Warn("auto reconcile allocation failed",
				zap.String("transaction_id", tx.ID.String()),
				zap.Error(err))
			result.Skipped++
			continue
		}

		if allocated.Equal(tx.UnallocatedAmount) {
			result.Reconciled++
		} else {
			result.Partial++
		}
	}

	s.logger.Info("auto reconcile finished",
		zap.String("bank_account_id", req.BankAccountID.String()),
		zap.Int("examined", result.Examined),
		zap.Int("reconciled", result.Reconciled),
		zap.Int("partial", result.Partial),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (s *ReconciliationService) bestCandidate(ctx context.Context, tx *reconciliation.BankTransaction) (*reconciliation.Candidate, error) {
	mc, err := s.matchContext(ctx, tx)
	if err != nil {
		return nil, err
	}

	candidates, err := s.engine.FindCandidates(ctx, mc, reconciliation.MatchOptions{
		VoucherTypes:     autoReconcileVoucherTypes,
		ExactMatch:       true,
		RequireReference: true,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) > 1 && candidates[1].Rank == candidates[0].Rank {
		return nil, nil
	}
	return &candidates[0], nil
}

func (s *ReconciliationService) matchContext(ctx context.Context, tx *reconciliation.BankTransaction) (reconciliation.MatchContext, error) {
	account, err := s.bankAccountRepo.FindByID(ctx, tx.BankAccountID)
	if err != nil {
		return reconciliation.MatchContext{}, err
	}
	ledger, err := s.bankAccountRepo.LedgerAccount(ctx, tx.BankAccountID)
	if err != nil {
		return reconciliation.MatchContext{}, err
	}
	return reconciliation.MatchContext{
		TransactionID:     tx.ID,
		BankAccountID:     tx.BankAccountID,
		LedgerAccountID:   ledger.ID,
		Company:           account.Company,
		Deposit:           tx.Deposit,
		Withdrawal:        tx.Withdrawal,
		UnallocatedAmount: tx.UnallocatedAmount,
		ReferenceNumber:   tx.ReferenceNumber,
		PartyType:         tx.PartyType,
		Party:             tx.Party,
	}, nil
}
