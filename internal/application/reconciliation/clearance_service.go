package reconciliation

import (
	"context"
	"fmt"

	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/erp/bankrec/internal/infrastructure/jobs"
	"github.com/erp/bankrec/internal/infrastructure/locker"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClearanceService keeps voucher clearance dates consistent with the
// allocations recorded on bank transactions. It is invoked explicitly after
// every allocation change and can also sweep a date range for transactions
// whose vouchers were edited behind its back.
type ClearanceService struct {
	store           reconciliation.ClearanceStore
	txRepo          reconciliation.BankTransactionRepository
	bankAccountRepo reconciliation.BankAccountRepository
	locks           *locker.Locker
	runner          *jobs.Runner
	logger          *zap.Logger
	batchLimit      int
}

// NewClearanceService creates a new ClearanceService
func NewClearanceService(
	store reconciliation.ClearanceStore,
	txRepo reconciliation.BankTransactionRepository,
	bankAccountRepo reconciliation.BankAccountRepository,
	locks *locker.Locker,
	runner *jobs.Runner,
	logger *zap.Logger,
	batchLimit int,
) *ClearanceService {
	return &ClearanceService{
		store:           store,
		txRepo:          txRepo,
		bankAccountRepo: bankAccountRepo,
		locks:           locks,
		runner:          runner,
		logger:          logger,
		batchLimit:      batchLimit,
	}
}

// ValidateTransaction re-evaluates the clearance state of every voucher
// allocated against the transaction and writes the transitions that are due.
// A failure on one voucher does not block the others.
func (s *ClearanceService) ValidateTransaction(ctx context.Context, transactionID uuid.UUID) error {
	tx, err := s.txRepo.FindByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if tx.Docstatus != reconciliation.DocstatusSubmitted {
		return nil
	}

	ledger, err := s.bankAccountRepo.LedgerAccount(ctx, tx.BankAccountID)
	if err != nil {
		return err
	}

	var firstErr error
	for i := range tx.Payments {
		entry := tx.Payments[i]
		if err := s.validateVoucher(ctx, tx, ledger.ID, entry); err != nil {
			s.logger.Error("clearance evaluation failed",
				zap.String("transaction_id", tx.ID.String()),
				zap.String("voucher_type", string(entry.VoucherType)),
				zap.String("voucher_id", entry.VoucherID.String()),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ValidateTransactionAsync queues the evaluation as a named background job.
// Returns false when the same transaction is already queued.
func (s *ClearanceService) ValidateTransactionAsync(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	name := fmt.Sprintf("validate-bank-transaction-%s", transactionID)
	return s.runner.Enqueue(ctx, name, func(jobCtx context.Context) error {
		return s.ValidateTransaction(jobCtx, transactionID)
	})
}

// BatchResult summarizes one clearance sweep
type BatchResult struct {
	TotalFound int `json:"total_found"`
	Processed  int `json:"processed"`
	Success    int `json:"success"`
}

// BatchValidate re-evaluates every transaction in the window whose vouchers
// look stale. One failing transaction is logged and skipped, never aborting
// the sweep.
func (s *ClearanceService) BatchValidate(ctx context.Context, filter reconciliation.BankTransactionFilter) (*BatchResult, error) {
	if filter.Limit <= 0 || filter.Limit > s.batchLimit {
		filter.Limit = s.batchLimit
	}

	ids, err := s.store.StaleTransactionIDs(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{TotalFound: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Processed++
		if err := s.ValidateTransaction(ctx, id); err != nil {
			s.logger.Warn("batch clearance validation failed for transaction",
				zap.String("transaction_id", id.String()),
				zap.Error(err))
			continue
		}
		result.Success++
	}

	s.logger.Info("clearance sweep finished",
		zap.Int("total_found", result.TotalFound),
		zap.Int("processed", result.Processed),
		zap.Int("success", result.Success))
	return result, nil
}

// ReverseVouchers unsets the clearance state of vouchers whose allocations
// were just removed
func (s *ClearanceService) ReverseVouchers(ctx context.Context, ledgerAccountID uuid.UUID, entries []reconciliation.AllocationEntry) error {
	var firstErr error
	for _, entry := range entries {
		if err := s.reverseVoucher(ctx, ledgerAccountID, entry); err != nil {
			s.logger.Error("clearance reversal failed",
				zap.String("voucher_type", string(entry.VoucherType)),
				zap.String("voucher_id", entry.VoucherID.String()),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *ClearanceService) reverseVoucher(ctx context.Context, ledgerAccountID uuid.UUID, entry reconciliation.AllocationEntry) error {
	ref := entry.Ref()
	s.locks.Lock(lockKey(ref))
	defer s.locks.Unlock(lockKey(ref))

	switch ref.Type {
	case reconciliation.VoucherTypeSalesInvoice:
		lines, err := s.store.SalesInvoicePayments(ctx, ref.ID, ledgerAccountID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if line.ClearanceDate == nil {
				continue
			}
			if err := s.store.SetInvoiceLineClearance(ctx, line.ID, nil); err != nil {
				return err
			}
		}
		return nil
	case reconciliation.VoucherTypePaymentEntry,
		reconciliation.VoucherTypeJournalEntry,
		reconciliation.VoucherTypePurchaseInvoice,
		reconciliation.VoucherTypeLoanDisbursement,
		reconciliation.VoucherTypeLoanRepayment:
		return s.store.SetClearanceDate(ctx, ref, nil)
	default:
		// Sibling transactions and unpaid invoices carry no clearance date.
		return nil
	}
}

func lockKey(ref reconciliation.VoucherRef) string {
	return fmt.Sprintf("%s:%s", ref.Type, ref.ID)
}

func (s *ClearanceService) validateVoucher(ctx context.Context, tx *reconciliation.BankTransaction, ledgerAccountID uuid.UUID, entry reconciliation.AllocationEntry) error {
	ref := entry.Ref()
	s.locks.Lock(lockKey(ref))
	defer s.locks.Unlock(lockKey(ref))

	switch ref.Type {
	case reconciliation.VoucherTypePaymentEntry:
		return s.validatePaymentEntry(ctx, tx, ledgerAccountID, entry)
	case reconciliation.VoucherTypeJournalEntry:
		return s.validateJournalEntry(ctx, tx, entry)
	case reconciliation.VoucherTypeSalesInvoice:
		return s.validateSalesInvoice(ctx, tx, ledgerAccountID, entry)
	case reconciliation.VoucherTypePurchaseInvoice:
		return s.validatePurchaseInvoice(ctx, tx, entry)
	case reconciliation.VoucherTypeLoanDisbursement:
		return s.validateLoanDisbursement(ctx, tx, entry)
	case reconciliation.VoucherTypeLoanRepayment:
		return s.validateLoanRepayment(ctx, tx, entry)
	default:
		// Sibling transactions settle through their own unallocated amount;
		// unpaid invoices clear through the payment created against them.
		return nil
	}
}

func (s *ClearanceService) validatePaymentEntry(ctx context.Context, tx *reconciliation.BankTransaction, ledgerAccountID uuid.UUID, entry reconciliation.AllocationEntry) error {
	pe, err := s.store.PaymentEntry(ctx, entry.VoucherID)
	if err != nil {
		return err
	}
	if pe == nil {
		return nil
	}

	paymentType := pe.PaymentType
	if paymentType == reconciliation.PaymentTypeInternalTransfer {
		// A transfer behaves like Receive on its receiving side.
		if pe.PaidToID != nil && *pe.PaidToID == ledgerAccountID {
			paymentType = reconciliation.PaymentTypeReceive
		} else {
			paymentType = reconciliation.PaymentTypePay
		}
	}

	decision := reconciliation.EvaluatePaymentClearance(
		tx.Direction(), paymentType, entry.AllocatedAmount, pe.PaidAmount, tx.Date, pe.ClearanceDate)
	return s.applyDecision(ctx, entry.Ref(), decision)
}

func (s *ClearanceService) validateJournalEntry(ctx context.Context, tx *reconciliation.BankTransaction, entry reconciliation.AllocationEntry) error {
	je, err := s.store.JournalEntry(ctx, entry.VoucherID)
	if err != nil {
		return err
	}
	if je == nil {
		return nil
	}

	accountIDs := make([]uuid.UUID, 0, len(je.Accounts))
	for _, leg := range je.Accounts {
		accountIDs = append(accountIDs, leg.AccountID)
	}
	bankLinked, err := s.store.BankLinkedAccounts(ctx, accountIDs)
	if err != nil {
		return err
	}

	contributions, err := s.store.JournalContributions(ctx, je.ID)
	if err != nil {
		return err
	}

	decision := reconciliation.EvaluateJournalClearance(je.Accounts, bankLinked, contributions, je.ClearanceDate)
	if decision.Action == reconciliation.ClearanceSkip {
		s.logger.Warn("clearance left untouched",
			zap.Error(reconciliation.ErrDuplicateLegSkip),
			zap.String("journal_entry_id", je.ID.String()),
			zap.String("transaction_id", tx.ID.String()))
		return nil
	}
	return s.applyDecision(ctx, entry.Ref(), decision)
}

func (s *ClearanceService) validateSalesInvoice(ctx context.Context, tx *reconciliation.BankTransaction, ledgerAccountID uuid.UUID, entry reconciliation.AllocationEntry) error {
	lines, err := s.store.SalesInvoicePayments(ctx, entry.VoucherID, ledgerAccountID)
	if err != nil {
		return err
	}

	for _, line := range lines {
		decision := reconciliation.EvaluateSimpleClearance(entry.AllocatedAmount, line.Amount, tx.Date, line.ClearanceDate)
		switch decision.Action {
		case reconciliation.ClearanceSet:
			if err := s.store.SetInvoiceLineClearance(ctx, line.ID, &decision.Date); err != nil {
				return err
			}
		case reconciliation.ClearanceReset:
			if err := s.store.SetInvoiceLineClearance(ctx, line.ID, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *ClearanceService) validatePurchaseInvoice(ctx context.Context, tx *reconciliation.BankTransaction, entry reconciliation.AllocationEntry) error {
	pi, err := s.store.PurchaseInvoice(ctx, entry.VoucherID)
	if err != nil {
		return err
	}
	if pi == nil {
		return nil
	}
	decision := reconciliation.EvaluateSimpleClearance(entry.AllocatedAmount, pi.PaidAmount, tx.Date, pi.ClearanceDate)
	return s.applyDecision(ctx, entry.Ref(), decision)
}

func (s *ClearanceService) validateLoanDisbursement(ctx context.Context, tx *reconciliation.BankTransaction, entry reconciliation.AllocationEntry) error {
	ld, err := s.store.LoanDisbursement(ctx, entry.VoucherID)
	if err != nil {
		return err
	}
	if ld == nil {
		return nil
	}
	decision := reconciliation.EvaluateSimpleClearance(entry.AllocatedAmount, ld.DisbursedAmount, tx.Date, ld.ClearanceDate)
	return s.applyDecision(ctx, entry.Ref(), decision)
}

func (s *ClearanceService) validateLoanRepayment(ctx context.Context, tx *reconciliation.BankTransaction, entry reconciliation.AllocationEntry) error {
	lr, err := s.store.LoanRepayment(ctx, entry.VoucherID)
	if err != nil {
		return err
	}
	if lr == nil {
		return nil
	}
	decision := reconciliation.EvaluateSimpleClearance(entry.AllocatedAmount, lr.AmountPaid, tx.Date, lr.ClearanceDate)
	return s.applyDecision(ctx, entry.Ref(), decision)
}

func (s *ClearanceService) applyDecision(ctx context.Context, ref reconciliation.VoucherRef, decision reconciliation.ClearanceDecision) error {
	switch decision.Action {
	case reconciliation.ClearanceSet:
		return s.store.SetClearanceDate(ctx, ref, &decision.Date)
	case reconciliation.ClearanceReset:
		return s.store.SetClearanceDate(ctx, ref, nil)
	default:
		return nil
	}
}
