package persistence

import (
	"context"
	"errors"

	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormBankTransactionRepository implements BankTransactionRepository using GORM
type GormBankTransactionRepository struct {
	db *gorm.DB
}

// NewGormBankTransactionRepository creates a new GormBankTransactionRepository
func NewGormBankTransactionRepository(db *gorm.DB) *GormBankTransactionRepository {
	return &GormBankTransactionRepository{db: db}
}

// FindByID finds a bank transaction with its allocation entries
func (r *GormBankTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconciliation.BankTransaction, error) {
	var bt reconciliation.BankTransaction
	if err := r.db.WithContext(ctx).
		Preload("Payments").
		First(&bt, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reconciliation.ErrTransactionGone
		}
		return nil, err
	}
	return &bt, nil
}

func applyTransactionFilter(query *gorm.DB, filter reconciliation.BankTransactionFilter) *gorm.DB {
	if filter.BankAccountID != uuid.Nil {
		query = query.Where("bank_account_id = ?", filter.BankAccountID)
	}
	if filter.FromDate != nil {
		query = query.Where("date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("date <= ?", *filter.ToDate)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	return query
}

// FindUnreconciled returns submitted transactions that still carry an
// unallocated amount, oldest first
func (r *GormBankTransactionRepository) FindUnreconciled(ctx context.Context, filter reconciliation.BankTransactionFilter) ([]reconciliation.BankTransaction, error) {
	var txs []reconciliation.BankTransaction
	query := r.db.WithContext(ctx).
		Where("docstatus = ?", reconciliation.DocstatusSubmitted).
		Where("unallocated_amount > 0").
		Where("status <> ?", reconciliation.StatusCancelled)
	query = applyTransactionFilter(query, filter)

	if err := query.Preload("Payments").Order("date ASC, created_at ASC").Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

// FindReconciled returns submitted transactions that are fully allocated,
// oldest first
func (r *GormBankTransactionRepository) FindReconciled(ctx context.Context, filter reconciliation.BankTransactionFilter) ([]reconciliation.BankTransaction, error) {
	var txs []reconciliation.BankTransaction
	query := r.db.WithContext(ctx).
		Where("docstatus = ?", reconciliation.DocstatusSubmitted).
		Where("status = ?", reconciliation.StatusReconciled)
	query = applyTransactionFilter(query, filter)

	if err := query.Preload("Payments").Order("date ASC, created_at ASC").Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

// FindLastSubmitted returns the most recent submitted transaction for a bank
// account, or nil when the account has none
func (r *GormBankTransactionRepository) FindLastSubmitted(ctx context.Context, bankAccountID uuid.UUID) (*reconciliation.BankTransaction, error) {
	var bt reconciliation.BankTransaction
	err := r.db.WithContext(ctx).
		Where("bank_account_id = ? AND docstatus = ?", bankAccountID, reconciliation.DocstatusSubmitted).
		Order("date DESC, created_at DESC").
		First(&bt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bt, nil
}

// CountDuplicates counts submitted transactions identical in date, amounts,
// currency, description, reference and bank account
func (r *GormBankTransactionRepository) CountDuplicates(ctx context.Context, bt *reconciliation.BankTransaction) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&reconciliation.BankTransaction{}).
		Where("docstatus = ?", reconciliation.DocstatusSubmitted).
		Where("bank_account_id = ?", bt.BankAccountID).
		Where("date = ?", bt.Date).
		Where("deposit = ?", bt.Deposit).
		Where("withdrawal = ?", bt.Withdrawal).
		Where("currency = ?", bt.Currency).
		Where("description = ?", bt.Description).
		Where("reference_number = ?", bt.ReferenceNumber).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Save persists the transaction together with its allocation entries
func (r *GormBankTransactionRepository) Save(ctx context.Context, bt *reconciliation.BankTransaction) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{FullSaveAssociations: true}).
		Save(bt).Error
}

// DeleteAllocationEntries removes detached allocation rows by ID
func (r *GormBankTransactionRepository) DeleteAllocationEntries(ctx context.Context, entryIDs []uuid.UUID) error {
	if len(entryIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("id IN ?", entryIDs).
		Delete(&reconciliation.AllocationEntry{}).Error
}

// CreateBatch inserts transactions atomically; any failure rolls the whole
// batch back
func (r *GormBankTransactionRepository) CreateBatch(ctx context.Context, txs []*reconciliation.BankTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, bt := range txs {
			if err := tx.Create(bt).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
