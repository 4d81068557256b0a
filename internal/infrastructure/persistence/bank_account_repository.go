package persistence

import (
	"context"
	"errors"

	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormBankAccountRepository implements BankAccountRepository using GORM
type GormBankAccountRepository struct {
	db *gorm.DB
}

// NewGormBankAccountRepository creates a new GormBankAccountRepository
func NewGormBankAccountRepository(db *gorm.DB) *GormBankAccountRepository {
	return &GormBankAccountRepository{db: db}
}

// FindByID finds a bank account with its statement field mapping
func (r *GormBankAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconciliation.BankAccount, error) {
	var account reconciliation.BankAccount
	if err := r.db.WithContext(ctx).
		Preload("FieldMap").
		First(&account, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reconciliation.ErrBankAccountGone
		}
		return nil, err
	}
	return &account, nil
}

// FindByName finds a bank account by its unique name
func (r *GormBankAccountRepository) FindByName(ctx context.Context, name string) (*reconciliation.BankAccount, error) {
	var account reconciliation.BankAccount
	if err := r.db.WithContext(ctx).
		Preload("FieldMap").
		First(&account, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reconciliation.ErrBankAccountGone
		}
		return nil, err
	}
	return &account, nil
}

// LedgerAccount resolves the ledger account a bank account is linked to
func (r *GormBankAccountRepository) LedgerAccount(ctx context.Context, bankAccountID uuid.UUID) (*reconciliation.Account, error) {
	bankAccount, err := r.FindByID(ctx, bankAccountID)
	if err != nil {
		return nil, err
	}
	if bankAccount.AccountID == nil {
		return nil, reconciliation.ErrNoLedgerAccount
	}

	var account reconciliation.Account
	if err := r.db.WithContext(ctx).
		First(&account, "id = ?", *bankAccount.AccountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reconciliation.ErrNoLedgerAccount
		}
		return nil, err
	}
	return &account, nil
}
