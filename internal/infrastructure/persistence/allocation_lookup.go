package persistence

import (
	"context"

	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormAllocationLookup resolves amounts already allocated to vouchers from
// other bank transactions against the same ledger account
type GormAllocationLookup struct {
	db *gorm.DB
}

// NewGormAllocationLookup creates a new GormAllocationLookup
func NewGormAllocationLookup(db *gorm.DB) *GormAllocationLookup {
	return &GormAllocationLookup{db: db}
}

const allocatedElsewhereQuery = `
SELECT
	btp.voucher_type AS voucher_type,
	btp.voucher_id AS voucher_id,
	SUM(btp.allocated_amount) AS total
FROM bank_transaction_payments btp
JOIN bank_transactions bt ON bt.id = btp.bank_transaction_id
JOIN bank_accounts ba ON ba.id = bt.bank_account_id
WHERE ba.account_id = @account
	AND bt.id <> @exclude
	AND bt.docstatus = 1
GROUP BY btp.voucher_type, btp.voucher_id`

// AllocatedElsewhere sums allocations toward the given vouchers made by every
// other submitted bank transaction on the ledger account
func (l *GormAllocationLookup) AllocatedElsewhere(
	ctx context.Context,
	ledgerAccountID, excludeTransactionID uuid.UUID,
	refs []reconciliation.VoucherRef,
) (map[reconciliation.VoucherRef]decimal.Decimal, error) {
	result := make(map[reconciliation.VoucherRef]decimal.Decimal, len(refs))
	if len(refs) == 0 {
		return result, nil
	}

	var rows []struct {
		VoucherType reconciliation.VoucherType
		VoucherID   uuid.UUID
		Total       decimal.Decimal
	}
	err := l.db.WithContext(ctx).
		Raw(allocatedElsewhereQuery, map[string]interface{}{
			"account": ledgerAccountID,
			"exclude": excludeTransactionID,
		}).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	wanted := make(map[reconciliation.VoucherRef]bool, len(refs))
	for _, ref := range refs {
		wanted[ref] = true
	}
	for _, row := range rows {
		ref := reconciliation.VoucherRef{Type: row.VoucherType, ID: row.VoucherID}
		if wanted[ref] {
			result[ref] = row.Total
		}
	}
	return result, nil
}
