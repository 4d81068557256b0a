package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return gormDB, mock
}

func TestAllocatedElsewhere(t *testing.T) {
	account := uuid.New()
	exclude := uuid.New()
	voucherID := uuid.New()
	otherID := uuid.New()

	ref := reconciliation.VoucherRef{
		Type: reconciliation.VoucherTypePaymentEntry,
		ID:   voucherID,
	}

	t.Run("keeps only requested vouchers and binds both parameters", func(t *testing.T) {
		db, mock := newMockDB(t)
		lookup := NewGormAllocationLookup(db)

		rows := sqlmock.NewRows([]string{"voucher_type", "voucher_id", "total"}).
			AddRow("Payment Entry", voucherID.String(), "40.5").
			AddRow("Journal Entry", otherID.String(), "12")
		mock.ExpectQuery("FROM bank_transaction_payments").
			WithArgs(account, exclude).
			WillReturnRows(rows)

		got, err := lookup.AllocatedElsewhere(context.Background(), account, exclude,
			[]reconciliation.VoucherRef{ref})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[ref].Equal(decimal.RequireFromString("40.5")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips the query entirely for an empty ref list", func(t *testing.T) {
		db, mock := newMockDB(t)
		lookup := NewGormAllocationLookup(db)

		got, err := lookup.AllocatedElsewhere(context.Background(), account, exclude, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("propagates query errors", func(t *testing.T) {
		db, mock := newMockDB(t)
		lookup := NewGormAllocationLookup(db)

		mock.ExpectQuery("FROM bank_transaction_payments").
			WillReturnError(sql.ErrConnDone)

		_, err := lookup.AllocatedElsewhere(context.Background(), account, exclude,
			[]reconciliation.VoucherRef{ref})
		assert.True(t, errors.Is(err, sql.ErrConnDone))
	})
}
