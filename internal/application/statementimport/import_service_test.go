package statementimport

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/erp/bankrec/internal/domain/shared"
	"github.com/erp/bankrec/internal/infrastructure/config"
	"github.com/erp/bankrec/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fixture struct {
	db     *gorm.DB
	ledger *reconciliation.Account
	bank   *reconciliation.BankAccount
	svc    *ImportService
	txRepo reconciliation.BankTransactionRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A second connection would see an empty memory database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, persistence.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })

	ledger := &reconciliation.Account{
		BaseEntity: shared.NewBaseEntity(),
		Code:       "BNK-" + uuid.NewString()[:8],
		Name:       "Main Bank",
		Type:       reconciliation.AccountTypeBank,
		Currency:   "EUR",
		Company:    "Acme GmbH",
	}
	require.NoError(t, db.Create(ledger).Error)

	bank := &reconciliation.BankAccount{
		BaseEntity: shared.NewBaseEntity(),
		Name:       "Checking " + uuid.NewString()[:8],
		AccountID:  &ledger.ID,
		Bank:       "Test Bank",
		Company:    ledger.Company,
		DateFormat: "Y-m-d",
		FieldMap: []reconciliation.StatementFieldMapRow{
			{ID: uuid.New(), TransactionField: "date", FileColumn: "Date"},
			{ID: uuid.New(), TransactionField: "deposit", FileColumn: "Credit"},
			{ID: uuid.New(), TransactionField: "withdrawal", FileColumn: "Debit"},
		},
	}
	require.NoError(t, db.Create(bank).Error)

	txRepo := persistence.NewGormBankTransactionRepository(db)
	svc := NewImportService(
		txRepo,
		persistence.NewGormBankAccountRepository(db),
		config.ImportConfig{MaxFileSize: 1 << 20, BatchSize: 100},
		zaptest.NewLogger(t),
	)

	return &fixture{db: db, ledger: ledger, bank: bank, svc: svc, txRepo: txRepo}
}

const statementCSV = "Date,Credit,Debit,Memo,Ref\n" +
	"2024-06-03,100.00,,Invoice 12,CHQ-1\n" +
	"2024-06-04,,55.20,Office rent,CHQ-2\n"

func splitMapping() FieldMapping {
	return FieldMapping{
		DateColumn:        "Date",
		DepositColumn:     "Credit",
		WithdrawalColumn:  "Debit",
		DescriptionColumn: "Memo",
		ReferenceColumn:   "Ref",
		DateFormat:        "Y-m-d",
	}
}

func TestStartImport(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.StartImport(context.Background(), StartImportRequest{
		BankAccountID: f.bank.ID,
		Filename:      "statement.csv",
		File:          strings.NewReader(statementCSV),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "Credit", "Debit", "Memo", "Ref"}, result.Header)
	assert.Len(t, result.Body, 2)
	assert.Equal(t, "Credit", result.FieldMap["deposit"])
	assert.Equal(t, "Y-m-d", result.DateFormat)

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := f.svc.StartImport(context.Background(), StartImportRequest{
			BankAccountID: f.bank.ID,
			Filename:      "statement.pdf",
			File:          strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, reconciliation.ErrUnsupportedFile)
	})

	t.Run("missing field mapping", func(t *testing.T) {
		bare := &reconciliation.BankAccount{
			BaseEntity: shared.NewBaseEntity(),
			Name:       "Unmapped " + uuid.NewString()[:8],
			AccountID:  &f.ledger.ID,
			Company:    f.ledger.Company,
		}
		require.NoError(t, f.db.Create(bare).Error)

		_, err := f.svc.StartImport(context.Background(), StartImportRequest{
			BankAccountID: bare.ID,
			Filename:      "statement.csv",
			File:          strings.NewReader(statementCSV),
		})
		assert.ErrorIs(t, err, reconciliation.ErrMissingFieldMap)
	})

	t.Run("oversized file", func(t *testing.T) {
		small := NewImportService(
			f.txRepo,
			persistence.NewGormBankAccountRepository(f.db),
			config.ImportConfig{MaxFileSize: 10, BatchSize: 100},
			zaptest.NewLogger(t),
		)
		_, err := small.StartImport(context.Background(), StartImportRequest{
			BankAccountID: f.bank.ID,
			Filename:      "statement.csv",
			File:          strings.NewReader(statementCSV),
		})
		assert.Error(t, err)
	})
}

func TestMapFields(t *testing.T) {
	t.Run("split deposit and withdrawal columns", func(t *testing.T) {
		f := newFixture(t)
		rows, err := f.svc.MapFields(context.Background(), MapFieldsRequest{
			BankAccountID: f.bank.ID,
			Mapping:       splitMapping(),
			Header:        []string{"Date", "Credit", "Debit", "Memo", "Ref"},
			Body: [][]string{
				{"2024-06-03", "100.00", "", "Invoice 12", "CHQ-1"},
				{"2024-06-04", "", "55.20", "Office rent", "CHQ-2"},
			},
		})
		require.NoError(t, err)
		require.Len(t, rows, 2)

		assert.True(t, rows[0].Deposit.Equal(decimal.RequireFromString("100")))
		assert.True(t, rows[0].Withdrawal.IsZero())
		assert.Equal(t, "Invoice 12", rows[0].Description)
		assert.Equal(t, "CHQ-1", rows[0].ReferenceNumber)
		assert.Equal(t, "EUR", rows[0].Currency)
		assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), rows[0].Date)

		assert.True(t, rows[1].Withdrawal.Equal(decimal.RequireFromString("55.2")))
		assert.True(t, rows[1].Deposit.IsZero())
	})

	t.Run("single signed amount column", func(t *testing.T) {
		f := newFixture(t)
		mapping := FieldMapping{
			DateColumn:        "Date",
			SameAmountColumn:  true,
			AmountColumn:      "Amount",
			PositiveIs:        "Deposit",
			DescriptionColumn: "Memo",
			ReferenceColumn:   "Ref",
			DateFormat:        "Y-m-d",
		}
		rows, err := f.svc.MapFields(context.Background(), MapFieldsRequest{
			BankAccountID: f.bank.ID,
			Mapping:       mapping,
			Header:        []string{"Date", "Amount", "Memo", "Ref"},
			Body: [][]string{
				{"2024-06-03", "100.00", "in", "R1"},
				{"2024-06-04", "-42.50", "out", "R2"},
			},
		})
		require.NoError(t, err)
		require.Len(t, rows, 2)

		assert.True(t, rows[0].Deposit.Equal(decimal.RequireFromString("100")))
		assert.True(t, rows[1].Withdrawal.Equal(decimal.RequireFromString("42.5")))
		assert.True(t, rows[1].Deposit.IsZero())
	})

	t.Run("duplicate probing stops at the first new row", func(t *testing.T) {
		f := newFixture(t)

		// The first statement row already exists as a submitted transaction.
		existing, err := reconciliation.NewBankTransaction(
			f.bank.ID,
			time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
			decimal.RequireFromString("100"),
			decimal.Zero,
			"EUR",
		)
		require.NoError(t, err)
		existing.Description = "Invoice 12"
		existing.ReferenceNumber = "CHQ-1"
		require.NoError(t, existing.Submit())
		require.NoError(t, f.db.Create(existing).Error)

		// Row three duplicates row one but sits below a new row, so it must
		// not be probed or flagged.
		rows, err := f.svc.MapFields(context.Background(), MapFieldsRequest{
			BankAccountID: f.bank.ID,
			Mapping:       splitMapping(),
			Header:        []string{"Date", "Credit", "Debit", "Memo", "Ref"},
			Body: [][]string{
				{"2024-06-03", "100.00", "", "Invoice 12", "CHQ-1"},
				{"2024-06-04", "", "55.20", "Office rent", "CHQ-2"},
				{"2024-06-03", "100.00", "", "Invoice 12", "CHQ-1"},
			},
		})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.True(t, rows[0].Duplicate)
		assert.False(t, rows[1].Duplicate)
		assert.False(t, rows[2].Duplicate)
	})

	t.Run("rejects unknown columns and bad dates", func(t *testing.T) {
		f := newFixture(t)

		mapping := splitMapping()
		mapping.DateColumn = "Missing"
		_, err := f.svc.MapFields(context.Background(), MapFieldsRequest{
			BankAccountID: f.bank.ID,
			Mapping:       mapping,
			Header:        []string{"Date", "Credit", "Debit", "Memo", "Ref"},
			Body:          [][]string{{"2024-06-03", "1", "", "", ""}},
		})
		assert.Error(t, err)

		_, err = f.svc.MapFields(context.Background(), MapFieldsRequest{
			BankAccountID: f.bank.ID,
			Mapping:       splitMapping(),
			Header:        []string{"Date", "Credit", "Debit", "Memo", "Ref"},
			Body:          [][]string{{"not a date", "1", "", "", ""}},
		})
		assert.Error(t, err)
	})

	t.Run("configured format wins over auto", func(t *testing.T) {
		f := newFixture(t)
		mapping := splitMapping()
		mapping.DateFormat = "m/d/Y"

		rows, err := f.svc.MapFields(context.Background(), MapFieldsRequest{
			BankAccountID: f.bank.ID,
			Mapping:       mapping,
			Header:        []string{"Date", "Credit", "Debit", "Memo", "Ref"},
			Body:          [][]string{{"06/03/2024", "10", "", "", ""}},
		})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), rows[0].Date)
	})
}

func TestPublishRecords(t *testing.T) {
	f := newFixture(t)

	rows := []PreviewRow{
		{
			Date:            time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
			Deposit:         decimal.RequireFromString("100"),
			Withdrawal:      decimal.Zero,
			Description:     "Invoice 12",
			ReferenceNumber: "CHQ-1",
			BankAccountID:   f.bank.ID,
			Currency:        "EUR",
		},
		{
			Date:          time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC),
			Deposit:       decimal.Zero,
			Withdrawal:    decimal.RequireFromString("55.20"),
			BankAccountID: f.bank.ID,
			Currency:      "EUR",
		},
	}

	result, err := f.svc.PublishRecords(context.Background(), PublishRequest{Rows: rows})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)

	imported, err := f.txRepo.FindUnreconciled(context.Background(), reconciliation.BankTransactionFilter{
		BankAccountID: f.bank.ID,
	})
	require.NoError(t, err)
	require.Len(t, imported, 2)
	assert.Equal(t, reconciliation.DocstatusSubmitted, imported[0].Docstatus)
	assert.Equal(t, reconciliation.StatusUnreconciled, imported[0].Status)

	t.Run("invalid row rolls the whole batch back", func(t *testing.T) {
		f := newFixture(t)
		bad := rows[0]
		bad.BankAccountID = f.bank.ID
		invalid := PreviewRow{
			Date:          time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
			Deposit:       decimal.RequireFromString("10"),
			Withdrawal:    decimal.RequireFromString("10"),
			BankAccountID: f.bank.ID,
			Currency:      "EUR",
		}
		_, err := f.svc.PublishRecords(context.Background(), PublishRequest{Rows: []PreviewRow{bad, invalid}})
		require.Error(t, err)

		var count int64
		require.NoError(t, f.db.Model(&reconciliation.BankTransaction{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("rejects empty and oversized batches", func(t *testing.T) {
		_, err := f.svc.PublishRecords(context.Background(), PublishRequest{})
		assert.Error(t, err)

		small := NewImportService(
			f.txRepo,
			persistence.NewGormBankAccountRepository(f.db),
			config.ImportConfig{MaxFileSize: 1 << 20, BatchSize: 1},
			zaptest.NewLogger(t),
		)
		_, err = small.PublishRecords(context.Background(), PublishRequest{Rows: rows})
		assert.Error(t, err)
	})
}

func TestGetLastTransaction(t *testing.T) {
	f := newFixture(t)

	last, err := f.svc.GetLastTransaction(context.Background(), f.bank.ID)
	require.NoError(t, err)
	assert.Nil(t, last)

	for _, day := range []int{3, 5, 4} {
		bt, err := reconciliation.NewBankTransaction(
			f.bank.ID,
			time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC),
			decimal.NewFromInt(int64(day)),
			decimal.Zero,
			"EUR",
		)
		require.NoError(t, err)
		require.NoError(t, bt.Submit())
		require.NoError(t, f.db.Create(bt).Error)
	}

	last, err = f.svc.GetLastTransaction(context.Background(), f.bank.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), last.Date)
	assert.True(t, last.Deposit.Equal(decimal.NewFromInt(5)))

	t.Run("unknown bank account", func(t *testing.T) {
		_, err := f.svc.GetLastTransaction(context.Background(), uuid.New())
		assert.ErrorIs(t, err, reconciliation.ErrBankAccountGone)
	})
}
