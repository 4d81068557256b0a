package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/erp/bankrec/internal/domain/shared"
	"github.com/erp/bankrec/internal/infrastructure/cache"
	"github.com/erp/bankrec/internal/infrastructure/config"
	"github.com/erp/bankrec/internal/infrastructure/jobs"
	"github.com/erp/bankrec/internal/infrastructure/locker"
	"github.com/erp/bankrec/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fixture wires the services against an in-memory database the way
// cmd/server does against postgres.
type fixture struct {
	db        *gorm.DB
	ledger    *reconciliation.Account
	bank      *reconciliation.BankAccount
	store     reconciliation.ClearanceStore
	txRepo    reconciliation.BankTransactionRepository
	svc       *ReconciliationService
	clearance *ClearanceService
	runner    *jobs.Runner
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

	logger := zaptest.NewLogger(t)

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
	}
	require.NoError(t, db.Create(bank).Error)

	engine := reconciliation.NewMatchingEngine(
		persistence.NewGormAllocationLookup(db),
		logger,
		persistence.NewPaymentEntryProvider(db),
		persistence.NewJournalEntryProvider(db),
		persistence.NewSiblingTransactionProvider(db),
		persistence.NewSalesInvoiceProvider(db),
		persistence.NewPurchaseInvoiceProvider(db),
	)

	runner := jobs.NewRunner(config.JobsConfig{
		Workers:      1,
		QueueSize:    8,
		JobTimeout:   5 * time.Second,
		DedupeWindow: time.Minute,
	}, cache.NewInMemoryDedupeStore(), logger)
	runner.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})

	txRepo := persistence.NewGormBankTransactionRepository(db)
	bankRepo := persistence.NewGormBankAccountRepository(db)
	store := persistence.NewGormClearanceStore(db)

	clearance := NewClearanceService(store, txRepo, bankRepo, locker.New(), runner, logger, 100)
	svc := NewReconciliationService(txRepo, bankRepo, engine, clearance, logger)

	return &fixture{
		db:        db,
		ledger:    ledger,
		bank:      bank,
		store:     store,
		txRepo:    txRepo,
		svc:       svc,
		clearance: clearance,
		runner:    runner,
	}
}

func (f *fixture) seedTransaction(t *testing.T, deposit, withdrawal string, date time.Time) *reconciliation.BankTransaction {
	t.Helper()
	bt, err := reconciliation.NewBankTransaction(
		f.bank.ID,
		date,
		decimal.RequireFromString(deposit),
		decimal.RequireFromString(withdrawal),
		"EUR",
	)
	require.NoError(t, err)
	require.NoError(t, bt.Submit())
	require.NoError(t, f.db.Create(bt).Error)
	return bt
}

func (f *fixture) seedReceivePayment(t *testing.T, amount string, reference string, date time.Time) *reconciliation.PaymentEntry {
	t.Helper()
	pe := &reconciliation.PaymentEntry{
		BaseEntity:     shared.NewBaseEntity(),
		PaymentType:    reconciliation.PaymentTypeReceive,
		PaidToID:       &f.ledger.ID,
		PaidToCurrency: "EUR",
		PaidAmount:     decimal.RequireFromString(amount),
		ReceivedAmount: decimal.RequireFromString(amount),
		ReferenceNo:    reference,
		PostingDate:    date,
		Docstatus:      reconciliation.DocstatusSubmitted,
		Company:        f.ledger.Company,
	}
	require.NoError(t, f.db.Create(pe).Error)
	return pe
}

func (f *fixture) reloadPayment(t *testing.T, id uuid.UUID) *reconciliation.PaymentEntry {
	t.Helper()
	var pe reconciliation.PaymentEntry
	require.NoError(t, f.db.First(&pe, "id = ?", id).Error)
	return &pe
}
