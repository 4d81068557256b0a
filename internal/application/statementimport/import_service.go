package statementimport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/erp/bankrec/internal/domain/shared"
	"github.com/erp/bankrec/internal/infrastructure/config"
	"github.com/erp/bankrec/internal/infrastructure/tabular"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ImportService turns uploaded bank statement files into submitted bank
// transactions. The pipeline is start (parse the file and hand back the stored
// mapping), map (build a typed preview with duplicate flags) and publish
// (insert the whole batch atomically).
type ImportService struct {
	txRepo          reconciliation.BankTransactionRepository
	bankAccountRepo reconciliation.BankAccountRepository
	cfg             config.ImportConfig
	logger          *zap.Logger
}

// NewImportService creates a new ImportService
func NewImportService(
	txRepo reconciliation.BankTransactionRepository,
	bankAccountRepo reconciliation.BankAccountRepository,
	cfg config.ImportConfig,
	logger *zap.Logger,
) *ImportService {
	return &ImportService{
		txRepo:          txRepo,
		bankAccountRepo: bankAccountRepo,
		cfg:             cfg,
		logger:          logger,
	}
}

// StartImportRequest carries the uploaded file and its target bank account
type StartImportRequest struct {
	BankAccountID uuid.UUID
	Filename      string
	File          io.Reader
}

// StartImportResult is the parsed file plus the mapping stored on the bank
// account, so the client can pre-fill the column assignment.
type StartImportResult struct {
	Header     []string          `json:"header"`
	Body       [][]string        `json:"body"`
	FieldMap   map[string]string `json:"field_map"`
	DateFormat string            `json:"date_format"`
}

// StartImport parses the statement file and returns its content together with
// the column mapping stored on the bank account.
func (s *ImportService) StartImport(ctx context.Context, req StartImportRequest) (*StartImportResult, error) {
	bankAccount, err := s.bankAccountRepo.FindByID(ctx, req.BankAccountID)
	if err != nil {
		return nil, err
	}

	limited := &io.LimitedReader{R: req.File, N: s.cfg.MaxFileSize + 1}
	table, err := tabular.Read(req.Filename, limited)
	if err != nil {
		return nil, err
	}
	if limited.N <= 0 {
		return nil, shared.NewDomainError("VALIDATION",
			fmt.Sprintf("File exceeds the maximum import size of %d bytes", s.cfg.MaxFileSize))
	}

	if len(bankAccount.FieldMap) == 0 {
		return nil, reconciliation.ErrMissingFieldMap
	}
	fieldMap := make(map[string]string, len(bankAccount.FieldMap))
	for _, row := range bankAccount.FieldMap {
		fieldMap[row.TransactionField] = row.FileColumn
	}

	dateFormat := bankAccount.DateFormat
	if dateFormat == "" {
		dateFormat = "Auto"
	}

	return &StartImportResult{
		Header:     table.Headers,
		Body:       table.Rows,
		FieldMap:   fieldMap,
		DateFormat: dateFormat,
	}, nil
}

// FieldMapping assigns statement file columns to transaction fields. Either
// one signed amount column or a deposit/withdrawal pair is mapped.
type FieldMapping struct {
	DateColumn string `json:"date_column" binding:"required"`
	// SameAmountColumn selects the single-column variant, where the sign of
	// the amount decides the direction and PositiveIs names the side positive
	// values land on.
	SameAmountColumn  bool   `json:"same_amount_column"`
	AmountColumn      string `json:"amount_column"`
	PositiveIs        string `json:"positive_is"`
	DepositColumn     string `json:"deposit_column"`
	WithdrawalColumn  string `json:"withdrawal_column"`
	DescriptionColumn string `json:"description_column"`
	ReferenceColumn   string `json:"reference_column"`
	DateFormat        string `json:"date_format"`
}

// MapFieldsRequest builds a preview from parsed file content
type MapFieldsRequest struct {
	BankAccountID uuid.UUID    `json:"bank_account_id" binding:"required"`
	Mapping       FieldMapping `json:"mapping" binding:"required"`
	Header        []string     `json:"header" binding:"required"`
	Body          [][]string   `json:"body" binding:"required"`
}

// PreviewRow is one statement line normalized into transaction fields.
// Duplicate marks rows that already exist as submitted transactions.
type PreviewRow struct {
	Date            time.Time       `json:"date"`
	Deposit         decimal.Decimal `json:"deposit"`
	Withdrawal      decimal.Decimal `json:"withdrawal"`
	Description     string          `json:"description"`
	ReferenceNumber string          `json:"reference_number"`
	BankAccountID   uuid.UUID       `json:"bank_account_id"`
	Currency        string          `json:"currency"`
	Duplicate       bool            `json:"duplicate"`
}

// MapFields applies the column mapping to the file body and returns the typed
// preview. Duplicate detection walks rows from the top and stops probing at
// the first non-duplicate: statements are exported oldest-first, so once a
// new row appears everything below it is new as well.
func (s *ImportService) MapFields(ctx context.Context, req MapFieldsRequest) ([]PreviewRow, error) {
	bankAccount, err := s.bankAccountRepo.FindByID(ctx, req.BankAccountID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.bankAccountRepo.LedgerAccount(ctx, req.BankAccountID)
	if err != nil {
		return nil, err
	}

	table := &tabular.Table{Headers: req.Header, Rows: req.Body}
	cols, err := resolveColumns(table, req.Mapping)
	if err != nil {
		return nil, err
	}

	rows := make([]PreviewRow, 0, len(req.Body))
	probing := true
	for i, record := range req.Body {
		row, err := buildPreviewRow(record, cols, req.Mapping, bankAccount.ID, ledger.Currency)
		if err != nil {
			return nil, shared.NewDomainError("VALIDATION",
				fmt.Sprintf("Row %d: %s", i+1, err.Error()))
		}

		if probing {
			count, err := s.countDuplicates(ctx, row)
			if err != nil {
				return nil, err
			}
			if count > 0 {
				row.Duplicate = true
			} else {
				probing = false
			}
		}
		rows = append(rows, *row)
	}
	return rows, nil
}

// PublishRequest inserts previewed rows as bank transactions
type PublishRequest struct {
	Rows []PreviewRow `json:"rows" binding:"required"`
}

// PublishResult reports how many transactions a publish run created
type PublishResult struct {
	Imported int `json:"imported"`
}

// PublishRecords inserts and submits one bank transaction per row. The batch
// is atomic: any failure rolls everything back.
func (s *ImportService) PublishRecords(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if len(req.Rows) == 0 {
		return nil, shared.NewDomainError("VALIDATION", "No rows to publish")
	}
	if len(req.Rows) > s.cfg.BatchSize {
		return nil, shared.NewDomainError("VALIDATION",
			fmt.Sprintf("A publish batch may hold at most %d rows", s.cfg.BatchSize))
	}

	txs := make([]*reconciliation.BankTransaction, 0, len(req.Rows))
	for i, row := range req.Rows {
		bt, err := reconciliation.NewBankTransaction(
			row.BankAccountID, row.Date, row.Deposit, row.Withdrawal, row.Currency)
		if err != nil {
			return nil, shared.NewDomainError("VALIDATION",
				fmt.Sprintf("Row %d: %s", i+1, err.Error()))
		}
		bt.Description = row.Description
		bt.ReferenceNumber = row.ReferenceNumber
		if err := bt.Submit(); err != nil {
			return nil, err
		}
		txs = append(txs, bt)
	}

	if err := s.txRepo.CreateBatch(ctx, txs); err != nil {
		s.logger.Error("statement publish failed, batch rolled back",
			zap.Int("rows", len(txs)),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("bank transactions imported", zap.Int("count", len(txs)))
	return &PublishResult{Imported: len(txs)}, nil
}

// LastTransaction is the continuity marker shown before a new import
type LastTransaction struct {
	Date       time.Time       `json:"date"`
	Deposit    decimal.Decimal `json:"deposit"`
	Withdrawal decimal.Decimal `json:"withdrawal"`
}

// GetLastTransaction returns the most recent submitted transaction of a bank
// account, or nil when none exists yet.
func (s *ImportService) GetLastTransaction(ctx context.Context, bankAccountID uuid.UUID) (*LastTransaction, error) {
	if _, err := s.bankAccountRepo.FindByID(ctx, bankAccountID); err != nil {
		return nil, err
	}

	bt, err := s.txRepo.FindLastSubmitted(ctx, bankAccountID)
	if err != nil {
		return nil, err
	}
	if bt == nil {
		return nil, nil
	}
	return &LastTransaction{
		Date:       bt.Date,
		Deposit:    bt.Deposit,
		Withdrawal: bt.Withdrawal,
	}, nil
}

func (s *ImportService) countDuplicates(ctx context.Context, row *PreviewRow) (int64, error) {
	probe := &reconciliation.BankTransaction{
		Date:            row.Date,
		Deposit:         row.Deposit,
		Withdrawal:      row.Withdrawal,
		Currency:        row.Currency,
		Description:     row.Description,
		ReferenceNumber: row.ReferenceNumber,
		BankAccountID:   row.BankAccountID,
	}
	return s.txRepo.CountDuplicates(ctx, probe)
}

// resolvedColumns holds the indexes of the mapped columns
type resolvedColumns struct {
	date        int
	amount      int
	deposit     int
	withdrawal  int
	description int
	reference   int
}

func resolveColumns(table *tabular.Table, mapping FieldMapping) (*resolvedColumns, error) {
	cols := &resolvedColumns{
		date:        table.Column(mapping.DateColumn),
		description: table.Column(mapping.DescriptionColumn),
		reference:   table.Column(mapping.ReferenceColumn),
	}
	if cols.date < 0 {
		return nil, missingColumn(mapping.DateColumn)
	}
	if cols.description < 0 {
		return nil, missingColumn(mapping.DescriptionColumn)
	}
	if cols.reference < 0 {
		return nil, missingColumn(mapping.ReferenceColumn)
	}

	if mapping.SameAmountColumn {
		if mapping.PositiveIs != "Deposit" && mapping.PositiveIs != "Withdrawal" {
			return nil, shared.NewDomainError("VALIDATION",
				"positive_is must be Deposit or Withdrawal for a single amount column")
		}
		cols.amount = table.Column(mapping.AmountColumn)
		if cols.amount < 0 {
			return nil, missingColumn(mapping.AmountColumn)
		}
		return cols, nil
	}

	cols.deposit = table.Column(mapping.DepositColumn)
	cols.withdrawal = table.Column(mapping.WithdrawalColumn)
	if cols.deposit < 0 {
		return nil, missingColumn(mapping.DepositColumn)
	}
	if cols.withdrawal < 0 {
		return nil, missingColumn(mapping.WithdrawalColumn)
	}
	return cols, nil
}

func missingColumn(name string) error {
	return shared.NewDomainError("VALIDATION",
		fmt.Sprintf("Column %q not found in the file header", name))
}

func buildPreviewRow(record []string, cols *resolvedColumns, mapping FieldMapping, bankAccountID uuid.UUID, currency string) (*PreviewRow, error) {
	date, err := parseDate(record[cols.date], mapping.DateFormat)
	if err != nil {
		return nil, err
	}

	row := &PreviewRow{
		Date:            date,
		Description:     record[cols.description],
		ReferenceNumber: record[cols.reference],
		BankAccountID:   bankAccountID,
		Currency:        currency,
	}

	if mapping.SameAmountColumn {
		value, err := parseAmount(record[cols.amount])
		if err != nil {
			return nil, err
		}
		positive := !value.IsNegative()
		toDeposit := positive == (mapping.PositiveIs == "Deposit")
		if toDeposit {
			row.Deposit = value.Abs()
			row.Withdrawal = decimal.Zero
		} else {
			row.Deposit = decimal.Zero
			row.Withdrawal = value.Abs()
		}
		return row, nil
	}

	if row.Deposit, err = parseAmount(record[cols.deposit]); err != nil {
		return nil, err
	}
	if row.Withdrawal, err = parseAmount(record[cols.withdrawal]); err != nil {
		return nil, err
	}
	return row, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}

// dateLayouts maps the bank-configurable format names to Go layouts
var dateLayouts = map[string]string{
	"Y/m/d":    "2006/01/02",
	"d/m/Y":    "02/01/2006",
	"dd/mm/YY": "02/01/06",
	"m/d/Y":    "01/02/2006",
	"m-d-Y":    "01-02-2006",
	"d-m-Y":    "02-01-2006",
	"Y-m-d":    "2006-01-02",
	"Y/d/m":    "2006/02/01",
}

// autoLayouts are tried in order when the format is Auto or the configured
// format does not parse. ISO first, day-first before month-first.
var autoLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
	"01/02/2006",
	"02.01.2006",
}

func parseDate(raw, format string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if layout, ok := dateLayouts[format]; ok {
		if parsed, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return parsed, nil
		}
	}
	for _, layout := range autoLayouts {
		if parsed, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}
