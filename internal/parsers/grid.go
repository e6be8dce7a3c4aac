package parsers

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"household-ledger/internal/detect"
	"household-ledger/internal/models"
	"household-ledger/pkg/errors"
	"household-ledger/pkg/logger"
)

// amountResolution is the signed amount read from one row
type amountResolution struct {
	amount decimal.Decimal
	// cardConvention means positive amounts are money owed (expenses)
	cardConvention bool
	installment    detect.InstallmentDecision
}

// amountStrategy reads a row's amount from one family of columns
type amountStrategy struct {
	name    string
	resolve func(row []string, m detect.ColumnMapping, policy detect.InstallmentPolicy) (amountResolution, bool)
}

// amountStrategies are tried in order per row; the first populated one wins
var amountStrategies = []amountStrategy{
	{"billing", billingAmount},
	{"credit_debit", creditDebitAmount},
	{"amount", genericAmount},
}

func decimalCell(row []string, index int) (decimal.Decimal, bool) {
	raw := cell(row, index)
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := models.ParseDecimalFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func billingAmount(row []string, m detect.ColumnMapping, policy detect.InstallmentPolicy) (amountResolution, bool) {
	if !m.HasBillingPair() {
		return amountResolution{}, false
	}
	billing, hasBilling := decimalCell(row, m.Billing)
	transaction, hasTransaction := decimalCell(row, m.TransactionAmount)
	if !hasBilling && !hasTransaction {
		return amountResolution{}, false
	}

	decision := policy.Apply(billing, hasBilling, transaction, hasTransaction)
	if decision.Amount.IsZero() {
		return amountResolution{}, false
	}
	return amountResolution{amount: decision.Amount, cardConvention: true, installment: decision}, true
}

func creditDebitAmount(row []string, m detect.ColumnMapping, _ detect.InstallmentPolicy) (amountResolution, bool) {
	if !m.HasCreditDebit() {
		return amountResolution{}, false
	}
	credit, hasCredit := decimalCell(row, m.Credit)
	debit, hasDebit := decimalCell(row, m.Debit)
	if !hasCredit && !hasDebit {
		return amountResolution{}, false
	}

	net := credit.Abs().Sub(debit.Abs())
	if net.IsZero() {
		return amountResolution{}, false
	}
	return amountResolution{amount: net}, true
}

func genericAmount(row []string, m detect.ColumnMapping, _ detect.InstallmentPolicy) (amountResolution, bool) {
	amount, ok := decimalCell(row, m.Amount)
	if !ok || amount.IsZero() {
		return amountResolution{}, false
	}
	return amountResolution{amount: amount}, true
}

// firstAmountColumn names the column reported when no amount could be read
func firstAmountColumn(headers []string, m detect.ColumnMapping) (string, int) {
	for _, idx := range []int{m.Billing, m.TransactionAmount, m.Credit, m.Debit, m.Amount} {
		if idx >= 0 {
			return cell(headers, idx), idx
		}
	}
	return "amount", -1
}

// dateReader parses a date cell; Excel adds serial-number support
type dateReader func(raw string) (time.Time, bool)

// gridParser turns an untyped grid of cells into transaction candidates.
// CSV and Excel parsers share it after reading their rows.
type gridParser struct {
	config *Config
	logger logger.Logger
}

func newGridParser(config *Config, component string) *gridParser {
	if config == nil {
		config = DefaultConfig()
	}
	return &gridParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent(component),
	}
}

// parseGrid locates the header row, maps columns and converts every data row.
// Rows already rejected while reading are expected in stats.
func (g *gridParser) parseGrid(ctx context.Context, fileName string, rows [][]string, stats *ParseStats, readDate dateReader) ([]*models.ParsedTransaction, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	headerIdx := detect.FindHeaderRow(rows, g.config.HeaderScanRows)
	headers := cleanRecord(rows[headerIdx])
	mapping := detect.DetectColumnMapping(headers)
	data := rows[headerIdx+1:]

	g.logger.WithFields(logger.Fields{
		"file":       fileName,
		"header_row": headerIdx + 1,
		"mapping":    fmt.Sprintf("%+v", mapping),
	}).Debug("Detected column mapping")

	if !mapping.IsUsable() {
		// Nothing in this file can be read; every data row counts as an error.
		for i, row := range data {
			if isEmptyRecord(row) {
				continue
			}
			stats.TotalRows++
			stats.AddError(errors.NewRowError(errors.CodeMissingColumn, &errors.RowContext{
				File:     fileName,
				Row:      headerIdx + i + 2,
				Column:   "date/amount",
				Expected: "a header row naming date and amount columns",
			}, "no usable date and amount columns, row skipped"))
		}
		g.logger.WithFields(logger.Fields{
			"file":    fileName,
			"headers": headers,
		}).Warn("No usable column mapping found")
		return nil, nil
	}

	fileCurrency, ok := detect.CurrencyFromData(headers, data)
	if !ok {
		fileCurrency = g.config.DefaultCurrency
	}
	dateHeader := cell(headers, mapping.Date)

	var transactions []*models.ParsedTransaction
	for i, row := range data {
		if cancelled(ctx) {
			return transactions, errors.InternalError(errors.CodeProcessingError, "grid_parsing", ctx.Err())
		}
		if isEmptyRecord(row) {
			continue
		}
		stats.TotalRows++
		rowNum := headerIdx + i + 2

		rawDate := cell(row, mapping.Date)
		date, ok := readDate(rawDate)
		if !ok {
			stats.AddError(errors.InvalidDateRowError(fileName, rowNum, dateHeader, rawDate))
			continue
		}

		var resolution amountResolution
		resolved := false
		for _, strategy := range amountStrategies {
			if resolution, resolved = strategy.resolve(row, mapping, g.config.Installment); resolved {
				break
			}
		}
		if !resolved {
			column, idx := firstAmountColumn(headers, mapping)
			stats.AddError(errors.InvalidAmountRowError(fileName, rowNum, column, cell(row, idx)))
			continue
		}

		tx := models.NewParsedTransaction(date, cell(row, mapping.Description), resolution.amount,
			transactionType(resolution), rowCurrency(row, mapping, fileCurrency))
		tx.Row = rowNum
		if resolution.installment.IsInstallment {
			tx.IsInstallment = true
			tx.InstallmentInfo = &models.InstallmentInfo{Total: resolution.installment.Total}
		}

		transactions = append(transactions, tx)
	}

	return transactions, nil
}

// transactionType applies the card or bank sign convention
func transactionType(r amountResolution) models.TransactionType {
	positive := r.amount.IsPositive()
	if r.cardConvention {
		if positive {
			return models.TransactionTypeExpense
		}
		return models.TransactionTypeIncome
	}
	if positive {
		return models.TransactionTypeIncome
	}
	return models.TransactionTypeExpense
}

// rowCurrency prefers a currency column value over the file-level currency
func rowCurrency(row []string, m detect.ColumnMapping, fallback string) string {
	if m.Currency < 0 {
		return fallback
	}
	if code, ok := detect.LookupCurrency(cell(row, m.Currency)); ok {
		return code
	}
	return fallback
}
