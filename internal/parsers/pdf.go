package parsers

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"household-ledger/internal/detect"
	"household-ledger/internal/models"
	"household-ledger/pkg/errors"
	"household-ledger/pkg/logger"
)

// pdfStrategy turns an extracted document into candidates. A strategy that
// yields nothing hands over to the next one.
type pdfStrategy struct {
	name string
	run  func(p *PDFParser, doc *Document, file string) ([]*models.ParsedTransaction, *ParseStats)
}

// PDFParser rebuilds statement tables from positioned text fragments
type PDFParser struct {
	config     *Config
	extractor  Extractor
	strategies []pdfStrategy
	logger     logger.Logger
}

// NewPDFParser creates a new PDFParser. The strategies run in order: row
// layout, date anchors, then a regex sweep over the raw text.
func NewPDFParser(config *Config, extractor Extractor) *PDFParser {
	if config == nil {
		config = DefaultConfig()
	}
	if extractor == nil {
		extractor = NewDslipakExtractor()
	}
	return &PDFParser{
		config:    config,
		extractor: extractor,
		strategies: []pdfStrategy{
			{"rows", (*PDFParser).parseRows},
			{"date_anchors", (*PDFParser).parseDateAnchors},
			{"regex_sweep", (*PDFParser).parseRegexSweep},
		},
		logger: logger.GetGlobalLogger().WithComponent("pdf_parser"),
	}
}

// Parse implements Parser
func (pp *PDFParser) Parse(ctx context.Context, in Input) (*models.ParseResult, *ParseStats, error) {
	doc, err := pp.extractor.Extract(ctx, in.Data)
	if err != nil {
		pp.logger.WithError(err).WithField("file", in.Name).Error("PDF text extraction failed")
		return nil, nil, errors.CollaboratorError(errors.CodeExtractionFailed, "pdf_text_extractor", err).
			WithContext("file", in.Name)
	}

	pp.logger.WithFields(logger.Fields{
		"file":      in.Name,
		"fragments": len(doc.Items),
	}).Debug("Extracted PDF text")

	var first *ParseStats
	for _, strategy := range pp.strategies {
		if cancelled(ctx) {
			return nil, first, errors.InternalError(errors.CodeProcessingError, "pdf_parsing", ctx.Err())
		}

		txs, stats := strategy.run(pp, doc, in.Name)
		stats.Strategy = strategy.name
		if first == nil {
			first = stats
		}
		if len(txs) == 0 {
			pp.logger.WithFields(logger.Fields{
				"file":     in.Name,
				"strategy": strategy.name,
			}).Debug("Strategy found no transactions")
			continue
		}

		pp.logger.WithFields(logger.Fields{
			"file":       in.Name,
			"strategy":   strategy.name,
			"valid_rows": len(txs),
			"error_rows": stats.ErrorRows(),
		}).Info("PDF parsing completed")
		return newResult(in.Name, models.SourcePDF, txs, stats), stats, nil
	}

	pp.logger.WithField("file", in.Name).Warn("No transactions found in PDF")
	return newResult(in.Name, models.SourcePDF, nil, first), first, nil
}

// documentCurrency detects the statement currency from the full text
func (pp *PDFParser) documentCurrency(doc *Document) string {
	if code, ok := detect.LookupCurrency(doc.Text); ok {
		return code
	}
	return pp.config.DefaultCurrency
}

// parseRows is the primary strategy: rows by Y, columns by X, then
// amount assignment per row by amount column.
func (pp *PDFParser) parseRows(doc *Document, file string) ([]*models.ParsedTransaction, *ParseStats) {
	stats := NewParseStats(pp.config.MaxRowErrors)
	rows := groupRows(doc.Items, pp.config.PDF.RowTolerance)
	columns := detectColumns(rows, pp.config.PDF.ColumnGap, pp.config.PDF.MaxColumns)
	currency := pp.documentCurrency(doc)

	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = rowCells(row, columns)
	}
	// Two or three amount columns are balance, income and expense; reading
	// them per column keeps an empty income or expense cell in its place.
	amountCols := amountColumns(cells, 3)
	if len(amountCols) < 2 {
		amountCols = nil
	}

	var txs []*models.ParsedTransaction
	for i := range rows {
		tokens := tokenize(cells[i])
		if amountCols != nil && len(tokens.amounts) > 0 {
			tokens.amounts = columnAmounts(cells[i], amountCols)
		}
		if tx := pp.resolveRow(tokens, currency, file, i+1, stats); tx != nil {
			txs = append(txs, tx)
		}
	}
	return txs, stats
}

// resolveRow converts one tokenized row. Rows without a date are layout
// noise and are not counted; dated rows that fail are counted as errors.
func (pp *PDFParser) resolveRow(t rowTokens, currency, file string, rowNum int, stats *ParseStats) *models.ParsedTransaction {
	if len(t.dates) == 0 {
		return nil
	}
	stats.TotalRows++

	rawText := strings.Join(t.text, " ")
	if isHeaderRow(t) {
		stats.AddError(errors.NewRowError(errors.CodeInvalidFormat, &errors.RowContext{
			File:  file,
			Row:   rowNum,
			Value: rawText,
		}, "table header row skipped"))
		return nil
	}

	amount, txType, ok := pp.assignAmounts(t.amounts)
	if !ok {
		stats.AddError(errors.InvalidAmountRowError(file, rowNum, "amount", rawText))
		return nil
	}

	// With a value date and a transaction date, the rightmost is the transaction date.
	date := t.dates[len(t.dates)-1]
	tx := models.NewParsedTransaction(date, cleanDescription(t.text), amount, txType, currency)
	tx.Row = rowNum
	return tx
}

// assignAmounts maps row amounts, left to right, onto statement columns:
// three are balance, income and expense; two are either an amount beside a
// much larger balance or an income and expense pair; one is an expense.
func (pp *PDFParser) assignAmounts(amounts []decimal.Decimal) (decimal.Decimal, models.TransactionType, bool) {
	if len(amounts) >= 3 {
		income, expense := amounts[1], amounts[2]
		if expense.IsPositive() {
			return expense, models.TransactionTypeExpense, true
		}
		if income.IsPositive() {
			return income, models.TransactionTypeIncome, true
		}
		return decimal.Zero, "", false
	}

	switch len(amounts) {
	case 1:
		if amounts[0].IsPositive() {
			return amounts[0], models.TransactionTypeExpense, true
		}
	case 2:
		income, expense := amounts[0], amounts[1]
		hi, lo := decimal.Max(income, expense), decimal.Min(income, expense)
		if lo.IsPositive() && hi.GreaterThanOrEqual(lo.Mul(decimal.NewFromFloat(pp.config.PDF.BalanceRatio))) {
			return lo, models.TransactionTypeExpense, true
		}
		if expense.IsPositive() {
			return expense, models.TransactionTypeExpense, true
		}
		if income.IsPositive() {
			return income, models.TransactionTypeIncome, true
		}
	}
	return decimal.Zero, "", false
}
