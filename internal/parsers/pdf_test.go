package parsers

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/dslipak/pdf"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household-ledger/internal/models"
	"household-ledger/pkg/errors"
)

// stubExtractor returns a fixed document
type stubExtractor struct {
	doc *Document
	err error
}

func (s *stubExtractor) Extract(ctx context.Context, data []byte) (*Document, error) {
	return s.doc, s.err
}

func fragmentsDoc(items ...Fragment) *Document {
	return &Document{Text: documentText(items), Items: items}
}

func parsePDF(t *testing.T, doc *Document) (*models.ParseResult, *ParseStats) {
	t.Helper()
	parser := NewPDFParser(DefaultConfig(), &stubExtractor{doc: doc})
	result, stats, err := parser.Parse(context.Background(), Input{Name: "statement.pdf", Data: []byte("%PDF")})
	require.NoError(t, err)
	return result, stats
}

func TestPDFParser_RowStrategy(t *testing.T) {
	doc := fragmentsDoc(
		// column labels, no date: layout noise
		Fragment{Page: 1, X: 500, Y: 720, Text: "ךיראת"},
		Fragment{Page: 1, X: 300, Y: 720, Text: "רואית"},
		Fragment{Page: 1, X: 100, Y: 720, Text: "םוכס"},
		// balance beside a much smaller amount
		Fragment{Page: 1, X: 500, Y: 700, Text: "05/03/2026"},
		Fragment{Page: 1, X: 300, Y: 700, Text: "לסרפוש 88123456"},
		Fragment{Page: 1, X: 100, Y: 700, Text: "250.00"},
		Fragment{Page: 1, X: 50, Y: 700, Text: "5,000.00"},
		// dated header echo is rejected
		Fragment{Page: 1, X: 500, Y: 680, Text: "06/03/2026"},
		Fragment{Page: 1, X: 300, Y: 680, Text: "הרתי"},
		Fragment{Page: 1, X: 50, Y: 680, Text: "4,750.00"},
	)

	result, stats := parsePDF(t, doc)

	assert.Equal(t, "rows", stats.Strategy)
	assert.Equal(t, models.SourcePDF, result.SourceType)
	assert.Equal(t, 2, result.TotalRows)
	assert.Equal(t, 1, result.ErrorRows)
	require.Len(t, result.Transactions, 1)

	tx := result.Transactions[0]
	assert.Equal(t, "2026-03-05", models.FormatDate(tx.Date))
	assert.Equal(t, "שופרסל", tx.MerchantRaw)
	assert.True(t, tx.Amount.Equal(mustDecimal("250")), "got %s", tx.Amount)
	assert.Equal(t, models.TransactionTypeExpense, tx.Type)
	assert.Equal(t, "ILS", tx.Currency)
}

func TestPDFParser_DateAnchorFallback(t *testing.T) {
	// The amount and merchant sit on the line below the date, so no single
	// visual row carries a complete transaction.
	doc := fragmentsDoc(
		Fragment{Page: 1, X: 500, Y: 700, Text: "05/03/2026"},
		Fragment{Page: 1, X: 300, Y: 690, Text: "AMAZON"},
		Fragment{Page: 1, X: 100, Y: 690, Text: "120.00"},
		Fragment{Page: 1, X: 500, Y: 650, Text: "07/03/2026"},
		Fragment{Page: 1, X: 300, Y: 640, Text: "NETFLIX"},
		Fragment{Page: 1, X: 100, Y: 640, Text: "39.90"},
	)

	result, stats := parsePDF(t, doc)

	assert.Equal(t, "date_anchors", stats.Strategy)
	require.Len(t, result.Transactions, 2)
	assert.Equal(t, "AMAZON", result.Transactions[0].MerchantRaw)
	assert.True(t, result.Transactions[0].Amount.Equal(mustDecimal("120")))
	assert.Equal(t, "2026-03-07", models.FormatDate(result.Transactions[1].Date))
	assert.Equal(t, "NETFLIX", result.Transactions[1].MerchantRaw)
}

func TestPDFParser_RegexSweepFallback(t *testing.T) {
	doc := &Document{
		Text: "05/03/2026 06/03/2026 לסרפוש 250.00 5,000.00\n" +
			"07/03/2026 ABC 12.00\n",
	}

	result, stats := parsePDF(t, doc)

	assert.Equal(t, "regex_sweep", stats.Strategy)
	assert.Equal(t, 2, result.TotalRows)
	assert.Equal(t, 1, result.ErrorRows)
	require.Len(t, result.Transactions, 1)

	tx := result.Transactions[0]
	assert.Equal(t, "2026-03-06", models.FormatDate(tx.Date))
	assert.Equal(t, "שופרסל", tx.MerchantRaw)
	assert.True(t, tx.Amount.Equal(mustDecimal("250")))
}

func TestPDFParser_RegexSweepRightToLeft(t *testing.T) {
	// The date is the rightmost fragment, so each text line ends with it.
	doc := fragmentsDoc(
		Fragment{Page: 1, X: 500, Y: 700, Text: "05/03/2026"},
		Fragment{Page: 1, X: 300, Y: 700, Text: "לסרפוש"},
		Fragment{Page: 1, X: 100, Y: 700, Text: "250.00"},
		Fragment{Page: 1, X: 50, Y: 700, Text: "5,000.00"},
		// wrapped description line without a date
		Fragment{Page: 1, X: 300, Y: 690, Text: "ףינס"},
		Fragment{Page: 1, X: 500, Y: 680, Text: "06/03/2026"},
		Fragment{Page: 1, X: 300, Y: 680, Text: "זפ"},
		Fragment{Page: 1, X: 100, Y: 680, Text: "100.00"},
		Fragment{Page: 1, X: 50, Y: 680, Text: "4,900.00"},
	)
	require.True(t, strings.HasSuffix(strings.Split(doc.Text, "\n")[0], "05/03/2026"))

	pp := NewPDFParser(DefaultConfig(), &stubExtractor{})
	txs, stats := pp.parseRegexSweep(doc, "statement.pdf")

	assert.Equal(t, 2, stats.TotalRows)
	assert.Zero(t, stats.ErrorRows())
	require.Len(t, txs, 2)
	assert.Equal(t, "2026-03-05", models.FormatDate(txs[0].Date))
	assert.Equal(t, "שופרסל", txs[0].MerchantRaw)
	assert.True(t, txs[0].Amount.Equal(mustDecimal("250")), "got %s", txs[0].Amount)
	assert.Equal(t, "2026-03-06", models.FormatDate(txs[1].Date))
	assert.Equal(t, "פז", txs[1].MerchantRaw)
	assert.True(t, txs[1].Amount.Equal(mustDecimal("100")), "got %s", txs[1].Amount)
}

func TestSweepRows(t *testing.T) {
	rows := sweepRows("Statement 2026\n" +
		"120.00 1,000.00 A 01/03/2026\n" +
		"wrapped\n" +
		"02/03/2026 B 10.00 03/03/2026 C 20.00")

	require.Len(t, rows, 3)
	assert.Equal(t, "120.00 1,000.00 A  \nwrapped", rows[0].span)
	assert.Equal(t, "  B 10.00 ", rows[1].span)
	assert.Equal(t, "2026-03-03", models.FormatDate(rows[2].date))
	assert.Equal(t, " C 20.00", rows[2].span)
}

func TestPDFParser_NothingFound(t *testing.T) {
	result, stats := parsePDF(t, &Document{Text: "Dear customer, thank you."})

	assert.Empty(t, result.Transactions)
	assert.Equal(t, "rows", stats.Strategy)
	assert.Equal(t, 0, result.ErrorRows)
}

func TestPDFParser_CurrencyFromText(t *testing.T) {
	doc := fragmentsDoc(
		Fragment{Page: 1, X: 10, Y: 800, Text: "Amounts in USD"},
		Fragment{Page: 1, X: 500, Y: 700, Text: "05/03/2026"},
		Fragment{Page: 1, X: 300, Y: 700, Text: "AIRBNB"},
		Fragment{Page: 1, X: 100, Y: 700, Text: "410.00"},
	)

	result, _ := parsePDF(t, doc)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, "USD", result.Transactions[0].Currency)
}

func TestPDFParser_ExtractionFailure(t *testing.T) {
	parser := NewPDFParser(DefaultConfig(), &stubExtractor{err: fmt.Errorf("encrypted")})
	_, _, err := parser.Parse(context.Background(), Input{Name: "locked.pdf"})
	require.Error(t, err)

	re, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeExtractionFailed, re.Code)
}

func TestDslipakExtractor_InvalidData(t *testing.T) {
	_, err := NewDslipakExtractor().Extract(context.Background(), []byte("not a pdf"))
	assert.Error(t, err)
}

func TestJoinGlyphs(t *testing.T) {
	e := NewDslipakExtractor()
	glyphs := []pdf.Text{
		{X: 10, Y: 700, W: 5, FontSize: 10, S: "1"},
		{X: 15, Y: 700, W: 5, FontSize: 10, S: "2"},
		// small gap: same fragment with a space
		{X: 22, Y: 700, W: 5, FontSize: 10, S: "A"},
		// wide gap: new fragment
		{X: 80, Y: 700, W: 5, FontSize: 10, S: "B"},
		// next line
		{X: 10, Y: 680, W: 5, FontSize: 10, S: "C"},
	}

	got := e.joinGlyphs(1, glyphs)
	require.Len(t, got, 3)
	assert.Equal(t, "12 A", got[0].Text)
	assert.Equal(t, "B", got[1].Text)
	assert.Equal(t, 80.0, got[1].X)
	assert.Equal(t, "C", got[2].Text)
}

func TestAssignAmounts(t *testing.T) {
	pp := NewPDFParser(DefaultConfig(), &stubExtractor{})

	tests := []struct {
		name     string
		amounts  []string
		want     string
		wantType models.TransactionType
		ok       bool
	}{
		{"balance, income, expense", []string{"1000", "0", "50"}, "50", models.TransactionTypeExpense, true},
		{"balance and income only", []string{"1000", "200", "0"}, "200", models.TransactionTypeIncome, true},
		{"single amount", []string{"75.10"}, "75.10", models.TransactionTypeExpense, true},
		{"amount beside balance", []string{"5000", "250"}, "250", models.TransactionTypeExpense, true},
		{"comparable pair", []string{"100", "120"}, "120", models.TransactionTypeExpense, true},
		{"pair with zero income", []string{"0", "42"}, "42", models.TransactionTypeExpense, true},
		{"pair with zero expense", []string{"42", "0"}, "42", models.TransactionTypeIncome, true},
		{"only zero", []string{"0"}, "", "", false},
		{"none", nil, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var amounts []decimal.Decimal
			for _, a := range tt.amounts {
				amounts = append(amounts, mustDecimal(a))
			}
			got, txType, ok := pp.assignAmounts(amounts)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.True(t, got.Equal(mustDecimal(tt.want)), "got %s", got)
			assert.Equal(t, tt.wantType, txType)
		})
	}
}

func TestRepairHebrew(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"לסרפוש AMAZON", "שופרסל AMAZON"},
		{"BIT ב הרבעה", "BIT העברה ב"},
		{"AMAZON MKTPLACE", "AMAZON MKTPLACE"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, repairHebrew(tt.in))
		})
	}
}

func TestCleanDescription(t *testing.T) {
	assert.Equal(t, "AMAZON REF", cleanDescription([]string{"AMAZON", "123456", "REF12345"}))
	assert.Equal(t, "שופרסל", cleanDescription([]string{"לסרפוש", "12/03"}))
	assert.Equal(t, "", cleanDescription(nil))
}

func TestIsHeaderRow(t *testing.T) {
	amount := []decimal.Decimal{mustDecimal("300")}
	tests := []struct {
		name    string
		text    string
		amounts []decimal.Decimal
		want    bool
	}{
		{"column labels", "תאריך ערך", nil, true},
		{"balance line in extracted order", "הרתי", amount, true},
		{"two labels beside an amount", "תאריך סכום", amount, true},
		{"marker without an amount", "תוכז הרבעה", nil, true},
		{"transfer to an account", "יול ןתנ תוכזל הרבעה", amount, false},
		{"balance top-up", "השלמת יתרה", amount, false},
		{"marker inside a word", "יתרהבנק", amount, false},
		{"merchant", "שופרסל דיל", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := rowTokens{text: strings.Fields(tt.text), amounts: tt.amounts}
			assert.Equal(t, tt.want, isHeaderRow(row))
		})
	}
}

func TestPDFParser_DescriptionsWithColumnLabels(t *testing.T) {
	doc := fragmentsDoc(
		Fragment{Page: 1, X: 500, Y: 700, Text: "05/03/2026"},
		Fragment{Page: 1, X: 300, Y: 700, Text: "יול ןתנ תוכזל הרבעה"},
		Fragment{Page: 1, X: 100, Y: 700, Text: "500.00"},
		Fragment{Page: 1, X: 50, Y: 700, Text: "10,000.00"},
		Fragment{Page: 1, X: 500, Y: 680, Text: "06/03/2026"},
		Fragment{Page: 1, X: 300, Y: 680, Text: "הרתי תמלשה"},
		Fragment{Page: 1, X: 100, Y: 680, Text: "300.00"},
		Fragment{Page: 1, X: 50, Y: 680, Text: "9,700.00"},
	)

	result, stats := parsePDF(t, doc)

	assert.Equal(t, "rows", stats.Strategy)
	assert.Zero(t, result.ErrorRows)
	require.Len(t, result.Transactions, 2)
	assert.Equal(t, "העברה לזכות נתן לוי", result.Transactions[0].MerchantRaw)
	assert.True(t, result.Transactions[0].Amount.Equal(mustDecimal("500")))
	assert.Equal(t, "2026-03-06", models.FormatDate(result.Transactions[1].Date))
	assert.Equal(t, "השלמת יתרה", result.Transactions[1].MerchantRaw)
	assert.True(t, result.Transactions[1].Amount.Equal(mustDecimal("300")))
}

func TestPDFParser_AmountsByColumn(t *testing.T) {
	// balance, income and expense columns; each row fills one of the last two
	doc := fragmentsDoc(
		Fragment{Page: 1, X: 500, Y: 700, Text: "01/03/2026"},
		Fragment{Page: 1, X: 300, Y: 700, Text: "AMAZON"},
		Fragment{Page: 1, X: 150, Y: 700, Text: "50.00"},
		Fragment{Page: 1, X: 50, Y: 700, Text: "1,000.00"},
		Fragment{Page: 1, X: 500, Y: 680, Text: "02/03/2026"},
		Fragment{Page: 1, X: 300, Y: 680, Text: "REFUND"},
		Fragment{Page: 1, X: 100, Y: 680, Text: "200.00"},
		Fragment{Page: 1, X: 50, Y: 680, Text: "1,200.00"},
	)

	result, _ := parsePDF(t, doc)
	require.Len(t, result.Transactions, 2)

	expense, income := result.Transactions[0], result.Transactions[1]
	assert.True(t, expense.Amount.Equal(mustDecimal("50")), "got %s", expense.Amount)
	assert.Equal(t, models.TransactionTypeExpense, expense.Type)
	assert.True(t, income.Amount.Equal(mustDecimal("200")), "got %s", income.Amount)
	assert.Equal(t, models.TransactionTypeIncome, income.Type)
}

func TestAmountColumns(t *testing.T) {
	cells := [][]string{
		{"", "1,000.00", "", "50.00", "AMAZON", "01/03/2026"},
		{"", "1,200.00", "200.00", "", "REFUND", "02/03/2026"},
		// undated rows do not count
		{"99.00", "", "", "", "TOTAL", ""},
	}
	assert.Equal(t, []int{1, 2, 3}, amountColumns(cells, 3))
	assert.Nil(t, amountColumns(cells, 2))

	assert.Nil(t, amountColumns([][]string{{"10.00 20.00", "01/03/2026"}}, 3),
		"two amounts in one column")

	got := columnAmounts(cells[1], []int{1, 2, 3})
	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(mustDecimal("1200")))
	assert.True(t, got[1].Equal(mustDecimal("200")))
	assert.True(t, got[2].IsZero())
}

func TestDetectColumns(t *testing.T) {
	rows := groupRows([]Fragment{
		{Page: 1, X: 50, Y: 700, Text: "a"},
		{Page: 1, X: 51, Y: 700.5, Text: "b"},
		{Page: 1, X: 200, Y: 690, Text: "c"},
		{Page: 1, X: 400, Y: 690, Text: "d"},
	}, 0.8)
	require.Len(t, rows, 2)

	columns := detectColumns(rows, 2, 10)
	assert.Len(t, columns, 3)

	merged := detectColumns(rows, 2, 2)
	assert.Len(t, merged, 2)
	assert.Equal(t, 0, columnIndex(merged, 50))
}

func TestFindDateGroups(t *testing.T) {
	groups := findDateGroups("01/03/2026 02/03/2026 A 10.00 20.00 31/02/2026 B")
	require.Len(t, groups, 2)
	assert.True(t, groups[0].valid)
	assert.Equal(t, "2026-03-02", models.FormatDate(groups[0].date))
	assert.False(t, groups[1].valid)
}
