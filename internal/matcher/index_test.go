package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"household-ledger/internal/models"
)

func mustDate(s string) time.Time {
	d, err := models.ParseISODate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// cardTx builds a card or bank row
func cardTx(id, date, amount, merchant string, txType models.TransactionType) *models.StoredTransaction {
	return &models.StoredTransaction{
		ParsedTransaction: models.ParsedTransaction{
			Date:        mustDate(date),
			MerchantRaw: merchant,
			Amount:      decimal.RequireFromString(amount),
			Currency:    models.DefaultCurrency,
			Type:        txType,
			Status:      models.StatusPending,
		},
		ID:          id,
		HouseholdID: "hh-1",
		Source:      "card.csv",
	}
}

// appTx builds a row parsed from a wallet-app screenshot
func appTx(id, date, amount string, direction models.P2PDirection) *models.StoredTransaction {
	txType := models.TransactionTypeExpense
	if direction == models.P2PReceived || direction == models.P2PWithdrawal {
		txType = models.TransactionTypeIncome
	}
	return &models.StoredTransaction{
		ParsedTransaction: models.ParsedTransaction{
			Date:            mustDate(date),
			MerchantRaw:     "Bit",
			Amount:          decimal.RequireFromString(amount),
			Currency:        models.DefaultCurrency,
			Type:            txType,
			Status:          models.StatusPending,
			P2PDirection:    direction,
			P2PCounterparty: "Dana",
		},
		ID:          id,
		HouseholdID: "hh-1",
		Source:      models.SourceTagP2PScreenshot,
	}
}

func createIndexFixture() []*models.StoredTransaction {
	return []*models.StoredTransaction{
		cardTx("T1", "2026-03-01", "100.00", "A", models.TransactionTypeExpense),
		cardTx("T2", "2026-03-03", "250.00", "B", models.TransactionTypeExpense),
		cardTx("T3", "2026-03-03", "100.50", "C", models.TransactionTypeExpense),
		cardTx("T4", "2026-03-06", "99.00", "D", models.TransactionTypeIncome),
		cardTx("T5", "2026-03-10", "100.00", "E", models.TransactionTypeExpense),
	}
}

func ids(txs []*models.StoredTransaction) []string {
	out := make([]string, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.ID)
	}
	return out
}

func equalIDs(got []*models.StoredTransaction, want ...string) bool {
	g := ids(got)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

func TestNewTransactionIndex(t *testing.T) {
	transactions := createIndexFixture()
	index := NewTransactionIndex(transactions)

	if index.Len() != len(transactions) {
		t.Errorf("Expected %d transactions, got %d", len(transactions), index.Len())
	}

	if len(index.DateIndex) != 4 {
		t.Errorf("Expected 4 distinct dates, got %d", len(index.DateIndex))
	}
}

func TestTransactionIndex_GetByDate(t *testing.T) {
	index := NewTransactionIndex(createIndexFixture())

	if got := index.GetByDate(mustDate("2026-03-03")); !equalIDs(got, "T2", "T3") {
		t.Errorf("Expected T2, T3 on 2026-03-03, got %v", ids(got))
	}

	if got := index.GetByDate(mustDate("2026-03-04")); len(got) != 0 {
		t.Errorf("Expected no transactions on 2026-03-04, got %v", ids(got))
	}
}

func TestTransactionIndex_GetByDateRange(t *testing.T) {
	index := NewTransactionIndex(createIndexFixture())

	got := index.GetByDateRange(mustDate("2026-03-02"), mustDate("2026-03-06"))
	if !equalIDs(got, "T2", "T3", "T4") {
		t.Errorf("Expected T2, T3, T4, got %v", ids(got))
	}

	if got := index.GetByDateRange(mustDate("2026-03-07"), mustDate("2026-03-02")); len(got) != 0 {
		t.Errorf("Expected empty result for inverted range, got %v", ids(got))
	}
}

func TestTransactionIndex_GetCandidates(t *testing.T) {
	index := NewTransactionIndex(createIndexFixture())
	tolerance := decimal.NewFromInt(1)

	// primary minus candidate in [-1, 5]: candidates dated 03-02 through 03-08
	got := index.GetCandidates(mustDate("2026-03-07"), decimal.NewFromInt(100), tolerance, DayWindow{Min: -1, Max: 5})
	if !equalIDs(got, "T3", "T4") {
		t.Errorf("Expected T3, T4, got %v", ids(got))
	}

	// candidate amounts are compared by magnitude
	got = index.GetCandidates(mustDate("2026-03-01"), decimal.NewFromInt(-100), tolerance, DayWindow{})
	if !equalIDs(got, "T1") {
		t.Errorf("Expected T1 for a negative primary amount, got %v", ids(got))
	}

	got = index.GetCandidates(mustDate("2026-03-10"), decimal.NewFromInt(100), decimal.Zero, DayWindow{Min: -3, Max: 3})
	if !equalIDs(got, "T5") {
		t.Errorf("Expected T5 with zero tolerance, got %v", ids(got))
	}
}

func TestSortSnapshot(t *testing.T) {
	snapshot := []*models.StoredTransaction{
		cardTx("b", "2026-03-02", "1", "X", models.TransactionTypeExpense),
		cardTx("c", "2026-03-01", "1", "X", models.TransactionTypeExpense),
		cardTx("a", "2026-03-02", "1", "X", models.TransactionTypeExpense),
	}

	sorted := sortSnapshot(snapshot)
	if !equalIDs(sorted, "c", "a", "b") {
		t.Errorf("Expected c, a, b, got %v", ids(sorted))
	}
	if !equalIDs(snapshot, "b", "c", "a") {
		t.Error("Expected input slice to keep its order")
	}
}
