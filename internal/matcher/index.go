package matcher

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"household-ledger/internal/models"
)

// TransactionIndex provides date lookups over a snapshot
type TransactionIndex struct {
	// DateIndex maps date strings (YYYY-MM-DD) to transaction slices
	DateIndex map[string][]*models.StoredTransaction

	// AllTransactions holds all indexed transactions in snapshot order
	AllTransactions []*models.StoredTransaction
}

// NewTransactionIndex indexes transactions. Lookups return rows in the order
// they were given, so callers control tie-breaking by sorting first.
func NewTransactionIndex(transactions []*models.StoredTransaction) *TransactionIndex {
	index := &TransactionIndex{
		DateIndex:       make(map[string][]*models.StoredTransaction),
		AllTransactions: transactions,
	}

	index.buildIndexes()
	return index
}

func (ti *TransactionIndex) buildIndexes() {
	for _, tx := range ti.AllTransactions {
		dateKey := models.FormatDate(tx.Date)
		ti.DateIndex[dateKey] = append(ti.DateIndex[dateKey], tx)
	}
}

// Len returns the number of indexed transactions
func (ti *TransactionIndex) Len() int {
	return len(ti.AllTransactions)
}

// GetByDate returns transactions for the specified date
func (ti *TransactionIndex) GetByDate(date time.Time) []*models.StoredTransaction {
	return ti.DateIndex[models.FormatDate(date)]
}

// GetByDateRange returns transactions within the date range (inclusive),
// earliest day first.
func (ti *TransactionIndex) GetByDateRange(startDate, endDate time.Time) []*models.StoredTransaction {
	var result []*models.StoredTransaction

	current := models.DateOnly(startDate)
	end := models.DateOnly(endDate)
	for !current.After(end) {
		if transactions, exists := ti.DateIndex[models.FormatDate(current)]; exists {
			result = append(result, transactions...)
		}
		current = current.AddDate(0, 0, 1)
	}

	return result
}

// GetCandidates returns indexed rows whose amount is within tolerance of
// amount and whose date d satisfies window.Contains(DayDiff(date, d)).
// Rows come back earliest day first, in snapshot order within a day.
func (ti *TransactionIndex) GetCandidates(date time.Time, amount decimal.Decimal, tolerance decimal.Decimal, window DayWindow) []*models.StoredTransaction {
	// primary - candidate in [Min, Max] means candidate in [date-Max, date-Min]
	from := date.AddDate(0, 0, -window.Max)
	to := date.AddDate(0, 0, -window.Min)

	var candidates []*models.StoredTransaction
	for _, tx := range ti.GetByDateRange(from, to) {
		if models.CompareAmountsWithTolerance(tx.Amount.Abs(), amount.Abs(), tolerance) {
			candidates = append(candidates, tx)
		}
	}
	return candidates
}

// sortSnapshot orders rows by date, then id, for deterministic matching
func sortSnapshot(transactions []*models.StoredTransaction) []*models.StoredTransaction {
	sorted := make([]*models.StoredTransaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}
