// Package store is the storage collaborator of the ledger: household-scoped
// transactions and the merchant memory that remembers learned categories.
//
// Two implementations are provided. MemoryStore keeps everything in process
// and backs tests and dry runs; PostgresStore persists to PostgreSQL through
// a pgx connection pool.
package store

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"household-ledger/internal/models"
)

// TransactionFilter selects transactions of one household
type TransactionFilter struct {
	HouseholdID string

	// From and To bound the date, inclusive. Zero values leave the side open.
	From time.Time
	To   time.Time

	// Statuses limits the review status when not empty
	Statuses []models.Status

	// UnreconciledOnly keeps rows whose reconciliation status is empty or pending
	UnreconciledOnly bool
}

// Matches reports whether tx satisfies the filter
func (f TransactionFilter) Matches(tx *models.StoredTransaction) bool {
	if tx.HouseholdID != f.HouseholdID {
		return false
	}
	date := models.DateOnly(tx.Date)
	if !f.From.IsZero() && date.Before(models.DateOnly(f.From)) {
		return false
	}
	if !f.To.IsZero() && date.After(models.DateOnly(f.To)) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if tx.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.UnreconciledOnly && !tx.ReconciliationStatus.IsUnreconciled() {
		return false
	}
	return true
}

// TransactionUpdate is a partial update. Nil fields are left unchanged.
type TransactionUpdate struct {
	MerchantNormalized    *string
	Category              *string
	Notes                 *string
	Status                *models.Status
	Type                  *models.TransactionType
	Amount                *decimal.Decimal
	IsReimbursement       *bool
	ReconciliationStatus  *models.ReconciliationStatus
	ReconciliationGroupID *string
	IsDuplicate           *bool
	DuplicateOf           *string
	LinkedToTransactionID *string

	// RequireUnreconciled applies the update only while the stored
	// reconciliation status is empty or pending. Otherwise the store
	// returns a stale_state error and writes nothing.
	RequireUnreconciled bool
}

// Apply writes the non-nil fields onto tx
func (u TransactionUpdate) Apply(tx *models.StoredTransaction) {
	if u.MerchantNormalized != nil {
		tx.MerchantNormalized = *u.MerchantNormalized
	}
	if u.Category != nil {
		tx.Category = *u.Category
	}
	if u.Notes != nil {
		tx.Notes = *u.Notes
	}
	if u.Status != nil {
		tx.Status = *u.Status
	}
	if u.Type != nil {
		tx.Type = *u.Type
	}
	if u.Amount != nil {
		tx.Amount = *u.Amount
	}
	if u.IsReimbursement != nil {
		tx.IsReimbursement = *u.IsReimbursement
	}
	if u.ReconciliationStatus != nil {
		tx.ReconciliationStatus = *u.ReconciliationStatus
	}
	if u.ReconciliationGroupID != nil {
		tx.ReconciliationGroupID = *u.ReconciliationGroupID
	}
	if u.IsDuplicate != nil {
		tx.IsDuplicate = *u.IsDuplicate
	}
	if u.DuplicateOf != nil {
		tx.DuplicateOf = *u.DuplicateOf
	}
	if u.LinkedToTransactionID != nil {
		tx.LinkedToTransactionID = *u.LinkedToTransactionID
	}
}

// Store is the storage collaborator. Every call is scoped to one household.
type Store interface {
	// InsertTransactions persists rows of one household. Rows without an id
	// get a new one; household and creation time are set by the store.
	InsertTransactions(ctx context.Context, householdID string, txs []*models.StoredTransaction) error

	// ListTransactions returns matching rows ordered by date, then id
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*models.StoredTransaction, error)

	// GetTransaction returns one row or a not_found error
	GetTransaction(ctx context.Context, householdID, id string) (*models.StoredTransaction, error)

	// UpdateTransaction applies a partial update, returning not_found or
	// stale_state when nothing was written.
	UpdateTransaction(ctx context.Context, householdID, id string, update TransactionUpdate) error

	// MerchantCategory looks up the learned category of a normalized merchant
	MerchantCategory(ctx context.Context, householdID, merchant string) (string, bool, error)

	// UpsertMerchantCategory records the category learned for a merchant
	UpsertMerchantCategory(ctx context.Context, householdID, merchant, category string) error

	Close()
}

var (
	digitsRegex = regexp.MustCompile(`[0-9]+`)
	spaceRegex  = regexp.MustCompile(`\s+`)
)

// NormalizeMerchant is the merchant memory key: uppercase, digits removed,
// whitespace collapsed. "Wolt 1234  Tel Aviv" becomes "WOLT TEL AVIV".
func NormalizeMerchant(merchant string) string {
	s := digitsRegex.ReplaceAllString(merchant, "")
	s = spaceRegex.ReplaceAllString(s, " ")
	return strings.ToUpper(strings.TrimSpace(s))
}

// Ptr returns a pointer to v, for building updates
func Ptr[T any](v T) *T {
	return &v
}

func sortByDateThenID(txs []*models.StoredTransaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].ID < txs[j].ID
	})
}
