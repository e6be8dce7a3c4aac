package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"household-ledger/internal/models"
	"household-ledger/pkg/errors"
)

// MemoryStore is an in-process Store. Rows handed in and out are copies.
type MemoryStore struct {
	mu       sync.RWMutex
	rows     map[string]*models.StoredTransaction
	order    []string
	merchant map[string]map[string]string
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:     make(map[string]*models.StoredTransaction),
		merchant: make(map[string]map[string]string),
		now:      time.Now,
	}
}

// InsertTransactions implements Store
func (m *MemoryStore) InsertTransactions(_ context.Context, householdID string, txs []*models.StoredTransaction) error {
	if householdID == "" {
		return errors.TenantError(errors.CodeMissingHousehold, "insert_transactions")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tx := range txs {
		if tx.ID != "" {
			if _, exists := m.rows[tx.ID]; exists {
				return errors.StorageError(errors.CodeQueryFailed, "insert_transactions",
					fmt.Errorf("duplicate transaction id %s", tx.ID))
			}
		}
	}

	for _, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		tx.HouseholdID = householdID
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = m.now().UTC()
		}
		m.rows[tx.ID] = tx.Clone()
		m.order = append(m.order, tx.ID)
	}
	return nil
}

// ListTransactions implements Store
func (m *MemoryStore) ListTransactions(_ context.Context, filter TransactionFilter) ([]*models.StoredTransaction, error) {
	if filter.HouseholdID == "" {
		return nil, errors.TenantError(errors.CodeMissingHousehold, "list_transactions")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.StoredTransaction
	for _, id := range m.order {
		if tx := m.rows[id]; filter.Matches(tx) {
			out = append(out, tx.Clone())
		}
	}
	sortByDateThenID(out)
	return out, nil
}

// GetTransaction implements Store
func (m *MemoryStore) GetTransaction(_ context.Context, householdID, id string) (*models.StoredTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.rows[id]
	if !ok || tx.HouseholdID != householdID {
		return nil, errors.ReconciliationError(errors.CodeNotFound, "get_transaction", id, nil)
	}
	return tx.Clone(), nil
}

// UpdateTransaction implements Store. The status check and the write happen
// under one lock.
func (m *MemoryStore) UpdateTransaction(_ context.Context, householdID, id string, update TransactionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.rows[id]
	if !ok || tx.HouseholdID != householdID {
		return errors.ReconciliationError(errors.CodeNotFound, "update_transaction", id, nil)
	}
	if update.RequireUnreconciled && !tx.ReconciliationStatus.IsUnreconciled() {
		return errors.ReconciliationError(errors.CodeStaleState, "update_transaction", id, nil).
			WithContext("reconciliation_status", string(tx.ReconciliationStatus))
	}

	updated := tx.Clone()
	update.Apply(updated)
	m.rows[id] = updated
	return nil
}

// MerchantCategory implements Store
func (m *MemoryStore) MerchantCategory(_ context.Context, householdID, merchant string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	category, ok := m.merchant[householdID][merchant]
	return category, ok, nil
}

// UpsertMerchantCategory implements Store
func (m *MemoryStore) UpsertMerchantCategory(_ context.Context, householdID, merchant, category string) error {
	if householdID == "" {
		return errors.TenantError(errors.CodeMissingHousehold, "upsert_merchant_memory")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.merchant[householdID] == nil {
		m.merchant[householdID] = make(map[string]string)
	}
	m.merchant[householdID][merchant] = category
	return nil
}

// Close implements Store
func (m *MemoryStore) Close() {}
