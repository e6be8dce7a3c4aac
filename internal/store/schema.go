package store

import (
	"context"

	"household-ledger/pkg/errors"
)

const ddl = `
-- Transactions, partitioned logically by household
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    household_id TEXT NOT NULL,
    date DATE NOT NULL,
    merchant_raw TEXT NOT NULL,
    merchant_normalized TEXT,
    amount NUMERIC(18,2) NOT NULL,
    currency VARCHAR(3) NOT NULL DEFAULT 'ILS',
    type VARCHAR(10) NOT NULL,
    category TEXT,
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    confidence DOUBLE PRECISION,
    is_reimbursement BOOLEAN NOT NULL DEFAULT false,
    is_installment BOOLEAN NOT NULL DEFAULT false,
    installment_total INTEGER,
    source TEXT NOT NULL,
    p2p_direction VARCHAR(16),
    p2p_counterparty TEXT,
    p2p_memo TEXT,
    reconciliation_status VARCHAR(24),
    reconciliation_group_id TEXT,
    is_duplicate BOOLEAN NOT NULL DEFAULT false,
    duplicate_of TEXT,
    linked_to_transaction_id TEXT,
    notes TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_transactions_household_date ON transactions(household_id, date);
CREATE INDEX IF NOT EXISTS idx_transactions_household_reconciliation
    ON transactions(household_id, reconciliation_status);
CREATE INDEX IF NOT EXISTS idx_transactions_group ON transactions(reconciliation_group_id)
    WHERE reconciliation_group_id IS NOT NULL;

-- Learned categories keyed by household and normalized merchant
CREATE TABLE IF NOT EXISTS merchant_memory (
    household_id TEXT NOT NULL,
    merchant_normalized TEXT NOT NULL,
    category TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    PRIMARY KEY (household_id, merchant_normalized)
);
`

// EnsureSchema creates the tables and indexes if they don't exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "ensure_schema", err)
	}
	s.logger.Info("Schema is up to date")
	return nil
}
