package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"household-ledger/internal/models"
	"household-ledger/pkg/errors"
	"household-ledger/pkg/logger"
)

// unreconciledClause is the optimistic check of every guarded update
const unreconciledClause = "(reconciliation_status IS NULL OR reconciliation_status = 'pending')"

// selectColumns reads nullable text columns as empty strings and the amount
// as text, so scanning needs no null or numeric wrappers.
const selectColumns = `id, household_id, date, merchant_raw, COALESCE(merchant_normalized, ''),
	amount::text, currency, type, COALESCE(category, ''), status, COALESCE(confidence, 0),
	is_reimbursement, is_installment, COALESCE(installment_total, 0), source,
	COALESCE(p2p_direction, ''), COALESCE(p2p_counterparty, ''), COALESCE(p2p_memo, ''),
	COALESCE(reconciliation_status, ''), COALESCE(reconciliation_group_id, ''),
	is_duplicate, COALESCE(duplicate_of, ''), COALESCE(linked_to_transaction_id, ''),
	COALESCE(notes, ''), created_at`

const insertTransaction = `
	INSERT INTO transactions (
		id, household_id, date, merchant_raw, merchant_normalized, amount, currency, type,
		category, status, confidence, is_reimbursement, is_installment, installment_total,
		source, p2p_direction, p2p_counterparty, p2p_memo, reconciliation_status,
		reconciliation_group_id, is_duplicate, duplicate_of, linked_to_transaction_id, notes, created_at
	) VALUES (
		$1, $2, $3, $4, NULLIF($5, ''), $6::numeric, $7, $8,
		NULLIF($9, ''), $10, $11, $12, $13, $14,
		$15, NULLIF($16, ''), NULLIF($17, ''), NULLIF($18, ''), NULLIF($19, ''),
		NULLIF($20, ''), $21, NULLIF($22, ''), NULLIF($23, ''), NULLIF($24, ''), $25
	)
`

// PostgresStore persists transactions and merchant memory in PostgreSQL
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logger.Logger
	now    func() time.Time
}

// Connect creates a connection pool and checks it with a ping
func Connect(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, errors.StorageError(errors.CodeConnectionFailed, "connect", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.StorageError(errors.CodeConnectionFailed, "ping", err)
	}

	return &PostgresStore{
		pool:   pool,
		logger: logger.GetGlobalLogger().WithComponent("postgres_store"),
		now:    time.Now,
	}, nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertTransactions bulk inserts rows in one database transaction
func (s *PostgresStore) InsertTransactions(ctx context.Context, householdID string, txs []*models.StoredTransaction) error {
	if householdID == "" {
		return errors.TenantError(errors.CodeMissingHousehold, "insert_transactions")
	}
	if len(txs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		tx.HouseholdID = householdID
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = s.now().UTC()
		}
		batch.Queue(insertTransaction, insertArgs(tx)...)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(dbtx pgx.Tx) error {
		br := dbtx.SendBatch(ctx, batch)
		defer br.Close()

		for _, tx := range txs {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "insert_transactions", err)
	}

	s.logger.WithHousehold(householdID).WithField("count", len(txs)).Debug("Inserted transactions")
	return nil
}

func insertArgs(tx *models.StoredTransaction) []any {
	var installmentTotal *int
	if tx.InstallmentInfo != nil {
		total := tx.InstallmentInfo.Total
		installmentTotal = &total
	}
	return []any{
		tx.ID, tx.HouseholdID, models.DateOnly(tx.Date), tx.MerchantRaw, tx.MerchantNormalized,
		tx.Amount.String(), tx.Currency, string(tx.Type),
		tx.Category, string(tx.Status), tx.Confidence, tx.IsReimbursement, tx.IsInstallment, installmentTotal,
		tx.Source, string(tx.P2PDirection), tx.P2PCounterparty, tx.P2PMemo, string(tx.ReconciliationStatus),
		tx.ReconciliationGroupID, tx.IsDuplicate, tx.DuplicateOf, tx.LinkedToTransactionID, tx.Notes, tx.CreatedAt,
	}
}

// ListTransactions implements Store
func (s *PostgresStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*models.StoredTransaction, error) {
	if filter.HouseholdID == "" {
		return nil, errors.TenantError(errors.CodeMissingHousehold, "list_transactions")
	}

	query, args := buildListQuery(filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list_transactions", err)
	}

	txs, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list_transactions", err)
	}
	return txs, nil
}

func buildListQuery(filter TransactionFilter) (string, []any) {
	where := []string{"household_id = $1"}
	args := []any{filter.HouseholdID}

	if !filter.From.IsZero() {
		args = append(args, models.DateOnly(filter.From))
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, models.DateOnly(filter.To))
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.UnreconciledOnly {
		where = append(where, unreconciledClause)
	}

	query := "SELECT " + selectColumns + " FROM transactions WHERE " +
		strings.Join(where, " AND ") + " ORDER BY date, id"
	return query, args
}

// GetTransaction implements Store
func (s *PostgresStore) GetTransaction(ctx context.Context, householdID, id string) (*models.StoredTransaction, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+selectColumns+" FROM transactions WHERE household_id = $1 AND id = $2", householdID, id)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "get_transaction", err)
	}

	tx, err := pgx.CollectExactlyOneRow(rows, scanTransaction)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ReconciliationError(errors.CodeNotFound, "get_transaction", id, nil)
		}
		return nil, errors.StorageError(errors.CodeQueryFailed, "get_transaction", err)
	}
	return tx, nil
}

// UpdateTransaction implements Store. The optimistic check is part of the
// UPDATE statement, so a concurrent merge cannot slip in between.
func (s *PostgresStore) UpdateTransaction(ctx context.Context, householdID, id string, update TransactionUpdate) error {
	query, args := buildUpdateQuery(householdID, id, update)
	if query == "" {
		return s.explainMiss(ctx, householdID, id, update.RequireUnreconciled)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "update_transaction", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.explainMiss(ctx, householdID, id, update.RequireUnreconciled)
}

// explainMiss tells a missing row from a stale one after nothing was updated
func (s *PostgresStore) explainMiss(ctx context.Context, householdID, id string, guarded bool) error {
	var status string
	err := s.pool.QueryRow(ctx,
		"SELECT COALESCE(reconciliation_status, '') FROM transactions WHERE household_id = $1 AND id = $2",
		householdID, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.ReconciliationError(errors.CodeNotFound, "update_transaction", id, nil)
		}
		return errors.StorageError(errors.CodeQueryFailed, "update_transaction", err)
	}
	if guarded && !models.ReconciliationStatus(status).IsUnreconciled() {
		return errors.ReconciliationError(errors.CodeStaleState, "update_transaction", id, nil).
			WithContext("reconciliation_status", status)
	}
	return nil
}

func buildUpdateQuery(householdID, id string, u TransactionUpdate) (string, []any) {
	args := []any{householdID, id}
	var sets []string

	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	setNullable := func(column string, value string) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = NULLIF($%d, '')", column, len(args)))
	}

	if u.MerchantNormalized != nil {
		setNullable("merchant_normalized", *u.MerchantNormalized)
	}
	if u.Category != nil {
		setNullable("category", *u.Category)
	}
	if u.Notes != nil {
		setNullable("notes", *u.Notes)
	}
	if u.Status != nil {
		set("status", string(*u.Status))
	}
	if u.Type != nil {
		set("type", string(*u.Type))
	}
	if u.Amount != nil {
		args = append(args, u.Amount.String())
		sets = append(sets, fmt.Sprintf("amount = $%d::numeric", len(args)))
	}
	if u.IsReimbursement != nil {
		set("is_reimbursement", *u.IsReimbursement)
	}
	if u.ReconciliationStatus != nil {
		setNullable("reconciliation_status", string(*u.ReconciliationStatus))
	}
	if u.ReconciliationGroupID != nil {
		setNullable("reconciliation_group_id", *u.ReconciliationGroupID)
	}
	if u.IsDuplicate != nil {
		set("is_duplicate", *u.IsDuplicate)
	}
	if u.DuplicateOf != nil {
		setNullable("duplicate_of", *u.DuplicateOf)
	}
	if u.LinkedToTransactionID != nil {
		setNullable("linked_to_transaction_id", *u.LinkedToTransactionID)
	}

	if len(sets) == 0 {
		return "", nil
	}

	query := "UPDATE transactions SET " + strings.Join(sets, ", ") + " WHERE household_id = $1 AND id = $2"
	if u.RequireUnreconciled {
		query += " AND " + unreconciledClause
	}
	return query, args
}

func scanTransaction(row pgx.CollectableRow) (*models.StoredTransaction, error) {
	var (
		tx                        models.StoredTransaction
		amount, txType, status    string
		direction, reconciliation string
		installmentTotal          int
	)

	err := row.Scan(
		&tx.ID, &tx.HouseholdID, &tx.Date, &tx.MerchantRaw, &tx.MerchantNormalized,
		&amount, &tx.Currency, &txType, &tx.Category, &status, &tx.Confidence,
		&tx.IsReimbursement, &tx.IsInstallment, &installmentTotal, &tx.Source,
		&direction, &tx.P2PCounterparty, &tx.P2PMemo,
		&reconciliation, &tx.ReconciliationGroupID,
		&tx.IsDuplicate, &tx.DuplicateOf, &tx.LinkedToTransactionID,
		&tx.Notes, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q for transaction %s: %w", amount, tx.ID, err)
	}
	tx.Date = models.DateOnly(tx.Date)
	tx.Type = models.TransactionType(txType)
	tx.Status = models.Status(status)
	tx.P2PDirection = models.P2PDirection(direction)
	tx.ReconciliationStatus = models.ReconciliationStatus(reconciliation)
	if installmentTotal > 0 {
		tx.InstallmentInfo = &models.InstallmentInfo{Total: installmentTotal}
	}
	return &tx, nil
}

// MerchantCategory implements Store
func (s *PostgresStore) MerchantCategory(ctx context.Context, householdID, merchant string) (string, bool, error) {
	var category string
	err := s.pool.QueryRow(ctx, `
		SELECT category FROM merchant_memory
		WHERE household_id = $1 AND merchant_normalized = $2
	`, householdID, merchant).Scan(&category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.StorageError(errors.CodeQueryFailed, "merchant_category", err)
	}
	return category, true, nil
}

// UpsertMerchantCategory implements Store
func (s *PostgresStore) UpsertMerchantCategory(ctx context.Context, householdID, merchant, category string) error {
	if householdID == "" {
		return errors.TenantError(errors.CodeMissingHousehold, "upsert_merchant_memory")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO merchant_memory (household_id, merchant_normalized, category, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (household_id, merchant_normalized)
		DO UPDATE SET category = EXCLUDED.category, updated_at = NOW()
	`, householdID, merchant, category)
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "upsert_merchant_memory", err)
	}
	return nil
}
