package reconciler

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"household-ledger/internal/models"
	"household-ledger/internal/store"
	"household-ledger/pkg/errors"
	"household-ledger/pkg/logger"
)

const notesSeparator = " | "

// MergeResult reports what a merge wrote
type MergeResult struct {
	Operation      string   `json:"operation"`
	TransactionIDs []string `json:"transaction_ids"`
	GroupID        string   `json:"group_id,omitempty"`

	// AlreadyApplied is set when the rows were already in the merged state
	// and nothing was written.
	AlreadyApplied bool `json:"already_applied"`
}

func newGroupID() string {
	return uuid.NewString()
}

// MergeP2PMatch accepts a card/app pair from the review queue. The card row
// takes the app's counterparty, category and memo; both rows become matched
// and verified under a new group id, and the app row is marked a duplicate
// of the card row.
func (s *Service) MergeP2PMatch(ctx context.Context, householdID, cardID, appID string) (*MergeResult, error) {
	const operation = "merge_p2p"
	if householdID == "" {
		return nil, errors.TenantError(errors.CodeMissingHousehold, operation)
	}
	if cardID == appID {
		return nil, errors.ReconciliationError(errors.CodeInvalidPairing, operation, appID, nil)
	}

	card, app, err := s.loadPair(ctx, householdID, cardID, appID)
	if err != nil {
		return nil, err
	}
	if card.IsAppSourced() {
		return nil, errors.ReconciliationError(errors.CodeInvalidPairing, operation, cardID, nil).
			WithContext("source", card.Source)
	}
	if !app.IsAppSourced() {
		return nil, errors.ReconciliationError(errors.CodeInvalidPairing, operation, appID, nil).
			WithContext("source", app.Source)
	}

	result := &MergeResult{Operation: operation, TransactionIDs: []string{cardID, appID}}
	appApplied := app.ReconciliationStatus == models.ReconciliationMatched &&
		app.DuplicateOf == card.ID && app.ReconciliationGroupID != ""
	cardApplied := appApplied && card.ReconciliationStatus == models.ReconciliationMatched &&
		card.ReconciliationGroupID == app.ReconciliationGroupID

	// The app row carries the link to the card and is written first.
	err = s.applyPair(ctx, householdID, result,
		mergeSide{tx: app, applied: appApplied, update: func(groupID string) store.TransactionUpdate {
			return store.TransactionUpdate{
				Status:                store.Ptr(models.StatusVerified),
				ReconciliationStatus:  store.Ptr(models.ReconciliationMatched),
				ReconciliationGroupID: store.Ptr(groupID),
				IsDuplicate:           store.Ptr(true),
				DuplicateOf:           store.Ptr(card.ID),
				RequireUnreconciled:   true,
			}
		}},
		mergeSide{tx: card, applied: cardApplied, update: func(groupID string) store.TransactionUpdate {
			update := store.TransactionUpdate{
				MerchantNormalized:    store.Ptr(appMerchant(app)),
				Status:                store.Ptr(models.StatusVerified),
				ReconciliationStatus:  store.Ptr(models.ReconciliationMatched),
				ReconciliationGroupID: store.Ptr(groupID),
				RequireUnreconciled:   true,
			}
			if app.Category != "" {
				update.Category = store.Ptr(app.Category)
			}
			if app.P2PMemo != "" {
				update.Notes = store.Ptr(appendNote(card.Notes, app.P2PMemo))
			}
			return update
		}},
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkAsBalancePaid confirms that a sent app payment was paid from the
// wallet balance. Category and notes are optional.
func (s *Service) MarkAsBalancePaid(ctx context.Context, householdID, id, category, notes string) (*MergeResult, error) {
	const operation = "mark_balance_paid"
	if householdID == "" {
		return nil, errors.TenantError(errors.CodeMissingHousehold, operation)
	}

	tx, err := s.store.GetTransaction(ctx, householdID, id)
	if err != nil {
		return nil, err
	}

	result := &MergeResult{Operation: operation, TransactionIDs: []string{id}}
	if tx.ReconciliationStatus == models.ReconciliationBalancePaid {
		result.AlreadyApplied = true
		return result, nil
	}
	if err := requireUnreconciled(operation, tx); err != nil {
		return nil, err
	}

	update := store.TransactionUpdate{
		Status:               store.Ptr(models.StatusVerified),
		ReconciliationStatus: store.Ptr(models.ReconciliationBalancePaid),
		RequireUnreconciled:  true,
	}
	if category != "" {
		update.Category = store.Ptr(category)
	}
	if notes != "" {
		update.Notes = store.Ptr(notes)
	}

	err = s.store.UpdateTransaction(ctx, householdID, id, update)
	s.logMerge(result, householdID, err)
	if err != nil {
		return nil, err
	}
	s.learnCategory(ctx, householdID, tx, category)
	return result, nil
}

// MergeWithdrawal links a wallet withdrawal to the bank deposit it produced.
// Each row points at the other through duplicate_of.
func (s *Service) MergeWithdrawal(ctx context.Context, householdID, withdrawalID, depositID string) (*MergeResult, error) {
	const operation = "merge_withdrawal"
	if householdID == "" {
		return nil, errors.TenantError(errors.CodeMissingHousehold, operation)
	}
	if withdrawalID == depositID {
		return nil, errors.ReconciliationError(errors.CodeInvalidPairing, operation, depositID, nil)
	}

	withdrawal, deposit, err := s.loadPair(ctx, householdID, withdrawalID, depositID)
	if err != nil {
		return nil, err
	}
	if !withdrawal.IsAppSourced() || withdrawal.EffectiveDirection() != models.P2PWithdrawal {
		return nil, errors.ReconciliationError(errors.CodeInvalidPairing, operation, withdrawalID, nil).
			WithContext("p2p_direction", string(withdrawal.EffectiveDirection()))
	}
	if deposit.IsAppSourced() {
		return nil, errors.ReconciliationError(errors.CodeInvalidPairing, operation, depositID, nil).
			WithContext("source", deposit.Source)
	}

	result := &MergeResult{Operation: operation, TransactionIDs: []string{withdrawalID, depositID}}
	linkedTo := func(tx, other *models.StoredTransaction) bool {
		return tx.ReconciliationStatus == models.ReconciliationWithdrawalMatched &&
			tx.DuplicateOf == other.ID && tx.ReconciliationGroupID != ""
	}
	linked := func(other string) func(groupID string) store.TransactionUpdate {
		return func(groupID string) store.TransactionUpdate {
			return store.TransactionUpdate{
				Status:                store.Ptr(models.StatusVerified),
				ReconciliationStatus:  store.Ptr(models.ReconciliationWithdrawalMatched),
				ReconciliationGroupID: store.Ptr(groupID),
				DuplicateOf:           store.Ptr(other),
				RequireUnreconciled:   true,
			}
		}
	}

	err = s.applyPair(ctx, householdID, result,
		mergeSide{tx: withdrawal, applied: linkedTo(withdrawal, deposit), update: linked(depositID)},
		mergeSide{tx: deposit, applied: linkedTo(deposit, withdrawal), update: linked(withdrawalID)},
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyReimbursement classifies an incoming payment as a reimbursement. The
// row becomes an expense with a negative amount so it nets against the
// category total. linkedExpenseID optionally names the expense it offsets.
func (s *Service) ApplyReimbursement(ctx context.Context, householdID, id, category, linkedExpenseID string) (*MergeResult, error) {
	const operation = "apply_reimbursement"
	if householdID == "" {
		return nil, errors.TenantError(errors.CodeMissingHousehold, operation)
	}
	if strings.TrimSpace(category) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "category", category, nil)
	}
	if linkedExpenseID == id {
		return nil, errors.ReconciliationError(errors.CodeInvalidPairing, operation, id, nil).
			WithContext("linked_to_transaction_id", linkedExpenseID)
	}

	tx, err := s.store.GetTransaction(ctx, householdID, id)
	if err != nil {
		return nil, err
	}

	result := &MergeResult{Operation: operation, TransactionIDs: []string{id}}
	if tx.ReconciliationStatus == models.ReconciliationReimbursement {
		result.AlreadyApplied = true
		return result, nil
	}
	if err := requireUnreconciled(operation, tx); err != nil {
		return nil, err
	}

	update := store.TransactionUpdate{
		Category:             store.Ptr(category),
		Type:                 store.Ptr(models.TransactionTypeExpense),
		Amount:               store.Ptr(tx.Amount.Abs().Neg()),
		IsReimbursement:      store.Ptr(true),
		Status:               store.Ptr(models.StatusVerified),
		ReconciliationStatus: store.Ptr(models.ReconciliationReimbursement),
		RequireUnreconciled:  true,
	}
	if linkedExpenseID != "" {
		if _, err := s.store.GetTransaction(ctx, householdID, linkedExpenseID); err != nil {
			return nil, err
		}
		update.LinkedToTransactionID = store.Ptr(linkedExpenseID)
		result.TransactionIDs = append(result.TransactionIDs, linkedExpenseID)
	}

	err = s.store.UpdateTransaction(ctx, householdID, id, update)
	s.logMerge(result, householdID, err)
	if err != nil {
		return nil, err
	}
	s.learnCategory(ctx, householdID, tx, category)
	return result, nil
}

// mergeSide is one row of a two-sided merge. applied is set when an earlier
// attempt already wrote this row.
type mergeSide struct {
	tx      *models.StoredTransaction
	applied bool
	update  func(groupID string) store.TransactionUpdate
}

// applyPair writes the sides that still need the merge, in order, under the
// group id of an already written side or a new one. Writing stops at the
// first failure, so a retry finds every written side linked to its partner.
func (s *Service) applyPair(ctx context.Context, householdID string, result *MergeResult, sides ...mergeSide) error {
	pending := 0
	for _, side := range sides {
		if !side.applied {
			pending++
			continue
		}
		switch groupID := side.tx.ReconciliationGroupID; {
		case result.GroupID == "":
			result.GroupID = groupID
		case result.GroupID != groupID:
			return errors.ReconciliationError(errors.CodeStaleState, result.Operation, side.tx.ID, nil).
				WithContext("reconciliation_group_id", groupID)
		}
	}
	if pending == 0 {
		result.AlreadyApplied = true
		return nil
	}

	for _, side := range sides {
		if side.applied {
			continue
		}
		if err := requireUnreconciled(result.Operation, side.tx); err != nil {
			return err
		}
	}

	if result.GroupID == "" {
		result.GroupID = s.newID()
	}

	var err error
	for _, side := range sides {
		if side.applied {
			continue
		}
		if err = s.store.UpdateTransaction(ctx, householdID, side.tx.ID, side.update(result.GroupID)); err != nil {
			break
		}
	}
	s.logMerge(result, householdID, err)
	return err
}

func (s *Service) loadPair(ctx context.Context, householdID, firstID, secondID string) (*models.StoredTransaction, *models.StoredTransaction, error) {
	first, err := s.store.GetTransaction(ctx, householdID, firstID)
	if err != nil {
		return nil, nil, err
	}
	second, err := s.store.GetTransaction(ctx, householdID, secondID)
	if err != nil {
		return nil, nil, err
	}
	return first, second, nil
}

// requireUnreconciled fails before any write when one of the rows was
// already reconciled by another merge.
func requireUnreconciled(operation string, txs ...*models.StoredTransaction) error {
	for _, tx := range txs {
		if !tx.ReconciliationStatus.IsUnreconciled() {
			return errors.ReconciliationError(errors.CodeStaleState, operation, tx.ID, nil).
				WithContext("reconciliation_status", string(tx.ReconciliationStatus))
		}
	}
	return nil
}

// learnCategory records the category in merchant memory. A failure does not
// undo the merge.
func (s *Service) learnCategory(ctx context.Context, householdID string, tx *models.StoredTransaction, category string) {
	merchant := store.NormalizeMerchant(tx.DisplayMerchant())
	if category == "" || merchant == "" {
		return
	}
	if err := s.store.UpsertMerchantCategory(ctx, householdID, merchant, category); err != nil {
		s.logger.WithHousehold(householdID).WithError(err).WithField("merchant", merchant).Warn("Failed to update merchant memory")
	}
}

func (s *Service) logMerge(result *MergeResult, householdID string, err error) {
	entry := s.logger.WithHousehold(householdID).WithFields(logger.Fields{
		"operation":       result.Operation,
		"transaction_ids": result.TransactionIDs,
		"group_id":        result.GroupID,
	})
	if err != nil {
		entry.WithError(err).Error("Merge failed")
		return
	}
	entry.Info("Merge applied")
}

// appMerchant prefers the counterparty, then the normalized merchant, then
// the raw merchant.
func appMerchant(app *models.StoredTransaction) string {
	switch {
	case app.P2PCounterparty != "":
		return app.P2PCounterparty
	case app.MerchantNormalized != "":
		return app.MerchantNormalized
	default:
		return app.MerchantRaw
	}
}

func appendNote(notes, memo string) string {
	if notes == "" {
		return memo
	}
	if strings.Contains(notes, memo) {
		return notes
	}
	return notes + notesSeparator + memo
}
