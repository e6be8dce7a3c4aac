// Package reconciler ties the ledger together: it ingests statement files
// into a household's store, computes the P2P review queue and applies the
// merges a person confirms from it.
//
// Matching never writes. Every merge is a separate call, scoped to one
// household, and guarded by an optimistic check on the stored
// reconciliation status.
//
// Example usage:
//
//	service, err := reconciler.NewService(st, parsers.NewEngine(nil, nil, nil), nil)
//	result, err := service.Ingest(ctx, &reconciler.IngestRequest{
//		HouseholdID: "family",
//		Inputs:      inputs,
//	})
//	queue, err := service.FindMatches(ctx, "family", reconciler.DateRange{})
package reconciler

import (
	"context"
	"fmt"
	"time"

	"household-ledger/internal/matcher"
	"household-ledger/internal/models"
	"household-ledger/internal/parsers"
	"household-ledger/internal/store"
	"household-ledger/pkg/errors"
	"household-ledger/pkg/logger"
)

// Config holds configuration options for the ledger service
type Config struct {
	// MaxConcurrentFiles bounds how many files are parsed at once
	MaxConcurrentFiles int

	Duplicates *matcher.DuplicateConfig
	P2P        *matcher.P2PConfig
}

// DefaultConfig returns a default configuration for the ledger service
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentFiles: 4,
		Duplicates:         matcher.DefaultDuplicateConfig(),
		P2P:                matcher.DefaultP2PConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("max concurrent files must be positive, got %d", c.MaxConcurrentFiles)
	}
	if c.Duplicates == nil || c.P2P == nil {
		return fmt.Errorf("duplicate and P2P configurations are required")
	}
	if err := c.Duplicates.Validate(); err != nil {
		return fmt.Errorf("invalid duplicate configuration: %w", err)
	}
	if err := c.P2P.Validate(); err != nil {
		return fmt.Errorf("invalid P2P configuration: %w", err)
	}
	return nil
}

// DateRange bounds a reconciliation snapshot. Zero values leave a side open.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks the range is ordered
func (r DateRange) Validate() error {
	if !r.Start.IsZero() && !r.End.IsZero() && r.Start.After(r.End) {
		return fmt.Errorf("start date must be before end date")
	}
	return nil
}

// Service is the ledger's entry point
type Service struct {
	store      store.Store
	parsing    *parsers.Engine
	duplicates *matcher.DuplicateChecker
	p2p        *matcher.Engine
	config     *Config
	logger     logger.Logger

	newID func() string
}

// NewService creates a ledger service over a store and a parsing engine
func NewService(st store.Store, parsing *parsers.Engine, config *Config) (*Service, error) {
	if st == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "store", nil, nil).
			WithSuggestion("Provide a store implementation")
	}
	if parsing == nil {
		parsing = parsers.NewEngine(nil, nil, nil)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", config, err)
	}

	return &Service{
		store:      st,
		parsing:    parsing,
		duplicates: matcher.NewDuplicateChecker(config.Duplicates.Clone()),
		p2p:        matcher.NewEngine(config.P2P.Clone()),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("ledger_service"),
		newID:      newGroupID,
	}, nil
}

// GetConfiguration returns the current configuration
func (s *Service) GetConfiguration() *Config {
	return s.config
}

// FindMatches runs the reconciliation engine over the household's
// unreconciled transactions. It never writes. Without a household it returns
// an empty queue with an all-zero summary.
func (s *Service) FindMatches(ctx context.Context, householdID string, window DateRange) (*matcher.Result, error) {
	if householdID == "" {
		s.logger.Warn("Reconciliation requested without a household; returning an empty queue")
		return matcher.EmptyResult(), nil
	}
	if err := window.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "date_range", window, err)
	}

	op := logger.NewOperationLogger("find_matches", s.logger.WithHousehold(householdID))

	rows, err := s.store.ListTransactions(ctx, store.TransactionFilter{
		HouseholdID:      householdID,
		From:             window.Start,
		To:               window.End,
		UnreconciledOnly: true,
	})
	if err != nil {
		op.Error(err, "Failed to load reconciliation snapshot")
		return nil, err
	}

	snapshot := make([]*models.StoredTransaction, 0, len(rows))
	for _, tx := range rows {
		if tx.HouseholdID != householdID {
			s.logger.WithHousehold(householdID).WithFields(logger.Fields{
				"transaction_id": tx.ID,
				"row_household":  tx.HouseholdID,
			}).Warn("Dropping transaction of another household from snapshot")
			continue
		}
		snapshot = append(snapshot, tx)
	}

	result := s.p2p.Reconcile(snapshot)

	op.WithFields(logger.Fields{
		"snapshot":       len(snapshot),
		"matches":        len(result.Matches),
		"withdrawals":    len(result.WithdrawalMatches),
		"balance_paid":   len(result.BalancePaid),
		"reimbursements": len(result.Reimbursements),
	}).Success("Review queue computed")
	return result, nil
}
