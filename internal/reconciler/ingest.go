package reconciler

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"

	"household-ledger/internal/matcher"
	"household-ledger/internal/models"
	"household-ledger/internal/parsers"
	"household-ledger/internal/store"
	"household-ledger/pkg/errors"
	"household-ledger/pkg/logger"
)

// IngestRequest is a batch of files to import into one household
type IngestRequest struct {
	HouseholdID string
	Inputs      []parsers.Input

	// KeepDuplicates stores flagged duplicates with is_duplicate set
	// instead of skipping them.
	KeepDuplicates bool

	// DryRun parses and checks duplicates without writing
	DryRun bool
}

// FileResult is the outcome of ingesting one file
type FileResult struct {
	Name       string                      `json:"name"`
	Parse      *models.ParseResult         `json:"parse,omitempty"`
	Stats      *parsers.ParseStats         `json:"-"`
	Duplicates []*matcher.DuplicateMatch   `json:"duplicates,omitempty"`
	Stored     []*models.StoredTransaction `json:"stored,omitempty"`
	Err        error                       `json:"-"`
}

// IngestResult summarizes an ingest call
type IngestResult struct {
	Files             []*FileResult `json:"files"`
	Parsed            int           `json:"parsed"`
	Inserted          int           `json:"inserted"`
	DuplicatesSkipped int           `json:"duplicates_skipped"`
	DuplicatesKept    int           `json:"duplicates_kept"`
	FailedFiles       int           `json:"failed_files"`
	DryRun            bool          `json:"dry_run"`
}

// FileErrors returns the errors of files that could not be ingested
func (r *IngestResult) FileErrors() []error {
	var errs []error
	for _, f := range r.Files {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// Err combines the file errors, or returns nil when every file was read
func (r *IngestResult) Err() error {
	return multierr.Combine(r.FileErrors()...)
}

// Ingest parses every input, flags duplicates against the household's stored
// rows, prefills categories from merchant memory and persists the rest.
// A file that fails to parse is reported in its FileResult and does not stop
// the others.
func (s *Service) Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error) {
	if req == nil || req.HouseholdID == "" {
		return nil, errors.TenantError(errors.CodeMissingHousehold, "ingest")
	}

	op := logger.NewOperationLogger("ingest", s.logger.WithHousehold(req.HouseholdID)).WithFields(logger.Fields{
		"files":   len(req.Inputs),
		"dry_run": req.DryRun,
	})

	result := &IngestResult{
		Files:  s.parseAll(ctx, req.Inputs),
		DryRun: req.DryRun,
	}
	op.Step("parsed")

	// Files are committed one at a time so that rows stored from an earlier
	// file count as existing for the next one.
	for i, file := range result.Files {
		if file.Err != nil {
			result.FailedFiles++
			continue
		}
		result.Parsed += len(file.Parse.Transactions)

		if err := s.ingestFile(ctx, req, file, result); err != nil {
			op.Error(err, "Ingest aborted")
			return result, err
		}
		op.Progress("Files committed", int64(i+1), int64(len(result.Files)))
	}

	if result.FailedFiles > 0 {
		op.WithField("failed_files", result.FailedFiles).Warning("Some files could not be parsed")
	}

	op.WithFields(logger.Fields{
		"parsed":             result.Parsed,
		"inserted":           result.Inserted,
		"duplicates_skipped": result.DuplicatesSkipped,
		"duplicates_kept":    result.DuplicatesKept,
		"failed_files":       result.FailedFiles,
	}).Success("Ingest completed")
	return result, nil
}

// parseAll parses inputs concurrently. Results keep the input order.
func (s *Service) parseAll(ctx context.Context, inputs []parsers.Input) []*FileResult {
	results := make([]*FileResult, len(inputs))

	p := pool.New().WithMaxGoroutines(s.config.MaxConcurrentFiles)
	for i, in := range inputs {
		p.Go(func() {
			file := &FileResult{Name: in.Name}
			file.Parse, file.Stats, file.Err = s.parsing.Parse(ctx, in)
			if file.Err != nil {
				s.logger.WithError(file.Err).WithField("file", in.Name).Warn("File could not be parsed")
			}
			results[i] = file
		})
	}
	p.Wait()

	return results
}

func (s *Service) ingestFile(ctx context.Context, req *IngestRequest, file *FileResult, result *IngestResult) error {
	candidates := file.Parse.Transactions
	if len(candidates) == 0 {
		return nil
	}

	existing, err := s.loadWindow(ctx, req.HouseholdID, candidates)
	if err != nil {
		return err
	}

	appFile := file.Parse.SourceType == models.SourceImage
	file.Duplicates = s.duplicates.Check(candidates, sameSourceKind(existing, appFile))
	flagged := make(map[int]*matcher.DuplicateMatch, len(file.Duplicates))
	for _, d := range file.Duplicates {
		flagged[d.Index] = d
	}

	var rows []*models.StoredTransaction
	for i, c := range candidates {
		tx := &models.StoredTransaction{
			ParsedTransaction: *c,
			HouseholdID:       req.HouseholdID,
			Source:            sourceTag(file.Parse.SourceType, c),
		}

		dup, isDup := flagged[i]
		if isDup && !req.KeepDuplicates {
			result.DuplicatesSkipped++
			continue
		}
		if isDup {
			tx.IsDuplicate = true
			tx.DuplicateOf = dup.Existing.ID
			result.DuplicatesKept++
		}
		if err := s.prefillCategory(ctx, req.HouseholdID, tx); err != nil {
			return err
		}
		rows = append(rows, tx)
	}

	if !req.DryRun && len(rows) > 0 {
		if err := s.store.InsertTransactions(ctx, req.HouseholdID, rows); err != nil {
			return err
		}
		result.Inserted += len(rows)
	}
	file.Stored = rows

	s.logger.WithFields(logger.Fields{
		"file":       file.Name,
		"candidates": len(candidates),
		"duplicates": len(file.Duplicates),
		"stored":     len(rows),
	}).Info("File ingested")
	return nil
}

// loadWindow reads the household's rows around the candidates' dates
func (s *Service) loadWindow(ctx context.Context, householdID string, candidates []*models.ParsedTransaction) ([]*models.StoredTransaction, error) {
	var minDate, maxDate time.Time
	for _, c := range candidates {
		if minDate.IsZero() || c.Date.Before(minDate) {
			minDate = c.Date
		}
		if maxDate.IsZero() || c.Date.After(maxDate) {
			maxDate = c.Date
		}
	}

	window := s.config.Duplicates.WindowDays
	return s.store.ListTransactions(ctx, store.TransactionFilter{
		HouseholdID: householdID,
		From:        minDate.AddDate(0, 0, -window),
		To:          maxDate.AddDate(0, 0, window),
	})
}

// prefillCategory copies the category learned for the merchant, if any
func (s *Service) prefillCategory(ctx context.Context, householdID string, tx *models.StoredTransaction) error {
	if tx.Category != "" {
		return nil
	}
	category, ok, err := s.store.MerchantCategory(ctx, householdID, store.NormalizeMerchant(tx.DisplayMerchant()))
	if err != nil {
		return err
	}
	if ok && category != "" {
		tx.Category = category
		tx.Status = models.StatusCategorized
	}
	return nil
}

// sameSourceKind keeps the rows that are wallet-app rows when app is set and
// the statement rows otherwise. An app payment and the card or bank row it
// produced are never duplicates of each other; reconciliation pairs them.
func sameSourceKind(rows []*models.StoredTransaction, app bool) []*models.StoredTransaction {
	kept := rows[:0:0]
	for _, tx := range rows {
		if tx.IsAppSourced() == app {
			kept = append(kept, tx)
		}
	}
	return kept
}

// sourceTag labels where a stored row came from. Screenshot rows that carry
// P2P fields are wallet-app rows.
func sourceTag(source models.SourceType, c *models.ParsedTransaction) string {
	if source != models.SourceImage {
		return string(source)
	}
	if c.P2PDirection != "" || c.P2PCounterparty != "" {
		return models.SourceTagP2PScreenshot
	}
	return models.SourceTagScreenshot
}
