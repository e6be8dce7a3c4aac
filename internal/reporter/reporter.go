// Package reporter renders the review queue and ingest results.
//
// Supported output formats:
//   - Console: sections per reconciliation phase, colored by match type
//   - JSON: the full result for programmatic consumption
//   - CSV: one row per queue entry for spreadsheet review
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	err = generator.GenerateReport(queue, os.Stdout)
//	err = generator.GenerateIngestReport(ingestResult, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"household-ledger/internal/matcher"
	"household-ledger/internal/models"
	"household-ledger/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// UseColors enables colors on the console. Colors are still dropped
	// when the output is not a terminal.
	UseColors bool `json:"use_colors"`

	// MaxItems limits each console section; 0 lists everything
	MaxItems int `json:"max_items"`

	IncludeStoredRows bool `json:"include_stored_rows"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:       FormatConsole,
		UseColors:    true,
		MaxItems:     0,
		CSVDelimiter: ',',
		CSVHeaders:   true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max items cannot be negative, got %d", c.MaxItems)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator renders results in the configured format
type ReportGenerator struct {
	config *ReportConfig

	heading   *color.Color
	exact     *color.Color
	fuzzy     *color.Color
	ambiguous *color.Color
	muted     *color.Color
	failure   *color.Color
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	rg := &ReportGenerator{config: config}
	rg.setColors()
	return rg, nil
}

func (rg *ReportGenerator) setColors() {
	rg.heading = color.New(color.FgCyan, color.Bold)
	rg.exact = color.New(color.FgGreen)
	rg.fuzzy = color.New(color.FgYellow)
	rg.ambiguous = color.New(color.FgMagenta)
	rg.muted = color.New(color.Faint)
	rg.failure = color.New(color.FgRed)

	if !rg.config.UseColors {
		for _, c := range []*color.Color{rg.heading, rg.exact, rg.fuzzy, rg.ambiguous, rg.muted, rg.failure} {
			c.DisableColor()
		}
	}
}

// GenerateReport writes the review queue of a reconciliation run
func (rg *ReportGenerator) GenerateReport(result *matcher.Result, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return writeJSON(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateIngestReport writes the outcome of an ingest call
func (rg *ReportGenerator) GenerateIngestReport(result *reconciler.IngestResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("ingest result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateIngestConsole(result, writer)
	case FormatJSON:
		return writeJSON(ingestOutput(result), writer)
	case FormatCSV:
		return rg.generateIngestCSV(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateMergeReport writes the outcome of one merge
func (rg *ReportGenerator) GenerateMergeReport(result *reconciler.MergeResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("merge result cannot be nil")
	}
	if rg.config.Format == FormatJSON {
		return writeJSON(result, writer)
	}

	status := rg.exact.Sprint("applied")
	if result.AlreadyApplied {
		status = rg.muted.Sprint("already applied")
	}
	fmt.Fprintf(writer, "%s %s: %s", result.Operation, status, strings.Join(result.TransactionIDs, ", "))
	if result.GroupID != "" {
		fmt.Fprintf(writer, " (group %s)", result.GroupID)
	}
	fmt.Fprintln(writer)
	return nil
}

func (rg *ReportGenerator) generateConsoleReport(result *matcher.Result, writer io.Writer) error {
	s := result.Summary

	rg.heading.Fprintln(writer, "=== SUMMARY ===")
	fmt.Fprintf(writer, "Transactions:       %d (%d card, %d app)\n", s.TotalTransactions, s.CardTransactions, s.AppTransactions)
	fmt.Fprintf(writer, "Exact matches:      %d\n", s.ExactMatches)
	fmt.Fprintf(writer, "Fuzzy matches:      %d\n", s.FuzzyMatches)
	fmt.Fprintf(writer, "Ambiguous matches:  %d\n", s.AmbiguousMatches)
	fmt.Fprintf(writer, "Unmatched cards:    %d\n", s.UnmatchedCards)
	fmt.Fprintf(writer, "Withdrawal matches: %d\n", s.WithdrawalMatches)
	fmt.Fprintf(writer, "Balance paid:       %d\n", s.BalancePaid)
	fmt.Fprintf(writer, "Reimbursements:     %d\n", s.Reimbursements)

	if len(result.Matches) > 0 {
		fmt.Fprintln(writer)
		rg.heading.Fprintf(writer, "=== CARD / APP MATCHES (%d) ===\n", len(result.Matches))
		for i, m := range limit(result.Matches, rg.config.MaxItems) {
			rg.printMatch(writer, i+1, m.MatchType, m.Confidence, m.Primary, m.Candidates, m.Reason)
		}
		rg.printRemainder(writer, len(result.Matches))
	}

	if len(result.WithdrawalMatches) > 0 {
		fmt.Fprintln(writer)
		rg.heading.Fprintf(writer, "=== WITHDRAWALS (%d) ===\n", len(result.WithdrawalMatches))
		for i, m := range limit(result.WithdrawalMatches, rg.config.MaxItems) {
			rg.printMatch(writer, i+1, m.MatchType, m.Confidence, m.Withdrawal, m.Candidates, m.Reason)
		}
		rg.printRemainder(writer, len(result.WithdrawalMatches))
	}

	rg.printTransactions(writer, "BALANCE PAID", result.BalancePaid)
	rg.printTransactions(writer, "REIMBURSEMENT CANDIDATES", result.Reimbursements)

	if s.TotalTransactions == 0 {
		fmt.Fprintln(writer)
		rg.muted.Fprintln(writer, "Nothing to reconcile.")
	}
	return nil
}

func (rg *ReportGenerator) printMatch(writer io.Writer, n int, mt matcher.MatchType, confidence int, primary *models.StoredTransaction, candidates []*models.StoredTransaction, reason string) {
	label := fmt.Sprintf("[%s %d]", strings.ToUpper(mt.String()), confidence)
	fmt.Fprintf(writer, "%3d. %s %s\n", n, rg.matchColor(mt).Sprint(label), describe(primary))
	for _, c := range candidates {
		fmt.Fprintf(writer, "       -> %s\n", describe(c))
	}
	rg.muted.Fprintf(writer, "       %s\n", reason)
}

func (rg *ReportGenerator) printTransactions(writer io.Writer, title string, txs []*models.StoredTransaction) {
	if len(txs) == 0 {
		return
	}
	fmt.Fprintln(writer)
	rg.heading.Fprintf(writer, "=== %s (%d) ===\n", title, len(txs))
	for i, tx := range limit(txs, rg.config.MaxItems) {
		fmt.Fprintf(writer, "%3d. %s\n", i+1, describe(tx))
	}
	rg.printRemainder(writer, len(txs))
}

func (rg *ReportGenerator) printRemainder(writer io.Writer, total int) {
	if rg.config.MaxItems > 0 && total > rg.config.MaxItems {
		rg.muted.Fprintf(writer, "     ... and %d more\n", total-rg.config.MaxItems)
	}
}

func (rg *ReportGenerator) matchColor(mt matcher.MatchType) *color.Color {
	switch mt {
	case matcher.MatchExact:
		return rg.exact
	case matcher.MatchFuzzy:
		return rg.fuzzy
	default:
		return rg.ambiguous
	}
}

var queueCSVHeaders = []string{
	"Section",
	"Match_Type",
	"Confidence",
	"Primary_ID",
	"Date",
	"Merchant",
	"Amount",
	"Direction",
	"Candidate_IDs",
	"Reason",
}

func (rg *ReportGenerator) generateCSVReport(result *matcher.Result, writer io.Writer) error {
	csvWriter := rg.newCSVWriter(writer)

	var records [][]string
	if rg.config.CSVHeaders {
		records = append(records, queueCSVHeaders)
	}
	for _, m := range result.Matches {
		records = append(records, queueRecord("match", m.MatchType.String(), m.Confidence, m.Primary, m.Candidates, m.Reason))
	}
	for _, m := range result.WithdrawalMatches {
		records = append(records, queueRecord("withdrawal", m.MatchType.String(), m.Confidence, m.Withdrawal, m.Candidates, m.Reason))
	}
	for _, tx := range result.BalancePaid {
		records = append(records, queueRecord("balance_paid", "", 0, tx, nil, ""))
	}
	for _, tx := range result.Reimbursements {
		records = append(records, queueRecord("reimbursement", "", 0, tx, nil, ""))
	}

	if err := csvWriter.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write CSV report: %w", err)
	}
	return nil
}

func queueRecord(section, matchType string, confidence int, tx *models.StoredTransaction, candidates []*models.StoredTransaction, reason string) []string {
	score := ""
	if confidence > 0 {
		score = fmt.Sprintf("%d", confidence)
	}
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	return []string{
		section,
		matchType,
		score,
		tx.ID,
		models.FormatDate(tx.Date),
		tx.DisplayMerchant(),
		tx.Amount.StringFixed(2),
		string(tx.EffectiveDirection()),
		strings.Join(ids, ";"),
		reason,
	}
}

func (rg *ReportGenerator) generateIngestConsole(result *reconciler.IngestResult, writer io.Writer) error {
	title := "=== INGEST ==="
	if result.DryRun {
		title = "=== INGEST (dry run, nothing written) ==="
	}
	rg.heading.Fprintln(writer, title)

	for _, f := range result.Files {
		if f.Err != nil {
			fmt.Fprintf(writer, "%s: %s\n", f.Name, rg.failure.Sprint(f.Err.Error()))
			continue
		}
		fmt.Fprintf(writer, "%s: %s, %d/%d rows valid, %d errors, %d duplicate(s)\n",
			f.Name, f.Parse.SourceType, f.Parse.ValidRows, f.Parse.TotalRows, f.Parse.ErrorRows, len(f.Duplicates))

		if f.Stats != nil {
			for _, rowErr := range f.Stats.GetSampleErrors(3) {
				rg.muted.Fprintf(writer, "    %s\n", rowErr)
			}
		}
		for _, d := range f.Duplicates {
			rg.fuzzy.Fprintf(writer, "    duplicate [%d] %s of %s: %s\n",
				d.Confidence, candidateLine(d.Candidate), d.Existing.ID, d.Reason)
		}
		if rg.config.IncludeStoredRows {
			for _, tx := range limit(f.Stored, rg.config.MaxItems) {
				fmt.Fprintf(writer, "    %s\n", describe(tx))
			}
		}
	}

	fmt.Fprintln(writer)
	fmt.Fprintf(writer, "Parsed:             %d\n", result.Parsed)
	fmt.Fprintf(writer, "Inserted:           %d\n", result.Inserted)
	fmt.Fprintf(writer, "Duplicates skipped: %d\n", result.DuplicatesSkipped)
	fmt.Fprintf(writer, "Duplicates kept:    %d\n", result.DuplicatesKept)
	if result.FailedFiles > 0 {
		rg.failure.Fprintf(writer, "Failed files:       %d\n", result.FailedFiles)
	}
	return nil
}

func (rg *ReportGenerator) generateIngestCSV(result *reconciler.IngestResult, writer io.Writer) error {
	csvWriter := rg.newCSVWriter(writer)

	var records [][]string
	if rg.config.CSVHeaders {
		records = append(records, []string{"File", "Date", "Merchant", "Amount", "Currency", "Type", "Category", "Source", "Duplicate_Of"})
	}
	for _, f := range result.Files {
		for _, tx := range f.Stored {
			records = append(records, []string{
				f.Name,
				models.FormatDate(tx.Date),
				tx.DisplayMerchant(),
				tx.Amount.StringFixed(2),
				tx.Currency,
				string(tx.Type),
				tx.Category,
				tx.Source,
				tx.DuplicateOf,
			})
		}
	}

	if err := csvWriter.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write CSV report: %w", err)
	}
	return nil
}

// ingestOutput adds file errors, which do not marshal on their own
func ingestOutput(result *reconciler.IngestResult) map[string]interface{} {
	errs := map[string]string{}
	for _, f := range result.Files {
		if f.Err != nil {
			errs[f.Name] = f.Err.Error()
		}
	}
	output := map[string]interface{}{
		"files":              result.Files,
		"parsed":             result.Parsed,
		"inserted":           result.Inserted,
		"duplicates_skipped": result.DuplicatesSkipped,
		"duplicates_kept":    result.DuplicatesKept,
		"failed_files":       result.FailedFiles,
		"dry_run":            result.DryRun,
	}
	if len(errs) > 0 {
		output["errors"] = errs
	}
	return output
}

func (rg *ReportGenerator) newCSVWriter(writer io.Writer) *csv.Writer {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	return csvWriter
}

func writeJSON(v interface{}, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func describe(tx *models.StoredTransaction) string {
	line := fmt.Sprintf("%s %-24s %10s %s", models.FormatDate(tx.Date), tx.DisplayMerchant(), tx.Amount.StringFixed(2), tx.Currency)
	if tx.IsAppSourced() {
		line += " " + string(tx.EffectiveDirection())
		if tx.P2PCounterparty != "" {
			line += " " + tx.P2PCounterparty
		}
	}
	return line + " (" + tx.ID + ")"
}

func candidateLine(tx *models.ParsedTransaction) string {
	return fmt.Sprintf("%s %s %s", models.FormatDate(tx.Date), tx.DisplayMerchant(), tx.Amount.StringFixed(2))
}

func limit[T any](items []T, max int) []T {
	if max > 0 && len(items) > max {
		return items[:max]
	}
	return items
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}
	rg.config = config
	rg.setColors()
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
