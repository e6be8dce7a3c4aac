// Package parsers turns uploaded financial documents into normalized
// transaction candidates.
//
// Every format parser consumes one named byte blob and produces a
// models.ParseResult. Parsing is pure apart from collaborator calls (the PDF
// text extractor and the vision classifier): parsers hold no state between
// calls and may run concurrently.
//
// Parser Types:
//   - CSVParser: delimited text exports, UTF-8 or windows-1255
//   - ExcelParser: .xlsx workbooks and legacy .xls sheets
//   - PDFParser: positioned text fragments rebuilt into a table, with a
//     date-anchored and a regex fallback
//   - ImageParser: screenshots sent to a vision classifier
//
// Engine routes a file to one of them by MIME type or extension.
//
// Failure semantics: a row that cannot be parsed is dropped and counted in
// ParseStats. Only an unreadable file, an unsupported type or a collaborator
// failure aborts the whole file.
//
// Example usage:
//
//	engine := NewEngine(DefaultConfig(), extractor, classifier)
//	result, stats, err := engine.Parse(ctx, Input{Name: "leumi.pdf", Data: data})
package parsers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"household-ledger/internal/models"
	"household-ledger/pkg/errors"
)

// Input is a named byte blob to parse
type Input struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Extension returns the lowercased file extension including the dot
func (in Input) Extension() string {
	return strings.ToLower(filepath.Ext(in.Name))
}

// Parser is implemented by every format parser
type Parser interface {
	Parse(ctx context.Context, in Input) (*models.ParseResult, *ParseStats, error)
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalRows int
	ValidRows int
	Strategy  string
	Errors    *errors.RowErrorCollector
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(maxErrors int) *ParseStats {
	return &ParseStats{
		Errors: errors.NewRowErrorCollector(maxErrors),
	}
}

// AddError records a dropped row
func (ps *ParseStats) AddError(err *errors.RowError) {
	ps.Errors.Add(err)
}

// ErrorRows returns how many rows were dropped
func (ps *ParseStats) ErrorRows() int {
	return ps.Errors.Count()
}

// HasErrors returns true if there were any dropped rows
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorRows() > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d rows (%d valid), %d errors",
		ps.TotalRows, ps.ValidRows, ps.ErrorRows())
}

// GetSampleErrors returns a sample of the row errors for logging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	rowErrors := ps.Errors.GetErrors()
	if len(rowErrors) == 0 {
		return nil
	}

	limit := len(rowErrors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, rowErrors[i].Error())
	}
	return samples
}

// newResult builds the public result shape from parsed candidates and stats
func newResult(name string, source models.SourceType, txs []*models.ParsedTransaction, stats *ParseStats) *models.ParseResult {
	if txs == nil {
		txs = []*models.ParsedTransaction{}
	}
	stats.ValidRows = len(txs)
	return &models.ParseResult{
		FileName:     name,
		Transactions: txs,
		TotalRows:    stats.TotalRows,
		ValidRows:    stats.ValidRows,
		ErrorRows:    stats.ErrorRows(),
		SourceType:   source,
	}
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// cell safely retrieves a trimmed cell by index
func cell(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// cleanRecord trims every field of a record
func cleanRecord(record []string) []string {
	cleaned := make([]string, len(record))
	for i, field := range record {
		cleaned[i] = strings.TrimSpace(field)
	}
	return cleaned
}

// cancelled reports whether ctx is done without blocking
func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
