package errors

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RowContext locates a row-level failure inside a statement file
type RowContext struct {
	File     string `json:"file"`
	Row      int    `json:"row"`
	Column   string `json:"column,omitempty"`
	Value    string `json:"value,omitempty"`
	Expected string `json:"expected,omitempty"`
}

// RowError is a recoverable, row-level parse failure. The row is dropped and
// counted; the file keeps parsing.
type RowError struct {
	*ReconcilerError
	Location *RowContext `json:"location"`
	Examples []string    `json:"examples,omitempty"`
}

// Error implements the error interface with the row location appended
func (e *RowError) Error() string {
	parts := []string{e.ReconcilerError.Error()}

	if e.Location != nil {
		location := fmt.Sprintf("at %s", filepath.Base(e.Location.File))
		if e.Location.Row > 0 {
			location += fmt.Sprintf(":%d", e.Location.Row)
		}
		if e.Location.Column != "" {
			location += fmt.Sprintf(" column '%s'", e.Location.Column)
		}
		parts = append(parts, location)
	}

	return strings.Join(parts, " ")
}

// GetDetailedError returns a detailed multi-line error description
func (e *RowError) GetDetailedError() string {
	var lines []string

	lines = append(lines, fmt.Sprintf("ERROR: %s", e.Message))

	if e.Location != nil {
		lines = append(lines, fmt.Sprintf("  → File: %s", e.Location.File))
		if e.Location.Row > 0 {
			lines = append(lines, fmt.Sprintf("  → Row: %d", e.Location.Row))
		}
		if e.Location.Column != "" {
			lines = append(lines, fmt.Sprintf("  → Column: %s", e.Location.Column))
		}
		if e.Location.Value != "" {
			lines = append(lines, fmt.Sprintf("  → Value: '%s'", e.Location.Value))
		}
		if e.Location.Expected != "" {
			lines = append(lines, fmt.Sprintf("  → Expected: %s", e.Location.Expected))
		}
	}

	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  → Suggestion: %s", e.Suggestion))
	}

	if len(e.Examples) > 0 {
		lines = append(lines, "  → Examples:")
		for _, example := range e.Examples {
			lines = append(lines, fmt.Sprintf("    • %s", example))
		}
	}

	return strings.Join(lines, "\n")
}

// NewRowError creates a new row-level error
func NewRowError(code ErrorCode, location *RowContext, message string) *RowError {
	base := New(CategoryParse, code, message)
	if location != nil {
		base.WithContext("file", location.File).
			WithContext("row", location.Row).
			WithContext("column", location.Column).
			WithContext("value", location.Value)
	}

	return &RowError{
		ReconcilerError: base,
		Location:        location,
	}
}

// WithExamples adds example values to help fix the error
func (e *RowError) WithExamples(examples ...string) *RowError {
	e.Examples = examples
	return e
}

// InvalidDateRowError reports a row dropped because its date did not normalize
func InvalidDateRowError(file string, row int, column string, value string) *RowError {
	err := NewRowError(CodeInvalidDate, &RowContext{
		File:     file,
		Row:      row,
		Column:   column,
		Value:    value,
		Expected: "a calendar date",
	}, "invalid date, row skipped").
		WithExamples("31/01/2026", "31.01.26", "2026-01-31")
	err.WithSuggestion("check the date column of the statement")
	return err
}

// InvalidAmountRowError reports a row dropped because no amount could be read
func InvalidAmountRowError(file string, row int, column string, value string) *RowError {
	err := NewRowError(CodeInvalidAmount, &RowContext{
		File:     file,
		Row:      row,
		Column:   column,
		Value:    value,
		Expected: "decimal number",
	}, "missing or invalid amount, row skipped").
		WithExamples("1,234.56", "-250.00", "₪ 99.90")
	err.WithSuggestion("check the amount columns of the statement")
	return err
}

// InvalidRecordError reports an untrusted collaborator record that failed validation
func InvalidRecordError(source string, index int, field string, value interface{}) *RowError {
	return NewRowError(CodeMissingField, &RowContext{
		File:   source,
		Row:    index,
		Column: field,
		Value:  fmt.Sprintf("%v", value),
	}, fmt.Sprintf("record %d has an unusable '%s'", index, field))
}

// RowErrorCollector collects row-level errors during a single file parse
type RowErrorCollector struct {
	errors    []*RowError
	maxErrors int
	dropped   int
}

// NewRowErrorCollector creates a new collector keeping at most maxErrors
// entries. Further errors are counted but not retained.
func NewRowErrorCollector(maxErrors int) *RowErrorCollector {
	return &RowErrorCollector{
		errors:    make([]*RowError, 0),
		maxErrors: maxErrors,
	}
}

// Add adds an error to the collector
func (c *RowErrorCollector) Add(err *RowError) {
	if err == nil {
		return
	}
	if c.maxErrors > 0 && len(c.errors) >= c.maxErrors {
		c.dropped++
		return
	}
	c.errors = append(c.errors, err)
}

// Count returns the number of errors seen, retained or not
func (c *RowErrorCollector) Count() int {
	return len(c.errors) + c.dropped
}

// GetErrors returns the retained errors
func (c *RowErrorCollector) GetErrors() []*RowError {
	return c.errors
}

// GetSummary returns an error summary for all retained errors
func (c *RowErrorCollector) GetSummary() *ErrorSummary {
	result := make([]*ReconcilerError, len(c.errors))
	for i, err := range c.errors {
		result[i] = err.ReconcilerError
	}
	return NewErrorSummary(result)
}

// FormatRowErrorsForUser formats row errors grouped by file
func FormatRowErrorsForUser(errs []*RowError) string {
	if len(errs) == 0 {
		return "No row errors"
	}

	if len(errs) == 1 {
		return errs[0].GetDetailedError()
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Skipped %d rows:", len(errs)))

	errorsByFile := make(map[string][]*RowError)
	var files []string
	for _, err := range errs {
		file := "unknown"
		if err.Location != nil {
			file = filepath.Base(err.Location.File)
		}
		if _, seen := errorsByFile[file]; !seen {
			files = append(files, file)
		}
		errorsByFile[file] = append(errorsByFile[file], err)
	}

	for _, file := range files {
		fileErrors := errorsByFile[file]
		lines = append(lines, "", fmt.Sprintf("File: %s (%d rows)", file, len(fileErrors)))

		maxDetailedErrors := 3
		for i, err := range fileErrors {
			if i == maxDetailedErrors {
				lines = append(lines, fmt.Sprintf("... and %d more rows in this file", len(fileErrors)-maxDetailedErrors))
				break
			}
			lines = append(lines, err.GetDetailedError())
		}
	}

	return strings.Join(lines, "\n")
}
