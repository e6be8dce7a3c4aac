package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategoryParse          ErrorCategory = "parse"
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryCollaborator   ErrorCategory = "collaborator"
	CategoryTenant         ErrorCategory = "tenant"
	CategoryStorage        ErrorCategory = "storage"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound    ErrorCode = "file_not_found"
	CodeFileCorrupted   ErrorCode = "file_corrupted"
	CodeUnsupportedType ErrorCode = "unsupported_type"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeEncodingError ErrorCode = "encoding_error"

	// Validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"
	CodeOutOfRange    ErrorCode = "out_of_range"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Reconciliation errors
	CodeStaleState      ErrorCode = "stale_state"
	CodeNotFound        ErrorCode = "not_found"
	CodeInvalidPairing  ErrorCode = "invalid_pairing"
	CodeProcessingError ErrorCode = "processing_error"

	// Collaborator errors
	CodeClassifierFailed ErrorCode = "classifier_failed"
	CodeExtractionFailed ErrorCode = "extraction_failed"

	// Tenant errors
	CodeMissingHousehold ErrorCode = "missing_household"
	CodeCrossHousehold   ErrorCode = "cross_household"

	// Storage errors
	CodeQueryFailed      ErrorCode = "query_failed"
	CodeConnectionFailed ErrorCode = "connection_failed"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// Is matches on category and code so callers can compare against the
// sentinel values below with errors.Is.
func (e *ReconcilerError) Is(target error) bool {
	t, ok := target.(*ReconcilerError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// GetExitCode returns an appropriate exit code for the error
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReconciliation, CategoryInternal:
		return 5
	case CategoryCollaborator, CategoryStorage:
		return 6
	case CategoryTenant:
		return 7
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnsupportedType  = &ReconcilerError{Category: CategoryFile, Code: CodeUnsupportedType}
	ErrStaleState       = &ReconcilerError{Category: CategoryReconciliation, Code: CodeStaleState}
	ErrNotFound         = &ReconcilerError{Category: CategoryReconciliation, Code: CodeNotFound}
	ErrMissingHousehold = &ReconcilerError{Category: CategoryTenant, Code: CodeMissingHousehold}
)

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

func newOrWrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// Specific error constructors

// FileError creates a file-related error
func FileError(code ErrorCode, name string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", name)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFileCorrupted:
		message = fmt.Sprintf("file could not be read: %s", name)
		suggestion = "re-export the statement from the bank and try again"
	default:
		message = fmt.Sprintf("file error: %s", name)
		suggestion = "check the file and try again"
	}

	return newOrWrap(err, CategoryFile, code, message).
		WithSuggestion(suggestion).
		WithContext("file", name)
}

// UnsupportedTypeError is returned when no parser accepts a file.
func UnsupportedTypeError(name, mimeType string) *ReconcilerError {
	return New(CategoryFile, CodeUnsupportedType,
		fmt.Sprintf("unsupported file type %q for %s", mimeType, name)).
		WithSuggestion("upload a CSV, Excel, PDF or image file").
		WithContext("file", name).
		WithContext("mime_type", mimeType)
}

// ParseError creates a parsing-related error
func ParseError(code ErrorCode, file string, row int, column string, value string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidFormat:
		message = fmt.Sprintf("invalid format in %s at row %d, column '%s': '%s'", file, row, column, value)
		suggestion = "check the data format and ensure it matches the expected structure"
	case CodeMissingColumn:
		message = fmt.Sprintf("no usable '%s' column in %s", column, file)
		suggestion = "verify the file has a header row with date and amount columns"
	case CodeEncodingError:
		message = fmt.Sprintf("encoding error in %s", file)
		suggestion = "save the file as UTF-8 or windows-1255"
	default:
		message = fmt.Sprintf("parse error in %s at row %d", file, row)
		suggestion = "check the file format and data integrity"
	}

	return newOrWrap(err, CategoryParse, code, message).
		WithSuggestion(suggestion).
		WithContext("file", file).
		WithContext("row", row).
		WithContext("column", column).
		WithContext("value", value)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts are valid decimal numbers (e.g., '1,234.56')"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use a date like 31/01/2026 or 2026-01-31"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return newOrWrap(err, CategoryValidation, code, message).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return newOrWrap(err, CategoryConfiguration, code, message).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// ReconciliationError creates a reconciliation-related error
func ReconciliationError(code ErrorCode, operation string, id string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeStaleState:
		message = fmt.Sprintf("%s: transaction %s was reconciled or changed since matches were computed", operation, id)
		suggestion = "run reconcile again to refresh the review queue"
	case CodeNotFound:
		message = fmt.Sprintf("%s: transaction %s not found", operation, id)
		suggestion = "check the transaction id and household"
	case CodeInvalidPairing:
		message = fmt.Sprintf("%s: transaction %s cannot take part in this merge", operation, id)
		suggestion = "pick transactions from the same review queue entry"
	default:
		message = fmt.Sprintf("%s failed for transaction %s", operation, id)
		suggestion = "review the data and try again"
	}

	return newOrWrap(err, CategoryReconciliation, code, message).
		WithSuggestion(suggestion).
		WithContext("operation", operation).
		WithContext("transaction_id", id)
}

// CollaboratorError wraps a failure of an external collaborator
// (vision classifier, PDF text extractor). These are terminal for the item.
func CollaboratorError(code ErrorCode, collaborator string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeClassifierFailed:
		message = fmt.Sprintf("classifier %s failed", collaborator)
		suggestion = "check the classifier API key and quota, then retry the file"
	case CodeExtractionFailed:
		message = fmt.Sprintf("text extraction with %s failed", collaborator)
		suggestion = "the document may be scanned or encrypted; try uploading a screenshot"
	default:
		message = fmt.Sprintf("collaborator %s failed", collaborator)
		suggestion = "retry the operation"
	}

	return newOrWrap(err, CategoryCollaborator, code, message).
		WithSuggestion(suggestion).
		WithContext("collaborator", collaborator)
}

// TenantError is returned when an operation lacks a resolved household.
func TenantError(code ErrorCode, operation string) *ReconcilerError {
	switch code {
	case CodeCrossHousehold:
		return New(CategoryTenant, code, fmt.Sprintf("%s: transactions belong to different households", operation)).
			WithContext("operation", operation)
	default:
		return New(CategoryTenant, CodeMissingHousehold, fmt.Sprintf("%s requires a household scope", operation)).
			WithSuggestion("pass --household or set LEDGER_HOUSEHOLD").
			WithContext("operation", operation)
	}
}

// StorageError wraps a storage collaborator failure.
func StorageError(code ErrorCode, operation string, err error) *ReconcilerError {
	message := fmt.Sprintf("storage %s failed", operation)
	suggestion := "check the database connection"
	if code == CodeConnectionFailed {
		message = "could not connect to the database"
		suggestion = "check database.url or LEDGER_DATABASE_URL"
	}
	return newOrWrap(err, CategoryStorage, code, message).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *ReconcilerError {
	message := fmt.Sprintf("internal error during %s", operation)
	suggestion := "try again or contact support if the problem persists"
	if code == CodeUnexpectedError {
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	}

	return newOrWrap(err, CategoryInternal, code, message).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*ReconcilerError    `json:"errors"`
	SampleErrors []*ReconcilerError    `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*ReconcilerError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if len(errs) == 0 {
		summary.Errors = []*ReconcilerError{}
		return summary
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	// Include sample errors (max 5)
	maxSamples := 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else {
		summary.SampleErrors = errs
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}

	return maxCode
}

// Utility functions

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return Wrap(err, category, code, message)
}
