package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileCorrupted,
			message:    "file could not be read",
			cause:      errors.New("unexpected EOF"),
			expectCode: 2,
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeInvalidFormat,
			message:    "invalid format",
			expectCode: 3,
		},
		{
			name:       "collaborator error",
			category:   CategoryCollaborator,
			code:       CodeClassifierFailed,
			message:    "classifier failed",
			cause:      errors.New("quota exceeded"),
			expectCode: 6,
		},
		{
			name:       "tenant error",
			category:   CategoryTenant,
			code:       CodeMissingHousehold,
			message:    "no household",
			expectCode: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
			if len(err.StackTrace) == 0 {
				t.Error("expected a captured stack trace")
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, CategoryFile, CodeFileCorrupted, "x") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestSentinelsMatchThroughWrapping(t *testing.T) {
	stale := ReconciliationError(CodeStaleState, "merge_p2p", "tx-1", nil)
	wrapped := fmt.Errorf("card side: %w", stale)

	if !Is(wrapped, ErrStaleState) {
		t.Error("expected wrapped stale error to match ErrStaleState")
	}
	if Is(wrapped, ErrNotFound) {
		t.Error("stale error must not match ErrNotFound")
	}

	unsupported := UnsupportedTypeError("notes.docx", "application/msword")
	if !Is(unsupported, ErrUnsupportedType) {
		t.Error("expected unsupported type to match sentinel")
	}
	if unsupported.Context["mime_type"] != "application/msword" {
		t.Errorf("expected mime type in context, got %v", unsupported.Context["mime_type"])
	}
}

func TestTenantError(t *testing.T) {
	err := TenantError(CodeMissingHousehold, "reconcile")
	if !Is(err, ErrMissingHousehold) {
		t.Fatal("expected missing household sentinel")
	}
	if !strings.Contains(err.Error(), "reconcile requires a household scope") {
		t.Errorf("unexpected message: %s", err.Error())
	}

	cross := TenantError(CodeCrossHousehold, "merge_withdrawal")
	if cross.Code != CodeCrossHousehold {
		t.Errorf("expected cross household code, got %s", cross.Code)
	}
}

func TestAsReconcilerError(t *testing.T) {
	base := CollaboratorError(CodeExtractionFailed, "pdf", errors.New("encrypted"))
	chained := fmt.Errorf("parse statement.pdf: %w", base)

	got, ok := AsReconcilerError(chained)
	if !ok {
		t.Fatal("expected to find ReconcilerError in chain")
	}
	if got.Code != CodeExtractionFailed {
		t.Errorf("expected extraction_failed, got %s", got.Code)
	}

	if _, ok := AsReconcilerError(errors.New("plain")); ok {
		t.Error("plain error should not convert")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	existing := StorageError(CodeQueryFailed, "list_transactions", errors.New("timeout"))
	if WrapIfNeeded(existing, CategoryInternal, CodeUnexpectedError, "x") != existing {
		t.Error("existing ReconcilerError should be returned unchanged")
	}

	wrapped := WrapIfNeeded(errors.New("boom"), CategoryInternal, CodeUnexpectedError, "ingest")
	if wrapped.Category != CategoryInternal {
		t.Errorf("expected internal category, got %s", wrapped.Category)
	}
	if WrapIfNeeded(nil, CategoryInternal, CodeUnexpectedError, "x") != nil {
		t.Error("nil should stay nil")
	}
}

func TestErrorSummary(t *testing.T) {
	empty := NewErrorSummary(nil)
	if empty.Total != 0 || empty.Error() != "no errors" || empty.GetExitCode() != 0 {
		t.Errorf("unexpected empty summary: %+v", empty)
	}

	errs := []*ReconcilerError{
		New(CategoryParse, CodeInvalidDate, "bad date"),
		New(CategoryParse, CodeInvalidAmount, "bad amount"),
		New(CategoryTenant, CodeMissingHousehold, "no household"),
	}
	summary := NewErrorSummary(errs)
	if summary.Total != 3 {
		t.Errorf("expected 3 errors, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryParse] != 2 {
		t.Errorf("expected 2 parse errors, got %d", summary.ByCategory[CategoryParse])
	}
	if !summary.HasCode(CodeInvalidDate) || summary.HasCode(CodeStaleState) {
		t.Error("HasCode mismatch")
	}
	if summary.GetExitCode() != 7 {
		t.Errorf("expected highest exit code 7, got %d", summary.GetExitCode())
	}
}

func TestRowErrorCollector(t *testing.T) {
	collector := NewRowErrorCollector(2)
	collector.Add(InvalidDateRowError("visa.csv", 4, "תאריך", "32/13/2026"))
	collector.Add(InvalidAmountRowError("visa.csv", 5, "סכום", ""))
	collector.Add(InvalidDateRowError("visa.csv", 9, "תאריך", "soon"))
	collector.Add(nil)

	if collector.Count() != 3 {
		t.Errorf("expected 3 counted errors, got %d", collector.Count())
	}
	if len(collector.GetErrors()) != 2 {
		t.Errorf("expected 2 retained errors, got %d", len(collector.GetErrors()))
	}

	first := collector.GetErrors()[0]
	if !strings.Contains(first.Error(), "visa.csv:4") {
		t.Errorf("expected location in message, got %s", first.Error())
	}
	if !strings.Contains(first.GetDetailedError(), "32/13/2026") {
		t.Errorf("expected value in detailed error, got %s", first.GetDetailedError())
	}

	formatted := FormatRowErrorsForUser(collector.GetErrors())
	if !strings.Contains(formatted, "Skipped 2 rows") {
		t.Errorf("unexpected formatting: %s", formatted)
	}
	if collector.GetSummary().ByCode[CodeInvalidDate] != 1 {
		t.Error("expected one invalid date in summary")
	}
}
