package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"

	"household-ledger/pkg/errors"
	"household-ledger/pkg/logger"
)

func newTestHandler(verbose bool) (*CLIErrorHandler, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: verbose,
		out:     buf,
	}, buf
}

func TestHandleError_ExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, 0},
		{"file", errors.FileError(errors.CodeFileNotFound, "visa.csv", nil), 2},
		{"validation", errors.ValidationError(errors.CodeMissingField, "category", "", nil), 3},
		{"configuration", errors.ConfigurationError(errors.CodeMissingConfig, "database.url", "", nil), 4},
		{"stale merge", errors.ReconciliationError(errors.CodeStaleState, "merge_p2p_match", "card-1", nil), 5},
		{"storage", errors.StorageError(errors.CodeConnectionFailed, "connect", fmt.Errorf("refused")), 6},
		{"tenant", errors.TenantError(errors.CodeMissingHousehold, "ingest"), 7},
		{"wrapped os error", fmt.Errorf("open: %w", os.ErrNotExist), 2},
		{"generic", fmt.Errorf("something odd"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := newTestHandler(false)
			if code := handler.HandleError(tt.err); code != tt.expected {
				t.Errorf("expected exit code %d, got %d", tt.expected, code)
			}
		})
	}
}

func TestHandleError_ReconcilerErrorOutput(t *testing.T) {
	handler, buf := newTestHandler(true)

	cause := fmt.Errorf("row changed")
	err := errors.ReconciliationError(errors.CodeStaleState, "merge_withdrawal", "w-1", cause)
	handler.HandleError(err)

	output := buf.String()
	for _, want := range []string{
		"Error: merge_withdrawal: transaction w-1",
		"transaction_id: w-1",
		"Suggestion: run reconcile again",
		"Reconciliation error help:",
		"Underlying error: row changed",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, output)
		}
	}
}

func TestGetCategoryHelp(t *testing.T) {
	handler, _ := newTestHandler(false)

	categories := map[errors.ErrorCategory]string{
		errors.CategoryTenant:       "--household",
		errors.CategoryStorage:      "ledger migrate",
		errors.CategoryCollaborator: "classifier.api_key",
		errors.CategoryParse:        "header row",
		errors.CategoryInternal:     "ledger --help",
	}
	for category, want := range categories {
		if help := handler.getCategoryHelp(category); !strings.Contains(help, want) {
			t.Errorf("help for %s should mention %q, got %q", category, want, help)
		}
	}
}
