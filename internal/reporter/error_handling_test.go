package reporter

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"household-ledger/internal/matcher"
	"household-ledger/internal/reconciler"
	"household-ledger/pkg/errors"
)

func TestSafeReportGenerator(t *testing.T) {
	generator, err := NewSafeReportGenerator(plainConfig(FormatConsole), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results := []interface{}{
		createSampleQueue(),
		sampleIngest(),
		&reconciler.MergeResult{Operation: "mark_balance_paid", TransactionIDs: []string{"app-2"}},
	}
	for _, result := range results {
		var buf bytes.Buffer
		if err := generator.GenerateReportSafely(result, &buf); err != nil {
			t.Errorf("unexpected error for %T: %v", result, err)
		}
		if buf.Len() == 0 {
			t.Errorf("expected output for %T", result)
		}
	}
}

func TestSafeReportGenerator_InvalidInputs(t *testing.T) {
	generator, _ := NewSafeReportGenerator(nil, nil)

	err := generator.GenerateReportSafely(nil, &bytes.Buffer{})
	if rerr, ok := errors.AsReconcilerError(err); !ok || rerr.Code != errors.CodeMissingField {
		t.Errorf("expected missing_field for nil result, got %v", err)
	}

	err = generator.GenerateReportSafely(matcher.EmptyResult(), nil)
	if rerr, ok := errors.AsReconcilerError(err); !ok || rerr.Code != errors.CodeMissingField {
		t.Errorf("expected missing_field for nil writer, got %v", err)
	}

	err = generator.GenerateReportSafely("not a result", &bytes.Buffer{})
	if rerr, ok := errors.AsReconcilerError(err); !ok || rerr.Category != errors.CategoryValidation {
		t.Errorf("expected validation error for unknown result, got %v", err)
	}
}

func TestNewSafeReportGenerator_InvalidConfig(t *testing.T) {
	_, err := NewSafeReportGenerator(&ReportConfig{Format: "xml"}, nil)
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Category != errors.CategoryConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(rerr.Suggestion, "console") {
		t.Errorf("suggestion should list the formats, got %q", rerr.Suggestion)
	}
}

func TestBackupPath(t *testing.T) {
	got := backupPath(filepath.Join("reports", "queue.csv"))
	if got != filepath.Join("reports", "queue_backup.csv") {
		t.Errorf("unexpected backup path %s", got)
	}
}
