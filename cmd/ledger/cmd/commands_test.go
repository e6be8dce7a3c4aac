package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household-ledger/cmd/ledger/config"
	"household-ledger/internal/store"
	"household-ledger/pkg/errors"
)

const cardStatement = "date,description,billing amount\n" +
	"05/03/2026,BIT PAYMENT,150.00\n" +
	"07/03/2026,SUPER-PHARM 042,89.90\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := writeFile(t, tmpDir, "valid.csv", "test")

	tests := []struct {
		name        string
		filePath    string
		expectError bool
	}{
		{"valid file", validFile, false},
		{"empty path", "", true},
		{"non-existent file", "/non/existent/file.csv", true},
		{"directory instead of file", tmpDir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "input file")
			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateOutputPath(t *testing.T) {
	assert.NoError(t, validateOutputPath(""))
	assert.NoError(t, validateOutputPath("report.json"))
	assert.NoError(t, validateOutputPath(filepath.Join(t.TempDir(), "report.json")))
	assert.Error(t, validateOutputPath("/no/such/dir/report.json"))
}

func TestValidateFormat(t *testing.T) {
	for _, format := range []string{"", "console", "json", "CSV"} {
		assert.NoError(t, validateFormat(format), format)
	}
	err := validateFormat("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "console, json, csv")
}

func TestParseDateRange(t *testing.T) {
	window, err := parseDateRange("2026-03-01", "2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, 1, window.Start.Day())
	assert.Equal(t, 31, window.End.Day())

	window, err = parseDateRange("", "")
	require.NoError(t, err)
	assert.True(t, window.Start.IsZero())
	assert.True(t, window.End.IsZero())

	_, err = parseDateRange("01/03/2026", "")
	assert.ErrorContains(t, err, "YYYY-MM-DD")

	_, err = parseDateRange("2026-03-31", "2026-03-01")
	assert.ErrorContains(t, err, "start date cannot be after end date")
}

func TestOpenStore(t *testing.T) {
	settings := &config.Settings{}

	st, err := openStore(context.Background(), settings, true)
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, st)

	_, err = openStore(context.Background(), settings, false)
	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok, "expected a ledger error, got %v", err)
	assert.Equal(t, errors.CodeMissingConfig, rerr.Code)
	assert.Contains(t, rerr.Suggestion, "LEDGER_DATABASE_URL")
}

func TestIngestCommand_DryRun(t *testing.T) {
	dir := t.TempDir()
	statement := writeFile(t, dir, "card.csv", cardStatement)
	output := filepath.Join(dir, "ingest.json")

	rootCmd.SetArgs([]string{
		"ingest", "--household", "family", "--dry-run",
		"--format", "json", "--output", output, statement,
	})
	require.NoError(t, Execute())

	data, err := os.ReadFile(output)
	require.NoError(t, err)

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, float64(2), report["parsed"])
	assert.Equal(t, float64(0), report["inserted"])
	assert.Equal(t, true, report["dry_run"])
}

func TestReconcileCommand_RequiresHousehold(t *testing.T) {
	rootCmd.SetArgs([]string{"reconcile", "--household", ""})
	err := Execute()

	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok, "expected a ledger error, got %v", err)
	assert.Equal(t, errors.CategoryTenant, rerr.Category)
}

func TestMergeReimbursement_RequiresCategory(t *testing.T) {
	rootCmd.SetArgs([]string{"merge", "reimbursement", "--household", "family", "income-1"})
	err := Execute()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "--category"))
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.0", "abc123", "2026-10-01")
	defer SetVersionInfo("dev", "unknown", "unknown")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer rootCmd.SetOut(nil)

	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, Execute())
	assert.Equal(t, "ledger 1.2.0\n", out.String())
}
