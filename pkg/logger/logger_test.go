package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level Level) (Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	log, err := NewLogger(&Config{
		Level:            level,
		Format:           JSONFormat,
		Writer:           buf,
		DisableTimestamp: true,
	})
	require.NoError(t, err)
	return log, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"debug", *DebugConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
		{"writer skips output check", Config{Level: InfoLevel, Format: TextFormat, Writer: &bytes.Buffer{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDerivedLoggersKeepFields(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)

	log.WithComponent("pdf_parser").
		WithField("file", "leumi.pdf").
		WithFields(Fields{"rows": 12}).
		Info("parsed")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "pdf_parser", entries[0]["component"])
	assert.Equal(t, "leumi.pdf", entries[0]["file"])
	assert.EqualValues(t, 12, entries[0]["rows"])
	assert.Equal(t, "parsed", entries[0]["msg"])
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newBufferLogger(t, WarnLevel)

	log.Info("hidden")
	log.Debug("hidden too")
	log.WithError(errors.New("boom")).Warn("shown")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0]["error"])
}

func TestTimedOperation(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)

	err := TimedOperation("reconcile", log, func() error { return nil })
	require.NoError(t, err)

	failure := errors.New("store offline")
	err = TimedOperation("merge", log, func() error { return failure })
	assert.Equal(t, failure, err)

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "success", entries[0]["status"])
	assert.Equal(t, "reconcile", entries[0]["operation"])
	assert.Equal(t, "error", entries[1]["status"])
	assert.Equal(t, "store offline", entries[1]["error"])
}

func TestWithHousehold(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)

	log.WithComponent("ledger_service").WithHousehold("family").Info("merged")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "family", entries[0]["household_id"])
	assert.Equal(t, "ledger_service", entries[0]["component"])
}

func TestRedaction(t *testing.T) {
	log, buf := newBufferLogger(t, InfoLevel)

	log.WithFields(Fields{
		"api_key": "AIza-secret",
		"target":  "postgres://ledger:hunter2@db:5432/ledger",
		"file":    "visa.csv",
	}).Info("connecting")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "[redacted]", entries[0]["api_key"])
	assert.Equal(t, "postgres://ledger:xxxxx@db:5432/ledger", entries[0]["target"])
	assert.Equal(t, "visa.csv", entries[0]["file"])
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "postgres://db/ledger", RedactURL("postgres://db/ledger"))
	assert.Equal(t, "postgres://me@db/ledger", RedactURL("postgres://me@db/ledger"))
	assert.Equal(t, "not a url", RedactURL("not a url"))
}
