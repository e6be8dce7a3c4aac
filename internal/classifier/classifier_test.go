package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare array", `[{"amount": 1}]`, `[{"amount": 1}]`},
		{"fenced", "```json\n[{\"amount\": 1}]\n```", `[{"amount": 1}]`},
		{"chatter around array", "Here you go:\n[{\"amount\": 1}]\nThanks", `[{"amount": 1}]`},
		{"object wrapper", "```\n{\"transactions\": []}\n```", `{"transactions": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanModelJSON(tt.raw))
		})
	}
}

func TestDecodeRecords(t *testing.T) {
	raw := "```json\n[" +
		`{"date": "2026-03-08", "p2p_counterparty": "Dana", "amount": 250, "type": "expense", "p2p_direction": "sent"},` +
		`"garbage"` +
		"]\n```"

	records, err := DecodeRecords(raw)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Dana", records[0]["p2p_counterparty"])
	assert.EqualValues(t, 250, records[0]["amount"])
	assert.Empty(t, records[1])
}

func TestDecodeRecordsObjectWrapper(t *testing.T) {
	records, err := DecodeRecords(`{"transactions": [{"amount": "12.50"}]}`)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "12.50", records[0]["amount"])
}

func TestDecodeRecordsRejectsNonArray(t *testing.T) {
	_, err := DecodeRecords(`{"amount": 1}`)
	assert.Error(t, err)

	_, err = DecodeRecords("not json")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.NoError(t, (&Config{Model: DefaultModel}).Validate())
}
