package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"1,234.56", "1234.56", false},
		{"-250.00", "-250", false},
		{"250.00-", "-250", false},
		{"(99.90)", "-99.9", false},
		{"₪ 1,000", "1000", false},
		{"$12.5", "12.5", false},
		{"1.234,56", "1234.56", false},
		{"12,50", "12.5", false},
		{"− 45.10", "-45.1", false},
		{"+300", "300", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalFromString(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q, got %s", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseDecimalFromString(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewParsedTransactionAmountIsAbsolute(t *testing.T) {
	date := time.Date(2026, 3, 10, 15, 45, 0, 0, time.Local)
	tx := NewParsedTransaction(date, "  ", decimal.NewFromInt(-250), TransactionTypeExpense, "")

	if tx.Amount.IsNegative() {
		t.Errorf("expected absolute amount, got %s", tx.Amount)
	}
	if tx.MerchantRaw != UnknownMerchant {
		t.Errorf("expected default merchant, got %q", tx.MerchantRaw)
	}
	if tx.Currency != DefaultCurrency {
		t.Errorf("expected default currency, got %q", tx.Currency)
	}
	if tx.Status != StatusPending {
		t.Errorf("expected pending status, got %s", tx.Status)
	}
	if FormatDate(tx.Date) != "2026-03-10" || tx.Date.Hour() != 0 {
		t.Errorf("expected calendar date, got %v", tx.Date)
	}
	if err := tx.Validate(); err != nil {
		t.Errorf("expected valid candidate: %v", err)
	}
}

func TestParsedTransactionValidate(t *testing.T) {
	valid := NewParsedTransaction(time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), "Shufersal", decimal.NewFromInt(10), TransactionTypeExpense, "ILS")

	negative := *valid
	negative.Amount = decimal.NewFromInt(-1)
	if negative.Validate() == nil {
		t.Error("negative amount should fail validation")
	}

	noDate := *valid
	noDate.Date = time.Time{}
	if noDate.Validate() == nil {
		t.Error("zero date should fail validation")
	}

	badType := *valid
	badType.Type = "transfer"
	if badType.Validate() == nil {
		t.Error("unknown type should fail validation")
	}
}

func TestDayDiff(t *testing.T) {
	card := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	app := time.Date(2026, 3, 8, 0, 1, 0, 0, time.UTC)

	if got := DayDiff(card, app); got != 2 {
		t.Errorf("DayDiff = %d, want 2", got)
	}
	if got := DayDiff(app, card); got != -2 {
		t.Errorf("DayDiff reversed = %d, want -2", got)
	}
	if got := AbsDayDiff(app, card); got != 2 {
		t.Errorf("AbsDayDiff = %d, want 2", got)
	}
}

func TestStoredTransactionSourceAndDirection(t *testing.T) {
	tests := []struct {
		name      string
		source    string
		txType    TransactionType
		direction P2PDirection
		wantApp   bool
		wantDir   P2PDirection
	}{
		{"bit screenshot", "bit/paybox screenshot", TransactionTypeExpense, "", true, P2PSent},
		{"generic screenshot", "Screenshot upload", TransactionTypeIncome, "", true, P2PReceived},
		{"explicit withdrawal", "screenshot", TransactionTypeIncome, P2PWithdrawal, true, P2PWithdrawal},
		{"card import", "csv import", TransactionTypeExpense, "", false, P2PSent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &StoredTransaction{Source: tt.source}
			tx.Type = tt.txType
			tx.P2PDirection = tt.direction

			if tx.IsAppSourced() != tt.wantApp {
				t.Errorf("IsAppSourced = %v, want %v", tx.IsAppSourced(), tt.wantApp)
			}
			if tx.EffectiveDirection() != tt.wantDir {
				t.Errorf("EffectiveDirection = %s, want %s", tx.EffectiveDirection(), tt.wantDir)
			}
		})
	}
}

func TestReconciliationStatusIsUnreconciled(t *testing.T) {
	if !ReconciliationNone.IsUnreconciled() || !ReconciliationPending.IsUnreconciled() {
		t.Error("null and pending should be unreconciled")
	}
	for _, s := range []ReconciliationStatus{ReconciliationMatched, ReconciliationBalancePaid, ReconciliationWithdrawalMatched, ReconciliationReimbursement} {
		if s.IsUnreconciled() {
			t.Errorf("%s should count as reconciled", s)
		}
	}
}

func TestStoredTransactionJSON(t *testing.T) {
	tx := &StoredTransaction{
		ID:                   "tx-1",
		HouseholdID:          "hh-1",
		Source:               "csv import",
		ReconciliationStatus: ReconciliationMatched,
	}
	tx.ParsedTransaction = *NewParsedTransaction(time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), "BIT TRANSFER", decimal.NewFromFloat(250), TransactionTypeExpense, "ILS")

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	checks := map[string]interface{}{
		"id":                    "tx-1",
		"household_id":          "hh-1",
		"date":                  "2026-01-31",
		"amount":                "250.00",
		"merchant_raw":          "BIT TRANSFER",
		"reconciliation_status": "matched",
	}
	for key, want := range checks {
		if decoded[key] != want {
			t.Errorf("%s = %v, want %v", key, decoded[key], want)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tx := &StoredTransaction{ID: "a"}
	tx.InstallmentInfo = &InstallmentInfo{Total: 3}

	c := tx.Clone()
	c.InstallmentInfo.Total = 6
	c.Notes = "changed"

	if tx.InstallmentInfo.Total != 3 || tx.Notes != "" {
		t.Error("clone mutation leaked into original")
	}
}
