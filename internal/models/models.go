package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO calendar date layout used for every transaction date
const DateLayout = "2006-01-02"

// DefaultCurrency is used when no currency marker is found
const DefaultCurrency = "ILS"

// UnknownMerchant is used when a source gives no merchant or counterparty
const UnknownMerchant = "Unknown"

// TransactionType carries the direction of money; amounts are unsigned
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// ParseTransactionType parses a loosely formatted type value
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "credit", "received", "in", "זכות", "הכנסה":
		return TransactionTypeIncome, nil
	case "expense", "debit", "sent", "out", "חובה", "הוצאה":
		return TransactionTypeExpense, nil
	default:
		return "", fmt.Errorf("invalid transaction type '%s': must be income or expense", s)
	}
}

// Status is the review status of a transaction
type Status string

const (
	StatusPending     Status = "pending"
	StatusCategorized Status = "categorized"
	StatusSkipped     Status = "skipped"
	StatusVerified    Status = "verified"
)

// ReconciliationStatus records the outcome of a merge. The empty value means
// the transaction has not been reconciled (stored as NULL).
type ReconciliationStatus string

const (
	ReconciliationNone              ReconciliationStatus = ""
	ReconciliationPending           ReconciliationStatus = "pending"
	ReconciliationMatched           ReconciliationStatus = "matched"
	ReconciliationBalancePaid       ReconciliationStatus = "balance_paid"
	ReconciliationWithdrawalMatched ReconciliationStatus = "withdrawal_matched"
	ReconciliationReimbursement     ReconciliationStatus = "reimbursement"
)

// IsUnreconciled reports whether a merge may still be applied
func (s ReconciliationStatus) IsUnreconciled() bool {
	return s == ReconciliationNone || s == ReconciliationPending
}

// P2PDirection is the direction of a wallet-app transfer
type P2PDirection string

const (
	P2PSent       P2PDirection = "sent"
	P2PReceived   P2PDirection = "received"
	P2PWithdrawal P2PDirection = "withdrawal"
)

// ParseP2PDirection returns the direction or false when s is not one
func ParseP2PDirection(s string) (P2PDirection, bool) {
	switch P2PDirection(strings.ToLower(strings.TrimSpace(s))) {
	case P2PSent:
		return P2PSent, true
	case P2PReceived:
		return P2PReceived, true
	case P2PWithdrawal:
		return P2PWithdrawal, true
	}
	return "", false
}

// SourceType identifies which parser produced a result
type SourceType string

const (
	SourceCSV   SourceType = "csv"
	SourceExcel SourceType = "excel"
	SourcePDF   SourceType = "pdf"
	SourceImage SourceType = "image"
)

// Source tags stored on persisted transactions
const (
	SourceTagScreenshot    = "screenshot"
	SourceTagP2PScreenshot = "bit/paybox screenshot"
)

// InstallmentInfo describes an installment purchase
type InstallmentInfo struct {
	Total int `json:"total"`
}

// ParsedTransaction is a normalized transaction candidate produced by a
// parser. Amount is always the absolute magnitude; Type carries direction.
type ParsedTransaction struct {
	Date               time.Time        `json:"-"`
	MerchantRaw        string           `json:"merchant_raw"`
	MerchantNormalized string           `json:"merchant_normalized,omitempty"`
	Amount             decimal.Decimal  `json:"-"`
	Currency           string           `json:"currency"`
	Type               TransactionType  `json:"type"`
	Category           string           `json:"category,omitempty"`
	Status             Status           `json:"status"`
	Confidence         float64          `json:"confidence,omitempty"`
	IsReimbursement    bool             `json:"is_reimbursement"`
	IsInstallment      bool             `json:"is_installment"`
	InstallmentInfo    *InstallmentInfo `json:"installment_info,omitempty"`
	P2PDirection       P2PDirection     `json:"p2p_direction,omitempty"`
	P2PCounterparty    string           `json:"p2p_counterparty,omitempty"`
	P2PMemo            string           `json:"p2p_memo,omitempty"`

	// Row is the 1-based source row (or record index) the candidate came from.
	Row int `json:"row,omitempty"`
}

// NewParsedTransaction creates a pending candidate. The amount sign is dropped.
func NewParsedTransaction(date time.Time, merchant string, amount decimal.Decimal, txType TransactionType, currency string) *ParsedTransaction {
	if strings.TrimSpace(merchant) == "" {
		merchant = UnknownMerchant
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return &ParsedTransaction{
		Date:        DateOnly(date),
		MerchantRaw: strings.TrimSpace(merchant),
		Amount:      amount.Abs(),
		Currency:    currency,
		Type:        txType,
		Status:      StatusPending,
	}
}

// Validate performs basic validation on the candidate
func (t *ParsedTransaction) Validate() error {
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("transaction amount must be non-negative, got %s", t.Amount)
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("invalid transaction type: %s", t.Type)
	}
	if strings.TrimSpace(t.MerchantRaw) == "" {
		return fmt.Errorf("merchant cannot be empty")
	}
	return nil
}

// DisplayMerchant prefers the normalized merchant name
func (t *ParsedTransaction) DisplayMerchant() string {
	if t.MerchantNormalized != "" {
		return t.MerchantNormalized
	}
	return t.MerchantRaw
}

// String returns a string representation of the candidate
func (t *ParsedTransaction) String() string {
	return fmt.Sprintf("ParsedTransaction{Date: %s, Merchant: %s, Amount: %s %s, Type: %s}",
		FormatDate(t.Date), t.MerchantRaw, t.Amount.StringFixed(2), t.Currency, t.Type)
}

// MarshalJSON writes the date as YYYY-MM-DD and the amount as a string
func (t ParsedTransaction) MarshalJSON() ([]byte, error) {
	type Alias ParsedTransaction
	return json.Marshal(&struct {
		Date   string `json:"date"`
		Amount string `json:"amount"`
		Alias
	}{
		Date:   FormatDate(t.Date),
		Amount: t.Amount.StringFixed(2),
		Alias:  Alias(t),
	})
}

// StoredTransaction is a persisted transaction scoped to one household
type StoredTransaction struct {
	ParsedTransaction

	ID                    string
	HouseholdID           string
	Source                string
	ReconciliationStatus  ReconciliationStatus
	ReconciliationGroupID string
	IsDuplicate           bool
	DuplicateOf           string
	LinkedToTransactionID string
	Notes                 string
	CreatedAt             time.Time
}

// MarshalJSON flattens the embedded candidate and the stored fields into one
// object. The embedded MarshalJSON would otherwise be promoted and hide them.
func (s StoredTransaction) MarshalJSON() ([]byte, error) {
	type storedFields struct {
		ID                    string               `json:"id"`
		HouseholdID           string               `json:"household_id"`
		Source                string               `json:"source"`
		ReconciliationStatus  ReconciliationStatus `json:"reconciliation_status,omitempty"`
		ReconciliationGroupID string               `json:"reconciliation_group_id,omitempty"`
		IsDuplicate           bool                 `json:"is_duplicate"`
		DuplicateOf           string               `json:"duplicate_of,omitempty"`
		LinkedToTransactionID string               `json:"linked_to_transaction_id,omitempty"`
		Notes                 string               `json:"notes,omitempty"`
		CreatedAt             time.Time            `json:"created_at"`
	}

	fields := map[string]json.RawMessage{}
	base, err := json.Marshal(s.ParsedTransaction)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}

	extra, err := json.Marshal(storedFields{
		ID:                    s.ID,
		HouseholdID:           s.HouseholdID,
		Source:                s.Source,
		ReconciliationStatus:  s.ReconciliationStatus,
		ReconciliationGroupID: s.ReconciliationGroupID,
		IsDuplicate:           s.IsDuplicate,
		DuplicateOf:           s.DuplicateOf,
		LinkedToTransactionID: s.LinkedToTransactionID,
		Notes:                 s.Notes,
		CreatedAt:             s.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(extra, &fields); err != nil {
		return nil, err
	}

	return json.Marshal(fields)
}

// IsAppSourced reports whether the record came from a wallet-app screenshot
func (s *StoredTransaction) IsAppSourced() bool {
	source := strings.ToLower(s.Source)
	return source == SourceTagP2PScreenshot || strings.Contains(source, SourceTagScreenshot)
}

// EffectiveDirection returns the explicit P2P direction or the default
// derived from the type: income means received, anything else sent.
func (s *StoredTransaction) EffectiveDirection() P2PDirection {
	if s.P2PDirection != "" {
		return s.P2PDirection
	}
	if s.Type == TransactionTypeIncome {
		return P2PReceived
	}
	return P2PSent
}

// Clone returns a copy that can be mutated independently
func (s *StoredTransaction) Clone() *StoredTransaction {
	c := *s
	if s.InstallmentInfo != nil {
		info := *s.InstallmentInfo
		c.InstallmentInfo = &info
	}
	return &c
}

// String returns a string representation of the stored transaction
func (s *StoredTransaction) String() string {
	return fmt.Sprintf("StoredTransaction{ID: %s, Date: %s, Merchant: %s, Amount: %s, Source: %s, Reconciliation: %q}",
		s.ID, FormatDate(s.Date), s.DisplayMerchant(), s.Amount.StringFixed(2), s.Source, s.ReconciliationStatus)
}

// ParseResult is the outcome of parsing one file
type ParseResult struct {
	FileName     string               `json:"fileName"`
	Transactions []*ParsedTransaction `json:"transactions"`
	TotalRows    int                  `json:"totalRows"`
	ValidRows    int                  `json:"validRows"`
	ErrorRows    int                  `json:"errorRows"`
	SourceType   SourceType           `json:"sourceType"`
}

// Utility functions for amounts and dates

// DateOnly truncates a time to its calendar date in UTC
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate formats a date as YYYY-MM-DD, or "" for the zero time
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseISODate parses a YYYY-MM-DD date
func ParseISODate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date '%s': %w", s, err)
	}
	return t, nil
}

// DayDiff returns the number of calendar days from b to a (a - b)
func DayDiff(a, b time.Time) int {
	return int(DateOnly(a).Sub(DateOnly(b)).Hours() / 24)
}

// AbsDayDiff returns the absolute calendar day difference
func AbsDayDiff(a, b time.Time) int {
	d := DayDiff(a, b)
	if d < 0 {
		return -d
	}
	return d
}

var currencyMarkers = []string{"₪", "$", "€", "£", "ILS", "NIS", "USD", "EUR", "GBP", "ש\"ח", "ש״ח"}

// ParseDecimalFromString parses an amount as printed on statements. It accepts
// currency markers, thousands separators, parentheses and trailing minus.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	upper := strings.ToUpper(s)
	for _, marker := range currencyMarkers {
		upper = strings.ReplaceAll(upper, marker, "")
	}
	s = strings.ReplaceAll(upper, "\u2212", "-")
	s = strings.ReplaceAll(s, "\u200f", "")
	s = strings.ReplaceAll(s, "\u200e", "")
	s = strings.Join(strings.Fields(s), "")

	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimPrefix(s, "-")
	}
	s = strings.TrimPrefix(s, "+")

	s = normalizeSeparators(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators turns "1.234,56" and "12,50" into dot-decimal form and
// drops thousands separators.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	case lastComma >= 0 && lastDot < 0 && strings.Count(s, ",") == 1 && len(s)-lastComma-1 == 2:
		return strings.Replace(s, ",", ".", 1)
	default:
		return strings.ReplaceAll(s, ",", "")
	}
}

// CompareAmountsWithTolerance compares two decimal amounts with a tolerance
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	diff := a.Sub(b).Abs()
	return diff.LessThanOrEqual(tolerance)
}
