// Package matcher holds the matching algorithms of the ledger: the duplicate
// checker run at ingest time and the four-phase P2P reconciliation engine.
//
// Both work on in-memory snapshots and never touch storage. Matching is
// greedy first-fit rather than a global optimum; the assignment step sits
// behind the Assigner interface so scoring and assignment can change
// independently.
//
// The reconciliation engine runs these phases over one household snapshot:
//  1. Outgoing: card rows with a P2P keyword against app rows that sent money
//  2. Withdrawal: app withdrawals against bank deposits from the app
//  3. Balance-paid: app payments left without a card counterpart
//  4. Reimbursement: money received through an app
//
// Example usage:
//
//	engine := matcher.NewEngine(matcher.DefaultP2PConfig())
//	result := engine.Reconcile(snapshot)
//	for _, m := range result.Matches {
//		fmt.Println(m.MatchType, m.Confidence, m.Reason)
//	}
package matcher

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MatchType represents the disposition of a scored match
type MatchType int

const (
	// MatchExact is a single candidate scoring at or above the exact threshold
	MatchExact MatchType = iota

	// MatchFuzzy is a single candidate below the exact threshold
	MatchFuzzy

	// MatchAmbiguous means several candidates qualified; a person must choose
	MatchAmbiguous

	// MatchNone means no candidate qualified. These are never surfaced.
	MatchNone
)

// String returns the string representation of MatchType
func (mt MatchType) String() string {
	switch mt {
	case MatchExact:
		return "exact"
	case MatchFuzzy:
		return "fuzzy"
	case MatchAmbiguous:
		return "ambiguous"
	case MatchNone:
		return "no_match"
	default:
		return "unknown"
	}
}

// MarshalText writes the match type as its name
func (mt MatchType) MarshalText() ([]byte, error) {
	return []byte(mt.String()), nil
}

// DayWindow bounds the signed day difference (primary date minus candidate
// date) that still qualifies as a candidate.
type DayWindow struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether days lies within the window, inclusive
func (w DayWindow) Contains(days int) bool {
	return days >= w.Min && days <= w.Max
}

// Validate checks if the window is well formed
func (w DayWindow) Validate() error {
	if w.Min > w.Max {
		return fmt.Errorf("day window min %d is greater than max %d", w.Min, w.Max)
	}
	return nil
}

// ScoreWeights are the additive confidence points of a P2P match
type ScoreWeights struct {
	Base                  int `json:"base"`
	ExactAmount           int `json:"exact_amount"`
	AmountWithinTolerance int `json:"amount_within_tolerance"`
	SameDay               int `json:"same_day"`
	NearDays              int `json:"near_days"`
	FarDays               int `json:"far_days"`

	// NearDaysMax is the largest absolute day gap scored as near
	NearDaysMax int `json:"near_days_max"`
}

// Validate checks if the score weights are valid
func (sw *ScoreWeights) Validate() error {
	for name, v := range map[string]int{
		"base":                    sw.Base,
		"exact_amount":            sw.ExactAmount,
		"amount_within_tolerance": sw.AmountWithinTolerance,
		"same_day":                sw.SameDay,
		"near_days":               sw.NearDays,
		"far_days":                sw.FarDays,
	} {
		if v < 0 {
			return fmt.Errorf("%s weight cannot be negative: %d", name, v)
		}
	}
	if sw.NearDaysMax < 1 {
		return fmt.Errorf("near days max must be at least 1: %d", sw.NearDaysMax)
	}
	return nil
}

// P2PKeywords are merchant fragments that mark a wallet-app charge on a card
// or bank statement.
var P2PKeywords = []string{"BIT", "ביט", "PAYBOX", "פייבוקס", "PEPPER", "PAYPAL", "PAY PAL"}

// DepositKeywords mark bank deposits that came from a wallet app
var DepositKeywords = []string{"BIT", "ביט", "PAYBOX", "פייבוקס", "העברה מ"}

// P2PConfig holds configuration for the reconciliation engine
type P2PConfig struct {
	// AmountTolerance is the largest absolute amount difference of a candidate
	AmountTolerance decimal.Decimal `json:"amount_tolerance"`

	// ExactAmountEpsilon is the difference below which amounts count as equal
	ExactAmountEpsilon decimal.Decimal `json:"exact_amount_epsilon"`

	// OutgoingDays bounds card date minus app date in phase 1
	OutgoingDays DayWindow `json:"outgoing_days"`

	// WithdrawalDays bounds deposit date minus withdrawal date in phase 2
	WithdrawalDays DayWindow `json:"withdrawal_days"`

	Weights ScoreWeights `json:"weights"`

	// ExactThreshold is the lowest score reported as an exact match
	ExactThreshold int `json:"exact_threshold"`

	// AmbiguousConfidence is the confidence reported for ambiguous matches
	AmbiguousConfidence int `json:"ambiguous_confidence"`

	OutgoingKeywords []string `json:"outgoing_keywords"`
	DepositKeywords  []string `json:"deposit_keywords"`
}

// DefaultP2PConfig returns the reconciliation defaults
func DefaultP2PConfig() *P2PConfig {
	return &P2PConfig{
		AmountTolerance:    decimal.NewFromInt(1),
		ExactAmountEpsilon: decimal.NewFromFloat(0.01),
		OutgoingDays:       DayWindow{Min: -1, Max: 5},
		WithdrawalDays:     DayWindow{Min: -1, Max: 3},
		Weights: ScoreWeights{
			Base:                  70,
			ExactAmount:           15,
			AmountWithinTolerance: 10,
			SameDay:               15,
			NearDays:              10,
			FarDays:               5,
			NearDaysMax:           2,
		},
		ExactThreshold:      90,
		AmbiguousConfidence: 70,
		OutgoingKeywords:    append([]string(nil), P2PKeywords...),
		DepositKeywords:     append([]string(nil), DepositKeywords...),
	}
}

// Validate checks if the reconciliation configuration is valid
func (c *P2PConfig) Validate() error {
	if c.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative: %s", c.AmountTolerance)
	}
	if c.ExactAmountEpsilon.IsNegative() {
		return fmt.Errorf("exact amount epsilon cannot be negative: %s", c.ExactAmountEpsilon)
	}
	if err := c.OutgoingDays.Validate(); err != nil {
		return fmt.Errorf("invalid outgoing days: %w", err)
	}
	if err := c.WithdrawalDays.Validate(); err != nil {
		return fmt.Errorf("invalid withdrawal days: %w", err)
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}
	if c.ExactThreshold < 0 || c.ExactThreshold > 100 {
		return fmt.Errorf("exact threshold must be between 0 and 100: %d", c.ExactThreshold)
	}
	if c.AmbiguousConfidence < 0 || c.AmbiguousConfidence > 100 {
		return fmt.Errorf("ambiguous confidence must be between 0 and 100: %d", c.AmbiguousConfidence)
	}
	if len(c.OutgoingKeywords) == 0 {
		return fmt.Errorf("at least one outgoing keyword is required")
	}
	if len(c.DepositKeywords) == 0 {
		return fmt.Errorf("at least one deposit keyword is required")
	}
	return nil
}

// Clone creates a deep copy of the reconciliation configuration
func (c *P2PConfig) Clone() *P2PConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.OutgoingKeywords = append([]string(nil), c.OutgoingKeywords...)
	clone.DepositKeywords = append([]string(nil), c.DepositKeywords...)
	return &clone
}

// String returns a human-readable description of the configuration
func (c *P2PConfig) String() string {
	return fmt.Sprintf("P2PConfig{AmountTolerance: %s, OutgoingDays: [%d,%d], WithdrawalDays: [%d,%d], ExactThreshold: %d}",
		c.AmountTolerance, c.OutgoingDays.Min, c.OutgoingDays.Max,
		c.WithdrawalDays.Min, c.WithdrawalDays.Max, c.ExactThreshold)
}

// DuplicateConfig holds configuration for the ingest-time duplicate checker
type DuplicateConfig struct {
	// WindowDays is how far around the new rows existing rows are loaded
	WindowDays int `json:"window_days"`

	// MaxDateDiffDays is the largest day gap still flagged as a duplicate
	MaxDateDiffDays int `json:"max_date_diff_days"`

	// AmountTolerance is the largest absolute amount difference still flagged
	AmountTolerance decimal.Decimal `json:"amount_tolerance"`

	// ExactAmountEpsilon is the difference below which amounts count as equal
	ExactAmountEpsilon decimal.Decimal `json:"exact_amount_epsilon"`

	BaseConfidence   int `json:"base_confidence"`
	SameDayBonus     int `json:"same_day_bonus"`
	ExactAmountBonus int `json:"exact_amount_bonus"`
	P2PBonus         int `json:"p2p_bonus"`
	MaxConfidence    int `json:"max_confidence"`

	// P2PKeywords earn the P2P bonus when either merchant contains one
	P2PKeywords []string `json:"p2p_keywords"`
}

// DefaultDuplicateConfig returns the duplicate checker defaults
func DefaultDuplicateConfig() *DuplicateConfig {
	return &DuplicateConfig{
		WindowDays:         5,
		MaxDateDiffDays:    3,
		AmountTolerance:    decimal.NewFromInt(1),
		ExactAmountEpsilon: decimal.NewFromFloat(0.01),
		BaseConfidence:     80,
		SameDayBonus:       10,
		ExactAmountBonus:   10,
		P2PBonus:           5,
		MaxConfidence:      100,
		P2PKeywords:        []string{"BIT", "ביט", "PAYBOX", "פייבוקס"},
	}
}

// Validate checks if the duplicate configuration is valid
func (c *DuplicateConfig) Validate() error {
	if c.WindowDays < 0 {
		return fmt.Errorf("window days cannot be negative: %d", c.WindowDays)
	}
	if c.MaxDateDiffDays < 0 {
		return fmt.Errorf("max date diff days cannot be negative: %d", c.MaxDateDiffDays)
	}
	if c.MaxDateDiffDays > c.WindowDays {
		return fmt.Errorf("max date diff days (%d) cannot exceed window days (%d)", c.MaxDateDiffDays, c.WindowDays)
	}
	if c.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative: %s", c.AmountTolerance)
	}
	if c.ExactAmountEpsilon.IsNegative() {
		return fmt.Errorf("exact amount epsilon cannot be negative: %s", c.ExactAmountEpsilon)
	}
	if c.BaseConfidence < 0 || c.BaseConfidence > c.MaxConfidence {
		return fmt.Errorf("base confidence must be between 0 and max confidence: %d", c.BaseConfidence)
	}
	if c.MaxConfidence > 100 {
		return fmt.Errorf("max confidence cannot exceed 100: %d", c.MaxConfidence)
	}
	return nil
}

// Clone creates a deep copy of the duplicate configuration
func (c *DuplicateConfig) Clone() *DuplicateConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.P2PKeywords = append([]string(nil), c.P2PKeywords...)
	return &clone
}

// containsKeyword reports whether text contains any keyword, ignoring case
func containsKeyword(text string, keywords []string) bool {
	upper := strings.ToUpper(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(upper, strings.ToUpper(kw)) {
			return true
		}
	}
	return false
}
