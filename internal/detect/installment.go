package detect

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountSource selects which card column is recorded for an installment row
type AmountSource int

const (
	// BillingAmount records what is charged this cycle
	BillingAmount AmountSource = iota
	// TransactionAmount records the full purchase price
	TransactionAmount
)

// String returns the string representation of AmountSource
func (s AmountSource) String() string {
	if s == TransactionAmount {
		return "transaction"
	}
	return "billing"
}

// ParseAmountSource parses "billing" or "transaction"
func ParseAmountSource(s string) (AmountSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "billing":
		return BillingAmount, nil
	case "transaction":
		return TransactionAmount, nil
	}
	return BillingAmount, fmt.Errorf("invalid installment amount source '%s': must be billing or transaction", s)
}

// InstallmentPolicy decides how card rows with both a billing and a
// transaction amount are recorded.
type InstallmentPolicy struct {
	// Tolerance is how far |transaction| may exceed |billing| before the
	// row counts as an installment.
	Tolerance decimal.Decimal
	Source    AmountSource
}

// BillingAmountWins records the billed amount and flags installments
var BillingAmountWins = InstallmentPolicy{
	Tolerance: decimal.NewFromFloat(0.01),
	Source:    BillingAmount,
}

// InstallmentDecision is the outcome of applying a policy to one row
type InstallmentDecision struct {
	// Amount keeps the sign of the column it came from
	Amount        decimal.Decimal
	IsInstallment bool
	Total         int
}

// Apply resolves a card row. hasBilling and hasTransaction report which
// columns carried a value; when only one did, it is used as-is.
func (p InstallmentPolicy) Apply(billing decimal.Decimal, hasBilling bool, transaction decimal.Decimal, hasTransaction bool) InstallmentDecision {
	switch {
	case hasBilling && !hasTransaction:
		return InstallmentDecision{Amount: billing}
	case hasTransaction && (!hasBilling || billing.IsZero()):
		return InstallmentDecision{Amount: transaction}
	case !hasBilling:
		return InstallmentDecision{Amount: decimal.Zero}
	}

	absBilling := billing.Abs()
	absTransaction := transaction.Abs()
	if absTransaction.LessThanOrEqual(absBilling.Add(p.Tolerance)) {
		return InstallmentDecision{Amount: billing}
	}

	total := int(absTransaction.Div(absBilling).Round(0).IntPart())
	if total < 2 {
		total = 2
	}
	decision := InstallmentDecision{IsInstallment: true, Total: total, Amount: billing}
	if p.Source == TransactionAmount {
		decision.Amount = transaction
	}
	return decision
}
