// Package detect holds the heuristics that turn locale-specific statement
// layouts (Hebrew and English) into column roles, dates and currencies.
//
// Everything here is a pure function over strings: no I/O, no shared state.
// Parsers call into it after reading a file into a grid or text fragments.
package detect

import (
	"strings"

	"golang.org/x/text/cases"
)

// Role is the semantic role of a statement column
type Role int

const (
	RoleNone Role = iota
	RoleDate
	RoleDescription
	RoleAmount
	RoleBilling
	RoleTransactionAmount
	RoleCredit
	RoleDebit
	RoleBalance
	RoleCurrency
)

// String returns the string representation of Role
func (r Role) String() string {
	switch r {
	case RoleDate:
		return "date"
	case RoleDescription:
		return "description"
	case RoleAmount:
		return "amount"
	case RoleBilling:
		return "billing_amount"
	case RoleTransactionAmount:
		return "transaction_amount"
	case RoleCredit:
		return "credit"
	case RoleDebit:
		return "debit"
	case RoleBalance:
		return "balance"
	case RoleCurrency:
		return "currency"
	default:
		return "none"
	}
}

// roleKeywords lists header keywords per role. Order matters: a header is
// assigned the first role whose keyword it contains, so the specific amount
// roles come before the generic one.
var roleKeywords = []struct {
	role     Role
	keywords []string
}{
	{RoleBilling, []string{"billing amount", "charge amount", "amount charged", "סכום חיוב", "סכום לחיוב", "סכום החיוב"}},
	{RoleTransactionAmount, []string{"transaction amount", "original amount", "purchase amount", "deal amount", "סכום עסקה", "סכום העסקה", "סכום מקורי", "סכום קנייה"}},
	{RoleCredit, []string{"credit", "deposit", "income", "זכות", "הפקדה", "בזכות"}},
	{RoleDebit, []string{"debit", "withdrawal", "expense", "חובה", "משיכה", "בחובה"}},
	{RoleBalance, []string{"balance", "יתרה"}},
	{RoleCurrency, []string{"currency", "מטבע"}},
	{RoleDate, []string{"date", "תאריך"}},
	{RoleDescription, []string{"description", "merchant", "details", "payee", "narrative", "business", "name", "תיאור", "פרטים", "בית עסק", "בית העסק", "שם העסק", "הפעולה", "פעולה"}},
	{RoleAmount, []string{"amount", "sum", "total", "סכום", "סך"}},
}

// ColumnMapping maps semantic roles to column indexes (-1 when absent)
type ColumnMapping struct {
	Date              int `json:"date"`
	Description       int `json:"description"`
	Amount            int `json:"amount"`
	Billing           int `json:"billing_amount"`
	TransactionAmount int `json:"transaction_amount"`
	Credit            int `json:"credit"`
	Debit             int `json:"debit"`
	Balance           int `json:"balance"`
	Currency          int `json:"currency"`
}

// EmptyMapping returns a mapping with every role absent
func EmptyMapping() ColumnMapping {
	return ColumnMapping{
		Date: -1, Description: -1, Amount: -1, Billing: -1, TransactionAmount: -1,
		Credit: -1, Debit: -1, Balance: -1, Currency: -1,
	}
}

// HasBillingPair reports whether a card-style billing or transaction amount column exists
func (m ColumnMapping) HasBillingPair() bool {
	return m.Billing >= 0 || m.TransactionAmount >= 0
}

// HasCreditDebit reports whether a bank-style credit or debit column exists
func (m ColumnMapping) HasCreditDebit() bool {
	return m.Credit >= 0 || m.Debit >= 0
}

// HasAmount reports whether a generic amount column exists
func (m ColumnMapping) HasAmount() bool {
	return m.Amount >= 0
}

// IsUsable reports whether rows can be parsed with this mapping
func (m ColumnMapping) IsUsable() bool {
	return m.Date >= 0 && (m.HasBillingPair() || m.HasCreditDebit() || m.HasAmount())
}

func (m *ColumnMapping) slot(role Role) *int {
	switch role {
	case RoleDate:
		return &m.Date
	case RoleDescription:
		return &m.Description
	case RoleAmount:
		return &m.Amount
	case RoleBilling:
		return &m.Billing
	case RoleTransactionAmount:
		return &m.TransactionAmount
	case RoleCredit:
		return &m.Credit
	case RoleDebit:
		return &m.Debit
	case RoleBalance:
		return &m.Balance
	case RoleCurrency:
		return &m.Currency
	}
	return nil
}

// foldHeader lowercases with Unicode case folding and collapses whitespace
func foldHeader(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// ClassifyHeader returns the role a single header string maps to
func ClassifyHeader(header string) Role {
	folded := foldHeader(header)
	if folded == "" {
		return RoleNone
	}
	for _, rk := range roleKeywords {
		for _, kw := range rk.keywords {
			if strings.Contains(folded, kw) {
				return rk.role
			}
		}
	}
	return RoleNone
}

// DetectColumnMapping maps raw header strings to semantic roles by
// case-insensitive substring match. The first header claiming a role keeps it.
func DetectColumnMapping(headers []string) ColumnMapping {
	mapping := EmptyMapping()
	for i, header := range headers {
		role := ClassifyHeader(header)
		if role == RoleNone {
			continue
		}
		if slot := mapping.slot(role); slot != nil && *slot < 0 {
			*slot = i
		}
	}
	return mapping
}

// DefaultHeaderScanRows is how many leading rows FindHeaderRow considers
const DefaultHeaderScanRows = 15

// scoreRow counts keyword hits across all roles for one row
func scoreRow(row []string) int {
	score := 0
	for _, cell := range row {
		folded := foldHeader(cell)
		if folded == "" {
			continue
		}
		for _, rk := range roleKeywords {
			for _, kw := range rk.keywords {
				if strings.Contains(folded, kw) {
					score++
					break
				}
			}
		}
	}
	return score
}

// FindHeaderRow returns the index of the best-scoring row among the first
// scanRows rows. It returns 0 when no row scores above zero.
func FindHeaderRow(rows [][]string, scanRows int) int {
	if scanRows <= 0 {
		scanRows = DefaultHeaderScanRows
	}

	best, bestScore := 0, 0
	for i := 0; i < len(rows) && i < scanRows; i++ {
		if score := scoreRow(rows[i]); score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}
