package detect

import (
	"regexp"
	"strings"

	"household-ledger/internal/models"
)

// currencyPatterns are checked in order; ILS wins when a text mentions several
var currencyPatterns = []struct {
	code    string
	symbols []string
	codes   *regexp.Regexp
}{
	{"ILS", []string{"₪", "שקל", "ש\"ח", "ש״ח"}, regexp.MustCompile(`(?i)\b(ILS|NIS)\b`)},
	{"USD", []string{"$", "דולר"}, regexp.MustCompile(`(?i)\bUSD\b`)},
	{"EUR", []string{"€", "יורו"}, regexp.MustCompile(`(?i)\bEUR\b`)},
	{"GBP", []string{"£", "ליש\"ט"}, regexp.MustCompile(`(?i)\bGBP\b`)},
}

// LookupCurrency returns the ISO code mentioned in text, if any
func LookupCurrency(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	for _, p := range currencyPatterns {
		for _, sym := range p.symbols {
			if strings.Contains(text, sym) {
				return p.code, true
			}
		}
		if p.codes.MatchString(text) {
			return p.code, true
		}
	}
	return "", false
}

// DetectCurrency returns the ISO code mentioned in text, defaulting to ILS
func DetectCurrency(text string) string {
	if code, ok := LookupCurrency(text); ok {
		return code
	}
	return models.DefaultCurrency
}

// currencySampleRows is how many data rows are scanned after the headers
const currencySampleRows = 5

// CurrencyFromData checks the header row first, then the leading data rows
func CurrencyFromData(headers []string, rows [][]string) (string, bool) {
	if code, ok := LookupCurrency(strings.Join(headers, " ")); ok {
		return code, true
	}
	for i := 0; i < len(rows) && i < currencySampleRows; i++ {
		if code, ok := LookupCurrency(strings.Join(rows[i], " ")); ok {
			return code, true
		}
	}
	return "", false
}

// DetectCurrencyFromData is CurrencyFromData defaulting to ILS
func DetectCurrencyFromData(headers []string, rows [][]string) string {
	if code, ok := CurrencyFromData(headers, rows); ok {
		return code
	}
	return models.DefaultCurrency
}
