package parsers

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/bidi"

	"household-ledger/internal/detect"
	"household-ledger/internal/models"
)

var (
	// pdfDateToken matches dd/mm/yyyy and its short and dotted variants
	pdfDateToken = regexp.MustCompile(`^\d{1,2}[/.]\d{1,2}[/.](\d{4}|\d{2})$`)

	// pdfAmountToken requires two decimals; bare integers are reference numbers
	pdfAmountToken = regexp.MustCompile(`^[-\x{2212}]?(\d{1,3}(,\d{3})+|\d+)\.\d{2}-?$`)

	standaloneNumber = regexp.MustCompile(`^[\d\-/.,]+$`)
	gluedNumber      = regexp.MustCompile(`^(.*\D)\d{3,}$`)
)

// headerMarkers are Hebrew column labels. They also occur inside real
// descriptions ("העברה לזכות", "השלמת יתרה"), so they only mark a header
// as whole words and together with the rest of the row, see isHeaderRow.
var headerMarkers = map[string]bool{
	"יתרה": true, "תאריך": true, "ערך": true, "תיאור": true, "פרטים": true,
	"חובה": true, "זכות": true, "אסמכתא": true, "סכום": true,
}

// rowTokens is a row split into dates, amounts and free text, left to right
type rowTokens struct {
	dates   []time.Time
	amounts []decimal.Decimal
	text    []string
}

// tokenize classifies every whitespace token of the row cells
func tokenize(cells []string) rowTokens {
	var t rowTokens
	for _, c := range cells {
		for _, tok := range strings.Fields(c) {
			switch {
			case pdfDateToken.MatchString(tok):
				if d, ok := detect.ParseDate(tok); ok {
					t.dates = append(t.dates, d)
					continue
				}
				t.text = append(t.text, tok)
			case pdfAmountToken.MatchString(tok):
				amount, err := models.ParseDecimalFromString(tok)
				if err != nil {
					t.text = append(t.text, tok)
					continue
				}
				t.amounts = append(t.amounts, amount.Abs())
			default:
				t.text = append(t.text, tok)
			}
		}
	}
	return t
}

// isRTL reports whether r is a right-to-left letter (Hebrew or Arabic)
func isRTL(r rune) bool {
	props, _ := bidi.LookupRune(r)
	switch props.Class() {
	case bidi.R, bidi.AL:
		return true
	}
	return false
}

// joinsRTLRun reports whether r may sit inside an RTL run between two letters
func joinsRTLRun(r rune) bool {
	return isRTL(r) || unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.Is(unicode.Mn, r)
}

// repairHebrew reverses every RTL run in place. Extracted RTL text arrives
// in visual order, so each run of Hebrew letters (with the spaces and
// punctuation between them) reads backwards; Latin and digit runs keep
// their order and position.
func repairHebrew(s string) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))

	for i := 0; i < len(runes); {
		if !isRTL(runes[i]) {
			out = append(out, runes[i])
			i++
			continue
		}

		// Extend to the last RTL letter reachable through joining characters.
		end := i
		for j := i; j < len(runes) && joinsRTLRun(runes[j]); j++ {
			if isRTL(runes[j]) {
				end = j
			}
		}
		for k := end; k >= i; k-- {
			out = append(out, runes[k])
		}
		i = end + 1
	}
	return string(out)
}

// cleanDescription strips confirmation numbers and repairs Hebrew order
func cleanDescription(parts []string) string {
	var kept []string
	for _, tok := range strings.Fields(strings.Join(parts, " ")) {
		if standaloneNumber.MatchString(tok) {
			continue
		}
		if m := gluedNumber.FindStringSubmatch(tok); m != nil {
			tok = m[1]
		}
		kept = append(kept, tok)
	}
	return strings.TrimSpace(repairHebrew(strings.Join(kept, " ")))
}

// isHeaderRow reports whether a dated row is a table header or a balance
// line rather than a transaction. Words are compared whole, in extracted and
// repaired order. A row is a header when it has a marker and no amount, two
// distinct markers, or no words besides markers.
func isHeaderRow(t rowTokens) bool {
	markers := map[string]bool{}
	others := 0
	for _, tok := range t.text {
		word := strings.Trim(tok, ":;,.()\"'׳״-")
		if !strings.ContainsFunc(word, unicode.IsLetter) {
			continue
		}
		switch {
		case headerMarkers[word]:
			markers[word] = true
		case headerMarkers[reverseRunes(word)]:
			markers[reverseRunes(word)] = true
		default:
			others++
		}
	}

	switch {
	case len(markers) == 0:
		return false
	case len(t.amounts) == 0, len(markers) >= 2:
		return true
	default:
		return others == 0
	}
}

func reverseRunes(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
