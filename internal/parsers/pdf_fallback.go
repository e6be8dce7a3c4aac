package parsers

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"household-ledger/internal/detect"
	"household-ledger/internal/models"
	"household-ledger/pkg/errors"
)

// dateAnchor is a cluster of date-bearing fragments sharing a rounded Y
type dateAnchor struct {
	page  int
	y     float64
	items []Fragment
}

func hasDateToken(text string) bool {
	for _, tok := range strings.Fields(text) {
		if pdfDateToken.MatchString(tok) {
			if _, ok := detect.ParseDate(tok); ok {
				return true
			}
		}
	}
	return false
}

// parseDateAnchors tolerates descriptions wrapped over several visual
// lines: every fragment joins the nearest date line at or above it.
func (pp *PDFParser) parseDateAnchors(doc *Document, file string) ([]*models.ParsedTransaction, *ParseStats) {
	stats := NewParseStats(pp.config.MaxRowErrors)
	cfg := pp.config.PDF

	byKey := map[[2]float64]*dateAnchor{}
	var anchors []*dateAnchor
	for _, item := range doc.Items {
		if !hasDateToken(item.Text) {
			continue
		}
		y := math.Round(item.Y/cfg.AnchorRounding) * cfg.AnchorRounding
		key := [2]float64{float64(item.Page), y}
		a, ok := byKey[key]
		if !ok {
			a = &dateAnchor{page: item.Page, y: y}
			byKey[key] = a
			anchors = append(anchors, a)
		}
		a.items = append(a.items, item)
	}
	if len(anchors) == 0 {
		return nil, stats
	}

	// Lowest anchors first so the first hit is the nearest one above.
	sort.Slice(anchors, func(i, j int) bool {
		if anchors[i].page != anchors[j].page {
			return anchors[i].page < anchors[j].page
		}
		return anchors[i].y < anchors[j].y
	})

	bands := make(map[*dateAnchor][]Fragment, len(anchors))
	for _, item := range doc.Items {
		for _, a := range anchors {
			if a.page != item.Page || a.y+cfg.RowTolerance < item.Y {
				continue
			}
			if a.y-item.Y <= cfg.MaxAnchorSpread {
				bands[a] = append(bands[a], item)
			}
			break
		}
	}

	// Report in reading order: top to bottom per page.
	sort.SliceStable(anchors, func(i, j int) bool {
		if anchors[i].page != anchors[j].page {
			return anchors[i].page < anchors[j].page
		}
		return anchors[i].y > anchors[j].y
	})

	currency := pp.documentCurrency(doc)
	var txs []*models.ParsedTransaction
	for i, a := range anchors {
		var cells []string
		for _, row := range groupRows(bands[a], cfg.RowTolerance) {
			for _, item := range row.Items {
				cells = append(cells, item.Text)
			}
		}
		if tx := pp.resolveRow(tokenize(cells), currency, file, i+1, stats); tx != nil {
			txs = append(txs, tx)
		}
	}
	return txs, stats
}

var (
	sweepDate   = regexp.MustCompile(`\d{1,2}[/.]\d{1,2}[/.]\d{2,4}`)
	sweepAmount = regexp.MustCompile(`-?(\d{1,3}(,\d{3})+|\d+)\.\d{2}`)
	hebrewRun   = regexp.MustCompile(`\p{Hebrew}[\p{Hebrew} \t"'׳״-]*\p{Hebrew}|\p{Hebrew}`)
)

// dateGroup is a run of dates separated only by whitespace, e.g. a value
// date beside a transaction date.
type dateGroup struct {
	start, end int
	date       time.Time
	valid      bool
}

func findDateGroups(text string) []dateGroup {
	var groups []dateGroup
	for _, m := range sweepDate.FindAllStringIndex(text, -1) {
		date, ok := detect.ParseDate(text[m[0]:m[1]])
		n := len(groups)
		if n > 0 && strings.TrimSpace(text[groups[n-1].end:m[0]]) == "" {
			// The last date of a group is the transaction date.
			groups[n-1].end = m[1]
			groups[n-1].date, groups[n-1].valid = date, ok
			continue
		}
		groups = append(groups, dateGroup{start: m[0], end: m[1], date: date, valid: ok})
	}
	return groups
}

// sweepRow is the raw text that belongs to one date group
type sweepRow struct {
	date  time.Time
	valid bool
	span  string
}

// sweepRows splits the text into rows. A date group takes the rest of its
// own line, on either side, plus the following lines without a date, which
// hold wrapped descriptions. Lines before the first date are dropped. A line
// with several date groups is cut after each group.
func sweepRows(text string) []*sweepRow {
	var rows []*sweepRow
	for _, line := range strings.Split(text, "\n") {
		groups := findDateGroups(line)
		if len(groups) == 0 {
			if n := len(rows); n > 0 {
				rows[n-1].span += "\n" + line
			}
			continue
		}
		for i, g := range groups {
			end := len(line)
			if i+1 < len(groups) {
				end = groups[i+1].start
			}
			span := line[g.end:end]
			if i == 0 {
				span = line[:g.start] + " " + span
			}
			rows = append(rows, &sweepRow{date: g.date, valid: g.valid, span: span})
		}
	}
	return rows
}

// parseRegexSweep is the last resort over the raw text. In each row span the
// largest number is the balance and the largest number below half of it is
// the transaction amount.
func (pp *PDFParser) parseRegexSweep(doc *Document, file string) ([]*models.ParsedTransaction, *ParseStats) {
	stats := NewParseStats(pp.config.MaxRowErrors)
	currency := pp.documentCurrency(doc)

	var txs []*models.ParsedTransaction
	for i, row := range sweepRows(doc.Text) {
		if !row.valid {
			continue
		}
		stats.TotalRows++

		amount, ok := sweepAmountFromSpan(row.span)
		if !ok {
			stats.AddError(errors.InvalidAmountRowError(file, i+1, "amount", strings.TrimSpace(row.span)))
			continue
		}

		description := models.UnknownMerchant
		if run := hebrewRun.FindString(row.span); run != "" {
			description = repairHebrew(strings.TrimSpace(run))
		}

		tx := models.NewParsedTransaction(row.date, description, amount, models.TransactionTypeExpense, currency)
		tx.Row = i + 1
		txs = append(txs, tx)
	}
	return txs, stats
}

func sweepAmountFromSpan(span string) (decimal.Decimal, bool) {
	var numbers []decimal.Decimal
	for _, tok := range sweepAmount.FindAllString(span, -1) {
		if d, err := models.ParseDecimalFromString(tok); err == nil {
			numbers = append(numbers, d.Abs())
		}
	}
	if len(numbers) < 2 {
		return decimal.Zero, false
	}

	sort.Slice(numbers, func(i, j int) bool { return numbers[i].GreaterThan(numbers[j]) })
	half := numbers[0].Div(decimal.NewFromInt(2))
	for _, n := range numbers[1:] {
		if n.LessThan(half) && n.IsPositive() {
			return n, true
		}
	}
	return decimal.Zero, false
}
