package parsers

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dslipak/pdf"
)

// Fragment is a run of text positioned on a page. Y grows upwards, as in
// PDF user space.
type Fragment struct {
	Page int     `json:"page"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Text string  `json:"text"`
}

// Document is the output of a PDF text extractor
type Document struct {
	Text  string     `json:"text"`
	Items []Fragment `json:"items"`
}

// Extractor returns positioned text fragments for a PDF
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*Document, error)
}

// DslipakExtractor extracts glyphs with github.com/dslipak/pdf and joins
// neighbouring glyphs on a baseline into fragments.
type DslipakExtractor struct {
	// WordGap is the horizontal gap, in font-size units, that ends a fragment
	WordGap float64
}

// NewDslipakExtractor creates an extractor with default glyph joining
func NewDslipakExtractor() *DslipakExtractor {
	return &DslipakExtractor{WordGap: 1.5}
}

// Extract implements Extractor
func (e *DslipakExtractor) Extract(ctx context.Context, data []byte) (doc *Document, err error) {
	// The reader panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("pdf content stream: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var items []Fragment
	for no := 1; no <= reader.NumPage(); no++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(no)
		if page.V.IsNull() {
			continue
		}
		items = append(items, e.joinGlyphs(no, page.Content().Text)...)
	}

	return &Document{Text: documentText(items), Items: items}, nil
}

// joinGlyphs merges glyphs drawn left to right on the same baseline
func (e *DslipakExtractor) joinGlyphs(page int, glyphs []pdf.Text) []Fragment {
	var (
		out     []Fragment
		current *Fragment
		lastEnd float64
	)
	flush := func() {
		if current != nil && strings.TrimSpace(current.Text) != "" {
			current.Text = strings.TrimSpace(current.Text)
			out = append(out, *current)
		}
		current = nil
	}

	for _, g := range glyphs {
		size := g.FontSize
		if size <= 0 {
			size = 1
		}
		if current != nil {
			gap := g.X - lastEnd
			sameLine := math.Abs(g.Y-current.Y) < size*0.3
			switch {
			case !sameLine || gap > size*e.WordGap || gap < -size:
				flush()
			case gap > size*0.15 && !strings.HasSuffix(current.Text, " "):
				current.Text += " "
			}
		}
		if current == nil {
			current = &Fragment{Page: page, X: g.X, Y: g.Y}
		}
		current.Text += g.S
		lastEnd = g.X + g.W
	}
	flush()
	return out
}

// documentText lays fragments out in reading lines: top to bottom per page,
// left to right within a line.
func documentText(items []Fragment) string {
	rows := groupRows(items, DefaultConfig().PDF.RowTolerance)
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		texts := make([]string, 0, len(row.Items))
		for _, item := range row.Items {
			texts = append(texts, item.Text)
		}
		lines = append(lines, strings.Join(texts, " "))
	}
	return strings.Join(lines, "\n")
}

// sortFragments orders by page, then top to bottom, then left to right
func sortFragments(items []Fragment) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Page != items[j].Page {
			return items[i].Page < items[j].Page
		}
		if items[i].Y != items[j].Y {
			return items[i].Y > items[j].Y
		}
		return items[i].X < items[j].X
	})
}
