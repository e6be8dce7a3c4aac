package parsers

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// layoutRow is a visual line: fragments sharing a baseline within tolerance
type layoutRow struct {
	Page  int
	Y     float64
	Items []Fragment
}

// groupRows clusters fragments by Y. The tolerance is kept tight so two
// adjacent transaction lines never merge.
func groupRows(items []Fragment, tolerance float64) []layoutRow {
	sorted := make([]Fragment, len(items))
	copy(sorted, items)
	sortFragments(sorted)

	var rows []layoutRow
	for _, item := range sorted {
		n := len(rows)
		if n > 0 && rows[n-1].Page == item.Page && math.Abs(rows[n-1].Y-item.Y) <= tolerance {
			rows[n-1].Items = append(rows[n-1].Items, item)
			continue
		}
		rows = append(rows, layoutRow{Page: item.Page, Y: item.Y, Items: []Fragment{item}})
	}

	for i := range rows {
		items := rows[i].Items
		sort.SliceStable(items, func(a, b int) bool { return items[a].X < items[b].X })
	}
	return rows
}

// column is a cluster of fragment X positions
type column struct {
	Min, Max float64
	sum      float64
	count    int
}

func (c column) center() float64 {
	return c.sum / float64(c.count)
}

func (c column) merge(o column) column {
	return column{
		Min:   math.Min(c.Min, o.Min),
		Max:   math.Max(c.Max, o.Max),
		sum:   c.sum + o.sum,
		count: c.count + o.count,
	}
}

// detectColumns clusters every observed X position. A gap wider than gap
// starts a new column; beyond maxColumns the two closest neighbours merge.
func detectColumns(rows []layoutRow, gap float64, maxColumns int) []column {
	var xs []float64
	for _, row := range rows {
		for _, item := range row.Items {
			xs = append(xs, item.X)
		}
	}
	if len(xs) == 0 {
		return nil
	}
	sort.Float64s(xs)

	columns := []column{{Min: xs[0], Max: xs[0], sum: xs[0], count: 1}}
	for _, x := range xs[1:] {
		last := &columns[len(columns)-1]
		if x-last.Max <= gap {
			last.Max = x
			last.sum += x
			last.count++
			continue
		}
		columns = append(columns, column{Min: x, Max: x, sum: x, count: 1})
	}

	for len(columns) > maxColumns {
		closest, best := 0, math.MaxFloat64
		for i := 0; i+1 < len(columns); i++ {
			if d := columns[i+1].center() - columns[i].center(); d < best {
				closest, best = i, d
			}
		}
		merged := columns[closest].merge(columns[closest+1])
		columns = append(columns[:closest], columns[closest+1:]...)
		columns[closest] = merged
	}
	return columns
}

// columnIndex returns the column whose span contains x, else the nearest center
func columnIndex(columns []column, x float64) int {
	best, bestDist := 0, math.MaxFloat64
	for i, c := range columns {
		if x >= c.Min && x <= c.Max {
			return i
		}
		if d := math.Abs(c.center() - x); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// rowCells joins the fragments of a row per column, left to right. The
// result has one cell per column; empty columns give empty cells.
func rowCells(row layoutRow, columns []column) []string {
	if len(columns) == 0 {
		cells := make([]string, 0, len(row.Items))
		for _, item := range row.Items {
			cells = append(cells, item.Text)
		}
		return cells
	}

	parts := make([][]string, len(columns))
	for _, item := range row.Items {
		idx := columnIndex(columns, item.X)
		parts[idx] = append(parts[idx], item.Text)
	}

	cells := make([]string, len(columns))
	for i, p := range parts {
		cells[i] = strings.Join(p, " ")
	}
	return cells
}

// amountColumns returns, left to right, the columns holding an amount in
// any dated row. It returns nil when a dated row has two amounts in one
// column or when there are more amount columns than maxColumns.
func amountColumns(cells [][]string, maxColumns int) []int {
	used := map[int]bool{}
	for _, row := range cells {
		if len(tokenize(row).dates) == 0 {
			continue
		}
		for i, cell := range row {
			switch n := len(tokenize([]string{cell}).amounts); {
			case n > 1:
				return nil
			case n == 1:
				used[i] = true
			}
		}
	}
	if len(used) > maxColumns {
		return nil
	}

	indexes := make([]int, 0, len(used))
	for i := range used {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	return indexes
}

// columnAmounts reads one amount per amount column; an empty cell is zero
func columnAmounts(cells []string, amountCols []int) []decimal.Decimal {
	amounts := make([]decimal.Decimal, len(amountCols))
	for i, col := range amountCols {
		if col >= len(cells) {
			continue
		}
		if found := tokenize([]string{cells[col]}).amounts; len(found) > 0 {
			amounts[i] = found[0]
		}
	}
	return amounts
}
