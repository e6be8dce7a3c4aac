package parsers

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"household-ledger/internal/detect"
	"household-ledger/internal/models"
	"household-ledger/pkg/errors"
	"household-ledger/pkg/logger"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

// ExcelParser parses .xlsx workbooks and legacy .xls sheets
type ExcelParser struct {
	*gridParser
}

// NewExcelParser creates a new ExcelParser with the given configuration
func NewExcelParser(config *Config) *ExcelParser {
	return &ExcelParser{gridParser: newGridParser(config, "excel_parser")}
}

// Parse implements Parser. The first sheet with a usable header wins; when
// none has one the first sheet is parsed so its rows are counted.
func (ep *ExcelParser) Parse(ctx context.Context, in Input) (*models.ParseResult, *ParseStats, error) {
	sheets, err := ep.readSheets(in)
	if err != nil {
		ep.logger.WithError(err).WithField("file", in.Name).Error("Failed to open workbook")
		return nil, nil, errors.FileError(errors.CodeFileCorrupted, in.Name, err)
	}

	stats := NewParseStats(ep.config.MaxRowErrors)
	if len(sheets) == 0 {
		return newResult(in.Name, models.SourceExcel, nil, stats), stats, nil
	}

	chosen := sheets[0]
	for _, sheet := range sheets {
		header := detect.FindHeaderRow(sheet.rows, ep.config.HeaderScanRows)
		if len(sheet.rows) > 0 && detect.DetectColumnMapping(sheet.rows[header]).IsUsable() {
			chosen = sheet
			break
		}
	}

	ep.logger.WithFields(logger.Fields{
		"file":   in.Name,
		"sheet":  chosen.name,
		"rows":   len(chosen.rows),
		"sheets": len(sheets),
	}).Debug("Selected worksheet")

	transactions, err := ep.parseGrid(ctx, in.Name, chosen.rows, stats, excelDate)
	if err != nil {
		return nil, stats, err
	}

	ep.logger.WithFields(logger.Fields{
		"file":       in.Name,
		"total_rows": stats.TotalRows,
		"valid_rows": len(transactions),
		"error_rows": stats.ErrorRows(),
	}).Info("Excel parsing completed")

	return newResult(in.Name, models.SourceExcel, transactions, stats), stats, nil
}

type sheetRows struct {
	name string
	rows [][]string
}

func (ep *ExcelParser) readSheets(in Input) ([]sheetRows, error) {
	switch {
	case bytes.HasPrefix(in.Data, oleMagic):
		return readXLS(in.Data)
	case bytes.HasPrefix(in.Data, zipMagic):
		return readXLSX(in.Data)
	case in.Extension() == ".xls":
		return readXLS(in.Data)
	default:
		return readXLSX(in.Data)
	}
}

// readXLSX reads raw cell values so date cells arrive as serial numbers
// rather than locale-formatted strings.
func readXLSX(data []byte) ([]sheetRows, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	var sheets []sheetRows
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		sheets = append(sheets, sheetRows{name: name, rows: rows})
	}
	return sheets, nil
}

func readXLS(data []byte) ([]sheetRows, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}

	var sheets []sheetRows
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}

		var rows [][]string
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				cells[c] = row.Col(c)
			}
			rows = append(rows, cells)
		}
		sheets = append(sheets, sheetRows{name: sheet.Name, rows: rows})
	}
	return sheets, nil
}

// excelDate accepts text dates and Excel serial day numbers
func excelDate(raw string) (time.Time, bool) {
	if t, ok := detect.ParseDate(raw); ok {
		return t, true
	}

	serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	// Plausible statement range: 1954 to 2119
	if err != nil || serial < 20000 || serial > 80000 {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, false
	}
	return models.DateOnly(t), true
}
