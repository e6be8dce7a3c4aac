package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"household-ledger/internal/detect"
	"household-ledger/internal/models"
	"household-ledger/pkg/errors"
	"household-ledger/pkg/logger"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// delimiterCandidates are tried when sniffing a CSV dialect
var delimiterCandidates = []rune{',', ';', '\t'}

// sniffLines is how many leading lines decide the delimiter
const sniffLines = 10

// CSVParser parses delimited statement exports
type CSVParser struct {
	*gridParser
}

// NewCSVParser creates a new CSVParser with the given configuration
func NewCSVParser(config *Config) *CSVParser {
	return &CSVParser{gridParser: newGridParser(config, "csv_parser")}
}

// Parse implements Parser
func (cp *CSVParser) Parse(ctx context.Context, in Input) (*models.ParseResult, *ParseStats, error) {
	cp.logger.WithFields(logger.Fields{
		"file": in.Name,
		"size": len(in.Data),
	}).Debug("Starting CSV parsing")

	text, err := decodeText(in.Data)
	if err != nil {
		return nil, nil, errors.ParseError(errors.CodeEncodingError, in.Name, 0, "encoding", "", err)
	}

	stats := NewParseStats(cp.config.MaxRowErrors)
	delimiter := sniffDelimiter(text)
	rows := cp.readRecords(in.Name, text, delimiter, stats)

	transactions, err := cp.parseGrid(ctx, in.Name, rows, stats, detect.ParseDate)
	if err != nil {
		return nil, stats, err
	}

	cp.logger.WithFields(logger.Fields{
		"file":       in.Name,
		"delimiter":  string(delimiter),
		"total_rows": stats.TotalRows,
		"valid_rows": len(transactions),
		"error_rows": stats.ErrorRows(),
	}).Info("CSV parsing completed")

	if stats.HasErrors() {
		cp.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}

	return newResult(in.Name, models.SourceCSV, transactions, stats), stats, nil
}

// readRecords reads every record. Malformed or oversized records are counted
// as errors and kept as empty placeholders so row numbers stay aligned.
func (cp *CSVParser) readRecords(name, text string, delimiter rune, stats *ParseStats) [][]string {
	reader := newCSVReader(text, delimiter)

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var csvErr *csv.ParseError
			if !stderrors.As(err, &csvErr) {
				// Anything else means the reader cannot continue.
				cp.logger.WithError(err).WithField("file", name).Warn("Stopped reading CSV")
				break
			}
			stats.TotalRows++
			stats.AddError(errors.NewRowError(errors.CodeInvalidFormat, &errors.RowContext{
				File: name,
				Row:  csvErr.Line,
			}, fmt.Sprintf("malformed CSV record: %v", csvErr.Err)))
			rows = append(rows, nil)
			continue
		}

		if cp.config.MaxFieldSize > 0 && oversized(record, cp.config.MaxFieldSize) {
			stats.TotalRows++
			line, _ := reader.FieldPos(0)
			stats.AddError(errors.NewRowError(errors.CodeOutOfRange, &errors.RowContext{
				File:     name,
				Row:      line,
				Expected: fmt.Sprintf("fields under %d bytes", cp.config.MaxFieldSize),
			}, "field exceeds maximum size, row skipped"))
			rows = append(rows, nil)
			continue
		}

		rows = append(rows, record)
	}
	return rows
}

func oversized(record []string, limit int) bool {
	for _, field := range record {
		if len(field) > limit {
			return true
		}
	}
	return false
}

func newCSVReader(text string, delimiter rune) *csv.Reader {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1 // Variable number of fields
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	return reader
}

// decodeText strips a UTF-8 BOM and decodes non-UTF-8 input as windows-1255,
// the default export charset of Israeli banks.
func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), charmap.Windows1255.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("decode windows-1255: %w", err)
	}
	return string(decoded), nil
}

// sniffDelimiter picks the candidate that splits the leading lines into the
// most multi-field records, preferring comma on ties.
func sniffDelimiter(text string) rune {
	var sample []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		sample = append(sample, line)
		if len(sample) == sniffLines {
			break
		}
	}
	joined := strings.Join(sample, "\n")

	best, bestScore := delimiterCandidates[0], -1
	for _, candidate := range delimiterCandidates {
		reader := newCSVReader(joined, candidate)
		score := 0
		for {
			record, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				continue
			}
			if len(record) > 1 {
				score += len(record)
			}
		}
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	return best
}
