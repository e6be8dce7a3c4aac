package parsers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"household-ledger/internal/classifier"
	"household-ledger/internal/detect"
	"household-ledger/internal/models"
	"household-ledger/pkg/errors"
	"household-ledger/pkg/logger"
)

// Classifier extracts loosely typed transaction records from an image
type Classifier interface {
	Classify(ctx context.Context, mimeType string, data []byte) ([]classifier.Record, error)
}

// ImageParser turns wallet-app screenshots into candidates via a classifier
type ImageParser struct {
	config     *Config
	classifier Classifier
	logger     logger.Logger
}

// NewImageParser creates a new ImageParser
func NewImageParser(config *Config, c Classifier) *ImageParser {
	if config == nil {
		config = DefaultConfig()
	}
	return &ImageParser{
		config:     config,
		classifier: c,
		logger:     logger.GetGlobalLogger().WithComponent("image_parser"),
	}
}

// Parse implements Parser. A classifier failure fails the whole file.
func (ip *ImageParser) Parse(ctx context.Context, in Input) (*models.ParseResult, *ParseStats, error) {
	if ip.classifier == nil {
		return nil, nil, errors.CollaboratorError(errors.CodeClassifierFailed, "vision",
			fmt.Errorf("no classifier configured")).WithContext("file", in.Name)
	}

	mimeType := in.MIMEType
	if mimeType == "" {
		mimeType = mimeByExtension[in.Extension()]
	}

	records, err := ip.classifier.Classify(ctx, mimeType, in.Data)
	if err != nil {
		ip.logger.WithError(err).WithField("file", in.Name).Error("Classifier failed")
		return nil, nil, errors.CollaboratorError(errors.CodeClassifierFailed, "vision", err).
			WithContext("file", in.Name)
	}

	stats := NewParseStats(ip.config.MaxRowErrors)
	var txs []*models.ParsedTransaction
	for i, rec := range records {
		stats.TotalRows++
		tx, rowErr := ip.decodeRecord(in.Name, i+1, rec)
		if rowErr != nil {
			stats.AddError(rowErr)
			continue
		}
		txs = append(txs, tx)
	}

	ip.logger.WithFields(logger.Fields{
		"file":       in.Name,
		"records":    len(records),
		"valid_rows": len(txs),
	}).Info("Image parsing completed")

	return newResult(in.Name, models.SourceImage, txs, stats), stats, nil
}

// decodeRecord validates one untrusted record. Required: a date and a
// non-zero amount. Everything else falls back to a default.
func (ip *ImageParser) decodeRecord(file string, index int, rec classifier.Record) (*models.ParsedTransaction, *errors.RowError) {
	rawDate, _ := stringField(rec, "date")
	date, ok := detect.ParseDate(rawDate)
	if !ok {
		return nil, errors.InvalidDateRowError(file, index, "date", rawDate)
	}

	amount, ok := decimalField(rec, "amount")
	if !ok || amount.IsZero() {
		return nil, errors.InvalidRecordError(file, index, "amount", rec["amount"])
	}

	direction, hasDirection := models.P2PDirection(""), false
	if raw, ok := stringField(rec, "p2p_direction"); ok {
		direction, hasDirection = models.ParseP2PDirection(raw)
	}

	txType := recordType(rec, amount, direction)
	if !hasDirection {
		direction = models.P2PSent
		if txType == models.TransactionTypeIncome {
			direction = models.P2PReceived
		}
	}

	counterparty, _ := stringField(rec, "p2p_counterparty")
	merchant, ok := stringField(rec, "merchant")
	if !ok {
		merchant = counterparty
	}

	currency := ip.config.DefaultCurrency
	if raw, ok := stringField(rec, "currency"); ok {
		if code, found := detect.LookupCurrency(raw); found {
			currency = code
		} else if len(raw) == 3 {
			currency = strings.ToUpper(raw)
		}
	}

	tx := models.NewParsedTransaction(date, merchant, amount, txType, currency)
	tx.Row = index
	tx.P2PDirection = direction
	tx.P2PCounterparty = counterparty
	tx.P2PMemo, _ = stringField(rec, "p2p_memo")
	if c, ok := floatField(rec, "confidence"); ok && c >= 0 && c <= 1 {
		tx.Confidence = c
	}
	return tx, nil
}

// recordType prefers an explicit type, then the direction, then the sign
func recordType(rec classifier.Record, amount decimal.Decimal, direction models.P2PDirection) models.TransactionType {
	if raw, ok := stringField(rec, "type"); ok {
		if t, err := models.ParseTransactionType(raw); err == nil {
			return t
		}
	}
	if direction == models.P2PReceived && !amount.IsNegative() {
		return models.TransactionTypeIncome
	}
	return models.TransactionTypeExpense
}

// stringField returns a non-empty trimmed string field
func stringField(rec classifier.Record, key string) (string, bool) {
	switch v := rec[key].(type) {
	case string:
		s := strings.TrimSpace(v)
		return s, s != "" && !strings.EqualFold(s, "null")
	case json.Number:
		return v.String(), true
	case float64:
		return decimal.NewFromFloat(v).String(), true
	}
	return "", false
}

// decimalField accepts JSON numbers and numeric strings
func decimalField(rec classifier.Record, key string) (decimal.Decimal, bool) {
	switch v := rec[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		d, err := models.ParseDecimalFromString(v)
		return d, err == nil
	}
	return decimal.Zero, false
}

func floatField(rec classifier.Record, key string) (float64, bool) {
	d, ok := decimalField(rec, key)
	if !ok {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}
