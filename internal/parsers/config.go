package parsers

import (
	"fmt"
	"strings"

	"household-ledger/internal/detect"
)

// Config holds options shared by every format parser
type Config struct {
	// DefaultCurrency is used when neither headers nor data mention one
	DefaultCurrency string `json:"default_currency"`

	// HeaderScanRows is how many leading grid rows are scored as header candidates
	HeaderScanRows int `json:"header_scan_rows"`

	// Installment decides how card rows with billing and transaction amounts are recorded
	Installment detect.InstallmentPolicy `json:"-"`

	// MaxRowErrors caps how many row errors are retained per file (0 = all)
	MaxRowErrors int `json:"max_row_errors"`

	// MaxFieldSize drops CSV records holding a larger field
	MaxFieldSize int `json:"max_field_size"`

	// PDF layout reconstruction
	PDF PDFConfig `json:"pdf"`
}

// PDFConfig tunes geometric table reconstruction
type PDFConfig struct {
	RowTolerance    float64 `json:"row_tolerance"`
	ColumnGap       float64 `json:"column_gap"`
	MaxColumns      int     `json:"max_columns"`
	AnchorRounding  float64 `json:"anchor_rounding"`
	BalanceRatio    float64 `json:"balance_ratio"`
	MaxAnchorSpread float64 `json:"max_anchor_spread"`
}

// DefaultConfig returns a configuration tuned for Israeli bank and card statements
func DefaultConfig() *Config {
	return &Config{
		DefaultCurrency: "ILS",
		HeaderScanRows:  detect.DefaultHeaderScanRows,
		Installment:     detect.BillingAmountWins,
		MaxRowErrors:    100,
		MaxFieldSize:    64 * 1024,
		PDF: PDFConfig{
			RowTolerance:    0.8,
			ColumnGap:       2,
			MaxColumns:      10,
			AnchorRounding:  0.5,
			BalanceRatio:    5,
			MaxAnchorSpread: 40,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(strings.TrimSpace(c.DefaultCurrency)) != 3 {
		return fmt.Errorf("default currency must be a 3-letter code, got '%s'", c.DefaultCurrency)
	}

	if c.HeaderScanRows <= 0 {
		return fmt.Errorf("header scan rows must be positive, got %d", c.HeaderScanRows)
	}

	if c.Installment.Tolerance.IsNegative() {
		return fmt.Errorf("installment tolerance cannot be negative, got %s", c.Installment.Tolerance)
	}

	if c.MaxRowErrors < 0 {
		return fmt.Errorf("max row errors cannot be negative, got %d", c.MaxRowErrors)
	}

	if c.MaxFieldSize < 0 {
		return fmt.Errorf("max field size cannot be negative, got %d", c.MaxFieldSize)
	}

	return c.PDF.Validate()
}

// Validate checks the PDF layout settings
func (p *PDFConfig) Validate() error {
	if p.RowTolerance <= 0 {
		return fmt.Errorf("pdf row tolerance must be positive, got %f", p.RowTolerance)
	}
	if p.ColumnGap <= 0 {
		return fmt.Errorf("pdf column gap must be positive, got %f", p.ColumnGap)
	}
	if p.MaxColumns < 1 {
		return fmt.Errorf("pdf max columns must be at least 1, got %d", p.MaxColumns)
	}
	if p.AnchorRounding <= 0 {
		return fmt.Errorf("pdf anchor rounding must be positive, got %f", p.AnchorRounding)
	}
	if p.BalanceRatio <= 1 {
		return fmt.Errorf("pdf balance ratio must be greater than 1, got %f", p.BalanceRatio)
	}
	if p.MaxAnchorSpread <= 0 {
		return fmt.Errorf("pdf max anchor spread must be positive, got %f", p.MaxAnchorSpread)
	}
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
