package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"household-ledger/internal/classifier"
	"household-ledger/internal/detect"
	"household-ledger/internal/matcher"
	"household-ledger/internal/parsers"
	"household-ledger/internal/reconciler"
	"household-ledger/internal/reporter"
	"household-ledger/pkg/logger"
)

//go:embed default.yaml
var defaultYAML []byte

// EnvPrefix is prepended to every environment override, e.g.
// LEDGER_DATABASE_URL for database.url
const EnvPrefix = "LEDGER"

// Settings is the typed configuration of one CLI run
type Settings struct {
	Household   string
	DatabaseURL string

	Log        *logger.Config
	Classifier classifier.Config
	Parsing    *parsers.Config
	Reconciler *reconciler.Config
	Report     *reporter.ReportConfig
}

// Load reads the embedded defaults, merges the optional config file on top
// and enables LEDGER_* environment overrides.
func Load(v *viper.Viper, path string) error {
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return fmt.Errorf("failed to read default configuration: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return nil
}

// FromViper converts loaded values into the typed configurations and
// validates each of them.
func FromViper(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		Household:   strings.TrimSpace(v.GetString("household")),
		DatabaseURL: v.GetString("database.url"),
	}

	s.Log = logger.DefaultConfig()
	if err := v.UnmarshalKey("log", s.Log); err != nil {
		return nil, fmt.Errorf("invalid log configuration: %w", err)
	}
	if err := v.UnmarshalKey("classifier", &s.Classifier); err != nil {
		return nil, fmt.Errorf("invalid classifier configuration: %w", err)
	}
	// UnmarshalKey does not see env overrides of nested keys
	s.Classifier.APIKey = v.GetString("classifier.api_key")
	s.Log.Level = logger.Level(strings.ToLower(v.GetString("log.level")))
	if err := s.Log.Validate(); err != nil {
		return nil, err
	}
	if err := s.Classifier.Validate(); err != nil {
		return nil, err
	}

	var err error
	if s.Parsing, err = parsingConfig(v); err != nil {
		return nil, err
	}
	if s.Reconciler, err = reconcilerConfig(v); err != nil {
		return nil, err
	}
	if s.Report, err = reportConfig(v); err != nil {
		return nil, err
	}
	return s, nil
}

func parsingConfig(v *viper.Viper) (*parsers.Config, error) {
	c := parsers.DefaultConfig()
	c.DefaultCurrency = strings.ToUpper(v.GetString("parsing.default_currency"))
	c.HeaderScanRows = v.GetInt("parsing.header_scan_rows")
	c.MaxRowErrors = v.GetInt("parsing.max_row_errors")
	c.MaxFieldSize = v.GetInt("parsing.max_field_size")

	source, err := detect.ParseAmountSource(v.GetString("parsing.installment.source"))
	if err != nil {
		return nil, err
	}
	tolerance, err := decimalSetting(v, "parsing.installment.tolerance")
	if err != nil {
		return nil, err
	}
	c.Installment = detect.InstallmentPolicy{Tolerance: tolerance, Source: source}

	c.PDF = parsers.PDFConfig{
		RowTolerance:    v.GetFloat64("parsing.pdf.row_tolerance"),
		ColumnGap:       v.GetFloat64("parsing.pdf.column_gap"),
		MaxColumns:      v.GetInt("parsing.pdf.max_columns"),
		AnchorRounding:  v.GetFloat64("parsing.pdf.anchor_rounding"),
		BalanceRatio:    v.GetFloat64("parsing.pdf.balance_ratio"),
		MaxAnchorSpread: v.GetFloat64("parsing.pdf.max_anchor_spread"),
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parsing configuration: %w", err)
	}
	return c, nil
}

func reconcilerConfig(v *viper.Viper) (*reconciler.Config, error) {
	dup := matcher.DefaultDuplicateConfig()
	dup.WindowDays = v.GetInt("duplicates.window_days")
	dup.MaxDateDiffDays = v.GetInt("duplicates.max_date_diff_days")
	dup.BaseConfidence = v.GetInt("duplicates.base_confidence")
	dup.SameDayBonus = v.GetInt("duplicates.same_day_bonus")
	dup.ExactAmountBonus = v.GetInt("duplicates.exact_amount_bonus")
	dup.P2PBonus = v.GetInt("duplicates.p2p_bonus")
	dup.MaxConfidence = v.GetInt("duplicates.max_confidence")
	dup.P2PKeywords = v.GetStringSlice("duplicates.p2p_keywords")

	p2p := matcher.DefaultP2PConfig()
	p2p.OutgoingDays = matcher.DayWindow{Min: v.GetInt("p2p.outgoing_days.min"), Max: v.GetInt("p2p.outgoing_days.max")}
	p2p.WithdrawalDays = matcher.DayWindow{Min: v.GetInt("p2p.withdrawal_days.min"), Max: v.GetInt("p2p.withdrawal_days.max")}
	p2p.Weights = matcher.ScoreWeights{
		Base:                  v.GetInt("p2p.weights.base"),
		ExactAmount:           v.GetInt("p2p.weights.exact_amount"),
		AmountWithinTolerance: v.GetInt("p2p.weights.amount_within_tolerance"),
		SameDay:               v.GetInt("p2p.weights.same_day"),
		NearDays:              v.GetInt("p2p.weights.near_days"),
		FarDays:               v.GetInt("p2p.weights.far_days"),
		NearDaysMax:           v.GetInt("p2p.weights.near_days_max"),
	}
	p2p.ExactThreshold = v.GetInt("p2p.exact_threshold")
	p2p.AmbiguousConfidence = v.GetInt("p2p.ambiguous_confidence")
	p2p.OutgoingKeywords = v.GetStringSlice("p2p.outgoing_keywords")
	p2p.DepositKeywords = v.GetStringSlice("p2p.deposit_keywords")

	decimals := []struct {
		key    string
		target *decimal.Decimal
	}{
		{"duplicates.amount_tolerance", &dup.AmountTolerance},
		{"duplicates.exact_amount_epsilon", &dup.ExactAmountEpsilon},
		{"p2p.amount_tolerance", &p2p.AmountTolerance},
		{"p2p.exact_amount_epsilon", &p2p.ExactAmountEpsilon},
	}
	for _, d := range decimals {
		value, err := decimalSetting(v, d.key)
		if err != nil {
			return nil, err
		}
		*d.target = value
	}

	c := reconciler.DefaultConfig()
	c.MaxConcurrentFiles = v.GetInt("parsing.max_concurrency")
	c.Duplicates = dup
	c.P2P = p2p
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reconciliation configuration: %w", err)
	}
	return c, nil
}

func reportConfig(v *viper.Viper) (*reporter.ReportConfig, error) {
	c := reporter.DefaultReportConfig()
	c.Format = reporter.OutputFormat(strings.ToLower(v.GetString("report.format")))
	c.UseColors = v.GetBool("report.colors")
	c.MaxItems = v.GetInt("report.max_items")
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// decimalSetting reads amounts as strings so YAML floats never round them
func decimalSetting(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q", key, raw)
	}
	return d, nil
}
