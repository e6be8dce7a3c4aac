package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"

	"household-ledger/cmd/ledger/config"
	"household-ledger/internal/classifier"
	"household-ledger/internal/parsers"
	"household-ledger/internal/reconciler"
	"household-ledger/internal/reporter"
	"household-ledger/internal/store"
	"household-ledger/pkg/errors"
	"household-ledger/pkg/logger"
)

// session holds what one command needs: settings, an open store and the
// ledger service on top of it.
type session struct {
	settings *config.Settings
	store    store.Store
	service  *reconciler.Service
	logger   logger.Logger
}

type sessionOptions struct {
	// memoryFallback uses an in-memory store when no database is configured
	memoryFallback bool
	// parsing wires the PDF extractor and, with an API key, the classifier
	parsing bool
}

func loadSettings() (*config.Settings, error) {
	settings, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err).
			WithSuggestion("Check the config file and LEDGER_* environment variables")
	}

	if viper.GetBool("verbose") {
		settings.Log.Level = logger.DebugLevel
	}
	log, err := logger.NewLogger(settings.Log)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", settings.Log.Output, err)
	}
	logger.SetGlobalLogger(log)

	return settings, nil
}

func openSession(ctx context.Context, operation string, opts sessionOptions) (*session, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if settings.Household == "" {
		return nil, errors.TenantError(errors.CodeMissingHousehold, operation)
	}

	st, err := openStore(ctx, settings, opts.memoryFallback)
	if err != nil {
		return nil, err
	}

	var engine *parsers.Engine
	if opts.parsing {
		engine, err = newParsingEngine(ctx, settings)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	service, err := reconciler.NewService(st, engine, settings.Reconciler)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &session{
		settings: settings,
		store:    st,
		service:  service,
		logger:   logger.GetGlobalLogger().WithComponent("cli").WithHousehold(settings.Household),
	}, nil
}

func (s *session) Close() {
	s.store.Close()
}

func openStore(ctx context.Context, settings *config.Settings, memoryFallback bool) (store.Store, error) {
	if settings.DatabaseURL == "" {
		if memoryFallback {
			return store.NewMemoryStore(), nil
		}
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "database.url", "", nil).
			WithSuggestion("Pass --database-url or set LEDGER_DATABASE_URL")
	}

	pg, err := store.Connect(ctx, settings.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

func newParsingEngine(ctx context.Context, settings *config.Settings) (*parsers.Engine, error) {
	var vision parsers.Classifier
	if settings.Classifier.APIKey != "" {
		gemini, err := classifier.NewGeminiClassifier(ctx, settings.Classifier)
		if err != nil {
			return nil, err
		}
		vision = gemini
	}
	return parsers.NewEngine(settings.Parsing, parsers.NewDslipakExtractor(), vision), nil
}

// writeReport renders result in the configured format, or in format when
// the flag was given, to path or stdout.
func writeReport(settings *config.Settings, format, path string, result interface{}) error {
	reportConfig := *settings.Report
	if format != "" {
		reportConfig.Format = reporter.OutputFormat(strings.ToLower(format))
	}
	if path != "" {
		reportConfig.UseColors = false
	}

	generator, err := reporter.NewSafeReportGenerator(&reportConfig, logger.GetGlobalLogger())
	if err != nil {
		return err
	}

	var output io.Writer = os.Stdout
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		output = file
	}

	if err := generator.GenerateReportSafely(result, output); err != nil {
		return err
	}

	if path != "" && viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Report written to: %s\n", path)
	}
	return nil
}

func validateFormat(format string) error {
	if format == "" {
		return nil
	}
	if !reporter.OutputFormat(strings.ToLower(format)).IsValid() {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", format)
	}
	return nil
}
