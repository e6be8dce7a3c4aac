package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"household-ledger/internal/matcher"
	"household-ledger/internal/reconciler"
	"household-ledger/pkg/errors"
	"household-ledger/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with input checks, logging and
// fallbacks to the console format or a backup file.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Use one of the formats console, json or csv")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely renders a review queue, an ingest result or a merge
// result.
func (srg *SafeReportGenerator) GenerateReportSafely(result interface{}, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
		"result": fmt.Sprintf("%T", result),
	}).Debug("Starting report generation")

	if err := srg.validateInputs(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	render, err := srg.renderer(result)
	if err != nil {
		srg.logger.WithError(err).Error("Invalid result type for report generation")
		return err
	}

	if err := srg.generateWithFallback(render, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed")
		return err
	}
	return nil
}

type renderFunc func(rg *ReportGenerator, writer io.Writer) error

func (srg *SafeReportGenerator) renderer(result interface{}) (renderFunc, error) {
	switch r := result.(type) {
	case *matcher.Result:
		return func(rg *ReportGenerator, w io.Writer) error { return rg.GenerateReport(r, w) }, nil
	case *reconciler.IngestResult:
		return func(rg *ReportGenerator, w io.Writer) error { return rg.GenerateIngestReport(r, w) }, nil
	case *reconciler.MergeResult:
		return func(rg *ReportGenerator, w io.Writer) error { return rg.GenerateMergeReport(r, w) }, nil
	default:
		return nil, errors.ValidationError(
			errors.CodeInvalidFormat,
			"result_type",
			fmt.Sprintf("%T", result),
			nil,
		).WithSuggestion("Provide a review queue, an ingest result or a merge result")
	}
}

func (srg *SafeReportGenerator) validateInputs(result interface{}, writer io.Writer) error {
	if result == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil).
			WithSuggestion("Provide a result to report")
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
	}
	return nil
}

func (srg *SafeReportGenerator) generateWithFallback(render renderFunc, writer io.Writer) error {
	err := render(srg.ReportGenerator, writer)
	if err == nil {
		return nil
	}

	srg.logger.WithError(err).Warn("Primary report generation failed, attempting fallback")

	if srg.shouldAttemptOutputFallback(err, writer) {
		return srg.generateWithOutputFallback(render, writer, err)
	}
	if srg.config.Format != FormatConsole {
		return srg.generateWithFormatFallback(render, writer, err)
	}
	return srg.wrapGenerationError(err)
}

func (srg *SafeReportGenerator) generateWithFormatFallback(render renderFunc, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole
	fallbackConfig.UseColors = false

	srg.logger.WithField("fallback_format", FormatConsole).Info("Attempting format fallback")

	fallback, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}

	fmt.Fprintf(writer, "NOTE: %s output failed (%v); showing the console report\n\n", srg.config.Format, originalErr)
	if err := render(fallback, writer); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err),
		)
	}
	return nil
}

func (srg *SafeReportGenerator) shouldAttemptOutputFallback(err error, writer io.Writer) bool {
	if file, ok := writer.(*os.File); ok && file != os.Stdout && file != os.Stderr && file.Name() != "" {
		return isFileError(err)
	}
	return false
}

func (srg *SafeReportGenerator) generateWithOutputFallback(render renderFunc, writer io.Writer, originalErr error) error {
	originalPath := writer.(*os.File).Name()
	backupPath := backupPath(originalPath)

	srg.logger.WithFields(logger.Fields{
		"original_file": originalPath,
		"backup_file":   backupPath,
	}).Info("Attempting output fallback")

	backup, err := os.Create(backupPath)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}
	defer backup.Close()

	if err := render(srg.ReportGenerator, backup); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_output_fallback",
			fmt.Errorf("both primary and backup output failed: primary=%v, backup=%v", originalErr, err),
		)
	}

	fmt.Fprintf(os.Stderr, "Warning: could not write to %s, report saved to %s\n", originalPath, backupPath)
	return nil
}

func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return errors.InternalError(errors.CodeUnexpectedError, "report_generation", err).
		WithSuggestion("Check the output destination and report format settings")
}

func isFileError(err error) bool {
	if os.IsPermission(err) || os.IsNotExist(err) || os.IsExist(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "no space left") || strings.Contains(msg, "disk full")
}

func backupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", strings.TrimSuffix(base, ext), ext))
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}
