package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"household-ledger/internal/parsers"
	"household-ledger/internal/reconciler"
	"household-ledger/pkg/logger"
)

var (
	ingestDryRun         bool
	ingestKeepDuplicates bool
	ingestFormat         string
	ingestOutput         string
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Import statements and screenshots into the household ledger",
	Long: `Ingest parses each file, flags rows that duplicate transactions already in
the ledger and stores the rest. Known merchants get their category from the
household's merchant memory.

A file that cannot be parsed is reported and does not stop the others.
Without --database-url, --dry-run parses into a throwaway in-memory ledger.

Examples:
  ledger ingest --household family max-2026-03.xlsx leumi-2026-03.csv
  ledger ingest --household family --keep-duplicates bit-payment.png
  ledger ingest --household family --dry-run --format json statement.pdf`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: validateIngestFlags,
	RunE:    runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "parse and check duplicates without writing")
	ingestCmd.Flags().BoolVar(&ingestKeepDuplicates, "keep-duplicates", false, "store flagged duplicates instead of skipping them")
	ingestCmd.Flags().StringVarP(&ingestFormat, "format", "f", "", "output format: console, json, csv (default from config)")
	ingestCmd.Flags().StringVarP(&ingestOutput, "output", "o", "", "output file path (default: stdout)")
}

func validateIngestFlags(cmd *cobra.Command, args []string) error {
	for i, path := range args {
		if err := validateFileExists(path, fmt.Sprintf("input file %d", i+1)); err != nil {
			return err
		}
	}
	if err := validateFormat(ingestFormat); err != nil {
		return err
	}
	return validateOutputPath(ingestOutput)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession(ctx, "ingest", sessionOptions{memoryFallback: ingestDryRun, parsing: true})
	if err != nil {
		return err
	}
	defer s.Close()

	inputs := make([]parsers.Input, 0, len(args))
	for _, path := range args {
		in, err := parsers.LoadInput(path)
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
	}

	s.logger.WithFields(logger.Fields{
		"files":           len(inputs),
		"dry_run":         ingestDryRun,
		"keep_duplicates": ingestKeepDuplicates,
	}).Info("Starting ingest")

	result, err := s.service.Ingest(ctx, &reconciler.IngestRequest{
		HouseholdID:    s.settings.Household,
		Inputs:         inputs,
		KeepDuplicates: ingestKeepDuplicates,
		DryRun:         ingestDryRun,
	})
	if err != nil {
		return err
	}

	if err := writeReport(s.settings, ingestFormat, ingestOutput, result); err != nil {
		return err
	}

	if result.FailedFiles == len(inputs) {
		return fmt.Errorf("none of the %d file(s) could be ingested: %w", len(inputs), result.Err())
	}
	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%s is not readable: %w", description, err)
	}
	file.Close()

	return nil
}

func validateOutputPath(outputFile string) error {
	if outputFile == "" {
		return nil
	}
	dir := filepath.Dir(outputFile)
	if dir != "." {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return fmt.Errorf("output directory does not exist: %s", dir)
		}
	}
	return nil
}
