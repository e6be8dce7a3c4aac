package parsers

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"household-ledger/internal/models"
	"household-ledger/pkg/errors"
	"household-ledger/pkg/logger"
)

var mimeByExtension = map[string]string{
	".csv":  "text/csv",
	".tsv":  "text/tab-separated-values",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".heic": "image/heic",
}

var sourceByMIME = map[string]models.SourceType{
	"text/csv":                  models.SourceCSV,
	"application/csv":           models.SourceCSV,
	"text/tab-separated-values": models.SourceCSV,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": models.SourceExcel,
	"application/vnd.ms-excel": models.SourceExcel,
	"application/pdf":          models.SourcePDF,
}

// Engine routes a file to the parser for its type. It keeps no state
// between calls.
type Engine struct {
	parsers map[models.SourceType]Parser
	logger  logger.Logger
}

// NewEngine wires the four format parsers. A nil extractor uses
// DslipakExtractor; a nil classifier makes image uploads fail.
func NewEngine(config *Config, extractor Extractor, c Classifier) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	config = config.Clone()
	return &Engine{
		parsers: map[models.SourceType]Parser{
			models.SourceCSV:   NewCSVParser(config),
			models.SourceExcel: NewExcelParser(config),
			models.SourcePDF:   NewPDFParser(config, extractor),
			models.SourceImage: NewImageParser(config, c),
		},
		logger: logger.GetGlobalLogger().WithComponent("parsing_engine"),
	}
}

// DetectSourceType resolves the parser by MIME type, then by extension
func DetectSourceType(in Input) (models.SourceType, error) {
	mimeType := strings.ToLower(strings.TrimSpace(in.MIMEType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	if source, ok := sourceByMIME[mimeType]; ok {
		return source, nil
	}
	if strings.HasPrefix(mimeType, "image/") {
		return models.SourceImage, nil
	}

	if byExt, ok := mimeByExtension[in.Extension()]; ok {
		if source, ok := sourceByMIME[byExt]; ok {
			return source, nil
		}
		return models.SourceImage, nil
	}

	reported := mimeType
	if reported == "" {
		reported = in.Extension()
	}
	return "", errors.UnsupportedTypeError(in.Name, reported)
}

// Parse dispatches one file. Unsupported types are a hard error.
func (e *Engine) Parse(ctx context.Context, in Input) (*models.ParseResult, *ParseStats, error) {
	source, err := DetectSourceType(in)
	if err != nil {
		e.logger.WithFields(logger.Fields{
			"file":      in.Name,
			"mime_type": in.MIMEType,
		}).Warn("Unsupported file type")
		return nil, nil, err
	}

	e.logger.WithFields(logger.Fields{
		"file":   in.Name,
		"source": source,
	}).Debug("Dispatching file")

	return e.parsers[source].Parse(ctx, in)
}

// LoadInput reads a file from disk, deriving its MIME type from the extension
func LoadInput(path string) (Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Input{}, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return Input{}, errors.FileError(errors.CodeFileCorrupted, path, err)
	}

	name := filepath.Base(path)
	return Input{
		Name:     name,
		MIMEType: mimeByExtension[strings.ToLower(filepath.Ext(name))],
		Data:     data,
	}, nil
}
