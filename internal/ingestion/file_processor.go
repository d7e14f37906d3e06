package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ThiagoRGoveia/stocks-dossier/internal/database"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/models"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/parser"
)

// errNoIdentifier marks an insert the store acknowledged without returning an id for the record.
var errNoIdentifier = errors.New("store returned no identifier for the record")

// Processor loads a single feed file into its collection.
type Processor interface {
	ProcessFile(ctx context.Context, path string, rowParser parser.RowParser, collection database.Collection) models.FileResult
}

// FileProcessor streams a CSV file row by row: the header is checked first, eligible rows are
// parsed and written one at a time. A parse fault stops the file; an insert fault only loses
// the row.
type FileProcessor struct {
	logger       *slog.Logger
	writeTimeout time.Duration
}

func NewFileProcessor(logger *slog.Logger, writeTimeout time.Duration) *FileProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileProcessor{logger: logger, writeTimeout: writeTimeout}
}

func (fp *FileProcessor) ProcessFile(ctx context.Context, path string, rowParser parser.RowParser, collection database.Collection) (result models.FileResult) {
	start := time.Now()
	name := filepath.Base(path)
	result = models.FileResult{File: name, Kind: rowParser.Kind()}
	log := fp.logger.With("file", name, "kind", string(rowParser.Kind()))

	defer func() {
		result.Duration = time.Since(start)
	}()

	file, err := os.Open(path)
	if err != nil {
		result.Err = models.NewLoadError(models.ErrFileOpen, name, "error opening file", err)
		log.Error("Could not open file", "error", err)
		return result
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		result.Err = models.NewLoadError(models.ErrFileOpen, name, "error reading header", err)
		log.Error("Could not read header", "error", err)
		return result
	}
	if !parser.ValidateFirstRow(header, rowParser.Header()) {
		result.Err = models.NewLoadError(models.ErrHeaderValidate, name, "header does not match the expected columns", nil)
		log.Error("Header validation failed", "header", header)
		return result
	}

	for {
		if err := ctx.Err(); err != nil {
			result.Err = models.NewLoadError(models.ErrInterrupted, name, "processing interrupted", err)
			log.Warn("Stopped processing file", "error", err)
			return result
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			loadErr := models.NewLoadError(models.ErrFileOpen, name, "error reading row", err)
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				loadErr.Line = parseErr.Line
			}
			result.Err = loadErr
			log.Error("Could not read row", "line", loadErr.Line, "error", err)
			return result
		}
		line, _ := reader.FieldPos(0)

		if rowParser.IsHeaderRow(row) || !rowParser.Eligible(row) {
			result.Skipped++
			continue
		}
		result.Eligible++

		record, err := rowParser.Parse(row)
		if err != nil {
			loadErr := models.NewLoadError(models.ErrRowParse, name, "error parsing row", err)
			loadErr.Line = line
			result.Err = loadErr
			log.Error("Could not parse row", "line", line, "error", err)
			return result
		}

		id, err := fp.insert(ctx, collection, record)
		if err == nil && id == "" {
			err = errNoIdentifier
		}
		if err != nil {
			loadErr := models.NewLoadError(models.ErrRowInsert, name, "error inserting record", err)
			loadErr.Line = line
			loadErr.Record = record
			result.AddInsertError(loadErr)
			log.Warn("Could not insert record", "line", line, "error", err)
			continue
		}
		result.Persisted++
		log.Debug("Inserted record", "line", line, "id", id)
	}

	log.Info("Finished processing file",
		"eligible", result.Eligible,
		"persisted", result.Persisted,
		"skipped", result.Skipped,
		"insert_errors", len(result.InsertErrors))
	return result
}

func (fp *FileProcessor) insert(ctx context.Context, collection database.Collection, record models.Record) (string, error) {
	if fp.writeTimeout <= 0 {
		return collection.Insert(ctx, record)
	}
	ctx, cancel := context.WithTimeout(ctx, fp.writeTimeout)
	defer cancel()
	return collection.Insert(ctx, record)
}
