package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/ThiagoRGoveia/stocks-dossier/internal/config"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/database"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/lock"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/models"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/parser"
	"github.com/ThiagoRGoveia/stocks-dossier/pkg/checksum"
	"github.com/google/uuid"
)

type IngestionService struct {
	store         database.RecordStore
	fileProcessor Processor
	locker        lock.Locker
	config        config.Config
	logger        *slog.Logger
	newRunID      func() string
}

func NewIngestionService(store database.RecordStore, processor Processor, locker lock.Locker, cfg config.Config, logger *slog.Logger) *IngestionService {
	if logger == nil {
		logger = slog.Default()
	}
	if locker == nil {
		locker = lock.NoopLocker{}
	}
	return &IngestionService{
		store:         store,
		fileProcessor: processor,
		locker:        locker,
		config:        cfg,
		logger:        logger,
		newRunID:      uuid.NewString,
	}
}

// Execute runs one load: every CSV in the source directory not yet archived is routed by its
// suffix, loaded, and moved to the target directory when all of its eligible rows were stored.
// Files are processed one at a time in name order. The returned error is only set when the run
// could not start or the directories could not be listed; per file failures are in the summary.
func (h *IngestionService) Execute(ctx context.Context) (*models.RunSummary, error) {
	runID := h.newRunID()
	log := h.logger.With("run_id", runID)
	summary := &models.RunSummary{RunID: runID}

	release, err := h.locker.Acquire(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("error acquiring run lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Could not release run lock", "error", err)
		}
	}()

	// Step 1: Make sure the archive exists, then find what is still pending.
	if err := EnsureDir(h.config.TargetDir); err != nil {
		return nil, models.NewLoadError(models.ErrDirectoryList, h.config.TargetDir, "error preparing target directory", err)
	}
	archived, err := ListCSVFiles(h.config.TargetDir)
	if err != nil {
		return nil, err
	}
	available, err := ListCSVFiles(h.config.SourceDir)
	if err != nil {
		return nil, err
	}
	pending := PendingFiles(available, archived)
	summary.Pending = len(pending)
	log.Info("Scanned source directory",
		"source", h.config.SourceDir,
		"found", len(available),
		"already_archived", len(available)-len(pending),
		"pending", len(pending))

	// Step 2: Load each pending file and archive it on success.
	for _, name := range pending {
		if ctx.Err() != nil {
			log.Warn("Run interrupted, leaving remaining files in place", "error", ctx.Err())
			break
		}

		rowParser := h.route(name)
		if rowParser == nil {
			summary.Unrouted++
			log.Warn("No feed matches file suffix, leaving it in place", "file", name)
			continue
		}

		result := h.processFile(ctx, runID, name, rowParser)
		summary.Add(result)
	}

	log.Info("Run finished",
		"pending", summary.Pending,
		"processed", summary.Processed,
		"archived", summary.Archived,
		"failed", summary.Failed,
		"unrouted", summary.Unrouted,
		"eligible", summary.Eligible,
		"persisted", summary.Persisted)
	return summary, nil
}

func (h *IngestionService) processFile(ctx context.Context, runID, name string, rowParser parser.RowParser) models.FileResult {
	log := h.logger.With("run_id", runID, "file", name)
	path := filepath.Join(h.config.SourceDir, name)
	log.Info("Started processing file", "kind", string(rowParser.Kind()))

	fileChecksum, err := checksum.GetFileChecksum(path)
	if err != nil {
		log.Warn("Could not checksum file", "error", err)
	}

	collection := h.store.Collection(rowParser.Kind())
	if collection == nil {
		result := models.FileResult{
			File: name,
			Kind: rowParser.Kind(),
			Err:  models.NewLoadError(models.ErrNoCollection, name, "store has no collection for "+string(rowParser.Kind()), nil),
		}
		log.Error("Store has no collection for file kind", "kind", string(rowParser.Kind()))
		h.recordFile(ctx, runID, fileChecksum, result)
		return result
	}

	result := h.fileProcessor.ProcessFile(ctx, path, rowParser, collection)

	if result.Succeeded() {
		if err := MoveFile(h.config.SourceDir, h.config.TargetDir, name); err != nil {
			result.Err = models.NewLoadError(models.ErrFileArchive, name, "error archiving file", err)
			log.Error("Could not archive file", "error", err)
		} else {
			result.Archived = true
			log.Info("Archived file", "target", h.config.TargetDir)
		}
	} else {
		attrs := []any{"status", result.Status(), "eligible", result.Eligible, "persisted", result.Persisted}
		if result.Err != nil {
			attrs = append(attrs, "error", result.Err.Error())
		}
		log.Warn("File not archived", attrs...)
	}

	h.recordFile(ctx, runID, fileChecksum, result)
	return result
}

// recordFile writes the ledger entry for a processed file. A ledger failure never changes the
// outcome of the file.
func (h *IngestionService) recordFile(ctx context.Context, runID, fileChecksum string, result models.FileResult) {
	record := &models.FileRecord{
		RunID:       runID,
		FileName:    result.File,
		Kind:        result.Kind,
		Checksum:    fileChecksum,
		Status:      result.Status(),
		Eligible:    result.Eligible,
		Persisted:   result.Persisted,
		Skipped:     result.Skipped,
		Errors:      result.Errors(),
		ProcessedAt: time.Now().UTC(),
	}

	ctx = context.WithoutCancel(ctx)
	if timeout := h.config.Store.WriteTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := h.store.InsertFileRecord(ctx, record); err != nil {
		h.logger.Warn("Could not write file record", "run_id", runID, "file", result.File, "error", err)
	}
}

// route picks the row parser for a file by its name suffix, ignoring case. The longer suffix is
// tried first so that one suffix being a tail of the other cannot misroute a file.
func (h *IngestionService) route(name string) parser.RowParser {
	lower := strings.ToLower(name)
	equitySuffix := strings.ToLower(h.config.EquitySuffix)
	futuresSuffix := strings.ToLower(h.config.FuturesSuffix)

	routes := []struct {
		suffix string
		build  func() parser.RowParser
	}{
		{equitySuffix, func() parser.RowParser { return parser.NewEquityParser() }},
		{futuresSuffix, func() parser.RowParser { return parser.NewFuturesParser(h.config.FuturesInstrument) }},
	}
	if len(futuresSuffix) > len(equitySuffix) {
		routes[0], routes[1] = routes[1], routes[0]
	}

	for _, route := range routes {
		if route.suffix != "" && strings.HasSuffix(lower, route.suffix) {
			return route.build()
		}
	}
	return nil
}
