package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ossprey/licenscope/internal/archive"
	"github.com/ossprey/licenscope/internal/classify"
	"github.com/ossprey/licenscope/internal/config"
	"github.com/ossprey/licenscope/internal/domain"
	"github.com/ossprey/licenscope/internal/engine"
	"github.com/ossprey/licenscope/internal/export"
	"github.com/ossprey/licenscope/internal/logger"
	"github.com/ossprey/licenscope/internal/report"
	"github.com/ossprey/licenscope/internal/scan"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "licenscope-scan",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	archivePath := flag.String("archive", "", "Path to the archive to scan (zip, tar, tar.gz)")
	configPath := flag.String("config", "", "Path to config file")
	workers := flag.Int("workers", 0, "Detection worker count, 0 uses the configured value")
	extensions := flag.String("extensions", "", "Comma-separated extension filter, empty keeps all configured extensions")
	includeBinary := flag.Bool("include-binary", false, "Also send binary files to the detection engine")
	recursive := flag.Bool("recursive", true, "Descend into subdirectories")
	csvPath := flag.String("csv", "", "Write the per-file report as CSV to this path")
	xlsxPath := flag.String("xlsx", "", "Write the full report as XLSX to this path")
	flag.Parse()

	if *archivePath == "" {
		flag.Usage()
		appLogger.Fatal("The -archive flag is required")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	data, err := os.ReadFile(*archivePath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read archive")
	}
	format, err := archive.SniffFormat(data, *archivePath)
	if err != nil {
		appLogger.WithError(err).Fatal("Unsupported archive format")
	}

	eng, err := engine.New(engine.Config{
		Provider:    cfg.Engine.Provider,
		ScanCodeBin: cfg.Engine.ScanCodeBin,
		BaseURL:     cfg.Engine.BaseURL,
		APIKey:      cfg.Engine.APIKey,
		Timeout:     cfg.Engine.Timeout,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize detection engine")
	}

	opts := domain.ScanOptions{
		Recursive:     *recursive,
		IncludeBinary: *includeBinary || cfg.Scan.IncludeBinary,
	}
	for _, ext := range strings.Split(*extensions, ",") {
		if ext = strings.TrimSpace(ext); ext != "" {
			opts.Extensions = append(opts.Extensions, ext)
		}
	}

	poolWorkers := *workers
	if poolWorkers <= 0 {
		poolWorkers = cfg.Scan.Workers
	}

	// One-shot runs keep everything in memory; exports are the output.
	store := report.NewMemoryStore()
	orch := scan.NewOrchestrator(
		store,
		archive.NewExtractor(cfg.Scan.WorkDir, archive.Limits{
			MaxTotalBytes: cfg.Scan.MaxTotalBytes,
			MaxEntries:    cfg.Scan.MaxEntries,
		}),
		classify.New(classify.Config{
			ScannableExtensions: cfg.Scan.Extensions,
			LicenseFilenames:    cfg.Scan.LicenseFilenames,
		}),
		engine.NewGateway(eng, cfg.Engine.Timeout),
		appLogger,
		scan.Config{Workers: poolWorkers},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	appLogger.WithFields(logger.Fields{
		"archive":          filepath.Base(*archivePath),
		"format":           string(format),
		logger.FieldSize:   int64(len(data)),
		"workers":          poolWorkers,
		logger.FieldEngine: eng.Name(),
	}).Info("Starting scan")

	job, err := orch.CreateJob(ctx, scan.NewJobParams{
		ArchiveName: filepath.Base(*archivePath),
		ArchiveSize: int64(len(data)),
		Format:      format,
		Options:     opts,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to create job")
	}

	err = orch.Run(ctx, job.ID, data)
	switch {
	case errors.Is(err, domain.ErrJobCancelled):
		appLogger.Warn("Scan cancelled, partial results follow")
	case err != nil:
		appLogger.WithError(err).Fatal("Scan failed")
	}

	rep, err := report.GetReport(context.Background(), store, job.ID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load report")
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldStatus:     string(rep.Job.Status),
		"total_files":          rep.Summary.TotalFiles,
		"files_with_matches":   rep.Summary.FilesWithMatches,
		"total_matches":        rep.Summary.TotalMatches,
		"detection_failures":   rep.Job.DetectionFailures,
		"licenses":             strings.Join(rep.Summary.DistinctLicenses, ", "),
		logger.FieldDurationMs: rep.Job.DurationMS,
	}).Info("Scan finished")

	if *csvPath != "" {
		writeExport(appLogger, *csvPath, func(w io.Writer) error {
			return export.WriteCSV(w, rep.Files)
		})
	}
	if *xlsxPath != "" {
		writeExport(appLogger, *xlsxPath, func(w io.Writer) error {
			return export.WriteXLSX(w, rep.Job, rep.Summary, rep.Files)
		})
	}
}

func writeExport(log *logger.Logger, path string, write func(io.Writer) error) {
	f, err := os.Create(path)
	if err != nil {
		log.WithError(err).Fatal("Failed to create export file")
	}
	if err := write(f); err != nil {
		f.Close()
		log.WithError(err).WithField(logger.FieldPath, path).Fatal("Failed to write export")
	}
	if err := f.Close(); err != nil {
		log.WithError(err).WithField(logger.FieldPath, path).Fatal("Failed to close export file")
	}
	log.WithField(logger.FieldPath, path).Info("Report written")
}
