package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	appconfig "marketlake/config"
	"marketlake/internal/bronze"
	"marketlake/internal/dimension"
	"marketlake/internal/ingest"
	"marketlake/internal/manifest"
	"marketlake/internal/partition"
	"marketlake/logger"
	"marketlake/models"
	"marketlake/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	bronzeRoot := flag.String("bronze", "bronze", "Root directory of bronze files, laid out as <root>/<exchange>/<file>")
	vendor := flag.String("vendor", "", "Vendor the bronze files originate from")
	dataType := flag.String("data-type", "", "Data type of the bronze files (e.g. trades)")
	dimensionPath := flag.String("dimension", "", "Bootstrap dimension snapshot (JSON)")
	dimensionUpdates := flag.String("dimension-updates", "", "Comma-separated later snapshots applied as upserts, in order")
	force := flag.Bool("force", false, "Reprocess files that already succeeded")
	dryRun := flag.Bool("dry-run", false, "Run all stages but skip writes and manifest commits")

	flag.Parse()

	cfg, err := appconfig.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if *vendor == "" || *dataType == "" {
		log.Error("-vendor and -data-type are required")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Marketlake.Name,
		"version": cfg.Marketlake.Version,
	}).Info("starting marketlake ingestion")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, cfg.Metrics.Interval)
	}

	store, err := manifest.NewFileStore(cfg.Manifest.Dir)
	if err != nil {
		log.WithError(err).Error("failed to open manifest store")
		os.Exit(1)
	}

	partitioner, err := partition.NewPartitioner(cfg.TimezoneTable())
	if err != nil {
		log.WithError(err).Error("invalid exchange timezone configuration")
		os.Exit(1)
	}

	resolver := dimension.NewResolver()
	if *dimensionPath != "" {
		snapshot, err := bronze.LoadSnapshot(*dimensionPath)
		if err != nil {
			log.WithError(err).Error("failed to load dimension snapshot")
			os.Exit(1)
		}
		if err := resolver.Bootstrap(snapshot); err != nil {
			log.WithError(err).Error("dimension bootstrap failed")
			os.Exit(1)
		}
	}
	for _, path := range splitPaths(*dimensionUpdates) {
		updates, err := bronze.LoadSnapshot(path)
		if err != nil {
			log.WithError(err).Error("failed to load dimension update snapshot")
			os.Exit(1)
		}
		if err := resolver.Upsert(updates); err != nil {
			log.WithError(err).Error("dimension upsert failed")
			os.Exit(1)
		}
	}
	if violations := resolver.Validate(); len(violations) > 0 {
		for _, v := range violations {
			log.WithComponent("dimension").WithFields(logger.Fields{
				"violation": v.String(),
			}).Error("dimension history violation")
		}
		os.Exit(1)
	}

	parquetWriter, err := writer.NewParquetWriter(cfg)
	if err != nil {
		log.WithError(err).Error("failed to create parquet writer")
		os.Exit(1)
	}

	orchestrator := ingest.New(ingest.Deps{
		Gate:            manifest.NewGate(store),
		Parser:          bronze.NewCSVParser(),
		Partitioner:     partitioner,
		Resolver:        resolver,
		TableWriter:     parquetWriter,
		Quarantine:      parquetWriter,
		EventTable:      cfg.Storage.EventTable,
		QuarantineTable: cfg.Storage.QuarantineTable,
	})

	files, err := bronze.NewScanner(*vendor, *dataType).Scan(*bronzeRoot)
	if err != nil {
		log.WithError(err).Error("bronze scan failed")
		os.Exit(1)
	}
	if len(files) == 0 {
		log.Info("no bronze files discovered, nothing to do")
		return
	}

	// Cancel the run on SIGINT/SIGTERM; workers observe the context between
	// state transitions and record the interrupted attempt as failed.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}()

	fileChan := make(chan models.BronzeFileMetadata)
	var wg sync.WaitGroup
	var mu sync.Mutex
	summary := map[models.IngestStatus]int{}
	skipped := 0

	numWorkers := cfg.Ingest.MaxWorkers
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			wlog := log.WithComponent("ingest_worker").WithFields(logger.Fields{"worker_id": workerID})
			for meta := range fileChan {
				result, err := orchestrator.IngestFile(ctx, meta, ingest.Options{
					Force:  *force,
					DryRun: *dryRun,
				})
				if err != nil {
					wlog.WithError(err).WithFields(logger.Fields{
						"bronze_path": meta.BronzePath,
					}).Error("ingestion aborted")
					continue
				}
				mu.Lock()
				summary[result.Status]++
				if result.Skipped {
					skipped++
				}
				mu.Unlock()
			}
		}(i)
	}

	for _, meta := range files {
		select {
		case <-ctx.Done():
		case fileChan <- meta:
			continue
		}
		break
	}
	close(fileChan)
	wg.Wait()

	log.WithFields(logger.Fields{
		"files":       len(files),
		"success":     summary[models.StatusSuccess],
		"failed":      summary[models.StatusFailed],
		"quarantined": summary[models.StatusQuarantined],
		"skipped":     skipped,
		"dry_run":     *dryRun,
	}).Info("ingestion run complete")

	if summary[models.StatusFailed] > 0 {
		os.Exit(1)
	}
}

func splitPaths(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	paths := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paths = append(paths, trimmed)
		}
	}
	return paths
}
