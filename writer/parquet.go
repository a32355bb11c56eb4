// Package writer persists partitioned event and quarantine rows as parquet
// objects, records them in table metadata, and optionally mirrors them to S3.
package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	parquetwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "marketlake/config"
	"marketlake/internal/metadata"
	"marketlake/logger"
	"marketlake/models"
)

// EventParquetRecord is the columnar layout of one event row. The lineage
// columns (file_id, seq_in_file) key idempotent appends downstream.
type EventParquetRecord struct {
	FileID       string `parquet:"name=file_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	SeqInFile    int64  `parquet:"name=seq_in_file, type=INT64"`
	EventTsUs    int64  `parquet:"name=event_ts_us, type=INT64"`
	Symbol       string `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Exchange     string `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	TradingDate  string `parquet:"name=trading_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	DimVersionUs int64  `parquet:"name=dim_version_ts_us, type=INT64"`
	Payload      string `parquet:"name=payload, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ParquetWriter writes one parquet object per (table, partition, file_id)
// under the data directory. The object name is keyed on file_id, so writing
// the same lineage content twice lands on the same path with identical rows
// instead of duplicating them.
type ParquetWriter struct {
	config   *appconfig.Config
	dataDir  string
	mu       sync.Mutex
	metaGens map[string]*metadata.Generator
	uploader *S3Uploader
	log      *logger.Log
}

// NewParquetWriter prepares the data directory and, when S3 is enabled,
// the uploader used to mirror written objects.
func NewParquetWriter(cfg *appconfig.Config) (*ParquetWriter, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	var uploader *S3Uploader
	if cfg.Storage.S3.Enabled {
		var err error
		uploader, err = NewS3Uploader(cfg)
		if err != nil {
			return nil, fmt.Errorf("create s3 uploader: %w", err)
		}
	}

	return &ParquetWriter{
		config:   cfg,
		dataDir:  cfg.Storage.DataDir,
		metaGens: make(map[string]*metadata.Generator),
		uploader: uploader,
		log:      logger.GetLogger(),
	}, nil
}

// WritePartitioned writes all rows for one partition as a single parquet
// object. The write is atomic: the object is staged to a temp path and
// renamed into place, so a crash never leaves a partial file visible.
func (w *ParquetWriter) WritePartitioned(ctx context.Context, table string, partition models.PartitionKey, rows []models.EventRow) (models.WriteReceipt, error) {
	if len(rows) == 0 {
		return models.WriteReceipt{Table: table, Partition: partition}, nil
	}

	log := w.log.WithComponent("parquet_writer").WithFields(logger.Fields{
		"table":        table,
		"partition":    partition.String(),
		"record_count": len(rows),
	})

	records := make([]EventParquetRecord, len(rows))
	for i, row := range rows {
		rec, err := toParquetRecord(row)
		if err != nil {
			return models.WriteReceipt{}, err
		}
		records[i] = rec
	}

	data, err := w.encodeParquet(records)
	if err != nil {
		return models.WriteReceipt{}, fmt.Errorf("encode parquet: %w", err)
	}

	fileID := rows[0].FileID
	relPath := objectPath(table, partition, fileID)
	path, err := w.writeObject(relPath, data)
	if err != nil {
		return models.WriteReceipt{}, err
	}

	if w.uploader != nil {
		if err := w.uploader.Upload(ctx, filepath.ToSlash(relPath), data); err != nil {
			// The local object is the source of truth; a failed mirror is
			// retried by the next forced run, not by deleting local state.
			log.WithError(err).Warn("failed to mirror object to S3")
		}
	}

	if err := w.metaGen(table).AddFile(metadata.DataFile{
		Path:        path,
		FileSize:    int64(len(data)),
		RecordCount: int64(len(rows)),
		Partition:   partition,
		FileID:      fileID,
		Timestamp:   time.Now().UTC(),
	}); err != nil {
		log.WithError(err).Warn("failed to update table metadata")
	}

	logger.RecordPartitionWrite(partition.String(), len(rows), int64(len(data)))
	log.WithFields(logger.Fields{"file_size": len(data), "path": path}).Info("partition written")
	logger.LogDataFlowEntry(w.log.WithComponent("parquet_writer"), "pit_checker", table, len(rows), "rows")

	return models.WriteReceipt{
		Table:     table,
		Partition: partition,
		Path:      path,
		Rows:      len(rows),
		Bytes:     int64(len(data)),
	}, nil
}

func toParquetRecord(row models.EventRow) (EventParquetRecord, error) {
	payload, err := json.Marshal(row.Payload)
	if err != nil {
		return EventParquetRecord{}, fmt.Errorf("marshal payload for %s/%d: %w", row.FileID, row.SeqInFile, err)
	}
	return EventParquetRecord{
		FileID:       row.FileID,
		SeqInFile:    row.SeqInFile,
		EventTsUs:    row.EventTsUs,
		Symbol:       row.NaturalKey,
		Exchange:     row.Partition.Exchange,
		TradingDate:  row.Partition.TradingDate,
		DimVersionUs: row.DimVersionTsUs,
		Payload:      string(payload),
	}, nil
}

func (w *ParquetWriter) encodeParquet(records []EventParquetRecord) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := parquetwriter.NewParquetWriter(fw, new(EventParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(w.config.Storage.Compression)

	for _, record := range records {
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}

func compressionCodec(name string) parquet.CompressionCodec {
	switch name {
	case "snappy":
		return parquet.CompressionCodec_SNAPPY
	case "gzip":
		return parquet.CompressionCodec_GZIP
	case "lzo":
		return parquet.CompressionCodec_LZO
	default:
		return parquet.CompressionCodec_UNCOMPRESSED
	}
}

// objectPath builds the hive-style relative path of one partition object.
func objectPath(table string, partition models.PartitionKey, fileID string) string {
	return filepath.Join(
		table,
		fmt.Sprintf("exchange=%s", partition.Exchange),
		fmt.Sprintf("trading_date=%s", partition.TradingDate),
		fileID+".parquet",
	)
}

// writeObject stages data to a temp file and renames it into place, then
// returns the absolute path.
func (w *ParquetWriter) writeObject(relPath string, data []byte) (string, error) {
	path := filepath.Join(w.dataDir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create partition dir: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write parquet object: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet object: %w", err)
	}
	return path, nil
}

func (w *ParquetWriter) metaGen(table string) *metadata.Generator {
	w.mu.Lock()
	defer w.mu.Unlock()
	gen, ok := w.metaGens[table]
	if !ok {
		gen = metadata.NewGenerator(filepath.Join(w.dataDir, table), table)
		w.metaGens[table] = gen
	}
	return gen
}
