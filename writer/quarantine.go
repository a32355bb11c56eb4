package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	parquetwriter "github.com/xitongsys/parquet-go/writer"

	"marketlake/internal/metadata"
	"marketlake/logger"
	"marketlake/models"
)

// QuarantineParquetRecord is the columnar layout of one quarantined row:
// the full event row plus the reason it could not be placed.
type QuarantineParquetRecord struct {
	FileID      string `parquet:"name=file_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	SeqInFile   int64  `parquet:"name=seq_in_file, type=INT64"`
	EventTsUs   int64  `parquet:"name=event_ts_us, type=INT64"`
	Symbol      string `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Exchange    string `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	TradingDate string `parquet:"name=trading_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Reason      string `parquet:"name=reason, type=BYTE_ARRAY, convertedtype=UTF8"`
	Payload     string `parquet:"name=payload, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// WriteQuarantined persists quarantined rows into the quarantine namespace
// with the same atomicity and idempotency guarantees as the event table.
func (w *ParquetWriter) WriteQuarantined(ctx context.Context, table string, partition models.PartitionKey, rows []models.QuarantinedRow) (models.WriteReceipt, error) {
	if len(rows) == 0 {
		return models.WriteReceipt{Table: table, Partition: partition}, nil
	}

	log := w.log.WithComponent("quarantine_writer").WithFields(logger.Fields{
		"table":        table,
		"partition":    partition.String(),
		"record_count": len(rows),
	})

	fw := newMemoryFileWriter()
	pw, err := parquetwriter.NewParquetWriter(fw, new(QuarantineParquetRecord), 4)
	if err != nil {
		return models.WriteReceipt{}, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(w.config.Storage.Compression)

	for _, q := range rows {
		payload, err := json.Marshal(q.Row.Payload)
		if err != nil {
			pw.WriteStop()
			return models.WriteReceipt{}, fmt.Errorf("marshal payload for %s/%d: %w", q.Row.FileID, q.Row.SeqInFile, err)
		}
		record := QuarantineParquetRecord{
			FileID:      q.Row.FileID,
			SeqInFile:   q.Row.SeqInFile,
			EventTsUs:   q.Row.EventTsUs,
			Symbol:      q.Row.NaturalKey,
			Exchange:    q.Row.Partition.Exchange,
			TradingDate: q.Row.Partition.TradingDate,
			Reason:      string(q.Reason),
			Payload:     string(payload),
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return models.WriteReceipt{}, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return models.WriteReceipt{}, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	data := fw.Bytes()

	fileID := rows[0].Row.FileID
	relPath := objectPath(table, partition, fileID)
	path, err := w.writeObject(relPath, data)
	if err != nil {
		return models.WriteReceipt{}, err
	}

	if w.uploader != nil {
		if err := w.uploader.Upload(ctx, filepath.ToSlash(relPath), data); err != nil {
			log.WithError(err).Warn("failed to mirror quarantine object to S3")
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
		log.WithError(err).Warn("failed to update quarantine table metadata")
	}

	log.WithFields(logger.Fields{"file_size": len(data), "path": path}).Info("quarantine partition written")

	return models.WriteReceipt{
		Table:     table,
		Partition: partition,
		Path:      path,
		Rows:      len(rows),
		Bytes:     int64(len(data)),
	}, nil
}
