package writer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	appconfig "marketlake/config"
	"marketlake/models"
)

func newTestWriter(t *testing.T) *ParquetWriter {
	t.Helper()
	cfg := &appconfig.Config{}
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.EventTable = "market_events"
	cfg.Storage.QuarantineTable = "market_events_quarantine"
	cfg.Storage.Compression = "snappy"

	w, err := NewParquetWriter(cfg)
	if err != nil {
		t.Fatalf("NewParquetWriter failed: %v", err)
	}
	return w
}

func testEventRows(fileID string, n int) []models.EventRow {
	key := models.PartitionKey{Exchange: "binance", TradingDate: "2024-03-01"}
	rows := make([]models.EventRow, n)
	for i := range rows {
		rows[i] = models.EventRow{
			FileID:         fileID,
			SeqInFile:      int64(i),
			EventTsUs:      1000 + int64(i),
			NaturalKey:     "BTCUSDT",
			Payload:        map[string]string{"price": "42000.5"},
			Partition:      key,
			DimVersionTsUs: 500,
		}
	}
	return rows
}

func TestWritePartitioned(t *testing.T) {
	w := newTestWriter(t)
	rows := testEventRows("file-1", 3)

	receipt, err := w.WritePartitioned(context.Background(), "market_events", rows[0].Partition, rows)
	if err != nil {
		t.Fatalf("WritePartitioned failed: %v", err)
	}
	if receipt.Rows != 3 {
		t.Errorf("receipt rows = %d, want 3", receipt.Rows)
	}
	if receipt.Bytes <= 0 {
		t.Errorf("receipt bytes = %d", receipt.Bytes)
	}

	info, err := os.Stat(receipt.Path)
	if err != nil {
		t.Fatalf("written object missing: %v", err)
	}
	if info.Size() != receipt.Bytes {
		t.Errorf("object size %d != receipt bytes %d", info.Size(), receipt.Bytes)
	}

	// Hive-style layout keyed on the lineage file id.
	wantSuffix := filepath.Join("market_events", "exchange=binance", "trading_date=2024-03-01", "file-1.parquet")
	if !pathHasSuffix(receipt.Path, wantSuffix) {
		t.Errorf("object path = %s, want suffix %s", receipt.Path, wantSuffix)
	}

	// No temp file left behind.
	if _, err := os.Stat(receipt.Path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp staging file was not cleaned up")
	}
}

func pathHasSuffix(path, suffix string) bool {
	if len(path) < len(suffix) {
		return false
	}
	return path[len(path)-len(suffix):] == suffix
}

func TestWritePartitionedRewriteOverwrites(t *testing.T) {
	w := newTestWriter(t)
	rows := testEventRows("file-1", 2)
	key := rows[0].Partition

	first, err := w.WritePartitioned(context.Background(), "market_events", key, rows)
	if err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	second, err := w.WritePartitioned(context.Background(), "market_events", key, rows)
	if err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if first.Path != second.Path {
		t.Errorf("rewrite landed on a different path: %s vs %s", first.Path, second.Path)
	}

	// Exactly one data object for the partition.
	dir := filepath.Dir(first.Path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	count := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".parquet" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected 1 parquet object, found %d", count)
	}
}

func TestWritePartitionedEmpty(t *testing.T) {
	w := newTestWriter(t)
	key := models.PartitionKey{Exchange: "binance", TradingDate: "2024-03-01"}

	receipt, err := w.WritePartitioned(context.Background(), "market_events", key, nil)
	if err != nil {
		t.Fatalf("WritePartitioned failed: %v", err)
	}
	if receipt.Rows != 0 || receipt.Path != "" {
		t.Errorf("empty write produced %+v", receipt)
	}
}

func TestWriteQuarantined(t *testing.T) {
	w := newTestWriter(t)
	key := models.PartitionKey{Exchange: "binance", TradingDate: "2024-03-01"}
	rows := []models.QuarantinedRow{
		{
			Row: models.EventRow{
				FileID:     "file-1",
				SeqInFile:  0,
				EventTsUs:  1000,
				NaturalKey: "DOGEUSDT",
				Payload:    map[string]string{"price": "0.1"},
				Partition:  key,
			},
			Reason: models.ReasonNoDimensionCoverage,
		},
	}

	receipt, err := w.WriteQuarantined(context.Background(), "market_events_quarantine", key, rows)
	if err != nil {
		t.Fatalf("WriteQuarantined failed: %v", err)
	}
	if receipt.Rows != 1 {
		t.Errorf("receipt rows = %d, want 1", receipt.Rows)
	}
	if _, err := os.Stat(receipt.Path); err != nil {
		t.Fatalf("quarantine object missing: %v", err)
	}
	wantSuffix := filepath.Join("market_events_quarantine", "exchange=binance", "trading_date=2024-03-01", "file-1.parquet")
	if !pathHasSuffix(receipt.Path, wantSuffix) {
		t.Errorf("object path = %s, want suffix %s", receipt.Path, wantSuffix)
	}
}

func TestObjectPath(t *testing.T) {
	key := models.PartitionKey{Exchange: "nyse", TradingDate: "2024-11-03"}
	got := objectPath("market_events", key, "abc")
	want := filepath.Join("market_events", "exchange=nyse", "trading_date=2024-11-03", "abc.parquet")
	if got != want {
		t.Errorf("objectPath = %s, want %s", got, want)
	}
}

func TestCompressionCodecFallback(t *testing.T) {
	if compressionCodec("zstd-from-the-future") == compressionCodec("snappy") {
		t.Error("unknown codec must not silently map to snappy")
	}
}
