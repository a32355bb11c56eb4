package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"marketlake/models"
)

func testDataFile(fileID string, ts time.Time) DataFile {
	return DataFile{
		Path:        "/data/market_events/exchange=binance/trading_date=2024-03-01/" + fileID + ".parquet",
		FileSize:    1024,
		RecordCount: 10,
		Partition:   models.PartitionKey{Exchange: "binance", TradingDate: "2024-03-01"},
		FileID:      fileID,
		Timestamp:   ts,
	}
}

func TestAddFileWritesManifestAndMetadata(t *testing.T) {
	base := t.TempDir()
	gen := NewGenerator(base, "market_events")

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := gen.AddFile(testDataFile("f1", ts)); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}

	metaPath := filepath.Join(base, "metadata", "metadata.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("metadata.json missing: %v", err)
	}

	var tm TableMetadata
	if err := json.Unmarshal(data, &tm); err != nil {
		t.Fatalf("metadata.json invalid: %v", err)
	}
	if tm.FormatVersion != 2 {
		t.Errorf("format version = %d, want 2", tm.FormatVersion)
	}
	if tm.TableUUID == "" {
		t.Error("table uuid missing")
	}
	if len(tm.Snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(tm.Snapshots))
	}
	if tm.CurrentSnapshotID != tm.Snapshots[0].SnapshotID {
		t.Error("current snapshot does not point at the latest")
	}

	manifestPath := filepath.Join(base, "metadata", tm.Snapshots[0].Manifest)
	manifestData, err := os.ReadFile(manifestPath)
	if err != nil {
		t.Fatalf("manifest missing: %v", err)
	}
	var entries []ManifestEntry
	if err := json.Unmarshal(manifestData, &entries); err != nil {
		t.Fatalf("manifest invalid: %v", err)
	}
	if len(entries) != 1 || entries[0].DataFile.FileID != "f1" {
		t.Errorf("manifest entries = %+v", entries)
	}
}

func TestAddFileAppendsSnapshots(t *testing.T) {
	base := t.TempDir()
	gen := NewGenerator(base, "market_events")

	t1 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	if err := gen.AddFile(testDataFile("f1", t1)); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	if err := gen.AddFile(testDataFile("f2", t2)); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(base, "metadata", "metadata.json"))
	if err != nil {
		t.Fatalf("metadata.json missing: %v", err)
	}
	var tm TableMetadata
	if err := json.Unmarshal(data, &tm); err != nil {
		t.Fatalf("metadata.json invalid: %v", err)
	}
	if len(tm.Snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(tm.Snapshots))
	}
	if tm.CurrentSnapshotID != tm.Snapshots[1].SnapshotID {
		t.Error("current snapshot must advance to the latest")
	}
}

func TestWriteCatalogEntry(t *testing.T) {
	base := t.TempDir()
	gen := NewGenerator(base, "market_events")

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := gen.AddFile(testDataFile("f1", ts)); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}

	catalogDir := t.TempDir()
	if err := gen.WriteCatalogEntry(catalogDir); err != nil {
		t.Fatalf("WriteCatalogEntry failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(catalogDir, "market_events.json"))
	if err != nil {
		t.Fatalf("catalog entry missing: %v", err)
	}
	var entry map[string]string
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("catalog entry invalid: %v", err)
	}
	if entry["name"] != "market_events" {
		t.Errorf("catalog name = %q", entry["name"])
	}
	if entry["metadata_location"] == "" {
		t.Error("catalog entry missing metadata location")
	}
}
