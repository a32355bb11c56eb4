package bronze

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"marketlake/models"
)

func writeBronzeFile(t *testing.T, content string) models.BronzeFileMetadata {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trades.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return models.BronzeFileMetadata{
		Vendor:     "tardis",
		DataType:   "trades",
		BronzePath: path,
		FileHash:   "h",
		Exchange:   "binance",
	}
}

func TestCSVParserParse(t *testing.T) {
	meta := writeBronzeFile(t, "event_ts_us,symbol,price,qty\n"+
		"1000,BTCUSDT,42000.5,0.1\n"+
		"2000,ETHUSDT,3000.25,1.5\n")

	rows, err := NewCSVParser().Parse(context.Background(), meta)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	first := rows[0]
	if first.SourcePos != 0 || first.EventTsUs != 1000 || first.NaturalKey != "BTCUSDT" {
		t.Errorf("first row = %+v", first)
	}
	if first.Payload["price"] != "42000.5" || first.Payload["qty"] != "0.1" {
		t.Errorf("first payload = %v", first.Payload)
	}
	if _, ok := first.Payload["symbol"]; ok {
		t.Error("natural key column must not leak into payload")
	}
	if rows[1].SourcePos != 1 {
		t.Errorf("second row source pos = %d", rows[1].SourcePos)
	}
}

func TestCSVParserMissingColumns(t *testing.T) {
	meta := writeBronzeFile(t, "timestamp,ticker\n1000,BTCUSDT\n")

	_, err := NewCSVParser().Parse(context.Background(), meta)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.Line != 1 {
		t.Errorf("header error should point at line 1, got %d", parseErr.Line)
	}
}

func TestCSVParserBadTimestamp(t *testing.T) {
	meta := writeBronzeFile(t, "event_ts_us,symbol\n"+
		"1000,BTCUSDT\n"+
		"notanumber,ETHUSDT\n")

	_, err := NewCSVParser().Parse(context.Background(), meta)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.Line != 3 {
		t.Errorf("error should point at line 3, got %d", parseErr.Line)
	}
}

func TestCSVParserEmptySymbol(t *testing.T) {
	meta := writeBronzeFile(t, "event_ts_us,symbol\n1000,\n")

	_, err := NewCSVParser().Parse(context.Background(), meta)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestCSVParserMissingFile(t *testing.T) {
	meta := models.BronzeFileMetadata{BronzePath: filepath.Join(t.TempDir(), "nope.csv")}

	_, err := NewCSVParser().Parse(context.Background(), meta)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestCSVParserHeaderOnly(t *testing.T) {
	meta := writeBronzeFile(t, "event_ts_us,symbol,price\n")

	rows, err := NewCSVParser().Parse(context.Background(), meta)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestCSVParserCancelled(t *testing.T) {
	meta := writeBronzeFile(t, "event_ts_us,symbol\n1000,BTCUSDT\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCSVParser().Parse(ctx, meta)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
