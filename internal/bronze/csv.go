package bronze

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"marketlake/models"
)

// ParseError reports a malformed bronze file. It is recorded on the manifest
// as a failed attempt and is retryable once the file is fixed.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s line %d: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Required CSV columns. Everything else becomes row payload.
const (
	columnEventTs    = "event_ts_us"
	columnNaturalKey = "symbol"
)

// CSVParser reads CSV bronze files with a header row. Records keep their
// physical file order through RawRow.SourcePos, which the lineage assigner
// relies on.
type CSVParser struct{}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Parse(ctx context.Context, meta models.BronzeFileMetadata) ([]models.RawRow, error) {
	f, err := os.Open(meta.BronzePath)
	if err != nil {
		return nil, &ParseError{Path: meta.BronzePath, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, &ParseError{Path: meta.BronzePath, Line: 1, Err: fmt.Errorf("read header: %w", err)}
	}

	tsIdx, keyIdx := -1, -1
	for i, name := range header {
		switch name {
		case columnEventTs:
			tsIdx = i
		case columnNaturalKey:
			keyIdx = i
		}
	}
	if tsIdx < 0 || keyIdx < 0 {
		return nil, &ParseError{
			Path: meta.BronzePath,
			Line: 1,
			Err:  fmt.Errorf("header must contain %q and %q columns", columnEventTs, columnNaturalKey),
		}
	}

	var rows []models.RawRow
	for pos := 0; ; pos++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &ParseError{Path: meta.BronzePath, Line: pos + 2, Err: err}
		}

		tsUs, err := strconv.ParseInt(record[tsIdx], 10, 64)
		if err != nil {
			return nil, &ParseError{
				Path: meta.BronzePath,
				Line: pos + 2,
				Err:  fmt.Errorf("bad %s value %q: %w", columnEventTs, record[tsIdx], err),
			}
		}
		if record[keyIdx] == "" {
			return nil, &ParseError{
				Path: meta.BronzePath,
				Line: pos + 2,
				Err:  fmt.Errorf("empty %s value", columnNaturalKey),
			}
		}

		payload := make(map[string]string, len(header)-2)
		for i, value := range record {
			if i == tsIdx || i == keyIdx {
				continue
			}
			payload[header[i]] = value
		}

		rows = append(rows, models.RawRow{
			SourcePos:  pos,
			EventTsUs:  tsUs,
			NaturalKey: record[keyIdx],
			Payload:    payload,
		})
	}

	return rows, nil
}
