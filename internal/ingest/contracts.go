package ingest

import (
	"context"

	"marketlake/models"
)

// Parser turns one bronze file into parsed rows in physical record order.
// Implementations must preserve the original order via RawRow.SourcePos and
// fail with a typed parse error on malformed input.
type Parser interface {
	Parse(ctx context.Context, meta models.BronzeFileMetadata) ([]models.RawRow, error)
}

// TableWriter appends rows to one partition of a table. Each call is atomic:
// all rows become visible or none. Writing the same (file_id, seq_in_file)
// content twice must not duplicate rows; that is the defense-in-depth
// backstop behind the manifest gate.
type TableWriter interface {
	WritePartitioned(ctx context.Context, table string, partition models.PartitionKey, rows []models.EventRow) (models.WriteReceipt, error)
}

// QuarantineSink stores rows that could not be placed, with their reasons.
// Same atomicity contract as TableWriter, separate namespace.
type QuarantineSink interface {
	WriteQuarantined(ctx context.Context, table string, partition models.PartitionKey, rows []models.QuarantinedRow) (models.WriteReceipt, error)
}
