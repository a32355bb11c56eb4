package models

import "time"

// IngestStatus is the processing state of one file identity in the manifest.
type IngestStatus string

const (
	StatusPending     IngestStatus = "pending"
	StatusSuccess     IngestStatus = "success"
	StatusFailed      IngestStatus = "failed"
	StatusQuarantined IngestStatus = "quarantined"
)

// ManifestRecord is the durable ledger entry for one file identity.
// The identity tuple is immutable. FileID is assigned at most once, on the
// first commit of a processing attempt, and is never reused for a different
// identity.
type ManifestRecord struct {
	Identity     FileIdentity     `json:"identity"`
	Status       IngestStatus     `json:"status"`
	FileID       string           `json:"file_id,omitempty"`
	AttemptCount int              `json:"attempt_count"`
	LastError    string           `json:"last_error,omitempty"`
	Result       *IngestionResult `json:"result_summary,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// IngestionResult summarizes one ingest_file call. It is created fresh per
// call and immutable once returned.
type IngestionResult struct {
	Status            IngestStatus              `json:"status"`
	FileID            string                    `json:"file_id,omitempty"`
	Skipped           bool                      `json:"skipped"`
	DryRun            bool                      `json:"dry_run,omitempty"`
	RowsParsed        int                       `json:"rows_parsed"`
	RowsWritten       int                       `json:"rows_written"`
	RowsQuarantined   int                       `json:"rows_quarantined"`
	QuarantineReasons map[QuarantineReason]int  `json:"quarantine_reasons,omitempty"`
	PartitionsTouched []PartitionKey            `json:"partitions_touched,omitempty"`
	LastError         string                    `json:"last_error,omitempty"`
}

// WriteReceipt is returned by the table writer for one atomic partitioned
// write.
type WriteReceipt struct {
	Table     string       `json:"table"`
	Partition PartitionKey `json:"partition"`
	Path      string       `json:"path"`
	Rows      int          `json:"rows"`
	Bytes     int64        `json:"bytes"`
}
