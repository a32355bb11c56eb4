package models

// PartitionKey places a row into exactly one partition of the event table.
// TradingDate is the exchange-local calendar date in YYYY-MM-DD form.
type PartitionKey struct {
	Exchange    string `json:"exchange"`
	TradingDate string `json:"trading_date"`
}

func (p PartitionKey) String() string {
	return p.Exchange + "/" + p.TradingDate
}

// EventRow is one market-fact record flowing through an ingestion run.
// FileID and SeqInFile are stamped by the lineage assigner, Partition by the
// timezone partitioner. Rows are values; once written they are never mutated.
type EventRow struct {
	FileID     string            `json:"file_id"`
	SeqInFile  int64             `json:"seq_in_file"`
	EventTsUs  int64             `json:"event_ts_us"`
	NaturalKey string            `json:"natural_key"`
	Payload    map[string]string `json:"payload"`
	Partition  PartitionKey      `json:"partition"`

	// DimVersionTsUs is the valid_from of the dimension window the row was
	// resolved against. Zero until the PIT check annotates it.
	DimVersionTsUs int64 `json:"dim_version_ts_us,omitempty"`
}

// QuarantineReason classifies why a row could not be written to the
// canonical table.
type QuarantineReason string

const (
	// ReasonNoDimensionCoverage means no dimension window covered the row's
	// event timestamp: key unknown, timestamp before first window, or inside
	// an explicit gap.
	ReasonNoDimensionCoverage QuarantineReason = "no_dimension_coverage"
)

// QuarantinedRow pairs a row with the reason it was quarantined.
type QuarantinedRow struct {
	Row    EventRow         `json:"row"`
	Reason QuarantineReason `json:"reason"`
}
