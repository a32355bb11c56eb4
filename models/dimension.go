package models

// OpenValidUntil is the sentinel upper bound of a dimension window that is
// still current.
const OpenValidUntil int64 = -1

// DimensionRecord is one historical version of a natural key's definition.
// The validity window is half-open: [ValidFromUs, ValidUntilUs). A record
// with ValidUntilUs == OpenValidUntil is the current definition.
type DimensionRecord struct {
	NaturalKey   string            `json:"natural_key"`
	ValidFromUs  int64             `json:"valid_from_ts_us"`
	ValidUntilUs int64             `json:"valid_until_ts_us"`
	Payload      map[string]string `json:"payload"`
}

// IsCurrent reports whether the record's window is still open. Derived from
// the upper bound, never stored separately.
func (r DimensionRecord) IsCurrent() bool {
	return r.ValidUntilUs == OpenValidUntil
}

// Covers reports whether tsUs falls inside the record's validity window.
func (r DimensionRecord) Covers(tsUs int64) bool {
	if tsUs < r.ValidFromUs {
		return false
	}
	return r.IsCurrent() || tsUs < r.ValidUntilUs
}

// SnapshotEntry is one deduplicated observation from a dimension snapshot
// source, consumed by bootstrap and upsert.
type SnapshotEntry struct {
	NaturalKey      string            `json:"natural_key"`
	ObservationTsUs int64             `json:"observation_ts_us"`
	Payload         map[string]string `json:"payload"`
}
