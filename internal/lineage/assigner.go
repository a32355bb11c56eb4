// Package lineage stamps parsed rows with their (file_id, seq_in_file)
// identity and establishes the canonical intra-file order.
package lineage

import (
	"sort"

	"marketlake/models"
)

// seqOrigin is the first sequence number assigned within a file.
const seqOrigin int64 = 0

// Assign re-sorts rows into canonical order by physical source position and
// stamps each with fileID and a dense sequence number starting at zero.
// Given the same fileID and the same parsed rows the output is identical
// across runs and machines: the only ordering input is RawRow.SourcePos,
// which parsers derive from the file itself. Parsing may have been
// parallelized upstream; this is where order collapses back to deterministic.
func Assign(fileID string, rows []models.RawRow) []models.EventRow {
	ordered := make([]models.RawRow, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SourcePos < ordered[j].SourcePos
	})

	out := make([]models.EventRow, len(ordered))
	for i, raw := range ordered {
		out[i] = models.EventRow{
			FileID:     fileID,
			SeqInFile:  seqOrigin + int64(i),
			EventTsUs:  raw.EventTsUs,
			NaturalKey: raw.NaturalKey,
			Payload:    raw.Payload,
		}
	}
	return out
}
