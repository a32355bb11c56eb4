// Package pit joins event rows against dimension history at each row's own
// event time and splits the batch into placeable and quarantined rows.
package pit

import (
	"marketlake/internal/dimension"
	"marketlake/models"
)

// Check resolves every row's natural key at the row's event_ts_us and splits
// the batch. The lookup uses only the row's own timestamp, never the current
// state of the dimension table; that is what keeps ingestion point-in-time
// safe. Both output slices preserve the input's (file_id, seq_in_file)
// order, and every input row lands in exactly one of them.
func Check(rows []models.EventRow, resolver *dimension.Resolver) ([]models.EventRow, []models.QuarantinedRow) {
	valid := make([]models.EventRow, 0, len(rows))
	var quarantined []models.QuarantinedRow

	for _, row := range rows {
		res := resolver.Resolve(row.NaturalKey, row.EventTsUs)
		if !res.Covered {
			quarantined = append(quarantined, models.QuarantinedRow{
				Row:    row,
				Reason: models.ReasonNoDimensionCoverage,
			})
			continue
		}
		row.DimVersionTsUs = res.ValidFromUs
		valid = append(valid, row)
	}
	return valid, quarantined
}

// ReasonCounts aggregates quarantine reasons for the ingestion result.
func ReasonCounts(quarantined []models.QuarantinedRow) map[models.QuarantineReason]int {
	if len(quarantined) == 0 {
		return nil
	}
	counts := make(map[models.QuarantineReason]int)
	for _, q := range quarantined {
		counts[q.Reason]++
	}
	return counts
}
