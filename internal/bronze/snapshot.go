package bronze

import (
	"encoding/json"
	"fmt"
	"os"

	"marketlake/models"
)

// LoadSnapshot reads a dimension snapshot file: a JSON array of
// (natural_key, observation_ts_us, payload) tuples. The file must already be
// deduplicated by the producing system; duplicates surface later as the
// resolver's DuplicateKeyError.
func LoadSnapshot(path string) ([]models.SnapshotEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dimension snapshot: %w", err)
	}

	var entries []models.SnapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse dimension snapshot %s: %w", path, err)
	}

	for i, entry := range entries {
		if entry.NaturalKey == "" {
			return nil, fmt.Errorf("snapshot entry %d has no natural key", i)
		}
		if entry.ObservationTsUs <= 0 {
			return nil, fmt.Errorf("snapshot entry %d (%s) has invalid observation timestamp %d",
				i, entry.NaturalKey, entry.ObservationTsUs)
		}
	}
	return entries, nil
}
