package dimension

import "fmt"

// DuplicateKeyError reports a natural key that appears more than once in a
// bootstrap snapshot, or a bootstrap of a key that already has history.
// Snapshots must arrive deduplicated; this is a fail-fast boundary, not a
// silent last-write-wins.
type DuplicateKeyError struct {
	NaturalKey string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate natural key %q in dimension snapshot", e.NaturalKey)
}

// NonMonotonicUpdateError reports an upsert whose observation timestamp does
// not move history forward. Backdated corrections are a separate maintenance
// operation, never an upsert.
type NonMonotonicUpdateError struct {
	NaturalKey      string
	ObservationTsUs int64
	BoundaryTsUs    int64
}

func (e *NonMonotonicUpdateError) Error() string {
	return fmt.Sprintf("non-monotonic update for %q: observation %d not after %d",
		e.NaturalKey, e.ObservationTsUs, e.BoundaryTsUs)
}
