// Package dimension maintains SCD2 validity-window history per natural key
// and answers point-in-time lookups against it.
package dimension

import (
	"sort"
	"sync"

	"marketlake/logger"
	"marketlake/models"
)

// Resolution is the outcome of one point-in-time lookup. Covered reports
// whether any window contained the timestamp; when false the other fields
// are zero. Uncovered is a first-class outcome, not an error.
type Resolution struct {
	Covered     bool
	ValidFromUs int64
	Payload     map[string]string
}

// Resolver holds the in-memory SCD2 index. Histories grow append-only via
// Bootstrap and Upsert; windows are never deleted. Reads take the read lock
// and may run concurrently; mutation is single-writer.
type Resolver struct {
	mu        sync.RWMutex
	histories map[string][]models.DimensionRecord
	log       *logger.Log
}

func NewResolver() *Resolver {
	return &Resolver{
		histories: make(map[string][]models.DimensionRecord),
		log:       logger.GetLogger(),
	}
}

// Bootstrap creates the first window [observation_ts, open) for every key in
// the snapshot. The snapshot must be deduplicated and the keys must have no
// prior history; violations fail the whole call before anything is mutated.
func (r *Resolver) Bootstrap(snapshot []models.SnapshotEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(snapshot))
	for _, entry := range snapshot {
		if _, dup := seen[entry.NaturalKey]; dup {
			return &DuplicateKeyError{NaturalKey: entry.NaturalKey}
		}
		if _, exists := r.histories[entry.NaturalKey]; exists {
			return &DuplicateKeyError{NaturalKey: entry.NaturalKey}
		}
		seen[entry.NaturalKey] = struct{}{}
	}

	for _, entry := range snapshot {
		r.histories[entry.NaturalKey] = []models.DimensionRecord{{
			NaturalKey:   entry.NaturalKey,
			ValidFromUs:  entry.ObservationTsUs,
			ValidUntilUs: models.OpenValidUntil,
			Payload:      entry.Payload,
		}}
	}

	r.log.WithComponent("dimension").WithFields(logger.Fields{
		"keys": len(snapshot),
	}).Info("dimension history bootstrapped")
	return nil
}

// Upsert applies a later snapshot: for each entry it closes the key's open
// window at the entry's observation timestamp and opens a new window with the
// new payload. A key with no prior history gets its first window. History
// must move strictly forward; every entry is checked before any is applied so
// a failed call never leaves history partially updated.
func (r *Resolver) Upsert(updates []models.SnapshotEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(updates))
	for _, entry := range updates {
		if _, dup := seen[entry.NaturalKey]; dup {
			return &DuplicateKeyError{NaturalKey: entry.NaturalKey}
		}
		seen[entry.NaturalKey] = struct{}{}

		history := r.histories[entry.NaturalKey]
		if len(history) == 0 {
			continue
		}
		last := history[len(history)-1]
		if last.IsCurrent() {
			if entry.ObservationTsUs <= last.ValidFromUs {
				return &NonMonotonicUpdateError{
					NaturalKey:      entry.NaturalKey,
					ObservationTsUs: entry.ObservationTsUs,
					BoundaryTsUs:    last.ValidFromUs,
				}
			}
		} else if entry.ObservationTsUs < last.ValidUntilUs {
			// Reopening a retired key must not overlap its closed history.
			return &NonMonotonicUpdateError{
				NaturalKey:      entry.NaturalKey,
				ObservationTsUs: entry.ObservationTsUs,
				BoundaryTsUs:    last.ValidUntilUs,
			}
		}
	}

	for _, entry := range updates {
		history := r.histories[entry.NaturalKey]
		if n := len(history); n > 0 && history[n-1].IsCurrent() {
			history[n-1].ValidUntilUs = entry.ObservationTsUs
		}
		r.histories[entry.NaturalKey] = append(history, models.DimensionRecord{
			NaturalKey:   entry.NaturalKey,
			ValidFromUs:  entry.ObservationTsUs,
			ValidUntilUs: models.OpenValidUntil,
			Payload:      entry.Payload,
		})
	}
	return nil
}

// Retire closes a key's open window at atTsUs with no replacement. Lookups
// after that instant return uncovered. Retiring an unknown or already-retired
// key is a no-op; a close at or before the open window's start is rejected.
func (r *Resolver) Retire(naturalKey string, atTsUs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.histories[naturalKey]
	n := len(history)
	if n == 0 || !history[n-1].IsCurrent() {
		return nil
	}
	if atTsUs <= history[n-1].ValidFromUs {
		return &NonMonotonicUpdateError{
			NaturalKey:      naturalKey,
			ObservationTsUs: atTsUs,
			BoundaryTsUs:    history[n-1].ValidFromUs,
		}
	}
	history[n-1].ValidUntilUs = atTsUs
	return nil
}

// Resolve answers "what definition was valid at asOfUs" for a natural key.
// Windows are half-open, so a timestamp exactly at a boundary resolves to the
// window that begins there. Timestamps before the first window, inside a gap,
// or for an unknown key come back uncovered.
func (r *Resolver) Resolve(naturalKey string, asOfUs int64) Resolution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.histories[naturalKey]
	if len(history) == 0 {
		return Resolution{}
	}

	// Last window whose valid_from is <= asOfUs.
	idx := sort.Search(len(history), func(i int) bool {
		return history[i].ValidFromUs > asOfUs
	}) - 1
	if idx < 0 {
		return Resolution{}
	}
	record := history[idx]
	if !record.Covers(asOfUs) {
		return Resolution{}
	}
	return Resolution{
		Covered:     true,
		ValidFromUs: record.ValidFromUs,
		Payload:     record.Payload,
	}
}

// History returns a copy of a key's windows in valid_from order. Intended
// for integrity checks and operational inspection.
func (r *Resolver) History(naturalKey string) []models.DimensionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.histories[naturalKey]
	out := make([]models.DimensionRecord, len(history))
	copy(out, history)
	return out
}

// Keys returns every natural key with history, sorted.
func (r *Resolver) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.histories))
	for k := range r.histories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
