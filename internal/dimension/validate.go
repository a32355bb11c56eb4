package dimension

import (
	"fmt"
	"sort"

	"marketlake/models"
)

// ViolationKind classifies one integrity violation found by Validate.
type ViolationKind string

const (
	ViolationUnsorted     ViolationKind = "unsorted"
	ViolationOverlap      ViolationKind = "overlap"
	ViolationMultipleOpen ViolationKind = "multiple_open"
	ViolationEmptyWindow  ViolationKind = "empty_window"
)

// Violation describes one integrity failure in a key's window history.
type Violation struct {
	NaturalKey string
	Kind       ViolationKind
	Index      int
	Detail     string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s[%d]: %s: %s", v.NaturalKey, v.Index, v.Kind, v.Detail)
}

// Validate checks every key's history: windows sorted by valid_from, pairwise
// non-overlapping, no empty windows, and at most one open window per key.
// It enumerates every violation found rather than stopping at the first, so
// it can drive a periodic integrity report over the whole index.
func (r *Resolver) Validate() []Violation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var violations []Violation
	for _, key := range r.keysLocked() {
		violations = append(violations, validateHistory(key, r.histories[key])...)
	}
	return violations
}

func (r *Resolver) keysLocked() []string {
	keys := make([]string, 0, len(r.histories))
	for k := range r.histories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validateHistory(key string, history []models.DimensionRecord) []Violation {
	var violations []Violation
	openCount := 0

	for i, rec := range history {
		if rec.IsCurrent() {
			openCount++
			if openCount > 1 {
				violations = append(violations, Violation{
					NaturalKey: key,
					Kind:       ViolationMultipleOpen,
					Index:      i,
					Detail:     fmt.Sprintf("open window #%d starting at %d", openCount, rec.ValidFromUs),
				})
			}
		} else if rec.ValidUntilUs <= rec.ValidFromUs {
			violations = append(violations, Violation{
				NaturalKey: key,
				Kind:       ViolationEmptyWindow,
				Index:      i,
				Detail:     fmt.Sprintf("[%d, %d) is empty", rec.ValidFromUs, rec.ValidUntilUs),
			})
		}

		if i == 0 {
			continue
		}
		prev := history[i-1]
		if rec.ValidFromUs < prev.ValidFromUs {
			violations = append(violations, Violation{
				NaturalKey: key,
				Kind:       ViolationUnsorted,
				Index:      i,
				Detail:     fmt.Sprintf("valid_from %d before predecessor %d", rec.ValidFromUs, prev.ValidFromUs),
			})
			continue
		}
		if prev.IsCurrent() || rec.ValidFromUs < prev.ValidUntilUs {
			violations = append(violations, Violation{
				NaturalKey: key,
				Kind:       ViolationOverlap,
				Index:      i,
				Detail: fmt.Sprintf("[%d, %d) overlaps predecessor [%d, %d)",
					rec.ValidFromUs, rec.ValidUntilUs, prev.ValidFromUs, prev.ValidUntilUs),
			})
		}
	}
	return violations
}
