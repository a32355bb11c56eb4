package dimension

import (
	"errors"
	"testing"

	"marketlake/models"
)

func entry(key string, tsUs int64, tick string) models.SnapshotEntry {
	return models.SnapshotEntry{
		NaturalKey:      key,
		ObservationTsUs: tsUs,
		Payload:         map[string]string{"tick_size": tick},
	}
}

func TestBootstrapAndResolve(t *testing.T) {
	r := NewResolver()
	if err := r.Bootstrap([]models.SnapshotEntry{entry("AAAUSDT", 1000, "0.01")}); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	res := r.Resolve("AAAUSDT", 1000)
	if !res.Covered {
		t.Fatal("timestamp at window start must be covered")
	}
	if res.ValidFromUs != 1000 {
		t.Errorf("resolved version = %d, want 1000", res.ValidFromUs)
	}
	if res.Payload["tick_size"] != "0.01" {
		t.Errorf("payload = %v", res.Payload)
	}

	if res := r.Resolve("AAAUSDT", 999); res.Covered {
		t.Error("timestamp before first window must be uncovered")
	}
	if res := r.Resolve("ZZZUSDT", 1000); res.Covered {
		t.Error("unknown key must be uncovered")
	}
}

func TestUpsertClosesOpenWindowAtBoundary(t *testing.T) {
	r := NewResolver()
	if err := r.Bootstrap([]models.SnapshotEntry{entry("AAAUSDT", 1000, "0.01")}); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if err := r.Upsert([]models.SnapshotEntry{entry("AAAUSDT", 5000, "0.001")}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Just before the boundary resolves to the old version.
	res := r.Resolve("AAAUSDT", 4999)
	if !res.Covered || res.ValidFromUs != 1000 || res.Payload["tick_size"] != "0.01" {
		t.Errorf("Resolve(4999) = %+v, want version 1000", res)
	}

	// Exactly at the boundary resolves to the new version (half-open windows).
	res = r.Resolve("AAAUSDT", 5000)
	if !res.Covered || res.ValidFromUs != 5000 || res.Payload["tick_size"] != "0.001" {
		t.Errorf("Resolve(5000) = %+v, want version 5000", res)
	}

	history := r.History("AAAUSDT")
	if len(history) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(history))
	}
	if history[0].ValidUntilUs != 5000 {
		t.Errorf("old window closed at %d, want 5000", history[0].ValidUntilUs)
	}
	if !history[1].IsCurrent() {
		t.Error("new window must be open")
	}
}

func TestUpsertUnknownKeyCreatesFirstWindow(t *testing.T) {
	r := NewResolver()
	if err := r.Upsert([]models.SnapshotEntry{entry("NEWUSDT", 2000, "0.1")}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	res := r.Resolve("NEWUSDT", 2500)
	if !res.Covered || res.ValidFromUs != 2000 {
		t.Errorf("Resolve = %+v, want coverage from 2000", res)
	}
}

func TestUpsertRejectsNonMonotonicObservation(t *testing.T) {
	r := NewResolver()
	if err := r.Bootstrap([]models.SnapshotEntry{entry("AAAUSDT", 1000, "0.01")}); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	err := r.Upsert([]models.SnapshotEntry{entry("AAAUSDT", 1000, "0.001")})
	var nonMono *NonMonotonicUpdateError
	if !errors.As(err, &nonMono) {
		t.Fatalf("expected NonMonotonicUpdateError, got %v", err)
	}
	if nonMono.NaturalKey != "AAAUSDT" || nonMono.BoundaryTsUs != 1000 {
		t.Errorf("error missing context: %+v", nonMono)
	}

	// The failed call must not have touched history.
	if len(r.History("AAAUSDT")) != 1 {
		t.Error("rejected upsert mutated history")
	}
}

func TestUpsertAllOrNothing(t *testing.T) {
	r := NewResolver()
	if err := r.Bootstrap([]models.SnapshotEntry{
		entry("AAAUSDT", 1000, "0.01"),
		entry("BBBUSDT", 1000, "0.1"),
	}); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	// Second entry is invalid; the first must not be applied either.
	err := r.Upsert([]models.SnapshotEntry{
		entry("AAAUSDT", 5000, "0.001"),
		entry("BBBUSDT", 500, "0.2"),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(r.History("AAAUSDT")) != 1 {
		t.Error("partial upsert was applied")
	}
}

func TestBootstrapRejectsDuplicates(t *testing.T) {
	r := NewResolver()
	err := r.Bootstrap([]models.SnapshotEntry{
		entry("AAAUSDT", 1000, "0.01"),
		entry("AAAUSDT", 2000, "0.02"),
	})
	var dup *DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateKeyError, got %v", err)
	}
	if dup.NaturalKey != "AAAUSDT" {
		t.Errorf("error names wrong key: %q", dup.NaturalKey)
	}
	if len(r.Keys()) != 0 {
		t.Error("failed bootstrap left history behind")
	}
}

func TestBootstrapRejectsExistingHistory(t *testing.T) {
	r := NewResolver()
	if err := r.Bootstrap([]models.SnapshotEntry{entry("AAAUSDT", 1000, "0.01")}); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	err := r.Bootstrap([]models.SnapshotEntry{entry("AAAUSDT", 2000, "0.02")})
	var dup *DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateKeyError, got %v", err)
	}
}

func TestRetireCreatesCoverageGap(t *testing.T) {
	r := NewResolver()
	if err := r.Bootstrap([]models.SnapshotEntry{entry("AAAUSDT", 1000, "0.01")}); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if err := r.Retire("AAAUSDT", 3000); err != nil {
		t.Fatalf("Retire failed: %v", err)
	}

	if res := r.Resolve("AAAUSDT", 2999); !res.Covered {
		t.Error("timestamp inside closed window must be covered")
	}
	if res := r.Resolve("AAAUSDT", 3000); res.Covered {
		t.Error("timestamp at retirement instant must be uncovered")
	}

	// Relisting later reopens with a gap; the gap stays uncovered.
	if err := r.Upsert([]models.SnapshotEntry{entry("AAAUSDT", 7000, "0.001")}); err != nil {
		t.Fatalf("Upsert after retire failed: %v", err)
	}
	if res := r.Resolve("AAAUSDT", 5000); res.Covered {
		t.Error("timestamp inside gap must stay uncovered")
	}
	if res := r.Resolve("AAAUSDT", 7000); !res.Covered {
		t.Error("timestamp after relisting must be covered")
	}
}

func TestRetireIdempotentAndBounded(t *testing.T) {
	r := NewResolver()
	if err := r.Retire("GHOST", 1000); err != nil {
		t.Errorf("retiring unknown key must be a no-op, got %v", err)
	}

	if err := r.Bootstrap([]models.SnapshotEntry{entry("AAAUSDT", 1000, "0.01")}); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if err := r.Retire("AAAUSDT", 1000); err == nil {
		t.Error("retiring at the window start must be rejected")
	}
	if err := r.Retire("AAAUSDT", 2000); err != nil {
		t.Fatalf("Retire failed: %v", err)
	}
	if err := r.Retire("AAAUSDT", 5000); err != nil {
		t.Errorf("retiring an already-retired key must be a no-op, got %v", err)
	}
	if len(r.History("AAAUSDT")) != 1 {
		t.Error("repeated retire changed history")
	}
}

func TestUpsertReopenCannotOverlapClosedHistory(t *testing.T) {
	r := NewResolver()
	if err := r.Bootstrap([]models.SnapshotEntry{entry("AAAUSDT", 1000, "0.01")}); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if err := r.Retire("AAAUSDT", 3000); err != nil {
		t.Fatalf("Retire failed: %v", err)
	}

	err := r.Upsert([]models.SnapshotEntry{entry("AAAUSDT", 2500, "0.001")})
	var nonMono *NonMonotonicUpdateError
	if !errors.As(err, &nonMono) {
		t.Fatalf("expected NonMonotonicUpdateError, got %v", err)
	}

	// Reopening exactly at the closed boundary is legal.
	if err := r.Upsert([]models.SnapshotEntry{entry("AAAUSDT", 3000, "0.001")}); err != nil {
		t.Errorf("reopen at boundary failed: %v", err)
	}
}

func TestValidateCleanHistory(t *testing.T) {
	r := NewResolver()
	if err := r.Bootstrap([]models.SnapshotEntry{
		entry("AAAUSDT", 1000, "0.01"),
		entry("BBBUSDT", 1000, "0.1"),
	}); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if err := r.Upsert([]models.SnapshotEntry{entry("AAAUSDT", 5000, "0.001")}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := r.Retire("BBBUSDT", 4000); err != nil {
		t.Fatalf("Retire failed: %v", err)
	}

	if violations := r.Validate(); len(violations) != 0 {
		t.Errorf("clean history reported violations: %v", violations)
	}
}

func TestValidateEnumeratesAllViolations(t *testing.T) {
	r := NewResolver()

	// Corrupt histories injected directly; the public API cannot produce them.
	r.histories["AAAUSDT"] = []models.DimensionRecord{
		{NaturalKey: "AAAUSDT", ValidFromUs: 1000, ValidUntilUs: models.OpenValidUntil},
		{NaturalKey: "AAAUSDT", ValidFromUs: 2000, ValidUntilUs: models.OpenValidUntil},
	}
	r.histories["BBBUSDT"] = []models.DimensionRecord{
		{NaturalKey: "BBBUSDT", ValidFromUs: 1000, ValidUntilUs: 3000},
		{NaturalKey: "BBBUSDT", ValidFromUs: 2000, ValidUntilUs: 2000},
	}

	violations := r.Validate()
	kinds := map[ViolationKind]int{}
	for _, v := range violations {
		kinds[v.Kind]++
	}
	if kinds[ViolationMultipleOpen] != 1 {
		t.Errorf("expected one multiple_open violation, got %d", kinds[ViolationMultipleOpen])
	}
	// Both corrupt keys overlap: the double-open window and the window
	// starting inside its closed predecessor.
	if kinds[ViolationOverlap] != 2 {
		t.Errorf("expected two overlap violations, got %d", kinds[ViolationOverlap])
	}
	if kinds[ViolationEmptyWindow] != 1 {
		t.Errorf("expected one empty_window violation, got %d", kinds[ViolationEmptyWindow])
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	r := NewResolver()
	if err := r.Bootstrap([]models.SnapshotEntry{entry("AAAUSDT", 1000, "0.01")}); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	history := r.History("AAAUSDT")
	history[0].ValidFromUs = 999999

	if r.History("AAAUSDT")[0].ValidFromUs != 1000 {
		t.Error("History exposed internal state")
	}
}

func TestKeysSorted(t *testing.T) {
	r := NewResolver()
	if err := r.Bootstrap([]models.SnapshotEntry{
		entry("ZZZUSDT", 1000, "1"),
		entry("AAAUSDT", 1000, "1"),
		entry("MMMUSDT", 1000, "1"),
	}); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	keys := r.Keys()
	want := []string{"AAAUSDT", "MMMUSDT", "ZZZUSDT"}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
}
