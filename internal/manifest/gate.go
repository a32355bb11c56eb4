package manifest

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"marketlake/logger"
	"marketlake/models"
)

// DecisionKind classifies the gate's answer for one file identity.
type DecisionKind string

const (
	// DecisionSkip means the file already succeeded; return the stored
	// result and do nothing else.
	DecisionSkip DecisionKind = "skip"

	// DecisionProceed means the file should be processed. A prior file id,
	// when present, must be reused so lineage stays stable across retries.
	DecisionProceed DecisionKind = "proceed"

	// DecisionBlocked means the identity cannot be processed at all.
	DecisionBlocked DecisionKind = "blocked"
)

// Decision is the read-only verdict of the gate. Version is the ledger
// version observed at decision time; Commit uses it for the
// compare-and-commit so a racing worker surfaces as ErrConflict.
type Decision struct {
	Kind        DecisionKind
	PriorFileID string
	PriorResult *models.IngestionResult
	Attempts    int
	Version     int64
	Reason      string
}

// Gate is the idempotency ledger front. Decide never writes; Commit is the
// single state transition for an identity.
type Gate struct {
	store Store
	log   *logger.Log
}

func NewGate(store Store) *Gate {
	return &Gate{store: store, log: logger.GetLogger()}
}

// Decide inspects the ledger and reports whether the identity should be
// skipped, processed, or blocked. It allocates nothing and writes nothing.
func (g *Gate) Decide(identity models.FileIdentity, force bool) (Decision, error) {
	if !identity.Complete() {
		return Decision{Kind: DecisionBlocked, Reason: "incomplete file identity"}, nil
	}

	record, version, err := g.store.Read(identity)
	if err != nil {
		return Decision{}, fmt.Errorf("gate decide: %w", err)
	}

	dec := Decision{
		Kind:        DecisionProceed,
		PriorFileID: record.FileID,
		PriorResult: record.Result,
		Attempts:    record.AttemptCount,
		Version:     version,
	}

	if version == 0 {
		// Never seen: conceptually pending, proceed with a fresh attempt.
		return dec, nil
	}

	switch record.Status {
	case models.StatusSuccess:
		if !force {
			dec.Kind = DecisionSkip
		}
	case models.StatusFailed, models.StatusQuarantined, models.StatusPending:
		// Retryable states proceed, reusing any assigned file id.
	default:
		dec.Kind = DecisionBlocked
		dec.Reason = fmt.Sprintf("unknown manifest status %q", record.Status)
	}
	return dec, nil
}

// Outcome is what one processing attempt wants to record.
type Outcome struct {
	Status models.IngestStatus
	FileID string
	Result *models.IngestionResult
	Err    string
}

// Commit atomically records the outcome of an attempt decided by dec. The
// file id is fixed here, exactly once per identity: a prior id always wins,
// otherwise the attempt's candidate id is persisted, otherwise a fresh one is
// allocated. Returns the committed record.
func (g *Gate) Commit(identity models.FileIdentity, dec Decision, outcome Outcome) (models.ManifestRecord, error) {
	fileID := dec.PriorFileID
	if fileID == "" {
		fileID = outcome.FileID
	}
	if fileID == "" {
		fileID = uuid.NewString()
	}

	record := models.ManifestRecord{
		Identity:     identity,
		Status:       outcome.Status,
		FileID:       fileID,
		AttemptCount: dec.Attempts + 1,
		LastError:    outcome.Err,
		Result:       outcome.Result,
		UpdatedAt:    time.Now().UTC(),
	}

	if err := g.store.CompareAndCommit(identity, dec.Version, record); err != nil {
		return models.ManifestRecord{}, err
	}

	g.log.WithComponent("manifest_gate").WithFields(logger.Fields{
		"bronze_path": identity.BronzePath,
		"file_id":     record.FileID,
		"status":      record.Status,
		"attempt":     record.AttemptCount,
	}).Debug("manifest committed")

	return record, nil
}
