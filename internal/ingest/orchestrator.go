// Package ingest sequences one file through the ingestion state machine:
// gate, parse, lineage, partition, PIT check, write, manifest commit.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"marketlake/internal/dimension"
	"marketlake/internal/lineage"
	"marketlake/internal/manifest"
	"marketlake/internal/partition"
	"marketlake/internal/pit"
	"marketlake/logger"
	"marketlake/models"
)

// Options control one IngestFile call.
type Options struct {
	// Force reprocesses a file that already succeeded. Lineage stays stable:
	// the previously assigned file id is reused.
	Force bool

	// DryRun runs every stage through the PIT check but skips the table
	// writer and the manifest commit, returning what would happen.
	DryRun bool
}

// Deps are the orchestrator's collaborators, passed in once at construction
// so every dependency is visible in the signature.
type Deps struct {
	Gate            *manifest.Gate
	Parser          Parser
	Partitioner     *partition.Partitioner
	Resolver        *dimension.Resolver
	TableWriter     TableWriter
	Quarantine      QuarantineSink
	EventTable      string
	QuarantineTable string
}

// Orchestrator is the single place that converts stage failures into
// manifest commits. No component below it touches the manifest.
type Orchestrator struct {
	deps Deps
	log  *logger.Log
}

func New(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps, log: logger.GetLogger()}
}

// IngestFile processes one bronze file end to end. Data-related failures are
// encoded in the returned result; the error return is reserved for
// configuration errors, manifest store failures, and commit conflicts
// ("another worker owns this file").
func (o *Orchestrator) IngestFile(ctx context.Context, meta models.BronzeFileMetadata, opts Options) (models.IngestionResult, error) {
	identity := meta.Identity()
	log := o.log.WithComponent("ingest").WithFields(logger.Fields{
		"vendor":      meta.Vendor,
		"data_type":   meta.DataType,
		"bronze_path": meta.BronzePath,
	})

	dec, err := o.deps.Gate.Decide(identity, opts.Force)
	if err != nil {
		return models.IngestionResult{}, err
	}

	switch dec.Kind {
	case manifest.DecisionBlocked:
		return models.IngestionResult{}, fmt.Errorf("ingest blocked: %s", dec.Reason)
	case manifest.DecisionSkip:
		log.WithFields(logger.Fields{"file_id": dec.PriorFileID}).Info("file already ingested, skipping")
		logger.IncrementFileSkipped()
		result := models.IngestionResult{Status: models.StatusSuccess, FileID: dec.PriorFileID, Skipped: true}
		if dec.PriorResult != nil {
			result = *dec.PriorResult
			result.Skipped = true
		}
		return result, nil
	}

	// The file id used to stamp lineage. It only becomes durable at commit;
	// a retry that never committed sees no prior id and picks a fresh one.
	fileID := dec.PriorFileID
	if fileID == "" {
		fileID = uuid.NewString()
	}
	log = log.WithFields(logger.Fields{"file_id": fileID, "attempt": dec.Attempts + 1})

	if err := ctx.Err(); err != nil {
		return o.commitFailed(identity, dec, fileID, 0, err)
	}

	rawRows, err := o.deps.Parser.Parse(ctx, meta)
	if err != nil {
		log.WithError(err).Warn("parse failed")
		return o.commitFailed(identity, dec, fileID, 0, err)
	}

	if err := ctx.Err(); err != nil {
		return o.commitFailed(identity, dec, fileID, len(rawRows), err)
	}

	rows := lineage.Assign(fileID, rawRows)

	if err := ctx.Err(); err != nil {
		return o.commitFailed(identity, dec, fileID, len(rows), err)
	}

	rows, err = o.deps.Partitioner.Partition(rows, meta.Exchange)
	if err != nil {
		// Unknown exchange is fatal misconfiguration: commit the failed
		// attempt and surface the error to the caller as well.
		result, commitErr := o.commitFailed(identity, dec, fileID, len(rawRows), err)
		if commitErr != nil {
			return result, commitErr
		}
		return result, err
	}

	if err := ctx.Err(); err != nil {
		return o.commitFailed(identity, dec, fileID, len(rows), err)
	}

	valid, quarantined := pit.Check(rows, o.deps.Resolver)

	result := models.IngestionResult{
		FileID:            fileID,
		RowsParsed:        len(rawRows),
		RowsQuarantined:   len(quarantined),
		QuarantineReasons: pit.ReasonCounts(quarantined),
	}

	if opts.DryRun {
		result.DryRun = true
		result.Status = models.StatusSuccess
		if len(quarantined) > 0 && len(valid) == 0 {
			result.Status = models.StatusQuarantined
		}
		result.RowsWritten = len(valid)
		result.PartitionsTouched = partitionKeys(groupByPartition(valid))
		log.WithFields(logger.Fields{
			"rows_parsed":      result.RowsParsed,
			"rows_valid":       len(valid),
			"rows_quarantined": len(quarantined),
		}).Info("dry run complete, no writes performed")
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return o.commitFailed(identity, dec, fileID, len(rawRows), err)
	}

	written, partitions, err := o.writeValid(ctx, valid)
	result.RowsWritten = written
	result.PartitionsTouched = partitions
	if err != nil {
		log.WithError(err).Error("table write failed")
		return o.commitFailed(identity, dec, fileID, len(rawRows), err)
	}

	if err := o.writeQuarantined(ctx, quarantined); err != nil {
		log.WithError(err).Error("quarantine write failed")
		return o.commitFailed(identity, dec, fileID, len(rawRows), err)
	}

	result.Status = models.StatusSuccess
	if len(quarantined) > 0 && len(valid) == 0 {
		// Nothing got through; distinct from success so tooling can tell.
		result.Status = models.StatusQuarantined
	}

	record, err := o.deps.Gate.Commit(identity, dec, manifest.Outcome{
		Status: result.Status,
		FileID: fileID,
		Result: &result,
	})
	if err != nil {
		if errors.Is(err, manifest.ErrConflict) {
			log.Warn("manifest commit raced, another worker owns this file")
			return models.IngestionResult{}, fmt.Errorf("concurrent ingestion of %s: %w", meta.BronzePath, err)
		}
		return models.IngestionResult{}, err
	}
	result.FileID = record.FileID

	logger.IncrementFileIngested()
	logger.AddRowsWritten(result.RowsWritten)
	logger.AddRowsQuarantined(result.RowsQuarantined)
	o.log.LogMetric("ingest", "rows_written", int64(result.RowsWritten), "counter", logger.Fields{
		"exchange":  meta.Exchange,
		"data_type": meta.DataType,
	})

	log.WithFields(logger.Fields{
		"status":           result.Status,
		"rows_parsed":      result.RowsParsed,
		"rows_written":     result.RowsWritten,
		"rows_quarantined": result.RowsQuarantined,
		"partitions":       len(result.PartitionsTouched),
	}).Info("file ingested")

	return result, nil
}

// commitFailed records a failed attempt and returns the failed result. The
// stage error stays inside the result; only store or commit failures escape
// as errors.
func (o *Orchestrator) commitFailed(identity models.FileIdentity, dec manifest.Decision, fileID string, rowsParsed int, cause error) (models.IngestionResult, error) {
	result := models.IngestionResult{
		Status:     models.StatusFailed,
		FileID:     fileID,
		RowsParsed: rowsParsed,
		LastError:  cause.Error(),
	}

	_, err := o.deps.Gate.Commit(identity, dec, manifest.Outcome{
		Status: models.StatusFailed,
		FileID: fileID,
		Result: &result,
		Err:    cause.Error(),
	})
	if err != nil {
		if errors.Is(err, manifest.ErrConflict) {
			return models.IngestionResult{}, fmt.Errorf("concurrent ingestion of %s: %w", identity.BronzePath, err)
		}
		return models.IngestionResult{}, err
	}

	logger.IncrementFileFailed()
	return result, nil
}

// writeValid writes the valid rows partition by partition in deterministic
// partition order and reports how many rows were written.
func (o *Orchestrator) writeValid(ctx context.Context, valid []models.EventRow) (int, []models.PartitionKey, error) {
	groups := groupByPartition(valid)
	keys := partitionKeys(groups)

	written := 0
	for _, key := range keys {
		receipt, err := o.deps.TableWriter.WritePartitioned(ctx, o.deps.EventTable, key, groups[key])
		if err != nil {
			return written, keys, err
		}
		written += receipt.Rows
	}
	return written, keys, nil
}

func (o *Orchestrator) writeQuarantined(ctx context.Context, quarantined []models.QuarantinedRow) error {
	if len(quarantined) == 0 {
		return nil
	}
	groups := make(map[models.PartitionKey][]models.QuarantinedRow)
	for _, q := range quarantined {
		groups[q.Row.Partition] = append(groups[q.Row.Partition], q)
	}

	keys := make([]models.PartitionKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sortPartitionKeys(keys)

	for _, key := range keys {
		if _, err := o.deps.Quarantine.WriteQuarantined(ctx, o.deps.QuarantineTable, key, groups[key]); err != nil {
			return err
		}
	}
	return nil
}

func groupByPartition(rows []models.EventRow) map[models.PartitionKey][]models.EventRow {
	groups := make(map[models.PartitionKey][]models.EventRow)
	for _, row := range rows {
		groups[row.Partition] = append(groups[row.Partition], row)
	}
	return groups
}

func partitionKeys(groups map[models.PartitionKey][]models.EventRow) []models.PartitionKey {
	keys := make([]models.PartitionKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sortPartitionKeys(keys)
	return keys
}

func sortPartitionKeys(keys []models.PartitionKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Exchange != keys[j].Exchange {
			return keys[i].Exchange < keys[j].Exchange
		}
		return keys[i].TradingDate < keys[j].TradingDate
	})
}
