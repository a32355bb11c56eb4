package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type partitionStat struct {
	rows  int64
	bytes int64
}

var (
	errorsIngest    int64
	errorsWriter    int64
	warnsIngest     int64
	warnsWriter     int64
	filesIngested   int64
	filesSkipped    int64
	filesFailed     int64
	rowsWritten     int64
	rowsQuarantined int64
	partitions      sync.Map // map[string]*partitionStat
)

func recordWarn(component string) {
	if strings.Contains(component, "writer") {
		atomic.AddInt64(&warnsWriter, 1)
	} else if strings.Contains(component, "ingest") {
		atomic.AddInt64(&warnsIngest, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "writer") {
		atomic.AddInt64(&errorsWriter, 1)
	} else if strings.Contains(component, "ingest") {
		atomic.AddInt64(&errorsIngest, 1)
	}
}

func IncrementFileIngested() {
	atomic.AddInt64(&filesIngested, 1)
}

func IncrementFileSkipped() {
	atomic.AddInt64(&filesSkipped, 1)
}

func IncrementFileFailed() {
	atomic.AddInt64(&filesFailed, 1)
}

func AddRowsWritten(n int) {
	atomic.AddInt64(&rowsWritten, int64(n))
}

func AddRowsQuarantined(n int) {
	atomic.AddInt64(&rowsQuarantined, int64(n))
}

// RecordPartitionWrite tracks per-partition row and byte counts for the
// periodic report.
func RecordPartitionWrite(partition string, rows int, bytes int64) {
	v, _ := partitions.LoadOrStore(partition, &partitionStat{})
	ps := v.(*partitionStat)
	atomic.AddInt64(&ps.rows, int64(rows))
	atomic.AddInt64(&ps.bytes, bytes)
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and ingestion statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	partitionData := map[string]map[string]int64{}
	partitions.Range(func(k, v any) bool {
		name := k.(string)
		ps := v.(*partitionStat)
		partitionData[name] = map[string]int64{
			"rows":  atomic.LoadInt64(&ps.rows),
			"bytes": atomic.LoadInt64(&ps.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	fields := Fields{
		"errors_ingest":    atomic.LoadInt64(&errorsIngest),
		"errors_writer":    atomic.LoadInt64(&errorsWriter),
		"warns_ingest":     atomic.LoadInt64(&warnsIngest),
		"warns_writer":     atomic.LoadInt64(&warnsWriter),
		"files_ingested":   atomic.LoadInt64(&filesIngested),
		"files_skipped":    atomic.LoadInt64(&filesSkipped),
		"files_failed":     atomic.LoadInt64(&filesFailed),
		"rows_written":     atomic.LoadInt64(&rowsWritten),
		"rows_quarantined": atomic.LoadInt64(&rowsQuarantined),
		"goroutines":       runtime.NumGoroutine(),
		"cpu_percent":      cpuPct,
		"memory_mb":        int64(memStats.Used) / 1024 / 1024,
		"disk_mb":          int64(diskStats.Used) / 1024 / 1024,
		"partitions":       partitionData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsIngest"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_ingest"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsWriter"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_writer"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("FilesIngested"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["files_ingested"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("FilesSkipped"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["files_skipped"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("FilesFailed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["files_failed"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("RowsWritten"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["rows_written"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("RowsQuarantined"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["rows_quarantined"].(int64)))},
	)

	for name, stats := range partitionData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("PartitionRows"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Partition"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["rows"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("PartitionBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Partition"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
