// Package trial builds and writes the per-trial benchmark record: one row
// per (method, run) in its own Parquet file inside the batch directory.
package trial

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/perfpipe/pkg/cast"
	"github.com/ethpandaops/perfpipe/pkg/columnar"
	"github.com/ethpandaops/perfpipe/pkg/metric"
	"github.com/ethpandaops/perfpipe/pkg/perfstat"
	"github.com/ethpandaops/perfpipe/pkg/schema"
)

// ErrBatchDirNotFound is returned when no directory exists for a batch ID.
var ErrBatchDirNotFound = errors.New("batch directory not found")

// FilePrefix starts every per-trial file name.
const FilePrefix = "perf_results_"

// Record is one trial's identifiers and counters. Identifier fields hold the
// raw text handed over by the benchmark driver; they are typed by the caster.
type Record struct {
	Timestamp  string
	BatchID    string
	Method     string
	Trials     string
	WallTimeS  string
	WallTimeNS string
	Counters   perfstat.Counters
}

// Row renders the record as a raw text row with every benchmark field.
// Unavailable counters and rates render as the sentinel.
func (r *Record) Row() map[string]string {
	c := r.Counters.Get

	return map[string]string{
		schema.FieldTimestamp:          r.Timestamp,
		schema.FieldBatchID:            r.BatchID,
		schema.FieldMethod:             r.Method,
		schema.FieldTrials:             r.Trials,
		schema.FieldCycles:             c(perfstat.KeyCycles).String(),
		schema.FieldInstructions:       c(perfstat.KeyInstr).String(),
		schema.FieldIPC:                c(perfstat.KeyIPC).String(),
		schema.FieldWallTimeS:          r.WallTimeS,
		schema.FieldWallTimeNS:         r.WallTimeNS,
		schema.FieldCacheLoads:         c(perfstat.KeyCacheLoads).String(),
		schema.FieldCacheMisses:        c(perfstat.KeyCacheMiss).String(),
		schema.FieldCacheMissPct:       rate(c(perfstat.KeyCacheMiss), c(perfstat.KeyCacheLoads)),
		schema.FieldL1Loads:            c(perfstat.KeyL1Loads).String(),
		schema.FieldL1Misses:           c(perfstat.KeyL1Misses).String(),
		schema.FieldL1MissPct:          rate(c(perfstat.KeyL1Misses), c(perfstat.KeyL1Loads)),
		schema.FieldL2Loads:            c(perfstat.KeyL2Loads).String(),
		schema.FieldL2Misses:           c(perfstat.KeyL2Misses).String(),
		schema.FieldL2MissPct:          rate(c(perfstat.KeyL2Misses), c(perfstat.KeyL2Loads)),
		schema.FieldL3Loads:            c(perfstat.KeyL3Loads).String(),
		schema.FieldL3Misses:           c(perfstat.KeyL3Misses).String(),
		schema.FieldL3MissPct:          rate(c(perfstat.KeyL3Misses), c(perfstat.KeyL3Loads)),
		schema.FieldTLBLoads:           c(perfstat.KeyTLBLoads).String(),
		schema.FieldTLBMisses:          c(perfstat.KeyTLBMisses).String(),
		schema.FieldTLBMissPct:         rate(c(perfstat.KeyTLBMisses), c(perfstat.KeyTLBLoads)),
		schema.FieldBranchInstructions: c(perfstat.KeyBranchInstr).String(),
		schema.FieldBranchMisses:       c(perfstat.KeyBranchMisses).String(),
		schema.FieldBranchMissPct:      rate(c(perfstat.KeyBranchMisses), c(perfstat.KeyBranchInstr)),
		schema.FieldMissesPerTrial:     c(perfstat.KeyMissPerTrial).String(),
		schema.FieldCyclesPerTrial:     c(perfstat.KeyCyclesPerTrial).String(),
	}
}

func rate(misses, loads metric.Value) string {
	return metric.Percentage(misses, loads).String()
}

// FileName returns the per-trial file name. Method, timestamp and batch ID
// together keep concurrent writers on disjoint files.
func FileName(method, timestamp, batchID string) string {
	return fmt.Sprintf("%s%s_%s_%s.parquet", FilePrefix, method, timestamp, batchID)
}

// ResolveBatchDir returns the newest batch_<id>_* directory under logsDir.
// Directory names carry a sortable timestamp suffix, so newest is last.
func ResolveBatchDir(logsDir, batchID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(logsDir, "batch_"+batchID+"_*"))
	if err != nil {
		return "", fmt.Errorf("globbing batch directories: %w", err)
	}

	dirs := matches[:0]

	for _, m := range matches {
		if st, err := os.Stat(m); err == nil && st.IsDir() {
			dirs = append(dirs, m)
		}
	}

	if len(dirs) == 0 {
		return "", fmt.Errorf("%w: batch %s under %s", ErrBatchDirNotFound, batchID, logsDir)
	}

	sort.Strings(dirs)

	return dirs[len(dirs)-1], nil
}

// Writer casts records and stores them as per-trial Parquet files.
type Writer struct {
	log    logrus.FieldLogger
	store  *columnar.Store
	schema *schema.Schema
}

// NewWriter creates a Writer that validates rows against s.
func NewWriter(log logrus.FieldLogger, store *columnar.Store, s *schema.Schema) *Writer {
	return &Writer{
		log:    log.WithField("component", "trial"),
		store:  store,
		schema: s,
	}
}

// Write casts row and writes it to path.
func (w *Writer) Write(path string, row map[string]string) error {
	t, err := cast.Row(row, w.schema)
	if err != nil {
		return fmt.Errorf("casting trial row: %w", err)
	}

	if err := w.store.Write(path, t); err != nil {
		return err
	}

	w.log.WithFields(logrus.Fields{
		"path":   path,
		"method": row[schema.FieldMethod],
		"batch":  row[schema.FieldBatchID],
	}).Info("Parquet saved")

	return nil
}

// WriteRecord writes r into the batch directory under logsDir and returns
// the file path.
func (w *Writer) WriteRecord(logsDir string, r *Record) (string, error) {
	dir, err := ResolveBatchDir(logsDir, r.BatchID)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName(r.Method, r.Timestamp, r.BatchID))

	if err := w.Write(path, r.Row()); err != nil {
		return "", err
	}

	return path, nil
}
