// Package merge combines per-trial files into a batch and appends batches to
// the historical store.
package merge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/perfpipe/pkg/columnar"
	"github.com/ethpandaops/perfpipe/pkg/schema"
	"github.com/ethpandaops/perfpipe/pkg/table"
	"github.com/ethpandaops/perfpipe/pkg/trial"
)

// ErrNoInput is returned when a batch directory holds no per-trial files.
// It is not a failure: the run simply produced nothing to merge.
var ErrNoInput = errors.New("no per-trial files found")

// Pattern matches per-trial file names inside a batch directory.
const Pattern = trial.FilePrefix + "*.parquet"

// Discover returns the per-trial files in batchDir sorted by name. output is
// excluded so that re-running a merge into the same directory never reads
// its own previous result.
func Discover(batchDir, output string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(batchDir, Pattern))
	if err != nil {
		return nil, fmt.Errorf("globbing %s: %w", batchDir, err)
	}

	outAbs, _ := filepath.Abs(output)
	files := make([]string, 0, len(matches))

	for _, m := range matches {
		if abs, _ := filepath.Abs(m); output != "" && abs == outAbs {
			continue
		}

		files = append(files, m)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInput, batchDir)
	}

	sort.Strings(files)

	return files, nil
}

// Merger builds batch files.
type Merger struct {
	log   logrus.FieldLogger
	store *columnar.Store
}

// NewMerger creates a Merger writing through store.
func NewMerger(log logrus.FieldLogger, store *columnar.Store) *Merger {
	return &Merger{
		log:   log.WithField("component", "merger"),
		store: store,
	}
}

// Merge reads files concurrently, unions them in input order, sorts by
// timestamp and writes the result to output. Rows with equal timestamps keep
// their input order.
//
// Merge trusts that every per-trial file of the run already exists; running
// it early produces a partial batch.
func (m *Merger) Merge(ctx context.Context, files []string, output string) (*table.Table, error) {
	if len(files) == 0 {
		return nil, ErrNoInput
	}

	parts := make([]*table.Table, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			t, err := columnar.Read(path)
			if err != nil {
				return err
			}

			parts[i] = t

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	combined, err := table.Concat(parts...)
	if err != nil {
		return nil, fmt.Errorf("combining per-trial files: %w", err)
	}

	sorted, err := combined.SortByTime(schema.FieldTimestamp)
	if err != nil {
		return nil, err
	}

	if err := m.store.Write(output, sorted); err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"files":  len(files),
		"rows":   sorted.NumRows(),
		"output": output,
	}).Info("Merged batch")

	return sorted, nil
}

// MergeDir discovers the per-trial files in batchDir and merges them.
func (m *Merger) MergeDir(ctx context.Context, batchDir, output string) (*table.Table, error) {
	files, err := Discover(batchDir, output)
	if err != nil {
		return nil, err
	}

	return m.Merge(ctx, files, output)
}
