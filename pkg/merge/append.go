package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/perfpipe/pkg/cast"
	"github.com/ethpandaops/perfpipe/pkg/columnar"
	"github.com/ethpandaops/perfpipe/pkg/fsutil"
	"github.com/ethpandaops/perfpipe/pkg/ledger"
	"github.com/ethpandaops/perfpipe/pkg/schema"
	"github.com/ethpandaops/perfpipe/pkg/table"
)

// AppendResult summarizes one append.
type AppendResult struct {
	// Created is true when the batch became the store.
	Created    bool
	Appended   int
	Duplicates int
	TotalRows  int
	// Version is the store version after the append. It is unchanged when
	// every row was a duplicate.
	Version int64
}

// AppendOptions bounds the retry loop around a conflicting append.
type AppendOptions struct {
	Attempts uint
	Delay    time.Duration
}

// Appender appends batches to the historical store.
type Appender struct {
	log    logrus.FieldLogger
	store  *columnar.Store
	ledger ledger.Store
	schema *schema.Schema
	opts   AppendOptions
}

// NewAppender creates an Appender. Batches are validated against s.
func NewAppender(
	log logrus.FieldLogger,
	store *columnar.Store,
	l ledger.Store,
	s *schema.Schema,
	opts AppendOptions,
) *Appender {
	if opts.Attempts == 0 {
		opts.Attempts = 1
	}

	return &Appender{
		log:    log.WithField("component", "appender"),
		store:  store,
		ledger: l,
		schema: s,
		opts:   opts,
	}
}

// Append adds batch to the store at dbPath. Rows whose (BatchID, Method,
// Timestamp) already exist in the store are dropped, so appending the same
// batch twice adds nothing the second time. Concurrent appenders are
// serialized through the ledger; a lost race re-reads the store and tries
// again up to the configured number of attempts.
func (a *Appender) Append(ctx context.Context, dbPath string, batch *table.Table) (*AppendResult, error) {
	validated, err := cast.Table(batch, a.schema)
	if err != nil {
		return nil, fmt.Errorf("validating batch: %w", err)
	}

	var result *AppendResult

	err = retry.Do(
		func() error {
			r, err := a.appendOnce(ctx, dbPath, validated)
			if err != nil {
				return err
			}

			result = r

			return nil
		},
		retry.Context(ctx),
		retry.Attempts(a.opts.Attempts),
		retry.Delay(a.opts.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ledger.ErrVersionConflict)
		}),
		retry.OnRetry(func(n uint, err error) {
			a.log.WithError(err).WithFields(logrus.Fields{
				"attempt": n + 1,
				"store":   dbPath,
			}).Warn("Store changed during append, retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("appending to %s: %w", dbPath, err)
	}

	a.log.WithFields(logrus.Fields{
		"store":      dbPath,
		"created":    result.Created,
		"appended":   result.Appended,
		"duplicates": result.Duplicates,
		"total":      result.TotalRows,
		"version":    result.Version,
	}).Info("Appended batch to store")

	return result, nil
}

func (a *Appender) appendOnce(ctx context.Context, dbPath string, batch *table.Table) (*AppendResult, error) {
	version, err := a.ledger.Version(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	exists, err := fsutil.Exists(dbPath)
	if err != nil {
		return nil, fmt.Errorf("checking store: %w", err)
	}

	result := &AppendResult{Version: version}

	var combined *table.Table

	if !exists {
		result.Created = true
		combined = batch
	} else {
		hist, err := columnar.Read(dbPath)
		if err != nil {
			return nil, err
		}

		fresh := withoutExisting(hist, batch)
		result.Duplicates = batch.NumRows() - fresh.NumRows()

		if fresh.NumRows() == 0 {
			result.TotalRows = hist.NumRows()

			return result, nil
		}

		combined, err = table.Concat(hist, fresh)
		if err != nil {
			return nil, fmt.Errorf("combining store and batch: %w", err)
		}
	}

	sorted, err := combined.SortByTime(schema.FieldTimestamp)
	if err != nil {
		return nil, err
	}

	result.Appended = batch.NumRows() - result.Duplicates
	result.TotalRows = sorted.NumRows()

	tmp, err := a.store.WriteTemp(dbPath, sorted)
	if err != nil {
		return nil, err
	}

	next, err := a.ledger.Commit(ctx, &ledger.Commit{
		StorePath:  dbPath,
		BatchID:    BatchID(batch),
		Expected:   version,
		TotalRows:  int64(result.TotalRows),
		Appended:   int64(result.Appended),
		Duplicates: int64(result.Duplicates),
	}, func() error {
		return fsutil.Replace(tmp, dbPath)
	})
	if err != nil {
		_ = os.Remove(tmp)

		return nil, err
	}

	result.Version = next

	return result, nil
}

// rowKey identifies a row for deduplication.
type rowKey struct {
	batchID string
	method  string
	ts      int64
	hasTS   bool
}

func keyOf(t *table.Table, i int) rowKey {
	k := rowKey{}
	k.batchID, _ = t.Value(schema.FieldBatchID, i).(string)
	k.method, _ = t.Value(schema.FieldMethod, i).(string)

	if ts, ok := t.Value(schema.FieldTimestamp, i).(time.Time); ok {
		k.ts = ts.UnixMilli()
		k.hasTS = true
	}

	return k
}

// withoutExisting returns the rows of batch whose key is not in hist.
func withoutExisting(hist, batch *table.Table) *table.Table {
	seen := make(map[rowKey]struct{}, hist.NumRows())
	for i := 0; i < hist.NumRows(); i++ {
		seen[keyOf(hist, i)] = struct{}{}
	}

	return batch.Filter(func(i int) bool {
		_, dup := seen[keyOf(batch, i)]

		return !dup
	})
}

// BatchID returns the batch ID of the first row of t, or "" when t is empty.
func BatchID(t *table.Table) string {
	if t.NumRows() == 0 {
		return ""
	}

	id, _ := t.Value(schema.FieldBatchID, 0).(string)

	return id
}
