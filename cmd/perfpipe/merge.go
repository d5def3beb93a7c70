package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/perfpipe/pkg/cast"
	"github.com/ethpandaops/perfpipe/pkg/fsutil"
	"github.com/ethpandaops/perfpipe/pkg/merge"
	"github.com/ethpandaops/perfpipe/pkg/schema"
)

var (
	mergeNoAppend bool
	mergeDBPath   string
)

var mergeCmd = &cobra.Command{
	Use:   "merge <batch_dir> <output>",
	Short: "Merge a batch's trial files and append them to the historical store",
	Long: `Reads every perf_results_*.parquet file in batch_dir, merges them into a
single table sorted by Timestamp, writes it to output and appends the batch
to the historical store. Only run it after every trial of the batch has
been written.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		store, err := newColumnarStore(cfg)
		if err != nil {
			return err
		}

		batchDir, output := args[0], args[1]

		batch, err := merge.NewMerger(log, store).MergeDir(cmd.Context(), batchDir, output)
		if errors.Is(err, merge.ErrNoInput) {
			log.WithField("dir", batchDir).Info("No Parquet files found, nothing to merge")

			return nil
		}

		if err != nil {
			return err
		}

		if mergeNoAppend {
			return nil
		}

		dbPath := cfg.Storage.DBPath
		if mergeDBPath != "" {
			dbPath = mergeDBPath
		}

		dbPath, err = filepath.Abs(dbPath)
		if err != nil {
			return fmt.Errorf("resolving store path: %w", err)
		}

		owner, err := resultsOwner(cfg)
		if err != nil {
			return err
		}

		if err := fsutil.MkdirAll(filepath.Dir(dbPath), 0o755, owner); err != nil {
			return fmt.Errorf("creating store directory: %w", err)
		}

		l, err := openLedger(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		defer func() {
			if err := l.Stop(); err != nil {
				log.WithError(err).Warn("Failed to stop ledger")
			}
		}()

		if id := merge.BatchID(batch); id != "" {
			seen, err := l.HasBatch(cmd.Context(), dbPath, id)
			if err != nil {
				return err
			}

			if seen {
				log.WithField("batch", id).Warn("Batch was appended before, existing rows will be skipped")
			}
		}

		appender := merge.NewAppender(log, store, l, schema.Benchmark(), merge.AppendOptions{
			Attempts: uint(cfg.Ledger.AppendAttempts), //nolint:gosec // validated positive
			Delay:    cfg.Ledger.AppendDelay,
		})

		if _, err := appender.Append(cmd.Context(), dbPath, batch); err != nil {
			logMismatch(err)

			return err
		}

		return nil
	},
}

// logMismatch logs the column lists of a schema mismatch for diagnosis.
func logMismatch(err error) {
	var mismatch *cast.SchemaMismatchError
	if !errors.As(err, &mismatch) {
		return
	}

	log.WithFields(logrus.Fields{
		"expected": mismatch.Expected,
		"found":    mismatch.Found,
		"missing":  mismatch.Missing,
	}).Error("Schema mismatch")
}

func init() {
	mergeCmd.Flags().BoolVar(&mergeNoAppend, "no-append", false, "only write the merged batch file")
	mergeCmd.Flags().StringVar(&mergeDBPath, "db-path", "", "historical store path (default: storage.db_path)")

	rootCmd.AddCommand(mergeCmd)
}
