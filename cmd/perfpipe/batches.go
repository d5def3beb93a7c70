package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var batchesStore string

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "List batches appended to the historical store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		// An empty path lists every store.
		var path string

		if batchesStore != "all" {
			path = batchesStore
			if path == "" {
				path = cfg.Storage.DBPath
			}

			if path, err = filepath.Abs(path); err != nil {
				return fmt.Errorf("resolving store path: %w", err)
			}
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

		batches, err := l.ListBatches(cmd.Context(), path)
		if err != nil {
			return err
		}

		if len(batches) == 0 {
			log.Info("No batches recorded")

			return nil
		}

		fmt.Printf("%-8s %-20s %8s %10s  %-20s %s\n", "VERSION", "BATCH", "ROWS", "DUPLICATES", "APPENDED", "STORE")

		for _, b := range batches {
			fmt.Printf("%-8d %-20s %8d %10d  %-20s %s\n",
				b.StoreVersion, b.BatchID, b.RowCount, b.Duplicates,
				b.AppendedAt.UTC().Format(time.DateTime), b.StorePath)
		}

		return nil
	},
}

func init() {
	batchesCmd.Flags().StringVar(&batchesStore, "store", "",
		`store path to list (default: storage.db_path, "all" for every store)`)

	rootCmd.AddCommand(batchesCmd)
}
