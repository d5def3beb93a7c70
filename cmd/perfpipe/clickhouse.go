package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/perfpipe/pkg/clickhouse"
	"github.com/ethpandaops/perfpipe/pkg/columnar"
	"github.com/ethpandaops/perfpipe/pkg/config"
	"github.com/ethpandaops/perfpipe/pkg/schema"
)

var (
	chLoad     bool
	chTruncate bool
	chBatchID  string
	chDBPath   string
)

var clickhouseCmd = &cobra.Command{
	Use:   "clickhouse",
	Short: "Manage the ClickHouse benchmark table",
}

var clickhouseSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the database and table, optionally loading the historical store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		return withLoader(cmd.Context(), cfg, func(l *clickhouse.Loader) error {
			if err := l.Setup(cmd.Context()); err != nil {
				return err
			}

			if !chLoad {
				return nil
			}

			t, err := columnar.Read(storePath(cfg))
			if err != nil {
				return fmt.Errorf("reading store: %w", err)
			}

			_, err = l.Load(cmd.Context(), t, chTruncate)

			return err
		})
	},
}

var clickhouseInsertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Insert one batch from the historical store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		t, err := columnar.Read(storePath(cfg))
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}

		return withLoader(cmd.Context(), cfg, func(l *clickhouse.Loader) error {
			n, err := l.InsertBatch(cmd.Context(), t, chBatchID)
			if err != nil {
				return err
			}

			if n == 0 {
				log.WithField("batch", chBatchID).Warn("No rows found for batch")
			}

			return nil
		})
	},
}

func storePath(cfg *config.Config) string {
	if chDBPath != "" {
		return chDBPath
	}

	return cfg.Storage.DBPath
}

// withLoader connects, waits for the server and runs fn with a loader for
// the configured table.
func withLoader(ctx context.Context, cfg *config.Config, fn func(*clickhouse.Loader) error) error {
	conn, err := clickhouse.Open(&cfg.ClickHouse)
	if err != nil {
		return err
	}

	defer func() {
		if err := conn.Close(); err != nil {
			log.WithError(err).Warn("Failed to close ClickHouse connection")
		}
	}()

	if err := clickhouse.WaitReady(
		ctx, log, conn, cfg.ClickHouse.ReadyAttempts, cfg.ClickHouse.ReadyInterval,
	); err != nil {
		return err
	}

	return fn(clickhouse.NewLoader(
		log, conn, schema.Benchmark(), cfg.ClickHouse.Database, cfg.ClickHouse.Table,
	))
}

func init() {
	clickhouseSetupCmd.Flags().BoolVar(&chLoad, "load", false, "load the historical store after creating the table")
	clickhouseSetupCmd.Flags().BoolVar(&chTruncate, "truncate", false, "truncate the table before loading")

	clickhouseInsertCmd.Flags().StringVar(&chBatchID, "batch-id", "", "batch to insert")
	_ = clickhouseInsertCmd.MarkFlagRequired("batch-id")

	clickhouseCmd.PersistentFlags().StringVar(&chDBPath, "db-path", "", "historical store path (default: storage.db_path)")

	clickhouseCmd.AddCommand(clickhouseSetupCmd, clickhouseInsertCmd)
	rootCmd.AddCommand(clickhouseCmd)
}
