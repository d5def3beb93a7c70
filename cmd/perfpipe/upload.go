package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/perfpipe/pkg/config"
	"github.com/ethpandaops/perfpipe/pkg/upload"
)

var (
	uploadBatchDir string
	uploadStore    bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a batch directory and the historical store to S3",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		s3cfg, err := s3Config(cfg)
		if err != nil {
			return err
		}

		if uploadBatchDir == "" && !uploadStore {
			return fmt.Errorf("nothing to upload: set --batch-dir and/or --store")
		}

		uploader, err := upload.NewS3Uploader(log, s3cfg)
		if err != nil {
			return fmt.Errorf("creating uploader: %w", err)
		}

		ctx := cmd.Context()

		if err := uploader.Preflight(ctx); err != nil {
			return fmt.Errorf("preflight check failed: %w", err)
		}

		if uploadBatchDir != "" {
			if err := uploader.Upload(ctx, uploadBatchDir); err != nil {
				return fmt.Errorf("uploading batch: %w", err)
			}
		}

		if uploadStore {
			if _, err := uploader.UploadStore(ctx, cfg.Storage.DBPath); err != nil {
				return err
			}
		}

		log.Info("Upload completed successfully")

		return nil
	},
}

var uploadListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded batch directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		s3cfg, err := s3Config(cfg)
		if err != nil {
			return err
		}

		names, err := upload.NewS3Reader(log, s3cfg).ListBatches(cmd.Context())
		if err != nil {
			return err
		}

		for _, name := range names {
			fmt.Println(name)
		}

		return nil
	},
}

var uploadFetchStoreCmd = &cobra.Command{
	Use:   "fetch-store",
	Short: "Replace the local historical store with the uploaded copy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		s3cfg, err := s3Config(cfg)
		if err != nil {
			return err
		}

		owner, err := resultsOwner(cfg)
		if err != nil {
			return err
		}

		err = upload.NewS3Reader(log, s3cfg).FetchStore(cmd.Context(), cfg.Storage.DBPath, owner)
		if errors.Is(err, upload.ErrNotFound) {
			log.WithError(err).Warn("No uploaded store found")

			return nil
		}

		return err
	},
}

func s3Config(cfg *config.Config) (*config.S3UploadConfig, error) {
	if cfg.Upload.S3 == nil || !cfg.Upload.S3.Enabled {
		return nil, fmt.Errorf("S3 upload is not configured (set upload.s3.enabled)")
	}

	return cfg.Upload.S3, nil
}

func init() {
	uploadCmd.Flags().StringVar(&uploadBatchDir, "batch-dir", "", "batch directory to upload")
	uploadCmd.Flags().BoolVar(&uploadStore, "store", false, "also upload the historical store")

	uploadCmd.AddCommand(uploadListCmd, uploadFetchStoreCmd)
	rootCmd.AddCommand(uploadCmd)
}
