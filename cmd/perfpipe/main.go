package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/perfpipe/pkg/columnar"
	"github.com/ethpandaops/perfpipe/pkg/config"
	"github.com/ethpandaops/perfpipe/pkg/fsutil"
	"github.com/ethpandaops/perfpipe/pkg/ledger"
)

var (
	// Version information set at build time.
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile  string
	logLevel string
	log      *logrus.Logger
)

func main() {
	log = logrus.New()
	// Stdout carries command output such as shell assignments and paths.
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.WithError(err).Fatal("Failed to execute command")
	}
}

var rootCmd = &cobra.Command{
	Use:   "perfpipe",
	Short: "Hardware performance counter ingestion pipeline",
	Long: `Perfpipe turns perf stat counter dumps from benchmark runs into typed
Parquet records, merges them per batch, appends batches to a historical store
and loads them into ClickHouse.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}

		log.SetLevel(level)

		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("perfpipe %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (optional, PERFPIPE_* env vars also apply)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level ("+strings.Join(logLevels(), ", ")+")")

	rootCmd.AddCommand(versionCmd)
}

func logLevels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}

	return levels
}

// loadConfig loads and validates the configuration. The --log-level flag wins
// over the configured level when it was set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if !cmd.Flags().Changed("log-level") {
		if level, err := logrus.ParseLevel(cfg.Global.LogLevel); err == nil {
			log.SetLevel(level)
		}
	}

	return cfg, nil
}

func resultsOwner(cfg *config.Config) (*fsutil.OwnerConfig, error) {
	owner, err := fsutil.ParseOwner(cfg.Global.ResultsOwner)
	if err != nil {
		return nil, fmt.Errorf("parsing results_owner: %w", err)
	}

	return owner, nil
}

func newColumnarStore(cfg *config.Config) (*columnar.Store, error) {
	owner, err := resultsOwner(cfg)
	if err != nil {
		return nil, err
	}

	return columnar.NewStore(log, owner), nil
}

// openLedger starts the ledger database. Callers must Stop it.
func openLedger(ctx context.Context, cfg *config.Config) (ledger.Store, error) {
	if cfg.Ledger.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Ledger.SQLite.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	l := ledger.NewStore(log, &cfg.Ledger)
	if err := l.Start(ctx); err != nil {
		return nil, err
	}

	return l, nil
}
