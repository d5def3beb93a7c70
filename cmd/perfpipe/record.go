package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/perfpipe/pkg/metric"
	"github.com/ethpandaops/perfpipe/pkg/perfstat"
	"github.com/ethpandaops/perfpipe/pkg/schema"
	"github.com/ethpandaops/perfpipe/pkg/trial"
)

var (
	recordTimestamp  string
	recordBatchID    string
	recordMethod     string
	recordTrials     string
	recordWallTimeS  string
	recordWallTimeNS string
	recordPerfCSV    string
	recordOutPath    string

	// recordCounters holds one flag value per counter key.
	recordCounters = make(map[string]*string)
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Write one trial as a Parquet file",
	Long: `Builds the trial record from identifier flags and counter values, casts it
to the benchmark schema and writes it as a single-row Parquet file.

Counters come from --perf-csv when given; any counter flag set explicitly
overrides the extracted value. Without --out-path the file is written into
the newest batch_<batch-id>_* directory under the configured logs directory.
The written path is printed on stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		counters, err := recordCountersFrom(cmd)
		if err != nil {
			return err
		}

		store, err := newColumnarStore(cfg)
		if err != nil {
			return err
		}

		rec := &trial.Record{
			Timestamp:  recordTimestamp,
			BatchID:    recordBatchID,
			Method:     recordMethod,
			Trials:     recordTrials,
			WallTimeS:  recordWallTimeS,
			WallTimeNS: recordWallTimeNS,
			Counters:   counters,
		}

		writer := trial.NewWriter(log, store, schema.Benchmark())

		path := recordOutPath
		if path != "" {
			err = writer.Write(path, rec.Row())
		} else {
			path, err = writer.WriteRecord(cfg.Storage.LogsDir, rec)
		}

		if err != nil {
			return fmt.Errorf("writing trial: %w", err)
		}

		fmt.Println(path)

		return nil
	},
}

func recordCountersFrom(cmd *cobra.Command) (perfstat.Counters, error) {
	counters := make(perfstat.Counters)

	if recordPerfCSV != "" {
		samples, err := perfstat.ReadDumpFile(recordPerfCSV)
		if err != nil {
			return nil, err
		}

		counters = perfstat.Extract(samples)

		perfstat.LogUnavailable(cmd.Context(), log, counters)
	}

	for _, key := range perfstat.TrackedKeys() {
		if _, ok := counters[key]; !ok || cmd.Flags().Changed(counterFlag(key)) {
			counters[key] = metric.Parse(*recordCounters[key])
		}
	}

	// Derived values follow the raw counters unless given explicitly.
	counters.Derive(metric.Parse(recordTrials))

	for _, key := range perfstat.Keys() {
		if cmd.Flags().Changed(counterFlag(key)) {
			counters[key] = metric.Parse(*recordCounters[key])
		}
	}

	return counters, nil
}

func counterFlag(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

func init() {
	flags := recordCmd.Flags()

	flags.StringVar(&recordTimestamp, "timestamp", "", "trial timestamp (e.g. 2025-05-13_17-00-20)")
	flags.StringVar(&recordBatchID, "batch-id", "", "batch identifier")
	flags.StringVar(&recordMethod, "method", "", "benchmarked method name")
	flags.StringVar(&recordTrials, "trials", "", "number of trials")
	flags.StringVar(&recordWallTimeS, "wall-time-s", "", "wall time in seconds")
	flags.StringVar(&recordWallTimeNS, "wall-time-ns", "", "wall time in nanoseconds")
	flags.StringVar(&recordPerfCSV, "perf-csv", "", "perf stat -x, dump to extract counters from")
	flags.StringVar(&recordOutPath, "out-path", "", "output file (default: resolved under the logs directory)")

	for _, key := range perfstat.Keys() {
		recordCounters[key] = flags.String(counterFlag(key), metric.Sentinel, key+" value")
	}

	for _, name := range []string{"timestamp", "batch-id", "method", "trials", "wall-time-s", "wall-time-ns"} {
		_ = recordCmd.MarkFlagRequired(name)
	}

	rootCmd.AddCommand(recordCmd)
}
