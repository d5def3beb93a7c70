package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/perfpipe/pkg/metric"
	"github.com/ethpandaops/perfpipe/pkg/perfstat"
)

var parseTrials string

var parseCmd = &cobra.Command{
	Use:   "parse <perf.csv>",
	Short: "Extract counters from a perf stat dump",
	Long: `Reads a perf stat -x, dump, extracts the tracked counters, derives IPC and
the per-trial metrics and prints them as KEY=value assignments on stdout.
Counters the host could not measure print as NA.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		samples, err := perfstat.ReadDumpFile(args[0])
		if err != nil {
			return err
		}

		counters := perfstat.Extract(samples)
		counters.Derive(metric.Parse(parseTrials))

		perfstat.LogUnavailable(cmd.Context(), log, counters)

		fmt.Println(counters.Shell())

		return nil
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseTrials, "trials", "", "number of trials the benchmark ran")
	_ = parseCmd.MarkFlagRequired("trials")

	rootCmd.AddCommand(parseCmd)
}
