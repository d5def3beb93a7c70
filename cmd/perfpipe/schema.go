package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/perfpipe/pkg/clickhouse"
	"github.com/ethpandaops/perfpipe/pkg/schema"
)

var (
	schemaFormat string

	ddlDatabase string
	ddlTable    string
)

type fieldDoc struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the benchmark record schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := schema.Benchmark().Fields()
		docs := make([]fieldDoc, len(fields))

		for i, f := range fields {
			docs[i] = fieldDoc{Name: f.Name, Type: f.Type.String(), Nullable: f.Nullable}
		}

		switch schemaFormat {
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)

			if err := enc.Encode(map[string]any{"fields": docs}); err != nil {
				return fmt.Errorf("encoding schema: %w", err)
			}

			return enc.Close()
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			return enc.Encode(map[string]any{"fields": docs})
		default:
			return fmt.Errorf("unsupported format %q (use yaml or json)", schemaFormat)
		}
	},
}

var ddlCmd = &cobra.Command{
	Use:   "ddl",
	Short: "Print the ClickHouse CREATE TABLE statement",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		database, table := cfg.ClickHouse.Database, cfg.ClickHouse.Table

		if cmd.Flags().Changed("database") {
			database = ddlDatabase
		}

		if cmd.Flags().Changed("table") {
			table = ddlTable
		}

		ddl, err := clickhouse.CreateTable(schema.Benchmark(), database, table)
		if err != nil {
			return err
		}

		fmt.Println(ddl)

		return nil
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaFormat, "format", "yaml", "output format (yaml, json)")

	ddlCmd.Flags().StringVar(&ddlDatabase, "database", "", "database name (default: clickhouse.database)")
	ddlCmd.Flags().StringVar(&ddlTable, "table", "", "table name (default: clickhouse.table)")

	rootCmd.AddCommand(schemaCmd, ddlCmd)
}
