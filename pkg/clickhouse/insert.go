package clickhouse

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/perfpipe/pkg/cast"
	"github.com/ethpandaops/perfpipe/pkg/schema"
	"github.com/ethpandaops/perfpipe/pkg/table"
)

// Loader creates the benchmark table and inserts rows into it.
type Loader struct {
	log      logrus.FieldLogger
	conn     Conn
	schema   *schema.Schema
	database string
	table    string
}

// NewLoader creates a Loader for database.table.
func NewLoader(log logrus.FieldLogger, conn Conn, s *schema.Schema, database, table string) *Loader {
	return &Loader{
		log:      log.WithField("component", "clickhouse"),
		conn:     conn,
		schema:   s,
		database: database,
		table:    table,
	}
}

// Setup creates the database and the table when they do not exist.
func (l *Loader) Setup(ctx context.Context) error {
	ddl, err := CreateTable(l.schema, l.database, l.table)
	if err != nil {
		return err
	}

	if l.database != "" {
		if err := l.conn.Exec(ctx, CreateDatabase(l.database)); err != nil {
			return fmt.Errorf("creating database %s: %w", l.database, err)
		}
	}

	if err := l.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", qualified(l.database, l.table), err)
	}

	l.log.WithField("table", qualified(l.database, l.table)).Info("ClickHouse table ready")

	return nil
}

// InsertBatch inserts the rows of t that belong to batchID. It is a plain
// append: inserting the same batch twice stores it twice.
func (l *Loader) InsertBatch(ctx context.Context, t *table.Table, batchID string) (int, error) {
	rows := t.FilterEqual(schema.FieldBatchID, batchID)

	n, err := l.insert(ctx, rows)
	if err != nil {
		return 0, err
	}

	l.log.WithFields(logrus.Fields{
		"batch": batchID,
		"rows":  n,
	}).Info("Inserted batch into ClickHouse")

	return n, nil
}

// Load inserts every row of t, optionally truncating the table first.
func (l *Loader) Load(ctx context.Context, t *table.Table, truncate bool) (int, error) {
	if truncate {
		name := qualified(l.database, l.table)
		if err := l.conn.Exec(ctx, "TRUNCATE TABLE IF EXISTS "+name); err != nil {
			return 0, fmt.Errorf("truncating %s: %w", name, err)
		}
	}

	n, err := l.insert(ctx, t)
	if err != nil {
		return 0, err
	}

	l.log.WithFields(logrus.Fields{
		"rows":     n,
		"truncate": truncate,
	}).Info("Loaded store into ClickHouse")

	return n, nil
}

func (l *Loader) insert(ctx context.Context, t *table.Table) (int, error) {
	if t.NumRows() == 0 {
		return 0, nil
	}

	typed, err := cast.Table(t, l.schema)
	if err != nil {
		return 0, fmt.Errorf("casting rows for insert: %w", err)
	}

	names := l.schema.Names()
	columns := make([]*table.Column, len(names))

	for i, name := range names {
		columns[i], _ = typed.Column(name)
	}

	batch, err := l.conn.PrepareBatch(ctx, "INSERT INTO "+qualified(l.database, l.table))
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}

	for row := 0; row < typed.NumRows(); row++ {
		values := make([]any, len(columns))
		for i, c := range columns {
			values[i] = c.Values[row]
		}

		if err := batch.Append(values...); err != nil {
			_ = batch.Abort()

			return 0, fmt.Errorf("appending row %d: %w", row, err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("sending insert: %w", err)
	}

	return typed.NumRows(), nil
}
