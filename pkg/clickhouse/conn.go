package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ethpandaops/perfpipe/pkg/config"
)

// Batch is a pending row-batch insert.
type Batch interface {
	Append(v ...any) error
	Send() error
	Abort() error
}

// Conn is the subset of a ClickHouse connection the loader needs.
type Conn interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, query string, args ...any) error
	PrepareBatch(ctx context.Context, query string) (Batch, error)
	Close() error
}

// Compile-time interface check.
var _ Conn = (*nativeConn)(nil)

type nativeConn struct {
	conn driver.Conn
}

func (c *nativeConn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *nativeConn) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c *nativeConn) PrepareBatch(ctx context.Context, query string) (Batch, error) {
	return c.conn.PrepareBatch(ctx, query)
}

func (c *nativeConn) Close() error {
	return c.conn.Close()
}

// Open creates a native protocol connection. It does not wait for the
// server; use WaitReady for that.
func Open(cfg *config.ClickHouseConfig) (Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr()},
		Auth: clickhouse.Auth{
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return nil, fmt.Errorf("could not connect to clickhouse on %s: %w", cfg.Addr(), err)
	}

	return &nativeConn{conn: conn}, nil
}

// Pinger reports server liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WaitReady pings until the server answers, at most attempts times and no
// more often than once per interval.
func WaitReady(
	ctx context.Context,
	log logrus.FieldLogger,
	p Pinger,
	attempts int,
	interval time.Duration,
) error {
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for clickhouse: %w", err)
		}

		if lastErr = p.Ping(ctx); lastErr == nil {
			log.WithField("attempts", attempt).Info("ClickHouse is ready")

			return nil
		}

		log.WithError(lastErr).WithFields(logrus.Fields{
			"attempt": attempt,
			"of":      attempts,
		}).Warn("ClickHouse not ready")
	}

	return fmt.Errorf("clickhouse not ready after %d attempts: %w", attempts, lastErr)
}
