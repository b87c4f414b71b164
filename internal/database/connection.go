package database

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fluxbase-eu/filterkit/internal/config"
	"github.com/fluxbase-eu/filterkit/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// quoteIdentifier safely quotes a PostgreSQL identifier to prevent SQL injection.
func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// Connection represents a database connection pool
type Connection struct {
	pool      *pgxpool.Pool
	config    *config.DatabaseConfig
	inspector *SchemaInspector
	metrics   *observability.Metrics
}

// SetMetrics sets the metrics instance for recording database metrics
func (c *Connection) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

var tablePatterns = []struct {
	prefix string
	regex  *regexp.Regexp
}{
	{"SELECT", regexp.MustCompile(`FROM\s+(?:"?\w+"?\.)?"?(\w+)"?`)},
	{"WITH", regexp.MustCompile(`FROM\s+(?:"?\w+"?\.)?"?(\w+)"?`)},
	{"INSERT", regexp.MustCompile(`INTO\s+(?:"?\w+"?\.)?"?(\w+)"?`)},
	{"UPDATE", regexp.MustCompile(`UPDATE\s+(?:"?\w+"?\.)?"?(\w+)"?`)},
	{"DELETE", regexp.MustCompile(`FROM\s+(?:"?\w+"?\.)?"?(\w+)"?`)},
}

// extractTableName attempts to extract the table name from a SQL query.
// Schema qualifiers are skipped and derived tables resolve to the first
// named table inside them. Returns "unknown" if nothing matches.
func extractTableName(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))

	for _, p := range tablePatterns {
		if strings.HasPrefix(sql, p.prefix) {
			if matches := p.regex.FindStringSubmatch(sql); len(matches) > 1 {
				return strings.ToLower(matches[1])
			}
		}
	}

	return "unknown"
}

// extractOperation extracts the SQL operation type from a query
func extractOperation(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	switch {
	case strings.HasPrefix(sql, "SELECT COUNT("):
		return "count"
	case strings.HasPrefix(sql, "SELECT"), strings.HasPrefix(sql, "WITH"):
		return "select"
	case strings.HasPrefix(sql, "INSERT"):
		return "insert"
	case strings.HasPrefix(sql, "UPDATE"):
		return "update"
	case strings.HasPrefix(sql, "DELETE"):
		return "delete"
	default:
		return "other"
	}
}

// NewConnection creates a new database connection pool
func NewConnection(ctx context.Context, cfg config.DatabaseConfig) (*Connection, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MinConns = cfg.MinConnections
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheck

	// Discard connections that died while idle instead of handing them out.
	poolConfig.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		pingCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		defer cancel()
		if err := conn.Ping(pingCtx); err != nil {
			log.Debug().Err(err).Msg("Discarding unhealthy connection from pool")
			return false
		}
		return true
	}

	// Filtered queries are generated per request; statement caching buys
	// little and breaks after schema changes.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec

	// Scan text-like system types into interface{} as strings.
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for _, t := range []struct {
			name string
			oid  uint32
		}{{"tsvector", 3614}, {"tsquery", 3615}, {"regclass", 2205}} {
			conn.TypeMap().RegisterType(&pgtype.Type{Name: t.name, OID: t.oid, Codec: pgtype.TextCodec{}})
		}
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	conn := &Connection{
		pool:   pool,
		config: &cfg,
	}
	conn.inspector = NewSchemaInspector(conn)

	log.Info().
		Str("database", cfg.Database).
		Str("user", cfg.User).
		Msg("Database connection established")

	return conn, nil
}

// Close closes the database connection pool
func (c *Connection) Close() {
	c.pool.Close()
	log.Info().Msg("Database connection closed")
}

// Pool returns the underlying connection pool
func (c *Connection) Pool() *pgxpool.Pool {
	return c.pool
}

// BeginTx starts a read-only transaction
func (c *Connection) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return c.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
}

// Query executes a query that returns rows
func (c *Connection) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := observability.StartDBSpan(ctx, extractOperation(sql), extractTableName(sql))
	start := time.Now()
	rows, err := c.pool.Query(ctx, sql, args...)
	c.observe(sql, time.Since(start), err)
	observability.EndSpan(span, err)
	return rows, err
}

// QueryRow executes a query that returns a single row
func (c *Connection) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	start := time.Now()
	row := c.pool.QueryRow(ctx, sql, args...)
	c.observe(sql, time.Since(start), nil)
	return row
}

// Exec executes a query that doesn't return rows
func (c *Connection) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	start := time.Now()
	tag, err := c.pool.Exec(ctx, sql, args...)
	c.observe(sql, time.Since(start), err)
	return tag, err
}

// observe records query metrics and logs statements slower than the
// configured threshold.
func (c *Connection) observe(sql string, duration time.Duration, err error) {
	if c.metrics != nil {
		c.metrics.RecordDBQuery(extractOperation(sql), extractTableName(sql), duration, err)
	}

	threshold := time.Second
	if c.config != nil && c.config.SlowQuery > 0 {
		threshold = c.config.SlowQuery
	}
	if duration > threshold {
		log.Warn().
			Dur("duration", duration).
			Int64("duration_ms", duration.Milliseconds()).
			Str("query", truncateQuery(sql, 200)).
			Bool("slow_query", true).
			Msg("Slow query detected")
	}
}

// Inspector returns the schema inspector
func (c *Connection) Inspector() *SchemaInspector {
	return c.inspector
}

// Health checks the health of the database connection
func (c *Connection) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	err := c.QueryRow(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result != 1 {
		return fmt.Errorf("unexpected health check result: %d", result)
	}

	return nil
}

// Stats returns database connection pool statistics
func (c *Connection) Stats() *pgxpool.Stat {
	return c.pool.Stat()
}

// ReportStats copies pool statistics into the metrics gauges
func (c *Connection) ReportStats() {
	if c.metrics == nil {
		return
	}
	s := c.pool.Stat()
	c.metrics.UpdateDBStats(s.TotalConns(), s.IdleConns(), s.MaxConns())
}

// truncateQuery truncates a SQL query to a maximum length for logging
func truncateQuery(query string, maxLen int) string {
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "... (truncated)"
}
