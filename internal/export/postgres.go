package export

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultBatchSize is the number of rows buffered per COPY.
const DefaultBatchSize = 5000

// Copier is the database surface PostgresWriter needs.
// Satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Copier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresWriter copies rows into a table of text columns. The table is
// created on WriteHeader if it does not exist; column names are the headers
// in lower case.
type PostgresWriter struct {
	ctx       context.Context
	db        Copier
	table     pgx.Identifier
	columns   []string
	batch     [][]any
	batchSize int
	written   int64
}

// NewPostgresWriter returns a sink copying into table, which may be schema
// qualified ("reports.pagos").
func NewPostgresWriter(ctx context.Context, db Copier, table string, batchSize int) (*PostgresWriter, error) {
	ident, err := parseIdentifier(table)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &PostgresWriter{ctx: ctx, db: db, table: ident, batchSize: batchSize}, nil
}

// WriteHeader creates the target table.
func (p *PostgresWriter) WriteHeader(headers []string) error {
	p.columns = columnNames(headers)

	defs := make([]string, len(p.columns))
	for i, c := range p.columns {
		defs[i] = pgx.Identifier{c}.Sanitize() + " text"
	}
	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", p.table.Sanitize(), strings.Join(defs, ", "))
	if _, err := p.db.Exec(p.ctx, sql); err != nil {
		return fmt.Errorf("failed to create table %s: %w", p.table.Sanitize(), err)
	}
	return nil
}

// WriteRow buffers one row, copying the batch when it is full.
func (p *PostgresWriter) WriteRow(row []string) error {
	if p.columns == nil {
		return fmt.Errorf("row written before header")
	}
	if len(row) != len(p.columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(row), len(p.columns))
	}

	values := make([]any, len(row))
	for i, v := range row {
		values[i] = v
	}
	p.batch = append(p.batch, values)
	if len(p.batch) >= p.batchSize {
		return p.flush()
	}
	return nil
}

// Close copies the remaining rows.
func (p *PostgresWriter) Close() error {
	return p.flush()
}

// Written returns the number of rows copied so far.
func (p *PostgresWriter) Written() int64 {
	return p.written
}

func (p *PostgresWriter) flush() error {
	if len(p.batch) == 0 {
		return nil
	}
	n, err := p.db.CopyFrom(p.ctx, p.table, p.columns, pgx.CopyFromRows(p.batch))
	if err != nil {
		return fmt.Errorf("failed to copy %d rows into %s: %w", len(p.batch), p.table.Sanitize(), err)
	}
	p.written += n
	p.batch = p.batch[:0]
	return nil
}

func parseIdentifier(table string) (pgx.Identifier, error) {
	parts := strings.Split(strings.TrimSpace(table), ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return pgx.Identifier(parts), nil
}

// columnNames lower-cases headers and suffixes repeats (_2, _3, ...).
func columnNames(headers []string) []string {
	seen := make(map[string]int, len(headers))
	out := make([]string, len(headers))
	for i, h := range headers {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name += "_" + strconv.Itoa(n)
		}
		out[i] = name
	}
	return out
}
