// Package sqlexec runs read-only SQL statements against the
// analytical database and normalises their results into
// pipeline.ResultBlock values, following the value-conversion approach
// of the teacher's SQL executor (timestamps to RFC3339, binary to
// base64) generalised from a single ad-hoc query into a batch with
// per-statement failure isolation.
package sqlexec

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"chat2sql-go/internal/pipeline"
)

// Executor runs one or more SQL statements as a read-only batch.
type Executor struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func New(pool *pgxpool.Pool, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{pool: pool, logger: logger}
}

// ExecuteRead runs every statement under its own read-only transaction
// on a pooled connection. A failing statement produces a ResultBlock
// carrying Error instead of aborting the batch, so callers see partial
// results for the statements that did succeed. The one exception is a
// db_timeout while acquiring a connection: it stops the batch, and the
// blocks filled so far are returned together with that error.
func (e *Executor) ExecuteRead(ctx context.Context, statements []string) ([]pipeline.ResultBlock, error) {
	blocks := make([]pipeline.ResultBlock, len(statements))

	for i, stmt := range statements {
		block, err := e.executeOne(ctx, i, stmt)
		if err != nil {
			if pipeline.KindOf(err) == pipeline.ErrDBTimeout {
				return blocks, err
			}
			block = pipeline.ResultBlock{SQLIndex: i, SQL: stmt, Error: err.Error()}
		}
		blocks[i] = block
	}

	return blocks, nil
}

func (e *Executor) executeOne(ctx context.Context, idx int, stmt string) (pipeline.ResultBlock, error) {
	block := pipeline.ResultBlock{SQLIndex: idx, SQL: stmt}

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		if ctx.Err() != nil {
			return block, pipeline.NewDBTimeoutError("acquiring connection", err)
		}
		return block, pipeline.NewDBError("beginning read-only transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, stmt)
	if err != nil {
		return block, fmt.Errorf("executing statement: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = string(f.Name)
	}
	block.Columns = columns

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return block, fmt.Errorf("reading row: %w", err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = normalize(v)
		}
		block.Rows = append(block.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return block, fmt.Errorf("iterating rows: %w", err)
	}
	block.RowCount = len(block.Rows)

	if err := tx.Commit(ctx); err != nil {
		return block, fmt.Errorf("committing read-only transaction: %w", err)
	}

	return block, nil
}

// normalize coerces a driver value into a JSON-serialisable form:
// timestamps to RFC3339, binary to base64, arbitrary-precision
// numerics to decimal strings to avoid float precision loss.
func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t.Format(time.RFC3339)
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case pgtype.Numeric:
		return FormatNumeric(t)
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}

// FormatNumeric renders a pgtype.Numeric (pgx v5's decode target for
// PostgreSQL NUMERIC/DECIMAL columns) as a decimal string, computing
// digits*10^exp directly from Int/Exp instead of routing through a
// float, so no precision is lost for values wider than float64 can
// represent exactly. Exported so callers downstream of ExecuteRead
// that see a raw pgtype.Numeric (rather than an already-normalized
// row) can render it the same way.
func FormatNumeric(n pgtype.Numeric) string {
	if !n.Valid {
		return ""
	}
	if n.NaN {
		return "NaN"
	}
	switch n.InfinityModifier {
	case pgtype.Infinity:
		return "Infinity"
	case pgtype.NegativeInfinity:
		return "-Infinity"
	}
	if n.Int == nil {
		return "0"
	}

	digits := n.Int.String()
	neg := strings.HasPrefix(digits, "-")
	if neg {
		digits = digits[1:]
	}

	var s string
	exp := int(n.Exp)
	switch {
	case exp >= 0:
		s = digits + strings.Repeat("0", exp)
	case len(digits)+exp <= 0:
		s = "0." + strings.Repeat("0", -(len(digits)+exp)) + digits
	default:
		point := len(digits) + exp
		s = digits[:point] + "." + digits[point:]
	}

	if neg {
		s = "-" + s
	}
	return s
}
