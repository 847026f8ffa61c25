// Package schema renders a Postgres schema's tables, columns,
// constraints, and sampled foreign-key value ranges as a single
// Markdown document, following the information_schema introspection
// approach the teacher's schema introspector uses, generalised into a
// stateless describe() call instead of a persisted metadata cache.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"chat2sql-go/internal/pipeline"
)

// Introspector describes a target schema as Markdown for consumption
// by the SQL-generation prompts.
type Introspector struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func New(pool *pgxpool.Pool, logger *zap.Logger) *Introspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Introspector{pool: pool, logger: logger}
}

type column struct {
	name          string
	dataType      string
	nullable      bool
	defaultValue  *string
	comment       *string
	ordinal       int32
	isPK          bool
	isFK          bool
	fkTable       *string
	fkColumn      *string
}

type table struct {
	name    string
	comment *string
	columns []column
}

// Options controls a single describe() call.
type Options struct {
	IncludeFKs  bool
	MaxFKValues int
	Table       string // optional: restrict to a single table
}

// DefaultOptions matches the spec's describe(schema, include_fks=true,
// max_fk_values=30) defaults.
func DefaultOptions() Options {
	return Options{IncludeFKs: true, MaxFKValues: 30}
}

// Describe renders schemaName as Markdown. A schema with no tables
// (including one that does not exist) yields an empty string rather
// than an error; permission failures propagate as db_error.
func (in *Introspector) Describe(ctx context.Context, schemaName string, opts Options) (string, error) {
	if opts.MaxFKValues <= 0 {
		opts.MaxFKValues = 30
	}

	tableNames, err := in.listTables(ctx, schemaName, opts.Table)
	if err != nil {
		return "", pipeline.NewDBError("listing tables for schema "+schemaName, err)
	}
	if len(tableNames) == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, tableName := range tableNames {
		tbl, err := in.describeTable(ctx, schemaName, tableName)
		if err != nil {
			return "", pipeline.NewDBError("describing table "+schemaName+"."+tableName, err)
		}
		if err := in.renderTable(ctx, &b, schemaName, tbl, opts); err != nil {
			return "", err
		}
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func (in *Introspector) listTables(ctx context.Context, schemaName, only string) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type = 'BASE TABLE'
		  AND ($2 = '' OR table_name = $2)
		ORDER BY table_name
	`
	rows, err := in.pool.Query(ctx, query, schemaName, only)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (in *Introspector) describeTable(ctx context.Context, schemaName, tableName string) (*table, error) {
	tbl := &table{name: tableName}

	var comment string
	commentQuery := `
		SELECT COALESCE(obj_description((table_schema || '.' || table_name)::regclass::oid, 'pg_class'), '')
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2
	`
	if err := in.pool.QueryRow(ctx, commentQuery, schemaName, tableName).Scan(&comment); err != nil && err != pgx.ErrNoRows {
		return nil, err
	}
	if comment != "" {
		tbl.comment = &comment
	}

	cols, err := in.columns(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	tbl.columns = cols
	return tbl, nil
}

func (in *Introspector) columns(ctx context.Context, schemaName, tableName string) ([]column, error) {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			CASE WHEN c.is_nullable = 'YES' THEN true ELSE false END,
			c.column_default,
			c.ordinal_position,
			COALESCE(col_description((c.table_schema || '.' || c.table_name)::regclass::oid, c.ordinal_position), ''),
			CASE WHEN pk.column_name IS NOT NULL THEN true ELSE false END,
			CASE WHEN fk.column_name IS NOT NULL THEN true ELSE false END,
			fk.foreign_table_name,
			fk.foreign_column_name
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT ku.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage ku
				ON tc.constraint_name = ku.constraint_name AND tc.table_schema = ku.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1 AND tc.table_name = $2
		) pk ON c.column_name = pk.column_name
		LEFT JOIN (
			SELECT ku.column_name, ccu.table_name AS foreign_table_name, ccu.column_name AS foreign_column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage ku
				ON tc.constraint_name = ku.constraint_name AND tc.table_schema = ku.table_schema
			JOIN information_schema.constraint_column_usage ccu
				ON tc.constraint_name = ccu.constraint_name
			WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1 AND tc.table_name = $2
		) fk ON c.column_name = fk.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`
	rows, err := in.pool.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []column
	for rows.Next() {
		var c column
		var comment string
		if err := rows.Scan(
			&c.name, &c.dataType, &c.nullable, &c.defaultValue, &c.ordinal,
			&comment, &c.isPK, &c.isFK, &c.fkTable, &c.fkColumn,
		); err != nil {
			return nil, err
		}
		if comment != "" {
			c.comment = &comment
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// fkValueRange samples up to maxValues distinct values of the
// referenced column, cast to text and ordered lexicographically; the
// explicit ORDER BY before the LIMIT keeps the hint deterministic even
// when the planner would otherwise pick an arbitrary scan order.
func (in *Introspector) fkValueRange(ctx context.Context, schemaName, refTable, refColumn string, maxValues int) ([]string, error) {
	query := fmt.Sprintf(
		`SELECT DISTINCT %s::text FROM %s.%s WHERE %s IS NOT NULL ORDER BY 1 LIMIT %d`,
		pgx.Identifier{refColumn}.Sanitize(),
		pgx.Identifier{schemaName}.Sanitize(),
		pgx.Identifier{refTable}.Sanitize(),
		pgx.Identifier{refColumn}.Sanitize(),
		maxValues,
	)
	rows, err := in.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		values = append(values, stringifyRaw(raw))
	}
	return values, rows.Err()
}

func stringifyRaw(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (in *Introspector) renderTable(ctx context.Context, b *strings.Builder, schemaName string, tbl *table, opts Options) error {
	fmt.Fprintf(b, "## %s.%s\n\n", schemaName, tbl.name)
	if tbl.comment != nil {
		fmt.Fprintf(b, "%s\n\n", *tbl.comment)
	}

	b.WriteString("| Column | Type | Nullable | Default | Key | Comment |\n")
	b.WriteString("|---|---|---|---|---|---|\n")

	sort.Slice(tbl.columns, func(i, j int) bool { return tbl.columns[i].ordinal < tbl.columns[j].ordinal })

	for _, c := range tbl.columns {
		key := ""
		if c.isPK {
			key = "PK"
		}
		if c.isFK && c.fkTable != nil && c.fkColumn != nil {
			if key != "" {
				key += ", "
			}
			key += fmt.Sprintf("FK->%s.%s", *c.fkTable, *c.fkColumn)
		}

		def := ""
		if c.defaultValue != nil {
			def = *c.defaultValue
		}
		comment := ""
		if c.comment != nil {
			comment = *c.comment
		}

		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s |\n",
			c.name, c.dataType, strconv.FormatBool(c.nullable), def, key, comment)

		if opts.IncludeFKs && c.isFK && c.fkTable != nil && c.fkColumn != nil {
			values, err := in.fkValueRange(ctx, schemaName, *c.fkTable, *c.fkColumn, opts.MaxFKValues)
			if err != nil {
				in.logger.Warn("fk value range sampling failed",
					zap.String("table", tbl.name), zap.String("column", c.name), zap.Error(err))
			} else if len(values) > 0 {
				fmt.Fprintf(b, "| | | | | | values: %s |\n", strings.Join(values, ", "))
			}
		}
	}

	b.WriteString("\n")
	return nil
}
