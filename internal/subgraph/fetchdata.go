package subgraph

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"chat2sql-go/internal/pipeline"
	"chat2sql-go/internal/sqlexec"
)

// FetchData executes state.SQL through the SQL executor, normalises
// the results into state.RawData, and renders state.MD, following the
// fetch-then-render two-node shape of the teacher's Python subgraph
// but tolerating partial statement failure instead of aborting the
// whole batch on the first error.
type FetchData struct {
	executor     *sqlexec.Executor
	maxCellChars int
	logger       *zap.Logger
}

func NewFetchData(executor *sqlexec.Executor, maxCellChars int, logger *zap.Logger) *FetchData {
	if maxCellChars <= 0 {
		maxCellChars = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FetchData{executor: executor, maxCellChars: maxCellChars, logger: logger}
}

// Run executes state.SQL and appends the resulting blocks to
// state.RawData, then rebuilds state.MD from the whole of
// state.RawData. A per-statement failure is recorded in the block's
// Error field and rendered as an error notice; it does not prevent
// the remaining statements from running or being rendered.
func (f *FetchData) Run(ctx context.Context, state *pipeline.State) {
	blocks, err := f.executor.ExecuteRead(ctx, state.SQL)
	if err != nil {
		state.AppendHistory("fetch_data", string(pipeline.KindOf(err)), err.Error(), 0, 0)
		return
	}

	failed := 0
	for _, b := range blocks {
		if b.Error != "" {
			failed++
		}
	}
	state.RawData = blocks
	state.MD = f.render(blocks)

	if failed > 0 {
		state.AppendHistory("fetch_data", "partial_failure", fmt.Sprintf("%d of %d statements failed", failed, len(blocks)), 0, 0)
	} else {
		state.AppendHistory("fetch_data", "success", "", 0, 0)
	}
}

// RunIncremental executes exactly state.SQL[idx] and appends its
// result to state.RawData at position idx, then rebuilds state.MD from
// the whole of state.RawData. It is the per-plan-step counterpart to
// Run: the orchestrator calls it once per accepted GenerateSQL result
// instead of re-executing every previously fetched statement.
func (f *FetchData) RunIncremental(ctx context.Context, state *pipeline.State, idx int) {
	blocks, err := f.executor.ExecuteRead(ctx, state.SQL[idx:idx+1])
	if err != nil {
		state.AppendHistory("fetch_data", string(pipeline.KindOf(err)), err.Error(), 0, 0)
		return
	}
	block := blocks[0]
	block.SQLIndex = idx
	state.RawData = append(state.RawData, block)
	state.MD = f.render(state.RawData)

	if block.Error != "" {
		state.AppendHistory("fetch_data", "partial_failure", block.Error, 0, 0)
	} else {
		state.AppendHistory("fetch_data", "success", "", 0, 0)
	}
}

func (f *FetchData) render(blocks []pipeline.ResultBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		fmt.Fprintf(&b, "## Statement %d\n\n", block.SQLIndex+1)

		if block.Error != "" {
			fmt.Fprintf(&b, "_error: %s_\n\n", block.Error)
			continue
		}
		if block.RowCount == 0 {
			b.WriteString("_no rows_\n\n")
			continue
		}

		b.WriteString("| " + strings.Join(block.Columns, " | ") + " |\n")
		b.WriteString("|" + strings.Repeat(" --- |", len(block.Columns)) + "\n")
		for _, row := range block.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = f.truncate(escapeCell(stringifyCell(v)))
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
		b.WriteString("\n")
		writeNumericSummary(&b, block.Columns, block.Rows)
	}
	return b.String()
}

const maxSummarisedColumns = 3

// writeNumericSummary appends a mean/min/max line for each of the
// first maxSummarisedColumns numeric columns in rows, mirroring the
// quick describe()-style column summary an analyst would otherwise
// compute by hand before writing the report prompt.
func writeNumericSummary(b *strings.Builder, columns []string, rows [][]any) {
	if len(rows) == 0 {
		return
	}

	type stat struct {
		name           string
		sum, min, max  float64
		count          int
	}
	var stats []stat

	for i, name := range columns {
		if len(stats) >= maxSummarisedColumns {
			break
		}
		var s stat
		s.name = name
		ok := true
		for _, row := range rows {
			f, isNum := toFloat64(row[i])
			if !isNum {
				ok = false
				break
			}
			if s.count == 0 || f < s.min {
				s.min = f
			}
			if s.count == 0 || f > s.max {
				s.max = f
			}
			s.sum += f
			s.count++
		}
		if ok && s.count > 0 {
			stats = append(stats, s)
		}
	}

	if len(stats) == 0 {
		return
	}
	b.WriteString("_summary: ")
	parts := make([]string, len(stats))
	for i, s := range stats {
		parts[i] = fmt.Sprintf("%s(mean=%.2f, min=%.2f, max=%.2f)", s.name, s.sum/float64(s.count), s.min, s.max)
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString("_\n\n")
}

// toFloat64 recognises the numeric shapes a summarisable column can
// arrive as: native Go numeric types, a raw pgtype.Numeric (in case a
// caller hands writeNumericSummary un-normalized rows), and the
// decimal strings ExecuteRead's normalize step already converts
// NUMERIC/DECIMAL columns into.
func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case pgtype.Numeric:
		f, err := strconv.ParseFloat(sqlexec.FormatNumeric(t), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (f *FetchData) truncate(s string) string {
	if len(s) <= f.maxCellChars {
		return s
	}
	return s[:f.maxCellChars] + "..."
}

func stringifyCell(v any) string {
	if v == nil {
		return "NULL"
	}
	switch t := v.(type) {
	case string:
		return t
	case pgtype.Numeric:
		return sqlexec.FormatNumeric(t)
	case fmt.Stringer:
		return t.String()
	case float64, float32, int, int32, int64, bool:
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", "<br>")
	return s
}
