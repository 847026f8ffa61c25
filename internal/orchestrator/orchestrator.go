// Package orchestrator binds the SplitQuery, GenerateSQL, FetchData
// and report-generation stages into the single end-to-end workflow
// that answers one natural-language question, following the linear
// state-machine shape the design notes call for: the orchestrator
// drives the plan index forward, it never forms a cyclic graph.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat2sql-go/internal/metrics"
	"chat2sql-go/internal/pipeline"
	"chat2sql-go/internal/report"
	"chat2sql-go/internal/subgraph"
)

// Config tunes one Orchestrator instance. Zero values fall back to the
// configuration surface's documented defaults.
type Config struct {
	ParallelPlanSteps bool          // default false: sequential plan execution
	Deadline          time.Duration // 0 disables the per-invocation deadline
	Metrics           *metrics.StageMetrics // nil disables stage metrics recording
}

// Orchestrator drives SplitQuery -> (GenerateSQL; FetchData)* ->
// ReportGen for one Pipeline State. It owns no state of its own beyond
// the compiled stage handles and is safe for concurrent use across
// distinct invocations, since each call to Invoke or Stream operates
// on its own freshly allocated *pipeline.State.
type Orchestrator struct {
	split    *subgraph.SplitQuery
	generate *subgraph.GenerateSQL
	fetch    *subgraph.FetchData
	report   *report.Generator
	parallel bool
	deadline time.Duration
	metrics  *metrics.StageMetrics
	logger   *zap.Logger
}

func New(split *subgraph.SplitQuery, generate *subgraph.GenerateSQL, fetch *subgraph.FetchData, rep *report.Generator, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		split:    split,
		generate: generate,
		fetch:    fetch,
		report:   rep,
		parallel: cfg.ParallelPlanSteps,
		deadline: cfg.Deadline,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// Invoke runs the whole pipeline for query and returns the terminal
// state as a single value.
func (o *Orchestrator) Invoke(ctx context.Context, query string) *pipeline.State {
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	state := pipeline.New(query)
	o.run(ctx, state, nil)
	return state
}

// Stream runs the pipeline for query, emitting a read-only deep copy
// of the state after every stage completion. The channel is closed
// once the invocation reaches Terminal or is cancelled, satisfying the
// finite-sequence property: consumers that stop reading may abandon
// the stream, and cancelling ctx makes the producer goroutine return
// after its current in-flight stage.
func (o *Orchestrator) Stream(ctx context.Context, query string) <-chan *pipeline.State {
	ctx, cancel := o.withDeadline(ctx)
	out := make(chan *pipeline.State)

	go func() {
		defer cancel()
		defer close(out)

		state := pipeline.New(query)
		emit := func() {
			snap := state.Clone()
			select {
			case out <- snap:
			case <-ctx.Done():
			}
		}
		o.run(ctx, state, emit)
	}()

	return out
}

func (o *Orchestrator) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.deadline <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.deadline)
}

// run drives the linear state machine. emit, if non-nil, is called
// after every stage boundary (split, each plan step's generate+fetch,
// and the final report).
func (o *Orchestrator) run(ctx context.Context, state *pipeline.State, emit func()) {
	if o.observeCancellation(ctx, state) {
		return
	}
	o.timed("split_query", state, func() { o.split.Run(ctx, state) })
	if emit != nil {
		emit()
	}
	if o.observeCancellation(ctx, state) {
		return
	}

	if o.parallel {
		o.runPlanParallel(ctx, state)
	} else {
		o.runPlanSequential(ctx, state, emit)
	}
	if emit != nil {
		emit()
	}
	if o.observeCancellation(ctx, state) {
		return
	}

	o.timed("report", state, func() { o.report.Run(ctx, state) })
	if emit != nil {
		emit()
	}
}

// timed runs fn, then records its wall-clock duration against the
// outcome fn left as the last history entry for stage. A missing
// history entry (fn appended nothing) is recorded as "unknown".
func (o *Orchestrator) timed(stage string, state *pipeline.State, fn func()) {
	start := time.Now()
	before := len(state.History)
	fn()
	outcome := "unknown"
	if len(state.History) > before {
		outcome = state.History[len(state.History)-1].Outcome
	}
	o.metrics.RecordStage(stage, outcome, time.Since(start).Seconds())
}

// observeCancellation is the suspension-point check every stage
// boundary makes. It records a cancelled history entry exactly once
// and reports whether the caller must stop driving the state machine.
func (o *Orchestrator) observeCancellation(ctx context.Context, state *pipeline.State) bool {
	if ctx.Err() == nil {
		return false
	}
	if len(state.History) == 0 || state.History[len(state.History)-1].Outcome != "cancelled" {
		state.AppendHistory("orchestrator", "cancelled", ctx.Err().Error(), 0, 0)
	}
	return true
}

// runPlanSequential drives GenerateSQL then, on acceptance,
// FetchData for one plan item at a time. A budget_exhausted plan step
// is skipped (its sub-query is left unanswered in raw_data) and the
// index still advances, so a single bad sub-query cannot stall the
// whole plan; this is the "proceeds" branch of the two policies the
// budget-exhaustion scenario allows.
func (o *Orchestrator) runPlanSequential(ctx context.Context, state *pipeline.State, emit func()) {
	for state.CurrentPlanIdx < len(state.Plan) {
		if o.observeCancellation(ctx, state) {
			return
		}

		idx := state.CurrentPlanIdx
		before := len(state.SQL)

		o.timed("generate_sql", state, func() { o.generate.Run(ctx, state) })
		if emit != nil {
			emit()
		}
		if o.observeCancellation(ctx, state) {
			return
		}

		if len(state.SQL) > before {
			o.timed("fetch_data", state, func() { o.fetch.RunIncremental(ctx, state, before) })
			if emit != nil {
				emit()
			}
		}

		state.CurrentPlanIdx = idx + 1
	}
}

// planResult is one plan item's isolated outcome, computed against a
// private substate so concurrent items never race on shared fields.
// Only the append-only sql/raw_data/history, plus the latest non-empty
// sql_error, are merged back, in plan order, once every item has finished.
type planResult struct {
	sql      string
	block    *pipeline.ResultBlock
	history  []pipeline.HistoryEntry
	sqlError string
}

// runPlanParallel dispatches GenerateSQL+FetchData for every plan item
// concurrently against isolated substates, then merges results back in
// plan order. Used only when Config.ParallelPlanSteps is set; the
// default is runPlanSequential, which is deterministic.
func (o *Orchestrator) runPlanParallel(ctx context.Context, state *pipeline.State) {
	n := len(state.Plan)
	results := make([]planResult, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.runOnePlanItem(ctx, state, i)
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if r.sql != "" {
			state.SQL = append(state.SQL, r.sql)
		}
		if r.block != nil {
			b := *r.block
			b.SQLIndex = len(state.RawData)
			state.RawData = append(state.RawData, b)
		}
		if r.sqlError != "" {
			state.SQLError = r.sqlError
		}
		state.History = append(state.History, r.history...)
		state.CurrentPlanIdx = i + 1
	}
}

func (o *Orchestrator) runOnePlanItem(ctx context.Context, state *pipeline.State, idx int) planResult {
	sub := &pipeline.State{
		Query:          state.Query,
		Plan:           state.Plan,
		CurrentPlanIdx: idx,
		DBStruc:        state.DBStruc,
	}

	o.generate.Run(ctx, sub)
	if len(sub.SQL) == 0 {
		return planResult{history: sub.History, sqlError: sub.SQLError}
	}

	o.fetch.RunIncremental(ctx, sub, 0)

	var block *pipeline.ResultBlock
	if len(sub.RawData) > 0 {
		b := sub.RawData[0]
		block = &b
	}
	return planResult{sql: sub.SQL[0], block: block, history: sub.History, sqlError: sub.SQLError}
}
