// Package pipeline defines the single mutable record threaded through
// every stage of one natural-language-to-report invocation, plus the
// taxonomy of errors stages and the orchestrator raise against it.
package pipeline

import "time"

// ResultBlock is the per-statement result of executing one SQL
// statement from State.SQL against the analytical database.
type ResultBlock struct {
	SQLIndex int      `json:"sql_index"`
	SQL      string   `json:"sql"`
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
	Error    string   `json:"error,omitempty"`
}

// HistoryEntry is one append-only audit record of a stage's outcome.
type HistoryEntry struct {
	Stage           string    `json:"stage"`
	Timestamp       time.Time `json:"timestamp"`
	Outcome         string    `json:"outcome"`
	PromptTokens    int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int      `json:"completion_tokens,omitempty"`
	Detail          string    `json:"detail,omitempty"`
}

// State is the single mutable record passed between stages of one
// invocation. It is exclusively owned by the orchestrator invocation;
// subgraphs receive a borrowed reference and may mutate only the
// fields their contract names.
type State struct {
	Query string `json:"query"`

	Plan            []string `json:"plan"`
	CurrentPlanIdx  int      `json:"current_plan_idx"`

	SQL      []string `json:"sql"`
	SQLError string   `json:"sql_error,omitempty"`

	DBStruc string `json:"db_struc,omitempty"`

	RawData []ResultBlock `json:"raw_data"`
	MD      string        `json:"md"`

	History []HistoryEntry `json:"history"`

	Report string `json:"report,omitempty"`

	RetriesRemaining int `json:"retries_remaining"`
}

// New returns a freshly initialised State for query. All slice fields
// start nil, which satisfies the invariants and avoids an allocation
// before SplitQuery has run; note that a nil slice marshals to JSON
// null, not [].
func New(query string) *State {
	return &State{Query: query}
}

// AppendHistory records an append-only audit entry. It is the only
// sanctioned way to mutate State.History, which keeps invariant 3
// (history never mutates prior entries) true by construction.
func (s *State) AppendHistory(stage, outcome, detail string, promptTokens, completionTokens int) {
	s.History = append(s.History, HistoryEntry{
		Stage:            stage,
		Timestamp:        time.Now().UTC(),
		Outcome:          outcome,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Detail:           detail,
	})
}

// Success reports whether the invocation is user-visibly successful:
// a non-empty report and no fatal (non-recoverable) history entry.
func (s *State) Success() bool {
	if s.Report == "" {
		return false
	}
	for _, h := range s.History {
		switch ErrorKind(h.Outcome) {
		case ErrConfig, ErrDB, ErrTemplate:
			return false
		}
	}
	return true
}

// Clone returns a deep copy of s suitable for emission as an immutable
// stream snapshot: callers that hold the returned *State can never
// observe later mutations made by the orchestrator to the original.
func (s *State) Clone() *State {
	c := *s
	c.Plan = append([]string(nil), s.Plan...)
	c.SQL = append([]string(nil), s.SQL...)
	c.History = append([]HistoryEntry(nil), s.History...)
	c.RawData = make([]ResultBlock, len(s.RawData))
	for i, rb := range s.RawData {
		nrb := rb
		nrb.Columns = append([]string(nil), rb.Columns...)
		nrb.Rows = make([][]any, len(rb.Rows))
		for j, row := range rb.Rows {
			nrb.Rows[j] = append([]any(nil), row...)
		}
		c.RawData[i] = nrb
	}
	return &c
}

// CheckInvariants validates the cross-field invariants from the data
// model against the current value of s. It is used by tests and may
// be called defensively by the orchestrator between stages; it never
// mutates s.
func (s *State) CheckInvariants() error {
	if s.CurrentPlanIdx < 0 || s.CurrentPlanIdx > len(s.Plan) {
		return NewConfigError("current_plan_idx out of [0, len(plan)]", nil)
	}
	for i, rb := range s.RawData {
		if rb.SQLIndex != i {
			return NewConfigError("raw_data[i].sql_index != i", nil)
		}
		if i < len(s.SQL) && rb.SQL != s.SQL[i] {
			return NewConfigError("raw_data[i].sql != sql[i]", nil)
		}
	}
	return nil
}
