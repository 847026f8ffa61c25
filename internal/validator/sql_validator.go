// Package validator enforces that a candidate SQL statement synthesised
// by the GenerateSQL subgraph is read-only and free of common injection
// shapes, following the keyword-blacklist and pattern-matching approach
// of the teacher's SQL validator, trimmed to the read-only/no-multi-
// statement contract this engine actually needs.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"chat2sql-go/internal/pipeline"
)

// Config tunes the validator's limits. Zero values fall back to
// DefaultConfig's numbers.
type Config struct {
	MaxQueryLength   int
	MaxSubqueryDepth int
}

func DefaultConfig() Config {
	return Config{MaxQueryLength: 5000, MaxSubqueryDepth: 5}
}

// Validator checks a single SQL statement for read-only compliance and
// injection risk before it is accepted into Pipeline State.
type Validator struct {
	config            Config
	dangerousKeywords []string
	injectionPatterns []*regexp.Regexp
}

func New(config Config) *Validator {
	if config.MaxQueryLength <= 0 {
		config.MaxQueryLength = 5000
	}
	if config.MaxSubqueryDepth <= 0 {
		config.MaxSubqueryDepth = 5
	}

	return &Validator{
		config: config,
		dangerousKeywords: []string{
			"INSERT", "UPDATE", "DELETE", "MERGE", "REPLACE",
			"TRUNCATE", "DROP", "CREATE", "ALTER", "GRANT", "REVOKE",
			"EXEC", "EXECUTE", "COPY", "VACUUM", "CALL",
		},
		injectionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)UNION\s+(ALL\s+)?SELECT`),
			regexp.MustCompile(`(?i)SLEEP\s*\(\s*\d+\s*\)`),
			regexp.MustCompile(`(?i)pg_sleep\s*\(\s*\d+\s*\)`),
			regexp.MustCompile(`(?i)WAITFOR\s+DELAY`),
			regexp.MustCompile(`(?i)EXTRACTVALUE\s*\(`),
			regexp.MustCompile(`(?i)LOAD_FILE\s*\(`),
			regexp.MustCompile(`(?i)INTO\s+OUTFILE`),
			regexp.MustCompile(`(?i)DBLINK\s*\(`),
		},
	}
}

// Validate checks sql for read-only compliance: it must start with
// SELECT or WITH, contain no stacked-statement delimiter, no
// dangerous DDL/DML keyword, balanced parentheses, subquery nesting
// within the configured limit, and no recognised injection pattern.
// It returns a validation_error describing the first violation found.
func (v *Validator) Validate(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return pipeline.NewValidationError("sql statement is empty", nil)
	}
	if len(trimmed) > v.config.MaxQueryLength {
		return pipeline.NewValidationError(
			fmt.Sprintf("sql exceeds max length %d", v.config.MaxQueryLength), nil)
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return pipeline.NewValidationError("only SELECT or WITH (CTE) statements are allowed", nil)
	}

	if err := v.checkNoStackedStatements(trimmed); err != nil {
		return err
	}
	if err := v.checkDangerousKeywords(upper); err != nil {
		return err
	}
	if err := v.checkParenthesesBalance(trimmed); err != nil {
		return err
	}
	if depth := countSubqueryDepth(trimmed); depth > v.config.MaxSubqueryDepth {
		return pipeline.NewValidationError(
			fmt.Sprintf("subquery nesting depth %d exceeds max %d", depth, v.config.MaxSubqueryDepth), nil)
	}
	if err := v.checkInjectionPatterns(trimmed); err != nil {
		return err
	}

	return nil
}

// checkNoStackedStatements rejects any semicolon that is not the sole
// terminator at the end of the statement, since a mid-statement ';'
// followed by more SQL is the classic stacked-query shape.
func (v *Validator) checkNoStackedStatements(sql string) error {
	body := strings.TrimSuffix(strings.TrimRight(sql, ";"), "")
	if strings.Contains(stripStringLiterals(body), ";") {
		return pipeline.NewValidationError("multiple statements are not allowed", nil)
	}
	return nil
}

func (v *Validator) checkDangerousKeywords(upperSQL string) error {
	for _, kw := range v.dangerousKeywords {
		pattern := `\b` + regexp.QuoteMeta(kw) + `\b`
		if matched, _ := regexp.MatchString(pattern, upperSQL); matched {
			return pipeline.NewValidationError("disallowed keyword: "+kw, nil)
		}
	}
	return nil
}

func (v *Validator) checkInjectionPatterns(sql string) error {
	for _, re := range v.injectionPatterns {
		if re.MatchString(sql) {
			return pipeline.NewValidationError("sql matches a known injection pattern: "+re.String(), nil)
		}
	}
	return nil
}

func (v *Validator) checkParenthesesBalance(sql string) error {
	balance := 0
	for _, ch := range stripStringLiterals(sql) {
		switch ch {
		case '(':
			balance++
		case ')':
			balance--
			if balance < 0 {
				return pipeline.NewValidationError("unmatched closing parenthesis", nil)
			}
		}
	}
	if balance != 0 {
		return pipeline.NewValidationError("unmatched opening parenthesis", nil)
	}
	return nil
}

// countSubqueryDepth returns the maximum parenthesis nesting depth
// outside of string literals, used as a proxy for subquery nesting.
func countSubqueryDepth(sql string) int {
	depth, maxDepth := 0, 0
	for _, ch := range stripStringLiterals(sql) {
		switch ch {
		case '(':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')':
			depth--
		}
	}
	return maxDepth
}

// stripStringLiterals blanks out the contents of single-quoted string
// literals so structural checks (parens, semicolons) do not trip on
// characters that merely appear inside quoted data.
func stripStringLiterals(sql string) string {
	var b strings.Builder
	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' {
			inString = !inString
			b.WriteByte(' ')
			continue
		}
		if inString {
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
