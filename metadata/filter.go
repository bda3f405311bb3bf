package metadata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/runledger/runledger/domain"
)

// ParamOp is a parameter-comparison operator for list_runs filters.
type ParamOp string

const (
	OpEq       ParamOp = "eq"
	OpNe       ParamOp = "ne"
	OpGt       ParamOp = "gt"
	OpGe       ParamOp = "ge"
	OpLt       ParamOp = "lt"
	OpLe       ParamOp = "le"
	OpContains ParamOp = "contains"
)

// ParamFilter is one parameter comparison clause.
type ParamFilter struct {
	Name  string
	Op    ParamOp
	Value string
}

// SortKey selects the list_runs ordering column.
type SortKey string

const (
	SortCreatedAt SortKey = "created_at"
	SortName      SortKey = "name"
	SortStatus    SortKey = "status"
	SortDuration  SortKey = "duration"
)

// Filter is the conjunction of constraints list_runs accepts.
type Filter struct {
	ProjectID  string
	Statuses   []domain.RunStatus
	Tags       map[string]string
	NameGlob   string
	After      *time.Time
	Before     *time.Time
	ParentID   *string
	Params     []ParamFilter
	Sort       SortKey
	Descending bool
}

// cursor is the decoded pagination token: the last-returned row's sort key
// plus an identity tiebreak.
type cursor struct {
	SortValue string `json:"sv"`
	RunID     string `json:"id"`
}

func encodeCursor(c cursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(token string) (cursor, error) {
	var c cursor
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return c, domain.ErrInvalidCursor
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, domain.ErrInvalidCursor
	}
	return c, nil
}

// ListResult is the page returned by ListRuns.
type ListResult struct {
	Runs            []*domain.Run
	NextPageToken   string
	TotalEstimated  int64
	EstimateIsExact bool
}

const estimateThreshold = 10000

// ListRuns applies Filter and returns one page, cursor-based per the
// component spec.
func (s *Store) ListRuns(ctx context.Context, f Filter, pageToken string, pageSize int) (*ListResult, error) {
	if pageSize <= 0 {
		pageSize = 50
	}
	sortCol := sortColumn(f.Sort)
	desc := f.Descending || f.Sort == "" // created_at defaults desc

	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, "project_id = "+arg(f.ProjectID))
	where = append(where, "1=1") // placeholder keeps AND-joining simple below

	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			ph[i] = arg(string(st))
		}
		where = append(where, "status IN ("+strings.Join(ph, ",")+")")
	}
	if f.NameGlob != "" {
		where = append(where, "name LIKE "+arg(globToLike(f.NameGlob)))
	}
	if f.After != nil {
		where = append(where, "created_at >= "+arg(*f.After))
	}
	if f.Before != nil {
		where = append(where, "created_at <= "+arg(*f.Before))
	}
	if f.ParentID != nil {
		where = append(where, "parent_run_id = "+arg(*f.ParentID))
	}
	for k, v := range f.Tags {
		where = append(where, fmt.Sprintf("tags->>%s = %s", arg(k), arg(v)))
	}
	for _, pf := range f.Params {
		clause, err := paramFilterClause(pf, arg)
		if err != nil {
			return nil, err
		}
		where = append(where, clause)
	}
	countWhere := strings.Join(where, " AND ")
	countArgs := append([]any(nil), args...)

	if pageToken != "" {
		c, err := decodeCursor(pageToken)
		if err != nil {
			return nil, err
		}
		cmp := ">"
		if desc {
			cmp = "<"
		}
		where = append(where, fmt.Sprintf("(%s, id) %s (%s, %s)", sortCol, cmp, arg(c.SortValue), arg(c.RunID)))
	}

	order := "ASC"
	if desc {
		order = "DESC"
	}
	nullsOrder := ""
	if f.Sort == SortDuration {
		nullsOrder = " NULLS LAST"
	}

	query := fmt.Sprintf(`SELECT %s FROM runs WHERE %s ORDER BY %s %s%s, id %s LIMIT %d`,
		runColumns, strings.Join(where, " AND "), sortCol, order, nullsOrder, order, pageSize+1)

	rows, err := s.pg.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("metadata: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("metadata: scan list row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &ListResult{}
	if len(runs) > pageSize {
		last := runs[pageSize-1]
		result.NextPageToken = encodeCursor(cursor{SortValue: sortValue(last, f.Sort), RunID: last.ID})
		runs = runs[:pageSize]
	}
	result.Runs = runs
	result.TotalEstimated, result.EstimateIsExact = s.estimateCount(ctx, countWhere, countArgs, len(runs) > 0)
	return result, nil
}

func sortColumn(k SortKey) string {
	switch k {
	case SortName:
		return "name"
	case SortStatus:
		return "status"
	case SortDuration:
		return "(finished_at - started_at)"
	default:
		return "created_at"
	}
}

func sortValue(r *domain.Run, k SortKey) string {
	switch k {
	case SortName:
		return r.Name
	case SortStatus:
		return string(r.Status)
	case SortDuration:
		if r.FinishedAt == nil || r.StartedAt == nil {
			return ""
		}
		return r.FinishedAt.Sub(*r.StartedAt).String()
	default:
		return r.CreatedAt.Format(time.RFC3339Nano)
	}
}

// estimateCount counts the runs matching the filter (without the page
// cursor). It always runs a full count(*); no estimate is computed, and a
// count above estimateThreshold is only reported as not exact.
func (s *Store) estimateCount(ctx context.Context, where string, args []any, hasRows bool) (int64, bool) {
	var n int64
	row := s.pg.QueryRow(ctx, `SELECT count(*) FROM runs WHERE `+where, args...)
	if err := row.Scan(&n); err != nil {
		return 0, false
	}
	if n > estimateThreshold {
		return n, false
	}
	return n, true
}

func globToLike(glob string) string {
	return strings.NewReplacer("*", "%", "?", "_").Replace(glob)
}

// numericLiteral is the advanced-regex Postgres uses (via `~`) to decide
// whether a stored parameter value looks like a number, mirroring what
// strconv.ParseFloat accepts for the filter's own value.
const numericLiteral = `^[+-]?(\d+(\.\d+)?|\.\d+)([eE][+-]?\d+)?$`

// paramFilterClause renders a parameter comparison. Numeric coercion applies
// only when both the stored value and the comparison value parse as
// numbers; otherwise the comparison falls back to string ordering. The
// stored side's numericness can only be decided in SQL (it's a column
// value, not something Go ever sees), so every compare against a numeric
// filter value is wrapped in a CASE that checks the stored value against numericLiteral
// before casting either side to double precision — a stored value like
// "auto" compared against a numeric filter degrades to a text compare
// instead of making Postgres raise invalid_text_representation.
func paramFilterClause(pf ParamFilter, arg func(any) string) (string, error) {
	nameArg := arg(pf.Name)
	joinExpr := fmt.Sprintf("(SELECT value FROM parameters WHERE parameters.run_id = runs.id AND parameters.name = %s)", nameArg)

	if pf.Op == OpContains {
		valArg := arg(pf.Value)
		return fmt.Sprintf("%s LIKE '%%' || %s || '%%'", joinExpr, valArg), nil
	}

	sqlOp, err := comparisonOperator(pf.Op)
	if err != nil {
		return "", err
	}

	if _, err := strconv.ParseFloat(pf.Value, 64); err != nil {
		// Filter value itself isn't numeric: always a text compare.
		valArg := arg(pf.Value)
		return fmt.Sprintf("%s %s %s", joinExpr, sqlOp, valArg), nil
	}

	valArg := arg(pf.Value)
	regexArg := arg(numericLiteral)
	return fmt.Sprintf(
		"(CASE WHEN %s ~ %s THEN (%s)::double precision %s (%s)::double precision ELSE %s %s %s END)",
		joinExpr, regexArg, joinExpr, sqlOp, valArg, joinExpr, sqlOp, valArg,
	), nil
}

func comparisonOperator(op ParamOp) (string, error) {
	switch op {
	case OpEq:
		return "=", nil
	case OpNe:
		return "<>", nil
	case OpGt:
		return ">", nil
	case OpGe:
		return ">=", nil
	case OpLt:
		return "<", nil
	case OpLe:
		return "<=", nil
	default:
		return "", fmt.Errorf("%w: unknown parameter operator %q", domain.ErrInvalidArgument, op)
	}
}
