package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runledger/runledger/domain"
)

func TestCursor_RoundTrip(t *testing.T) {
	c := cursor{SortValue: "2026-01-01T00:00:00Z", RunID: "run1"}
	token := encodeCursor(c)
	require.NotEmpty(t, token)

	decoded, err := decodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestDecodeCursor_InvalidTokenIsErrInvalidCursor(t *testing.T) {
	_, err := decodeCursor("not-valid-base64!!!")
	assert.ErrorIs(t, err, domain.ErrInvalidCursor)

	_, err = decodeCursor("bm90IGpzb24") // valid base64, not JSON
	assert.ErrorIs(t, err, domain.ErrInvalidCursor)
}

func TestSortColumn(t *testing.T) {
	assert.Equal(t, "name", sortColumn(SortName))
	assert.Equal(t, "status", sortColumn(SortStatus))
	assert.Equal(t, "(finished_at - started_at)", sortColumn(SortDuration))
	assert.Equal(t, "created_at", sortColumn(SortCreatedAt))
	assert.Equal(t, "created_at", sortColumn(""))
}

func TestSortValue(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	r := &domain.Run{Name: "exp-1", Status: domain.RunFinished, StartedAt: &start, FinishedAt: &end, CreatedAt: start}

	assert.Equal(t, "exp-1", sortValue(r, SortName))
	assert.Equal(t, "finished", sortValue(r, SortStatus))
	assert.Equal(t, (90 * time.Second).String(), sortValue(r, SortDuration))
	assert.Equal(t, start.Format(time.RFC3339Nano), sortValue(r, SortCreatedAt))
}

func TestSortValue_DurationMissingTimestampsIsEmpty(t *testing.T) {
	r := &domain.Run{}
	assert.Equal(t, "", sortValue(r, SortDuration))
}

func TestGlobToLike(t *testing.T) {
	assert.Equal(t, "exp%run_1", globToLike("exp*run?1"))
	assert.Equal(t, "plain", globToLike("plain"))
}

func TestParamFilterClause_NumericComparison(t *testing.T) {
	var calls []any
	arg := func(v any) string {
		calls = append(calls, v)
		return "$placeholder"
	}
	clause, err := paramFilterClause(ParamFilter{Name: "lr", Op: OpGt, Value: "0.01"}, arg)
	require.NoError(t, err)
	assert.Contains(t, clause, "::double precision")
	assert.Contains(t, clause, ">")
}

func TestParamFilterClause_StringComparisonFallback(t *testing.T) {
	arg := func(v any) string { return "$placeholder" }
	clause, err := paramFilterClause(ParamFilter{Name: "optimizer", Op: OpEq, Value: "adam"}, arg)
	require.NoError(t, err)
	assert.NotContains(t, clause, "::double precision")
}

func TestParamFilterClause_UnknownOpIsError(t *testing.T) {
	arg := func(v any) string { return "$placeholder" }
	_, err := paramFilterClause(ParamFilter{Name: "lr", Op: "bogus", Value: "1"}, arg)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
