package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-economic-model/internal/postprocess"
)

// table builds two subsets. Subset 0 has three full runs; subset 1 has one
// full run and one truncated at timestep 1.
func table(t *testing.T) *postprocess.Table {
	t.Helper()
	tb := postprocess.NewTable()
	require.NoError(t, tb.AddInts("subset", []int64{0, 0, 0, 0, 0, 0, 1, 1, 1, 1}))
	require.NoError(t, tb.AddInts("run", []int64{1, 1, 2, 2, 3, 3, 1, 1, 2, 2}))
	require.NoError(t, tb.AddInts("timestep", []int64{0, 2, 0, 2, 0, 2, 0, 2, 0, 1}))
	require.NoError(t, tb.AddStrings("subset_label", []string{"a", "a", "a", "a", "a", "a", "b", "b", "b", "b"}))
	require.NoError(t, tb.AddFloats("profit", []float64{0, 10, 0, 20, 0, 30, 0, 50, 0, 999}))
	require.NoError(t, tb.AddInts("validators", []int64{1, 2, 1, 4, 1, 6, 1, 1, 1, 1}))
	return tb
}

func TestSummarize(t *testing.T) {
	got, err := Summarize(table(t), []string{"profit", "validators"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	a := got[0]
	assert.Equal(t, "a", a.Label)
	assert.Equal(t, 3, a.Runs)
	assert.Equal(t, 2, a.Timestep)
	assert.InDelta(t, 20, a.Metrics["profit"].Mean, 1e-12)
	assert.InDelta(t, 10, a.Metrics["profit"].StdDev, 1e-12)
	assert.Equal(t, 10.0, a.Metrics["profit"].Min)
	assert.Equal(t, 30.0, a.Metrics["profit"].Max)
	assert.LessOrEqual(t, a.Metrics["profit"].P05, a.Metrics["profit"].P95)
	assert.InDelta(t, 4, a.Metrics["validators"].Mean, 1e-12)

	b := got[1]
	assert.Equal(t, 1, b.Runs, "truncated run is excluded")
	assert.Equal(t, 50.0, b.Metrics["profit"].Mean)
	assert.Zero(t, b.Metrics["profit"].StdDev)
}

func TestSummarizeErrors(t *testing.T) {
	_, err := Summarize(table(t), []string{"missing"})
	assert.ErrorContains(t, err, "unknown metric")

	_, err = Summarize(table(t), []string{"subset_label"})
	assert.ErrorContains(t, err, "not numeric")

	_, err = Summarize(postprocess.NewTable(), nil)
	assert.Error(t, err)
}

func TestRank(t *testing.T) {
	sums, err := Summarize(table(t), []string{"profit"})
	require.NoError(t, err)

	ranked, err := Rank(sums, "profit")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, []string{ranked[0].Label, ranked[1].Label})
	assert.Equal(t, "a", sums[0].Label, "input is not reordered")

	_, err = Rank(sums, "validators")
	assert.Error(t, err)
}
