package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = []float64{float64(i), float64(i) * 10, float64(i) * 100}
	}
	return out
}

func TestBuildSingleStep(t *testing.T) {
	b := SequenceBuilder{Mode: SingleStep, WindowSize: 3}
	require.NoError(t, b.Validate())

	pairs := b.Build(series(6))
	require.Len(t, pairs, 3)

	first := pairs[0]
	assert.Equal(t, [][]float64{{0, 0, 0}, {1, 10, 100}, {2, 20, 200}}, first.Input.Steps)
	assert.Equal(t, []bool{true, true, true}, first.Input.Mask)
	assert.Equal(t, [][]float64{{3, 30, 300}}, first.Target)

	last := pairs[2]
	assert.Equal(t, float64(2), last.Input.Steps[0][0])
	assert.Equal(t, float64(5), last.Target[0][0])
}

func TestBuildShortSeriesYieldsNothing(t *testing.T) {
	cases := []struct {
		name string
		b    SequenceBuilder
		n    int
	}{
		{"single shorter than window", SequenceBuilder{Mode: SingleStep, WindowSize: 20}, 5},
		{"single equal to window", SequenceBuilder{Mode: SingleStep, WindowSize: 5}, 5},
		{"single empty", SequenceBuilder{Mode: SingleStep, WindowSize: 2}, 0},
		{"multi shorter than future", SequenceBuilder{Mode: MultiStep, FutureSteps: 4}, 3},
		{"multi without full block", SequenceBuilder{Mode: MultiStep, FutureSteps: 4}, 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Empty(t, tc.b.Build(series(tc.n)))
		})
	}
}

func TestBuildMultiStep(t *testing.T) {
	b := SequenceBuilder{Mode: MultiStep, FutureSteps: 2}
	assert.Equal(t, 2, b.Horizon())

	pairs := b.Build(series(6))
	// positions i = 1..3
	require.Len(t, pairs, 3)

	assert.Equal(t, 2, pairs[0].Input.Len())
	assert.Equal(t, [][]float64{{2, 20, 200}, {3, 30, 300}}, pairs[0].Target)

	assert.Equal(t, 4, pairs[2].Input.Len())
	assert.Equal(t, float64(3), pairs[2].Input.Steps[3][0])
	assert.Equal(t, [][]float64{{4, 40, 400}, {5, 50, 500}}, pairs[2].Target)
}

func TestBuildMultiStepLowerBound(t *testing.T) {
	b := SequenceBuilder{Mode: MultiStep, FutureSteps: 3}

	assert.Empty(t, b.Build(series(5)))

	pairs := b.Build(series(6))
	require.Len(t, pairs, 1)
	assert.Equal(t, 3, pairs[0].Input.Len())
	assert.Equal(t, [][]float64{{3, 30, 300}, {4, 40, 400}, {5, 50, 500}}, pairs[0].Target)
}

func TestBuildMultiStepMaxHistory(t *testing.T) {
	b := SequenceBuilder{Mode: MultiStep, FutureSteps: 1, MaxHistory: 2}
	pairs := b.Build(series(5))
	require.Len(t, pairs, 4)
	for _, p := range pairs {
		assert.LessOrEqual(t, p.Input.Len(), 2)
	}
	assert.Equal(t, float64(2), pairs[3].Input.Steps[0][0])
}

func TestPadBatch(t *testing.T) {
	b := SequenceBuilder{Mode: MultiStep, FutureSteps: 1}
	padded := PadBatch(b.Build(series(4)))
	require.Len(t, padded, 3)

	for _, p := range padded {
		assert.Equal(t, 3, p.Input.Len())
	}
	first := padded[0].Input
	assert.Equal(t, []bool{false, false, true}, first.Mask)
	assert.Equal(t, []float64{0, 0, 0}, first.Steps[0])
	assert.Equal(t, 1, first.Real())

	full := padded[2].Input
	assert.Equal(t, []bool{true, true, true}, full.Mask)
}

func TestBuildAllKeepsSeriesApart(t *testing.T) {
	b := SequenceBuilder{Mode: SingleStep, WindowSize: 2}
	pairs := b.BuildAll([][][]float64{series(3), series(1), series(4)})
	assert.Len(t, pairs, 1+0+2)
}

func TestParseStepMode(t *testing.T) {
	m, err := ParseStepMode("")
	require.NoError(t, err)
	assert.Equal(t, SingleStep, m)

	m, err = ParseStepMode("multi")
	require.NoError(t, err)
	assert.Equal(t, MultiStep, m)

	_, err = ParseStepMode("both")
	assert.Error(t, err)
}
