package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeDeterministic(t *testing.T) {
	params := map[string]any{
		"seeds": []string{"A", "B"},
		"n":     10,
	}
	a, err := Compute("diamond", params)
	require.NoError(t, err)
	b, err := Compute("diamond", params)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 64)
}

func TestComputeKeyOrderIndependent(t *testing.T) {
	a, err := Compute("diamond", map[string]any{"n": 10, "alpha": 1, "seeds": []string{"A"}})
	require.NoError(t, err)
	b, err := Compute("diamond", map[string]any{"seeds": []string{"A"}, "alpha": 1, "n": 10})
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestComputeNumericEquivalence(t *testing.T) {
	// Decoded JSON hands back float64; callers hand in int. Both spell the
	// same job.
	a, err := Compute("diamond", map[string]any{"n": 10})
	require.NoError(t, err)
	b, err := Compute("diamond", map[string]any{"n": float64(10)})
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestComputeDistinguishes(t *testing.T) {
	a, err := Compute("diamond", map[string]any{"n": 10})
	require.NoError(t, err)

	b, err := Compute("diamond", map[string]any{"n": 11})
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	c, err := Compute("must", map[string]any{"n": 10})
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestFile(t *testing.T) {
	a, err := File(strings.NewReader("gene,expr\nA,1\n"))
	require.NoError(t, err)
	b, err := File(strings.NewReader("gene,expr\nA,1\n"))
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := File(strings.NewReader("gene,expr\nA,2\n"))
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestSortedUnique(t *testing.T) {
	require.Equal(t, []string{"A", "B", "C"}, SortedUnique([]string{"C", "A", "B", "A", "C"}))
	require.Empty(t, SortedUnique(nil))
	require.Equal(t, []int{-1, 9606}, SortedUniqueInts([]int{9606, -1, 9606}))
}
