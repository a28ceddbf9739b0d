package entitystore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterCypher(t *testing.T) {
	where, params := filterCypher("n", Filter{})
	require.Empty(t, where)
	require.Empty(t, params)

	where, params = filterCypher("n", Filter{
		Eq:  map[string]any{"type": "Protein"},
		GTE: map[string]float64{"score": 0.5},
	})
	require.Equal(t, " WHERE n.type = $p0 AND n.score >= $p1", where)
	require.Equal(t, map[string]any{"p0": "Protein", "p1": 0.5}, params)
}

func TestFilterCypherListGuards(t *testing.T) {
	// In and NotIn run over properties that may be scalar or list valued.
	// any() raises a runtime type error on scalars, so the rendered clause
	// must gate the list disjunct behind a type check.
	where, params := filterCypher("r", Filter{
		In: map[string][]any{"evidenceTypes": {"exp"}},
	})
	require.Contains(t, where, "r.evidenceTypes IS :: LIST<ANY> AND any(v IN r.evidenceTypes WHERE v IN $p0)")
	require.Contains(t, where, "NOT r.evidenceTypes IS :: LIST<ANY> AND r.evidenceTypes IN $p0")
	require.Equal(t, map[string]any{"p0": []any{"exp"}}, params)

	where, _ = filterCypher("r", Filter{
		NotIn: map[string][]any{"drugGroups": {"withdrawn"}},
	})
	require.Contains(t, where, "r.drugGroups IS NULL OR NOT")
	require.Contains(t, where, "r.drugGroups IS :: LIST<ANY>")
}
