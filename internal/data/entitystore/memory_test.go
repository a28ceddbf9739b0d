package entitystore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchesEq(t *testing.T) {
	doc := Document{"type": "Protein", "taxid": 9606}

	require.True(t, Matches(Filter{Eq: map[string]any{"type": "Protein"}}, doc))
	require.False(t, Matches(Filter{Eq: map[string]any{"type": "Gene"}}, doc))
	// Numeric equality is type-insensitive.
	require.True(t, Matches(Filter{Eq: map[string]any{"taxid": float64(9606)}}, doc))
}

func TestMatchesIn(t *testing.T) {
	scalar := Document{"taxid": 9606}
	list := Document{"evidenceTypes": []any{"exp", "ortho"}}

	require.True(t, Matches(Filter{In: map[string][]any{"taxid": {-1, 9606}}}, scalar))
	require.False(t, Matches(Filter{In: map[string][]any{"taxid": {-1}}}, scalar))

	// A list-valued field matches when it intersects the candidates.
	require.True(t, Matches(Filter{In: map[string][]any{"evidenceTypes": {"exp"}}}, list))
	require.False(t, Matches(Filter{In: map[string][]any{"evidenceTypes": {"pred"}}}, list))

	// Missing fields never satisfy In.
	require.False(t, Matches(Filter{In: map[string][]any{"absent": {"x"}}}, scalar))
}

func TestMatchesNotIn(t *testing.T) {
	doc := Document{"drugGroups": []any{"approved", "investigational"}}

	require.False(t, Matches(Filter{NotIn: map[string][]any{"drugGroups": {"approved"}}}, doc))
	require.True(t, Matches(Filter{NotIn: map[string][]any{"drugGroups": {"withdrawn"}}}, doc))
	// Documents without the field pass the exclusion.
	require.True(t, Matches(Filter{NotIn: map[string][]any{"absent": {"x"}}}, doc))
}

func TestMatchesGTE(t *testing.T) {
	doc := Document{"score": 0.5}

	require.True(t, Matches(Filter{GTE: map[string]float64{"score": 0.5}}, doc))
	require.False(t, Matches(Filter{GTE: map[string]float64{"score": 0.6}}, doc))
	// Non-numeric or missing fields fail the bound.
	require.False(t, Matches(Filter{GTE: map[string]float64{"absent": 0}}, doc))
}

func TestMemoryStoreForEach(t *testing.T) {
	s := NewMemoryStore("v1")
	s.Add("protein",
		Document{"primaryDomainId": "uniprot.P1", "taxid": 9606},
		Document{"primaryDomainId": "uniprot.P2", "taxid": -1},
	)

	var seen []string
	err := s.ForEach(context.Background(), "protein", Filter{In: map[string][]any{"taxid": {9606}}}, func(doc Document) error {
		seen = append(seen, doc.String("primaryDomainId"))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"uniprot.P1"}, seen)

	version, err := s.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, "v1", version)
}

func TestDocumentHelpers(t *testing.T) {
	doc := Document{"name": "x", "tags": []any{"a", "b"}}

	require.Equal(t, "x", doc.String("name"))
	require.Empty(t, doc.String("absent"))
	require.Equal(t, []string{"a", "b"}, doc.Strings("tags"))

	clone := doc.Clone()
	clone["name"] = "y"
	require.Equal(t, "x", doc.String("name"))
}
