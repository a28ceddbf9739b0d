// Package entitystore is the read API over the typed node/edge store backing
// graph builds. Entities are owned by an external ingestion pipeline; this
// package only ever reads them.
package entitystore

import "context"

// Document is one stored node or edge with its raw attributes. Nodes carry at
// least primaryDomainId and type; directed edges carry sourceDomainId and
// targetDomainId, undirected edges memberOne and memberTwo.
type Document map[string]any

// Filter is the small predicate language graph builds need. All clauses are
// ANDed; a zero Filter matches every document.
type Filter struct {
	// Eq requires field == value.
	Eq map[string]any
	// In requires the field (scalar or list) to intersect the given values.
	In map[string][]any
	// NotIn is the negation of In; documents missing the field match.
	NotIn map[string][]any
	// GTE requires a numeric field to be >= the given value.
	GTE map[string]float64
}

type Store interface {
	// Version identifies the loaded dataset; it is mixed into graph-build
	// fingerprints so a data refresh invalidates cached builds.
	Version(ctx context.Context) (string, error)
	NodeCollections() []string
	EdgeCollections() []string
	// ForEach streams every document of the named collection matching the
	// filter. Iteration stops at the first error returned by fn.
	ForEach(ctx context.Context, collection string, filter Filter, fn func(Document) error) error
}

// NodeCollectionNames lists the node collections the store schema declares.
var NodeCollectionNames = []string{
	"disorder",
	"drug",
	"gene",
	"pathway",
	"protein",
	"signature",
}

// EdgeCollectionNames lists the edge collections the store schema declares.
var EdgeCollectionNames = []string{
	"disorder_comorbid_with_disorder",
	"disorder_is_subtype_of_disorder",
	"drug_has_contraindication",
	"drug_has_indication",
	"drug_has_target",
	"gene_associated_with_disorder",
	"is_isoform_of",
	"molecule_similarity_molecule",
	"protein_encoded_by",
	"protein_has_signature",
	"protein_in_pathway",
	"protein_interacts_with_protein",
	"protein_similarity_protein",
}

// NodeTypeMap maps a node collection to the entity type tags its documents may
// carry. Drugs subtype into biotech and small-molecule classes.
var NodeTypeMap = map[string][]string{
	"disorder":  {"Disorder"},
	"drug":      {"Drug", "BiotechDrug", "SmallMoleculeDrug"},
	"gene":      {"Gene"},
	"pathway":   {"Pathway"},
	"protein":   {"Protein"},
	"signature": {"Signature"},
}

// UndirectedEdgeCollections marks the collections stored with an unordered
// member pair rather than a source/target pair.
var UndirectedEdgeCollections = map[string]bool{
	"disorder_comorbid_with_disorder": true,
	"molecule_similarity_molecule":    true,
	"protein_interacts_with_protein":  true,
	"protein_similarity_protein":      true,
}

func (d Document) String(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// Strings returns a list-valued attribute, accepting both []string and the
// []any a JSON decoder produces.
func (d Document) Strings(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Clone returns a shallow copy so callers can mutate attribute maps without
// aliasing store-owned documents.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
