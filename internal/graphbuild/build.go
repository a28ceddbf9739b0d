// Package graphbuild assembles filtered property graphs from the typed
// entity store. A build streams the selected edge collections first, then
// the selected node collections, applies the retroactive node filters,
// decorates every surviving node with its type-appropriate attributes,
// prunes isolated nodes of non-requested types and, on request, relabels
// disorder identifiers onto an alternate scheme.
package graphbuild

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/biographdb/biograph-backend/internal/data/entitystore"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
)

const (
	collPPI          = "protein_interacts_with_protein"
	collGeneDisorder = "gene_associated_with_disorder"
)

// conciseNodeAttrs is the per-collection allow-list applied in concise mode.
var conciseNodeAttrs = map[string][]string{
	"pathway":   {"primaryDomainId", "displayName", "type"},
	"drug":      {"primaryDomainId", "domainIds", "displayName", "synonyms", "type", "drugGroups", "indication"},
	"disorder":  {"primaryDomainId", "domainIds", "displayName", "synonyms", "icd10", "type"},
	"gene":      {"primaryDomainId", "displayName", "synonyms", "approvedSymbol", "symbols", "type"},
	"protein":   {"primaryDomainId", "displayName", "geneName", "taxid", "type"},
	"signature": {"primaryDomainId"},
}

type Builder struct {
	store entitystore.Store
	log   *logger.Logger
}

func NewBuilder(store entitystore.Store, baseLog *logger.Logger) *Builder {
	return &Builder{
		store: store,
		log:   baseLog.With("component", "GraphBuilder"),
	}
}

// Build runs all passes and returns the assembled graph. Any invariant
// violation (unexpected entity shape, conflicting decoration, ambiguous
// relabel) returns an error; the caller converts it into a failed job.
func (b *Builder) Build(ctx context.Context, spec Spec) (*Graph, error) {
	g := NewGraph()

	b.log.Debug("Adding edges")
	for _, coll := range spec.Edges {
		if err := b.edgePass(ctx, g, spec, coll); err != nil {
			return nil, err
		}
	}

	b.log.Debug("Adding nodes")
	if err := b.nodePass(ctx, g, spec); err != nil {
		return nil, err
	}

	b.log.Debug("Removing nodes not matching query")
	if err := b.postFilterPass(ctx, g, spec); err != nil {
		return nil, err
	}

	b.log.Debug("Adding node attributes")
	if err := b.decoratePass(ctx, g, spec); err != nil {
		return nil, err
	}

	b.pruneIsolated(g, spec)

	if spec.UseOMIMIDs {
		if err := b.relabelPass(ctx, g); err != nil {
			return nil, err
		}
	}

	b.log.Info("Graph built", "nodes", g.NodeCount(), "edges", g.EdgeCount())
	return g, nil
}

func (b *Builder) edgePass(ctx context.Context, g *Graph, spec Spec, coll string) error {
	switch coll {
	case collPPI:
		return b.ppiEdges(ctx, g, spec)
	case collGeneDisorder:
		return b.geneDisorderEdges(ctx, g, spec)
	default:
		return b.genericEdges(ctx, g, spec, coll)
	}
}

// ppiEdges streams protein interactions restricted to the requested evidence
// types and applies the self-loop policy.
func (b *Builder) ppiEdges(ctx context.Context, g *Graph, spec Spec) error {
	filter := entitystore.Filter{In: map[string][]any{"evidenceTypes": anyList(spec.IIDEvidence)}}
	return b.store.ForEach(ctx, collPPI, filter, func(doc entitystore.Document) error {
		m1 := doc.String("memberOne")
		m2 := doc.String("memberTwo")
		if m1 == "" || m2 == "" {
			return fmt.Errorf("assumption about edge structure violated in %s", collPPI)
		}
		if !spec.PPISelfLoops && m1 == m2 {
			return nil
		}
		if spec.Concise {
			g.AddEdge(m1, m2, map[string]any{
				"memberOne":     m1,
				"memberTwo":     m2,
				"reversible":    true,
				"type":          doc.String("type"),
				"evidenceTypes": strings.Join(doc.Strings("evidenceTypes"), ", "),
			})
		} else {
			attrs := Flatten(doc)
			attrs["reversible"] = true
			g.AddEdge(m1, m2, attrs)
		}
		return nil
	})
}

// geneDisorderEdges includes an association when it is asserted by the
// curated source OR its score clears the threshold; the two criteria are
// unioned, a single qualifying criterion is sufficient.
func (b *Builder) geneDisorderEdges(ctx context.Context, g *Graph, spec Spec) error {
	add := func(doc entitystore.Document) error {
		s := doc.String("sourceDomainId")
		t := doc.String("targetDomainId")
		if s == "" || t == "" {
			return fmt.Errorf("assumption about edge structure violated in %s", collGeneDisorder)
		}
		// Concise and full projections agree for this collection.
		attrs := Flatten(doc)
		attrs["reversible"] = false
		g.AddEdge(s, t, attrs)
		return nil
	}

	if spec.IncludeOMIM {
		omim := entitystore.Filter{In: map[string][]any{"assertedBy": {"omim"}}}
		if err := b.store.ForEach(ctx, collGeneDisorder, omim, add); err != nil {
			return err
		}
	}
	scored := entitystore.Filter{GTE: map[string]float64{"score": spec.DisgenetThreshold}}
	return b.store.ForEach(ctx, collGeneDisorder, scored, add)
}

// genericEdges handles every other edge collection, detecting directedness
// from the document shape.
func (b *Builder) genericEdges(ctx context.Context, g *Graph, spec Spec, coll string) error {
	return b.store.ForEach(ctx, coll, entitystore.Filter{}, func(doc entitystore.Document) error {
		m1, m2 := doc.String("memberOne"), doc.String("memberTwo")
		s, t := doc.String("sourceDomainId"), doc.String("targetDomainId")

		switch {
		case m1 != "" && m2 != "":
			if spec.Concise {
				g.AddEdge(m1, m2, map[string]any{
					"memberOne":  m1,
					"memberTwo":  m2,
					"reversible": true,
					"type":       doc.String("type"),
				})
			} else {
				attrs := Flatten(doc)
				attrs["reversible"] = true
				g.AddEdge(m1, m2, attrs)
			}
		case s != "" && t != "":
			if spec.Concise {
				g.AddEdge(s, t, map[string]any{
					"sourceDomainId": s,
					"targetDomainId": t,
					"reversible":     false,
					"type":           doc.String("type"),
				})
			} else {
				attrs := Flatten(doc)
				attrs["reversible"] = false
				g.AddEdge(s, t, attrs)
			}
		default:
			return fmt.Errorf("assumption about edge structure violated in %s", coll)
		}
		return nil
	})
}

func (b *Builder) nodePass(ctx context.Context, g *Graph, spec Spec) error {
	for _, coll := range spec.Nodes {
		filter := nodeFilter(coll, spec)
		err := b.store.ForEach(ctx, coll, filter, func(doc entitystore.Document) error {
			id := doc.String("primaryDomainId")
			if id == "" {
				return fmt.Errorf("node in %s has no primaryDomainId", coll)
			}
			g.AddNode(id, map[string]any{"primaryDomainId": id})
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// postFilterPass removes proteins and drugs that fail their type filters even
// when an edge pass pulled them in as endpoints.
func (b *Builder) postFilterPass(ctx context.Context, g *Graph, spec Spec) error {
	excluded := []struct {
		coll   string
		filter entitystore.Filter
	}{
		{"protein", entitystore.Filter{NotIn: map[string][]any{"taxid": intAnyList(spec.TaxID)}}},
		{"drug", entitystore.Filter{NotIn: map[string][]any{"drugGroups": anyList(spec.DrugGroups)}}},
	}
	for _, ex := range excluded {
		err := b.store.ForEach(ctx, ex.coll, ex.filter, func(doc entitystore.Document) error {
			g.RemoveNode(doc.String("primaryDomainId"))
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// decoratePass looks up a type-appropriate attribute record for every node in
// the graph. A node decorated from two collections is an invariant violation.
func (b *Builder) decoratePass(ctx context.Context, g *Graph, spec Spec) error {
	decorated := make(map[string]string, g.NodeCount())

	for _, coll := range b.store.NodeCollections() {
		err := b.store.ForEach(ctx, coll, entitystore.Filter{}, func(doc entitystore.Document) error {
			id := doc.String("primaryDomainId")
			if id == "" || !g.HasNode(id) {
				return nil
			}
			if prev, ok := decorated[id]; ok {
				return fmt.Errorf("node %s decorated by both %s and %s", id, prev, coll)
			}
			decorated[id] = coll

			doc = doc.Clone()
			if coll == "drug" {
				if spec.SplitDrugTypes {
					doc["type"] = doc.String("drugClass")
				} else {
					doc["type"] = "Drug"
				}
			}

			var attrs map[string]any
			if spec.Concise {
				allowed, ok := conciseNodeAttrs[coll]
				if !ok {
					return fmt.Errorf("no concise attribute set for collection %s", coll)
				}
				picked := entitystore.Document{}
				for _, attr := range allowed {
					if v, ok := doc[attr]; ok {
						picked[attr] = v
					} else {
						picked[attr] = ""
					}
				}
				attrs = Flatten(picked)
			} else {
				attrs = Flatten(doc)
			}
			g.AddNode(id, attrs)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// pruneIsolated drops nodes whose type was not requested and that ended up
// with no incident edges.
func (b *Builder) pruneIsolated(g *Graph, spec Spec) {
	requested := make(map[string]bool)
	for _, coll := range spec.Nodes {
		for _, typ := range entitystore.NodeTypeMap[coll] {
			requested[typ] = true
		}
	}

	var remove []string
	for _, id := range g.NodeIDs() {
		typ, _ := g.NodeAttrs(id)["type"].(string)
		if requested[typ] {
			continue
		}
		if g.Degree(id) > 0 {
			continue
		}
		remove = append(remove, id)
	}
	for _, id := range remove {
		g.RemoveNode(id)
	}
}

// relabelPass rewrites disorder nodes with exactly one unambiguous omim
// cross-reference onto that identifier, keeping every edge attribute that
// mirrors an endpoint id consistent with the new labels.
func (b *Builder) relabelPass(ctx context.Context, g *Graph) error {
	// omim xref -> primary ids carrying it; only 1:1 pairs are relabeled.
	omimXrefs := make(map[string][]string)
	err := b.store.ForEach(ctx, "disorder", entitystore.Filter{}, func(doc entitystore.Document) error {
		var xrefs []string
		for _, domainID := range doc.Strings("domainIds") {
			if strings.HasPrefix(domainID, "omim.") {
				xrefs = append(xrefs, domainID)
			}
		}
		if len(xrefs) == 1 {
			omimXrefs[xrefs[0]] = append(omimXrefs[xrefs[0]], doc.String("primaryDomainId"))
		}
		return nil
	})
	if err != nil {
		return err
	}

	mapping := make(map[string]string)
	for omim, primaries := range omimXrefs {
		if len(primaries) == 1 && g.HasNode(primaries[0]) {
			mapping[primaries[0]] = omim
		}
	}
	if len(mapping) == 0 {
		return nil
	}

	for oldID, omim := range mapping {
		g.AddNode(oldID, map[string]any{"primaryDomainId": omim})
	}
	if err := g.Relabel(mapping); err != nil {
		return err
	}

	// Rewrite endpoint copies held in edge attributes.
	for _, key := range g.EdgeKeys() {
		attrs := g.EdgeAttrs(key)
		for attr, endpoint := range map[string]string{
			"memberOne":      key.Source,
			"memberTwo":      key.Target,
			"sourceDomainId": key.Source,
			"targetDomainId": key.Target,
		} {
			if v, ok := attrs[attr].(string); ok && v != endpoint {
				attrs[attr] = endpoint
			}
		}
	}
	return nil
}

func nodeFilter(coll string, spec Spec) entitystore.Filter {
	switch coll {
	case "protein":
		return entitystore.Filter{In: map[string][]any{"taxid": intAnyList(spec.TaxID)}}
	case "drug":
		return entitystore.Filter{In: map[string][]any{"drugGroups": anyList(spec.DrugGroups)}}
	default:
		return entitystore.Filter{}
	}
}

// Flatten collapses nested attribute maps into underscore-joined keys and
// joins list values into ", "-delimited scalars so every attribute can
// serialize to a flat exchange format. Nil values become "None".
func Flatten(doc map[string]any) map[string]any {
	flat := make(map[string]any, len(doc))
	flattenInto(flat, "", doc)

	for k, v := range flat {
		switch val := v.(type) {
		case nil:
			flat[k] = "None"
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			flat[k] = strings.Join(parts, ", ")
		case []string:
			flat[k] = strings.Join(val, ", ")
		case []int:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			flat[k] = strings.Join(parts, ", ")
		}
	}
	return flat
}

func flattenInto(out map[string]any, prefix string, value map[string]any) {
	keys := make([]string, 0, len(value))
	for k := range value {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "_" + k
		}
		if nested, ok := value[k].(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = value[k]
	}
}

func anyList(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func intAnyList(values []int) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
