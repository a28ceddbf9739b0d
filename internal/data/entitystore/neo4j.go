package entitystore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/biographdb/biograph-backend/internal/platform/logger"
	"github.com/biographdb/biograph-backend/internal/platform/neo4jdb"
)

// Neo4jStore reads the typed entity store from a neo4j database. Node
// collections map to labels and edge collections to relationship types, both
// in PascalCase (protein_interacts_with_protein -> ProteinInteractsWithProtein).
type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, baseLog *logger.Logger) *Neo4jStore {
	return &Neo4jStore{
		client: client,
		log:    baseLog.With("store", "Neo4jStore"),
	}
}

func (s *Neo4jStore) Version(ctx context.Context) (string, error) {
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (m:Metadata) RETURN m.version AS version LIMIT 1`, nil)
		if err != nil {
			return "", err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			// No metadata node is not an error; builds just go unversioned.
			return "", nil
		}
		v, _ := rec.Get("version")
		if str, ok := v.(string); ok {
			return str, nil
		}
		return "", nil
	})
	if err != nil {
		return "", fmt.Errorf("entitystore: version: %w", err)
	}
	return out.(string), nil
}

func (s *Neo4jStore) NodeCollections() []string { return NodeCollectionNames }
func (s *Neo4jStore) EdgeCollections() []string { return EdgeCollectionNames }

func (s *Neo4jStore) ForEach(ctx context.Context, collection string, filter Filter, fn func(Document) error) error {
	node := isNodeCollection(collection)
	if !node && !isEdgeCollection(collection) {
		return fmt.Errorf("entitystore: unknown collection %q", collection)
	}

	alias := "r"
	if node {
		alias = "n"
	}
	where, params := filterCypher(alias, filter)

	var query string
	if node {
		query = fmt.Sprintf(`MATCH (n:%s)%s RETURN properties(n) AS props`,
			PascalCase(collection), where)
	} else if UndirectedEdgeCollections[collection] {
		query = fmt.Sprintf(
			`MATCH (a)-[r:%s]->(b)%s RETURN properties(r) AS props, a.primaryDomainId AS m1, b.primaryDomainId AS m2`,
			PascalCase(collection), where)
	} else {
		query = fmt.Sprintf(
			`MATCH (a)-[r:%s]->(b)%s RETURN properties(r) AS props, a.primaryDomainId AS src, b.primaryDomainId AS tgt`,
			PascalCase(collection), where)
	}

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			rec := res.Record()
			doc := recordDocument(rec, collection)
			if err := fn(doc); err != nil {
				return nil, err
			}
		}
		return nil, res.Err()
	})
	if err != nil {
		return fmt.Errorf("entitystore: stream %s: %w", collection, err)
	}
	return nil
}

func recordDocument(rec *neo4j.Record, collection string) Document {
	doc := Document{}
	if props, ok := rec.Get("props"); ok {
		if m, ok := props.(map[string]any); ok {
			for k, v := range m {
				doc[k] = v
			}
		}
	}
	if UndirectedEdgeCollections[collection] {
		if v, ok := rec.Get("m1"); ok && doc["memberOne"] == nil {
			doc["memberOne"] = v
		}
		if v, ok := rec.Get("m2"); ok && doc["memberTwo"] == nil {
			doc["memberTwo"] = v
		}
	} else if isEdgeCollection(collection) {
		if v, ok := rec.Get("src"); ok && doc["sourceDomainId"] == nil {
			doc["sourceDomainId"] = v
		}
		if v, ok := rec.Get("tgt"); ok && doc["targetDomainId"] == nil {
			doc["targetDomainId"] = v
		}
	}
	return doc
}

// filterCypher renders a Filter as a WHERE clause over the given alias.
// Clause order is fixed (Eq, In, NotIn, GTE; fields sorted) so queries are
// stable for the query planner cache.
func filterCypher(alias string, f Filter) (string, map[string]any) {
	params := map[string]any{}
	var clauses []string
	n := 0
	bind := func(v any) string {
		name := fmt.Sprintf("p%d", n)
		n++
		params[name] = v
		return "$" + name
	}

	for _, field := range sortedKeys(f.Eq) {
		clauses = append(clauses, fmt.Sprintf("%s.%s = %s", alias, field, bind(f.Eq[field])))
	}
	// any() raises a runtime type error on scalar properties, and Cypher's
	// OR does not short-circuit, so the list disjunct is guarded by a type
	// check.
	intersect := func(field, p string) string {
		return fmt.Sprintf(
			"((%s.%s IS :: LIST<ANY> AND any(v IN %s.%s WHERE v IN %s)) OR (NOT %s.%s IS :: LIST<ANY> AND %s.%s IN %s))",
			alias, field, alias, field, p, alias, field, alias, field, p)
	}
	for _, field := range sortedKeys(f.In) {
		clauses = append(clauses, intersect(field, bind(f.In[field])))
	}
	for _, field := range sortedKeys(f.NotIn) {
		p := bind(f.NotIn[field])
		clauses = append(clauses, fmt.Sprintf("(%s.%s IS NULL OR NOT %s)", alias, field, intersect(field, p)))
	}
	for _, field := range sortedKeys(f.GTE) {
		clauses = append(clauses, fmt.Sprintf("%s.%s >= %s", alias, field, bind(f.GTE[field])))
	}

	if len(clauses) == 0 {
		return "", params
	}
	return " WHERE " + strings.Join(clauses, " AND "), params
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PascalCase converts a snake_case collection name to the label/relationship
// casing used in the graph database.
func PascalCase(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "")
}

func isNodeCollection(name string) bool {
	for _, c := range NodeCollectionNames {
		if c == name {
			return true
		}
	}
	return false
}

func isEdgeCollection(name string) bool {
	for _, c := range EdgeCollectionNames {
		if c == name {
			return true
		}
	}
	return false
}
