package entitystore

import (
	"context"
	"fmt"
)

// MemoryStore is an in-memory Store used by tests and local fixtures.
type MemoryStore struct {
	version     string
	collections map[string][]Document
}

func NewMemoryStore(version string) *MemoryStore {
	return &MemoryStore{
		version:     version,
		collections: make(map[string][]Document),
	}
}

// Add appends documents to a collection. Documents are stored as given; the
// caller is responsible for schema-conformant shapes.
func (s *MemoryStore) Add(collection string, docs ...Document) {
	s.collections[collection] = append(s.collections[collection], docs...)
}

func (s *MemoryStore) Version(ctx context.Context) (string, error) {
	return s.version, nil
}

func (s *MemoryStore) NodeCollections() []string { return NodeCollectionNames }
func (s *MemoryStore) EdgeCollections() []string { return EdgeCollectionNames }

func (s *MemoryStore) ForEach(ctx context.Context, collection string, filter Filter, fn func(Document) error) error {
	for _, doc := range s.collections[collection] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !Matches(filter, doc) {
			continue
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// Matches evaluates a Filter against a document. Exported so the neo4j
// implementation's tests can share the reference semantics.
func Matches(f Filter, doc Document) bool {
	for field, want := range f.Eq {
		if !valueEq(doc[field], want) {
			return false
		}
	}
	for field, values := range f.In {
		if !intersects(doc[field], values) {
			return false
		}
	}
	for field, values := range f.NotIn {
		if intersects(doc[field], values) {
			return false
		}
	}
	for field, min := range f.GTE {
		n, ok := toFloat(doc[field])
		if !ok || n < min {
			return false
		}
	}
	return true
}

// intersects reports whether a scalar or list field shares a value with the
// candidate list.
func intersects(field any, values []any) bool {
	switch v := field.(type) {
	case nil:
		return false
	case []any:
		for _, item := range v {
			for _, want := range values {
				if valueEq(item, want) {
					return true
				}
			}
		}
		return false
	case []string:
		for _, item := range v {
			for _, want := range values {
				if valueEq(item, want) {
					return true
				}
			}
		}
		return false
	case []int:
		for _, item := range v {
			for _, want := range values {
				if valueEq(item, want) {
					return true
				}
			}
		}
		return false
	default:
		for _, want := range values {
			if valueEq(field, want) {
				return true
			}
		}
		return false
	}
}

func valueEq(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
