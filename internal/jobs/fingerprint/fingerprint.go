// Package fingerprint derives the dedup key for a job from its normalized
// parameters. Two parameter sets with identical normalized content always
// produce the same fingerprint, independent of map iteration or the numeric
// types a JSON decoder happened to produce.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Compute hashes (kind, params) into a hex fingerprint. Params must already be
// normalized by the job kind (defaults filled, lists sorted and de-duplicated,
// identifier prefixes stripped); Compute only guarantees a canonical encoding.
func Compute(kind string, params map[string]any) (string, error) {
	canonical, err := canonicalize(params)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	payload, err := json.Marshal(map[string]any{
		"kind":   kind,
		"params": canonical,
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// File hashes the content of an upload so identical files under different
// names collapse to one fingerprint component.
func File(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("fingerprint: hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalize round-trips a value through JSON so that e.g. int(1) and
// float64(1) encode identically regardless of which submit path produced them.
func canonicalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SortedUnique normalizes a list-valued parameter: trims, drops empties,
// de-duplicates and sorts.
func SortedUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// SortedUniqueInts is SortedUnique for integer lists.
func SortedUniqueInts(values []int) []int {
	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
