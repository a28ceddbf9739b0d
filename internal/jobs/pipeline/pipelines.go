// Package pipelines contains one runtime.Kind per analysis job. Each kind
// owns its parameter normalization, its tool invocation (argv, inputs,
// outputs) and the shape of its result payload; the orchestration engine
// treats them uniformly through the registry.
package pipelines

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/biographdb/biograph-backend/internal/data/graphnet"
	"github.com/biographdb/biograph-backend/internal/jobs/fingerprint"
	pkgerrors "github.com/biographdb/biograph-backend/internal/pkg/errors"
)

// NetworkSource hands out gene–gene / protein–protein edge lists in TSV form.
// Satisfied by graphnet.Extractor; tests substitute a fixture.
type NetworkSource interface {
	NetworkTSV(ctx context.Context, seedType, network string) ([]byte, error)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", pkgerrors.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func stringsParam(params map[string]any, key string) ([]string, bool) {
	switch v := params[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func stringParam(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return def
}

func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func intParam(params map[string]any, key string) (int, bool) {
	f, ok := floatParam(params, key)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func boolParam(params map[string]any, key string, def bool) (bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalidf("%s must be a boolean", key)
	}
	return b, nil
}

var numericSeed = regexp.MustCompile(`^[0-9]+$`)

// normalizeSeeds canonicalizes module-detection seeds and infers the seed
// type: entrez-prefixed or purely numeric identifiers are genes, everything
// else (uniprot-prefixed or bare accessions) is a protein. Mixing the two is
// rejected since a single network must host every seed.
func normalizeSeeds(raw []string) (seedType string, seeds []string, err error) {
	if len(raw) == 0 {
		return "", nil, invalidf("no seeds submitted")
	}
	for _, seed := range raw {
		s := strings.ToUpper(strings.TrimSpace(seed))
		if s == "" {
			continue
		}
		var t string
		switch {
		case strings.HasPrefix(s, "ENTREZ."):
			t, s = graphnet.SeedTypeGene, strings.TrimPrefix(s, "ENTREZ.")
		case numericSeed.MatchString(s):
			t = graphnet.SeedTypeGene
		case strings.HasPrefix(s, "UNIPROT."):
			t, s = graphnet.SeedTypeProtein, strings.TrimPrefix(s, "UNIPROT.")
		default:
			t = graphnet.SeedTypeProtein
		}
		if seedType == "" {
			seedType = t
		} else if seedType != t {
			return "", nil, invalidf("seeds mix gene and protein identifiers")
		}
		seeds = append(seeds, s)
	}
	if len(seeds) == 0 {
		return "", nil, invalidf("no seeds submitted")
	}
	return seedType, fingerprint.SortedUnique(seeds), nil
}

// normalizeUniprotSeeds canonicalizes drug-ranking seeds, which are always
// uniprot accessions.
func normalizeUniprotSeeds(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, invalidf("no seeds submitted")
	}
	seeds := make([]string, 0, len(raw))
	for _, seed := range raw {
		s := strings.ToUpper(strings.TrimSpace(seed))
		if s == "" {
			continue
		}
		s = strings.TrimPrefix(s, "UNIPROT.")
		seeds = append(seeds, s)
	}
	if len(seeds) == 0 {
		return nil, invalidf("no seeds submitted")
	}
	return fingerprint.SortedUnique(seeds), nil
}

func normalizeNetwork(params map[string]any) (string, error) {
	network := strings.ToUpper(stringParam(params, "network", graphnet.NetworkDefault))
	switch network {
	case graphnet.NetworkDefault, graphnet.NetworkSharedDisorder:
		return network, nil
	default:
		return "", invalidf("invalid network: %s", network)
	}
}

// networkEdge is one undirected row of an extracted network file, endpoints
// ordered lexicographically so membership checks are direction-free.
type networkEdge struct {
	a, b string
}

func orderedEdge(a, b string) networkEdge {
	if b < a {
		a, b = b, a
	}
	return networkEdge{a: a, b: b}
}

func parseNetworkTSV(tsv []byte) (edges []networkEdge, nodes map[string]bool) {
	nodes = make(map[string]bool)
	for _, line := range strings.Split(string(tsv), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}
		edges = append(edges, orderedEdge(parts[0], parts[1]))
		nodes[parts[0]] = true
		nodes[parts[1]] = true
	}
	return edges, nodes
}

func writeNetworkFile(dir string, tsv []byte) (string, error) {
	path := filepath.Join(dir, "network.tsv")
	if err := os.WriteFile(path, tsv, 0o644); err != nil {
		return "", fmt.Errorf("write network file: %w", err)
	}
	return path, nil
}

func writeSeedsFile(dir string, seeds []string) (string, error) {
	path := filepath.Join(dir, "seeds.txt")
	content := strings.Join(seeds, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write seeds file: %w", err)
	}
	return path, nil
}

func seedsInNetwork(seeds []string, nodes map[string]bool) []string {
	in := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if nodes[s] {
			in = append(in, s)
		}
	}
	return in
}

// moveFile moves a scratch artifact into the durable results tree, falling
// back to copy+remove when the rename crosses filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("move artifact: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("move artifact: %w", err)
	}
	return os.Remove(src)
}
