// Package graphnet materializes the gene–gene / protein–protein networks the
// external algorithms consume, by querying the graph database and writing
// tab-separated edge lists.
package graphnet

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/biographdb/biograph-backend/internal/platform/logger"
	"github.com/biographdb/biograph-backend/internal/platform/neo4jdb"
	"github.com/biographdb/biograph-backend/internal/platform/redisdb"
)

const (
	NetworkDefault        = "DEFAULT"
	NetworkSharedDisorder = "SHARED_DISORDER"

	SeedTypeGene    = "gene"
	SeedTypeProtein = "protein"
)

// Gene–gene links via experimentally asserted PPIs between the encoded proteins.
const geneDefaultQuery = `
MATCH (pa)-[ppi:ProteinInteractsWithProtein]-(pb)
WHERE "exp" IN ppi.evidenceTypes
MATCH (pa)-[:ProteinEncodedBy]->(x)
MATCH (pb)-[:ProteinEncodedBy]->(y)
RETURN DISTINCT x.primaryDomainId AS a, y.primaryDomainId AS b
`

const proteinDefaultQuery = `
MATCH (x)-[ppi:ProteinInteractsWithProtein]-(y)
WHERE "exp" IN ppi.evidenceTypes
RETURN DISTINCT x.primaryDomainId AS a, y.primaryDomainId AS b
`

// Gene–gene links when both genes are asserted for the same disorder.
const sharedDisorderQuery = `
MATCH (x:Gene)-[:GeneAssociatedWithDisorder]->(d:Disorder)
MATCH (y:Gene)-[:GeneAssociatedWithDisorder]->(d:Disorder)
WHERE x <> y
RETURN DISTINCT x.primaryDomainId AS a, y.primaryDomainId AS b
`

type networkKey struct {
	seedType string
	network  string
}

var queryMap = map[networkKey]string{
	{SeedTypeGene, NetworkDefault}:        geneDefaultQuery,
	{SeedTypeProtein, NetworkDefault}:     proteinDefaultQuery,
	{SeedTypeGene, NetworkSharedDisorder}: sharedDisorderQuery,
}

// Supported reports whether a (seed type, network) combination has an
// extraction query.
func Supported(seedType, network string) bool {
	_, ok := queryMap[networkKey{seedType, network}]
	return ok
}

// SeedPrefix is the identifier scheme stripped from network node ids for the
// given seed type.
func SeedPrefix(seedType string) string {
	if seedType == SeedTypeProtein {
		return "uniprot."
	}
	return "entrez."
}

// Extractor streams networks out of neo4j, with an optional redis cache in
// front so repeated jobs against the same dataset skip the traversal.
type Extractor struct {
	neo      *neo4jdb.Client
	cache    *redisdb.Client
	log      *logger.Logger
	cacheTTL time.Duration
}

func NewExtractor(neo *neo4jdb.Client, cache *redisdb.Client, baseLog *logger.Logger, cacheTTL time.Duration) *Extractor {
	return &Extractor{
		neo:      neo,
		cache:    cache,
		log:      baseLog.With("component", "NetworkExtractor"),
		cacheTTL: cacheTTL,
	}
}

// NetworkTSV returns the edge list for the requested network as TSV bytes,
// with identifier scheme prefixes stripped.
func (e *Extractor) NetworkTSV(ctx context.Context, seedType, network string) ([]byte, error) {
	query, ok := queryMap[networkKey{seedType, network}]
	if !ok {
		return nil, fmt.Errorf("graphnet: no %s network for %s seeds", network, seedType)
	}

	cacheKey := fmt.Sprintf("graphnet:%s:%s", seedType, network)
	if e.cache != nil {
		if cached, err := e.cache.RDB.Get(ctx, cacheKey).Bytes(); err == nil {
			e.log.Debug("Network served from cache", "key", cacheKey, "bytes", len(cached))
			return cached, nil
		}
	}

	if e.neo == nil {
		return nil, fmt.Errorf("graphnet: no graph database configured")
	}

	prefix := SeedPrefix(seedType)
	var buf bytes.Buffer

	session := e.neo.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: e.neo.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			rec := res.Record()
			a, _ := rec.Get("a")
			b, _ := rec.Get("b")
			as, aok := a.(string)
			bs, bok := b.(string)
			if !aok || !bok {
				continue
			}
			fmt.Fprintf(&buf, "%s\t%s\n",
				strings.TrimPrefix(as, prefix),
				strings.TrimPrefix(bs, prefix))
		}
		return nil, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graphnet: extract %s/%s: %w", seedType, network, err)
	}

	out := buf.Bytes()
	if e.cache != nil {
		if err := e.cache.RDB.Set(ctx, cacheKey, out, e.cacheTTL).Err(); err != nil {
			e.log.Warn("Network cache write failed", "key", cacheKey, "error", err)
		}
	}
	e.log.Info("Network extracted", "seed_type", seedType, "network", network, "bytes", len(out))
	return out, nil
}
