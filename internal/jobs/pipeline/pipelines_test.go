package pipelines

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/biographdb/biograph-backend/internal/data/entitystore"
	"github.com/biographdb/biograph-backend/internal/data/graphnet"
	jobsrepo "github.com/biographdb/biograph-backend/internal/data/repos/jobs"
	"github.com/biographdb/biograph-backend/internal/data/repos/testutil"
	types "github.com/biographdb/biograph-backend/internal/domain/jobs"
	"github.com/biographdb/biograph-backend/internal/jobs/runtime"
	"github.com/biographdb/biograph-backend/internal/jobs/toolrunner"
	pkgerrors "github.com/biographdb/biograph-backend/internal/pkg/errors"
)

// fixedNetwork serves a canned edge list for any (seed type, network) pair.
type fixedNetwork struct {
	tsv []byte
}

func (f fixedNetwork) NetworkTSV(ctx context.Context, seedType, network string) ([]byte, error) {
	return f.tsv, nil
}

func TestNormalizeSeeds(t *testing.T) {
	seedType, seeds, err := normalizeSeeds([]string{"entrez.2", "1", "ENTREZ.1"})
	require.NoError(t, err)
	require.Equal(t, graphnet.SeedTypeGene, seedType)
	require.Equal(t, []string{"1", "2"}, seeds)

	seedType, seeds, err = normalizeSeeds([]string{"uniprot.p12345", "Q67890"})
	require.NoError(t, err)
	require.Equal(t, graphnet.SeedTypeProtein, seedType)
	require.Equal(t, []string{"P12345", "Q67890"}, seeds)

	_, _, err = normalizeSeeds([]string{"entrez.1", "uniprot.P12345"})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)

	_, _, err = normalizeSeeds(nil)
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)
}

func TestDiamondNormalize(t *testing.T) {
	p := &DiamondPipeline{}

	normalized, err := p.Normalize(map[string]any{
		"seeds": []any{"entrez.2", "entrez.1", "entrez.2"},
		"n":     float64(25),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, normalized["seeds"])
	require.Equal(t, 25, normalized["n"])
	require.Equal(t, 1, normalized["alpha"])
	require.Equal(t, graphnet.NetworkDefault, normalized["network"])
	require.Equal(t, edgesAll, normalized["edges"])

	_, err = p.Normalize(map[string]any{"seeds": []any{"entrez.1"}})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument, "n is required")

	_, err = p.Normalize(map[string]any{"seeds": []any{"entrez.1"}, "n": 10, "network": "BOGUS"})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)

	_, err = p.Normalize(map[string]any{"seeds": []any{"entrez.1"}, "n": 10, "edges": "some"})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)
}

func TestDiamondRecoverEdges(t *testing.T) {
	p := &DiamondPipeline{}
	netEdges := []networkEdge{
		orderedEdge("A", "B"),
		orderedEdge("B", "C"),
		orderedEdge("C", "D"),
	}

	// Limited mode only pairs module nodes with seeds.
	edges := p.recoverEdges(edgesLimited, []string{"B", "D"}, []string{"A"}, netEdges)
	require.Equal(t, [][]string{{"A", "B"}}, edges)

	// All mode admits any network edge within module ∪ seeds.
	edges = p.recoverEdges(edgesAll, []string{"B", "C"}, []string{"A"}, netEdges)
	require.Equal(t, [][]string{{"A", "B"}, {"B", "C"}}, edges)
}

func TestDiamondRun(t *testing.T) {
	// A stand-in executable that honors the -o flag and writes a ranked
	// module of one node.
	script := filepath.Join(t.TempDir(), "diamond.sh")
	require.NoError(t, os.WriteFile(script, []byte(
		"#!/bin/sh\n"+
			"while [ $# -gt 0 ]; do\n"+
			"  if [ \"$1\" = \"-o\" ]; then out=$2; fi\n"+
			"  shift\n"+
			"done\n"+
			"printf '#rank\\tDIAMOnD_node\\n1\\tC\\n' > \"$out\"\n"), 0o755))

	log := testutil.Logger(t)
	network := fixedNetwork{tsv: []byte("A\tB\nB\tC\nC\tD\n")}
	p := NewDiamondPipeline(script, toolrunner.New(log), network, 0, log)

	repo := jobsrepo.NewJobRepo(testutil.DB(t), log)
	job, _, err := repo.FindOrCreate(context.Background(), &types.Job{
		UID:         uuid.New(),
		Fingerprint: "fp-diamond-run",
		Kind:        "diamond",
		Status:      types.StatusSubmitted,
		Params:      datatypes.JSON(`{"seeds":["A"],"seed_type":"gene","n":1,"alpha":1,"network":"DEFAULT","edges":"all"}`),
	})
	require.NoError(t, err)
	claimed, err := repo.MarkRunning(context.Background(), job.UID)
	require.NoError(t, err)
	require.True(t, claimed)

	resultsDir := t.TempDir()
	jc := runtime.NewContext(context.Background(), job, repo, log, resultsDir, t.TempDir())
	require.NoError(t, p.Run(jc))

	got, err := repo.GetByUID(context.Background(), job.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, got.Status)
	require.Contains(t, string(got.Result), `"seeds_in_network":["A"]`)

	rel, mediaType := p.Artifact(job.UID.String())
	require.Equal(t, "text/plain", mediaType)
	_, err = os.Stat(filepath.Join(resultsDir, rel))
	require.NoError(t, err, "the ranked output must be materialized before completion")
}

func TestMustNormalize(t *testing.T) {
	p := &MustPipeline{}

	normalized, err := p.Normalize(map[string]any{
		"seeds":      []any{"uniprot.P1"},
		"hubpenalty": 0.5,
		"multiple":   true,
		"trees":      float64(5),
		"maxit":      float64(10),
	})
	require.NoError(t, err)
	require.Equal(t, 0.5, normalized["hubpenalty"])
	require.Equal(t, true, normalized["multiple"])

	// All five algorithm parameters are mandatory.
	_, err = p.Normalize(map[string]any{"seeds": []any{"uniprot.P1"}, "hubpenalty": 0.5, "trees": 5, "maxit": 10})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)

	_, err = p.Normalize(map[string]any{"seeds": []any{"uniprot.P1"}, "hubpenalty": 1.5, "multiple": false, "trees": 5, "maxit": 10})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)
}

func TestRankingNormalize(t *testing.T) {
	tr := &TrustrankPipeline{}

	normalized, err := tr.Normalize(map[string]any{"seeds": []any{"uniprot.p2", "P1"}})
	require.NoError(t, err)
	require.Equal(t, []string{"P1", "P2"}, normalized["seeds"])
	require.Equal(t, defaultDamping, normalized["damping_factor"])
	require.Equal(t, true, normalized["only_direct_drugs"])
	require.Equal(t, true, normalized["only_approved_drugs"])
	require.Equal(t, 0, normalized["N"])

	_, err = tr.Normalize(map[string]any{"seeds": []any{"P1"}, "damping_factor": 1.5})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)

	cl := &ClosenessPipeline{}
	normalized, err = cl.Normalize(map[string]any{"seeds": []any{"P1"}, "N": float64(10), "only_direct_drugs": false})
	require.NoError(t, err)
	require.Equal(t, 10, normalized["N"])
	require.Equal(t, false, normalized["only_direct_drugs"])
	require.NotContains(t, normalized, "damping_factor")
}

func TestTrustrankRun(t *testing.T) {
	// A stand-in executable that copies the seeds file aside and honors
	// the -o flag with a one-drug ranking.
	capture := filepath.Join(t.TempDir(), "seeds-as-submitted.txt")
	script := filepath.Join(t.TempDir(), "trustrank.sh")
	require.NoError(t, os.WriteFile(script, []byte(
		"#!/bin/sh\n"+
			"while [ $# -gt 0 ]; do\n"+
			"  case \"$1\" in\n"+
			"    -s) cp \"$2\" '"+capture+"'; shift ;;\n"+
			"    -o) out=$2; shift ;;\n"+
			"  esac\n"+
			"  shift\n"+
			"done\n"+
			"printf 'drug_name\\tscore\\ndrugbank.DB01125\\t0.9\\n' > \"$out\"\n"), 0o755))

	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, rankingEdgesFile),
		[]byte("drugbank.DB01125\tuniprot.P1\n"), 0o644))

	log := testutil.Logger(t)
	p := NewTrustrankPipeline(script, toolrunner.New(log), 0, log)

	repo := jobsrepo.NewJobRepo(testutil.DB(t), log)
	job, _, err := repo.FindOrCreate(context.Background(), &types.Job{
		UID:         uuid.New(),
		Fingerprint: "fp-trustrank-run",
		Kind:        "trustrank",
		Status:      types.StatusSubmitted,
		Params:      datatypes.JSON(`{"seeds":["P1"],"damping_factor":0.85,"only_direct_drugs":true,"only_approved_drugs":true,"N":0}`),
	})
	require.NoError(t, err)
	claimed, err := repo.MarkRunning(context.Background(), job.UID)
	require.NoError(t, err)
	require.True(t, claimed)

	resultsDir := t.TempDir()
	jc := runtime.NewContext(context.Background(), job, repo, log, resultsDir, staticDir)
	require.NoError(t, p.Run(jc))

	// The tool matches seeds against prefixed node names in the static
	// network, so the seeds file must carry the identifier scheme.
	seedsFile, err := os.ReadFile(capture)
	require.NoError(t, err)
	require.Equal(t, "uniprot.P1\n", string(seedsFile))

	got, err := repo.GetByUID(context.Background(), job.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, got.Status)
	require.Contains(t, string(got.Result), `"drug_name":"drugbank.DB01125"`)
	require.Contains(t, string(got.Result), `["drugbank.DB01125","uniprot.P1"]`,
		"the seed-drug edge must be recovered from the static edge list")

	rel, _ := p.Artifact(job.UID.String())
	_, err = os.Stat(filepath.Join(resultsDir, rel))
	require.NoError(t, err)
}

func TestParseRankedDrugs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.txt")
	require.NoError(t, os.WriteFile(path, []byte(
		"drug_name\tscore\n"+
			"drugbank.D1\t0.9\n"+
			"drugbank.D2\t0.5\n"+
			"drugbank.D3\t0.5\n"+
			"drugbank.D4\t0.1\n"+
			"drugbank.D5\t0\n"+
			"drugbank.D6\t0.3\n"), 0o644))

	// No cutoff: zero scores terminate the list.
	drugs, err := parseRankedDrugs(path, 0)
	require.NoError(t, err)
	require.Len(t, drugs, 4)

	// Cutoff at 2 keeps the tie on the second score.
	drugs, err = parseRankedDrugs(path, 2)
	require.NoError(t, err)
	require.Len(t, drugs, 3)
	require.Equal(t, "drugbank.D3", drugs[2].DrugName)
}

func TestBiconNormalize(t *testing.T) {
	p := &BiconPipeline{}
	sha := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	normalized, err := p.Normalize(map[string]any{"sha256": sha})
	require.NoError(t, err)
	require.Equal(t, sha, normalized["sha256"])
	require.Equal(t, defaultLGMin, normalized["lg_min"])
	require.Equal(t, defaultLGMax, normalized["lg_max"])

	_, err = p.Normalize(map[string]any{})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)

	_, err = p.Normalize(map[string]any{"sha256": sha, "lg_min": 20, "lg_max": 10})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)
}

func TestBiconRun(t *testing.T) {
	// The stand-in executable records its argv outside the job directory,
	// which is zipped and removed on success, and emits the three outputs
	// into its working directory.
	capture := filepath.Join(t.TempDir(), "argv.txt")
	script := filepath.Join(t.TempDir(), "bicon.sh")
	require.NoError(t, os.WriteFile(script, []byte(
		"#!/bin/sh\n"+
			"printf '%s\\n' \"$@\" > '"+capture+"'\n"+
			`printf '{"genes1":[{"gene":"A","mean expression":2.1}],"genes2":[{"gene":"C","mean expression":1.4}]}' > results.json`+"\n"+
			"printf 'id,score,patients1,patients2\\n0,0.5,s1|s2,s3\\n' > results.csv\n"+
			"printf 'image' > clustermap.png\n"), 0o755))

	log := testutil.Logger(t)
	network := fixedNetwork{tsv: []byte("A\tC\nA\tB\n")}
	p := NewBiconPipeline(script, toolrunner.New(log), network, 0, log)

	resultsDir := t.TempDir()
	uid := uuid.New()
	require.NoError(t, p.SaveUpload(resultsDir, uid.String(), "expression.csv",
		strings.NewReader("gene,s1,s2\nA,1,2\n")))

	repo := jobsrepo.NewJobRepo(testutil.DB(t), log)
	sha := strings.Repeat("a", 64)
	job, _, err := repo.FindOrCreate(context.Background(), &types.Job{
		UID:         uid,
		Fingerprint: "fp-bicon-run",
		Kind:        "bicon",
		Status:      types.StatusSubmitted,
		Params:      datatypes.JSON(`{"sha256":"` + sha + `","lg_min":10,"lg_max":15,"network":"DEFAULT"}`),
	})
	require.NoError(t, err)
	claimed, err := repo.MarkRunning(context.Background(), job.UID)
	require.NoError(t, err)
	require.True(t, claimed)

	jc := runtime.NewContext(context.Background(), job, repo, log, resultsDir, t.TempDir())
	require.NoError(t, p.Run(jc))

	// The expression matrix is passed by flag, relative to the working
	// directory.
	raw, err := os.ReadFile(capture)
	require.NoError(t, err)
	args := strings.Split(strings.TrimSpace(string(raw)), "\n")
	idx := -1
	for i, a := range args {
		if a == "--expression" {
			idx = i
		}
	}
	require.NotEqual(t, -1, idx)
	require.Less(t, idx+1, len(args))
	require.Equal(t, uid.String()+".csv", args[idx+1])
	require.Contains(t, args, "--network")
	require.Contains(t, args, "network.tsv")

	got, err := repo.GetByUID(context.Background(), job.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, got.Status)
	require.Contains(t, string(got.Result), `"genes1":["A"]`)
	require.Contains(t, string(got.Result), `"genes2":["C"]`)
	require.Contains(t, string(got.Result), `["A","C"]`)

	// The job directory collapses into the zip artifact.
	_, err = os.Stat(filepath.Join(resultsDir, "bicon", uid.String()))
	require.True(t, os.IsNotExist(err))
	rel, mediaType := p.Artifact(uid.String())
	require.Equal(t, "application/zip", mediaType)
	_, err = os.Stat(filepath.Join(resultsDir, rel))
	require.NoError(t, err)

	img, err := p.Clustermap(resultsDir, uid.String())
	require.NoError(t, err)
	require.Equal(t, "image", string(img))
}

func TestParseBiconGenes(t *testing.T) {
	// Cluster entries are objects with per-gene statistics, not bare ids.
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"genes1":[{"gene":"A","mean expression":2.1},{"gene":"B","mean expression":0.4}],`+
			`"genes2":[{"gene":"C","mean expression":1.7}]}`), 0o644))

	g1, g2, err := parseBiconGenes(path)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, g1)
	require.Equal(t, []string{"C"}, g2)
}

func TestParseBiconPatients(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"id,score,patients1,patients2\n"+
			"0,0.7,s1|s2|s3,s4|s5\n"), 0o644))

	p1, p2, err := parseBiconPatients(path)
	require.NoError(t, err)
	require.Equal(t, []string{"s1", "s2", "s3"}, p1)
	require.Equal(t, []string{"s4", "s5"}, p2)
}

func TestBiconEdges(t *testing.T) {
	tsv := []byte("A\tB\nB\tB\nB\tC\nC\tD\n")
	edges := biconEdges(tsv, []string{"A", "B"}, []string{"C"})
	require.Equal(t, [][]string{{"A", "B"}, {"B", "C"}}, edges)
}

func TestGraphPipelineNormalize(t *testing.T) {
	store := entitystore.NewMemoryStore("2025-07")
	p := NewGraphPipeline(store, testutil.Logger(t))

	normalized, err := p.Normalize(map[string]any{"nodes": []any{"drug", "disorder"}})
	require.NoError(t, err)
	require.Equal(t, "2025-07", normalized["version"])
	require.ElementsMatch(t, []any{"disorder", "drug"}, normalized["nodes"])

	// A data refresh must change the normalized parameters, and with them
	// the fingerprint.
	fresher := NewGraphPipeline(entitystore.NewMemoryStore("2025-08"), testutil.Logger(t))
	renormalized, err := fresher.Normalize(map[string]any{"nodes": []any{"drug", "disorder"}})
	require.NoError(t, err)
	require.NotEqual(t, normalized["version"], renormalized["version"])

	_, err = p.Normalize(map[string]any{"nodes": []any{"starship"}})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)
}

func TestParseNetworkTSV(t *testing.T) {
	edges, nodes := parseNetworkTSV([]byte("B\tA\n\nA\tC\nmalformed\n"))
	require.Equal(t, []networkEdge{{"A", "B"}, {"A", "C"}}, edges)
	require.Len(t, nodes, 3)
}
