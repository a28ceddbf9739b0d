package pipelines

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/biographdb/biograph-backend/internal/data/graphnet"
	"github.com/biographdb/biograph-backend/internal/jobs/runtime"
	"github.com/biographdb/biograph-backend/internal/jobs/toolrunner"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
	pkgerrors "github.com/biographdb/biograph-backend/internal/pkg/errors"
)

const (
	defaultLGMin = 10
	defaultLGMax = 15
)

// BiconPipeline runs biclustering on an uploaded expression matrix. The
// fingerprint is keyed on the file's content hash rather than its name, so
// re-uploads of the same matrix deduplicate onto the existing job. The job
// works inside its durable result directory, which is zipped up on success.
type BiconPipeline struct {
	executable string
	runner     *toolrunner.Runner
	networks   NetworkSource
	timeout    time.Duration
	log        *logger.Logger
}

func NewBiconPipeline(executable string, runner *toolrunner.Runner, networks NetworkSource, timeout time.Duration, baseLog *logger.Logger) *BiconPipeline {
	return &BiconPipeline{
		executable: executable,
		runner:     runner,
		networks:   networks,
		timeout:    timeout,
		log:        baseLog.With("pipeline", "bicon"),
	}
}

func (p *BiconPipeline) Name() string { return "bicon" }

func (p *BiconPipeline) Artifact(uid string) (string, string) {
	return filepath.Join("bicon", uid+".zip"), "application/zip"
}

// Normalize expects the upload's content hash under "sha256"; the submission
// layer computes it before the job record is created. The original filename
// never reaches the fingerprint.
func (p *BiconPipeline) Normalize(params map[string]any) (map[string]any, error) {
	sha, _ := params["sha256"].(string)
	if len(sha) != 64 {
		return nil, invalidf("missing expression file")
	}

	lgMin := defaultLGMin
	if _, present := params["lg_min"]; present {
		var ok bool
		lgMin, ok = intParam(params, "lg_min")
		if !ok || lgMin < 1 {
			return nil, invalidf("lg_min must be a positive integer")
		}
	}
	lgMax := defaultLGMax
	if _, present := params["lg_max"]; present {
		var ok bool
		lgMax, ok = intParam(params, "lg_max")
		if !ok || lgMax < lgMin {
			return nil, invalidf("lg_max must be an integer >= lg_min")
		}
	}

	network, err := normalizeNetwork(params)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"sha256":  strings.ToLower(sha),
		"lg_min":  lgMin,
		"lg_max":  lgMax,
		"network": network,
	}, nil
}

// SaveUpload stores the expression matrix under the job's result directory
// as {uid}{ext}. Called once, only when the submission created a new record.
func (p *BiconPipeline) SaveUpload(resultsDir, uid, filename string, r io.Reader) error {
	jobDir := filepath.Join(resultsDir, p.Name(), uid)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".csv"
	}
	f, err := os.Create(filepath.Join(jobDir, uid+ext))
	if err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	return nil
}

func (p *BiconPipeline) Run(jc *runtime.Context) error {
	uid := jc.Job.UID.String()
	kindDir, err := jc.KindDir()
	if err != nil {
		return err
	}
	jobDir := filepath.Join(kindDir, uid)

	matches, err := filepath.Glob(filepath.Join(jobDir, uid+".*"))
	if err != nil || len(matches) == 0 {
		return fmt.Errorf("expression file for job %s not found", uid)
	}
	exprFile := matches[0]

	tsv, err := p.networks.NetworkTSV(jc.Ctx, graphnet.SeedTypeGene, jc.ParamString("network"))
	if err != nil {
		return err
	}
	if _, err := writeNetworkFile(jobDir, tsv); err != nil {
		return err
	}

	lgMin, _ := jc.ParamInt("lg_min")
	lgMax, _ := jc.ParamInt("lg_max")
	_, err = p.runner.Run(jc.Ctx, toolrunner.Invocation{
		Tool:       "BiCoN",
		Executable: p.executable,
		Args: []string{
			"--expression", filepath.Base(exprFile),
			"--network", "network.tsv",
			"--lg_min", strconv.Itoa(lgMin),
			"--lg_max", strconv.Itoa(lgMax),
			"--outdir", ".",
		},
		WorkDir: jobDir,
		Timeout: p.timeout,
	})
	if err != nil {
		return err
	}

	genes1, genes2, err := parseBiconGenes(filepath.Join(jobDir, "results.json"))
	if err != nil {
		return err
	}
	patients1, patients2, err := parseBiconPatients(filepath.Join(jobDir, "results.csv"))
	if err != nil {
		return err
	}

	edges := biconEdges(tsv, genes1, genes2)

	if err := zipDirectory(filepath.Join(kindDir, uid+".zip"), jobDir, uid); err != nil {
		return err
	}
	if err := os.RemoveAll(jobDir); err != nil {
		return fmt.Errorf("remove job dir: %w", err)
	}

	return jc.Complete(map[string]any{
		"genes1":    genes1,
		"genes2":    genes2,
		"patients1": patients1,
		"patients2": patients2,
		"edges":     edges,
	})
}

// Clustermap returns the clustermap image out of a completed job's zip.
func (p *BiconPipeline) Clustermap(resultsDir, uid string) ([]byte, error) {
	zr, err := zip.OpenReader(filepath.Join(resultsDir, p.Name(), uid+".zip"))
	if err != nil {
		return nil, fmt.Errorf("%w: no archive for job %s", pkgerrors.ErrNotFound, uid)
	}
	defer zr.Close()

	want := uid + "/clustermap.png"
	for _, f := range zr.File {
		if f.Name != want {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open clustermap: %w", err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%w: clustermap for job %s", pkgerrors.ErrNotFound, uid)
}

// parseBiconGenes reads the clustered genes out of the tool's results.json,
// where each cluster entry is an object carrying the gene id alongside
// per-gene statistics.
func parseBiconGenes(path string) (genes1, genes2 []string, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read bicon results: %w", err)
	}
	type clusterGene struct {
		Gene string `json:"gene"`
	}
	var payload struct {
		Genes1 []clusterGene `json:"genes1"`
		Genes2 []clusterGene `json:"genes2"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, fmt.Errorf("parse bicon results: %w", err)
	}
	collect := func(entries []clusterGene) []string {
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			out = append(out, e.Gene)
		}
		return out
	}
	return collect(payload.Genes1), collect(payload.Genes2), nil
}

// parseBiconPatients reads the two patient clusters from the summary CSV; its
// second line carries them as "|"-separated lists in the last two columns.
func parseBiconPatients(path string) (patients1, patients2 []string, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read bicon summary: %w", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) < 2 {
		return nil, nil, fmt.Errorf("bicon summary has no data row")
	}
	fields := strings.Split(lines[1], ",")
	if len(fields) < 2 {
		return nil, nil, fmt.Errorf("malformed bicon summary row")
	}
	split := func(s string) []string {
		s = strings.TrimSpace(s)
		if s == "" {
			return []string{}
		}
		return strings.Split(s, "|")
	}
	return split(fields[len(fields)-2]), split(fields[len(fields)-1]), nil
}

// biconEdges recovers the network edges among the clustered genes, dropping
// self-loops.
func biconEdges(tsv []byte, genes1, genes2 []string) [][]string {
	members := make(map[string]bool, len(genes1)+len(genes2))
	for _, g := range genes1 {
		members[g] = true
	}
	for _, g := range genes2 {
		members[g] = true
	}

	netEdges, _ := parseNetworkTSV(tsv)
	seen := make(map[networkEdge]bool)
	edges := [][]string{}
	for _, e := range netEdges {
		if e.a == e.b || !members[e.a] || !members[e.b] || seen[e] {
			continue
		}
		seen[e] = true
		edges = append(edges, []string{e.a, e.b})
	}
	return edges
}

// zipDirectory archives dir as {prefix}/... entries into a new zip at dst.
func zipDirectory(dst, dir, prefix string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(prefix + "/" + filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("archive job dir: %w", err)
	}
	return zw.Close()
}
