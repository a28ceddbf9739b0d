package pipelines

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/biographdb/biograph-backend/internal/jobs/runtime"
	"github.com/biographdb/biograph-backend/internal/jobs/toolrunner"
)

// The drug-ranking tools walk a pre-built protein–drug network shipped with
// the deployment: the serialized graph consumed by the tools themselves, and
// a TSV edge list used to recover seed–drug edges for the result payload.
const (
	rankingGraphFile = "PPDr-for-ranking.gt"
	rankingEdgesFile = "PPDr-for-ranking.tsv"
)

type rankedDrug struct {
	DrugName string  `json:"drug_name"`
	Score    float64 `json:"score"`
}

type rankingOptions struct {
	tool       string
	executable string
	damping    *float64
	onlyDirect bool
	onlyApprov bool
	cutoff     int
	timeout    time.Duration
}

// runRanking is the shared body of the trustrank and closeness pipelines.
func runRanking(jc *runtime.Context, runner *toolrunner.Runner, opts rankingOptions) error {
	seeds := jc.ParamStrings("seeds")

	workdir, cleanup, err := jc.Scratch()
	if err != nil {
		return err
	}
	defer cleanup()

	// The static network names proteins by identifier scheme, so the seeds
	// file must carry the prefix or no seed matches any node.
	prefixed := make([]string, len(seeds))
	for i, s := range seeds {
		prefixed[i] = "uniprot." + s
	}
	seedsFile, err := writeSeedsFile(workdir, prefixed)
	if err != nil {
		return err
	}

	outFile := filepath.Join(workdir, "results.txt")
	args := []string{
		"-n", filepath.Join(jc.StaticDir, rankingGraphFile),
		"-s", seedsFile,
	}
	if opts.damping != nil {
		args = append(args, "-d", strconv.FormatFloat(*opts.damping, 'f', -1, 64))
	}
	args = append(args, "-o", outFile)
	if opts.onlyDirect {
		args = append(args, "--only_direct_drugs")
	}
	if opts.onlyApprov {
		args = append(args, "--only_approved_drugs")
	}

	_, err = runner.Run(jc.Ctx, toolrunner.Invocation{
		Tool:       opts.tool,
		Executable: opts.executable,
		Args:       args,
		WorkDir:    workdir,
		Timeout:    opts.timeout,
	})
	if err != nil {
		return err
	}

	drugs, err := parseRankedDrugs(outFile, opts.cutoff)
	if err != nil {
		return err
	}

	edges, err := recoverSeedDrugEdges(jc.StaticDir, drugs, seeds)
	if err != nil {
		return err
	}

	kindDir, err := jc.KindDir()
	if err != nil {
		return err
	}
	if err := moveFile(outFile, filepath.Join(kindDir, jc.Job.UID.String()+".txt")); err != nil {
		return err
	}

	return jc.Complete(map[string]any{
		"drugs": drugs,
		"edges": edges,
	})
}

// parseRankedDrugs reads the scored output, drops zero scores, and applies
// the optional top-N cutoff while keeping every drug tied with the Nth score.
func parseRankedDrugs(path string, cutoff int) ([]rankedDrug, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ranking results: %w", err)
	}

	var drugs []rankedDrug
	for i, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed ranking results row: %q", line)
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("malformed score in ranking results row: %q", line)
		}
		if score == 0 {
			break
		}
		drugs = append(drugs, rankedDrug{DrugName: strings.TrimSpace(fields[0]), Score: score})
	}

	if cutoff > 0 && len(drugs) > cutoff {
		threshold := drugs[cutoff-1].Score
		end := cutoff
		for end < len(drugs) && drugs[end].Score == threshold {
			end++
		}
		drugs = drugs[:end]
	}
	if drugs == nil {
		drugs = []rankedDrug{}
	}
	return drugs, nil
}

// recoverSeedDrugEdges checks every (ranked drug, seed) pair against the
// static protein–drug edge list.
func recoverSeedDrugEdges(staticDir string, drugs []rankedDrug, seeds []string) ([][]string, error) {
	raw, err := os.ReadFile(filepath.Join(staticDir, rankingEdgesFile))
	if err != nil {
		return nil, fmt.Errorf("read drug-ranking edge list: %w", err)
	}
	netEdges, _ := parseNetworkTSV(raw)
	present := make(map[networkEdge]bool, len(netEdges))
	for _, e := range netEdges {
		present[e] = true
	}

	edges := [][]string{}
	for _, d := range drugs {
		for _, s := range seeds {
			if present[orderedEdge(d.DrugName, "uniprot."+s)] {
				edges = append(edges, []string{d.DrugName, "uniprot." + s})
			}
		}
	}
	return edges, nil
}

func normalizeRankingParams(params map[string]any) (map[string]any, error) {
	raw, ok := stringsParam(params, "seeds")
	if !ok {
		return nil, invalidf("seeds must be a list of strings")
	}
	seeds, err := normalizeUniprotSeeds(raw)
	if err != nil {
		return nil, err
	}

	onlyDirect, err := boolParam(params, "only_direct_drugs", true)
	if err != nil {
		return nil, err
	}
	onlyApproved, err := boolParam(params, "only_approved_drugs", true)
	if err != nil {
		return nil, err
	}

	n := 0
	if _, present := params["N"]; present {
		n, ok = intParam(params, "N")
		if !ok || n < 1 {
			return nil, invalidf("N must be a positive integer")
		}
	}

	return map[string]any{
		"seeds":               seeds,
		"only_direct_drugs":   onlyDirect,
		"only_approved_drugs": onlyApproved,
		"N":                   n,
	}, nil
}
