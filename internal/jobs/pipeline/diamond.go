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
	"github.com/biographdb/biograph-backend/internal/platform/logger"
)

const (
	edgesAll     = "all"
	edgesLimited = "limited"
)

// DiamondPipeline runs the DIAMOnD module-detection algorithm on an extracted
// seed network and recovers the module's internal edges from the network file.
type DiamondPipeline struct {
	executable string
	runner     *toolrunner.Runner
	networks   NetworkSource
	timeout    time.Duration
	log        *logger.Logger
}

func NewDiamondPipeline(executable string, runner *toolrunner.Runner, networks NetworkSource, timeout time.Duration, baseLog *logger.Logger) *DiamondPipeline {
	return &DiamondPipeline{
		executable: executable,
		runner:     runner,
		networks:   networks,
		timeout:    timeout,
		log:        baseLog.With("pipeline", "diamond"),
	}
}

func (p *DiamondPipeline) Name() string { return "diamond" }

func (p *DiamondPipeline) Artifact(uid string) (string, string) {
	return filepath.Join("diamond", uid+".txt"), "text/plain"
}

func (p *DiamondPipeline) Normalize(params map[string]any) (map[string]any, error) {
	raw, ok := stringsParam(params, "seeds")
	if !ok {
		return nil, invalidf("seeds must be a list of strings")
	}
	seedType, seeds, err := normalizeSeeds(raw)
	if err != nil {
		return nil, err
	}

	n, ok := intParam(params, "n")
	if !ok || n < 1 {
		return nil, invalidf("n must be a positive integer")
	}

	alpha := 1
	if _, present := params["alpha"]; present {
		alpha, ok = intParam(params, "alpha")
		if !ok || alpha < 1 {
			return nil, invalidf("alpha must be a positive integer")
		}
	}

	network, err := normalizeNetwork(params)
	if err != nil {
		return nil, err
	}

	edges := strings.ToLower(stringParam(params, "edges", edgesAll))
	if edges != edgesAll && edges != edgesLimited {
		return nil, invalidf("edges must be %q or %q", edgesAll, edgesLimited)
	}

	return map[string]any{
		"seeds":     seeds,
		"seed_type": seedType,
		"n":         n,
		"alpha":     alpha,
		"network":   network,
		"edges":     edges,
	}, nil
}

func (p *DiamondPipeline) Run(jc *runtime.Context) error {
	seeds := jc.ParamStrings("seeds")
	seedType := jc.ParamString("seed_type")
	network := jc.ParamString("network")
	n, _ := jc.ParamInt("n")
	alpha, _ := jc.ParamInt("alpha")

	tsv, err := p.networks.NetworkTSV(jc.Ctx, seedType, network)
	if err != nil {
		return err
	}

	workdir, cleanup, err := jc.Scratch()
	if err != nil {
		return err
	}
	defer cleanup()

	networkFile, err := writeNetworkFile(workdir, tsv)
	if err != nil {
		return err
	}
	seedsFile, err := writeSeedsFile(workdir, seeds)
	if err != nil {
		return err
	}

	outFile := filepath.Join(workdir, "results.txt")
	_, err = p.runner.Run(jc.Ctx, toolrunner.Invocation{
		Tool:       "DIAMOnD",
		Executable: p.executable,
		Args: []string{
			"--network_file", networkFile,
			"--seed_file", seedsFile,
			"-n", strconv.Itoa(n),
			"--alpha", strconv.Itoa(alpha),
			"-o", outFile,
		},
		WorkDir: workdir,
		Timeout: p.timeout,
	})
	if err != nil {
		return err
	}

	moduleNodes, rankedRows, err := parseDiamondResults(outFile)
	if err != nil {
		return err
	}

	netEdges, netNodes := parseNetworkTSV(tsv)
	inNetwork := seedsInNetwork(seeds, netNodes)
	resultEdges := p.recoverEdges(jc.ParamString("edges"), moduleNodes, inNetwork, netEdges)

	kindDir, err := jc.KindDir()
	if err != nil {
		return err
	}
	if err := moveFile(outFile, filepath.Join(kindDir, jc.Job.UID.String()+".txt")); err != nil {
		return err
	}

	return jc.Complete(map[string]any{
		"diamond_nodes":    rankedRows,
		"edges":            resultEdges,
		"seeds_in_network": inNetwork,
	})
}

// recoverEdges reconstructs the module's edge set from the network file. In
// "all" mode any network edge between module nodes or seeds qualifies; in
// "limited" mode only module-node/seed pairs do.
func (p *DiamondPipeline) recoverEdges(mode string, moduleNodes, seeds []string, netEdges []networkEdge) [][]string {
	wanted := make(map[networkEdge]bool)
	switch mode {
	case edgesLimited:
		for _, mn := range moduleNodes {
			for _, s := range seeds {
				if mn != s {
					wanted[orderedEdge(mn, s)] = true
				}
			}
		}
	default:
		all := append(append([]string{}, moduleNodes...), seeds...)
		for i := range all {
			for j := i + 1; j < len(all); j++ {
				if all[i] != all[j] {
					wanted[orderedEdge(all[i], all[j])] = true
				}
			}
		}
	}

	seen := make(map[networkEdge]bool)
	var result [][]string
	for _, e := range netEdges {
		if wanted[e] && !seen[e] {
			seen[e] = true
			result = append(result, []string{e.a, e.b})
		}
	}
	if result == nil {
		result = [][]string{}
	}
	return result
}

// parseDiamondResults reads the ranked output file. The tool emits a header
// of "#rank\tDIAMOnD_node"; the leading hash is dropped from the column name.
func parseDiamondResults(path string) ([]string, []map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read diamond results: %w", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) == 0 {
		return nil, nil, fmt.Errorf("diamond results are empty")
	}

	header := strings.Split(lines[0], "\t")
	for i, col := range header {
		header[i] = strings.TrimPrefix(strings.TrimSpace(col), "#")
	}

	var nodes []string
	rows := make([]map[string]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != len(header) {
			return nil, nil, fmt.Errorf("malformed diamond results row: %q", line)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			row[col] = strings.TrimSpace(fields[i])
		}
		rows = append(rows, row)
		if node, ok := row["DIAMOnD_node"]; ok {
			nodes = append(nodes, node)
		}
	}
	return nodes, rows, nil
}
