package pipelines

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/biographdb/biograph-backend/internal/jobs/runtime"
	"github.com/biographdb/biograph-backend/internal/jobs/toolrunner"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
)

// MustPipeline runs the multi-Steiner-tree module detection tool and collects
// its node and edge participation tables.
type MustPipeline struct {
	executable string
	runner     *toolrunner.Runner
	networks   NetworkSource
	timeout    time.Duration
	log        *logger.Logger
}

func NewMustPipeline(executable string, runner *toolrunner.Runner, networks NetworkSource, timeout time.Duration, baseLog *logger.Logger) *MustPipeline {
	return &MustPipeline{
		executable: executable,
		runner:     runner,
		networks:   networks,
		timeout:    timeout,
		log:        baseLog.With("pipeline", "must"),
	}
}

func (p *MustPipeline) Name() string { return "must" }

func (p *MustPipeline) Artifact(uid string) (string, string) {
	return filepath.Join("must", uid+"_nodes.txt"), "text/tab-separated-values"
}

func (p *MustPipeline) Normalize(params map[string]any) (map[string]any, error) {
	raw, ok := stringsParam(params, "seeds")
	if !ok {
		return nil, invalidf("seeds must be a list of strings")
	}
	seedType, seeds, err := normalizeSeeds(raw)
	if err != nil {
		return nil, err
	}

	hubpenalty, ok := floatParam(params, "hubpenalty")
	if !ok || hubpenalty < 0 || hubpenalty > 1 {
		return nil, invalidf("hubpenalty must be a number in [0, 1]")
	}

	multiple, err := boolParam(params, "multiple", false)
	if err != nil {
		return nil, err
	}
	if _, present := params["multiple"]; !present {
		return nil, invalidf("multiple is required")
	}

	trees, ok := intParam(params, "trees")
	if !ok || trees < 1 {
		return nil, invalidf("trees must be a positive integer")
	}

	maxit, ok := intParam(params, "maxit")
	if !ok || maxit < 1 {
		return nil, invalidf("maxit must be a positive integer")
	}

	network, err := normalizeNetwork(params)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"seeds":      seeds,
		"seed_type":  seedType,
		"hubpenalty": hubpenalty,
		"multiple":   multiple,
		"trees":      trees,
		"maxit":      maxit,
		"network":    network,
	}, nil
}

func (p *MustPipeline) Run(jc *runtime.Context) error {
	seeds := jc.ParamStrings("seeds")
	seedType := jc.ParamString("seed_type")
	network := jc.ParamString("network")
	hubpenalty, _ := jc.ParamFloat("hubpenalty")
	trees, _ := jc.ParamInt("trees")
	maxit, _ := jc.ParamInt("maxit")

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

	uid := jc.Job.UID.String()
	edgesOut := filepath.Join(workdir, uid+"_edges.txt")
	nodesOut := filepath.Join(workdir, uid+"_nodes.txt")

	args := []string{"-hp", strconv.FormatFloat(hubpenalty, 'f', -1, 64)}
	if jc.ParamBool("multiple") {
		args = append(args, "-m")
	}
	args = append(args,
		"-mi", strconv.Itoa(maxit),
		"-nw", networkFile,
		"-s", seedsFile,
		"-t", strconv.Itoa(trees),
		"-oe", edgesOut,
		"-on", nodesOut,
	)

	_, err = p.runner.Run(jc.Ctx, toolrunner.Invocation{
		Tool:       "MuST",
		Executable: p.executable,
		Args:       args,
		WorkDir:    workdir,
		Timeout:    p.timeout,
	})
	if err != nil {
		return err
	}

	nodes, err := readTSVRecords(nodesOut)
	if err != nil {
		return err
	}
	edges, err := readTSVRecords(edgesOut)
	if err != nil {
		return err
	}

	_, netNodes := parseNetworkTSV(tsv)

	kindDir, err := jc.KindDir()
	if err != nil {
		return err
	}
	if err := moveFile(nodesOut, filepath.Join(kindDir, uid+"_nodes.txt")); err != nil {
		return err
	}
	if err := moveFile(edgesOut, filepath.Join(kindDir, uid+"_edges.txt")); err != nil {
		return err
	}

	return jc.Complete(map[string]any{
		"nodes":            nodes,
		"edges":            edges,
		"seeds_in_network": seedsInNetwork(seeds, netNodes),
	})
}

// readTSVRecords maps a header-led TSV file into one map per row.
func readTSVRecords(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read tool output: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse tool output %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		return []map[string]string{}, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
