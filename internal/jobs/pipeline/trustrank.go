package pipelines

import (
	"path/filepath"
	"time"

	"github.com/biographdb/biograph-backend/internal/jobs/runtime"
	"github.com/biographdb/biograph-backend/internal/jobs/toolrunner"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
)

const defaultDamping = 0.85

// TrustrankPipeline ranks drugs against protein seeds with a trust-propagation
// walk over the static protein–drug network.
type TrustrankPipeline struct {
	executable string
	runner     *toolrunner.Runner
	timeout    time.Duration
	log        *logger.Logger
}

func NewTrustrankPipeline(executable string, runner *toolrunner.Runner, timeout time.Duration, baseLog *logger.Logger) *TrustrankPipeline {
	return &TrustrankPipeline{
		executable: executable,
		runner:     runner,
		timeout:    timeout,
		log:        baseLog.With("pipeline", "trustrank"),
	}
}

func (p *TrustrankPipeline) Name() string { return "trustrank" }

func (p *TrustrankPipeline) Artifact(uid string) (string, string) {
	return filepath.Join("trustrank", uid+".txt"), "text/plain"
}

func (p *TrustrankPipeline) Normalize(params map[string]any) (map[string]any, error) {
	normalized, err := normalizeRankingParams(params)
	if err != nil {
		return nil, err
	}

	damping := defaultDamping
	if _, present := params["damping_factor"]; present {
		var ok bool
		damping, ok = floatParam(params, "damping_factor")
		if !ok || damping <= 0 || damping >= 1 {
			return nil, invalidf("damping_factor must be a number in (0, 1)")
		}
	}
	normalized["damping_factor"] = damping
	return normalized, nil
}

func (p *TrustrankPipeline) Run(jc *runtime.Context) error {
	damping, _ := jc.ParamFloat("damping_factor")
	cutoff, _ := jc.ParamInt("N")
	return runRanking(jc, p.runner, rankingOptions{
		tool:       "TrustRank",
		executable: p.executable,
		damping:    &damping,
		onlyDirect: jc.ParamBool("only_direct_drugs"),
		onlyApprov: jc.ParamBool("only_approved_drugs"),
		cutoff:     cutoff,
		timeout:    p.timeout,
	})
}
