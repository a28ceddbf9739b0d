package pipelines

import (
	"path/filepath"
	"time"

	"github.com/biographdb/biograph-backend/internal/jobs/runtime"
	"github.com/biographdb/biograph-backend/internal/jobs/toolrunner"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
)

// ClosenessPipeline ranks drugs by closeness centrality relative to protein
// seeds. Same contract as trustrank without the damping factor.
type ClosenessPipeline struct {
	executable string
	runner     *toolrunner.Runner
	timeout    time.Duration
	log        *logger.Logger
}

func NewClosenessPipeline(executable string, runner *toolrunner.Runner, timeout time.Duration, baseLog *logger.Logger) *ClosenessPipeline {
	return &ClosenessPipeline{
		executable: executable,
		runner:     runner,
		timeout:    timeout,
		log:        baseLog.With("pipeline", "closeness"),
	}
}

func (p *ClosenessPipeline) Name() string { return "closeness" }

func (p *ClosenessPipeline) Artifact(uid string) (string, string) {
	return filepath.Join("closeness", uid+".txt"), "text/plain"
}

func (p *ClosenessPipeline) Normalize(params map[string]any) (map[string]any, error) {
	return normalizeRankingParams(params)
}

func (p *ClosenessPipeline) Run(jc *runtime.Context) error {
	cutoff, _ := jc.ParamInt("N")
	return runRanking(jc, p.runner, rankingOptions{
		tool:       "Closeness",
		executable: p.executable,
		onlyDirect: jc.ParamBool("only_direct_drugs"),
		onlyApprov: jc.ParamBool("only_approved_drugs"),
		cutoff:     cutoff,
		timeout:    p.timeout,
	})
}
