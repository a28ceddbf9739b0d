package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/datatypes"

	jobsrepo "github.com/biographdb/biograph-backend/internal/data/repos/jobs"
	types "github.com/biographdb/biograph-backend/internal/domain/jobs"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
)

// Context is the execution handle for one claimed job: the record in memory,
// the only sanctioned way to flip it to completed, and the directories the
// job body may write to. Job bodies never touch the job table directly.
type Context struct {
	Ctx        context.Context
	Job        *types.Job
	Repo       jobsrepo.JobRepo
	Log        *logger.Logger
	ResultsDir string
	StaticDir  string

	params map[string]any
}

func NewContext(ctx context.Context, job *types.Job, repo jobsrepo.JobRepo, log *logger.Logger, resultsDir, staticDir string) *Context {
	c := &Context{
		Ctx:        ctx,
		Job:        job,
		Repo:       repo,
		Log:        log.With("job_kind", job.Kind, "job_uid", job.UID),
		ResultsDir: resultsDir,
		StaticDir:  staticDir,
	}
	if len(job.Params) > 0 {
		_ = json.Unmarshal(job.Params, &c.params)
	}
	if c.params == nil {
		c.params = map[string]any{}
	}
	return c
}

// Params returns the decoded normalized parameter map. Never nil.
func (c *Context) Params() map[string]any { return c.params }

func (c *Context) ParamString(key string) string {
	if s, ok := c.params[key].(string); ok {
		return s
	}
	return ""
}

func (c *Context) ParamStrings(key string) []string {
	raw, ok := c.params[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (c *Context) ParamFloat(key string) (float64, bool) {
	switch v := c.params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func (c *Context) ParamInt(key string) (int, bool) {
	f, ok := c.ParamFloat(key)
	return int(f), ok
}

func (c *Context) ParamBool(key string) bool {
	b, _ := c.params[key].(bool)
	return b
}

// KindDir is the durable artifact directory for this job's kind, created on
// first use.
func (c *Context) KindDir() (string, error) {
	dir := filepath.Join(c.ResultsDir, c.Job.Kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}
	return dir, nil
}

// Scratch creates a job-private working directory so concurrent jobs never
// collide on filenames. The caller is responsible for invoking cleanup.
func (c *Context) Scratch() (string, func(), error) {
	dir, err := os.MkdirTemp("", "job-"+c.Job.UID.String()+"-")
	if err != nil {
		return "", nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// Complete marshals the result payload and flips the record to completed.
// Artifacts must already be on disk when this is called.
func (c *Context) Complete(result any) error {
	var payload datatypes.JSON
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		payload = datatypes.JSON(raw)
	}
	if err := c.Repo.Complete(c.Ctx, c.Job.UID, payload); err != nil {
		return err
	}
	c.Job.Status = types.StatusCompleted
	c.Log.Info("Job completed")
	return nil
}
