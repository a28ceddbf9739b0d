// Package executor runs job bodies off the request path, exactly once per
// created job record.
package executor

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	jobsrepo "github.com/biographdb/biograph-backend/internal/data/repos/jobs"
	types "github.com/biographdb/biograph-backend/internal/domain/jobs"
	"github.com/biographdb/biograph-backend/internal/jobs/runtime"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
)

type Executor struct {
	repo       jobsrepo.JobRepo
	registry   *runtime.Registry
	log        *logger.Logger
	sem        *semaphore.Weighted
	resultsDir string
	staticDir  string

	wg sync.WaitGroup
}

func New(repo jobsrepo.JobRepo, registry *runtime.Registry, baseLog *logger.Logger, concurrency int, resultsDir, staticDir string) *Executor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Executor{
		repo:       repo,
		registry:   registry,
		log:        baseLog.With("component", "JobExecutor"),
		sem:        semaphore.NewWeighted(int64(concurrency)),
		resultsDir: resultsDir,
		staticDir:  staticDir,
	}
}

// Dispatch schedules a freshly created job record for execution and returns
// immediately. The semaphore bounds how many job bodies run at once; waiting
// for a slot happens inside the spawned goroutine, never on the submit path.
func (e *Executor) Dispatch(job *types.Job) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx := context.Background()
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer e.sem.Release(1)

		e.run(ctx, job)
	}()
}

// Wait blocks until all dispatched jobs have finished. Used by tests and
// shutdown paths.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) run(ctx context.Context, job *types.Job) {
	jc := runtime.NewContext(ctx, job, e.repo, e.log, e.resultsDir, e.staticDir)

	kind, ok := e.registry.Get(job.Kind)
	if !ok {
		e.fail(ctx, job, fmt.Sprintf("no handler registered for job kind %q", job.Kind))
		return
	}

	claimed, err := e.repo.MarkRunning(ctx, job.UID)
	if err != nil {
		e.log.Error("MarkRunning failed", "job_uid", job.UID, "error", err)
		return
	}
	if !claimed {
		// Someone else already moved this record forward.
		e.log.Warn("Job not in submitted state at dispatch, skipping", "job_uid", job.UID)
		return
	}
	job.Status = types.StatusRunning

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Job panicked", "job_uid", job.UID, "job_kind", job.Kind, "panic", r)
			e.fail(ctx, job, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if runErr := kind.Run(jc); runErr != nil {
		e.log.Warn("Job failed", "job_uid", job.UID, "job_kind", job.Kind, "error", runErr)
		e.fail(ctx, job, runErr.Error())
	}
}

func (e *Executor) fail(ctx context.Context, job *types.Job, message string) {
	if err := e.repo.Fail(ctx, job.UID, message); err != nil {
		e.log.Error("Fail transition failed", "job_uid", job.UID, "error", err)
		return
	}
	job.Status = types.StatusFailed
	job.Error = message
}
