package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	jobsrepo "github.com/biographdb/biograph-backend/internal/data/repos/jobs"
	types "github.com/biographdb/biograph-backend/internal/domain/jobs"
	"github.com/biographdb/biograph-backend/internal/jobs/executor"
	"github.com/biographdb/biograph-backend/internal/jobs/fingerprint"
	"github.com/biographdb/biograph-backend/internal/jobs/runtime"
	pkgerrors "github.com/biographdb/biograph-backend/internal/pkg/errors"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
)

// JobService is the submission and lookup facade over the orchestration
// engine. Submission is content-addressed: identical normalized parameters
// for a kind always land on the same job record, and only a freshly created
// record is dispatched for execution.
type JobService interface {
	Submit(ctx context.Context, kind string, params map[string]any) (*types.Job, bool, error)
	// SubmitUpload handles kinds whose fingerprint covers an uploaded
	// file's content. The upload is persisted only when a new record was
	// created.
	SubmitUpload(ctx context.Context, kind, filename string, file io.Reader, params map[string]any) (*types.Job, bool, error)
	Status(ctx context.Context, kind string, uid uuid.UUID) (*types.Job, error)
	// ArtifactPath resolves a completed job's downloadable artifact.
	ArtifactPath(ctx context.Context, kind string, uid uuid.UUID) (path, mediaType string, err error)
}

// uploadKind is implemented by kinds that take a file upload.
type uploadKind interface {
	SaveUpload(resultsDir, uid, filename string, r io.Reader) error
}

type jobService struct {
	repo       jobsrepo.JobRepo
	registry   *runtime.Registry
	exec       *executor.Executor
	resultsDir string
	log        *logger.Logger
}

func NewJobService(repo jobsrepo.JobRepo, registry *runtime.Registry, exec *executor.Executor, resultsDir string, baseLog *logger.Logger) JobService {
	return &jobService{
		repo:       repo,
		registry:   registry,
		exec:       exec,
		resultsDir: resultsDir,
		log:        baseLog.With("service", "JobService"),
	}
}

func (s *jobService) Submit(ctx context.Context, kind string, params map[string]any) (*types.Job, bool, error) {
	job, created, _, err := s.submit(ctx, kind, params)
	return job, created, err
}

func (s *jobService) SubmitUpload(ctx context.Context, kind, filename string, file io.Reader, params map[string]any) (*types.Job, bool, error) {
	k, ok := s.registry.Get(kind)
	if !ok {
		return nil, false, fmt.Errorf("%w: unknown job kind %q", pkgerrors.ErrNotFound, kind)
	}
	saver, ok := k.(uploadKind)
	if !ok {
		return nil, false, fmt.Errorf("%w: job kind %q takes no upload", pkgerrors.ErrInvalidArgument, kind)
	}

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, false, fmt.Errorf("read upload: %w", err)
	}
	if len(content) == 0 {
		return nil, false, fmt.Errorf("%w: uploaded file is empty", pkgerrors.ErrInvalidArgument)
	}
	sha, err := fingerprint.File(bytes.NewReader(content))
	if err != nil {
		return nil, false, fmt.Errorf("hash upload: %w", err)
	}

	if params == nil {
		params = map[string]any{}
	}
	params["sha256"] = sha

	job, created, dispatch, err := s.create(ctx, k, params)
	if err != nil {
		return nil, false, err
	}
	if created {
		if err := saver.SaveUpload(s.resultsDir, job.UID.String(), filename, bytes.NewReader(content)); err != nil {
			// The record exists but can never run without its input.
			_ = s.repo.Fail(ctx, job.UID, "failed to store uploaded file")
			return nil, false, err
		}
		dispatch()
	}
	return job, created, nil
}

func (s *jobService) submit(ctx context.Context, kind string, params map[string]any) (*types.Job, bool, func(), error) {
	k, ok := s.registry.Get(kind)
	if !ok {
		return nil, false, nil, fmt.Errorf("%w: unknown job kind %q", pkgerrors.ErrNotFound, kind)
	}
	job, created, dispatch, err := s.create(ctx, k, params)
	if err != nil {
		return nil, false, nil, err
	}
	if created {
		dispatch()
	}
	return job, created, dispatch, nil
}

// create normalizes, fingerprints and upserts the record. The returned
// dispatch closure starts execution; the caller decides when the job is
// actually runnable (uploads are staged first).
func (s *jobService) create(ctx context.Context, k runtime.Kind, params map[string]any) (*types.Job, bool, func(), error) {
	normalized, err := k.Normalize(params)
	if err != nil {
		return nil, false, nil, err
	}

	fp, err := fingerprint.Compute(k.Name(), normalized)
	if err != nil {
		return nil, false, nil, err
	}

	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, false, nil, fmt.Errorf("marshal params: %w", err)
	}

	job := &types.Job{
		UID:         uuid.New(),
		Fingerprint: fp,
		Kind:        k.Name(),
		Status:      types.StatusSubmitted,
		Params:      datatypes.JSON(raw),
	}

	job, created, err := s.repo.FindOrCreate(ctx, job)
	if err != nil {
		return nil, false, nil, err
	}
	if created {
		s.log.Info("Job created", "kind", job.Kind, "uid", job.UID)
	} else {
		s.log.Debug("Job deduplicated", "kind", job.Kind, "uid", job.UID, "status", job.Status)
	}
	return job, created, func() { s.exec.Dispatch(job) }, nil
}

func (s *jobService) Status(ctx context.Context, kind string, uid uuid.UUID) (*types.Job, error) {
	job, err := s.repo.GetByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if job.Kind != kind {
		return nil, fmt.Errorf("%w: no %s job with uid %s", pkgerrors.ErrNotFound, kind, uid)
	}
	return job, nil
}

func (s *jobService) ArtifactPath(ctx context.Context, kind string, uid uuid.UUID) (string, string, error) {
	job, err := s.Status(ctx, kind, uid)
	if err != nil {
		return "", "", err
	}
	if job.Status != types.StatusCompleted {
		return "", "", fmt.Errorf("%w: job %s is %s", pkgerrors.ErrNotCompleted, uid, job.Status)
	}

	k, ok := s.registry.Get(kind)
	if !ok {
		return "", "", fmt.Errorf("%w: unknown job kind %q", pkgerrors.ErrNotFound, kind)
	}
	rel, mediaType := k.Artifact(uid.String())
	path := filepath.Join(s.resultsDir, rel)
	if _, err := os.Stat(path); err != nil {
		return "", "", fmt.Errorf("%w: artifact for job %s", pkgerrors.ErrNotFound, uid)
	}
	return path, mediaType, nil
}
