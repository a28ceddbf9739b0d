package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	jobsrepo "github.com/biographdb/biograph-backend/internal/data/repos/jobs"
	"github.com/biographdb/biograph-backend/internal/data/repos/testutil"
	types "github.com/biographdb/biograph-backend/internal/domain/jobs"
	"github.com/biographdb/biograph-backend/internal/jobs/executor"
	"github.com/biographdb/biograph-backend/internal/jobs/runtime"
	pkgerrors "github.com/biographdb/biograph-backend/internal/pkg/errors"
)

// echoKind completes immediately and materializes a one-line artifact.
type echoKind struct{}

func (echoKind) Name() string { return "echo" }

func (echoKind) Normalize(params map[string]any) (map[string]any, error) {
	if _, ok := params["text"].(string); !ok {
		return nil, pkgerrors.ErrInvalidArgument
	}
	return map[string]any{"text": params["text"]}, nil
}

func (echoKind) Artifact(uid string) (string, string) {
	return filepath.Join("echo", uid+".txt"), "text/plain"
}

func (echoKind) Run(jc *runtime.Context) error {
	dir, err := jc.KindDir()
	if err != nil {
		return err
	}
	text := jc.ParamString("text")
	if err := os.WriteFile(filepath.Join(dir, jc.Job.UID.String()+".txt"), []byte(text), 0o644); err != nil {
		return err
	}
	return jc.Complete(map[string]any{"text": text})
}

func newTestService(t *testing.T) (JobService, *executor.Executor, string) {
	t.Helper()
	repo := jobsrepo.NewJobRepo(testutil.DB(t), testutil.Logger(t))
	registry := runtime.NewRegistry()
	require.NoError(t, registry.Register(echoKind{}))

	resultsDir := t.TempDir()
	exec := executor.New(repo, registry, testutil.Logger(t), 2, resultsDir, t.TempDir())
	return NewJobService(repo, registry, exec, resultsDir, testutil.Logger(t)), exec, resultsDir
}

func TestSubmitRunsJob(t *testing.T) {
	svc, exec, _ := newTestService(t)
	ctx := context.Background()

	job, created, err := svc.Submit(ctx, "echo", map[string]any{"text": "hello"})
	require.NoError(t, err)
	require.True(t, created)
	exec.Wait()

	got, err := svc.Status(ctx, "echo", job.UID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, got.Status)

	path, mediaType, err := svc.ArtifactPath(ctx, "echo", job.UID)
	require.NoError(t, err)
	require.Equal(t, "text/plain", mediaType)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(raw))
}

func TestSubmitDeduplicates(t *testing.T) {
	svc, exec, _ := newTestService(t)
	ctx := context.Background()

	first, created, err := svc.Submit(ctx, "echo", map[string]any{"text": "same"})
	require.NoError(t, err)
	require.True(t, created)
	exec.Wait()

	second, created, err := svc.Submit(ctx, "echo", map[string]any{"text": "same"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.UID, second.UID)

	third, created, err := svc.Submit(ctx, "echo", map[string]any{"text": "different"})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first.UID, third.UID)
	exec.Wait()
}

func TestSubmitValidationCreatesNoRecord(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Submit(ctx, "echo", map[string]any{"wrong": true})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)

	_, _, err = svc.Submit(ctx, "nonexistent", map[string]any{})
	require.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestStatusUnknownUID(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Status(context.Background(), "echo", uuid.New())
	require.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestStatusWrongKind(t *testing.T) {
	svc, exec, _ := newTestService(t)
	ctx := context.Background()

	job, _, err := svc.Submit(ctx, "echo", map[string]any{"text": "x"})
	require.NoError(t, err)
	exec.Wait()

	_, err = svc.Status(ctx, "diamond", job.UID)
	require.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestArtifactPathRequiresCompletion(t *testing.T) {
	repo := jobsrepo.NewJobRepo(testutil.DB(t), testutil.Logger(t))
	registry := runtime.NewRegistry()
	require.NoError(t, registry.Register(echoKind{}))
	resultsDir := t.TempDir()
	exec := executor.New(repo, registry, testutil.Logger(t), 2, resultsDir, t.TempDir())
	svc := NewJobService(repo, registry, exec, resultsDir, testutil.Logger(t))

	// Create the record without dispatching so it stays submitted.
	job := &types.Job{UID: uuid.New(), Fingerprint: "fp-stuck", Kind: "echo", Status: types.StatusSubmitted}
	job, _, err := repo.FindOrCreate(context.Background(), job)
	require.NoError(t, err)

	_, _, err = svc.ArtifactPath(context.Background(), "echo", job.UID)
	require.ErrorIs(t, err, pkgerrors.ErrNotCompleted)
	require.False(t, errors.Is(err, pkgerrors.ErrNotFound))
	require.True(t, strings.Contains(err.Error(), "submitted"))
}
