package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	jobsrepo "github.com/biographdb/biograph-backend/internal/data/repos/jobs"
	"github.com/biographdb/biograph-backend/internal/data/repos/testutil"
	apihttp "github.com/biographdb/biograph-backend/internal/http"
	"github.com/biographdb/biograph-backend/internal/http/handlers"
	"github.com/biographdb/biograph-backend/internal/jobs/executor"
	"github.com/biographdb/biograph-backend/internal/jobs/runtime"
	pkgerrors "github.com/biographdb/biograph-backend/internal/pkg/errors"
	"github.com/biographdb/biograph-backend/internal/services"
)

// sumKind adds up a list of numbers and writes the result as its artifact.
type sumKind struct{}

func (sumKind) Name() string { return "sum" }

func (sumKind) Normalize(params map[string]any) (map[string]any, error) {
	raw, ok := params["values"].([]any)
	if !ok || len(raw) == 0 {
		return nil, pkgerrors.ErrInvalidArgument
	}
	return map[string]any{"values": raw}, nil
}

func (sumKind) Artifact(uid string) (string, string) {
	return filepath.Join("sum", uid+".txt"), "text/plain"
}

func (sumKind) Run(jc *runtime.Context) error {
	total := 0.0
	for _, v := range jc.Params()["values"].([]any) {
		total += v.(float64)
	}
	dir, err := jc.KindDir()
	if err != nil {
		return err
	}
	content := []byte(strings.TrimSpace(strings.Join([]string{"total", jc.Job.UID.String()}, " ")))
	if err := os.WriteFile(filepath.Join(dir, jc.Job.UID.String()+".txt"), content, 0o644); err != nil {
		return err
	}
	return jc.Complete(map[string]any{"total": total})
}

func newTestRouter(t *testing.T) (*gin.Engine, *executor.Executor) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := testutil.Logger(t)
	repo := jobsrepo.NewJobRepo(testutil.DB(t), log)
	registry := runtime.NewRegistry()
	require.NoError(t, registry.Register(sumKind{}))

	resultsDir := t.TempDir()
	exec := executor.New(repo, registry, log, 2, resultsDir, t.TempDir())
	svc := services.NewJobService(repo, registry, exec, resultsDir, log)

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Log:           log,
		Kinds:         registry.Names(),
		JobHandler:    handlers.NewJobHandler(log, svc),
		GraphHandler:  handlers.NewGraphHandler(log, svc),
		HealthHandler: handlers.NewHealthHandler(),
	})
	return router, exec
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthcheck(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/healthcheck", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitStatusDownloadRoundTrip(t *testing.T) {
	router, exec := newTestRouter(t)

	// Submit returns the bare uid.
	w := doRequest(router, http.MethodPost, "/sum/submit", `{"values":[1,2,3]}`)
	require.Equal(t, http.StatusOK, w.Code)
	uid, err := uuid.Parse(strings.TrimSpace(w.Body.String()))
	require.NoError(t, err)

	exec.Wait()

	// Status shows the completed record with its result payload.
	w = doRequest(router, http.MethodGet, "/sum/status?uid="+uid.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "completed", payload["status"])
	require.Equal(t, "sum", payload["kind"])
	require.Equal(t, uid.String(), payload["uid"])

	// Parameter fields are flattened alongside the lifecycle fields, not
	// nested under a params object.
	require.Contains(t, payload, "values")
	require.NotContains(t, payload, "params")

	// Download serves the artifact with the kind's media type.
	w = doRequest(router, http.MethodGet, "/sum/download?uid="+uid.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	require.Contains(t, w.Body.String(), uid.String())
}

func TestSubmitDeduplicatesAcrossRequests(t *testing.T) {
	router, exec := newTestRouter(t)

	w1 := doRequest(router, http.MethodPost, "/sum/submit", `{"values":[4,5]}`)
	require.Equal(t, http.StatusOK, w1.Code)
	exec.Wait()

	w2 := doRequest(router, http.MethodPost, "/sum/submit", `{"values":[4,5]}`)
	require.Equal(t, http.StatusOK, w2.Code)
	require.Equal(t, w1.Body.String(), w2.Body.String(), "identical submissions must reuse the job")
}

func TestSubmitInvalidParams(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/sum/submit", `{"values":[]}`)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusUnknownUIDIsEmptyObject(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, query := range []string{"?uid=" + uuid.NewString(), "?uid=not-a-uuid", ""} {
		w := doRequest(router, http.MethodGet, "/sum/status"+query, "")
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{}`, w.Body.String())
	}
}

func TestDownloadBeforeCompletion(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/sum/download?uid="+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGraphCollections(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/graph/collections", "")
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Contains(t, payload, "nodes")
	require.Contains(t, payload, "edges")
	require.Contains(t, payload, "drug_groups")
}

func TestGraphDetailsUnknown(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/graph/details/"+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, w.Code)
}
