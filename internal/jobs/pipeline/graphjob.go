package pipelines

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/biographdb/biograph-backend/internal/data/entitystore"
	"github.com/biographdb/biograph-backend/internal/graphbuild"
	"github.com/biographdb/biograph-backend/internal/jobs/runtime"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
)

// GraphPipeline materializes filtered graph exports. The entity store's data
// version is folded into the normalized parameters so a data refresh
// invalidates previously cached builds.
type GraphPipeline struct {
	store   entitystore.Store
	builder *graphbuild.Builder
	log     *logger.Logger
}

func NewGraphPipeline(store entitystore.Store, baseLog *logger.Logger) *GraphPipeline {
	return &GraphPipeline{
		store:   store,
		builder: graphbuild.NewBuilder(store, baseLog),
		log:     baseLog.With("pipeline", "graph"),
	}
}

func (p *GraphPipeline) Name() string { return "graph" }

func (p *GraphPipeline) Artifact(uid string) (string, string) {
	return filepath.Join("graph", uid+".graphml"), "application/xml"
}

func (p *GraphPipeline) Normalize(params map[string]any) (map[string]any, error) {
	spec, err := graphbuild.FromParams(params)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encode build spec: %w", err)
	}
	normalized := map[string]any{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("encode build spec: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	version, err := p.store.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("read data version: %w", err)
	}
	normalized["version"] = version
	return normalized, nil
}

func (p *GraphPipeline) Run(jc *runtime.Context) error {
	spec, err := graphbuild.FromParams(jc.Params())
	if err != nil {
		return err
	}

	g, err := p.builder.Build(jc.Ctx, spec)
	if err != nil {
		return err
	}

	kindDir, err := jc.KindDir()
	if err != nil {
		return err
	}
	path := filepath.Join(kindDir, jc.Job.UID.String()+".graphml")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create graphml file: %w", err)
	}
	if err := graphbuild.WriteGraphML(f, g); err != nil {
		f.Close()
		return fmt.Errorf("write graphml: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write graphml: %w", err)
	}

	return jc.Complete(map[string]any{
		"nodes": g.NodeCount(),
		"edges": g.EdgeCount(),
	})
}
