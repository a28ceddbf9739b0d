package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/biographdb/biograph-backend/internal/platform/envutil"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
)

// ToolsConfig names the external analysis executables. Loaded from the YAML
// file at TOOLS_CONFIG, with per-tool env-var overrides for container setups
// that inject paths individually.
type ToolsConfig struct {
	Diamond   string `yaml:"diamond"`
	Must      string `yaml:"must"`
	Trustrank string `yaml:"trustrank"`
	Closeness string `yaml:"closeness"`
	Bicon     string `yaml:"bicon"`
}

type Config struct {
	Port              string
	ResultsDir        string
	StaticDir         string
	WorkerConcurrency int
	// ToolTimeout of zero disables the deadline on external tool runs.
	ToolTimeout     time.Duration
	NetworkCacheTTL time.Duration
	Tools           ToolsConfig
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		Port:              envutil.Str("PORT", "8080"),
		ResultsDir:        envutil.Str("RESULTS_DIR", "./results"),
		StaticDir:         envutil.Str("STATIC_DIR", "./static"),
		WorkerConcurrency: envutil.Int("WORKER_CONCURRENCY", 4),
		ToolTimeout:       envutil.Duration("TOOL_TIMEOUT", 0),
		NetworkCacheTTL:   envutil.Duration("NETWORK_CACHE_TTL", time.Hour),
	}

	if path := envutil.Str("TOOLS_CONFIG", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read tools config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg.Tools); err != nil {
			return cfg, fmt.Errorf("parse tools config: %w", err)
		}
		log.Info("Loaded tools config", "path", path)
	}

	cfg.Tools.Diamond = envutil.Str("DIAMOND_RUN", cfg.Tools.Diamond)
	cfg.Tools.Must = envutil.Str("MUST_RUN", cfg.Tools.Must)
	cfg.Tools.Trustrank = envutil.Str("TRUSTRANK_RUN", cfg.Tools.Trustrank)
	cfg.Tools.Closeness = envutil.Str("CLOSENESS_RUN", cfg.Tools.Closeness)
	cfg.Tools.Bicon = envutil.Str("BICON_RUN", cfg.Tools.Bicon)

	if err := os.MkdirAll(cfg.ResultsDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create results dir: %w", err)
	}

	return cfg, nil
}
