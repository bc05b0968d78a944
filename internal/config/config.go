package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/signalnine/srebench/internal/agent"
	"github.com/signalnine/srebench/internal/compare"
	"github.com/signalnine/srebench/internal/efficiency"
)

type Config struct {
	Scenarios  Scenarios         `yaml:"scenarios"`
	Results    Results           `yaml:"results"`
	Agents     []agent.Config    `yaml:"agents"`
	Run        Run               `yaml:"run"`
	Scoring    compare.Weights   `yaml:"scoring"`
	Efficiency efficiency.Config `yaml:"efficiency"`
	Telemetry  Telemetry         `yaml:"telemetry"`
	Secrets    Secrets           `yaml:"secrets"`
	Pricing    Pricing           `yaml:"pricing"`
	Log        Log               `yaml:"log"`
}

type Scenarios struct {
	Dir       string `yaml:"dir"`
	CacheSize int    `yaml:"cache_size"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

type Run struct {
	Parallel   int           `yaml:"parallel"`
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

type Pricing struct {
	Path string `yaml:"path"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() Config {
	return Config{
		Scenarios:  Scenarios{Dir: "scenarios", CacheSize: 64},
		Results:    Results{Dir: "results"},
		Run:        Run{Parallel: 1, Timeout: 5 * time.Minute, RetryDelay: 2 * time.Second},
		Scoring:    compare.DefaultWeights(),
		Efficiency: efficiency.DefaultConfig(),
		Telemetry:  Telemetry{ServiceName: "srebench"},
		Log:        Log{Level: "info", Format: "text"},
	}
}

// Load reads the YAML config at path, loads its secrets file into the
// environment without overriding variables already set, applies
// environment fallbacks and validates the result. Relative paths in the
// file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	resolvePaths(&cfg, filepath.Dir(path))
	if cfg.Secrets.EnvFile != "" {
		if err := godotenv.Load(cfg.Secrets.EnvFile); err != nil {
			return nil, fmt.Errorf("loading secrets %s: %w", cfg.Secrets.EnvFile, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Agent returns the agent called name.
func (c *Config) Agent(name string) (agent.Config, bool) {
	for _, a := range c.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return agent.Config{}, false
}

// AgentTimeout is the invoke timeout for a, falling back to the run timeout.
func (c *Config) AgentTimeout(a agent.Config) time.Duration {
	if a.Timeout > 0 {
		return a.Timeout
	}
	return c.Run.Timeout
}

func resolvePaths(cfg *Config, base string) {
	abs := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	abs(&cfg.Scenarios.Dir)
	abs(&cfg.Results.Dir)
	abs(&cfg.Secrets.EnvFile)
	abs(&cfg.Pricing.Path)
	for i := range cfg.Agents {
		abs(&cfg.Agents[i].Dir)
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("SREBENCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	model := os.Getenv("LLM_MODEL_NAME")
	var temp *float64
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("LLM_TEMPERATURE: %w", err)
		}
		temp = &f
	}
	for i := range cfg.Agents {
		a := &cfg.Agents[i]
		if a.Adapter != agent.AdapterLLM {
			continue
		}
		if a.Model == "" {
			a.Model = model
		}
		if a.Temperature == 0 && temp != nil {
			a.Temperature = *temp
		}
	}
	return nil
}

func validate(cfg *Config) error {
	if len(cfg.Agents) == 0 {
		return fmt.Errorf("no agents defined")
	}
	seen := map[string]bool{}
	for i, a := range cfg.Agents {
		if a.Name == "" {
			return fmt.Errorf("agent %d: name is required", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("agent %q: duplicate name", a.Name)
		}
		seen[a.Name] = true
		switch a.Adapter {
		case agent.AdapterLLM:
		case agent.AdapterContainer:
			if a.Image == "" {
				return fmt.Errorf("agent %q: image is required", a.Name)
			}
		case agent.AdapterReplay:
			if a.Dir == "" {
				return fmt.Errorf("agent %q: dir is required", a.Name)
			}
		case "":
			return fmt.Errorf("agent %q: adapter is required", a.Name)
		default:
			return fmt.Errorf("agent %q: unknown adapter %q", a.Name, a.Adapter)
		}
		if a.Temperature < 0 || a.Temperature > 2 {
			return fmt.Errorf("agent %q: temperature must be within [0, 2]", a.Name)
		}
		if a.Timeout < 0 {
			return fmt.Errorf("agent %q: timeout must not be negative", a.Name)
		}
	}
	if cfg.Scenarios.Dir == "" {
		return fmt.Errorf("scenarios.dir is required")
	}
	if cfg.Results.Dir == "" {
		return fmt.Errorf("results.dir is required")
	}
	if cfg.Run.Parallel < 1 {
		return fmt.Errorf("run.parallel must be at least 1")
	}
	if cfg.Run.Timeout < 0 {
		return fmt.Errorf("run.timeout must not be negative")
	}
	if cfg.Run.Retries < 0 {
		return fmt.Errorf("run.retries must not be negative")
	}
	if cfg.Run.Retries > 0 && cfg.Run.RetryDelay <= 0 {
		return fmt.Errorf("run.retry_delay must be positive when retries are enabled")
	}
	if err := cfg.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if err := cfg.Efficiency.Validate(); err != nil {
		return fmt.Errorf("efficiency: %w", err)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	return nil
}
