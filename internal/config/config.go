package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	KindExec      = "exec"
	KindContainer = "container"
	KindConstant  = "constant"
)

type Config struct {
	// Data is the binary data graph estimators read.
	Data         string        `yaml:"data"`
	Trials       int           `yaml:"trials"`
	Seed         int64         `yaml:"seed"`
	Ratio        float64       `yaml:"ratio"`
	Deadline     time.Duration `yaml:"deadline"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Estimators   []Estimator   `yaml:"estimators"`
	Results      Results       `yaml:"results"`
	Logging      Logging       `yaml:"logging"`
}

type Estimator struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"`
	// RunCmd and SummarizeCmd are argv templates. {data}, {query}, {summary},
	// {ratio} and {seed} are substituted before execution.
	RunCmd       []string          `yaml:"run_cmd" json:"run_cmd,omitempty"`
	SummarizeCmd []string          `yaml:"summarize_cmd" json:"summarize_cmd,omitempty"`
	Env          map[string]string `yaml:"env" json:"env,omitempty"`
	Image        string            `yaml:"image" json:"image,omitempty"`
	CPULimit     float64           `yaml:"cpu_limit" json:"cpu_limit,omitempty"`
	MemoryMB     int64             `yaml:"memory_limit_mb" json:"memory_limit_mb,omitempty"`
	// Timeout caps one container run. Defaults to the trial deadline.
	Timeout time.Duration `yaml:"timeout" json:"timeout,omitempty"`
	Value   float64       `yaml:"value" json:"value,omitempty"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

type Logging struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Overrides are read from CARDBENCH_* environment variables and take
// precedence over the file.
type Overrides struct {
	Data         string        `envconfig:"DATA"`
	Trials       int           `envconfig:"TRIALS"`
	Seed         *int64        `envconfig:"SEED"`
	Ratio        *float64      `envconfig:"RATIO"`
	Deadline     time.Duration `envconfig:"DEADLINE"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL"`
	ResultsDir   string        `envconfig:"RESULTS_DIR"`
	LogLevel     string        `envconfig:"LOG_LEVEL"`
	LogDev       *bool         `envconfig:"LOG_DEV"`
}

const EnvPrefix = "CARDBENCH"

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading %s_* environment: %w", EnvPrefix, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var o Overrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return err
	}
	if o.Data != "" {
		cfg.Data = o.Data
	}
	if o.Trials != 0 {
		cfg.Trials = o.Trials
	}
	if o.Seed != nil {
		cfg.Seed = *o.Seed
	}
	if o.Ratio != nil {
		cfg.Ratio = *o.Ratio
	}
	if o.Deadline != 0 {
		cfg.Deadline = o.Deadline
	}
	if o.PollInterval != 0 {
		cfg.PollInterval = o.PollInterval
	}
	if o.ResultsDir != "" {
		cfg.Results.Dir = o.ResultsDir
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.LogDev != nil {
		cfg.Logging.Development = *o.LogDev
	}
	return nil
}

func validate(cfg *Config) error {
	if len(cfg.Estimators) == 0 {
		return fmt.Errorf("no estimators defined")
	}
	seen := map[string]bool{}
	for i := range cfg.Estimators {
		e := &cfg.Estimators[i]
		if e.Name == "" {
			return fmt.Errorf("estimator %d: name is required", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("estimator %q: defined twice", e.Name)
		}
		seen[e.Name] = true
		if e.Kind == "" {
			e.Kind = KindExec
		}
		switch e.Kind {
		case KindExec:
			if len(e.RunCmd) == 0 {
				return fmt.Errorf("estimator %q: run_cmd is required", e.Name)
			}
		case KindContainer:
			if e.Image == "" {
				return fmt.Errorf("estimator %q: image is required", e.Name)
			}
			if len(e.RunCmd) == 0 {
				return fmt.Errorf("estimator %q: run_cmd is required", e.Name)
			}
		case KindConstant:
		default:
			return fmt.Errorf("estimator %q: unknown kind %q", e.Name, e.Kind)
		}
	}
	if cfg.Trials == 0 {
		cfg.Trials = 30
	}
	if cfg.Trials < 1 {
		return fmt.Errorf("trials must be at least 1")
	}
	if cfg.Ratio == 0 {
		cfg.Ratio = 0.03
	}
	if cfg.Ratio < 0 {
		return fmt.Errorf("ratio must not be negative")
	}
	if cfg.Deadline == 0 {
		cfg.Deadline = 5 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.Deadline < 0 || cfg.PollInterval < 0 {
		return fmt.Errorf("deadline and poll_interval must be positive")
	}
	for _, e := range cfg.Estimators {
		if e.Timeout < 0 {
			return fmt.Errorf("estimator %q: timeout must be positive", e.Name)
		}
	}
	cfg.clampTimeouts()
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	return nil
}

// SetDeadline changes the per-trial deadline and keeps container timeouts
// within it.
func (c *Config) SetDeadline(d time.Duration) {
	c.Deadline = d
	c.clampTimeouts()
}

// clampTimeouts bounds container runs by the trial deadline, since killing the
// worker does not stop a container it started.
func (c *Config) clampTimeouts() {
	for i := range c.Estimators {
		e := &c.Estimators[i]
		if e.Kind == KindContainer && (e.Timeout == 0 || e.Timeout > c.Deadline) {
			e.Timeout = c.Deadline
		}
	}
}

// Estimator returns the estimator named name.
func (c *Config) Estimator(name string) (*Estimator, error) {
	for i := range c.Estimators {
		if c.Estimators[i].Name == name {
			return &c.Estimators[i], nil
		}
	}
	return nil, fmt.Errorf("estimator %q not found in config", name)
}
