package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/roost/pkg/store"
)

// DefaultPath is where commands look for the workbench configuration.
const DefaultPath = "workbench.yml"

// WorkbenchConfig represents the top-level workbench.yml configuration
type WorkbenchConfig struct {
	Version   string           `yaml:"version"`
	Workbench string           `yaml:"workbench"` // Namespace for all Redis keys
	Redis     *RedisConfig     `yaml:"redis,omitempty"`
	Runtimes  *RuntimesConfig  `yaml:"runtimes,omitempty"`
	Agents    map[string]Agent `yaml:"agents"`
	Retention *RetentionConfig `yaml:"retention,omitempty"`
	Team      *TeamConfig      `yaml:"team,omitempty"`
}

// RedisConfig specifies how to reach the backing Redis
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"` // Default: localhost:6379
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// RuntimesConfig overrides how the agent CLIs are invoked
type RuntimesConfig struct {
	Claude *RuntimeConfig `yaml:"claude,omitempty"`
	Codex  *RuntimeConfig `yaml:"codex,omitempty"`
}

// RuntimeConfig specifies one runtime CLI invocation
type RuntimeConfig struct {
	Command  string `yaml:"command,omitempty"`   // Binary name or path, default per runtime
	AutoMode bool   `yaml:"auto_mode,omitempty"` // Skip interactive permission prompts
}

// Agent represents a single agent template
type Agent struct {
	Runtime     string `yaml:"runtime"` // Required: "claude" or "codex"
	WorkDir     string `yaml:"workdir"` // Required: directory the agent runs in
	DisplayName string `yaml:"display_name,omitempty"`
	Role        string `yaml:"role,omitempty"` // Used when the agent joins a team
}

// RetentionConfig caps the per-instance log and bus event history
type RetentionConfig struct {
	Logs   int `yaml:"logs,omitempty"`   // Default: 1000 entries per instance
	Events int `yaml:"events,omitempty"` // Default: 10000 events
}

// TeamConfig specifies team coordination behavior
type TeamConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms,omitempty"` // Default: 500
}

// Validate performs strict validation on the configuration and applies
// defaults in place
func (c *WorkbenchConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: workbench name
	if c.Workbench == "" {
		return fmt.Errorf("workbench name is required")
	}

	// Required: at least one agent
	if len(c.Agents) == 0 {
		return fmt.Errorf("no agents defined")
	}

	for name, agent := range c.Agents {
		if err := agent.Validate(name); err != nil {
			return err
		}
	}

	if c.Redis == nil {
		c.Redis = &RedisConfig{}
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}

	if c.Retention == nil {
		c.Retention = &RetentionConfig{}
	}
	if c.Retention.Logs == 0 {
		c.Retention.Logs = 1000
	}
	if c.Retention.Events == 0 {
		c.Retention.Events = 10000
	}
	if c.Retention.Logs < 1 || c.Retention.Events < 1 {
		return fmt.Errorf("retention limits must be >= 1")
	}

	if c.Team == nil {
		c.Team = &TeamConfig{}
	}
	if c.Team.PollIntervalMs == 0 {
		c.Team.PollIntervalMs = 500
	}
	if c.Team.PollIntervalMs < 1 {
		return fmt.Errorf("team.poll_interval_ms must be >= 1, got %d", c.Team.PollIntervalMs)
	}

	return nil
}

// Validate performs validation on a single agent template
func (a *Agent) Validate(name string) error {
	// Required: runtime
	if a.Runtime == "" {
		return fmt.Errorf("agent '%s': runtime is required", name)
	}
	if a.Runtime != string(store.RuntimeClaude) && a.Runtime != string(store.RuntimeCodex) {
		return fmt.Errorf("agent '%s': invalid runtime: %s (must be 'claude' or 'codex')", name, a.Runtime)
	}

	// Required: workdir
	if a.WorkDir == "" {
		return fmt.Errorf("agent '%s': workdir is required", name)
	}

	return nil
}

// Load reads and validates workbench.yml from the specified path
func Load(path string) (*WorkbenchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config WorkbenchConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
