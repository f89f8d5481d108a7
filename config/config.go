// Package config provides configuration loading and management for the
// triad runtime. Precedence is defaults, then the YAML config file, then
// environment variables; numeric overrides are range-validated.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete runtime configuration.
type Config struct {
	Paths  PathsConfig  `yaml:"paths"`
	Router RouterConfig `yaml:"router"`
	Hook   HookConfig   `yaml:"hook"`
	LLM    LLMConfig    `yaml:"llm"`
}

// PathsConfig locates the on-disk state the runtime owns.
type PathsConfig struct {
	// GraphsDir holds the per-triad graph files.
	GraphsDir string `yaml:"graphs_dir"`
	// WorkflowsDir holds instance state (instances/, completed/, abandoned/).
	WorkflowsDir string `yaml:"workflows_dir"`
	// SchemaFile is the workflow schema JSON.
	SchemaFile string `yaml:"schema_file"`
	// AgentsDir holds agent markdown files with triad frontmatter.
	AgentsDir string `yaml:"agents_dir"`
	// StateFile is the router state JSON.
	StateFile string `yaml:"state_file"`
	// TelemetryFile is the routing telemetry JSONL log.
	TelemetryFile string `yaml:"telemetry_file"`
}

// RouterConfig tunes the routing pipeline.
type RouterConfig struct {
	// ConfidenceThreshold is the minimum top score for immediate
	// semantic routing (inclusive).
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// AmbiguityThreshold is the minimum gap between the top two scores.
	AmbiguityThreshold float64 `yaml:"ambiguity_threshold"`
	// GraceTurns is the number of turns the active triad is sticky.
	GraceTurns int `yaml:"grace_turns"`
	// GraceMinutes is the wall-clock stickiness window.
	GraceMinutes int `yaml:"grace_minutes"`
	// LLMTimeout bounds the disambiguation call.
	LLMTimeout time.Duration `yaml:"llm_timeout"`
	// Training enables confirmation tracking for low-confidence routes.
	Training bool `yaml:"training"`
	// Telemetry enables the JSONL decision log.
	Telemetry bool `yaml:"telemetry"`
	// TelemetryMaxBytes rotates the log past this size.
	TelemetryMaxBytes int64 `yaml:"telemetry_max_bytes"`
	// ModelPath points at a local embedding model or cache, when used.
	ModelPath string `yaml:"model_path"`
}

// HookConfig tunes the pre-tool interjection hook.
type HookConfig struct {
	// NoBlock downgrades blocking decisions to context injection.
	NoBlock bool `yaml:"no_block"`
	// Disabled turns the hook off entirely.
	Disabled bool `yaml:"disabled"`
	// VersionFilePatterns is the ordered glob list for the version-file
	// block criterion.
	VersionFilePatterns []string `yaml:"version_file_patterns"`
	// MaxChecklistItems bounds how many items an interjection shows.
	MaxChecklistItems int `yaml:"max_checklist_items"`
	// Budget is the hook's soft wall-time budget.
	Budget time.Duration `yaml:"budget"`
}

// LLMConfig configures the disambiguation and embedding endpoint.
type LLMConfig struct {
	// Provider is the registered provider name ("openai", "anthropic").
	Provider string `yaml:"provider"`
	// Endpoint is the base URL. Empty uses the provider default.
	Endpoint string `yaml:"endpoint"`
	// Model is the disambiguation chat model.
	Model string `yaml:"model"`
	// EmbeddingModel is the embeddings model.
	EmbeddingModel string `yaml:"embedding_model"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
}

// DefaultConfig returns a Config with sensible defaults rooted under the
// user's home directory.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	claudeDir := filepath.Join(home, ".claude")

	return &Config{
		Paths: PathsConfig{
			GraphsDir:     filepath.Join(claudeDir, "graphs"),
			WorkflowsDir:  filepath.Join(claudeDir, "workflows"),
			SchemaFile:    filepath.Join(claudeDir, "workflow.json"),
			AgentsDir:     filepath.Join(claudeDir, "agents"),
			StateFile:     filepath.Join(claudeDir, "router_state.json"),
			TelemetryFile: filepath.Join(claudeDir, "router", "logs", "routing_telemetry.jsonl"),
		},
		Router: RouterConfig{
			ConfidenceThreshold: 0.70,
			AmbiguityThreshold:  0.10,
			GraceTurns:          5,
			GraceMinutes:        8,
			LLMTimeout:          2000 * time.Millisecond,
			Telemetry:           true,
			TelemetryMaxBytes:   10 * 1024 * 1024,
		},
		Hook: HookConfig{
			VersionFilePatterns: []string{
				".claude-plugin/plugin.json",
				"**/plugin.json",
				"**/package.json",
				"**/pyproject.toml",
				"**/Cargo.toml",
				"**/version.go",
				"**/VERSION",
			},
			MaxChecklistItems: 5,
			Budget:            400 * time.Millisecond,
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			APIKeyEnv:      "OPENAI_API_KEY",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Router.ConfidenceThreshold < 0 || c.Router.ConfidenceThreshold > 1 {
		return fmt.Errorf("router.confidence_threshold must be between 0 and 1")
	}
	if c.Router.AmbiguityThreshold < 0 || c.Router.AmbiguityThreshold > 1 {
		return fmt.Errorf("router.ambiguity_threshold must be between 0 and 1")
	}
	if c.Router.GraceTurns < 1 || c.Router.GraceTurns > 50 {
		return fmt.Errorf("router.grace_turns must be between 1 and 50")
	}
	if c.Router.GraceMinutes < 1 || c.Router.GraceMinutes > 120 {
		return fmt.Errorf("router.grace_minutes must be between 1 and 120")
	}
	if c.Router.LLMTimeout < 100*time.Millisecond || c.Router.LLMTimeout > 10*time.Second {
		return fmt.Errorf("router.llm_timeout must be between 100ms and 10s")
	}
	if c.Paths.GraphsDir == "" {
		return fmt.Errorf("paths.graphs_dir is required")
	}
	if c.Paths.WorkflowsDir == "" {
		return fmt.Errorf("paths.workflows_dir is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return config, nil
}

// Load builds the effective configuration: defaults, then the config file
// if present, then environment overrides, then validation.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// APIKey resolves the configured API key from the environment.
func (c *Config) APIKey() string {
	if c.LLM.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.LLM.APIKeyEnv)
}
