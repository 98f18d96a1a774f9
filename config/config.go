// ABOUTME: Flat swarm configuration loaded from remora.yaml, discovered by walking up from the working directory.
// ABOUTME: A missing config file is not an error: defaults match the original system's remora.yaml defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Bullish-Design/remora/pathutil"
)

// ErrInvalidYAML wraps a YAML parse failure while loading remora.yaml.
var ErrInvalidYAML = errors.New("invalid config YAML")

// Config is the flat configuration for a swarm-only run.
type Config struct {
	ProjectPath         string   `yaml:"project_path"`
	DiscoveryPaths      []string `yaml:"discovery_paths"`
	DiscoveryLanguages  []string `yaml:"discovery_languages"`
	DiscoveryMaxWorkers int      `yaml:"discovery_max_workers"`

	BundleRoot    string            `yaml:"bundle_root"`
	BundleMapping map[string]string `yaml:"bundle_mapping"`

	ModelBaseURL string `yaml:"model_base_url"`
	ModelDefault string `yaml:"model_default"`
	ModelAPIKey  string `yaml:"model_api_key"`

	SwarmRoot         string  `yaml:"swarm_root"`
	SwarmID           string  `yaml:"swarm_id"`
	MaxConcurrency    int     `yaml:"max_concurrency"`
	MaxTurns          int     `yaml:"max_turns"`
	TruncationLimit   int     `yaml:"truncation_limit"`
	TimeoutSeconds    float64 `yaml:"timeout_s"`
	MaxTriggerDepth   int     `yaml:"max_trigger_depth"`
	TriggerCooldownMs int64   `yaml:"trigger_cooldown_ms"`

	WorkspaceIgnorePatterns  []string `yaml:"workspace_ignore_patterns"`
	WorkspaceIgnoreDotfiles  bool     `yaml:"workspace_ignore_dotfiles"`

	NvimEnabled bool   `yaml:"nvim_enabled"`
	NvimSocket  string `yaml:"nvim_socket"`
}

// Default returns the configuration the original system ships as
// remora.yaml defaults.
func Default() Config {
	return Config{
		ProjectPath:             ".",
		DiscoveryPaths:          []string{"src/"},
		DiscoveryMaxWorkers:     4,
		BundleRoot:              "agents",
		BundleMapping:           map[string]string{},
		ModelBaseURL:            "http://localhost:8000/v1",
		ModelDefault:            "Qwen/Qwen3-4B",
		SwarmRoot:               ".remora",
		SwarmID:                 "swarm",
		MaxConcurrency:          4,
		MaxTurns:                8,
		TruncationLimit:         1024,
		TimeoutSeconds:          300.0,
		MaxTriggerDepth:         5,
		TriggerCooldownMs:       1000,
		WorkspaceIgnorePatterns: append([]string(nil), pathutil.DefaultIgnorePatterns...),
		WorkspaceIgnoreDotfiles: true,
		NvimSocket:              ".remora/nvim.sock",
	}
}

// Load reads remora.yaml at path. If path is empty, it searches the
// current directory and its parents, stopping at (and not crossing) a
// directory containing go.mod. A config file that does not exist is not
// an error: Load returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		path = findConfigFile()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
	}
	return cfg, nil
}

func findConfigFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "remora.yaml"
	}

	dir := cwd
	for {
		candidate := filepath.Join(dir, "remora.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return filepath.Join(cwd, "remora.yaml")
}
