package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the project config file looked up from the project root.
const DefaultPath = "salvo.yaml"

// Config is the project-level configuration loaded from salvo.yaml.
type Config struct {
	DefaultAdapter string          `yaml:"default_adapter,omitempty"`
	DefaultModel   string          `yaml:"default_model,omitempty"`
	ScenariosDir   string          `yaml:"scenarios_dir,omitempty"`
	StorageDir     string          `yaml:"storage_dir,omitempty"`
	Judge          JudgeConfig     `yaml:"judge,omitempty"`
	Recording      RecordingConfig `yaml:"recording,omitempty"`
}

// JudgeConfig overrides the built-in judge defaults project-wide.
// Per-assertion settings still win over these.
type JudgeConfig struct {
	Adapter          string   `yaml:"adapter,omitempty"`
	Model            string   `yaml:"model,omitempty"`
	K                *int     `yaml:"k,omitempty"`
	Temperature      *float64 `yaml:"temperature,omitempty"`
	DefaultThreshold *float64 `yaml:"default_threshold,omitempty"`
}

// RecordingConfig controls trace recording behavior.
type RecordingConfig struct {
	// CustomPatterns extend the built-in redaction patterns; they never
	// replace them.
	CustomPatterns []string `yaml:"custom_patterns,omitempty"`
	Mode           string   `yaml:"mode,omitempty"` // full or metadata_only
}

// Load reads the project config, applying defaults when the file is
// missing. An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	if cfg.Recording.Mode != "" && cfg.Recording.Mode != "full" && cfg.Recording.Mode != "metadata_only" {
		return nil, fmt.Errorf("config: recording.mode must be \"full\" or \"metadata_only\", got %q", cfg.Recording.Mode)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DefaultAdapter) == "" {
		cfg.DefaultAdapter = "openai"
	}
	if strings.TrimSpace(cfg.ScenariosDir) == "" {
		cfg.ScenariosDir = "scenarios"
	}
	if strings.TrimSpace(cfg.StorageDir) == "" {
		cfg.StorageDir = ".salvo"
	}
	if strings.TrimSpace(cfg.Recording.Mode) == "" {
		cfg.Recording.Mode = "full"
	}
}

// CI reports whether the CI environment variable forces non-interactive
// rendering.
func CI() bool {
	v := strings.TrimSpace(os.Getenv("CI"))
	return v != "" && !strings.EqualFold(v, "false") && v != "0"
}
