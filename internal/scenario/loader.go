package scenario

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultMaxTurns  = 10
	minMaxTurns      = 1
	maxMaxTurns      = 100
	defaultThreshold = 0.8
)

// rawScenario mirrors the scenario file contract before normalization.
type rawScenario struct {
	Name         string           `yaml:"name"`
	Description  string           `yaml:"description"`
	Adapter      string           `yaml:"adapter"`
	Model        string           `yaml:"model"`
	SystemPrompt string           `yaml:"system_prompt"`
	Prompt       string           `yaml:"prompt"`
	MaxTurns     *int             `yaml:"max_turns"`
	Temperature  *float64         `yaml:"temperature"`
	Seed         *int             `yaml:"seed"`
	Tools        []Tool           `yaml:"tools"`
	Assertions   []map[string]any `yaml:"assertions"`
	Threshold    *float64         `yaml:"threshold"`
	Extras       map[string]any   `yaml:"extras"`
}

// Load reads, parses, and validates a scenario file. !include scalars are
// resolved relative to the file's directory before decoding.
func Load(path string) (*Scenario, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("scenario: empty path")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %q: %w", path, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("scenario: parse %q: %w", path, err)
	}
	if err := resolveIncludes(&root, filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("scenario: %q: %w", path, err)
	}

	var raw rawScenario
	if err := root.Decode(&raw); err != nil {
		return nil, fmt.Errorf("scenario: decode %q: %w", path, err)
	}

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return build(name, &raw)
}

func build(name string, raw *rawScenario) (*Scenario, error) {
	if strings.TrimSpace(raw.Model) == "" {
		return nil, fmt.Errorf("scenario: missing model")
	}
	if strings.TrimSpace(raw.Prompt) == "" {
		return nil, fmt.Errorf("scenario: missing prompt")
	}

	// An empty adapter is legal; the caller fills it from the project
	// config's default_adapter.
	adapter := strings.ToLower(strings.TrimSpace(raw.Adapter))

	maxTurns := defaultMaxTurns
	if raw.MaxTurns != nil {
		maxTurns = *raw.MaxTurns
	}
	if maxTurns < minMaxTurns || maxTurns > maxMaxTurns {
		return nil, fmt.Errorf("scenario: max_turns must be between %d and %d, got %d", minMaxTurns, maxMaxTurns, maxTurns)
	}

	threshold := defaultThreshold
	if raw.Threshold != nil {
		threshold = *raw.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("scenario: threshold must be between 0 and 1, got %v", threshold)
	}

	seen := make(map[string]struct{}, len(raw.Tools))
	for _, t := range raw.Tools {
		tn := strings.TrimSpace(t.Name)
		if tn == "" {
			return nil, fmt.Errorf("scenario: tool with empty name")
		}
		if _, dup := seen[tn]; dup {
			return nil, fmt.Errorf("scenario: duplicate tool %q", tn)
		}
		seen[tn] = struct{}{}
	}

	assertions, err := NormalizeAssertions(raw.Assertions)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}

	s := &Scenario{
		Name:         name,
		Description:  strings.TrimSpace(raw.Description),
		Adapter:      adapter,
		Model:        strings.TrimSpace(raw.Model),
		SystemPrompt: raw.SystemPrompt,
		Prompt:       raw.Prompt,
		MaxTurns:     maxTurns,
		Temperature:  raw.Temperature,
		Seed:         raw.Seed,
		Tools:        raw.Tools,
		Assertions:   assertions,
		Threshold:    threshold,
		Extras:       raw.Extras,
	}
	s.Hash = ComputeHash(s)
	return s, nil
}

// ComputeHash returns the SHA-256 of the scenario's normalized JSON bytes,
// excluding the hash field itself. Stamped into every trace for drift
// detection on re-evaluation.
func ComputeHash(s *Scenario) string {
	if s == nil {
		return ""
	}
	shadow := *s
	shadow.Hash = ""
	b, err := json.Marshal(&shadow)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// resolveIncludes rewrites !include scalars in place. YAML/JSON includes
// are spliced as parsed documents; anything else becomes a string scalar
// of the file's contents.
func resolveIncludes(node *yaml.Node, dir string) error {
	if node == nil {
		return nil
	}

	if node.Kind == yaml.ScalarNode && node.Tag == "!include" {
		rel := strings.TrimSpace(node.Value)
		if rel == "" {
			return fmt.Errorf("!include with empty path")
		}
		if filepath.IsAbs(rel) || strings.Contains(rel, "..") {
			return fmt.Errorf("!include %q: only sibling paths are allowed", rel)
		}
		full := filepath.Join(dir, rel)
		b, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("!include %q: %w", rel, err)
		}

		switch strings.ToLower(filepath.Ext(rel)) {
		case ".yaml", ".yml", ".json":
			var included yaml.Node
			if err := yaml.Unmarshal(b, &included); err != nil {
				return fmt.Errorf("!include %q: %w", rel, err)
			}
			if included.Kind == yaml.DocumentNode && len(included.Content) == 1 {
				*node = *included.Content[0]
			} else {
				*node = included
			}
			return resolveIncludes(node, filepath.Dir(full))
		default:
			node.Tag = "!!str"
			node.Value = string(b)
			node.Style = 0
		}
		return nil
	}

	for _, child := range node.Content {
		if err := resolveIncludes(child, dir); err != nil {
			return err
		}
	}
	return nil
}
