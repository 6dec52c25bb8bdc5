package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "salvo.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultAdapter != "openai" || cfg.StorageDir != ".salvo" || cfg.ScenariosDir != "scenarios" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.Recording.Mode != "full" {
		t.Fatalf("recording mode default: %q", cfg.Recording.Mode)
	}
}

func TestLoad_ParsesAllSections(t *testing.T) {
	t.Parallel()

	content := `default_adapter: anthropic
default_model: claude-haiku-4-5
storage_dir: .custom
judge:
  adapter: openai
  model: gpt-4o-mini
  k: 5
  temperature: 0.1
  default_threshold: 0.75
recording:
  mode: metadata_only
  custom_patterns:
    - "ACME-[0-9]+"
`
	path := filepath.Join(t.TempDir(), "salvo.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultAdapter != "anthropic" || cfg.StorageDir != ".custom" {
		t.Fatalf("top level: %+v", cfg)
	}
	if cfg.Judge.K == nil || *cfg.Judge.K != 5 {
		t.Fatalf("judge k: %v", cfg.Judge.K)
	}
	if cfg.Judge.DefaultThreshold == nil || *cfg.Judge.DefaultThreshold != 0.75 {
		t.Fatalf("judge threshold: %v", cfg.Judge.DefaultThreshold)
	}
	if cfg.Recording.Mode != "metadata_only" || len(cfg.Recording.CustomPatterns) != 1 {
		t.Fatalf("recording: %+v", cfg.Recording)
	}
}

func TestLoad_BadRecordingMode(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "salvo.yaml")
	if err := os.WriteFile(path, []byte("recording:\n  mode: sometimes\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for bad recording mode")
	}
}

func TestCI(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"false", false},
		{"0", false},
		{"true", true},
		{"1", true},
	}
	for _, tc := range cases {
		t.Setenv("CI", tc.value)
		if got := CI(); got != tc.want {
			t.Fatalf("CI with %q: got %v want %v", tc.value, got, tc.want)
		}
	}
}
