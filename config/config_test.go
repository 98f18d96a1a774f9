// ABOUTME: Tests for Config.Default and Load, including missing-file and malformed-YAML behavior.
package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Bullish-Design/remora/config"
)

func TestDefault_MatchesDocumentedDefaults(t *testing.T) {
	cfg := config.Default()

	if cfg.ProjectPath != "." {
		t.Errorf("ProjectPath: got %q, want %q", cfg.ProjectPath, ".")
	}
	if cfg.SwarmRoot != ".remora" {
		t.Errorf("SwarmRoot: got %q, want %q", cfg.SwarmRoot, ".remora")
	}
	if cfg.SwarmID != "swarm" {
		t.Errorf("SwarmID: got %q, want %q", cfg.SwarmID, "swarm")
	}
	if cfg.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency: got %d, want 4", cfg.MaxConcurrency)
	}
	if cfg.MaxTurns != 8 {
		t.Errorf("MaxTurns: got %d, want 8", cfg.MaxTurns)
	}
	if cfg.MaxTriggerDepth != 5 {
		t.Errorf("MaxTriggerDepth: got %d, want 5", cfg.MaxTriggerDepth)
	}
	if cfg.TriggerCooldownMs != 1000 {
		t.Errorf("TriggerCooldownMs: got %d, want 1000", cfg.TriggerCooldownMs)
	}
	if !cfg.WorkspaceIgnoreDotfiles {
		t.Error("expected WorkspaceIgnoreDotfiles default true")
	}
	if len(cfg.WorkspaceIgnorePatterns) == 0 {
		t.Error("expected default ignore patterns to be populated")
	}
}

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, config.Default()) {
		t.Errorf("expected Default() for missing file, got %+v", cfg)
	}
}

func TestLoad_ValidYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "remora.yaml")
	yamlContent := "swarm_id: custom-swarm\nmax_concurrency: 9\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SwarmID != "custom-swarm" {
		t.Errorf("SwarmID: got %q, want %q", cfg.SwarmID, "custom-swarm")
	}
	if cfg.MaxConcurrency != 9 {
		t.Errorf("MaxConcurrency: got %d, want 9", cfg.MaxConcurrency)
	}
	// Unset fields must still carry Default()'s values.
	if cfg.SwarmRoot != ".remora" {
		t.Errorf("SwarmRoot: got %q, want Default's %q", cfg.SwarmRoot, ".remora")
	}
}

func TestLoad_MalformedYAMLReturnsErrInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "remora.yaml")
	if err := os.WriteFile(path, []byte("swarm_id: [unterminated"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := config.Load(path)
	if !errors.Is(err, config.ErrInvalidYAML) {
		t.Errorf("got %v, want ErrInvalidYAML", err)
	}
}
