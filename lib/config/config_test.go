// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loopback.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Isolation.Backend != BackendSystem {
		t.Errorf("expected backend=system, got %s", cfg.Isolation.Backend)
	}
	if filepath.Base(cfg.Paths.RunDir) != "run" || filepath.Dir(cfg.Paths.RunDir) != cfg.Paths.Root {
		t.Errorf("run_dir %s not under root %s", cfg.Paths.RunDir, cfg.Paths.Root)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoad_RequiresLoopbackConfig(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when LOOPBACK_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "LOOPBACK_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithLoopbackConfig(t *testing.T) {
	path := writeConfig(t, `
environment: development
paths:
  run_dir: /test/run
isolation:
  backend: memory
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Paths.RunDir != "/test/run" {
		t.Errorf("expected run_dir=/test/run, got %s", cfg.Paths.RunDir)
	}
	if cfg.Isolation.Backend != BackendMemory {
		t.Errorf("expected backend=memory, got %s", cfg.Isolation.Backend)
	}
	if cfg.Source() != path {
		t.Errorf("Source = %s, want %s", cfg.Source(), path)
	}
}

func TestLoadFile_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: development
paths:
  run_dir: /base/run
  state_dir: /base/state
isolation:
  backend: system
development:
  isolation:
    backend: memory
    seed: /seeds/dev.jsonc
  logging:
    level: debug
production:
  paths:
    run_dir: /prod/run
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Isolation.Backend != BackendMemory || cfg.Isolation.Seed != "/seeds/dev.jsonc" {
		t.Errorf("development override not applied: %+v", cfg.Isolation)
	}
	if cfg.Paths.RunDir != "/base/run" {
		t.Errorf("production override applied in development: run_dir=%s", cfg.Paths.RunDir)
	}
	level, err := cfg.LogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("LogLevel = %v, %v; want debug", level, err)
	}
}

func TestLoadFile_ProductionDefaults(t *testing.T) {
	path := writeConfig(t, "environment: production\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected production logging.level=warn, got %s", cfg.Logging.Level)
	}
}

func TestLoadFile_ExpandsVariables(t *testing.T) {
	t.Setenv("LOOPBACK_TEST_SEEDS", "/srv/seeds")
	path := writeConfig(t, `
paths:
  root: /opt/loopback
  run_dir: ${LOOPBACK_ROOT}/sockets
  state_dir: ${LOOPBACK_STATE:-/var/lib/loopback}
isolation:
  backend: memory
  seed: ${LOOPBACK_TEST_SEEDS}/containers.jsonc
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Paths.RunDir != "/opt/loopback/sockets" {
		t.Errorf("run_dir = %s", cfg.Paths.RunDir)
	}
	if cfg.Paths.StateDir != "/var/lib/loopback" {
		t.Errorf("state_dir = %s, want the default branch", cfg.Paths.StateDir)
	}
	if cfg.Isolation.Seed != "/srv/seeds/containers.jsonc" {
		t.Errorf("seed = %s", cfg.Isolation.Seed)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFile(writeConfig(t, "paths: [not, a, map]\n")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestResolve(t *testing.T) {
	flagPath := writeConfig(t, "paths:\n  run_dir: /from/flag\n")
	envPath := writeConfig(t, "paths:\n  run_dir: /from/env\n")

	t.Setenv(EnvironmentVariable, envPath)
	cfg, err := Resolve(flagPath)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Paths.RunDir != "/from/flag" {
		t.Errorf("flag should win over environment, got %s", cfg.Paths.RunDir)
	}

	cfg, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Paths.RunDir != "/from/env" {
		t.Errorf("expected environment config, got %s", cfg.Paths.RunDir)
	}

	t.Setenv(EnvironmentVariable, "")
	cfg, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Source() != "" {
		t.Errorf("defaults report source %s", cfg.Source())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"no run dir", func(c *Config) { c.Paths.RunDir = "" }, "paths.run_dir"},
		{"no state dir", func(c *Config) { c.Paths.StateDir = "" }, "paths.state_dir"},
		{"bad backend", func(c *Config) { c.Isolation.Backend = "registry" }, "isolation.backend"},
		{"seed without memory", func(c *Config) { c.Isolation.Seed = "/x.jsonc" }, "isolation.seed"},
		{"bad level", func(c *Config) { c.Logging.Level = "chatty" }, "logging.level"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)
			err := cfg.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Fatalf("Validate error = %v, want one mentioning %q", err, test.wantErr)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Paths.RunDir = ""
	cfg.Isolation.Backend = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"paths.run_dir", "isolation.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestEnsurePathsAndHandoffPath(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Paths.RunDir = filepath.Join(root, "run")
	cfg.Paths.StateDir = filepath.Join(root, "state")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	for _, dir := range []string{cfg.Paths.RunDir, cfg.Paths.StateDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
	if got := cfg.HandoffPath(); got != filepath.Join(root, "state", "elevation.json") {
		t.Errorf("HandoffPath = %s", got)
	}
}

func TestServerBinaryPath(t *testing.T) {
	binary := filepath.Join(t.TempDir(), "loopback-server")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.Paths.ServerBinary = binary
	if got, err := cfg.ServerBinaryPath(); err != nil || got != binary {
		t.Errorf("ServerBinaryPath = %s, %v", got, err)
	}

	cfg.Paths.ServerBinary = filepath.Join(filepath.Dir(binary), "missing")
	if _, err := cfg.ServerBinaryPath(); err == nil {
		t.Error("expected error for missing absolute path")
	}

	t.Setenv("PATH", filepath.Dir(binary))
	cfg.Paths.ServerBinary = "loopback-server"
	if got, err := cfg.ServerBinaryPath(); err != nil || got != binary {
		t.Errorf("PATH lookup = %s, %v", got, err)
	}

	cfg.Paths.ServerBinary = ""
	if _, err := cfg.ServerBinaryPath(); err == nil {
		t.Error("expected error for unset server binary")
	}
}
