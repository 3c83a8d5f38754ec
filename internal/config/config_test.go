package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DefaultModel != "1.7B" {
		t.Fatalf("expected default model 1.7B, got %q", cfg.DefaultModel)
	}
	if cfg.Audio.BlockSize != 1024 {
		t.Fatalf("expected default block size 1024, got %d", cfg.Audio.BlockSize)
	}
	if cfg.Backend.Mode != "runner" {
		t.Fatalf("expected default backend mode runner, got %q", cfg.Backend.Mode)
	}
	if cfg.Serve.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default bus server, got %v", cfg.Serve.Bus.Servers)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MIMIC_DATA_DIR", "/tmp/mimic-test")
	t.Setenv("MIMIC_DEFAULT_VOICE", "narrator")
	t.Setenv("MIMIC_DEFAULT_MODEL", "0.6B")
	t.Setenv("MIMIC_OUTPUT_FORMAT", "json")
	t.Setenv("MIMIC_BACKEND_MODE", "remote")
	t.Setenv("MIMIC_BACKEND_ENDPOINT", "http://localhost:8900")
	t.Setenv("MIMIC_AUDIO_BLOCK_SIZE", "2048")
	t.Setenv("MIMIC_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("MIMIC_EVENT_LOG_RETENTION_MODE", "persistent")
	t.Setenv("MIMIC_EVENT_LOG_PATH", "./tmp.db")
	t.Setenv("MIMIC_EVENT_LOG_VACUUM_ON_START", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != "/tmp/mimic-test" {
		t.Fatalf("expected data dir override, got %q", cfg.DataDir)
	}
	if cfg.DefaultVoice != "narrator" {
		t.Fatalf("expected default voice override")
	}
	if cfg.DefaultModel != "0.6B" {
		t.Fatalf("expected default model override")
	}
	if cfg.Output.Format != "json" {
		t.Fatalf("expected output format override")
	}
	if cfg.Backend.Mode != "remote" || cfg.Backend.Endpoint != "http://localhost:8900" {
		t.Fatalf("expected backend override, got %+v", cfg.Backend)
	}
	if cfg.Audio.BlockSize != 2048 {
		t.Fatalf("expected block size 2048, got %d", cfg.Audio.BlockSize)
	}
	if len(cfg.Serve.Bus.Servers) != 2 {
		t.Fatalf("expected 2 bus servers, got %v", cfg.Serve.Bus.Servers)
	}
	if cfg.EventLog.RetentionMode != "persistent" || cfg.EventLog.Path != "./tmp.db" {
		t.Fatalf("expected event log override, got %+v", cfg.EventLog)
	}
	if !cfg.EventLog.VacuumOnStart {
		t.Fatalf("expected vacuum flag override")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("MIMIC_OUTPUT_FORMAT", "xml")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid output format")
	}
}

func TestValidateRunnerRequiresCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "backend:\n  mode: runner\n  command: \"\"\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when runner mode has no command")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nested", "config.yaml")

	cfg := Default()
	cfg.DefaultVoice = "archived"
	cfg.Backend.Mode = "mock"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("save config: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file missing: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if loaded.DefaultVoice != "archived" {
		t.Fatalf("expected saved voice, got %q", loaded.DefaultVoice)
	}
	if loaded.Backend.Mode != "mock" {
		t.Fatalf("expected saved backend mode, got %q", loaded.Backend.Mode)
	}
}
