package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./data/db/documents.db"
watch:
  directories: ["./dev/sample"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "documents.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	wantWatch := filepath.Join(dir, "dev", "sample")
	if cfg.Watch.Directories[0] != wantWatch {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], wantWatch)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Backend.Binary != "gemini" {
		t.Errorf("default backend binary: got %s", cfg.Backend.Binary)
	}
	if cfg.Backend.Model == "" {
		t.Error("default backend model should be set")
	}
	if cfg.Backend.TimeoutSeconds != 300 {
		t.Errorf("default timeout: got %d", cfg.Backend.TimeoutSeconds)
	}
	if cfg.Backend.MaxParallel != 4 {
		t.Errorf("default max_parallel: got %d", cfg.Backend.MaxParallel)
	}
	if len(cfg.Watch.Extensions) != 1 || cfg.Watch.Extensions[0] != ".pdf" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
}

func TestBackendConfig_Timeout(t *testing.T) {
	b := &BackendConfig{TimeoutSeconds: 90}
	if got := b.Timeout(); got != 90*time.Second {
		t.Errorf("Timeout() = %v, want 90s", got)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/docs"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("true_returns_true", func(t *testing.T) {
		v := true
		w := &WatchConfig{Recursive: &v}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
