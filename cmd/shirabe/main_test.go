package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nakatsu/shirabe/internal/cli"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in     string
		want   cli.OutputFormat
		wantOK bool
	}{
		{"text", cli.OutputText, true},
		{"", cli.OutputText, true},
		{"json", cli.OutputJSON, true},
		{"yaml", cli.OutputText, false},
	}
	for _, tt := range tests {
		got, ok := parseOutputFormat(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseOutputFormat(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestLoadConfig_explicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9100
storage:
  database_path: "./data/history.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path {
		t.Errorf("resolved path = %s, want %s", resolved, path)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	want := filepath.Join(dir, "data", "history.db")
	if cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, want)
	}
}
