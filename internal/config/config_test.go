package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_EnvOverrides(t *testing.T) {
	t.Setenv("HOWLSYNC_ADDR", "0.0.0.0:9000")
	t.Setenv("HOWLSYNC_FETCH_TIMEOUT", "30s")
	t.Setenv("HOWLSYNC_PRETTY", "true")

	cfg := Default()
	if cfg.Addr != "0.0.0.0:9000" {
		t.Fatalf("Addr: got %q", cfg.Addr)
	}
	if cfg.FetchTimeout != 30*time.Second {
		t.Fatalf("FetchTimeout: got %v", cfg.FetchTimeout)
	}
	if !cfg.Pretty {
		t.Fatalf("Pretty: want true")
	}
	if cfg.DBPath != "howlsync.db" {
		t.Fatalf("DBPath: got %q", cfg.DBPath)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("HOWLSYNC_ADDR", "")
	t.Setenv("HOWLSYNC_VIDEO_API", "")
	path := filepath.Join(t.TempDir(), "howlsync.yaml")
	data := []byte("addr: 127.0.0.1:5000\nlog_level: debug\nfetch_timeout: 45s\nmax_concurrent_fetches: 0\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:5000" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.FetchTimeout != 45*time.Second {
		t.Fatalf("FetchTimeout: got %v", cfg.FetchTimeout)
	}
	if cfg.MaxConcurrentFetches != 4 {
		t.Fatalf("MaxConcurrentFetches: want default 4, got %d", cfg.MaxConcurrentFetches)
	}
	if cfg.VideoAPI != "https://faptap.net/api" {
		t.Fatalf("VideoAPI: want default, got %q", cfg.VideoAPI)
	}
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("ShutdownTimeout: got %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("addr: [unterminated"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
