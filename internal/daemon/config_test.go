package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Tracker.Host != "127.0.0.1" {
		t.Errorf("Tracker.Host = %q, want %q", cfg.Tracker.Host, "127.0.0.1")
	}
	if cfg.Tracker.Port != 9090 {
		t.Errorf("Tracker.Port = %d, want %d", cfg.Tracker.Port, 9090)
	}
	if cfg.Tracker.BufferSize != 4096 {
		t.Errorf("Tracker.BufferSize = %d, want %d", cfg.Tracker.BufferSize, 4096)
	}
	if cfg.Peer.ChunkSize != 1024*1024 {
		t.Errorf("Peer.ChunkSize = %d, want 1 MiB", cfg.Peer.ChunkSize)
	}
	if cfg.Peer.Workers != 4 {
		t.Errorf("Peer.Workers = %d, want 4", cfg.Peer.Workers)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CHUNKMESH_HOME", home)

	content := `
[tracker]
host = "10.1.2.3"
port = 9999

[peer]
chunk_size = 65536
`
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Tracker.Host != "10.1.2.3" || cfg.Tracker.Port != 9999 {
		t.Errorf("tracker = %+v, want values from file", cfg.Tracker)
	}
	if cfg.Peer.ChunkSize != 65536 {
		t.Errorf("Peer.ChunkSize = %d, want 65536", cfg.Peer.ChunkSize)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Tracker.BufferSize != 4096 {
		t.Errorf("BufferSize = %d, want default 4096", cfg.Tracker.BufferSize)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("CHUNKMESH_HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() without a file should use defaults, got: %v", err)
	}
	if cfg.Tracker.Port != 9090 {
		t.Errorf("Tracker.Port = %d, want default", cfg.Tracker.Port)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"15s", 15 * time.Second},
		{"2m", 2 * time.Minute},
		{"", 5 * time.Second},       // Fallback
		{"potato", 5 * time.Second}, // Fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseDuration(tt.input, 5*time.Second); got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadOrCreateIdentity(t *testing.T) {
	dir := t.TempDir()

	id, err := LoadOrCreateIdentity(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity() error: %v", err)
	}
	if len(id) != len("peer_")+8 || id[:5] != "peer_" {
		t.Errorf("identity = %q, want peer_ plus 8 hex chars", id)
	}

	// Stable across restarts.
	again, err := LoadOrCreateIdentity(dir)
	if err != nil {
		t.Fatalf("second load error: %v", err)
	}
	if again != id {
		t.Errorf("identity changed across loads: %q then %q", id, again)
	}
}
