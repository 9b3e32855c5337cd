// Package daemon manages the peer supervisor lifecycle and
// configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all peer and tracker configuration.
type Config struct {
	Tracker   TrackerConfig   `toml:"tracker"`
	Peer      PeerConfig      `toml:"peer"`
	API       APIConfig       `toml:"api"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// TrackerConfig locates the tracker and sizes its receive buffer.
type TrackerConfig struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	BufferSize int    `toml:"buffer_size"`
}

// Addr returns the tracker's host:port.
func (c TrackerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PeerConfig controls transfer behavior.
type PeerConfig struct {
	ChunkSize          int    `toml:"chunk_size"`
	Workers            int    `toml:"workers"`
	ChunkTimeout       string `toml:"chunk_timeout"`
	TrackerTimeout     string `toml:"tracker_timeout"`
	AcceptTimeout      string `toml:"accept_timeout"`
	ReregisterInterval string `toml:"reregister_interval"`
}

// APIConfig controls the HTTP observation/control server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the API server's host:port.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TelemetryConfig controls observability.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Tracker: TrackerConfig{
			Host:       "127.0.0.1",
			Port:       9090,
			BufferSize: 4096,
		},
		Peer: PeerConfig{
			ChunkSize:          1024 * 1024, // 1 MiB
			Workers:            4,
			ChunkTimeout:       "15s",
			TrackerTimeout:     "10s",
			AcceptTimeout:      "1s",
			ReregisterInterval: "30s",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8750,
		},
		Telemetry: TelemetryConfig{
			Prometheus: false, // Opt-in: expose /metrics
		},
	}
}

// LoadConfig reads config from $CHUNKMESH_HOME/config.toml, falling
// back to defaults when no file exists.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(Home(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet — use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to $CHUNKMESH_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(Home(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Home returns the chunkmesh data directory.
func Home() string {
	if env := os.Getenv("CHUNKMESH_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chunkmesh")
}

// parseDuration parses a duration string, returning a fallback on
// error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
