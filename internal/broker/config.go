package broker

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the broker's runtime configuration. It loads from
// a YAML file the way destiny-lucas's internal/hub/config.go loads its
// Config, layered with env var overrides matching the
// os.Getenv-with-fallback idiom in deehdev-teste/server_unified/main.go —
// generalized here into a proper struct instead of package globals.
type Config struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"dataDir"`
	// RedisAddr backs the host-bridge adapter; empty leaves that adapter
	// unbound, and the "other" platform slot keeps the in-memory adapter.
	RedisAddr string `yaml:"redisAddr"`
}

func DefaultConfig() Config {
	return Config{
		Port:      8081,
		DataDir:   "data",
		RedisAddr: "",
	}
}

// LoadConfig reads a YAML config file if present, then applies env var
// overrides. A missing file is not an error: the broker falls back to
// DefaultConfig, mirroring the tolerant env-or-default pattern
// bringyour-connect's own cmd/ binaries use throughout.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("broker: read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("broker: parse config: %w", err)
			}
		}
	}
	if v := os.Getenv("BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("BROKER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("BROKER_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	return cfg, nil
}
