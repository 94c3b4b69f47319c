package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the server configuration. Values come from an optional YAML
// file with environment variable overrides on top.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Room   RoomConfig   `yaml:"room"`
	NATS   NATSConfig   `yaml:"nats"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type RoomConfig struct {
	// GracePeriodSec is how long a dropped participant may stay absent
	// before being marked inactive.
	GracePeriodSec int `yaml:"grace_period_sec"`
}

type NATSConfig struct {
	// URL enables the room event mirror when non-empty.
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "3001"},
		Room:   RoomConfig{GracePeriodSec: 10},
		NATS:   NATSConfig{SubjectPrefix: "room.events"},
	}
}

// Load reads the YAML file at path (when non-empty) over the defaults and
// then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Room.GracePeriodSec = getEnvAsInt("GRACE_PERIOD_SEC", cfg.Room.GracePeriodSec)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
