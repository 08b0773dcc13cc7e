// Package config resolves service configuration from, in ascending
// precedence: Settings.toml at the service root, then APP_-prefixed
// environment variables, with a development dotfile loaded first to seed
// the environment for local runs that have no real env vars set.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds the three keys the service reads at startup.
type Config struct {
	RedisURL     string `toml:"redis_url"`
	Port         int    `toml:"port"`
	BaseCodePath string `toml:"base_code_path"`
}

// Error reports a startup-time configuration failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("config: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

const settingsFile = "Settings.toml"

// Load resolves configuration for the given service root directory.
// godotenv.Load never overrides a variable already present in the
// process environment, so the dotfile only fills gaps left by the real
// environment. The APP_ values it sets are then read like real ones, so
// a dotfile value overrides Settings.toml and loses to the real
// environment.
func Load(root string) (*Config, error) {
	envFile := root + string(os.PathSeparator) + ".env"
	if err := godotenv.Load(envFile); err != nil {
		_ = godotenv.Load() // fall back to a .env in the working directory, if any
	}

	cfg := &Config{
		Port: 8080,
	}

	settingsPath := root + string(os.PathSeparator) + settingsFile
	if data, err := os.ReadFile(settingsPath); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, &Error{Op: "parse " + settingsFile, Err: err}
		}
	} else if !os.IsNotExist(err) {
		return nil, &Error{Op: "read " + settingsFile, Err: err}
	}

	if v := os.Getenv("APP_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("APP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, &Error{Op: "parse APP_PORT", Err: err}
		}
		cfg.Port = p
	}
	if v := os.Getenv("APP_BASE_CODE_PATH"); v != "" {
		cfg.BaseCodePath = v
	}

	if cfg.BaseCodePath == "" {
		return nil, &Error{Op: "validate", Err: fmt.Errorf("base_code_path is required")}
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, &Error{Op: "validate", Err: fmt.Errorf("port %d out of range", cfg.Port)}
	}

	return cfg, nil
}
