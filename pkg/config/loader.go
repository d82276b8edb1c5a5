package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file read from the config directory.
const FileName = "lexi.yaml"

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Read lexi.yaml from configDir (a missing file means all defaults)
//  2. Expand {{.VAR}} environment templates
//  3. Parse YAML
//  4. Merge the file over the built-in defaults
//  5. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"state_store", cfg.StateStore.Backend,
		"relay_bus", cfg.Relay.Bus,
		"ai_publisher", cfg.AI.Publisher,
		"organization", cfg.Repositories.Organization)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.configDir = configDir

	var user Config
	err := loadYAML(filepath.Join(configDir, FileName), &user)
	switch {
	case errors.Is(err, ErrConfigNotFound):
		slog.Warn("Configuration file not found, using defaults", "file", FileName)
		return cfg, nil
	case err != nil:
		return nil, NewLoadError(FileName, err)
	}

	sections := []struct {
		name      string
		dst, src  any
		isPresent bool
	}{
		{"server", cfg.Server, user.Server, user.Server != nil},
		{"state_store", cfg.StateStore, user.StateStore, user.StateStore != nil},
		{"relay", cfg.Relay, user.Relay, user.Relay != nil},
		{"ai", cfg.AI, user.AI, user.AI != nil},
		{"repositories", cfg.Repositories, user.Repositories, user.Repositories != nil},
		{"auth", cfg.Auth, user.Auth, user.Auth != nil},
	}
	for _, s := range sections {
		if !s.isPresent {
			continue
		}
		// Non-zero user values override built-in defaults
		if err := mergo.Merge(s.dst, s.src, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge %s config: %w", s.name, err)
		}
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

func loadYAML(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}
