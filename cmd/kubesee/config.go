package main

import (
	"fmt"
	"os"

	"github.com/aluminyoom/kubesee/pkg/exporter"
	"github.com/goccy/go-yaml"
)

// loadConfig reads the YAML config file at path, applies environment
// expansion to the raw text, then unmarshals and validates it.
func loadConfig(path string) (*exporter.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	expanded := expandEnv(string(raw))

	var cfg exporter.Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	for i := range cfg.Receivers {
		if err := cfg.Receivers[i].Validate(); err != nil {
			return nil, fmt.Errorf("validating receivers: %w", err)
		}
	}

	return &cfg, nil
}
