// Package config loads optional JSON overrides for clauderond's flag
// defaults, so a deployment can commit a config file instead of wiring
// flags through whatever process supervisor starts the daemon.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds clauderond's daemon-wide settings. Every field has a
// stdlib-`flag`-defined equivalent; values here only take effect when the
// corresponding flag is left at its default.
type Config struct {
	DataDir        string `json:"dataDir"`
	HTTPAddr       string `json:"httpAddr"`
	ContainerImage string `json:"containerImage"`
}

// Parse reads a JSON config file and returns the parsed Config. The file
// path is taken from the CLAUDERON_CONFIG env var, defaulting to
// "clauderon.json". A missing file is not an error: Parse returns a zero
// Config so callers fall back entirely to flag defaults.
func Parse() (*Config, error) {
	path := os.Getenv("CLAUDERON_CONFIG")
	if path == "" {
		path = "clauderon.json"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
