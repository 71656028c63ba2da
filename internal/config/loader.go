package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load reads the JSON configuration file at path, the way
// neoAgent/internal/config/loader.go layers a dedicated viper instance
// per load rather than relying on viper's package-level singleton — this
// keeps repeated loads (e.g. in tests) independent of each other.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config: no path given (pass -c)")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.ExpandHostRanges(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
