package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// PipelinePath points at a single pipeline file or a directory of them.
	PipelinePath string
	// Format selects the definition format: "hcl" or "yaml".
	Format string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	Concurrency     int
}

// NewConfig validates a Config and returns it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	if cfg.Format == "" {
		cfg.Format = "hcl"
	}
	if cfg.Format != "hcl" && cfg.Format != "yaml" {
		return nil, errors.New("Format must be 'hcl' or 'yaml'")
	}
	return &cfg, nil
}
