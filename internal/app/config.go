package app

import (
	"errors"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// NotebookPath is a .hcl file or a directory of .hcl files.
	NotebookPath string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	// SettleTimeout bounds how long Run waits for the notebook to go
	// quiescent. Zero waits indefinitely, which only makes sense for
	// notebooks without live cells.
	SettleTimeout time.Duration
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.NotebookPath == "" {
		return nil, errors.New("NotebookPath is a required configuration field and cannot be empty")
	}

	return &cfg, nil
}
