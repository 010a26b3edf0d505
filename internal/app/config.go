package app

import (
	"errors"
	"fmt"
)

// Commands the CLI accepts.
const (
	CommandDeploy = "deploy"
	CommandDelete = "delete"
	CommandCreate = "create"
)

// Config holds everything an App instance needs to run one command.
type Config struct {
	Command string
	// ItemID is the Solution container id for deploy/delete, or the seed
	// item id for create.
	ItemID string

	ProfilePath string
	JobID       string

	LogFormat string
	LogLevel  string
}

// NewConfig validates the configuration.
func NewConfig(cfg Config) (*Config, error) {
	switch cfg.Command {
	case CommandDeploy, CommandDelete, CommandCreate:
	default:
		return nil, fmt.Errorf("unknown command %q", cfg.Command)
	}
	if cfg.ItemID == "" {
		return nil, errors.New("an item id is required")
	}
	if cfg.ProfilePath == "" {
		return nil, errors.New("a profile path is required")
	}
	return &cfg, nil
}
