package app

import (
	"errors"
	"fmt"

	"github.com/vk/pipegrid/internal/template"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	LibraryPath string // hcl files with concepts and pipes
	RootPipe    string

	InputsPath string   // yaml file with run inputs
	Inputs     []string // name=Concept:value
	OutputName string   // name of the main output of a non-sequence root
	OutputPath string   // where to write the result; empty means the app writer

	LogFormat       string
	LogLevel        string
	LogFile         string
	HealthcheckPort int

	MaxConcurrency int
	DryRun         bool
	TagStyle       string

	EventsURL       string
	EventsNamespace string
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.LibraryPath == "" {
		return nil, errors.New("LibraryPath is a required configuration field and cannot be empty")
	}
	if cfg.RootPipe == "" {
		return nil, errors.New("RootPipe is a required configuration field and cannot be empty")
	}
	if cfg.MaxConcurrency < 0 {
		return nil, fmt.Errorf("MaxConcurrency must not be negative, got %d", cfg.MaxConcurrency)
	}
	if cfg.HealthcheckPort < 0 {
		return nil, fmt.Errorf("HealthcheckPort must not be negative, got %d", cfg.HealthcheckPort)
	}
	if _, err := template.ParseTagStyle(cfg.TagStyle); err != nil {
		return nil, err
	}
	for _, raw := range cfg.Inputs {
		if _, err := parseInputFlag(raw); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
