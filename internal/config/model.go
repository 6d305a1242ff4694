package config

import (
	"github.com/vk/pipegrid/internal/concept"
	"github.com/vk/pipegrid/internal/pipe"
)

// Model is the loaded library: every concept and every pipe definition,
// both read-only once loading returns.
type Model struct {
	Concepts *concept.Registry
	Library  *pipe.Library
	// Files lists the definition files the model was built from, in load
	// order.
	Files []string
}
