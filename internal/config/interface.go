package config

import (
	"context"
)

// Loader is the interface for a format-specific library loader.
type Loader interface {
	// Load reads every definition file under the given paths and returns the
	// frozen concepts and pipes they declare.
	Load(ctx context.Context, paths ...string) (*Model, error)
}
