package app

import (
	"github.com/vk/pipegrid/internal/registry"
	"github.com/vk/pipegrid/modules/env_vars"
	"github.com/vk/pipegrid/modules/text"
)

// coreModules is the definitive list of all function modules that are
// compiled into the pipegrid binary.
func coreModules() []registry.Module {
	return []registry.Module{
		&env_vars.Module{},
		&text.Module{},
	}
}
