package app

import (
	"github.com/vk/gridflow/internal/registry"
	"github.com/vk/gridflow/modules/delay"
	"github.com/vk/gridflow/modules/env_vars"
	"github.com/vk/gridflow/modules/print"
)

// coreModules is the definitive list of all modules that are compiled into
// the gridflow binary.
var coreModules = []registry.Module{
	&env_vars.Module{},
	&print.Module{},
	&delay.Module{},
}
