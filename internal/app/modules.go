package app

import (
	"github.com/vk/solkit/internal/registry"
	"github.com/vk/solkit/modules/generic"
	"github.com/vk/solkit/modules/group"
	"github.com/vk/solkit/modules/webmap"
)

// coreModules is the definitive list of adapter modules compiled into
// the solkit binary.
var coreModules = []registry.Module{
	&generic.Module{},
	&group.Module{},
	&webmap.Module{},
}
