package app

import (
	"github.com/vk/cellgridgo/internal/registry"
	"github.com/vk/cellgridgo/modules/env_vars"
	"github.com/vk/cellgridgo/modules/http_request"
	"github.com/vk/cellgridgo/modules/socketio"
	"github.com/vk/cellgridgo/modules/ticker"
)

// coreSources is the definitive list of source kinds compiled into the
// cellgrid binary.
var coreSources = []registry.Source{
	&ticker.Module{},
	&socketio.Module{},
	&http_request.Module{},
	&env_vars.Module{},
}
