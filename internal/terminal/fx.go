package terminal

import (
	"github.com/smallbiznis/kassa/internal/terminal/repository"
	"github.com/smallbiznis/kassa/internal/terminal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("terminal.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
