package sync

import (
	"github.com/smallbiznis/kassa/internal/sync/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sync.service",
	fx.Provide(service.New),
)
