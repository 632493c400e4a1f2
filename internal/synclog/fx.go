package synclog

import (
	"github.com/smallbiznis/kassa/internal/synclog/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("synclog.repository",
	fx.Provide(repository.Provide),
)
