package repository

import (
	"github.com/google/wire"

	"github.com/knowflow/backend/internal/infrastructure/watcher"
)

// ProviderSet 知识库管理服务 ProviderSet
var ProviderSet = wire.NewSet(
	NewService,
	wire.Bind(new(DirWatcher), new(*watcher.UploadWatcher)),
)
