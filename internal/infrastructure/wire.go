package infrastructure

import (
	"github.com/google/wire"

	"github.com/knowflow/backend/internal/infrastructure/config"
	"github.com/knowflow/backend/internal/infrastructure/llm"
	"github.com/knowflow/backend/internal/infrastructure/ragindex"
	"github.com/knowflow/backend/internal/infrastructure/storage"
	"github.com/knowflow/backend/internal/infrastructure/token"
	"github.com/knowflow/backend/internal/infrastructure/watcher"
)

// ProviderSet Infrastructure 层总 ProviderSet
var ProviderSet = wire.NewSet(
	config.ProviderSet,
	storage.ProviderSet,
	llm.ProviderSet,
	token.ProviderSet,
	ragindex.ProviderSet,
	watcher.ProviderSet,
)
