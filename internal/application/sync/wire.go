package sync

import (
	"github.com/google/wire"

	"github.com/knowflow/backend/internal/infrastructure/ragindex"
)

// ProviderSet 对账器 ProviderSet
var ProviderSet = wire.NewSet(
	NewReconciler,
	wire.Bind(new(IndexClient), new(*ragindex.Client)),
)
