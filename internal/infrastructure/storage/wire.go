package storage

import "github.com/google/wire"

// ProviderSet 存储层 ProviderSet
var ProviderSet = wire.NewSet(
	OpenDB,
	NewRepositoryStore,
	NewContentHashStore,
)
