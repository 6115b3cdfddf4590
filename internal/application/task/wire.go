package task

import "github.com/google/wire"

// ProviderSet 任务注册表 ProviderSet
var ProviderSet = wire.NewSet(
	NewRegistry,
)
