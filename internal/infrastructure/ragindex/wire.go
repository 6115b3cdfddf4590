package ragindex

import "github.com/google/wire"

// ProviderSet 远端索引客户端 ProviderSet
var ProviderSet = wire.NewSet(
	NewClient,
)
