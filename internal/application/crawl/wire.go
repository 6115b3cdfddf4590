package crawl

import "github.com/google/wire"

// ProviderSet 爬取引擎 ProviderSet
var ProviderSet = wire.NewSet(
	NewEngine,
)
