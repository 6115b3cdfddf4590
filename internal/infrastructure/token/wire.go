package token

import "github.com/google/wire"

// ProviderSet token 统计 ProviderSet
var ProviderSet = wire.NewSet(
	NewEstimator,
)
