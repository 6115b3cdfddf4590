package pipeline

import (
	"github.com/google/wire"

	"github.com/knowflow/backend/internal/infrastructure/llm"
	"github.com/knowflow/backend/internal/infrastructure/token"
)

// ProviderSet 内容处理流水线 ProviderSet
var ProviderSet = wire.NewSet(
	NewTokenService,
	NewSummaryService,
	NewQAService,
	wire.Bind(new(ChatClient), new(*llm.Client)),
	wire.Bind(new(TokenCounter), new(*token.Estimator)),
)
