//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/google/wire"

	"github.com/knowflow/backend/internal/application"
	"github.com/knowflow/backend/internal/infrastructure"
)

// InitializeApp 初始化应用（wire 生成实际装配代码）
func InitializeApp() (*App, error) {
	wire.Build(
		infrastructure.ProviderSet, // 基础设施层
		application.ProviderSet,    // 应用层
		NewApp,
	)
	return nil, nil
}
