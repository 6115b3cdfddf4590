package scheduler

import (
	"github.com/google/wire"

	appcrawl "github.com/knowflow/backend/internal/application/crawl"
	apppipeline "github.com/knowflow/backend/internal/application/pipeline"
	appsync "github.com/knowflow/backend/internal/application/sync"
)

// NewStages 组装更新序列的各阶段服务
func NewStages(
	crawl *appcrawl.Engine,
	token *apppipeline.TokenService,
	summary *apppipeline.SummaryService,
	qa *apppipeline.QAService,
	sync *appsync.Reconciler,
) Stages {
	return Stages{
		Crawl:   crawl,
		Token:   token,
		Summary: summary,
		QA:      qa,
		Sync:    sync,
	}
}

// ProviderSet 调度器 ProviderSet
var ProviderSet = wire.NewSet(
	NewStages,
	NewSlogErrorSink,
	NewScheduler,
)
