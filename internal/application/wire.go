package application

import (
	"github.com/google/wire"

	"github.com/knowflow/backend/internal/application/crawl"
	"github.com/knowflow/backend/internal/application/pipeline"
	"github.com/knowflow/backend/internal/application/repository"
	"github.com/knowflow/backend/internal/application/scheduler"
	"github.com/knowflow/backend/internal/application/sync"
	"github.com/knowflow/backend/internal/application/task"
)

// ProviderSet Application 层总 ProviderSet
var ProviderSet = wire.NewSet(
	task.ProviderSet,
	crawl.ProviderSet,
	pipeline.ProviderSet,
	sync.ProviderSet,
	repository.ProviderSet,
	scheduler.ProviderSet,
)
