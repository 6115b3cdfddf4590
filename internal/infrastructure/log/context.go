package log

import (
	"context"
	"log/slog"
)

// 上下文键定义
const (
	// TaskContextID 任务 ID
	TaskContextID = "task_id"

	// RepositoryContextID 知识库名称
	RepositoryContextID = "repository"

	// StageContextID 处理阶段
	StageContextID = "stage"
)

// WithTaskID 在上下文中添加任务 ID
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskContextID, taskID)
}

// WithRepository 在上下文中添加知识库名称
func WithRepository(ctx context.Context, repository string) context.Context {
	return context.WithValue(ctx, RepositoryContextID, repository)
}

// WithStage 在上下文中添加处理阶段
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, StageContextID, stage)
}

// LogCtxFromContext 从上下文中提取日志字段
func LogCtxFromContext(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr

	if taskID := ctx.Value(TaskContextID); taskID != nil {
		attrs = append(attrs, slog.String("task_id", taskID.(string)))
	}
	if repository := ctx.Value(RepositoryContextID); repository != nil {
		attrs = append(attrs, slog.String("repository", repository.(string)))
	}
	if stage := ctx.Value(StageContextID); stage != nil {
		attrs = append(attrs, slog.String("stage", stage.(string)))
	}

	return attrs
}
