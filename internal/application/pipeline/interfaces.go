// Package pipeline 实现内容处理流水线：token 统计、摘要生成与问答生成
package pipeline

import "context"

// ChatClient LLM 对话客户端接口
type ChatClient interface {
	// Chat 发送一次对话请求，返回模型输出文本
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// TokenCounter token 统计接口
type TokenCounter interface {
	// CountTokens 计算文本在指定模型下的 token 数量
	CountTokens(model, text string) (int, error)
}
