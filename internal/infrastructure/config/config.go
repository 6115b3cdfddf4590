// Package config 提供应用配置
// 默认值内置，支持 YAML 配置文件覆盖
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/knowflow/backend/internal/domain/repository"
)

// Config 应用配置
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	LLM         LLMConfig         `yaml:"llm"`
	Crawler     CrawlerConfig     `yaml:"crawler"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	RemoteIndex RemoteIndexConfig `yaml:"remote_index"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Path 数据库文件路径，留空表示使用数据目录下的默认位置
	Path string `yaml:"path"`
}

// LLMConfig LLM API 配置
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	// TimeoutSeconds 单次请求超时（秒）
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// CrawlerConfig 爬虫默认参数
// 知识库可以在自身的爬取配置中覆盖这些值
type CrawlerConfig struct {
	UserAgent      string `yaml:"user_agent"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxThreads     int    `yaml:"max_threads"`
	// RequestsPerSecond 每秒请求数上限，0 表示不限速
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// PipelineConfig 内容处理流水线配置
type PipelineConfig struct {
	// TokenModels 需要统计 token 的模型列表
	TokenModels []string `yaml:"token_models"`
	// TokenWorkers token 统计并发数
	TokenWorkers int `yaml:"token_workers"`
	// SummaryWorkers 摘要生成并发数
	SummaryWorkers int `yaml:"summary_workers"`
	// QAWorkers 问答生成并发数
	QAWorkers int `yaml:"qa_workers"`

	// ChunkSize 问答分块的 token 窗口大小
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap 相邻窗口的 token 重叠量，必须小于 ChunkSize
	ChunkOverlap int `yaml:"chunk_overlap"`

	// QAChunkEnabled 问答分块生成阶段开关
	QAChunkEnabled bool `yaml:"qa_chunk_enabled"`
	// QAReduceEnabled 问答去重归并阶段开关
	QAReduceEnabled bool `yaml:"qa_reduce_enabled"`
	// QAEvaluateEnabled 问答质量评估阶段开关
	QAEvaluateEnabled bool `yaml:"qa_evaluate_enabled"`

	// QAFromSummaries 问答生成的输入来源：true 用摘要，false 用原始文件
	QAFromSummaries bool `yaml:"qa_from_summaries"`

	// Prompts 全局提示词，知识库可逐项覆盖
	Prompts PromptsConfig `yaml:"prompts"`
}

// PromptsConfig 全局提示词配置
type PromptsConfig struct {
	SummaryPrompt       string `yaml:"summary_prompt"`
	SummarySystemPrompt string `yaml:"summary_system_prompt"`
	QAPrompt            string `yaml:"qa_prompt"`
	QASystemPrompt      string `yaml:"qa_system_prompt"`
	ReducePrompt        string `yaml:"reduce_prompt"`
	EvaluatePrompt      string `yaml:"evaluate_prompt"`
}

// ToDomain 转换为领域层的提示词配置
func (p PromptsConfig) ToDomain() repository.PromptConfig {
	return repository.PromptConfig{
		SummaryPrompt:       p.SummaryPrompt,
		SummarySystemPrompt: p.SummarySystemPrompt,
		QAPrompt:            p.QAPrompt,
		QASystemPrompt:      p.QASystemPrompt,
		ReducePrompt:        p.ReducePrompt,
		EvaluatePrompt:      p.EvaluatePrompt,
	}
}

// RemoteIndexConfig 远端知识库索引服务配置
type RemoteIndexConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SchedulerConfig 自动更新调度器配置
type SchedulerConfig struct {
	// Timezone 触发时刻所属时区（IANA 名称，如 Asia/Shanghai）
	Timezone string `yaml:"timezone"`
	// MaxRetries 单阶段失败后的最大重试次数
	MaxRetries int `yaml:"max_retries"`
	// PollSeconds 阶段任务完成状态的轮询间隔（秒）
	PollSeconds int `yaml:"poll_seconds"`
}

// NewConfig 创建配置（默认值 + 可选的 YAML 覆盖）
// 覆盖文件路径来自 KNOWFLOW_CONFIG 环境变量，未设置时查找数据目录下的 config.yaml
func NewConfig() *Config {
	cfg := defaultConfig()

	path := os.Getenv(EnvConfigFile)
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		// 覆盖失败不阻断启动，继续使用默认配置
		_ = cfg.LoadFile(path)
	}

	return cfg
}

// defaultConfig 内置默认配置
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "",
		},
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 120,
		},
		Crawler: CrawlerConfig{
			UserAgent:         "knowflow-crawler/1.0",
			TimeoutSeconds:    30,
			MaxThreads:        4,
			RequestsPerSecond: 8,
		},
		Pipeline: PipelineConfig{
			TokenModels:       []string{"gpt-4o", "deepseek-chat", "jina-embeddings-v3"},
			TokenWorkers:      4,
			SummaryWorkers:    3,
			QAWorkers:         3,
			ChunkSize:         2000,
			ChunkOverlap:      200,
			QAChunkEnabled:    true,
			QAReduceEnabled:   true,
			QAEvaluateEnabled: true,
			QAFromSummaries:   true,
			Prompts:           defaultPrompts(),
		},
		RemoteIndex: RemoteIndexConfig{
			BaseURL:        "http://localhost:9380",
			TimeoutSeconds: 60,
		},
		Scheduler: SchedulerConfig{
			Timezone:    "Asia/Shanghai",
			MaxRetries:  2,
			PollSeconds: 5,
		},
	}
}

// LoadFile 从 YAML 文件加载配置，覆盖当前值
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// NewDatabaseConfig 创建数据库配置
func NewDatabaseConfig(cfg *Config) *DatabaseConfig {
	return &cfg.Database
}

// NewLLMConfig 创建 LLM 配置
func NewLLMConfig(cfg *Config) *LLMConfig {
	return &cfg.LLM
}

// NewCrawlerConfig 创建爬虫配置
func NewCrawlerConfig(cfg *Config) *CrawlerConfig {
	return &cfg.Crawler
}

// NewPipelineConfig 创建流水线配置
func NewPipelineConfig(cfg *Config) *PipelineConfig {
	return &cfg.Pipeline
}

// NewRemoteIndexConfig 创建远端索引配置
func NewRemoteIndexConfig(cfg *Config) *RemoteIndexConfig {
	return &cfg.RemoteIndex
}

// NewSchedulerConfig 创建调度器配置
func NewSchedulerConfig(cfg *Config) *SchedulerConfig {
	return &cfg.Scheduler
}
