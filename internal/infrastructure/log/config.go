package log

import (
	"os"
	"strconv"
	"strings"
)

// 日志相关环境变量
const (
	EnvLogLevel     = "KNOWFLOW_LOG_LEVEL"
	EnvLogFormat    = "KNOWFLOW_LOG_FORMAT"
	EnvLogOutput    = "KNOWFLOW_LOG_OUTPUT"
	EnvLogAddSource = "KNOWFLOW_LOG_ADD_SOURCE"
	EnvRunMode      = "KNOWFLOW_ENV"
)

// Config 日志配置
type Config struct {
	// Level 日志级别：debug, info, warn, error
	Level string `json:"level"`

	// Format 日志格式：console, json
	Format string `json:"format"`

	// Output 输出目标：stdout, file:/path/to/log
	Output string `json:"output"`

	// AddSource 是否添加源文件信息（开发环境）
	AddSource bool `json:"add_source"`
}

// NewConfigFromEnv 从环境变量创建配置
func NewConfigFromEnv() *Config {
	cfg := &Config{
		Level:     getEnvWithDefault(EnvLogLevel, "info"),
		Format:    getEnvWithDefault(EnvLogFormat, "console"),
		Output:    getEnvWithDefault(EnvLogOutput, "stdout"),
		AddSource: getEnvBool(EnvLogAddSource, false),
	}

	// 开发环境强制调试配置
	if cfg.isDevelopment() {
		cfg.Level = "debug"
		cfg.Format = "console"
		cfg.AddSource = true
	}

	return cfg
}

// isDevelopment 检查是否为开发环境
func (c *Config) isDevelopment() bool {
	env := getEnvWithDefault(EnvRunMode, "production")
	return strings.ToLower(env) == "development"
}

// getEnvWithDefault 获取环境变量，带默认值
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool 获取布尔型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}
