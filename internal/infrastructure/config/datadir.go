package config

import (
	"os"
	"path/filepath"
	"sync"
)

const (
	// EnvDataDir 数据目录环境变量名
	EnvDataDir = "KNOWFLOW_DATA_DIR"
	// EnvConfigFile 配置文件路径环境变量名
	EnvConfigFile = "KNOWFLOW_CONFIG"
	// DefaultDataDirName 默认数据目录名
	DefaultDataDirName = ".knowflow"
)

var (
	dataDirOnce sync.Once
	dataDirPath string
)

// GetDataDir 获取数据根目录
// 优先读取 KNOWFLOW_DATA_DIR 环境变量，默认 ~/.knowflow/
// 此函数是所有数据路径的唯一入口，禁止直接拼接 homeDir + ".knowflow"
func GetDataDir() string {
	dataDirOnce.Do(func() {
		if dir := os.Getenv(EnvDataDir); dir != "" {
			dataDirPath = dir
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				// 回退到当前目录
				dataDirPath = DefaultDataDirName
				return
			}
			dataDirPath = filepath.Join(homeDir, DefaultDataDirName)
		}
	})
	return dataDirPath
}

// DefaultConfigPath 默认配置文件路径
func DefaultConfigPath() string {
	return filepath.Join(GetDataDir(), "config.yaml")
}

// CrawledDataDir 某知识库的爬取/上传数据目录
func CrawledDataDir(repository string) string {
	return filepath.Join(GetDataDir(), "crawled_data", repository)
}

// SummaryOutputDir 某知识库的摘要产物目录
func SummaryOutputDir(repository string) string {
	return filepath.Join(GetDataDir(), "summarizer_output", repository)
}

// QAOutputDir 某知识库的问答产物目录
// mode 对应同步模式，不同模式的产物放在独立子目录下
func QAOutputDir(repository, mode string) string {
	return filepath.Join(GetDataDir(), "qa_output", repository, mode)
}

// TokenCountDir 某知识库的 token 统计目录
func TokenCountDir(repository string) string {
	return filepath.Join(GetDataDir(), "token_count", repository)
}

// ResetDataDir 重置数据目录缓存（仅用于测试）
func ResetDataDir() {
	dataDirOnce = sync.Once{}
	dataDirPath = ""
}
