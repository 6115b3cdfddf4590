package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/knowflow/backend/internal/infrastructure/config"
)

// GetDBPath 获取数据库文件路径
// 配置未指定时使用数据目录下的默认位置 ~/.knowflow/knowflow.db
func GetDBPath(cfg *config.DatabaseConfig) string {
	if cfg != nil && cfg.Path != "" {
		return cfg.Path
	}
	return filepath.Join(config.GetDataDir(), "knowflow.db")
}

// OpenDB 打开数据库连接
func OpenDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dbPath := GetDBPath(cfg)

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// 打开数据库连接
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := InitDatabase(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// InitDatabase 初始化表结构
func InitDatabase(db *sql.DB) error {
	// 创建 repositories 表
	createRepositoriesSQL := `
	CREATE TABLE IF NOT EXISTS repositories (
		name TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		seed_urls TEXT NOT NULL,
		max_depth INTEGER NOT NULL,
		max_threads INTEGER NOT NULL,
		timeout_seconds INTEGER NOT NULL,
		user_agent TEXT NOT NULL,
		blocklist TEXT NOT NULL,
		auto_update_enabled INTEGER NOT NULL,
		auto_update_frequency TEXT NOT NULL,
		auto_update_last_run INTEGER,
		partial_sync_enabled INTEGER NOT NULL,
		partial_sync_marker TEXT NOT NULL,
		direct_import INTEGER NOT NULL,
		dataset_id TEXT NOT NULL,
		last_sync_mode TEXT NOT NULL,
		token_counts TEXT NOT NULL,
		file_count INTEGER NOT NULL,
		prompts TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`

	if _, err := db.Exec(createRepositoriesSQL); err != nil {
		return fmt.Errorf("failed to create repositories table: %w", err)
	}

	// 创建 content_hashes 表
	// 哈希账本只增不删：代码中不存在针对此表的 DELETE 语句
	createContentHashesSQL := `
	CREATE TABLE IF NOT EXISTS content_hashes (
		repository TEXT NOT NULL,
		path TEXT NOT NULL,
		hash TEXT NOT NULL,
		last_seen INTEGER NOT NULL,
		PRIMARY KEY (repository, path)
	);`

	if _, err := db.Exec(createContentHashesSQL); err != nil {
		return fmt.Errorf("failed to create content_hashes table: %w", err)
	}

	// 创建索引
	createIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_content_hashes_repository ON content_hashes(repository);`

	if _, err := db.Exec(createIndexSQL); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}
