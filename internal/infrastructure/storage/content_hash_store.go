package storage

import (
	"database/sql"
	"time"

	"github.com/knowflow/backend/internal/domain/pipeline"
)

// 确保 ContentHashStoreImpl 实现了 pipeline.HashStore 接口
var _ pipeline.HashStore = (*ContentHashStoreImpl)(nil)

// ContentHashStoreImpl 内容哈希账本实现
// 只有插入和覆盖，不提供任何删除路径
type ContentHashStoreImpl struct {
	db *sql.DB
}

// NewContentHashStore 创建内容哈希账本实例
func NewContentHashStore(db *sql.DB) pipeline.HashStore {
	return &ContentHashStoreImpl{db: db}
}

// ShouldProcess 判断文件是否需要处理
// 未记录或哈希变化时返回 true
func (s *ContentHashStoreImpl) ShouldProcess(repository, path, hash string) (bool, error) {
	query := `SELECT hash FROM content_hashes WHERE repository = ? AND path = ?`

	var stored string
	err := s.db.QueryRow(query, repository, path).Scan(&stored)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	return stored != hash, nil
}

// Record 记录（插入或覆盖）文件哈希
func (s *ContentHashStoreImpl) Record(repository, path, hash string) error {
	query := `
		INSERT OR REPLACE INTO content_hashes (repository, path, hash, last_seen)
		VALUES (?, ?, ?, ?)`

	_, err := s.db.Exec(query, repository, path, hash, time.Now().Unix())
	return err
}

// Known 返回某知识库已记录的全部 path -> hash
func (s *ContentHashStoreImpl) Known(repository string) (map[string]string, error) {
	query := `SELECT path, hash FROM content_hashes WHERE repository = ?`

	rows, err := s.db.Query(query, repository)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		result[path] = hash
	}

	return result, rows.Err()
}
