package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	domainRepo "github.com/knowflow/backend/internal/domain/repository"
)

// 确保 RepositoryStoreImpl 实现了 domainRepo.Store 接口
var _ domainRepo.Store = (*RepositoryStoreImpl)(nil)

// RepositoryStoreImpl 知识库仓库实现
type RepositoryStoreImpl struct {
	db *sql.DB
}

// NewRepositoryStore 创建知识库仓库实例
func NewRepositoryStore(db *sql.DB) domainRepo.Store {
	return &RepositoryStoreImpl{db: db}
}

// Save 保存（插入或覆盖）知识库
func (r *RepositoryStoreImpl) Save(repo *domainRepo.Repository) error {
	seedURLs, err := json.Marshal(repo.Crawl.SeedURLs)
	if err != nil {
		return fmt.Errorf("failed to marshal seed urls: %w", err)
	}
	blocklist, err := json.Marshal(repo.Crawl.Blocklist)
	if err != nil {
		return fmt.Errorf("failed to marshal blocklist: %w", err)
	}
	tokenCounts, err := json.Marshal(repo.TokenCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal token counts: %w", err)
	}

	var prompts sql.NullString
	if repo.Prompts != nil {
		data, err := json.Marshal(repo.Prompts)
		if err != nil {
			return fmt.Errorf("failed to marshal prompts: %w", err)
		}
		prompts = sql.NullString{String: string(data), Valid: true}
	}

	var lastRun sql.NullInt64
	if repo.AutoUpdate.LastRun != nil {
		lastRun = sql.NullInt64{Int64: repo.AutoUpdate.LastRun.Unix(), Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO repositories (
			name, kind, status,
			seed_urls, max_depth, max_threads, timeout_seconds, user_agent, blocklist,
			auto_update_enabled, auto_update_frequency, auto_update_last_run,
			partial_sync_enabled, partial_sync_marker,
			direct_import, dataset_id, last_sync_mode,
			token_counts, file_count, prompts,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Exec(
		query,
		repo.Name,
		string(repo.Kind),
		string(repo.Status),
		string(seedURLs),
		repo.Crawl.MaxDepth,
		repo.Crawl.MaxThreads,
		repo.Crawl.TimeoutSeconds,
		repo.Crawl.UserAgent,
		string(blocklist),
		boolToInt(repo.AutoUpdate.Enabled),
		string(repo.AutoUpdate.Frequency),
		lastRun,
		boolToInt(repo.PartialSync.Enabled),
		repo.PartialSync.FailureMarker,
		boolToInt(repo.DirectImport),
		repo.DatasetID,
		repo.LastSyncMode,
		string(tokenCounts),
		repo.FileCount,
		prompts,
		repo.CreatedAt.Unix(),
		repo.UpdatedAt.Unix(),
	)

	return err
}

// Get 按名称获取知识库
func (r *RepositoryStoreImpl) Get(name string) (*domainRepo.Repository, error) {
	query := selectColumns + ` FROM repositories WHERE name = ?`

	repo, err := scanRepository(r.db.QueryRow(query, name))
	if err == sql.ErrNoRows {
		return nil, domainRepo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return repo, nil
}

// List 列出所有知识库
func (r *RepositoryStoreImpl) List() ([]*domainRepo.Repository, error) {
	query := selectColumns + ` FROM repositories ORDER BY name`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domainRepo.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, repo)
	}

	return results, rows.Err()
}

// Delete 删除知识库记录
// 注意：content_hashes 中的记录不随知识库删除，哈希账本只增不删
func (r *RepositoryStoreImpl) Delete(name string) error {
	_, err := r.db.Exec(`DELETE FROM repositories WHERE name = ?`, name)
	return err
}

const selectColumns = `
	SELECT name, kind, status,
	       seed_urls, max_depth, max_threads, timeout_seconds, user_agent, blocklist,
	       auto_update_enabled, auto_update_frequency, auto_update_last_run,
	       partial_sync_enabled, partial_sync_marker,
	       direct_import, dataset_id, last_sync_mode,
	       token_counts, file_count, prompts,
	       created_at, updated_at`

// rowScanner sql.Row 和 sql.Rows 共同的 Scan 接口
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRepository 从查询结果扫描出知识库实体
func scanRepository(row rowScanner) (*domainRepo.Repository, error) {
	var (
		repo              domainRepo.Repository
		kind, status      string
		frequency         string
		seedURLs          string
		blocklist         string
		tokenCounts       string
		prompts           sql.NullString
		autoEnabled       int
		partialEnabled    int
		directImport      int
		lastRun           sql.NullInt64
		createdAt         int64
		updatedAt         int64
	)

	err := row.Scan(
		&repo.Name,
		&kind,
		&status,
		&seedURLs,
		&repo.Crawl.MaxDepth,
		&repo.Crawl.MaxThreads,
		&repo.Crawl.TimeoutSeconds,
		&repo.Crawl.UserAgent,
		&blocklist,
		&autoEnabled,
		&frequency,
		&lastRun,
		&partialEnabled,
		&repo.PartialSync.FailureMarker,
		&directImport,
		&repo.DatasetID,
		&repo.LastSyncMode,
		&tokenCounts,
		&repo.FileCount,
		&prompts,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	repo.Kind = domainRepo.SourceKind(kind)
	repo.Status = domainRepo.Status(status)
	repo.AutoUpdate.Enabled = autoEnabled != 0
	repo.AutoUpdate.Frequency = domainRepo.Frequency(frequency)
	repo.PartialSync.Enabled = partialEnabled != 0
	repo.DirectImport = directImport != 0
	repo.CreatedAt = time.Unix(createdAt, 0)
	repo.UpdatedAt = time.Unix(updatedAt, 0)

	if lastRun.Valid {
		t := time.Unix(lastRun.Int64, 0)
		repo.AutoUpdate.LastRun = &t
	}

	if err := json.Unmarshal([]byte(seedURLs), &repo.Crawl.SeedURLs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal seed urls: %w", err)
	}
	if err := json.Unmarshal([]byte(blocklist), &repo.Crawl.Blocklist); err != nil {
		return nil, fmt.Errorf("failed to unmarshal blocklist: %w", err)
	}
	if err := json.Unmarshal([]byte(tokenCounts), &repo.TokenCounts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token counts: %w", err)
	}
	if prompts.Valid {
		var p domainRepo.PromptConfig
		if err := json.Unmarshal([]byte(prompts.String), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
		}
		repo.Prompts = &p
	}

	return &repo, nil
}

// boolToInt sqlite 布尔值存储为整型
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
