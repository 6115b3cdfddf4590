// Package sync 实现本地产物与远端知识库索引的对账
package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"log/slog"

	apptask "github.com/knowflow/backend/internal/application/task"
	domainRepo "github.com/knowflow/backend/internal/domain/repository"
	domainSync "github.com/knowflow/backend/internal/domain/sync"
	domainTask "github.com/knowflow/backend/internal/domain/task"
	"github.com/knowflow/backend/internal/infrastructure/config"
	"github.com/knowflow/backend/internal/infrastructure/log"
	"github.com/knowflow/backend/internal/infrastructure/ragindex"
)

// IndexClient 远端索引服务的操作集合
type IndexClient interface {
	FindDataset(ctx context.Context, name string) (*ragindex.Dataset, error)
	CreateDataset(ctx context.Context, name string) (*ragindex.Dataset, error)
	ListDocuments(ctx context.Context, datasetID string) ([]domainSync.Document, error)
	UploadDocument(ctx context.Context, datasetID, name string, content []byte, hash string) (*domainSync.Document, error)
	DeleteDocuments(ctx context.Context, datasetID string, ids []string) error
	ParseDocuments(ctx context.Context, datasetID string, ids []string) error
}

var _ IndexClient = (*ragindex.Client)(nil)

// localDocument 本地应同步的文档
type localDocument struct {
	name string
	path string
}

// Reconciler 对账器
// 以文档名为主键、内容哈希为变更依据，将本地产物推平到远端数据集
type Reconciler struct {
	registry  *apptask.Registry
	repoStore domainRepo.Store
	index     IndexClient
	logger    *slog.Logger
}

// NewReconciler 创建对账器
func NewReconciler(registry *apptask.Registry, repoStore domainRepo.Store, index IndexClient) *Reconciler {
	return &Reconciler{
		registry:  registry,
		repoStore: repoStore,
		index:     index,
		logger:    log.NewModuleLogger("sync", "reconciler"),
	}
}

// CheckSync 检查某知识库与远端的同步状态，不做任何修改
func (r *Reconciler) CheckSync(ctx context.Context, repository string) (*domainSync.Snapshot, error) {
	repo, err := r.repoStore.Get(repository)
	if err != nil {
		return nil, err
	}

	snapshot := &domainSync.Snapshot{
		Repository: repository,
		CheckedAt:  time.Now(),
	}

	locals, err := r.localManifest(repo)
	if err != nil {
		return nil, err
	}
	snapshot.LocalCount = len(locals)

	datasetID := repo.DatasetID
	if datasetID == "" {
		dataset, err := r.index.FindDataset(ctx, repository)
		if err != nil {
			snapshot.State = domainSync.StateConnectionFailed
			snapshot.Detail = err.Error()
			return snapshot, nil
		}
		if dataset == nil {
			snapshot.State = domainSync.StateIndexMissing
			return snapshot, nil
		}
		datasetID = dataset.ID
	}

	remote, err := r.index.ListDocuments(ctx, datasetID)
	if err != nil {
		snapshot.State = domainSync.StateConnectionFailed
		snapshot.Detail = err.Error()
		return snapshot, nil
	}
	snapshot.RemoteCount = len(remote)

	if len(remote) != len(locals) {
		snapshot.State = domainSync.StateCountMismatch
		snapshot.Detail = fmt.Sprintf("local=%d remote=%d", len(locals), len(remote))
		return snapshot, nil
	}

	snapshot.State = domainSync.StateSynced
	return snapshot, nil
}

// Start 启动一次对账任务，立即返回任务快照
func (r *Reconciler) Start(repository string) (*domainTask.Task, error) {
	repo, err := r.repoStore.Get(repository)
	if err != nil {
		return nil, err
	}

	t, ctx, err := r.registry.Begin(domainTask.KindSync, repository)
	if err != nil {
		return nil, err
	}

	go r.run(ctx, t.ID, repo)

	return t, nil
}

// run 执行对账
func (r *Reconciler) run(ctx context.Context, taskID string, repo *domainRepo.Repository) {
	r.registry.MarkRunning(taskID)

	result, err := r.Reconcile(ctx, taskID, repo)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.registry.Fail(taskID, err)
		return
	}

	r.logger.Info("Reconcile completed",
		"repository", repo.Name,
		"uploaded", result.Uploaded,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"removed", result.Removed,
		"mode_switched", result.ModeSwitched,
	)

	r.registry.Complete(taskID)
}

// Reconcile 将本地产物对账到远端数据集
// 同步模式切换时先清空远端再全量重传
func (r *Reconciler) Reconcile(ctx context.Context, taskID string, repo *domainRepo.Repository) (*domainSync.Result, error) {
	locals, err := r.localManifest(repo)
	if err != nil {
		return nil, err
	}

	dataset, err := r.index.FindDataset(ctx, repo.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to find remote dataset: %w", err)
	}
	if dataset == nil {
		dataset, err = r.index.CreateDataset(ctx, repo.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create remote dataset: %w", err)
		}
	}

	result := &domainSync.Result{}
	mode := repo.SyncMode()

	// 模式切换：远端存量产物形态已不匹配，整体作废
	if repo.LastSyncMode != "" && repo.LastSyncMode != mode {
		if err := r.index.DeleteDocuments(ctx, dataset.ID, nil); err != nil {
			return nil, fmt.Errorf("failed to purge remote documents: %w", err)
		}
		result.ModeSwitched = true
		r.logger.Info("Sync mode switched, remote documents purged",
			"repository", repo.Name,
			"previous", repo.LastSyncMode,
			"current", mode,
		)
	}

	remote, err := r.index.ListDocuments(ctx, dataset.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote documents: %w", err)
	}

	remoteByName := make(map[string]domainSync.Document, len(remote))
	for _, doc := range remote {
		remoteByName[doc.Name] = doc
	}

	r.registry.UpdateProgress(taskID, 0, len(locals))

	var parseIDs []string
	localNames := make(map[string]bool, len(locals))

	for i, local := range locals {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		localNames[local.name] = true

		content, err := os.ReadFile(local.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read local document %s: %w", local.name, err)
		}
		hash := contentHash(content)

		existing, ok := remoteByName[local.name]
		switch {
		case ok && existing.Hash == hash:
			result.Skipped++
			r.registry.AppendResult(taskID, domainTask.ItemResult{Item: local.name, Outcome: "skipped"})

		case ok:
			// 内容变化：删除旧文档后重传
			if err := r.index.DeleteDocuments(ctx, dataset.ID, []string{existing.ID}); err != nil {
				return nil, fmt.Errorf("failed to delete outdated document %s: %w", local.name, err)
			}
			uploaded, err := r.index.UploadDocument(ctx, dataset.ID, local.name, content, hash)
			if err != nil {
				return nil, fmt.Errorf("failed to reupload document %s: %w", local.name, err)
			}
			parseIDs = append(parseIDs, uploaded.ID)
			result.Updated++
			r.registry.AppendResult(taskID, domainTask.ItemResult{Item: local.name, Outcome: "updated"})

		default:
			uploaded, err := r.index.UploadDocument(ctx, dataset.ID, local.name, content, hash)
			if err != nil {
				return nil, fmt.Errorf("failed to upload document %s: %w", local.name, err)
			}
			parseIDs = append(parseIDs, uploaded.ID)
			result.Uploaded++
			r.registry.AppendResult(taskID, domainTask.ItemResult{Item: local.name, Outcome: "uploaded"})
		}

		r.registry.UpdateProgress(taskID, i+1, len(locals))
	}

	// 远端有而本地没有的文档删除
	var removeIDs []string
	for name, doc := range remoteByName {
		if !localNames[name] {
			removeIDs = append(removeIDs, doc.ID)
			result.Removed++
			r.registry.AppendResult(taskID, domainTask.ItemResult{Item: name, Outcome: "removed"})
		}
	}
	if len(removeIDs) > 0 {
		if err := r.index.DeleteDocuments(ctx, dataset.ID, removeIDs); err != nil {
			return nil, fmt.Errorf("failed to remove stale documents: %w", err)
		}
	}

	if err := r.index.ParseDocuments(ctx, dataset.ID, parseIDs); err != nil {
		return nil, fmt.Errorf("failed to trigger parsing: %w", err)
	}

	// 成功后刷新数据集绑定与同步模式标记
	current, err := r.repoStore.Get(repo.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to reload repository: %w", err)
	}
	current.DatasetID = dataset.ID
	current.LastSyncMode = mode
	current.UpdatedAt = time.Now()
	if err := r.repoStore.Save(current); err != nil {
		return nil, fmt.Errorf("failed to save repository: %w", err)
	}

	return result, nil
}

// localManifest 收集本地应同步的文档清单
// 直接导入模式同步原始文件，处理导入模式同步摘要与问答产物
func (r *Reconciler) localManifest(repo *domainRepo.Repository) ([]localDocument, error) {
	var docs []localDocument

	if repo.DirectImport {
		entries, err := listFiles(config.CrawledDataDir(repo.Name))
		if err != nil {
			return nil, err
		}
		for _, name := range entries {
			docs = append(docs, localDocument{
				name: name,
				path: filepath.Join(config.CrawledDataDir(repo.Name), name),
			})
		}
		return docs, nil
	}

	summaryDir := config.SummaryOutputDir(repo.Name)
	summaries, err := listFiles(summaryDir)
	if err != nil {
		return nil, err
	}
	for _, name := range summaries {
		docs = append(docs, localDocument{name: name, path: filepath.Join(summaryDir, name)})
	}

	// 问答产物按来源分命名空间存放，两个来源都纳入清单
	for _, source := range []string{"summaries", "raw"} {
		qaDir := config.QAOutputDir(repo.Name, source)
		files, err := listFiles(qaDir)
		if err != nil {
			return nil, err
		}
		for _, name := range files {
			docs = append(docs, localDocument{name: name, path: filepath.Join(qaDir, name)})
		}
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].name < docs[j].name })
	return docs, nil
}

// contentHash 内容的 sha256 十六进制摘要
func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// listFiles 列出目录下的普通文件名，目录不存在视为空
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, entry.Name())
	}
	return files, nil
}
