// Package ragindex 提供远端知识库索引服务的 REST 客户端
// 远端以数据集（dataset）组织文档，每个知识库绑定一个数据集
package ragindex

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/go-resty/resty/v2"

	domainSync "github.com/knowflow/backend/internal/domain/sync"
	"github.com/knowflow/backend/internal/infrastructure/config"
	"github.com/knowflow/backend/internal/infrastructure/log"
)

// APIError 远端索引服务返回的业务错误
type APIError struct {
	// StatusCode HTTP 状态码
	StatusCode int
	// Code 远端业务错误码
	Code int
	// Message 错误描述
	Message string
}

// Error 实现 error 接口
func (e *APIError) Error() string {
	return fmt.Sprintf("remote index api error: status=%d code=%d message=%s", e.StatusCode, e.Code, e.Message)
}

// Dataset 远端数据集
type Dataset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// apiResponse 远端 API 统一响应包装
type apiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client 远端索引服务客户端
type Client struct {
	client *resty.Client
	logger *slog.Logger
}

// NewClient 创建远端索引客户端
// 传输层错误自动重试一次
func NewClient(cfg *config.RemoteIndexConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(1)

	return &Client{
		client: client,
		logger: log.NewModuleLogger("ragindex", "client"),
	}
}

// FindDataset 按名称查找数据集，不存在时返回 nil, nil
func (c *Client) FindDataset(ctx context.Context, name string) (*Dataset, error) {
	var result struct {
		apiResponse
		Data []Dataset `json:"data"`
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("name", name).
		SetResult(&result).
		SetError(&result).
		Get("/api/v1/datasets")
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	if err := c.checkResponse(resp, &result.apiResponse); err != nil {
		return nil, err
	}

	for i := range result.Data {
		if result.Data[i].Name == name {
			return &result.Data[i], nil
		}
	}
	return nil, nil
}

// CreateDataset 创建数据集
func (c *Client) CreateDataset(ctx context.Context, name string) (*Dataset, error) {
	var result struct {
		apiResponse
		Data Dataset `json:"data"`
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"name": name}).
		SetResult(&result).
		SetError(&result).
		Post("/api/v1/datasets")
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset: %w", err)
	}
	if err := c.checkResponse(resp, &result.apiResponse); err != nil {
		return nil, err
	}

	c.logger.Info("Created remote dataset",
		"name", name,
		"dataset_id", result.Data.ID,
	)

	return &result.Data, nil
}

// remoteDocument 远端文档的原始结构
type remoteDocument struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Size       int64             `json:"size"`
	MetaFields map[string]string `json:"meta_fields"`
}

// ListDocuments 列出数据集的全部文档（自动翻页）
func (c *Client) ListDocuments(ctx context.Context, datasetID string) ([]domainSync.Document, error) {
	const pageSize = 100

	var docs []domainSync.Document
	for page := 1; ; page++ {
		var result struct {
			apiResponse
			Data struct {
				Docs  []remoteDocument `json:"docs"`
				Total int              `json:"total"`
			} `json:"data"`
		}

		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"page":      fmt.Sprintf("%d", page),
				"page_size": fmt.Sprintf("%d", pageSize),
			}).
			SetResult(&result).
			SetError(&result).
			Get(fmt.Sprintf("/api/v1/datasets/%s/documents", datasetID))
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		if err := c.checkResponse(resp, &result.apiResponse); err != nil {
			return nil, err
		}

		for _, d := range result.Data.Docs {
			docs = append(docs, domainSync.Document{
				ID:   d.ID,
				Name: d.Name,
				Hash: d.MetaFields["hash"],
				Size: d.Size,
			})
		}

		if len(result.Data.Docs) < pageSize {
			break
		}
	}

	return docs, nil
}

// UploadDocument 上传文档并在元数据中记录内容哈希
func (c *Client) UploadDocument(ctx context.Context, datasetID, name string, content []byte, hash string) (*domainSync.Document, error) {
	var result struct {
		apiResponse
		Data []remoteDocument `json:"data"`
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetFileReader("file", name, bytes.NewReader(content)).
		SetResult(&result).
		SetError(&result).
		Post(fmt.Sprintf("/api/v1/datasets/%s/documents", datasetID))
	if err != nil {
		return nil, fmt.Errorf("failed to upload document %s: %w", name, err)
	}
	if err := c.checkResponse(resp, &result.apiResponse); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: "upload returned no document"}
	}

	doc := domainSync.Document{
		ID:   result.Data[0].ID,
		Name: result.Data[0].Name,
		Hash: hash,
		Size: int64(len(content)),
	}

	// 哈希写入文档元数据，供后续对账比较
	if err := c.setDocumentHash(ctx, datasetID, doc.ID, hash); err != nil {
		return nil, err
	}

	return &doc, nil
}

// setDocumentHash 更新文档元数据中的内容哈希
func (c *Client) setDocumentHash(ctx context.Context, datasetID, documentID, hash string) error {
	var result apiResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"meta_fields": map[string]string{"hash": hash},
		}).
		SetResult(&result).
		SetError(&result).
		Put(fmt.Sprintf("/api/v1/datasets/%s/documents/%s", datasetID, documentID))
	if err != nil {
		return fmt.Errorf("failed to update document metadata: %w", err)
	}
	return c.checkResponse(resp, &result)
}

// DeleteDocuments 删除数据集中的指定文档
// ids 为空时删除数据集的全部文档
func (c *Client) DeleteDocuments(ctx context.Context, datasetID string, ids []string) error {
	var result apiResponse

	body := map[string]any{}
	if len(ids) > 0 {
		body["ids"] = ids
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Delete(fmt.Sprintf("/api/v1/datasets/%s/documents", datasetID))
	if err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return c.checkResponse(resp, &result)
}

// ParseDocuments 触发远端对指定文档的解析（切块与建索引）
func (c *Client) ParseDocuments(ctx context.Context, datasetID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	var result apiResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"document_ids": ids}).
		SetResult(&result).
		SetError(&result).
		Post(fmt.Sprintf("/api/v1/datasets/%s/chunks", datasetID))
	if err != nil {
		return fmt.Errorf("failed to trigger document parsing: %w", err)
	}
	return c.checkResponse(resp, &result)
}

// checkResponse 统一检查 HTTP 状态与业务错误码
func (c *Client) checkResponse(resp *resty.Response, body *apiResponse) error {
	if resp.IsError() || body.Code != 0 {
		return &APIError{
			StatusCode: resp.StatusCode(),
			Code:       body.Code,
			Message:    body.Message,
		}
	}
	return nil
}
