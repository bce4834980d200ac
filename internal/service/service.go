// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"io"

	"ragflow-bridge/internal/model"
	"ragflow-bridge/pkg/tasks"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PageResult 是分页查询的统一返回结构。
type PageResult[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// ItemError 记录批量操作中单个条目的失败原因。
type ItemError struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

// TaskPublisher 发布文档状态同步任务，未启用 Kafka 时为 nil。
type TaskPublisher interface {
	PublishDocumentSync(ctx context.Context, task tasks.DocumentSyncTask) error
}

// ChunkIndexer 是本地分块全文索引，未启用 Elasticsearch 时为 nil。
type ChunkIndexer interface {
	IndexChunks(ctx context.Context, docs []model.ChunkIndexDocument) error
	DeleteChunks(ctx context.Context, chunkIDs []string) error
	DeleteByDocument(ctx context.Context, remoteDocumentID string) error
	Search(ctx context.Context, remoteDatasetID, query string, size int) ([]model.VirtualChunk, error)
}

// TextExtractor 从文件中抽取纯文本，用于预览。
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}
