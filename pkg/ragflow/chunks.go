package ragflow

import (
	"context"
	"net/http"
	"net/url"
)

func chunksPath(datasetID, documentID string) string {
	return documentsPath(datasetID) + "/" + url.PathEscape(documentID) + "/chunks"
}

// AddChunk 手动向文档添加分块。
func (c *Client) AddChunk(ctx context.Context, datasetID, documentID string, req ChunkRequest) (*Chunk, error) {
	var out struct {
		Chunk Chunk `json:"chunk"`
	}
	if err := c.call(ctx, http.MethodPost, chunksPath(datasetID, documentID), nil, req, &out); err != nil {
		return nil, err
	}
	return &out.Chunk, nil
}

// ListChunks 分页列出文档的分块。
func (c *Client) ListChunks(ctx context.Context, datasetID, documentID string, p ListChunksParams) (*ChunkList, error) {
	q := pageQuery(nil, p.Page, p.PageSize, "", nil)
	if p.Keywords != "" {
		q.Set("keywords", p.Keywords)
	}
	if p.ID != "" {
		q.Set("id", p.ID)
	}
	var out ChunkList
	if err := c.call(ctx, http.MethodGet, chunksPath(datasetID, documentID), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateChunk 修改分块内容、关键词或可用状态。
func (c *Client) UpdateChunk(ctx context.Context, datasetID, documentID, chunkID string, req ChunkRequest) error {
	return c.call(ctx, http.MethodPut, chunksPath(datasetID, documentID)+"/"+url.PathEscape(chunkID), nil, req, nil)
}

type chunkIDsBody struct {
	ChunkIDs []string `json:"chunk_ids"`
}

// DeleteChunks 删除分块，ids 为空时删除文档的全部分块。
func (c *Client) DeleteChunks(ctx context.Context, datasetID, documentID string, ids []string) error {
	return c.call(ctx, http.MethodDelete, chunksPath(datasetID, documentID), nil, chunkIDsBody{ChunkIDs: ids}, nil)
}

// Retrieve 在一个或多个数据集中执行检索测试。
func (c *Client) Retrieve(ctx context.Context, req RetrievalRequest) (*RetrievalResult, error) {
	var out RetrievalResult
	if err := c.call(ctx, http.MethodPost, "/retrieval", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
