// Package es 提供了与 Elasticsearch 交互的客户端功能，用于在本地镜像分块以支持全文检索。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"ragflow-bridge/internal/config"
	"ragflow-bridge/internal/model"
	"ragflow-bridge/pkg/log"
)

// chunkMapping 使用 ik 中文分词器索引分块内容。
const chunkMapping = `{
	"mappings": {
		"properties": {
			"chunk_id": { "type": "keyword" },
			"dataset_id": { "type": "keyword" },
			"document_id": { "type": "keyword" },
			"document_name": { "type": "keyword" },
			"content": {
				"type": "text",
				"analyzer": "ik_max_word",
				"search_analyzer": "ik_smart"
			},
			"important_keywords": { "type": "keyword" },
			"available": { "type": "boolean" }
		}
	}
}`

// ChunkIndex 是分块全文索引。
type ChunkIndex struct {
	client *elasticsearch.Client
	index  string
}

// NewChunkIndex 初始化 Elasticsearch 客户端并确保索引存在。
func NewChunkIndex(esCfg config.ElasticsearchConfig) (*ChunkIndex, error) {
	cfg := elasticsearch.Config{
		Addresses: splitAddresses(esCfg.Addresses),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	idx := &ChunkIndex{client: client, index: esCfg.IndexName}
	if err := idx.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return idx, nil
}

func splitAddresses(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (c *ChunkIndex) createIndexIfNotExists() error {
	res, err := c.client.Indices.Exists([]string{c.index})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", c.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = c.client.Indices.Create(c.index, c.client.Indices.Create.WithBody(strings.NewReader(chunkMapping)))
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", c.index, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.index, res.String())
	}
	log.Infof("索引 '%s' 创建成功", c.index)
	return nil
}

// IndexChunks 使用 bulk 接口写入或覆盖分块。
func (c *ChunkIndex) IndexChunks(ctx context.Context, docs []model.ChunkIndexDocument) error {
	if len(docs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range docs {
		meta := map[string]map[string]string{"index": {"_index": c.index, "_id": d.ChunkID}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(d); err != nil {
			return err
		}
	}
	req := esapi.BulkRequest{Body: &buf, Refresh: "true"}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("批量索引分块失败: %s", res.String())
	}
	var out struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("解析 bulk 响应失败: %w", err)
	}
	if out.Errors {
		return fmt.Errorf("批量索引分块部分失败")
	}
	return nil
}

// DeleteChunks 按分块 ID 删除。
func (c *ChunkIndex) DeleteChunks(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	return c.deleteByQuery(ctx, map[string]interface{}{"terms": map[string]interface{}{"chunk_id": chunkIDs}})
}

// DeleteByDocument 删除某个远端文档的全部分块。
func (c *ChunkIndex) DeleteByDocument(ctx context.Context, remoteDocumentID string) error {
	return c.deleteByQuery(ctx, map[string]interface{}{"term": map[string]interface{}{"document_id": remoteDocumentID}})
}

func (c *ChunkIndex) deleteByQuery(ctx context.Context, query map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"query": query})
	if err != nil {
		return err
	}
	req := esapi.DeleteByQueryRequest{Index: []string{c.index}, Body: bytes.NewReader(body)}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("删除分块失败: %s", res.String())
	}
	return nil
}

// Search 在一个数据集的分块中进行全文检索，只返回可用分块。
func (c *ChunkIndex) Search(ctx context.Context, remoteDatasetID, query string, size int) ([]model.VirtualChunk, error) {
	if size <= 0 {
		size = 10
	}
	q := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{"multi_match": map[string]interface{}{
						"query":  query,
						"fields": []string{"content", "important_keywords^2", "document_name"},
					}},
				},
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"dataset_id": remoteDatasetID}},
					map[string]interface{}{"term": map[string]interface{}{"available": true}},
				},
			},
		},
	}
	body, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	res, err := c.client.Search(
		c.client.Search.WithContext(ctx),
		c.client.Search.WithIndex(c.index),
		c.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("Elasticsearch 检索失败 [%d]: %s", res.StatusCode, string(msg))
	}

	var out struct {
		Hits struct {
			Hits []struct {
				Score  float64                  `json:"_score"`
				Source model.ChunkIndexDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("解析检索结果失败: %w", err)
	}
	chunks := make([]model.VirtualChunk, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		s := h.Source
		chunks = append(chunks, model.VirtualChunk{
			ID:                s.ChunkID,
			DatasetID:         s.DatasetID,
			DocumentID:        s.DocumentID,
			DocumentName:      s.DocumentName,
			Content:           s.Content,
			ImportantKeywords: s.ImportantKeywords,
			Available:         s.Available,
			Similarity:        h.Score,
		})
	}
	return chunks, nil
}
