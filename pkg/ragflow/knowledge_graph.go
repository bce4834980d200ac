package ragflow

import (
	"context"
	"net/http"
	"net/url"
)

func knowledgeGraphPath(datasetID string) string {
	return "/datasets/" + url.PathEscape(datasetID) + "/knowledge_graph"
}

// GetKnowledgeGraph 获取数据集的知识图谱。
func (c *Client) GetKnowledgeGraph(ctx context.Context, datasetID string) (*KnowledgeGraph, error) {
	var out KnowledgeGraph
	if err := c.call(ctx, http.MethodGet, knowledgeGraphPath(datasetID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteKnowledgeGraph 删除数据集的知识图谱。
func (c *Client) DeleteKnowledgeGraph(ctx context.Context, datasetID string) error {
	return c.call(ctx, http.MethodDelete, knowledgeGraphPath(datasetID), nil, nil, nil)
}
