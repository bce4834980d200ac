package ragflow

import (
	"context"
	"net/http"
	"net/url"
)

// CreateDataset 创建一个数据集。
func (c *Client) CreateDataset(ctx context.Context, req DatasetRequest) (*Dataset, error) {
	var ds Dataset
	if err := c.call(ctx, http.MethodPost, "/datasets", nil, req, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// UpdateDataset 修改数据集配置。
func (c *Client) UpdateDataset(ctx context.Context, datasetID string, req DatasetRequest) error {
	return c.call(ctx, http.MethodPut, "/datasets/"+url.PathEscape(datasetID), nil, req, nil)
}

// DeleteDatasets 按 ID 批量删除数据集。
func (c *Client) DeleteDatasets(ctx context.Context, ids []string) error {
	return c.call(ctx, http.MethodDelete, "/datasets", nil, idsBody{IDs: ids}, nil)
}

// ListDatasets 分页列出数据集。
func (c *Client) ListDatasets(ctx context.Context, p ListDatasetsParams) ([]Dataset, error) {
	q := pageQuery(nil, p.Page, p.PageSize, p.OrderBy, p.Desc)
	if p.Name != "" {
		q.Set("name", p.Name)
	}
	if p.ID != "" {
		q.Set("id", p.ID)
	}
	var out []Dataset
	if err := c.call(ctx, http.MethodGet, "/datasets", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
