package ragflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// UploadFile 是一个待上传的文件。
type UploadFile struct {
	Name   string
	Reader io.Reader
}

func documentsPath(datasetID string) string {
	return "/datasets/" + url.PathEscape(datasetID) + "/documents"
}

// UploadDocuments 以 multipart 表单将文件上传到数据集。
func (c *Client) UploadDocuments(ctx context.Context, datasetID string, files ...UploadFile) ([]Document, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("ragflow: no files to upload")
	}
	path := documentsPath(datasetID)
	req := c.http.R().SetContext(ctx)
	for _, f := range files {
		req.SetFileReader("file", f.Name, f.Reader)
	}
	resp, err := req.Post(path)
	if err != nil {
		return nil, fmt.Errorf("ragflow POST %s: %w", path, err)
	}
	var docs []Document
	if err := decode(resp, path, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// UpdateDocument 修改文档名称或解析配置。
func (c *Client) UpdateDocument(ctx context.Context, datasetID, documentID string, req UpdateDocumentRequest) error {
	return c.call(ctx, http.MethodPut, documentsPath(datasetID)+"/"+url.PathEscape(documentID), nil, req, nil)
}

// DownloadDocument 返回文档原始内容，调用方负责关闭。
func (c *Client) DownloadDocument(ctx context.Context, datasetID, documentID string) (io.ReadCloser, error) {
	path := documentsPath(datasetID) + "/" + url.PathEscape(documentID)
	resp, err := c.stream.R().SetContext(ctx).SetDoNotParseResponse(true).Get(path)
	if err != nil {
		return nil, fmt.Errorf("ragflow GET %s: %w", path, err)
	}
	body := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(body, 4096))
		body.Close()
		return nil, &APIError{HTTPStatus: resp.StatusCode(), Code: resp.StatusCode(), Message: string(msg), Path: path}
	}
	// 远端在业务错误时仍可能以 200 返回 JSON 外壳。
	if strings.HasPrefix(resp.Header().Get("Content-Type"), "application/json") {
		data, err := io.ReadAll(body)
		body.Close()
		if err != nil {
			return nil, fmt.Errorf("ragflow GET %s: %w", path, err)
		}
		if err := decodeBody(data, resp.StatusCode(), path, nil); err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return body, nil
}

// ListDocuments 分页列出数据集中的文档。
func (c *Client) ListDocuments(ctx context.Context, datasetID string, p ListDocumentsParams) (*DocumentList, error) {
	q := pageQuery(nil, p.Page, p.PageSize, p.OrderBy, p.Desc)
	if p.Keywords != "" {
		q.Set("keywords", p.Keywords)
	}
	if p.ID != "" {
		q.Set("id", p.ID)
	}
	if p.Name != "" {
		q.Set("name", p.Name)
	}
	var out DocumentList
	if err := c.call(ctx, http.MethodGet, documentsPath(datasetID), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDocument 通过 ID 过滤列表接口获取单个文档。
func (c *Client) GetDocument(ctx context.Context, datasetID, documentID string) (*Document, error) {
	list, err := c.ListDocuments(ctx, datasetID, ListDocumentsParams{ID: documentID, Page: 1, PageSize: 1})
	if err != nil {
		return nil, err
	}
	for i := range list.Docs {
		if list.Docs[i].ID == documentID {
			return &list.Docs[i], nil
		}
	}
	return nil, &APIError{HTTPStatus: http.StatusNotFound, Code: http.StatusNotFound, Message: "document not found", Path: documentsPath(datasetID)}
}

// DeleteDocuments 按 ID 批量删除文档。
func (c *Client) DeleteDocuments(ctx context.Context, datasetID string, ids []string) error {
	return c.call(ctx, http.MethodDelete, documentsPath(datasetID), nil, idsBody{IDs: ids}, nil)
}

type documentIDsBody struct {
	DocumentIDs []string `json:"document_ids"`
}

// ParseDocuments 触发文档解析。
func (c *Client) ParseDocuments(ctx context.Context, datasetID string, documentIDs []string) error {
	return c.call(ctx, http.MethodPost, "/datasets/"+url.PathEscape(datasetID)+"/chunks", nil, documentIDsBody{DocumentIDs: documentIDs}, nil)
}

// StopParsing 停止文档解析。
func (c *Client) StopParsing(ctx context.Context, datasetID string, documentIDs []string) error {
	return c.call(ctx, http.MethodDelete, "/datasets/"+url.PathEscape(datasetID)+"/chunks", nil, documentIDsBody{DocumentIDs: documentIDs}, nil)
}
