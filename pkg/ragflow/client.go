// Package ragflow 提供了访问 RAGFlow HTTP API (/api/v1) 的客户端。
package ragflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"ragflow-bridge/internal/config"
)

const apiPrefix = "/api/v1"

// CodeSuccess 是 RAGFlow 响应中表示成功的业务码。
const CodeSuccess = 0

// APIError 表示 RAGFlow 返回的业务错误或非 2xx 状态。
type APIError struct {
	HTTPStatus int
	Code       int
	Message    string
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ragflow %s: code=%d status=%d: %s", e.Path, e.Code, e.HTTPStatus, e.Message)
}

// NotFound 判断错误是否表示远端资源不存在或不属于当前租户。
func (e *APIError) NotFound() bool {
	if e.HTTPStatus == http.StatusNotFound {
		return true
	}
	msg := strings.ToLower(e.Message)
	for _, hint := range []string{"not found", "don't own", "can't find", "doesn't exist", "not exist"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// IsNotFound 判断任意错误链中是否包含远端资源不存在的 APIError。
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.NotFound()
}

// envelope 是 RAGFlow 所有 JSON 响应的统一外壳。
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client 是 RAGFlow API 的客户端。
type Client struct {
	http   *resty.Client
	stream *resty.Client
}

// NewClient 根据配置创建一个新的 RAGFlow 客户端。
func NewClient(cfg config.RAGFlowConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	newResty := func() *resty.Client {
		return resty.New().
			SetBaseURL(base+apiPrefix).
			SetAuthToken(cfg.APIKey).
			SetHeader("Accept", "application/json")
	}
	// 流式请求不能使用整体超时，由调用方的 context 控制。
	return &Client{
		http:   newResty().SetTimeout(timeout),
		stream: newResty(),
	}
}

// call 发送请求并将 data 字段解码到 out (可为 nil)。
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("ragflow %s %s: %w", method, path, err)
	}
	return decode(resp, path, out)
}

func decode(resp *resty.Response, path string, out interface{}) error {
	return decodeBody(resp.Body(), resp.StatusCode(), path, out)
}

func decodeBody(body []byte, status int, path string, out interface{}) error {
	success := status >= 200 && status < 300
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if !success {
			return &APIError{HTTPStatus: status, Code: status, Message: strings.TrimSpace(string(body)), Path: path}
		}
		return fmt.Errorf("ragflow %s: decode response: %w", path, err)
	}
	if env.Code != CodeSuccess || !success {
		return &APIError{HTTPStatus: status, Code: env.Code, Message: env.Message, Path: path}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("ragflow %s: decode data: %w", path, err)
	}
	return nil
}

// Ping 通过列出一个数据集来确认远端可用且 API Key 有效。
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListDatasets(ctx, ListDatasetsParams{Page: 1, PageSize: 1})
	return err
}

// idsBody 是批量删除接口使用的请求体。
type idsBody struct {
	IDs []string `json:"ids"`
}

func pageQuery(q url.Values, page, pageSize int, orderBy string, desc *bool) url.Values {
	if q == nil {
		q = url.Values{}
	}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	if pageSize > 0 {
		q.Set("page_size", fmt.Sprint(pageSize))
	}
	if orderBy != "" {
		q.Set("orderby", orderBy)
	}
	if desc != nil {
		q.Set("desc", fmt.Sprint(*desc))
	}
	return q
}
