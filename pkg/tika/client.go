// Package tika 提供了一个与 Apache Tika 服务器交互的客户端，用于生成文档文本预览。
package tika

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"ragflow-bridge/internal/config"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	http *resty.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.ServerURL, "/")).
			SetTimeout(2 * time.Minute),
	}
}

// ExtractText 自动根据文件后缀推断 MIME 类型，并调用 Tika 提取文本。
func (c *Client) ExtractText(ctx context.Context, fileReader io.Reader, fileName string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/plain").
		SetHeader("Content-Type", detectMimeType(fileName)).
		SetBody(fileReader).
		Put("/tika")
	if err != nil {
		return "", fmt.Errorf("调用 Tika 失败: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode(), resp.String())
	}
	return resp.String(), nil
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
