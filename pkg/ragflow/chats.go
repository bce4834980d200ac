package ragflow

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

func listQuery(p ListParams) url.Values {
	q := pageQuery(nil, p.Page, p.PageSize, p.OrderBy, p.Desc)
	if p.Name != "" {
		q.Set("name", p.Name)
	}
	if p.ID != "" {
		q.Set("id", p.ID)
	}
	return q
}

// CreateChat 创建聊天助手。
func (c *Client) CreateChat(ctx context.Context, req ChatRequest) (*Chat, error) {
	var out Chat
	if err := c.call(ctx, http.MethodPost, "/chats", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateChat 修改聊天助手。
func (c *Client) UpdateChat(ctx context.Context, chatID string, req ChatRequest) error {
	return c.call(ctx, http.MethodPut, "/chats/"+url.PathEscape(chatID), nil, req, nil)
}

// DeleteChats 按 ID 批量删除聊天助手。
func (c *Client) DeleteChats(ctx context.Context, ids []string) error {
	return c.call(ctx, http.MethodDelete, "/chats", nil, idsBody{IDs: ids}, nil)
}

// ListChats 分页列出聊天助手。
func (c *Client) ListChats(ctx context.Context, p ListParams) ([]Chat, error) {
	var out []Chat
	if err := c.call(ctx, http.MethodGet, "/chats", listQuery(p), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func sessionsPath(chatID string) string {
	return "/chats/" + url.PathEscape(chatID) + "/sessions"
}

// CreateSession 为聊天助手创建会话。
func (c *Client) CreateSession(ctx context.Context, chatID, name, userID string) (*Session, error) {
	body := map[string]string{"name": name}
	if userID != "" {
		body["user_id"] = userID
	}
	var out Session
	if err := c.call(ctx, http.MethodPost, sessionsPath(chatID), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSession 修改会话名称。
func (c *Client) UpdateSession(ctx context.Context, chatID, sessionID, name string) error {
	return c.call(ctx, http.MethodPut, sessionsPath(chatID)+"/"+url.PathEscape(sessionID), nil, map[string]string{"name": name}, nil)
}

// ListSessions 分页列出会话。
func (c *Client) ListSessions(ctx context.Context, chatID string, p ListParams) ([]Session, error) {
	var out []Session
	if err := c.call(ctx, http.MethodGet, sessionsPath(chatID), listQuery(p), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSessions 按 ID 批量删除会话。
func (c *Client) DeleteSessions(ctx context.Context, chatID string, ids []string) error {
	return c.call(ctx, http.MethodDelete, sessionsPath(chatID), nil, idsBody{IDs: ids}, nil)
}

func completionsPath(chatID string) string {
	return "/chats/" + url.PathEscape(chatID) + "/completions"
}

// Converse 以非流式方式提问并返回完整回答。
func (c *Client) Converse(ctx context.Context, chatID string, req CompletionRequest) (*Completion, error) {
	req.Stream = false
	var out Completion
	if err := c.call(ctx, http.MethodPost, completionsPath(chatID), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamConverse 以 SSE 方式提问，每收到一个片段调用一次 onChunk。
// RAGFlow 每个片段中的 answer 是累积后的完整回答。返回最后一个片段。
func (c *Client) StreamConverse(ctx context.Context, chatID string, req CompletionRequest, onChunk func(Completion) error) (*Completion, error) {
	req.Stream = true
	path := completionsPath(chatID)
	resp, err := c.stream.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/event-stream").
		SetBody(req).
		SetDoNotParseResponse(true).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("ragflow POST %s: %w", path, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(body, 4096))
		return nil, decodeBody(msg, resp.StatusCode(), path, nil)
	}

	var last *Completion
	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			done, chunk, perr := parseStreamLine(line, path)
			if perr != nil {
				return last, perr
			}
			if done {
				return last, nil
			}
			if chunk != nil {
				last = chunk
				if err := onChunk(*chunk); err != nil {
					return last, err
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return last, nil
			}
			return last, fmt.Errorf("ragflow %s: read stream: %w", path, err)
		}
	}
}

// parseStreamLine 解析一行 SSE；data 为 true 表示流结束。
func parseStreamLine(line, path string) (bool, *Completion, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return false, nil, nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" {
		return false, nil, nil
	}
	if payload == "[DONE]" {
		return true, nil, nil
	}
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return false, nil, nil
	}
	if env.Code != CodeSuccess {
		return false, nil, &APIError{HTTPStatus: http.StatusOK, Code: env.Code, Message: env.Message, Path: path}
	}
	if string(env.Data) == "true" {
		return true, nil, nil
	}
	var chunk Completion
	if err := json.Unmarshal(env.Data, &chunk); err != nil {
		return false, nil, nil
	}
	return false, &chunk, nil
}
