package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ragflow-bridge/internal/middleware"
	"ragflow-bridge/internal/service"
	"ragflow-bridge/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ConversationHandler 负责会话管理与问答相关的 API 请求，包括 WebSocket 流式问答。
type ConversationHandler struct {
	conversationService service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler 实例。
func NewConversationHandler(conversationService service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

// Create 创建会话。未指定 userRef 时使用当前客户端标识。
func (h *ConversationHandler) Create(c *gin.Context) {
	var req service.CreateConversationRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.UserRef == "" {
		req.UserRef = middleware.ClientID(c)
	}
	conv, err := h.conversationService.Create(c.Request.Context(), req)
	if err != nil {
		handleError(c, "创建会话", err)
		return
	}
	success(c, "会话创建成功", conv)
}

// List 处理 GET /conversations?assistant_id=&user_ref=。
func (h *ConversationHandler) List(c *gin.Context) {
	assistantID := intQuery(c, "assistant_id", 0)
	if assistantID <= 0 {
		fail(c, http.StatusBadRequest, "缺少 assistant_id")
		return
	}
	res, err := h.conversationService.List(uint(assistantID), c.Query("user_ref"), intQuery(c, "page", 1), intQuery(c, "page_size", 0))
	if err != nil {
		handleError(c, "查询会话列表", err)
		return
	}
	success(c, "获取会话列表成功", res)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	conv, err := h.conversationService.Get(c.Param("id"))
	if err != nil {
		handleError(c, "查询会话", err)
		return
	}
	success(c, "获取会话成功", conv)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.conversationService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, "删除会话", err)
		return
	}
	success(c, "会话删除成功", nil)
}

func (h *ConversationHandler) History(c *gin.Context) {
	msgs, err := h.conversationService.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, "查询会话历史", err)
		return
	}
	success(c, "获取对话历史成功", msgs)
}

// SendMessage 以非流式方式完成一次问答。
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req service.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	reply, err := h.conversationService.SendMessage(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		handleError(c, "发送消息", err)
		return
	}
	success(c, "success", reply)
}

// Stream 处理 WebSocket 流式问答。客户端每发送一条消息（纯文本或 {"question": "..."}）
// 即触发一次问答，回答增量以 {"chunk": "..."} 推送，结束时推送 completion 通知。
func (h *ConversationHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.conversationService.Get(id); err != nil {
		handleError(c, "建立流式会话", err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("[ConversationHandler] WebSocket 连接已建立, conversation: %s", id)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		question := parseQuestion(message)
		if question == "" {
			writeJSON(conn, gin.H{"error": "问题不能为空"})
			continue
		}

		reply, err := h.conversationService.StreamMessage(c.Request.Context(), id, service.SendMessageRequest{Question: question}, func(delta string) error {
			return conn.WriteJSON(gin.H{"chunk": delta})
		})
		if err != nil {
			log.Errorf("[ConversationHandler] 处理流式响应失败, conversation: %s, error: %v", id, err)
			writeJSON(conn, gin.H{"error": "AI服务暂时不可用，请稍后重试"})
			writeJSON(conn, completion(nil))
			continue
		}
		writeJSON(conn, completion(reply))
	}
}

func parseQuestion(message []byte) string {
	text := strings.TrimSpace(string(message))
	if strings.HasPrefix(text, "{") {
		var req service.SendMessageRequest
		if err := json.Unmarshal(message, &req); err == nil {
			return strings.TrimSpace(req.Question)
		}
	}
	return text
}

func completion(reply *service.ChatReply) gin.H {
	now := time.Now()
	msg := gin.H{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": now.UnixMilli(),
		"date":      now.Format("2006-01-02T15:04:05"),
	}
	if reply != nil {
		msg["references"] = reply.References
	}
	return msg
}

func writeJSON(conn *websocket.Conn, v interface{}) {
	if err := conn.WriteJSON(v); err != nil {
		log.Warnf("写入 WebSocket 消息失败: %v", err)
	}
}
