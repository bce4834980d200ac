package handler

import (
	"github.com/gin-gonic/gin"

	"ragflow-bridge/internal/service"
)

// ChatAssistantHandler 负责聊天助手管理相关的 API 请求。
type ChatAssistantHandler struct {
	assistantService service.ChatAssistantService
}

// NewChatAssistantHandler 创建一个新的 ChatAssistantHandler 实例。
func NewChatAssistantHandler(assistantService service.ChatAssistantService) *ChatAssistantHandler {
	return &ChatAssistantHandler{assistantService: assistantService}
}

func (h *ChatAssistantHandler) Create(c *gin.Context) {
	var req service.CreateChatAssistantRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.assistantService.Create(c.Request.Context(), req)
	if err != nil {
		handleError(c, "创建聊天助手", err)
		return
	}
	success(c, "聊天助手创建成功", a)
}

func (h *ChatAssistantHandler) List(c *gin.Context) {
	res, err := h.assistantService.List(intQuery(c, "page", 1), intQuery(c, "page_size", 0))
	if err != nil {
		handleError(c, "查询聊天助手列表", err)
		return
	}
	success(c, "获取聊天助手列表成功", res)
}

func (h *ChatAssistantHandler) Get(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	a, err := h.assistantService.Get(id)
	if err != nil {
		handleError(c, "查询聊天助手", err)
		return
	}
	success(c, "获取聊天助手成功", a)
}

func (h *ChatAssistantHandler) Update(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req service.UpdateChatAssistantRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.assistantService.Update(c.Request.Context(), id, req)
	if err != nil {
		handleError(c, "更新聊天助手", err)
		return
	}
	success(c, "聊天助手更新成功", a)
}

func (h *ChatAssistantHandler) Delete(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.assistantService.Delete(c.Request.Context(), id); err != nil {
		handleError(c, "删除聊天助手", err)
		return
	}
	success(c, "聊天助手删除成功", nil)
}

func (h *ChatAssistantHandler) Sync(c *gin.Context) {
	res, err := h.assistantService.Sync(c.Request.Context())
	if err != nil {
		handleError(c, "同步聊天助手", err)
		return
	}
	success(c, "聊天助手同步完成", res)
}
