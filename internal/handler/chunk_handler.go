package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ragflow-bridge/internal/service"
)

// ChunkHandler 负责分块查看、编辑与检索相关的 API 请求。
type ChunkHandler struct {
	chunkService service.ChunkService
}

// NewChunkHandler 创建一个新的 ChunkHandler 实例。
func NewChunkHandler(chunkService service.ChunkService) *ChunkHandler {
	return &ChunkHandler{chunkService: chunkService}
}

func (h *ChunkHandler) List(c *gin.Context) {
	datasetID, docID, ok := documentParams(c)
	if !ok {
		return
	}
	var q service.ChunkQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, "查询参数错误")
		return
	}
	res, err := h.chunkService.List(c.Request.Context(), datasetID, docID, q)
	if err != nil {
		handleError(c, "查询分块", err)
		return
	}
	success(c, "获取分块列表成功", res)
}

func (h *ChunkHandler) Add(c *gin.Context) {
	datasetID, docID, ok := documentParams(c)
	if !ok {
		return
	}
	var req service.AddChunkRequest
	if !bindJSON(c, &req) {
		return
	}
	chunk, err := h.chunkService.Add(c.Request.Context(), datasetID, docID, req)
	if err != nil {
		handleError(c, "新增分块", err)
		return
	}
	success(c, "分块新增成功", chunk)
}

func (h *ChunkHandler) Update(c *gin.Context) {
	datasetID, docID, ok := documentParams(c)
	if !ok {
		return
	}
	var req service.UpdateChunkRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.chunkService.Update(c.Request.Context(), datasetID, docID, c.Param("chunkId"), req); err != nil {
		handleError(c, "更新分块", err)
		return
	}
	success(c, "分块更新成功", nil)
}

// Delete 删除文档的分块，请求体为 {"chunkIds": [...]}。
func (h *ChunkHandler) Delete(c *gin.Context) {
	datasetID, docID, ok := documentParams(c)
	if !ok {
		return
	}
	var req chunkIDsRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.chunkService.Delete(c.Request.Context(), datasetID, docID, req.ChunkIDs); err != nil {
		handleError(c, "删除分块", err)
		return
	}
	success(c, "分块删除成功", nil)
}

// Retrieve 对单个数据集执行检索测试。
func (h *ChunkHandler) Retrieve(c *gin.Context) {
	datasetID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req service.RetrievalRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.chunkService.Retrieve(c.Request.Context(), datasetID, req)
	if err != nil {
		handleError(c, "检索测试", err)
		return
	}
	success(c, "检索成功", res)
}

// Search 在本地分块索引中做全文检索，参数 q 为查询词，size 为返回条数。
func (h *ChunkHandler) Search(c *gin.Context) {
	datasetID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, "缺少查询参数 q")
		return
	}
	chunks, err := h.chunkService.Search(c.Request.Context(), datasetID, q, intQuery(c, "size", 10))
	if err != nil {
		handleError(c, "全文检索", err)
		return
	}
	success(c, "检索成功", chunks)
}
