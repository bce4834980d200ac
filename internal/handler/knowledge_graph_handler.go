package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ragflow-bridge/internal/knowledgegraph"
	"ragflow-bridge/internal/service"
)

// KnowledgeGraphHandler 负责知识图谱查询相关的 API 请求。
type KnowledgeGraphHandler struct {
	kgService service.KnowledgeGraphService
}

// NewKnowledgeGraphHandler 创建一个新的 KnowledgeGraphHandler 实例。
func NewKnowledgeGraphHandler(kgService service.KnowledgeGraphService) *KnowledgeGraphHandler {
	return &KnowledgeGraphHandler{kgService: kgService}
}

func (h *KnowledgeGraphHandler) Get(c *gin.Context) {
	datasetID, ok := uintParam(c, "datasetId")
	if !ok {
		return
	}
	kg, err := h.kgService.Get(c.Request.Context(), datasetID)
	if err != nil {
		handleError(c, "获取知识图谱", err)
		return
	}
	success(c, "获取知识图谱成功", kg)
}

func (h *KnowledgeGraphHandler) Delete(c *gin.Context) {
	datasetID, ok := uintParam(c, "datasetId")
	if !ok {
		return
	}
	if err := h.kgService.Delete(c.Request.Context(), datasetID); err != nil {
		handleError(c, "删除知识图谱", err)
		return
	}
	success(c, "知识图谱删除成功", nil)
}

// Entities 支持的查询参数：types（逗号分隔）、name、min_pagerank、limit。
func (h *KnowledgeGraphHandler) Entities(c *gin.Context) {
	datasetID, ok := uintParam(c, "datasetId")
	if !ok {
		return
	}
	minRank, ok := floatQuery(c, "min_pagerank")
	if !ok {
		return
	}
	q := knowledgegraph.EntityQuery{
		Types:       splitList(c.Query("types")),
		Name:        c.Query("name"),
		MinPageRank: minRank,
		Limit:       intQuery(c, "limit", 0),
	}
	entities, err := h.kgService.Entities(c.Request.Context(), datasetID, q)
	if err != nil {
		handleError(c, "查询实体", err)
		return
	}
	success(c, "获取实体列表成功", entities)
}

// Relations 支持的查询参数：entity、direction（in/out/both）、keyword、min_weight、limit。
func (h *KnowledgeGraphHandler) Relations(c *gin.Context) {
	datasetID, ok := uintParam(c, "datasetId")
	if !ok {
		return
	}
	direction, valid := knowledgegraph.ParseDirection(c.Query("direction"))
	if !valid {
		fail(c, http.StatusBadRequest, "direction 只能是 in、out 或 both")
		return
	}
	minWeight, ok := floatQuery(c, "min_weight")
	if !ok {
		return
	}
	q := knowledgegraph.RelationQuery{
		Entity:    c.Query("entity"),
		Direction: direction,
		Keyword:   c.Query("keyword"),
		MinWeight: minWeight,
		Limit:     intQuery(c, "limit", 0),
	}
	res, err := h.kgService.Relations(c.Request.Context(), datasetID, q)
	if err != nil {
		handleError(c, "查询关系", err)
		return
	}
	success(c, "获取关系列表成功", res)
}

func (h *KnowledgeGraphHandler) Stats(c *gin.Context) {
	datasetID, ok := uintParam(c, "datasetId")
	if !ok {
		return
	}
	stats, err := h.kgService.Stats(c.Request.Context(), datasetID, intQuery(c, "top_n", 10))
	if err != nil {
		handleError(c, "统计知识图谱", err)
		return
	}
	success(c, "获取知识图谱统计成功", stats)
}

func floatQuery(c *gin.Context, name string) (float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "无效的 "+name)
		return 0, false
	}
	return v, true
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
