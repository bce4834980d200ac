package handler

import (
	"github.com/gin-gonic/gin"

	"ragflow-bridge/internal/service"
)

// DatasetHandler 负责数据集管理相关的 API 请求。
type DatasetHandler struct {
	datasetService service.DatasetService
}

// NewDatasetHandler 创建一个新的 DatasetHandler 实例。
func NewDatasetHandler(datasetService service.DatasetService) *DatasetHandler {
	return &DatasetHandler{datasetService: datasetService}
}

func (h *DatasetHandler) Create(c *gin.Context) {
	var req service.CreateDatasetRequest
	if !bindJSON(c, &req) {
		return
	}
	ds, err := h.datasetService.Create(c.Request.Context(), req)
	if err != nil {
		handleError(c, "创建数据集", err)
		return
	}
	success(c, "数据集创建成功", ds)
}

func (h *DatasetHandler) List(c *gin.Context) {
	res, err := h.datasetService.List(intQuery(c, "page", 1), intQuery(c, "page_size", 0), c.Query("keyword"))
	if err != nil {
		handleError(c, "查询数据集列表", err)
		return
	}
	success(c, "获取数据集列表成功", res)
}

func (h *DatasetHandler) Get(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	ds, err := h.datasetService.Get(id)
	if err != nil {
		handleError(c, "查询数据集", err)
		return
	}
	success(c, "获取数据集成功", ds)
}

func (h *DatasetHandler) Update(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req service.UpdateDatasetRequest
	if !bindJSON(c, &req) {
		return
	}
	ds, err := h.datasetService.Update(c.Request.Context(), id, req)
	if err != nil {
		handleError(c, "更新数据集", err)
		return
	}
	success(c, "数据集更新成功", ds)
}

func (h *DatasetHandler) Delete(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.datasetService.Delete(c.Request.Context(), id); err != nil {
		handleError(c, "删除数据集", err)
		return
	}
	success(c, "数据集删除成功", nil)
}

// Sync 以远端为准对齐本地数据集记录，仅管理员可调用。
func (h *DatasetHandler) Sync(c *gin.Context) {
	res, err := h.datasetService.Sync(c.Request.Context())
	if err != nil {
		handleError(c, "同步数据集", err)
		return
	}
	success(c, "数据集同步完成", res)
}
