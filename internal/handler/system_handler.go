package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ragflow-bridge/internal/service"
)

// SystemHandler 提供健康检查与运行状态接口。
type SystemHandler struct {
	systemService service.SystemService
}

// NewSystemHandler 创建一个新的 SystemHandler 实例。
func NewSystemHandler(systemService service.SystemService) *SystemHandler {
	return &SystemHandler{systemService: systemService}
}

// Health 在任一依赖不可用时返回 503。
func (h *SystemHandler) Health(c *gin.Context) {
	report := h.systemService.Health(c.Request.Context())
	status := http.StatusOK
	message := "服务运行正常"
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
		message = "部分依赖不可用"
	}
	c.JSON(status, gin.H{"code": status, "message": message, "data": report})
}

func (h *SystemHandler) Status(c *gin.Context) {
	st, err := h.systemService.Status(c.Request.Context())
	if err != nil {
		handleError(c, "查询系统状态", err)
		return
	}
	success(c, "获取系统状态成功", st)
}
