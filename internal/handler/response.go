// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ragflow-bridge/internal/service"
	"ragflow-bridge/pkg/log"
)

func success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    nil,
	})
}

// handleError 把业务层错误映射为 HTTP 状态码。
// 未归类的错误统一返回 500，不向调用方暴露内部细节。
func handleError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidArgument):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		fail(c, http.StatusConflict, err.Error())
	default:
		log.Errorf("[Handler] %s 失败, path: %s, error: %v", op, c.Request.URL.Path, err)
		fail(c, http.StatusInternalServerError, op+"失败")
	}
}

// uintParam 解析路径中的数字 ID，失败时直接写出 400 响应。
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		fail(c, http.StatusBadRequest, "无效的 "+name)
		return 0, false
	}
	return uint(v), true
}

func intQuery(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

// bindJSON 解析请求体，失败时直接写出 400 响应。
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, "请求体格式错误: "+err.Error())
		return false
	}
	return true
}

// idsRequest 是批量操作的请求体。
type idsRequest struct {
	IDs []uint `json:"ids"`
}

type chunkIDsRequest struct {
	ChunkIDs []string `json:"chunkIds"`
}
