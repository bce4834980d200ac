package handler

import (
	"context"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"ragflow-bridge/internal/service"
	"ragflow-bridge/pkg/log"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// Upload 处理 multipart 上传，表单字段 file 可以出现多次。
// 单个文件时失败直接返回错误，多个文件时逐个上传并汇总错误。
func (h *DocumentHandler) Upload(c *gin.Context) {
	datasetID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, "无法解析上传表单")
		return
	}
	headers := form.File["file"]
	if len(headers) == 0 {
		fail(c, http.StatusBadRequest, "缺少上传文件")
		return
	}

	inputs := make([]service.UploadInput, 0, len(headers))
	files := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			log.Errorf("[DocumentHandler] 打开上传文件失败, file: %s, error: %v", fh.Filename, err)
			fail(c, http.StatusBadRequest, "无法读取上传文件 "+fh.Filename)
			return
		}
		files = append(files, f)
		inputs = append(inputs, service.UploadInput{Name: fh.Filename, Size: fh.Size, Reader: f})
	}

	if len(inputs) == 1 {
		doc, err := h.docService.Upload(c.Request.Context(), datasetID, inputs[0])
		if err != nil {
			handleError(c, "上传文档", err)
			return
		}
		success(c, "文档上传成功", doc)
		return
	}
	success(c, "批量上传完成", h.docService.BatchUpload(c.Request.Context(), datasetID, inputs))
}

func (h *DocumentHandler) List(c *gin.Context) {
	datasetID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var q service.DocumentQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, "查询参数错误")
		return
	}
	res, err := h.docService.List(datasetID, q)
	if err != nil {
		handleError(c, "查询文档列表", err)
		return
	}
	success(c, "获取文档列表成功", res)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	datasetID, docID, ok := documentParams(c)
	if !ok {
		return
	}
	doc, err := h.docService.Get(datasetID, docID)
	if err != nil {
		handleError(c, "查询文档", err)
		return
	}
	success(c, "获取文档成功", doc)
}

// BatchDelete 处理 DELETE /datasets/:id/documents，请求体为 {"ids": [...]}。
func (h *DocumentHandler) BatchDelete(c *gin.Context) {
	h.batch(c, "删除文档", h.docService.BatchDelete)
}

func (h *DocumentHandler) Parse(c *gin.Context) {
	h.batch(c, "解析文档", h.docService.Parse)
}

func (h *DocumentHandler) StopParse(c *gin.Context) {
	h.batch(c, "停止解析", h.docService.StopParse)
}

func (h *DocumentHandler) batch(c *gin.Context, op string, fn func(ctx context.Context, datasetID uint, ids []uint) (*service.BatchResult, error)) {
	datasetID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req idsRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.IDs) == 0 {
		fail(c, http.StatusBadRequest, "ids 不能为空")
		return
	}
	res, err := fn(c.Request.Context(), datasetID, req.IDs)
	if err != nil {
		handleError(c, op, err)
		return
	}
	success(c, op+"完成", res)
}

// RefreshStatus 从 RAGFlow 拉取单个文档的最新解析状态。
func (h *DocumentHandler) RefreshStatus(c *gin.Context) {
	datasetID, docID, ok := documentParams(c)
	if !ok {
		return
	}
	if _, err := h.docService.Get(datasetID, docID); err != nil {
		handleError(c, "刷新文档状态", err)
		return
	}
	doc, err := h.docService.RefreshStatus(c.Request.Context(), docID)
	if err != nil {
		handleError(c, "刷新文档状态", err)
		return
	}
	success(c, "文档状态已刷新", doc)
}

// RefreshProcessing 刷新数据集内所有解析中的文档，仅管理员可调用。
func (h *DocumentHandler) RefreshProcessing(c *gin.Context) {
	datasetID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	res, err := h.docService.RefreshProcessing(c.Request.Context(), datasetID)
	if err != nil {
		handleError(c, "批量刷新文档状态", err)
		return
	}
	success(c, "批量刷新完成", res)
}

func (h *DocumentHandler) Retry(c *gin.Context) {
	datasetID, docID, ok := documentParams(c)
	if !ok {
		return
	}
	doc, err := h.docService.Retry(c.Request.Context(), datasetID, docID)
	if err != nil {
		handleError(c, "重试文档", err)
		return
	}
	success(c, "文档已重新提交解析", doc)
}

// Download 以附件形式返回文档原件。
func (h *DocumentHandler) Download(c *gin.Context) {
	datasetID, docID, ok := documentParams(c)
	if !ok {
		return
	}
	res, err := h.docService.Download(c.Request.Context(), datasetID, docID)
	if err != nil {
		handleError(c, "下载文档", err)
		return
	}
	defer res.Body.Close()

	extra := map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": res.FileName}),
	}
	c.DataFromReader(http.StatusOK, res.Size, res.MimeType, res.Body, extra)
}

// DownloadURL 返回原件的预签名下载链接。
func (h *DocumentHandler) DownloadURL(c *gin.Context) {
	datasetID, docID, ok := documentParams(c)
	if !ok {
		return
	}
	info, err := h.docService.DownloadURL(c.Request.Context(), datasetID, docID)
	if err != nil {
		handleError(c, "生成下载链接", err)
		return
	}
	success(c, "文件下载链接生成成功", info)
}

func (h *DocumentHandler) Preview(c *gin.Context) {
	datasetID, docID, ok := documentParams(c)
	if !ok {
		return
	}
	info, err := h.docService.Preview(c.Request.Context(), datasetID, docID)
	if err != nil {
		handleError(c, "预览文档", err)
		return
	}
	success(c, "获取文件预览内容成功", info)
}

func documentParams(c *gin.Context) (uint, uint, bool) {
	datasetID, ok := uintParam(c, "id")
	if !ok {
		return 0, 0, false
	}
	docID, ok := uintParam(c, "docId")
	if !ok {
		return 0, 0, false
	}
	return datasetID, docID, true
}
