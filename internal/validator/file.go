// Package validator 负责上传文件与请求体的校验。
package validator

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"ragflow-bridge/internal/config"
)

var (
	ErrEmptyFile            = errors.New("文件为空")
	ErrFileTooLarge         = errors.New("文件超过大小限制")
	ErrUnsupportedExtension = errors.New("不支持的文件扩展名")
	ErrUnsupportedMimeType  = errors.New("不支持的文件类型")
)

// DefaultExtensions 是 RAGFlow 能够解析的常见文件扩展名。
var DefaultExtensions = []string{
	".pdf", ".doc", ".docx", ".txt", ".md", ".csv", ".xls", ".xlsx",
	".ppt", ".pptx", ".html", ".json", ".eml", ".png", ".jpg", ".jpeg",
}

// DefaultMimeTypes 与 DefaultExtensions 对应。检测结果的任一父类型命中即视为允许。
var DefaultMimeTypes = []string{
	"application/pdf",
	"application/msword",
	"application/x-ole-storage",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/zip",
	"text/plain",
	"text/csv",
	"text/html",
	"application/json",
	"message/rfc822",
	"image/png",
	"image/jpeg",
}

const defaultMaxSize int64 = 100 * 1024 * 1024

// FileValidator 按扩展名、嗅探到的 MIME 类型和大小校验上传文件。
type FileValidator struct {
	maxSize    int64
	extensions map[string]struct{}
	mimeTypes  map[string]struct{}
}

// NewFileValidator 根据文档配置创建校验器，未配置的项使用默认值。
func NewFileValidator(cfg config.DocumentConfig) *FileValidator {
	v := &FileValidator{
		maxSize:    cfg.MaxUploadSize,
		extensions: make(map[string]struct{}),
		mimeTypes:  make(map[string]struct{}),
	}
	if v.maxSize <= 0 {
		v.maxSize = defaultMaxSize
	}
	exts := cfg.AllowedExtensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		v.extensions[e] = struct{}{}
	}
	mimes := cfg.AllowedMimeTypes
	if len(mimes) == 0 {
		mimes = DefaultMimeTypes
	}
	for _, m := range mimes {
		v.mimeTypes[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return v
}

// MaxSize 返回允许的最大字节数。
func (v *FileValidator) MaxSize() int64 {
	return v.maxSize
}

// Validate 校验文件名与大小，并从 r 的开头嗅探内容类型。
// r 必须可以 Seek，校验结束后会回到起始位置。返回检测到的 MIME 类型。
func (v *FileValidator) Validate(name string, size int64, r io.ReadSeeker) (string, error) {
	if size <= 0 {
		return "", ErrEmptyFile
	}
	if size > v.maxSize {
		return "", fmt.Errorf("%w: %d > %d 字节", ErrFileTooLarge, size, v.maxSize)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := v.extensions[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}

	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return "", fmt.Errorf("读取文件内容失败: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("重置文件读取位置失败: %w", err)
	}
	if !v.mimeAllowed(mt) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMimeType, mt.String())
	}
	return mt.String(), nil
}

func (v *FileValidator) mimeAllowed(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		for allowed := range v.mimeTypes {
			if m.Is(allowed) {
				return true
			}
		}
	}
	return false
}
