package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"ragflow-bridge/internal/validator"
)

var (
	// ErrNotFound 表示本地记录不存在。
	ErrNotFound = errors.New("资源不存在")
	// ErrInvalidArgument 表示请求参数不合法。
	ErrInvalidArgument = errors.New("参数不合法")
	// ErrInvalidState 表示记录当前状态不允许执行该操作。
	ErrInvalidState = errors.New("当前状态不允许该操作")
)

// notFound 将 gorm.ErrRecordNotFound 转换为 ErrNotFound，其他错误原样包装。
func notFound(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("查询%s失败: %w", what, err)
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}

func invalidState(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidState)
}

// validate 执行结构体校验，并把校验错误转换为 ErrInvalidArgument。
func validate(req interface{}) error {
	if err := validator.Struct(req); err != nil {
		return fmt.Errorf("%s: %w", validator.Describe(err), ErrInvalidArgument)
	}
	return nil
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
