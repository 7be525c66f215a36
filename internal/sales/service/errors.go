package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation 提交前的本地校验失败，不会发起网络请求
	ErrValidation = errors.New("校验失败")
	// ErrPreview 下推预览失败，未产生任何变更
	ErrPreview = errors.New("下推预览失败")
	// ErrCommit 下推或删除提交失败
	ErrCommit = errors.New("提交失败")
	// ErrPushUnavailable 当前订单状态不允许该下推
	ErrPushUnavailable = errors.New("当前状态不可下推")
	// ErrPushInFlight 同一订单同一目标的下推正在进行
	ErrPushInFlight = errors.New("下推正在进行中，请勿重复提交")
	// ErrNoPendingPreview 需要预览的目标未经预览直接确认
	ErrNoPendingPreview = errors.New("请先预览再确认下推")
	// ErrInvalidViewMode 未知视图模式
	ErrInvalidViewMode = errors.New("未知视图模式")
)

// ValidationError 字段级校验错误
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(message string) *ValidationError {
	return &ValidationError{Message: message}
}
