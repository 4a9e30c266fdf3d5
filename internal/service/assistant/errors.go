package assistant

import (
	"errors"
	"fmt"

	"counsel/internal/ai"
)

// ErrorKind 服务层错误类别，对调用方稳定
type ErrorKind string

const (
	KindInvalidInput   ErrorKind = "invalid_input"
	KindNotFound       ErrorKind = "not_found"
	KindQuotaExceeded  ErrorKind = "quota_exceeded"
	KindProviderConfig ErrorKind = "provider_config"
	KindProviderCall   ErrorKind = "provider_call"
	KindTimeout        ErrorKind = "timeout"
	KindPersistence    ErrorKind = "persistence"
)

// Error 服务层错误
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

var (
	ErrEmptyPrompt     = newError(KindInvalidInput, "提问内容不能为空", nil)
	ErrInvalidKind     = newError(KindInvalidInput, "不支持的交互类型", nil)
	ErrInvalidThreadID = newError(KindInvalidInput, "会话ID格式错误", nil)
	ErrInvalidID       = newError(KindInvalidInput, "ID格式错误", nil)
	ErrEmptyTitle      = newError(KindInvalidInput, "标题不能为空", nil)
	ErrInvalidRating   = newError(KindInvalidInput, "评分必须在1到5之间", nil)
	ErrThreadNotFound  = newError(KindNotFound, "会话不存在", nil)
	ErrRecordNotFound  = newError(KindNotFound, "交互记录不存在", nil)
	ErrQuotaExceeded   = newError(KindQuotaExceeded, "AI 调用次数已用完", nil)
	ErrUnauthenticated = newError(KindInvalidInput, "缺少用户或律所信息", nil)
)

// KindOf 返回错误类别，非服务层错误一律视为持久化错误
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// persistenceError 包装存储层错误
func persistenceError(message string, err error) *Error {
	return newError(KindPersistence, message, err)
}

// fromAIError 将 AI 层错误转换为服务层错误
func fromAIError(err error) *Error {
	if errors.Is(err, ai.ErrProviderNotConfigured) {
		return newError(KindProviderConfig, "AI 服务未配置", err)
	}
	var pe *ai.ProviderError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case ai.ErrorKindTimeout, ai.ErrorKindCanceled:
			return newError(KindTimeout, "AI 服务响应超时", err)
		}
	}
	return newError(KindProviderCall, "AI 服务调用失败", err)
}
