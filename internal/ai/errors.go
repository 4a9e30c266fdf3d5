package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
)

// ErrProviderNotConfigured 没有可用的模型候选（未配置 API Key 或模型）
var ErrProviderNotConfigured = errors.New("ai provider not configured")

// ErrorKind 模型调用失败的类别
type ErrorKind string

const (
	ErrorKindUnauthorized  ErrorKind = "unauthorized"
	ErrorKindModelNotFound ErrorKind = "model_not_found"
	ErrorKindBadRequest    ErrorKind = "bad_request"
	ErrorKindRateLimited   ErrorKind = "rate_limited"
	ErrorKindTransient     ErrorKind = "transient"
	ErrorKindServer        ErrorKind = "server_error"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindCanceled      ErrorKind = "canceled"
)

// FallbackAllowed 只有模型不存在和请求格式错误可以换下一个模型重试，
// 其余错误与模型无关，直接返回
func (k ErrorKind) FallbackAllowed() bool {
	return k == ErrorKindModelNotFound || k == ErrorKindBadRequest
}

// ProviderError 模型调用错误
type ProviderError struct {
	Kind       ErrorKind
	Model      string
	StatusCode int
	Err        error
}

// Error 实现 error 接口
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ai provider %s (model=%s, status=%d): %v", e.Kind, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ai provider %s (model=%s): %v", e.Kind, e.Model, e.Err)
}

// Unwrap 返回底层错误
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError 创建模型调用错误
func NewProviderError(kind ErrorKind, model string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Model: model, Err: err}
}

var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

// Classify 将 SDK 返回的错误归类
func Classify(err error, model string) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Model == "" {
			pe.Model = model
		}
		return pe
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(ErrorKindTimeout, model, err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ErrorKindCanceled, model, err)
	}

	status := statusCodeOf(err)
	kind := kindOf(status, err)
	return &ProviderError{Kind: kind, Model: model, StatusCode: status, Err: err}
}

// statusCodeOf 提取 HTTP 状态码
// 优先使用 Ark SDK 的结构化错误，其次解析 openai 兼容客户端的错误文本
func statusCodeOf(err error) int {
	var apiErr *arkmodel.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode
	}
	var reqErr *arkmodel.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode
	}

	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}

func kindOf(status int, err error) ErrorKind {
	msg := strings.ToLower(err.Error())
	if mentionsUnknownModel(msg) {
		return ErrorKindModelNotFound
	}

	switch {
	case status == 401 || status == 403:
		return ErrorKindUnauthorized
	case status == 404:
		return ErrorKindModelNotFound
	case status == 400 || status == 422:
		return ErrorKindBadRequest
	case status == 408:
		return ErrorKindTimeout
	case status == 429:
		return ErrorKindRateLimited
	case status == 502 || status == 503 || status == 504:
		return ErrorKindTransient
	case status >= 500:
		return ErrorKindServer
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorKindTimeout
		}
		return ErrorKindTransient
	}
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused") || strings.Contains(msg, "eof") {
		return ErrorKindTransient
	}
	return ErrorKindServer
}

func mentionsUnknownModel(msg string) bool {
	if strings.Contains(msg, "model_not_found") || strings.Contains(msg, "invalidendpointormodel") {
		return true
	}
	if !strings.Contains(msg, "model") {
		return false
	}
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "unsupported model") ||
		strings.Contains(msg, "unknown model")
}
