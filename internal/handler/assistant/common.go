package assistant

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"counsel/internal/model/assistant"
	"counsel/internal/pkg/ctxutil"
	httputil "counsel/internal/pkg/http"
	assistantsvc "counsel/internal/service/assistant"
)

// ErrorResponse 错误响应类型别名（使用共用的 http.ErrorResponse）
type ErrorResponse = httputil.ErrorResponse

// ThreadSummary 会话列表项 DTO
type ThreadSummary struct {
	ID                  string   `json:"id"`                              // 会话ID
	Title               string   `json:"title"`                           // 标题
	Kind                string   `json:"kind"`                            // 交互类型
	Model               string   `json:"model,omitempty"`                 // 最近使用的模型
	CaseID              string   `json:"case_id,omitempty"`               // 关联案件
	DocumentIDs         []string `json:"document_ids,omitempty"`          // 关联文档
	TurnCount           int      `json:"turn_count"`                      // 累计轮数
	LastPrompt          string   `json:"last_prompt,omitempty"`           // 最后一次提问
	LastResponsePreview string   `json:"last_response_preview,omitempty"` // 最后一次回复预览
	LastMessageAt       string   `json:"last_message_at,omitempty"`       // 最后消息时间
	CreatedAt           string   `json:"created_at"`                      // 创建时间
	UpdatedAt           string   `json:"updated_at"`                      // 更新时间
}

// ThreadDetail 会话详情 DTO
type ThreadDetail struct {
	ThreadSummary
	Turns []assistant.Turn `json:"turns"` // 最近的消息窗口
}

// toThreadSummary 将 Thread 实体转换为 ThreadSummary DTO
func toThreadSummary(t *assistant.Thread) ThreadSummary {
	s := ThreadSummary{
		ID:                  t.ID,
		Title:               t.Title,
		Kind:                t.Kind.String(),
		Model:               t.Model,
		CaseID:              t.CaseID,
		DocumentIDs:         t.DocumentIDs,
		TurnCount:           t.TurnCount,
		LastPrompt:          t.LastPrompt,
		LastResponsePreview: t.LastResponsePreview,
		CreatedAt:           t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           t.UpdatedAt.Format(time.RFC3339),
	}
	if t.LastMessageAt != nil {
		s.LastMessageAt = t.LastMessageAt.Format(time.RFC3339)
	}
	return s
}

// toThreadDetail 将 Thread 实体转换为 ThreadDetail DTO
func toThreadDetail(t *assistant.Thread) ThreadDetail {
	turns := t.Turns
	if turns == nil {
		turns = []assistant.Turn{}
	}
	return ThreadDetail{ThreadSummary: toThreadSummary(t), Turns: turns}
}

// currentOwner 读取认证中间件注入的身份，缺失时直接返回 401
func currentOwner(c *gin.Context) (ctxutil.Owner, bool) {
	owner, ok := ctxutil.GetOwner(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    40101,
			Message: "未授权",
		})
		return ctxutil.Owner{}, false
	}
	return owner, true
}

// bindError 请求参数错误
func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    40001,
		Message: "Invalid request body",
		Detail:  err.Error(),
	})
}

// writeError 按服务层错误类别写入响应
func writeError(c *gin.Context, err error) {
	status, code := statusOf(assistantsvc.KindOf(err))

	message := "服务器内部错误"
	var svcErr *assistantsvc.Error
	if errors.As(err, &svcErr) {
		message = svcErr.Message
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("assistant request failed")
	}

	resp := ErrorResponse{Code: code, Message: message}
	if status >= http.StatusInternalServerError && svcErr != nil && svcErr.Err != nil {
		resp.Detail = svcErr.Err.Error()
	}
	c.JSON(status, resp)
}

// statusOf 错误类别对应的 HTTP 状态码和业务错误码
func statusOf(kind assistantsvc.ErrorKind) (int, int) {
	switch kind {
	case assistantsvc.KindInvalidInput:
		return http.StatusBadRequest, 40002
	case assistantsvc.KindNotFound:
		return http.StatusNotFound, 40401
	case assistantsvc.KindQuotaExceeded:
		return http.StatusTooManyRequests, 42901
	case assistantsvc.KindProviderConfig:
		return http.StatusServiceUnavailable, 50301
	case assistantsvc.KindProviderCall:
		return http.StatusBadGateway, 50201
	case assistantsvc.KindTimeout:
		return http.StatusGatewayTimeout, 50401
	default:
		return http.StatusInternalServerError, 50001
	}
}
