package assistant

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"counsel/internal/model/assistant"
	assistantsvc "counsel/internal/service/assistant"
)

// SubmitTurnRequest 提交一轮对话请求
type SubmitTurnRequest struct {
	Kind                  string   `json:"kind"`                              // 交互类型（默认 chat）
	Prompt                string   `json:"prompt" binding:"required"`         // 提问内容
	ThreadID              string   `json:"thread_id,omitempty"`               // 会话ID，为空时新建会话
	DocumentIDs           []string `json:"document_ids,omitempty"`            // 附加文档
	Model                 string   `json:"model,omitempty"`                   // 指定模型（别名或模型名）
	CaseID                string   `json:"case_id,omitempty"`                 // 关联案件
	Notes                 string   `json:"notes,omitempty"`                   // 备注
	PreviousInteractionID string   `json:"previous_interaction_id,omitempty"` // 关联的上一条交互记录
}

// SubmitTurnResponseData 提交一轮对话响应数据
type SubmitTurnResponseData struct {
	Thread        ThreadDetail           `json:"thread"`         // 会话
	Interaction   *assistant.Interaction `json:"interaction"`    // 本轮交互记录
	ThreadCreated bool                   `json:"thread_created"` // 是否新建了会话
	QuotaConsumed bool                   `json:"quota_consumed"` // 本轮是否计入用量
}

// SubmitTurn 提交一轮对话
// @Summary      提交一轮对话
// @Description  校验、配额检查、文档上下文、模型调用、持久化；thread_id 为空时新建会话
// @Tags         对话助手
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      SubmitTurnRequest  true  "对话请求"
// @Success      200      {object}  map[string]interface{}  "成功响应"
// @Failure      400      {object}  ErrorResponse  "请求参数错误"
// @Failure      404      {object}  ErrorResponse  "会话不存在"
// @Failure      429      {object}  ErrorResponse  "配额已用完"
// @Failure      502      {object}  ErrorResponse  "模型调用失败"
// @Failure      503      {object}  ErrorResponse  "模型未配置"
// @Failure      504      {object}  ErrorResponse  "模型调用超时"
// @Router       /api/v1/assistant/turns [post]
func (h *Handler) SubmitTurn(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	var req SubmitTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.assistantService.SubmitTurn(c.Request.Context(), owner, &assistantsvc.TurnRequest{
		Kind:                  assistant.Kind(req.Kind),
		Prompt:                req.Prompt,
		ThreadID:              req.ThreadID,
		DocumentIDs:           req.DocumentIDs,
		Model:                 req.Model,
		CaseID:                req.CaseID,
		Notes:                 req.Notes,
		PreviousInteractionID: req.PreviousInteractionID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data": SubmitTurnResponseData{
			Thread:        toThreadDetail(result.Thread),
			Interaction:   result.Interaction,
			ThreadCreated: result.ThreadCreated,
			QuotaConsumed: result.QuotaConsumed,
		},
	})
}
