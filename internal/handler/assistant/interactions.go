package assistant

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"counsel/internal/model/assistant"
	httputil "counsel/internal/pkg/http"
	assistantsvc "counsel/internal/service/assistant"
)

// ListInteractionsRequest 查询交互记录请求
type ListInteractionsRequest struct {
	Kind     string `form:"kind"`      // 交互类型筛选（可选）
	ThreadID string `form:"thread_id"` // 会话筛选（可选）
	Page     int64  `form:"page"`      // 页码（默认1）
	PageSize int64  `form:"page_size"` // 每页数量（默认20）
}

// FeedbackRequest 反馈请求
type FeedbackRequest struct {
	Rating  int    `json:"rating" binding:"omitempty,min=1,max=5"` // 评分 1-5
	Helpful *bool  `json:"helpful,omitempty"`                      // 是否有帮助
	Comment string `json:"comment,omitempty"`                      // 评论
}

// TemplateRequest 模板标记请求
type TemplateRequest struct {
	IsTemplate bool   `json:"is_template"`             // 是否设为模板
	Name       string `json:"template_name,omitempty"` // 模板名称
}

// ListInteractions 查询交互记录
// @Summary      查询交互记录
// @Tags         对话助手
// @Produce      json
// @Security     BearerAuth
// @Param        kind       query     string  false  "交互类型"
// @Param        thread_id  query     string  false  "会话ID"
// @Param        page       query     int     false  "页码（默认1）"
// @Param        page_size  query     int     false  "每页数量（默认20，最大100）"
// @Success      200        {object}  map[string]interface{}  "成功响应"
// @Failure      400        {object}  ErrorResponse  "请求参数错误"
// @Router       /api/v1/assistant/interactions [get]
func (h *Handler) ListInteractions(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	var req ListInteractionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}

	page, err := h.assistantService.ListInteractions(c.Request.Context(), owner, assistantsvc.InteractionQuery{
		Kind:     assistant.Kind(req.Kind),
		ThreadID: req.ThreadID,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	httputil.OK(c, page)
}

// GetInteraction 获取交互记录
// @Summary      获取交互记录
// @Tags         对话助手
// @Produce      json
// @Security     BearerAuth
// @Param        interaction_id  path      string  true  "交互记录ID"
// @Success      200             {object}  map[string]interface{}  "成功响应"
// @Failure      404             {object}  ErrorResponse  "记录不存在"
// @Router       /api/v1/assistant/interactions/{interaction_id} [get]
func (h *Handler) GetInteraction(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	it, err := h.assistantService.GetInteraction(c.Request.Context(), owner, c.Param("interaction_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	httputil.OK(c, it)
}

// UpdateFeedback 提交反馈
// @Summary      提交反馈
// @Tags         对话助手
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        interaction_id  path      string           true  "交互记录ID"
// @Param        request         body      FeedbackRequest  true  "反馈"
// @Success      200             {object}  map[string]interface{}  "成功响应"
// @Failure      400             {object}  ErrorResponse  "请求参数错误"
// @Failure      404             {object}  ErrorResponse  "记录不存在"
// @Router       /api/v1/assistant/interactions/{interaction_id}/feedback [patch]
func (h *Handler) UpdateFeedback(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	it, err := h.assistantService.SubmitFeedback(c.Request.Context(), owner, c.Param("interaction_id"), assistantsvc.FeedbackInput{
		Rating:  req.Rating,
		Helpful: req.Helpful,
		Comment: req.Comment,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	httputil.OK(c, it)
}

// UpdateTemplate 设置模板标记
// @Summary      设置模板标记
// @Tags         对话助手
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        interaction_id  path      string           true  "交互记录ID"
// @Param        request         body      TemplateRequest  true  "模板标记"
// @Success      200             {object}  map[string]interface{}  "成功响应"
// @Failure      404             {object}  ErrorResponse  "记录不存在"
// @Router       /api/v1/assistant/interactions/{interaction_id}/template [patch]
func (h *Handler) UpdateTemplate(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	it, err := h.assistantService.MarkTemplate(c.Request.Context(), owner, c.Param("interaction_id"), req.IsTemplate, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	httputil.OK(c, it)
}

// DeleteInteraction 删除交互记录
// @Summary      删除交互记录
// @Tags         对话助手
// @Produce      json
// @Security     BearerAuth
// @Param        interaction_id  path      string  true  "交互记录ID"
// @Success      200             {object}  map[string]interface{}  "成功响应"
// @Failure      404             {object}  ErrorResponse  "记录不存在"
// @Router       /api/v1/assistant/interactions/{interaction_id} [delete]
func (h *Handler) DeleteInteraction(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	if err := h.assistantService.DeleteInteraction(c.Request.Context(), owner, c.Param("interaction_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "Interaction deleted",
	})
}

// GetQuota 查询 AI 用量
// @Summary      查询 AI 用量
// @Description  返回已用次数、上限（0 表示不限）和下次重置时间
// @Tags         对话助手
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}  "成功响应"
// @Router       /api/v1/assistant/quota [get]
func (h *Handler) GetQuota(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	usage, err := h.assistantService.GetQuota(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	httputil.OK(c, usage)
}
