package assistant

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httputil "counsel/internal/pkg/http"
)

// ListThreadsRequest 查询会话列表请求
type ListThreadsRequest struct {
	Limit int64 `form:"limit"` // 返回条数（默认50）
}

// RenameThreadRequest 修改标题请求
type RenameThreadRequest struct {
	Title string `json:"title" binding:"required"` // 新标题
}

// UpdateThreadDocumentsRequest 替换关联文档请求
type UpdateThreadDocumentsRequest struct {
	DocumentIDs []string `json:"document_ids"` // 文档ID列表，空列表表示清空
}

// ListThreads 查询会话列表
// @Summary      查询会话列表
// @Description  按最近消息时间倒序返回未归档会话；查询前会自动迁移历史交互记录
// @Tags         对话助手
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "返回条数（默认50）"
// @Success      200    {object}  map[string]interface{}  "成功响应"
// @Failure      401    {object}  ErrorResponse  "未授权"
// @Failure      500    {object}  ErrorResponse  "服务器内部错误"
// @Router       /api/v1/assistant/threads [get]
func (h *Handler) ListThreads(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	var req ListThreadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}

	threads, err := h.assistantService.ListThreads(c.Request.Context(), owner, req.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	list := make([]ThreadSummary, len(threads))
	for i, t := range threads {
		list[i] = toThreadSummary(t)
	}
	httputil.OK(c, gin.H{
		"threads": list,
		"total":   len(list),
	})
}

// GetThread 获取会话详情
// @Summary      获取会话详情
// @Tags         对话助手
// @Produce      json
// @Security     BearerAuth
// @Param        thread_id  path      string  true  "会话ID"
// @Success      200        {object}  map[string]interface{}  "成功响应"
// @Failure      400        {object}  ErrorResponse  "会话ID格式错误"
// @Failure      404        {object}  ErrorResponse  "会话不存在"
// @Router       /api/v1/assistant/threads/{thread_id} [get]
func (h *Handler) GetThread(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	thread, err := h.assistantService.GetThread(c.Request.Context(), owner, c.Param("thread_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	httputil.OK(c, toThreadDetail(thread))
}

// RenameThread 修改会话标题
// @Summary      修改会话标题
// @Tags         对话助手
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        thread_id  path      string               true  "会话ID"
// @Param        request    body      RenameThreadRequest  true  "新标题"
// @Success      200        {object}  map[string]interface{}  "成功响应"
// @Failure      400        {object}  ErrorResponse  "请求参数错误"
// @Failure      404        {object}  ErrorResponse  "会话不存在"
// @Router       /api/v1/assistant/threads/{thread_id}/title [patch]
func (h *Handler) RenameThread(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	var req RenameThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	thread, err := h.assistantService.RenameThread(c.Request.Context(), owner, c.Param("thread_id"), req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	httputil.OK(c, toThreadSummary(thread))
}

// ArchiveThread 归档会话
// @Summary      归档会话
// @Description  软删除，归档后不再出现在列表中，也不能继续对话
// @Tags         对话助手
// @Produce      json
// @Security     BearerAuth
// @Param        thread_id  path      string  true  "会话ID"
// @Success      200        {object}  map[string]interface{}  "成功响应"
// @Failure      404        {object}  ErrorResponse  "会话不存在"
// @Router       /api/v1/assistant/threads/{thread_id} [delete]
func (h *Handler) ArchiveThread(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	if err := h.assistantService.ArchiveThread(c.Request.Context(), owner, c.Param("thread_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "Thread archived",
	})
}

// UpdateThreadDocuments 替换会话关联的文档
// @Summary      替换会话关联的文档
// @Tags         对话助手
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        thread_id  path      string                        true  "会话ID"
// @Param        request    body      UpdateThreadDocumentsRequest  true  "文档ID列表"
// @Success      200        {object}  map[string]interface{}  "成功响应"
// @Failure      404        {object}  ErrorResponse  "会话不存在"
// @Router       /api/v1/assistant/threads/{thread_id}/documents [put]
func (h *Handler) UpdateThreadDocuments(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	var req UpdateThreadDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	thread, err := h.assistantService.UpdateThreadDocuments(c.Request.Context(), owner, c.Param("thread_id"), req.DocumentIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	httputil.OK(c, toThreadSummary(thread))
}

// RunMigration 迁移历史交互记录
// @Summary      迁移历史交互记录
// @Description  根据历史交互记录重建会话，可重复执行
// @Tags         对话助手
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}  "成功响应"
// @Failure      500  {object}  ErrorResponse  "迁移失败"
// @Router       /api/v1/assistant/migrations [post]
func (h *Handler) RunMigration(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	report, err := h.assistantService.RunLegacyMigration(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	httputil.OK(c, report)
}
