package assistant

import (
	assistantsvc "counsel/internal/service/assistant"
)

// Handler 对话助手处理器
// 所有 assistant 相关的 Handler 方法都通过这个结构体访问 Service
type Handler struct {
	assistantService assistantsvc.AssistantService
}

// NewHandler 创建对话助手处理器
func NewHandler(assistantService assistantsvc.AssistantService) *Handler {
	return &Handler{
		assistantService: assistantService,
	}
}
