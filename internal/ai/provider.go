package ai

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Provider 模型调用传输层
// 每次调用指定一个具体模型；失败时返回的错误交给 Classify 归类
type Provider interface {
	Generate(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)
}

// ProviderRequest 单次模型调用请求
type ProviderRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// ProviderResponse 单次模型调用结果
type ProviderResponse struct {
	Text  string
	Usage *TokenUsage // 供应商返回的原始用量，可能为空
}

// TokenUsage 供应商返回的 token 用量
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens" bson:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" bson:"completion_tokens"`
	TotalTokens      int `json:"total_tokens" bson:"total_tokens"`
}

// EinoProvider 基于 Eino ChatModel 的传输层（openai / azure / ark）
type EinoProvider struct {
	chatModel model.BaseChatModel
}

// NewEinoProvider 创建基于 Eino 的传输层
func NewEinoProvider(chatModel model.BaseChatModel) *EinoProvider {
	return &EinoProvider{chatModel: chatModel}
}

// Generate 调用 ChatModel 生成回复
func (p *EinoProvider) Generate(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
	if p.chatModel == nil {
		return nil, ErrProviderNotConfigured
	}

	messages := make([]*schema.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, schema.SystemMessage(req.System))
	}
	messages = append(messages, schema.UserMessage(req.Prompt))

	opts := []model.Option{model.WithModel(req.Model)}
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(req.Temperature)))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.TopP > 0 {
		opts = append(opts, model.WithTopP(float32(req.TopP)))
	}

	resp, err := p.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Content == "" {
		return nil, NewProviderError(ErrorKindServer, req.Model, errors.New("empty response from chat model"))
	}

	out := &ProviderResponse{Text: resp.Content}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		out.Usage = &TokenUsage{
			PromptTokens:     resp.ResponseMeta.Usage.PromptTokens,
			CompletionTokens: resp.ResponseMeta.Usage.CompletionTokens,
			TotalTokens:      resp.ResponseMeta.Usage.TotalTokens,
		}
	}
	return out, nil
}
