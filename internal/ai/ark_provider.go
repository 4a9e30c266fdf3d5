package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"

	"counsel/internal/config"
)

const defaultArkBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// ArkProvider 直接使用火山引擎 Ark SDK 的传输层（provider: ark-native）
// 与 Eino 的 ark 组件相比，错误保留了 SDK 的结构化状态码
type ArkProvider struct {
	client *arkruntime.Client
}

// NewArkProvider 创建 Ark 传输层
func NewArkProvider(cfg *config.AIConfig) (*ArkProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ark API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultArkBaseURL
	}

	client := arkruntime.NewClientWithApiKey(cfg.APIKey, arkruntime.WithBaseUrl(baseURL))
	return &ArkProvider{client: client}, nil
}

// Generate 调用 Ark ChatCompletion 接口
func (p *ArkProvider) Generate(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
	input := &arkmodel.ChatCompletionRequest{
		Model:    req.Model,
		Messages: arkMessages(req.System, req.Prompt),
	}
	if req.MaxTokens > 0 {
		input.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		input.Temperature = float32(req.Temperature)
	}
	if req.TopP > 0 {
		input.TopP = float32(req.TopP)
	}

	output, err := p.client.CreateChatCompletion(ctx, input)
	if err != nil {
		return nil, err
	}

	var text string
	if len(output.Choices) > 0 {
		content := output.Choices[0].Message.Content
		if content != nil && content.StringValue != nil {
			text = *content.StringValue
		}
	}
	if text == "" {
		return nil, NewProviderError(ErrorKindServer, req.Model, errors.New("no choices in response"))
	}

	return &ProviderResponse{
		Text: text,
		Usage: &TokenUsage{
			PromptTokens:     output.Usage.PromptTokens,
			CompletionTokens: output.Usage.CompletionTokens,
			TotalTokens:      output.Usage.TotalTokens,
		},
	}, nil
}

func arkMessages(system, prompt string) []*arkmodel.ChatCompletionMessage {
	var msgs []*arkmodel.ChatCompletionMessage
	if system != "" {
		msgs = append(msgs, arkMessage("system", system))
	}
	return append(msgs, arkMessage("user", prompt))
}

func arkMessage(role, text string) *arkmodel.ChatCompletionMessage {
	content := text
	return &arkmodel.ChatCompletionMessage{
		Role:    role,
		Content: &arkmodel.ChatCompletionMessageContent{StringValue: &content},
	}
}
