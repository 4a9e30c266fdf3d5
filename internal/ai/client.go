package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"counsel/internal/ai/component"
	"counsel/internal/config"
)

// Client AI 能力层客户端
// 职责: 解析候选模型、调用传输层、按回退协议切换模型、返回统一结果
type Client struct {
	provider    Provider
	model       string
	fallbacks   []string
	allowed     map[string]bool
	aliases     map[string]string
	callTimeout time.Duration
	options     config.AIOptionsConfig
}

// Result 统一的模型调用结果
type Result struct {
	Text            string
	ModelUsed       string
	EstimatedTokens int           // 按字符数估算，非计费口径
	Usage           *TokenUsage   // 供应商原始用量
	Latency         time.Duration // 成功那次调用的耗时
}

// Request 一次生成请求
type Request struct {
	Prompt        string
	System        string
	Enrichment    *Enrichment
	ModelOverride string
}

// NewClient 使用给定传输层创建客户端
// provider 为 nil 时所有调用返回 ErrProviderNotConfigured
func NewClient(cfg *config.AIConfig, provider Provider) *Client {
	c := &Client{
		provider:    provider,
		model:       strings.TrimSpace(cfg.Model),
		callTimeout: cfg.CallTimeout,
		options:     cfg.Options,
		aliases:     make(map[string]string, len(cfg.ModelAliases)),
	}
	for _, m := range cfg.FallbackModels {
		if m = strings.TrimSpace(m); m != "" {
			c.fallbacks = append(c.fallbacks, m)
		}
	}
	if len(cfg.AllowedModels) > 0 {
		c.allowed = make(map[string]bool, len(cfg.AllowedModels))
		for _, m := range cfg.AllowedModels {
			c.allowed[strings.TrimSpace(m)] = true
		}
	}
	for alias, target := range cfg.ModelAliases {
		c.aliases[strings.ToLower(strings.TrimSpace(alias))] = strings.TrimSpace(target)
	}
	return c
}

// NewClientFromConfig 按配置创建传输层和客户端
// 未配置 API Key 时返回不可用的客户端，调用时报 ErrProviderNotConfigured
func NewClientFromConfig(ctx context.Context, cfg *config.AIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		log.Warn().Msg("AI API key not configured, assistant calls will fail with provider_config")
		return NewClient(cfg, nil), nil
	}

	var provider Provider
	switch cfg.Provider {
	case "ark-native":
		p, err := NewArkProvider(cfg)
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		chatModel, err := component.NewChatModel(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		provider = NewEinoProvider(chatModel)
	}

	return NewClient(cfg, provider), nil
}

// ResolveModel 解析客户端指定的模型，无法解析时返回空字符串
func (c *Client) ResolveModel(override string) string {
	name := strings.TrimSpace(override)
	if name == "" {
		return ""
	}
	if target, ok := c.aliases[strings.ToLower(name)]; ok && target != "" {
		name = target
	}
	if c.allowed != nil && !c.allowed[name] {
		return ""
	}
	return name
}

// Candidates 返回有序去重的候选模型：指定模型、默认模型、回退模型
func (c *Client) Candidates(override string) []string {
	if c.provider == nil {
		return nil
	}

	list := make([]string, 0, 2+len(c.fallbacks))
	seen := make(map[string]bool, cap(list))
	add := func(m string) {
		if m == "" || seen[m] {
			return
		}
		seen[m] = true
		list = append(list, m)
	}

	add(c.ResolveModel(override))
	add(c.model)
	for _, m := range c.fallbacks {
		add(m)
	}
	return list
}

// Invoke 按候选顺序调用模型
// 模型不存在或请求格式错误时尝试下一个候选；其他错误立即返回；
// 全部失败时返回最后一个错误
func (c *Client) Invoke(ctx context.Context, req *Request) (*Result, error) {
	candidates := c.Candidates(req.ModelOverride)
	if len(candidates) == 0 {
		return nil, ErrProviderNotConfigured
	}

	prompt := BuildPrompt(req.Prompt, req.Enrichment)

	var lastErr *ProviderError
	for i, candidate := range candidates {
		logger := log.With().Str("model", candidate).Int("attempt", i+1).Logger()

		start := time.Now()
		resp, err := c.call(ctx, &ProviderRequest{
			Model:       candidate,
			System:      req.System,
			Prompt:      prompt,
			Temperature: c.options.Temperature,
			MaxTokens:   c.options.MaxTokens,
			TopP:        c.options.TopP,
		})
		if err == nil {
			latency := time.Since(start)
			logger.Debug().Dur("latency", latency).Msg("ai call succeeded")
			return &Result{
				Text:            resp.Text,
				ModelUsed:       candidate,
				EstimatedTokens: EstimateExchange(prompt, resp.Text),
				Usage:           resp.Usage,
				Latency:         latency,
			}, nil
		}

		lastErr = Classify(err, candidate)
		if !lastErr.Kind.FallbackAllowed() {
			logger.Warn().Err(err).Str("kind", string(lastErr.Kind)).Msg("ai call failed, not falling back")
			return nil, lastErr
		}
		logger.Warn().Err(err).Str("kind", string(lastErr.Kind)).Msg("ai call failed, trying next candidate")
	}

	return nil, lastErr
}

// GenerateWithContext 拼接上下文后调用模型
func (c *Client) GenerateWithContext(ctx context.Context, prompt string, enrichment *Enrichment, modelOverride string) (*Result, error) {
	return c.Invoke(ctx, &Request{
		Prompt:        prompt,
		Enrichment:    enrichment,
		ModelOverride: modelOverride,
	})
}

// call 单次调用，带超时
func (c *Client) call(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	return c.provider.Generate(ctx, req)
}
