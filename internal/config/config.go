package config

import (
	"errors"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	AI        AIConfig        `mapstructure:"ai"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Log       LogConfig       `mapstructure:"log"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AIConfig AI 服务配置
type AIConfig struct {
	Provider string `mapstructure:"provider"` // openai, azure, ark, ark-native
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"` // 默认模型
	BaseURL  string `mapstructure:"base_url"`

	FallbackModels []string          `mapstructure:"fallback_models"` // 默认模型失败后依次尝试的模型
	AllowedModels  []string          `mapstructure:"allowed_models"`  // 允许客户端指定的模型（为空则不限制）
	ModelAliases   map[string]string `mapstructure:"model_aliases"`   // 模型别名 -> 实际模型名
	CallTimeout    time.Duration     `mapstructure:"call_timeout"`    // 单次模型调用超时

	Options AIOptionsConfig `mapstructure:"options"`
}

// AIOptionsConfig AI 模型参数
type AIOptionsConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float64 `mapstructure:"top_p"`
}

// AssistantConfig 对话助手配置
type AssistantConfig struct {
	MaxTurns        int           `mapstructure:"max_turns"`         // 会话保留的最大消息条数
	TitleLength     int           `mapstructure:"title_length"`      // 标题最大字符数
	PreviewLength   int           `mapstructure:"preview_length"`    // 最后回复预览长度
	HistoryPairs    int           `mapstructure:"history_pairs"`     // 上下文中携带的历史轮数
	SnippetLength   int           `mapstructure:"snippet_length"`    // 文档片段最大字符数
	AppendRetries   int           `mapstructure:"append_retries"`    // 版本冲突时的重试次数
	ThreadListLimit int64         `mapstructure:"thread_list_limit"` // 会话列表默认条数
	ThreadCacheTTL  time.Duration `mapstructure:"thread_cache_ttl"`  // 会话详情缓存时间
}

// QuotaConfig 用量配额配置
type QuotaConfig struct {
	DefaultLimit int64         `mapstructure:"default_limit"` // 0 表示不限
	ResetPeriod  time.Duration `mapstructure:"reset_period"`  // 计数重置周期，0 表示不重置
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 认证配置
// Token 由外部身份服务签发，这里只做校验
type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`          // JWT密钥
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"` // Access Token过期时间（测试签发用）
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	if c.Assistant.MaxTurns <= 0 {
		return errors.New("assistant.max_turns must be positive")
	}
	if c.Assistant.HistoryPairs < 0 || c.Assistant.AppendRetries < 0 {
		return errors.New("assistant limits must not be negative")
	}
	if c.Quota.DefaultLimit < 0 {
		return errors.New("quota.default_limit must not be negative")
	}
	if c.AI.CallTimeout < 0 {
		return errors.New("ai.call_timeout must not be negative")
	}

	return nil
}

// WithDefaults 填充对话助手的缺省值（用于未经 viper 加载的场景，如测试）
func (c AssistantConfig) WithDefaults() AssistantConfig {
	if c.MaxTurns <= 0 {
		c.MaxTurns = 200
	}
	if c.TitleLength <= 0 {
		c.TitleLength = 60
	}
	if c.PreviewLength <= 0 {
		c.PreviewLength = 200
	}
	if c.HistoryPairs <= 0 {
		c.HistoryPairs = 5
	}
	if c.SnippetLength <= 0 {
		c.SnippetLength = 2000
	}
	if c.AppendRetries <= 0 {
		c.AppendRetries = 5
	}
	if c.ThreadListLimit <= 0 {
		c.ThreadListLimit = 50
	}
	return c
}
