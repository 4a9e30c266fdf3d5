package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger 请求日志中间件
// 除请求本身外，记录调用者（user_id/firm_id）和路径中的会话、交互记录ID，
// 便于按会话追查一轮对话的全部请求
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		level := zerolog.InfoLevel
		switch {
		case status >= 500:
			level = zerolog.ErrorLevel
		case status >= 400:
			level = zerolog.WarnLevel
		}

		event := log.WithLevel(level).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("route", c.FullPath()).
			Str("query", query).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(RequestIDKey)).
			Int("body_size", c.Writer.Size())
		withCaller(event, c)

		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.Msg("HTTP request")
	}
}

// withCaller 追加调用者和资源标识（存在时）
func withCaller(event *zerolog.Event, c *gin.Context) {
	if userID := c.GetString("user_id"); userID != "" {
		event.Str("user_id", userID).Str("firm_id", c.GetString("firm_id"))
	}
	if threadID := c.Param("thread_id"); threadID != "" {
		event.Str("thread_id", threadID)
	}
	if interactionID := c.Param("interaction_id"); interactionID != "" {
		event.Str("interaction_id", interactionID)
	}
}
