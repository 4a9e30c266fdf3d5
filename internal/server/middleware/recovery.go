package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	httputil "counsel/internal/pkg/http"
)

// Recovery 异常恢复中间件
// panic 时记录调用栈和调用者，返回统一的错误响应，request_id 供排查
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString(RequestIDKey)
				event := log.Error().
					Interface("error", err).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Str("request_id", requestID).
					Bytes("stack", debug.Stack())
				withCaller(event, c)
				event.Msg("panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError,
					httputil.NewErrorResponse(50000, "Internal Server Error", "request_id: "+requestID))
			}
		}()
		c.Next()
	}
}
