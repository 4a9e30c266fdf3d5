package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	. "github.com/smartystreets/goconvey/convey"

	"counsel/internal/pkg/ctxutil"
	"counsel/internal/pkg/jwt"
)

func TestAuth(t *testing.T) {
	Convey("Auth 中间件", t, func() {
		gin.SetMode(gin.TestMode)
		j := jwt.NewJWT("test-secret", time.Hour)

		var got ctxutil.Owner
		r := gin.New()
		r.Use(RequestID(), Auth(j))
		r.GET("/me", func(c *gin.Context) {
			got, _ = ctxutil.GetOwner(c.Request.Context())
			c.Status(http.StatusOK)
		})

		call := func(header string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			return w
		}

		Convey("有效 Token 注入用户和律所", func() {
			token, err := j.GenerateToken("u-1", "f-1", "member")
			So(err, ShouldBeNil)
			w := call("Bearer " + token)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(got, ShouldResemble, ctxutil.Owner{UserID: "u-1", FirmID: "f-1"})
			So(w.Header().Get(RequestIDHeader), ShouldNotBeEmpty)
		})

		Convey("缺少 Token", func() {
			So(call("").Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("格式错误", func() {
			So(call("Token abc").Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("签名不匹配", func() {
			other := jwt.NewJWT("other-secret", time.Hour)
			token, err := other.GenerateToken("u-1", "f-1", "member")
			So(err, ShouldBeNil)
			So(call("Bearer "+token).Code, ShouldEqual, http.StatusUnauthorized)
		})
	})
}

func TestCORS(t *testing.T) {
	Convey("CORS 预检请求直接返回", t, func() {
		gin.SetMode(gin.TestMode)
		r := gin.New()
		r.Use(CORS())
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodOptions, "/x", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		So(w.Code, ShouldEqual, http.StatusNoContent)
		So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
	})
}

func TestRecoveryAndLogger(t *testing.T) {
	Convey("Recovery 与 Logger 记录调用者和会话", t, func() {
		gin.SetMode(gin.TestMode)
		var buf bytes.Buffer
		saved := log.Logger
		log.Logger = zerolog.New(&buf)
		defer func() { log.Logger = saved }()

		r := gin.New()
		r.Use(Recovery(), RequestID(), Logger())
		r.Use(func(c *gin.Context) {
			c.Set("user_id", "u-1")
			c.Set("firm_id", "f-1")
			c.Next()
		})
		r.GET("/threads/:thread_id", func(c *gin.Context) {
			panic("boom")
		})

		req := httptest.NewRequest(http.MethodGet, "/threads/t-42", nil)
		req.Header.Set(RequestIDHeader, "req-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		So(w.Code, ShouldEqual, http.StatusInternalServerError)
		var body map[string]interface{}
		So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
		So(body["code"], ShouldEqual, float64(50000))
		So(body["detail"], ShouldEqual, "request_id: req-1")

		logs := buf.String()
		So(logs, ShouldContainSubstring, `"message":"panic recovered"`)
		So(logs, ShouldContainSubstring, `"thread_id":"t-42"`)
		So(logs, ShouldContainSubstring, `"firm_id":"f-1"`)
		So(logs, ShouldContainSubstring, `"request_id":"req-1"`)
	})
}
