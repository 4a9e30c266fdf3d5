package jwt

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestJWT(t *testing.T) {
	Convey("JWT 签发与校验", t, func() {
		j := NewJWT("secret", time.Hour)

		Convey("合法 token 解析出用户和律所", func() {
			token, err := j.GenerateToken("u1", "f1", "associate")
			So(err, ShouldBeNil)

			claims, err := j.ValidateToken(token)
			So(err, ShouldBeNil)
			So(claims.UserID, ShouldEqual, "u1")
			So(claims.FirmID, ShouldEqual, "f1")
		})

		Convey("过期 token 返回 ErrExpiredToken", func() {
			expired := NewJWT("secret", -time.Minute)
			token, _ := expired.GenerateToken("u1", "f1", "")
			_, err := j.ValidateToken(token)
			So(err, ShouldEqual, ErrExpiredToken)
		})

		Convey("错误密钥签名返回 ErrInvalidToken", func() {
			token, _ := NewJWT("other", time.Hour).GenerateToken("u1", "f1", "")
			_, err := j.ValidateToken(token)
			So(err, ShouldEqual, ErrInvalidToken)
		})

		Convey("缺少律所返回 ErrMissingFirm", func() {
			token, _ := j.GenerateToken("u1", "", "")
			_, err := j.ValidateToken(token)
			So(err, ShouldEqual, ErrMissingFirm)
		})
	})
}
