package ctxutil

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestOwnerContext(t *testing.T) {
	Convey("Owner 在 context 中往返", t, func() {
		ctx := WithOwner(context.Background(), Owner{UserID: "u1", FirmID: "f1"})
		owner, ok := GetOwner(ctx)
		So(ok, ShouldBeTrue)
		So(owner.UserID, ShouldEqual, "u1")
		So(owner.FirmID, ShouldEqual, "f1")

		Convey("缺少律所的身份视为无效", func() {
			_, ok := GetOwner(WithOwner(context.Background(), Owner{UserID: "u1"}))
			So(ok, ShouldBeFalse)
		})

		Convey("未注入时返回 false", func() {
			_, ok := GetOwner(context.Background())
			So(ok, ShouldBeFalse)
		})
	})
}
