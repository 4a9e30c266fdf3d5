package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
)

func TestClassify(t *testing.T) {
	Convey("Classify", t, func() {
		Convey("nil", func() {
			So(Classify(nil, "m"), ShouldBeNil)
		})

		Convey("按状态码归类", func() {
			cases := map[int]ErrorKind{
				401: ErrorKindUnauthorized,
				403: ErrorKindUnauthorized,
				404: ErrorKindModelNotFound,
				400: ErrorKindBadRequest,
				422: ErrorKindBadRequest,
				408: ErrorKindTimeout,
				429: ErrorKindRateLimited,
				503: ErrorKindTransient,
				500: ErrorKindServer,
			}
			for status, kind := range cases {
				err := fmt.Errorf("error, status code: %d, message: boom", status)
				pe := Classify(err, "m")
				So(pe.Kind, ShouldEqual, kind)
				So(pe.StatusCode, ShouldEqual, status)
				So(pe.Model, ShouldEqual, "m")
			}
		})

		Convey("Ark SDK 结构化错误", func() {
			err := &arkmodel.APIError{HTTPStatusCode: 429, Message: "rate limited"}
			So(Classify(err, "ep-1").Kind, ShouldEqual, ErrorKindRateLimited)
		})

		Convey("错误文本提到模型不存在", func() {
			err := errors.New("The model `gpt-9` does not exist")
			So(Classify(err, "gpt-9").Kind, ShouldEqual, ErrorKindModelNotFound)
		})

		Convey("上下文错误", func() {
			So(Classify(context.DeadlineExceeded, "m").Kind, ShouldEqual, ErrorKindTimeout)
			So(Classify(fmt.Errorf("wrap: %w", context.Canceled), "m").Kind, ShouldEqual, ErrorKindCanceled)
		})

		Convey("连接错误视为暂时性错误", func() {
			So(Classify(errors.New("read: connection reset by peer"), "m").Kind, ShouldEqual, ErrorKindTransient)
		})

		Convey("已归类的错误原样返回", func() {
			orig := NewProviderError(ErrorKindServer, "", errors.New("empty"))
			pe := Classify(fmt.Errorf("wrap: %w", orig), "m")
			So(pe, ShouldEqual, orig)
			So(pe.Model, ShouldEqual, "m")
		})
	})

	Convey("FallbackAllowed", t, func() {
		So(ErrorKindModelNotFound.FallbackAllowed(), ShouldBeTrue)
		So(ErrorKindBadRequest.FallbackAllowed(), ShouldBeTrue)
		So(ErrorKindRateLimited.FallbackAllowed(), ShouldBeFalse)
		So(ErrorKindUnauthorized.FallbackAllowed(), ShouldBeFalse)
		So(ErrorKindTimeout.FallbackAllowed(), ShouldBeFalse)
	})
}
