package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	. "github.com/smartystreets/goconvey/convey"

	"counsel/internal/config"
)

func TestInit(t *testing.T) {
	Convey("Init 按配置设置全局日志", t, func() {
		defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

		Convey("非法级别回落到 info", func() {
			So(Init(&config.LogConfig{Level: "verbose", Format: "json"}), ShouldBeNil)
			So(zerolog.GlobalLevel(), ShouldEqual, zerolog.InfoLevel)
		})

		Convey("文件输出写入指定路径", func() {
			path := filepath.Join(t.TempDir(), "counsel.log")
			So(Init(&config.LogConfig{Level: "debug", Format: "json", Output: "file", FilePath: path}), ShouldBeNil)
			So(zerolog.GlobalLevel(), ShouldEqual, zerolog.DebugLevel)

			log.Info().Msg("hello")
			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, "hello")
		})
	})
}
