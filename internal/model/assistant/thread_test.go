package assistant

import (
	"fmt"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestThread_AppendTurn(t *testing.T) {
	Convey("AppendTurn 维护消息窗口和摘要字段", t, func() {
		now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		policy := DefaultThreadPolicy
		th := NewThread("t1", "f1", "u1", KindAnalysis, "Summarize the key risks in this MSA.", policy, now)

		Convey("同一交互记录只追加一次", func() {
			meta := TurnMeta{InteractionID: "it-1", Model: "m1", At: now}
			So(th.AppendTurn("q", Response{Content: "a"}, meta, policy), ShouldBeTrue)
			So(th.AppendTurn("q", Response{Content: "a"}, meta, policy), ShouldBeFalse)
			So(th.Turns, ShouldHaveLength, 2)
			So(th.TurnCount, ShouldEqual, 1)
			So(th.Turns[0].InteractionID, ShouldEqual, "it-1")
			So(th.Turns[1].InteractionID, ShouldEqual, "it-1")
			So(th.HasInteraction(""), ShouldBeFalse)
		})

		Convey("首轮追加 user 和 assistant 两条消息", func() {
			th.AppendTurn("Summarize the key risks in this MSA.", Response{Content: "Three risks.", Model: "m1"}, TurnMeta{Model: "m1", At: now}, policy)

			So(th.Title, ShouldEqual, "Summarize the key risks in this MSA.")
			So(len(th.Turns), ShouldEqual, 2)
			So(th.Turns[0].Role, ShouldEqual, RoleUser)
			So(th.Turns[1].Role, ShouldEqual, RoleAssistant)
			So(th.Turns[1].Response.Model, ShouldEqual, "m1")
			So(th.Turns[0].Timestamp, ShouldEqual, th.Turns[1].Timestamp)
			So(th.TurnCount, ShouldEqual, 1)
			So(th.LastPrompt, ShouldEqual, "Summarize the key risks in this MSA.")
			So(th.LastResponsePreview, ShouldEqual, "Three risks.")
			So(*th.LastMessageAt, ShouldEqual, now)
			So(th.Model, ShouldEqual, "m1")
		})

		Convey("未提供模型时保留原模型", func() {
			th.Model = "m0"
			th.AppendTurn("q", Response{Content: "a"}, TurnMeta{At: now}, policy)
			So(th.Model, ShouldEqual, "m0")
		})

		Convey("占位标题在有提问时重新生成", func() {
			blank := NewThread("t2", "f1", "u1", KindChat, "   ", policy, now)
			So(blank.Title, ShouldEqual, PlaceholderTitle)
			blank.AppendTurn("Draft an NDA", Response{Content: "ok"}, TurnMeta{At: now}, policy)
			So(blank.Title, ShouldEqual, "Draft an NDA")
		})

		Convey("已满 200 条时再追加一轮，丢弃最旧的一组", func() {
			for i := 0; i < 100; i++ {
				th.AppendTurn(fmt.Sprintf("q%d", i), Response{Content: fmt.Sprintf("a%d", i)}, TurnMeta{At: now}, policy)
			}
			So(len(th.Turns), ShouldEqual, 200)
			So(th.TurnCount, ShouldEqual, 100)

			th.AppendTurn("q100", Response{Content: "a100"}, TurnMeta{At: now}, policy)
			So(len(th.Turns), ShouldEqual, 200)
			So(th.TurnCount, ShouldEqual, 101)
			So(th.Turns[0].Content, ShouldEqual, "q1")
			So(th.Turns[199].Content, ShouldEqual, "a100")
		})

		Convey("任意次数追加后窗口不超过上限且保持原顺序", func() {
			small := ThreadPolicy{MaxTurns: 7, TitleLength: 60, PreviewLength: 10}
			for i := 0; i < 23; i++ {
				th.AppendTurn(fmt.Sprintf("q%d", i), Response{Content: fmt.Sprintf("a%d", i)}, TurnMeta{At: now}, small)
				So(len(th.Turns), ShouldBeLessThanOrEqualTo, 7)
			}
			So(th.Turns[len(th.Turns)-1].Content, ShouldEqual, "a22")
			So(th.Turns[len(th.Turns)-2].Content, ShouldEqual, "q22")
			So(th.Turns[0].Content, ShouldEqual, "a19")
		})

		Convey("预览按字符截断", func() {
			long := strings.Repeat("条", 300)
			th.AppendTurn("q", Response{Content: long}, TurnMeta{At: now}, policy)
			So([]rune(th.LastResponsePreview), ShouldHaveLength, 200)
		})
	})
}

func TestThread_RecentPairs(t *testing.T) {
	Convey("RecentPairs 返回最近的完整问答", t, func() {
		now := time.Now()
		th := NewThread("t1", "f1", "u1", KindChat, "q", DefaultThreadPolicy, now)
		for i := 0; i < 7; i++ {
			th.AppendTurn(fmt.Sprintf("q%d", i), Response{Content: fmt.Sprintf("a%d", i)}, TurnMeta{At: now}, DefaultThreadPolicy)
		}

		pairs := th.RecentPairs(5)
		So(len(pairs), ShouldEqual, 10)
		So(pairs[0].Content, ShouldEqual, "q2")
		So(pairs[9].Content, ShouldEqual, "a6")

		Convey("窗口头部是孤立的 assistant 时被跳过", func() {
			th.Turns = th.Turns[1:]
			pairs := th.RecentPairs(10)
			So(len(pairs), ShouldEqual, 12)
			So(pairs[0].Role, ShouldEqual, RoleUser)
		})

		So(th.RecentPairs(0), ShouldBeNil)
	})
}

func TestDeriveTitle(t *testing.T) {
	Convey("DeriveTitle 截取并整理提问", t, func() {
		So(DeriveTitle("  hello   world  ", 60), ShouldEqual, "hello world")
		So(DeriveTitle("", 60), ShouldEqual, PlaceholderTitle)
		So(DeriveTitle("abcdef ghi", 7), ShouldEqual, "abcdef")
		So(DeriveTitle("合同风险审查要点", 4), ShouldEqual, "合同风险")
	})
}

func TestKind_IsValid(t *testing.T) {
	Convey("Kind.IsValid 只接受封闭集合", t, func() {
		So(KindAnalysis.IsValid(), ShouldBeTrue)
		So(KindTranslation.IsValid(), ShouldBeTrue)
		So(Kind("litigation").IsValid(), ShouldBeFalse)
	})
}
