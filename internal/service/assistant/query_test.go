package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"counsel/internal/ai"
	"counsel/internal/config"
	"counsel/internal/model/assistant"
	"counsel/internal/model/document"
	"counsel/internal/pkg/ctxutil"
	"counsel/internal/pkg/id"
	assistantrepo "counsel/internal/repository/assistant"
)

var (
	alice = ctxutil.Owner{UserID: "user-alice", FirmID: "firm-1"}
	bob   = ctxutil.Owner{UserID: "user-bob", FirmID: "firm-1"}
)

type harness struct {
	svc      *Service
	threads  *memThreadRepo
	records  *memInteractionRepo
	usage    *memUsageRepo
	provider *scriptedProvider
	client   *ai.Client
	docs     *memDocumentRepo
	quota    int64
}

func newHarness(quotaLimit int64) *harness {
	h := &harness{
		threads:  newMemThreadRepo(),
		records:  newMemInteractionRepo(),
		usage:    newMemUsageRepo(),
		provider: &scriptedProvider{errs: map[string]error{}},
		quota:    quotaLimit,
	}
	h.docs = &memDocumentRepo{docs: map[string]*document.Document{
		"doc-msa": {ID: "doc-msa", FirmID: "firm-1", Title: "Master Services Agreement", FileName: "msa.pdf", ExtractedText: "Liability is capped at fees paid."},
		"doc-other-firm": {ID: "doc-other-firm", FirmID: "firm-2", Title: "Secret", ExtractedText: "not yours"},
	}}
	h.client = ai.NewClient(&config.AIConfig{Model: "model-a", FallbackModels: []string{"model-b"}}, h.provider)
	h.rebuild(h.records, h.threads)
	return h
}

// rebuild 用指定仓库重新组装服务
func (h *harness) rebuild(records assistantrepo.InteractionRepository, threads assistantrepo.ThreadRepository) {
	h.svc = NewService(h.client, Repositories{
		Interactions: records,
		Threads:      threads,
		Documents:    h.docs,
		Usage:        h.usage,
	}, nil, config.AssistantConfig{}, config.QuotaConfig{DefaultLimit: h.quota})
}

func TestSubmitTurn(t *testing.T) {
	Convey("SubmitTurn", t, func() {
		h := newHarness(0)
		ctx := context.Background()

		Convey("新会话：创建会话、记录并扣减配额", func() {
			res, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{
				Kind:   assistant.KindAnalysis,
				Prompt: "Summarize the key risks in this MSA.",
			})
			So(err, ShouldBeNil)
			So(res.ThreadCreated, ShouldBeTrue)
			So(res.Thread.Title, ShouldEqual, "Summarize the key risks in this MSA.")
			So(res.Thread.TurnCount, ShouldEqual, 1)
			So(res.Thread.Turns, ShouldHaveLength, 2)
			So(res.Thread.Turns[0].Role, ShouldEqual, assistant.RoleUser)
			So(res.Thread.Turns[1].Role, ShouldEqual, assistant.RoleAssistant)
			So(res.Thread.Model, ShouldEqual, "model-a")

			So(res.Interaction.Kind, ShouldEqual, assistant.KindAnalysis)
			So(res.Interaction.ThreadID, ShouldEqual, res.Thread.ID)
			So(res.Interaction.Response.Model, ShouldEqual, "model-a")
			So(res.Interaction.Response.EstimatedTokens, ShouldBeGreaterThan, 0)

			So(h.records.count(), ShouldEqual, 1)
			So(h.threads.count(), ShouldEqual, 1)
			So(h.usage.used(alice.UserID), ShouldEqual, 1)
			So(res.QuotaConsumed, ShouldBeTrue)
			So(res.Thread.Turns[0].InteractionID, ShouldEqual, res.Interaction.ID)
		})

		Convey("扣减配额失败：本轮成功但标记未计入用量", func() {
			h.usage.failIncrement = errors.New("usage store unavailable")
			res, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "Draft a termination notice."})
			So(err, ShouldBeNil)
			So(res.QuotaConsumed, ShouldBeFalse)
			So(res.Thread.TurnCount, ShouldEqual, 1)
			So(h.records.count(), ShouldEqual, 1)
			So(h.usage.used(alice.UserID), ShouldEqual, 0)
		})

		Convey("续接会话：追加一轮并带上历史", func() {
			first, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "What is a force majeure clause?"})
			So(err, ShouldBeNil)

			second, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "Give an example.", ThreadID: first.Thread.ID})
			So(err, ShouldBeNil)
			So(second.ThreadCreated, ShouldBeFalse)
			So(second.Thread.ID, ShouldEqual, first.Thread.ID)
			So(second.Thread.TurnCount, ShouldEqual, 2)
			So(second.Thread.Turns, ShouldHaveLength, 4)
			So(second.Thread.LastPrompt, ShouldEqual, "Give an example.")
			So(h.provider.lastPrompt(), ShouldContainSubstring, "User: What is a force majeure clause?")
			So(h.records.count(), ShouldEqual, 2)
			So(h.usage.used(alice.UserID), ShouldEqual, 2)
		})

		Convey("默认类型为 chat", func() {
			res, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "hello"})
			So(err, ShouldBeNil)
			So(res.Interaction.Kind, ShouldEqual, assistant.KindChat)
		})

		Convey("附加文档：只使用本律所未删除的文档", func() {
			res, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{
				Prompt:      "Is liability capped?",
				DocumentIDs: []string{"doc-msa", "doc-missing", "doc-other-firm"},
			})
			So(err, ShouldBeNil)
			prompt := h.provider.lastPrompt()
			So(prompt, ShouldContainSubstring, "[1] Master Services Agreement (msa.pdf)")
			So(prompt, ShouldNotContainSubstring, "not yours")
			So(res.Interaction.Response.Citations, ShouldHaveLength, 1)
			So(res.Interaction.Response.Citations[0].DocumentID, ShouldEqual, "doc-msa")
		})

		Convey("空提问直接拒绝", func() {
			_, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "   "})
			So(KindOf(err), ShouldEqual, KindInvalidInput)
			So(h.provider.callCount(), ShouldEqual, 0)
		})

		Convey("非法类型直接拒绝", func() {
			_, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "x", Kind: "poetry"})
			So(KindOf(err), ShouldEqual, KindInvalidInput)
		})

		Convey("会话ID格式错误", func() {
			_, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "x", ThreadID: "not-a-uuid"})
			So(errors.Is(err, ErrInvalidThreadID), ShouldBeTrue)
			So(h.provider.callCount(), ShouldEqual, 0)
		})

		Convey("不存在的会话ID", func() {
			_, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "x", ThreadID: id.New()})
			So(KindOf(err), ShouldEqual, KindNotFound)
			So(h.provider.callCount(), ShouldEqual, 0)
		})

		Convey("他人的会话不可见", func() {
			res, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "private"})
			So(err, ShouldBeNil)
			_, err = h.svc.SubmitTurn(ctx, bob, &TurnRequest{Prompt: "peek", ThreadID: res.Thread.ID})
			So(KindOf(err), ShouldEqual, KindNotFound)
		})

		Convey("已归档会话不可续接", func() {
			res, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "soon archived"})
			So(err, ShouldBeNil)
			So(h.svc.ArchiveThread(ctx, alice, res.Thread.ID), ShouldBeNil)
			_, err = h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "again", ThreadID: res.Thread.ID})
			So(KindOf(err), ShouldEqual, KindNotFound)
		})
	})
}

func TestSubmitTurnFailures(t *testing.T) {
	Convey("SubmitTurn 失败时不留下任何写入", t, func() {
		ctx := context.Background()

		Convey("配额用尽：不调用模型、不写记录、计数不变", func() {
			h := newHarness(2)
			for i := 0; i < 2; i++ {
				_, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: fmt.Sprintf("q%d", i)})
				So(err, ShouldBeNil)
			}
			calls := h.provider.callCount()

			_, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "one more"})
			So(errors.Is(err, ErrQuotaExceeded), ShouldBeTrue)
			So(KindOf(err), ShouldEqual, KindQuotaExceeded)
			So(h.provider.callCount(), ShouldEqual, calls)
			So(h.records.count(), ShouldEqual, 2)
			So(h.usage.used(alice.UserID), ShouldEqual, 2)
		})

		Convey("模型调用失败：不新建会话、不写记录、不扣配额", func() {
			h := newHarness(0)
			h.provider.errs["model-a"] = errors.New("error, status code: 429, message: slow down")

			_, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "first message"})
			So(KindOf(err), ShouldEqual, KindProviderCall)
			So(h.threads.count(), ShouldEqual, 0)
			So(h.records.count(), ShouldEqual, 0)
			So(h.usage.used(alice.UserID), ShouldEqual, 0)
			So(h.provider.callCount(), ShouldEqual, 1)
		})

		Convey("续接会话时模型失败，会话不变", func() {
			h := newHarness(0)
			res, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "first"})
			So(err, ShouldBeNil)

			h.provider.errs["model-a"] = errors.New("error, status code: 500, message: boom")
			_, err = h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "second", ThreadID: res.Thread.ID})
			So(err, ShouldNotBeNil)

			stored, err := h.threads.FindByID(ctx, res.Thread.ID)
			So(err, ShouldBeNil)
			So(stored.TurnCount, ShouldEqual, 1)
			So(stored.Turns, ShouldHaveLength, 2)
		})

		Convey("模型不存在时回退到下一个模型", func() {
			h := newHarness(0)
			h.provider.errs["model-a"] = errors.New("error, status code: 404, message: The model does not exist")

			res, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "hi"})
			So(err, ShouldBeNil)
			So(res.Interaction.Response.Model, ShouldEqual, "model-b")
			So(h.usage.used(alice.UserID), ShouldEqual, 1)
		})

		Convey("未配置模型", func() {
			h := newHarness(0)
			h.svc.ai = ai.NewClient(&config.AIConfig{}, nil)

			_, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "hi"})
			So(KindOf(err), ShouldEqual, KindProviderConfig)
			So(h.records.count(), ShouldEqual, 0)
		})

		Convey("请求已取消：不调用模型、不写入", func() {
			h := newHarness(0)
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			_, err := h.svc.SubmitTurn(cctx, alice, &TurnRequest{Prompt: "hi"})
			So(KindOf(err), ShouldEqual, KindTimeout)
			So(h.provider.callCount(), ShouldEqual, 0)
			So(h.threads.count(), ShouldEqual, 0)
		})

		Convey("保存记录失败时回滚新建的会话", func() {
			h := newHarness(0)
			h.records.failCreate = errors.New("disk full")

			_, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "hi"})
			So(KindOf(err), ShouldEqual, KindPersistence)
			So(h.threads.count(), ShouldEqual, 0)
			So(h.usage.used(alice.UserID), ShouldEqual, 0)
		})
	})
}

func TestSubmitTurnWindow(t *testing.T) {
	Convey("满 200 条的会话再追加一轮", t, func() {
		h := newHarness(0)
		ctx := context.Background()

		policy := h.svc.Sessions().Policy()
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		seed := assistant.NewThread(id.New(), alice.FirmID, alice.UserID, assistant.KindChat, "p0", policy, base)
		for i := 0; i < 100; i++ {
			seed.AppendTurn(fmt.Sprintf("p%d", i), assistant.Response{Content: fmt.Sprintf("r%d", i)},
				assistant.TurnMeta{At: base.Add(time.Duration(i) * time.Minute)}, policy)
		}
		So(h.threads.Create(ctx, seed), ShouldBeNil)
		So(seed.Turns, ShouldHaveLength, 200)

		res, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "p100", ThreadID: seed.ID})
		So(err, ShouldBeNil)
		So(res.Thread.Turns, ShouldHaveLength, 200)
		So(res.Thread.TurnCount, ShouldEqual, 101)
		So(res.Thread.Turns[0].Content, ShouldEqual, "p1")
		So(res.Thread.Turns[198].Content, ShouldEqual, "p100")
		So(res.Thread.Turns[199].Role, ShouldEqual, assistant.RoleAssistant)

		Convey("只携带最近 5 组历史", func() {
			prompt := h.provider.lastPrompt()
			So(prompt, ShouldContainSubstring, "User: p99\n")
			So(prompt, ShouldContainSubstring, "User: p95\n")
			So(prompt, ShouldNotContainSubstring, "User: p94\n")
			So(strings.HasSuffix(prompt, "Current request:\np100"), ShouldBeTrue)
		})
	})
}

func TestInteractionOperations(t *testing.T) {
	Convey("交互记录的反馈、模板与删除", t, func() {
		h := newHarness(0)
		ctx := context.Background()
		res, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "draft an NDA", Kind: assistant.KindDrafting})
		So(err, ShouldBeNil)
		recordID := res.Interaction.ID

		Convey("反馈", func() {
			helpful := true
			it, err := h.svc.SubmitFeedback(ctx, alice, recordID, FeedbackInput{Rating: 5, Helpful: &helpful, Comment: " great "})
			So(err, ShouldBeNil)
			So(it.Feedback.Rating, ShouldEqual, 5)
			So(*it.Feedback.Helpful, ShouldBeTrue)
			So(it.Feedback.Comment, ShouldEqual, "great")
			So(it.Prompt, ShouldEqual, "draft an NDA")

			_, err = h.svc.SubmitFeedback(ctx, alice, recordID, FeedbackInput{Rating: 9})
			So(errors.Is(err, ErrInvalidRating), ShouldBeTrue)
		})

		Convey("模板标记", func() {
			it, err := h.svc.MarkTemplate(ctx, alice, recordID, true, "NDA starter")
			So(err, ShouldBeNil)
			So(it.IsTemplate, ShouldBeTrue)
			So(it.TemplateName, ShouldEqual, "NDA starter")
		})

		Convey("他人无法访问", func() {
			_, err := h.svc.GetInteraction(ctx, bob, recordID)
			So(KindOf(err), ShouldEqual, KindNotFound)
			So(KindOf(h.svc.DeleteInteraction(ctx, bob, recordID)), ShouldEqual, KindNotFound)
		})

		Convey("列表按类型过滤", func() {
			_, err := h.svc.SubmitTurn(ctx, alice, &TurnRequest{Prompt: "research X", Kind: assistant.KindResearch})
			So(err, ShouldBeNil)

			page, err := h.svc.ListInteractions(ctx, alice, InteractionQuery{Kind: assistant.KindDrafting})
			So(err, ShouldBeNil)
			So(page.Total, ShouldEqual, 1)
			So(page.Items[0].ID, ShouldEqual, recordID)

			page, err = h.svc.ListInteractions(ctx, alice, InteractionQuery{})
			So(err, ShouldBeNil)
			So(page.Total, ShouldEqual, 2)
		})

		Convey("删除", func() {
			So(h.svc.DeleteInteraction(ctx, alice, recordID), ShouldBeNil)
			_, err := h.svc.GetInteraction(ctx, alice, recordID)
			So(errors.Is(err, ErrRecordNotFound), ShouldBeTrue)
		})

		Convey("ID 格式错误", func() {
			_, err := h.svc.GetInteraction(ctx, alice, "abc")
			So(KindOf(err), ShouldEqual, KindInvalidInput)
		})
	})
}
