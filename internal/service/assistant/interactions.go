package assistant

import (
	"context"
	"errors"
	"strings"

	"counsel/internal/model/assistant"
	"counsel/internal/model/auth"
	"counsel/internal/pkg/ctxutil"
	"counsel/internal/pkg/id"
	"counsel/internal/repository"
	assistantrepo "counsel/internal/repository/assistant"
)

// InteractionQuery 交互记录查询条件
type InteractionQuery struct {
	Kind     assistant.Kind
	ThreadID string
	Page     int64
	PageSize int64
}

// InteractionPage 分页结果
type InteractionPage struct {
	Items    []*assistant.Interaction `json:"items"`
	Total    int64                    `json:"total"`
	Page     int64                    `json:"page"`
	PageSize int64                    `json:"page_size"`
}

// FeedbackInput 用户反馈
type FeedbackInput struct {
	Rating  int
	Helpful *bool
	Comment string
}

// ListInteractions 分页查询交互记录
func (s *Service) ListInteractions(ctx context.Context, owner ctxutil.Owner, q InteractionQuery) (*InteractionPage, error) {
	if !owner.Valid() {
		return nil, ErrUnauthenticated
	}
	if q.Kind != "" && !q.Kind.IsValid() {
		return nil, ErrInvalidKind
	}
	if q.ThreadID != "" && !id.IsValid(q.ThreadID) {
		return nil, ErrInvalidThreadID
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}

	items, total, err := s.records.List(ctx, assistantrepo.InteractionFilter{
		UserID:   owner.UserID,
		FirmID:   owner.FirmID,
		Kind:     q.Kind,
		ThreadID: q.ThreadID,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
	if err != nil {
		return nil, persistenceError("查询交互记录失败", err)
	}
	if items == nil {
		items = []*assistant.Interaction{}
	}
	return &InteractionPage{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// GetInteraction 查询单条交互记录
func (s *Service) GetInteraction(ctx context.Context, owner ctxutil.Owner, interactionID string) (*assistant.Interaction, error) {
	if err := checkRecordRef(owner, interactionID); err != nil {
		return nil, err
	}
	it, err := s.records.FindByID(ctx, interactionID, owner.UserID, owner.FirmID)
	if err != nil {
		return nil, recordError(err)
	}
	return it, nil
}

// SubmitFeedback 写入反馈
func (s *Service) SubmitFeedback(ctx context.Context, owner ctxutil.Owner, interactionID string, in FeedbackInput) (*assistant.Interaction, error) {
	if err := checkRecordRef(owner, interactionID); err != nil {
		return nil, err
	}
	if in.Rating < 0 || in.Rating > 5 {
		return nil, ErrInvalidRating
	}
	fb := &assistant.Feedback{
		Rating:      in.Rating,
		Helpful:     in.Helpful,
		Comment:     strings.TrimSpace(in.Comment),
		SubmittedAt: s.now(),
	}
	if err := s.records.UpdateFeedback(ctx, interactionID, owner.UserID, owner.FirmID, fb); err != nil {
		return nil, recordError(err)
	}
	return s.GetInteraction(ctx, owner, interactionID)
}

// MarkTemplate 设置或取消模板标记
func (s *Service) MarkTemplate(ctx context.Context, owner ctxutil.Owner, interactionID string, isTemplate bool, name string) (*assistant.Interaction, error) {
	if err := checkRecordRef(owner, interactionID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if !isTemplate {
		name = ""
	}
	if err := s.records.UpdateTemplate(ctx, interactionID, owner.UserID, owner.FirmID, isTemplate, name); err != nil {
		return nil, recordError(err)
	}
	return s.GetInteraction(ctx, owner, interactionID)
}

// DeleteInteraction 删除交互记录（用户主动删除）
func (s *Service) DeleteInteraction(ctx context.Context, owner ctxutil.Owner, interactionID string) error {
	if err := checkRecordRef(owner, interactionID); err != nil {
		return err
	}
	if err := s.records.Delete(ctx, interactionID, owner.UserID, owner.FirmID); err != nil {
		return recordError(err)
	}
	return nil
}

// GetQuota 查询当前用量
func (s *Service) GetQuota(ctx context.Context, owner ctxutil.Owner) (*auth.AIUsage, error) {
	if !owner.Valid() {
		return nil, ErrUnauthenticated
	}
	return s.quota.Usage(ctx, owner)
}

func checkRecordRef(owner ctxutil.Owner, interactionID string) error {
	if !owner.Valid() {
		return ErrUnauthenticated
	}
	if !id.IsValid(interactionID) {
		return ErrInvalidID
	}
	return nil
}

func recordError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrRecordNotFound
	}
	return persistenceError("操作交互记录失败", err)
}
