package assistant

import (
	"context"

	"github.com/rs/zerolog/log"

	"counsel/internal/model/assistant"
	"counsel/internal/model/document"
	"counsel/internal/pkg/ctxutil"
	docrepo "counsel/internal/repository/document"
)

// DocumentContextBuilder 将文档ID解析为提示词片段
// 查不到、已删除或不属于本律所的文档直接忽略，不影响本轮对话
type DocumentContextBuilder struct {
	repo          docrepo.DocumentRepository
	snippetLength int
}

// NewDocumentContextBuilder 创建文档上下文构建器
func NewDocumentContextBuilder(repo docrepo.DocumentRepository, snippetLength int) *DocumentContextBuilder {
	return &DocumentContextBuilder{repo: repo, snippetLength: snippetLength}
}

// Build 按请求顺序返回可用文档的片段
func (b *DocumentContextBuilder) Build(ctx context.Context, ids []string, owner ctxutil.Owner) []document.Snippet {
	ids = uniqueIDs(ids)
	if len(ids) == 0 || b.repo == nil {
		return []document.Snippet{}
	}

	docs, err := b.repo.FindByIDs(ctx, owner.FirmID, ids)
	if err != nil {
		log.Warn().Err(err).Str("firm_id", owner.FirmID).Int("requested", len(ids)).
			Msg("failed to load documents for context, continuing without them")
		return []document.Snippet{}
	}

	byID := make(map[string]*document.Document, len(docs))
	for _, d := range docs {
		if d.FirmID == owner.FirmID && d.DeletedAt == nil {
			byID[d.ID] = d
		}
	}

	snippets := make([]document.Snippet, 0, len(byID))
	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			continue
		}
		snippets = append(snippets, document.Snippet{
			ID:       d.ID,
			Title:    d.Title,
			FileName: d.FileName,
			Content:  assistant.Preview(d.ExtractedText, b.snippetLength),
		})
	}
	return snippets
}

// uniqueIDs 去掉空值和重复值，保持顺序
func uniqueIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
