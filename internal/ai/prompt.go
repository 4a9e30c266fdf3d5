package ai

import (
	"fmt"
	"strings"

	"counsel/internal/model/document"
)

// MaxHistoryPairs 上下文最多携带的历史轮数
const MaxHistoryPairs = 5

// HistoryPair 一组历史问答
type HistoryPair struct {
	Prompt   string
	Response string
}

// Enrichment 提问的附加上下文
type Enrichment struct {
	History   []HistoryPair
	Documents []document.Snippet
	Notes     string
}

// IsEmpty 没有任何附加上下文
func (e *Enrichment) IsEmpty() bool {
	return e == nil || (len(e.History) == 0 && len(e.Documents) == 0 && strings.TrimSpace(e.Notes) == "")
}

// BuildPrompt 按固定顺序拼接：历史问答、参考文档、备注、当前请求
func BuildPrompt(request string, e *Enrichment) string {
	if e.IsEmpty() {
		return request
	}

	var b strings.Builder

	history := e.History
	if len(history) > MaxHistoryPairs {
		history = history[len(history)-MaxHistoryPairs:]
	}
	if len(history) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, h := range history {
			fmt.Fprintf(&b, "User: %s\n", h.Prompt)
			if h.Response != "" {
				fmt.Fprintf(&b, "Assistant: %s\n", h.Response)
			}
		}
		b.WriteString("\n")
	}

	if len(e.Documents) > 0 {
		b.WriteString("Reference documents:\n")
		for i, d := range e.Documents {
			fmt.Fprintf(&b, "[%d] %s", i+1, d.Title)
			if d.FileName != "" {
				fmt.Fprintf(&b, " (%s)", d.FileName)
			}
			b.WriteString("\n")
			if d.Content != "" {
				b.WriteString(d.Content)
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	if notes := strings.TrimSpace(e.Notes); notes != "" {
		b.WriteString("Notes:\n")
		b.WriteString(notes)
		b.WriteString("\n\n")
	}

	b.WriteString("Current request:\n")
	b.WriteString(request)
	return b.String()
}
