package assistant

// Kind 交互类型
type Kind string

const (
	KindResearch      Kind = "research"      // 法律检索
	KindDrafting      Kind = "drafting"      // 文书起草
	KindAnalysis      Kind = "analysis"      // 文件分析
	KindCompliance    Kind = "compliance"    // 合规审查
	KindChat          Kind = "chat"          // 通用对话
	KindSummarization Kind = "summarization" // 摘要
	KindTranslation   Kind = "translation"   // 翻译
)

// Kinds 全部合法的交互类型
var Kinds = []Kind{
	KindResearch,
	KindDrafting,
	KindAnalysis,
	KindCompliance,
	KindChat,
	KindSummarization,
	KindTranslation,
}

// IsValid 检查类型是否有效
func (k Kind) IsValid() bool {
	for _, v := range Kinds {
		if k == v {
			return true
		}
	}
	return false
}

// String 返回类型字符串
func (k Kind) String() string {
	return string(k)
}

// Role 会话消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)
