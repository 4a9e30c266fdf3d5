package assistant

import "counsel/internal/model/assistant"

const basePrompt = "You are a careful legal assistant working for a law firm. " +
	"Answer precisely, state assumptions, and say so when the provided material is insufficient. " +
	"Do not invent citations."

// systemPrompts 各交互类型的系统提示词
var systemPrompts = map[assistant.Kind]string{
	assistant.KindResearch:      "Focus on legal research: identify the governing rules and authorities and explain how they apply.",
	assistant.KindDrafting:      "Focus on drafting: produce clear, well-structured legal text ready for attorney review.",
	assistant.KindAnalysis:      "Focus on analysis: identify risks, obligations and open issues in the material provided.",
	assistant.KindCompliance:    "Focus on compliance: check the material against applicable requirements and list gaps.",
	assistant.KindSummarization: "Focus on summarization: give a concise, faithful summary of the key points.",
	assistant.KindTranslation:   "Focus on translation: translate faithfully and keep legal terms of art precise.",
}

// systemPrompt 返回交互类型对应的系统提示词
func systemPrompt(kind assistant.Kind) string {
	if extra, ok := systemPrompts[kind]; ok {
		return basePrompt + " " + extra
	}
	return basePrompt
}
