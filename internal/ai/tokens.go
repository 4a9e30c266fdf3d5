package ai

import "unicode/utf8"

// charsPerToken 估算用的每 token 字符数
const charsPerToken = 4

// EstimateTokens 按字符数估算 token 数（向上取整）
// 仅用于内部用量统计，不是供应商计费口径
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// EstimateExchange 提问与回复分别估算后求和
func EstimateExchange(prompt, response string) int {
	return EstimateTokens(prompt) + EstimateTokens(response)
}
