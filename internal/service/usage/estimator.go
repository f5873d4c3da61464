package usage

import (
	"strings"

	"aichat/internal/domain/models"
)

// EstimateTokens approximates the token count of a text as ceil(len/3),
// never less than 1 for non-empty input. The divisor of 3 is deliberately
// conservative for mixed English and CJK text so estimated costs err high.
func EstimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	n := (len(trimmed) + 2) / 3
	if n < 1 {
		n = 1
	}
	return n
}

// EstimatePromptTokens estimates the prompt side of a request from the full
// upstream message list. Each message contributes its role tag and text so
// the estimate tracks what is actually serialized.
func EstimatePromptTokens(messages []models.ChatMessage) int {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Role+":"+m.Content.PlainText())
	}
	return EstimateTokens(strings.Join(parts, "\n"))
}
