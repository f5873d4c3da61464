package usage

import (
	"testing"

	"aichat/internal/domain/models"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "   \n\t  ", 0},
		{"single char", "a", 1},
		{"three chars", "abc", 1},
		{"four chars rounds up", "abcd", 2},
		{"trims before counting", "  abc  ", 1},
		{"longer text", "hello world, this is a test", 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.text); got != tt.want {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimateTokensDeterministic(t *testing.T) {
	text := "the same input must always produce the same estimate"
	first := EstimateTokens(text)
	for i := 0; i < 5; i++ {
		if got := EstimateTokens(text); got != first {
			t.Fatalf("estimate changed between calls: %d vs %d", got, first)
		}
	}
}

func TestEstimatePromptTokens(t *testing.T) {
	messages := []models.ChatMessage{
		models.TextMessage(models.RoleSystem, "be brief"),
		models.TextMessage(models.RoleUser, "hi"),
	}

	// Serialized as "system:be brief\nuser:hi" (23 chars) -> ceil(23/3) = 8.
	if got := EstimatePromptTokens(messages); got != 8 {
		t.Errorf("EstimatePromptTokens = %d, want 8", got)
	}
}

func TestEstimatePromptTokensEmpty(t *testing.T) {
	if got := EstimatePromptTokens(nil); got != 0 {
		t.Errorf("EstimatePromptTokens(nil) = %d, want 0", got)
	}
}
