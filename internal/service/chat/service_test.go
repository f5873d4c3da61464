package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"aichat/internal/domain"
	"aichat/internal/domain/models"
	"aichat/internal/domain/services"
)

func TestIsContinueMessage(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"continue", true},
		{"Continue", true},
		{"NEXT", true},
		{"  continue  ", true},
		{"继续", true},
		{"继续阅读", true},
		{"下一页", true},
		{"please continue", false},
		{"continued", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsContinueMessage(tt.text); got != tt.want {
			t.Errorf("IsContinueMessage(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestTitleFromFirstMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "New Chat"},
		{"whitespace", "   ", "New Chat"},
		{"short", "hello there", "hello there"},
		{"collapses whitespace", "a  b\n\nc", "a b c"},
		{"truncates at 40 runes", strings.Repeat("x", 50), strings.Repeat("x", 40) + "…"},
		{"exactly 40 stays", strings.Repeat("x", 40), strings.Repeat("x", 40)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := titleFromFirstMessage(tt.in); got != tt.want {
				t.Errorf("titleFromFirstMessage(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func newCompleteProvider(content string, u *models.Usage) *fakeProvider {
	return &fakeProvider{
		name: "test",
		completeFn: func(ctx context.Context, req *services.GenerateRequest) (*services.GenerateResponse, error) {
			return &services.GenerateResponse{Content: content, Usage: u}, nil
		},
	}
}

func TestCompleteCreatesConversationAndMessages(t *testing.T) {
	env := newTestEnv(newCompleteProvider("the answer", nil))

	res, err := env.svc.Complete(context.Background(), env.user, &Request{Message: "what is the question?"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if res.ConversationID == "" {
		t.Fatal("conversation id missing")
	}
	conv, err := env.conversations.Get(context.Background(), res.ConversationID, env.user.ID)
	if err != nil {
		t.Fatalf("conversation not created: %v", err)
	}
	if conv.Title != "what is the question?" {
		t.Errorf("title = %q", conv.Title)
	}

	if res.AssistantMessage.Status != models.StatusCompleted {
		t.Errorf("status = %q", res.AssistantMessage.Status)
	}
	if res.AssistantMessage.Content != "the answer" {
		t.Errorf("content = %q", res.AssistantMessage.Content)
	}
	if res.AssistantMessage.Estimated == nil || !*res.AssistantMessage.Estimated {
		t.Error("usage without provider accounting should be estimated")
	}

	history, _ := env.messages.ListByConversation(context.Background(), res.ConversationID)
	if len(history) != 2 {
		t.Fatalf("got %d messages, want user + assistant", len(history))
	}
	if history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Errorf("roles = %q, %q", history[0].Role, history[1].Role)
	}
}

func TestCompleteUnknownConversation(t *testing.T) {
	env := newTestEnv(newCompleteProvider("x", nil))

	_, err := env.svc.Complete(context.Background(), env.user, &Request{
		ConversationID: "2f1e4567-e89b-42d3-a456-426614174000",
		Message:        "hi",
	})
	if err == nil {
		t.Fatal("expected NOT_FOUND")
	}
	if domain.AsError(err).ErrorCode() != domain.CodeNotFound {
		t.Errorf("code = %q, want NOT_FOUND", domain.AsError(err).ErrorCode())
	}
}

func TestContinueRequiresConversation(t *testing.T) {
	env := newTestEnv(newCompleteProvider("x", nil))

	_, err := env.svc.Complete(context.Background(), env.user, &Request{Message: "continue"})
	if err == nil {
		t.Fatal("expected BAD_REQUEST")
	}
	coded := domain.AsError(err)
	if coded.ErrorCode() != domain.CodeBadRequest {
		t.Errorf("code = %q, want BAD_REQUEST", coded.ErrorCode())
	}
}

func TestContinueWithoutTargetFails(t *testing.T) {
	env := newTestEnv(newCompleteProvider("x", nil))

	// Seed an existing conversation with no cursors and no linked files.
	first, err := env.svc.Complete(context.Background(), env.user, &Request{Message: "hello"})
	if err != nil {
		t.Fatalf("seed turn: %v", err)
	}

	_, err = env.svc.Complete(context.Background(), env.user, &Request{
		ConversationID: first.ConversationID,
		Message:        "continue",
	})
	if err == nil {
		t.Fatal("expected NO_CONTINUE_FILE")
	}
	if domain.AsError(err).ErrorCode() != domain.CodeNoContinueFile {
		t.Errorf("code = %q, want NO_CONTINUE_FILE", domain.AsError(err).ErrorCode())
	}
}

func TestEmptyTurnRejected(t *testing.T) {
	env := newTestEnv(newCompleteProvider("x", nil))

	_, err := env.svc.Complete(context.Background(), env.user, &Request{Message: "   "})
	if err == nil {
		t.Fatal("expected BAD_REQUEST for empty turn")
	}
	if domain.AsError(err).ErrorCode() != domain.CodeBadRequest {
		t.Errorf("code = %q", domain.AsError(err).ErrorCode())
	}
}

func TestImageOnlyTurnAllowed(t *testing.T) {
	env := newTestEnv(newCompleteProvider("nice picture", nil))
	imgID := env.addImageFile("photo.png", 1024)

	res, err := env.svc.Complete(context.Background(), env.user, &Request{
		Message: "",
		FileIDs: []string{imgID},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	sent := env.provider.sentMessages()
	last := sent[len(sent)-1]
	if last.Content.Parts == nil {
		t.Fatal("image turn should send multimodal parts")
	}
	foundImage := false
	for _, p := range last.Content.Parts {
		if p.Type == models.PartTypeImageURL {
			foundImage = true
			if !strings.HasPrefix(p.ImageURL.URL, "data:image/png;base64,") {
				t.Errorf("image part is not a data URL: %.40s", p.ImageURL.URL)
			}
		}
	}
	if !foundImage {
		t.Error("no image part sent upstream")
	}
	if res.AssistantMessage.Content != "nice picture" {
		t.Errorf("content = %q", res.AssistantMessage.Content)
	}
}

func TestImagesOverCeilingRejected(t *testing.T) {
	env := newTestEnv(newCompleteProvider("x", nil))
	env.cfg.MaxImageBytes = 1000
	a := env.addImageFile("a.png", 600)
	b := env.addImageFile("b.png", 600)

	_, err := env.svc.Complete(context.Background(), env.user, &Request{
		Message: "look",
		FileIDs: []string{a, b},
	})
	if err == nil {
		t.Fatal("expected IMAGE_TOO_LARGE")
	}
	coded := domain.AsError(err)
	if coded.ErrorCode() != domain.CodeImageTooLarge {
		t.Errorf("code = %q", coded.ErrorCode())
	}
	if coded.StatusCode() != 413 {
		t.Errorf("status = %d, want 413", coded.StatusCode())
	}
}

func TestAuthoritativeUsagePreferred(t *testing.T) {
	env := newTestEnv(newCompleteProvider("ans", &models.Usage{
		PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15,
	}))

	res, err := env.svc.Complete(context.Background(), env.user, &Request{
		Message: "hi",
		Model:   "openai/gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.AssistantMessage.Estimated == nil || *res.AssistantMessage.Estimated {
		t.Error("provider usage should not be marked estimated")
	}
	if *res.AssistantMessage.TotalTokens != 15 {
		t.Errorf("total tokens = %d", *res.AssistantMessage.TotalTokens)
	}
}

func TestSystemPromptLeadsUpstreamMessages(t *testing.T) {
	env := newTestEnv(newCompleteProvider("x", nil))

	if _, err := env.svc.Complete(context.Background(), env.user, &Request{Message: "hi"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	sent := env.provider.sentMessages()
	if len(sent) == 0 || sent[0].Role != models.RoleSystem {
		t.Fatal("first upstream message must be the system instruction")
	}
	if !strings.Contains(sent[0].Content.PlainText(), "[Attachment:") {
		t.Error("system instruction should describe attachment blocks")
	}
}

func TestPromptFieldOverridesMessageForModel(t *testing.T) {
	env := newTestEnv(newCompleteProvider("x", nil))

	prompt := "model-facing text"
	_, err := env.svc.Complete(context.Background(), env.user, &Request{
		Message: "display text",
		Prompt:  &prompt,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	sent := env.provider.sentMessages()
	last := sent[len(sent)-1]
	if last.Content.PlainText() != "model-facing text" {
		t.Errorf("model received %q, want the prompt field", last.Content.PlainText())
	}

	// The transcript stores the display text.
	var userMsg *models.Message
	for _, m := range env.messages.rows {
		if m.Role == models.RoleUser {
			userMsg = m
		}
	}
	if userMsg == nil || userMsg.Content != "display text" {
		t.Errorf("stored user content = %v, want display text", userMsg)
	}
}

func TestValidateRejectsBadIDs(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"bad conversation id", Request{ConversationID: "not-a-uuid", Message: "hi"}, true},
		{"empty conversation id allowed", Request{Message: "hi"}, false},
		{"valid conversation id", Request{ConversationID: "2f1e4567-e89b-42d3-a456-426614174000", Message: "hi"}, false},
		{"bad file id", Request{Message: "hi", FileIDs: []string{"nope"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, domain.ErrValidation) {
					t.Errorf("validation failures should map to BAD_REQUEST, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}
