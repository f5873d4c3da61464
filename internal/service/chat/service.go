// Package chat implements the chat-completion pipeline: request
// validation, context assembly from history and attachments, the upstream
// relay, usage accounting and persistence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"aichat/internal/config"
	"aichat/internal/domain"
	"aichat/internal/domain/models"
	"aichat/internal/domain/repositories"
	"aichat/internal/domain/services"
	"aichat/internal/service/usage"
	"aichat/internal/storage"
)

// continuePhrases are the short messages that mean "keep reading the
// current attachment" rather than starting a new thought. Matched exactly,
// case-insensitively, after trimming.
var continuePhrases = regexp.MustCompile(`(?i)^(继续|继续阅读|继续看|下一段|下一页|下页|后面|往后|next|continue)$`)

// Deps bundles the collaborators a Service needs.
type Deps struct {
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
	Files         repositories.FileRepository
	Cursors       repositories.CursorRepository
	Blobs         storage.BlobStore
	Providers     []services.LLMProvider
	Prices        *usage.PriceTable
	Config        *config.Config
	Logger        *slog.Logger
}

// Service orchestrates chat turns, streaming and non-streaming.
type Service struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	files         repositories.FileRepository
	cursors       repositories.CursorRepository
	blobs         storage.BlobStore
	providers     []services.LLMProvider
	prices        *usage.PriceTable
	cfg           *config.Config
	logger        *slog.Logger
}

// NewService creates a chat service.
func NewService(deps Deps) *Service {
	return &Service{
		conversations: deps.Conversations,
		messages:      deps.Messages,
		files:         deps.Files,
		cursors:       deps.Cursors,
		blobs:         deps.Blobs,
		providers:     deps.Providers,
		prices:        deps.Prices,
		cfg:           deps.Config,
		logger:        deps.Logger,
	}
}

// Request is one inbound chat turn. Message is what the user sees in the
// transcript; Prompt, when set, is what the model receives instead (the
// renderer strips attachment markup into it). The two may diverge.
type Request struct {
	ConversationID string   `json:"conversationId"`
	Message        string   `json:"message"`
	Prompt         *string  `json:"prompt"`
	Model          string   `json:"model"`
	FileIDs        []string `json:"fileIds"`
}

// Validate checks field shapes. Emptiness of the overall turn is checked
// later, after attachments are assembled.
func (r *Request) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.ConversationID, validation.When(r.ConversationID != "", is.UUIDv4)),
		validation.Field(&r.Message, validation.Length(0, 100_000)),
		validation.Field(&r.Model, validation.Length(0, 200)),
		validation.Field(&r.FileIDs, validation.Length(0, 64), validation.Each(is.UUIDv4)),
	)
	if err != nil {
		return domain.BadRequest(err.Error())
	}
	return nil
}

// Turn is a prepared chat turn: the resolved conversation, the persisted
// message rows, and the upstream message list.
type Turn struct {
	ConversationID     string
	AssistantMessageID string
	Model              string

	// Messages is the full upstream list, system instruction first.
	Messages []models.ChatMessage

	// History and TextForModel feed token estimation when the provider
	// returns no authoritative usage.
	History      []models.Message
	TextForModel string
}

// IsContinueMessage reports whether a trimmed prompt is one of the fixed
// continue phrases.
func IsContinueMessage(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	return continuePhrases.MatchString(t)
}

// titleFromFirstMessage derives a conversation title from the opening user
// text: whitespace collapsed, truncated with an ellipsis.
func titleFromFirstMessage(text string) string {
	t := strings.Join(strings.Fields(text), " ")
	runes := []rune(t)
	if len(runes) > config.TitleFromMessageLength {
		return string(runes[:config.TitleFromMessageLength]) + "…"
	}
	if t == "" {
		return "New Chat"
	}
	return t
}

// providerFor picks the first registered provider that supports the model.
func (s *Service) providerFor(model string) (services.LLMProvider, error) {
	for _, p := range s.providers {
		if p.SupportsModel(model) {
			return p, nil
		}
	}
	return nil, domain.BadRequest(fmt.Sprintf("no provider supports model '%s'", model))
}

// PrepareTurn validates the request, resolves or creates the conversation,
// assembles the upstream context, and persists the user message. When
// streaming is true it also creates the assistant placeholder row in
// streaming status, whose id rides the stream's meta event.
func (s *Service) PrepareTurn(ctx context.Context, user *models.User, req *Request, streaming bool) (*Turn, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	displayInput := strings.TrimSpace(req.Message)
	promptSource := displayInput
	if req.Prompt != nil {
		promptSource = *req.Prompt
	}
	promptText := stripFileMarkdownLines(promptSource)

	model := req.Model
	if model == "" {
		model = s.cfg.DefaultModel
	}
	if _, err := s.providerFor(model); err != nil {
		return nil, err
	}

	wantsContinue := IsContinueMessage(promptText)
	if wantsContinue && req.ConversationID == "" {
		return nil, domain.BadRequest(`"continue" only works inside an existing conversation; send it in the conversation you are reading in`)
	}

	imageParts, err := s.imageParts(ctx, user.ID, req.FileIDs)
	if err != nil {
		return nil, err
	}
	summary, err := s.attachmentSummary(ctx, user.ID, req.FileIDs)
	if err != nil {
		return nil, err
	}

	var conversationID string
	if req.ConversationID == "" {
		conv := &models.Conversation{
			UserID: user.ID,
			Title:  titleFromFirstMessage(firstNonEmpty(promptText, displayInput)),
		}
		if err := s.conversations.Create(ctx, conv); err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		conversationID = conv.ID
	} else {
		conv, err := s.conversations.Get(ctx, req.ConversationID, user.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.NotFound("conversation not found")
			}
			return nil, err
		}
		conversationID = conv.ID
	}

	attachmentText, err := s.textAttachmentBlock(ctx, user.ID, conversationID, req.FileIDs, wantsContinue)
	if err != nil {
		return nil, err
	}

	textForModel := joinNonEmpty("\n\n", promptText, summary, attachmentText)
	if textForModel == "" && len(imageParts) == 0 {
		return nil, domain.BadRequest("message is empty")
	}

	history, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	userMsg := &models.Message{
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        displayInput,
	}
	if err := s.messages.Create(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	turn := &Turn{
		ConversationID: conversationID,
		Model:          model,
		History:        history,
		TextForModel:   textForModel,
	}

	if streaming {
		assistant := &models.Message{
			ConversationID: conversationID,
			Role:           models.RoleAssistant,
			Content:        "",
			Status:         models.StatusStreaming,
		}
		if err := s.messages.Create(ctx, assistant); err != nil {
			return nil, fmt.Errorf("persist assistant placeholder: %w", err)
		}
		turn.AssistantMessageID = assistant.ID
	}

	userContent := models.MessageContent{Text: textForModel}
	if len(imageParts) > 0 {
		parts := append([]models.ContentPart{models.TextPart(textForModel)}, imageParts...)
		userContent = models.MessageContent{Parts: parts}
	}

	upstream := make([]models.ChatMessage, 0, len(history)+2)
	upstream = append(upstream, models.TextMessage(models.RoleSystem, fileContextSystemPrompt))
	upstream = append(upstream, s.historyMessages(ctx, user.ID, history)...)
	upstream = append(upstream, models.ChatMessage{Role: models.RoleUser, Content: userContent})
	turn.Messages = upstream

	return turn, nil
}

// CompleteResult is the response of a non-streaming turn.
type CompleteResult struct {
	ConversationID   string          `json:"conversationId"`
	AssistantMessage *models.Message `json:"assistantMessage"`
}

// Complete runs one non-streaming chat turn, bounded by the idle-timeout
// window as a total deadline.
func (s *Service) Complete(ctx context.Context, user *models.User, req *Request) (*CompleteResult, error) {
	turn, err := s.PrepareTurn(ctx, user, req, false)
	if err != nil {
		return nil, err
	}

	provider, err := s.providerFor(turn.Model)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ChatIdleTimeout)
	defer cancel()

	resp, err := provider.Complete(callCtx, &services.GenerateRequest{
		Model:    turn.Model,
		Messages: turn.Messages,
	})
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, domain.Timeout("upstream request timed out, please retry")
		}
		return nil, err
	}

	u := s.resolveUsage(ctx, turn, resp.Usage, resp.Content)

	assistant := &models.Message{
		ConversationID:   turn.ConversationID,
		Role:             models.RoleAssistant,
		Content:          resp.Content,
		Status:           models.StatusCompleted,
		PromptTokens:     &u.PromptTokens,
		CompletionTokens: &u.CompletionTokens,
		TotalTokens:      &u.TotalTokens,
		Cost:             &u.Cost,
		Estimated:        &u.Estimated,
	}
	if err := s.messages.Create(ctx, assistant); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	if err := s.conversations.Touch(ctx, turn.ConversationID); err != nil {
		s.logger.Warn("conversation touch failed", "conversation_id", turn.ConversationID, "error", err)
	}

	return &CompleteResult{ConversationID: turn.ConversationID, AssistantMessage: assistant}, nil
}

// resolveUsage prefers the provider's authoritative accounting and falls
// back to the character-length estimate. Cost is always computed locally
// against the price table.
func (s *Service) resolveUsage(ctx context.Context, turn *Turn, authoritative *models.Usage, answer string) *models.Usage {
	if authoritative != nil && authoritative.TotalTokens > 0 {
		u := *authoritative
		if u.Cost == 0 {
			u.Cost = s.prices.CalculateCost(ctx, turn.Model, u.PromptTokens, u.CompletionTokens)
		}
		u.Estimated = false
		return &u
	}
	return s.estimateUsage(ctx, turn, answer)
}

// estimateUsage reconstructs usage from text length: the prompt side is the
// stored history plus the new user text, role-tagged the way it was sent.
func (s *Service) estimateUsage(ctx context.Context, turn *Turn, answer string) *models.Usage {
	promptMsgs := make([]models.ChatMessage, 0, len(turn.History)+1)
	for _, m := range turn.History {
		promptMsgs = append(promptMsgs, models.TextMessage(m.Role, m.Content))
	}
	promptMsgs = append(promptMsgs, models.TextMessage(models.RoleUser, turn.TextForModel))

	promptTokens := usage.EstimatePromptTokens(promptMsgs)
	completionTokens := usage.EstimateTokens(answer)

	return &models.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Cost:             s.prices.CalculateCost(ctx, turn.Model, promptTokens, completionTokens),
		Estimated:        true,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(sep string, values ...string) string {
	var kept []string
	for _, v := range values {
		if v != "" {
			kept = append(kept, v)
		}
	}
	return strings.Join(kept, sep)
}
