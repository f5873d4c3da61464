package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"aichat/internal/config"
	"aichat/internal/domain"
	"aichat/internal/domain/models"
	"aichat/internal/domain/repositories"
	"aichat/internal/httputil"
)

// ConversationHandler serves the conversation CRUD surface.
type ConversationHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	cursors       repositories.CursorRepository
	txManager     repositories.TransactionManager
	logger        *slog.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	cursors repositories.CursorRepository,
	txManager repositories.TransactionManager,
	logger *slog.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		cursors:       cursors,
		txManager:     txManager,
		logger:        logger,
	}
}

type conversationResponse struct {
	Conversation *models.Conversation `json:"conversation"`
}

// List handles GET /api/conversations.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.conversations.ListByUser(r.Context(), httputil.GetUserID(r))
	if err != nil {
		h.logger.Error("conversation list failed", "error", err)
		httputil.RespondDomainError(w, err)
		return
	}
	if list == nil {
		list = []models.Conversation{}
	}
	httputil.RespondJSON(w, http.StatusOK, map[string][]models.Conversation{"conversations": list})
}

type createConversationRequest struct {
	Title string `json:"title"`
}

// Create handles POST /api/conversations.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, domain.CodeBadRequest, "invalid request body")
		return
	}

	title := clampTitle(req.Title)
	if title == "" {
		title = "New Chat"
	}

	conv := &models.Conversation{UserID: httputil.GetUserID(r), Title: title}
	if err := h.conversations.Create(r.Context(), conv); err != nil {
		h.logger.Error("conversation create failed", "error", err)
		httputil.RespondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, conversationResponse{Conversation: conv})
}

type renameConversationRequest struct {
	Title string `json:"title"`
}

// Rename handles PATCH /api/conversations/{id}.
func (h *ConversationHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req renameConversationRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, domain.CodeBadRequest, "invalid request body")
		return
	}

	title := clampTitle(req.Title)
	if title == "" {
		httputil.RespondError(w, http.StatusBadRequest, domain.CodeBadRequest, "title cannot be empty")
		return
	}

	conv, err := h.conversations.UpdateTitle(r.Context(), r.PathValue("id"), httputil.GetUserID(r), title)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, conversationResponse{Conversation: conv})
}

func clampTitle(title string) string {
	t := strings.TrimSpace(title)
	runes := []rune(t)
	if len(runes) > config.MaxConversationTitleLength {
		t = string(runes[:config.MaxConversationTitleLength])
	}
	return t
}

// Delete handles DELETE /api/conversations/{id}. The conversation, its
// messages and its file cursors go in one transaction.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID := httputil.GetUserID(r)

	if _, err := h.conversations.Get(r.Context(), id, userID); err != nil {
		h.respondLookupError(w, err)
		return
	}

	err := h.txManager.ExecTx(r.Context(), func(ctx context.Context) error {
		if err := h.messages.DeleteByConversation(ctx, id); err != nil {
			return err
		}
		if err := h.cursors.DeleteByConversation(ctx, id); err != nil {
			return err
		}
		return h.conversations.Delete(ctx, id)
	})
	if err != nil {
		h.logger.Error("conversation delete failed", "conversation_id", id, "error", err)
		httputil.RespondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Messages handles GET /api/conversations/{id}/messages.
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID := httputil.GetUserID(r)

	if _, err := h.conversations.Get(r.Context(), id, userID); err != nil {
		h.respondLookupError(w, err)
		return
	}

	msgs, err := h.messages.ListByConversation(r.Context(), id)
	if err != nil {
		h.logger.Error("message list failed", "conversation_id", id, "error", err)
		httputil.RespondDomainError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	httputil.RespondJSON(w, http.StatusOK, map[string][]models.Message{"messages": msgs})
}

func (h *ConversationHandler) respondLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		httputil.RespondError(w, http.StatusNotFound, domain.CodeNotFound, "conversation not found")
		return
	}
	h.logger.Error("conversation lookup failed", "error", err)
	httputil.RespondDomainError(w, err)
}
