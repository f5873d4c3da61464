package handler

import (
	"log/slog"
	"net/http"

	"aichat/internal/domain"
	"aichat/internal/handler/ndjson"
	"aichat/internal/httputil"
	"aichat/internal/service/chat"
)

// ChatHandler serves the chat endpoints, streaming and non-streaming.
type ChatHandler struct {
	svc    *chat.Service
	logger *slog.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(svc *chat.Service, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// Complete handles POST /api/chat.
func (h *ChatHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, domain.CodeBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.Complete(r.Context(), httputil.GetUser(r), &req)
	if err != nil {
		h.logger.Warn("chat turn failed", "error", err)
		httputil.RespondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, res)
}

// Stream handles POST /api/chat/stream. Until the upstream call succeeds,
// failures are ordinary JSON error responses; afterwards the NDJSON stream
// owns the connection and all failures are reported in-stream.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, domain.CodeBadRequest, "invalid request body")
		return
	}

	sink := ndjson.NewWriter(w)
	err := h.svc.Stream(r.Context(), httputil.GetUser(r), &req, sink)
	if err != nil && !sink.Started() {
		h.logger.Warn("chat stream failed before opening", "error", err)
		httputil.RespondDomainError(w, err)
	}
}
