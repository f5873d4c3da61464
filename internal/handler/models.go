package handler

import (
	"context"
	"log/slog"
	"net/http"

	"aichat/internal/domain"
	"aichat/internal/httputil"
)

// ModelCatalog provides the raw upstream model catalog.
type ModelCatalog interface {
	ListModels(ctx context.Context) ([]byte, error)
}

// ModelsHandler proxies the provider's model catalog to the frontend. The
// payload is passed through untouched so the client sees the provider's own
// ids, pricing and capability metadata.
type ModelsHandler struct {
	catalog ModelCatalog
	logger  *slog.Logger
}

// NewModelsHandler creates a models handler.
func NewModelsHandler(catalog ModelCatalog, logger *slog.Logger) *ModelsHandler {
	return &ModelsHandler{catalog: catalog, logger: logger}
}

// List handles GET /api/models.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	body, err := h.catalog.ListModels(r.Context())
	if err != nil {
		h.logger.Error("model catalog fetch failed", "error", err)
		coded := domain.AsError(err)
		httputil.RespondError(w, coded.StatusCode(), coded.ErrorCode(), "failed to fetch model catalog")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
