package stock

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stockline/stockline/internal/platform/httpx"
	"github.com/stockline/stockline/internal/shared"
)

// Handler exposes stock level reads.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock/levels/{productID}", h.level)
}

func (h *Handler) level(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant scope required", string(shared.KindValidation))
		return
	}
	productID, _ := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	level, err := h.service.GetLevel(r.Context(), tenant, productID)
	if err != nil {
		h.logger.Error("read stock level", slog.Any("error", err), slog.Int64("product_id", productID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}
