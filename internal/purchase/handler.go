package purchase

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockline/stockline/internal/platform/httpx"
	"github.com/stockline/stockline/internal/shared"
)

// Handler exposes the direct purchase API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchases", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

type purchaseResponse struct {
	Purchase Purchase       `json:"purchase"`
	Items    []PurchaseItem `json:"items"`
}

type listResponse struct {
	Items  []ListItem `json:"items"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant scope required", string(shared.KindValidation))
		return
	}
	var req CreatePurchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body", string(shared.KindValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), string(shared.KindValidation))
		return
	}
	p, err := h.service.Create(r.Context(), tenant, req)
	if err != nil {
		h.logger.Error("create purchase", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchaseResponse{Purchase: p})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant scope required", string(shared.KindValidation))
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req UpdatePurchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body", string(shared.KindValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), string(shared.KindValidation))
		return
	}
	p, err := h.service.Update(r.Context(), tenant, id, req)
	if err != nil {
		h.logger.Error("update purchase", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchaseResponse{Purchase: p})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant scope required", string(shared.KindValidation))
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	p, items, err := h.service.Get(r.Context(), tenant, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchaseResponse{Purchase: p, Items: items})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant scope required", string(shared.KindValidation))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	supplierID, _ := strconv.ParseInt(r.URL.Query().Get("supplier_id"), 10, 64)
	filters := ListFilters{
		SupplierID:    supplierID,
		PaymentStatus: r.URL.Query().Get("payment_status"),
		Search:        r.URL.Query().Get("search"),
		SortBy:        r.URL.Query().Get("sort"),
		SortDir:       r.URL.Query().Get("dir"),
	}
	items, total, err := h.service.List(r.Context(), tenant, limit, offset, filters)
	if err != nil {
		h.logger.Error("list purchases", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant scope required", string(shared.KindValidation))
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.Delete(r.Context(), tenant, id); err != nil {
		h.logger.Error("delete purchase", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
