package purchaseorder

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockline/stockline/internal/platform/httpx"
	"github.com/stockline/stockline/internal/shared"
)

// Handler exposes the purchase order API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/close", h.close)
		r.Post("/{id}/cancel", h.cancel)
		r.Post("/{id}/receipts", h.receive)
		r.Get("/{id}/receipts", h.listGRNs)
	})
	r.Route("/goods-receipts", func(r chi.Router) {
		r.Get("/", h.listAllGRNs)
		r.Get("/{id}", h.getGRN)
	})
}

type poResponse struct {
	PurchaseOrder PurchaseOrder `json:"purchase_order"`
	Items         []POItem      `json:"items"`
}

type grnResponse struct {
	GoodsReceipt GoodsReceipt `json:"goods_receipt"`
	Items        []GRNItem    `json:"items"`
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant scope required", string(shared.KindValidation))
		return
	}
	var req CreatePORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body", string(shared.KindValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), string(shared.KindValidation))
		return
	}
	po, err := h.service.Create(r.Context(), tenant, req)
	if err != nil {
		h.logger.Error("create purchase order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, poResponse{PurchaseOrder: po})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant scope required", string(shared.KindValidation))
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req UpdatePORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body", string(shared.KindValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), string(shared.KindValidation))
		return
	}
	po, err := h.service.Update(r.Context(), tenant, id, req)
	if err != nil {
		h.logger.Error("update purchase order", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, poResponse{PurchaseOrder: po})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant scope required", string(shared.KindValidation))
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	po, items, err := h.service.Get(r.Context(), tenant, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, poResponse{PurchaseOrder: po, Items: items})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant scope required", string(shared.KindValidation))
		return
	}
	limit, offset, filters := listParams(r)
	items, total, err := h.service.List(r.Context(), tenant, limit, offset, filters)
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[POListItem]{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant scope required", string(shared.KindValidation))
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.Delete(r.Context(), tenant, id); err != nil {
		h.logger.Error("delete purchase order", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, "approve purchase order", h.service.Approve)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, "close purchase order", h.service.Close)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, "cancel purchase order", h.service.Cancel)
}

func (h *Handler) doTransition(w http.ResponseWriter, r *http.Request, action string, op func(context.Context, shared.Tenant, int64) error) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant scope required", string(shared.KindValidation))
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := op(r.Context(), tenant, id); err != nil {
		h.logger.Error(action, slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant scope required", string(shared.KindValidation))
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req ReceiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body", string(shared.KindValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), string(shared.KindValidation))
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" && req.IdempotencyKey == "" {
		req.IdempotencyKey = key
	}
	grn, err := h.service.Receive(r.Context(), tenant, id, req)
	if err != nil {
		h.logger.Error("receive goods", slog.Any("error", err), slog.Int64("po_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grnResponse{GoodsReceipt: grn})
}

func (h *Handler) getGRN(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant scope required", string(shared.KindValidation))
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	grn, items, err := h.service.GetGRN(r.Context(), tenant, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grnResponse{GoodsReceipt: grn, Items: items})
}

func (h *Handler) listGRNs(w http.ResponseWriter, r *http.Request) {
	h.respondGRNList(w, r, true)
}

func (h *Handler) listAllGRNs(w http.ResponseWriter, r *http.Request) {
	h.respondGRNList(w, r, false)
}

func (h *Handler) respondGRNList(w http.ResponseWriter, r *http.Request, scoped bool) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant scope required", string(shared.KindValidation))
		return
	}
	var poID int64
	if scoped {
		poID, _ = strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	}
	limit, offset, filters := listParams(r)
	items, total, err := h.service.ListGRNs(r.Context(), tenant, poID, limit, offset, filters)
	if err != nil {
		h.logger.Error("list goods receipts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[GRNListItem]{Items: items, Total: total, Limit: limit, Offset: offset})
}

func listParams(r *http.Request) (int, int, ListFilters) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	supplierID, _ := strconv.ParseInt(r.URL.Query().Get("supplier_id"), 10, 64)
	return limit, offset, ListFilters{
		Status:     r.URL.Query().Get("status"),
		SupplierID: supplierID,
		Search:     r.URL.Query().Get("search"),
		SortBy:     r.URL.Query().Get("sort"),
		SortDir:    r.URL.Query().Get("dir"),
	}
}
