package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tablebill/api/internal/billing"
	"github.com/tablebill/api/internal/database"
	"github.com/tablebill/api/internal/enum"
	"github.com/tablebill/api/internal/middleware"
	"github.com/tablebill/api/internal/service"
)

// RefundServicer defines the service methods needed by refund handlers.
// Satisfied by *service.RefundService.
type RefundServicer interface {
	Preview(ctx context.Context, req service.PreviewRefundRequest) (*service.RefundPreview, error)
	Issue(ctx context.Context, req service.IssueRefundRequest) (*service.IssueRefundResult, error)
}

// RefundStore defines the database methods needed to list refunds.
type RefundStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListRefundsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Refund, error)
}

// RefundHandler handles refund endpoints.
type RefundHandler struct {
	svc   RefundServicer
	store RefundStore
}

func NewRefundHandler(svc RefundServicer, store RefundStore) *RefundHandler {
	return &RefundHandler{svc: svc, store: store}
}

// RegisterRoutes registers refund endpoints on the given Chi router.
// Expected to be mounted at /businesses/{bid}/orders/{id}/refunds
func (h *RefundHandler) RegisterRoutes(r chi.Router) {
	r.Post("/preview", h.Preview)
	r.With(middleware.RequireRole(enum.UserRoleOwner, enum.UserRoleManager)).Post("/", h.Create)
	r.Get("/", h.List)
}

// --- Request / Response types ---

type refundItemRequest struct {
	OrderItemID string `json:"order_item_id"`
	Quantity    int    `json:"quantity"`
}

type refundRequest struct {
	Reason string              `json:"reason"`
	Items  []refundItemRequest `json:"items"`
}

type refundResponse struct {
	ID          uuid.UUID `json:"id"`
	OrderID     uuid.UUID `json:"order_id"`
	ItemsAmount string    `json:"items_amount"`
	VatAmount   string    `json:"vat_amount"`
	TotalAmount string    `json:"total_amount"`
	Reason      *string   `json:"reason"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type refundItemResponse struct {
	ID          uuid.UUID `json:"id"`
	OrderItemID uuid.UUID `json:"order_item_id"`
	Quantity    int32     `json:"quantity"`
	Amount      string    `json:"amount"`
}

type refundPreviewResponse struct {
	Breakdown     billing.RefundBreakdown `json:"breakdown"`
	MaxRefundable float64                 `json:"max_refundable"`
	Refundable    bool                    `json:"refundable"`
	Problem       string                  `json:"problem,omitempty"`
	Display       map[string]string       `json:"display"`
}

type issueRefundResponse struct {
	Refund    refundResponse          `json:"refund"`
	Items     []refundItemResponse    `json:"items"`
	Order     orderResponse           `json:"order"`
	Breakdown billing.RefundBreakdown `json:"breakdown"`
	Display   map[string]string       `json:"display"`
}

// --- Handlers ---

// Preview handles POST /businesses/{bid}/orders/{id}/refunds/preview.
func (h *RefundHandler) Preview(w http.ResponseWriter, r *http.Request) {
	businessID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	items, ok := parseRefundItems(w, req.Items)
	if !ok {
		return
	}

	preview, err := h.svc.Preview(r.Context(), service.PreviewRefundRequest{
		BusinessID: businessID,
		OrderID:    orderID,
		Items:      items,
	})
	if err != nil {
		writeRefundError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, refundPreviewResponse{
		Breakdown:     preview.Breakdown,
		MaxRefundable: preview.MaxRefundable,
		Refundable:    preview.Refundable,
		Problem:       preview.Problem,
		Display:       preview.Breakdown.Display(),
	})
}

// Create handles POST /businesses/{bid}/orders/{id}/refunds.
func (h *RefundHandler) Create(w http.ResponseWriter, r *http.Request) {
	businessID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	items, ok := parseRefundItems(w, req.Items)
	if !ok {
		return
	}

	result, err := h.svc.Issue(r.Context(), service.IssueRefundRequest{
		BusinessID: businessID,
		OrderID:    orderID,
		CreatedBy:  claims.UserID,
		Reason:     req.Reason,
		Items:      items,
	})
	if err != nil {
		writeRefundError(w, err)
		return
	}

	itemResps := make([]refundItemResponse, len(result.Items))
	for i, it := range result.Items {
		itemResps[i] = refundItemResponse{
			ID:          it.ID,
			OrderItemID: it.OrderItemID,
			Quantity:    it.Quantity,
			Amount:      numericToString(it.Amount),
		}
	}

	writeJSON(w, http.StatusCreated, issueRefundResponse{
		Refund:    dbRefundToResponse(result.Refund),
		Items:     itemResps,
		Order:     dbOrderToResponse(result.Order),
		Breakdown: result.Breakdown,
		Display:   result.Breakdown.Display(),
	})
}

// List handles GET /businesses/{bid}/orders/{id}/refunds.
func (h *RefundHandler) List(w http.ResponseWriter, r *http.Request) {
	businessID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	_, err := h.store.GetOrder(r.Context(), database.GetOrderParams{
		ID:         orderID,
		BusinessID: businessID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order for list refunds: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	refunds, err := h.store.ListRefundsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list refunds: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]refundResponse, len(refunds))
	for i, rf := range refunds {
		resp[i] = dbRefundToResponse(rf)
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func parseOrderPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	businessID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid business ID"})
		return uuid.Nil, uuid.Nil, false
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return businessID, orderID, true
}

func parseRefundItems(w http.ResponseWriter, items []refundItemRequest) ([]service.RefundItemRequest, bool) {
	if len(items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return nil, false
	}
	out := make([]service.RefundItemRequest, len(items))
	for i, it := range items {
		id, err := uuid.Parse(it.OrderItemID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": formatItemError(i, "invalid order_item_id")})
			return nil, false
		}
		out[i] = service.RefundItemRequest{OrderItemID: id, Quantity: it.Quantity}
	}
	return out, true
}

func formatItemError(idx int, msg string) string {
	return "items[" + strconv.Itoa(idx) + "]: " + msg
}

// writeRefundError maps refund service errors to HTTP statuses.
func writeRefundError(w http.ResponseWriter, err error) {
	var calcErr *billing.CalculationError
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, service.ErrOrderNotRefundable),
		errors.Is(err, billing.ErrRefundExceedsPaid),
		errors.Is(err, billing.ErrReconciliationMismatch),
		errors.Is(err, service.ErrRefundQuantityConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrUnknownRefundItem),
		errors.Is(err, service.ErrDuplicateRefundItem),
		errors.Is(err, service.ErrInvalidRefundQuantity),
		errors.Is(err, billing.ErrEmptyRefund),
		errors.As(err, &calcErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: refund: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func dbRefundToResponse(rf database.Refund) refundResponse {
	resp := refundResponse{
		ID:          rf.ID,
		OrderID:     rf.OrderID,
		ItemsAmount: numericToString(rf.ItemsAmount),
		VatAmount:   numericToString(rf.VatAmount),
		TotalAmount: numericToString(rf.TotalAmount),
		CreatedBy:   rf.CreatedBy,
		CreatedAt:   rf.CreatedAt,
	}
	if rf.Reason.Valid {
		resp.Reason = &rf.Reason.String
	}
	return resp
}
