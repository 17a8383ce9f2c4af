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
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tablebill/api/internal/billing"
	"github.com/tablebill/api/internal/cache"
	"github.com/tablebill/api/internal/database"
	"github.com/tablebill/api/internal/enum"
	"github.com/tablebill/api/internal/middleware"
	"github.com/tablebill/api/internal/service"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	VATRate(ctx context.Context, businessID uuid.UUID) (float64, error)
}

// OrderStore defines the database methods needed by order read/update handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
	ListRefundsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Refund, error)
	CancelOrder(ctx context.Context, arg database.CancelOrderParams) (database.Order, error)
}

// OrderCache holds assembled order detail responses.
// Satisfied by *cache.RedisOrderCache and cache.NopCache.
type OrderCache interface {
	Get(ctx context.Context, id string, dst any) (bool, error)
	Set(ctx context.Context, id string, v any) error
	Delete(ctx context.Context, id string) error
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	store OrderStore
	cache OrderCache
	hooks service.Hooks
}

// NewOrderHandler creates a new OrderHandler. A nil cache disables caching.
func NewOrderHandler(svc OrderServicer, store OrderStore, c OrderCache, hooks service.Hooks) *OrderHandler {
	if c == nil {
		c = cache.NopCache{}
	}
	return &OrderHandler{svc: svc, store: store, cache: c, hooks: hooks.WithDefaults()}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside a business-scoped subrouter: /businesses/{bid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/quote", h.Quote)
	r.Post("/validate", h.Validate)
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/cancel", h.Cancel)
}

// --- Request / Response types ---

type orderItemRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Quantity    float64 `json:"quantity"`
	PackingCost float64 `json:"packing_cost"`
	IsPacked    bool    `json:"is_packed"`
}

type quoteRequest struct {
	Items          []orderItemRequest `json:"items"`
	AdditionalCost float64            `json:"additional_cost"`
}

type createOrderRequest struct {
	CustomerName   string             `json:"customer_name"`
	CustomerPhone  string             `json:"customer_phone"`
	TableRef       string             `json:"table_ref"`
	Notes          string             `json:"notes"`
	Items          []orderItemRequest `json:"items"`
	AdditionalCost float64            `json:"additional_cost"`
	TotalAmount    float64            `json:"total_amount"`
}

type quoteResponse struct {
	billing.Calculation
	VATRate float64           `json:"vat_rate"`
	Display map[string]string `json:"display"`
}

type orderResponse struct {
	ID             uuid.UUID  `json:"id"`
	BusinessID     uuid.UUID  `json:"business_id"`
	OrderNumber    string     `json:"order_number"`
	CustomerName   string     `json:"customer_name"`
	CustomerPhone  string     `json:"customer_phone"`
	TableRef       string     `json:"table_ref"`
	Status         string     `json:"status"`
	Subtotal       string     `json:"subtotal"`
	PackingCosts   string     `json:"packing_costs"`
	VatRate        string     `json:"vat_rate"`
	VatAmount      string     `json:"vat_amount"`
	AdditionalCost string     `json:"additional_cost"`
	TotalAmount    string     `json:"total_amount"`
	RefundedAmount string     `json:"refunded_amount"`
	Notes          *string    `json:"notes"`
	CreatedBy      uuid.UUID  `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

type orderItemResponse struct {
	ID               uuid.UUID `json:"id"`
	ItemRef          string    `json:"item_ref"`
	Name             string    `json:"name"`
	UnitPrice        string    `json:"unit_price"`
	Quantity         int32     `json:"quantity"`
	PackingCost      string    `json:"packing_cost"`
	IsPacked         bool      `json:"is_packed"`
	RefundedQuantity int32     `json:"refunded_quantity"`
}

type orderDetailResponse struct {
	orderResponse
	Items    []orderItemResponse `json:"items"`
	Payments []paymentResponse   `json:"payments"`
	Refunds  []refundResponse    `json:"refunds"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// --- Handlers ---

// Quote handles POST /businesses/{bid}/orders/quote. It prices a cart
// without storing anything.
func (h *OrderHandler) Quote(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid business ID"})
		return
	}

	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	rate, ok := h.vatRate(w, r, businessID)
	if !ok {
		return
	}

	calc, err := billing.CalculateTotals(toBillingItems(req.Items), req.AdditionalCost, rate)
	if err != nil {
		var calcErr *billing.CalculationError
		if errors.As(err, &calcErr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": calcErr.Error()})
			return
		}
		log.Printf("ERROR: quote order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		Calculation: calc,
		VATRate:     rate,
		Display:     calc.Display(),
	})
}

// Validate handles POST /businesses/{bid}/orders/validate. It always answers
// 200 with the full list of problems so a form can show them together.
func (h *OrderHandler) Validate(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid business ID"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	rate, ok := h.vatRate(w, r, businessID)
	if !ok {
		return
	}

	res := billing.ValidateOrder(billing.OrderData{
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		TableRef:       req.TableRef,
		SelectedItems:  toBillingItems(req.Items),
		AdditionalCost: req.AdditionalCost,
		TotalAmount:    req.TotalAmount,
	}, rate)
	if res.Errors == nil {
		res.Errors = []string{}
	}

	writeJSON(w, http.StatusOK, res)
}

// Create handles POST /businesses/{bid}/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid business ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		BusinessID:     businessID,
		CreatedBy:      claims.UserID,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		TableRef:       req.TableRef,
		Notes:          req.Notes,
		Items:          toBillingItems(req.Items),
		AdditionalCost: req.AdditionalCost,
		TotalAmount:    req.TotalAmount,
	})
	if err != nil {
		var vErr *service.ValidationError
		switch {
		case errors.As(err, &vErr):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":  "order validation failed",
				"errors": vErr.Errors,
			})
		case errors.Is(err, service.ErrBusinessNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "business not found"})
		case errors.Is(err, service.ErrBusinessInactive):
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "business is not active"})
		default:
			log.Printf("ERROR: create order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	resp := orderDetailResponse{
		orderResponse: dbOrderToResponse(result.Order),
		Items:         make([]orderItemResponse, len(result.Items)),
		Payments:      []paymentResponse{},
		Refunds:       []refundResponse{},
	}
	for i, item := range result.Items {
		resp.Items[i] = dbOrderItemToResponse(item)
	}
	h.cacheDetail(r.Context(), resp)

	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /businesses/{bid}/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid business ID"})
		return
	}

	// Parse pagination
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListOrdersParams{
		BusinessID: businessID,
		Limit:      int32(limit),
		Offset:     int32(offset),
	}

	if s := r.URL.Query().Get("status"); s != "" {
		if !isValidOrderStatus(s) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status filter"})
			return
		}
		params.Status = pgtype.Text{String: s, Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o)
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: resp,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /businesses/{bid}/orders/{id}. Served from the cache when
// possible; a miss assembles the order from the database and fills it.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid business ID"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var cached orderDetailResponse
	hit, err := h.cache.Get(r.Context(), orderID.String(), &cached)
	if err != nil {
		log.Printf("WARNING: read cached order %s: %v", orderID, err)
	}
	if hit && cached.BusinessID == businessID {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{
		ID:         orderID,
		BusinessID: businessID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	payments, err := h.store.ListPaymentsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	refunds, err := h.store.ListRefundsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list refunds: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := orderDetailResponse{
		orderResponse: dbOrderToResponse(order),
		Items:         make([]orderItemResponse, len(items)),
		Payments:      make([]paymentResponse, len(payments)),
		Refunds:       make([]refundResponse, len(refunds)),
	}
	for i, item := range items {
		resp.Items[i] = dbOrderItemToResponse(item)
	}
	for i, p := range payments {
		resp.Payments[i] = dbPaymentToResponse(p)
	}
	for i, rf := range refunds {
		resp.Refunds[i] = dbRefundToResponse(rf)
	}
	h.cacheDetail(r.Context(), resp)

	writeJSON(w, http.StatusOK, resp)
}

// Cancel handles POST /businesses/{bid}/orders/{id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid business ID"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	// The SQL enforces the precondition atomically: only a NEW order with no
	// completed payment is updated.
	cancelled, err := h.store.CancelOrder(r.Context(), database.CancelOrderParams{
		ID:         orderID,
		BusinessID: businessID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			current, fetchErr := h.store.GetOrder(r.Context(), database.GetOrderParams{
				ID:         orderID,
				BusinessID: businessID,
			})
			if fetchErr != nil {
				if errors.Is(fetchErr, pgx.ErrNoRows) {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
					return
				}
				log.Printf("ERROR: get order for cancel: %v", fetchErr)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
				return
			}
			switch current.Status {
			case enum.OrderStatusCancelled:
				writeJSON(w, http.StatusConflict, map[string]string{"error": "order is already cancelled"})
			case enum.OrderStatusNew:
				writeJSON(w, http.StatusConflict, map[string]string{"error": "cannot cancel an order that has payments"})
			default:
				writeJSON(w, http.StatusConflict, map[string]string{"error": "only new orders can be cancelled"})
			}
			return
		}
		log.Printf("ERROR: cancel order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.hooks.Invalidate(r.Context(), orderID)
	snapshot := service.SnapshotOf(cancelled)
	h.hooks.Publish(r.Context(), enum.EventOrderCancelled, businessID, orderID, snapshot)
	h.hooks.Notifier.Notify(businessID, enum.EventOrderCancelled, snapshot)

	writeJSON(w, http.StatusOK, dbOrderToResponse(cancelled))
}

// --- Helpers ---

// vatRate writes the error response itself and reports false on failure.
func (h *OrderHandler) vatRate(w http.ResponseWriter, r *http.Request, businessID uuid.UUID) (float64, bool) {
	rate, err := h.svc.VATRate(r.Context(), businessID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBusinessNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "business not found"})
		case errors.Is(err, service.ErrBusinessInactive):
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "business is not active"})
		default:
			log.Printf("ERROR: get vat rate: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return 0, false
	}
	return rate, true
}

func (h *OrderHandler) cacheDetail(ctx context.Context, resp orderDetailResponse) {
	if err := h.cache.Set(ctx, resp.ID.String(), resp); err != nil {
		log.Printf("WARNING: cache order %s: %v", resp.ID, err)
	}
}

func toBillingItems(items []orderItemRequest) []billing.Item {
	out := make([]billing.Item, len(items))
	for i, it := range items {
		out[i] = billing.Item{
			ID:          it.ID,
			Name:        it.Name,
			Price:       it.Price,
			Quantity:    it.Quantity,
			PackingCost: it.PackingCost,
			IsPacked:    it.IsPacked,
		}
	}
	return out
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	return service.NumericToDecimal(n).StringFixed(2)
}

func rateToString(n pgtype.Numeric) string {
	return service.NumericToDecimal(n).StringFixed(4)
}

func dbOrderToResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		BusinessID:     o.BusinessID,
		OrderNumber:    o.OrderNumber,
		CustomerName:   o.CustomerName,
		CustomerPhone:  o.CustomerPhone,
		TableRef:       o.TableRef,
		Status:         o.Status,
		Subtotal:       numericToString(o.Subtotal),
		PackingCosts:   numericToString(o.PackingCosts),
		VatRate:        rateToString(o.VatRate),
		VatAmount:      numericToString(o.VatAmount),
		AdditionalCost: numericToString(o.AdditionalCost),
		TotalAmount:    numericToString(o.TotalAmount),
		RefundedAmount: numericToString(o.RefundedAmount),
		CreatedBy:      o.CreatedBy,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if o.Notes.Valid {
		resp.Notes = &o.Notes.String
	}
	if o.CompletedAt.Valid {
		resp.CompletedAt = &o.CompletedAt.Time
	}
	return resp
}

func dbOrderItemToResponse(item database.OrderItem) orderItemResponse {
	return orderItemResponse{
		ID:               item.ID,
		ItemRef:          item.ItemRef,
		Name:             item.Name,
		UnitPrice:        numericToString(item.UnitPrice),
		Quantity:         item.Quantity,
		PackingCost:      numericToString(item.PackingCost),
		IsPacked:         item.IsPacked,
		RefundedQuantity: item.RefundedQuantity,
	}
}

func isValidOrderStatus(s string) bool {
	switch s {
	case enum.OrderStatusNew, enum.OrderStatusCompleted, enum.OrderStatusPartiallyRefunded,
		enum.OrderStatusRefunded, enum.OrderStatusCancelled:
		return true
	}
	return false
}
