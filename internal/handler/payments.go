package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tablebill/api/internal/database"
	"github.com/tablebill/api/internal/enum"
	"github.com/tablebill/api/internal/middleware"
	"github.com/tablebill/api/internal/service"
)

// PaymentStore defines the database methods needed by payment handlers.
type PaymentStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	SumPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error)
	CompleteOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
}

// NewPaymentStore creates a PaymentStore from a DBTX (pool or tx).
type NewPaymentStore func(db database.DBTX) PaymentStore

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	store    PaymentStore
	pool     service.TxBeginner
	newStore NewPaymentStore
	hooks    service.Hooks
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(store PaymentStore, pool service.TxBeginner, newStore NewPaymentStore, hooks service.Hooks) *PaymentHandler {
	return &PaymentHandler{store: store, pool: pool, newStore: newStore, hooks: hooks.WithDefaults()}
}

// RegisterRoutes registers payment endpoints on the given Chi router.
// Expected to be mounted at /businesses/{bid}/orders/{id}/payments
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Add)
	r.Get("/", h.List)
}

// --- Request / Response types ---

type addPaymentRequest struct {
	PaymentMethod   string `json:"payment_method"`
	Amount          string `json:"amount"`
	AmountReceived  string `json:"amount_received"`
	ReferenceNumber string `json:"reference_number"`
}

type paymentResponse struct {
	ID              uuid.UUID `json:"id"`
	OrderID         uuid.UUID `json:"order_id"`
	PaymentMethod   string    `json:"payment_method"`
	Amount          string    `json:"amount"`
	Status          string    `json:"status"`
	ReferenceNumber *string   `json:"reference_number"`
	AmountReceived  *string   `json:"amount_received"`
	ChangeAmount    *string   `json:"change_amount"`
	ProcessedBy     uuid.UUID `json:"processed_by"`
	ProcessedAt     time.Time `json:"processed_at"`
}

type paymentEvent struct {
	Payment paymentResponse       `json:"payment"`
	Order   service.OrderSnapshot `json:"order"`
}

// --- Handlers ---

// Add handles POST /businesses/{bid}/orders/{id}/payments.
func (h *PaymentHandler) Add(w http.ResponseWriter, r *http.Request) {
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

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req addPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.PaymentMethod == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payment_method is required"})
		return
	}
	if !isValidPaymentMethod(req.PaymentMethod) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment_method"})
		return
	}

	if req.Amount == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount is required"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.Round(2).IsPositive() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be positive"})
		return
	}
	amount = amount.Round(2)

	// CASH records what was handed over and the change given back.
	var amountReceived pgtype.Numeric
	var changeAmount pgtype.Numeric
	if req.PaymentMethod == enum.PaymentMethodCash {
		if req.AmountReceived == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount_received is required for CASH payments"})
			return
		}
		received, err := decimal.NewFromString(req.AmountReceived)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount_received"})
			return
		}
		if received.LessThan(amount) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount_received must be >= amount"})
			return
		}
		amountReceived = service.DecimalToNumeric(received)
		changeAmount = service.DecimalToNumeric(received.Sub(amount))
	}

	var referenceNumber pgtype.Text
	if req.ReferenceNumber != "" {
		referenceNumber = pgtype.Text{String: req.ReferenceNumber, Valid: true}
	}

	// Begin transaction BEFORE reading order state so two concurrent payments
	// cannot both pass the balance check.
	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		log.Printf("ERROR: begin tx for add payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	defer tx.Rollback(r.Context()) //nolint:errcheck

	txStore := h.newStore(tx)

	order, err := txStore.GetOrderForUpdate(r.Context(), database.GetOrderForUpdateParams{
		ID:         orderID,
		BusinessID: businessID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order for add payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	switch order.Status {
	case enum.OrderStatusNew:
	case enum.OrderStatusCancelled:
		writeJSON(w, http.StatusConflict, map[string]string{"error": "cannot add payment to cancelled order"})
		return
	default:
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order is already fully paid"})
		return
	}

	totalPaid, err := txStore.SumPaymentsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: sum payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	paid := service.NumericToDecimal(totalPaid)
	orderTotal := service.NumericToDecimal(order.TotalAmount)

	if paid.GreaterThanOrEqual(orderTotal) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order is already fully paid"})
		return
	}

	newTotalPaid := paid.Add(amount)
	if newTotalPaid.GreaterThan(orderTotal) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "payment exceeds remaining balance"})
		return
	}

	payment, err := txStore.CreatePayment(r.Context(), database.CreatePaymentParams{
		OrderID:         orderID,
		PaymentMethod:   req.PaymentMethod,
		Amount:          service.DecimalToNumeric(amount),
		ReferenceNumber: referenceNumber,
		AmountReceived:  amountReceived,
		ChangeAmount:    changeAmount,
		ProcessedBy:     claims.UserID,
	})
	if err != nil {
		log.Printf("ERROR: create payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	updatedOrder := order
	completed := false
	if newTotalPaid.GreaterThanOrEqual(orderTotal) {
		updatedOrder, err = txStore.CompleteOrder(r.Context(), orderID)
		if err != nil {
			log.Printf("ERROR: complete order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		completed = true
	}

	if err := tx.Commit(r.Context()); err != nil {
		log.Printf("ERROR: commit tx for add payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	paymentResp := dbPaymentToResponse(payment)
	snapshot := service.SnapshotOf(updatedOrder)

	h.hooks.Invalidate(r.Context(), orderID)
	h.hooks.Metrics.PaymentsRecorded.WithLabelValues(req.PaymentMethod).Inc()
	h.hooks.Notifier.Notify(businessID, enum.EventPaymentAdded, paymentEvent{Payment: paymentResp, Order: snapshot})
	if completed {
		h.hooks.Publish(r.Context(), enum.EventOrderCompleted, businessID, orderID, snapshot)
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"payment": paymentResp,
		"order":   dbOrderToResponse(updatedOrder),
	})
}

// List handles GET /businesses/{bid}/orders/{id}/payments.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
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

	// Verify order exists and belongs to business
	_, err = h.store.GetOrder(r.Context(), database.GetOrderParams{
		ID:         orderID,
		BusinessID: businessID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order for list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	payments, err := h.store.ListPaymentsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]paymentResponse, len(payments))
	for i, p := range payments {
		resp[i] = dbPaymentToResponse(p)
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func isValidPaymentMethod(m string) bool {
	switch m {
	case enum.PaymentMethodCash, enum.PaymentMethodCard, enum.PaymentMethodTransfer, enum.PaymentMethodPaystack:
		return true
	}
	return false
}

func dbPaymentToResponse(p database.Payment) paymentResponse {
	resp := paymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		PaymentMethod: p.PaymentMethod,
		Amount:        numericToString(p.Amount),
		Status:        p.Status,
		ProcessedBy:   p.ProcessedBy,
		ProcessedAt:   p.ProcessedAt,
	}
	if p.ReferenceNumber.Valid {
		resp.ReferenceNumber = &p.ReferenceNumber.String
	}
	if p.AmountReceived.Valid {
		s := numericToString(p.AmountReceived)
		resp.AmountReceived = &s
	}
	if p.ChangeAmount.Valid {
		s := numericToString(p.ChangeAmount)
		resp.ChangeAmount = &s
	}
	return resp
}
