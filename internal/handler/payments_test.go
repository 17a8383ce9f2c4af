package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/tablebill/api/internal/database"
	"github.com/tablebill/api/internal/enum"
	"github.com/tablebill/api/internal/handler"
	"github.com/tablebill/api/internal/middleware"
	"github.com/tablebill/api/internal/service"
)

// --- Mock PaymentStore ---

type mockPaymentStore struct {
	orders   map[uuid.UUID]database.Order
	payments map[uuid.UUID]database.Payment // keyed by payment ID
}

func newMockPaymentStore() *mockPaymentStore {
	return &mockPaymentStore{
		orders:   make(map[uuid.UUID]database.Order),
		payments: make(map[uuid.UUID]database.Payment),
	}
}

func (m *mockPaymentStore) GetOrder(_ context.Context, arg database.GetOrderParams) (database.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok || o.BusinessID != arg.BusinessID {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *mockPaymentStore) GetOrderForUpdate(_ context.Context, arg database.GetOrderForUpdateParams) (database.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok || o.BusinessID != arg.BusinessID {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *mockPaymentStore) ListPaymentsByOrder(_ context.Context, orderID uuid.UUID) ([]database.Payment, error) {
	var result []database.Payment
	for _, p := range m.payments {
		if p.OrderID == orderID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *mockPaymentStore) CreatePayment(_ context.Context, arg database.CreatePaymentParams) (database.Payment, error) {
	p := database.Payment{
		ID:              uuid.New(),
		OrderID:         arg.OrderID,
		PaymentMethod:   arg.PaymentMethod,
		Amount:          arg.Amount,
		Status:          enum.PaymentStatusCompleted,
		ReferenceNumber: arg.ReferenceNumber,
		AmountReceived:  arg.AmountReceived,
		ChangeAmount:    arg.ChangeAmount,
		ProcessedBy:     arg.ProcessedBy,
		ProcessedAt:     time.Now(),
	}
	m.payments[p.ID] = p
	return p, nil
}

func (m *mockPaymentStore) SumPaymentsByOrder(_ context.Context, orderID uuid.UUID) (pgtype.Numeric, error) {
	total := decimal.Zero
	for _, p := range m.payments {
		if p.OrderID == orderID && p.Status == enum.PaymentStatusCompleted {
			total = total.Add(service.NumericToDecimal(p.Amount))
		}
	}
	return service.DecimalToNumeric(total), nil
}

func (m *mockPaymentStore) CompleteOrder(_ context.Context, id uuid.UUID) (database.Order, error) {
	o, ok := m.orders[id]
	if !ok || o.Status != enum.OrderStatusNew {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = enum.OrderStatusCompleted
	now := time.Now()
	o.CompletedAt = pgtype.Timestamptz{Time: now, Valid: true}
	o.UpdatedAt = now
	m.orders[id] = o
	return o, nil
}

// --- Helpers ---

func setupPaymentRouter(store *mockPaymentStore, pool *mockPool, th *testHooks) *chi.Mux {
	if pool == nil {
		pool = &mockPool{}
	}
	newStore := func(db database.DBTX) handler.PaymentStore {
		return store
	}
	h := handler.NewPaymentHandler(store, pool, newStore, th.hooks())
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/businesses/{bid}/orders/{id}/payments", h.RegisterRoutes)
	return r
}

func seedPaymentOrder(store *mockPaymentStore, businessID uuid.UUID, status string) database.Order {
	o := testOrder(businessID, status, "9422.50")
	store.orders[o.ID] = o
	return o
}

func paymentsPath(businessID, orderID uuid.UUID) string {
	return "/businesses/" + businessID.String() + "/orders/" + orderID.String() + "/payments"
}

func decodePaymentListResponse(t *testing.T, rr *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var resp []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// --- Add Payment Tests ---

func TestAddPayment_Cash_HappyPath(t *testing.T) {
	store := newMockPaymentStore()
	businessID := uuid.New()
	order := seedPaymentOrder(store, businessID, enum.OrderStatusNew)
	claims := testClaims(businessID)
	th := newTestHooks()
	router := setupPaymentRouter(store, nil, th)

	rr := doAuthRequest(t, router, "POST", paymentsPath(businessID, order.ID), map[string]interface{}{
		"payment_method":  "CASH",
		"amount":          "5000",
		"amount_received": "10000",
	}, claims)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeOrderResponse(t, rr)
	payment := resp["payment"].(map[string]interface{})
	if payment["amount"] != "5000.00" {
		t.Errorf("amount: got %v, want 5000.00", payment["amount"])
	}
	if payment["change_amount"] != "5000.00" {
		t.Errorf("change_amount: got %v, want 5000.00", payment["change_amount"])
	}
	if payment["processed_by"] != claims.UserID.String() {
		t.Errorf("processed_by: got %v, want %v", payment["processed_by"], claims.UserID)
	}

	orderResp := resp["order"].(map[string]interface{})
	if orderResp["status"] != enum.OrderStatusNew {
		t.Errorf("order status: got %v, want NEW", orderResp["status"])
	}

	if got := testutil.ToFloat64(th.metrics.PaymentsRecorded.WithLabelValues("CASH")); got != 1 {
		t.Errorf("payments recorded: got %v, want 1", got)
	}
	if len(th.notifier.types) != 1 || th.notifier.types[0] != enum.EventPaymentAdded {
		t.Errorf("notified: got %v", th.notifier.types)
	}
	if len(th.pub.events) != 0 {
		t.Errorf("partial payment should not publish, got %+v", th.pub.events)
	}
	if len(th.cache.deleted) != 1 || th.cache.deleted[0] != order.ID.String() {
		t.Errorf("invalidated: got %v", th.cache.deleted)
	}
}

func TestAddPayment_Transfer_WithReference(t *testing.T) {
	store := newMockPaymentStore()
	businessID := uuid.New()
	order := seedPaymentOrder(store, businessID, enum.OrderStatusNew)
	claims := testClaims(businessID)
	router := setupPaymentRouter(store, nil, newTestHooks())

	rr := doAuthRequest(t, router, "POST", paymentsPath(businessID, order.ID), map[string]interface{}{
		"payment_method":   "TRANSFER",
		"amount":           "1000",
		"reference_number": "TRF-778812",
	}, claims)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	payment := decodeOrderResponse(t, rr)["payment"].(map[string]interface{})
	if payment["reference_number"] != "TRF-778812" {
		t.Errorf("reference_number: got %v", payment["reference_number"])
	}
	if payment["change_amount"] != nil {
		t.Errorf("change_amount: got %v, want null for non-cash", payment["change_amount"])
	}
}

func TestAddPayment_AutoCompleteOrder(t *testing.T) {
	store := newMockPaymentStore()
	businessID := uuid.New()
	order := seedPaymentOrder(store, businessID, enum.OrderStatusNew)
	claims := testClaims(businessID)
	th := newTestHooks()
	router := setupPaymentRouter(store, nil, th)

	first := doAuthRequest(t, router, "POST", paymentsPath(businessID, order.ID), map[string]interface{}{
		"payment_method": "CARD",
		"amount":         "4000",
	}, claims)
	if first.Code != http.StatusCreated {
		t.Fatalf("first payment: got %d; body: %s", first.Code, first.Body.String())
	}

	rr := doAuthRequest(t, router, "POST", paymentsPath(businessID, order.ID), map[string]interface{}{
		"payment_method": "PAYSTACK",
		"amount":         "5422.50",
	}, claims)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	orderResp := decodeOrderResponse(t, rr)["order"].(map[string]interface{})
	if orderResp["status"] != enum.OrderStatusCompleted {
		t.Errorf("order status: got %v, want COMPLETED", orderResp["status"])
	}
	if orderResp["completed_at"] == nil {
		t.Error("expected completed_at to be set")
	}
	if len(th.pub.events) != 1 || th.pub.events[0].Type != enum.EventOrderCompleted {
		t.Errorf("published: got %+v", th.pub.events)
	}
	if th.pub.events[0].OrderID != order.ID {
		t.Errorf("event order id: got %v, want %v", th.pub.events[0].OrderID, order.ID)
	}
}

func TestAddPayment_ExceedsRemainingBalance(t *testing.T) {
	store := newMockPaymentStore()
	businessID := uuid.New()
	order := seedPaymentOrder(store, businessID, enum.OrderStatusNew)
	claims := testClaims(businessID)
	router := setupPaymentRouter(store, nil, newTestHooks())

	pid := uuid.New()
	store.payments[pid] = database.Payment{
		ID:            pid,
		OrderID:       order.ID,
		PaymentMethod: enum.PaymentMethodCard,
		Amount:        testNumeric("5000.00"),
		Status:        enum.PaymentStatusCompleted,
	}

	rr := doAuthRequest(t, router, "POST", paymentsPath(businessID, order.ID), map[string]interface{}{
		"payment_method": "CARD",
		"amount":         "4422.51",
	}, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
	if resp := decodeOrderResponse(t, rr); resp["error"] != "payment exceeds remaining balance" {
		t.Errorf("error: got %v", resp["error"])
	}
	if len(store.payments) != 1 {
		t.Errorf("payments: got %d, want 1", len(store.payments))
	}
}

func TestAddPayment_OrderStatusRejected(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{enum.OrderStatusCancelled, "cannot add payment to cancelled order"},
		{enum.OrderStatusCompleted, "order is already fully paid"},
		{enum.OrderStatusPartiallyRefunded, "order is already fully paid"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			store := newMockPaymentStore()
			businessID := uuid.New()
			order := seedPaymentOrder(store, businessID, tt.status)
			router := setupPaymentRouter(store, nil, newTestHooks())

			rr := doAuthRequest(t, router, "POST", paymentsPath(businessID, order.ID), map[string]interface{}{
				"payment_method": "CARD",
				"amount":         "100",
			}, testClaims(businessID))

			if rr.Code != http.StatusConflict {
				t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
			}
			if resp := decodeOrderResponse(t, rr); resp["error"] != tt.want {
				t.Errorf("error: got %v, want %q", resp["error"], tt.want)
			}
		})
	}
}

func TestAddPayment_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing method", map[string]interface{}{"amount": "100"}},
		{"unknown method", map[string]interface{}{"payment_method": "QRIS", "amount": "100"}},
		{"missing amount", map[string]interface{}{"payment_method": "CARD"}},
		{"zero amount", map[string]interface{}{"payment_method": "CARD", "amount": "0"}},
		{"negative amount", map[string]interface{}{"payment_method": "CARD", "amount": "-5"}},
		{"amount rounds to zero", map[string]interface{}{"payment_method": "CARD", "amount": "0.004"}},
		{"non-numeric amount", map[string]interface{}{"payment_method": "CARD", "amount": "abc"}},
		{"cash without amount_received", map[string]interface{}{"payment_method": "CASH", "amount": "100"}},
		{"cash short", map[string]interface{}{"payment_method": "CASH", "amount": "100", "amount_received": "50"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockPaymentStore()
			businessID := uuid.New()
			order := seedPaymentOrder(store, businessID, enum.OrderStatusNew)
			router := setupPaymentRouter(store, nil, newTestHooks())

			rr := doAuthRequest(t, router, "POST", paymentsPath(businessID, order.ID), tt.body, testClaims(businessID))

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
		})
	}
}

func TestAddPayment_OrderNotFound(t *testing.T) {
	store := newMockPaymentStore()
	businessID := uuid.New()
	router := setupPaymentRouter(store, nil, newTestHooks())

	rr := doAuthRequest(t, router, "POST", paymentsPath(businessID, uuid.New()), map[string]interface{}{
		"payment_method": "CARD",
		"amount":         "100",
	}, testClaims(businessID))

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestAddPayment_CommitFailure(t *testing.T) {
	store := newMockPaymentStore()
	businessID := uuid.New()
	order := seedPaymentOrder(store, businessID, enum.OrderStatusNew)
	th := newTestHooks()
	pool := &mockPool{
		beginFn: func(ctx context.Context) (pgx.Tx, error) {
			return &mockTx{commitFn: func(context.Context) error { return errors.New("connection lost") }}, nil
		},
	}
	router := setupPaymentRouter(store, pool, th)

	rr := doAuthRequest(t, router, "POST", paymentsPath(businessID, order.ID), map[string]interface{}{
		"payment_method": "CARD",
		"amount":         "100",
	}, testClaims(businessID))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if len(th.notifier.types) != 0 || len(th.cache.deleted) != 0 {
		t.Error("hooks must not run when the commit fails")
	}
}

// --- List Payments Tests ---

func TestListPayments_HappyPath(t *testing.T) {
	store := newMockPaymentStore()
	businessID := uuid.New()
	order := seedPaymentOrder(store, businessID, enum.OrderStatusNew)

	for _, amt := range []string{"5000.00", "3000.00"} {
		pid := uuid.New()
		store.payments[pid] = database.Payment{
			ID:            pid,
			OrderID:       order.ID,
			PaymentMethod: enum.PaymentMethodCash,
			Amount:        testNumeric(amt),
			Status:        enum.PaymentStatusCompleted,
			ProcessedAt:   time.Now(),
		}
	}

	router := setupPaymentRouter(store, nil, newTestHooks())
	rr := doAuthRequest(t, router, "GET", paymentsPath(businessID, order.ID), nil, testClaims(businessID))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if resp := decodePaymentListResponse(t, rr); len(resp) != 2 {
		t.Errorf("expected 2 payments, got %d", len(resp))
	}
}

func TestListPayments_Empty(t *testing.T) {
	store := newMockPaymentStore()
	businessID := uuid.New()
	order := seedPaymentOrder(store, businessID, enum.OrderStatusNew)

	router := setupPaymentRouter(store, nil, newTestHooks())
	rr := doAuthRequest(t, router, "GET", paymentsPath(businessID, order.ID), nil, testClaims(businessID))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if resp := decodePaymentListResponse(t, rr); len(resp) != 0 {
		t.Errorf("expected 0 payments, got %d", len(resp))
	}
}

func TestListPayments_OtherBusinessOrder(t *testing.T) {
	store := newMockPaymentStore()
	businessID := uuid.New()
	order := seedPaymentOrder(store, uuid.New(), enum.OrderStatusNew)

	router := setupPaymentRouter(store, nil, newTestHooks())
	rr := doAuthRequest(t, router, "GET", paymentsPath(businessID, order.ID), nil, testClaims(businessID))

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}
