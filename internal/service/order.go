package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tablebill/api/internal/billing"
	"github.com/tablebill/api/internal/database"
	"github.com/tablebill/api/internal/enum"
)

const maxOrderNumberRetries = 3

// Errors returned by the order service.
var (
	ErrBusinessNotFound = errors.New("business not found")
	ErrBusinessInactive = errors.New("business is not active")
)

// ValidationError carries every message produced by order validation.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid order: " + strings.Join(e.Errors, "; ")
}

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// BusinessStore loads the business an order is billed under.
type BusinessStore interface {
	GetBusiness(ctx context.Context, id uuid.UUID) (database.Business, error)
}

// OrderStore defines the DB methods needed to create orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetNextOrderNumber(ctx context.Context, businessID uuid.UUID) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// CreateOrderRequest is a submitted order. TotalAmount is the total the
// client displayed and must agree with the server's calculation.
type CreateOrderRequest struct {
	BusinessID     uuid.UUID
	CreatedBy      uuid.UUID
	CustomerName   string
	CustomerPhone  string
	TableRef       string
	Notes          string
	Items          []billing.Item
	AdditionalCost float64
	TotalAmount    float64
}

// CreateOrderResult is the persisted order with its items and the
// calculation it was billed with.
type CreateOrderResult struct {
	Order       database.Order
	Items       []database.OrderItem
	Calculation billing.Calculation
}

// OrderService handles order creation.
type OrderService struct {
	pool       TxBeginner
	newStore   NewOrderStore
	businesses BusinessStore
	hooks      Hooks
}

func NewOrderService(pool TxBeginner, newStore NewOrderStore, businesses BusinessStore, hooks Hooks) *OrderService {
	return &OrderService{
		pool:       pool,
		newStore:   newStore,
		businesses: businesses,
		hooks:      hooks.WithDefaults(),
	}
}

// VATRate returns the VAT rate configured for a business.
func (s *OrderService) VATRate(ctx context.Context, businessID uuid.UUID) (float64, error) {
	business, err := s.businesses.GetBusiness(ctx, businessID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrBusinessNotFound
		}
		return 0, fmt.Errorf("get business: %w", err)
	}
	if !business.IsActive {
		return 0, ErrBusinessInactive
	}
	return numericToFloat(business.VatRate), nil
}

// CreateOrder validates the submission against the business VAT rate,
// recomputes its totals and stores the order atomically. Retries up to
// maxOrderNumberRetries times when a concurrent insert takes the same
// order number.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	vatRate, err := s.VATRate(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}

	res := billing.ValidateOrder(billing.OrderData{
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		TableRef:       req.TableRef,
		SelectedItems:  req.Items,
		AdditionalCost: req.AdditionalCost,
		TotalAmount:    req.TotalAmount,
	}, vatRate)
	if !res.IsValid {
		s.hooks.Metrics.ValidationFailures.Inc()
		return nil, &ValidationError{Errors: res.Errors}
	}

	calc, err := billing.CalculateTotals(req.Items, req.AdditionalCost, vatRate)
	if err != nil {
		return nil, fmt.Errorf("calculate totals: %w", err)
	}

	var result *CreateOrderResult
	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err = s.createOrderTx(ctx, req, calc, vatRate)
		if err == nil {
			break
		}
		if !isOrderNumberConflict(err) {
			return nil, err
		}
		lastErr = err
	}
	if result == nil {
		return nil, lastErr
	}

	s.hooks.Metrics.OrdersCreated.Inc()
	snapshot := SnapshotOf(result.Order)
	s.hooks.Publish(ctx, enum.EventOrderCreated, req.BusinessID, result.Order.ID, snapshot)
	s.hooks.Notifier.Notify(req.BusinessID, enum.EventOrderCreated, snapshot)

	return result, nil
}

// isOrderNumberConflict reports a unique violation on the per-business
// order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_business_id_order_number_key"
	}
	return false
}

func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest, calc billing.Calculation, vatRate float64) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	nextNum, err := store.GetNextOrderNumber(ctx, req.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}

	notes := pgtype.Text{}
	if req.Notes != "" {
		notes = pgtype.Text{String: req.Notes, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		BusinessID:     req.BusinessID,
		OrderNumber:    fmt.Sprintf("ORD-%03d", nextNum),
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerPhone:  req.CustomerPhone,
		TableRef:       strings.TrimSpace(req.TableRef),
		Subtotal:       floatToNumeric(calc.Subtotal),
		PackingCosts:   floatToNumeric(calc.PackingCosts),
		VatRate:        rateToNumeric(vatRate),
		VatAmount:      floatToNumeric(calc.VATAmount),
		AdditionalCost: floatToNumeric(calc.AdditionalCost),
		TotalAmount:    floatToNumeric(calc.FinalTotal),
		Notes:          notes,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	items := make([]database.OrderItem, 0, len(req.Items))
	for i, it := range req.Items {
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:     order.ID,
			ItemRef:     it.ID,
			Name:        it.Name,
			UnitPrice:   floatToNumeric(it.Price),
			Quantity:    int32(it.Quantity),
			PackingCost: floatToNumeric(max(it.PackingCost, 0)),
			IsPacked:    it.IsPacked,
		})
		if err != nil {
			return nil, fmt.Errorf("item[%d]: create order item: %w", i, err)
		}
		items = append(items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CreateOrderResult{
		Order:       order,
		Items:       items,
		Calculation: calc,
	}, nil
}
