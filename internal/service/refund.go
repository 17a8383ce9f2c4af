package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tablebill/api/internal/billing"
	"github.com/tablebill/api/internal/database"
	"github.com/tablebill/api/internal/enum"
)

// Errors returned by the refund service.
var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrOrderNotRefundable     = errors.New("order cannot be refunded in its current status")
	ErrUnknownRefundItem      = errors.New("item does not belong to this order")
	ErrDuplicateRefundItem    = errors.New("item listed more than once")
	ErrInvalidRefundQuantity  = errors.New("refund quantity must be at least 1")
	ErrRefundQuantityConflict = errors.New("item was refunded concurrently")
)

// RefundStore defines the DB methods needed to price and record refunds.
// Satisfied by *database.Queries (and its WithTx variant).
type RefundStore interface {
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	SumPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error)
	SumRefundedItemsByOrder(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error)
	CreateRefund(ctx context.Context, arg database.CreateRefundParams) (database.Refund, error)
	CreateRefundItem(ctx context.Context, arg database.CreateRefundItemParams) (database.RefundItem, error)
	IncrementRefundedQuantity(ctx context.Context, arg database.IncrementRefundedQuantityParams) (database.OrderItem, error)
	ApplyOrderRefund(ctx context.Context, arg database.ApplyOrderRefundParams) (database.Order, error)
}

// NewRefundStore creates a RefundStore from a DBTX (pool or tx).
type NewRefundStore func(db database.DBTX) RefundStore

// RefundItemRequest asks for quantity units of one order line back.
type RefundItemRequest struct {
	OrderItemID uuid.UUID
	Quantity    int
}

type PreviewRefundRequest struct {
	BusinessID uuid.UUID
	OrderID    uuid.UUID
	Items      []RefundItemRequest
}

type IssueRefundRequest struct {
	BusinessID uuid.UUID
	OrderID    uuid.UUID
	CreatedBy  uuid.UUID
	Reason     string
	Items      []RefundItemRequest
}

// RefundPreview is what a refund would look like. Refundable is false with
// a Problem when Issue would reject it.
type RefundPreview struct {
	Breakdown     billing.RefundBreakdown
	MaxRefundable float64
	Refundable    bool
	Problem       string
}

type IssueRefundResult struct {
	Refund    database.Refund
	Items     []database.RefundItem
	Order     database.Order
	Breakdown billing.RefundBreakdown
}

// RefundService prices partial refunds and records them.
type RefundService struct {
	pool     TxBeginner
	newStore NewRefundStore
	hooks    Hooks
}

func NewRefundService(pool TxBeginner, newStore NewRefundStore, hooks Hooks) *RefundService {
	return &RefundService{pool: pool, newStore: newStore, hooks: hooks.WithDefaults()}
}

// pricedRefund is a refund computed against the locked order.
type pricedRefund struct {
	order         database.Order
	items         map[string]database.OrderItem
	breakdown     billing.RefundBreakdown
	maxRefundable float64
}

// price locks the order, prices the requested lines and cross-checks the
// result against what is recorded. It returns input errors directly;
// reconciliation and limit problems are left for the caller to judge.
func (s *RefundService) price(ctx context.Context, store RefundStore, businessID, orderID uuid.UUID, reqItems []RefundItemRequest) (*pricedRefund, error) {
	order, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{
		ID:         orderID,
		BusinessID: businessID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order for refund: %w", err)
	}

	switch order.Status {
	case enum.OrderStatusCompleted, enum.OrderStatusPartiallyRefunded:
	default:
		return nil, fmt.Errorf("%w: %s", ErrOrderNotRefundable, order.Status)
	}

	requested := make(map[uuid.UUID]int, len(reqItems))
	for i, it := range reqItems {
		if it.Quantity < 1 {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidRefundQuantity)
		}
		if _, dup := requested[it.OrderItemID]; dup {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrDuplicateRefundItem)
		}
		requested[it.OrderItemID] = it.Quantity
	}

	orderItems, err := store.ListOrderItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	byID := make(map[string]database.OrderItem, len(orderItems))
	lines := make([]billing.RefundLine, 0, len(orderItems))
	refundedUnits := 0
	for _, it := range orderItems {
		byID[it.ID.String()] = it
		refundedUnits += int(it.RefundedQuantity)
		lines = append(lines, billing.RefundLine{
			ItemID:           it.ID.String(),
			Name:             it.Name,
			UnitPrice:        numericToFloat(it.UnitPrice),
			PackingCost:      numericToFloat(it.PackingCost),
			IsPacked:         it.IsPacked,
			OriginalQuantity: int(it.Quantity - it.RefundedQuantity),
			RefundQuantity:   requested[it.ID],
		})
	}
	for i, it := range reqItems {
		if _, ok := byID[it.OrderItemID.String()]; !ok {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrUnknownRefundItem)
		}
	}

	breakdown, err := billing.CalculateRefund(lines, numericToFloat(order.VatRate))
	if err != nil {
		return nil, err
	}

	refundedItems, err := store.SumRefundedItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("sum refunded items: %w", err)
	}
	// Still billed: items net of refunded items, and the grand total net of
	// the additional cost and everything refunded so far.
	billedSubtotal := NumericToDecimal(order.Subtotal).
		Add(NumericToDecimal(order.PackingCosts)).
		Sub(NumericToDecimal(refundedItems))
	billedTotal := NumericToDecimal(order.TotalAmount).
		Sub(NumericToDecimal(order.AdditionalCost)).
		Sub(NumericToDecimal(order.RefundedAmount))
	breakdown = breakdown.AgainstRecorded(billing.RecordedBill{
		Subtotal:      billedSubtotal.InexactFloat64(),
		Total:         billedTotal.InexactFloat64(),
		RefundedUnits: refundedUnits,
	})

	paid, err := store.SumPaymentsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("sum payments: %w", err)
	}
	maxRefundable := NumericToDecimal(paid).Sub(NumericToDecimal(order.RefundedAmount))

	return &pricedRefund{
		order:         order,
		items:         byID,
		breakdown:     breakdown,
		maxRefundable: maxRefundable.InexactFloat64(),
	}, nil
}

// Preview prices a refund without recording it.
func (s *RefundService) Preview(ctx context.Context, req PreviewRefundRequest) (*RefundPreview, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	p, err := s.price(ctx, s.newStore(tx), req.BusinessID, req.OrderID, req.Items)
	if err != nil {
		return nil, err
	}

	preview := &RefundPreview{
		Breakdown:     p.breakdown,
		MaxRefundable: p.maxRefundable,
		Refundable:    true,
	}
	if err := p.breakdown.Reconcile(); err != nil {
		preview.Refundable = false
		preview.Problem = err.Error()
	} else if err := billing.CheckRefundable(p.breakdown, p.maxRefundable); err != nil {
		preview.Refundable = false
		preview.Problem = err.Error()
	}
	return preview, nil
}

// Issue records a refund. It is rejected before any write if the refund
// does not reconcile with the order or exceeds what is left to refund.
func (s *RefundService) Issue(ctx context.Context, req IssueRefundRequest) (*IssueRefundResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	p, err := s.price(ctx, store, req.BusinessID, req.OrderID, req.Items)
	if err != nil {
		return nil, err
	}
	b := p.breakdown

	if err := b.Reconcile(); err != nil {
		s.hooks.Metrics.ReconciliationFailures.Inc()
		log.Printf("ERROR: refund for order %s blocked: %v", req.OrderID, err)
		return nil, err
	}
	if err := billing.CheckRefundable(b, p.maxRefundable); err != nil {
		return nil, err
	}

	reason := pgtype.Text{}
	if req.Reason != "" {
		reason = pgtype.Text{String: req.Reason, Valid: true}
	}

	refund, err := store.CreateRefund(ctx, database.CreateRefundParams{
		OrderID:     req.OrderID,
		ItemsAmount: floatToNumeric(b.ItemsRefundAmount),
		VatAmount:   floatToNumeric(b.VATRefundAmount),
		TotalAmount: floatToNumeric(b.TotalRefundAmount),
		Reason:      reason,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}

	refundItems := make([]database.RefundItem, 0, len(b.Lines))
	for i, line := range b.Lines {
		orderItem := p.items[line.ItemID]

		ri, err := store.CreateRefundItem(ctx, database.CreateRefundItemParams{
			RefundID:    refund.ID,
			OrderItemID: orderItem.ID,
			Quantity:    int32(line.Quantity),
			Amount:      floatToNumeric(line.Amount),
		})
		if err != nil {
			return nil, fmt.Errorf("line[%d]: create refund item: %w", i, err)
		}

		if _, err := store.IncrementRefundedQuantity(ctx, database.IncrementRefundedQuantityParams{
			ID:       orderItem.ID,
			Quantity: int32(line.Quantity),
		}); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("line[%d]: %w", i, ErrRefundQuantityConflict)
			}
			return nil, fmt.Errorf("line[%d]: increment refunded quantity: %w", i, err)
		}
		refundItems = append(refundItems, ri)
	}

	status := enum.OrderStatusPartiallyRefunded
	if b.RemainingQuantity == 0 {
		status = enum.OrderStatusRefunded
	}
	order, err := store.ApplyOrderRefund(ctx, database.ApplyOrderRefundParams{
		ID:     req.OrderID,
		Amount: floatToNumeric(b.TotalRefundAmount),
		Status: status,
	})
	if err != nil {
		return nil, fmt.Errorf("apply order refund: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.hooks.Metrics.RefundsIssued.Inc()
	s.hooks.Metrics.RefundAmount.Add(b.TotalRefundAmount)
	s.hooks.Invalidate(ctx, order.ID)

	payload := struct {
		Order     OrderSnapshot           `json:"order"`
		RefundID  uuid.UUID               `json:"refund_id"`
		Breakdown billing.RefundBreakdown `json:"breakdown"`
	}{SnapshotOf(order), refund.ID, b}
	s.hooks.Publish(ctx, enum.EventOrderRefunded, req.BusinessID, order.ID, payload)
	s.hooks.Notifier.Notify(req.BusinessID, enum.EventRefundIssued, payload)

	return &IssueRefundResult{
		Refund:    refund,
		Items:     refundItems,
		Order:     order,
		Breakdown: b,
	}, nil
}
