package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, business_id, order_number, customer_name, customer_phone, table_ref, status,
	subtotal, packing_costs, vat_rate, vat_amount, additional_cost, total_amount, refunded_amount,
	notes, created_by, created_at, updated_at, completed_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.BusinessID,
		&o.OrderNumber,
		&o.CustomerName,
		&o.CustomerPhone,
		&o.TableRef,
		&o.Status,
		&o.Subtotal,
		&o.PackingCosts,
		&o.VatRate,
		&o.VatAmount,
		&o.AdditionalCost,
		&o.TotalAmount,
		&o.RefundedAmount,
		&o.Notes,
		&o.CreatedBy,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.CompletedAt,
	)
	return o, err
}

const orderItemColumns = `id, order_id, item_ref, name, unit_price, quantity, packing_cost, is_packed,
	refunded_quantity, created_at`

func scanOrderItem(row interface{ Scan(...any) error }) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.ItemRef,
		&i.Name,
		&i.UnitPrice,
		&i.Quantity,
		&i.PackingCost,
		&i.IsPacked,
		&i.RefundedQuantity,
		&i.CreatedAt,
	)
	return i, err
}

const getNextOrderNumber = `-- name: GetNextOrderNumber :one
SELECT (COALESCE(MAX(CAST(SUBSTRING(order_number FROM 5) AS INTEGER)), 0) + 1)::int4
FROM orders
WHERE business_id = $1
`

func (q *Queries) GetNextOrderNumber(ctx context.Context, businessID uuid.UUID) (int32, error) {
	var next int32
	err := q.db.QueryRow(ctx, getNextOrderNumber, businessID).Scan(&next)
	return next, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (
	business_id, order_number, customer_name, customer_phone, table_ref,
	subtotal, packing_costs, vat_rate, vat_amount, additional_cost, total_amount,
	notes, created_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	BusinessID     uuid.UUID      `json:"business_id"`
	OrderNumber    string         `json:"order_number"`
	CustomerName   string         `json:"customer_name"`
	CustomerPhone  string         `json:"customer_phone"`
	TableRef       string         `json:"table_ref"`
	Subtotal       pgtype.Numeric `json:"subtotal"`
	PackingCosts   pgtype.Numeric `json:"packing_costs"`
	VatRate        pgtype.Numeric `json:"vat_rate"`
	VatAmount      pgtype.Numeric `json:"vat_amount"`
	AdditionalCost pgtype.Numeric `json:"additional_cost"`
	TotalAmount    pgtype.Numeric `json:"total_amount"`
	Notes          pgtype.Text    `json:"notes"`
	CreatedBy      uuid.UUID      `json:"created_by"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.BusinessID,
		arg.OrderNumber,
		arg.CustomerName,
		arg.CustomerPhone,
		arg.TableRef,
		arg.Subtotal,
		arg.PackingCosts,
		arg.VatRate,
		arg.VatAmount,
		arg.AdditionalCost,
		arg.TotalAmount,
		arg.Notes,
		arg.CreatedBy,
	))
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (order_id, item_ref, name, unit_price, quantity, packing_cost, is_packed)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + orderItemColumns

type CreateOrderItemParams struct {
	OrderID     uuid.UUID      `json:"order_id"`
	ItemRef     string         `json:"item_ref"`
	Name        string         `json:"name"`
	UnitPrice   pgtype.Numeric `json:"unit_price"`
	Quantity    int32          `json:"quantity"`
	PackingCost pgtype.Numeric `json:"packing_cost"`
	IsPacked    bool           `json:"is_packed"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.ItemRef,
		arg.Name,
		arg.UnitPrice,
		arg.Quantity,
		arg.PackingCost,
		arg.IsPacked,
	))
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders
WHERE id = $1 AND business_id = $2
`

type GetOrderParams struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, arg.ID, arg.BusinessID))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders
WHERE id = $1 AND business_id = $2
FOR NO KEY UPDATE
`

type GetOrderForUpdateParams struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
}

func (q *Queries) GetOrderForUpdate(ctx context.Context, arg GetOrderForUpdateParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, arg.ID, arg.BusinessID))
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE business_id = $1
  AND ($2::text IS NULL OR status = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4
`

type ListOrdersParams struct {
	BusinessID uuid.UUID   `json:"business_id"`
	Status     pgtype.Text `json:"status"`
	Limit      int32       `json:"limit"`
	Offset     int32       `json:"offset"`
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.BusinessID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listOrderItemsByOrder = `-- name: ListOrderItemsByOrder :many
SELECT ` + orderItemColumns + ` FROM order_items
WHERE order_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		i, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const completeOrder = `-- name: CompleteOrder :one
UPDATE orders
SET status = 'COMPLETED', completed_at = now(), updated_at = now()
WHERE id = $1 AND status = 'NEW'
RETURNING ` + orderColumns

func (q *Queries) CompleteOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, completeOrder, id))
}

const cancelOrder = `-- name: CancelOrder :one
UPDATE orders
SET status = 'CANCELLED', updated_at = now()
WHERE id = $1 AND business_id = $2 AND status = 'NEW'
  AND NOT EXISTS (SELECT 1 FROM payments WHERE order_id = $1 AND status = 'COMPLETED')
RETURNING ` + orderColumns

type CancelOrderParams struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
}

func (q *Queries) CancelOrder(ctx context.Context, arg CancelOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, cancelOrder, arg.ID, arg.BusinessID))
}

const applyOrderRefund = `-- name: ApplyOrderRefund :one
UPDATE orders
SET refunded_amount = refunded_amount + $2, status = $3, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type ApplyOrderRefundParams struct {
	ID     uuid.UUID      `json:"id"`
	Amount pgtype.Numeric `json:"amount"`
	Status string         `json:"status"`
}

func (q *Queries) ApplyOrderRefund(ctx context.Context, arg ApplyOrderRefundParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, applyOrderRefund, arg.ID, arg.Amount, arg.Status))
}

const incrementRefundedQuantity = `-- name: IncrementRefundedQuantity :one
UPDATE order_items
SET refunded_quantity = refunded_quantity + $2
WHERE id = $1 AND refunded_quantity + $2 <= quantity
RETURNING ` + orderItemColumns

type IncrementRefundedQuantityParams struct {
	ID       uuid.UUID `json:"id"`
	Quantity int32     `json:"quantity"`
}

func (q *Queries) IncrementRefundedQuantity(ctx context.Context, arg IncrementRefundedQuantityParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, incrementRefundedQuantity, arg.ID, arg.Quantity))
}
