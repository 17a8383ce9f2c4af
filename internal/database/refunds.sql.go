package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const refundColumns = `id, order_id, items_amount, vat_amount, total_amount, reason, created_by, created_at`

func scanRefund(row interface{ Scan(...any) error }) (Refund, error) {
	var r Refund
	err := row.Scan(
		&r.ID,
		&r.OrderID,
		&r.ItemsAmount,
		&r.VatAmount,
		&r.TotalAmount,
		&r.Reason,
		&r.CreatedBy,
		&r.CreatedAt,
	)
	return r, err
}

const createRefund = `-- name: CreateRefund :one
INSERT INTO refunds (order_id, items_amount, vat_amount, total_amount, reason, created_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + refundColumns

type CreateRefundParams struct {
	OrderID     uuid.UUID      `json:"order_id"`
	ItemsAmount pgtype.Numeric `json:"items_amount"`
	VatAmount   pgtype.Numeric `json:"vat_amount"`
	TotalAmount pgtype.Numeric `json:"total_amount"`
	Reason      pgtype.Text    `json:"reason"`
	CreatedBy   uuid.UUID      `json:"created_by"`
}

func (q *Queries) CreateRefund(ctx context.Context, arg CreateRefundParams) (Refund, error) {
	return scanRefund(q.db.QueryRow(ctx, createRefund,
		arg.OrderID,
		arg.ItemsAmount,
		arg.VatAmount,
		arg.TotalAmount,
		arg.Reason,
		arg.CreatedBy,
	))
}

const createRefundItem = `-- name: CreateRefundItem :one
INSERT INTO refund_items (refund_id, order_item_id, quantity, amount)
VALUES ($1, $2, $3, $4)
RETURNING id, refund_id, order_item_id, quantity, amount
`

type CreateRefundItemParams struct {
	RefundID    uuid.UUID      `json:"refund_id"`
	OrderItemID uuid.UUID      `json:"order_item_id"`
	Quantity    int32          `json:"quantity"`
	Amount      pgtype.Numeric `json:"amount"`
}

func (q *Queries) CreateRefundItem(ctx context.Context, arg CreateRefundItemParams) (RefundItem, error) {
	var i RefundItem
	err := q.db.QueryRow(ctx, createRefundItem,
		arg.RefundID,
		arg.OrderItemID,
		arg.Quantity,
		arg.Amount,
	).Scan(
		&i.ID,
		&i.RefundID,
		&i.OrderItemID,
		&i.Quantity,
		&i.Amount,
	)
	return i, err
}

const listRefundsByOrder = `-- name: ListRefundsByOrder :many
SELECT ` + refundColumns + ` FROM refunds
WHERE order_id = $1
ORDER BY created_at
`

func (q *Queries) ListRefundsByOrder(ctx context.Context, orderID uuid.UUID) ([]Refund, error) {
	rows, err := q.db.Query(ctx, listRefundsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Refund{}
	for rows.Next() {
		r, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const sumRefundedItemsByOrder = `-- name: SumRefundedItemsByOrder :one
SELECT COALESCE(SUM(items_amount), 0)::numeric(12,2) FROM refunds
WHERE order_id = $1
`

// SumRefundedItemsByOrder returns the refunded principal (excluding VAT).
func (q *Queries) SumRefundedItemsByOrder(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error) {
	var total pgtype.Numeric
	err := q.db.QueryRow(ctx, sumRefundedItemsByOrder, orderID).Scan(&total)
	return total, err
}
