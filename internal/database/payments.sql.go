package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, order_id, payment_method, amount, status, reference_number, amount_received,
	change_amount, processed_by, processed_at`

func scanPayment(row interface{ Scan(...any) error }) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.PaymentMethod,
		&p.Amount,
		&p.Status,
		&p.ReferenceNumber,
		&p.AmountReceived,
		&p.ChangeAmount,
		&p.ProcessedBy,
		&p.ProcessedAt,
	)
	return p, err
}

const createPayment = `-- name: CreatePayment :one
INSERT INTO payments (order_id, payment_method, amount, status, reference_number, amount_received, change_amount, processed_by)
VALUES ($1, $2, $3, 'COMPLETED', $4, $5, $6, $7)
RETURNING ` + paymentColumns

type CreatePaymentParams struct {
	OrderID         uuid.UUID      `json:"order_id"`
	PaymentMethod   string         `json:"payment_method"`
	Amount          pgtype.Numeric `json:"amount"`
	ReferenceNumber pgtype.Text    `json:"reference_number"`
	AmountReceived  pgtype.Numeric `json:"amount_received"`
	ChangeAmount    pgtype.Numeric `json:"change_amount"`
	ProcessedBy     uuid.UUID      `json:"processed_by"`
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, createPayment,
		arg.OrderID,
		arg.PaymentMethod,
		arg.Amount,
		arg.ReferenceNumber,
		arg.AmountReceived,
		arg.ChangeAmount,
		arg.ProcessedBy,
	))
}

const listPaymentsByOrder = `-- name: ListPaymentsByOrder :many
SELECT ` + paymentColumns + ` FROM payments
WHERE order_id = $1
ORDER BY processed_at
`

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, listPaymentsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const sumPaymentsByOrder = `-- name: SumPaymentsByOrder :one
SELECT COALESCE(SUM(amount), 0)::numeric(12,2) FROM payments
WHERE order_id = $1 AND status = 'COMPLETED'
`

func (q *Queries) SumPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error) {
	var total pgtype.Numeric
	err := q.db.QueryRow(ctx, sumPaymentsByOrder, orderID).Scan(&total)
	return total, err
}
