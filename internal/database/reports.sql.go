package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getDailySales = `-- name: GetDailySales :many
SELECT
    DATE(o.created_at AT TIME ZONE $4::text) AS sale_date,
    COUNT(*)::int8 AS order_count,
    COALESCE(SUM(o.total_amount), 0)::numeric(12,2) AS gross_sales,
    COALESCE(SUM(o.vat_amount), 0)::numeric(12,2) AS vat_charged,
    COALESCE(SUM(r.vat_refunded), 0)::numeric(12,2) AS vat_refunded,
    COALESCE(SUM(o.refunded_amount), 0)::numeric(12,2) AS refunded,
    COALESCE(SUM(o.total_amount - o.refunded_amount), 0)::numeric(12,2) AS net_sales
FROM orders o
LEFT JOIN (
    SELECT order_id, SUM(vat_amount) AS vat_refunded
    FROM refunds
    GROUP BY order_id
) r ON r.order_id = o.id
WHERE o.business_id = $1
  AND o.created_at >= $2
  AND o.created_at < $3
  AND o.status IN ('COMPLETED', 'PARTIALLY_REFUNDED', 'REFUNDED')
GROUP BY sale_date
ORDER BY sale_date
`

type GetDailySalesParams struct {
	BusinessID uuid.UUID `json:"business_id"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Timezone   string    `json:"timezone"`
}

type GetDailySalesRow struct {
	SaleDate    pgtype.Date    `json:"sale_date"`
	OrderCount  int64          `json:"order_count"`
	GrossSales  pgtype.Numeric `json:"gross_sales"`
	VatCharged  pgtype.Numeric `json:"vat_charged"`
	VatRefunded pgtype.Numeric `json:"vat_refunded"`
	Refunded    pgtype.Numeric `json:"refunded"`
	NetSales    pgtype.Numeric `json:"net_sales"`
}

func (q *Queries) GetDailySales(ctx context.Context, arg GetDailySalesParams) ([]GetDailySalesRow, error) {
	rows, err := q.db.Query(ctx, getDailySales, arg.BusinessID, arg.From, arg.To, arg.Timezone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GetDailySalesRow{}
	for rows.Next() {
		var i GetDailySalesRow
		if err := rows.Scan(
			&i.SaleDate,
			&i.OrderCount,
			&i.GrossSales,
			&i.VatCharged,
			&i.VatRefunded,
			&i.Refunded,
			&i.NetSales,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getPaymentSummary = `-- name: GetPaymentSummary :many
SELECT
    p.payment_method,
    COUNT(*)::int8 AS transaction_count,
    COALESCE(SUM(p.amount), 0)::numeric(12,2) AS total_amount
FROM payments p
JOIN orders o ON o.id = p.order_id
WHERE o.business_id = $1
  AND p.status = 'COMPLETED'
  AND p.processed_at >= $2
  AND p.processed_at < $3
GROUP BY p.payment_method
ORDER BY p.payment_method
`

type GetPaymentSummaryParams struct {
	BusinessID uuid.UUID `json:"business_id"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
}

type GetPaymentSummaryRow struct {
	PaymentMethod    string         `json:"payment_method"`
	TransactionCount int64          `json:"transaction_count"`
	TotalAmount      pgtype.Numeric `json:"total_amount"`
}

func (q *Queries) GetPaymentSummary(ctx context.Context, arg GetPaymentSummaryParams) ([]GetPaymentSummaryRow, error) {
	rows, err := q.db.Query(ctx, getPaymentSummary, arg.BusinessID, arg.From, arg.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GetPaymentSummaryRow{}
	for rows.Next() {
		var i GetPaymentSummaryRow
		if err := rows.Scan(&i.PaymentMethod, &i.TransactionCount, &i.TotalAmount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
