package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const businessColumns = `id, name, vat_rate, currency, is_active, created_at, updated_at`

func scanBusiness(row interface{ Scan(...any) error }) (Business, error) {
	var b Business
	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.VatRate,
		&b.Currency,
		&b.IsActive,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

const getBusiness = `-- name: GetBusiness :one
SELECT ` + businessColumns + ` FROM businesses
WHERE id = $1 AND is_active = true
`

func (q *Queries) GetBusiness(ctx context.Context, id uuid.UUID) (Business, error) {
	return scanBusiness(q.db.QueryRow(ctx, getBusiness, id))
}

const createBusiness = `-- name: CreateBusiness :one
INSERT INTO businesses (name, vat_rate, currency)
VALUES ($1, $2, $3)
RETURNING ` + businessColumns

type CreateBusinessParams struct {
	Name     string         `json:"name"`
	VatRate  pgtype.Numeric `json:"vat_rate"`
	Currency string         `json:"currency"`
}

func (q *Queries) CreateBusiness(ctx context.Context, arg CreateBusinessParams) (Business, error) {
	return scanBusiness(q.db.QueryRow(ctx, createBusiness, arg.Name, arg.VatRate, arg.Currency))
}
