package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Business struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	VatRate   pgtype.Numeric `json:"vat_rate"`
	Currency  string         `json:"currency"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type User struct {
	ID             uuid.UUID `json:"id"`
	BusinessID     uuid.UUID `json:"business_id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"hashed_password"`
	FullName       string    `json:"full_name"`
	Role           string    `json:"role"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Order struct {
	ID             uuid.UUID          `json:"id"`
	BusinessID     uuid.UUID          `json:"business_id"`
	OrderNumber    string             `json:"order_number"`
	CustomerName   string             `json:"customer_name"`
	CustomerPhone  string             `json:"customer_phone"`
	TableRef       string             `json:"table_ref"`
	Status         string             `json:"status"`
	Subtotal       pgtype.Numeric     `json:"subtotal"`
	PackingCosts   pgtype.Numeric     `json:"packing_costs"`
	VatRate        pgtype.Numeric     `json:"vat_rate"`
	VatAmount      pgtype.Numeric     `json:"vat_amount"`
	AdditionalCost pgtype.Numeric     `json:"additional_cost"`
	TotalAmount    pgtype.Numeric     `json:"total_amount"`
	RefundedAmount pgtype.Numeric     `json:"refunded_amount"`
	Notes          pgtype.Text        `json:"notes"`
	CreatedBy      uuid.UUID          `json:"created_by"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	CompletedAt    pgtype.Timestamptz `json:"completed_at"`
}

type OrderItem struct {
	ID               uuid.UUID      `json:"id"`
	OrderID          uuid.UUID      `json:"order_id"`
	ItemRef          string         `json:"item_ref"`
	Name             string         `json:"name"`
	UnitPrice        pgtype.Numeric `json:"unit_price"`
	Quantity         int32          `json:"quantity"`
	PackingCost      pgtype.Numeric `json:"packing_cost"`
	IsPacked         bool           `json:"is_packed"`
	RefundedQuantity int32          `json:"refunded_quantity"`
	CreatedAt        time.Time      `json:"created_at"`
}

type Payment struct {
	ID              uuid.UUID      `json:"id"`
	OrderID         uuid.UUID      `json:"order_id"`
	PaymentMethod   string         `json:"payment_method"`
	Amount          pgtype.Numeric `json:"amount"`
	Status          string         `json:"status"`
	ReferenceNumber pgtype.Text    `json:"reference_number"`
	AmountReceived  pgtype.Numeric `json:"amount_received"`
	ChangeAmount    pgtype.Numeric `json:"change_amount"`
	ProcessedBy     uuid.UUID      `json:"processed_by"`
	ProcessedAt     time.Time      `json:"processed_at"`
}

type Refund struct {
	ID          uuid.UUID      `json:"id"`
	OrderID     uuid.UUID      `json:"order_id"`
	ItemsAmount pgtype.Numeric `json:"items_amount"`
	VatAmount   pgtype.Numeric `json:"vat_amount"`
	TotalAmount pgtype.Numeric `json:"total_amount"`
	Reason      pgtype.Text    `json:"reason"`
	CreatedBy   uuid.UUID      `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
}

type RefundItem struct {
	ID          uuid.UUID      `json:"id"`
	RefundID    uuid.UUID      `json:"refund_id"`
	OrderItemID uuid.UUID      `json:"order_item_id"`
	Quantity    int32          `json:"quantity"`
	Amount      pgtype.Numeric `json:"amount"`
}
