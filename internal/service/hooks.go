package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/tablebill/api/internal/database"
	"github.com/tablebill/api/internal/events"
	"github.com/tablebill/api/internal/metrics"
)

const publishTimeout = 3 * time.Second

// CacheInvalidator drops cached order views after a write.
// Satisfied by *cache.RedisOrderCache and cache.NopCache.
type CacheInvalidator interface {
	Delete(ctx context.Context, id string) error
}

// Publisher sends order events to the message bus.
// Satisfied by *events.KafkaPublisher and events.NopPublisher.
type Publisher interface {
	Publish(ctx context.Context, event events.OrderEvent) error
}

// Notifier pushes live updates to connected clients. Satisfied by *ws.Hub.
type Notifier interface {
	Notify(businessID uuid.UUID, eventType string, payload any)
}

// Hooks are the side effects run after a write commits. None of them can
// fail the write: errors are logged.
type Hooks struct {
	Cache     CacheInvalidator
	Publisher Publisher
	Notifier  Notifier
	Metrics   *metrics.Metrics
}

type nopCache struct{}

func (nopCache) Delete(context.Context, string) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Notify(uuid.UUID, string, any) {}

// WithDefaults fills unset hooks with no-ops.
func (h Hooks) WithDefaults() Hooks {
	if h.Cache == nil {
		h.Cache = nopCache{}
	}
	if h.Publisher == nil {
		h.Publisher = events.NopPublisher{}
	}
	if h.Notifier == nil {
		h.Notifier = nopNotifier{}
	}
	if h.Metrics == nil {
		h.Metrics = metrics.New(prometheus.NewRegistry())
	}
	return h
}

// Invalidate removes the cached view of an order.
func (h Hooks) Invalidate(ctx context.Context, orderID uuid.UUID) {
	if err := h.Cache.Delete(ctx, orderID.String()); err != nil {
		log.Printf("WARNING: invalidate cached order %s: %v", orderID, err)
	}
}

// Publish sends an event on the bus, detached from the request's
// cancellation so a client hanging up does not lose the event.
func (h Hooks) Publish(ctx context.Context, eventType string, businessID, orderID uuid.UUID, payload any) {
	ev, err := events.NewOrderEvent(eventType, businessID, orderID, payload)
	if err != nil {
		log.Printf("ERROR: build %s event: %v", eventType, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := h.Publisher.Publish(ctx, ev); err != nil {
		log.Printf("WARNING: publish %s for order %s: %v", eventType, orderID, err)
	}
}

// OrderSnapshot is the compact order shape carried by events.
type OrderSnapshot struct {
	ID             uuid.UUID `json:"id"`
	BusinessID     uuid.UUID `json:"business_id"`
	OrderNumber    string    `json:"order_number"`
	TableRef       string    `json:"table_ref"`
	Status         string    `json:"status"`
	TotalAmount    string    `json:"total_amount"`
	RefundedAmount string    `json:"refunded_amount"`
}

func SnapshotOf(o database.Order) OrderSnapshot {
	return OrderSnapshot{
		ID:             o.ID,
		BusinessID:     o.BusinessID,
		OrderNumber:    o.OrderNumber,
		TableRef:       o.TableRef,
		Status:         o.Status,
		TotalAmount:    NumericToDecimal(o.TotalAmount).StringFixed(2),
		RefundedAmount: NumericToDecimal(o.RefundedAmount).StringFixed(2),
	}
}

// NumericToDecimal converts a NUMERIC column; NULL reads as zero.
func NumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DecimalToNumeric stores d with two decimal places.
func DecimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

func floatToNumeric(f float64) pgtype.Numeric {
	return DecimalToNumeric(decimal.NewFromFloat(f))
}

func numericToFloat(n pgtype.Numeric) float64 {
	return NumericToDecimal(n).InexactFloat64()
}

func rateToNumeric(rate float64) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(decimal.NewFromFloat(rate).StringFixed(4))
	return n
}
