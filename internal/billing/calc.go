// Package billing prices orders and refunds.
//
// Amounts are whole currency units carried as float64 (Naira with 2-decimal
// display). Sums are accumulated at full precision with decimal arithmetic and
// only the reported fields are rounded, each to 2 places, half away from zero.
package billing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// DefaultVATRate is the VAT applied when a business has not configured its own.
const DefaultVATRate = 0.075

// moneyTolerance is the largest absolute difference treated as equal money.
var moneyTolerance = decimal.NewFromFloat(0.01)

// Item is a single order line as selected on the order form.
type Item struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Quantity    float64 `json:"quantity"`
	PackingCost float64 `json:"packing_cost"`
	IsPacked    bool    `json:"is_packed"`
}

// Calculation is the priced breakdown of an order.
type Calculation struct {
	Subtotal       float64 `json:"subtotal"`
	PackingCosts   float64 `json:"packing_costs"`
	VATAmount      float64 `json:"vat_amount"`
	AdditionalCost float64 `json:"additional_cost"`
	FinalTotal     float64 `json:"final_total"`
}

// CalculationError reports input that cannot be priced.
// Index is -1 when the problem is not tied to a specific item.
type CalculationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *CalculationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("item[%d]: %s %s", e.Index, e.Field, e.Reason)
}

// CalculateTotals prices items plus an additional cost at the given VAT rate.
// An empty item list yields a zero breakdown (plus the additional cost).
func CalculateTotals(items []Item, additionalCost, vatRate float64) (Calculation, error) {
	if !isFinite(additionalCost) {
		return Calculation{}, &CalculationError{Index: -1, Field: "additional cost", Reason: "must be a number"}
	}
	if !isFinite(vatRate) || vatRate < 0 {
		return Calculation{}, &CalculationError{Index: -1, Field: "vat rate", Reason: "must be a non-negative number"}
	}

	subtotal := decimal.Zero
	packing := decimal.Zero
	for i, item := range items {
		if err := checkAmount(i, "price", item.Price); err != nil {
			return Calculation{}, err
		}
		if err := checkAmount(i, "quantity", item.Quantity); err != nil {
			return Calculation{}, err
		}
		qty := decimal.NewFromFloat(item.Quantity)
		subtotal = subtotal.Add(decimal.NewFromFloat(item.Price).Mul(qty))
		if item.IsPacked {
			packing = packing.Add(packingCost(item.PackingCost).Mul(qty))
		}
	}

	additional := decimal.NewFromFloat(additionalCost)
	vat := subtotal.Add(packing).Mul(decimal.NewFromFloat(vatRate))
	total := subtotal.Add(packing).Add(vat).Add(additional)

	return Calculation{
		Subtotal:       round2(subtotal),
		PackingCosts:   round2(packing),
		VATAmount:      round2(vat),
		AdditionalCost: round2(additional),
		FinalTotal:     round2(total),
	}, nil
}

// packingCost clamps negative (or non-finite) per-unit packing costs to zero.
func packingCost(v float64) decimal.Decimal {
	if !isFinite(v) || v < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func checkAmount(idx int, field string, v float64) error {
	if !isFinite(v) {
		return &CalculationError{Index: idx, Field: field, Reason: "must be a number"}
	}
	if v < 0 {
		return &CalculationError{Index: idx, Field: field, Reason: "must not be negative"}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// round2 rounds half away from zero to 2 places.
func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
