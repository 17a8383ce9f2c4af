package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Errors returned by refund checks.
var (
	ErrEmptyRefund            = errors.New("nothing to refund")
	ErrRefundExceedsPaid      = errors.New("refund exceeds refundable amount")
	ErrReconciliationMismatch = errors.New("refund does not reconcile with original bill")
)

// RefundLine is one order line with the quantity being refunded.
// OriginalQuantity is what is still billed on the order for this line.
type RefundLine struct {
	ItemID           string  `json:"item_id"`
	Name             string  `json:"name"`
	UnitPrice        float64 `json:"unit_price"`
	PackingCost      float64 `json:"packing_cost"`
	IsPacked         bool    `json:"is_packed"`
	OriginalQuantity int     `json:"original_quantity"`
	RefundQuantity   int     `json:"refund_quantity"`
}

// RefundBreakdown is the three-way view of a refund: the bill before the
// refund, the refunded amount and the bill that remains. The rounded fields
// always satisfy OriginalTotal - TotalRefundAmount == NewTotalAmount.
type RefundBreakdown struct {
	OriginalSubtotal  float64            `json:"original_subtotal"`
	OriginalTotal     float64            `json:"original_total"`
	ItemsRefundAmount float64            `json:"items_refund_amount"`
	VATRefundAmount   float64            `json:"vat_refund_amount"`
	TotalRefundAmount float64            `json:"total_refund_amount"`
	RemainingSubtotal float64            `json:"remaining_subtotal"`
	NewVATAmount      float64            `json:"new_vat_amount"`
	NewTotalAmount    float64            `json:"new_total_amount"`
	RemainingQuantity int                `json:"remaining_quantity"`
	Balanced          bool               `json:"balanced"`
	Discrepancy       float64            `json:"discrepancy"`
	Lines             []RefundLineAmount `json:"lines"`
}

// RefundLineAmount is the refunded principal (before VAT) of a single line.
type RefundLineAmount struct {
	ItemID   string  `json:"item_id"`
	Quantity int     `json:"quantity"`
	Amount   float64 `json:"amount"`
}

// CalculateRefund prices a partial refund and reconciles it against the
// original bill. VAT is refunded on the refunded principal at vatRate.
func CalculateRefund(lines []RefundLine, vatRate float64) (RefundBreakdown, error) {
	if !isFinite(vatRate) || vatRate < 0 {
		return RefundBreakdown{}, &CalculationError{Index: -1, Field: "vat rate", Reason: "must be a non-negative number"}
	}
	rate := decimal.NewFromFloat(vatRate)

	original := decimal.Zero
	refunded := decimal.Zero
	remainingQty := 0
	var amounts []RefundLineAmount

	for i, l := range lines {
		if err := checkAmount(i, "unit price", l.UnitPrice); err != nil {
			return RefundBreakdown{}, err
		}
		if l.OriginalQuantity < 0 {
			return RefundBreakdown{}, &CalculationError{Index: i, Field: "original quantity", Reason: "must not be negative"}
		}
		if l.RefundQuantity < 0 {
			return RefundBreakdown{}, &CalculationError{Index: i, Field: "refund quantity", Reason: "must not be negative"}
		}
		if l.RefundQuantity > l.OriginalQuantity {
			return RefundBreakdown{}, &CalculationError{
				Index:  i,
				Field:  "refund quantity",
				Reason: fmt.Sprintf("must not exceed %d", l.OriginalQuantity),
			}
		}

		unit := decimal.NewFromFloat(l.UnitPrice)
		if l.IsPacked {
			unit = unit.Add(packingCost(l.PackingCost))
		}
		original = original.Add(unit.Mul(decimal.NewFromInt(int64(l.OriginalQuantity))))
		lineRefund := unit.Mul(decimal.NewFromInt(int64(l.RefundQuantity)))
		refunded = refunded.Add(lineRefund)
		remainingQty += l.OriginalQuantity - l.RefundQuantity

		if l.RefundQuantity > 0 {
			amounts = append(amounts, RefundLineAmount{
				ItemID:   l.ItemID,
				Quantity: l.RefundQuantity,
				Amount:   round2(lineRefund),
			})
		}
	}

	// Round the inputs once, then derive the remaining bill from them so the
	// three views add up to the cent.
	originalSub := original.Round(2)
	originalTotal := original.Mul(decimal.NewFromInt(1).Add(rate)).Round(2)
	itemsRefund := refunded.Round(2)
	vatRefund := refunded.Mul(rate).Round(2)
	totalRefund := itemsRefund.Add(vatRefund)
	remainingSub := originalSub.Sub(itemsRefund)
	newTotal := originalTotal.Sub(totalRefund)

	b := RefundBreakdown{
		OriginalSubtotal:  round2(originalSub),
		OriginalTotal:     round2(originalTotal),
		ItemsRefundAmount: round2(itemsRefund),
		VATRefundAmount:   round2(vatRefund),
		TotalRefundAmount: round2(totalRefund),
		RemainingSubtotal: round2(remainingSub),
		NewVATAmount:      round2(newTotal.Sub(remainingSub)),
		NewTotalAmount:    round2(newTotal),
		RemainingQuantity: remainingQty,
		Lines:             amounts,
	}
	b.Discrepancy = round2(b.balanceError(rate))
	b.Balanced = decimal.NewFromFloat(b.Discrepancy).LessThan(moneyTolerance)
	return b, nil
}

// balanceError is |round(originalSubtotal*(1+rate) - totalRefund) - newTotal|
// over the reported fields.
func (b RefundBreakdown) balanceError(rate decimal.Decimal) decimal.Decimal {
	gross := decimal.NewFromFloat(b.OriginalSubtotal).Mul(decimal.NewFromInt(1).Add(rate))
	left := gross.Sub(decimal.NewFromFloat(b.TotalRefundAmount)).Round(2)
	return left.Sub(decimal.NewFromFloat(b.NewTotalAmount)).Abs()
}

// Reconcile reports ErrReconciliationMismatch when the refunded amount and
// the remaining bill do not add back up to the original bill.
func (b RefundBreakdown) Reconcile() error {
	if b.Balanced {
		return nil
	}
	return fmt.Errorf("%w: off by %s", ErrReconciliationMismatch, FormatAmount(b.Discrepancy))
}

// CheckRefundable rejects an empty or zero-value refund, or one larger than
// maxRefundable (what has been paid and not yet refunded).
func CheckRefundable(b RefundBreakdown, maxRefundable float64) error {
	total := decimal.NewFromFloat(b.TotalRefundAmount)
	if len(b.Lines) == 0 || !total.IsPositive() {
		return ErrEmptyRefund
	}
	limit := decimal.NewFromFloat(maxRefundable)
	if total.GreaterThan(limit) {
		return fmt.Errorf("%w: requested %s, refundable %s",
			ErrRefundExceedsPaid, FormatAmount(b.TotalRefundAmount), FormatAmount(maxRefundable))
	}
	return nil
}

// RecordedBill is what an order has on record for the units still billed.
type RecordedBill struct {
	// Subtotal is the pre-VAT amount still billed.
	Subtotal float64
	// Total is the VAT-inclusive amount still billed, excluding any
	// additional cost.
	Total float64
	// RefundedUnits counts units refunded so far. Each earlier refund may
	// have moved Total away from the recomputed bill by one rounding cent.
	RefundedUnits int
}

// AgainstRecorded rebases the breakdown on the recorded bill. The subtotal
// must match to the cent; the total may drift by one cent per refunded unit
// plus one. The remaining bill is then derived from the recorded total. A
// refund that clears every billed unit, or would exceed the recorded total,
// takes exactly the recorded total so no rounding cent is left behind.
func (b RefundBreakdown) AgainstRecorded(rec RecordedBill) RefundBreakdown {
	subDrift := decimal.NewFromFloat(b.OriginalSubtotal).Sub(decimal.NewFromFloat(rec.Subtotal)).Abs()
	totalDrift := decimal.NewFromFloat(b.OriginalTotal).Sub(decimal.NewFromFloat(rec.Total)).Abs()
	allowed := moneyTolerance.Mul(decimal.NewFromInt(int64(rec.RefundedUnits + 1)))

	if !subDrift.LessThan(moneyTolerance) || totalDrift.GreaterThan(allowed) {
		b.Balanced = false
		drift := decimal.Max(subDrift, totalDrift)
		if d := round2(drift); d > b.Discrepancy {
			b.Discrepancy = d
		}
		return b
	}

	total := decimal.NewFromFloat(rec.Total).Round(2)
	items := decimal.NewFromFloat(b.ItemsRefundAmount)
	refund := decimal.NewFromFloat(b.TotalRefundAmount)
	if b.RemainingQuantity == 0 || refund.GreaterThan(total) {
		refund = total
		b.VATRefundAmount = round2(refund.Sub(items))
		b.TotalRefundAmount = round2(refund)
	}
	newTotal := total.Sub(refund)
	b.OriginalTotal = round2(total)
	b.NewTotalAmount = round2(newTotal)
	b.NewVATAmount = round2(newTotal.Sub(decimal.NewFromFloat(b.RemainingSubtotal)))
	return b
}
