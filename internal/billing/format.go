package billing

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatAmount renders v with thousands separators and 2 decimals, e.g. 9,422.50.
func FormatAmount(v float64) string {
	return printer.Sprintf("%.2f", v)
}

// Display is the operator-facing rendering of a Calculation.
func (c Calculation) Display() map[string]string {
	return map[string]string{
		"subtotal":        FormatAmount(c.Subtotal),
		"packing_costs":   FormatAmount(c.PackingCosts),
		"vat_amount":      FormatAmount(c.VATAmount),
		"additional_cost": FormatAmount(c.AdditionalCost),
		"final_total":     FormatAmount(c.FinalTotal),
	}
}

// Display is the operator-facing rendering of a RefundBreakdown.
func (b RefundBreakdown) Display() map[string]string {
	return map[string]string{
		"original_total":      FormatAmount(b.OriginalTotal),
		"total_refund_amount": FormatAmount(b.TotalRefundAmount),
		"new_total_amount":    FormatAmount(b.NewTotalAmount),
	}
}
