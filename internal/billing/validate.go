package billing

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var phonePattern = regexp.MustCompile(`^\d{10,11}$`)

// OrderData is an order submission as assembled by the order form.
type OrderData struct {
	CustomerName   string  `json:"customer_name"`
	CustomerPhone  string  `json:"customer_phone"`
	TableRef       string  `json:"table_ref"`
	SelectedItems  []Item  `json:"selected_items"`
	AdditionalCost float64 `json:"additional_cost"`
	TotalAmount    float64 `json:"total_amount"`
}

// ValidationResult lists every problem found in an order submission.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

// ValidateOrder checks an order submission before it is persisted. All
// problems are collected; the submitted total is cross-checked against a
// fresh CalculateTotals at vatRate.
func ValidateOrder(data OrderData, vatRate float64) ValidationResult {
	var errs []string

	if strings.TrimSpace(data.CustomerName) == "" {
		errs = append(errs, "Customer name is required")
	}
	if !phonePattern.MatchString(data.CustomerPhone) {
		errs = append(errs, "Phone number must be 10 or 11 digits")
	}
	if strings.TrimSpace(data.TableRef) == "" {
		errs = append(errs, "Table or QR code selection is required")
	}
	if len(data.SelectedItems) == 0 {
		errs = append(errs, "At least one item must be selected")
	}

	for i, item := range data.SelectedItems {
		n := i + 1
		if strings.TrimSpace(item.ID) == "" {
			errs = append(errs, fmt.Sprintf("Item %d: id is required", n))
		}
		if strings.TrimSpace(item.Name) == "" {
			errs = append(errs, fmt.Sprintf("Item %d: name is required", n))
		}
		if !isFinite(item.Price) || item.Price < 0 {
			errs = append(errs, fmt.Sprintf("Item %d: price must be a non-negative number", n))
		} else if !isWholeCents(item.Price) {
			errs = append(errs, fmt.Sprintf("Item %d: price must have at most 2 decimal places", n))
		}
		if !isFinite(item.Quantity) || item.Quantity < 1 || item.Quantity != math.Trunc(item.Quantity) {
			errs = append(errs, fmt.Sprintf("Item %d: quantity must be a whole number of at least 1", n))
		} else if item.Quantity > math.MaxInt32 {
			errs = append(errs, fmt.Sprintf("Item %d: quantity must not exceed %d", n, math.MaxInt32))
		}
		if item.IsPacked {
			if !isFinite(item.PackingCost) || item.PackingCost < 0 {
				errs = append(errs, fmt.Sprintf("Item %d: packing cost must be a non-negative number", n))
			} else if !isWholeCents(item.PackingCost) {
				errs = append(errs, fmt.Sprintf("Item %d: packing cost must have at most 2 decimal places", n))
			}
		}
	}

	if isFinite(data.AdditionalCost) && !isWholeCents(data.AdditionalCost) {
		errs = append(errs, "Additional cost must have at most 2 decimal places")
	}

	if len(data.SelectedItems) > 0 {
		calc, err := CalculateTotals(data.SelectedItems, data.AdditionalCost, vatRate)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Unable to calculate order total: %v", err))
		} else if !withinTolerance(calc.FinalTotal, data.TotalAmount) {
			errs = append(errs, fmt.Sprintf("Total amount mismatch: expected %.2f, got %.2f", calc.FinalTotal, data.TotalAmount))
		}
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

func withinTolerance(a, b float64) bool {
	if !isFinite(a) || !isFinite(b) {
		return false
	}
	diff := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs()
	return diff.LessThanOrEqual(moneyTolerance)
}

// isWholeCents reports whether v has no more than 2 decimal places.
func isWholeCents(v float64) bool {
	d := decimal.NewFromFloat(v)
	return d.Equal(d.Round(2))
}
