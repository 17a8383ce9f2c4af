package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tablebill/api/internal/billing"
	"github.com/tablebill/api/internal/database"
	"github.com/tablebill/api/internal/service"
)

// ReportsStore defines the database methods needed by report handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ReportsStore interface {
	GetDailySales(ctx context.Context, arg database.GetDailySalesParams) ([]database.GetDailySalesRow, error)
	GetPaymentSummary(ctx context.Context, arg database.GetPaymentSummaryParams) ([]database.GetPaymentSummaryRow, error)
}

// ReportsHandler serves sales and VAT reports for a business.
type ReportsHandler struct {
	store ReportsStore
	loc   *time.Location
}

// NewReportsHandler creates a ReportsHandler whose days are cut in loc.
func NewReportsHandler(store ReportsStore, loc *time.Location) *ReportsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportsHandler{store: store, loc: loc}
}

// RegisterRoutes registers report endpoints.
// Expected to be mounted at /businesses/{bid}/reports
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/daily-sales", h.DailySales)
	r.Get("/payment-summary", h.PaymentSummary)
}

// --- Response types ---

type dailySalesResponse struct {
	Date        string `json:"date"`
	OrderCount  int64  `json:"order_count"`
	GrossSales  string `json:"gross_sales"`
	VatCharged  string `json:"vat_charged"`
	VatRefunded string `json:"vat_refunded"`
	NetVat      string `json:"net_vat"`
	Refunded    string `json:"refunded"`
	NetSales    string `json:"net_sales"`
}

type dailySalesReport struct {
	From    string               `json:"from"`
	To      string               `json:"to"`
	Days    []dailySalesResponse `json:"days"`
	Totals  dailySalesResponse   `json:"totals"`
	Display map[string]string    `json:"display"`
}

type paymentSummaryResponse struct {
	PaymentMethod    string `json:"payment_method"`
	TransactionCount int64  `json:"transaction_count"`
	TotalAmount      string `json:"total_amount"`
}

// --- Handlers ---

// DailySales returns per-day sales and VAT for settled orders, with totals
// over the range.
func (h *ReportsHandler) DailySales(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid business ID"})
		return
	}

	startDate, endDate, err := parseDateRange(r, h.loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	rows, err := h.store.GetDailySales(r.Context(), database.GetDailySalesParams{
		BusinessID: businessID,
		From:       startDate,
		To:         endDate,
		Timezone:   h.loc.String(),
	})
	if err != nil {
		log.Printf("ERROR: get daily sales: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	var count int64
	var gross, vat, vatRefunded, refunded, net decimal.Decimal
	days := make([]dailySalesResponse, len(rows))
	for i, row := range rows {
		date := "N/A"
		if row.SaleDate.Valid {
			date = row.SaleDate.Time.Format("2006-01-02")
		}
		rowVat := service.NumericToDecimal(row.VatCharged)
		rowVatRefunded := service.NumericToDecimal(row.VatRefunded)
		days[i] = dailySalesResponse{
			Date:        date,
			OrderCount:  row.OrderCount,
			GrossSales:  numericToString(row.GrossSales),
			VatCharged:  rowVat.StringFixed(2),
			VatRefunded: rowVatRefunded.StringFixed(2),
			NetVat:      rowVat.Sub(rowVatRefunded).StringFixed(2),
			Refunded:    numericToString(row.Refunded),
			NetSales:    numericToString(row.NetSales),
		}

		count += row.OrderCount
		gross = gross.Add(service.NumericToDecimal(row.GrossSales))
		vat = vat.Add(rowVat)
		vatRefunded = vatRefunded.Add(rowVatRefunded)
		refunded = refunded.Add(service.NumericToDecimal(row.Refunded))
		net = net.Add(service.NumericToDecimal(row.NetSales))
	}

	netVat := vat.Sub(vatRefunded)
	writeJSON(w, http.StatusOK, dailySalesReport{
		From: startDate.Format("2006-01-02"),
		To:   endDate.AddDate(0, 0, -1).Format("2006-01-02"),
		Days: days,
		Totals: dailySalesResponse{
			Date:        "total",
			OrderCount:  count,
			GrossSales:  gross.StringFixed(2),
			VatCharged:  vat.StringFixed(2),
			VatRefunded: vatRefunded.StringFixed(2),
			NetVat:      netVat.StringFixed(2),
			Refunded:    refunded.StringFixed(2),
			NetSales:    net.StringFixed(2),
		},
		Display: map[string]string{
			"gross_sales": billing.FormatAmount(gross.InexactFloat64()),
			"net_vat":     billing.FormatAmount(netVat.InexactFloat64()),
			"net_sales":   billing.FormatAmount(net.InexactFloat64()),
		},
	})
}

// PaymentSummary returns completed payments grouped by method.
func (h *ReportsHandler) PaymentSummary(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid business ID"})
		return
	}

	startDate, endDate, err := parseDateRange(r, h.loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	rows, err := h.store.GetPaymentSummary(r.Context(), database.GetPaymentSummaryParams{
		BusinessID: businessID,
		From:       startDate,
		To:         endDate,
	})
	if err != nil {
		log.Printf("ERROR: get payment summary: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]paymentSummaryResponse, len(rows))
	for i, row := range rows {
		resp[i] = paymentSummaryResponse{
			PaymentMethod:    row.PaymentMethod,
			TransactionCount: row.TransactionCount,
			TotalAmount:      numericToString(row.TotalAmount),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

// parseDateRange parses start_date and end_date query params in loc.
// Defaults to the last 30 days. The returned end is exclusive (midnight after end_date).
func parseDateRange(r *http.Request, loc *time.Location) (time.Time, time.Time, error) {
	const layout = "2006-01-02"

	now := time.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	startDate := today.AddDate(0, 0, -30)
	endDate := today.AddDate(0, 0, 1)

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date format: %w", err)
		}
		startDate = t
	}

	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date format: %w", err)
		}
		endDate = t.AddDate(0, 0, 1)
	}

	if !startDate.Before(endDate) {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date must not be after end_date")
	}
	if endDate.Sub(startDate) > 366*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("date range must not exceed one year")
	}

	return startDate, endDate, nil
}
