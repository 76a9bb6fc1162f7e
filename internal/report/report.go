// Package report renders daily POS sales summaries as text tables.
package report

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"pos-service/internal/models"

	"github.com/olekukonko/tablewriter"
)

// SummarySource yields per-location daily totals for a vendor
type SummarySource interface {
	SalesSummary(ctx context.Context, vendorID string, from, to time.Time) ([]models.SalesSummary, error)
}

// Totals is the sum over every summary row
type Totals struct {
	Orders        int
	Units         int
	SubtotalCents int64
	TaxCents      int64
	TotalCents    int64
}

// Sum adds up summary rows
func Sum(rows []models.SalesSummary) Totals {
	var t Totals
	for _, r := range rows {
		t.Orders += r.Orders
		t.Units += r.Units
		t.SubtotalCents += r.SubtotalCents
		t.TaxCents += r.TaxCents
		t.TotalCents += r.TotalCents
	}
	return t
}

// Money formats cents as dollars
func Money(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// Render writes rows as a table with a totals footer
func Render(w io.Writer, rows []models.SalesSummary) error {
	table := tablewriter.NewWriter(w)
	table.Header("Day", "Location", "Orders", "Units", "Subtotal", "Tax", "Total")

	for _, r := range rows {
		location := r.LocationName
		if location == "" {
			location = r.LocationID
		}
		err := table.Append([]string{
			r.Day.Format("2006-01-02"),
			location,
			strconv.Itoa(r.Orders),
			strconv.Itoa(r.Units),
			Money(r.SubtotalCents),
			Money(r.TaxCents),
			Money(r.TotalCents),
		})
		if err != nil {
			return fmt.Errorf("failed to append report row: %w", err)
		}
	}

	t := Sum(rows)
	table.Footer("Total", "", strconv.Itoa(t.Orders), strconv.Itoa(t.Units),
		Money(t.SubtotalCents), Money(t.TaxCents), Money(t.TotalCents))

	return table.Render()
}

// Generate loads the summary for [from, to) and renders it
func Generate(ctx context.Context, src SummarySource, w io.Writer, vendorID string, from, to time.Time) error {
	rows, err := src.SalesSummary(ctx, vendorID, from, to)
	if err != nil {
		return fmt.Errorf("failed to load sales summary: %w", err)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintf(w, "No sales for vendor %s between %s and %s\n",
			vendorID, from.Format("2006-01-02"), to.Format("2006-01-02"))
		return err
	}
	return Render(w, rows)
}
