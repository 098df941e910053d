package http

import (
	"log/slog"
	"net/http"

	"kopilka/internal/report"
)

type categoryDetail struct {
	Category string
	Rows     []expenseRow
	Sum      string
	Count    int
}

type reportsView struct {
	Period  string
	Month   string
	Months  []string
	Summary []summaryRow
	Details []categoryDetail
	Total   string
}

// handleReports serves the aggregation view. Period selects the window
// (all, month, 3m, year); month only applies to the month period and is
// validated against the months that actually have records.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sess, handled := s.guard(w, r)
	if handled {
		return
	}

	records, err := sess.Snapshot(r.Context(), s.store)
	if err != nil {
		slog.ErrorContext(r.Context(), "Snapshot load error", "error", err)
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	period, ok := report.ParsePeriod(q.Get("period"))
	if !ok {
		period = report.PeriodAll
	}

	now := timeNow()
	months := report.AvailableMonths(records)
	month := ""
	if period == report.PeriodMonth {
		month = pickMonth(q.Get("month"), months, now)
	}

	filtered := report.FilterByPeriod(records, period, month, now)
	summary := report.CategorySummary(filtered)
	details := report.DetailsByCategory(filtered)

	data := reportsView{
		Period: string(period),
		Month:  month,
		Months: months,
		Total:  report.Total(filtered).Display(),
	}

	// Details follow the summary's category order so the two views can
	// never disagree.
	for _, row := range summary {
		data.Summary = append(data.Summary, summaryRow{
			Category: row.Category,
			Count:    row.Count,
			Sum:      row.Sum.Display(),
		})

		detail := categoryDetail{
			Category: row.Category,
			Sum:      row.Sum.Display(),
			Count:    row.Count,
		}
		for _, rec := range details[row.Category] {
			detail.Rows = append(detail.Rows, expenseRow{
				ID:          rec.ID,
				Title:       rec.Title,
				Category:    rec.Category,
				Amount:      rec.Amount.Display(),
				Comment:     rec.Comment,
				PurchasedAt: rec.PurchasedAt,
			})
		}
		data.Details = append(data.Details, detail)
	}

	s.render(w, r, "reports.html", data)
}
