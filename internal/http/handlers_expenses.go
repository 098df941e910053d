package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"kopilka/internal/events"
	"kopilka/internal/report"
	"kopilka/internal/storage"
)

type expenseRow struct {
	ID          int64
	Title       string
	Category    string
	Amount      string
	Comment     string
	PurchasedAt string
	EditURL     string
	Confirming  bool
}

type expensesView struct {
	Month      string
	Months     []string
	Sort       string
	Rows       []expenseRow
	Total      string
	Notice     string
	SelfURL    string
	ConfirmID  int64
	HasConfirm bool
}

// expensesURL rebuilds the expenses view location for redirects and
// return-to links.
func expensesURL(month, sort string) string {
	q := url.Values{}
	if month != "" {
		q.Set("month", month)
	}
	if sort == "old" {
		q.Set("sort", sort)
	}
	if enc := q.Encode(); enc != "" {
		return "/expenses?" + enc
	}
	return "/expenses"
}

// handleExpenses serves the per-month expense list. Month defaults to
// the current month when it has records, else the most recent one; sort
// defaults to newest-first. A confirm parameter arms the delete
// confirmation controls for one row.
func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
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
	months := report.AvailableMonths(records)
	month := pickMonth(q.Get("month"), months, timeNow())
	sort := "new"
	if parseSort(q.Get("sort")) {
		sort = "old"
	}

	data := expensesView{
		Month:   month,
		Months:  months,
		Sort:    sort,
		Notice:  q.Get("notice"),
		SelfURL: expensesURL(month, sort),
	}

	if id, ok := parseID(q.Get("confirm")); ok {
		data.ConfirmID = id
		data.HasConfirm = true
	}

	list := report.SortByDate(report.FilterByMonth(records, month), sort == "old")
	data.Total = report.Total(list).Display()
	for _, rec := range list {
		data.Rows = append(data.Rows, expenseRow{
			ID:          rec.ID,
			Title:       rec.Title,
			Category:    rec.Category,
			Amount:      rec.Amount.Display(),
			Comment:     rec.Comment,
			PurchasedAt: rec.PurchasedAt,
			EditURL:     editURL(rec.ID, data.SelfURL),
			Confirming:  data.HasConfirm && rec.ID == data.ConfirmID,
		})
	}

	s.render(w, r, "expenses.html", data)
}

// handleDelete removes a record after the explicit confirm step.
// Deleting an id that no longer exists is a no-op notice, not an error.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sess, handled := s.guard(w, r)
	if handled {
		return
	}

	if err := r.ParseForm(); err != nil {
		slog.ErrorContext(r.Context(), "Parse form error", "error", err, "method", r.Method, "url", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	next := localPath(r.Form.Get("next"), "/expenses")

	id, ok := parseID(r.Form.Get("id"))
	if !ok {
		seeOther(w, r, withNotice(next, "Record not found"))
		return
	}

	if _, err := s.store.Get(r.Context(), id); errors.Is(err, storage.ErrNotFound) {
		seeOther(w, r, withNotice(next, "Record was already removed"))
		return
	} else if err != nil {
		slog.ErrorContext(r.Context(), "Record load error", "error", err, "record_id", id)
		seeOther(w, r, withNotice(next, "Could not delete the record"))
		return
	}

	if err := s.store.Delete(r.Context(), id); err != nil {
		slog.ErrorContext(r.Context(), "Record delete error", "error", err, "record_id", id)
		seeOther(w, r, withNotice(next, "Could not delete the record"))
		return
	}

	s.bus.Publish(events.RecordsChanged{Op: events.OpDelete, ID: id})
	if _, err := sess.Reload(r.Context(), s.store); err != nil {
		slog.ErrorContext(r.Context(), "Snapshot reload error", "error", err)
	}

	seeOther(w, r, next)
}

// withNotice appends a transient notice to a local redirect target.
func withNotice(path, notice string) string {
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	q.Set("notice", notice)
	u.RawQuery = q.Encode()
	return u.String()
}
