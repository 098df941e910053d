package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"kopilka/internal/core"
	"kopilka/internal/events"
	"kopilka/internal/report"
	"kopilka/internal/session"
	"kopilka/internal/storage"
)

// recordForm mirrors the add/edit form fields. Amount stays a string so
// a rejected value renders back exactly as entered.
type recordForm struct {
	ID          int64
	Title       string
	Category    string
	Amount      string
	Comment     string
	PurchasedAt string
}

type summaryRow struct {
	Category string
	Count    int
	Sum      string
}

type indexView struct {
	Form    recordForm
	Editing bool
	Next    string
	Notice  string
	Error   string

	ChartMonth string
	ChartRows  []summaryRow
}

// handleIndex serves the add/edit view. The edit query parameter selects
// an existing record; a dangling id degrades to a dismissible notice
// over a blank form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		// render below
	case http.MethodPost:
		s.handleSave(w, r)
		return
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sess, handled := s.guard(w, r)
	if handled {
		return
	}

	now := time.Now()
	data := indexView{
		Form: recordForm{PurchasedAt: core.Today(now)},
		Next: localPath(r.URL.Query().Get("next"), "/"),
	}

	if v := r.URL.Query().Get("edit"); v != "" {
		id, ok := parseID(v)
		if !ok {
			data.Notice = "Record not found"
		} else {
			rec, err := s.store.Get(r.Context(), id)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				data.Notice = "Record not found"
			case err != nil:
				slog.ErrorContext(r.Context(), "Record load error", "error", err, "record_id", id)
				data.Notice = "Could not load the record"
			default:
				data.Editing = true
				data.Form = recordForm{
					ID:          rec.ID,
					Title:       rec.Title,
					Category:    rec.Category,
					Amount:      rec.Amount.Display(),
					Comment:     rec.Comment,
					PurchasedAt: rec.PurchasedAt,
				}
			}
		}
	}

	s.fillChart(r, sess, &data, now)
	s.render(w, r, "index.html", data)
}

// fillChart computes the summary rows for the add view's month chart.
// Month pick: current month if it has data, else the previous month,
// else the most recent month with records.
func (s *Server) fillChart(r *http.Request, sess *session.Session, data *indexView, now time.Time) {
	records, err := sess.Snapshot(r.Context(), s.store)
	if err != nil {
		slog.ErrorContext(r.Context(), "Snapshot load error", "error", err)
		return
	}

	month := report.PickChartMonth(records, now)
	if month == "" {
		return
	}
	data.ChartMonth = month
	for _, row := range report.CategorySummary(report.FilterByMonth(records, month)) {
		data.ChartRows = append(data.ChartRows, summaryRow{
			Category: row.Category,
			Count:    row.Count,
			Sum:      row.Sum.Display(),
		})
	}
}

// handleSave creates or updates a record from the posted form. A present
// id means update; the month key is always rederived from the purchase
// date inside the store.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	sess, handled := s.guard(w, r)
	if handled {
		return
	}

	if err := r.ParseForm(); err != nil {
		slog.ErrorContext(r.Context(), "Parse form error", "error", err, "method", r.Method, "url", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	next := localPath(r.Form.Get("next"), "/")
	form := recordForm{
		Title:       sanitizeInput(r.Form.Get("title")),
		Category:    sanitizeInput(r.Form.Get("category")),
		Amount:      sanitizeInput(r.Form.Get("amount")),
		Comment:     sanitizeInput(r.Form.Get("comment")),
		PurchasedAt: sanitizeInput(r.Form.Get("purchased_at")),
	}
	if v := r.Form.Get("id"); v != "" {
		id, ok := parseID(v)
		if !ok {
			s.renderFormError(w, r, sess, form, next, "Record not found")
			return
		}
		form.ID = id
	}

	cents, err := core.ParseDecimalToCents(form.Amount)
	if err != nil {
		s.renderFormError(w, r, sess, form, next, "Invalid amount")
		return
	}

	rec := core.Record{
		ID:          form.ID,
		Title:       form.Title,
		Category:    form.Category,
		Amount:      core.Money{Cents: cents},
		Comment:     form.Comment,
		PurchasedAt: form.PurchasedAt,
	}
	if err := rec.Validate(); err != nil {
		s.renderFormError(w, r, sess, form, next, err.Error())
		return
	}

	var op events.Op
	var id int64
	if rec.ID > 0 {
		op = events.OpUpdate
		id = rec.ID
		err = s.store.Put(r.Context(), rec)
		if errors.Is(err, storage.ErrNotFound) {
			s.renderFormError(w, r, sess, form, next, "Record not found")
			return
		}
	} else {
		op = events.OpAdd
		id, err = s.store.Add(r.Context(), rec)
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Record save error", "error", err, "record_id", rec.ID, "title", rec.Title)
		s.renderFormError(w, r, sess, form, next, "Could not save the record")
		return
	}

	s.bus.Publish(events.RecordsChanged{Op: op, ID: id})
	if _, err := sess.Reload(r.Context(), s.store); err != nil {
		slog.ErrorContext(r.Context(), "Snapshot reload error", "error", err)
	}

	seeOther(w, r, next)
}

// renderFormError re-renders the add/edit view with the entered values
// and a validation notice.
func (s *Server) renderFormError(w http.ResponseWriter, r *http.Request, sess *session.Session, form recordForm, next, msg string) {
	data := indexView{
		Form:    form,
		Editing: form.ID > 0,
		Next:    next,
		Error:   msg,
	}
	s.fillChart(r, sess, &data, time.Now())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnprocessableEntity)
	s.render(w, r, "index.html", data)
}

// editURL builds the link the expenses view uses to open a record in the
// add/edit form, carrying the current view as the return location.
func editURL(id int64, next string) string {
	q := url.Values{}
	q.Set("edit", strconv.FormatInt(id, 10))
	if next != "" {
		q.Set("next", next)
	}
	return "/?" + q.Encode()
}
