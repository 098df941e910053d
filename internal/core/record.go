package core

import (
	"errors"
	"strings"
	"time"
)

type (
	// Record is one purchase entry. PurchasedAt is a zero-padded ISO
	// calendar date (YYYY-MM-DD); MonthKey is the derived YYYY-MM grouping
	// key and is always recomputed from PurchasedAt, never trusted from
	// caller input.
	Record struct {
		ID          int64
		Title       string
		Category    string
		Amount      Money
		Comment     string
		PurchasedAt string
		MonthKey    string
	}
)

var (
	ErrEmptyTitle    = errors.New("empty title")
	ErrEmptyCategory = errors.New("empty category")
	ErrInvalidDate   = errors.New("invalid purchase date")
	ErrInvalidAmount = errors.New("invalid amount")
)

const dateLayout = "2006-01-02"

// ParseDate validates an ISO YYYY-MM-DD date string.
func ParseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(dateLayout) {
		return "", ErrInvalidDate
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", ErrInvalidDate
	}
	return s, nil
}

// Today returns the current date in ISO YYYY-MM-DD form.
func Today(now time.Time) string {
	return now.Format(dateLayout)
}

// MonthKeyOf derives the YYYY-MM grouping key from an ISO date.
func MonthKeyOf(isoDate string) string {
	if len(isoDate) < 7 {
		return isoDate
	}
	return isoDate[:7]
}

// Normalize recomputes the derived month key. Called on every create and
// update so the month_key column can never drift from purchased_at.
func (r *Record) Normalize() {
	r.MonthKey = MonthKeyOf(r.PurchasedAt)
}

// Validate checks the fields a user must supply when creating or editing
// a record. The category sentinel is a read-time concern of the report
// package; records read back from storage may legitimately carry an
// empty category.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrEmptyTitle
	}
	if len(r.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	if _, err := ParseDate(r.PurchasedAt); err != nil {
		return err
	}
	return nil
}
