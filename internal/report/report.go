// Package report derives monthly and categorical spending views from a
// materialized record snapshot. Every function here is pure: no I/O, no
// clock reads (callers pass "now" in), deterministic output for a given
// input. Empty input always yields an empty result, never an error.
package report

import (
	"sort"
	"strings"
	"time"

	"kopilka/internal/core"
)

// Uncategorized is the bucket label for records whose category is absent.
// It is applied in exactly one place (bucketCategory) so the summary and
// the detail grouping can never disagree on bucket identity.
const Uncategorized = "Uncategorized"

// Period selects the date window for report filtering.
type Period string

const (
	PeriodAll   Period = "all"
	PeriodMonth Period = "month"
	Period3M    Period = "3m"
	PeriodYear  Period = "year"
)

// ParsePeriod validates a period selector from the query string.
func ParsePeriod(s string) (Period, bool) {
	switch Period(s) {
	case PeriodAll, PeriodMonth, Period3M, PeriodYear:
		return Period(s), true
	default:
		return "", false
	}
}

// CategoryRow is one summary row: distinct category, record count, and
// the arithmetic total over that category.
type CategoryRow struct {
	Category string
	Count    int
	Sum      core.Money
}

func bucketCategory(c string) string {
	// Empty and whitespace-only categories coerce the same way as an
	// absent one.
	if strings.TrimSpace(c) == "" {
		return Uncategorized
	}
	return c
}

// AvailableMonths returns each distinct month key exactly once, sorted
// descending. Lexicographic descent equals chronological descent for
// zero-padded YYYY-MM keys.
func AvailableMonths(records []core.Record) []string {
	seen := make(map[string]struct{}, len(records))
	months := make([]string, 0, len(records))
	for _, r := range records {
		if r.MonthKey == "" {
			continue
		}
		if _, ok := seen[r.MonthKey]; ok {
			continue
		}
		seen[r.MonthKey] = struct{}{}
		months = append(months, r.MonthKey)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months
}

// CategorySummary groups records into one row per distinct category,
// ordered descending by sum. Ties keep the insertion order of first
// encounter (sort must be stable for that).
func CategorySummary(records []core.Record) []CategoryRow {
	index := make(map[string]int, len(records))
	rows := make([]CategoryRow, 0, len(records))
	for _, r := range records {
		cat := bucketCategory(r.Category)
		i, ok := index[cat]
		if !ok {
			i = len(rows)
			index[cat] = i
			rows = append(rows, CategoryRow{Category: cat})
		}
		rows[i].Count++
		rows[i].Sum.Cents += r.Amount.Cents
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Sum.Cents > rows[j].Sum.Cents
	})
	return rows
}

// DetailsByCategory buckets records by category, each bucket sorted
// descending by purchase date.
func DetailsByCategory(records []core.Record) map[string][]core.Record {
	sorted := make([]core.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PurchasedAt > sorted[j].PurchasedAt
	})

	byCat := make(map[string][]core.Record)
	for _, r := range sorted {
		cat := bucketCategory(r.Category)
		byCat[cat] = append(byCat[cat], r)
	}
	return byCat
}

// Total returns the arithmetic total over the given records.
func Total(records []core.Record) core.Money {
	var sum int64
	for _, r := range records {
		sum += r.Amount.Cents
	}
	return core.Money{Cents: sum}
}

// FilterByPeriod narrows records to the selected window. "month" needs a
// month key and matches it exactly (empty result when the key is absent).
// "3m" and "year" use calendar-month arithmetic back from now, inclusive
// on both window ends.
func FilterByPeriod(records []core.Record, period Period, monthKey string, now time.Time) []core.Record {
	switch period {
	case PeriodMonth:
		if monthKey == "" {
			return nil
		}
		out := make([]core.Record, 0, len(records))
		for _, r := range records {
			if r.MonthKey == monthKey {
				out = append(out, r)
			}
		}
		return out
	case Period3M, PeriodYear:
		months := 3
		if period == PeriodYear {
			months = 12
		}
		start := core.Today(now.AddDate(0, -months, 0))
		end := core.Today(now)
		out := make([]core.Record, 0, len(records))
		for _, r := range records {
			if r.PurchasedAt >= start && r.PurchasedAt <= end {
				out = append(out, r)
			}
		}
		return out
	default:
		// "all" and any unknown selector pass everything through.
		out := make([]core.Record, len(records))
		copy(out, records)
		return out
	}
}

// FilterByMonth is the expenses-view filter: exact month key match.
func FilterByMonth(records []core.Record, monthKey string) []core.Record {
	out := make([]core.Record, 0, len(records))
	for _, r := range records {
		if r.MonthKey == monthKey {
			out = append(out, r)
		}
	}
	return out
}

// SortByDate orders records by purchase date, newest first unless
// oldestFirst is set. The input slice is not modified.
func SortByDate(records []core.Record, oldestFirst bool) []core.Record {
	out := make([]core.Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		if oldestFirst {
			return out[i].PurchasedAt < out[j].PurchasedAt
		}
		return out[i].PurchasedAt > out[j].PurchasedAt
	})
	return out
}

// PickChartMonth chooses the month highlighted on the add view: the
// current month if it has records, else the previous month if it does,
// else the most recent month with data, else the previous month.
func PickChartMonth(records []core.Record, now time.Time) string {
	months := AvailableMonths(records)
	current := core.MonthKeyOf(core.Today(now))
	prev := core.MonthKeyOf(core.Today(now.AddDate(0, -1, 0)))
	for _, m := range months {
		if m == current {
			return current
		}
	}
	for _, m := range months {
		if m == prev {
			return prev
		}
	}
	if len(months) > 0 {
		return months[0]
	}
	return prev
}
