package report

import (
	"testing"
	"time"

	"kopilka/internal/core"
)

func rec(date, category string, cents int64) core.Record {
	r := core.Record{
		Title:       "item",
		Category:    category,
		Amount:      core.Money{Cents: cents},
		PurchasedAt: date,
	}
	r.Normalize()
	return r
}

func TestAvailableMonths(t *testing.T) {
	records := []core.Record{
		rec("2024-01-05", "Food", 1000),
		rec("2024-01-20", "Food", 500),
		rec("2024-02-01", "Rent", 50000),
	}
	got := AvailableMonths(records)
	want := []string{"2024-02", "2024-01"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestAvailableMonthsEmpty(t *testing.T) {
	if got := AvailableMonths(nil); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestCategorySummaryScenario(t *testing.T) {
	records := []core.Record{
		rec("2024-01-05", "Food", 1000),
		rec("2024-01-20", "Food", 500),
		rec("2024-02-01", "Rent", 50000),
	}
	rows := CategorySummary(records)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Category != "Rent" || rows[0].Count != 1 || rows[0].Sum.Cents != 50000 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Category != "Food" || rows[1].Count != 2 || rows[1].Sum.Cents != 1500 {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
}

func TestCategorySummaryConservesTotal(t *testing.T) {
	records := []core.Record{
		rec("2024-01-05", "Food", 1000),
		rec("2024-01-20", "", 500), // sentinel bucket
		rec("2024-02-01", "Rent", 50000),
		rec("2024-03-01", "  ", -250), // whitespace coerces like absent
	}
	var fromRows int64
	for _, row := range CategorySummary(records) {
		fromRows += row.Sum.Cents
	}
	if total := Total(records).Cents; fromRows != total {
		t.Fatalf("grouping lost money: rows=%d records=%d", fromRows, total)
	}
}

func TestCategorySummaryTieKeepsFirstEncounterOrder(t *testing.T) {
	records := []core.Record{
		rec("2024-01-05", "B", 100),
		rec("2024-01-06", "A", 100),
	}
	rows := CategorySummary(records)
	if rows[0].Category != "B" || rows[1].Category != "A" {
		t.Fatalf("tie broke insertion order: %+v", rows)
	}
}

func TestSentinelConsistencyBetweenSummaryAndDetails(t *testing.T) {
	records := []core.Record{
		rec("2024-01-05", "", 100),
		rec("2024-01-06", "   ", 200),
	}
	rows := CategorySummary(records)
	details := DetailsByCategory(records)
	if len(rows) != 1 || rows[0].Category != Uncategorized {
		t.Fatalf("summary sentinel mismatch: %+v", rows)
	}
	if got := len(details[Uncategorized]); got != rows[0].Count {
		t.Fatalf("detail bucket has %d records, summary counted %d", got, rows[0].Count)
	}
}

func TestDetailsByCategorySortedDescending(t *testing.T) {
	records := []core.Record{
		rec("2024-01-05", "Food", 100),
		rec("2024-01-20", "Food", 200),
		rec("2024-01-10", "Food", 300),
	}
	bucket := DetailsByCategory(records)["Food"]
	if len(bucket) != 3 {
		t.Fatalf("expected 3 records, got %d", len(bucket))
	}
	for i := 1; i < len(bucket); i++ {
		if bucket[i-1].PurchasedAt < bucket[i].PurchasedAt {
			t.Fatalf("bucket not descending: %v then %v", bucket[i-1].PurchasedAt, bucket[i].PurchasedAt)
		}
	}
}

func TestFilterByPeriodMonth(t *testing.T) {
	records := []core.Record{
		rec("2024-01-05", "Food", 100),
		rec("2024-02-01", "Rent", 200),
	}
	now := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)

	got := FilterByPeriod(records, PeriodMonth, "2024-01", now)
	if len(got) != 1 || got[0].MonthKey != "2024-01" {
		t.Fatalf("unexpected month filter result: %+v", got)
	}

	// Month period without a key is empty, not an error.
	if got := FilterByPeriod(records, PeriodMonth, "", now); len(got) != 0 {
		t.Fatalf("expected empty result without month key, got %+v", got)
	}
}

func TestFilterByPeriodWindows(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	records := []core.Record{
		rec("2024-06-15", "A", 1), // today, inclusive
		rec("2024-03-15", "B", 1), // exactly 3 months back, inclusive
		rec("2024-03-14", "C", 1), // just outside 3m
		rec("2023-06-15", "D", 1), // exactly a year back
		rec("2023-06-14", "E", 1), // outside the year
		rec("2024-06-16", "F", 1), // future date, excluded
	}

	got := FilterByPeriod(records, Period3M, "", now)
	if len(got) != 2 {
		t.Fatalf("3m window expected 2 records, got %d: %+v", len(got), got)
	}

	got = FilterByPeriod(records, PeriodYear, "", now)
	if len(got) != 4 {
		t.Fatalf("year window expected 4 records, got %d", len(got))
	}

	got = FilterByPeriod(records, PeriodAll, "", now)
	if len(got) != len(records) {
		t.Fatalf("all period must pass everything through, got %d", len(got))
	}
}

func TestFilterByPeriodEmptyInput(t *testing.T) {
	now := time.Now()
	for _, p := range []Period{PeriodAll, PeriodMonth, Period3M, PeriodYear} {
		if got := FilterByPeriod(nil, p, "2024-01", now); len(got) != 0 {
			t.Fatalf("period %s: expected empty, got %v", p, got)
		}
	}
}

func TestParsePeriod(t *testing.T) {
	for _, s := range []string{"all", "month", "3m", "year"} {
		if _, ok := ParsePeriod(s); !ok {
			t.Fatalf("%q should parse", s)
		}
	}
	if _, ok := ParsePeriod("decade"); ok {
		t.Fatalf("unknown selector should not parse")
	}
}

func TestSortByDate(t *testing.T) {
	records := []core.Record{
		rec("2024-01-05", "Food", 100),
		rec("2024-01-20", "Food", 200),
	}
	newest := SortByDate(records, false)
	if newest[0].PurchasedAt != "2024-01-20" {
		t.Fatalf("expected newest first, got %v", newest[0].PurchasedAt)
	}
	oldest := SortByDate(records, true)
	if oldest[0].PurchasedAt != "2024-01-05" {
		t.Fatalf("expected oldest first, got %v", oldest[0].PurchasedAt)
	}
	if records[0].PurchasedAt != "2024-01-05" {
		t.Fatalf("input slice must not be reordered")
	}
}

func TestPickChartMonth(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	// Current month has data.
	m := PickChartMonth([]core.Record{rec("2024-06-01", "A", 1)}, now)
	if m != "2024-06" {
		t.Fatalf("expected current month, got %q", m)
	}

	// Only the previous month has data.
	m = PickChartMonth([]core.Record{rec("2024-05-01", "A", 1)}, now)
	if m != "2024-05" {
		t.Fatalf("expected previous month, got %q", m)
	}

	// Neither: most recent month with data wins.
	m = PickChartMonth([]core.Record{rec("2023-01-01", "A", 1), rec("2023-03-01", "A", 1)}, now)
	if m != "2023-03" {
		t.Fatalf("expected most recent month, got %q", m)
	}

	// No data at all: previous month.
	if m = PickChartMonth(nil, now); m != "2024-05" {
		t.Fatalf("expected fallback to previous month, got %q", m)
	}
}
