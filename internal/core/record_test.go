package core

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2024-01-05", true},
		{"2024-12-31", true},
		{" 2024-02-29 ", true}, // leap day, trimmed
		{"2024-13-01", false},
		{"2024-1-5", false}, // not zero-padded
		{"05.01.2024", false},
		{"", false},
	}
	for i, tc := range cases {
		_, err := ParseDate(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestMonthKeyOf(t *testing.T) {
	if got := MonthKeyOf("2024-01-05"); got != "2024-01" {
		t.Fatalf("expected 2024-01, got %q", got)
	}
	if got := MonthKeyOf("x"); got != "x" {
		t.Fatalf("short input should pass through, got %q", got)
	}
}

func TestNormalizeRecomputesMonthKey(t *testing.T) {
	r := Record{PurchasedAt: "2024-03-15", MonthKey: "1999-12"}
	r.Normalize()
	if r.MonthKey != "2024-03" {
		t.Fatalf("month key not recomputed: %q", r.MonthKey)
	}
}

func TestRecordValidate(t *testing.T) {
	good := Record{
		Title:       "Milk",
		Category:    "Food",
		Amount:      Money{Cents: 100},
		PurchasedAt: "2024-01-05",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Record{
		{Title: "", Category: "Food", PurchasedAt: "2024-01-05"},
		{Title: "   ", Category: "Food", PurchasedAt: "2024-01-05"},
		{Title: "Milk", Category: "", PurchasedAt: "2024-01-05"},
		{Title: "Milk", Category: "Food", PurchasedAt: "not-a-date"},
	}
	for i, r := range bads {
		if err := r.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestToday(t *testing.T) {
	now := time.Date(2024, 7, 3, 10, 0, 0, 0, time.UTC)
	if got := Today(now); got != "2024-07-03" {
		t.Fatalf("expected 2024-07-03, got %q", got)
	}
}
