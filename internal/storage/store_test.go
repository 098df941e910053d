package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"kopilka/internal/core"
)

// Both implementations must satisfy the same contract, so the suite runs
// against each.
func stores(t *testing.T) map[string]interface {
	RecordStore
	KeyValueStore
} {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kopilka.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]interface {
		RecordStore
		KeyValueStore
	}{
		"sqlite": sqliteStore,
		"memory": NewMemoryStore(),
	}
}

func sample() core.Record {
	return core.Record{
		Title:       "Milk",
		Category:    "Food",
		Amount:      core.Money{Cents: 1050},
		Comment:     "two bottles",
		PurchasedAt: "2024-01-05",
	}
}

func TestAddGetRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := sample()

			id, err := s.Add(ctx, in)
			if err != nil {
				t.Fatalf("add: %v", err)
			}
			if id == 0 {
				t.Fatalf("expected assigned id")
			}

			got, err := s.Get(ctx, id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.ID != id {
				t.Fatalf("expected id %d, got %d", id, got.ID)
			}
			if got.Title != in.Title || got.Category != in.Category ||
				got.Amount != in.Amount || got.Comment != in.Comment ||
				got.PurchasedAt != in.PurchasedAt {
				t.Fatalf("round trip mismatch: %+v vs %+v", got, in)
			}
			if got.MonthKey != "2024-01" {
				t.Fatalf("month key not derived on add: %q", got.MonthKey)
			}
		})
	}
}

func TestIdentitiesAscend(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var last int64
			for i := 0; i < 3; i++ {
				id, err := s.Add(ctx, sample())
				if err != nil {
					t.Fatalf("add: %v", err)
				}
				if id <= last {
					t.Fatalf("identity did not ascend: %d after %d", id, last)
				}
				last = id
			}
		})
	}
}

func TestPutReplacesAndRederivesMonthKey(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := s.Add(ctx, sample())
			if err != nil {
				t.Fatalf("add: %v", err)
			}

			r, _ := s.Get(ctx, id)
			r.Amount = core.Money{Cents: 9999}
			r.PurchasedAt = "2024-03-10"
			r.MonthKey = "stale" // must be overwritten, never trusted
			if err := s.Put(ctx, r); err != nil {
				t.Fatalf("put: %v", err)
			}

			got, _ := s.Get(ctx, id)
			if got.Amount.Cents != 9999 {
				t.Fatalf("amount not updated: %+v", got)
			}
			if got.MonthKey != "2024-03" {
				t.Fatalf("month key not recomputed on put: %q", got.MonthKey)
			}
			// Unrelated fields ride along unchanged.
			if got.Title != "Milk" || got.Category != "Food" || got.Comment != "two bottles" {
				t.Fatalf("unrelated fields changed: %+v", got)
			}
		})
	}
}

func TestPutUnknownIdentity(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			r := sample()
			r.ID = 4242
			if err := s.Put(context.Background(), r); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := s.Add(ctx, sample())
			if err != nil {
				t.Fatalf("add: %v", err)
			}

			// Deleting an identity that does not exist must not alter the
			// collection or fail.
			if err := s.Delete(ctx, 9999); err != nil {
				t.Fatalf("delete unknown: %v", err)
			}
			all, _ := s.GetAll(ctx)
			if len(all) != 1 {
				t.Fatalf("collection changed by unknown delete: %d records", len(all))
			}

			if err := s.Delete(ctx, id); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestGetAllOrderedByIdentity(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				if _, err := s.Add(ctx, sample()); err != nil {
					t.Fatalf("add: %v", err)
				}
			}
			all, err := s.GetAll(ctx)
			if err != nil {
				t.Fatalf("get all: %v", err)
			}
			for i := 1; i < len(all); i++ {
				if all[i-1].ID >= all[i].ID {
					t.Fatalf("not ordered by identity: %+v", all)
				}
			}
		})
	}
}

func TestSettingsSlot(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.GetValue(ctx, "pin_credential"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound for empty slot, got %v", err)
			}

			if err := s.SetValue(ctx, "pin_credential", `{"salt":"ab","hash":"cd"}`); err != nil {
				t.Fatalf("set: %v", err)
			}
			v, err := s.GetValue(ctx, "pin_credential")
			if err != nil || v != `{"salt":"ab","hash":"cd"}` {
				t.Fatalf("get: %q %v", v, err)
			}

			// Overwrite replaces the slot.
			if err := s.SetValue(ctx, "pin_credential", "x"); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			if v, _ := s.GetValue(ctx, "pin_credential"); v != "x" {
				t.Fatalf("overwrite not visible: %q", v)
			}
		})
	}
}
