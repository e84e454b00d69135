package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"raskhody/internal/core"
	"raskhody/internal/metrics"
	"raskhody/internal/storage"
	"raskhody/internal/storage/memory"
	"raskhody/internal/storage/storagetest"
)

type countingStore struct {
	*memory.Store
	reads int
}

func (c *countingStore) ExpensesOn(ctx context.Context, userID int64, day core.Date) ([]core.ExpenseItem, error) {
	c.reads++
	return c.Store.ExpensesOn(ctx, userID, day)
}

func TestStoreCachesClosedDays(t *testing.T) {
	ctx := context.Background()
	clock := storagetest.NewClock(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	opts := storage.Options{Now: clock.Now}
	inner := &countingStore{Store: memory.New(opts)}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatal(err)
	}
	s := NewStore(inner, 16, time.Hour, opts, m)

	if err := s.RecordExpense(ctx, 1, core.MustParseAmount("500"), "Такси"); err != nil {
		t.Fatal(err)
	}
	day := core.NewDate(2024, 3, 15)

	// The day is still open: every read goes to the store.
	for range 2 {
		if _, err := s.ExpensesOn(ctx, 1, day); err != nil {
			t.Fatal(err)
		}
	}
	if inner.reads != 2 {
		t.Fatalf("reads on open day = %d, want 2", inner.reads)
	}

	// Midnight has passed but the day has not settled yet.
	clock.Set(time.Date(2024, 3, 16, 0, 1, 0, 0, time.UTC))
	if _, err := s.ExpensesOn(ctx, 1, day); err != nil {
		t.Fatal(err)
	}
	if inner.reads != 3 {
		t.Fatalf("reads before settle = %d, want 3", inner.reads)
	}

	clock.Set(time.Date(2024, 3, 16, 1, 0, 0, 0, time.UTC))
	for range 3 {
		items, err := s.ExpensesOn(ctx, 1, day)
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 1 || items[0].Description != "Такси" {
			t.Fatalf("items = %+v", items)
		}
		items[0].Description = "changed by caller"
	}
	if inner.reads != 4 {
		t.Errorf("reads on closed day = %d, want 4", inner.reads)
	}

	if n, err := testutil.GatherAndCount(reg, "raskhody_store_cache_lookups_total"); err != nil || n != 2 {
		t.Errorf("cache lookup series = %d, %v; want hit and miss", n, err)
	}
}

func TestStoreKeysByUser(t *testing.T) {
	ctx := context.Background()
	clock := storagetest.NewClock(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	opts := storage.Options{Now: clock.Now}
	inner := memory.New(opts)
	s := NewStore(inner, 16, time.Hour, opts, nil)

	if err := s.RecordExpense(ctx, 1, core.MustParseAmount("10"), ""); err != nil {
		t.Fatal(err)
	}
	clock.Set(time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC))

	day := core.NewDate(2024, 3, 15)
	if items, _ := s.ExpensesOn(ctx, 1, day); len(items) != 1 {
		t.Errorf("user 1 items = %d, want 1", len(items))
	}
	if items, _ := s.ExpensesOn(ctx, 2, day); len(items) != 0 {
		t.Errorf("user 2 items = %d, want 0", len(items))
	}
}

func TestStoreSettleCoversStoreTimeout(t *testing.T) {
	ctx := context.Background()
	clock := storagetest.NewClock(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	opts := storage.Options{Now: clock.Now, Timeout: 2 * time.Minute}
	inner := &countingStore{Store: memory.New(opts)}
	s := NewStore(inner, 16, time.Hour, opts, nil)
	day := core.NewDate(2024, 3, 15)

	read := func() {
		t.Helper()
		if _, err := s.ExpensesOn(ctx, 1, day); err != nil {
			t.Fatal(err)
		}
	}

	// Past the clock skew margin but not past the store timeout on top of it.
	clock.Set(time.Date(2024, 3, 16, 0, 6, 0, 0, time.UTC))
	read()
	read()
	if inner.reads != 2 {
		t.Fatalf("reads inside settle window = %d, want 2", inner.reads)
	}

	clock.Set(time.Date(2024, 3, 16, 0, 8, 0, 0, time.UTC))
	read()
	read()
	if inner.reads != 3 {
		t.Errorf("reads after settle window = %d, want 3", inner.reads)
	}
}
