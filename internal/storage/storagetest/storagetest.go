// Package storagetest holds the behaviour every storage.Store must share.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"raskhody/internal/core"
	"raskhody/internal/storage"
)

// Clock is a settable store clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Factory opens an empty store using opts.
type Factory func(t *testing.T, opts storage.Options) storage.Store

// Moscow is used to check that calendar days follow the configured location.
var Moscow = time.FixedZone("MSK", 3*60*60)

// Run exercises a store through the storage ports. Stores that take "now"
// from a database server instead of Options.Now pass serverClock, which
// skips the cases that move the clock.
func Run(t *testing.T, open Factory, serverClock bool) {
	t.Helper()

	needsClock := func(t *testing.T) {
		t.Helper()
		if serverClock {
			t.Skip("store clock is not settable")
		}
	}

	newStore := func(t *testing.T, start time.Time) (storage.Store, *Clock) {
		t.Helper()
		clock := NewClock(start)
		s := open(t, storage.Options{Location: Moscow, Timeout: 5 * time.Second, Now: clock.Now})
		t.Cleanup(func() { s.Close() })
		return s, clock
	}
	ctx := context.Background()
	noon := time.Date(2024, 3, 1, 12, 0, 0, 0, Moscow)

	t.Run("today lists records in insertion order", func(t *testing.T) {
		s, clock := newStore(t, noon)
		mustRecord(t, s, 1, "500", "Такси")
		clock.Advance(time.Minute)
		mustRecord(t, s, 1, "12,5", "")
		clock.Advance(time.Minute)
		mustRecord(t, s, 1, "0.1", "кофе с собой")

		items, err := s.ExpensesToday(ctx, 1)
		if err != nil {
			t.Fatalf("ExpensesToday: %v", err)
		}
		want := []core.ExpenseItem{
			{Amount: core.MustParseAmount("500"), Description: "Такси"},
			{Amount: core.MustParseAmount("12.5")},
			{Amount: core.MustParseAmount("0.1"), Description: "кофе с собой"},
		}
		assertItems(t, items, want)
		if total := core.Sum(items); !total.Equal(core.MustParseAmount("512.6")) {
			t.Errorf("total = %s, want 512.6", total)
		}
	})

	t.Run("users are isolated", func(t *testing.T) {
		s, _ := newStore(t, noon)
		mustRecord(t, s, 1, "100", "a")
		mustRecord(t, s, 2, "200", "b")

		items, err := s.ExpensesToday(ctx, 2)
		if err != nil {
			t.Fatalf("ExpensesToday: %v", err)
		}
		assertItems(t, items, []core.ExpenseItem{{Amount: core.MustParseAmount("200"), Description: "b"}})
	})

	t.Run("timestamps never go backwards", func(t *testing.T) {
		needsClock(t)
		s, clock := newStore(t, noon)
		mustRecord(t, s, 1, "1", "first")
		clock.Set(noon.Add(-time.Hour))
		mustRecord(t, s, 1, "2", "second")

		items, err := s.ExpensesOn(ctx, 1, core.NewDate(2024, 3, 1))
		if err != nil {
			t.Fatalf("ExpensesOn: %v", err)
		}
		assertItems(t, items, []core.ExpenseItem{
			{Amount: core.MustParseAmount("1"), Description: "first"},
			{Amount: core.MustParseAmount("2"), Description: "second"},
		})
	})

	t.Run("calendar day follows the configured location", func(t *testing.T) {
		needsClock(t)
		// 22:30 UTC on the 1st is 01:30 on the 2nd in Moscow.
		s, _ := newStore(t, time.Date(2024, 3, 1, 22, 30, 0, 0, time.UTC))
		mustRecord(t, s, 1, "300", "ночной")

		first, err := s.ExpensesOn(ctx, 1, core.NewDate(2024, 3, 1))
		if err != nil {
			t.Fatalf("ExpensesOn: %v", err)
		}
		if len(first) != 0 {
			t.Errorf("01.03.2024 items = %v, want none", first)
		}
		second, err := s.ExpensesOn(ctx, 1, core.NewDate(2024, 3, 2))
		if err != nil {
			t.Fatalf("ExpensesOn: %v", err)
		}
		assertItems(t, second, []core.ExpenseItem{{Amount: core.MustParseAmount("300"), Description: "ночной"}})
	})

	t.Run("today moves with the store clock", func(t *testing.T) {
		needsClock(t)
		s, clock := newStore(t, noon)
		mustRecord(t, s, 1, "10", "")
		clock.Advance(24 * time.Hour)

		items, err := s.ExpensesToday(ctx, 1)
		if err != nil {
			t.Fatalf("ExpensesToday: %v", err)
		}
		if len(items) != 0 {
			t.Errorf("next day items = %v, want none", items)
		}
	})

	t.Run("reads are repeatable", func(t *testing.T) {
		s, _ := newStore(t, noon)
		mustRecord(t, s, 7, "99.99", "книга")

		a, err := s.ExpensesOn(ctx, 7, core.NewDate(2024, 3, 1))
		if err != nil {
			t.Fatalf("ExpensesOn: %v", err)
		}
		b, err := s.ExpensesOn(ctx, 7, core.NewDate(2024, 3, 1))
		if err != nil {
			t.Fatalf("ExpensesOn: %v", err)
		}
		assertItems(t, b, a)
	})

	t.Run("non-positive amounts are rejected", func(t *testing.T) {
		s, _ := newStore(t, noon)
		err := s.RecordExpense(ctx, 1, core.Money{}, "ноль")
		if !errors.Is(err, storage.ErrQueryFailed) || !errors.Is(err, core.ErrNonPositiveAmount) {
			t.Fatalf("RecordExpense(0) error = %v, want query failure for non-positive amount", err)
		}
		items, err := s.ExpensesToday(ctx, 1)
		if err != nil {
			t.Fatalf("ExpensesToday: %v", err)
		}
		if len(items) != 0 {
			t.Errorf("items = %v, want none", items)
		}
	})

	t.Run("ensure user is idempotent", func(t *testing.T) {
		s, _ := newStore(t, noon)
		u := core.User{ID: 42, Username: "ivan", FirstName: "Иван"}
		if err := s.EnsureUser(ctx, u); err != nil {
			t.Fatalf("EnsureUser: %v", err)
		}
		u.FirstName = "Ваня"
		if err := s.EnsureUser(ctx, u); err != nil {
			t.Fatalf("EnsureUser again: %v", err)
		}
		mustRecord(t, s, 42, "1", "")
	})

	t.Run("canceled context", func(t *testing.T) {
		s, _ := newStore(t, noon)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := s.RecordExpense(cctx, 1, core.MustParseAmount("1"), "")
		if !errors.Is(err, storage.ErrCanceled) {
			t.Fatalf("RecordExpense error = %v, want ErrCanceled", err)
		}
		var se *storage.Error
		if !errors.As(err, &se) || se.Op != storage.OpRecordExpense {
			t.Errorf("error = %#v, want *storage.Error for %s", err, storage.OpRecordExpense)
		}
	})

	t.Run("ping", func(t *testing.T) {
		s, _ := newStore(t, noon)
		if err := s.Ping(ctx); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})
}

func mustRecord(t *testing.T, s storage.Store, userID int64, amount, description string) {
	t.Helper()
	if err := s.RecordExpense(context.Background(), userID, core.MustParseAmount(amount), description); err != nil {
		t.Fatalf("RecordExpense(%d, %s, %q): %v", userID, amount, description, err)
	}
}

func assertItems(t *testing.T, got, want []core.ExpenseItem) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d items %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if !got[i].Amount.Equal(want[i].Amount) || got[i].Description != want[i].Description {
			t.Errorf("item %d = {%s %q}, want {%s %q}", i,
				got[i].Amount, got[i].Description, want[i].Amount, want[i].Description)
		}
	}
}
