package metrics

import (
	"context"
	"time"

	"raskhody/internal/core"
	"raskhody/internal/storage"
)

// InstrumentStore counts and times every operation of next.
func InstrumentStore(next storage.Store, m *Metrics) storage.Store {
	if m == nil {
		return next
	}
	return &instrumentedStore{next: next, m: m}
}

type instrumentedStore struct {
	next storage.Store
	m    *Metrics
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	s.m.ObserveStore(op, err, time.Since(start))
}

func (s *instrumentedStore) RecordExpense(ctx context.Context, userID int64, amount core.Money, description string) error {
	start := time.Now()
	err := s.next.RecordExpense(ctx, userID, amount, description)
	s.observe(storage.OpRecordExpense, start, err)
	return err
}

func (s *instrumentedStore) ExpensesOn(ctx context.Context, userID int64, day core.Date) ([]core.ExpenseItem, error) {
	start := time.Now()
	items, err := s.next.ExpensesOn(ctx, userID, day)
	s.observe(storage.OpExpensesOn, start, err)
	return items, err
}

func (s *instrumentedStore) ExpensesToday(ctx context.Context, userID int64) ([]core.ExpenseItem, error) {
	start := time.Now()
	items, err := s.next.ExpensesToday(ctx, userID)
	s.observe(storage.OpExpensesToday, start, err)
	return items, err
}

func (s *instrumentedStore) EnsureUser(ctx context.Context, user core.User) error {
	start := time.Now()
	err := s.next.EnsureUser(ctx, user)
	s.observe(storage.OpEnsureUser, start, err)
	return err
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe(storage.OpPing, start, err)
	return err
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
