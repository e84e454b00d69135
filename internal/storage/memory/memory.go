// Package memory is an in-process expense store for tests and local runs.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"raskhody/internal/core"
	"raskhody/internal/storage"
)

type Store struct {
	mu       sync.RWMutex
	opts     storage.Options
	users    map[int64]core.User
	expenses []core.Expense
	last     map[int64]time.Time
	nextID   int64
}

var _ storage.Store = (*Store)(nil)

func New(opts storage.Options) *Store {
	return &Store{
		opts:  opts.WithDefaults(),
		users: map[int64]core.User{},
		last:  map[int64]time.Time{},
	}
}

func (s *Store) RecordExpense(ctx context.Context, userID int64, amount core.Money, description string) error {
	const op = storage.OpRecordExpense
	if err := ctx.Err(); err != nil {
		return storage.Wrap(op, err)
	}

	if err := amount.Validate(); err != nil {
		return storage.NewError(op, storage.ErrQueryFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	if _, ok := s.users[userID]; !ok {
		s.users[userID] = core.User{ID: userID, CreatedAt: now}
	}
	if last, ok := s.last[userID]; ok && last.After(now) {
		now = last
	}
	s.nextID++
	s.expenses = append(s.expenses, core.Expense{
		ID:          s.nextID,
		UserID:      userID,
		Amount:      amount,
		Description: description,
		CreatedAt:   now,
	})
	s.last[userID] = now
	return nil
}

func (s *Store) EnsureUser(ctx context.Context, user core.User) error {
	if err := ctx.Err(); err != nil {
		return storage.Wrap(storage.OpEnsureUser, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[user.ID]; ok {
		existing.Username = user.Username
		existing.FirstName = user.FirstName
		s.users[user.ID] = existing
		return nil
	}
	user.CreatedAt = s.opts.Now()
	s.users[user.ID] = user
	return nil
}

func (s *Store) ExpensesOn(ctx context.Context, userID int64, day core.Date) ([]core.ExpenseItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.Wrap(storage.OpExpensesOn, err)
	}
	start, end := day.Bounds(s.opts.Location)
	return s.between(userID, start, end), nil
}

func (s *Store) ExpensesToday(ctx context.Context, userID int64) ([]core.ExpenseItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.Wrap(storage.OpExpensesToday, err)
	}
	start, end := s.opts.Today().Bounds(s.opts.Location)
	return s.between(userID, start, end), nil
}

func (s *Store) between(userID int64, start, end time.Time) []core.ExpenseItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []core.Expense
	for _, e := range s.expenses {
		if e.UserID == userID && !e.CreatedAt.Before(start) && e.CreatedAt.Before(end) {
			matched = append(matched, e)
		}
	}
	slices.SortStableFunc(matched, func(a, b core.Expense) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	var items []core.ExpenseItem
	for _, e := range matched {
		items = append(items, e.Item())
	}
	return items
}

// User returns a registered user.
func (s *Store) User(id int64) (core.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// Expenses returns every stored expense in insertion order.
func (s *Store) Expenses() []core.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.expenses)
}

func (s *Store) Ping(ctx context.Context) error {
	return storage.Wrap(storage.OpPing, ctx.Err())
}

func (s *Store) Close() error { return nil }
