package cache

import (
	"context"
	"slices"
	"time"

	"raskhody/internal/core"
	"raskhody/internal/metrics"
	"raskhody/internal/storage"
)

// maxClockSkew is the tolerated gap between the process clock and a store
// that timestamps rows with its own clock.
const maxClockSkew = 5 * time.Minute

type dayKey struct {
	userID int64
	day    string
}

// Store caches ExpensesOn for days that have ended. New expenses always
// get a timestamp at or after the current time, so a closed day never
// changes again. Every other call goes straight to the wrapped store.
type Store struct {
	storage.Store
	days    *LRU[dayKey, []core.ExpenseItem]
	opts    storage.Options
	metrics *metrics.Metrics

	// A day is cached only once it ended more than settle ago: a write that
	// started before midnight may commit up to one store timeout later, and
	// the store clock may lag ours by up to maxClockSkew.
	settle time.Duration
}

// NewStore wraps next. opts supplies the calendar location and clock; size
// bounds the number of cached (user, day) pairs.
func NewStore(next storage.Store, size int, ttl time.Duration, opts storage.Options, m *metrics.Metrics) *Store {
	opts = opts.WithDefaults()
	days := NewLRU[dayKey, []core.ExpenseItem](size, ttl)
	days.now = opts.Now
	return &Store{
		Store:   next,
		days:    days,
		opts:    opts,
		metrics: m,
		settle:  opts.Timeout + maxClockSkew,
	}
}

func (s *Store) ExpensesOn(ctx context.Context, userID int64, day core.Date) ([]core.ExpenseItem, error) {
	if !s.closed(day) {
		return s.Store.ExpensesOn(ctx, userID, day)
	}

	key := dayKey{userID: userID, day: day.Label()}
	if items, ok := s.days.Get(key); ok {
		s.metrics.ObserveCacheLookup(true)
		return slices.Clone(items), nil
	}
	s.metrics.ObserveCacheLookup(false)

	items, err := s.Store.ExpensesOn(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	s.days.Set(key, slices.Clone(items))
	return items, nil
}

func (s *Store) closed(day core.Date) bool {
	_, end := day.Bounds(s.opts.Location)
	return s.opts.Now().After(end.Add(s.settle))
}
