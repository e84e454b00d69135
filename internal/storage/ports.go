// Package storage defines the persistence ports the bot depends on and the
// error taxonomy every implementation reports with.
//
// Calendar days are always evaluated in Options.Location; "today" is taken
// from the store's clock, never from the caller.
package storage

import (
	"context"
	"time"

	"raskhody/internal/core"
)

// Ports for outbound adapters.
type (
	ExpenseWriter interface {
		// RecordExpense appends one expense in a single transaction. The store
		// assigns the timestamp. Non-positive amounts are rejected.
		RecordExpense(ctx context.Context, userID int64, amount core.Money, description string) error
	}

	ExpenseReader interface {
		// ExpensesOn returns the user's expenses whose timestamp falls on day,
		// oldest first.
		ExpensesOn(ctx context.Context, userID int64, day core.Date) ([]core.ExpenseItem, error)
		// ExpensesToday is ExpensesOn for the store's current date.
		ExpensesToday(ctx context.Context, userID int64) ([]core.ExpenseItem, error)
	}

	UserRegistry interface {
		// EnsureUser creates the user or refreshes its display names.
		EnsureUser(ctx context.Context, user core.User) error
	}

	Store interface {
		ExpenseWriter
		ExpenseReader
		UserRegistry
		Ping(ctx context.Context) error
		Close() error
	}
)

// Operation names used in errors, logs and metrics.
const (
	OpRecordExpense = "record_expense"
	OpExpensesOn    = "expenses_on"
	OpExpensesToday = "expenses_today"
	OpEnsureUser    = "ensure_user"
	OpPing          = "ping"
)

// Options are shared by every store implementation.
type Options struct {
	// Location decides which calendar day a timestamp belongs to. Default UTC.
	Location *time.Location
	// Timeout bounds every operation. Default 5s.
	Timeout time.Duration
	// Now is the store clock. Stores backed by a server clock ignore it.
	Now func() time.Time
}

const defaultTimeout = 5 * time.Second

// WithDefaults fills in unset fields.
func (o Options) WithDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Context bounds one store operation by the configured timeout.
func (o Options) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.Timeout)
}

// Today is the current calendar day according to the store clock.
func (o Options) Today() core.Date {
	return core.DateOf(o.Now(), o.Location)
}
