// Package postgres implements the expense store on PostgreSQL through a
// pgx connection pool owned by the process.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"raskhody/internal/core"
	"raskhody/internal/storage"
)

// NewPool opens and pings a pool. The caller owns it and closes it on shutdown.
func NewPool(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

type Store struct {
	pool *pgxpool.Pool
	opts storage.Options
}

var _ storage.Store = (*Store)(nil)

func New(pool *pgxpool.Pool, opts storage.Options) *Store {
	return &Store{pool: pool, opts: opts.WithDefaults()}
}

const (
	ensureUserRowSQL = `
INSERT INTO users (user_id) VALUES ($1)
ON CONFLICT (user_id) DO NOTHING`

	lockUserSQL = `SELECT user_id FROM users WHERE user_id = $1 FOR UPDATE`

	// GREATEST skips the NULL produced for a user without expenses.
	insertExpenseSQL = `
INSERT INTO expenses (user_id, amount, description, timestamp)
VALUES ($1, $2::numeric, $3,
        GREATEST(now(), (SELECT max(timestamp) FROM expenses WHERE user_id = $1)))`

	upsertUserSQL = `
INSERT INTO users (user_id, username, first_name) VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE
SET username = EXCLUDED.username, first_name = EXCLUDED.first_name`

	expensesBetweenSQL = `
SELECT amount::text, COALESCE(description, '')
FROM expenses
WHERE user_id = $1 AND timestamp >= $2 AND timestamp < $3
ORDER BY timestamp, id`

	expensesTodaySQL = `
SELECT amount::text, COALESCE(description, '')
FROM expenses
WHERE user_id = $1
  AND timestamp >= (date_trunc('day', now() AT TIME ZONE $2::text) AT TIME ZONE $2::text)
  AND timestamp <  ((date_trunc('day', now() AT TIME ZONE $2::text) + interval '1 day') AT TIME ZONE $2::text)
ORDER BY timestamp, id`
)

// RecordExpense upserts the user and appends the expense in one transaction.
// The user row lock serialises concurrent writes for one user so the
// monotonic timestamp holds.
func (s *Store) RecordExpense(ctx context.Context, userID int64, amount core.Money, description string) error {
	const op = storage.OpRecordExpense
	if err := amount.Validate(); err != nil {
		return storage.NewError(op, storage.ErrQueryFailed, err)
	}

	ctx, cancel := s.opts.Context(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrap(op, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(context.Background())

	if _, err := tx.Exec(ctx, ensureUserRowSQL, userID); err != nil {
		return wrap(op, fmt.Errorf("ensure user: %w", err))
	}
	if _, err := tx.Exec(ctx, lockUserSQL, userID); err != nil {
		return wrap(op, fmt.Errorf("lock user: %w", err))
	}
	if _, err := tx.Exec(ctx, insertExpenseSQL, userID, amount.String(), nullable(description)); err != nil {
		return wrap(op, fmt.Errorf("insert expense: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return wrap(op, fmt.Errorf("commit: %w", err))
	}

	slog.DebugContext(ctx, "Expense saved to PostgreSQL",
		"user_id", userID,
		"amount", amount.String())
	return nil
}

func (s *Store) EnsureUser(ctx context.Context, user core.User) error {
	const op = storage.OpEnsureUser
	ctx, cancel := s.opts.Context(ctx)
	defer cancel()

	if _, err := s.pool.Exec(ctx, upsertUserSQL, user.ID, nullable(user.Username), nullable(user.FirstName)); err != nil {
		return wrap(op, fmt.Errorf("upsert user: %w", err))
	}
	return nil
}

func (s *Store) ExpensesOn(ctx context.Context, userID int64, day core.Date) ([]core.ExpenseItem, error) {
	start, end := day.Bounds(s.opts.Location)
	return s.query(ctx, storage.OpExpensesOn, expensesBetweenSQL, userID, start, end)
}

// ExpensesToday resolves "today" with the server clock.
func (s *Store) ExpensesToday(ctx context.Context, userID int64) ([]core.ExpenseItem, error) {
	return s.query(ctx, storage.OpExpensesToday, expensesTodaySQL, userID, s.opts.Location.String())
}

func (s *Store) query(ctx context.Context, op, sql string, args ...any) ([]core.ExpenseItem, error) {
	ctx, cancel := s.opts.Context(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, wrap(op, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(context.Background())

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrap(op, fmt.Errorf("query expenses: %w", err))
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, wrap(op, fmt.Errorf("scan expenses: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, wrap(op, fmt.Errorf("commit: %w", err))
	}
	return items, nil
}

func scanItem(row pgx.CollectableRow) (core.ExpenseItem, error) {
	var amount, description string
	if err := row.Scan(&amount, &description); err != nil {
		return core.ExpenseItem{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.ExpenseItem{}, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	return core.ExpenseItem{Amount: core.Money{Value: d}, Description: description}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opts.Context(ctx)
	defer cancel()
	return wrap(storage.OpPing, s.pool.Ping(ctx))
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// wrap refines the generic classification with PostgreSQL error codes.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return storage.Wrap(op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return storage.NewError(op, storage.ErrConnectionFailed, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			return storage.NewError(op, storage.ErrConnectionFailed, err)
		case pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
			return storage.NewError(op, storage.ErrConnectionFailed, err)
		case pgErr.Code == "57014":
			return storage.NewError(op, storage.ErrTimeout, err)
		}
		return storage.NewError(op, storage.ErrQueryFailed, err)
	}
	if pgconn.Timeout(err) {
		return storage.NewError(op, storage.ErrTimeout, err)
	}
	return storage.Wrap(op, err)
}
