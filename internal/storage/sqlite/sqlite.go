// Package sqlite implements the expense store on a local SQLite file.
//
// Timestamps are stored as UTC unix microseconds and assigned from the store
// clock. One open connection serialises every transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"raskhody/internal/core"
	"raskhody/internal/storage"
)

type Store struct {
	db   *sql.DB
	opts storage.Options
}

var _ storage.Store = (*Store)(nil)

// DSN builds the modernc connection string for path.
func DSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode()
}

// Open creates the database file if needed and applies migrations.
func Open(path string, opts storage.Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := storage.RunMigrations(storage.DialectSQLite, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, opts: opts.WithDefaults()}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opts.Context(ctx)
	defer cancel()
	return storage.Wrap(storage.OpPing, s.db.PingContext(ctx))
}

func (s *Store) RecordExpense(ctx context.Context, userID int64, amount core.Money, description string) error {
	const op = storage.OpRecordExpense
	if err := amount.Validate(); err != nil {
		return storage.NewError(op, storage.ErrQueryFailed, err)
	}

	ctx, cancel := s.opts.Context(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Wrap(op, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	now := s.opts.Now().UTC().UnixMicro()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (user_id, created_at) VALUES (?, ?) ON CONFLICT (user_id) DO NOTHING`,
		userID, now); err != nil {
		return storage.Wrap(op, fmt.Errorf("ensure user: %w", err))
	}

	var last int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(timestamp), 0) FROM expenses WHERE user_id = ?`,
		userID).Scan(&last); err != nil {
		return storage.Wrap(op, fmt.Errorf("read last timestamp: %w", err))
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (user_id, amount, description, timestamp) VALUES (?, ?, ?, ?)`,
		userID, amount.String(), nullString(description), max(now, last))
	if err != nil {
		return storage.Wrap(op, fmt.Errorf("insert expense: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return storage.Wrap(op, fmt.Errorf("commit: %w", err))
	}

	id, _ := res.LastInsertId()
	slog.DebugContext(ctx, "Expense saved to SQLite",
		"id", id,
		"user_id", userID,
		"amount", amount.String())
	return nil
}

func (s *Store) EnsureUser(ctx context.Context, user core.User) error {
	const op = storage.OpEnsureUser
	ctx, cancel := s.opts.Context(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (user_id, username, first_name, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE
SET username = excluded.username, first_name = excluded.first_name`,
		user.ID, nullString(user.Username), nullString(user.FirstName), s.opts.Now().UTC().UnixMicro())
	if err != nil {
		return storage.Wrap(op, fmt.Errorf("upsert user: %w", err))
	}
	return nil
}

func (s *Store) ExpensesOn(ctx context.Context, userID int64, day core.Date) ([]core.ExpenseItem, error) {
	start, end := day.Bounds(s.opts.Location)
	return s.between(ctx, storage.OpExpensesOn, userID, start, end)
}

func (s *Store) ExpensesToday(ctx context.Context, userID int64) ([]core.ExpenseItem, error) {
	start, end := s.opts.Today().Bounds(s.opts.Location)
	return s.between(ctx, storage.OpExpensesToday, userID, start, end)
}

func (s *Store) between(ctx context.Context, op string, userID int64, start, end time.Time) ([]core.ExpenseItem, error) {
	ctx, cancel := s.opts.Context(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storage.Wrap(op, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
SELECT amount, COALESCE(description, '')
FROM expenses
WHERE user_id = ? AND timestamp >= ? AND timestamp < ?
ORDER BY timestamp, id`,
		userID, start.UTC().UnixMicro(), end.UTC().UnixMicro())
	if err != nil {
		return nil, storage.Wrap(op, fmt.Errorf("query expenses: %w", err))
	}
	defer rows.Close()

	var items []core.ExpenseItem
	for rows.Next() {
		var amount, description string
		if err := rows.Scan(&amount, &description); err != nil {
			return nil, storage.Wrap(op, fmt.Errorf("scan expense: %w", err))
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, storage.Wrap(op, fmt.Errorf("decode amount %q: %w", amount, err))
		}
		items = append(items, core.ExpenseItem{Amount: core.Money{Value: d}, Description: description})
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(op, fmt.Errorf("iterate expenses: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return nil, storage.Wrap(op, fmt.Errorf("commit: %w", err))
	}
	return items, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
