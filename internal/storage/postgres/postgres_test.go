package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"raskhody/internal/core"
	"raskhody/internal/storage"
	"raskhody/internal/storage/storagetest"
)

// testDSN returns a disposable database with the schema applied, e.g.
// RASKHODY_TEST_DATABASE_URL=postgres://postgres@localhost:5432/raskhody_test?sslmode=disable
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("RASKHODY_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("RASKHODY_TEST_DATABASE_URL not set")
	}
	if err := storage.RunMigrations(storage.DialectPostgres, dsn); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	return dsn
}

func openTestStore(t *testing.T, dsn string, opts storage.Options) (*Store, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	pool, err := NewPool(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE expenses, users RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return New(pool, opts), pool
}

func TestStore(t *testing.T) {
	dsn := testDSN(t)
	storagetest.Run(t, func(t *testing.T, opts storage.Options) storage.Store {
		s, _ := openTestStore(t, dsn, opts)
		return s
	}, true)
}

// The shared suite drives the clock from Go; these cases pin timestamps in
// the database directly because this store uses the server clock.
func TestTodayWindowFollowsLocation(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()
	loc, err := time.LoadLocation("Asia/Vladivostok")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s, pool := openTestStore(t, dsn, storage.Options{Location: loc})
	defer s.Close()

	var midnight time.Time
	if err := pool.QueryRow(ctx,
		`SELECT date_trunc('day', now() AT TIME ZONE $1::text) AT TIME ZONE $1::text`,
		loc.String()).Scan(&midnight); err != nil {
		t.Fatalf("server midnight: %v", err)
	}

	const userID = 1
	if _, err := pool.Exec(ctx, `INSERT INTO users (user_id) VALUES ($1)`, userID); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	insert := `INSERT INTO expenses (user_id, amount, description, timestamp) VALUES ($1, $2::numeric, $3, $4)`
	if _, err := pool.Exec(ctx, insert, userID, "100", "вчера 23:59", midnight.Add(-time.Minute)); err != nil {
		t.Fatalf("insert yesterday: %v", err)
	}
	if _, err := pool.Exec(ctx, insert, userID, "200", "сегодня 00:01", midnight.Add(time.Minute)); err != nil {
		t.Fatalf("insert today: %v", err)
	}

	items, err := s.ExpensesToday(ctx, userID)
	if err != nil {
		t.Fatalf("ExpensesToday: %v", err)
	}
	if len(items) != 1 || items[0].Description != "сегодня 00:01" {
		t.Fatalf("ExpensesToday = %+v, want only the 00:01 row", items)
	}

	yesterday := core.DateOf(midnight.Add(-time.Minute), loc)
	items, err = s.ExpensesOn(ctx, userID, yesterday)
	if err != nil {
		t.Fatalf("ExpensesOn: %v", err)
	}
	if len(items) != 1 || items[0].Description != "вчера 23:59" {
		t.Errorf("ExpensesOn(%s) = %+v, want only the 23:59 row", yesterday.Label(), items)
	}
}

func TestRecordExpenseNeverGoesBackInTime(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()
	s, pool := openTestStore(t, dsn, storage.Options{})
	defer s.Close()

	const userID = 2
	var future time.Time
	if err := pool.QueryRow(ctx, `SELECT now() + interval '1 hour'`).Scan(&future); err != nil {
		t.Fatalf("server time: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO users (user_id) VALUES ($1)`, userID); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO expenses (user_id, amount, timestamp) VALUES ($1, 1, $2)`,
		userID, future); err != nil {
		t.Fatalf("insert future row: %v", err)
	}

	if err := s.RecordExpense(ctx, userID, core.MustParseAmount("2"), "после"); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}

	rows, err := pool.Query(ctx, `SELECT timestamp FROM expenses WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		t.Fatalf("select timestamps: %v", err)
	}
	stamps, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		t.Fatalf("collect timestamps: %v", err)
	}
	if len(stamps) != 2 {
		t.Fatalf("got %d rows, want 2", len(stamps))
	}
	if stamps[1].Before(stamps[0]) {
		t.Errorf("second timestamp %v is earlier than the first %v", stamps[1], stamps[0])
	}
}

func TestWrapClassifiesPgErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"connection exception", &pgconn.PgError{Code: "08006"}, storage.ErrConnectionFailed},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, storage.ErrConnectionFailed},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, storage.ErrTimeout},
		{"check violation", &pgconn.PgError{Code: "23514"}, storage.ErrQueryFailed},
		{"deadline", context.DeadlineExceeded, storage.ErrTimeout},
		{"canceled", context.Canceled, storage.ErrCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrap(storage.OpExpensesOn, tt.err)
			if !errors.Is(err, tt.want) {
				t.Errorf("wrap(%v) = %v, want kind %v", tt.err, err, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("wrap(%v) lost the cause", tt.err)
			}
		})
	}
}
